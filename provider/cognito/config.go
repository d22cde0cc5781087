package cognito

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-identity"
)

// Config holds Cognito user pool settings.
type Config struct {
	// Region is the AWS region the pool lives in (e.g. "us-east-1").
	Region string

	// UserPoolID identifies the pool (e.g. "us-east-1_AbCdEfGhI").
	UserPoolID string

	// ClientID is the app client id used for all pool operations.
	ClientID string

	// ClientSecret enables SECRET_HASH computation when the app client has a
	// secret configured. Optional.
	ClientSecret string

	// AccessKeyID and SecretAccessKey override the default AWS credential
	// chain when both are set. Optional.
	AccessKeyID     string
	SecretAccessKey string

	// RefreshInterval is how often the JWKS cache refreshes.
	// Default: 1 hour.
	RefreshInterval time.Duration

	// ContextFunc provides a context for JWKS fetch. Default:
	// context.Background.
	ContextFunc func() context.Context
}

// FromIdentityConfig adapts the embedded identity configuration block.
func FromIdentityConfig(cfg identity.CognitoConfig) Config {
	return Config{
		Region:          cfg.Region,
		UserPoolID:      cfg.UserPoolID,
		ClientID:        cfg.ClientID,
		ClientSecret:    cfg.ClientSecret,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	}
}

// Validate checks that required pool settings are present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Region) == "" {
		return fmt.Errorf("cognito: region is required")
	}
	if strings.TrimSpace(c.UserPoolID) == "" {
		return fmt.Errorf("cognito: user pool id is required")
	}
	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("cognito: client id is required")
	}
	return nil
}

func (c Config) issuerURL() string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Region, c.UserPoolID)
}

func (c Config) jwksURL() string {
	return c.issuerURL() + "/.well-known/jwks.json"
}
