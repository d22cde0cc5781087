package identity

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-errors"
)

// Config carries every tunable the package needs. It is constructed once at
// process start and passed into constructors; no component reads the
// environment on its own.
type Config struct {
	// SigningKey signs access tokens. RefreshSigningKey falls back to
	// SigningKey when empty so a single-secret deployment keeps working.
	SigningKey        string `env:"IDENTITY_SIGNING_KEY"`
	RefreshSigningKey string `env:"IDENTITY_REFRESH_SIGNING_KEY"`

	Issuer   string   `env:"IDENTITY_ISSUER" envDefault:"go-identity"`
	Audience []string `env:"IDENTITY_AUDIENCE" envSeparator:","`

	AccessTokenTTL  time.Duration `env:"IDENTITY_ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"IDENTITY_REFRESH_TOKEN_TTL" envDefault:"720h"`

	// RotateRefreshTokens controls whether a refresh call returns a new
	// refresh token alongside the new access token.
	RotateRefreshTokens bool `env:"IDENTITY_ROTATE_REFRESH_TOKENS" envDefault:"true"`

	BcryptCost int `env:"IDENTITY_BCRYPT_COST" envDefault:"10"`

	CodeLength int           `env:"IDENTITY_CODE_LENGTH" envDefault:"6"`
	CodeTTL    time.Duration `env:"IDENTITY_CODE_TTL" envDefault:"24h"`

	MailTimeout time.Duration `env:"IDENTITY_MAIL_TIMEOUT" envDefault:"5s"`

	MaxLoginAttempts     int           `env:"IDENTITY_MAX_LOGIN_ATTEMPTS" envDefault:"5"`
	LoginCooldownPeriod  time.Duration `env:"IDENTITY_LOGIN_COOLDOWN" envDefault:"24h"`
	DefaultPhoneRegion   string        `env:"IDENTITY_PHONE_REGION" envDefault:"US"`
	DeterministicUserIDs bool          `env:"IDENTITY_DETERMINISTIC_USER_IDS" envDefault:"true"`

	Cognito CognitoConfig `envPrefix:"IDENTITY_COGNITO_"`
}

// CognitoConfig configures the managed identity-provider backend.
type CognitoConfig struct {
	Region          string `env:"REGION"`
	ClientID        string `env:"CLIENT_ID"`
	ClientSecret    string `env:"CLIENT_SECRET"`
	UserPoolID      string `env:"USER_POOL_ID"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
}

// LoadConfig parses configuration from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to parse identity configuration")
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.SigningKey == "" {
		return errors.New("signing key is required", errors.CategoryValidation).
			WithTextCode("MISSING_SIGNING_KEY")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("token durations must be positive", errors.CategoryValidation).
			WithTextCode("INVALID_TOKEN_TTL")
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return errors.New("refresh token TTL must exceed access token TTL", errors.CategoryValidation).
			WithTextCode("INVALID_TOKEN_TTL")
	}
	if c.CodeLength < 4 {
		return errors.New("one-time codes must be at least 4 characters", errors.CategoryValidation).
			WithTextCode("INVALID_CODE_LENGTH")
	}
	return nil
}

func (c *Config) refreshKey() string {
	if c.RefreshSigningKey != "" {
		return c.RefreshSigningKey
	}
	return c.SigningKey
}
