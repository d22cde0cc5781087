package cognito

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-identity"
)

// PoolClaims is the claim set carried by Cognito-issued tokens. Access tokens
// carry the client id in "client_id" rather than the audience, and the pool
// username in "username".
type PoolClaims struct {
	jwt.RegisteredClaims
	Use      string `json:"token_use,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Username string `json:"username,omitempty"`
}

var _ identity.SessionClaims = (*PoolClaims)(nil)

// Subject returns the pool subject (sub claim).
func (c *PoolClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the identifier the token was issued for. For pool tokens
// that is the subject; the local row stores it as the provider subject.
func (c *PoolClaims) UserID() string {
	return c.Subject()
}

// TokenUse reports the token_use claim ("access" or "id").
func (c *PoolClaims) TokenUse() string {
	return c.Use
}

// Expires returns the expiration time.
func (c *PoolClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time.
func (c *PoolClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// TokenValidator verifies pool-issued JWTs against the pool's JWKS endpoint.
type TokenValidator struct {
	config Config
	jwks   *keyfunc.JWKS
	logger identity.Logger
}

// NewTokenValidator fetches the pool JWKS and keeps it refreshed in the
// background.
func NewTokenValidator(cfg Config, logger identity.Logger) (*TokenValidator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = identity.DefaultLogger()
	}

	refreshInterval := cfg.RefreshInterval
	if refreshInterval == 0 {
		refreshInterval = time.Hour
	}

	ctx := context.Background()
	if cfg.ContextFunc != nil {
		ctx = cfg.ContextFunc()
	}

	jwks, err := keyfunc.Get(cfg.jwksURL(), keyfunc.Options{
		Ctx: ctx,
		RefreshErrorHandler: func(err error) {
			logger.Warn("jwks refresh error", "error", err)
		},
		RefreshInterval:   refreshInterval,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, identity.WrapDependencyFailure(err, "failed to fetch pool jwks")
	}

	return &TokenValidator{
		config: cfg,
		jwks:   jwks,
		logger: logger,
	}, nil
}

// Validate parses and verifies a pool token, returning its claims.
func (v *TokenValidator) Validate(tokenString string) (identity.SessionClaims, error) {
	claims := &PoolClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.config.issuerURL()),
	)
	if err != nil {
		return nil, normalizeValidationError(err)
	}

	if !token.Valid {
		return nil, identity.ErrInvalidToken
	}

	// Access tokens carry the app client in client_id; id tokens use aud.
	if claims.ClientID != "" && claims.ClientID != v.config.ClientID {
		return nil, identity.ErrInvalidToken
	}

	return claims, nil
}

// Shutdown stops the background JWKS refresh.
func (v *TokenValidator) Shutdown() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

func normalizeValidationError(err error) error {
	if err == nil {
		return nil
	}

	sentinel := identity.ErrInvalidToken
	if stderrors.Is(err, jwt.ErrTokenExpired) {
		sentinel = identity.ErrTokenExpired
	}

	c := sentinel.Clone()
	c.Source = err
	return c.WithMetadata(map[string]any{
		"provider": "cognito",
		"cause":    err.Error(),
	})
}
