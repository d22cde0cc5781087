package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenService issues and verifies HS256 access/refresh token pairs. Access
// and refresh tokens may use distinct signing keys; verification tries the
// access key first and falls back to the refresh key.
type TokenService struct {
	signingKey        []byte
	refreshSigningKey []byte
	accessTTL         time.Duration
	refreshTTL        time.Duration
	issuer            string
	audience          jwt.ClaimStrings
	logger            Logger
	now               func() time.Time
}

var _ TokenIssuer = (*TokenService)(nil)

// TokenServiceOption customizes token service construction.
type TokenServiceOption func(*TokenService)

// WithTokenClock injects a custom clock (useful for expiry tests).
func WithTokenClock(clock func() time.Time) TokenServiceOption {
	return func(ts *TokenService) {
		if clock != nil {
			ts.now = clock
		}
	}
}

// WithTokenLogger overrides the logger.
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService creates a TokenService from the given configuration.
func NewTokenService(cfg *Config, opts ...TokenServiceOption) *TokenService {
	ts := &TokenService{
		signingKey:        []byte(cfg.SigningKey),
		refreshSigningKey: []byte(cfg.refreshKey()),
		accessTTL:         cfg.AccessTokenTTL,
		refreshTTL:        cfg.RefreshTokenTTL,
		issuer:            cfg.Issuer,
		audience:          jwt.ClaimStrings(cfg.Audience),
		logger:            defLogger{},
		now:               time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts
}

// IssueAccessToken mints a short-lived access token for the given user.
func (ts *TokenService) IssueAccessToken(userID string) (string, error) {
	return ts.sign(ts.newClaims(userID, TokenUseAccess, ts.accessTTL), ts.signingKey)
}

// IssueRefreshToken mints a long-lived refresh token for the given user.
func (ts *TokenService) IssueRefreshToken(userID string) (string, error) {
	return ts.sign(ts.newClaims(userID, TokenUseRefresh, ts.refreshTTL), ts.refreshSigningKey)
}

// IssuePair mints a fresh access+refresh token pair.
func (ts *TokenService) IssuePair(userID string) (*TokenPair, error) {
	access, err := ts.IssueAccessToken(userID)
	if err != nil {
		return nil, err
	}

	refresh, err := ts.IssueRefreshToken(userID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(ts.accessTTL.Seconds()),
	}, nil
}

// Verify parses and validates a token string, returning structured claims.
// Expired tokens fail with ErrTokenExpired; every other failure maps to
// ErrInvalidToken so callers can distinguish re-authentication from rejection.
func (ts *TokenService) Verify(tokenString string) (SessionClaims, error) {
	claims, err := ts.parse(tokenString, ts.signingKey)
	if err == nil {
		return claims, nil
	}

	if IsTokenExpired(err) {
		return nil, err
	}

	// A refresh token signed with a distinct key lands here.
	if string(ts.signingKey) != string(ts.refreshSigningKey) {
		if claims, rerr := ts.parse(tokenString, ts.refreshSigningKey); rerr == nil {
			return claims, nil
		} else if IsTokenExpired(rerr) {
			return nil, rerr
		}
	}

	return nil, err
}

func (ts *TokenService) newClaims(userID, use string, ttl time.Duration) *JWTClaims {
	now := ts.now()

	var aud jwt.ClaimStrings
	if len(ts.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(ts.audience))
		copy(aud, ts.audience)
	}

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   userID,
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UID: userID,
		Use: use,
	}

	ensureTokenID(&claims.RegisteredClaims)

	return claims
}

func (ts *TokenService) sign(claims *JWTClaims, key []byte) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(key)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signed, nil
}

func (ts *TokenService) parse(tokenString string, key []byte) (*JWTClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token service encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrInvalidToken.Category, ErrInvalidToken.Message).
			WithTextCode(ErrInvalidToken.TextCode)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		ts.logger.Error("token service could not decode or validate claims")
		return nil, ErrInvalidToken
	}

	return claims, nil
}
