package identity

import (
	"context"
	"fmt"
	"time"
)

// Logger is the minimal logging surface components depend on.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// TokenPair is the result of a successful authentication or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

// SessionClaims exposes the verified content of an issued token.
type SessionClaims interface {
	Subject() string
	UserID() string
	TokenUse() string
	Expires() time.Time
	IssuedAt() time.Time
}

// TokenIssuer mints and verifies session token pairs.
type TokenIssuer interface {
	IssueAccessToken(userID string) (string, error)
	IssueRefreshToken(userID string) (string, error)
	IssuePair(userID string) (*TokenPair, error)
	Verify(token string) (SessionClaims, error)
}

// PasswordHasher hashes credentials and verifies candidates against a hash.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(password, hash string) error
}

// CodeGenerator issues and matches one-time confirmation/reset codes.
type CodeGenerator interface {
	Generate() (string, error)
	Matches(candidate, stored string) bool
}

// CodeDispatcher delivers one-time codes out of band. Dispatch failures after
// a committed state change are reported, never rolled back; redelivery goes
// through ResendConfirmationCode.
type CodeDispatcher interface {
	SendCode(ctx context.Context, email, code string, purpose CodePurpose) error
}

// CodePurpose distinguishes what a dispatched code is for.
type CodePurpose string

const (
	CodePurposeSignupConfirmation CodePurpose = "signup_confirmation"
	CodePurposePasswordReset      CodePurpose = "password_reset"
)

// CodeDispatcherFunc adapts a function to the CodeDispatcher interface.
type CodeDispatcherFunc func(ctx context.Context, email, code string, purpose CodePurpose) error

// SendCode implements CodeDispatcher.
func (f CodeDispatcherFunc) SendCode(ctx context.Context, email, code string, purpose CodePurpose) error {
	if f == nil {
		return nil
	}
	return f(ctx, email, code, purpose)
}

type noopCodeDispatcher struct{}

func (noopCodeDispatcher) SendCode(context.Context, string, string, CodePurpose) error {
	return nil
}

func normalizeCodeDispatcher(d CodeDispatcher) CodeDispatcher {
	if d == nil {
		return noopCodeDispatcher{}
	}
	return d
}

// DefaultLogger returns the stdout fallback logger used when none is
// configured. Provider packages use it for their own defaults.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
