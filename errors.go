package identity

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeDuplicateEmail      = "DUPLICATE_EMAIL"
	TextCodeUnknownAccount      = "UNKNOWN_ACCOUNT"
	TextCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	TextCodeAccountNotConfirmed = "ACCOUNT_NOT_CONFIRMED"
	TextCodeInvalidCode         = "INVALID_CODE"
	TextCodeInvalidOldPassword  = "INVALID_OLD_PASSWORD"
	TextCodeInvalidToken        = "INVALID_TOKEN"
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeDependencyFailure   = "DEPENDENCY_FAILURE"
	TextCodeAccountDisabled     = "ACCOUNT_DISABLED"
	TextCodeTooManyAttempts     = "TOO_MANY_LOGIN_ATTEMPTS"
)

// ErrDuplicateEmail is returned when signing up with an email that belongs to
// a confirmed account.
var ErrDuplicateEmail = errors.New("email is already registered", errors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(errors.CodeConflict)

// ErrUnknownAccount is returned when an operation references an email or id
// with no matching record.
var ErrUnknownAccount = errors.New("account not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUnknownAccount).
	WithCode(errors.CodeNotFound)

// ErrInvalidCredentials is returned on login failure. The message is shared
// with the unknown-email case so callers cannot enumerate accounts.
var ErrInvalidCredentials = errors.New("incorrect email or password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrAccountNotConfirmed is returned when login is attempted before the
// signup confirmation code has been consumed. The service re-dispatches a
// confirmation code as a side effect of raising this error.
var ErrAccountNotConfirmed = errors.New("account is not confirmed", errors.CategoryAuth).
	WithTextCode(TextCodeAccountNotConfirmed).
	WithCode(errors.CodeForbidden)

// ErrInvalidCode is returned when a confirmation or reset code does not match
// the stored code, has expired, or was already consumed.
var ErrInvalidCode = errors.New("invalid or expired code", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidCode).
	WithCode(errors.CodeBadRequest)

// ErrInvalidOldPassword is returned when change-password is attempted with a
// current password that does not verify.
var ErrInvalidOldPassword = errors.New("incorrect password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidOldPassword).
	WithCode(errors.CodeBadRequest)

// ErrInvalidToken is returned when a token fails signature or structural
// verification.
var ErrInvalidToken = errors.New("token is invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned when a token verifies but its expiry claim has
// passed. Callers should prompt re-authentication rather than reject outright.
var ErrTokenExpired = errors.New("token has expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrAccountDisabled is returned when the account exists but was disabled by
// an administrative action.
var ErrAccountDisabled = errors.New("account is disabled", errors.CategoryAuth).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(errors.CodeForbidden)

// ErrTooManyLoginAttempts is returned when the attempt counter exceeds the
// configured maximum inside the cooldown window.
var ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// WrapDependencyFailure classifies an unexpected store or provider error.
func WrapDependencyFailure(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, errors.CategoryInternal, msg).
		WithTextCode(TextCodeDependencyFailure).
		WithCode(errors.CodeInternal)
}

// HasTextCode reports whether err carries the given machine-readable code.
// Matching is on text codes, never on message strings.
func HasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *errors.Error
	if errors.As(err, &rich) {
		return rich.TextCode == code
	}
	return false
}

// IsDuplicateEmail reports whether err is the duplicate-email failure.
func IsDuplicateEmail(err error) bool { return HasTextCode(err, TextCodeDuplicateEmail) }

// IsUnknownAccount reports whether err is the unknown-account failure.
func IsUnknownAccount(err error) bool { return HasTextCode(err, TextCodeUnknownAccount) }

// IsInvalidCredentials reports whether err is a login credential failure.
func IsInvalidCredentials(err error) bool { return HasTextCode(err, TextCodeInvalidCredentials) }

// IsAccountNotConfirmed reports whether err is the unconfirmed-account gate.
func IsAccountNotConfirmed(err error) bool { return HasTextCode(err, TextCodeAccountNotConfirmed) }

// IsInvalidCode reports whether err is a code mismatch or expiry failure.
func IsInvalidCode(err error) bool { return HasTextCode(err, TextCodeInvalidCode) }

// IsInvalidOldPassword reports whether err is a change-password precondition failure.
func IsInvalidOldPassword(err error) bool { return HasTextCode(err, TextCodeInvalidOldPassword) }

// IsInvalidToken reports whether err is a token verification failure.
func IsInvalidToken(err error) bool { return HasTextCode(err, TextCodeInvalidToken) }

// IsTokenExpired reports whether err is a token expiry failure.
func IsTokenExpired(err error) bool { return HasTextCode(err, TextCodeTokenExpired) }

// IsDependencyFailure reports whether err is an unclassified downstream failure.
func IsDependencyFailure(err error) bool { return HasTextCode(err, TextCodeDependencyFailure) }
