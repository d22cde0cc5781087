package identity

import "context"

// Registration is what a backend hands back when credentials are created.
// PasswordHash and Code are only populated by backends that keep the local
// row as the system of record; managed providers deliver their own codes.
type Registration struct {
	// Subject identifies the credential owner inside the backend. For the
	// local backend it is empty (the row id is the subject); managed
	// providers return their own identifier.
	Subject string
	// PasswordHash is stored on the user row when non-empty.
	PasswordHash string
	// Code is the confirmation code to store and dispatch when non-empty.
	Code string
}

// CredentialBackend is the system of record for credential verification.
// Two implementations exist: the local hash-based backend in this package and
// the managed provider backend under provider/cognito. The Accounts service
// is parameterized by this interface; the local user row mirrors registration
// state in both variants.
type CredentialBackend interface {
	// Register creates credentials for a new account.
	Register(ctx context.Context, email, password string) (*Registration, error)

	// ConfirmRegistration consumes a signup confirmation code. The code must
	// be invalidated on success; a consumed or mismatched code fails with
	// ErrInvalidCode.
	ConfirmRegistration(ctx context.Context, user *User, code string) error

	// RegenerateCode rotates the confirmation code, invalidating any previous
	// one. The returned code is non-empty when the caller must dispatch it.
	RegenerateCode(ctx context.Context, user *User) (string, error)

	// Authenticate verifies credentials and issues a token pair. user is nil
	// when no local record matched; implementations must take the same time
	// to fail either way. Unconfirmed accounts fail with
	// ErrAccountNotConfirmed after the password check passes.
	Authenticate(ctx context.Context, email, password string, user *User) (*TokenPair, error)

	// StartPasswordReset generates and stores a reset code. The returned code
	// is non-empty when the caller must dispatch it.
	StartPasswordReset(ctx context.Context, user *User) (string, error)

	// CompletePasswordReset consumes the reset code and replaces the
	// password. The code is invalidated in the same operation.
	CompletePasswordReset(ctx context.Context, user *User, code, newPassword string) error

	// ChangePassword verifies the old password and replaces it. accessToken
	// is required by managed providers; the local backend ignores it.
	ChangePassword(ctx context.Context, user *User, accessToken, oldPassword, newPassword string) error

	// Refresh exchanges a refresh token for a new access token (and, per
	// rotation policy, a new refresh token).
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
}
