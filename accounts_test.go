package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lifecycleFixture struct {
	accounts   *identity.Accounts
	backend    *identity.LocalBackend
	store      *fakeUsers
	dispatcher *capturingDispatcher
	sink       *capturingSink
	clock      *fakeClock
}

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.current
}

func (c *fakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newLifecycleFixture(cfg *identity.Config) *lifecycleFixture {
	clock := &fakeClock{current: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := newFakeUsers()
	dispatcher := &capturingDispatcher{}
	sink := &capturingSink{}

	backend := identity.NewLocalBackend(cfg, store,
		identity.WithLocalClock(clock.Now),
		identity.WithLocalLogger(testLogger{}),
	)

	accounts := identity.NewAccounts(cfg, fakeRepoManager{users: store}, backend).
		WithDispatcher(dispatcher, cfg.MailTimeout).
		WithActivitySink(sink).
		WithLogger(testLogger{}).
		WithClock(clock.Now)

	return &lifecycleFixture{
		accounts:   accounts,
		backend:    backend,
		store:      store,
		dispatcher: dispatcher,
		sink:       sink,
		clock:      clock,
	}
}

func TestSignupConfirmLoginLifecycle(t *testing.T) {
	ctx := context.Background()
	fx := newLifecycleFixture(newTestConfig())

	projection, err := fx.accounts.Signup(ctx, identity.SignupInput{
		Email:    "Ada@Example.com",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", projection.Email)
	assert.Equal(t, identity.UserStatusPending, projection.Status)

	require.Equal(t, 1, fx.dispatcher.count())
	signupCode := fx.dispatcher.last()
	assert.Equal(t, identity.CodePurposeSignupConfirmation, signupCode.Purpose)
	assert.NotEmpty(t, signupCode.Code)

	// Login before confirmation is gated and re-triggers code delivery.
	_, err = fx.accounts.Login(ctx, identity.LoginInput{
		Email:    "ada@example.com",
		Password: "correct horse battery",
	})
	require.Error(t, err)
	assert.True(t, identity.IsAccountNotConfirmed(err))
	require.Equal(t, 2, fx.dispatcher.count())

	// The gated-login resend rotated the code; the first one is dead.
	err = fx.accounts.ConfirmSignup(ctx, identity.ConfirmSignupInput{
		Email: "ada@example.com",
		Code:  signupCode.Code,
	})
	require.Error(t, err)
	assert.True(t, identity.IsInvalidCode(err))

	err = fx.accounts.ConfirmSignup(ctx, identity.ConfirmSignupInput{
		Email: "ada@example.com",
		Code:  fx.dispatcher.last().Code,
	})
	require.NoError(t, err)

	pair, err := fx.accounts.Login(ctx, identity.LoginInput{
		Email:    "ada@example.com",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	claims, err := fx.backend.Tokens().Verify(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, projection.ID, claims.UserID())
	assert.Equal(t, identity.TokenUseAccess, claims.TokenUse())

	assert.Equal(t, []identity.ActivityEventType{
		identity.ActivityEventSignup,
		identity.ActivityEventLoginFailure,
		identity.ActivityEventSignupConfirmed,
		identity.ActivityEventLoginSuccess,
	}, fx.sink.types())
}

func TestSignupDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	fx := newLifecycleFixture(newTestConfig())

	_, err := fx.accounts.Signup(ctx, identity.SignupInput{
		Email:    "dup@example.com",
		Password: "password1234",
	})
	require.NoError(t, err)

	// Re-signing up while still unconfirmed rotates the code instead of
	// failing, so a lost first email is recoverable.
	projection, err := fx.accounts.Signup(ctx, identity.SignupInput{
		Email:    "dup@example.com",
		Password: "password1234",
	})
	require.NoError(t, err)
	assert.Equal(t, identity.UserStatusPending, projection.Status)
	require.Equal(t, 2, fx.dispatcher.count())
	assert.NotEqual(t, fx.dispatcher.sent[0].Code, fx.dispatcher.sent[1].Code)

	err = fx.accounts.ConfirmSignup(ctx, identity.ConfirmSignupInput{
		Email: "dup@example.com",
		Code:  fx.dispatcher.last().Code,
	})
	require.NoError(t, err)

	_, err = fx.accounts.Signup(ctx, identity.SignupInput{
		Email:    "dup@example.com",
		Password: "another password",
	})
	require.Error(t, err)
	assert.True(t, identity.IsDuplicateEmail(err))
}

func TestSignupValidation(t *testing.T) {
	ctx := context.Background()
	fx := newLifecycleFixture(newTestConfig())

	tests := []struct {
		name  string
		input identity.SignupInput
	}{
		{"missing email", identity.SignupInput{Password: "password1234"}},
		{"malformed email", identity.SignupInput{Email: "not-an-email", Password: "password1234"}},
		{"short password", identity.SignupInput{Email: "a@example.com", Password: "short"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.accounts.Signup(ctx, tc.input)
			require.Error(t, err)
		})
	}

	assert.Equal(t, 0, fx.dispatcher.count())
}

func TestConfirmSignupWrongCodeLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	fx := newLifecycleFixture(newTestConfig())

	_, err := fx.accounts.Signup(ctx, identity.SignupInput{
		Email:    "pending@example.com",
		Password: "password1234",
	})
	require.NoError(t, err)

	err = fx.accounts.ConfirmSignup(ctx, identity.ConfirmSignupInput{
		Email: "pending@example.com",
		Code:  "000000",
	})
	require.Error(t, err)
	assert.True(t, identity.IsInvalidCode(err))

	user, err := fx.store.GetByEmail(ctx, "pending@example.com")
	require.NoError(t, err)
	assert.Equal(t, identity.UserStatusPending, user.Status)
	assert.NotEmpty(t, user.ConfirmationCode)

	// The stored code still works after the failed attempt.
	err = fx.accounts.ConfirmSignup(ctx, identity.ConfirmSignupInput{
		Email: "pending@example.com",
		Code:  fx.dispatcher.last().Code,
	})
	require.NoError(t, err)
}

func TestConfirmSignupCodeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	fx := newLifecycleFixture(newTestConfig())

	_, err := fx.accounts.Signup(ctx, identity.SignupInput{
		Email:    "once@example.com",
		Password: "password1234",
	})
	require.NoError(t, err)

	code := fx.dispatcher.last().Code

	require.NoError(t, fx.accounts.ConfirmSignup(ctx, identity.ConfirmSignupInput{
		Email: "once@example.com",
		Code:  code,
	}))

	err = fx.accounts.ConfirmSignup(ctx, identity.ConfirmSignupInput{
		Email: "once@example.com",
		Code:  code,
	})
	require.Error(t, err)
	assert.True(t, identity.IsInvalidCode(err))
}

func TestConfirmSignupUnknownEmail(t *testing.T) {
	ctx := context.Background()
	fx := newLifecycleFixture(newTestConfig())

	err := fx.accounts.ConfirmSignup(ctx, identity.ConfirmSignupInput{
		Email: "ghost@example.com",
		Code:  "123456",
	})
	require.Error(t, err)
	assert.True(t, identity.IsUnknownAccount(err))
}

func TestConfirmationCodeExpires(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig()
	cfg.CodeTTL = 24 * time.Hour
	fx := newLifecycleFixture(cfg)

	_, err := fx.accounts.Signup(ctx, identity.SignupInput{
		Email:    "slow@example.com",
		Password: "password1234",
	})
	require.NoError(t, err)

	fx.clock.Advance(25 * time.Hour)

	err = fx.accounts.ConfirmSignup(ctx, identity.ConfirmSignupInput{
		Email: "slow@example.com",
		Code:  fx.dispatcher.last().Code,
	})
	require.Error(t, err)
	assert.True(t, identity.IsInvalidCode(err))

	// A fresh code from resend still works.
	require.NoError(t, fx.accounts.ResendConfirmationCode(ctx, identity.EmailOnlyInput{
		Email: "slow@example.com",
	}))
	require.NoError(t, fx.accounts.ConfirmSignup(ctx, identity.ConfirmSignupInput{
		Email: "slow@example.com",
		Code:  fx.dispatcher.last().Code,
	}))
}

func TestResendConfirmationCode(t *testing.T) {
	ctx := context.Background()
	fx := newLifecycleFixture(newTestConfig())

	_, err := fx.accounts.Signup(ctx, identity.SignupInput{
		Email:    "resend@example.com",
		Password: "password1234",
	})
	require.NoError(t, err)
	first := fx.dispatcher.last().Code

	require.NoError(t, fx.accounts.ResendConfirmationCode(ctx, identity.EmailOnlyInput{
		Email: "resend@example.com",
	}))
	second := fx.dispatcher.last().Code
	assert.NotEqual(t, first, second)

	// Rotation invalidated the first code.
	err = fx.accounts.ConfirmSignup(ctx, identity.ConfirmSignupInput{
		Email: "resend@example.com",
		Code:  first,
	})
	require.Error(t, err)
	assert.True(t, identity.IsInvalidCode(err))

	require.NoError(t, fx.accounts.ConfirmSignup(ctx, identity.ConfirmSignupInput{
		Email: "resend@example.com",
		Code:  second,
	}))

	// Confirmed accounts are a silent no-op: nothing is dispatched and no
	// error leaks registration state.
	before := fx.dispatcher.count()
	require.NoError(t, fx.accounts.ResendConfirmationCode(ctx, identity.EmailOnlyInput{
		Email: "resend@example.com",
	}))
	assert.Equal(t, before, fx.dispatcher.count())

	err = fx.accounts.ResendConfirmationCode(ctx, identity.EmailOnlyInput{
		Email: "ghost@example.com",
	})
	require.Error(t, err)
	assert.True(t, identity.IsUnknownAccount(err))
}

func TestLoginFailures(t *testing.T) {
	ctx := context.Background()
	fx := newLifecycleFixture(newTestConfig())

	signupAndConfirm(t, fx, "known@example.com", "password1234")

	tests := []struct {
		name     string
		email    string
		password string
		check    func(error) bool
	}{
		{"unknown email", "ghost@example.com", "password1234", identity.IsInvalidCredentials},
		{"wrong password", "known@example.com", "wrong password", identity.IsInvalidCredentials},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.accounts.Login(ctx, identity.LoginInput{
				Email:    tc.email,
				Password: tc.password,
			})
			require.Error(t, err)
			assert.True(t, tc.check(err))
		})
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	ctx := context.Background()
	fx := newLifecycleFixture(newTestConfig())

	user := signupAndConfirm(t, fx, "disabled@example.com", "password1234")

	_, err := fx.store.UpdateStatus(ctx, user.ID, identity.UserStatusDisabled)
	require.NoError(t, err)

	_, err = fx.accounts.Login(ctx, identity.LoginInput{
		Email:    "disabled@example.com",
		Password: "password1234",
	})
	require.Error(t, err)
	assert.True(t, identity.HasTextCode(err, identity.TextCodeAccountDisabled))
}

func TestLoginThrottlesRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig()
	cfg.MaxLoginAttempts = 2
	fx := newLifecycleFixture(cfg)

	signupAndConfirm(t, fx, "locked@example.com", "password1234")

	for i := 0; i < 3; i++ {
		_, err := fx.accounts.Login(ctx, identity.LoginInput{
			Email:    "locked@example.com",
			Password: "wrong password",
		})
		require.Error(t, err)
		assert.True(t, identity.IsInvalidCredentials(err))
	}

	// Even the correct password is refused once the counter passes the cap.
	_, err := fx.accounts.Login(ctx, identity.LoginInput{
		Email:    "locked@example.com",
		Password: "password1234",
	})
	require.Error(t, err)
	assert.True(t, identity.HasTextCode(err, identity.TextCodeTooManyAttempts))
}

func TestPasswordResetFlow(t *testing.T) {
	ctx := context.Background()
	fx := newLifecycleFixture(newTestConfig())

	signupAndConfirm(t, fx, "reset@example.com", "old password 1")

	require.NoError(t, fx.accounts.ForgotPassword(ctx, identity.EmailOnlyInput{
		Email: "reset@example.com",
	}))
	resetCode := fx.dispatcher.last()
	assert.Equal(t, identity.CodePurposePasswordReset, resetCode.Purpose)

	// Wrong code: password unchanged.
	err := fx.accounts.ResetPassword(ctx, identity.ResetPasswordInput{
		Email:    "reset@example.com",
		Code:     "000000",
		Password: "new password 1",
	})
	require.Error(t, err)
	assert.True(t, identity.IsInvalidCode(err))

	_, err = fx.accounts.Login(ctx, identity.LoginInput{
		Email:    "reset@example.com",
		Password: "old password 1",
	})
	require.NoError(t, err)

	require.NoError(t, fx.accounts.ResetPassword(ctx, identity.ResetPasswordInput{
		Email:    "reset@example.com",
		Code:     resetCode.Code,
		Password: "new password 1",
	}))

	_, err = fx.accounts.Login(ctx, identity.LoginInput{
		Email:    "reset@example.com",
		Password: "old password 1",
	})
	require.Error(t, err)
	assert.True(t, identity.IsInvalidCredentials(err))

	_, err = fx.accounts.Login(ctx, identity.LoginInput{
		Email:    "reset@example.com",
		Password: "new password 1",
	})
	require.NoError(t, err)

	// The consumed code cannot be replayed.
	err = fx.accounts.ResetPassword(ctx, identity.ResetPasswordInput{
		Email:    "reset@example.com",
		Code:     resetCode.Code,
		Password: "yet another password",
	})
	require.Error(t, err)
	assert.True(t, identity.IsInvalidCode(err))
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	ctx := context.Background()
	fx := newLifecycleFixture(newTestConfig())

	err := fx.accounts.ForgotPassword(ctx, identity.EmailOnlyInput{
		Email: "ghost@example.com",
	})
	require.Error(t, err)
	assert.True(t, identity.IsUnknownAccount(err))
}

func TestResetPasswordUnknownEmailHidesExistence(t *testing.T) {
	ctx := context.Background()
	fx := newLifecycleFixture(newTestConfig())

	err := fx.accounts.ResetPassword(ctx, identity.ResetPasswordInput{
		Email:    "ghost@example.com",
		Code:     "123456",
		Password: "new password 1",
	})
	require.Error(t, err)
	assert.True(t, identity.IsInvalidCode(err))
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	fx := newLifecycleFixture(newTestConfig())

	user := signupAndConfirm(t, fx, "change@example.com", "old password 1")

	err := fx.accounts.ChangePassword(ctx, identity.ChangePasswordInput{
		UserID:      user.ID.String(),
		OldPassword: "not the password",
		NewPassword: "new password 1",
	})
	require.Error(t, err)
	assert.True(t, identity.IsInvalidOldPassword(err))

	require.NoError(t, fx.accounts.ChangePassword(ctx, identity.ChangePasswordInput{
		UserID:      user.ID.String(),
		OldPassword: "old password 1",
		NewPassword: "new password 1",
	}))

	_, err = fx.accounts.Login(ctx, identity.LoginInput{
		Email:    "change@example.com",
		Password: "new password 1",
	})
	require.NoError(t, err)
}

func TestRefreshToken(t *testing.T) {
	ctx := context.Background()
	fx := newLifecycleFixture(newTestConfig())

	signupAndConfirm(t, fx, "refresh@example.com", "password1234")

	pair, err := fx.accounts.Login(ctx, identity.LoginInput{
		Email:    "refresh@example.com",
		Password: "password1234",
	})
	require.NoError(t, err)

	refreshed, err := fx.accounts.RefreshToken(ctx, identity.RefreshInput{
		RefreshToken: pair.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEmpty(t, refreshed.RefreshToken)

	claims, err := fx.backend.Tokens().Verify(refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, identity.TokenUseAccess, claims.TokenUse())

	// An access token is not accepted on the refresh path.
	_, err = fx.accounts.RefreshToken(ctx, identity.RefreshInput{
		RefreshToken: pair.AccessToken,
	})
	require.Error(t, err)
	assert.True(t, identity.IsInvalidToken(err))

	_, err = fx.accounts.RefreshToken(ctx, identity.RefreshInput{
		RefreshToken: "not a token",
	})
	require.Error(t, err)
	assert.True(t, identity.IsInvalidToken(err))
}

func TestRefreshWithoutRotationKeepsRefreshToken(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig()
	cfg.RotateRefreshTokens = false
	fx := newLifecycleFixture(cfg)

	signupAndConfirm(t, fx, "stable@example.com", "password1234")

	pair, err := fx.accounts.Login(ctx, identity.LoginInput{
		Email:    "stable@example.com",
		Password: "password1234",
	})
	require.NoError(t, err)

	refreshed, err := fx.accounts.RefreshToken(ctx, identity.RefreshInput{
		RefreshToken: pair.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.Empty(t, refreshed.RefreshToken)
}

func TestSignupDeterministicIDs(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig()
	cfg.DeterministicUserIDs = true

	first := newLifecycleFixture(cfg)
	second := newLifecycleFixture(cfg)

	a, err := first.accounts.Signup(ctx, identity.SignupInput{
		Email:    "stable-id@example.com",
		Password: "password1234",
	})
	require.NoError(t, err)

	b, err := second.accounts.Signup(ctx, identity.SignupInput{
		Email:    "stable-id@example.com",
		Password: "password1234",
	})
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
}

func TestOperationsHonorContextCancellation(t *testing.T) {
	fx := newLifecycleFixture(newTestConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.accounts.Signup(ctx, identity.SignupInput{
		Email:    "late@example.com",
		Password: "password1234",
	})
	require.Error(t, err)

	_, err = fx.accounts.Login(ctx, identity.LoginInput{
		Email:    "late@example.com",
		Password: "password1234",
	})
	require.Error(t, err)
}

func signupAndConfirm(t *testing.T, fx *lifecycleFixture, email, password string) *identity.User {
	t.Helper()
	ctx := context.Background()

	_, err := fx.accounts.Signup(ctx, identity.SignupInput{
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)

	require.NoError(t, fx.accounts.ConfirmSignup(ctx, identity.ConfirmSignupInput{
		Email: email,
		Code:  fx.dispatcher.last().Code,
	}))

	user, err := fx.store.GetByEmail(ctx, email)
	require.NoError(t, err)
	require.Equal(t, identity.UserStatusDone, user.Status)

	return user
}

// The store reports a missing row with the repository library's own not-found
// error. Every lookup branch must read that as absence, never as a dependency
// failure: a fresh signup proceeds to registration and unknown accounts map to
// their operation-specific errors.
func TestStoreMissTreatedAsAbsence(t *testing.T) {
	require.True(t, repository.IsRecordNotFound(repository.NewRecordNotFound()))

	ctx := context.Background()
	fx := newLifecycleFixture(newTestConfig())

	projection, err := fx.accounts.Signup(ctx, identity.SignupInput{
		Email:    "first@example.com",
		Password: "password1234",
	})
	require.NoError(t, err)
	assert.Equal(t, identity.UserStatusPending, projection.Status)

	err = fx.accounts.ResendConfirmationCode(ctx, identity.EmailOnlyInput{Email: "ghost@example.com"})
	require.Error(t, err)
	assert.True(t, identity.IsUnknownAccount(err))
	assert.False(t, identity.IsDependencyFailure(err))

	err = fx.accounts.ChangePassword(ctx, identity.ChangePasswordInput{
		UserID:      uuid.NewString(),
		OldPassword: "password1234",
		NewPassword: "password5678",
	})
	require.Error(t, err)
	assert.True(t, identity.IsUnknownAccount(err))
	assert.False(t, identity.IsDependencyFailure(err))
}
