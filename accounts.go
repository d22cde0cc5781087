package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
)

// Accounts orchestrates the credential/session lifecycle: signup,
// confirmation, login, password reset and change, and token refresh. Every
// mutating operation re-reads persisted state first; the account record is
// the only shared mutable resource and all mutation goes through single-row
// store primitives.
type Accounts struct {
	repo             RepositoryManager
	backend          CredentialBackend
	dispatcher       CodeDispatcher
	stateMachine     RegistrationStateMachine
	activitySink     ActivitySink
	logger           Logger
	now              func() time.Time
	phoneRegion      string
	deterministicIDs bool
}

// NewAccounts wires the service from configuration, repositories, and the
// selected credential backend.
func NewAccounts(cfg *Config, repo RepositoryManager, backend CredentialBackend) *Accounts {
	return &Accounts{
		repo:             repo,
		backend:          backend,
		dispatcher:       NewBoundedDispatcher(nil, cfg.MailTimeout),
		stateMachine:     NewRegistrationStateMachine(repo.Users()),
		activitySink:     noopActivitySink{},
		logger:           defLogger{},
		now:              time.Now,
		phoneRegion:      cfg.DefaultPhoneRegion,
		deterministicIDs: cfg.DeterministicUserIDs,
	}
}

// WithDispatcher sets the code delivery collaborator. The dispatcher is
// always bounded by the configured mail timeout.
func (s *Accounts) WithDispatcher(d CodeDispatcher, timeout time.Duration) *Accounts {
	s.dispatcher = NewBoundedDispatcher(d, timeout)
	return s
}

// WithLogger overrides the logger.
func (s *Accounts) WithLogger(logger Logger) *Accounts {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting lifecycle events.
func (s *Accounts) WithActivitySink(sink ActivitySink) *Accounts {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithStateMachine overrides the registration state machine.
func (s *Accounts) WithStateMachine(sm RegistrationStateMachine) *Accounts {
	if sm != nil {
		s.stateMachine = sm
	}
	return s
}

// WithClock injects a custom clock.
func (s *Accounts) WithClock(clock func() time.Time) *Accounts {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Signup registers a new account in pending_confirmation and dispatches the
// confirmation code. Signing up an existing unconfirmed account rotates its
// code and re-dispatches instead of failing; only confirmed accounts yield
// ErrDuplicateEmail.
func (s *Accounts) Signup(ctx context.Context, input SignupInput) (*Projection, error) {
	if err := ctxGuard(ctx, "signup"); err != nil {
		return nil, err
	}

	if err := input.Normalize(s.phoneRegion); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid signup payload")
	}

	existing, err := s.repo.Users().GetByEmail(ctx, input.Email)
	if err == nil {
		if existing.Status == UserStatusPending {
			return s.reSignup(ctx, existing)
		}
		return nil, ErrDuplicateEmail
	}
	if !repository.IsRecordNotFound(err) {
		return nil, WrapDependencyFailure(err, "failed to look up account")
	}

	reg, err := s.backend.Register(ctx, input.Email, input.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Email:           input.Email,
		Phone:           input.Phone,
		PasswordHash:    reg.PasswordHash,
		ProviderSubject: reg.Subject,
		Status:          UserStatusPending,
	}

	if s.deterministicIDs {
		if id, err := hashid.NewUUID(input.Email); err == nil {
			user.ID = id
		}
	}

	if reg.Code != "" {
		now := s.now()
		user.ConfirmationCode = reg.Code
		user.ConfirmationIssuedAt = &now
	}

	if user, err = s.repo.Users().Register(ctx, user); err != nil {
		// The unique index is the serialization point for concurrent signups.
		if count, cerr := s.repo.Users().CountByEmail(ctx, input.Email); cerr == nil && count > 0 {
			return nil, ErrDuplicateEmail
		}
		return nil, WrapDependencyFailure(err, "failed to create account")
	}

	s.dispatchCode(ctx, user.Email, reg.Code, CodePurposeSignupConfirmation)
	s.recordActivity(ctx, ActivityEventSignup, user.ID.String(), nil)

	return user.Project(), nil
}

// ConfirmSignup consumes the confirmation code and transitions the account
// to done. The code is single use; retrying with the same code fails.
func (s *Accounts) ConfirmSignup(ctx context.Context, input ConfirmSignupInput) error {
	if err := ctxGuard(ctx, "confirm signup"); err != nil {
		return err
	}

	input.Normalize()
	if err := input.Validate(); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid confirmation payload")
	}

	user, err := s.repo.Users().GetByEmail(ctx, input.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrUnknownAccount
		}
		return WrapDependencyFailure(err, "failed to look up account")
	}

	if user.Status != UserStatusPending {
		return ErrInvalidCode
	}

	if err := s.backend.ConfirmRegistration(ctx, user, input.Code); err != nil {
		return err
	}

	// Managed providers confirm on their side; mirror the transition on the
	// local row. The local backend already consumed it conditionally.
	refreshed, err := s.repo.Users().GetByEmail(ctx, input.Email)
	if err != nil {
		return WrapDependencyFailure(err, "failed to reload account after confirmation")
	}
	if refreshed.Status == UserStatusPending {
		if _, err := s.stateMachine.Transition(ctx, refreshed, UserStatusDone); err != nil {
			return err
		}
	}

	s.recordActivity(ctx, ActivityEventSignupConfirmed, user.ID.String(), nil)

	return nil
}

// ResendConfirmationCode rotates the confirmation code and re-dispatches it.
// Rotation invalidates any previously delivered code. Confirmed accounts are
// a no-op so the endpoint cannot be used to probe registration state.
func (s *Accounts) ResendConfirmationCode(ctx context.Context, input EmailOnlyInput) error {
	if err := ctxGuard(ctx, "resend confirmation code"); err != nil {
		return err
	}

	input.Normalize()
	if err := input.Validate(); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid resend payload")
	}

	user, err := s.repo.Users().GetByEmail(ctx, input.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrUnknownAccount
		}
		return WrapDependencyFailure(err, "failed to look up account")
	}

	if user.Status != UserStatusPending {
		return nil
	}

	code, err := s.backend.RegenerateCode(ctx, user)
	if err != nil {
		return err
	}

	s.dispatchCode(ctx, user.Email, code, CodePurposeSignupConfirmation)

	return nil
}

// Login verifies credentials and issues an access+refresh token pair. An
// unconfirmed account fails with ErrAccountNotConfirmed and re-triggers
// confirmation-code delivery; it never silently succeeds.
func (s *Accounts) Login(ctx context.Context, input LoginInput) (*TokenPair, error) {
	if err := ctxGuard(ctx, "login"); err != nil {
		return nil, err
	}

	input.Normalize()
	if err := input.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid login payload")
	}

	user, err := s.repo.Users().GetByEmail(ctx, input.Email)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, WrapDependencyFailure(err, "failed to look up account")
	}

	pair, err := s.backend.Authenticate(ctx, input.Email, input.Password, user)
	if err != nil {
		if IsAccountNotConfirmed(err) && user != nil {
			s.resendAfterGatedLogin(ctx, user)
		}
		s.recordActivity(ctx, ActivityEventLoginFailure, userID(user), map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}

	s.recordActivity(ctx, ActivityEventLoginSuccess, userID(user), nil)

	return pair, nil
}

// ForgotPassword generates a reset code and dispatches it.
func (s *Accounts) ForgotPassword(ctx context.Context, input EmailOnlyInput) error {
	if err := ctxGuard(ctx, "forgot password"); err != nil {
		return err
	}

	input.Normalize()
	if err := input.Validate(); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid forgot-password payload")
	}

	user, err := s.repo.Users().GetByEmail(ctx, input.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrUnknownAccount
		}
		return WrapDependencyFailure(err, "failed to look up account")
	}

	code, err := s.backend.StartPasswordReset(ctx, user)
	if err != nil {
		return err
	}

	s.dispatchCode(ctx, user.Email, code, CodePurposePasswordReset)
	s.recordActivity(ctx, ActivityEventPasswordResetRequest, user.ID.String(), nil)

	return nil
}

// ResetPassword consumes the reset code and replaces the password. A missing
// account reports ErrInvalidCode, not ErrUnknownAccount, so the endpoint
// cannot be used to enumerate emails.
func (s *Accounts) ResetPassword(ctx context.Context, input ResetPasswordInput) error {
	if err := ctxGuard(ctx, "reset password"); err != nil {
		return err
	}

	input.Normalize()
	if err := input.Validate(); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid reset payload")
	}

	user, err := s.repo.Users().GetByEmail(ctx, input.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrInvalidCode
		}
		return WrapDependencyFailure(err, "failed to look up account")
	}

	if err := s.backend.CompletePasswordReset(ctx, user, input.Code, input.Password); err != nil {
		return err
	}

	s.recordActivity(ctx, ActivityEventPasswordResetSuccess, user.ID.String(), nil)

	return nil
}

// ChangePassword verifies the current password before replacing it.
func (s *Accounts) ChangePassword(ctx context.Context, input ChangePasswordInput) error {
	if err := ctxGuard(ctx, "change password"); err != nil {
		return err
	}

	if err := input.Validate(); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid change-password payload")
	}

	user, err := s.repo.Users().GetByID(ctx, input.UserID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrUnknownAccount
		}
		return WrapDependencyFailure(err, "failed to look up account")
	}

	if err := s.backend.ChangePassword(ctx, user, input.AccessToken, input.OldPassword, input.NewPassword); err != nil {
		return err
	}

	s.recordActivity(ctx, ActivityEventPasswordChanged, user.ID.String(), nil)

	return nil
}

// RefreshToken exchanges a refresh token for a fresh access token and, per
// rotation policy, a fresh refresh token.
func (s *Accounts) RefreshToken(ctx context.Context, input RefreshInput) (*TokenPair, error) {
	if err := ctxGuard(ctx, "refresh token"); err != nil {
		return nil, err
	}

	if err := input.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid refresh payload")
	}

	pair, err := s.backend.Refresh(ctx, input.RefreshToken)
	if err != nil {
		return nil, err
	}

	s.recordActivity(ctx, ActivityEventTokenRefreshed, "", nil)

	return pair, nil
}

func (s *Accounts) reSignup(ctx context.Context, user *User) (*Projection, error) {
	code, err := s.backend.RegenerateCode(ctx, user)
	if err != nil {
		return nil, err
	}

	s.dispatchCode(ctx, user.Email, code, CodePurposeSignupConfirmation)

	return user.Project(), nil
}

func (s *Accounts) resendAfterGatedLogin(ctx context.Context, user *User) {
	code, err := s.backend.RegenerateCode(ctx, user)
	if err != nil {
		s.logger.Error("failed to regenerate confirmation code after gated login", "error", err)
		return
	}

	s.dispatchCode(ctx, user.Email, code, CodePurposeSignupConfirmation)
}

// dispatchCode delivers a one-time code after state has been committed.
// Delivery failure is reported and logged, never rolled back; the resend
// operation is the retry path.
func (s *Accounts) dispatchCode(ctx context.Context, email, code string, purpose CodePurpose) {
	if code == "" {
		// The backend's provider delivers its own codes.
		return
	}

	if err := s.dispatcher.SendCode(ctx, email, code, purpose); err != nil {
		s.logger.Error("failed to dispatch one-time code", "email", email, "purpose", purpose, "error", err)
	}
}

func (s *Accounts) recordActivity(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: s.now(),
	}

	if err := normalizeActivitySink(s.activitySink).Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error", "error", err)
	}
}

func ctxGuard(ctx context.Context, op string) error {
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.CategoryOperation, "context cancelled during "+op)
	default:
		return nil
	}
}

func userID(user *User) string {
	if user == nil {
		return ""
	}
	return user.ID.String()
}
