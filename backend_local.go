package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

// LocalBackend keeps credentials in the user row: bcrypt password hashes,
// one-time codes generated here, and self-issued HS256 token pairs.
type LocalBackend struct {
	users       Users
	hasher      *BcryptHasher
	codes       CodeGenerator
	tokens      TokenIssuer
	codeTTL     time.Duration
	accessTTL   time.Duration
	maxAttempts int
	cooldown    time.Duration
	rotate      bool
	now         func() time.Time
	logger      Logger
}

var _ CredentialBackend = (*LocalBackend)(nil)

// LocalBackendOption customizes backend construction.
type LocalBackendOption func(*LocalBackend)

// WithLocalClock injects a custom clock (useful for code-expiry tests).
func WithLocalClock(clock func() time.Time) LocalBackendOption {
	return func(b *LocalBackend) {
		if clock != nil {
			b.now = clock
		}
	}
}

// WithLocalLogger overrides the logger.
func WithLocalLogger(logger Logger) LocalBackendOption {
	return func(b *LocalBackend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithLocalTokenIssuer overrides the token issuer.
func WithLocalTokenIssuer(tokens TokenIssuer) LocalBackendOption {
	return func(b *LocalBackend) {
		if tokens != nil {
			b.tokens = tokens
		}
	}
}

// NewLocalBackend builds the hash-based credential backend from configuration.
func NewLocalBackend(cfg *Config, users Users, opts ...LocalBackendOption) *LocalBackend {
	b := &LocalBackend{
		users:       users,
		hasher:      NewBcryptHasher(cfg.BcryptCost),
		codes:       NewNumericCodeGenerator(cfg.CodeLength),
		tokens:      NewTokenService(cfg),
		codeTTL:     cfg.CodeTTL,
		accessTTL:   cfg.AccessTokenTTL,
		maxAttempts: cfg.MaxLoginAttempts,
		cooldown:    cfg.LoginCooldownPeriod,
		rotate:      cfg.RotateRefreshTokens,
		now:         time.Now,
		logger:      defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	return b
}

// Tokens exposes the issuer so callers can verify access tokens issued here.
func (b *LocalBackend) Tokens() TokenIssuer {
	return b.tokens
}

// Register hashes the password and generates the confirmation code. Nothing
// is persisted here; the service writes the row so creation stays atomic.
func (b *LocalBackend) Register(ctx context.Context, email, password string) (*Registration, error) {
	hash, err := b.hasher.Hash(password)
	if err != nil {
		var richErr *errors.Error
		if errors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to hash password")
	}

	code, err := b.codes.Generate()
	if err != nil {
		return nil, err
	}

	return &Registration{
		PasswordHash: hash,
		Code:         code,
	}, nil
}

// ConfirmRegistration matches the candidate against the stored code, checks
// the expiry window, and consumes the code with a conditional update so
// concurrent confirmations resolve at the storage layer.
func (b *LocalBackend) ConfirmRegistration(ctx context.Context, user *User, code string) error {
	if user == nil {
		return ErrUnknownAccount
	}

	// The comparison completes before any mutation; a mismatch leaves the
	// record untouched.
	if !b.codes.Matches(code, user.ConfirmationCode) {
		return ErrInvalidCode
	}

	if b.codeExpired(user.ConfirmationIssuedAt) {
		return ErrInvalidCode
	}

	if _, err := b.users.ConsumeConfirmationCode(ctx, user.ID, code); err != nil {
		if repository.IsRecordNotFound(err) {
			// Lost the race, or the code was consumed between read and write.
			return ErrInvalidCode
		}
		return WrapDependencyFailure(err, "failed to consume confirmation code")
	}

	return nil
}

// RegenerateCode rotates the confirmation code. Storing the new code
// invalidates the previous one.
func (b *LocalBackend) RegenerateCode(ctx context.Context, user *User) (string, error) {
	if user == nil {
		return "", ErrUnknownAccount
	}

	code, err := b.codes.Generate()
	if err != nil {
		return "", err
	}

	if err := b.users.StoreConfirmationCode(ctx, user.ID, code, b.now()); err != nil {
		return "", WrapDependencyFailure(err, "failed to store confirmation code")
	}

	return code, nil
}

// Authenticate verifies the password, enforces the attempt cooldown, gates on
// registration status, and issues a token pair.
func (b *LocalBackend) Authenticate(ctx context.Context, email, password string, user *User) (*TokenPair, error) {
	if user == nil {
		// Burn a comparison so unknown emails take as long as mismatches.
		_ = b.hasher.Compare(password, b.hasher.RandomPasswordHash())
		return nil, ErrInvalidCredentials
	}

	attempts := user.LoginAttempts
	if user.LoginAttemptAt != nil && IsOutsideThresholdPeriod(*user.LoginAttemptAt, b.cooldown, b.now()) {
		attempts = 0
	}

	if attempts > b.maxAttempts {
		return nil, ErrTooManyLoginAttempts
	}

	if err := b.hasher.Compare(password, user.PasswordHash); err != nil {
		if !IsInvalidCredentials(err) {
			return nil, err
		}
		if err2 := b.users.TrackAttemptedLogin(ctx, user); err2 != nil {
			return nil, WrapDependencyFailure(err2, "failed to track login attempt")
		}
		return nil, ErrInvalidCredentials
	}

	switch user.Status {
	case UserStatusDisabled:
		return nil, ErrAccountDisabled
	case UserStatusPending:
		return nil, ErrAccountNotConfirmed
	}

	if err := b.users.TrackSuccessfulLogin(ctx, user); err != nil {
		b.logger.Error("failed to track successful login", "error", err)
	}

	return b.tokens.IssuePair(user.ID.String())
}

// StartPasswordReset generates and stores a reset code, replacing any
// outstanding one.
func (b *LocalBackend) StartPasswordReset(ctx context.Context, user *User) (string, error) {
	if user == nil {
		return "", ErrUnknownAccount
	}

	code, err := b.codes.Generate()
	if err != nil {
		return "", err
	}

	if err := b.users.StoreResetCode(ctx, user.ID, code, b.now()); err != nil {
		return "", WrapDependencyFailure(err, "failed to store reset code")
	}

	return code, nil
}

// CompletePasswordReset consumes the reset code and replaces the password
// hash in one conditional update.
func (b *LocalBackend) CompletePasswordReset(ctx context.Context, user *User, code, newPassword string) error {
	if user == nil {
		return ErrInvalidCode
	}

	if !b.codes.Matches(code, user.ResetCode) {
		return ErrInvalidCode
	}

	if b.codeExpired(user.ResetIssuedAt) {
		return ErrInvalidCode
	}

	hash, err := b.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if _, err := b.users.ConsumeResetCode(ctx, user.ID, code, hash); err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrInvalidCode
		}
		return WrapDependencyFailure(err, "failed to consume reset code")
	}

	return nil
}

// ChangePassword verifies the old password before replacing the hash. The
// accessToken parameter only matters to managed providers.
func (b *LocalBackend) ChangePassword(ctx context.Context, user *User, _, oldPassword, newPassword string) error {
	if user == nil {
		return ErrUnknownAccount
	}

	if err := b.hasher.Compare(oldPassword, user.PasswordHash); err != nil {
		if IsInvalidCredentials(err) {
			return ErrInvalidOldPassword
		}
		return err
	}

	hash, err := b.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := b.users.ReplacePassword(ctx, user.ID, hash); err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrUnknownAccount
		}
		return WrapDependencyFailure(err, "failed to replace password")
	}

	return nil
}

// Refresh verifies the refresh token, re-reads the persisted account (state
// may have changed since issuance), and mints a new pair.
func (b *LocalBackend) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := b.tokens.Verify(refreshToken)
	if err != nil {
		return nil, err
	}

	if claims.TokenUse() != TokenUseRefresh {
		return nil, ErrInvalidToken
	}

	user, err := b.users.GetByID(ctx, claims.UserID())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, WrapDependencyFailure(err, "failed to load account during refresh")
	}

	switch user.Status {
	case UserStatusDisabled:
		return nil, ErrAccountDisabled
	case UserStatusPending:
		return nil, ErrAccountNotConfirmed
	}

	if b.rotate {
		return b.tokens.IssuePair(user.ID.String())
	}

	access, err := b.tokens.IssueAccessToken(user.ID.String())
	if err != nil {
		return nil, err
	}

	// RefreshToken stays empty: the caller keeps using the presented one.
	return &TokenPair{
		AccessToken: access,
		ExpiresIn:   int64(b.accessTTL.Seconds()),
	}, nil
}

func (b *LocalBackend) codeExpired(issuedAt *time.Time) bool {
	if issuedAt == nil {
		return true
	}
	return IsOutsideThresholdPeriod(*issuedAt, b.codeTTL, b.now())
}
