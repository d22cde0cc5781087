package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus is the account's position in the registration lifecycle.
type UserStatus string

const (
	// UserStatusPending is a freshly signed-up account awaiting email
	// confirmation. Login is gated until the confirmation code is consumed.
	UserStatusPending UserStatus = "pending_confirmation"
	// UserStatusDone is a confirmed account that can authenticate.
	UserStatusDone UserStatus = "done"
	// UserStatusDisabled is an administratively disabled account.
	UserStatusDisabled UserStatus = "disabled"
)

// IsValid checks if the status is one of the known lifecycle states.
func (s UserStatus) IsValid() bool {
	switch s {
	case UserStatusPending, UserStatusDone, UserStatusDisabled:
		return true
	default:
		return false
	}
}

// User is the persisted account record. The email is unique and normalized to
// lowercase before it reaches the repository; the password hash is opaque and
// never logged.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID           uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email        string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone        string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash string     `bun:"password_hash" json:"-"`
	Status       UserStatus `bun:"status,notnull" json:"status,omitempty"`

	// ProviderSubject links the record to a managed identity provider when
	// that backend is the system of record for credentials.
	ProviderSubject string `bun:"provider_subject,nullzero" json:"provider_subject,omitempty"`

	ConfirmationCode     string     `bun:"confirmation_code,nullzero" json:"-"`
	ConfirmationIssuedAt *time.Time `bun:"confirmation_issued_at,nullzero" json:"-"`
	ResetCode            string     `bun:"reset_code,nullzero" json:"-"`
	ResetIssuedAt        *time.Time `bun:"reset_issued_at,nullzero" json:"-"`

	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at,nullzero" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills the zero value for records created before the status
// column existed.
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = UserStatusPending
	}
}

// IsConfirmed reports whether the account completed signup confirmation.
func (u *User) IsConfirmed() bool {
	return u.Status == UserStatusDone
}

// Projection is the user shape returned to callers; it carries no credential
// or code material.
type Projection struct {
	ID     string     `json:"id"`
	Email  string     `json:"email"`
	Status UserStatus `json:"status"`
}

// Project maps the record to its public projection.
func (u *User) Project() *Projection {
	return &Projection{
		ID:     u.ID.String(),
		Email:  u.Email,
		Status: u.Status,
	}
}
