package identity

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ConsumeConfirmationCodeSQL transitions a pending account to done if and
// only if the stored code still matches. The conditional update is the
// serialization point for concurrent confirmations.
var ConsumeConfirmationCodeSQL = `UPDATE "users" AS "usr"
SET
	"status" = ?,
	"confirmation_code" = NULL,
	"confirmation_issued_at" = NULL
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."id" = ?
AND "usr"."status" = ?
AND "usr"."confirmation_code" = ?
RETURNING *;`

// ConsumeResetCodeSQL replaces the password hash if and only if the stored
// reset code still matches, invalidating the code in the same statement.
var ConsumeResetCodeSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"reset_code" = NULL,
	"reset_issued_at" = NULL
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."id" = ?
AND "usr"."reset_code" = ?
RETURNING *;`

// ReplacePasswordSQL swaps the password hash for a known account id.
var ReplacePasswordSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."id" = ?
RETURNING *;`

// Users is the persistence surface for account records. All lifecycle
// mutation goes through single-row update primitives; nothing caches account
// state across requests.
type Users interface {
	repository.Repository[*User]

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	CountByEmail(ctx context.Context, email string) (int, error)

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus) (*User, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus) (*User, error)

	StoreConfirmationCode(ctx context.Context, id uuid.UUID, code string, issuedAt time.Time) error
	ConsumeConfirmationCode(ctx context.Context, id uuid.UUID, code string) (*User, error)

	StoreResetCode(ctx context.Context, id uuid.UUID, code string, issuedAt time.Time) error
	ConsumeResetCode(ctx context.Context, id uuid.UUID, code, passwordHash string) (*User, error)

	ReplacePassword(ctx context.Context, id uuid.UUID, passwordHash string) error

	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

// NewUsersRepository builds the bun-backed Users repository.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}

	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", normalizeEmail(email)).
		Where("?TableAlias.deleted_at IS NULL").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": normalizeEmail(email)})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) CountByEmail(ctx context.Context, email string) (int, error) {
	return a.db.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.email = ?", normalizeEmail(email)).
		Where("?TableAlias.deleted_at IS NULL").
		Count(ctx)
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)
	return a.Repository.CreateTx(ctx, tx, user)
}

func (a *users) UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus) (*User, error) {
	return a.UpdateStatusTx(ctx, a.db, id, status)
}

func (a *users) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus) (*User, error) {
	record := &User{
		ID:     id,
		Status: status,
	}

	return a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()))
}

func (a *users) StoreConfirmationCode(ctx context.Context, id uuid.UUID, code string, issuedAt time.Time) error {
	record := &User{
		ID:                   id,
		ConfirmationCode:     code,
		ConfirmationIssuedAt: &issuedAt,
	}

	_, err := a.Repository.Update(ctx, record, repository.UpdateByID(id.String()))
	return err
}

func (a *users) ConsumeConfirmationCode(ctx context.Context, id uuid.UUID, code string) (*User, error) {
	res, err := a.Repository.Raw(ctx, ConsumeConfirmationCodeSQL,
		string(UserStatusDone), id.String(), string(UserStatusPending), code)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return res[0], nil
}

func (a *users) StoreResetCode(ctx context.Context, id uuid.UUID, code string, issuedAt time.Time) error {
	record := &User{
		ID:            id,
		ResetCode:     code,
		ResetIssuedAt: &issuedAt,
	}

	_, err := a.Repository.Update(ctx, record, repository.UpdateByID(id.String()))
	return err
}

func (a *users) ConsumeResetCode(ctx context.Context, id uuid.UUID, code, passwordHash string) (*User, error) {
	res, err := a.Repository.Raw(ctx, ConsumeResetCodeSQL, passwordHash, id.String(), code)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return res[0], nil
}

func (a *users) ReplacePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	res, err := a.Repository.Raw(ctx, ReplacePasswordSQL, passwordHash, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	// The ORM update path will not null out the attempt columns, same bug the
	// original repository works around with raw SQL.
	loggedInAt := time.Now()
	_, err := a.db.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"loggedin_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, loggedInAt, user.ID).Exec(ctx)

	return err
}

func (a *users) TrackAttemptedLogin(ctx context.Context, user *User) error {
	record := &User{}
	record.ID = user.ID
	record.LoginAttempts = user.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.Update(ctx, record, repository.UpdateByID(user.ID.String()))

	return err
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.Email = normalizeEmail(record.Email)
	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
