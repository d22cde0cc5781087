package identity_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-identity"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

func newTestConfig() *identity.Config {
	return &identity.Config{
		SigningKey:          "test-signing-key",
		Issuer:              "identity-test",
		AccessTokenTTL:      15 * time.Minute,
		RefreshTokenTTL:     720 * time.Hour,
		RotateRefreshTokens: true,
		BcryptCost:          4,
		CodeLength:          6,
		CodeTTL:             24 * time.Hour,
		MailTimeout:         time.Second,
		MaxLoginAttempts:    5,
		LoginCooldownPeriod: 24 * time.Hour,
		DefaultPhoneRegion:  "US",
	}
}

// MockUsers is a testify mock for the handful of methods a test pins down.
type MockUsers struct {
	mock.Mock
	identity.Users
}

func (m *MockUsers) UpdateStatus(ctx context.Context, id uuid.UUID, status identity.UserStatus) (*identity.User, error) {
	args := m.Called(ctx, id, status)
	user, _ := args.Get(0).(*identity.User)
	return user, args.Error(1)
}

// fakeUsers is an in-memory Users store for exercising full lifecycle flows.
// Unimplemented repository methods panic if reached.
type fakeUsers struct {
	identity.Users
	mu      sync.Mutex
	records map[uuid.UUID]*identity.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{records: map[uuid.UUID]*identity.User{}}
}

func (f *fakeUsers) seed(u *identity.User) *identity.User {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Status == "" {
		u.Status = identity.UserStatusPending
	}

	f.records[u.ID] = cloneUser(u)
	return cloneUser(u)
}

func (f *fakeUsers) byEmail(email string) *identity.User {
	for _, u := range f.records {
		if u.Email == email && u.DeletedAt == nil {
			return u
		}
	}
	return nil
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u := f.byEmail(email); u != nil {
		return cloneUser(u), nil
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeUsers) CountByEmail(ctx context.Context, email string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.byEmail(email) != nil {
		return 1, nil
	}
	return 0, nil
}

func (f *fakeUsers) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, repository.NewRecordNotFound()
	}

	if u, ok := f.records[uid]; ok && u.DeletedAt == nil {
		return cloneUser(u), nil
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeUsers) Register(ctx context.Context, user *identity.User) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.byEmail(user.Email) != nil {
		return nil, fmt.Errorf("UNIQUE constraint failed: users.email")
	}

	record := cloneUser(user)
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.EnsureStatus()

	f.records[record.ID] = record
	return cloneUser(record), nil
}

func (f *fakeUsers) UpdateStatus(ctx context.Context, id uuid.UUID, status identity.UserStatus) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.records[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}

	u.Status = status
	return cloneUser(u), nil
}

func (f *fakeUsers) StoreConfirmationCode(ctx context.Context, id uuid.UUID, code string, issuedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.records[id]
	if !ok {
		return repository.NewRecordNotFound()
	}

	u.ConfirmationCode = code
	u.ConfirmationIssuedAt = &issuedAt
	return nil
}

func (f *fakeUsers) ConsumeConfirmationCode(ctx context.Context, id uuid.UUID, code string) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.records[id]
	if !ok || u.Status != identity.UserStatusPending || u.ConfirmationCode == "" || u.ConfirmationCode != code {
		return nil, repository.NewRecordNotFound()
	}

	u.Status = identity.UserStatusDone
	u.ConfirmationCode = ""
	u.ConfirmationIssuedAt = nil
	return cloneUser(u), nil
}

func (f *fakeUsers) StoreResetCode(ctx context.Context, id uuid.UUID, code string, issuedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.records[id]
	if !ok {
		return repository.NewRecordNotFound()
	}

	u.ResetCode = code
	u.ResetIssuedAt = &issuedAt
	return nil
}

func (f *fakeUsers) ConsumeResetCode(ctx context.Context, id uuid.UUID, code, passwordHash string) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.records[id]
	if !ok || u.ResetCode == "" || u.ResetCode != code {
		return nil, repository.NewRecordNotFound()
	}

	u.PasswordHash = passwordHash
	u.ResetCode = ""
	u.ResetIssuedAt = nil
	return cloneUser(u), nil
}

func (f *fakeUsers) ReplacePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.records[id]
	if !ok {
		return repository.NewRecordNotFound()
	}

	u.PasswordHash = passwordHash
	return nil
}

func (f *fakeUsers) TrackAttemptedLogin(ctx context.Context, user *identity.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.records[user.ID]
	if !ok {
		return repository.NewRecordNotFound()
	}

	now := time.Now()
	u.LoginAttempts = user.LoginAttempts + 1
	u.LoginAttemptAt = &now
	return nil
}

func (f *fakeUsers) TrackSuccessfulLogin(ctx context.Context, user *identity.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.records[user.ID]
	if !ok {
		return repository.NewRecordNotFound()
	}

	now := time.Now()
	u.LoggedInAt = &now
	u.LoginAttemptAt = nil
	u.LoginAttempts = 0
	return nil
}

// fakeRepoManager satisfies RepositoryManager over an in-memory store.
type fakeRepoManager struct {
	users identity.Users
}

func (f fakeRepoManager) Users() identity.Users { return f.users }

func (f fakeRepoManager) Validate() error {
	if f.users == nil {
		return fmt.Errorf("repository users should be initialized")
	}
	return nil
}

func (f fakeRepoManager) MustValidate() {
	if err := f.Validate(); err != nil {
		panic(err)
	}
}

func (f fakeRepoManager) RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error {
	return fn(ctx, bun.Tx{})
}

func cloneUser(u *identity.User) *identity.User {
	if u == nil {
		return nil
	}
	copied := *u
	return &copied
}

// capturingDispatcher records every dispatched code so tests can replay them.
type capturingDispatcher struct {
	mu   sync.Mutex
	sent []sentCode
}

type sentCode struct {
	Email   string
	Code    string
	Purpose identity.CodePurpose
}

func (d *capturingDispatcher) SendCode(ctx context.Context, email, code string, purpose identity.CodePurpose) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sent = append(d.sent, sentCode{Email: email, Code: code, Purpose: purpose})
	return nil
}

func (d *capturingDispatcher) last() sentCode {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.sent) == 0 {
		return sentCode{}
	}
	return d.sent[len(d.sent)-1]
}

func (d *capturingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

// capturingSink records activity events in order.
type capturingSink struct {
	mu     sync.Mutex
	events []identity.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, event identity.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, event)
	return nil
}

func (c *capturingSink) types() []identity.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]identity.ActivityEventType, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.EventType)
	}
	return out
}
