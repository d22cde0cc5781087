package identity

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSignup               ActivityEventType = "identity.signup"
	ActivityEventSignupConfirmed      ActivityEventType = "identity.signup.confirmed"
	ActivityEventLoginSuccess         ActivityEventType = "identity.login.success"
	ActivityEventLoginFailure         ActivityEventType = "identity.login.failure"
	ActivityEventPasswordResetRequest ActivityEventType = "identity.password.reset.requested"
	ActivityEventPasswordResetSuccess ActivityEventType = "identity.password.reset"
	ActivityEventPasswordChanged      ActivityEventType = "identity.password.changed"
	ActivityEventTokenRefreshed       ActivityEventType = "identity.token.refreshed"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing purposes. Sinks run
// best-effort: errors are logged, never propagated, so forwarding to a
// database or queue cannot block authentication.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
