package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const textCodeInvalidTransition = "INVALID_REGISTRATION_TRANSITION"

// ErrInvalidTransition is returned when a requested status change is not in
// the transition table.
var ErrInvalidTransition = goerrors.New("invalid registration state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// RegistrationStateMachine owns the account lifecycle transition rules.
type RegistrationStateMachine interface {
	Transition(ctx context.Context, user *User, target UserStatus) (*User, error)
	CurrentStatus(user *User) UserStatus
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*registrationStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *registrationStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineLogger overrides the logger.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *registrationStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithStateMachineTransitions replaces the transition table, letting callers
// add extension states without touching call sites.
func WithStateMachineTransitions(table map[UserStatus]map[UserStatus]struct{}) StateMachineOption {
	return func(sm *registrationStateMachine) {
		if len(table) > 0 {
			sm.transitions = table
		}
	}
}

// NewRegistrationStateMachine returns the default implementation backed by
// the provided repository. The transition table is data, not control flow:
//
//	pending_confirmation -> done | disabled
//	done                 -> disabled
//	disabled             -> done
func NewRegistrationStateMachine(users Users, opts ...StateMachineOption) RegistrationStateMachine {
	sm := &registrationStateMachine{
		users: users,
		transitions: map[UserStatus]map[UserStatus]struct{}{
			UserStatusPending: {
				UserStatusDone:     {},
				UserStatusDisabled: {},
			},
			UserStatusDone: {
				UserStatusDisabled: {},
			},
			UserStatusDisabled: {
				UserStatusDone: {},
			},
		},
		now:    time.Now,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type registrationStateMachine struct {
	users       Users
	transitions map[UserStatus]map[UserStatus]struct{}
	now         func() time.Time
	logger      Logger
}

func (sm *registrationStateMachine) Transition(ctx context.Context, user *User, target UserStatus) (*User, error) {
	if user == nil {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"target": target,
			"reason": "user is nil",
		})
	}

	user.EnsureStatus()
	from := user.Status

	if target == "" || !target.IsValid() {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"reason": "target status is empty or unknown",
			"target": target,
		})
	}

	if from == target {
		return user, nil
	}

	if !sm.canTransition(from, target) {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	updated, err := sm.users.UpdateStatus(ctx, user.ID, target)
	if err != nil {
		return nil, err
	}

	if updated != nil && updated.Status != "" {
		user.Status = updated.Status
	} else {
		user.Status = target
	}

	sm.logger.Debug("registration transition applied", "user_id", user.ID.String(), "from", from, "to", target)

	return user, nil
}

func (sm *registrationStateMachine) CurrentStatus(user *User) UserStatus {
	if user == nil {
		return ""
	}
	user.EnsureStatus()
	return user.Status
}

func (sm *registrationStateMachine) canTransition(from, to UserStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}
