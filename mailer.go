package identity

import (
	"context"
	"time"
)

// boundedDispatcher wraps a CodeDispatcher with a delivery timeout so a slow
// mail collaborator cannot stall the request. Dispatch happens after state is
// committed; failures are for the caller to log, not to roll back.
type boundedDispatcher struct {
	next    CodeDispatcher
	timeout time.Duration
}

// NewBoundedDispatcher wraps next with the given timeout. Zero or negative
// timeouts fall back to 5s.
func NewBoundedDispatcher(next CodeDispatcher, timeout time.Duration) CodeDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &boundedDispatcher{
		next:    normalizeCodeDispatcher(next),
		timeout: timeout,
	}
}

func (d *boundedDispatcher) SendCode(ctx context.Context, email, code string, purpose CodePurpose) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	return d.next.SendCode(ctx, email, code, purpose)
}

// LoggingDispatcher writes codes to the logger instead of delivering them.
// Useful for local development; never wire it in production.
type LoggingDispatcher struct {
	Logger Logger
}

// SendCode implements CodeDispatcher.
func (d LoggingDispatcher) SendCode(_ context.Context, email, code string, purpose CodePurpose) error {
	logger := d.Logger
	if logger == nil {
		logger = defLogger{}
	}
	logger.Info("dispatching one-time code", "email", email, "purpose", purpose, "code", code)
	return nil
}
