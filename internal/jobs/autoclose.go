package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"handraise/internal/metrics"
	"handraise/internal/session"
	"handraise/pkg/types"
)

// AutoCloser closes classes a teacher forgot to end.
// FUNCTIONAL DISCOVERY: Closing goes through session.Manager.Close, so the
// roster sweep and closedAt handling are identical to a manual close
type AutoCloser struct {
	sessions *session.Manager
	maxAge   time.Duration
	now      func() time.Time
	onClosed func(code string)
}

// AutoCloseOption configures an AutoCloser.
type AutoCloseOption func(*AutoCloser)

// WithClock replaces time.Now when measuring class age.
func WithClock(now func() time.Time) AutoCloseOption {
	return func(a *AutoCloser) { a.now = now }
}

// WithOnClosed is called with the code of every class the sweep closed.
func WithOnClosed(fn func(code string)) AutoCloseOption {
	return func(a *AutoCloser) { a.onClosed = fn }
}

// NewAutoCloser closes open classes older than maxAge. A zero maxAge disables
// the sweep.
func NewAutoCloser(sessions *session.Manager, maxAge time.Duration, opts ...AutoCloseOption) *AutoCloser {
	a := &AutoCloser{
		sessions: sessions,
		maxAge:   maxAge,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Sweep closes every overdue open class and returns their codes. A failed
// close does not stop the sweep; all failures are joined into the error.
func (a *AutoCloser) Sweep(ctx context.Context) ([]string, error) {
	if a.maxAge <= 0 {
		return nil, nil
	}

	classes, err := a.sessions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("auto-close: %w", err)
	}

	cutoff := a.now().Add(-a.maxAge)
	var (
		closed []string
		errs   []error
	)
	for _, class := range classes {
		if !class.IsOpen() || class.CreatedAt.After(cutoff) {
			continue
		}
		if err := a.sessions.Close(ctx, class.Code); err != nil {
			if errors.Is(err, types.ErrNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("auto-close %s: %w", class.Code, err))
			continue
		}

		metrics.ClassesClosedTotal.WithLabelValues("auto").Inc()
		log.Printf("Auto-closed class %s opened at %s", class.Code, class.CreatedAt.Format(time.RFC3339))
		closed = append(closed, class.Code)
		if a.onClosed != nil {
			a.onClosed(class.Code)
		}
	}
	return closed, errors.Join(errs...)
}

// Run is the scheduler entry point.
func (a *AutoCloser) Run(ctx context.Context) {
	closed, err := a.Sweep(ctx)
	if err != nil {
		log.Printf("Auto-close sweep failed: %v", err)
	}
	if len(closed) > 0 {
		log.Printf("Auto-close sweep closed %d classes", len(closed))
	}
}
