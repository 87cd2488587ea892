// Package governor admits or denies requests per credential using
// sliding-window counting over two rolling windows (minute and hour).
package governor

import (
	"context"
	"time"
)

const (
	MinuteWindow = time.Minute
	HourWindow   = time.Hour
)

// Limits is the configured ceiling for each window.
type Limits struct {
	PerMinute int
	PerHour   int
}

// Decision is the outcome of a single admission check. A denial is a
// governed outcome, not an error: RetryAfter says when the next slot
// frees up.
type Decision struct {
	Allowed         bool
	RemainingMinute int
	RemainingHour   int
	RetryAfter      time.Duration
}

// CounterStore holds per-credential window state. Admit must be atomic
// per credential: two concurrent admissions for one credential must
// never both succeed when only one slot remains.
type CounterStore interface {
	Admit(ctx context.Context, credential string, now time.Time, limits Limits) (Decision, error)
}

// Governor applies configured limits to a counter store.
type Governor struct {
	limits Limits
	store  CounterStore
	now    func() time.Time
}

func New(limits Limits, store CounterStore) *Governor {
	return &Governor{
		limits: limits,
		store:  store,
		now:    time.Now,
	}
}

// Admit checks and records one request for the credential.
func (g *Governor) Admit(ctx context.Context, credential string) (Decision, error) {
	return g.store.Admit(ctx, credential, g.now(), g.limits)
}

// Limits reports the configured window ceilings.
func (g *Governor) Limits() Limits {
	return g.limits
}
