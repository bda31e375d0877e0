// Package sweep periodically deletes expired records. Expiry is always
// enforced at read time by the services; the sweeper only reclaims
// storage, so a missed pass is invisible to callers.
package sweep

import (
	"context"
	"time"

	"hodlxxi.org/internal/obs"
)

// Target is one store's cleanup hook.
type Target struct {
	Name   string
	Delete func(ctx context.Context, before time.Time) (int, error)
}

// Sweeper runs the targets on a fixed interval.
type Sweeper struct {
	targets  []Target
	interval time.Duration
	now      func() time.Time
}

// Option configures the Sweeper.
type Option func(*Sweeper)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Sweeper) {
		if fn != nil {
			s.now = fn
		}
	}
}

// New constructs a Sweeper.
func New(interval time.Duration, targets []Target, opts ...Option) *Sweeper {
	s := &Sweeper{
		targets:  targets,
		interval: interval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is done, sweeping every interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs every target once. Failures are logged and skipped; one
// broken store must not block the others.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := s.now().UTC()
	for _, target := range s.targets {
		n, err := target.Delete(ctx, cutoff)
		if err != nil {
			obs.LogRequest(map[string]any{
				"event": "sweep.failed",
				"store": target.Name,
				"error": err.Error(),
			})
			continue
		}
		if n > 0 {
			obs.LogRequest(map[string]any{
				"event":   "sweep.completed",
				"store":   target.Name,
				"deleted": n,
			})
		}
	}
}
