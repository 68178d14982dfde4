// Package pingsched drives a wsengine.Connection's ping handler on an
// external timer, the "external Scheduler" collaborator the connection
// engine itself never implements. A golang.org/x/time/rate limiter
// caps how often Run actually calls Ping. Pings the caller sends
// directly through the connection do not pass through the limiter.
package pingsched

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pinger is the subset of wsengine.Connection a Scheduler drives.
type Pinger interface {
	Ping(ctx context.Context, data []byte) error
	Done() <-chan struct{}
}

// Scheduler ticks at a fixed interval, rate-limited, calling Ping on
// whatever Pinger Run is given until the context is cancelled or the
// connection disposes.
type Scheduler struct {
	interval time.Duration
	limiter  *rate.Limiter
}

// New constructs a Scheduler that ticks every interval, additionally
// bounded to at most burst pings in any interval-sized window.
func New(interval time.Duration, burst int) *Scheduler {
	if burst < 1 {
		burst = 1
	}
	return &Scheduler{
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), burst),
	}
}

// Run blocks, ticking every s.interval and calling c.Ping(ctx, nil)
// each time the limiter admits it, until ctx is done or c.Done()
// closes. It stops at the first error Ping reports and returns it;
// otherwise it returns ctx.Err() when ctx is done, or nil when
// c.Done() closes.
func (s *Scheduler) Run(ctx context.Context, c Pinger) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.Done():
			return nil
		case <-ticker.C:
			if !s.limiter.Allow() {
				continue
			}
			if err := c.Ping(ctx, nil); err != nil {
				return err
			}
		}
	}
}
