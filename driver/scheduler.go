package driver

import (
	"context"
	"runtime"
	"time"
)

// Scheduler is the suspension point between iterations, where the
// display gets its turn.  Yield returns an error to stop the loop.
type Scheduler interface {
	Yield(ctx context.Context) error
}

// Cooperative gives up the processor and then continues.
type Cooperative struct{}

// Yield implements Scheduler.
func (Cooperative) Yield(ctx context.Context) error {
	runtime.Gosched()
	return ctx.Err()
}

// Paced holds each iteration until at least Interval has passed since
// the previous one returned.
type Paced struct {
	Interval time.Duration
	last     time.Time
}

// Yield implements Scheduler.
func (p *Paced) Yield(ctx context.Context) error {
	if wait := p.Interval - time.Since(p.last); wait > 0 && !p.last.IsZero() {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	p.last = time.Now()
	return ctx.Err()
}
