package storefront

import (
	"context"
	"sync"
	"time"

	"github.com/commercebridge/retail-middleware/internal/metrics"
)

// Pacer enforces a minimum spacing between storefront calls. It is shared
// by every caller of the client so that no two calls, from any component,
// are issued closer together than the configured interval.
//
// The clock and sleep functions are injectable so pacing can be verified
// deterministically in tests.
type Pacer struct {
	mu          sync.Mutex
	minInterval time.Duration
	next        time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewPacer creates a pacer with the given minimum inter-call interval
func NewPacer(minInterval time.Duration) *Pacer {
	return &Pacer{
		minInterval: minInterval,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// Acquire blocks until the caller may issue the next call. Each caller
// reserves its slot under the lock, then sleeps outside it, so concurrent
// callers are serialized with the correct spacing.
func (p *Pacer) Acquire(ctx context.Context) error {
	if p.minInterval <= 0 {
		return nil
	}

	p.mu.Lock()
	now := p.now()
	wait := p.next.Sub(now)
	if wait < 0 {
		wait = 0
	}
	p.next = now.Add(wait + p.minInterval)
	p.mu.Unlock()

	if wait == 0 {
		return nil
	}
	metrics.RateLimitWait.Observe(wait.Seconds())
	return p.sleep(ctx, wait)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
