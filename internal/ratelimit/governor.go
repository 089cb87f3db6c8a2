package ratelimit

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Governor paces a set of independent calls: at most window calls run at once,
// and tokens refill at window per delay. A single slow call never stalls the
// rest of the set beyond its own slot.
type Governor struct {
	window  int
	limiter *rate.Limiter
}

// NewGovernor creates a governor admitting window calls per delay.
// A zero delay disables pacing but keeps the concurrency bound.
func NewGovernor(window int, delay time.Duration) *Governor {
	if window < 1 {
		window = 1
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay / time.Duration(window))
	}
	return &Governor{
		window:  window,
		limiter: rate.NewLimiter(limit, window),
	}
}

// Window returns the concurrency bound.
func (g *Governor) Window() int {
	return g.window
}

// Run invokes fn for every index in [0, n). fn records its own failures; Run
// only returns an error when ctx is canceled before every call was admitted.
func (g *Governor) Run(ctx context.Context, n int, fn func(ctx context.Context, i int)) error {
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(g.window)

	var admitErr error
	for i := range n {
		if err := g.limiter.Wait(gctx); err != nil {
			admitErr = err
			break
		}
		group.Go(func() error {
			fn(gctx, i)
			return nil
		})
	}

	_ = group.Wait()
	return admitErr
}
