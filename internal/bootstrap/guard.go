// Package bootstrap provides a once-with-retry guard for process-wide
// initialisation that may be raced by several callers.
package bootstrap

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

const guardKey = "ensure"

// Guard runs an initialisation function at most once concurrently. A
// successful run is remembered; a failed run is forgotten so the next caller
// retries.
type Guard struct {
	group singleflight.Group
	done  atomic.Bool
}

// NewGuard constructs an idle guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Ensure runs init unless a previous run succeeded. Callers arriving while a
// run is in flight wait for its outcome instead of starting another.
func (g *Guard) Ensure(ctx context.Context, init func(context.Context) error) error {
	if g.done.Load() {
		return nil
	}

	// The shared run must not be cancelled because the first caller gave up.
	runCtx := context.WithoutCancel(ctx)
	result := g.group.DoChan(guardKey, func() (interface{}, error) {
		if g.done.Load() {
			return nil, nil
		}
		if err := init(runCtx); err != nil {
			return nil, err
		}
		g.done.Store(true)
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-result:
		return res.Err
	}
}

// Done reports whether initialisation has completed successfully.
func (g *Guard) Done() bool {
	return g.done.Load()
}

// Reset forgets a previous success. Intended for tests.
func (g *Guard) Reset() {
	g.done.Store(false)
	g.group.Forget(guardKey)
}
