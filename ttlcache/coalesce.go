package ttlcache

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/relstate"
)

// Coalescer lets concurrent callers for one key share a single in-flight call.
// The pending entry is removed when the call settles, success or failure, and
// every waiter sees the same result.
//
// The shared call runs detached from any single caller's cancellation; a caller
// whose ctx ends stops waiting but does not cancel the others.
type Coalescer[V any] struct {
	g     singleflight.Group
	hooks relstate.Hooks
}

func NewCoalescer[V any](hooks relstate.Hooks) *Coalescer[V] {
	return &Coalescer[V]{hooks: relstate.Coalesce[relstate.Hooks](hooks, relstate.NopHooks{})}
}

// Do calls fn once per burst of concurrent callers with the same key.
func (c *Coalescer[V]) Do(ctx context.Context, key string, fn func(context.Context) (V, error)) (V, error) {
	var zero V
	detached := context.WithoutCancel(ctx)
	ch := c.g.DoChan(key, func() (any, error) {
		return fn(detached)
	})
	select {
	case res := <-ch:
		if res.Shared {
			c.hooks.FetchShared(key)
		}
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Forget drops the pending entry for key so the next caller starts a new call.
func (c *Coalescer[V]) Forget(key string) { c.g.Forget(key) }
