// Package ttlcache stores slow, eventually-consistent remote facts with a
// freshness window and per-key generations.
//
// An entry is fresh iff now - fetchedAt < TTL. Stale entries are not removed,
// only treated as misses on read. Storage keys are "<ns>:<key>".
//
// Writes:
//
//	Set        - unconditional; bumps the key's generation and returns it
//	SetWithGen - write iff the generation still equals the observed one
//	Invalidate - bump + delete
//
// Fetch fills through a Coalescer and stores the result with SetWithGen, so an
// optimistic Set that lands while the fetch is in flight wins over the fetched value.
package ttlcache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/unkn0wn-root/relstate"
	"github.com/unkn0wn-root/relstate/codec"
	gen "github.com/unkn0wn-root/relstate/genstore"
	"github.com/unkn0wn-root/relstate/internal/wire"
	pr "github.com/unkn0wn-root/relstate/provider"
	"github.com/unkn0wn-root/relstate/provider/memory"
)

// Entry is a decoded cached fact.
type Entry[V any] struct {
	Value     V
	FetchedAt time.Time
	Gen       uint64
}

type Cache[V any] struct {
	ns          string
	ttl         time.Duration
	providerTTL time.Duration
	provider    pr.Provider
	codec       codec.Codec[V]
	gen         gen.GenStore
	log         relstate.Logger
	hooks       relstate.Hooks
	now         func() time.Time
	setCost     SetCostFunc
	enabled     bool

	// writers hold mu exclusively so a generation bump and its write are one step
	// for readers; readers share it for validate-and-self-heal.
	mu      sync.RWMutex
	flights *Coalescer[V]
}

func New[V any](opts Options[V]) (*Cache[V], error) {
	if opts.Namespace == "" {
		return nil, errors.New("ttlcache: namespace is required")
	}
	if opts.TTL < 0 {
		return nil, errors.New("ttlcache: ttl must not be negative")
	}

	c := &Cache[V]{
		ns:          opts.Namespace,
		providerTTL: opts.ProviderTTL,
		enabled:     !opts.Disabled,
	}

	// defaults
	c.ttl = relstate.Coalesce[time.Duration](opts.TTL, defaultTTL)
	c.log = relstate.Coalesce[relstate.Logger](opts.Logger, relstate.NopLogger{})
	c.hooks = relstate.Coalesce[relstate.Hooks](opts.Hooks, relstate.NopHooks{})
	c.flights = NewCoalescer[V](c.hooks)

	if opts.Provider != nil {
		c.provider = opts.Provider
	} else {
		c.provider = memory.New()
	}
	if opts.Codec != nil {
		c.codec = opts.Codec
	} else {
		c.codec = codec.JSON[V]{}
	}
	if opts.GenStore != nil {
		c.gen = opts.GenStore
	} else {
		c.gen = gen.NewLocalGenStore(defaultSweep, defaultGenRetention)
	}
	if opts.Now != nil {
		c.now = opts.Now
	} else {
		c.now = time.Now
	}
	if opts.ComputeSetCost != nil {
		c.setCost = opts.ComputeSetCost
	} else {
		c.setCost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
	}
	return c, nil
}

func (c *Cache[V]) Namespace() string  { return c.ns }
func (c *Cache[V]) TTL() time.Duration { return c.ttl }
func (c *Cache[V]) Enabled() bool      { return c.enabled }

func (c *Cache[V]) Close(ctx context.Context) error {
	// Close gen store first (best effort)
	_ = c.gen.Close(ctx)
	return c.provider.Close(ctx)
}

// Get returns the cached value only while it is fresh.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	e, ok, err := c.Peek(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	if !c.fresh(e.FetchedAt) {
		return zero, false, nil
	}
	return e.Value, true, nil
}

// Peek returns the stored entry regardless of freshness.
func (c *Cache[V]) Peek(ctx context.Context, key string) (Entry[V], bool, error) {
	var zero Entry[V]
	if !c.enabled {
		return zero, false, nil
	}
	k := c.storageKey(key)

	c.mu.RLock()
	defer c.mu.RUnlock()

	raw, ok, err := c.provider.Get(ctx, k)
	if err != nil || !ok {
		return zero, false, err
	}
	e, err := wire.Decode(raw)
	if err != nil {
		c.heal(ctx, k, "corrupt")
		return zero, false, nil
	}
	// validate generation
	if e.Gen != c.snapshotGen(ctx, k) {
		c.heal(ctx, k, "gen_mismatch")
		return zero, false, nil
	}
	v, err := c.codec.Decode(e.Payload)
	if err != nil {
		c.heal(ctx, k, "value_decode")
		return zero, false, nil
	}
	return Entry[V]{Value: v, FetchedAt: e.FetchedAt, Gen: e.Gen}, true, nil
}

// Set stores value with fetchedAt=now, overwriting unconditionally.
// It returns the key's new generation.
func (c *Cache[V]) Set(ctx context.Context, key string, value V) (uint64, error) {
	if !c.enabled {
		return 0, nil
	}
	payload, err := c.codec.Encode(value)
	if err != nil {
		return 0, err
	}
	k := c.storageKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	g, err := c.gen.Bump(ctx, k)
	if err != nil {
		c.log.Error("gen bump error", relstate.Fields{"key": k, "err": err})
		return 0, err
	}
	return g, c.put(ctx, k, g, payload)
}

// SetWithGen writes value iff the key's generation still equals observedGen.
// applied=false means a newer write owns the key and nothing was stored.
func (c *Cache[V]) SetWithGen(ctx context.Context, key string, value V, observedGen uint64) (bool, error) {
	if !c.enabled {
		return false, nil
	}
	payload, err := c.codec.Encode(value)
	if err != nil {
		return false, err
	}
	k := c.storageKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if cur := c.snapshotGen(ctx, k); cur != observedGen {
		// generation moved; skip stale write
		c.log.Debug("SetWithGen skipped (gen mismatch)", relstate.Fields{"key": k, "obs": observedGen, "cur": cur})
		return false, nil
	}
	return true, c.put(ctx, k, observedGen, payload)
}

// SnapshotGen returns the key's current generation.
func (c *Cache[V]) SnapshotGen(ctx context.Context, key string) uint64 {
	return c.snapshotGen(ctx, c.storageKey(key))
}

// Invalidate bumps the key's generation and deletes the entry.
// In-flight fills that observed the old generation are dropped.
func (c *Cache[V]) Invalidate(ctx context.Context, key string) error {
	if !c.enabled {
		return nil
	}
	k := c.storageKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	newGen, bumpErr := c.gen.Bump(ctx, k)
	delErr := c.provider.Del(ctx, k)
	if bumpErr != nil || delErr != nil {
		return &InvalidateError{Key: key, BumpErr: bumpErr, DelErr: delErr}
	}
	c.log.Debug("invalidated key (bumped gen + deleted)", relstate.Fields{"key": k, "newGen": newGen})
	return nil
}

// Clear drops every entry and moves every generation.
func (c *Cache[V]) Clear(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.gen.BumpAll(ctx); err != nil {
		return err
	}
	if err := c.provider.Clear(ctx); err != nil {
		return err
	}
	c.log.Debug("cache cleared", relstate.Fields{"ns": c.ns})
	return nil
}

// Fetch returns a fresh cached value or runs producer through the coalescer.
// For a burst of concurrent calls on one key with no intervening write,
// producer runs exactly once. Producer errors reach every waiter and nothing is cached.
func (c *Cache[V]) Fetch(ctx context.Context, key string, producer func(context.Context) (V, error)) (V, error) {
	v, ok, err := c.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache read failed; fetching", relstate.Fields{"key": key, "err": err})
	}
	if ok {
		return v, nil
	}
	return c.flight(ctx, key, producer, true)
}

// Refresh re-runs producer even when a fresh value is cached.
func (c *Cache[V]) Refresh(ctx context.Context, key string, producer func(context.Context) (V, error)) (V, error) {
	return c.flight(ctx, key, producer, false)
}

func (c *Cache[V]) flight(ctx context.Context, key string, producer func(context.Context) (V, error), recheck bool) (V, error) {
	return c.flights.Do(ctx, c.storageKey(key), func(fctx context.Context) (V, error) {
		var zero V
		// a caller that missed just before the previous flight stored its value lands here
		if recheck {
			if v, ok, _ := c.Get(fctx, key); ok {
				return v, nil
			}
		}
		obs := c.SnapshotGen(fctx, key)
		v, err := producer(fctx)
		if err != nil {
			c.hooks.FetchFailed(c.storageKey(key), err)
			c.log.Debug("fetch failed; cache untouched", relstate.Fields{"key": key, "err": err})
			return zero, err
		}
		if _, err := c.SetWithGen(fctx, key, v, obs); err != nil {
			c.log.Warn("fill write failed", relstate.Fields{"key": key, "err": err})
		}
		return v, nil
	})
}

func (c *Cache[V]) fresh(fetchedAt time.Time) bool {
	return c.now().Sub(fetchedAt) < c.ttl
}

// put must be called with mu held exclusively.
func (c *Cache[V]) put(ctx context.Context, storageKey string, g uint64, payload []byte) error {
	raw := wire.Encode(wire.Entry{Gen: g, FetchedAt: c.now(), Payload: payload})
	ok, err := c.provider.Set(ctx, storageKey, raw, c.setCost(storageKey, raw), c.providerTTL)
	if err != nil {
		return err
	}
	if !ok {
		c.hooks.ProviderSetRejected(storageKey)
		c.log.Debug("Set rejected by provider (pressure)", relstate.Fields{"key": storageKey})
	}
	return nil
}

// heal is called with mu held (shared is enough: writers are excluded).
func (c *Cache[V]) heal(ctx context.Context, storageKey, reason string) {
	_ = c.provider.Del(ctx, storageKey)
	c.hooks.SelfHeal(storageKey, reason)
}

func (c *Cache[V]) snapshotGen(ctx context.Context, storageKey string) uint64 {
	g, err := c.gen.Snapshot(ctx, storageKey)
	if err != nil {
		// Conservative: treat as 0 so CAS writes will skip; reads will self-heal
		c.log.Warn("gen snapshot error", relstate.Fields{"key": storageKey, "err": err})
		return 0
	}
	return g
}

func (c *Cache[V]) storageKey(userKey string) string {
	// isolate by namespace
	return c.ns + ":" + userKey
}
