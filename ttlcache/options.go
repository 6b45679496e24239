package ttlcache

import (
	"time"

	"github.com/unkn0wn-root/relstate"
	"github.com/unkn0wn-root/relstate/codec"
	gen "github.com/unkn0wn-root/relstate/genstore"
	pr "github.com/unkn0wn-root/relstate/provider"
)

type SetCostFunc func(key string, raw []byte) int64

const (
	defaultTTL          = 2 * time.Minute
	defaultGenRetention = 24 * time.Hour
	defaultSweep        = time.Hour
)

// Options tune a Cache. Only Namespace is required; others have sensible defaults.
//
// A Cache owns its Provider and GenStore: Clear drops everything in both, so
// do not share one Provider between caches.
type Options[V any] struct {
	// Required
	Namespace string // logical namespace, e.g. "follow", "banner"

	TTL         time.Duration  // freshness window; 0 => 2m
	Provider    pr.Provider    // nil => in-memory map
	Codec       codec.Codec[V] // nil => JSON
	GenStore    gen.GenStore   // nil => LocalGenStore (in-process)
	ProviderTTL time.Duration  // provider-side expiry; 0 => never (stale entries stay, treated as misses)

	Logger         relstate.Logger  // if nil, NopLogger is used
	Hooks          relstate.Hooks   // if nil, NopHooks is used
	Now            func() time.Time // clock; nil => time.Now
	ComputeSetCost SetCostFunc      // default len(raw)
	Disabled       bool             // default false (enabled)
}
