// Package provider defines the storage abstraction used by ttlcache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation).
//
// Freshness is decided by ttlcache from the framed fetch time, not by the
// provider. Providers may evict under pressure (a miss just means re-fetch) but
// must not report stale-by-TTL as a reason to hold a value back: ttlcache passes
// ttl=0 ("no expiry") unless configured otherwise.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs.
// Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL (<=0 => no expiry). May ignore cost if unsupported.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort). Missing keys are not an error.
	Del(ctx context.Context, key string) error

	// Clear drops every key owned by this provider.
	Clear(ctx context.Context) error

	// Close releases resources.
	Close(ctx context.Context) error
}
