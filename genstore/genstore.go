// Package genstore keeps a monotonic generation per cache key.
//
// Every unconditional write bumps the key's generation; conditional writes
// (fills after a fetch, rollbacks after a failed mutation) carry the generation
// they observed and are dropped when it moved.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live.
type GenStore interface {
	// Snapshot returns the current generation of storageKey.
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	// Bump increments and returns the new generation.
	Bump(ctx context.Context, storageKey string) (uint64, error)
	// BumpAll moves every generation, including keys never bumped (Clear).
	BumpAll(ctx context.Context) error
	// Prune forgets keys idle for longer than retention and reports how many.
	Prune(retention time.Duration) int
	Close(context.Context) error
}
