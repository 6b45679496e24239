// Package relstate is the client-side relationship and access state layer for a
// server-less document store. There is no backend to arbitrate, so every fact
// (follow, block, approved follower, banner URL, encryption root) is fetched,
// cached and mutated from the client.
//
// Components:
//   - ttlcache: keyed TTL store over a byte Provider with per-key generations and
//     a request coalescer (one in-flight fetch per key).
//   - relation: follow/block/approval state with optimistic toggles and
//     generation-checked rollback.
//   - resource: banner URL resolution with content-addressed URI translation.
//   - access: reply permission for private posts (reply-chain walk, owner bypass,
//     decrypt capability).
//   - session: wires the above once per application session.
//
// This package holds what every component shares: Logger, Hooks and errors.
//
// Rollback pattern:
//
//	gen, _ := cache.Set(ctx, k, !prev)     // optimistic, bumps gen
//	if err := mutate(); err != nil {
//	    _, _ = cache.SetWithGen(ctx, k, prev, gen) // applies iff no newer write
//	}
package relstate
