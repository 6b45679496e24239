package ttlcache

import (
	"fmt"
	"time"

	"github.com/unkn0wn-root/relstate"
	"github.com/unkn0wn-root/relstate/codec"
	pr "github.com/unkn0wn-root/relstate/provider"
)

// Storage describes how services build their caches: one Provider per namespace,
// one codec for every value shape.
type Storage struct {
	NewProvider func(ns string) (pr.Provider, error) // nil => in-memory map
	Codec       string                                // codec.ByName; "" => json
	MaxDecode   int                                   // payload cap on decode; 0 => unlimited
	ProviderTTL time.Duration

	Logger relstate.Logger
	Hooks  relstate.Hooks
	Now    func() time.Time
}

// Build constructs a Cache[V] for ns with the given freshness window.
func Build[V any](s Storage, ns string, ttl time.Duration) (*Cache[V], error) {
	cd, err := codec.ByName[V](s.Codec)
	if err != nil {
		return nil, fmt.Errorf("ttlcache %s: %w", ns, err)
	}
	if s.MaxDecode > 0 {
		cd = codec.LimitCodec[V]{Inner: cd, MaxDecode: s.MaxDecode}
	}
	var p pr.Provider
	if s.NewProvider != nil {
		if p, err = s.NewProvider(ns); err != nil {
			return nil, fmt.Errorf("ttlcache %s: provider: %w", ns, err)
		}
	}
	return New[V](Options[V]{
		Namespace:   ns,
		TTL:         ttl,
		Provider:    p,
		Codec:       cd,
		ProviderTTL: s.ProviderTTL,
		Logger:      s.Logger,
		Hooks:       s.Hooks,
		Now:         s.Now,
	})
}
