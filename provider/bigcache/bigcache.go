// Package bigcache is a sharded, GC-friendly provider.Provider on allegro/bigcache.
//
// BigCache has no per-entry TTL. LifeWindow is a hard upper bound on how long
// any entry survives, independent of the ttlcache freshness window.
package bigcache

import (
	"context"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"

	pr "github.com/unkn0wn-root/relstate/provider"
)

type Config struct {
	LifeWindow         time.Duration // required
	CleanWindow        time.Duration // 0 => LifeWindow/2
	MaxEntriesInWindow int
	MaxEntrySize       int // bytes, initial shard sizing only
	HardMaxCacheSizeMB int // 0 = unlimited
}

type Provider struct {
	c *bc.BigCache
}

var _ pr.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.LifeWindow <= 0 {
		return nil, errors.New("bigcache: life window is required")
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	conf.CleanWindow = cfg.LifeWindow / 2
	conf.Verbose = false
	overrides := []struct {
		set bool
		fn  func()
	}{
		{cfg.CleanWindow > 0, func() { conf.CleanWindow = cfg.CleanWindow }},
		{cfg.MaxEntriesInWindow > 0, func() { conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow }},
		{cfg.MaxEntrySize > 0, func() { conf.MaxEntrySize = cfg.MaxEntrySize }},
		{cfg.HardMaxCacheSizeMB > 0, func() { conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB }},
	}
	for _, o := range overrides {
		if o.set {
			o.fn()
		}
	}

	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	switch b, err := p.c.Get(key); {
	case err == nil:
		return b, true, nil
	case errors.Is(err, bc.ErrEntryNotFound):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// Set ignores cost and ttl. A write that does not fit the shard is an error, not a rejection.
func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	if err := p.c.Set(key, value); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	if err := p.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (p *Provider) Clear(_ context.Context) error { return p.c.Reset() }

func (p *Provider) Close(_ context.Context) error { return p.c.Close() }

// Len reports how many entries are stored.
func (p *Provider) Len() int { return p.c.Len() }
