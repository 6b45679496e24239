// Package ristretto is a cost-bounded provider.Provider on dgraph-io/ristretto.
//
// Admission is probabilistic: Set may return ok=false under pressure and the
// fact simply stays uncached (ttlcache reports it via Hooks.ProviderSetRejected).
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/relstate/provider"
)

// Config sizes the cache. Only MaxCost (bytes) is required.
type Config struct {
	MaxCost     int64
	NumCounters int64 // 0 => 10 per KiB of MaxCost
	BufferItems int64 // 0 => 64
	Metrics     bool
}

type Provider struct {
	c *rc.Cache
}

var _ pr.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.MaxCost <= 0 {
		return nil, errors.New("ristretto: max cost must be positive")
	}
	counters := cfg.NumCounters
	if counters <= 0 {
		counters = max(cfg.MaxCost/1024*10, 100) // 10 counters per 1KB, sizes the admission filter
	}
	buffer := cfg.BufferItems
	if buffer <= 0 {
		buffer = 64
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: counters,
		MaxCost:     cfg.MaxCost,
		BufferItems: buffer,
		Metrics:     cfg.Metrics,
		// ttlcache passes the framed size as cost; don't add ristretto's per-item overhead
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	if b, ok := v.([]byte); ok {
		return b, true, nil
	}
	p.c.Del(key)
	return nil, false, nil
}

// Set blocks until the write buffer is applied, so an optimistic write is
// visible to the very next Get.
func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	ok := p.c.SetWithTTL(key, value, cost, max(ttl, 0))
	if ok {
		p.c.Wait()
	}
	return ok, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

func (p *Provider) Clear(_ context.Context) error {
	p.c.Clear()
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Close()
	return nil
}

// Metrics is nil unless Config.Metrics was set.
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
