// Package resource resolves an owner's banner-style resource URL through a
// TTL cache, translating content-addressed URIs to gateway URLs first.
//
// Absent resources are cached too: an owner with no banner costs one query
// per TTL, not one per render.
package resource

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/relstate"
	"github.com/unkn0wn-root/relstate/internal/boundary"
	"github.com/unkn0wn-root/relstate/internal/util"
	"github.com/unkn0wn-root/relstate/ttlcache"
)

// DefaultTTL is how long a resolved URL (or its absence) stays fresh.
const DefaultTTL = 300 * time.Second

const namespace = "banner"

// Source is the document-store lookup for an owner's raw resource URI.
// "" means the owner has none.
type Source interface {
	ResourceURL(ctx context.Context, ownerID string) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, ownerID string) (string, error)

func (f SourceFunc) ResourceURL(ctx context.Context, ownerID string) (string, error) {
	return f(ctx, ownerID)
}

type Options struct {
	// Required
	Source Source

	TTL     time.Duration // 0 => DefaultTTL
	Gateway string        // "" => DefaultGateway

	CallTimeout  time.Duration
	CallAttempts uint

	Storage ttlcache.Storage
	Logger  relstate.Logger
	Hooks   relstate.Hooks
}

type Resolver struct {
	src    Source
	tr     Translator
	cache  *ttlcache.Cache[string]
	policy boundary.Policy
	log    relstate.Logger
}

func New(opts Options) (*Resolver, error) {
	if opts.Source == nil {
		return nil, errors.New("resource: source is required")
	}
	log := relstate.Coalesce[relstate.Logger](opts.Logger, relstate.NopLogger{})
	st := opts.Storage
	st.Logger = relstate.Coalesce[relstate.Logger](st.Logger, log)
	st.Hooks = relstate.Coalesce[relstate.Hooks](st.Hooks, opts.Hooks)

	c, err := ttlcache.Build[string](st, namespace, relstate.Coalesce[time.Duration](opts.TTL, DefaultTTL))
	if err != nil {
		return nil, err
	}
	return &Resolver{
		src:    opts.Source,
		tr:     Translator{Gateway: opts.Gateway},
		cache:  c,
		policy: boundary.Policy{Timeout: opts.CallTimeout, Attempts: opts.CallAttempts},
		log:    log,
	}, nil
}

type resolveOptions struct {
	preloaded    string
	hasPreloaded bool
}

type ResolveOption func(*resolveOptions)

// WithPreloaded supplies a batch-prefetched URI. Cache and Source are skipped;
// translation still applies. "" means the owner is known to have none.
func WithPreloaded(uri string) ResolveOption {
	return func(o *resolveOptions) {
		o.preloaded = uri
		o.hasPreloaded = true
	}
}

// Resolve returns the owner's renderable URL. ok=false means no resource
// (absent, or not a URL we can render). A lookup failure returns a
// *relstate.FetchError and nothing is cached.
func (r *Resolver) Resolve(ctx context.Context, ownerID string, opts ...ResolveOption) (string, bool, error) {
	var ro resolveOptions
	for _, o := range opts {
		o(&ro)
	}
	if ro.hasPreloaded {
		u, ok := r.tr.Translate(ro.preloaded)
		return u, ok, nil
	}
	if ownerID == "" {
		return "", false, relstate.ErrMissingIdentity
	}

	key := util.Join(ownerID)
	u, err := r.cache.Fetch(ctx, key, func(fctx context.Context) (string, error) {
		raw, err := boundary.Do(fctx, r.policy, func(cctx context.Context) (string, error) {
			return r.src.ResourceURL(cctx, ownerID)
		})
		if err != nil {
			return "", err
		}
		if u, ok := r.tr.Translate(raw); ok {
			return u, nil
		}
		if raw != "" {
			r.log.Debug("resource uri not renderable", relstate.Fields{"owner": ownerID})
		}
		return "", nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return "", false, err
		}
		r.log.Warn("resource fetch failed", relstate.Fields{"owner": ownerID, "err": err})
		return "", false, &relstate.FetchError{Op: "resource-url", Key: namespace + ":" + key, Err: err}
	}
	return u, u != "", nil
}

// Invalidate drops the owner's cached URL (e.g. after the owner changed it).
func (r *Resolver) Invalidate(ctx context.Context, ownerID string) error {
	return r.cache.Invalidate(ctx, util.Join(ownerID))
}

// Clear drops every cached URL.
func (r *Resolver) Clear(ctx context.Context) error { return r.cache.Clear(ctx) }

func (r *Resolver) Close(ctx context.Context) error { return r.cache.Close(ctx) }
