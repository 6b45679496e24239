// Package session wires one signed-in session: its caches, collaborators,
// logging and hooks. There are no package-level singletons; everything a view
// needs hangs off *Session and is torn down by Close (or ClearAll on logout).
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdslog "log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/relstate"
	"github.com/unkn0wn-root/relstate/access"
	"github.com/unkn0wn-root/relstate/config"
	asynchook "github.com/unkn0wn-root/relstate/hooks/async"
	"github.com/unkn0wn-root/relstate/hooks/prom"
	logruslog "github.com/unkn0wn-root/relstate/log/logrus"
	slogadapter "github.com/unkn0wn-root/relstate/log/slog"
	zaplog "github.com/unkn0wn-root/relstate/log/zap"
	pr "github.com/unkn0wn-root/relstate/provider"
	"github.com/unkn0wn-root/relstate/provider/bigcache"
	"github.com/unkn0wn-root/relstate/provider/memory"
	"github.com/unkn0wn-root/relstate/provider/ristretto"
	"github.com/unkn0wn-root/relstate/relation"
	"github.com/unkn0wn-root/relstate/resource"
	"github.com/unkn0wn-root/relstate/sloghooks"
	"github.com/unkn0wn-root/relstate/ttlcache"
)

// Deps are the document-store collaborators. Graph and Source are required;
// Roots defaults to a ChainWalker over Posts.
type Deps struct {
	Graph    relation.Graph
	Source   resource.Source
	Roots    access.RootResolver
	Posts    access.PostSource
	Notifier relation.Notifier

	// Registerer receives metrics when cfg.Hooks.Metrics is set.
	// nil => prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// LogOutput is where logrus/slog write. nil => stderr.
	LogOutput io.Writer
}

type Session struct {
	Relations *relation.Service
	Resources *resource.Resolver
	Access    *access.Resolver

	log     relstate.Logger
	closers []func(context.Context) error
}

func New(cfg config.Config, deps Deps) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Graph == nil || deps.Source == nil {
		return nil, errors.New("session: graph and resource source are required")
	}
	roots := deps.Roots
	if roots == nil {
		if deps.Posts == nil {
			return nil, errors.New("session: a root resolver or post source is required")
		}
		roots = access.ChainWalker{Posts: deps.Posts}
	}

	s := &Session{}
	out := deps.LogOutput
	if out == nil {
		out = os.Stderr
	}
	log, err := newLogger(cfg.Log, out)
	if err != nil {
		return nil, err
	}
	s.log = log

	reg := deps.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	hooks, err := s.newHooks(cfg, reg, out)
	if err != nil {
		return nil, err
	}

	st := ttlcache.Storage{
		NewProvider: providerFactory(cfg, reg),
		Codec:       cfg.Storage.Codec,
		MaxDecode:   cfg.Storage.MaxDecode,
		Logger:      log,
		Hooks:       hooks,
	}
	if cfg.Storage.Provider == "bigcache" {
		st.ProviderTTL = cfg.Storage.Bigcache.LifeWindow
	}

	rel, err := relation.New(relation.Options{
		Graph:        deps.Graph,
		EdgeTTL:      cfg.Relation.EdgeTTL,
		ListTTL:      cfg.Relation.ListTTL,
		CallTimeout:  cfg.Boundary.Timeout,
		CallAttempts: cfg.Boundary.Attempts,
		Storage:      st,
		Logger:       log,
		Hooks:        hooks,
		Notifier:     deps.Notifier,
	})
	if err != nil {
		s.abort()
		return nil, err
	}
	s.Relations = rel
	s.closers = append(s.closers, rel.Close)

	res, err := resource.New(resource.Options{
		Source:       deps.Source,
		TTL:          cfg.Resource.TTL,
		Gateway:      cfg.Resource.Gateway,
		CallTimeout:  cfg.Boundary.Timeout,
		CallAttempts: cfg.Boundary.Attempts,
		Storage:      st,
		Logger:       log,
		Hooks:        hooks,
	})
	if err != nil {
		s.abort()
		return nil, err
	}
	s.Resources = res
	s.closers = append(s.closers, res.Close)

	acc, err := access.New(access.Options{
		Roots:        roots,
		Decrypter:    rel,
		RootTTL:      cfg.Access.RootTTL,
		CallTimeout:  cfg.Boundary.Timeout,
		CallAttempts: cfg.Boundary.Attempts,
		Storage:      st,
		Logger:       log,
		Hooks:        hooks,

		DecrypterBounded: true,
	})
	if err != nil {
		s.abort()
		return nil, err
	}
	s.Access = acc
	s.closers = append(s.closers, acc.Close)

	log.Info("session ready", relstate.Fields{
		"provider": cfg.Storage.Provider,
		"codec":    relstate.Coalesce(cfg.Storage.Codec, "json"),
		"metrics":  cfg.Hooks.Metrics,
	})
	return s, nil
}

// Tracker returns a reply-permission tracker for one view.
func (s *Session) Tracker(viewerID string, onChange func(access.Snapshot)) *access.Tracker {
	return access.NewTracker(s.Access, viewerID, onChange)
}

// ClearAll drops every cached fact (logout, account switch).
func (s *Session) ClearAll(ctx context.Context) error {
	return errors.Join(
		s.Relations.ClearAll(ctx),
		s.Resources.Clear(ctx),
		s.Access.Clear(ctx),
	)
}

// Close releases caches and flushes hook delivery, in reverse construction order.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i](ctx))
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Session) abort() { _ = s.Close(context.Background()) }

func newLogger(c config.Log, out io.Writer) (relstate.Logger, error) {
	level := relstate.Coalesce(c.Level, "info")
	switch c.Backend {
	case "", "none":
		return relstate.NopLogger{}, nil
	case "zap":
		return zaplog.New(level)
	case "logrus":
		return logruslog.New(out, level)
	case "slog":
		var lvl stdslog.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("session: log level: %w", err)
		}
		return slogadapter.New(stdslog.NewJSONHandler(out, &stdslog.HandlerOptions{Level: lvl})), nil
	}
	return nil, fmt.Errorf("session: unknown log backend %q", c.Backend)
}

func (s *Session) newHooks(cfg config.Config, reg prometheus.Registerer, out io.Writer) (relstate.Hooks, error) {
	var hs relstate.MultiHooks
	if cfg.Hooks.Metrics {
		ph, err := prom.New(reg)
		if err != nil {
			return nil, fmt.Errorf("session: metrics: %w", err)
		}
		hs = append(hs, ph)
	}
	if cfg.Hooks.LogEvents {
		l := stdslog.New(stdslog.NewTextHandler(out, nil))
		hs = append(hs, sloghooks.New(l, sloghooks.Options{SelfHealEvery: 10, FetchSharedEvery: 100}))
	}

	var h relstate.Hooks
	switch len(hs) {
	case 0:
		return relstate.NopHooks{}, nil
	case 1:
		h = hs[0]
	default:
		h = hs
	}
	if cfg.Hooks.AsyncQueue > 0 {
		ah := asynchook.New(h, 1, cfg.Hooks.AsyncQueue)
		s.closers = append(s.closers, func(context.Context) error {
			ah.Close()
			return nil
		})
		h = ah
	}
	return h, nil
}

func providerFactory(cfg config.Config, reg prometheus.Registerer) func(ns string) (pr.Provider, error) {
	switch cfg.Storage.Provider {
	case "ristretto":
		rc := cfg.Storage.Ristretto
		return func(ns string) (pr.Provider, error) {
			p, err := ristretto.New(ristretto.Config{
				NumCounters: rc.NumCounters,
				MaxCost:     rc.MaxCost,
				BufferItems: rc.BufferItems,
				Metrics:     cfg.Hooks.Metrics,
			})
			if err != nil {
				return nil, err
			}
			if cfg.Hooks.Metrics {
				if err := prom.RegisterRistretto(reg, ns, p.Metrics()); err != nil {
					_ = p.Close(context.Background())
					return nil, err
				}
			}
			return p, nil
		}
	case "bigcache":
		bc := cfg.Storage.Bigcache
		return func(string) (pr.Provider, error) {
			return bigcache.New(bigcache.Config{
				LifeWindow:         bc.LifeWindow,
				MaxEntrySize:       bc.MaxEntrySize,
				HardMaxCacheSizeMB: bc.HardMaxCacheSizeMB,
			})
		}
	}
	return func(string) (pr.Provider, error) { return memory.New(), nil }
}
