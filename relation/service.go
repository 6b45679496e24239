// Package relation answers "is A following/blocking/approved by B?" from a
// TTL cache and applies optimistic toggles with generation-checked rollback.
//
// A toggle writes !prev to the cache and to watchers before the document store
// answers. On failure the previous value is restored only if no newer write
// happened to the same key in the meantime (per-key generation), so a late
// rollback of an earlier toggle cannot overwrite a later toggle.
//
// Toggles on one key are not serialized. UIs should gate the control on
// Toggling (or EdgeState.Toggling from Watch) until the outstanding call settles.
package relation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/unkn0wn-root/relstate"
	"github.com/unkn0wn-root/relstate/internal/boundary"
	"github.com/unkn0wn-root/relstate/internal/util"
	"github.com/unkn0wn-root/relstate/ttlcache"
)

const (
	// DefaultEdgeTTL is how long a follow/block/approval fact stays fresh.
	DefaultEdgeTTL = 120 * time.Second
	// DefaultListTTL is how long a related-id list (e.g. blocked ids) stays fresh.
	DefaultListTTL = 120 * time.Second
)

type Options struct {
	// Required
	Graph Graph

	EdgeTTL time.Duration // 0 => DefaultEdgeTTL
	ListTTL time.Duration // 0 => DefaultListTTL

	CallTimeout  time.Duration // per attempt at the Graph boundary; 0 => unbounded
	CallAttempts uint          // attempts on timeout; 0 => 1

	Storage  ttlcache.Storage
	Logger   relstate.Logger // if nil, NopLogger is used
	Hooks    relstate.Hooks  // if nil, NopHooks is used
	Notifier Notifier        // if nil, notices are dropped
}

type Service struct {
	graph    Graph
	edges    map[Kind]*ttlcache.Cache[bool]
	lists    map[Kind]*ttlcache.Cache[[]string]
	policy   boundary.Policy
	log      relstate.Logger
	hooks    relstate.Hooks
	notifier Notifier
	watch    *watchers

	mu       sync.Mutex
	inflight map[string]int
}

func New(opts Options) (*Service, error) {
	if opts.Graph == nil {
		return nil, errors.New("relation: graph is required")
	}
	s := &Service{
		graph:    opts.Graph,
		edges:    make(map[Kind]*ttlcache.Cache[bool], len(Kinds)),
		lists:    make(map[Kind]*ttlcache.Cache[[]string], len(Kinds)),
		policy:   boundary.Policy{Timeout: opts.CallTimeout, Attempts: opts.CallAttempts},
		log:      relstate.Coalesce[relstate.Logger](opts.Logger, relstate.NopLogger{}),
		hooks:    relstate.Coalesce[relstate.Hooks](opts.Hooks, relstate.NopHooks{}),
		notifier: relstate.Coalesce[Notifier](opts.Notifier, nopNotifier{}),
		watch:    newWatchers(),
		inflight: make(map[string]int),
	}

	st := opts.Storage
	st.Logger = relstate.Coalesce[relstate.Logger](st.Logger, s.log)
	st.Hooks = relstate.Coalesce[relstate.Hooks](st.Hooks, s.hooks)
	edgeTTL := relstate.Coalesce[time.Duration](opts.EdgeTTL, DefaultEdgeTTL)
	listTTL := relstate.Coalesce[time.Duration](opts.ListTTL, DefaultListTTL)

	for _, k := range Kinds {
		ec, err := ttlcache.Build[bool](st, string(k), edgeTTL)
		if err != nil {
			return nil, err
		}
		lc, err := ttlcache.Build[[]string](st, k.listNamespace(), listTTL)
		if err != nil {
			return nil, err
		}
		s.edges[k] = ec
		s.lists[k] = lc
	}
	return s, nil
}

// GetState reports whether subject has a kind edge to target.
// Self-edges are false without any cache or network interaction. A fetch
// failure returns a *relstate.FetchError: the state is unknown, not false.
func (s *Service) GetState(ctx context.Context, kind Kind, subjectID, targetID string) (bool, error) {
	if err := validate(kind, subjectID, targetID); err != nil {
		return false, err
	}
	if subjectID == targetID {
		return false, nil
	}
	c := s.edges[kind]
	key := util.Join(subjectID, targetID)
	v, err := c.Fetch(ctx, key, func(fctx context.Context) (bool, error) {
		return boundary.Do(fctx, s.policy, func(cctx context.Context) (bool, error) {
			return s.graph.IsRelated(cctx, subjectID, targetID, kind)
		})
	})
	if err != nil {
		return false, s.fetchErr(ctx, "is-related", c.Namespace()+":"+key, err)
	}
	return v, nil
}

// Refresh re-reads the edge from the document store even if it is cached.
func (s *Service) Refresh(ctx context.Context, kind Kind, subjectID, targetID string) (bool, error) {
	if err := validate(kind, subjectID, targetID); err != nil {
		return false, err
	}
	if subjectID == targetID {
		return false, nil
	}
	c := s.edges[kind]
	key := util.Join(subjectID, targetID)
	v, err := c.Refresh(ctx, key, func(fctx context.Context) (bool, error) {
		return boundary.Do(fctx, s.policy, func(cctx context.Context) (bool, error) {
			return s.graph.IsRelated(cctx, subjectID, targetID, kind)
		})
	})
	if err != nil {
		return false, s.fetchErr(ctx, "is-related", c.Namespace()+":"+key, err)
	}
	return v, nil
}

// Toggle flips the edge optimistically and returns the state it settled on.
//
// Watchers see !prev before the document store is called. On failure the
// previous state is restored (unless a newer write owns the key), the Notifier
// is told, and a *relstate.MutationError is returned with prev.
func (s *Service) Toggle(ctx context.Context, kind Kind, subjectID, targetID string) (bool, error) {
	if err := validate(kind, subjectID, targetID); err != nil {
		return false, err
	}
	if subjectID == targetID {
		return false, relstate.ErrSelfEdge
	}
	prev, err := s.GetState(ctx, kind, subjectID, targetID)
	if err != nil {
		return false, err
	}
	return s.apply(ctx, kind, subjectID, targetID, prev, !prev)
}

// SetState moves the edge to desired with the same optimistic path as Toggle.
// It is a no-op when the known state already equals desired.
func (s *Service) SetState(ctx context.Context, kind Kind, subjectID, targetID string, desired bool) (bool, error) {
	if err := validate(kind, subjectID, targetID); err != nil {
		return false, err
	}
	if subjectID == targetID {
		return false, relstate.ErrSelfEdge
	}
	prev, err := s.GetState(ctx, kind, subjectID, targetID)
	if err != nil {
		return false, err
	}
	if prev == desired {
		return prev, nil
	}
	return s.apply(ctx, kind, subjectID, targetID, prev, desired)
}

func (s *Service) apply(ctx context.Context, kind Kind, subjectID, targetID string, prev, desired bool) (bool, error) {
	c := s.edges[kind]
	key := util.Join(subjectID, targetID)
	storageKey := c.Namespace() + ":" + key
	wkey := watchKey(kind, subjectID, targetID)

	// the outcome must be recorded even if the caller stops waiting
	dctx := context.WithoutCancel(ctx)

	done := s.begin(wkey)
	gen, err := c.Set(dctx, key, desired)
	if err != nil {
		done()
		return prev, &relstate.MutationError{Key: storageKey, Reason: "optimistic write failed", Err: err}
	}
	s.publish(wkey, desired)

	res, err := boundary.Do(dctx, s.policy, func(cctx context.Context) (MutationResult, error) {
		return s.graph.SetRelated(cctx, subjectID, targetID, kind, desired)
	})
	if err == nil && res.Success {
		if _, err := c.SetWithGen(dctx, key, desired, gen); err != nil {
			s.log.Warn("confirm write failed", relstate.Fields{"key": storageKey, "err": err})
		}
		// derived lists (blocked ids for feed filtering) depend on this edge
		if err := s.lists[kind].Invalidate(dctx, util.Join(subjectID)); err != nil {
			s.log.Warn("list invalidation failed", relstate.Fields{"kind": kind, "subject": subjectID, "err": err})
		}
		s.log.Debug("relation mutated", relstate.Fields{"key": storageKey, "value": desired})
		done()
		s.publish(wkey, desired)
		return desired, nil
	}

	merr := &relstate.MutationError{Key: storageKey, Reason: res.Error, Err: err}
	if err == nil && merr.Reason == "" {
		merr.Reason = "refused by document store"
	}
	s.hooks.MutationFailed(storageKey, merr)
	s.log.Warn("relation mutation failed; rolling back", relstate.Fields{"key": storageKey, "desired": desired, "err": merr})

	settled := s.rollback(dctx, c, key, storageKey, prev, gen)
	done()
	s.publish(wkey, settled)

	s.notifier.Notify(ctx, Notice{
		Kind:      kind,
		Subject:   subjectID,
		Target:    targetID,
		Desired:   desired,
		Message:   noticeMessage(kind, desired),
		Err:       merr,
		Retryable: merr.Retryable(),
	})
	return prev, merr
}

// rollback restores prev unless a newer write owns the key, and returns the
// value watchers should settle on.
func (s *Service) rollback(ctx context.Context, c *ttlcache.Cache[bool], key, storageKey string, prev bool, gen uint64) bool {
	applied, err := c.SetWithGen(ctx, key, prev, gen)
	switch {
	case err != nil:
		// cannot restore prev; drop the optimistic value so the next read re-fetches
		s.log.Error("rollback write failed; invalidating", relstate.Fields{"key": storageKey, "err": err})
		if c.SnapshotGen(ctx, key) == gen {
			_ = c.Invalidate(ctx, key)
		}
		s.hooks.RollbackApplied(storageKey)
		return prev
	case applied:
		s.hooks.RollbackApplied(storageKey)
		return prev
	default:
		s.hooks.RollbackSkipped(storageKey)
		s.log.Debug("rollback skipped (newer write)", relstate.Fields{"key": storageKey, "gen": gen})
		// the store refused this write, so it still holds prev unless the newer
		// write says otherwise
		if v, ok, _ := c.Get(ctx, key); ok {
			return v
		}
		return prev
	}
}

// ListIDs returns the ids subject has a kind edge to (e.g. blocked ids for feed filtering).
// The slice is a copy and may be modified.
func (s *Service) ListIDs(ctx context.Context, kind Kind, subjectID string) ([]string, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown relation kind %q", relstate.ErrInvalidInput, kind)
	}
	if subjectID == "" {
		return nil, relstate.ErrMissingIdentity
	}
	c := s.lists[kind]
	key := util.Join(subjectID)
	ids, err := c.Fetch(ctx, key, func(fctx context.Context) ([]string, error) {
		return boundary.Do(fctx, s.policy, func(cctx context.Context) ([]string, error) {
			return s.graph.ListRelatedIDs(cctx, subjectID, kind)
		})
	})
	if err != nil {
		return nil, s.fetchErr(ctx, "list-related", c.Namespace()+":"+key, err)
	}
	return slices.Clone(ids), nil
}

// CanDecrypt reports whether viewer may decrypt owner's private feed.
// The owner always can; everyone else needs an approved-follower edge.
func (s *Service) CanDecrypt(ctx context.Context, viewerID, ownerID string) (bool, error) {
	if viewerID == "" || ownerID == "" {
		return false, relstate.ErrMissingIdentity
	}
	if viewerID == ownerID {
		return true, nil
	}
	return s.GetState(ctx, ApprovedFollower, viewerID, ownerID)
}

// Invalidate drops one cached edge (e.g. after an out-of-band batch unblock).
func (s *Service) Invalidate(ctx context.Context, kind Kind, subjectID, targetID string) error {
	if err := validate(kind, subjectID, targetID); err != nil {
		return err
	}
	return s.edges[kind].Invalidate(ctx, util.Join(subjectID, targetID))
}

// InvalidateList drops subject's cached id list for kind.
func (s *Service) InvalidateList(ctx context.Context, kind Kind, subjectID string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown relation kind %q", relstate.ErrInvalidInput, kind)
	}
	return s.lists[kind].Invalidate(ctx, util.Join(subjectID))
}

// ClearAll drops every cached edge and list of every kind.
func (s *Service) ClearAll(ctx context.Context) error {
	var errs []error
	for _, k := range Kinds {
		errs = append(errs, s.edges[k].Clear(ctx), s.lists[k].Clear(ctx))
	}
	return errors.Join(errs...)
}

// Watch calls fn with every state the edge is moved to by this Service
// (optimistic writes and rollbacks). fn runs synchronously; keep it cheap.
//
// fn sees the optimistic value with Toggling set when a mutation starts, and the
// settled value once it ends (confirmed or rolled back), with Toggling cleared
// unless another mutation on the edge is still outstanding.
func (s *Service) Watch(kind Kind, subjectID, targetID string, fn func(EdgeState)) (cancel func()) {
	return s.watch.add(watchKey(kind, subjectID, targetID), fn)
}

// Toggling reports whether a mutation on the edge is outstanding.
func (s *Service) Toggling(kind Kind, subjectID, targetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight[watchKey(kind, subjectID, targetID)] > 0
}

func (s *Service) Close(ctx context.Context) error {
	var errs []error
	for _, k := range Kinds {
		errs = append(errs, s.edges[k].Close(ctx), s.lists[k].Close(ctx))
	}
	return errors.Join(errs...)
}

func (s *Service) publish(wkey string, v bool) {
	s.mu.Lock()
	toggling := s.inflight[wkey] > 0
	s.mu.Unlock()
	s.watch.publish(wkey, EdgeState{Value: v, Toggling: toggling})
}

func (s *Service) begin(wkey string) (done func()) {
	s.mu.Lock()
	s.inflight[wkey]++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		if s.inflight[wkey]--; s.inflight[wkey] <= 0 {
			delete(s.inflight, wkey)
		}
		s.mu.Unlock()
	}
}

func (s *Service) fetchErr(ctx context.Context, op, key string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	s.log.Warn("relation fetch failed", relstate.Fields{"op": op, "key": key, "err": err})
	return &relstate.FetchError{Op: op, Key: key, Err: err}
}

func validate(kind Kind, subjectID, targetID string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown relation kind %q", relstate.ErrInvalidInput, kind)
	}
	if subjectID == "" || targetID == "" {
		return relstate.ErrMissingIdentity
	}
	return nil
}

func watchKey(kind Kind, subjectID, targetID string) string {
	return util.Key(string(kind), subjectID, targetID)
}
