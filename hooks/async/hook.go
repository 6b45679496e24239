// Package asynchook moves hook delivery off the caller's goroutine.
// Events are dropped when the queue is full; hooks are signals, not a log of record.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	rel, _ := relation.New(relation.Options{Graph: graph, Hooks: hooks})
package asynchook

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/unkn0wn-root/relstate"
)

type Hooks struct {
	inner   relstate.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ relstate.Hooks = (*Hooks)(nil)

func New(inner relstate.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Inc()
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Inc()
	}
}

func (h *Hooks) SelfHeal(k, r string)               { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) ProviderSetRejected(k string)       { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) FetchFailed(k string, err error)    { h.try(func() { h.inner.FetchFailed(k, err) }) }
func (h *Hooks) FetchShared(k string)               { h.try(func() { h.inner.FetchShared(k) }) }
func (h *Hooks) MutationFailed(k string, err error) { h.try(func() { h.inner.MutationFailed(k, err) }) }
func (h *Hooks) RollbackApplied(k string)           { h.try(func() { h.inner.RollbackApplied(k) }) }
func (h *Hooks) RollbackSkipped(k string)           { h.try(func() { h.inner.RollbackSkipped(k) }) }
