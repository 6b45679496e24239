package genstore

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// LocalGenStore keeps generations in-process.
//
// A key's generation is its own counter plus a store-wide epoch. BumpAll only
// advances the epoch, so it is O(1) and also moves keys that have no counter
// yet: a fill that started before Clear can never land after it.
type LocalGenStore struct {
	mu    sync.RWMutex
	keys  map[string]keyGen
	epoch atomic.Uint64
	now   func() time.Time

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type keyGen struct {
	n       uint64
	touched time.Time
}

var _ GenStore = (*LocalGenStore)(nil)

type LocalOption func(*LocalGenStore)

// WithClock replaces time.Now for idle tracking.
func WithClock(now func() time.Time) LocalOption {
	return func(s *LocalGenStore) { s.now = now }
}

// NewLocalGenStore returns a store that prunes keys idle for longer than
// retention every sweep. Zero sweep or retention disables the loop.
func NewLocalGenStore(sweep, retention time.Duration, opts ...LocalOption) *LocalGenStore {
	s := &LocalGenStore{keys: make(map[string]keyGen), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if sweep > 0 && retention > 0 {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.sweep(sweep, retention)
	}
	return s
}

func (s *LocalGenStore) sweep(every, retention time.Duration) {
	defer close(s.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Prune(retention)
		case <-s.stop:
			return
		}
	}
}

func (s *LocalGenStore) Snapshot(_ context.Context, k string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[k].n + s.epoch.Load(), nil
}

func (s *LocalGenStore) Bump(_ context.Context, k string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.keys[k]
	e.n++
	e.touched = s.now()
	s.keys[k] = e
	return e.n + s.epoch.Load(), nil
}

func (s *LocalGenStore) BumpAll(_ context.Context) error {
	s.mu.Lock()
	s.epoch.Inc()
	s.mu.Unlock()
	return nil
}

// Prune drops counters not bumped within retention. A pruned key falls back
// to the epoch alone, so retention must stay well above the longest
// outstanding mutation or a rollback could match a recycled generation.
func (s *LocalGenStore) Prune(retention time.Duration) int {
	if retention <= 0 {
		return 0
	}
	cutoff := s.now().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.keys {
		if e.touched.Before(cutoff) {
			delete(s.keys, k)
			n++
		}
	}
	return n
}

// Len reports how many keys carry their own counter.
func (s *LocalGenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

func (s *LocalGenStore) Close(_ context.Context) error {
	s.closeOnce.Do(func() {
		if s.stop != nil {
			close(s.stop)
			<-s.done
		}
	})
	return nil
}
