package relation

import "sync"

// EdgeState is what watchers receive: the edge value the cache now holds and
// whether a mutation on the edge is still outstanding.
type EdgeState struct {
	Value    bool
	Toggling bool
}

// watchers fans edge state changes out to subscribed views.
type watchers struct {
	mu   sync.RWMutex
	next uint64
	subs map[string]map[uint64]func(EdgeState)
}

func newWatchers() *watchers {
	return &watchers{subs: make(map[string]map[uint64]func(EdgeState))}
}

func (w *watchers) add(key string, fn func(EdgeState)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.next++
	id := w.next
	m, ok := w.subs[key]
	if !ok {
		m = make(map[uint64]func(EdgeState))
		w.subs[key] = m
	}
	m[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			delete(w.subs[key], id)
			if len(w.subs[key]) == 0 {
				delete(w.subs, key)
			}
		})
	}
}

// publish calls subscribers outside the lock so they may cancel themselves.
func (w *watchers) publish(key string, v EdgeState) {
	w.mu.RLock()
	fns := make([]func(EdgeState), 0, len(w.subs[key]))
	for _, fn := range w.subs[key] {
		fns = append(fns, fn)
	}
	w.mu.RUnlock()
	for _, fn := range fns {
		fn(v)
	}
}
