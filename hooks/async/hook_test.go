package asynchook

import (
	"sync"
	"testing"

	"github.com/unkn0wn-root/relstate"
)

type recorder struct {
	relstate.NopHooks
	mu   sync.Mutex
	keys []string
	gate chan struct{}
}

func (r *recorder) RollbackApplied(k string) {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	r.keys = append(r.keys, k)
	r.mu.Unlock()
}

func TestDeliversAndDrainsOnClose(t *testing.T) {
	rec := &recorder{}
	h := New(rec, 2, 16)
	for i := 0; i < 10; i++ {
		h.RollbackApplied("k")
	}
	h.Close()
	if len(rec.keys) != 10 {
		t.Fatalf("delivered %d; want 10", len(rec.keys))
	}
	h.RollbackApplied("late")
	if h.Dropped() != 1 {
		t.Fatalf("dropped=%d; want 1", h.Dropped())
	}
}

func TestDropsWhenFull(t *testing.T) {
	rec := &recorder{gate: make(chan struct{})}
	h := New(rec, 1, 1)
	for i := 0; i < 5; i++ {
		h.RollbackApplied("k")
	}
	close(rec.gate)
	h.Close()
	if h.Dropped() == 0 {
		t.Fatalf("expected drops with a full queue")
	}
	if got := uint64(len(rec.keys)) + h.Dropped(); got != 5 {
		t.Fatalf("delivered+dropped=%d; want 5", got)
	}
}
