package ttlcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unkn0wn-root/relstate/internal/wire"
	"github.com/unkn0wn-root/relstate/provider/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type countHooks struct {
	selfHeal atomic.Int32
	failed   atomic.Int32
	shared   atomic.Int32
}

func (h *countHooks) SelfHeal(string, string)      { h.selfHeal.Add(1) }
func (h *countHooks) ProviderSetRejected(string)   {}
func (h *countHooks) FetchFailed(string, error)    { h.failed.Add(1) }
func (h *countHooks) FetchShared(string)           { h.shared.Add(1) }
func (h *countHooks) MutationFailed(string, error) {}
func (h *countHooks) RollbackApplied(string)       {}
func (h *countHooks) RollbackSkipped(string)       {}

func newTestCache[V any](t *testing.T, optsOpt func(*Options[V])) (*Cache[V], *memory.Provider) {
	t.Helper()
	mp := memory.New()
	opts := Options[V]{
		Namespace: "follow",
		TTL:       120 * time.Second,
		Provider:  mp,
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	cc, err := New[V](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(context.Background()) })
	return cc, mp
}

func TestNewRequiresNamespace(t *testing.T) {
	if _, err := New[bool](Options[bool]{}); err == nil {
		t.Fatalf("expected error without namespace")
	}
}

// TestTTLBoundary: fresh at t0+TTL-1s, stale at t0+TTL+1s.
func TestTTLBoundary(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cc, _ := newTestCache[bool](t, func(o *Options[bool]) { o.Now = clk.Now })

	if _, err := cc.Set(ctx, "a:b", true); err != nil {
		t.Fatalf("Set: %v", err)
	}

	clk.Advance(cc.TTL() - time.Second)
	if v, ok, err := cc.Get(ctx, "a:b"); err != nil || !ok || !v {
		t.Fatalf("expected fresh at TTL-1s, ok=%v v=%v err=%v", ok, v, err)
	}

	clk.Advance(2 * time.Second)
	if _, ok, err := cc.Get(ctx, "a:b"); err != nil || ok {
		t.Fatalf("expected stale at TTL+1s, ok=%v err=%v", ok, err)
	}

	// stale entries are kept, only treated as invalid
	e, ok, err := cc.Peek(ctx, "a:b")
	if err != nil || !ok || !e.Value {
		t.Fatalf("Peek should still see stale entry, ok=%v err=%v", ok, err)
	}
}

// TestSetWithGenFlow verifies CAS write, invalidation, and stale write skip.
func TestSetWithGenFlow(t *testing.T) {
	ctx := context.Background()
	cc, _ := newTestCache[bool](t, nil)

	k := "u1:u2"

	obs := cc.SnapshotGen(ctx, k)
	if obs != 0 {
		t.Fatalf("SnapshotGen expected 0, got %d", obs)
	}
	if applied, err := cc.SetWithGen(ctx, k, true, obs); err != nil || !applied {
		t.Fatalf("SetWithGen: applied=%v err=%v", applied, err)
	}
	if v, ok, _ := cc.Get(ctx, k); !ok || !v {
		t.Fatalf("Get after SetWithGen: ok=%v v=%v", ok, v)
	}

	// Unconditional Set moves the generation.
	g, err := cc.Set(ctx, k, false)
	if err != nil || g != 1 {
		t.Fatalf("Set: gen=%d err=%v", g, err)
	}

	// Write observed before the Set must be skipped.
	if applied, _ := cc.SetWithGen(ctx, k, true, obs); applied {
		t.Fatalf("stale SetWithGen should not apply")
	}
	if v, _, _ := cc.Get(ctx, k); v {
		t.Fatalf("stale write overwrote newer value")
	}

	if err := cc.Invalidate(ctx, k); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok, _ := cc.Get(ctx, k); ok {
		t.Fatalf("Get after invalidate should miss")
	}
	if applied, _ := cc.SetWithGen(ctx, k, true, g); applied {
		t.Fatalf("write with pre-invalidate gen should be skipped")
	}
}

// TestSelfHealOnCorrupt ensures foreign provider bytes are deleted and missed,
// and that a valid-but-stale-generation entry is rejected and removed.
func TestSelfHealOnCorrupt(t *testing.T) {
	ctx := context.Background()
	h := &countHooks{}
	cc, mp := newTestCache[bool](t, func(o *Options[bool]) { o.Hooks = h })

	k := "bad"
	storageKey := cc.storageKey(k)

	if ok, err := mp.Set(ctx, storageKey, []byte("not-wire-format"), 1, 0); err != nil || !ok {
		t.Fatalf("inject corrupt: ok=%v err=%v", ok, err)
	}
	if _, ok, err := cc.Get(ctx, k); err != nil || ok {
		t.Fatalf("Get on corrupt should miss, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := mp.Get(ctx, storageKey); ok {
		t.Fatalf("corrupt entry was not deleted by self-heal")
	}

	// A framed entry whose gen is behind the store.
	raw := wire.Encode(wire.Entry{Gen: 0, FetchedAt: time.Now(), Payload: []byte("true")})
	_, _ = mp.Set(ctx, storageKey, raw, 1, 0)
	_, _ = cc.gen.Bump(ctx, storageKey)

	if _, ok, err := cc.Get(ctx, k); err != nil || ok {
		t.Fatalf("Get on gen-mismatched entry should miss, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := mp.Get(ctx, storageKey); ok {
		t.Fatalf("gen-mismatched entry was not deleted by self-heal")
	}

	// A framed entry whose payload is not a bool.
	g := cc.SnapshotGen(ctx, k)
	raw = wire.Encode(wire.Entry{Gen: g, FetchedAt: time.Now(), Payload: []byte(`"nope"`)})
	_, _ = mp.Set(ctx, storageKey, raw, 1, 0)
	if _, ok, _ := cc.Get(ctx, k); ok {
		t.Fatalf("Get on undecodable payload should miss")
	}

	if h.selfHeal.Load() != 3 {
		t.Fatalf("SelfHeal hook calls=%d want 3", h.selfHeal.Load())
	}
}

// TestFetchCoalescesBurst: N concurrent misses run the producer exactly once.
func TestFetchCoalescesBurst(t *testing.T) {
	ctx := context.Background()
	cc, _ := newTestCache[bool](t, nil)

	var calls atomic.Int32
	release := make(chan struct{})
	producer := func(context.Context) (bool, error) {
		calls.Add(1)
		<-release
		return true, nil
	}

	const n = 32
	var wg sync.WaitGroup
	results := make([]bool, n)
	errs := make([]error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cc.Fetch(ctx, "a:b", producer)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("producer calls=%d want 1", calls.Load())
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil || !results[i] {
			t.Fatalf("caller %d: v=%v err=%v", i, results[i], errs[i])
		}
	}

	// cached now: no more producer calls
	if _, err := cc.Fetch(ctx, "a:b", producer); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Fatalf("cache hit still called producer")
	}
}

// TestFetchErrorReachesAllAndIsNotCached.
func TestFetchErrorReachesAllAndIsNotCached(t *testing.T) {
	ctx := context.Background()
	h := &countHooks{}
	cc, mp := newTestCache[bool](t, func(o *Options[bool]) { o.Hooks = h })

	boom := errors.New("ledger unavailable")
	release := make(chan struct{})
	var calls atomic.Int32
	producer := func(context.Context) (bool, error) {
		calls.Add(1)
		<-release
		return false, boom
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cc.Fetch(ctx, "a:b", producer)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, boom) {
			t.Fatalf("caller %d: expected boom, got %v", i, err)
		}
	}
	if mp.Len() != 0 {
		t.Fatalf("failed fetch poisoned the cache (%d keys)", mp.Len())
	}
	if h.failed.Load() != calls.Load() {
		t.Fatalf("FetchFailed=%d producer calls=%d", h.failed.Load(), calls.Load())
	}

	before := calls.Load()
	_, _ = cc.Fetch(ctx, "a:b", producer)
	if calls.Load() != before+1 {
		t.Fatalf("next Fetch after failure should retry the producer")
	}
}

// TestFetchDoesNotClobberOptimisticSet: a Set that lands during a fetch wins.
func TestFetchDoesNotClobberOptimisticSet(t *testing.T) {
	ctx := context.Background()
	cc, _ := newTestCache[bool](t, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan bool)
	go func() {
		v, _ := cc.Fetch(ctx, "a:b", func(context.Context) (bool, error) {
			close(started)
			<-release
			return false, nil
		})
		done <- v
	}()

	<-started
	if _, err := cc.Set(ctx, "a:b", true); err != nil {
		t.Fatal(err)
	}
	close(release)
	if fetched := <-done; fetched {
		t.Fatalf("fetch caller should see the fetched value")
	}

	if v, ok, _ := cc.Get(ctx, "a:b"); !ok || !v {
		t.Fatalf("optimistic value was overwritten by stale fill: ok=%v v=%v", ok, v)
	}
}

func TestInvalidateDropsInflightFill(t *testing.T) {
	ctx := context.Background()
	cc, _ := newTestCache[bool](t, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = cc.Fetch(ctx, "a:b", func(context.Context) (bool, error) {
			close(started)
			<-release
			return true, nil
		})
	}()
	<-started
	if err := cc.Invalidate(ctx, "a:b"); err != nil {
		t.Fatal(err)
	}
	close(release)
	<-done

	if _, ok, _ := cc.Get(ctx, "a:b"); ok {
		t.Fatalf("fill that started before Invalidate should be dropped")
	}
}

func TestRefreshBypassesFreshValue(t *testing.T) {
	ctx := context.Background()
	cc, _ := newTestCache[bool](t, nil)

	_, _ = cc.Set(ctx, "a:b", true)
	v, err := cc.Refresh(ctx, "a:b", func(context.Context) (bool, error) { return false, nil })
	if err != nil || v {
		t.Fatalf("Refresh: v=%v err=%v", v, err)
	}
	if got, _, _ := cc.Get(ctx, "a:b"); got {
		t.Fatalf("Refresh result not stored")
	}
}

func TestWaiterCancelDoesNotCancelFlight(t *testing.T) {
	cc, _ := newTestCache[bool](t, nil)

	release := make(chan struct{})
	var sawCancel atomic.Bool
	producer := func(fctx context.Context) (bool, error) {
		<-release
		if fctx.Err() != nil {
			sawCancel.Store(true)
		}
		return true, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error)
	go func() {
		_, err := cc.Fetch(ctx, "a:b", producer)
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("waiter should see its own cancellation, got %v", err)
	}

	// a second caller joins the still-running flight
	resc := make(chan bool)
	go func() {
		v, _ := cc.Fetch(context.Background(), "a:b", producer)
		resc <- v
	}()
	time.Sleep(10 * time.Millisecond)
	close(release)
	if v := <-resc; !v {
		t.Fatalf("second caller got %v", v)
	}
	if sawCancel.Load() {
		t.Fatalf("flight context was cancelled by a waiter")
	}
}

func TestClearDropsEntriesAndMovesGens(t *testing.T) {
	ctx := context.Background()
	cc, mp := newTestCache[bool](t, nil)

	g, _ := cc.Set(ctx, "a:b", true)
	_, _ = cc.Set(ctx, "c:d", true)
	if err := cc.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if mp.Len() != 0 {
		t.Fatalf("Clear left %d keys", mp.Len())
	}
	if applied, _ := cc.SetWithGen(ctx, "a:b", false, g); applied {
		t.Fatalf("rollback captured before Clear must not apply")
	}
}

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	cc, _ := newTestCache[bool](t, func(o *Options[bool]) { o.Disabled = true })

	_, _ = cc.Set(ctx, "a:b", true)
	if _, ok, _ := cc.Get(ctx, "a:b"); ok {
		t.Fatalf("disabled cache returned a hit")
	}
	var calls int
	for i := 0; i < 2; i++ {
		_, _ = cc.Fetch(ctx, "a:b", func(context.Context) (bool, error) { calls++; return true, nil })
	}
	if calls != 2 {
		t.Fatalf("disabled cache should fetch every time, calls=%d", calls)
	}
}
