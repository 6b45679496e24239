package access

import (
	"context"
	"sync"

	"go.uber.org/atomic"
)

// State is the tracker's lifecycle: loading until a decision for the current
// post is committed.
type State int

const (
	Loading State = iota
	Resolved
)

func (s State) String() string {
	if s == Resolved {
		return "resolved"
	}
	return "loading"
}

// Snapshot is what a view renders.
type Snapshot struct {
	State    State
	PostID   string
	Decision Decision // zero while Loading
	Err      error
}

// Decider is implemented by *Resolver.
type Decider interface {
	ResolveDecision(ctx context.Context, viewerID string, post Post, rootHint string) (Decision, error)
}

// Tracker holds the decision for the post a view currently shows.
//
// Every Update starts a new generation. A completion is committed only if its
// generation is still current and its ctx was not cancelled, so a slow answer
// for a previous post never overwrites the answer for the current one.
type Tracker struct {
	dec      Decider
	viewerID string
	onChange func(Snapshot)

	gen  atomic.Uint64
	mu   sync.Mutex
	snap Snapshot

	// held across commit and onChange so views see transitions in order
	deliver sync.Mutex
}

// NewTracker returns a tracker in Loading. onChange may be nil; it is called
// after every committed transition, one call at a time and in commit order.
// onChange may call Snapshot but must not call Update or Reset.
func NewTracker(d Decider, viewerID string, onChange func(Snapshot)) *Tracker {
	return &Tracker{dec: d, viewerID: viewerID, onChange: onChange}
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Update moves to Loading for post and resolves it. A nil post (not loaded
// yet) stays Loading with no work. The returned bool reports whether the
// result was committed.
func (t *Tracker) Update(ctx context.Context, post *Post, rootHint string) (Snapshot, bool) {
	g := t.gen.Inc()
	loading := Snapshot{State: Loading}
	if post != nil {
		loading.PostID = post.ID
	}
	t.commit(g, loading)
	if post == nil {
		return loading, true
	}

	d, err := t.dec.ResolveDecision(ctx, t.viewerID, *post, rootHint)
	if ctx.Err() != nil {
		return t.Snapshot(), false
	}
	res := Snapshot{State: Resolved, PostID: post.ID, Decision: d, Err: err}
	if !t.commit(g, res) {
		return t.Snapshot(), false
	}
	return res, true
}

// Reset abandons any outstanding resolution and returns to Loading.
func (t *Tracker) Reset() {
	t.commit(t.gen.Inc(), Snapshot{State: Loading})
}

func (t *Tracker) commit(g uint64, s Snapshot) bool {
	t.deliver.Lock()
	defer t.deliver.Unlock()

	t.mu.Lock()
	if t.gen.Load() != g {
		t.mu.Unlock()
		return false
	}
	t.snap = s
	t.mu.Unlock()
	if t.onChange != nil {
		t.onChange(s)
	}
	return true
}
