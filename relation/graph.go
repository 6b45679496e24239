package relation

import (
	"context"
	"fmt"
)

// Kind names a relationship fact. Each kind has its own cache namespace.
type Kind string

const (
	Follow Kind = "follow"
	Block  Kind = "block"
	// ApprovedFollower is the private-feed approval fact: subject may decrypt
	// target's private posts.
	ApprovedFollower Kind = "approved-follower"
)

// Kinds lists every supported kind.
var Kinds = []Kind{Follow, Block, ApprovedFollower}

func (k Kind) Valid() bool {
	switch k {
	case Follow, Block, ApprovedFollower:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

func (k Kind) listNamespace() string { return string(k) + "-ids" }

// MutationResult is what the document store answers to a write.
// Success=false with an Error message is a refusal, not a transport failure.
type MutationResult struct {
	Success bool
	Error   string
}

// Graph is the document-store collaborator for relationship facts.
// Implementations must be safe for concurrent use.
type Graph interface {
	IsRelated(ctx context.Context, subjectID, targetID string, kind Kind) (bool, error)
	SetRelated(ctx context.Context, subjectID, targetID string, kind Kind, desired bool) (MutationResult, error)
	ListRelatedIDs(ctx context.Context, subjectID string, kind Kind) ([]string, error)
}

// Notifier surfaces recoverable errors to the user (toast-equivalent).
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// Notice is one user-facing message about a failed toggle.
type Notice struct {
	Kind      Kind
	Subject   string
	Target    string
	Desired   bool
	Message   string
	Err       error
	Retryable bool
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notice) {}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

func (f NotifierFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

func noticeMessage(kind Kind, desired bool) string {
	verb := map[Kind][2]string{
		Follow:           {"unfollow", "follow"},
		Block:            {"unblock", "block"},
		ApprovedFollower: {"revoke approval for", "approve"},
	}[kind]
	i := 0
	if desired {
		i = 1
	}
	return fmt.Sprintf("could not %s this user; please try again", verb[i])
}
