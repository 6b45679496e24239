package access

import (
	"context"
	"errors"
)

// Post is the minimal view of a post the resolver needs.
type Post struct {
	ID        string
	AuthorID  string
	ReplyToID string // "" for top-level posts
	Private   bool
}

// Decision is whether the viewer may reply. Reason is "" when allowed.
type Decision struct {
	CanReply  bool
	IsPrivate bool
	Reason    string
}

// Denial reasons.
const (
	ReasonUnauthenticated = "must authenticate"
	ReasonNotApproved     = "not an approved follower of this private feed"
	ReasonRootUnresolved  = "could not determine who encrypted this thread"
	ReasonCheckFailed     = "could not verify access; try again"
)

// ErrInvalidChain marks a reply chain that cannot be walked (cycle or too deep).
var ErrInvalidChain = errors.New("access: invalid reply chain")

// Root identifies the feed owner whose key encrypted a thread.
type Root struct {
	OwnerID string
}

// RootResolver finds the encryption root of a post.
// (nil, nil) means the root could not be resolved.
type RootResolver interface {
	ResolveEncryptionRoot(ctx context.Context, postID string) (*Root, error)
}

// Decrypter answers whether viewer may decrypt owner's private feed.
type Decrypter interface {
	CanDecrypt(ctx context.Context, viewerID, ownerID string) (bool, error)
}

func allow(private bool) Decision { return Decision{CanReply: true, IsPrivate: private} }

func deny(reason string) Decision { return Decision{IsPrivate: true, Reason: reason} }
