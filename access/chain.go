package access

import (
	"context"
	"fmt"
)

// DefaultMaxDepth bounds how far ChainWalker follows reply parents.
const DefaultMaxDepth = 32

// PostSource loads one post. (nil, nil) means not found.
type PostSource interface {
	Post(ctx context.Context, id string) (*Post, error)
}

// ChainWalker is a RootResolver that follows ReplyToID to the top of the
// thread. The author of the topmost private post is the encryption root.
type ChainWalker struct {
	Posts    PostSource
	MaxDepth int // 0 => DefaultMaxDepth
}

func (w ChainWalker) ResolveEncryptionRoot(ctx context.Context, postID string) (*Root, error) {
	limit := w.MaxDepth
	if limit <= 0 {
		limit = DefaultMaxDepth
	}
	seen := make(map[string]struct{}, 8)
	var owner string
	for cur := postID; cur != ""; {
		if _, dup := seen[cur]; dup {
			return nil, fmt.Errorf("%w: cycle at %q", ErrInvalidChain, cur)
		}
		if len(seen) >= limit {
			return nil, fmt.Errorf("%w: deeper than %d", ErrInvalidChain, limit)
		}
		seen[cur] = struct{}{}

		p, err := w.Posts.Post(ctx, cur)
		if err != nil {
			return nil, err
		}
		if p == nil {
			// a missing ancestor hides who sits on top
			return nil, nil
		}
		if p.Private {
			owner = p.AuthorID
		}
		cur = p.ReplyToID
	}
	if owner == "" {
		return nil, nil
	}
	return &Root{OwnerID: owner}, nil
}
