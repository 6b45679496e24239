// Package access decides, on the client, whether a viewer may reply to a
// possibly encrypted post.
//
// Resolution order is fixed:
//
//  1. not private              -> allow, no I/O
//  2. viewer unauthenticated   -> deny "must authenticate"
//  3. root owner: caller hint, else the author of a top-level post
//  4. viewer == root owner     -> allow, no I/O
//  5. no root yet (reply)      -> walk the chain via RootResolver (cached)
//  6. viewer == walked root    -> allow
//  7. Decrypter.CanDecrypt     -> allow or deny "not approved"
//
// The owner check always precedes the capability query. An unresolvable root
// is a denial with a reason, never an error; a failed or timed out lookup is a
// denial plus a *relstate.FetchError the caller may retry.
package access

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/relstate"
	"github.com/unkn0wn-root/relstate/internal/boundary"
	"github.com/unkn0wn-root/relstate/internal/util"
	"github.com/unkn0wn-root/relstate/ttlcache"
)

// DefaultRootTTL is how long a resolved encryption root stays fresh.
// Roots of existing threads do not change, so this is long.
const DefaultRootTTL = 10 * time.Minute

const rootNamespace = "root"

// errRootNotFound keeps unresolvable roots out of the cache.
var errRootNotFound = errors.New("access: encryption root not found")

type Options struct {
	// Required
	Roots     RootResolver
	Decrypter Decrypter

	RootTTL time.Duration // 0 => DefaultRootTTL

	// CallTimeout and CallAttempts bound RootResolver calls, and Decrypter calls
	// unless DecrypterBounded is set.
	CallTimeout  time.Duration
	CallAttempts uint

	// DecrypterBounded reports that Decrypter applies its own timeout and retry
	// (relation.Service does), so it is called directly instead of being
	// bounded a second time.
	DecrypterBounded bool

	Storage ttlcache.Storage
	Logger  relstate.Logger
	Hooks   relstate.Hooks
}

type Resolver struct {
	roots     RootResolver
	dec       Decrypter
	cache     *ttlcache.Cache[string]
	policy    boundary.Policy
	decPolicy boundary.Policy // zero when the decrypter bounds itself
	log       relstate.Logger
}

func New(opts Options) (*Resolver, error) {
	if opts.Roots == nil || opts.Decrypter == nil {
		return nil, errors.New("access: root resolver and decrypter are required")
	}
	log := relstate.Coalesce[relstate.Logger](opts.Logger, relstate.NopLogger{})
	st := opts.Storage
	st.Logger = relstate.Coalesce[relstate.Logger](st.Logger, log)
	st.Hooks = relstate.Coalesce[relstate.Hooks](st.Hooks, opts.Hooks)

	c, err := ttlcache.Build[string](st, rootNamespace, relstate.Coalesce[time.Duration](opts.RootTTL, DefaultRootTTL))
	if err != nil {
		return nil, err
	}
	r := &Resolver{
		roots:  opts.Roots,
		dec:    opts.Decrypter,
		cache:  c,
		policy: boundary.Policy{Timeout: opts.CallTimeout, Attempts: opts.CallAttempts},
		log:    log,
	}
	if !opts.DecrypterBounded {
		r.decPolicy = r.policy
	}
	return r, nil
}

// ResolveDecision decides whether viewerID may reply to post.
// rootHint is the encryption root owner when already known upstream ("" if not).
func (r *Resolver) ResolveDecision(ctx context.Context, viewerID string, post Post, rootHint string) (Decision, error) {
	if !post.Private {
		return allow(false), nil
	}
	if viewerID == "" {
		return deny(ReasonUnauthenticated), nil
	}

	root := rootHint
	if root == "" && post.ReplyToID == "" {
		root = post.AuthorID
	}
	if root != "" && root == viewerID {
		return allow(true), nil
	}

	if root == "" {
		if post.ID == "" {
			return deny(ReasonRootUnresolved), relstate.ErrMissingIdentity
		}
		owner, err := r.resolveRoot(ctx, post.ID)
		switch {
		case errors.Is(err, errRootNotFound), errors.Is(err, ErrInvalidChain):
			r.log.Debug("encryption root unresolved", relstate.Fields{"post": post.ID, "err": err})
			return deny(ReasonRootUnresolved), nil
		case err != nil:
			return deny(ReasonCheckFailed), r.fetchErr(ctx, "encryption-root", rootNamespace+":"+util.Join(post.ID), err)
		}
		root = owner
		if root == viewerID {
			return allow(true), nil
		}
	}

	ok, err := boundary.Do(ctx, r.decPolicy, func(cctx context.Context) (bool, error) {
		return r.dec.CanDecrypt(cctx, viewerID, root)
	})
	if err != nil {
		return deny(ReasonCheckFailed), r.fetchErr(ctx, "can-decrypt", util.Key("decrypt", viewerID, root), err)
	}
	if !ok {
		return deny(ReasonNotApproved), nil
	}
	return allow(true), nil
}

// InvalidateRoot drops the cached root of postID.
func (r *Resolver) InvalidateRoot(ctx context.Context, postID string) error {
	return r.cache.Invalidate(ctx, util.Join(postID))
}

// Clear drops every cached root.
func (r *Resolver) Clear(ctx context.Context) error { return r.cache.Clear(ctx) }

func (r *Resolver) Close(ctx context.Context) error { return r.cache.Close(ctx) }

func (r *Resolver) resolveRoot(ctx context.Context, postID string) (string, error) {
	return r.cache.Fetch(ctx, util.Join(postID), func(fctx context.Context) (string, error) {
		root, err := boundary.Do(fctx, r.policy, func(cctx context.Context) (*Root, error) {
			return r.roots.ResolveEncryptionRoot(cctx, postID)
		})
		if err != nil {
			return "", err
		}
		if root == nil || root.OwnerID == "" {
			return "", errRootNotFound
		}
		return root.OwnerID, nil
	})
}

func (r *Resolver) fetchErr(ctx context.Context, op, key string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	var fe *relstate.FetchError
	if errors.As(err, &fe) {
		return err
	}
	r.log.Warn("access check failed", relstate.Fields{"op": op, "key": key, "err": err})
	return &relstate.FetchError{Op: op, Key: key, Err: err}
}
