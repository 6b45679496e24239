// Package redisstore is a Redis-backed document store for integration
// environments. It implements relation.Graph, resource.Source and
// access.PostSource.
//
// Layout:
//
//	rel:<kind>:<subject>   SET of target ids
//	banners                HASH owner id -> resource uri
//	post:<id>              HASH author, reply_to, private
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/relstate/access"
	"github.com/unkn0wn-root/relstate/internal/util"
	"github.com/unkn0wn-root/relstate/relation"
	"github.com/unkn0wn-root/relstate/resource"
)

const bannersKey = "banners"

type Store struct {
	rdb redis.UniversalClient
}

var (
	_ relation.Graph    = (*Store)(nil)
	_ resource.Source   = (*Store)(nil)
	_ access.PostSource = (*Store)(nil)
)

func New(client redis.UniversalClient) *Store {
	return &Store{rdb: client}
}

// Dial connects to a single Redis node and pings it.
func Dial(ctx context.Context, addr, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redisstore: ping %s: %w", addr, err)
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) Close() error { return s.rdb.Close() }

func relKey(kind relation.Kind, subjectID string) string {
	return util.Key("rel", string(kind), subjectID)
}

func postKey(id string) string { return util.Key("post", id) }

func (s *Store) IsRelated(ctx context.Context, subjectID, targetID string, kind relation.Kind) (bool, error) {
	return s.rdb.SIsMember(ctx, relKey(kind, subjectID), targetID).Result()
}

// SetRelated is idempotent: adding an existing edge or removing a missing one succeeds.
func (s *Store) SetRelated(ctx context.Context, subjectID, targetID string, kind relation.Kind, desired bool) (relation.MutationResult, error) {
	var err error
	if desired {
		err = s.rdb.SAdd(ctx, relKey(kind, subjectID), targetID).Err()
	} else {
		err = s.rdb.SRem(ctx, relKey(kind, subjectID), targetID).Err()
	}
	if err != nil {
		return relation.MutationResult{}, err
	}
	return relation.MutationResult{Success: true}, nil
}

func (s *Store) ListRelatedIDs(ctx context.Context, subjectID string, kind relation.Kind) ([]string, error) {
	return s.rdb.SMembers(ctx, relKey(kind, subjectID)).Result()
}

// ResourceURL returns the owner's raw banner uri, "" if none.
func (s *Store) ResourceURL(ctx context.Context, ownerID string) (string, error) {
	uri, err := s.rdb.HGet(ctx, bannersKey, ownerID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return uri, err
}

// SetResourceURL stores (or with "" removes) the owner's banner uri.
func (s *Store) SetResourceURL(ctx context.Context, ownerID, uri string) error {
	if uri == "" {
		return s.rdb.HDel(ctx, bannersKey, ownerID).Err()
	}
	return s.rdb.HSet(ctx, bannersKey, ownerID, uri).Err()
}

// Post loads a post; (nil, nil) if it does not exist.
func (s *Store) Post(ctx context.Context, id string) (*access.Post, error) {
	m, err := s.rdb.HGetAll(ctx, postKey(id)).Result()
	if err != nil {
		return nil, err
	}
	return decodePost(id, m)
}

func (s *Store) PutPost(ctx context.Context, p access.Post) error {
	return s.rdb.HSet(ctx, postKey(p.ID),
		"author", p.AuthorID,
		"reply_to", p.ReplyToID,
		"private", strconv.FormatBool(p.Private),
	).Err()
}

func decodePost(id string, m map[string]string) (*access.Post, error) {
	if len(m) == 0 {
		return nil, nil
	}
	p := &access.Post{ID: id, AuthorID: m["author"], ReplyToID: m["reply_to"]}
	if v, ok := m["private"]; ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("redisstore: post %q private flag: %w", id, err)
		}
		p.Private = b
	}
	return p, nil
}
