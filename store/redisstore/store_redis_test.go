package redisstore

import (
	"context"
	"fmt"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/relstate/access"
	"github.com/unkn0wn-root/relstate/relation"
)

// dialTest connects to RELSTATE_REDIS_ADDR (DB 15) or skips.
func dialTest(t *testing.T) (*Store, string) {
	t.Helper()
	addr := os.Getenv("RELSTATE_REDIS_ADDR")
	if addr == "" {
		t.Skip("RELSTATE_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := Dial(ctx, addr, os.Getenv("RELSTATE_REDIS_PASSWORD"), 15)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	// ids unique per run so parallel runs do not share sets
	return s, fmt.Sprintf("t%d", time.Now().UnixNano())
}

func TestRedisRelations(t *testing.T) {
	s, run := dialTest(t)
	ctx := context.Background()
	a, b, c := run+":a", run+":b", run+":c"
	t.Cleanup(func() {
		for _, k := range relation.Kinds {
			_ = s.rdb.Del(context.Background(), relKey(k, a)).Err()
		}
	})

	ok, err := s.IsRelated(ctx, a, b, relation.Follow)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, target := range []string{b, c} {
		res, err := s.SetRelated(ctx, a, target, relation.Follow, true)
		require.NoError(t, err)
		assert.True(t, res.Success)
	}
	// adding twice is fine
	res, err := s.SetRelated(ctx, a, b, relation.Follow, true)
	require.NoError(t, err)
	assert.True(t, res.Success)

	ok, err = s.IsRelated(ctx, a, b, relation.Follow)
	require.NoError(t, err)
	assert.True(t, ok)
	// kinds do not share sets
	ok, err = s.IsRelated(ctx, a, b, relation.Block)
	require.NoError(t, err)
	assert.False(t, ok)

	ids, err := s.ListRelatedIDs(ctx, a, relation.Follow)
	require.NoError(t, err)
	sort.Strings(ids)
	assert.Equal(t, []string{b, c}, ids)

	_, err = s.SetRelated(ctx, a, b, relation.Follow, false)
	require.NoError(t, err)
	ids, err = s.ListRelatedIDs(ctx, a, relation.Follow)
	require.NoError(t, err)
	assert.Equal(t, []string{c}, ids)
}

func TestRedisBanners(t *testing.T) {
	s, run := dialTest(t)
	ctx := context.Background()
	owner := run + ":u"
	t.Cleanup(func() { _ = s.SetResourceURL(context.Background(), owner, "") })

	uri, err := s.ResourceURL(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, uri)

	require.NoError(t, s.SetResourceURL(ctx, owner, "ipfs://cid"))
	uri, err = s.ResourceURL(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://cid", uri)

	require.NoError(t, s.SetResourceURL(ctx, owner, ""))
	uri, err = s.ResourceURL(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, uri)
}

func TestRedisPostsFeedChainWalk(t *testing.T) {
	s, run := dialTest(t)
	ctx := context.Background()
	p1 := access.Post{ID: run + ":P1", AuthorID: "U", Private: true}
	p2 := access.Post{ID: run + ":P2", AuthorID: "X", ReplyToID: p1.ID, Private: true}
	t.Cleanup(func() { _ = s.rdb.Del(context.Background(), postKey(p1.ID), postKey(p2.ID)).Err() })

	require.NoError(t, s.PutPost(ctx, p1))
	require.NoError(t, s.PutPost(ctx, p2))

	got, err := s.Post(ctx, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, &p2, got)

	missing, err := s.Post(ctx, run+":nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	root, err := access.ChainWalker{Posts: s}.ResolveEncryptionRoot(ctx, p2.ID)
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.Equal(t, "U", root.OwnerID)
}
