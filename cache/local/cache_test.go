package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestCache(t *testing.T) *LocalCache {
	c, err := NewCache(Config{GCInterval: time.Minute})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestGetSet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	err := c.Set(ctx, "key1", "value1", 0)
	require.NoError(t, err)

	v, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, "value1", v)
}

func TestGetMissing(t *testing.T) {
	c := newTestCache(t)
	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	err := c.Set(ctx, "ttl_key", "val", 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = c.Get(ctx, "ttl_key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDel(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	_ = c.Set(ctx, "k", "v", 0)
	_ = c.Del(ctx, "k")
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExists(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	_ = c.Set(ctx, "k", "v", 0)
	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSetNX(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "lock", "owner", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "lock", "other", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok) // already held
}

func TestZSet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.ZAdd(ctx, "z", 100, "alice"))
	require.NoError(t, c.ZAdd(ctx, "z", 200, "bob"))
	require.NoError(t, c.ZAdd(ctx, "z", 50, "carol"))

	members, err := c.ZRevRange(ctx, "z", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "alice", "carol"}, members)

	score, err := c.ZScore(ctx, "z", "alice")
	require.NoError(t, err)
	assert.Equal(t, float64(100), score)
}

func TestZRem(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.ZAdd(ctx, "z", 3, "a"))
	require.NoError(t, c.ZAdd(ctx, "z", 2, "b"))
	require.NoError(t, c.ZAdd(ctx, "z", 1, "c"))
	require.NoError(t, c.ZRem(ctx, "z", "b", "missing"))

	members, err := c.ZRevRange(ctx, "z", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, members)

	_, err = c.ZScore(ctx, "z", "b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDel_DropsZSet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.ZAdd(ctx, "z", 1, "a"))
	require.NoError(t, c.Del(ctx, "z"))

	members, err := c.ZRevRange(ctx, "z", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestZAdd_UpdatesScore(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.ZAdd(ctx, "z", 1, "a"))
	require.NoError(t, c.ZAdd(ctx, "z", 2, "b"))
	require.NoError(t, c.ZAdd(ctx, "z", 5, "a"))

	members, _ := c.ZRevRange(ctx, "z", 0, 0)
	assert.Equal(t, []string{"a"}, members)
}

func TestCompareAndDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "lock", "token-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Wrong owner cannot release.
	ok, err = c.CompareAndDelete(ctx, "lock", "token-2")
	require.NoError(t, err)
	assert.False(t, ok)
	exists, _ := c.Exists(ctx, "lock")
	assert.True(t, exists)

	ok, err = c.CompareAndDelete(ctx, "lock", "token-1")
	require.NoError(t, err)
	assert.True(t, ok)
	exists, _ = c.Exists(ctx, "lock")
	assert.False(t, exists)
}

func TestSetNX_AfterExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ok, _ := c.SetNX(ctx, "lock", "a", 10*time.Millisecond)
	require.True(t, ok)
	time.Sleep(20 * time.Millisecond)

	ok, err := c.SetNX(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	v, _ := c.Get(ctx, "lock")
	assert.Equal(t, "b", v)
}

func TestClose_StopsGC(t *testing.T) {
	defer goleak.VerifyNone(t)
	c, err := NewCache(Config{GCInterval: time.Millisecond})
	require.NoError(t, err)
	c.Close()
	c.Close()
}

func TestZRevRangeWithScores(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.ZAdd(ctx, "z", 4, "a"))
	require.NoError(t, c.ZAdd(ctx, "z", 9, "b"))
	require.NoError(t, c.ZAdd(ctx, "z", 4, "c"))

	members, scores, err := c.ZRevRangeWithScores(ctx, "z", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, members, "equal scores order by member descending")
	assert.Equal(t, []float64{9, 4}, scores)

	members, _, err = c.ZRevRangeWithScores(ctx, "z", 5, 10)
	require.NoError(t, err)
	assert.Empty(t, members)

	members, err = c.ZRevRange(ctx, "z", 1, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, members)
}
