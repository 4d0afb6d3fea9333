package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCache_LocalWhenNoRedis(t *testing.T) {
	cfg := CacheConfig{}
	assert.False(t, cfg.IsDistributed())

	c, err := NewCache(cfg)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestLocalPubSubAdapter_Delivers(t *testing.T) {
	ps, err := NewPubSub(CacheConfig{LocalPubSubBuf: 4})
	require.NoError(t, err)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "progress:7")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "progress:7", `{"type":"like"}`))
	select {
	case msg := <-ch:
		assert.Equal(t, "progress:7", msg.Channel)
		assert.Equal(t, `{"type":"like"}`, msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("no message")
	}
}

func TestLocalPubSubAdapter_CancelClosesRelay(t *testing.T) {
	ps, err := NewPubSub(CacheConfig{})
	require.NoError(t, err)

	ch, cancel, err := ps.Subscribe(context.Background(), "announce")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("relay channel not closed")
	}
}
