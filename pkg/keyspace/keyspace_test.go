package keyspace

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, poolSize int) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := Connect(context.Background(), "redis://"+mr.Addr(), poolSize, slog.Default())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestConnectFailsFast(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Connect(context.Background(), "redis://"+addr, 3, slog.Default())
	require.Error(t, err)
}

func TestRoundRobinSelection(t *testing.T) {
	c := testClient(t, 3)

	first := c.next()
	second := c.next()
	third := c.next()
	fourth := c.next()

	assert.NotSame(t, first, second)
	assert.NotSame(t, second, third)
	assert.Same(t, first, fourth, "selection wraps around the pool")
}

func TestGetSetWithTTL(t *testing.T) {
	c := testClient(t, 2)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", "v", 30*time.Second))
	val, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", val)
}

func TestIncrAndSum(t *testing.T) {
	c := testClient(t, 2)
	ctx := context.Background()

	require.NoError(t, c.IncrAndSum(ctx, "data_count", "data_sum", 10.5))
	require.NoError(t, c.IncrAndSum(ctx, "data_count", "data_sum", 2.25))

	count, ok, err := c.Get(ctx, "data_count")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", count)

	sum, ok, err := c.Get(ctx, "data_sum")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "12.75", sum)
}

func TestPublishSubscribe(t *testing.T) {
	c := testClient(t, 2)
	ctx := context.Background()

	msgs := c.Subscribe(ctx, "data:events")
	require.NoError(t, c.Publish(ctx, "data:events", []byte(`{"event":"x"}`)))

	select {
	case msg := <-msgs:
		assert.Equal(t, "data:events", msg.Channel)
		assert.Equal(t, `{"event":"x"}`, msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive the published message")
	}
}
