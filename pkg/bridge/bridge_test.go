package bridge

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest-pipeline/pkg/keyspace"
)

type captureSink struct {
	mu     sync.Mutex
	events []any
}

func (s *captureSink) Broadcast(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, v)
}

func (s *captureSink) snapshot() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any{}, s.events...)
}

func bridgePair(t *testing.T) (*Publisher, *Subscriber, *keyspace.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	keys, err := keyspace.Connect(context.Background(), "redis://"+mr.Addr(), 2, slog.Default())
	require.NoError(t, err)
	t.Cleanup(keys.Close)
	return NewPublisher(keys, slog.Default()), NewSubscriber(keys, slog.Default()), keys
}

func TestPublishReachesSubscriber(t *testing.T) {
	pub, sub, _ := bridgePair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &captureSink{}
	go sub.Run(ctx, sink)
	time.Sleep(50 * time.Millisecond) // let the subscription register

	require.NoError(t, pub.Publish(ctx, "data:processed", map[string]any{"id": "r1"}))

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	ev, isEvent := sink.snapshot()[0].(Event)
	require.True(t, isEvent)
	assert.Equal(t, "data:processed", ev.Event)
	assert.NotZero(t, ev.Timestamp)
}

func TestUndecodableMessageForwardedRaw(t *testing.T) {
	_, sub, keys := bridgePair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &captureSink{}
	go sub.Run(ctx, sink)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, keys.Publish(ctx, Channel, []byte("not json at all")))

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	ev, isEvent := sink.snapshot()[0].(Event)
	require.True(t, isEvent)
	assert.Equal(t, "raw", ev.Event)
	assert.Equal(t, "not json at all", ev.Payload)
}

func TestPublishWithoutSubscriberIsLost(t *testing.T) {
	pub, sub, _ := bridgePair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Nothing listening yet: fire-and-forget, no error, no delivery.
	require.NoError(t, pub.Publish(ctx, "data:processed", map[string]any{"id": "lost"}))

	sink := &captureSink{}
	go sub.Run(ctx, sink)
	time.Sleep(100 * time.Millisecond)

	assert.Empty(t, sink.snapshot())
}
