// Package keyspace wraps a fixed pool of connections to the key-value store.
// Regular commands round-robin across the pool; publish and subscribe each
// hold a dedicated long-lived connection, because a subscribing connection
// cannot issue normal commands while it is blocked listening.
package keyspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	pool []*redis.Client
	idx  atomic.Uint64

	pub *redis.Client
	sub *redis.Client

	pubsubs []*redis.PubSub
	log     *slog.Logger
}

// Connect builds the pool plus the two dedicated pub/sub connections and
// pings every one of them. Any failure tears the whole thing down and is
// fatal to the caller: fail fast rather than run degraded.
func Connect(ctx context.Context, url string, poolSize int, log *slog.Logger) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse redis URL: %w", err)
	}

	c := &Client{log: log}
	for i := 0; i < poolSize; i++ {
		c.pool = append(c.pool, redis.NewClient(opts))
	}
	c.pub = redis.NewClient(opts)
	c.sub = redis.NewClient(opts)

	for i, conn := range append(append([]*redis.Client{}, c.pool...), c.pub, c.sub) {
		if err := conn.Ping(ctx).Err(); err != nil {
			c.Close()
			return nil, fmt.Errorf("key-space connection %d unreachable: %w", i, err)
		}
	}
	return c, nil
}

func (c *Client) next() *redis.Client {
	n := c.idx.Add(1)
	return c.pool[int(n-1)%len(c.pool)]
}

// Get returns the value and whether the key exists.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.next().Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		c.log.Error("key-space get failed", "key", key, "error", err)
		return "", false, err
	}
	return val, true, nil
}

func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.next().Set(ctx, key, value, ttl).Err(); err != nil {
		c.log.Error("key-space set failed", "key", key, "error", err)
		return err
	}
	return nil
}

// SetMarker writes an empty value whose only information is its presence and
// expiry.
func (c *Client) SetMarker(ctx context.Context, key string, ttl time.Duration) error {
	return c.Set(ctx, key, "1", ttl)
}

// IncrAndSum issues both counter updates in a single pipelined round trip.
// Each update is individually atomic on the store; the pair is not a
// transaction.
func (c *Client) IncrAndSum(ctx context.Context, countKey, sumKey string, value float64) error {
	_, err := c.next().Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, countKey)
		pipe.IncrByFloat(ctx, sumKey, value)
		return nil
	})
	if err != nil {
		c.log.Error("key-space counter update failed", "count_key", countKey, "sum_key", sumKey, "error", err)
	}
	return err
}

// Publish sends on the dedicated publisher connection.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.pub.Publish(ctx, channel, payload).Err()
}

// Subscribe listens on the dedicated subscriber connection. At most one
// subscription per process is expected.
func (c *Client) Subscribe(ctx context.Context, channel string) <-chan *redis.Message {
	ps := c.sub.Subscribe(ctx, channel)
	c.pubsubs = append(c.pubsubs, ps)
	return ps.Channel()
}

func (c *Client) Close() {
	for _, ps := range c.pubsubs {
		_ = ps.Close()
	}
	for _, conn := range c.pool {
		_ = conn.Close()
	}
	if c.pub != nil {
		_ = c.pub.Close()
	}
	if c.sub != nil {
		_ = c.sub.Close()
	}
}
