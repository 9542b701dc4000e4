// Package cache is the read-side caching layer for order queries: eagerly
// materialized hot listing pages plus lazily filled single-entity, search and
// stats entries. Eviction is TTL-only; callers accept staleness bounded by
// the TTL window.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"ingest-pipeline/pkg/observability"
	"ingest-pipeline/pkg/order"
)

const prefix = "orders"

type OrderSource interface {
	FindPage(ctx context.Context, skip, take int) ([]order.Order, int, error)
	FindByID(ctx context.Context, id string) (*order.Order, error)
	Search(ctx context.Context, q string, skip, take int) ([]order.Order, int, error)
	AggregateStats(ctx context.Context) (*order.Stats, error)
}

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type OrderCache struct {
	store    Store
	source   OrderSource
	ttl      time.Duration
	hotPages int
	pageSize int
	log      *slog.Logger
}

func New(store Store, source OrderSource, ttl time.Duration, hotPages, pageSize int, log *slog.Logger) *OrderCache {
	return &OrderCache{store: store, source: source, ttl: ttl, hotPages: hotPages, pageSize: pageSize, log: log}
}

// Preload materializes the first hotPages full listing pages. Failures are
// logged and skipped; the cache is an optimization, not a dependency.
func (c *OrderCache) Preload(ctx context.Context) {
	for page := 1; page <= c.hotPages; page++ {
		skip := (page - 1) * c.pageSize
		data, total, err := c.source.FindPage(ctx, skip, c.pageSize)
		if err != nil {
			c.log.Error("failed to preload page", "page", page, "error", err)
			continue
		}
		c.put(ctx, pageKey(page), order.Page{Data: data, Total: total, Page: page, Limit: c.pageSize})
	}
	c.log.Info("order cache preloaded", "hot_pages", c.hotPages)
}

// GetPage serves a listing page, cache-first. A hit whose cached payload
// holds more rows than requested is sliced down without a new query.
//
// Hot pages share one key per page number, so a miss there always fills the
// whole page; caching only the requested slice would let a small-limit
// request truncate what every later request sees. Cold pages key by
// page and limit, so each entry holds exactly what was asked for.
func (c *OrderCache) GetPage(ctx context.Context, page, limit int) (*order.Page, bool, error) {
	if page <= c.hotPages {
		return c.getHotPage(ctx, page, limit)
	}

	key := fmt.Sprintf("%s:page:%d:limit:%d", prefix, page, limit)
	if p, ok := c.lookupPage(ctx, key); ok {
		return p, true, nil
	}
	data, total, err := c.source.FindPage(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, false, err
	}
	p := order.Page{Data: data, Total: total, Page: page, Limit: limit}
	c.put(ctx, key, p)
	return &p, false, nil
}

func (c *OrderCache) getHotPage(ctx context.Context, page, limit int) (*order.Page, bool, error) {
	key := pageKey(page)
	if p, ok := c.lookupPage(ctx, key); ok {
		if len(p.Data) > limit {
			p.Data = p.Data[:limit]
		}
		p.Limit = limit
		return p, true, nil
	}

	data, total, err := c.source.FindPage(ctx, (page-1)*c.pageSize, c.pageSize)
	if err != nil {
		return nil, false, err
	}
	c.put(ctx, key, order.Page{Data: data, Total: total, Page: page, Limit: c.pageSize})

	if len(data) > limit {
		data = data[:limit]
	}
	return &order.Page{Data: data, Total: total, Page: page, Limit: limit}, false, nil
}

// GetByID serves one order, cache-first. A not-found result is never cached;
// misses always fall through to the store.
func (c *OrderCache) GetByID(ctx context.Context, id string) (*order.Order, bool, error) {
	key := prefix + ":" + id
	if raw, ok, err := c.store.Get(ctx, key); err == nil && ok {
		var o order.Order
		if err := json.Unmarshal([]byte(raw), &o); err == nil {
			observability.CacheRequests.WithLabelValues("hit").Inc()
			return &o, true, nil
		}
	}
	observability.CacheRequests.WithLabelValues("miss").Inc()

	o, err := c.source.FindByID(ctx, id)
	if err != nil || o == nil {
		return nil, false, err
	}
	c.put(ctx, key, o)
	return o, false, nil
}

func (c *OrderCache) GetSearch(ctx context.Context, q string, page, limit int) (*order.Page, bool, error) {
	key := fmt.Sprintf("%s:search:%s:page:%d:limit:%d", prefix, q, page, limit)
	if p, ok := c.lookupPage(ctx, key); ok {
		return p, true, nil
	}

	data, total, err := c.source.Search(ctx, q, (page-1)*limit, limit)
	if err != nil {
		return nil, false, err
	}
	p := order.Page{Data: data, Total: total, Page: page, Limit: limit}
	c.put(ctx, key, p)
	return &p, false, nil
}

func (c *OrderCache) GetStats(ctx context.Context) (*order.Stats, bool, error) {
	key := prefix + ":stats"
	if raw, ok, err := c.store.Get(ctx, key); err == nil && ok {
		var stats order.Stats
		if err := json.Unmarshal([]byte(raw), &stats); err == nil {
			observability.CacheRequests.WithLabelValues("hit").Inc()
			return &stats, true, nil
		}
	}
	observability.CacheRequests.WithLabelValues("miss").Inc()

	stats, err := c.source.AggregateStats(ctx)
	if err != nil {
		return nil, false, err
	}
	c.put(ctx, key, stats)
	return stats, false, nil
}

func (c *OrderCache) lookupPage(ctx context.Context, key string) (*order.Page, bool) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		observability.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}
	var p order.Page
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		c.log.Warn("discarding undecodable cache entry", "key", key, "error", err)
		observability.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}
	observability.CacheRequests.WithLabelValues("hit").Inc()
	return &p, true
}

// put serializes the whole value and stores it under one key; a cached entry
// is never partially written.
func (c *OrderCache) put(ctx context.Context, key string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		c.log.Error("failed to serialize cache entry", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, string(body), c.ttl); err != nil {
		c.log.Error("failed to store cache entry", "key", key, "error", err)
	}
}

func pageKey(page int) string {
	return fmt.Sprintf("%s:page:%d", prefix, page)
}
