package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Client struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// Connect establishes the connection pool and verifies it with a ping.
// A failure here is fatal to the caller; the process must not serve
// degraded traffic without its persistence layer.
func Connect(ctx context.Context, url string, poolSize int, log *slog.Logger) (*Client, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}
	if poolSize > 0 {
		cfg.MaxConns = int32(poolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}
	return &Client{pool: pool, log: log}, nil
}

func (c *Client) Close() {
	c.pool.Close()
}

func (c *Client) Records() *RecordRepository {
	return &RecordRepository{pool: c.pool}
}

func (c *Client) Orders() *OrderRepository {
	return &OrderRepository{pool: c.pool}
}

// InitSchema creates the necessary tables. In a real deployment a migration
// tool owns this; for this service we ensure the schema exists at startup.
func (c *Client) InitSchema(ctx context.Context) error {
	schema := `
    CREATE TABLE IF NOT EXISTS data_records (
        id UUID PRIMARY KEY,
        source TEXT NOT NULL,
        value DOUBLE PRECISION NOT NULL,
        payload JSONB,
        status TEXT NOT NULL DEFAULT 'pending',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );
    CREATE INDEX IF NOT EXISTS idx_data_records_source_created_at ON data_records (source, created_at);
    CREATE INDEX IF NOT EXISTS idx_data_records_status ON data_records (status);

    CREATE TABLE IF NOT EXISTS orders (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        user_id TEXT NOT NULL,
        product_name TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        total_amount NUMERIC(10,2) NOT NULL,
        status TEXT NOT NULL DEFAULT 'pending',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );
    CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders (user_id);
    CREATE INDEX IF NOT EXISTS idx_orders_status ON orders (status);
    CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders (created_at);
    CREATE INDEX IF NOT EXISTS idx_orders_product_name ON orders (product_name);
    `
	_, err := c.pool.Exec(ctx, schema)
	return err
}
