package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ingest-pipeline/pkg/record"
)

const (
	DataExchange    = "data.exchange"
	RetryExchange   = "data.retry.exchange"
	DLXExchange     = "data.dlx"
	DataQueue       = "data.queue"
	DeadLetterQueue = "data.dead_letter.queue"
	RoutingKey      = "process-record"

	// maxBackoff caps the delay the backoff policy can produce.
	maxBackoff = 5 * time.Minute
)

// ErrQueueUnavailable reports that the broker could not accept an enqueue.
// The record is not silently dropped; the caller decides whether to retry or
// surface an ingestion failure.
var ErrQueueUnavailable = errors.New("job queue unavailable")

// Envelope is the queue's unit of work: one Record plus delivery metadata.
type Envelope struct {
	Record      record.Record `json:"record"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"max_attempts"`
	EnqueuedAt  int64         `json:"enqueued_at"`
}

type Client struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	maxAttempts int
	backoffBase time.Duration
	log         *slog.Logger
}

func Dial(url string, maxAttempts int, backoffBase time.Duration, log *slog.Logger) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return &Client{conn: conn, ch: ch, maxAttempts: maxAttempts, backoffBase: backoffBase, log: log}, nil
}

// BackoffDelay maps an attempt number (1-based) to its retry delay:
// base * 2^(attempt-1), capped.
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base << (attempt - 1)
	if delay > maxBackoff || delay <= 0 {
		return maxBackoff
	}
	return delay
}

// SetupTopology declares all exchanges and queues. Idempotent.
func (c *Client) SetupTopology() error {
	if err := c.ch.ExchangeDeclare(DataExchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if err := c.ch.ExchangeDeclare(DLXExchange, "fanout", true, false, false, false, nil); err != nil {
		return err
	}
	if err := c.ch.ExchangeDeclare(RetryExchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}

	if _, err := c.ch.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
		return err
	}
	if err := c.ch.QueueBind(DeadLetterQueue, "", DLXExchange, false, nil); err != nil {
		return err
	}

	_, err := c.ch.QueueDeclare(DataQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": DLXExchange, // terminally failed jobs land in the DLQ
	})
	if err != nil {
		return err
	}
	if err := c.ch.QueueBind(DataQueue, RoutingKey, DataExchange, false, nil); err != nil {
		return err
	}

	// One retry queue per attempt delay. After the TTL expires the message is
	// dead-lettered back onto the main exchange for redelivery.
	for attempt := 1; attempt < c.maxAttempts; attempt++ {
		delay := BackoffDelay(c.backoffBase, attempt)
		queueName := retryQueueName(delay)
		_, err := c.ch.QueueDeclare(queueName, true, false, false, false, amqp.Table{
			"x-dead-letter-exchange":    DataExchange,
			"x-dead-letter-routing-key": RoutingKey,
			"x-message-ttl":             delay.Milliseconds(),
		})
		if err != nil {
			return err
		}
		if err := c.ch.QueueBind(queueName, retryRoutingKey(delay), RetryExchange, false, nil); err != nil {
			return err
		}
	}
	return nil
}

// Enqueue publishes one record as a fresh job.
func (c *Client) Enqueue(ctx context.Context, rec record.Record) error {
	env := Envelope{
		Record:      rec,
		Attempt:     1,
		MaxAttempts: c.maxAttempts,
		EnqueuedAt:  time.Now().UnixMilli(),
	}
	if err := c.publish(ctx, DataExchange, RoutingKey, env); err != nil {
		c.log.Error("failed to enqueue record", "record_id", rec.ID, "error", err)
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	c.log.Info("enqueued record", "record_id", rec.ID)
	return nil
}

// EnqueueBatch enqueues every record, continuing past individual failures. The
// returned slice is index-aligned with records; a nil entry means accepted.
func (c *Client) EnqueueBatch(ctx context.Context, records []record.Record) []error {
	errs := make([]error, len(records))
	for i, rec := range records {
		if err := c.Enqueue(ctx, rec); err != nil {
			c.log.Error("failed to enqueue batch record", "record_id", rec.ID, "error", err)
			errs[i] = err
		}
	}
	return errs
}

// PublishToRetry schedules a failed envelope for redelivery after the backoff
// delay of the attempt it just failed.
func (c *Client) PublishToRetry(ctx context.Context, env Envelope) error {
	delay := BackoffDelay(c.backoffBase, env.Attempt-1)
	return c.publish(ctx, RetryExchange, retryRoutingKey(delay), env)
}

func (c *Client) publish(ctx context.Context, exchange, key string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.ch.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Consume starts delivering jobs with manual acknowledgement.
func (c *Client) Consume() (<-chan amqp.Delivery, error) {
	return c.ch.Consume(DataQueue, "", false, false, false, false, nil)
}

func (c *Client) Close() {
	c.ch.Close()
	c.conn.Close()
}

func retryQueueName(delay time.Duration) string {
	return fmt.Sprintf("data.retry.queue.%dms", delay.Milliseconds())
}

func retryRoutingKey(delay time.Duration) string {
	return fmt.Sprintf("retry.%dms", delay.Milliseconds())
}
