// Package consumer runs the worker pool: it drains job deliveries with
// bounded concurrency and a bounded start rate, executes the processing
// function, and drives the retry schedule for failures.
package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ingest-pipeline/pkg/observability"
	"ingest-pipeline/pkg/queue"
	"ingest-pipeline/pkg/record"
)

const (
	CountKey = "data_count"
	SumKey   = "data_sum"

	// EventProcessed is the notification event emitted for each record that
	// completes processing.
	EventProcessed = "data:processed"
)

type RecordStore interface {
	Save(ctx context.Context, rec *record.Record) error
}

type Counters interface {
	IncrAndSum(ctx context.Context, countKey, sumKey string, value float64) error
	SetMarker(ctx context.Context, key string, ttl time.Duration) error
}

type Notifier interface {
	Publish(ctx context.Context, event string, payload any) error
}

type RetryScheduler interface {
	PublishToRetry(ctx context.Context, env queue.Envelope) error
}

type Pool struct {
	Store    RecordStore
	Counters Counters
	Notifier Notifier
	Retries  RetryScheduler

	Concurrency int
	Limiter     *RateLimiter
	// Timeout bounds one job execution. Zero means no timeout.
	Timeout   time.Duration
	Retention time.Duration

	Log *slog.Logger
}

// Run drains deliveries with p.Concurrency goroutines until ctx is cancelled
// or the channel closes. In-flight jobs finish before Run returns, so a
// supervisor gets a clean drain by cancelling and waiting.
func (p *Pool) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	var wg sync.WaitGroup
	wg.Add(p.Concurrency)
	for i := 0; i < p.Concurrency; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-deliveries:
					if !ok {
						return
					}
					p.handle(ctx, msg)
				}
			}
		}()
	}
	wg.Wait()
}

func (p *Pool) handle(ctx context.Context, msg amqp.Delivery) {
	if err := p.Limiter.Wait(ctx); err != nil {
		// Shutting down before the job started: hand it back.
		_ = msg.Nack(false, true)
		return
	}

	var env queue.Envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		p.Log.Error("undecodable job payload, dead-lettering", "error", err)
		observability.JobsProcessed.WithLabelValues("failed").Inc()
		_ = msg.Nack(false, false)
		return
	}

	l := p.Log.With("record_id", env.Record.ID, "attempt", env.Attempt)
	l.Info("job started")

	start := time.Now()
	rec := env.Record
	err := p.process(&rec)
	observability.JobDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		l.Error("job processing failed", "error", err)
		p.handleFailure(env, msg)
		return
	}

	observability.JobsProcessed.WithLabelValues("completed").Inc()
	l.Info("job completed", "value", rec.Value)
	_ = msg.Ack(false)
}

// process runs one attempt: transform, persist, update the aggregate
// counters, then notify. Persistence happens-before the counter update
// happens-before the publish; the sequence is not transactional, so a crash
// mid-way on a redelivered job can double count. The counters are
// analytics-grade and this at-least-once trade-off is accepted.
func (p *Pool) process(rec *record.Record) error {
	// Jobs are decoupled from the consumer loop's lifetime: an accepted job
	// runs to completion even during shutdown.
	ctx := context.Background()
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	rec.Value += rand.Float64()
	rec.Status = record.StatusProcessed

	if err := p.Store.Save(ctx, rec); err != nil {
		return err
	}
	if err := p.Counters.IncrAndSum(ctx, CountKey, SumKey, rec.Value); err != nil {
		return err
	}

	// Best-effort from here: the record is durable, the rest is live-view
	// convenience and bookkeeping.
	if err := p.Counters.SetMarker(ctx, "data:completed:"+rec.ID, p.Retention); err != nil {
		p.Log.Warn("failed to mark job completed", "record_id", rec.ID, "error", err)
	}
	if err := p.Notifier.Publish(ctx, EventProcessed, rec); err != nil {
		p.Log.Warn("failed to publish notification", "record_id", rec.ID, "error", err)
	}
	return nil
}

func (p *Pool) handleFailure(env queue.Envelope, msg amqp.Delivery) {
	l := p.Log.With("record_id", env.Record.ID)

	if env.Attempt < env.MaxAttempts {
		env.Attempt++
		if err := p.Retries.PublishToRetry(context.Background(), env); err != nil {
			l.Error("failed to schedule retry, requeueing", "error", err)
			_ = msg.Nack(false, true)
			return
		}
		observability.JobsProcessed.WithLabelValues("retried").Inc()
		l.Info("job scheduled for retry", "next_attempt", env.Attempt, "max_attempts", env.MaxAttempts)
		_ = msg.Ack(false)
		return
	}

	// Retry budget exhausted: terminal. The broker dead-letters the message;
	// it is never retried again.
	observability.JobsProcessed.WithLabelValues("failed").Inc()
	l.Error("job failed permanently", "attempts", env.Attempt)
	_ = msg.Nack(false, false)
}
