// Package bridge carries processing-complete events from any process to the
// one process that owns client sockets. Delivery is fire-and-forget: no
// acknowledgement, no persistence. An event published while no subscriber is
// listening is lost, which is acceptable because the record itself is durably
// persisted independently.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"ingest-pipeline/pkg/observability"
)

// Channel is the wire contract between publishers and the socket-owning
// process.
const Channel = "data:events"

// Event is the message envelope. It exists only on the wire.
type Event struct {
	Event     string `json:"event"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

type PublishConn interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type SubscribeConn interface {
	Subscribe(ctx context.Context, channel string) <-chan *redis.Message
}

// Sink receives decoded events; in production it is the fan-out hub.
type Sink interface {
	Broadcast(v any)
}

type Publisher struct {
	conn PublishConn
	log  *slog.Logger
}

func NewPublisher(conn PublishConn, log *slog.Logger) *Publisher {
	return &Publisher{conn: conn, log: log}
}

func (p *Publisher) Publish(ctx context.Context, event string, payload any) error {
	body, err := json.Marshal(Event{Event: event, Payload: payload, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	if err := p.conn.Publish(ctx, Channel, body); err != nil {
		return err
	}
	observability.NotificationsPublished.Inc()
	return nil
}

type Subscriber struct {
	conn SubscribeConn
	log  *slog.Logger
}

func NewSubscriber(conn SubscribeConn, log *slog.Logger) *Subscriber {
	return &Subscriber{conn: conn, log: log}
}

// Run forwards every message on the channel to the sink until ctx is
// cancelled. A message that fails to decode is still forwarded with its raw
// payload; a notification is never dropped just because it could not be
// parsed.
func (s *Subscriber) Run(ctx context.Context, sink Sink) {
	msgs := s.conn.Subscribe(ctx, Channel)
	s.log.Info("notification bridge subscribed", "channel", Channel)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				s.log.Warn("undecodable notification, forwarding raw", "error", err)
				sink.Broadcast(Event{Event: "raw", Payload: msg.Payload, Timestamp: time.Now().UnixMilli()})
				continue
			}
			sink.Broadcast(ev)
		}
	}
}
