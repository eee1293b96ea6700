package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Deduper remembers message ids.  Seen marks id as processed and reports
// whether it had already been marked.  Forget undoes the mark so a message
// whose handling failed can be processed again on redelivery.
type Deduper interface {
	Seen(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

// RedisDeduper is a Deduper backed by SET NX with a TTL.
type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisDeduper returns a deduper that forgets ids after ttl.
func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func (d *RedisDeduper) Key(id string) string { return "booking-msg:" + id }

func (d *RedisDeduper) Seen(ctx context.Context, id string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, d.Key(id), "1", d.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (d *RedisDeduper) Forget(ctx context.Context, id string) error {
	return d.rdb.Del(ctx, d.Key(id)).Err()
}

var errNoDelivery = errors.New("deliveries channel closed")

// Consumer reads QueueName and appends one audit line per booking message
// to <dir>/booking.log.
type Consumer struct {
	url    string
	dir    string
	dedupe Deduper
	log    *zap.Logger
	tracer trace.Tracer

	mu sync.Mutex // serializes writes to the log file
}

// NewConsumer builds a consumer.  dedupe may be nil, in which case every
// delivery is processed.
func NewConsumer(url, dir string, dedupe Deduper, log *zap.Logger) *Consumer {
	return &Consumer{
		url:    url,
		dir:    dir,
		dedupe: dedupe,
		log:    log,
		tracer: otel.Tracer("github.com/iliyamo/event-ticketing/internal/queue"),
	}
}

// Run connects to the broker and consumes until ctx is cancelled.  Dial
// failures and dropped connections are retried with exponential backoff
// capped at 30s, so the HTTP server keeps serving while the broker is away.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("consumer dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set qos failed", zap.Error(err))
	}
	if err := declare(ch); err != nil {
		return err
	}
	msgs, err := ch.ConsumeWithContext(ctx, QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info("consumer started", zap.String("queue", QueueName))

	for d := range msgs {
		mctx := extractHeaders(ctx, d.Headers)
		if err := c.Handle(mctx, d.MessageId, d.Body); err != nil {
			c.log.Error("handle message failed", zap.String("message_id", d.MessageId), zap.Error(err))
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errNoDelivery
}

// Handle processes one delivery.  Messages already seen are acknowledged
// without side effects.
func (c *Consumer) Handle(ctx context.Context, messageID string, body []byte) (err error) {
	ctx, span := c.tracer.Start(ctx, "queue.HandleBookingEvent")
	defer span.End()

	var ev BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if messageID == "" {
		messageID = ev.MessageID
	}
	span.SetAttributes(attribute.String("messaging.message_id", messageID), attribute.String("booking.event_type", ev.Type))

	if c.dedupe != nil && messageID != "" {
		seen, derr := c.dedupe.Seen(ctx, messageID)
		if derr != nil {
			// Redis trouble must not stall the audit trail.  A duplicate
			// line is preferable to a missing one.
			c.log.Warn("dedupe check failed", zap.String("message_id", messageID), zap.Error(derr))
		} else if seen {
			c.log.Debug("duplicate message skipped", zap.String("message_id", messageID))
			return nil
		}
		defer func() {
			if err != nil {
				_ = c.dedupe.Forget(ctx, messageID)
			}
		}()
	}
	return c.appendLine(ev)
}

func (c *Consumer) appendLine(ev BookingEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.dir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.dir, "booking.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders ev as one human-friendly audit line.
func FormatLine(ev BookingEvent) string {
	verb := "Booking event"
	switch ev.Type {
	case EventBookingConfirmed:
		verb = "Booking confirmed"
	case EventBookingCancelled:
		verb = "Booking cancelled"
	}
	return fmt.Sprintf("[%s] %s | booking_id=%d | user_id=%s | event_id=%d | event=%q | quantity=%d | available_seats=%d | message_id=%s\n",
		ev.OccurredAt.UTC().Format(time.RFC3339), verb, ev.BookingID, ev.UserID, ev.EventID, ev.EventTitle,
		ev.Quantity, ev.AvailableSeats, ev.MessageID)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
