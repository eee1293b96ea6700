package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// ErrNacked means the broker refused to take responsibility for a message.
var ErrNacked = errors.New("broker nacked message")

// confirmation is the broker's pending answer to one publish.
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// link is a broker connection whose channel runs in confirm mode.
type link interface {
	send(ctx context.Context, pub amqp.Publishing) (confirmation, error)
	closed() bool
	close()
}

type amqpLink struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func dialLink(url string) (link, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if err := declare(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("confirm mode: %w", err)
	}
	return &amqpLink{conn: conn, ch: ch}, nil
}

func (l *amqpLink) send(ctx context.Context, pub amqp.Publishing) (confirmation, error) {
	dc, err := l.ch.PublishWithDeferredConfirmWithContext(ctx, "", QueueName, false, false, pub)
	if err != nil {
		return nil, err
	}
	if dc == nil {
		return nil, errors.New("channel is not in confirm mode")
	}
	return dc, nil
}

func (l *amqpLink) closed() bool { return l.ch.IsClosed() }

func (l *amqpLink) close() {
	_ = l.ch.Close()
	_ = l.conn.Close()
}

// Publisher sends outbox messages to QueueName.  It keeps one connection
// open and redials lazily after a failure.  Publish returns only once the
// broker has confirmed the message, so a row is marked sent only for
// messages the broker actually holds; everything else stays PENDING in the
// outbox and is retried.
type Publisher struct {
	url  string
	log  *zap.Logger
	dial func(url string) (link, error)

	mu   sync.Mutex
	link link
}

// NewPublisher returns a publisher for the broker at url.  No connection
// is made until the first Publish.
func NewPublisher(url string, log *zap.Logger) *Publisher {
	return &Publisher{url: url, log: log, dial: dialLink}
}

// Publish sends msg as a persistent message and waits for the broker's
// confirmation.  The outbox message id becomes the AMQP MessageId so
// consumers can drop redeliveries.
func (p *Publisher) Publish(ctx context.Context, msg model.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, err := p.current()
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    msg.MessageID,
		Type:         msg.EventType,
		Timestamp:    time.Now().UTC(),
		Headers:      injectHeaders(ctx),
		Body:         msg.Payload,
	}
	dc, err := l.send(ctx, pub)
	if err != nil {
		p.reset()
		return fmt.Errorf("publish %s: %w", msg.MessageID, err)
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		// The confirmation may still arrive on this channel; start clean.
		p.reset()
		return fmt.Errorf("confirm %s: %w", msg.MessageID, err)
	}
	if !acked {
		return fmt.Errorf("publish %s: %w", msg.MessageID, ErrNacked)
	}
	return nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

// current returns the open link, dialing when needed.  p.mu is held.
func (p *Publisher) current() (link, error) {
	if p.link != nil && !p.link.closed() {
		return p.link, nil
	}
	p.reset()
	l, err := p.dial(p.url)
	if err != nil {
		return nil, err
	}
	p.link = l
	p.log.Info("publisher connected", zap.String("queue", QueueName))
	return l, nil
}

func (p *Publisher) reset() {
	if p.link != nil {
		p.link.close()
	}
	p.link = nil
}

// declare makes sure the durable queue exists.  Declaring is idempotent.
func declare(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	return nil
}

func injectHeaders(ctx context.Context) amqp.Table {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) == 0 {
		return nil
	}
	h := make(amqp.Table, len(carrier))
	for k, v := range carrier {
		h[k] = v
	}
	return h
}

func extractHeaders(ctx context.Context, h amqp.Table) context.Context {
	carrier := propagation.MapCarrier{}
	for k, v := range h {
		if s, ok := v.(string); ok {
			carrier[k] = s
		}
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
