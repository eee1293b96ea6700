// Package outbox moves booking lifecycle messages from the booking_outbox
// table to the broker.  Messages are written in the same transaction as the
// booking change they describe, so a committed booking is never lost and a
// rolled back one is never announced.
package outbox

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// MaxAttempts is how many failed publishes a message gets before it is
// parked as FAILED.
const MaxAttempts = 10

// Store is the persistence side of the relay.  ClaimBatch runs inside the
// relay's transaction and must lock the rows it returns.
type Store interface {
	ClaimBatch(ctx context.Context, limit int) ([]model.OutboxMessage, error)
	MarkSent(ctx context.Context, ids []uint64) error
	MarkFailed(ctx context.Context, id uint64, reason string, maxAttempts int) error
}

// Publisher delivers one message to the broker.
type Publisher interface {
	Publish(ctx context.Context, msg model.OutboxMessage) error
}

type Relay struct {
	log       *zap.Logger
	tx        database.Coordinator
	store     Store
	pub       Publisher
	tracer    trace.Tracer
	batchSize int
	interval  time.Duration
}

func NewRelay(log *zap.Logger, tx database.Coordinator, store Store, pub Publisher, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		log:       log,
		tx:        tx,
		store:     store,
		pub:       pub,
		tracer:    otel.Tracer("github.com/iliyamo/event-ticketing/internal/outbox"),
		batchSize: batchSize,
		interval:  interval,
	}
}

// Run drains the outbox every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	r.log.Info("relay started", zap.Duration("interval", r.interval), zap.Int("batch", r.batchSize))
	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping")
			return nil
		case <-t.C:
			if _, err := r.Tick(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("relay tick failed", zap.Error(err))
			}
		}
	}
}

// Tick claims one batch, publishes it and records the outcome, all in one
// transaction so the row locks keep other relays off the batch until the
// statuses are written.  It returns how many messages were delivered.
func (r *Relay) Tick(ctx context.Context) (int, error) {
	ctx, span := r.tracer.Start(ctx, "outbox.Tick")
	defer span.End()

	return database.RunInTransaction(ctx, r.tx, func(ctx context.Context) (int, error) {
		msgs, err := r.store.ClaimBatch(ctx, r.batchSize)
		if err != nil {
			return 0, err
		}
		span.SetAttributes(attribute.Int("outbox.claimed", len(msgs)))
		if len(msgs) == 0 {
			return 0, nil
		}

		sent := make([]uint64, 0, len(msgs))
		for _, m := range msgs {
			if err := r.pub.Publish(ctx, m); err != nil {
				r.log.Warn("publish failed",
					zap.String("message_id", m.MessageID),
					zap.String("type", m.EventType),
					zap.Int("attempt", m.Attempts+1),
					zap.Error(err))
				if err := r.store.MarkFailed(ctx, m.ID, err.Error(), MaxAttempts); err != nil {
					return 0, err
				}
				if m.Attempts+1 >= MaxAttempts {
					r.log.Error("message parked after max attempts", zap.String("message_id", m.MessageID))
				}
				continue
			}
			sent = append(sent, m.ID)
		}
		if err := r.store.MarkSent(ctx, sent); err != nil {
			return 0, err
		}
		return len(sent), nil
	})
}
