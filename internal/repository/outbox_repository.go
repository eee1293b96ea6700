package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// OutboxRepo stores booking lifecycle messages until the relay hands them
// to the broker.
type OutboxRepo struct {
	db *sql.DB
}

// NewOutboxRepo constructs an OutboxRepo given a DB handle.
func NewOutboxRepo(db *sql.DB) *OutboxRepo {
	return &OutboxRepo{db: db}
}

// Enqueue writes msg as PENDING.  It must run in the transaction that
// performs the state change the message describes.
func (r *OutboxRepo) Enqueue(ctx context.Context, msg model.OutboxMessage) error {
	tx, ok := database.TxFrom(ctx)
	if !ok {
		return ErrNoTransaction
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO booking_outbox (message_id, event_type, aggregate_id, payload) VALUES (?, ?, ?, ?)`,
		msg.MessageID, msg.EventType, msg.AggregateID, msg.Payload)
	return err
}

// ClaimBatch locks up to limit PENDING rows, oldest first.  SKIP LOCKED
// lets several relays share the table without handing out a row twice.
func (r *OutboxRepo) ClaimBatch(ctx context.Context, limit int) ([]model.OutboxMessage, error) {
	tx, ok := database.TxFrom(ctx)
	if !ok {
		return nil, ErrNoTransaction
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT id, message_id, event_type, aggregate_id, payload, attempts, created_at
		 FROM booking_outbox WHERE status = 'PENDING' ORDER BY id LIMIT ? FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.OutboxMessage
	for rows.Next() {
		var m model.OutboxMessage
		if err := rows.Scan(&m.ID, &m.MessageID, &m.EventType, &m.AggregateID, &m.Payload, &m.Attempts, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkSent flags the given rows as delivered.
func (r *OutboxRepo) MarkSent(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `UPDATE booking_outbox SET status = 'SENT', sent_at = CURRENT_TIMESTAMP WHERE id IN (?` +
		strings.Repeat(", ?", len(ids)-1) + `)`
	_, err := database.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, args...)
	return err
}

// MarkFailed records a delivery failure.  The row stays PENDING for the
// next tick until it has been attempted maxAttempts times, after which it
// is parked as FAILED.
func (r *OutboxRepo) MarkFailed(ctx context.Context, id uint64, reason string, maxAttempts int) error {
	if len(reason) > 512 {
		reason = reason[:512]
	}
	_, err := database.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`UPDATE booking_outbox
		 SET attempts = attempts + 1,
		     last_error = ?,
		     status = IF(attempts >= ?, 'FAILED', status)
		 WHERE id = ?`, reason, maxAttempts, id)
	return err
}
