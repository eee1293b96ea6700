package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/model"
)

const eventColumns = `id, title, description, venue, starts_at, price_cents, total_seats, available_seats, created_at, updated_at`

// EventRepo provides access to the events table.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo constructs an EventRepo given a DB handle.
func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var (
		e     model.Event
		desc  sql.NullString
		venue sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Title, &desc, &venue, &e.StartsAt, &e.PriceCents,
		&e.TotalSeats, &e.AvailableSeats, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if desc.Valid {
		e.Description = &desc.String
	}
	if venue.Valid {
		e.Venue = &venue.String
	}
	return &e, nil
}

// Create inserts a new event with every seat available and fills in the
// generated id and timestamps.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	exec := database.ExecutorFrom(ctx, r.db)
	res, err := exec.ExecContext(ctx,
		`INSERT INTO events (title, description, venue, starts_at, price_cents, total_seats, available_seats)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Title, e.Description, e.Venue, e.StartsAt, e.PriceCents, e.TotalSeats, e.TotalSeats)
	if _, dup := database.DuplicateKey(err); dup {
		return ErrDuplicateTitle
	}
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*e = *created
	return nil
}

// GetByID is a plain, non-locking read.  Outside a transaction the result
// is advisory only.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	row := database.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return e, err
}

// GetForUpdate reads the event and takes its exclusive row lock, held until
// the surrounding transaction ends.  This lock serializes every change to
// the event's inventory.
func (r *EventRepo) GetForUpdate(ctx context.Context, id uint64) (*model.Event, error) {
	tx, ok := database.TxFrom(ctx)
	if !ok {
		return nil, ErrNoTransaction
	}
	row := tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ? FOR UPDATE`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return e, err
}

// AdjustAvailableSeats adds delta (negative to debit) to available_seats.
// The bounds are re-checked in SQL so a caller that skipped the locked
// read still cannot oversell or overflow capacity.
func (r *EventRepo) AdjustAvailableSeats(ctx context.Context, id uint64, delta int) error {
	tx, ok := database.TxFrom(ctx)
	if !ok {
		return ErrNoTransaction
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE events SET available_seats = available_seats + ?
		 WHERE id = ? AND available_seats + ? >= 0 AND available_seats + ? <= total_seats`,
		delta, id, delta, delta)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSeatBounds
	}
	return nil
}

// Update applies the non-nil fields of u and returns the updated row.  An
// empty update is a plain read.
func (r *EventRepo) Update(ctx context.Context, id uint64, u model.EventUpdate) (*model.Event, error) {
	if u.Empty() {
		return r.GetByID(ctx, id)
	}
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	if u.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *u.Title)
	}
	if u.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *u.Description)
	}
	if u.Venue != nil {
		sets = append(sets, "venue = ?")
		args = append(args, *u.Venue)
	}
	if u.StartsAt != nil {
		sets = append(sets, "starts_at = ?")
		args = append(args, *u.StartsAt)
	}
	if u.PriceCents != nil {
		sets = append(sets, "price_cents = ?")
		args = append(args, *u.PriceCents)
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE events SET %s WHERE id = ?`, strings.Join(sets, ", "))
	// MySQL reports 0 affected rows when the values did not change, so
	// existence is decided by the follow-up read.
	_, err := database.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, args...)
	if _, dup := database.DuplicateKey(err); dup {
		return nil, ErrDuplicateTitle
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Delete removes an event.  Booking rows are never deleted, so an event
// that was ever booked, even if every booking was cancelled, stays and
// ErrEventHasBookings is returned.
func (r *EventRepo) Delete(ctx context.Context, id uint64) error {
	res, err := database.ExecutorFrom(ctx, r.db).ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if database.IsRowReferenced(err) {
		return ErrEventHasBookings
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEventNotFound
	}
	return nil
}

// List returns events ordered by start time then id.
func (r *EventRepo) List(ctx context.Context, skip, limit int) ([]model.Event, error) {
	rows, err := database.ExecutorFrom(ctx, r.db).QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY starts_at, id LIMIT ? OFFSET ?`, limit, skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Count returns the number of events.
func (r *EventRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := database.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}
