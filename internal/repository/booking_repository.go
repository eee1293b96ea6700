package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/model"
)

const bookingColumns = `id, event_id, user_id, quantity, status, idempotency_key, created_at, updated_at`

// BookingRepo provides access to the bookings table.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo constructs a BookingRepo given a DB handle.
func NewBookingRepo(db *sql.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b      model.Booking
		status string
		key    sql.NullString
	)
	if err := row.Scan(&b.ID, &b.EventID, &b.UserID, &b.Quantity, &status, &key, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Status = model.BookingStatus(status)
	if key.Valid {
		b.IdempotencyKey = &key.String
	}
	return &b, nil
}

func (r *BookingRepo) queryOne(ctx context.Context, query string, args ...any) (*model.Booking, error) {
	b, err := scanBooking(database.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

func (r *BookingRepo) queryMany(ctx context.Context, query string, args ...any) ([]model.Booking, error) {
	rows, err := database.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *BookingRepo) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	err := database.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// GetByID is a plain, non-locking read.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	return r.queryOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
}

// GetForUpdate reads the booking and takes its exclusive row lock for the
// rest of the transaction.
func (r *BookingRepo) GetForUpdate(ctx context.Context, id uint64) (*model.Booking, error) {
	if !database.InTx(ctx) {
		return nil, ErrNoTransaction
	}
	return r.queryOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ? FOR UPDATE`, id)
}

// HasConfirmed reports whether userID holds a CONFIRMED booking for the
// event.  Inside a transaction that already locked the event this is an
// authoritative answer, otherwise it is advisory.
func (r *BookingRepo) HasConfirmed(ctx context.Context, eventID uint64, userID string) (bool, error) {
	var exists bool
	err := database.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM bookings WHERE event_id = ? AND user_id = ? AND status = ?)`,
		eventID, userID, string(model.BookingConfirmed)).Scan(&exists)
	return exists, err
}

// FindByIdempotencyKey returns the booking userID created with key, in any
// status.
func (r *BookingRepo) FindByIdempotencyKey(ctx context.Context, userID, key string) (*model.Booking, error) {
	return r.queryOne(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? AND idempotency_key = ?`, userID, key)
}

// Create inserts b and fills in its id and timestamps.  Unique-key
// violations are returned untouched so the caller can classify them.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	tx, ok := database.TxFrom(ctx)
	if !ok {
		return ErrNoTransaction
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (event_id, user_id, quantity, status, idempotency_key) VALUES (?, ?, ?, ?, ?)`,
		b.EventID, b.UserID, b.Quantity, string(b.Status), b.IdempotencyKey)
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
	*b = *created
	return nil
}

// SetStatus moves the booking from one status to another and returns the
// updated row.  ErrStatusChanged means the row was not in status from.
func (r *BookingRepo) SetStatus(ctx context.Context, id uint64, from, to model.BookingStatus) (*model.Booking, error) {
	tx, ok := database.TxFrom(ctx)
	if !ok {
		return nil, ErrNoTransaction
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ? WHERE id = ? AND status = ?`, string(to), id, string(from))
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrStatusChanged
	}
	return r.GetByID(ctx, id)
}

// ListByUser returns userID's bookings, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID string, skip, limit int) ([]model.Booking, error) {
	return r.queryMany(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY id DESC LIMIT ? OFFSET ?`,
		userID, limit, skip)
}

// CountByUser returns how many bookings userID has in any status.
func (r *BookingRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM bookings WHERE user_id = ?`, userID)
}

// ListByEvent returns the event's bookings, newest first.
func (r *BookingRepo) ListByEvent(ctx context.Context, eventID uint64, skip, limit int) ([]model.Booking, error) {
	return r.queryMany(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE event_id = ? ORDER BY id DESC LIMIT ? OFFSET ?`,
		eventID, limit, skip)
}

// CountByEvent returns how many bookings the event has in any status.
func (r *BookingRepo) CountByEvent(ctx context.Context, eventID uint64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM bookings WHERE event_id = ?`, eventID)
}

// ListAll returns every booking, newest first.
func (r *BookingRepo) ListAll(ctx context.Context, skip, limit int) ([]model.Booking, error) {
	return r.queryMany(ctx,
		`SELECT `+bookingColumns+` FROM bookings ORDER BY id DESC LIMIT ? OFFSET ?`, limit, skip)
}

// CountAll returns the total number of bookings.
func (r *BookingRepo) CountAll(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM bookings`)
}

// ConfirmedSeats sums the quantity of the event's CONFIRMED bookings.
func (r *BookingRepo) ConfirmedSeats(ctx context.Context, eventID uint64) (int, error) {
	return r.count(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM bookings WHERE event_id = ? AND status = ?`,
		eventID, string(model.BookingConfirmed))
}
