// Package reservation is the booking engine.  It owns every change to an
// event's seat inventory and to booking status, and keeps three facts true
// at each commit:
//
//   - available_seats stays within [0, total_seats],
//   - a user holds at most one CONFIRMED booking per event,
//   - total_seats equals available_seats plus the quantity of the event's
//     CONFIRMED bookings.
//
// Every mutation is one unit-of-work that locks the event row (and, for
// Cancel, the booking row first) before reading the state it decides on.
// Failures are reported as *Error and leave the store untouched.
package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

const (
	// MaxQuantity caps the seats one booking may hold.
	MaxQuantity = 10

	maxUserIDLen         = 255
	maxIdempotencyKeyLen = 128
)

// Unique keys on the bookings table the engine knows how to read.
const (
	keyActiveBooking = "uq_bookings_active"
	keyIdempotency   = "uq_bookings_idempotency"
)

// EventStore is the event side of the store.  GetForUpdate and
// AdjustAvailableSeats must run inside a unit-of-work.
type EventStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Event, error)
	GetForUpdate(ctx context.Context, id uint64) (*model.Event, error)
	AdjustAvailableSeats(ctx context.Context, id uint64, delta int) error
}

// BookingStore is the booking side of the store.
type BookingStore interface {
	ConfirmedChecker
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
	GetForUpdate(ctx context.Context, id uint64) (*model.Booking, error)
	FindByIdempotencyKey(ctx context.Context, userID, key string) (*model.Booking, error)
	Create(ctx context.Context, b *model.Booking) error
	SetStatus(ctx context.Context, id uint64, from, to model.BookingStatus) (*model.Booking, error)
	ListByUser(ctx context.Context, userID string, skip, limit int) ([]model.Booking, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	ListByEvent(ctx context.Context, eventID uint64, skip, limit int) ([]model.Booking, error)
	CountByEvent(ctx context.Context, eventID uint64) (int, error)
	ListAll(ctx context.Context, skip, limit int) ([]model.Booking, error)
	CountAll(ctx context.Context) (int, error)
	ConfirmedSeats(ctx context.Context, eventID uint64) (int, error)
}

// OutboxWriter records lifecycle messages inside the current unit-of-work.
type OutboxWriter interface {
	Enqueue(ctx context.Context, msg model.OutboxMessage) error
}

// ReserveRequest asks for Quantity seats of EventID on behalf of UserID.
// IdempotencyKey is optional.  A retry carrying the same key returns the
// booking the first attempt created instead of booking again.
type ReserveRequest struct {
	EventID        uint64
	UserID         string
	Quantity       int
	IdempotencyKey string
}

func (r ReserveRequest) validate() error {
	if r.EventID == 0 {
		return invalid(ReasonInvalidEventID, "event_id must be a positive integer")
	}
	if err := validateUserID(r.UserID); err != nil {
		return err
	}
	if r.Quantity < 1 || r.Quantity > MaxQuantity {
		return invalid(ReasonInvalidQuantity, fmt.Sprintf("quantity must be between 1 and %d", MaxQuantity))
	}
	if len(r.IdempotencyKey) > maxIdempotencyKeyLen {
		return invalid(ReasonInvalidIdempotencyKey,
			fmt.Sprintf("idempotency key must be at most %d characters", maxIdempotencyKeyLen))
	}
	return nil
}

func validateUserID(userID string) error {
	if userID == "" || len(userID) > maxUserIDLen {
		return invalid(ReasonInvalidUserID, "user id is required")
	}
	return nil
}

// Engine implements Reserve and Cancel on top of the store interfaces.
type Engine struct {
	tx       database.Coordinator
	events   EventStore
	bookings BookingStore
	outbox   OutboxWriter
	guard    *Guard
	log      *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewEngine wires an engine.  outbox may be nil, in which case no
// lifecycle messages are recorded.
func NewEngine(tx database.Coordinator, events EventStore, bookings BookingStore, outbox OutboxWriter, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		tx:       tx,
		events:   events,
		bookings: bookings,
		outbox:   outbox,
		guard:    NewGuard(bookings),
		log:      log,
		tracer:   otel.Tracer("github.com/iliyamo/event-ticketing/internal/reservation"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Reserve books req.Quantity seats for req.UserID.  On success the event's
// available seats have been debited and a CONFIRMED booking exists, both
// in one commit.  On any error nothing changed.
func (e *Engine) Reserve(ctx context.Context, req ReserveRequest) (*model.Booking, error) {
	b, _, err := e.ReserveWithReplay(ctx, req)
	return b, err
}

// ReserveWithReplay is Reserve that also reports whether the booking was
// created by an earlier request with the same idempotency key.  A replayed
// booking is returned as it is now, which may be CANCELLED.
func (e *Engine) ReserveWithReplay(ctx context.Context, req ReserveRequest) (_ *model.Booking, replayed bool, err error) {
	ctx, span := e.tracer.Start(ctx, "reservation.Reserve", trace.WithAttributes(
		attribute.Int64("event.id", int64(req.EventID)),
		attribute.Int("booking.quantity", req.Quantity),
	))
	defer func() { endSpan(span, err) }()

	if err := req.validate(); err != nil {
		return nil, false, err
	}

	// Fast paths.  None of these reads lock anything, so every decision
	// they lead to is re-taken inside the unit-of-work.
	if _, err := e.events.GetByID(ctx, req.EventID); err != nil {
		return nil, false, e.classify("load event", err)
	}
	if req.IdempotencyKey != "" {
		prior, err := e.replay(ctx, req)
		if err != nil {
			return nil, false, e.classify("idempotency lookup", err)
		}
		if prior != nil {
			span.SetAttributes(attribute.Bool("booking.replayed", true))
			return prior, true, nil
		}
	}
	if err := e.guard.Check(ctx, req.EventID, req.UserID); err != nil {
		if req.IdempotencyKey != "" && errors.Is(err, ErrDuplicateBooking) {
			// The earlier attempt may have committed between the two reads.
			if prior, rerr := e.replay(ctx, req); rerr == nil && prior != nil {
				return prior, true, nil
			}
		}
		return nil, false, e.classify("duplicate check", err)
	}

	booking, err := database.RunInTransaction(ctx, e.tx, func(ctx context.Context) (*model.Booking, error) {
		ev, err := e.events.GetForUpdate(ctx, req.EventID)
		if err != nil {
			return nil, err
		}
		// Retries of one request on the same event serialize on the lock
		// above, so the second one finds the first one's booking here.
		if req.IdempotencyKey != "" {
			prior, err := e.replay(ctx, req)
			if err != nil || prior != nil {
				replayed = prior != nil
				return prior, err
			}
		}
		if err := e.guard.Check(ctx, ev.ID, req.UserID); err != nil {
			return nil, err
		}
		if ev.AvailableSeats < req.Quantity {
			return nil, conflict(ReasonInsufficientSeats,
				fmt.Sprintf("not enough seats: requested %d, available %d", req.Quantity, ev.AvailableSeats))
		}
		if err := e.events.AdjustAvailableSeats(ctx, ev.ID, -req.Quantity); err != nil {
			return nil, err
		}
		b := &model.Booking{
			EventID:  ev.ID,
			UserID:   req.UserID,
			Quantity: req.Quantity,
			Status:   model.BookingConfirmed,
		}
		if req.IdempotencyKey != "" {
			key := req.IdempotencyKey
			b.IdempotencyKey = &key
		}
		if err := e.bookings.Create(ctx, b); err != nil {
			return nil, err
		}
		if err := e.enqueue(ctx, queue.EventBookingConfirmed, b, ev, ev.AvailableSeats-req.Quantity); err != nil {
			return nil, err
		}
		return b, nil
	})
	if err != nil {
		return nil, false, e.classify("reserve", err)
	}
	span.SetAttributes(attribute.Int64("booking.id", int64(booking.ID)), attribute.Bool("booking.replayed", replayed))
	if !replayed {
		e.log.Info("booking confirmed",
			zap.Uint64("booking_id", booking.ID),
			zap.Uint64("event_id", booking.EventID),
			zap.String("user_id", booking.UserID),
			zap.Int("quantity", booking.Quantity))
	}
	return booking, replayed, nil
}

// replay returns the booking an earlier request with the same key created,
// nil when there is none, or a mismatch conflict when the key was used for
// a different request.
func (e *Engine) replay(ctx context.Context, req ReserveRequest) (*model.Booking, error) {
	prior, err := e.bookings.FindByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
	if errors.Is(err, repository.ErrBookingNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if prior.EventID != req.EventID || prior.Quantity != req.Quantity {
		return nil, conflict(ReasonIdempotencyMismatch, "idempotency key was already used for a different request")
	}
	return prior, nil
}

// Cancel releases a CONFIRMED booking owned by userID and returns its
// seats to the event.  Cancelling twice reports already_cancelled and
// never credits seats a second time.
func (e *Engine) Cancel(ctx context.Context, bookingID uint64, userID string) (_ *model.Booking, err error) {
	ctx, span := e.tracer.Start(ctx, "reservation.Cancel", trace.WithAttributes(
		attribute.Int64("booking.id", int64(bookingID)),
	))
	defer func() { endSpan(span, err) }()

	if bookingID == 0 {
		return nil, invalid(ReasonInvalidBookingID, "booking id must be a positive integer")
	}
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	b, err := e.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, e.classify("load booking", err)
	}
	if err := cancellable(b, userID); err != nil {
		return nil, err
	}

	cancelled, err := database.RunInTransaction(ctx, e.tx, func(ctx context.Context) (*model.Booking, error) {
		// Booking row first, then event row.  Reserve only ever takes the
		// event row, so the two paths cannot wait on each other in a cycle.
		locked, err := e.bookings.GetForUpdate(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if err := cancellable(locked, userID); err != nil {
			return nil, err
		}
		ev, err := e.events.GetForUpdate(ctx, locked.EventID)
		if err != nil {
			return nil, err
		}
		if ev.AvailableSeats+locked.Quantity > ev.TotalSeats {
			return nil, internal(ReasonInventoryInconsistent, "seat inventory is inconsistent",
				fmt.Errorf("event %d: crediting %d seats to %d/%d", ev.ID, locked.Quantity, ev.AvailableSeats, ev.TotalSeats))
		}
		if err := e.events.AdjustAvailableSeats(ctx, ev.ID, locked.Quantity); err != nil {
			return nil, err
		}
		updated, err := e.bookings.SetStatus(ctx, locked.ID, model.BookingConfirmed, model.BookingCancelled)
		if err != nil {
			return nil, err
		}
		if err := e.enqueue(ctx, queue.EventBookingCancelled, updated, ev, ev.AvailableSeats+locked.Quantity); err != nil {
			return nil, err
		}
		return updated, nil
	})
	if err != nil {
		return nil, e.classify("cancel", err)
	}
	e.log.Info("booking cancelled",
		zap.Uint64("booking_id", cancelled.ID),
		zap.Uint64("event_id", cancelled.EventID),
		zap.String("user_id", cancelled.UserID),
		zap.Int("quantity", cancelled.Quantity))
	return cancelled, nil
}

// cancellable applies the ownership and status rules in the order clients
// see them: ownership before state.
func cancellable(b *model.Booking, userID string) error {
	if b.UserID != userID {
		return forbidden("booking belongs to another user")
	}
	switch b.Status {
	case model.BookingConfirmed:
		return nil
	case model.BookingCancelled:
		return conflict(ReasonAlreadyCancelled, "booking is already cancelled")
	default:
		return conflict(ReasonNotCancellable, fmt.Sprintf("booking in status %s cannot be cancelled", b.Status))
	}
}

func (e *Engine) enqueue(ctx context.Context, typ string, b *model.Booking, ev *model.Event, available int) error {
	if e.outbox == nil {
		return nil
	}
	id := uuid.NewString()
	payload, err := json.Marshal(queue.BookingEvent{
		MessageID:      id,
		Type:           typ,
		BookingID:      b.ID,
		EventID:        ev.ID,
		EventTitle:     ev.Title,
		UserID:         b.UserID,
		Quantity:       b.Quantity,
		Status:         string(b.Status),
		AvailableSeats: available,
		OccurredAt:     e.now(),
	})
	if err != nil {
		return err
	}
	return e.outbox.Enqueue(ctx, model.OutboxMessage{
		MessageID:   id,
		EventType:   typ,
		AggregateID: b.ID,
		Payload:     payload,
	})
}

// classify turns whatever came out of the store or the unit-of-work into
// an *Error.  Store text is logged here and never returned.
func (e *Engine) classify(op string, err error) error {
	var re *Error
	if errors.As(err, &re) {
		if re.Kind == KindInternal {
			e.log.Error(op+" failed", zap.String("reason", re.Reason), zap.Error(err))
		}
		return re
	}
	switch {
	case errors.Is(err, repository.ErrEventNotFound):
		return notFound(ReasonEventNotFound, "event not found")
	case errors.Is(err, repository.ErrBookingNotFound):
		return notFound(ReasonBookingNotFound, "booking not found")
	case errors.Is(err, repository.ErrStatusChanged):
		// The row lock makes this unreachable for well-behaved stores.
		return conflict(ReasonAlreadyCancelled, "booking is already cancelled")
	case database.IsCancelled(err):
		e.log.Info(op+" abandoned by the caller", zap.Error(err))
		return internal(ReasonRequestCancelled, "request was cancelled", err)
	case database.IsLockTimeout(err):
		e.log.Warn(op+" gave up waiting for a lock", zap.Error(err))
		return internal(ReasonLockTimeout, "timed out waiting for the booking lock, please retry", err)
	case errors.Is(err, repository.ErrSeatBounds), database.IsCheckViolation(err):
		e.log.Error(op+" hit a seat bound", zap.Error(err))
		return internal(ReasonInventoryInconsistent, "seat inventory is inconsistent", err)
	}
	if key, ok := database.DuplicateKey(err); ok {
		switch key {
		case keyActiveBooking:
			return conflict(ReasonDuplicateBooking, "user already holds an active booking for this event")
		case keyIdempotency:
			return conflict(ReasonIdempotencyMismatch, "idempotency key was already used for a different request")
		}
	}
	e.log.Error(op+" failed", zap.Error(err))
	return internal(ReasonStoreFailure, "internal error", err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	}
	span.End()
}
