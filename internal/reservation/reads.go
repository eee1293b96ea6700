package reservation

import (
	"context"
	"fmt"

	"github.com/iliyamo/event-ticketing/internal/model"
)

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// Page selects a window of a listing.  A zero Limit means DefaultPageLimit.
type Page struct {
	Skip  int
	Limit int
}

func (p Page) normalize() (Page, error) {
	if p.Skip < 0 {
		return p, invalid(ReasonInvalidPage, "skip must not be negative")
	}
	if p.Limit == 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit < 1 || p.Limit > MaxPageLimit {
		return p, invalid(ReasonInvalidPage, fmt.Sprintf("limit must be between 1 and %d", MaxPageLimit))
	}
	return p, nil
}

// BookingPage is one window of a booking listing plus the total size of
// the listing.
type BookingPage struct {
	Items []model.Booking
	Total int
	Skip  int
	Limit int
}

// Availability summarizes an event's inventory.  ConfirmedSeats is summed
// from the booking ledger, so TotalSeats == AvailableSeats + ConfirmedSeats
// whenever the books balance.
type Availability struct {
	EventID        uint64
	TotalSeats     int
	AvailableSeats int
	ConfirmedSeats int
}

// Balanced reports whether the inventory and the ledger agree.
func (a Availability) Balanced() bool {
	return a.TotalSeats == a.AvailableSeats+a.ConfirmedSeats
}

// GetBooking returns a booking visible to the caller.  Admins see every
// booking, everyone else only their own.
func (e *Engine) GetBooking(ctx context.Context, bookingID uint64, userID string, admin bool) (*model.Booking, error) {
	if bookingID == 0 {
		return nil, invalid(ReasonInvalidBookingID, "booking id must be a positive integer")
	}
	b, err := e.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, e.classify("get booking", err)
	}
	if !admin && b.UserID != userID {
		return nil, forbidden("booking belongs to another user")
	}
	return b, nil
}

func (e *Engine) ListUserBookings(ctx context.Context, userID string, p Page) (*BookingPage, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	return e.page(p, "list user bookings",
		func(p Page) ([]model.Booking, error) { return e.bookings.ListByUser(ctx, userID, p.Skip, p.Limit) },
		func() (int, error) { return e.bookings.CountByUser(ctx, userID) })
}

// ListEventBookings lists an event's bookings in every status.  The event
// must exist.
func (e *Engine) ListEventBookings(ctx context.Context, eventID uint64, p Page) (*BookingPage, error) {
	if eventID == 0 {
		return nil, invalid(ReasonInvalidEventID, "event_id must be a positive integer")
	}
	if _, err := e.events.GetByID(ctx, eventID); err != nil {
		return nil, e.classify("load event", err)
	}
	return e.page(p, "list event bookings",
		func(p Page) ([]model.Booking, error) { return e.bookings.ListByEvent(ctx, eventID, p.Skip, p.Limit) },
		func() (int, error) { return e.bookings.CountByEvent(ctx, eventID) })
}

func (e *Engine) ListAllBookings(ctx context.Context, p Page) (*BookingPage, error) {
	return e.page(p, "list bookings",
		func(p Page) ([]model.Booking, error) { return e.bookings.ListAll(ctx, p.Skip, p.Limit) },
		func() (int, error) { return e.bookings.CountAll(ctx) })
}

func (e *Engine) page(p Page, op string, list func(Page) ([]model.Booking, error), count func() (int, error)) (*BookingPage, error) {
	p, err := p.normalize()
	if err != nil {
		return nil, err
	}
	items, err := list(p)
	if err != nil {
		return nil, e.classify(op, err)
	}
	total, err := count()
	if err != nil {
		return nil, e.classify(op, err)
	}
	if items == nil {
		items = []model.Booking{}
	}
	return &BookingPage{Items: items, Total: total, Skip: p.Skip, Limit: p.Limit}, nil
}

// Availability reads the event and its ledger without locking.  The two
// reads are not a snapshot, so under concurrent bookings the result may be
// momentarily unbalanced.
func (e *Engine) Availability(ctx context.Context, eventID uint64) (*Availability, error) {
	if eventID == 0 {
		return nil, invalid(ReasonInvalidEventID, "event_id must be a positive integer")
	}
	ev, err := e.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, e.classify("load event", err)
	}
	confirmed, err := e.bookings.ConfirmedSeats(ctx, eventID)
	if err != nil {
		return nil, e.classify("sum confirmed seats", err)
	}
	return &Availability{
		EventID:        ev.ID,
		TotalSeats:     ev.TotalSeats,
		AvailableSeats: ev.AvailableSeats,
		ConfirmedSeats: confirmed,
	}, nil
}
