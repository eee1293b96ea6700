package model

import "time"

// Event is a bookable entity with a fixed seat capacity.  The catalog owns
// everything except AvailableSeats, which only the reservation engine
// writes, and only while holding the event's row lock.
type Event struct {
	ID             uint64    // events.id
	Title          string    // events.title
	Description    *string   // events.description (nullable)
	Venue          *string   // events.venue (nullable)
	StartsAt       time.Time // events.starts_at
	PriceCents     uint32    // events.price_cents
	TotalSeats     int       // events.total_seats
	AvailableSeats int       // events.available_seats
	CreatedAt      time.Time // events.created_at
	UpdatedAt      time.Time // events.updated_at
}

// BookedSeats is the number of seats currently held by CONFIRMED bookings
// when the conservation law holds.
func (e *Event) BookedSeats() int { return e.TotalSeats - e.AvailableSeats }

// EventUpdate enumerates the catalog fields an administrator may change.
// Nil fields are left untouched.  Seat counts are deliberately absent.
type EventUpdate struct {
	Title       *string
	Description *string
	Venue       *string
	StartsAt    *time.Time
	PriceCents  *uint32
}

// Empty reports whether the update would change nothing.
func (u EventUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Venue == nil && u.StartsAt == nil && u.PriceCents == nil
}
