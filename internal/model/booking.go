package model

import "time"

// BookingStatus is the lifecycle state of a booking.  The engine creates
// bookings as CONFIRMED and moves them to CANCELLED; PENDING and EXPIRED
// exist in the schema for holds that this service does not issue.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingExpired   BookingStatus = "EXPIRED"
)

// Valid reports whether s is one of the known states.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s BookingStatus) Terminal() bool {
	return s == BookingCancelled || s == BookingExpired
}

// Booking records a user's reservation of Quantity seats for an event.
// Rows are never deleted so the table doubles as an audit trail.
type Booking struct {
	ID             uint64        // bookings.id
	EventID        uint64        // bookings.event_id
	UserID         string        // bookings.user_id
	Quantity       int           // bookings.quantity
	Status         BookingStatus // bookings.status
	IdempotencyKey *string       // bookings.idempotency_key (nullable)
	CreatedAt      time.Time     // bookings.created_at
	UpdatedAt      time.Time     // bookings.updated_at
}

// OutboxMessage is a booking lifecycle message waiting to be relayed to
// the broker.  It is written in the same transaction as the state change
// it describes.
type OutboxMessage struct {
	ID          uint64
	MessageID   string
	EventType   string
	AggregateID uint64
	Payload     []byte
	Attempts    int
	CreatedAt   time.Time
}
