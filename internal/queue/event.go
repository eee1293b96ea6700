// Package queue carries booking lifecycle messages over RabbitMQ: the
// payload shared by publisher and consumer, the publisher the outbox relay
// drives, and the audit consumer.
package queue

import "time"

// QueueName is the durable queue every booking lifecycle message is routed
// to.  The message type travels in the AMQP Type property.
const QueueName = "booking.events"

// Message types written to the outbox and published to QueueName.
const (
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
)

// BookingEvent is the payload of a booking lifecycle message.  It carries
// enough for downstream consumers to log, notify or feed analytics without
// querying the primary database.
type BookingEvent struct {
	MessageID      string    `json:"message_id"`
	Type           string    `json:"type"`
	BookingID      uint64    `json:"booking_id"`
	EventID        uint64    `json:"event_id"`
	EventTitle     string    `json:"event_title"`
	UserID         string    `json:"user_id"`
	Quantity       int       `json:"quantity"`
	Status         string    `json:"status"`
	AvailableSeats int       `json:"available_seats"`
	OccurredAt     time.Time `json:"occurred_at"`
}
