package handler

import (
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/reservation"
)

// BookingResponse is the public shape of a booking.
type BookingResponse struct {
	ID             uint64    `json:"id"`
	EventID        uint64    `json:"event_id"`
	UserID         string    `json:"user_id"`
	Quantity       int       `json:"quantity"`
	Status         string    `json:"status"`
	IdempotencyKey *string   `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toBooking(b *model.Booking) BookingResponse {
	return BookingResponse{
		ID:             b.ID,
		EventID:        b.EventID,
		UserID:         b.UserID,
		Quantity:       b.Quantity,
		Status:         string(b.Status),
		IdempotencyKey: b.IdempotencyKey,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

// BookingPageResponse is one page of a booking listing.
type BookingPageResponse struct {
	Items []BookingResponse `json:"items"`
	Total int               `json:"total"`
	Skip  int               `json:"skip"`
	Limit int               `json:"limit"`
}

func toBookingPage(p *reservation.BookingPage) BookingPageResponse {
	items := make([]BookingResponse, len(p.Items))
	for i := range p.Items {
		items[i] = toBooking(&p.Items[i])
	}
	return BookingPageResponse{Items: items, Total: p.Total, Skip: p.Skip, Limit: p.Limit}
}

// EventResponse is the public shape of an event.
type EventResponse struct {
	ID             uint64    `json:"id"`
	Title          string    `json:"title"`
	Description    *string   `json:"description,omitempty"`
	Venue          *string   `json:"venue,omitempty"`
	StartsAt       time.Time `json:"starts_at"`
	PriceCents     uint32    `json:"price_cents"`
	TotalSeats     int       `json:"total_seats"`
	AvailableSeats int       `json:"available_seats"`
}

func toEvent(e *model.Event) EventResponse {
	return EventResponse{
		ID:             e.ID,
		Title:          e.Title,
		Description:    e.Description,
		Venue:          e.Venue,
		StartsAt:       e.StartsAt,
		PriceCents:     e.PriceCents,
		TotalSeats:     e.TotalSeats,
		AvailableSeats: e.AvailableSeats,
	}
}

// EventPageResponse is one page of the event catalog.
type EventPageResponse struct {
	Items []EventResponse `json:"items"`
	Total int             `json:"total"`
	Skip  int             `json:"skip"`
	Limit int             `json:"limit"`
}

func toEventPage(list []model.Event, total int, p reservation.Page) EventPageResponse {
	items := make([]EventResponse, len(list))
	for i := range list {
		items[i] = toEvent(&list[i])
	}
	return EventPageResponse{Items: items, Total: total, Skip: p.Skip, Limit: p.Limit}
}

// AvailabilityResponse reports an event's inventory next to the seats held
// by confirmed bookings.
type AvailabilityResponse struct {
	EventID        uint64 `json:"event_id"`
	TotalSeats     int    `json:"total_seats"`
	AvailableSeats int    `json:"available_seats"`
	ConfirmedSeats int    `json:"confirmed_seats"`
}
