package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/reservation"
	"github.com/iliyamo/event-ticketing/internal/response"
)

const (
	maxTitleLen       = 255
	maxVenueLen       = 255
	maxDescriptionLen = 1000
	maxEventSeats     = 1_000_000
)

// EventCatalog manages catalog fields of events.  It never changes seat
// counts after creation.
type EventCatalog interface {
	Create(ctx context.Context, e *model.Event) error
	GetByID(ctx context.Context, id uint64) (*model.Event, error)
	Update(ctx context.Context, id uint64, u model.EventUpdate) (*model.Event, error)
	List(ctx context.Context, skip, limit int) ([]model.Event, error)
	Count(ctx context.Context) (int, error)
	Search(ctx context.Context, q repository.EventSearchQuery) ([]model.Event, int, error)
	Delete(ctx context.Context, id uint64) error
}

// AvailabilityReader audits an event's inventory against its bookings.
type AvailabilityReader interface {
	Availability(ctx context.Context, eventID uint64) (*reservation.Availability, error)
}

// EventHandler serves the public catalog and the admin catalog endpoints.
type EventHandler struct {
	events EventCatalog
	avail  AvailabilityReader
	log    *zap.Logger
	now    func() time.Time
}

func NewEventHandler(events EventCatalog, avail AvailabilityReader, log *zap.Logger) *EventHandler {
	return &EventHandler{events: events, avail: avail, log: log, now: time.Now}
}

// List handles GET /v1/events.
func (h *EventHandler) List(c echo.Context) error {
	p, ok := h.page(c)
	if !ok {
		return badRequest(c, reservation.ReasonInvalidPage, "invalid skip or limit")
	}
	ctx := c.Request().Context()
	list, err := h.events.List(ctx, p.Skip, p.Limit)
	if err != nil {
		return writeError(c, h.log, err)
	}
	total, err := h.events.Count(ctx)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return response.OK(c, http.StatusOK, "Events fetched successfully", toEventPage(list, total, p))
}

// page reads and bounds skip and limit the same way the booking listings do.
func (h *EventHandler) page(c echo.Context) (reservation.Page, bool) {
	p, ok := pageFrom(c)
	if !ok {
		return p, false
	}
	if p.Limit == 0 {
		p.Limit = reservation.DefaultPageLimit
	}
	return p, p.Skip >= 0 && p.Limit >= 1 && p.Limit <= reservation.MaxPageLimit
}

// Search handles GET /v1/events/search.  when is "upcoming" (default),
// "past" or "any"; on_sale=true hides sold-out events.
func (h *EventHandler) Search(c echo.Context) error {
	p, ok := h.page(c)
	if !ok {
		return badRequest(c, reservation.ReasonInvalidPage, "invalid skip or limit")
	}
	when := strings.ToLower(strings.TrimSpace(c.QueryParam("when")))
	switch when {
	case "":
		when = repository.WhenUpcoming
	case repository.WhenUpcoming, repository.WhenPast, repository.WhenAny:
	default:
		return badRequest(c, "invalid_when", "when must be upcoming, past or any")
	}
	q := repository.EventSearchQuery{
		Title:      strings.TrimSpace(c.QueryParam("title")),
		Venue:      strings.TrimSpace(c.QueryParam("venue")),
		When:       when,
		OnlyOnSale: c.QueryParam("on_sale") == "true",
		Skip:       p.Skip,
		Limit:      p.Limit,
	}
	list, total, err := h.events.Search(c.Request().Context(), q)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return response.OK(c, http.StatusOK, "Events fetched successfully", toEventPage(list, total, p))
}

// Get handles GET /v1/events/:id.
func (h *EventHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, reservation.ReasonInvalidEventID, "invalid event id")
	}
	e, err := h.events.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return response.OK(c, http.StatusOK, "Event fetched successfully", toEvent(e))
}

// Availability handles GET /v1/events/:id/availability.
func (h *EventHandler) Availability(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, reservation.ReasonInvalidEventID, "invalid event id")
	}
	a, err := h.avail.Availability(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return response.OK(c, http.StatusOK, "Availability fetched successfully", AvailabilityResponse{
		EventID:        a.EventID,
		TotalSeats:     a.TotalSeats,
		AvailableSeats: a.AvailableSeats,
		ConfirmedSeats: a.ConfirmedSeats,
	})
}

type createEventRequest struct {
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Venue       *string   `json:"venue"`
	StartsAt    time.Time `json:"starts_at"`
	PriceCents  uint32    `json:"price_cents"`
	TotalSeats  int       `json:"total_seats"`
}

// Create handles POST /v1/admin/events.  Every seat starts available.
func (h *EventHandler) Create(c echo.Context) error {
	var body createEventRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid_body", "invalid request body")
	}
	body.Title = strings.TrimSpace(body.Title)
	switch {
	case body.Title == "" || len(body.Title) > maxTitleLen:
		return badRequest(c, "invalid_title", "title is required and must be at most 255 characters")
	case body.StartsAt.IsZero():
		return badRequest(c, "invalid_starts_at", "starts_at is required (RFC 3339)")
	case !body.StartsAt.After(h.now()):
		return badRequest(c, "invalid_starts_at", "starts_at must be in the future")
	case body.TotalSeats < 1 || body.TotalSeats > maxEventSeats:
		return badRequest(c, "invalid_total_seats", "total_seats must be a positive integer")
	}
	if msg, ok := checkOptional(body.Description, body.Venue); !ok {
		return badRequest(c, "invalid_body", msg)
	}
	e := &model.Event{
		Title:       body.Title,
		Description: body.Description,
		Venue:       body.Venue,
		StartsAt:    body.StartsAt.UTC(),
		PriceCents:  body.PriceCents,
		TotalSeats:  body.TotalSeats,
	}
	if err := h.events.Create(c.Request().Context(), e); err != nil {
		return writeError(c, h.log, err)
	}
	h.log.Info("event created", zap.Uint64("event_id", e.ID), zap.Int("total_seats", e.TotalSeats))
	return response.OK(c, http.StatusCreated, "Event created successfully", toEvent(e))
}

// updateEventRequest lists exactly the fields an admin may change.  Seat
// counts are not among them, and unknown fields are ignored.
type updateEventRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Venue       *string    `json:"venue"`
	StartsAt    *time.Time `json:"starts_at"`
	PriceCents  *uint32    `json:"price_cents"`
}

// Update handles PATCH /v1/admin/events/:id.
func (h *EventHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, reservation.ReasonInvalidEventID, "invalid event id")
	}
	var body updateEventRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid_body", "invalid request body")
	}
	if body.Title != nil {
		t := strings.TrimSpace(*body.Title)
		if t == "" || len(t) > maxTitleLen {
			return badRequest(c, "invalid_title", "title must be non-empty and at most 255 characters")
		}
		body.Title = &t
	}
	if body.StartsAt != nil {
		if body.StartsAt.IsZero() {
			return badRequest(c, "invalid_starts_at", "starts_at must be a valid time")
		}
		utc := body.StartsAt.UTC()
		body.StartsAt = &utc
	}
	if msg, ok := checkOptional(body.Description, body.Venue); !ok {
		return badRequest(c, "invalid_body", msg)
	}
	u := model.EventUpdate{
		Title:       body.Title,
		Description: body.Description,
		Venue:       body.Venue,
		StartsAt:    body.StartsAt,
		PriceCents:  body.PriceCents,
	}
	if u.Empty() {
		return badRequest(c, "empty_update", "no updatable fields supplied")
	}
	e, err := h.events.Update(c.Request().Context(), id, u)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return response.OK(c, http.StatusOK, "Event updated successfully", toEvent(e))
}

// Delete handles DELETE /v1/admin/events/:id.  Events that have bookings
// are refused with 409.
func (h *EventHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, reservation.ReasonInvalidEventID, "invalid event id")
	}
	if err := h.events.Delete(c.Request().Context(), id); err != nil {
		return writeError(c, h.log, err)
	}
	h.log.Info("event deleted", zap.Uint64("event_id", id))
	return response.OK(c, http.StatusOK, "Event deleted successfully", nil)
}

func checkOptional(description, venue *string) (string, bool) {
	if description != nil && len(*description) > maxDescriptionLen {
		return "description must be at most 1000 characters", false
	}
	if venue != nil && len(*venue) > maxVenueLen {
		return "venue must be at most 255 characters", false
	}
	return "", true
}
