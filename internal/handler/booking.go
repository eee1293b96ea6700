package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/reservation"
	"github.com/iliyamo/event-ticketing/internal/response"
)

// IdempotencyKeyHeader lets clients retry POST /v1/bookings safely.
const IdempotencyKeyHeader = "Idempotency-Key"

// BookingService is the slice of the reservation engine the HTTP layer
// drives.
type BookingService interface {
	ReserveWithReplay(ctx context.Context, req reservation.ReserveRequest) (*model.Booking, bool, error)
	Cancel(ctx context.Context, bookingID uint64, userID string) (*model.Booking, error)
	GetBooking(ctx context.Context, bookingID uint64, userID string, admin bool) (*model.Booking, error)
	ListUserBookings(ctx context.Context, userID string, p reservation.Page) (*reservation.BookingPage, error)
	ListEventBookings(ctx context.Context, eventID uint64, p reservation.Page) (*reservation.BookingPage, error)
	ListAllBookings(ctx context.Context, p reservation.Page) (*reservation.BookingPage, error)
	Availability(ctx context.Context, eventID uint64) (*reservation.Availability, error)
}

// BookingHandler serves the booking endpoints.  Every route is behind
// JWTAuth, and the caller's identity always comes from the token.
type BookingHandler struct {
	svc BookingService
	log *zap.Logger
}

func NewBookingHandler(svc BookingService, log *zap.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, log: log}
}

type createBookingRequest struct {
	EventID  uint64          `json:"event_id"`
	Quantity json.RawMessage `json:"quantity"`
}

// quantity returns the requested seat count.  Only an absent field means
// the default of one; null, zero and out-of-range values go to the engine
// unchanged and fail validation there.
func (r createBookingRequest) quantity() (int, bool) {
	if len(r.Quantity) == 0 {
		return 1, true
	}
	if string(r.Quantity) == "null" {
		return 0, true
	}
	var n int
	if err := json.Unmarshal(r.Quantity, &n); err != nil {
		return 0, false
	}
	return n, true
}

// Create handles POST /v1/bookings.  A missing quantity books one seat.
// Any user_id in the body is ignored.  A retry carrying an Idempotency-Key
// that already produced a booking answers 200 with that booking instead
// of 201.
func (h *BookingHandler) Create(c echo.Context) error {
	var body createBookingRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid_body", "invalid request body")
	}
	qty, ok := body.quantity()
	if !ok {
		return badRequest(c, reservation.ReasonInvalidQuantity, "quantity must be an integer")
	}
	b, replayed, err := h.svc.ReserveWithReplay(c.Request().Context(), reservation.ReserveRequest{
		EventID:        body.EventID,
		UserID:         middleware.UserID(c),
		Quantity:       qty,
		IdempotencyKey: c.Request().Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	if replayed {
		return response.OK(c, http.StatusOK, "Booking already exists for this idempotency key", toBooking(b))
	}
	return response.OK(c, http.StatusCreated, "Booking created successfully", toBooking(b))
}

// Cancel handles DELETE /v1/bookings/:id.
func (h *BookingHandler) Cancel(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, reservation.ReasonInvalidBookingID, "invalid booking id")
	}
	b, err := h.svc.Cancel(c.Request().Context(), id, middleware.UserID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return response.OK(c, http.StatusOK, "Booking cancelled successfully", toBooking(b))
}

// Get handles GET /v1/bookings/:id.  Admins may read any booking.
func (h *BookingHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, reservation.ReasonInvalidBookingID, "invalid booking id")
	}
	b, err := h.svc.GetBooking(c.Request().Context(), id, middleware.UserID(c), middleware.IsAdmin(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return response.OK(c, http.StatusOK, "Booking fetched successfully", toBooking(b))
}

// ListMine handles GET /v1/bookings.
func (h *BookingHandler) ListMine(c echo.Context) error {
	p, ok := pageFrom(c)
	if !ok {
		return badRequest(c, reservation.ReasonInvalidPage, "skip and limit must be integers")
	}
	page, err := h.svc.ListUserBookings(c.Request().Context(), middleware.UserID(c), p)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return response.OK(c, http.StatusOK, "Bookings fetched successfully", toBookingPage(page))
}

// ListAll handles GET /v1/admin/bookings.
func (h *BookingHandler) ListAll(c echo.Context) error {
	p, ok := pageFrom(c)
	if !ok {
		return badRequest(c, reservation.ReasonInvalidPage, "skip and limit must be integers")
	}
	page, err := h.svc.ListAllBookings(c.Request().Context(), p)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return response.OK(c, http.StatusOK, "Bookings fetched successfully", toBookingPage(page))
}

// ListByEvent handles GET /v1/admin/events/:id/bookings.
func (h *BookingHandler) ListByEvent(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, reservation.ReasonInvalidEventID, "invalid event id")
	}
	p, ok := pageFrom(c)
	if !ok {
		return badRequest(c, reservation.ReasonInvalidPage, "skip and limit must be integers")
	}
	page, err := h.svc.ListEventBookings(c.Request().Context(), id, p)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return response.OK(c, http.StatusOK, "Bookings fetched successfully", toBookingPage(page))
}
