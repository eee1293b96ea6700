package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/reservation"
	"github.com/iliyamo/event-ticketing/internal/response"
)

// statusFor maps an engine error kind to its HTTP status.
func statusFor(k reservation.Kind) int {
	switch k {
	case reservation.KindInvalid:
		return http.StatusBadRequest
	case reservation.KindNotFound:
		return http.StatusNotFound
	case reservation.KindForbidden:
		return http.StatusForbidden
	case reservation.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as an error envelope.  Engine errors carry their
// own kind, reason and client-safe message.  Anything else is reported as
// an opaque internal error.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	var re *reservation.Error
	if errors.As(err, &re) {
		return response.Fail(c, statusFor(re.Kind), string(re.Kind), re.Reason, re.Message)
	}
	if errors.Is(err, repository.ErrEventNotFound) {
		return response.Fail(c, http.StatusNotFound, string(reservation.KindNotFound), reservation.ReasonEventNotFound, "event not found")
	}
	if errors.Is(err, repository.ErrDuplicateTitle) {
		return response.Fail(c, http.StatusConflict, string(reservation.KindConflict), "duplicate_title", "an event with this title already exists")
	}
	if errors.Is(err, repository.ErrEventHasBookings) {
		return response.Fail(c, http.StatusConflict, string(reservation.KindConflict), "event_has_bookings", "event has bookings and cannot be deleted")
	}
	log.Error("request failed", zap.String("path", c.Request().URL.Path), zap.Error(err))
	return response.Fail(c, http.StatusInternalServerError, string(reservation.KindInternal), "", "internal error")
}

func badRequest(c echo.Context, reason, msg string) error {
	return response.Fail(c, http.StatusBadRequest, string(reservation.KindInvalid), reason, msg)
}

// pathID parses a positive integer path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// pageFrom reads skip and limit query parameters.  Range checks are left
// to the engine so every entry point applies the same bounds.
func pageFrom(c echo.Context) (reservation.Page, bool) {
	var p reservation.Page
	if v := c.QueryParam("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, false
		}
		p.Skip = n
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, false
		}
		p.Limit = n
	}
	return p, true
}
