package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/utils"
)

// RegisterBookings registers the booking endpoints under /v1/bookings.
// Every route requires a valid access token; the writes are rate limited
// per caller.
func RegisterBookings(e *echo.Echo, d Deps) {
	g := e.Group(
		"/v1/bookings",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(utils.RoleUser, utils.RoleAdmin),
	)
	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log)

	g.POST("", d.Bookings.Create, limit)
	g.GET("", d.Bookings.ListMine)
	g.GET("/:id", d.Bookings.Get)
	g.DELETE("/:id", d.Bookings.Cancel, limit)
}
