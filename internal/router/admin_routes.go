package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/utils"
)

// RegisterAdmin registers operator endpoints under /v1/admin.  All routes
// require the admin role.  Seat counts cannot be edited here; they only
// move through bookings.
func RegisterAdmin(e *echo.Echo, d Deps) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(utils.RoleAdmin),
	)
	g.POST("/events", d.Events.Create)
	g.PATCH("/events/:id", d.Events.Update)
	g.DELETE("/events/:id", d.Events.Delete)
	g.GET("/events/:id/bookings", d.Bookings.ListByEvent)
	g.GET("/bookings", d.Bookings.ListAll)
}
