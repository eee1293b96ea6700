package middleware

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
)

// Deadline bounds the request context by d.  Row lock waits inside a
// booking transaction observe it, so a request never blocks longer than d
// even if the database's own lock wait timeout is larger.
func Deadline(d time.Duration) echo.MiddlewareFunc {
	if d <= 0 {
		return passThrough
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), d)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
