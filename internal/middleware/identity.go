package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/utils"
)

// UserID returns the authenticated caller's id, or "" when JWTAuth did not
// run for this route.
func UserID(c echo.Context) string {
	s, _ := c.Get(CtxUserID).(string)
	return s
}

// Role returns the authenticated caller's role, or "".
func Role(c echo.Context) string {
	s, _ := c.Get(CtxRole).(string)
	return s
}

// IsAdmin reports whether the caller holds the admin role.
func IsAdmin(c echo.Context) bool { return Role(c) == utils.RoleAdmin }

// userKey identifies the caller for rate limiting, falling back to "anon"
// on unauthenticated routes.
func userKey(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "anon"
}
