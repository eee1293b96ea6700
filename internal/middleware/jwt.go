package middleware // reusable HTTP middleware for the booking API

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/response"
	"github.com/iliyamo/event-ticketing/internal/utils"
)

// Context keys set by JWTAuth.
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and stores the token's subject and role in the request context.  The
// secret must match the one the identity provider signs with.  Handlers
// read the caller through UserID and Role, never from the request body.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return response.Fail(c, http.StatusUnauthorized, "unauthorized", "missing_token", "missing bearer token")
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			claims, err := utils.ParseAccessToken(secret, raw)
			switch {
			case errors.Is(err, utils.ErrWrongScope):
				return response.Fail(c, http.StatusUnauthorized, "unauthorized", "wrong_scope", "access token required")
			case err != nil:
				return response.Fail(c, http.StatusUnauthorized, "unauthorized", "invalid_token", "invalid token")
			}

			c.Set(CtxUserID, claims.Subject)
			c.Set(CtxRole, claims.Role)
			return next(c)
		}
	}
}
