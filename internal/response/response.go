// Package response renders the JSON envelope every endpoint answers with:
//
//	{"status": "success"|"error", "message": "...", "code": 201, "data": {...}}
//
// Error envelopes add "error" (the failure kind) and "reason" (a machine
// readable detail) and carry a null data field.
package response

import "github.com/labstack/echo/v4"

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Error   string `json:"error,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// OK writes a success envelope with the given HTTP status.
func OK(c echo.Context, code int, message string, data any) error {
	return c.JSON(code, Envelope{Status: StatusSuccess, Message: message, Code: code, Data: data})
}

// Fail writes an error envelope with the given HTTP status.
func Fail(c echo.Context, code int, kind, reason, message string) error {
	return c.JSON(code, Envelope{Status: StatusError, Message: message, Code: code, Error: kind, Reason: reason})
}
