package reservation

import (
	"errors"
	"fmt"
)

// Kind classifies a reservation failure.  The HTTP layer maps each kind to
// one status code.
type Kind string

const (
	KindInvalid   Kind = "invalid"
	KindNotFound  Kind = "not_found"
	KindForbidden Kind = "forbidden"
	KindConflict  Kind = "conflict"
	KindInternal  Kind = "internal"
)

// Machine-readable reasons carried alongside the kind.
const (
	ReasonInvalidEventID        = "invalid_event_id"
	ReasonInvalidUserID         = "invalid_user_id"
	ReasonInvalidQuantity       = "invalid_quantity"
	ReasonInvalidBookingID      = "invalid_booking_id"
	ReasonInvalidPage           = "invalid_page"
	ReasonInvalidIdempotencyKey = "invalid_idempotency_key"
	ReasonEventNotFound         = "event_not_found"
	ReasonBookingNotFound       = "booking_not_found"
	ReasonNotOwner              = "not_owner"
	ReasonDuplicateBooking      = "duplicate_booking"
	ReasonInsufficientSeats     = "insufficient_seats"
	ReasonAlreadyCancelled      = "already_cancelled"
	ReasonNotCancellable        = "not_cancellable"
	ReasonIdempotencyMismatch   = "idempotency_mismatch"
	ReasonLockTimeout           = "lock_timeout"
	ReasonRequestCancelled      = "request_cancelled"
	ReasonInventoryInconsistent = "inventory_inconsistent"
	ReasonStoreFailure          = "store_failure"
)

// Error is the only error type the engine returns.  Message is safe to show
// to clients.  The underlying store error, if any, is kept for errors.Is
// and logging but never rendered.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.err }

// Is matches another *Error with the same kind and, when the target names
// one, the same reason.  This makes the exported sentinels below usable
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Reason == "" || e.Reason == t.Reason)
}

// Sentinels for errors.Is.
var (
	ErrInvalid               = &Error{Kind: KindInvalid}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrForbidden             = &Error{Kind: KindForbidden}
	ErrConflict              = &Error{Kind: KindConflict}
	ErrInternal              = &Error{Kind: KindInternal}
	ErrDuplicateBooking      = &Error{Kind: KindConflict, Reason: ReasonDuplicateBooking}
	ErrInsufficientSeats     = &Error{Kind: KindConflict, Reason: ReasonInsufficientSeats}
	ErrAlreadyCancelled      = &Error{Kind: KindConflict, Reason: ReasonAlreadyCancelled}
	ErrNotCancellable        = &Error{Kind: KindConflict, Reason: ReasonNotCancellable}
	ErrIdempotencyMismatch   = &Error{Kind: KindConflict, Reason: ReasonIdempotencyMismatch}
	ErrLockTimeout           = &Error{Kind: KindInternal, Reason: ReasonLockTimeout}
	ErrRequestCancelled      = &Error{Kind: KindInternal, Reason: ReasonRequestCancelled}
	ErrInventoryInconsistent = &Error{Kind: KindInternal, Reason: ReasonInventoryInconsistent}
)

// KindOf returns the kind of err, or KindInternal for errors that did not
// come from the engine.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func invalid(reason, msg string) *Error {
	return &Error{Kind: KindInvalid, Reason: reason, Message: msg}
}

func notFound(reason, msg string) *Error {
	return &Error{Kind: KindNotFound, Reason: reason, Message: msg}
}

func conflict(reason, msg string) *Error {
	return &Error{Kind: KindConflict, Reason: reason, Message: msg}
}

func forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Reason: ReasonNotOwner, Message: msg}
}

func internal(reason, msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Reason: reason, Message: msg, err: cause}
}
