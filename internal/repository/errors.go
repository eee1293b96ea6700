// Package repository holds the MySQL access code for events, bookings and
// the booking outbox.  Every method resolves its executor through
// database.ExecutorFrom, so the same call joins the caller's transaction
// when one is open and runs standalone otherwise.  Methods that take row
// locks or mutate inventory refuse to run outside a transaction.
package repository

import "errors"

// ErrEventNotFound is returned when no event has the requested id.
var ErrEventNotFound = errors.New("event not found")

// ErrDuplicateTitle is returned when another event already uses the title.
var ErrDuplicateTitle = errors.New("event title already exists")

// ErrEventHasBookings is returned when deleting an event that bookings
// still reference.
var ErrEventHasBookings = errors.New("event has bookings")

// ErrBookingNotFound is returned when no booking matches the lookup.
var ErrBookingNotFound = errors.New("booking not found")

// ErrNoTransaction is returned by locking and mutating methods that were
// called with a context that does not carry a transaction.
var ErrNoTransaction = errors.New("repository: transaction required")

// ErrSeatBounds is returned when an inventory adjustment would move
// available_seats outside [0, total_seats].
var ErrSeatBounds = errors.New("available seats out of bounds")

// ErrStatusChanged is returned by a compare-and-set status update when the
// row was no longer in the expected state.
var ErrStatusChanged = errors.New("booking status changed")
