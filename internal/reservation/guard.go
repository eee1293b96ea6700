package reservation

import (
	"context"
	"fmt"
)

// ConfirmedChecker answers whether a user already holds a CONFIRMED
// booking for an event.
type ConfirmedChecker interface {
	HasConfirmed(ctx context.Context, eventID uint64, userID string) (bool, error)
}

// Guard rejects a second active booking by the same user for the same
// event.  Outside a transaction its answer is advisory.  Called after the
// event row lock is held it is authoritative, because every booking for
// that event is created under the same lock.  The unique index on
// (event_id, active_user_id) backs it up either way.
type Guard struct {
	bookings ConfirmedChecker
}

func NewGuard(bookings ConfirmedChecker) *Guard {
	return &Guard{bookings: bookings}
}

// Check returns a duplicate_booking conflict when userID already holds a
// CONFIRMED booking for eventID.  Store failures are returned unchanged.
func (g *Guard) Check(ctx context.Context, eventID uint64, userID string) error {
	exists, err := g.bookings.HasConfirmed(ctx, eventID, userID)
	if err != nil {
		return err
	}
	if exists {
		return conflict(ReasonDuplicateBooking,
			fmt.Sprintf("user already holds an active booking for event %d", eventID))
	}
	return nil
}
