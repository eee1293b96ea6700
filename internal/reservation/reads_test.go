package reservation

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestGetBookingVisibility(t *testing.T) {
	e, _ := newEngine(event(1, 10))
	b := reserve(t, e, 1, "u1", 1)
	ctx := context.Background()

	if _, err := e.GetBooking(ctx, b.ID, "u1", false); err != nil {
		t.Errorf("owner GetBooking: %v", err)
	}
	if _, err := e.GetBooking(ctx, b.ID, "admin-1", true); err != nil {
		t.Errorf("admin GetBooking: %v", err)
	}
	_, err := e.GetBooking(ctx, b.ID, "u2", false)
	wantErr(t, err, ErrForbidden)
	_, err = e.GetBooking(ctx, 999, "u1", false)
	wantErr(t, err, ErrNotFound)
	_, err = e.GetBooking(ctx, 0, "u1", false)
	wantErr(t, err, ErrInvalid)
}

func TestListUserBookingsPages(t *testing.T) {
	e, _ := newEngine(event(1, 10), event(2, 10), event(3, 10), event(4, 10), event(5, 10))
	for id := uint64(1); id <= 5; id++ {
		reserve(t, e, id, "u1", 1)
	}
	reserve(t, e, 1, "u2", 1)

	page, err := e.ListUserBookings(context.Background(), "u1", Page{Skip: 1, Limit: 2})
	if err != nil {
		t.Fatalf("ListUserBookings: %v", err)
	}
	if page.Total != 5 || len(page.Items) != 2 || page.Skip != 1 || page.Limit != 2 {
		t.Fatalf("page = total %d, items %d, skip %d, limit %d", page.Total, len(page.Items), page.Skip, page.Limit)
	}
	if page.Items[0].ID <= page.Items[1].ID {
		t.Errorf("items not newest first: %d, %d", page.Items[0].ID, page.Items[1].ID)
	}

	page, err = e.ListUserBookings(context.Background(), "nobody", Page{})
	if err != nil {
		t.Fatalf("ListUserBookings: %v", err)
	}
	if page.Limit != DefaultPageLimit || page.Items == nil || len(page.Items) != 0 {
		t.Errorf("empty page = %+v", page)
	}
}

func TestPageBounds(t *testing.T) {
	e, _ := newEngine(event(1, 10))
	for _, p := range []Page{{Skip: -1}, {Limit: -1}, {Limit: MaxPageLimit + 1}} {
		t.Run(fmt.Sprintf("%+v", p), func(t *testing.T) {
			_, err := e.ListAllBookings(context.Background(), p)
			wantErr(t, err, &Error{Kind: KindInvalid, Reason: ReasonInvalidPage})
		})
	}
	if _, err := e.ListAllBookings(context.Background(), Page{Limit: MaxPageLimit}); err != nil {
		t.Errorf("limit %d rejected: %v", MaxPageLimit, err)
	}
}

func TestListEventBookings(t *testing.T) {
	e, _ := newEngine(event(1, 10), event(2, 10))
	b := reserve(t, e, 1, "u1", 2)
	reserve(t, e, 2, "u1", 2)
	if _, err := e.Cancel(context.Background(), b.ID, "u1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	reserve(t, e, 1, "u1", 1)

	page, err := e.ListEventBookings(context.Background(), 1, Page{})
	if err != nil {
		t.Fatalf("ListEventBookings: %v", err)
	}
	if page.Total != 2 {
		t.Errorf("total = %d, want 2 (cancelled bookings stay listed)", page.Total)
	}
	_, err = e.ListEventBookings(context.Background(), 77, Page{})
	wantErr(t, err, &Error{Kind: KindNotFound, Reason: ReasonEventNotFound})
}

func TestAvailability(t *testing.T) {
	e, _ := newEngine(event(1, 10))
	reserve(t, e, 1, "u1", 3)
	reserve(t, e, 1, "u2", 2)

	a, err := e.Availability(context.Background(), 1)
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if a.TotalSeats != 10 || a.AvailableSeats != 5 || a.ConfirmedSeats != 5 || !a.Balanced() {
		t.Errorf("availability = %+v", a)
	}
	_, err = e.Availability(context.Background(), 2)
	if KindOf(err) != KindNotFound {
		t.Errorf("kind = %s, want not_found", KindOf(err))
	}
}

func TestErrorMatching(t *testing.T) {
	err := conflict(ReasonInsufficientSeats, "not enough seats")
	if !errors.Is(err, ErrConflict) || !errors.Is(err, ErrInsufficientSeats) {
		t.Error("conflict should match ErrConflict and ErrInsufficientSeats")
	}
	if errors.Is(err, ErrDuplicateBooking) {
		t.Error("insufficient_seats matched duplicate_booking")
	}
	wrapped := fmt.Errorf("handler: %w", err)
	if KindOf(wrapped) != KindConflict {
		t.Errorf("KindOf(wrapped) = %s", KindOf(wrapped))
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Error("foreign errors should classify as internal")
	}
	cause := errors.New("driver: bad connection")
	ie := internal(ReasonStoreFailure, "internal error", cause)
	if ie.Error() != "internal error" || !errors.Is(ie, cause) {
		t.Errorf("internal error = %q, unwraps cause = %v", ie.Error(), errors.Is(ie, cause))
	}
}
