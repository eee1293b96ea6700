package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/reservation"
	"github.com/iliyamo/event-ticketing/internal/utils"
)

const secret = "router-secret"

// stub answers every call with a fixed value; the router test only checks
// which routes exist and how they are guarded.
type stub struct{}

func (stub) ReserveWithReplay(context.Context, reservation.ReserveRequest) (*model.Booking, bool, error) {
	return &model.Booking{ID: 1}, false, nil
}

func (stub) Cancel(context.Context, uint64, string) (*model.Booking, error) {
	return &model.Booking{ID: 1}, nil
}

func (stub) GetBooking(context.Context, uint64, string, bool) (*model.Booking, error) {
	return &model.Booking{ID: 1}, nil
}

func (stub) ListUserBookings(context.Context, string, reservation.Page) (*reservation.BookingPage, error) {
	return &reservation.BookingPage{Items: []model.Booking{}}, nil
}

func (stub) ListEventBookings(context.Context, uint64, reservation.Page) (*reservation.BookingPage, error) {
	return &reservation.BookingPage{Items: []model.Booking{}}, nil
}

func (stub) ListAllBookings(context.Context, reservation.Page) (*reservation.BookingPage, error) {
	return &reservation.BookingPage{Items: []model.Booking{}}, nil
}

func (stub) Availability(_ context.Context, id uint64) (*reservation.Availability, error) {
	return &reservation.Availability{EventID: id}, nil
}

func (stub) Create(_ context.Context, e *model.Event) error {
	e.ID = 1
	return nil
}

func (stub) GetByID(_ context.Context, id uint64) (*model.Event, error) {
	if id != 1 {
		return nil, repository.ErrEventNotFound
	}
	return &model.Event{ID: 1, Title: "x"}, nil
}

func (s stub) Update(ctx context.Context, id uint64, _ model.EventUpdate) (*model.Event, error) {
	return s.GetByID(ctx, id)
}

func (stub) List(context.Context, int, int) ([]model.Event, error) { return []model.Event{}, nil }

func (stub) Count(context.Context) (int, error) { return 0, nil }

func (stub) Delete(context.Context, uint64) error { return nil }

func (stub) Search(context.Context, repository.EventSearchQuery) ([]model.Event, int, error) {
	return []model.Event{}, 0, nil
}

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

func newRouter() http.Handler {
	log := zap.NewNop()
	return New(Deps{
		Log:            log,
		DB:             okPinger{},
		JWTSecret:      secret,
		RequestTimeout: time.Second,
		Bookings:       handler.NewBookingHandler(stub{}, log),
		Events:         handler.NewEventHandler(stub{}, stub{}, log),
	})
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	at, err := utils.NewAccessToken(secret, "u-1", role, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + at.Token
}

func TestRoutes(t *testing.T) {
	h := newRouter()
	user, admin := bearer(t, utils.RoleUser), bearer(t, utils.RoleAdmin)

	cases := []struct {
		method, path, auth string
		want               int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/v1/events", "", http.StatusOK},
		{http.MethodGet, "/v1/events/1", "", http.StatusOK},
		{http.MethodGet, "/v1/events/search?title=x", "", http.StatusOK},
		{http.MethodGet, "/v1/events/1/availability", "", http.StatusOK},
		{http.MethodGet, "/v1/bookings", "", http.StatusUnauthorized},
		{http.MethodGet, "/v1/bookings", user, http.StatusOK},
		{http.MethodGet, "/v1/bookings/1", user, http.StatusOK},
		{http.MethodDelete, "/v1/bookings/1", user, http.StatusOK},
		{http.MethodDelete, "/v1/bookings/1", admin, http.StatusOK},
		{http.MethodGet, "/v1/admin/bookings", user, http.StatusForbidden},
		{http.MethodGet, "/v1/admin/bookings", admin, http.StatusOK},
		{http.MethodGet, "/v1/admin/events/1/bookings", admin, http.StatusOK},
		{http.MethodPatch, "/v1/admin/events/1", admin, http.StatusBadRequest},
		{http.MethodDelete, "/v1/admin/events/1", user, http.StatusForbidden},
		{http.MethodDelete, "/v1/admin/events/1", admin, http.StatusOK},
		{http.MethodGet, "/v1/nope", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if tc.auth != "" {
			req.Header.Set("Authorization", tc.auth)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s %s: got %d, want %d (%s)", tc.method, tc.path, rec.Code, tc.want, rec.Body.String())
		}
	}
}

func TestRequestIDEchoed(t *testing.T) {
	h := newRouter()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q", got)
	}
}
