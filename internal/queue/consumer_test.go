package queue

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type memDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (m *memDeduper) Seen(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.seen[id] {
		return true, nil
	}
	m.seen[id] = true
	return false, nil
}

func (m *memDeduper) Forget(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, id)
	return nil
}

func sampleEvent() BookingEvent {
	return BookingEvent{
		MessageID:      "m-1",
		Type:           EventBookingConfirmed,
		BookingID:      42,
		EventID:        7,
		EventTitle:     "Jazz Night",
		UserID:         "u-1",
		Quantity:       2,
		Status:         "CONFIRMED",
		AvailableSeats: 8,
		OccurredAt:     time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func readLog(t *testing.T, dir string) []string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, "booking.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(b)), "\n")
}

func TestFormatLine(t *testing.T) {
	got := FormatLine(sampleEvent())
	want := `[2026-05-01T12:00:00Z] Booking confirmed | booking_id=42 | user_id=u-1 | event_id=7 | event="Jazz Night" | quantity=2 | available_seats=8 | message_id=m-1` + "\n"
	if got != want {
		t.Errorf("FormatLine =\n%q\nwant\n%q", got, want)
	}
	ev := sampleEvent()
	ev.Type = EventBookingCancelled
	if !strings.Contains(FormatLine(ev), "Booking cancelled") {
		t.Errorf("cancelled line = %q", FormatLine(ev))
	}
}

func TestHandleAppendsAndDedupes(t *testing.T) {
	dir := t.TempDir()
	c := NewConsumer("amqp://unused", dir, &memDeduper{seen: map[string]bool{}}, zap.NewNop())
	body, _ := json.Marshal(sampleEvent())

	for i := 0; i < 3; i++ {
		if err := c.Handle(context.Background(), "m-1", body); err != nil {
			t.Fatalf("Handle #%d: %v", i, err)
		}
	}
	if lines := readLog(t, dir); len(lines) != 1 {
		t.Fatalf("log lines = %d, want 1: %v", len(lines), lines)
	}
}

func TestHandleFallsBackToPayloadMessageID(t *testing.T) {
	dir := t.TempDir()
	d := &memDeduper{seen: map[string]bool{}}
	c := NewConsumer("amqp://unused", dir, d, zap.NewNop())
	body, _ := json.Marshal(sampleEvent())

	if err := c.Handle(context.Background(), "", body); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !d.seen["m-1"] {
		t.Error("payload message id was not recorded")
	}
}

func TestHandleDedupeErrorStillWrites(t *testing.T) {
	dir := t.TempDir()
	c := NewConsumer("amqp://unused", dir, &memDeduper{err: errors.New("redis down")}, zap.NewNop())
	body, _ := json.Marshal(sampleEvent())

	if err := c.Handle(context.Background(), "m-1", body); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if lines := readLog(t, dir); len(lines) != 1 {
		t.Fatalf("log lines = %d, want 1", len(lines))
	}
}

func TestHandleRejectsMalformedBody(t *testing.T) {
	c := NewConsumer("amqp://unused", t.TempDir(), nil, zap.NewNop())
	if err := c.Handle(context.Background(), "m-1", []byte("{not json")); err == nil {
		t.Fatal("Handle accepted malformed body")
	}
}

func TestHandleForgetsIDOnWriteFailure(t *testing.T) {
	// A regular file where the directory should be makes MkdirAll fail.
	parent := t.TempDir()
	blocker := filepath.Join(parent, "logs")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	d := &memDeduper{seen: map[string]bool{}}
	c := NewConsumer("amqp://unused", blocker, d, zap.NewNop())
	body, _ := json.Marshal(sampleEvent())

	if err := c.Handle(context.Background(), "m-1", body); err == nil {
		t.Fatal("Handle succeeded writing into a file path")
	}
	if d.seen["m-1"] {
		t.Error("failed message id should have been forgotten")
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewConsumer("amqp://127.0.0.1:1/", t.TempDir(), nil, zap.NewNop())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
