//go:build integration

package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/outbox"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// startMySQL runs a throwaway MySQL 8 container, applies the schema and
// returns connection options for it.
func startMySQL(t *testing.T) database.Options {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	c, err := tcmysql.Run(ctx,
		"mysql:8.0.36",
		tcmysql.WithDatabase("ticketing"),
		tcmysql.WithUsername("app"),
		tcmysql.WithPassword("app"),
	)
	if err != nil {
		t.Fatalf("start mysql: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := c.MappedPort(ctx, "3306/tcp")
	if err != nil {
		t.Fatal(err)
	}
	opts := database.Options{
		User:         "app",
		Pass:         "app",
		Host:         host,
		Port:         port.Port(),
		Name:         "ticketing",
		LockWait:     5 * time.Second,
		MaxOpenConns: 20,
	}

	db := openDB(t, opts)
	for i := 0; i < 2; i++ {
		if err := database.Migrate(ctx, db); err != nil {
			t.Fatalf("migrate (run %d): %v", i+1, err)
		}
	}
	return opts
}

func openDB(t *testing.T, opts database.Options) *sql.DB {
	t.Helper()
	db, err := database.Open(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type stack struct {
	db       *sql.DB
	tx       *database.TxCoordinator
	events   *repository.EventRepo
	bookings *repository.BookingRepo
	outbox   *repository.OutboxRepo
	engine   *Engine
}

func newStack(t *testing.T, opts database.Options) *stack {
	db := openDB(t, opts)
	s := &stack{
		db:       db,
		tx:       database.NewTxCoordinator(db),
		events:   repository.NewEventRepo(db),
		bookings: repository.NewBookingRepo(db),
		outbox:   repository.NewOutboxRepo(db),
	}
	s.engine = NewEngine(s.tx, s.events, s.bookings, s.outbox, zap.NewNop())
	return s
}

func (s *stack) newEvent(t *testing.T, seats int) uint64 {
	t.Helper()
	e := &model.Event{Title: "Integration " + t.Name(), StartsAt: time.Now().Add(24 * time.Hour).UTC(), TotalSeats: seats}
	if err := s.events.Create(context.Background(), e); err != nil {
		t.Fatalf("create event: %v", err)
	}
	return e.ID
}

type countingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *countingPublisher) Publish(_ context.Context, msg model.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, msg.EventType)
	return nil
}

func TestIntegrationMySQL(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	opts := startMySQL(t)
	s := newStack(t, opts)
	ctx := context.Background()

	t.Run("no oversell under contention", func(t *testing.T) {
		id := s.newEvent(t, 20)
		var (
			wg          sync.WaitGroup
			mu          sync.Mutex
			ok, soldOut int
			unexpected  []error
		)
		for i := 0; i < 40; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.engine.Reserve(ctx, ReserveRequest{EventID: id, UserID: fmt.Sprintf("load-%d", i), Quantity: 1})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case errors.Is(err, ErrInsufficientSeats):
					soldOut++
				default:
					unexpected = append(unexpected, err)
				}
			}(i)
		}
		wg.Wait()
		if len(unexpected) > 0 {
			t.Fatalf("unexpected errors: %v", unexpected)
		}
		if ok != 20 || soldOut != 20 {
			t.Errorf("ok=%d soldOut=%d, want 20/20", ok, soldOut)
		}
		assertBalanced(t, s.engine, id)
	})

	t.Run("one active booking per user", func(t *testing.T) {
		id := s.newEvent(t, 50)
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			ok, dups int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.engine.Reserve(ctx, ReserveRequest{EventID: id, UserID: "same-user", Quantity: 2})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					ok++
				} else if errors.Is(err, ErrDuplicateBooking) {
					dups++
				} else {
					t.Errorf("reserve: %v", err)
				}
			}()
		}
		wg.Wait()
		if ok != 1 || dups != 9 {
			t.Errorf("ok=%d dups=%d, want 1/9", ok, dups)
		}
		assertBalanced(t, s.engine, id)
	})

	t.Run("idempotent retry returns the same booking", func(t *testing.T) {
		id := s.newEvent(t, 5)
		req := ReserveRequest{EventID: id, UserID: "retry-user", Quantity: 2, IdempotencyKey: "k-1"}
		first, err := s.engine.Reserve(ctx, req)
		if err != nil {
			t.Fatal(err)
		}
		again, err := s.engine.Reserve(ctx, req)
		if err != nil {
			t.Fatal(err)
		}
		if again.ID != first.ID {
			t.Errorf("replay id = %d, want %d", again.ID, first.ID)
		}
		req.Quantity = 3
		_, err = s.engine.Reserve(ctx, req)
		wantErr(t, err, ErrIdempotencyMismatch)
	})

	t.Run("cancel restores seats and feeds the outbox", func(t *testing.T) {
		id := s.newEvent(t, 4)
		b, err := s.engine.Reserve(ctx, ReserveRequest{EventID: id, UserID: "canceller", Quantity: 4})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.engine.Cancel(ctx, b.ID, "intruder"); !errors.Is(err, ErrForbidden) {
			t.Fatalf("foreign cancel err = %v", err)
		}
		c, err := s.engine.Cancel(ctx, b.ID, "canceller")
		if err != nil {
			t.Fatal(err)
		}
		if c.Status != model.BookingCancelled {
			t.Errorf("status = %s", c.Status)
		}
		_, err = s.engine.Cancel(ctx, b.ID, "canceller")
		wantErr(t, err, ErrAlreadyCancelled)

		ev, err := s.events.GetByID(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if ev.AvailableSeats != 4 {
			t.Errorf("available = %d, want 4", ev.AvailableSeats)
		}

		pub := &countingPublisher{}
		relay := outbox.NewRelay(zap.NewNop(), s.tx, s.outbox, pub, time.Second, 1000)
		for {
			n, err := relay.Tick(ctx)
			if err != nil {
				t.Fatalf("tick: %v", err)
			}
			if n == 0 {
				break
			}
		}
		var confirmed, cancelled int
		for _, typ := range pub.types {
			switch typ {
			case "booking.confirmed":
				confirmed++
			case "booking.cancelled":
				cancelled++
			}
		}
		if cancelled < 1 || confirmed < cancelled {
			t.Errorf("published confirmed=%d cancelled=%d", confirmed, cancelled)
		}
	})

	t.Run("blocked row lock surfaces as lock timeout", func(t *testing.T) {
		id := s.newEvent(t, 3)
		fast := opts
		fast.LockWait = time.Second
		impatient := newStack(t, fast)

		holder, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		defer holder.Rollback()
		if _, err := holder.ExecContext(ctx, "SELECT id FROM events WHERE id = ? FOR UPDATE", id); err != nil {
			t.Fatal(err)
		}

		_, err = impatient.engine.Reserve(ctx, ReserveRequest{EventID: id, UserID: "waiter", Quantity: 1})
		wantErr(t, err, ErrLockTimeout)

		_ = holder.Rollback()
		assertBalanced(t, s.engine, id)
	})
}
