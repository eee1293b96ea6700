package reservation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// memStore is an in-memory store that behaves like the MySQL repositories
// where the engine's guarantees depend on it: FOR UPDATE reads take an
// exclusive per-row lock held until the unit-of-work ends, writes outside
// a unit-of-work are refused, the two unique keys on bookings are enforced,
// and a failed or panicking unit-of-work is undone.
type memStore struct {
	mu       sync.Mutex
	events   map[uint64]*model.Event
	bookings map[uint64]*model.Booking
	outbox   []model.OutboxMessage
	nextID   uint64
	locks    map[string]chan struct{}

	// Failure injection.
	failCreate    error
	panicCreate   bool
	hideConfirmed bool
}

type memTx struct {
	held map[string]chan struct{}
	undo []func() // run with mu held
}

type memTxKey struct{}

func newMemStore(events ...model.Event) *memStore {
	s := &memStore{
		events:   map[uint64]*model.Event{},
		bookings: map[uint64]*model.Booking{},
		locks:    map[string]chan struct{}{},
	}
	for i := range events {
		e := events[i]
		s.events[e.ID] = &e
	}
	return s
}

func txOf(ctx context.Context) (*memTx, bool) {
	tx, ok := ctx.Value(memTxKey{}).(*memTx)
	return tx, ok
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txOf(ctx); ok {
		return database.ErrNestedTransaction
	}
	tx := &memTx{held: map[string]chan struct{}{}}
	committed := false
	defer func() {
		if !committed {
			s.mu.Lock()
			for i := len(tx.undo) - 1; i >= 0; i-- {
				tx.undo[i]()
			}
			s.mu.Unlock()
		}
		for _, l := range tx.held {
			<-l
		}
	}()
	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *memStore) lock(ctx context.Context, key string) (*memTx, error) {
	tx, ok := txOf(ctx)
	if !ok {
		return nil, repository.ErrNoTransaction
	}
	if _, held := tx.held[key]; held {
		return tx, nil
	}
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[key] = l
	}
	s.mu.Unlock()
	select {
	case l <- struct{}{}:
		tx.held[key] = l
		return tx, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *memStore) eventCopy(id uint64) (*model.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// memEvents adapts memStore to EventStore.  Both store sides share one
// memStore so a unit-of-work sees and undoes writes to either.
type memEvents struct{ *memStore }

func (m memEvents) GetByID(_ context.Context, id uint64) (*model.Event, error) {
	e, ok := m.eventCopy(id)
	if !ok {
		return nil, repository.ErrEventNotFound
	}
	return e, nil
}

func (m memEvents) GetForUpdate(ctx context.Context, id uint64) (*model.Event, error) {
	if _, err := m.lock(ctx, fmt.Sprintf("event:%d", id)); err != nil {
		return nil, err
	}
	return m.GetByID(ctx, id)
}

func (m memEvents) AdjustAvailableSeats(ctx context.Context, id uint64, delta int) error {
	tx, ok := txOf(ctx)
	if !ok {
		return repository.ErrNoTransaction
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return repository.ErrEventNotFound
	}
	next := e.AvailableSeats + delta
	if next < 0 || next > e.TotalSeats {
		return repository.ErrSeatBounds
	}
	e.AvailableSeats = next
	tx.undo = append(tx.undo, func() { m.events[id].AvailableSeats -= delta })
	return nil
}

type memBookings struct{ *memStore }

func (m memBookings) get(id uint64) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, repository.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (m memBookings) GetByID(_ context.Context, id uint64) (*model.Booking, error) {
	return m.get(id)
}

func (m memBookings) GetForUpdate(ctx context.Context, id uint64) (*model.Booking, error) {
	if _, err := m.lock(ctx, fmt.Sprintf("booking:%d", id)); err != nil {
		return nil, err
	}
	return m.get(id)
}

func (m memBookings) HasConfirmed(_ context.Context, eventID uint64, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hideConfirmed {
		return false, nil
	}
	return m.hasConfirmedLocked(eventID, userID), nil
}

func (m memBookings) hasConfirmedLocked(eventID uint64, userID string) bool {
	for _, b := range m.bookings {
		if b.EventID == eventID && b.UserID == userID && b.Status == model.BookingConfirmed {
			return true
		}
	}
	return false
}

func (m memBookings) FindByIdempotencyKey(_ context.Context, userID, key string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.UserID == userID && b.IdempotencyKey != nil && *b.IdempotencyKey == key {
			cp := *b
			return &cp, nil
		}
	}
	return nil, repository.ErrBookingNotFound
}

func dupEntry(key string) error {
	return &mysql.MySQLError{Number: 1062, Message: fmt.Sprintf("Duplicate entry 'x' for key 'bookings.%s'", key)}
}

func (m memBookings) Create(ctx context.Context, b *model.Booking) error {
	tx, ok := txOf(ctx)
	if !ok {
		return repository.ErrNoTransaction
	}
	if m.panicCreate {
		panic("insert exploded")
	}
	if m.failCreate != nil {
		return m.failCreate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.Status == model.BookingConfirmed && m.hasConfirmedLocked(b.EventID, b.UserID) {
		return dupEntry(keyActiveBooking)
	}
	if b.IdempotencyKey != nil {
		for _, o := range m.bookings {
			if o.UserID == b.UserID && o.IdempotencyKey != nil && *o.IdempotencyKey == *b.IdempotencyKey {
				return dupEntry(keyIdempotency)
			}
		}
	}
	m.nextID++
	now := time.Now().UTC()
	b.ID, b.CreatedAt, b.UpdatedAt = m.nextID, now, now
	cp := *b
	m.bookings[b.ID] = &cp
	id := b.ID
	tx.undo = append(tx.undo, func() { delete(m.bookings, id) })
	return nil
}

func (m memBookings) SetStatus(ctx context.Context, id uint64, from, to model.BookingStatus) (*model.Booking, error) {
	tx, ok := txOf(ctx)
	if !ok {
		return nil, repository.ErrNoTransaction
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != from {
		return nil, repository.ErrStatusChanged
	}
	b.Status = to
	tx.undo = append(tx.undo, func() { m.bookings[id].Status = from })
	cp := *b
	return &cp, nil
}

func (m memBookings) filter(keep func(*model.Booking) bool) []model.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, b := range m.bookings {
		if keep(b) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func window(all []model.Booking, skip, limit int) []model.Booking {
	if skip >= len(all) {
		return nil
	}
	all = all[skip:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all
}

func (m memBookings) ListByUser(_ context.Context, userID string, skip, limit int) ([]model.Booking, error) {
	return window(m.filter(func(b *model.Booking) bool { return b.UserID == userID }), skip, limit), nil
}

func (m memBookings) CountByUser(_ context.Context, userID string) (int, error) {
	return len(m.filter(func(b *model.Booking) bool { return b.UserID == userID })), nil
}

func (m memBookings) ListByEvent(_ context.Context, eventID uint64, skip, limit int) ([]model.Booking, error) {
	return window(m.filter(func(b *model.Booking) bool { return b.EventID == eventID }), skip, limit), nil
}

func (m memBookings) CountByEvent(_ context.Context, eventID uint64) (int, error) {
	return len(m.filter(func(b *model.Booking) bool { return b.EventID == eventID })), nil
}

func (m memBookings) ListAll(_ context.Context, skip, limit int) ([]model.Booking, error) {
	return window(m.filter(func(*model.Booking) bool { return true }), skip, limit), nil
}

func (m memBookings) CountAll(_ context.Context) (int, error) {
	return len(m.filter(func(*model.Booking) bool { return true })), nil
}

func (m memBookings) ConfirmedSeats(_ context.Context, eventID uint64) (int, error) {
	sum := 0
	for _, b := range m.filter(func(b *model.Booking) bool {
		return b.EventID == eventID && b.Status == model.BookingConfirmed
	}) {
		sum += b.Quantity
	}
	return sum, nil
}

type memOutbox struct{ *memStore }

func (m memOutbox) Enqueue(ctx context.Context, msg model.OutboxMessage) error {
	tx, ok := txOf(ctx)
	if !ok {
		return repository.ErrNoTransaction
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbox = append(m.outbox, msg)
	tx.undo = append(tx.undo, func() {
		for i, o := range m.outbox {
			if o.MessageID == msg.MessageID {
				m.outbox = append(m.outbox[:i], m.outbox[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (s *memStore) outboxTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.outbox))
	for i, m := range s.outbox {
		out[i] = m.EventType
	}
	return out
}

func (s *memStore) available(id uint64) int {
	e, _ := s.eventCopy(id)
	return e.AvailableSeats
}

func (s *memStore) setStatus(id uint64, st model.BookingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[id].Status = st
}
