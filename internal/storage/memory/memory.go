// Package memory is an in-process implementation of storage.Store.
//
// Transactions are serialised by a single mutex. Each one works on a private
// copy of the tables, and that copy replaces the live tables only when the
// callback succeeds. That is enough for tests and single-node development.
//
// The mutex is store-wide, so a transaction on one book blocks every other
// book too. Per-book isolation only holds for internal/repository, which is
// the backend for production deployments.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/library-reservations/internal/model"
	"github.com/Shivanand-hulikatti/library-reservations/internal/storage"
)

// Op names a write operation that a fault can be attached to.
type Op string

const (
	OpDecrementCopies   Op = "DecrementCopies"
	OpIncrementCopies   Op = "IncrementCopies"
	OpInsertReservation Op = "InsertReservation"
	OpUpdateReservation Op = "UpdateReservation"
	OpDeleteReservation Op = "DeleteReservation"
)

// FaultFunc is consulted before every write. A non-nil error aborts the
// write and is returned to the caller, as a lost connection would be.
type FaultFunc func(op Op) error

type tables struct {
	books        map[string]model.Book
	users        map[string]model.User
	reservations map[string]model.Reservation
}

func (t tables) clone() tables {
	return tables{
		books:        maps.Clone(t.books),
		users:        maps.Clone(t.users),
		reservations: maps.Clone(t.reservations),
	}
}

// Store keeps books, users and reservations in memory.
type Store struct {
	mu    sync.Mutex
	data  tables
	fault FaultFunc
	now   func() time.Time

	debits, credits int
}

// Option configures a Store.
type Option func(*Store)

// WithFault installs a fault hook.
func WithFault(f FaultFunc) Option {
	return func(s *Store) { s.fault = f }
}

// WithNow overrides the timestamp source for created_at and updated_at.
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		data: tables{
			books:        make(map[string]model.Book),
			users:        make(map[string]model.User),
			reservations: make(map[string]model.Reservation),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ storage.Store = (*Store)(nil)

// SetFault replaces the fault hook. Pass nil to clear it.
func (s *Store) SetFault(f FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

// AddBook inserts or replaces a catalog entry. An empty ID gets a new UUID.
func (s *Store) AddBook(b model.Book) model.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := s.now()
	b.CreatedAt, b.UpdatedAt = now, now
	s.data.books[b.ID] = b
	return b
}

// AddUser inserts or replaces a directory entry. An empty ID gets a new UUID.
func (s *Store) AddUser(u model.User) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	s.data.users[u.ID] = u
	return u
}

// Movements returns the committed number of debits and credits.
func (s *Store) Movements() (debits, credits int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debits, s.credits
}

func (s *Store) GetBook(_ context.Context, id string) (model.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data.books[id]
	if !ok {
		return model.Book{}, model.ErrBookNotFound
	}
	return b, nil
}

func (s *Store) GetUser(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

// WithTx runs fn against a private copy of the tables. The copy is published
// only if fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	tx := &memTx{store: s, data: s.data.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.data = tx.data
	s.debits += tx.debits
	s.credits += tx.credits
	return nil
}

func (s *Store) GetReservation(_ context.Context, id string) (model.ReservationView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.reservations[id]
	if !ok {
		return model.ReservationView{}, model.ErrReservationNotFound
	}
	return s.view(r), nil
}

// ListReservations returns matching reservations, newest first.
func (s *Store) ListReservations(_ context.Context, f model.ReservationFilter) ([]model.ReservationView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.ReservationView
	for _, r := range s.data.reservations {
		if f.UserID != "" && r.UserID != f.UserID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, s.view(r))
	}
	slices.SortFunc(out, func(a, b model.ReservationView) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) OverdueCandidates(_ context.Context, today model.Date) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, r := range s.data.reservations {
		if r.IsPastDue(today) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Store) view(r model.Reservation) model.ReservationView {
	v := model.ReservationView{Reservation: r}
	if b, ok := s.data.books[r.BookID]; ok {
		v.BookTitle, v.BookAuthor = b.Title, b.Author
	}
	if u, ok := s.data.users[r.UserID]; ok {
		v.UserDisplayName = u.DisplayName
	}
	return v
}

// memTx is a transaction over a cloned set of tables. The store mutex is held
// for its whole lifetime.
type memTx struct {
	store *Store
	data  tables

	debits, credits int
}

func (t *memTx) check(op Op) error {
	if t.store.fault == nil {
		return nil
	}
	if err := t.store.fault(op); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (t *memTx) DecrementCopies(_ context.Context, bookID string) (int, bool, error) {
	if err := t.check(OpDecrementCopies); err != nil {
		return 0, false, err
	}
	b, ok := t.data.books[bookID]
	if !ok {
		return 0, false, model.ErrBookNotFound
	}
	if b.AvailableCopies <= 0 {
		return b.AvailableCopies, false, nil
	}
	b.AvailableCopies--
	b.UpdatedAt = t.store.now()
	t.data.books[bookID] = b
	t.debits++
	return b.AvailableCopies, true, nil
}

func (t *memTx) IncrementCopies(_ context.Context, bookID string) (int, error) {
	if err := t.check(OpIncrementCopies); err != nil {
		return 0, err
	}
	b, ok := t.data.books[bookID]
	if !ok {
		return 0, model.ErrBookNotFound
	}
	b.AvailableCopies++
	b.UpdatedAt = t.store.now()
	t.data.books[bookID] = b
	t.credits++
	return b.AvailableCopies, nil
}

func (t *memTx) AvailableCopies(_ context.Context, bookID string) (int, error) {
	b, ok := t.data.books[bookID]
	if !ok {
		return 0, model.ErrBookNotFound
	}
	return b.AvailableCopies, nil
}

func (t *memTx) ReservationForUpdate(_ context.Context, id string) (model.Reservation, error) {
	r, ok := t.data.reservations[id]
	if !ok {
		return model.Reservation{}, model.ErrReservationNotFound
	}
	return r, nil
}

func (t *memTx) InsertReservation(_ context.Context, r model.Reservation) error {
	if err := t.check(OpInsertReservation); err != nil {
		return err
	}
	if _, ok := t.data.books[r.BookID]; !ok {
		return model.ErrBookNotFound
	}
	if _, ok := t.data.users[r.UserID]; !ok {
		return model.ErrUserNotFound
	}
	if _, exists := t.data.reservations[r.ID]; exists {
		return fmt.Errorf("insert reservation: duplicate id %s", r.ID)
	}
	now := t.store.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	t.data.reservations[r.ID] = r
	return nil
}

func (t *memTx) UpdateReservation(_ context.Context, r model.Reservation) error {
	if err := t.check(OpUpdateReservation); err != nil {
		return err
	}
	if _, ok := t.data.reservations[r.ID]; !ok {
		return model.ErrReservationNotFound
	}
	r.UpdatedAt = t.store.now()
	t.data.reservations[r.ID] = r
	return nil
}

func (t *memTx) DeleteReservation(_ context.Context, id string) error {
	if err := t.check(OpDeleteReservation); err != nil {
		return err
	}
	if _, ok := t.data.reservations[id]; !ok {
		return model.ErrReservationNotFound
	}
	delete(t.data.reservations, id)
	return nil
}
