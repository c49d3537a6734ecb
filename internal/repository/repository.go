// Package repository implements storage.Store on PostgreSQL.
// It uses pgx directly (no ORM). Dynamic listing queries are built with goqu.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/library-reservations/internal/model"
	"github.com/Shivanand-hulikatti/library-reservations/internal/storage"
)

const (
	dialectPostgres = "postgres"

	defaultMaxAttempts  = 4
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3

	constraintReservationBook = "reservations_book_id_fkey"
	constraintReservationUser = "reservations_user_id_fkey"
	constraintCopiesNonNeg    = "books_available_copies_check"
)

var (
	// ErrInvalidMaxAttempts is returned when max attempts are not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNegativeBaseDelay is returned when the base delay is negative.
	ErrNegativeBaseDelay = errors.New("base delay must not be negative")
)

// Store is the PostgreSQL implementation of storage.Store.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger

	maxAttempts int
	baseDelay   time.Duration
}

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithMaxAttempts sets how many times a transaction is tried when PostgreSQL
// reports a serialization failure or a deadlock.
func WithMaxAttempts(attempts int) Option {
	return func(s *Store) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		s.maxAttempts = attempts
		return nil
	}
}

// WithBaseDelay sets the first retry delay. Later delays double.
func WithBaseDelay(delay time.Duration) Option {
	return func(s *Store) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}
		s.baseDelay = delay
		return nil
	}
}

// New constructs a Store on an open pool.
func New(db *pgxpool.Pool, options ...Option) (*Store, error) {
	s := &Store{
		db:          db,
		logger:      slog.New(slog.DiscardHandler),
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
	}
	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

var _ storage.Store = (*Store)(nil)

// WithTx runs fn in a transaction and commits when it returns nil.
//
// Reservation rows are locked with SELECT … FOR UPDATE and copy counts are
// changed by conditional UPDATEs, so READ COMMITTED is enough. PostgreSQL can
// still abort a transaction with a deadlock when two requests lock rows in
// different orders. Those attempts are rolled back and retried with
// exponential backoff; fn must therefore be safe to run more than once.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := s.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * defaultJitterFactor //nolint:gosec // jitter only
			s.logger.WarnContext(ctx, "retrying transaction",
				"attempt", attempt+1, "delay", delay, "error", lastErr)

			select {
			case <-time.After(delay + time.Duration(jitter)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = s.runTx(ctx, fn)
		if lastErr == nil || !isRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Ensure the transaction is always resolved.
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", mapPgError(err))
	}
	return nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return true
	}
	return false
}

// mapPgError turns constraint violations into domain errors.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.ForeignKeyViolation:
		switch pgErr.ConstraintName {
		case constraintReservationBook:
			return fmt.Errorf("%w: %w", model.ErrBookNotFound, err)
		case constraintReservationUser:
			return fmt.Errorf("%w: %w", model.ErrUserNotFound, err)
		}
	case pgerrcode.CheckViolation:
		if pgErr.ConstraintName == constraintCopiesNonNeg {
			return fmt.Errorf("%w: %w", model.ErrInsufficientCopies, err)
		}
	case pgerrcode.InvalidTextRepresentation:
		return fmt.Errorf("%w: %w", model.ErrInvalidInput, err)
	}
	return err
}

// ── catalog and directory ────────────────────────────────────────────────────

// GetBook returns a single book or model.ErrBookNotFound.
func (s *Store) GetBook(ctx context.Context, id string) (model.Book, error) {
	if uuid.Validate(id) != nil {
		return model.Book{}, model.ErrBookNotFound
	}
	var b model.Book
	err := s.db.QueryRow(ctx,
		`SELECT id, title, author, available_copies, created_at, updated_at
		 FROM books WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.Title, &b.Author, &b.AvailableCopies, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Book{}, model.ErrBookNotFound
		}
		return model.Book{}, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

// GetUser returns a single user or model.ErrUserNotFound.
func (s *Store) GetUser(ctx context.Context, id string) (model.User, error) {
	if uuid.Validate(id) != nil {
		return model.User{}, model.ErrUserNotFound
	}
	var u model.User
	err := s.db.QueryRow(ctx,
		`SELECT id, display_name FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.DisplayName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// CreateBook inserts a catalog entry. An empty ID gets a new UUID.
func (s *Store) CreateBook(ctx context.Context, b model.Book) (model.Book, error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO books (id, title, author, available_copies)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		b.ID, b.Title, b.Author, b.AvailableCopies,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return model.Book{}, fmt.Errorf("insert book: %w", mapPgError(err))
	}
	return b, nil
}

// CreateUser inserts a directory entry. An empty ID gets a new UUID.
func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id, display_name) VALUES ($1, $2)`,
		u.ID, u.DisplayName,
	)
	if err != nil {
		return model.User{}, fmt.Errorf("insert user: %w", mapPgError(err))
	}
	return u, nil
}

// ── reservation reads ────────────────────────────────────────────────────────

func reservationViews() *goqu.SelectDataset {
	return goqu.Dialect(dialectPostgres).
		From(goqu.T("reservations").As("r")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("r.book_id")))).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("r.user_id")))).
		Select(
			goqu.I("r.id"), goqu.I("r.user_id"), goqu.I("r.book_id"),
			goqu.I("r.requested_borrow_date"), goqu.I("r.requested_return_date"),
			goqu.I("r.actual_borrow_date"), goqu.I("r.due_date"),
			goqu.I("r.status"), goqu.I("r.copy_held"),
			goqu.I("r.created_at"), goqu.I("r.updated_at"),
			goqu.I("b.title"), goqu.I("b.author"), goqu.I("u.display_name"),
		).
		Prepared(true)
}

// GetReservation returns one reservation with display fields.
func (s *Store) GetReservation(ctx context.Context, id string) (model.ReservationView, error) {
	if uuid.Validate(id) != nil {
		return model.ReservationView{}, model.ErrReservationNotFound
	}
	query, args, err := reservationViews().Where(goqu.I("r.id").Eq(id)).ToSQL()
	if err != nil {
		return model.ReservationView{}, fmt.Errorf("build reservation query: %w", err)
	}

	var v model.ReservationView
	if err := scanReservation(s.db.QueryRow(ctx, query, args...), &v.Reservation,
		&v.BookTitle, &v.BookAuthor, &v.UserDisplayName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ReservationView{}, model.ErrReservationNotFound
		}
		return model.ReservationView{}, fmt.Errorf("get reservation: %w", err)
	}
	return v, nil
}

// ListReservations returns matching reservations, newest first.
func (s *Store) ListReservations(ctx context.Context, f model.ReservationFilter) ([]model.ReservationView, error) {
	ds := reservationViews().Order(goqu.I("r.created_at").Desc(), goqu.I("r.id").Asc())
	if f.UserID != "" {
		if uuid.Validate(f.UserID) != nil {
			return nil, nil
		}
		ds = ds.Where(goqu.I("r.user_id").Eq(f.UserID))
	}
	if f.Status != "" {
		ds = ds.Where(goqu.I("r.status").Eq(string(f.Status)))
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build reservation query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var views []model.ReservationView
	for rows.Next() {
		var v model.ReservationView
		if err := scanReservation(rows, &v.Reservation, &v.BookTitle, &v.BookAuthor, &v.UserDisplayName); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// OverdueCandidates returns ids of ACTIVE reservations due before today.
func (s *Store) OverdueCandidates(ctx context.Context, today model.Date) ([]string, error) {
	query, args, err := goqu.Dialect(dialectPostgres).
		From("reservations").
		Select("id").
		Where(
			goqu.C("status").Eq(string(model.StatusActive)),
			goqu.C("due_date").Lt(today.Time),
		).
		Order(goqu.C("id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build overdue query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find overdue reservations: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan overdue reservations: %w", err)
	}
	return ids, nil
}

// scanReservation reads the reservation columns in the order used by
// reservationViews and reservationColumns, followed by extra.
func scanReservation(row pgx.Row, r *model.Reservation, extra ...any) error {
	var (
		status                                       string
		requestedBorrow, requestedReturn, borrow, due *time.Time
	)
	dest := append([]any{
		&r.ID, &r.UserID, &r.BookID,
		&requestedBorrow, &requestedReturn, &borrow, &due,
		&status, &r.CopyHeld, &r.CreatedAt, &r.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	r.Status = model.Status(status)
	r.RequestedBorrowDate = model.DatePtr(requestedBorrow)
	r.RequestedReturnDate = model.DatePtr(requestedReturn)
	r.ActualBorrowDate = model.DatePtr(borrow)
	r.DueDate = model.DatePtr(due)
	return nil
}

const reservationColumns = `id, user_id, book_id,
	requested_borrow_date, requested_return_date, actual_borrow_date, due_date,
	status, copy_held, created_at, updated_at`

// ── transaction ──────────────────────────────────────────────────────────────

// pgTx is a storage.Tx bound to one pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

// ReservationForUpdate reads a reservation and locks its row.
//
// Two requests approving the same PENDING reservation must not both debit a
// copy. SELECT … FOR UPDATE makes the second one wait until the first commits
// or rolls back, after which it reads the new status and takes the same-status
// path. The book row is only touched afterwards, so locks are always taken in
// reservation-then-book order.
func (t *pgTx) ReservationForUpdate(ctx context.Context, id string) (model.Reservation, error) {
	if uuid.Validate(id) != nil {
		return model.Reservation{}, model.ErrReservationNotFound
	}
	var r model.Reservation
	err := scanReservation(t.tx.QueryRow(ctx,
		`SELECT `+reservationColumns+`
		 FROM reservations
		 WHERE id = $1
		 FOR UPDATE`,
		id,
	), &r)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Reservation{}, model.ErrReservationNotFound
		}
		return model.Reservation{}, fmt.Errorf("lock reservation row: %w", err)
	}
	return r, nil
}

func (t *pgTx) InsertReservation(ctx context.Context, r model.Reservation) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO reservations (id, user_id, book_id,
			requested_borrow_date, requested_return_date, actual_borrow_date, due_date,
			status, copy_held)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.UserID, r.BookID,
		model.TimePtr(r.RequestedBorrowDate), model.TimePtr(r.RequestedReturnDate),
		model.TimePtr(r.ActualBorrowDate), model.TimePtr(r.DueDate),
		string(r.Status), r.CopyHeld,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", mapPgError(err))
	}
	return nil
}

func (t *pgTx) UpdateReservation(ctx context.Context, r model.Reservation) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE reservations
		 SET status = $2, copy_held = $3, actual_borrow_date = $4, due_date = $5, updated_at = now()
		 WHERE id = $1`,
		r.ID, string(r.Status), r.CopyHeld, model.TimePtr(r.ActualBorrowDate), model.TimePtr(r.DueDate),
	)
	if err != nil {
		return fmt.Errorf("update reservation: %w", mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		return model.ErrReservationNotFound
	}
	return nil
}

func (t *pgTx) DeleteReservation(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		return model.ErrReservationNotFound
	}
	return nil
}

// DecrementCopies takes a copy in one statement.
//
// A read-then-write (SELECT the count, check it, UPDATE) lets two
// transactions both see the last copy and both take it. The WHERE clause here
// makes the check and the write a single atomic step: the second transaction
// blocks on the row, re-evaluates the condition after the first commits, and
// matches nothing.
func (t *pgTx) DecrementCopies(ctx context.Context, bookID string) (int, bool, error) {
	var remaining int
	err := t.tx.QueryRow(ctx,
		`UPDATE books
		 SET available_copies = available_copies - 1, updated_at = now()
		 WHERE id = $1 AND available_copies > 0
		 RETURNING available_copies`,
		bookID,
	).Scan(&remaining)
	if err == nil {
		return remaining, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("decrement available_copies: %w", mapPgError(err))
	}

	// Nothing matched: either the book is gone or it has no copy left.
	current, err := t.AvailableCopies(ctx, bookID)
	if err != nil {
		return 0, false, err
	}
	return current, false, nil
}

func (t *pgTx) IncrementCopies(ctx context.Context, bookID string) (int, error) {
	var remaining int
	err := t.tx.QueryRow(ctx,
		`UPDATE books
		 SET available_copies = available_copies + 1, updated_at = now()
		 WHERE id = $1
		 RETURNING available_copies`,
		bookID,
	).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, model.ErrBookNotFound
		}
		return 0, fmt.Errorf("increment available_copies: %w", mapPgError(err))
	}
	return remaining, nil
}

func (t *pgTx) AvailableCopies(ctx context.Context, bookID string) (int, error) {
	if uuid.Validate(bookID) != nil {
		return 0, model.ErrBookNotFound
	}
	var n int
	err := t.tx.QueryRow(ctx,
		`SELECT available_copies FROM books WHERE id = $1`,
		bookID,
	).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, model.ErrBookNotFound
		}
		return 0, fmt.Errorf("read available_copies: %w", err)
	}
	return n, nil
}
