// Package storage declares the persistence contracts the reservation core
// runs against. internal/repository implements them on PostgreSQL and
// internal/storage/memory keeps them in process.
package storage

import (
	"context"

	"github.com/Shivanand-hulikatti/library-reservations/internal/model"
)

// Inventory is the copy-count persistence used by the inventory ledger.
// All methods return model.ErrBookNotFound for an unknown book.
type Inventory interface {
	// DecrementCopies lowers the count by one in a single conditional write.
	// ok is false, and nothing is written, when the count is already zero.
	DecrementCopies(ctx context.Context, bookID string) (remaining int, ok bool, err error)
	IncrementCopies(ctx context.Context, bookID string) (int, error)
	AvailableCopies(ctx context.Context, bookID string) (int, error)
}

// Tx is the unit of work for a single state-machine operation. Every write
// made through it commits or rolls back together.
type Tx interface {
	Inventory

	// ReservationForUpdate reads a reservation and holds it against
	// concurrent transitions until the transaction ends.
	ReservationForUpdate(ctx context.Context, id string) (model.Reservation, error)
	InsertReservation(ctx context.Context, r model.Reservation) error
	UpdateReservation(ctx context.Context, r model.Reservation) error
	DeleteReservation(ctx context.Context, id string) error
}

// Catalog is the read side of the book catalog.
type Catalog interface {
	GetBook(ctx context.Context, id string) (model.Book, error)
}

// Users is the read side of the user directory.
type Users interface {
	GetUser(ctx context.Context, id string) (model.User, error)
}

// Store is everything the reservation service needs from persistence.
type Store interface {
	Catalog
	Users

	// WithTx runs fn inside a transaction. It commits when fn returns nil
	// and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetReservation(ctx context.Context, id string) (model.ReservationView, error)
	ListReservations(ctx context.Context, filter model.ReservationFilter) ([]model.ReservationView, error)

	// OverdueCandidates returns ids of ACTIVE reservations due before today.
	OverdueCandidates(ctx context.Context, today model.Date) ([]string, error)
}
