// Package inventory owns the per-book count of copies on the shelf.
//
// The ledger is the only code that writes a book's copy count, and the
// reservation state machine is its only caller. Every operation runs through a
// storage.Inventory bound to the caller's transaction. A debit or credit
// therefore commits or rolls back with the reservation change that caused it.
package inventory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Shivanand-hulikatti/library-reservations/internal/model"
	"github.com/Shivanand-hulikatti/library-reservations/internal/storage"
)

// Ledger applies debits and credits to book copy counts.
type Ledger struct {
	logger *slog.Logger
}

// NewLedger constructs a Ledger. A nil logger discards output.
func NewLedger(logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Ledger{logger: logger}
}

// TryDebit takes one copy off the shelf. It fails with
// model.ErrInsufficientCopies when none is left, and writes nothing in that
// case.
func (l *Ledger) TryDebit(ctx context.Context, inv storage.Inventory, bookID string) (model.Stock, error) {
	if bookID == "" {
		return model.Stock{}, fmt.Errorf("debit: %w", model.ErrMissingIdentifier)
	}

	remaining, ok, err := inv.DecrementCopies(ctx, bookID)
	if err != nil {
		return model.Stock{}, fmt.Errorf("debit book %s: %w", bookID, err)
	}
	if !ok {
		l.logger.InfoContext(ctx, "debit refused", "book_id", bookID, "available_copies", remaining)
		return model.Stock{BookID: bookID, AvailableCopies: remaining}, model.ErrInsufficientCopies
	}

	stock := model.Stock{BookID: bookID, AvailableCopies: remaining}
	l.logger.DebugContext(ctx, "copy debited",
		"book_id", bookID,
		"available_copies", remaining,
		"availability", stock.Availability(),
	)
	return stock, nil
}

// Credit puts one copy back on the shelf. Callers must make sure each debit
// is credited at most once.
func (l *Ledger) Credit(ctx context.Context, inv storage.Inventory, bookID string) (model.Stock, error) {
	if bookID == "" {
		return model.Stock{}, fmt.Errorf("credit: %w", model.ErrMissingIdentifier)
	}

	remaining, err := inv.IncrementCopies(ctx, bookID)
	if err != nil {
		return model.Stock{}, fmt.Errorf("credit book %s: %w", bookID, err)
	}

	stock := model.Stock{BookID: bookID, AvailableCopies: remaining}
	l.logger.DebugContext(ctx, "copy credited",
		"book_id", bookID,
		"available_copies", remaining,
		"availability", stock.Availability(),
	)
	return stock, nil
}

// CurrentCount returns the number of copies on the shelf.
func (l *Ledger) CurrentCount(ctx context.Context, inv storage.Inventory, bookID string) (int, error) {
	if bookID == "" {
		return 0, fmt.Errorf("count: %w", model.ErrMissingIdentifier)
	}
	n, err := inv.AvailableCopies(ctx, bookID)
	if err != nil {
		return 0, fmt.Errorf("count book %s: %w", bookID, err)
	}
	return n, nil
}
