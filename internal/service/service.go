// Package service implements the reservation lifecycle: validation, the
// status state machine, and the inventory side effects of each transition.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/library-reservations/internal/clock"
	"github.com/Shivanand-hulikatti/library-reservations/internal/inventory"
	"github.com/Shivanand-hulikatti/library-reservations/internal/model"
	"github.com/Shivanand-hulikatti/library-reservations/internal/storage"
)

// DefaultLoanPeriodDays is the loan length used when none is configured.
const DefaultLoanPeriodDays = 14

// ReservationService orchestrates reservation operations. It is the only
// caller of the inventory ledger's debit and credit operations.
type ReservationService struct {
	store    storage.Store
	ledger   *inventory.Ledger
	clock    clock.Clock
	validate *validator.Validate
	logger   *slog.Logger

	loanPeriodDays int
	policy         model.ReturnPolicy
}

// Option configures a ReservationService.
type Option func(*ReservationService) error

// WithLoanPeriod sets the number of days between activation and due date.
func WithLoanPeriod(days int) Option {
	return func(s *ReservationService) error {
		if days <= 0 {
			return fmt.Errorf("loan period must be positive, got %d", days)
		}
		s.loanPeriodDays = days
		return nil
	}
}

// WithReturnPolicy selects what marking a loan RETURNED does to inventory.
func WithReturnPolicy(p model.ReturnPolicy) Option {
	return func(s *ReservationService) error {
		if _, err := model.ParseReturnPolicy(string(p)); err != nil {
			return err
		}
		s.policy = p
		return nil
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *ReservationService) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// NewReservationService constructs a ReservationService with its dependencies.
func NewReservationService(
	store storage.Store,
	ledger *inventory.Ledger,
	clk clock.Clock,
	options ...Option,
) (*ReservationService, error) {
	s := &ReservationService{
		store:          store,
		ledger:         ledger,
		clock:          clk,
		validate:       newValidator(),
		logger:         slog.New(slog.DiscardHandler),
		loanPeriodDays: DefaultLoanPeriodDays,
		policy:         model.SoftReturn,
	}
	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Policy returns the configured return policy.
func (s *ReservationService) Policy() model.ReturnPolicy { return s.policy }

// Create records a PENDING borrow request. The book must have a copy on the
// shelf at request time, but nothing is debited until approval.
func (s *ReservationService) Create(ctx context.Context, req model.CreateReservationRequest) (model.Reservation, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.BookID = strings.TrimSpace(req.BookID)
	if err := s.validateStruct(req); err != nil {
		return model.Reservation{}, err
	}

	borrow, ret := presentDate(req.BorrowDate), presentDate(req.ReturnDate)
	if borrow != nil && ret != nil && ret.Before(*borrow) {
		return model.Reservation{}, fmt.Errorf("%w: return_date is before borrow_date", model.ErrInvalidInput)
	}

	if _, err := s.store.GetUser(ctx, req.UserID); err != nil {
		return model.Reservation{}, fmt.Errorf("look up user: %w", err)
	}
	if _, err := s.store.GetBook(ctx, req.BookID); err != nil {
		return model.Reservation{}, fmt.Errorf("look up book: %w", err)
	}

	res := model.Reservation{
		ID:                  uuid.New().String(),
		UserID:              req.UserID,
		BookID:              req.BookID,
		RequestedBorrowDate: borrow,
		RequestedReturnDate: ret,
		Status:              model.StatusPending,
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		n, err := s.ledger.CurrentCount(ctx, tx, res.BookID)
		if err != nil {
			return err
		}
		if n <= 0 {
			return fmt.Errorf("%w: book %s", model.ErrNoCopiesAvailable, res.BookID)
		}
		return tx.InsertReservation(ctx, res)
	})
	if err != nil {
		return model.Reservation{}, fmt.Errorf("create reservation: %w", err)
	}

	s.logger.InfoContext(ctx, "reservation requested",
		"reservation_id", res.ID, "book_id", res.BookID, "user_id", res.UserID)
	return res, nil
}

// Transition moves a reservation to status. Activation stamps the loan dates
// and debits a copy. If no copy is left, the reservation stays PENDING and
// the call fails with model.ErrNoCopiesAvailable. The status write and any
// inventory change share one transaction.
func (s *ReservationService) Transition(ctx context.Context, id, status string) (model.Reservation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Reservation{}, fmt.Errorf("reservation id: %w", model.ErrMissingIdentifier)
	}
	if strings.TrimSpace(status) == "" {
		return model.Reservation{}, fmt.Errorf("status: %w", model.ErrMissingIdentifier)
	}
	to, err := model.ParseStatus(status)
	if err != nil {
		return model.Reservation{}, err
	}

	var (
		out    model.Reservation
		from   model.Status
		effect model.InventoryEffect
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		r, err := tx.ReservationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = r.Status

		effect, err = s.policy.Transition(r.Status, to)
		if err != nil {
			return err
		}
		if r.Status == to {
			out = r
			return nil
		}

		switch effect {
		case model.EffectDebit:
			if !r.CopyHeld {
				if _, err := s.ledger.TryDebit(ctx, tx, r.BookID); err != nil {
					if errors.Is(err, model.ErrInsufficientCopies) {
						return fmt.Errorf("%w: %w", model.ErrNoCopiesAvailable, err)
					}
					return err
				}
				r.CopyHeld = true
			}
			today := s.clock.Today()
			due := today.AddDays(s.loanPeriodDays)
			r.ActualBorrowDate = &today
			r.DueDate = &due
		case model.EffectCredit:
			if r.CopyHeld {
				if _, err := s.ledger.Credit(ctx, tx, r.BookID); err != nil {
					return err
				}
				r.CopyHeld = false
			}
		}

		r.Status = to
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return model.Reservation{}, fmt.Errorf("transition reservation %s to %s: %w", id, to, err)
	}

	if from != to {
		s.logger.InfoContext(ctx, "reservation transitioned",
			"reservation_id", id, "from", from, "to", to, "inventory", effect.String())
	}
	return out, nil
}

// Delete removes a reservation. A reservation still holding a copy gives it
// back first, in the same transaction.
func (s *ReservationService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("reservation id: %w", model.ErrMissingIdentifier)
	}

	var credited bool
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		credited = false
		r, err := tx.ReservationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if s.policy.CreditsOnDelete(r) {
			if _, err := s.ledger.Credit(ctx, tx, r.BookID); err != nil {
				return err
			}
			credited = true
		}
		return tx.DeleteReservation(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete reservation %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "reservation deleted", "reservation_id", id, "credited", credited)
	return nil
}

// Get returns a single reservation with its display fields.
func (s *ReservationService) Get(ctx context.Context, id string) (model.ReservationView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.ReservationView{}, fmt.Errorf("reservation id: %w", model.ErrMissingIdentifier)
	}
	v, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return model.ReservationView{}, fmt.Errorf("get reservation %s: %w", id, err)
	}
	return v, nil
}

// List returns reservations joined with book and user display fields.
// status may be empty, a canonical name, or a legacy alias.
func (s *ReservationService) List(ctx context.Context, userID, status string) ([]model.ReservationView, error) {
	filter := model.ReservationFilter{UserID: strings.TrimSpace(userID)}
	if strings.TrimSpace(status) != "" {
		st, err := model.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		filter.Status = st
	}
	views, err := s.store.ListReservations(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return views, nil
}

// ListForUser returns a user's reservations. The user must exist.
func (s *ReservationService) ListForUser(ctx context.Context, userID string) ([]model.ReservationView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id: %w", model.ErrMissingIdentifier)
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	return s.List(ctx, userID, "")
}

// GetBook returns a catalog entry with its current copy count.
func (s *ReservationService) GetBook(ctx context.Context, id string) (model.Book, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Book{}, fmt.Errorf("book id: %w", model.ErrMissingIdentifier)
	}
	b, err := s.store.GetBook(ctx, id)
	if err != nil {
		return model.Book{}, fmt.Errorf("get book %s: %w", id, err)
	}
	return b, nil
}

// SweepOverdue marks every ACTIVE loan due before today as OVERDUE. Each
// reservation is moved in its own transaction, so one failure does not hold
// back the rest. It returns how many were moved.
func (s *ReservationService) SweepOverdue(ctx context.Context) (int, error) {
	today := s.clock.Today()
	ids, err := s.store.OverdueCandidates(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("find overdue reservations: %w", err)
	}

	var (
		moved int
		errs  []error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		ok, err := s.markOverdue(ctx, id, today)
		if err != nil {
			s.logger.WarnContext(ctx, "overdue sweep failed", "reservation_id", id, "error", err)
			errs = append(errs, err)
			continue
		}
		if ok {
			moved++
		}
	}

	if moved > 0 {
		s.logger.InfoContext(ctx, "overdue sweep completed", "transitioned", moved, "candidates", len(ids))
	}
	return moved, errors.Join(errs...)
}

// markOverdue re-checks the reservation under lock. It may have been
// returned or deleted since the candidate query ran.
func (s *ReservationService) markOverdue(ctx context.Context, id string, today model.Date) (bool, error) {
	var moved bool
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		moved = false
		r, err := tx.ReservationForUpdate(ctx, id)
		if errors.Is(err, model.ErrReservationNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !r.IsPastDue(today) {
			return nil
		}
		if _, err := s.policy.Transition(r.Status, model.StatusOverdue); err != nil {
			return err
		}
		r.Status = model.StatusOverdue
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		moved = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("mark reservation %s overdue: %w", id, err)
	}
	return moved, nil
}

// validateStruct runs the struct tags. A failed "required" rule on a field is
// a missing identifier. Any other failure is invalid input.
func (s *ReservationService) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return fmt.Errorf("%s: %w", fe.Field(), model.ErrMissingIdentifier)
		}
	}
	fe := verrs[0]
	return fmt.Errorf("%w: %s must be a valid %s", model.ErrInvalidInput, fe.Field(), fe.Tag())
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func presentDate(d *model.Date) *model.Date {
	if d == nil || d.IsZero() {
		return nil
	}
	return d
}
