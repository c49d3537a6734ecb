package model

import "errors"

var (
	// ErrMissingIdentifier is returned when a required id was not supplied.
	ErrMissingIdentifier = errors.New("missing identifier")

	// ErrInvalidInput is returned for malformed payload fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownStatus is returned for a status string that maps to no state.
	ErrUnknownStatus = errors.New("unknown reservation status")

	// ErrNoCopiesAvailable is returned when a book has no copy to lend.
	ErrNoCopiesAvailable = errors.New("no copies available")

	// ErrInsufficientCopies is returned by the ledger when a debit would
	// take the copy count below zero.
	ErrInsufficientCopies = errors.New("insufficient copies")

	// ErrIllegalTransition is returned for a status change the lifecycle
	// does not permit.
	ErrIllegalTransition = errors.New("illegal status transition")

	ErrReservationNotFound = errors.New("reservation not found")
	ErrBookNotFound        = errors.New("book not found")
	ErrUserNotFound        = errors.New("user not found")
)

// Class groups errors by how a caller should report them.
type Class int

const (
	ClassInternal Class = iota
	ClassValidation
	ClassBusiness
	ClassConflict
	ClassNotFound
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassBusiness:
		return "business"
	case ClassConflict:
		return "conflict"
	case ClassNotFound:
		return "not_found"
	}
	return "internal"
}

// ClassOf classifies err. Anything not recognised is internal.
func ClassOf(err error) Class {
	switch {
	case err == nil:
		return ClassInternal
	case errors.Is(err, ErrMissingIdentifier),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrUnknownStatus):
		return ClassValidation
	case errors.Is(err, ErrNoCopiesAvailable),
		errors.Is(err, ErrInsufficientCopies):
		return ClassBusiness
	case errors.Is(err, ErrIllegalTransition):
		return ClassConflict
	case errors.Is(err, ErrReservationNotFound),
		errors.Is(err, ErrBookNotFound),
		errors.Is(err, ErrUserNotFound):
		return ClassNotFound
	}
	return ClassInternal
}

// CodeOf returns a stable machine-readable code for err.
func CodeOf(err error) string {
	codes := []struct {
		target error
		code   string
	}{
		{ErrMissingIdentifier, "missing_identifier"},
		{ErrUnknownStatus, "unknown_status"},
		{ErrInvalidInput, "invalid_input"},
		{ErrNoCopiesAvailable, "no_copies_available"},
		{ErrInsufficientCopies, "insufficient_copies"},
		{ErrIllegalTransition, "illegal_transition"},
		{ErrReservationNotFound, "reservation_not_found"},
		{ErrBookNotFound, "book_not_found"},
		{ErrUserNotFound, "user_not_found"},
	}
	for _, c := range codes {
		if errors.Is(err, c.target) {
			return c.code
		}
	}
	return "internal_error"
}
