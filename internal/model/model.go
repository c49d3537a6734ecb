// Package model defines the core domain types for the library reservation service.
package model

import (
	"time"
)

// Availability is derived from a book's available copy count. It is never
// stored or set independently of that count.
type Availability string

const (
	Available   Availability = "AVAILABLE"
	Unavailable Availability = "UNAVAILABLE"
)

// AvailabilityOf returns the availability implied by a copy count.
func AvailabilityOf(availableCopies int) Availability {
	if availableCopies > 0 {
		return Available
	}
	return Unavailable
}

// Book is the catalog view of a title together with its copy count.
type Book struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	AvailableCopies int       `json:"available_copies"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Availability returns whether at least one copy is on the shelf.
func (b Book) Availability() Availability {
	return AvailabilityOf(b.AvailableCopies)
}

// Stock is a snapshot of a book's copy count as seen by the inventory ledger.
type Stock struct {
	BookID          string `json:"book_id"`
	AvailableCopies int    `json:"available_copies"`
}

// Availability returns the availability implied by the snapshot.
func (s Stock) Availability() Availability {
	return AvailabilityOf(s.AvailableCopies)
}

// User is the identity a reservation belongs to.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Reservation is a single borrow request and, once approved, the loan it
// turns into.
type Reservation struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"user_id"`
	BookID              string    `json:"book_id"`
	RequestedBorrowDate *Date     `json:"borrow_date,omitempty"`
	RequestedReturnDate *Date     `json:"return_date,omitempty"`
	ActualBorrowDate    *Date     `json:"actual_borrow_date,omitempty"`
	DueDate             *Date     `json:"due_date,omitempty"`
	Status              Status    `json:"status"`
	CopyHeld            bool      `json:"copy_held"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// IsPastDue reports whether an active loan's due date lies before today.
func (r Reservation) IsPastDue(today Date) bool {
	return r.Status == StatusActive && r.DueDate != nil && r.DueDate.Before(today)
}

// ReservationView is a reservation joined with the display fields of its
// book and user.
type ReservationView struct {
	Reservation
	BookTitle       string `json:"book_title"`
	BookAuthor      string `json:"book_author"`
	UserDisplayName string `json:"user_display_name"`
}

// ReservationFilter narrows a reservation listing. Zero values match all.
type ReservationFilter struct {
	UserID string
	Status Status
}

// CreateReservationRequest is the payload for requesting a book.
type CreateReservationRequest struct {
	UserID     string `json:"user_id" validate:"required,uuid"`
	BookID     string `json:"book_id" validate:"required,uuid"`
	BorrowDate *Date  `json:"borrow_date,omitempty"`
	ReturnDate *Date  `json:"return_date,omitempty"`
}

// TransitionRequest is the payload for changing a reservation's status.
type TransitionRequest struct {
	Status string `json:"status"`
}

// CreateReservationResponse is returned after a successful borrow request.
type CreateReservationResponse struct {
	ReservationID string `json:"reservation_id"`
}

// DeleteReservationResponse confirms a deletion.
type DeleteReservationResponse struct {
	Deleted string `json:"deleted"`
}

// SweepResponse reports how many loans an overdue sweep moved.
type SweepResponse struct {
	Transitioned int `json:"transitioned"`
}

// BookResponse is the JSON shape of a catalog lookup.
type BookResponse struct {
	Book
	Availability Availability `json:"availability"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
