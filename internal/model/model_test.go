package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_AvailabilityOf_FollowsCopyCount(t *testing.T) {
	assert.Equal(t, Unavailable, AvailabilityOf(0))
	assert.Equal(t, Unavailable, AvailabilityOf(-1))
	assert.Equal(t, Available, AvailabilityOf(1))
	assert.Equal(t, Available, Book{AvailableCopies: 3}.Availability())
	assert.Equal(t, Unavailable, Stock{}.Availability())
}

func Test_Date_JSON(t *testing.T) {
	var req CreateReservationRequest
	err := json.Unmarshal([]byte(`{"user_id":"u","book_id":"b","borrow_date":"2024-01-15","return_date":"2024-02-01T10:00:00Z"}`), &req)
	require.NoError(t, err)
	require.NotNil(t, req.BorrowDate)
	require.NotNil(t, req.ReturnDate)
	assert.Equal(t, "2024-01-15", req.BorrowDate.String())
	assert.Equal(t, "2024-02-01", req.ReturnDate.String())

	out, err := json.Marshal(req.BorrowDate)
	require.NoError(t, err)
	assert.JSONEq(t, `"2024-01-15"`, string(out))
}

func Test_Date_UnmarshalZonelessTimestamp(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2024-03-05T10:00:00"`), &d))
	assert.Equal(t, "2024-03-05", d.String())

	assert.Error(t, json.Unmarshal([]byte(`"2024-03-05 10:00"`), &d))
}

func Test_Date_UnmarshalEmptyIsZero(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`""`), &d))
	assert.True(t, d.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`"15/01/2024"`), &d))
}

func Test_Date_Arithmetic(t *testing.T) {
	d, err := ParseDate("2024-01-15")
	require.NoError(t, err)

	due := d.AddDays(14)
	assert.Equal(t, "2024-01-29", due.String())
	assert.True(t, d.Before(due))
	assert.True(t, due.After(d))

	ts := time.Date(2024, 1, 15, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, d, DateOf(ts))
	assert.Equal(t, &d, DatePtr(TimePtr(&d)))
	assert.Nil(t, DatePtr(nil))
}

func Test_Reservation_IsPastDue(t *testing.T) {
	today, _ := ParseDate("2024-03-10")
	yesterday := today.AddDays(-1)

	assert.True(t, Reservation{Status: StatusActive, DueDate: &yesterday}.IsPastDue(today))
	assert.False(t, Reservation{Status: StatusActive, DueDate: &today}.IsPastDue(today))
	assert.False(t, Reservation{Status: StatusReturned, DueDate: &yesterday}.IsPastDue(today))
	assert.False(t, Reservation{Status: StatusActive}.IsPastDue(today))
}

func Test_ClassOf_AndCodeOf(t *testing.T) {
	cases := []struct {
		err   error
		class Class
		code  string
	}{
		{ErrMissingIdentifier, ClassValidation, "missing_identifier"},
		{ErrUnknownStatus, ClassValidation, "unknown_status"},
		{ErrInvalidInput, ClassValidation, "invalid_input"},
		{ErrNoCopiesAvailable, ClassBusiness, "no_copies_available"},
		{ErrInsufficientCopies, ClassBusiness, "insufficient_copies"},
		{ErrIllegalTransition, ClassConflict, "illegal_transition"},
		{ErrReservationNotFound, ClassNotFound, "reservation_not_found"},
		{ErrBookNotFound, ClassNotFound, "book_not_found"},
		{ErrUserNotFound, ClassNotFound, "user_not_found"},
		{errors.New("connection reset"), ClassInternal, "internal_error"},
	}
	for _, c := range cases {
		wrapped := fmt.Errorf("outer: %w", c.err)
		assert.Equal(t, c.class, ClassOf(wrapped), c.code)
		assert.Equal(t, c.code, CodeOf(wrapped))
	}
}
