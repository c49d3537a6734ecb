// Package clock supplies the calendar day used for due dates and overdue checks.
package clock

import (
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/library-reservations/internal/model"
)

// Clock returns the current calendar day.
type Clock interface {
	Today() model.Date
}

// System reads the wall clock in a fixed location.
type System struct {
	Location *time.Location
}

// Today returns the current day in s.Location, or UTC when unset.
func (s System) Today() model.Date {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	return model.DateOf(time.Now().In(loc))
}

// Fixed is a settable clock for tests.
type Fixed struct {
	mu    sync.Mutex
	today model.Date
}

// NewFixed returns a clock stuck on day.
func NewFixed(day model.Date) *Fixed {
	return &Fixed{today: day}
}

func (f *Fixed) Today() model.Date {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.today
}

// Advance moves the clock forward by days.
func (f *Fixed) Advance(days int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.today = f.today.AddDays(days)
}
