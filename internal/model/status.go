package model

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusActive   Status = "ACTIVE"
	StatusReturned Status = "RETURNED"
	StatusOverdue  Status = "OVERDUE"
)

// Statuses lists every valid status in lifecycle order.
var Statuses = []Status{StatusPending, StatusActive, StatusReturned, StatusOverdue}

// legacyStatuses maps the status strings stored by the previous backend.
var legacyStatuses = map[string]Status{
	"en attente": StatusPending,
	"emprunte":   StatusActive,
	"en_cours":   StatusActive,
	"retourne":   StatusReturned,
	"retourné":   StatusReturned,
	"en retard":  StatusOverdue,
	"retard":     StatusOverdue,
}

// ParseStatus accepts the canonical names in any case as well as the legacy
// strings older clients still send.
func ParseStatus(s string) (Status, error) {
	trimmed := strings.TrimSpace(s)
	candidate := Status(strings.ToUpper(trimmed))
	if candidate.Valid() {
		return candidate, nil
	}
	if st, ok := legacyStatuses[strings.ToLower(trimmed)]; ok {
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusReturned, StatusOverdue:
		return true
	}
	return false
}

// ReturnPolicy decides whether marking a loan returned releases its copy.
type ReturnPolicy string

const (
	// SoftReturn keeps the copy debited after RETURNED; deleting the
	// reservation credits it back.
	SoftReturn ReturnPolicy = "soft"
	// CreditOnReturn releases the copy when the loan is marked RETURNED.
	CreditOnReturn ReturnPolicy = "credit-on-return"
)

// ParseReturnPolicy validates a configured policy name.
func ParseReturnPolicy(s string) (ReturnPolicy, error) {
	switch p := ReturnPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case SoftReturn, CreditOnReturn:
		return p, nil
	}
	return "", fmt.Errorf("unknown return policy %q", s)
}

// InventoryEffect is what a transition does to the book's copy count.
type InventoryEffect int

const (
	EffectNone InventoryEffect = iota
	EffectDebit
	EffectCredit
)

func (e InventoryEffect) String() string {
	switch e {
	case EffectDebit:
		return "debit"
	case EffectCredit:
		return "credit"
	}
	return "none"
}

type transitionKey struct {
	from, to Status
}

// softTransitions is the table for SoftReturn. Only activation touches stock.
var softTransitions = map[transitionKey]InventoryEffect{
	{StatusPending, StatusActive}:   EffectDebit,
	{StatusActive, StatusReturned}:  EffectNone,
	{StatusActive, StatusOverdue}:   EffectNone,
	{StatusOverdue, StatusReturned}: EffectNone,
	{StatusOverdue, StatusActive}:   EffectNone,
	{StatusReturned, StatusActive}:  EffectNone,
}

// creditOnReturnTransitions credits on return. Reopening a returned loan
// would need a second debit, so it is not allowed.
var creditOnReturnTransitions = map[transitionKey]InventoryEffect{
	{StatusPending, StatusActive}:   EffectDebit,
	{StatusActive, StatusReturned}:  EffectCredit,
	{StatusActive, StatusOverdue}:   EffectNone,
	{StatusOverdue, StatusReturned}: EffectCredit,
	{StatusOverdue, StatusActive}:   EffectNone,
}

// Transition looks up the move from -> to under policy. It fails with
// ErrIllegalTransition for moves not in the table. A move to the same status
// is allowed and has no effect.
func (p ReturnPolicy) Transition(from, to Status) (InventoryEffect, error) {
	if !from.Valid() || !to.Valid() {
		return EffectNone, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	if from == to {
		return EffectNone, nil
	}
	table := softTransitions
	if p == CreditOnReturn {
		table = creditOnReturnTransitions
	}
	effect, ok := table[transitionKey{from, to}]
	if !ok {
		return EffectNone, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return effect, nil
}

// CreditsOnDelete reports whether deleting r must return a copy to stock.
// Under either policy that is exactly when the reservation still holds one;
// a soft-returned or overdue loan releases its copy when the record goes.
func (p ReturnPolicy) CreditsOnDelete(r Reservation) bool {
	return r.CopyHeld
}
