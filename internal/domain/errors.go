package domain

import (
	"errors"
	"fmt"
)

// Validation
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrInvalidInput = errors.New("invalid input")
	ErrBidTooLow    = errors.New("bid too low")
	ErrForbidden    = errors.New("forbidden")
	ErrAlreadyEnded = errors.New("auction already ended")
)

// Business outcomes
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Idempotency guards
var (
	ErrSettlementInProgress = errors.New("settlement already in progress")
	ErrAlreadySettled       = errors.New("auction already settled")
	ErrAlreadyReleased      = errors.New("escrow already released")
	ErrAlreadyRefunded      = errors.New("escrow already refunded")

	// ErrPriceChanged means a bid lost the compare-and-swap on current price.
	ErrPriceChanged = errors.New("auction price changed")
)

// Configuration
var (
	ErrEscrowAccountMissing = errors.New("escrow account not configured")
)

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// StateError reports an entity in the wrong status for the operation.
type StateError struct {
	Entity string
	ID     string
	Status string
	Want   string
	// Kind is the sentinel matched by errors.Is, ErrInvalidState by default.
	Kind error
}

func (e *StateError) Error() string {
	if e.Want != "" {
		return fmt.Sprintf("%s %s is %s, expected %s", e.Entity, e.ID, e.Status, e.Want)
	}
	return fmt.Sprintf("%s %s is %s", e.Entity, e.ID, e.Status)
}

func (e *StateError) Unwrap() error {
	if e.Kind != nil {
		return e.Kind
	}
	return ErrInvalidState
}

type BidTooLowError struct {
	Minimum Amount
	Offered Amount
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid %s is below the minimum acceptable bid of %s", e.Offered, e.Minimum)
}

func (e *BidTooLowError) Unwrap() error { return ErrBidTooLow }

type InsufficientFundsError struct {
	AccountID string
	Required  Amount
	Available Amount
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %s, available %s", e.Required, e.Available)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// TerminalStateError is returned for release or refund attempts on an order
// whose escrow is no longer held.
type TerminalStateError struct {
	OrderID string
	Status  EscrowStatus
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("order %s escrow is already %s", e.OrderID, e.Status)
}

func (e *TerminalStateError) Is(target error) bool {
	switch target {
	case ErrInvalidState:
		return true
	case ErrAlreadyReleased:
		return e.Status == EscrowReleased
	case ErrAlreadyRefunded:
		return e.Status == EscrowRefunded
	}
	return false
}
