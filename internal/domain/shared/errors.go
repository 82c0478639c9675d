// Package shared contains common domain types, errors and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	// Economy errors
	ErrInsufficientFunds = errors.New("insufficient funds")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Store errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "ledger", "redemption", "connection"
	Op      string // Operation that failed, e.g., "Debit", "Accept"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Account and ledger errors
var (
	ErrAccountNotFound      = NewDomainError("account", "Find", ErrNotFound, "account not found")
	ErrAccountAlreadyExists = NewDomainError("account", "Create", ErrAlreadyExists, "account already exists")
	ErrInvalidAmount        = NewDomainError("ledger", "Validate", ErrValueOutOfRange, "amount must be positive")
	ErrInsufficientXP       = NewDomainError("ledger", "Debit", ErrInsufficientFunds, "insufficient XP")
	ErrStreakAlreadyCounted = NewDomainError("account", "RecordLogin", ErrConcurrentModification, "login already recorded by another session")
)

// Completion and catalog errors
var (
	ErrAlreadyCompleted  = NewDomainError("completion", "Record", ErrAlreadyExists, "activity already completed")
	ErrActivityNotFound  = NewDomainError("catalog", "FindActivity", ErrNotFound, "activity not found")
	ErrInvalidKind       = NewDomainError("completion", "Validate", ErrInvalidInput, "activity kind must be course or event")
	ErrRewardNotFound    = NewDomainError("catalog", "FindReward", ErrNotFound, "reward not found")
	ErrBadgeNotFound     = NewDomainError("catalog", "FindBadge", ErrNotFound, "badge not found")
	ErrCatalogItemExists = NewDomainError("catalog", "Create", ErrAlreadyExists, "catalog item already exists")
	ErrRewardInUse       = NewDomainError("catalog", "DeleteReward", ErrInvalidState, "reward has redemptions")
)

// Redemption errors
var (
	ErrRedemptionNotFound = NewDomainError("redemption", "Find", ErrNotFound, "redemption not found")
	ErrRedemptionReversal = NewDomainError("redemption", "Transition", ErrStateTransition, "redemption status cannot move backwards")
)

// Connection errors
var (
	ErrConnectionNotFound = NewDomainError("connection", "Find", ErrNotFound, "connection not found")
	ErrConnectionExists   = NewDomainError("connection", "Request", ErrAlreadyExists, "connection already exists")
	ErrSelfConnection     = NewDomainError("connection", "Request", ErrInvalidInput, "cannot connect to self")
	ErrNotPending         = NewDomainError("connection", "Accept", ErrInvalidState, "connection is not pending")
	ErrOwnRequest         = NewDomainError("connection", "Accept", ErrForbidden, "cannot accept own request")
	ErrNotParticipant     = NewDomainError("connection", "Accept", ErrForbidden, "account is not part of this connection")
	ErrConnectionChanged  = NewDomainError("connection", "Swap", ErrConcurrentModification, "connection changed concurrently")
)

// Group membership errors
var (
	ErrGroupNotFound      = NewDomainError("membership", "FindGroup", ErrNotFound, "group not found")
	ErrMembershipNotFound = NewDomainError("membership", "Find", ErrNotFound, "membership not found")
	ErrMembershipChanged  = NewDomainError("membership", "Swap", ErrConcurrentModification, "membership changed concurrently")
)

// Authorization errors
var (
	ErrAdminRequired = NewDomainError("auth", "Authorize", ErrForbidden, "admin role required")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsAlreadyCompleted reports the benign duplicate-completion outcome.
func IsAlreadyCompleted(err error) bool {
	return errors.Is(err, ErrAlreadyCompleted)
}

// IsInsufficientFunds checks if a debit was refused for lack of balance.
func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

// IsConflict checks if the error is a constraint or concurrent-modification conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsForbidden checks if the caller is not allowed to perform the operation.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden) || errors.Is(err, ErrUnauthorized)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsRetryable checks if the operation can be retried.
// Transient store failures are safe to retry because every economy
// operation is either idempotent or atomic.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
