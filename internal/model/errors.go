package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's failure classes.
// Use errors.Is() to check against these.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrOutOfStock   = errors.New("out of stock")
	ErrInsufficient = errors.New("insufficient stock")
	ErrNetwork      = errors.New("network failure")
	ErrConflict     = errors.New("remote state diverged")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")
)

// Error is the structured error carried across store and engine
// boundaries. Stores never panic or return bare errors to callers;
// every failure is one of these, so the engine can decide user-visible
// messaging from Code alone.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"` // Wrapped sentinel or cause, not serialized
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError rejects malformed input before any I/O.
func NewValidationError(field, reason string) *Error {
	return &Error{
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("invalid %s: %s", field, reason),
		Err:     ErrInvalidInput,
	}
}

// NewUnavailableError rejects a mutation on an item with zero stock.
func NewUnavailableError(itemID string) *Error {
	return &Error{
		Code:    "UNAVAILABLE",
		Message: fmt.Sprintf("item %s is out of stock", itemID),
		Err:     ErrOutOfStock,
	}
}

// NewInsufficientStockError reports a quantity clamped to available stock.
func NewInsufficientStockError(itemID string, requested, available int) *Error {
	return &Error{
		Code:    "INSUFFICIENT_STOCK",
		Message: fmt.Sprintf("item %s: requested %d, only %d available", itemID, requested, available),
		Err:     ErrInsufficient,
	}
}

// NewNetworkError wraps a failed or timed-out request. State is
// unchanged and the operation is safe to retry.
func NewNetworkError(op string, err error) *Error {
	return &Error{
		Code:    "NETWORK_ERROR",
		Message: fmt.Sprintf("%s request failed", op),
		Err:     fmt.Errorf("%w: %v", ErrNetwork, err),
	}
}

// NewConflictError reports a write the server rejected because its
// state diverged (e.g. the item was removed from the catalog). The
// engine refreshes from the remote store after surfacing it.
func NewConflictError(reason string) *Error {
	return &Error{
		Code:    "CONFLICT",
		Message: reason,
		Err:     ErrConflict,
	}
}

// NewUnauthorizedError reports a rejected or missing credential.
func NewUnauthorizedError(reason string) *Error {
	return &Error{
		Code:    "UNAUTHORIZED",
		Message: reason,
		Err:     ErrUnauthorized,
	}
}

// NewInternalError wraps an unexpected failure, including programmer
// errors such as invoking the remote store without a credential.
func NewInternalError(err error) *Error {
	return &Error{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Err:     fmt.Errorf("%w: %v", ErrInternal, err),
	}
}
