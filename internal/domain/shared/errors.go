package shared

import "fmt"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
)

// Costing and ledger errors
var (
	ErrInsufficientStock    = NewDomainError("INSUFFICIENT_STOCK", "Insufficient stock available")
	ErrUnbalancedPosting    = NewDomainError("UNBALANCED_POSTING", "Debit and credit totals do not match in base currency")
	ErrMissingLegalEntity   = NewDomainError("MISSING_LEGAL_ENTITY", "Legal entity is required on every ledger line")
	ErrUnknownLegalEntity   = NewDomainError("UNKNOWN_LEGAL_ENTITY", "Legal entity is not configured")
	ErrUnknownAccount       = NewDomainError("UNKNOWN_ACCOUNT", "Account is not in the chart of accounts")
	ErrIdempotencyConflict  = NewDomainError("DUPLICATE_IDEMPOTENCY_KEY_CONFLICT", "Idempotency key already used for a different payload")
	ErrHandlerNotRegistered = NewDomainError("HANDLER_NOT_REGISTERED", "No handler registered for route")
	ErrLockTimeout          = NewDomainError("LOCK_TIMEOUT", "Could not acquire the critical section in time")
	ErrRateUnavailable      = NewDomainError("RATE_UNAVAILABLE", "No conversion rate to the base currency")
)

// IdempotencyConflictError reports two different payloads mapped to one key.
// It is an integrity violation and must never be resolved silently.
type IdempotencyConflictError struct {
	Key                 string
	StoredFingerprint   string
	IncomingFingerprint string
}

// Error implements the error interface
func (e *IdempotencyConflictError) Error() string {
	return fmt.Sprintf("idempotency key %q already used for a different payload (stored %s, incoming %s)",
		e.Key, e.StoredFingerprint, e.IncomingFingerprint)
}

// Unwrap allows errors.Is(err, ErrIdempotencyConflict)
func (e *IdempotencyConflictError) Unwrap() error {
	return ErrIdempotencyConflict
}

// NewIdempotencyConflictError creates a conflict error for the given key
func NewIdempotencyConflictError(key, stored, incoming string) *IdempotencyConflictError {
	return &IdempotencyConflictError{
		Key:                 key,
		StoredFingerprint:   stored,
		IncomingFingerprint: incoming,
	}
}
