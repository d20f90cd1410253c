package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Request errors
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")

	// Gated level errors
	ErrEntitlement = errors.New("entitlement required")

	// Remote collaborator errors
	ErrTransport = errors.New("transport failure")
	ErrRemote    = errors.New("remote execution failed")

	// Backend errors
	ErrBackendFault = errors.New("backend fault")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// Resilience errors
	ErrCircuitOpen        = errors.New("circuit breaker is open")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

// UpgradeURL is quoted in entitlement failures.
const UpgradeURL = "https://iln-nexus.com/pro"

// Error kinds reported on failed execution results
const (
	KindValidation  = "validation"
	KindNotFound    = "not_found"
	KindEntitlement = "entitlement"
	KindTransport   = "transport"
	KindRemote      = "remote"
	KindBackend     = "backend"
	KindConfig      = "config"
	KindInternal    = "internal"
)

// Error provides structured error information with context.
// It implements the error interface and supports error wrapping.
type Error struct {
	Op      string // Operation that failed (e.g., "registry.Get")
	Kind    string // Error kind (one of the Kind constants)
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error
func NewError(op, kind string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// ValidationError reports a malformed request.
func ValidationError(op, format string, args ...interface{}) *Error {
	return &Error{Op: op, Kind: KindValidation, Message: fmt.Sprintf(format, args...), Err: ErrValidation}
}

// EntitlementError reports a gated level requested without access.
func EntitlementError(level int) *Error {
	return &Error{
		Op:      "dispatcher.Execute",
		Kind:    KindEntitlement,
		ID:      fmt.Sprintf("level-%d", level),
		Message: fmt.Sprintf("level %d requires an ILN Pro subscription (%s)", level, UpgradeURL),
		Err:     ErrEntitlement,
	}
}

// KindOf classifies err into one of the Kind constants.
func KindOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrEntitlement):
		return KindEntitlement
	case errors.Is(err, ErrTransport), errors.Is(err, ErrCircuitOpen):
		return KindTransport
	case errors.Is(err, ErrRemote):
		return KindRemote
	case errors.Is(err, ErrBackendFault):
		return KindBackend
	case errors.Is(err, ErrInvalidConfiguration), errors.Is(err, ErrMissingConfiguration):
		return KindConfig
	}
	return KindInternal
}

// IsRetryable checks if an error is retryable.
// Only transport faults are retried; a remote that answered is never asked twice.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport) && !errors.Is(err, ErrCircuitOpen)
}

// IsNotFound checks if an error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}
