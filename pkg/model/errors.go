package model

import "fmt"

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation     ErrorCode = "VALIDATION_ERROR"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrConflict       ErrorCode = "CONFLICT"
	ErrInternal       ErrorCode = "INTERNAL_ERROR"
	ErrLimitExceeded  ErrorCode = "LIMIT_EXCEEDED"
	ErrHeapCorruption ErrorCode = "HEAP_CORRUPTION"
)

// APIError is a structured error returned by the gosched API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// NewInternalError creates an INTERNAL_ERROR APIError.
func NewInternalError(msg string) *APIError {
	return &APIError{Code: ErrInternal, Message: msg}
}

// InvalidTransitionError is returned when a state transition is invalid.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s → %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}

// InvalidProcessError rejects a process spec before any simulation state exists.
type InvalidProcessError struct {
	ID     ProcessID
	Field  string
	Reason string
}

func (e *InvalidProcessError) Error() string {
	return fmt.Sprintf("invalid process %d: %s %s", e.ID, e.Field, e.Reason)
}

// DuplicateIDError is returned when two processes share an id, either at
// construction time or on a second heap insertion of the same process.
type DuplicateIDError struct {
	ID ProcessID
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate process id %d", e.ID)
}

// HeapCorruptionError reports a broken heap invariant. It always indicates a
// bug; the engine halts instead of producing wrong statistics.
type HeapCorruptionError struct {
	Op     string
	Detail string
}

func (e *HeapCorruptionError) Error() string {
	return fmt.Sprintf("heap corruption during %s: %s", e.Op, e.Detail)
}

// MaxTicksExceededError is the safety valve abort. Run returns it together
// with the partial result gathered so far.
type MaxTicksExceededError struct {
	MaxTicks int
	Clock    int64
}

func (e *MaxTicksExceededError) Error() string {
	return fmt.Sprintf("simulation aborted after %d ticks at t=%d", e.MaxTicks, e.Clock)
}

// ConfigError rejects an invalid engine or aging configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s %s", e.Field, e.Reason)
}
