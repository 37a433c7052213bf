package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest      = "BAD_REQUEST"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrValidationError = "VALIDATION_ERROR"
	ErrInternalError   = "INTERNAL_ERROR"
)

// Workflow error codes. Each is a distinct, recoverable condition; the
// engine never collapses them into a generic failure.
const (
	// ErrNotFound means the record id does not resolve.
	ErrNotFound = "NOT_FOUND"
	// ErrNotAuthorized means the actor is not the resolved authority for
	// the record's current step.
	ErrNotAuthorized = "NOT_AUTHORIZED"
	// ErrWrongStep means the requested step ordinal does not match the
	// record's current step (no skipping ahead, no re-deciding past steps).
	ErrWrongStep = "WRONG_STEP"
	// ErrAlreadyTerminal means the record status is no longer active.
	ErrAlreadyTerminal = "ALREADY_TERMINAL"
	// ErrStaleState means the optimistic concurrency check failed; the
	// caller should re-read and may retry.
	ErrStaleState = "STALE_STATE"
	// ErrInvalidDefinition means the workflow type or step ordinal does not
	// exist in the loaded definitions. Configuration error, not a data error.
	ErrInvalidDefinition = "INVALID_DEFINITION"
)

// ErrorEnvelope is the standard error response envelope returned by the
// service. It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IsCode reports whether err is an *ErrorEnvelope carrying the given code.
func IsCode(err error, code string) bool {
	ee, ok := err.(*ErrorEnvelope)
	return ok && ee.Code == code
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewNotAuthorizedError returns a NOT_AUTHORIZED error.
func NewNotAuthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotAuthorized, Message: msg}
}

// NewWrongStepError returns a WRONG_STEP error.
func NewWrongStepError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrWrongStep, Message: msg}
}

// NewAlreadyTerminalError returns an ALREADY_TERMINAL error.
func NewAlreadyTerminalError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrAlreadyTerminal, Message: msg}
}

// NewStaleStateError returns a STALE_STATE error.
func NewStaleStateError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrStaleState, Message: msg}
}

// NewInvalidDefinitionError returns an INVALID_DEFINITION error.
func NewInvalidDefinitionError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidDefinition, Message: msg}
}
