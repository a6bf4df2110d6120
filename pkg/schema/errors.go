package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeInvalidContext    = "INVALID_CONTEXT"
	ErrCodeNoVariants        = "NO_VARIANTS"
	ErrCodeUnknownWorkflow   = "UNKNOWN_WORKFLOW"
	ErrCodeInvalidTransition = "INVALID_LIFECYCLE_TRANSITION"
	ErrCodeLearningFailure   = "LEARNING_TASK_FAILURE"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeConfig            = "CONFIG_ERROR"
	ErrCodeExecution         = "EXECUTION_ERROR"
)

// FlowError is the structured error type for all adaptflow operations.
type FlowError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Field      string         `json:"field,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
}

func (e *FlowError) Error() string {
	switch {
	case e.WorkflowID != "" && e.Field != "":
		return fmt.Sprintf("[%s] workflow %s, field %s: %s", e.Code, e.WorkflowID, e.Field, e.Message)
	case e.WorkflowID != "":
		return fmt.Sprintf("[%s] workflow %s: %s", e.Code, e.WorkflowID, e.Message)
	case e.Field != "":
		return fmt.Sprintf("[%s] field %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the failure is transient. Only background
// learning passes and store round-trips qualify; everything on the
// synchronous path is surfaced to the caller as-is.
func (e *FlowError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeLearningFailure, ErrCodeStore:
		return true
	default:
		return false
	}
}

// NewError creates a new FlowError.
func NewError(code, message string) *FlowError {
	return &FlowError{Code: code, Message: message}
}

// NewErrorf creates a new FlowError with a formatted message.
func NewErrorf(code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithWorkflow attaches a workflow ID to the error.
func (e *FlowError) WithWorkflow(workflowID string) *FlowError {
	e.WorkflowID = workflowID
	return e
}

// WithField attaches the offending input field name.
func (e *FlowError) WithField(field string) *FlowError {
	e.Field = field
	return e
}

// WithCause attaches an underlying cause.
func (e *FlowError) WithCause(err error) *FlowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *FlowError) WithDetails(details map[string]any) *FlowError {
	e.Details = details
	return e
}

// CodeOf returns the FlowError code found in err's chain, or "".
func CodeOf(err error) string {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsCode reports whether err's chain contains a FlowError with the given code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}
