package errors

import (
	"fmt"
)

// AppError is the unified pipekit error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// Is reports whether target is an *AppError with the same code, so that
// errors.Is(err, errors.New(code, "")) matches anywhere in a chain.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates a new AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// --- Binding and input constructors ---

// UnboundInput creates a new AppError for a binding evaluated without a source.
func UnboundInput(reason string) *AppError {
	if reason == "" {
		reason = "No source was bound and no deferred source is available."
	}
	return &AppError{Code: ErrCodeUnboundInput, Message: reason}
}

// UndefinedInput creates a new AppError for an input mapper that could not find its target.
func UndefinedInput(message string) *AppError {
	return &AppError{Code: ErrCodeUndefinedInput, Message: message}
}

// BindingFailed wraps a resolution failure together with the rendered binding state.
func BindingFailed(binding string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeBindingFailed, Message: fmt.Sprintf("Failed to resolve %s.", binding),
		Details: map[string]any{"binding": binding}, Cause: cause,
	}
}

// --- Store constructors ---

// InvalidParameter creates a new AppError for a key outside the declared parameter set.
func InvalidParameter(key string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidParameter, Message: fmt.Sprintf("Parameter %q is not declared.", key),
		Details: map[string]any{"key": key},
	}
}

// UndefinedParameter creates a new AppError for a required parameter that is unset.
func UndefinedParameter(key string) *AppError {
	return &AppError{
		Code: ErrCodeUndefinedParameter, Message: fmt.Sprintf("Parameter %q is not set.", key),
		Details: map[string]any{"key": key},
	}
}

// UndefinedVariable creates a new AppError for a required variable that is unset.
func UndefinedVariable(key string) *AppError {
	return &AppError{
		Code: ErrCodeUndefinedVariable, Message: fmt.Sprintf("Variable %q is not set.", key),
		Details: map[string]any{"key": key},
	}
}

// --- Output mapping constructors ---

// OutputMismatch creates a new AppError for a return value of the wrong shape.
func OutputMismatch(message string) *AppError {
	return &AppError{Code: ErrCodeOutputMismatch, Message: message}
}

// InvalidMapper creates a new AppError for an inconsistent output mapper configuration.
func InvalidMapper(reason string) *AppError {
	return &AppError{Code: ErrCodeInvalidMapper, Message: reason}
}

// --- Execution constructors ---

// StageFailed creates a new AppError for a stage whose body failed.
func StageFailed(stage string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeStageFailed, Message: fmt.Sprintf("Stage %s failed.", stage),
		Details: map[string]any{"stage": stage}, Cause: cause,
	}
}

// StageNotFound creates a new AppError for an unknown stage name.
func StageNotFound(stage string) *AppError {
	return &AppError{
		Code: ErrCodeStageNotFound, Message: fmt.Sprintf("Stage %s is not registered.", stage),
		Details: map[string]any{"stage": stage},
	}
}

// ExitPipeline creates the signal a stage returns to end a run early.
// failed marks the exit as an error exit.
func ExitPipeline(message string, failed bool) *AppError {
	return &AppError{
		Code: ErrCodeExitPipeline, Message: message,
		Details: map[string]any{"failed": failed},
	}
}

// InvalidPipeline creates a new AppError for a pipeline definition that failed validation.
func InvalidPipeline(reason string) *AppError {
	return &AppError{Code: ErrCodeInvalidPipeline, Message: reason}
}

// --- Validation and internal constructors ---

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidInput, Message: message}
}

// Internal creates a new AppError for an unexpected error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.", Cause: cause,
	}
}
