package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Binding and input errors
const (
	// ErrCodeUnboundInput indicates a binding was evaluated with no usable source.
	ErrCodeUnboundInput ErrorCode = "UNBOUND_INPUT"
	// ErrCodeUndefinedInput indicates an input mapper could not locate its target.
	ErrCodeUndefinedInput ErrorCode = "UNDEFINED_INPUT"
	// ErrCodeBindingFailed wraps any failure raised while resolving a binding.
	ErrCodeBindingFailed ErrorCode = "BINDING_FAILED"
)

// Store errors
const (
	// ErrCodeInvalidParameter indicates access to a key outside the declared parameter set.
	ErrCodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	// ErrCodeUndefinedParameter indicates a required parameter has no value.
	ErrCodeUndefinedParameter ErrorCode = "UNDEFINED_PARAMETER"
	// ErrCodeUndefinedVariable indicates a required variable has no value.
	ErrCodeUndefinedVariable ErrorCode = "UNDEFINED_VARIABLE"
)

// Output mapping errors
const (
	// ErrCodeOutputMismatch indicates a return value did not match the declared output shape.
	ErrCodeOutputMismatch ErrorCode = "OUTPUT_MISMATCH"
	// ErrCodeInvalidMapper indicates an output mapper was configured inconsistently.
	ErrCodeInvalidMapper ErrorCode = "INVALID_MAPPER"
)

// Execution errors
const (
	// ErrCodeStageFailed indicates a stage body returned an error or panicked.
	ErrCodeStageFailed ErrorCode = "STAGE_FAILED"
	// ErrCodeStageNotFound indicates a stage name is not registered.
	ErrCodeStageNotFound ErrorCode = "STAGE_NOT_FOUND"
	// ErrCodeExitPipeline is carried by the exit signal a stage raises to stop a run early.
	ErrCodeExitPipeline ErrorCode = "EXIT_PIPELINE"
	// ErrCodeInvalidPipeline indicates a pipeline definition failed validation.
	ErrCodeInvalidPipeline ErrorCode = "INVALID_PIPELINE"
)

// Validation and internal errors
const (
	// ErrCodeInvalidInput indicates user supplied data is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// inputCodes are the codes raised while locating a stage argument.
var inputCodes = map[ErrorCode]bool{
	ErrCodeUnboundInput:       true,
	ErrCodeUndefinedInput:     true,
	ErrCodeBindingFailed:      true,
	ErrCodeInvalidParameter:   true,
	ErrCodeUndefinedParameter: true,
	ErrCodeUndefinedVariable:  true,
}

// IsInputCode reports whether code belongs to the argument resolution family.
func IsInputCode(code ErrorCode) bool {
	return inputCodes[code]
}
