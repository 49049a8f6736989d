// Package errors provides the structured error type used across pipekit.
// Every failure raised by bindings, stores, output mappers and the run loop
// is an *AppError carrying a machine-readable code, optional details and the
// underlying cause.
package errors
