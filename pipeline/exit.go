package pipeline

import (
	"github.com/kbukum/pipekit/errors"
)

// Exit returns the error a stage body returns to end the run successfully.
// Stages after it do not run.
func Exit(message string) error {
	return errors.ExitPipeline(message, false)
}

// ExitWithError returns the error a stage body returns to end the run in an
// error state.
func ExitWithError(message string, cause error) error {
	return errors.ExitPipeline(message, true).WithCause(cause)
}

// ExitSignal describes how a run was ended early.
type ExitSignal struct {
	Stage   string
	Message string
	Failed  bool
	Cause   error
}

// Err returns the signal as the EXIT_PIPELINE error it was raised with.
func (e *ExitSignal) Err() error {
	if e == nil {
		return nil
	}
	appErr := errors.ExitPipeline(e.Message, e.Failed).WithDetail("stage", e.Stage)
	if e.Cause != nil {
		appErr = appErr.WithCause(e.Cause)
	}
	return appErr
}

// AsExit extracts an exit signal from err, if it carries one.
func AsExit(err error) (*ExitSignal, bool) {
	appErr, ok := errors.AsAppError(err)
	for ok && appErr.Code != errors.ErrCodeExitPipeline {
		appErr, ok = errors.AsAppError(appErr.Cause)
	}
	if !ok {
		return nil, false
	}
	failed, _ := appErr.Details["failed"].(bool)
	return &ExitSignal{Message: appErr.Message, Failed: failed, Cause: appErr.Cause}, true
}
