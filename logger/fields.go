package logger

import (
	"time"
)

// Standard field key constants for structured logging.
const (
	FieldService   = "service"
	FieldComponent = "component"
	FieldTraceID   = "trace_id"
	FieldSpanID    = "span_id"
	FieldPipeline  = "pipeline"
	FieldStage     = "stage"
	FieldRunID     = "run_id"
	FieldOperation = "operation"
	FieldStatus    = "status"
	FieldError     = "error"
	FieldDuration  = "duration_ms"
)

// Fields builds a map[string]interface{} from alternating key-value pairs.
//
//	logger.Info("done", logger.Fields("stage", "load", "rows", 42))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// ErrorFields creates fields for an operation that failed.
func ErrorFields(op string, err error) map[string]interface{} {
	return map[string]interface{}{
		FieldOperation: op,
		FieldError:     err.Error(),
	}
}

// DurationFields creates fields for a timed operation.
func DurationFields(op string, d time.Duration) map[string]interface{} {
	return map[string]interface{}{
		FieldOperation: op,
		FieldDuration:  d.Milliseconds(),
	}
}

// RunFields scopes a pipeline run.
func RunFields(pipeline, runID string) map[string]interface{} {
	return map[string]interface{}{
		FieldPipeline: pipeline,
		FieldRunID:    runID,
	}
}

// StageFields describes a finished stage call. A nil err adds no error field.
func StageFields(status string, d time.Duration, err error) map[string]interface{} {
	fields := map[string]interface{}{
		FieldStatus:   status,
		FieldDuration: d.Milliseconds(),
	}
	if err != nil {
		fields[FieldError] = err.Error()
	}
	return fields
}
