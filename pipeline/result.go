package pipeline

import "time"

// Result holds the outcome of a pipeline run.
type Result struct {
	RunID string
	// Values maps each stage that completed to its raw return value.
	Values map[string]any
	// Order lists the completed stages in execution order.
	Order  []string
	Stages []StageResult
	// Exit is set when a stage ended the run early, or when a failure was
	// turned into an exit by ExitOnFailure.
	Exit     *ExitSignal
	Duration time.Duration
}

// StageResult holds the outcome of a single stage execution.
type StageResult struct {
	Name     string
	Status   string // "completed" | "exited" | "failed"
	Duration time.Duration
	Error    error
}

// Value returns the raw return value of a completed stage.
func (r *Result) Value(name string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.Values[name]
	return v, ok
}

// Exited reports whether the run ended before its last stage.
func (r *Result) Exited() bool {
	return r != nil && r.Exit != nil
}
