package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/logger"
	"github.com/kbukum/pipekit/observability"
	"github.com/kbukum/pipekit/stage"
)

// FailurePolicy decides how a run reacts to a failing stage.
type FailurePolicy int

const (
	// FailFast stops at the first failing stage and returns its error.
	FailFast FailurePolicy = iota
	// ExitOnFailure stops at the first failing stage, logs the failure and
	// reports it as an error exit on the Result instead of returning it.
	ExitOnFailure
)

func (f FailurePolicy) String() string {
	switch f {
	case FailFast:
		return "fail_fast"
	case ExitOnFailure:
		return "exit_on_failure"
	default:
		return fmt.Sprintf("policy(%d)", int(f))
	}
}

// ParseFailurePolicy reads "fail_fast" or "exit_on_failure". An empty string
// is FailFast.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail_fast":
		return FailFast, nil
	case "exit_on_failure":
		return ExitOnFailure, nil
	default:
		return FailFast, errors.InvalidInput("failure_policy", "unknown failure policy "+s)
	}
}

// Pipeline runs named stages in registration order over shared parameters
// and variables.
type Pipeline struct {
	name       string
	parameters *Parameters
	variables  *Variables
	stages     *stage.Table
	log        *logger.Logger
	policy     FailurePolicy
	cumulative bool
	middleware []Middleware
	metrics    *observability.Metrics

	mu sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithParameters sets the parameter store.
func WithParameters(p *Parameters) Option {
	return func(pl *Pipeline) {
		if p != nil {
			pl.parameters = p
		}
	}
}

// WithVariables sets the variable store.
func WithVariables(v *Variables) Option {
	return func(pl *Pipeline) {
		if v != nil {
			pl.variables = v
		}
	}
}

// WithLogger sets the logger handed to stages through the context and the
// scope.
func WithLogger(l *logger.Logger) Option {
	return func(pl *Pipeline) {
		if l != nil {
			pl.log = l
		}
	}
}

// WithFailurePolicy sets the failure policy. The default is FailFast.
func WithFailurePolicy(f FailurePolicy) Option {
	return func(pl *Pipeline) { pl.policy = f }
}

// WithCumulativeState keeps stage outputs and variables from one run to the
// next instead of resetting them when a run starts.
func WithCumulativeState() Option {
	return func(pl *Pipeline) { pl.cumulative = true }
}

// WithMiddleware appends stage middleware. The first one is outermost.
func WithMiddleware(mw ...Middleware) Option {
	return func(pl *Pipeline) { pl.middleware = append(pl.middleware, mw...) }
}

// WithStages seeds the pipeline with an existing stage table.
func WithStages(t *stage.Table) Option {
	return func(pl *Pipeline) {
		if t != nil {
			pl.stages = t
		}
	}
}

// WithRunMetrics records run counts, durations and active runs.
func WithRunMetrics(m *observability.Metrics) Option {
	return func(pl *Pipeline) { pl.metrics = m }
}

// New creates an empty pipeline with no parameters declared. Without
// WithLogger it logs through the logger registered under name, or the global
// logger tagged with name.
func New(name string, opts ...Option) *Pipeline {
	p := &Pipeline{
		name:       name,
		parameters: DefineParameters(nil, nil),
		variables:  DefineVariables(nil),
		stages:     stage.NewTable(),
		log:        logger.Get(name),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Parameters returns the parameter store.
func (p *Pipeline) Parameters() *Parameters { return p.parameters }

// Variables returns the variable store.
func (p *Pipeline) Variables() *Variables { return p.variables }

// Stages returns the live stage table.
func (p *Pipeline) Stages() *stage.Table { return p.stages }

// Policy returns the failure policy.
func (p *Pipeline) Policy() FailurePolicy { return p.policy }

// AddStage creates a stage and registers it under name, replacing any stage
// already registered under that name in place.
func (p *Pipeline) AddStage(name string, fn stage.Func, inputs []stage.Input, opts ...stage.Option) *stage.Stage {
	s := stage.New(fn, inputs, opts...)
	p.stages.Set(name, s)
	return s
}

// Register adds an existing stage under name.
func (p *Pipeline) Register(name string, s *stage.Stage) {
	p.stages.Set(name, s)
}

// Stage returns the stage registered under name.
func (p *Pipeline) Stage(name string) (*stage.Stage, bool) {
	return p.stages.Stage(name)
}

// runningKey marks a context derived inside Run or RunStage of p.
type runningKey struct{ p *Pipeline }

// enter takes the pipeline lock, refusing a context that already holds it.
func (p *Pipeline) enter(ctx context.Context) (context.Context, error) {
	if ctx.Value(runningKey{p}) != nil {
		return ctx, errors.InvalidPipeline(fmt.Sprintf("pipeline %q is already running on this context", p.name))
	}
	p.mu.Lock()
	return context.WithValue(ctx, runningKey{p}, struct{}{}), nil
}

// Reset resets every stage and the variables. Parameters are kept. It must
// not be called from a stage body of the same pipeline.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}

func (p *Pipeline) reset() {
	p.stages.Reset()
	p.variables.Reset()
}

func (p *Pipeline) scope(runID string) *stage.Scope {
	return &stage.Scope{
		Pipeline:   p.name,
		RunID:      runID,
		Parameters: p.parameters,
		Variables:  p.variables,
		Stages:     p.stages,
		Logger:     p.log,
	}
}

func (p *Pipeline) runner() Runner {
	return Chain(p.middleware...)(runStage)
}

// callStage runs one stage through the middleware with its name scoped into
// the logging context.
func (p *Pipeline) callStage(ctx context.Context, run Runner, scope *stage.Scope, name string, s *stage.Stage, overrides stage.Args) (any, error) {
	ctx = logger.WithScope(ctx, map[string]interface{}{logger.FieldStage: name})
	return run(ctx, &Call{
		Pipeline:  p.name,
		RunID:     scope.RunID,
		Name:      name,
		Stage:     s,
		Scope:     scope.WithStage(name),
		Overrides: overrides,
	})
}

// Run executes every stage in registration order and returns the values of
// the stages that completed. Overrides are applied to every stage call.
//
// Unless the pipeline keeps cumulative state, stages and variables are reset
// first. Under FailFast a failing stage stops the run and its error is
// returned with the partial Result. Under ExitOnFailure the failure is
// logged and reported on Result.Exit with a nil error. A stage returning
// Exit ends the run successfully; one returning ExitWithError ends it in an
// error state, which FailFast also returns as an error.
//
// Run holds the pipeline lock until it returns, so concurrent runs are
// serialized. A stage body calling Run or RunStage on its own pipeline with
// the context it was given gets an INVALID_PIPELINE error. Called with any
// other context, or calling Reset, it deadlocks.
func (p *Pipeline) Run(ctx context.Context, overrides stage.Args) (*Result, error) {
	ctx, err := p.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer p.mu.Unlock()

	if !p.cumulative {
		p.reset()
	}

	runID := uuid.NewString()
	rc := observability.NewRunContext(p.name, runID, p.metrics)
	ctx, span := rc.Start(ctx)
	ctx = logger.ContextWith(ctx, p.log)
	ctx = logger.WithScope(ctx, logger.RunFields(p.name, runID))
	log := p.log.WithContext(ctx)

	result := &Result{RunID: runID, Values: make(map[string]any)}
	scope := p.scope(runID)
	run := p.runner()
	status := observability.StatusCompleted
	var runErr error

	log.Debug("pipeline started", map[string]interface{}{"stages": p.stages.Len()})

	for _, name := range p.stages.Names() {
		if err := ctx.Err(); err != nil {
			runErr = err
			status = observability.StatusFailed
			log.Warn("pipeline cancelled", logger.ErrorFields("run", err))
			break
		}
		s, ok := p.stages.Stage(name)
		if !ok {
			continue
		}

		start := time.Now()
		value, err := p.callStage(ctx, run, scope, name, s, overrides)
		sr := StageResult{Name: name, Status: statusOf(err), Duration: time.Since(start), Error: err}
		result.Stages = append(result.Stages, sr)

		if err == nil {
			result.Values[name] = value
			result.Order = append(result.Order, name)
			continue
		}

		if exit, ok := AsExit(err); ok {
			exit.Stage = name
			result.Exit = exit
			fields := map[string]interface{}{logger.FieldStage: name, "reason": exit.Message}
			if exit.Failed {
				status = observability.StatusFailed
				log.Exception("Exited pipeline with error state.", exit.Cause, fields)
				if p.policy == FailFast {
					runErr = exit.Err()
				}
			} else {
				status = observability.StatusExited
				log.Info("Exited pipeline successfully.", fields)
			}
			break
		}

		status = observability.StatusFailed
		if p.policy == ExitOnFailure {
			result.Exit = &ExitSignal{Stage: name, Message: "Error in pipeline", Failed: true, Cause: err}
			log.Exception("Exited pipeline with error state.", err, map[string]interface{}{logger.FieldStage: name})
			break
		}
		runErr = stageError(name, err)
		log.Exception("pipeline failed", err, map[string]interface{}{logger.FieldStage: name})
		break
	}

	result.Duration = rc.Duration()
	spanErr := runErr
	if spanErr == nil && result.Exit != nil && result.Exit.Failed {
		spanErr = result.Exit.Err()
	}
	rc.End(ctx, span, status, spanErr)

	if runErr == nil && result.Exit == nil {
		log.Debug("pipeline completed", logger.DurationFields("run", result.Duration))
	}
	return result, runErr
}

// RunStage runs a single stage with the pipeline's scope and middleware,
// leaving the other stages untouched.
func (p *Pipeline) RunStage(ctx context.Context, name string, overrides stage.Args) (any, error) {
	ctx, err := p.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer p.mu.Unlock()

	s, ok := p.stages.Stage(name)
	if !ok {
		return nil, errors.StageNotFound(name)
	}
	runID := uuid.NewString()
	ctx = logger.ContextWith(ctx, p.log)
	ctx = logger.WithScope(ctx, logger.RunFields(p.name, runID))

	value, err := p.callStage(ctx, p.runner(), p.scope(runID), name, s, overrides)
	if err != nil {
		if _, isExit := AsExit(err); isExit {
			return nil, err
		}
		return nil, stageError(name, err)
	}
	return value, nil
}

// stageError wraps a stage failure unless it already is one.
func stageError(name string, err error) error {
	if errors.CodeOf(err) == errors.ErrCodeStageFailed {
		return err
	}
	return errors.StageFailed(name, err)
}
