package stage

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/logger"
)

// Func is the body of a stage.
type Func func(ctx context.Context, args Args) (any, error)

// Arg returns args[name] as a T. A missing argument or one of another type
// is an INVALID_INPUT error. A nil value yields the zero T.
func Arg[T any](args Args, name string) (T, error) {
	var zero T
	v, ok := args[name]
	if !ok {
		return zero, errors.InvalidInput(name, "argument not provided")
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, errors.InvalidInput(name, fmt.Sprintf("expected %T, got %T", zero, v))
	}
	return t, nil
}

// ArgOr is Arg with fallback for a missing, nil or mistyped argument.
func ArgOr[T any](args Args, name string, fallback T) T {
	v, ok := args[name].(T)
	if !ok {
		return fallback
	}
	return v
}

// Stage is a Func with its input bindings and output mapper, plus the
// state of its last run.
type Stage struct {
	fn           Func
	inputs       []Input
	outputMapper OutputMapper

	mu      sync.RWMutex
	hasRun  bool
	outputs Outputs
}

// Option configures a Stage.
type Option func(*Stage)

// WithOutputMapper replaces DefaultOutput.
func WithOutputMapper(m OutputMapper) Option {
	return func(s *Stage) {
		if m != nil {
			s.outputMapper = m
		}
	}
}

// New creates a stage that has not run.
func New(fn Func, inputs []Input, opts ...Option) *Stage {
	s := &Stage{
		fn:           fn,
		inputs:       append([]Input(nil), inputs...),
		outputMapper: DefaultOutput,
		outputs:      Outputs{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run resolves the inputs against scope, applies overrides on top, calls the
// stage body and stores the mapped outputs. It returns the body's raw value.
// On failure the stage state is left as it was.
//
// A successful call always marks the stage as run, even when a chill or
// preserve mapper keeps no keys and the stored outputs are empty. HasRun, not
// the size of Outputs, tells a stage that produced nothing from one that
// never ran.
func (s *Stage) Run(ctx context.Context, scope *Scope, overrides Args) (any, error) {
	args := make(Args, len(s.inputs)+len(overrides))
	logged := make(map[string]interface{})
	for _, in := range s.inputs {
		resolved, err := in.Resolve(ctx, scope)
		if err != nil {
			return nil, err
		}
		for k, v := range resolved {
			args[k] = v
			if in.Logged {
				logged[k] = v
			}
		}
	}
	for k, v := range overrides {
		args[k] = v
		if _, ok := logged[k]; ok {
			logged[k] = v
		}
	}
	ctx = logger.WithScope(ctx, logged)

	value, err := s.call(ctx, scope, args)
	if err != nil {
		return nil, err
	}

	outputs, err := s.outputMapper.MapOutput(ctx, value)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.outputs = outputs.clone()
	s.hasRun = true
	s.mu.Unlock()
	return value, nil
}

func (s *Stage) call(ctx context.Context, scope *Scope, args Args) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			name := ""
			if scope != nil {
				name = scope.Stage
			}
			value, err = nil, errors.StageFailed(name, fmt.Errorf("panic: %v", r))
		}
	}()
	if s.fn == nil {
		return nil, errors.Internal(fmt.Errorf("stage has no function"))
	}
	return s.fn(ctx, args)
}

// Reset clears the run state. Inputs and the output mapper are kept.
func (s *Stage) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasRun = false
	s.outputs = Outputs{}
}

// HasRun reports whether the stage completed since the last reset.
func (s *Stage) HasRun() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasRun
}

// Outputs returns a copy of the outputs of the last run.
func (s *Stage) Outputs() Outputs {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outputs.clone()
}

// Output returns a single output of the last run.
func (s *Stage) Output(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.outputs[key]
	return v, ok
}

// Inputs returns the input declarations.
func (s *Stage) Inputs() []Input {
	return append([]Input(nil), s.inputs...)
}

// OutputMapper returns the mapper applied to the return value.
func (s *Stage) OutputMapper() OutputMapper { return s.outputMapper }

func (s *Stage) String() string {
	return fmt.Sprintf("Stage(inputs=%d, output=%s, has_run=%t)",
		len(s.inputs), describeOutputMapper(s.outputMapper), s.HasRun())
}

func describeOutputMapper(m OutputMapper) string {
	if st, ok := m.(fmt.Stringer); ok {
		return st.String()
	}
	return fmt.Sprintf("%T", m)
}
