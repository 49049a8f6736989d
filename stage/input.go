package stage

import (
	"context"
)

// Args holds resolved stage arguments by name.
type Args map[string]any

// Input binds one argument of a stage. Logged inputs are added to the
// logging scope of the stage call.
type Input struct {
	Arg     string
	Binding Binding
	Logged  bool
}

// Resolve evaluates the binding and returns it keyed by Arg.
func (in Input) Resolve(ctx context.Context, scope *Scope) (Args, error) {
	v, err := in.Binding.Resolve(ctx, scope)
	if err != nil {
		return nil, err
	}
	return Args{in.Arg: v}, nil
}

// DependsOn reports the stage a dependency input reads from and whether that
// read is required. ok is false for every other kind of input.
func (in Input) DependsOn() (stage string, required bool, ok bool) {
	m, isDep := in.Binding.Mapper().(DependencyInputMapper)
	if !isDep {
		return "", false, false
	}
	return m.FromStage, m.Required, true
}

type inputOptions struct {
	def      any
	optional bool
	logged   bool
	output   string
}

// InputOption configures the shorthand input constructors.
type InputOption func(*inputOptions)

// Default sets the value used when the key, stage or output is missing and
// the input is optional. Default implies nothing about Required.
func Default(v any) InputOption {
	return func(o *inputOptions) { o.def = v }
}

// Optional lets a missing source resolve to the default instead of failing.
func Optional() InputOption {
	return func(o *inputOptions) { o.optional = true }
}

// Logged adds the resolved value to the logging scope of the stage call.
func Logged() InputOption {
	return func(o *inputOptions) { o.logged = true }
}

// FromOutput selects the dependency output to read. Other inputs ignore it.
func FromOutput(key string) InputOption {
	return func(o *inputOptions) { o.output = key }
}

func buildOptions(opts []InputOption) inputOptions {
	var o inputOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Known binds arg to a fixed value.
func Known(value any, arg string, opts ...InputOption) Input {
	o := buildOptions(opts)
	return Input{Arg: arg, Binding: Immediate(value), Logged: o.logged}
}

// Param binds arg to pipeline parameter name, read when the stage runs.
func Param(name, arg string, opts ...InputOption) Input {
	return keyedInput(SlotParameters, name, arg, opts)
}

// Var binds arg to pipeline variable name, read when the stage runs.
func Var(name, arg string, opts ...InputOption) Input {
	return keyedInput(SlotVariables, name, arg, opts)
}

func keyedInput(slot Slot, name, arg string, opts []InputOption) Input {
	o := buildOptions(opts)
	m := KeyedInputMapper{FromKey: name, Default: o.def, Required: !o.optional}
	return Input{Arg: arg, Binding: Deferred(slot, WithMapper(m), Raw()), Logged: o.logged}
}

// Dependency binds arg to an output of an earlier stage, DefaultOutputKey
// unless FromOutput says otherwise.
func Dependency(stage, arg string, opts ...InputOption) Input {
	o := buildOptions(opts)
	m := DependencyInputMapper{
		FromStage:  stage,
		FromOutput: o.output,
		Default:    o.def,
		Required:   !o.optional,
	}
	return Input{Arg: arg, Binding: Deferred(SlotStages, WithMapper(m), Raw()), Logged: o.logged}
}

// Contextual binds arg to m applied to a slot of the run scope, for reads the
// other shorthands do not cover. A nil mapper passes the slot value through.
func Contextual(slot Slot, arg string, m Mapper, opts ...InputOption) Input {
	o := buildOptions(opts)
	var bopts []BindingOption
	if m != nil {
		bopts = append(bopts, WithMapper(m))
	}
	return Input{Arg: arg, Binding: Deferred(slot, bopts...), Logged: o.logged}
}
