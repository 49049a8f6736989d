package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/util"
)

// UnboundSource is the type of Unbound.
type UnboundSource struct{}

func (UnboundSource) String() string { return "UNBOUND" }

// Unbound is what a mapper receives when a binding has neither an immediate
// value nor a deferral.
var Unbound = UnboundSource{}

// IsUnbound reports whether v is the Unbound marker.
func IsUnbound(v any) bool {
	_, ok := v.(UnboundSource)
	return ok
}

// Mapper turns a binding's source into the argument value.
type Mapper interface {
	Map(ctx context.Context, source any) (any, error)
}

// MapperFunc adapts a function to Mapper.
type MapperFunc func(ctx context.Context, source any) (any, error)

// Map calls f.
func (f MapperFunc) Map(ctx context.Context, source any) (any, error) { return f(ctx, source) }

type mustBind struct{}

func (mustBind) Map(_ context.Context, source any) (any, error) {
	if IsUnbound(source) {
		return nil, errors.UnboundInput("")
	}
	return source, nil
}

func (mustBind) String() string { return "MustBind" }

// MustBind passes its source through and fails on Unbound. It is the mapper
// of every binding built without WithMapper.
var MustBind Mapper = mustBind{}

// Map builds a Mapper from a typed function. A source of another type fails
// the mapping, and Unbound fails it unless T is an interface that admits it.
func Map[T, R any](fn func(T) (R, error)) Mapper {
	return MapperFunc(func(_ context.Context, source any) (any, error) {
		v, ok := source.(T)
		if !ok {
			var zero T
			if IsUnbound(source) {
				return nil, errors.UnboundInput("")
			}
			return nil, errors.InvalidInput("", fmt.Sprintf("expected %T, got %T", zero, source))
		}
		out, err := fn(v)
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}

// Callback produces a deferred value each time a callback binding resolves.
type Callback func(ctx context.Context, args ...any) (any, error)

// CallbackRef is what a raw callback binding hands its mapper instead of the
// callback's result.
type CallbackRef struct {
	Fn   Callback
	Args []any
}

// Call invokes the referenced callback.
func (r CallbackRef) Call(ctx context.Context) (any, error) {
	return r.Fn(ctx, r.Args...)
}

// deferral is the late-bound half of a binding's source.
type deferral interface {
	describe() string
}

type slotDeferral struct{ slot Slot }

func (d slotDeferral) describe() string { return "slot:" + d.slot.String() }

type callbackDeferral struct {
	fn   Callback
	args []any
}

func (d callbackDeferral) describe() string {
	return fmt.Sprintf("callback(%d args)", len(d.args))
}

// Binding resolves a single value when a stage runs. Resolution order: an
// immediate value if one is bound, else the deferral if one is set, else
// Unbound. The result passes through the mapper.
type Binding struct {
	value    any
	bound    bool
	deferred deferral
	mapper   Mapper
	raw      bool
}

// BindingOption configures a Binding.
type BindingOption func(*Binding)

// WithMapper sets the mapper applied to the source.
func WithMapper(m Mapper) BindingOption {
	return func(b *Binding) { b.mapper = m }
}

// Raw hands the mapper a SlotRef or CallbackRef instead of reading the slot
// or calling the callback first.
func Raw() BindingOption {
	return func(b *Binding) { b.raw = true }
}

func newBinding(b Binding, opts []BindingOption) Binding {
	for _, opt := range opts {
		opt(&b)
	}
	if b.mapper == nil {
		b.mapper = MustBind
	}
	return b
}

// Immediate binds value at construction time.
func Immediate(value any, opts ...BindingOption) Binding {
	return newBinding(Binding{value: value, bound: true}, opts)
}

// Deferred binds to slot, read from the run scope on every resolution.
func Deferred(slot Slot, opts ...BindingOption) Binding {
	return newBinding(Binding{deferred: slotDeferral{slot: slot}}, opts)
}

// FromCallback binds to fn(ctx, args...), invoked on every resolution.
func FromCallback(fn Callback, args []any, opts ...BindingOption) Binding {
	return newBinding(Binding{deferred: callbackDeferral{fn: fn, args: args}}, opts)
}

// Bind returns a copy of b with value bound. The value takes precedence over
// any deferral b carries.
func (b Binding) Bind(value any) Binding {
	b.value = value
	b.bound = true
	return b
}

// IsBound reports whether b carries an immediate value.
func (b Binding) IsBound() bool { return b.bound }

// Mapper returns the mapper applied to the source.
func (b Binding) Mapper() Mapper {
	if b.mapper == nil {
		return MustBind
	}
	return b.mapper
}

// Resolve evaluates the binding. Every failure, including a panic in the
// mapper or the callback, is returned as one BINDING_FAILED error whose cause
// is the original failure.
func (b Binding) Resolve(ctx context.Context, scope *Scope) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, errors.BindingFailed(b.String(), fmt.Errorf("panic: %v", r))
		}
	}()

	src, err := b.source(ctx, scope)
	if err != nil {
		return nil, errors.BindingFailed(b.String(), err)
	}
	value, err = b.Mapper().Map(ctx, src)
	if err != nil {
		return nil, errors.BindingFailed(b.String(), err)
	}
	return value, nil
}

func (b Binding) source(ctx context.Context, scope *Scope) (any, error) {
	if b.bound {
		return b.value, nil
	}
	switch d := b.deferred.(type) {
	case slotDeferral:
		if b.raw {
			return SlotRef{Slot: d.slot, scope: scope}, nil
		}
		return d.slot.Read(scope)
	case callbackDeferral:
		if b.raw {
			return CallbackRef{Fn: d.fn, Args: d.args}, nil
		}
		return d.fn(ctx, d.args...)
	default:
		return Unbound, nil
	}
}

// String renders the binding state for error messages.
func (b Binding) String() string {
	parts := make([]string, 0, 4)
	if b.bound {
		parts = append(parts, "value="+util.Describe(b.value, 64))
	} else {
		parts = append(parts, "value="+Unbound.String())
	}
	if b.deferred != nil {
		parts = append(parts, "deferred="+b.deferred.describe())
	}
	parts = append(parts, "mapper="+describeMapper(b.Mapper()))
	if b.raw {
		parts = append(parts, "raw")
	}
	return "Binding(" + strings.Join(parts, ", ") + ")"
}

func describeMapper(m Mapper) string {
	if s, ok := m.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", m)
}
