package stage

import (
	"context"
	"fmt"
	"reflect"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/util"
)

// DefaultOutputKey is the output name DefaultOutput stores a stage's return
// value under.
const DefaultOutputKey = "return"

// KeyedInputMapper picks FromKey out of a keyed source. The source may be a
// Source, any map with string keys, Unbound, or a SlotRef it reads itself.
type KeyedInputMapper struct {
	FromKey  string
	Default  any
	Required bool
}

// Map implements Mapper.
func (m KeyedInputMapper) Map(_ context.Context, source any) (any, error) {
	source = readRef(source)
	if IsUnbound(source) {
		if m.Required {
			return nil, errors.UnboundInput(fmt.Sprintf("key %s has no source to be read from", m.FromKey))
		}
		return m.Default, nil
	}

	v, found, err := lookupKey(source, m.FromKey)
	if err != nil {
		return nil, err
	}
	if !found {
		if m.Required {
			return nil, errors.UndefinedInput(fmt.Sprintf("Key %s not found in source.", m.FromKey))
		}
		return m.Default, nil
	}
	return v, nil
}

func (m KeyedInputMapper) String() string {
	return fmt.Sprintf("KeyedInputMapper(key=%s, required=%t, default=%s)",
		m.FromKey, m.Required, util.Describe(m.Default, 32))
}

// DependencyInputMapper reads output FromOutput of stage FromStage out of a
// stage Lookup. An empty FromOutput means DefaultOutputKey.
type DependencyInputMapper struct {
	FromStage  string
	FromOutput string
	Default    any
	Required   bool
}

// Output returns the output key the mapper reads.
func (m DependencyInputMapper) Output() string {
	if m.FromOutput == "" {
		return DefaultOutputKey
	}
	return m.FromOutput
}

// Map implements Mapper.
func (m DependencyInputMapper) Map(_ context.Context, source any) (any, error) {
	source = readRef(source)
	if IsUnbound(source) {
		if m.Required {
			return nil, errors.UnboundInput(fmt.Sprintf("stage table unavailable, cannot read stage %s", m.FromStage))
		}
		return m.Default, nil
	}

	stages, ok := source.(Lookup)
	if !ok {
		return nil, errors.InvalidInput("source", fmt.Sprintf("expected a stage lookup, got %T", source))
	}

	output := m.Output()
	st, ok := stages.Stage(m.FromStage)
	if !ok || st == nil {
		if m.Required {
			return nil, errors.UndefinedInput(fmt.Sprintf(
				"Stage %s not found in source, hence output %s not found.", m.FromStage, output))
		}
		return m.Default, nil
	}

	if !st.HasRun() {
		if m.Required {
			return nil, errors.UndefinedInput(fmt.Sprintf(
				"Stage %s has not run yet. Cannot get output %s.", m.FromStage, output))
		}
		return m.Default, nil
	}

	v, ok := st.Output(output)
	if !ok {
		if m.Required {
			return nil, errors.UndefinedInput(fmt.Sprintf(
				"Stage %s completed and did not produce output %s.", m.FromStage, output))
		}
		return m.Default, nil
	}
	return v, nil
}

func (m DependencyInputMapper) String() string {
	return fmt.Sprintf("DependencyInputMapper(stage=%s, output=%s, required=%t)",
		m.FromStage, m.Output(), m.Required)
}

// readRef reads a SlotRef. A failed read counts as Unbound.
func readRef(source any) any {
	ref, ok := source.(SlotRef)
	if !ok {
		return source
	}
	v, err := ref.Get()
	if err != nil {
		return Unbound
	}
	return v
}

func lookupKey(source any, key string) (any, bool, error) {
	switch s := source.(type) {
	case Source:
		v, ok := s.Lookup(key)
		return v, ok, nil
	case map[string]any:
		v, ok := s[key]
		return v, ok, nil
	case nil:
		return nil, false, errors.InvalidInput("source", "nil source")
	}

	rv := reflect.ValueOf(source)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false, errors.InvalidInput("source", fmt.Sprintf("expected a keyed source, got %T", source))
	}
	v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
	if !v.IsValid() {
		return nil, false, nil
	}
	return v.Interface(), true, nil
}
