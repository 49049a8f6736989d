package stage

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/logger"
	"github.com/kbukum/pipekit/util"
)

// ExtraOutputKey holds the values a preserving sequential mapper had no key
// for.
const ExtraOutputKey = "_extra"

// SequentialOutputMapper names the elements of a slice or array return value
// by position.
type SequentialOutputMapper struct {
	keys      []string
	behaviour Behaviour
}

// NewSequentialOutputMapper maps element i to keys[i].
func NewSequentialOutputMapper(keys []string, behaviour Behaviour) (*SequentialOutputMapper, error) {
	if len(keys) == 0 {
		return nil, errors.InvalidMapper("sequential mapper needs at least one key")
	}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			return nil, errors.InvalidMapper("sequential mapper keys must not be empty")
		}
		if _, dup := seen[k]; dup {
			return nil, errors.InvalidMapper("duplicate sequential mapper key " + k)
		}
		seen[k] = struct{}{}
	}
	return &SequentialOutputMapper{keys: append([]string(nil), keys...), behaviour: behaviour}, nil
}

// Keys returns the output names in position order.
func (m *SequentialOutputMapper) Keys() []string { return append([]string(nil), m.keys...) }

// MapOutput implements OutputMapper.
func (m *SequentialOutputMapper) MapOutput(ctx context.Context, value any) (Outputs, error) {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, errors.OutputMismatch(fmt.Sprintf("sequential mapper expects a slice or array, got %T", value))
	}

	n := rv.Len()
	if n != len(m.keys) && m.behaviour.mode == ModeStrict {
		return nil, errors.OutputMismatch(fmt.Sprintf(
			"length of output (%d) does not match length of keys (%d)", n, len(m.keys))).
			WithDetail("keys", m.Keys())
	}

	out := make(Outputs, len(m.keys)+1)
	for i := 0; i < n && i < len(m.keys); i++ {
		out[m.keys[i]] = rv.Index(i).Interface()
	}
	if n == len(m.keys) {
		return out, nil
	}

	if n > len(m.keys) && m.behaviour.mode == ModePreserve {
		extra := make([]any, 0, n-len(m.keys))
		for i := len(m.keys); i < n; i++ {
			extra = append(extra, rv.Index(i).Interface())
		}
		out[ExtraOutputKey] = extra
	}
	if m.behaviour.warn {
		logger.FromContext(ctx).Warn("Some outputs were not mapped.", map[string]interface{}{
			"mapper":    m.String(),
			"behaviour": m.behaviour.String(),
			"got":       n,
			"expected":  len(m.keys),
		})
	}
	return out, nil
}

func (m *SequentialOutputMapper) String() string {
	return "SequentialOutputMapper(keys=[" + strings.Join(m.keys, ", ") + "])"
}

// KeyedOutputMapper renames the entries of a map return value. Its keys map
// a returned key to the output name it is stored under.
type KeyedOutputMapper struct {
	keys      map[string]string
	behaviour Behaviour
}

// NewKeyedOutputMapper maps value[from] to output keys[from].
func NewKeyedOutputMapper(keys map[string]string, behaviour Behaviour) (*KeyedOutputMapper, error) {
	if len(keys) == 0 {
		return nil, errors.InvalidMapper("keyed mapper needs at least one key")
	}
	targets := make(map[string]string, len(keys))
	cp := make(map[string]string, len(keys))
	for _, from := range util.SortedKeys(keys) {
		to := keys[from]
		if from == "" || to == "" {
			return nil, errors.InvalidMapper("keyed mapper keys must not be empty")
		}
		if prev, dup := targets[to]; dup {
			return nil, errors.InvalidMapper(fmt.Sprintf("keys %s and %s both map to output %s", prev, from, to))
		}
		targets[to] = from
		cp[from] = to
	}
	return &KeyedOutputMapper{keys: cp, behaviour: behaviour}, nil
}

// Keys returns a copy of the key renames.
func (m *KeyedOutputMapper) Keys() map[string]string {
	cp := make(map[string]string, len(m.keys))
	for k, v := range m.keys {
		cp[k] = v
	}
	return cp
}

// MapOutput implements OutputMapper.
func (m *KeyedOutputMapper) MapOutput(ctx context.Context, value any) (Outputs, error) {
	entries, err := stringMap(value)
	if err != nil {
		return nil, err
	}

	matched := 0
	for from := range m.keys {
		if _, ok := entries[from]; ok {
			matched++
		}
	}
	exact := matched == len(m.keys) && len(entries) == len(m.keys)
	if !exact && m.behaviour.mode == ModeStrict {
		return nil, errors.OutputMismatch(fmt.Sprintf(
			"keys in output [%s] do not match mapper keys [%s]",
			strings.Join(util.SortedKeys(entries), ", "),
			strings.Join(util.SortedKeys(m.keys), ", ")))
	}

	out := make(Outputs, len(entries))
	if !exact && m.behaviour.mode == ModePreserve {
		for k, v := range entries {
			if _, mapped := m.keys[k]; !mapped {
				out[k] = v
			}
		}
	}
	// Renamed entries win over preserved ones with the same name.
	for from, to := range m.keys {
		if v, ok := entries[from]; ok {
			out[to] = v
		}
	}

	if !exact && m.behaviour.warn {
		logger.FromContext(ctx).Warn("Some outputs were not mapped.", map[string]interface{}{
			"mapper":    m.String(),
			"behaviour": m.behaviour.String(),
			"got":       util.SortedKeys(entries),
		})
	}
	return out, nil
}

func (m *KeyedOutputMapper) String() string {
	parts := make([]string, 0, len(m.keys))
	for _, from := range util.SortedKeys(m.keys) {
		parts = append(parts, from+" -> "+m.keys[from])
	}
	return "KeyedOutputMapper(" + strings.Join(parts, ", ") + ")"
}

func stringMap(value any) (map[string]any, error) {
	if m, ok := value.(map[string]any); ok {
		return m, nil
	}
	if o, ok := value.(Outputs); ok {
		return o, nil
	}
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, errors.OutputMismatch(fmt.Sprintf("keyed mapper expects a map with string keys, got %T", value))
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, nil
}
