package pipeline

import (
	"maps"
	"sync"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/util"
)

// Variables is an unrestricted store that stages read and write during a
// run. It is safe for concurrent use.
type Variables struct {
	mu       sync.RWMutex
	defaults map[string]any
	values   map[string]any
}

// DefineVariables creates a store holding defaults.
func DefineVariables(defaults map[string]any) *Variables {
	v := &Variables{defaults: maps.Clone(defaults)}
	if v.defaults == nil {
		v.defaults = make(map[string]any)
	}
	v.values = maps.Clone(v.defaults)
	return v
}

// Get returns the value of key. A missing key returns nil, or an
// UNDEFINED_VARIABLE error when must is set.
func (v *Variables) Get(key string, must bool) (any, error) {
	return v.GetOr(key, nil, must)
}

// GetOr is Get with fallback returned for a missing key.
func (v *Variables) GetOr(key string, fallback any, must bool) (any, error) {
	val, ok := v.Lookup(key)
	if !ok {
		if must {
			return nil, errors.UndefinedVariable(key)
		}
		return fallback, nil
	}
	return val, nil
}

// Lookup implements stage.Source.
func (v *Variables) Lookup(key string) (any, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.values[key]
	return val, ok
}

// Has reports whether key is set.
func (v *Variables) Has(key string) bool {
	_, ok := v.Lookup(key)
	return ok
}

// Set implements stage.Store. It never fails.
func (v *Variables) Set(key string, value any) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.values[key] = value
	return nil
}

// SetMany sets every entry of values.
func (v *Variables) SetMany(values map[string]any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	maps.Copy(v.values, values)
}

// Delete removes key.
func (v *Variables) Delete(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.values, key)
}

// Keys returns the set keys, sorted.
func (v *Variables) Keys() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return util.SortedKeys(v.values)
}

// Values returns a copy of the store.
func (v *Variables) Values() map[string]any {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return maps.Clone(v.values)
}

// Reset restores the defaults and drops everything else.
func (v *Variables) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.values = maps.Clone(v.defaults)
}
