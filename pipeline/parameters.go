package pipeline

import (
	"maps"
	"sync"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/util"
)

// Parameters is a store restricted to a declared set of keys. A declared key
// may be unset. It is safe for concurrent use.
type Parameters struct {
	mu       sync.RWMutex
	allowed  map[string]struct{}
	defaults map[string]any
	values   map[string]any
}

// DefineParameters declares the keys in allowed and the keys of defaults,
// and sets the defaults.
func DefineParameters(allowed []string, defaults map[string]any) *Parameters {
	p := &Parameters{
		allowed:  make(map[string]struct{}, len(allowed)+len(defaults)),
		defaults: maps.Clone(defaults),
	}
	if p.defaults == nil {
		p.defaults = make(map[string]any)
	}
	for _, k := range allowed {
		p.allowed[k] = struct{}{}
	}
	for k := range p.defaults {
		p.allowed[k] = struct{}{}
	}
	p.values = maps.Clone(p.defaults)
	return p
}

func (p *Parameters) declared(key string) bool {
	_, ok := p.allowed[key]
	return ok
}

// Get returns the value of key. An undeclared key is an INVALID_PARAMETER
// error. An unset key returns nil, or an UNDEFINED_PARAMETER error when must
// is set.
func (p *Parameters) Get(key string, must bool) (any, error) {
	return p.GetOr(key, nil, must)
}

// GetOr is Get with fallback returned for an unset key.
func (p *Parameters) GetOr(key string, fallback any, must bool) (any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.declared(key) {
		return nil, errors.InvalidParameter(key)
	}
	v, ok := p.values[key]
	if !ok {
		if must {
			return nil, errors.UndefinedParameter(key)
		}
		return fallback, nil
	}
	return v, nil
}

// Lookup implements stage.Source. Only declared keys that are set are found.
func (p *Parameters) Lookup(key string) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[key]
	return v, ok
}

// Has reports whether key is declared and set.
func (p *Parameters) Has(key string) bool {
	_, ok := p.Lookup(key)
	return ok
}

// Declared reports whether key is in the declared set.
func (p *Parameters) Declared(key string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.declared(key)
}

// Set sets a declared key.
func (p *Parameters) Set(key string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.declared(key) {
		return errors.InvalidParameter(key)
	}
	p.values[key] = value
	return nil
}

// SetMany sets every entry of values, or none of them if any key is
// undeclared.
func (p *Parameters) SetMany(values map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range util.SortedKeys(values) {
		if !p.declared(k) {
			return errors.InvalidParameter(k)
		}
	}
	maps.Copy(p.values, values)
	return nil
}

// Unset clears a declared key.
func (p *Parameters) Unset(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.declared(key) {
		return errors.InvalidParameter(key)
	}
	delete(p.values, key)
	return nil
}

// Keys returns the declared keys, sorted.
func (p *Parameters) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return util.SortedKeys(p.allowed)
}

// Values returns a copy of the keys that are set.
func (p *Parameters) Values() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.values)
}

// Reset restores the defaults and unsets everything else.
func (p *Parameters) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = maps.Clone(p.defaults)
}
