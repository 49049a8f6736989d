package pipeline

import (
	"sort"
	"sync"

	"github.com/kbukum/pipekit/stage"
)

// Registry maps names to stage functions so manifests can refer to them.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]stage.Func
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]stage.Func)}
}

// Register adds fn under name, replacing any earlier entry.
func (r *Registry) Register(name string, fn stage.Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Get retrieves a function by name.
func (r *Registry) Get(name string) (stage.Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// List returns sorted names of all registered functions.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
