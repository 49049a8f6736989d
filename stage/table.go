package stage

import "sync"

// Table is an insertion-ordered set of named stages. It is safe for
// concurrent use and implements Lookup.
type Table struct {
	mu     sync.RWMutex
	order  []string
	stages map[string]*Stage
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{stages: make(map[string]*Stage)}
}

// Set stores s under name. Replacing an existing entry keeps its position.
func (t *Table) Set(name string, s *Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stages == nil {
		t.stages = make(map[string]*Stage)
	}
	if _, exists := t.stages[name]; !exists {
		t.order = append(t.order, name)
	}
	t.stages[name] = s
}

// Stage implements Lookup.
func (t *Table) Stage(name string) (*Stage, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.stages[name]
	return s, ok
}

// Lookup implements Source, returning the *Stage as the value.
func (t *Table) Lookup(name string) (any, bool) {
	s, ok := t.Stage(name)
	if !ok {
		return nil, false
	}
	return s, true
}

// Names returns the stage names in insertion order.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.order...)
}

// Len returns the number of stages.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Delete removes the named stage. It reports whether the stage existed.
func (t *Table) Delete(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.stages[name]; !ok {
		return false
	}
	delete(t.stages, name)
	for i, n := range t.order {
		if n == name {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// Reset resets every stage in the table.
func (t *Table) Reset() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.stages {
		s.Reset()
	}
}
