package stage

import (
	"fmt"
	"reflect"

	"github.com/kbukum/pipekit/logger"
)

// Source is a read-only keyed view, such as the parameter or variable store.
type Source interface {
	Lookup(key string) (any, bool)
}

// Store is a Source that accepts writes. Set may reject a key.
type Store interface {
	Source
	Set(key string, value any) error
}

// Lookup resolves stages by name.
type Lookup interface {
	Stage(name string) (*Stage, bool)
}

// Scope is everything a binding can see while a pipeline run is in progress.
// Fields left nil, including typed nil pointers, are reported as unset slots.
type Scope struct {
	Pipeline   string
	RunID      string
	Stage      string
	Parameters Store
	Variables  Store
	Stages     Lookup
	Logger     *logger.Logger
}

// WithStage returns a shallow copy of s naming the stage being executed.
func (s *Scope) WithStage(name string) *Scope {
	if s == nil {
		return &Scope{Stage: name}
	}
	cp := *s
	cp.Stage = name
	return &cp
}

// Slot names a late-bound cell of the run Scope.
type Slot int

const (
	// SlotParameters reads Scope.Parameters.
	SlotParameters Slot = iota + 1
	// SlotVariables reads Scope.Variables.
	SlotVariables
	// SlotStages reads Scope.Stages.
	SlotStages
	// SlotLogger reads Scope.Logger.
	SlotLogger
	// SlotScope reads the *Scope itself.
	SlotScope
)

var slotNames = map[Slot]string{
	SlotParameters: "parameters",
	SlotVariables:  "variables",
	SlotStages:     "stages",
	SlotLogger:     "logger",
	SlotScope:      "scope",
}

func (s Slot) String() string {
	if name, ok := slotNames[s]; ok {
		return name
	}
	return fmt.Sprintf("slot(%d)", int(s))
}

// ParseSlot returns the slot with the given name.
func ParseSlot(name string) (Slot, bool) {
	for slot, n := range slotNames {
		if n == name {
			return slot, true
		}
	}
	return 0, false
}

// Read returns the current value of the slot in scope. A nil scope or an
// unset cell is an error.
func (s Slot) Read(scope *Scope) (any, error) {
	if scope == nil {
		return nil, fmt.Errorf("slot %s read outside of a pipeline run", s)
	}
	var (
		v     any
		isSet bool
	)
	switch s {
	case SlotParameters:
		v, isSet = scope.Parameters, !isNil(scope.Parameters)
	case SlotVariables:
		v, isSet = scope.Variables, !isNil(scope.Variables)
	case SlotStages:
		v, isSet = scope.Stages, !isNil(scope.Stages)
	case SlotLogger:
		v, isSet = scope.Logger, !isNil(scope.Logger)
	case SlotScope:
		v, isSet = scope, true
	default:
		return nil, fmt.Errorf("unknown %s", s)
	}
	if !isSet {
		return nil, fmt.Errorf("slot %s is not set in this scope", s)
	}
	return v, nil
}

// isNil also catches a nil pointer or map stored in an interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// SlotRef is what a raw slot binding hands its mapper instead of the slot's
// value, leaving the read and its failure to the mapper.
type SlotRef struct {
	Slot  Slot
	scope *Scope
}

// Get reads the referenced slot.
func (r SlotRef) Get() (any, error) {
	return r.Slot.Read(r.scope)
}

func (r SlotRef) String() string {
	return "SlotRef(" + r.Slot.String() + ")"
}
