package stage

import (
	"context"
	"strings"

	"github.com/kbukum/pipekit/errors"
)

// Outputs holds a stage's named outputs.
type Outputs map[string]any

// clone returns a shallow copy of o, never nil.
func (o Outputs) clone() Outputs {
	cp := make(Outputs, len(o))
	for k, v := range o {
		cp[k] = v
	}
	return cp
}

// OutputMapper names the return value of a stage.
type OutputMapper interface {
	MapOutput(ctx context.Context, value any) (Outputs, error)
}

// OutputMapperFunc adapts a function to OutputMapper.
type OutputMapperFunc func(ctx context.Context, value any) (Outputs, error)

// MapOutput calls f.
func (f OutputMapperFunc) MapOutput(ctx context.Context, value any) (Outputs, error) {
	return f(ctx, value)
}

type defaultOutput struct{}

func (defaultOutput) MapOutput(_ context.Context, value any) (Outputs, error) {
	return Outputs{DefaultOutputKey: value}, nil
}

func (defaultOutput) String() string { return "DefaultOutput" }

// DefaultOutput stores the whole return value under DefaultOutputKey.
var DefaultOutput OutputMapper = defaultOutput{}

// Mode decides what an output mapper does with a value whose shape does not
// match its keys.
type Mode int

const (
	// ModeStrict fails the mapping.
	ModeStrict Mode = iota
	// ModeChill maps what matches and drops the rest.
	ModeChill
	// ModePreserve maps what matches and keeps the rest.
	ModePreserve
)

var modeNames = map[Mode]string{
	ModeStrict:   "strict",
	ModeChill:    "chill",
	ModePreserve: "preserve",
}

func (m Mode) String() string { return modeNames[m] }

// Behaviour is a Mode plus, for the lenient modes, whether a mismatch is
// logged as a warning. Build it with Strict, Chill or Preserve.
type Behaviour struct {
	mode Mode
	warn bool
}

// Strict fails on any shape mismatch.
func Strict() Behaviour { return Behaviour{mode: ModeStrict} }

// Chill maps the overlap of value and keys.
func Chill(warn bool) Behaviour { return Behaviour{mode: ModeChill, warn: warn} }

// Preserve maps the overlap of value and keys and keeps what is left over.
func Preserve(warn bool) Behaviour { return Behaviour{mode: ModePreserve, warn: warn} }

// Mode returns the mismatch mode.
func (b Behaviour) Mode() Mode { return b.mode }

// Warn reports whether a mismatch is logged.
func (b Behaviour) Warn() bool { return b.warn }

func (b Behaviour) String() string {
	if b.warn {
		return b.mode.String() + "|warn"
	}
	return b.mode.String()
}

// ParseBehaviour reads a behaviour written as "strict", "chill" or
// "preserve", optionally joined with "warn" by '|'. An empty string is
// Strict.
func ParseBehaviour(text string) (Behaviour, error) {
	text = strings.TrimSpace(strings.ToLower(text))
	if text == "" {
		return Strict(), nil
	}

	var (
		mode    Mode
		hasMode bool
		warn    bool
	)
	for _, part := range strings.Split(text, "|") {
		part = strings.TrimSpace(part)
		if part == "warn" {
			warn = true
			continue
		}
		m, ok := parseMode(part)
		if !ok {
			return Behaviour{}, errors.InvalidMapper("unknown behaviour " + part)
		}
		if hasMode && m != mode {
			return Behaviour{}, errors.InvalidMapper("behaviour " + text + " combines " + mode.String() + " and " + m.String())
		}
		mode, hasMode = m, true
	}

	if !hasMode {
		return Behaviour{}, errors.InvalidMapper("behaviour " + text + " needs one of strict, chill or preserve")
	}
	if mode == ModeStrict && warn {
		return Behaviour{}, errors.InvalidMapper("strict behaviour cannot warn, it fails")
	}
	return Behaviour{mode: mode, warn: warn}, nil
}

func parseMode(name string) (Mode, bool) {
	for m, n := range modeNames {
		if n == name {
			return m, true
		}
	}
	return 0, false
}
