package pipeline

import (
	"fmt"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/validation"
)

// Edge is a dependency declared by an input: stage To reads an output of
// stage From.
type Edge struct {
	From     string
	To       string
	Arg      string
	Required bool
}

// Dependencies lists the dependency edges declared by stage inputs, in stage
// and input order. Execution order does not follow them.
func (p *Pipeline) Dependencies() []Edge {
	var edges []Edge
	for _, name := range p.stages.Names() {
		s, ok := p.stages.Stage(name)
		if !ok {
			continue
		}
		for _, in := range s.Inputs() {
			from, required, isDep := in.DependsOn()
			if !isDep {
				continue
			}
			edges = append(edges, Edge{From: from, To: name, Arg: in.Arg, Required: required})
		}
	}
	return edges
}

// Validate checks that every input names its argument, that no stage binds
// an argument twice, and that every required dependency reads a stage
// registered before the one depending on it.
func (p *Pipeline) Validate() error {
	v := validation.New()
	position := make(map[string]int, p.stages.Len())
	for i, name := range p.stages.Names() {
		position[name] = i
	}

	for _, name := range p.stages.Names() {
		s, ok := p.stages.Stage(name)
		if !ok || s == nil {
			v.AddError("stages."+name, "is not set")
			continue
		}
		field := "stages." + name
		args := make([]string, 0, len(s.Inputs()))
		for j, in := range s.Inputs() {
			v.Required(fmt.Sprintf("%s.inputs[%d].arg", field, j), in.Arg)
			if in.Arg != "" {
				args = append(args, in.Arg)
			}
		}
		v.Unique(field+".inputs", args)
	}

	for _, e := range p.Dependencies() {
		if !e.Required {
			continue
		}
		field := fmt.Sprintf("stages.%s.inputs.%s", e.To, e.Arg)
		from, ok := position[e.From]
		if !ok {
			v.AddError(field, fmt.Sprintf("depends on unknown stage %s", e.From))
			continue
		}
		v.Custom(from < position[e.To], field, fmt.Sprintf("depends on stage %s, which does not run before it", e.From))
	}

	if !v.HasErrors() {
		return nil
	}
	return errors.InvalidPipeline(v.Validate().Message).
		WithDetail("pipeline", p.name).
		WithDetail("fields", v.Errors())
}
