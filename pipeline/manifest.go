package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/stage"
	"github.com/kbukum/pipekit/validation"
)

// Manifest is the YAML form of a pipeline.
//
//	name: greet
//	parameters:
//	  allowed: [name]
//	  defaults: {greeting: hello}
//	stages:
//	  - name: greet
//	    func: concat
//	    inputs:
//	      - {arg: left, param: greeting}
//	      - {arg: right, param: name, logged: true}
type Manifest struct {
	Name          string         `yaml:"name" validate:"required"`
	FailurePolicy string         `yaml:"failure_policy" validate:"omitempty,oneof=fail_fast exit_on_failure"`
	Cumulative    bool           `yaml:"cumulative"`
	Parameters    ParameterSpec  `yaml:"parameters"`
	Variables     map[string]any `yaml:"variables"`
	Stages        []StageSpec    `yaml:"stages" validate:"required,min=1,dive"`
}

// ParameterSpec declares the pipeline parameters.
type ParameterSpec struct {
	Allowed  []string       `yaml:"allowed" validate:"omitempty,unique"`
	Defaults map[string]any `yaml:"defaults"`
}

// StageSpec declares one stage. Func names a registry entry and defaults to
// Name.
type StageSpec struct {
	Name   string      `yaml:"name" validate:"required"`
	Func   string      `yaml:"func"`
	Inputs []InputSpec `yaml:"inputs" validate:"dive"`
	Output *OutputSpec `yaml:"output"`
}

// InputSpec declares one input. Exactly one of Value, Param, Var and Stage
// is its source. Output selects a dependency output. Required defaults to
// true.
type InputSpec struct {
	Arg      string `yaml:"arg" validate:"required"`
	Value    any    `yaml:"value"`
	Param    string `yaml:"param" validate:"excluded_with=Var Stage"`
	Var      string `yaml:"var" validate:"excluded_with=Param Stage"`
	Stage    string `yaml:"stage" validate:"excluded_with=Param Var"`
	Output   string `yaml:"output" validate:"excluded_with=Param Var"`
	Required *bool  `yaml:"required"`
	Default  any    `yaml:"default"`
	Logged   bool   `yaml:"logged"`
}

// OutputSpec declares an output mapper: sequential names the elements of a
// slice, keyed renames the entries of a map.
type OutputSpec struct {
	Sequential []string          `yaml:"sequential" validate:"omitempty,unique,excluded_with=Keyed"`
	Keyed      map[string]string `yaml:"keyed" validate:"required_without_all=Sequential"`
	Behaviour  string            `yaml:"behaviour"`
}

// ParseManifest decodes and validates a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.InvalidPipeline("manifest is not valid YAML").WithCause(err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadManifest reads and parses the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: reading manifest %s: %w", path, err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("pipeline: parsing %s: %w", path, err)
	}
	return m, nil
}

// ManifestLoader finds manifests by pipeline name.
type ManifestLoader interface {
	Load(name string) (*Manifest, error)
}

// FileManifestLoader looks for {name}.yaml and {name}.yml in a list of
// directories, then in their subdirectories.
type FileManifestLoader struct {
	dirs []string
}

// NewFileManifestLoader creates a loader searching dirs in order.
func NewFileManifestLoader(dirs ...string) *FileManifestLoader {
	return &FileManifestLoader{dirs: dirs}
}

// Load implements ManifestLoader. A file that exists but does not parse is
// reported rather than skipped.
func (l *FileManifestLoader) Load(name string) (*Manifest, error) {
	for _, dir := range l.dirs {
		for _, ext := range []string{".yaml", ".yml"} {
			candidates := []string{filepath.Join(dir, name+ext)}
			matches, _ := filepath.Glob(filepath.Join(dir, "*", name+ext))
			candidates = append(candidates, matches...)
			for _, path := range candidates {
				if _, err := os.Stat(path); err != nil {
					continue
				}
				return LoadManifest(path)
			}
		}
	}
	return nil, errors.InvalidPipeline(fmt.Sprintf("manifest %q not found in %v", name, l.dirs))
}

// Validate checks the struct tags and the input sources.
func (m *Manifest) Validate() error {
	if err := validation.Validate(m); err != nil {
		return errors.InvalidPipeline("invalid manifest").WithCause(err)
	}

	v := validation.New()
	v.Unique("stages", m.stageNames())
	for i, s := range m.Stages {
		for j, in := range s.Inputs {
			field := fmt.Sprintf("stages[%d].inputs[%d]", i, j)
			v.Custom(in.sources() == 1, field, "needs exactly one of value, param, var or stage")
		}
		if s.Output != nil && s.Output.Behaviour != "" {
			_, err := stage.ParseBehaviour(s.Output.Behaviour)
			v.Custom(err == nil, fmt.Sprintf("stages[%d].output.behaviour", i), "is invalid")
		}
	}
	if err := v.Err(); err != nil {
		return errors.InvalidPipeline("invalid manifest").WithCause(err)
	}
	return nil
}

func (m *Manifest) stageNames() []string {
	names := make([]string, len(m.Stages))
	for i, s := range m.Stages {
		names[i] = s.Name
	}
	return names
}

func (in InputSpec) sources() int {
	n := 0
	if in.Value != nil {
		n++
	}
	for _, s := range []string{in.Param, in.Var, in.Stage} {
		if s != "" {
			n++
		}
	}
	return n
}

func (in InputSpec) input() stage.Input {
	var opts []stage.InputOption
	if in.Required != nil && !*in.Required {
		opts = append(opts, stage.Optional())
	}
	if in.Default != nil {
		opts = append(opts, stage.Default(in.Default))
	}
	if in.Logged {
		opts = append(opts, stage.Logged())
	}
	if in.Output != "" {
		opts = append(opts, stage.FromOutput(in.Output))
	}

	switch {
	case in.Param != "":
		return stage.Param(in.Param, in.Arg, opts...)
	case in.Var != "":
		return stage.Var(in.Var, in.Arg, opts...)
	case in.Stage != "":
		return stage.Dependency(in.Stage, in.Arg, opts...)
	default:
		return stage.Known(in.Value, in.Arg, opts...)
	}
}

func (o *OutputSpec) mapper() (stage.OutputMapper, error) {
	if o == nil {
		return stage.DefaultOutput, nil
	}
	behaviour, err := stage.ParseBehaviour(o.Behaviour)
	if err != nil {
		return nil, err
	}
	if len(o.Sequential) > 0 {
		return stage.NewSequentialOutputMapper(o.Sequential, behaviour)
	}
	return stage.NewKeyedOutputMapper(o.Keyed, behaviour)
}

// Build turns a manifest into a validated pipeline. Stage functions come
// from registry. Options given here are applied after the manifest's own
// settings.
func Build(m *Manifest, registry *Registry, opts ...Option) (*Pipeline, error) {
	if m == nil {
		return nil, errors.InvalidPipeline("nil manifest")
	}
	if registry == nil {
		return nil, errors.InvalidPipeline("nil registry")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	policy, err := ParseFailurePolicy(m.FailurePolicy)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithParameters(DefineParameters(m.Parameters.Allowed, m.Parameters.Defaults)),
		WithVariables(DefineVariables(m.Variables)),
		WithFailurePolicy(policy),
	}
	if m.Cumulative {
		base = append(base, WithCumulativeState())
	}
	p := New(m.Name, append(base, opts...)...)

	for i, spec := range m.Stages {
		fnName := spec.Func
		if fnName == "" {
			fnName = spec.Name
		}
		fn, ok := registry.Get(fnName)
		if !ok {
			return nil, errors.InvalidPipeline(fmt.Sprintf("stages[%d]: function %q not found in registry", i, fnName))
		}
		mapper, err := spec.Output.mapper()
		if err != nil {
			return nil, errors.InvalidPipeline(fmt.Sprintf("stages[%d].output", i)).WithCause(err)
		}
		inputs := make([]stage.Input, len(spec.Inputs))
		for j, in := range spec.Inputs {
			inputs[j] = in.input()
		}
		p.AddStage(spec.Name, fn, inputs, stage.WithOutputMapper(mapper))
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
