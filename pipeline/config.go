package pipeline

import (
	"fmt"
	"maps"
	"strings"

	"github.com/kbukum/pipekit/config"
	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/logger"
	"github.com/kbukum/pipekit/util"
	"github.com/kbukum/pipekit/validation"
)

// RunConfig is the pipeline section of a service config file.
type RunConfig struct {
	Name          string         `yaml:"name" mapstructure:"name"`
	FailurePolicy string         `yaml:"failure_policy" mapstructure:"failure_policy"`
	Cumulative    bool           `yaml:"cumulative" mapstructure:"cumulative"`
	Manifest      string         `yaml:"manifest" mapstructure:"manifest"`
	Parameters    map[string]any `yaml:"parameters" mapstructure:"parameters"`
	Variables     map[string]any `yaml:"variables" mapstructure:"variables"`
	Retry         *RetryPolicy   `yaml:"retry" mapstructure:"retry"`
}

// Config is a service config with a pipeline section.
//
//	name: etl
//	logging: {level: info, format: json}
//	pipeline:
//	  failure_policy: exit_on_failure
//	  parameters: {source: s3://bucket}
//	  retry: {max_attempts: 5, initial_backoff: 200ms}
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
	Pipeline             RunConfig `yaml:"pipeline" mapstructure:"pipeline"`
}

// ApplyDefaults fills in the service defaults and names the pipeline after
// the service when no name is set.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Pipeline.Name = util.Coalesce(c.Pipeline.Name, c.Name)
}

// Validate checks the service and pipeline sections.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	v := validation.New()
	v.OneOf("failure_policy", strings.ToLower(strings.TrimSpace(c.Pipeline.FailurePolicy)),
		[]string{FailFast.String(), ExitOnFailure.String()})
	if err := v.Err(); err != nil {
		return fmt.Errorf("config.pipeline: %w", err)
	}
	return nil
}

// LoadConfig loads, defaults and validates the config of service name.
func LoadConfig(name string, opts ...config.LoaderOption) (*Config, error) {
	var cfg Config
	if err := config.LoadConfig(name, &cfg, opts...); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = name
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Options turns the run section into pipeline options. Every configured
// parameter is declared as a default, and the variables become the variable
// defaults. An empty failure policy adds no option, and a retry section
// installs WithRetry.
func (r RunConfig) Options() ([]Option, error) {
	policy, err := ParseFailurePolicy(r.FailurePolicy)
	if err != nil {
		return nil, err
	}
	var opts []Option
	if r.FailurePolicy != "" {
		opts = append(opts, WithFailurePolicy(policy))
	}
	if len(r.Parameters) > 0 {
		opts = append(opts, WithParameters(DefineParameters(nil, r.Parameters)))
	}
	if len(r.Variables) > 0 {
		opts = append(opts, WithVariables(DefineVariables(r.Variables)))
	}
	if r.Cumulative {
		opts = append(opts, WithCumulativeState())
	}
	if r.Retry != nil {
		opts = append(opts, WithMiddleware(WithRetry(*r.Retry)))
	}
	return opts, nil
}

// NewPipeline builds the pipeline described by the config: from the manifest
// file when one is set, or an empty pipeline otherwise. The service logger
// is installed and registered under the pipeline name, and extra options are
// applied last.
//
// With a manifest, configured parameters must be declared by it and replace
// its defaults, and configured variables are merged over the manifest's.
func (c *Config) NewPipeline(registry *Registry, extra ...Option) (*Pipeline, error) {
	opts, err := c.Pipeline.Options()
	if err != nil {
		return nil, err
	}
	log := c.NewLogger()
	logger.Register(c.Pipeline.Name, log)
	opts = append([]Option{WithLogger(log)}, opts...)

	if c.Pipeline.Manifest == "" {
		return New(c.Pipeline.Name, append(opts, extra...)...), nil
	}
	m, err := LoadManifest(c.Pipeline.Manifest)
	if err != nil {
		return nil, err
	}
	if len(c.Pipeline.Parameters) > 0 {
		declared := DefineParameters(m.Parameters.Allowed, m.Parameters.Defaults)
		defaults := declared.Values()
		for _, k := range util.SortedKeys(c.Pipeline.Parameters) {
			if !declared.Declared(k) {
				return nil, errors.InvalidParameter(k)
			}
			defaults[k] = c.Pipeline.Parameters[k]
		}
		opts = append(opts, WithParameters(DefineParameters(m.Parameters.Allowed, defaults)))
	}
	if len(c.Pipeline.Variables) > 0 {
		merged := maps.Clone(m.Variables)
		if merged == nil {
			merged = make(map[string]any, len(c.Pipeline.Variables))
		}
		maps.Copy(merged, c.Pipeline.Variables)
		opts = append(opts, WithVariables(DefineVariables(merged)))
	}
	return Build(m, registry, append(opts, extra...)...)
}
