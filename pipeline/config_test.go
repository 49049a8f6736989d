package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kbukum/pipekit/config"
	"github.com/kbukum/pipekit/errors"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadTestConfig(t *testing.T, body string) (*Config, error) {
	t.Helper()
	path := writeFile(t, t.TempDir(), "service.yaml", body)
	return LoadConfig("etl", config.WithConfigFile(path), config.WithEnvPrefix("PIPEKIT_CONFIG_TEST"))
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadTestConfig(t, `
logging: {level: error, format: json}
pipeline:
  failure_policy: exit_on_failure
  cumulative: true
  parameters: {source: s3://bucket}
  variables: {attempt: 1}
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Name != "etl" || cfg.Pipeline.Name != "etl" {
		t.Errorf("expected names to default to etl, got %q / %q", cfg.Name, cfg.Pipeline.Name)
	}
	if cfg.Pipeline.FailurePolicy != "exit_on_failure" || !cfg.Pipeline.Cumulative {
		t.Errorf("unexpected run config %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.Parameters["source"] != "s3://bucket" {
		t.Errorf("unexpected parameters %v", cfg.Pipeline.Parameters)
	}
}

func TestLoadConfig_InvalidPolicy(t *testing.T) {
	_, err := loadTestConfig(t, "pipeline: {failure_policy: sometimes}")
	if err == nil {
		t.Fatal("expected an error for an unknown failure policy")
	}
	if !strings.Contains(err.Error(), "must be one of: fail_fast, exit_on_failure") {
		t.Errorf("expected the allowed policies in the error, got %v", err)
	}
}

func TestRunConfig_Options(t *testing.T) {
	rc := RunConfig{
		FailurePolicy: "exit_on_failure",
		Cumulative:    true,
		Parameters:    map[string]any{"source": "db"},
		Variables:     map[string]any{"attempt": 1},
	}
	opts, err := rc.Options()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := New("opts", append([]Option{quiet()}, opts...)...)
	if p.Policy() != ExitOnFailure {
		t.Errorf("expected exit_on_failure, got %s", p.Policy())
	}
	if v, _ := p.Parameters().Get("source", true); v != "db" {
		t.Errorf("expected source=db, got %v", v)
	}
	if v, _ := p.Variables().Get("attempt", true); v != 1 {
		t.Errorf("expected attempt=1, got %v", v)
	}
	if !p.cumulative {
		t.Error("expected cumulative state")
	}

	if _, err := (RunConfig{FailurePolicy: "never"}).Options(); err == nil {
		t.Error("expected an error for an unknown policy")
	}
	if opts, _ := (RunConfig{}).Options(); len(opts) != 0 {
		t.Errorf("expected no options for an empty run config, got %d", len(opts))
	}
}

func TestConfig_NewPipeline(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "greet.yaml", greetManifest)

	cfg := &Config{Pipeline: RunConfig{
		Manifest:   manifest,
		Parameters: map[string]any{"name": "there"},
	}}
	cfg.Name = "svc"
	cfg.ApplyDefaults()
	cfg.Logging.Level = "error"

	p, err := cfg.NewPipeline(testRegistry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "greet" {
		t.Errorf("expected the manifest name, got %s", p.Name())
	}
	if p.Policy() != ExitOnFailure {
		t.Errorf("expected the manifest policy to survive, got %s", p.Policy())
	}

	res, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got, _ := res.Value("shout"); got != "THERE-" {
		t.Errorf("expected THERE-, got %v", got)
	}
	// Configured parameters are defaults, so they survive Reset.
	p.Parameters().Reset()
	if v, _ := p.Parameters().Get("name", true); v != "there" {
		t.Errorf("expected configured parameter after reset, got %v", v)
	}
}

func TestConfig_NewPipelineRejectsUndeclaredParameter(t *testing.T) {
	manifest := writeFile(t, t.TempDir(), "greet.yaml", greetManifest)
	cfg := &Config{Pipeline: RunConfig{
		Manifest:   manifest,
		Parameters: map[string]any{"colour": "blue"},
	}}
	cfg.Name = "svc"
	cfg.ApplyDefaults()

	_, err := cfg.NewPipeline(testRegistry())
	if !errors.HasCode(err, errors.ErrCodeInvalidParameter) {
		t.Fatalf("expected INVALID_PARAMETER, got %v", err)
	}
}

func TestConfig_NewPipelineWithoutManifest(t *testing.T) {
	cfg := &Config{}
	cfg.Name = "bare"
	cfg.ApplyDefaults()

	p, err := cfg.NewPipeline(NewRegistry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "bare" || p.Stages().Len() != 0 {
		t.Errorf("expected an empty pipeline named bare, got %s with %d stages", p.Name(), p.Stages().Len())
	}
}

func TestConfig_NewPipelineMergesVariables(t *testing.T) {
	manifest := writeFile(t, t.TempDir(), "greet.yaml",
		greetManifest+"variables: {from_manifest: 1, shared: manifest}\n")
	cfg := &Config{Pipeline: RunConfig{
		Manifest:  manifest,
		Variables: map[string]any{"from_config": 2, "shared": "config"},
	}}
	cfg.Name = "svc"
	cfg.ApplyDefaults()
	cfg.Logging.Level = "error"

	p, err := cfg.NewPipeline(testRegistry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]any{"from_manifest": 1, "from_config": 2, "shared": "config"}
	for k, v := range want {
		if got, err := p.Variables().Get(k, true); err != nil || got != v {
			t.Errorf("variable %s: expected %v, got %v (%v)", k, v, got, err)
		}
	}
}
