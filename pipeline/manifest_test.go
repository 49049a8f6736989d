package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/stage"
)

const greetManifest = `
name: greet
failure_policy: exit_on_failure
parameters:
  allowed: [name]
  defaults: {greeting: hello}
stages:
  - name: greeting
    func: concat
    inputs:
      - {arg: left, param: greeting}
      - {arg: right, param: name, logged: true}
  - name: split
    inputs:
      - {arg: text, stage: greeting}
    output:
      sequential: [first, second]
  - name: shout
    func: upper
    inputs:
      - {arg: text, stage: split, output: second}
      - {arg: missing, var: nothing, required: false, default: "-"}
`

func testRegistry() *Registry {
	r := NewRegistry()
	r.Register("concat", concat)
	r.Register("split", func(_ context.Context, args stage.Args) (any, error) {
		text, err := stage.Arg[string](args, "text")
		if err != nil {
			return nil, err
		}
		return strings.SplitN(text, " ", 2), nil
	})
	r.Register("upper", func(_ context.Context, args stage.Args) (any, error) {
		text, err := stage.Arg[string](args, "text")
		if err != nil {
			return nil, err
		}
		return strings.ToUpper(text) + stage.ArgOr(args, "missing", ""), nil
	})
	return r
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(greetManifest))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name != "greet" || len(m.Stages) != 3 {
		t.Fatalf("unexpected manifest %+v", m)
	}
	if got := m.Stages[2].Inputs[1]; got.Required == nil || *got.Required {
		t.Errorf("expected required: false to be decoded, got %+v", got)
	}
}

func TestParseManifest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"not yaml", "name: [", "not valid YAML"},
		{"no name", "stages: [{name: a}]", "invalid manifest"},
		{"no stages", "name: x", "invalid manifest"},
		{"bad policy", "name: x\nfailure_policy: sometimes\nstages: [{name: a}]", "invalid manifest"},
		{"duplicate stage", "name: x\nstages: [{name: a}, {name: a}]", "invalid manifest"},
		{"no source", "name: x\nstages: [{name: a, inputs: [{arg: v}]}]", "invalid manifest"},
		{"two sources", "name: x\nstages: [{name: a, inputs: [{arg: v, value: 1, param: p}]}]", "invalid manifest"},
		{"bad behaviour", "name: x\nstages: [{name: a, output: {sequential: [x], behaviour: loose}}]", "invalid manifest"},
		{"both mappers", "name: x\nstages: [{name: a, output: {sequential: [x], keyed: {a: b}}}]", "invalid manifest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.yaml))
			if !errors.HasCode(err, errors.ErrCodeInvalidPipeline) {
				t.Fatalf("expected INVALID_PIPELINE, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in %v", tt.want, err)
			}
		})
	}
}

func TestParseManifest_FalseIsAValue(t *testing.T) {
	_, err := ParseManifest([]byte("name: x\nstages: [{name: a, inputs: [{arg: flag, value: false}]}]"))
	if err != nil {
		t.Fatalf("expected false to count as a value source, got %v", err)
	}
}

func TestBuild(t *testing.T) {
	m, err := ParseManifest([]byte(greetManifest))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p, err := Build(m, testRegistry(), quiet())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.Policy() != ExitOnFailure {
		t.Errorf("expected manifest policy, got %s", p.Policy())
	}
	if err := p.Parameters().Set("name", "big world"); err != nil {
		t.Fatalf("set: %v", err)
	}

	res, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Exit != nil {
		t.Fatalf("unexpected exit: %+v", res.Exit)
	}
	if got, _ := res.Value("shout"); got != "BIG WORLD-" {
		t.Errorf("expected BIG WORLD-, got %v", got)
	}
	split, _ := p.Stage("split")
	if v, _ := split.Output("first"); v != "hello" {
		t.Errorf("expected first=hello, got %v", v)
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown func", "name: x\nstages: [{name: a, func: nope}]", `function "nope" not found`},
		{"forward dependency", "name: x\nstages: [{name: a, func: concat, inputs: [{arg: left, stage: b}]}, {name: b, func: concat}]", "does not run before it"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseManifest([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			_, err = Build(m, testRegistry(), quiet())
			if !errors.HasCode(err, errors.ErrCodeInvalidPipeline) {
				t.Fatalf("expected INVALID_PIPELINE, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in %v", tt.want, err)
			}
		})
	}

	if _, err := Build(nil, testRegistry()); err == nil {
		t.Error("expected an error for a nil manifest")
	}
	if _, err := Build(&Manifest{}, nil); err == nil {
		t.Error("expected an error for a nil registry")
	}
}

func TestBuild_KeyedOutput(t *testing.T) {
	const doc = `
name: keyed
stages:
  - name: pair
    output:
      keyed: {l: left, r: right}
      behaviour: chill
  - name: join
    func: concat
    inputs:
      - {arg: left, stage: pair, output: left}
      - {arg: right, stage: pair, output: right}
      - {arg: sep, value: "+"}
`
	r := testRegistry()
	r.Register("pair", constant(map[string]any{"l": "a", "r": "b", "x": "dropped"}))

	m, err := ParseManifest([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p, err := Build(m, r, quiet())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	res, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got, _ := res.Value("join"); got != "a+b" {
		t.Errorf("expected a+b, got %v", got)
	}
	pair, _ := p.Stage("pair")
	if _, ok := pair.Output("x"); ok {
		t.Error("expected chill mapping to drop unmapped keys")
	}
}

func TestFileManifestLoader(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "team")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	write := func(path, body string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write(filepath.Join(root, "greet.yaml"), greetManifest)
	write(filepath.Join(nested, "nested.yml"), "name: nested\nstages: [{name: a}]")
	write(filepath.Join(root, "broken.yaml"), "name: [")

	loader := NewFileManifestLoader(filepath.Join(root, "missing"), root)

	tests := []struct {
		name     string
		wantName string
		wantErr  bool
	}{
		{"greet", "greet", false},
		{"nested", "nested", false},
		{"broken", "", true},
		{"absent", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := loader.Load(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if !tt.wantErr && m.Name != tt.wantName {
				t.Errorf("expected %s, got %s", tt.wantName, m.Name)
			}
		})
	}
}

func TestRegistry_List(t *testing.T) {
	r := testRegistry()
	got := r.List()
	if len(got) != 3 || got[0] != "concat" || got[2] != "upper" {
		t.Errorf("unexpected list %v", got)
	}
	if _, ok := r.Get("nope"); ok {
		t.Error("expected missing function")
	}
}
