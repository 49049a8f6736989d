package stage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/logger"
)

func echo(ctx context.Context, args Args) (any, error) {
	return args, nil
}

func TestStage_RunResolvesInputs(t *testing.T) {
	table := NewTable()
	table.Set("first", ranStage(t, Outputs{"return": "hello"}))
	scope := &Scope{
		Parameters: mapStore{"sep": "-"},
		Variables:  mapStore{"count": 3},
		Stages:     table,
	}

	s := New(echo, []Input{
		Known("fixed", "k"),
		Param("sep", "separator"),
		Var("count", "n"),
		Dependency("first", "word"),
		Param("missing", "opt", Optional(), Default("fallback")),
	})

	v, err := s.Run(context.Background(), scope, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	args := v.(Args)
	want := Args{"k": "fixed", "separator": "-", "n": 3, "word": "hello", "opt": "fallback"}
	for k, w := range want {
		if args[k] != w {
			t.Errorf("arg %s: expected %v, got %v", k, w, args[k])
		}
	}
	if !s.HasRun() {
		t.Error("expected HasRun after a successful run")
	}
	if out, ok := s.Output(DefaultOutputKey); !ok || out.(Args)["k"] != "fixed" {
		t.Errorf("expected raw value stored under %q, got %v", DefaultOutputKey, out)
	}
}

func TestStage_OverridesWin(t *testing.T) {
	s := New(echo, []Input{Known(1, "a"), Known(2, "b")})
	v, err := s.Run(context.Background(), nil, Args{"b": 20, "c": 30})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	args := v.(Args)
	if args["a"] != 1 || args["b"] != 20 || args["c"] != 30 {
		t.Errorf("unexpected args %v", args)
	}
}

func TestStage_FailureLeavesStateUnchanged(t *testing.T) {
	tests := []struct {
		name string
		s    *Stage
		code errors.ErrorCode
	}{
		{"binding", New(echo, []Input{Param("x", "x")}), errors.ErrCodeBindingFailed},
		{"body", New(func(context.Context, Args) (any, error) {
			return nil, errors.Validation("bad")
		}, nil), errors.ErrCodeInvalidInput},
		{"panic", New(func(context.Context, Args) (any, error) {
			panic("boom")
		}, nil), errors.ErrCodeStageFailed},
		{"output", New(echo, nil, WithOutputMapper(OutputMapperFunc(func(context.Context, any) (Outputs, error) {
			return nil, errors.OutputMismatch("nope")
		}))), errors.ErrCodeOutputMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.s.Run(context.Background(), &Scope{Stage: tt.name}, nil)
			if errors.CodeOf(err) != tt.code {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
			if tt.s.HasRun() {
				t.Error("expected HasRun to stay false")
			}
			if len(tt.s.Outputs()) != 0 {
				t.Errorf("expected no outputs, got %v", tt.s.Outputs())
			}
		})
	}
}

func TestStage_LoggedInputsReachBody(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, &logger.Config{Level: "info", Format: "json"}, "")
	ctx := logger.ContextWith(context.Background(), log)

	s := New(func(ctx context.Context, args Args) (any, error) {
		logger.FromContext(ctx).Info("inside")
		return nil, nil
	}, []Input{
		Known("alice", "user", Logged()),
		Known("secret", "token"),
	})
	if _, err := s.Run(ctx, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var rec map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if rec["user"] != "alice" {
		t.Errorf("expected user=alice in record, got %v", rec)
	}
	if _, ok := rec["token"]; ok {
		t.Error("expected unlogged input to stay out of the record")
	}

	// The scope ends with the stage call.
	buf.Reset()
	logger.FromContext(ctx).Info("after")
	if strings.Contains(buf.String(), "alice") {
		t.Errorf("expected scoped field to be gone after the call, got %q", buf.String())
	}
}

func TestStage_ResetAndOutputsCopy(t *testing.T) {
	s := ranStage(t, Outputs{"a": 1})
	out := s.Outputs()
	out["a"] = 99
	if v, _ := s.Output("a"); v != 1 {
		t.Errorf("expected Outputs to return a copy, stage now has %v", v)
	}

	s.Reset()
	if s.HasRun() || len(s.Outputs()) != 0 {
		t.Error("expected Reset to clear run state")
	}
	if _, ok := s.Output("a"); ok {
		t.Error("expected no outputs after Reset")
	}
}

func TestStage_EmptyMappedOutputsStillRun(t *testing.T) {
	mapper, err := NewKeyedOutputMapper(map[string]string{"wanted": "out"}, Chill(false))
	if err != nil {
		t.Fatalf("mapper: %v", err)
	}
	s := New(func(context.Context, Args) (any, error) {
		return map[string]any{"other": 1}, nil
	}, nil, WithOutputMapper(mapper))

	if _, err := s.Run(context.Background(), &Scope{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.HasRun() {
		t.Error("expected the stage to be marked as run")
	}
	if len(s.Outputs()) != 0 {
		t.Errorf("expected no mapped outputs, got %v", s.Outputs())
	}
}

func TestInput_DependsOn(t *testing.T) {
	tests := []struct {
		in       Input
		stage    string
		required bool
		ok       bool
	}{
		{Dependency("load", "x"), "load", true, true},
		{Dependency("load", "x", Optional()), "load", false, true},
		{Param("p", "x"), "", false, false},
		{Known(1, "x"), "", false, false},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			stage, required, ok := tt.in.DependsOn()
			if stage != tt.stage || required != tt.required || ok != tt.ok {
				t.Errorf("got (%q, %t, %t)", stage, required, ok)
			}
		})
	}
}

func TestInput_FromOutput(t *testing.T) {
	table := NewTable()
	table.Set("split", ranStage(t, Outputs{"head": "h", "tail": "t"}))
	in := Dependency("split", "x", FromOutput("tail"))

	args, err := in.Resolve(context.Background(), &Scope{Stages: table})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if args["x"] != "t" {
		t.Errorf("expected tail output, got %v", args["x"])
	}
}

func TestInput_Contextual(t *testing.T) {
	in := Contextual(SlotScope, "run", MapperFunc(func(_ context.Context, src any) (any, error) {
		return src.(*Scope).RunID, nil
	}))
	args, err := in.Resolve(context.Background(), &Scope{RunID: "r-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if args["run"] != "r-1" {
		t.Errorf("expected run id, got %v", args["run"])
	}
}

func TestArg(t *testing.T) {
	args := Args{"s": "x", "n": 2, "nil": nil}

	if v, err := Arg[string](args, "s"); err != nil || v != "x" {
		t.Errorf("expected x, got %v (%v)", v, err)
	}
	if _, err := Arg[string](args, "n"); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT for a mistyped arg, got %v", err)
	}
	if _, err := Arg[int](args, "absent"); err == nil {
		t.Error("expected error for a missing arg")
	}
	if v, err := Arg[[]int](args, "nil"); err != nil || v != nil {
		t.Errorf("expected zero value for nil, got %v (%v)", v, err)
	}
	if v := ArgOr(args, "absent", 7); v != 7 {
		t.Errorf("expected fallback 7, got %d", v)
	}
}

func TestTable(t *testing.T) {
	table := NewTable()
	a, b, c := New(echo, nil), New(echo, nil), New(echo, nil)
	table.Set("a", a)
	table.Set("b", b)
	table.Set("a", c)

	if got := strings.Join(table.Names(), ","); got != "a,b" {
		t.Errorf("expected overwrite to keep position, got %s", got)
	}
	if s, _ := table.Stage("a"); s != c {
		t.Error("expected Set to replace the stage")
	}
	if v, ok := table.Lookup("b"); !ok || v.(*Stage) != b {
		t.Error("expected Lookup to return the stage")
	}

	if _, err := b.Run(context.Background(), nil, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	table.Reset()
	if b.HasRun() {
		t.Error("expected table Reset to reset stages")
	}

	if !table.Delete("a") || table.Delete("a") {
		t.Error("expected Delete to report presence once")
	}
	if table.Len() != 1 {
		t.Errorf("expected 1 stage left, got %d", table.Len())
	}
}
