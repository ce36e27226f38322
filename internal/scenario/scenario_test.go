package scenario

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"typeforge/internal/config"
	"typeforge/internal/deduce"
	"typeforge/internal/session"
	"typeforge/internal/testkit"
	"typeforge/internal/types"
)

func compile(t *testing.T, path string) (*session.Session, *Program) {
	t.Helper()
	f, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	s := session.New(config.Default())
	prog, err := f.Compile(context.Background(), s)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return s, prog
}

func TestBasicScenarioMeetsExpectations(t *testing.T) {
	s, prog := compile(t, filepath.Join("testdata", "basic.toml"))
	var progressed int
	reports, err := Run(context.Background(), s, prog, 4, func(done int, _ Report) { progressed = done })
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if progressed != len(prog.Calls) {
		t.Fatalf("progress reached %d of %d", progressed, len(prog.Calls))
	}
	for _, r := range reports {
		if !r.OK() {
			t.Errorf("%s: %v %v (%s)", r.Call.Label(), r.Err, r.Mismatch, r.Explain)
		}
		if err := testkit.CheckResult(s.Types(), r.Call.Signature, r.Result); err != nil {
			t.Errorf("%s: %v", r.Call.Label(), err)
		}
	}
	if reports[0].Call.Label() != "identity(int)" || reports[1].Call.Label() != "same(int, float)" {
		t.Fatalf("unexpected labels %q %q", reports[0].Call.Label(), reports[1].Call.Label())
	}
}

func TestCheckReportsMismatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wrong.toml")
	body := `
[[signature]]
name = "id"
template = ["T"]
params = ["T"]
result = "T"

[[call]]
signature = "id"
args = ["const char*"]
expect = "inconsistent"
bindings = { T = "char*" }
returns = "int"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, prog := compile(t, path)
	reports, err := Run(context.Background(), s, prog, 1, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := strings.Join(reports[0].Mismatch, "\n")
	for _, want := range []string{"expected inconsistent, got success", "T: expected char*, got const char*", "returns: expected int"} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in:\n%s", want, got)
		}
	}
}

func TestParseTypeExpressions(t *testing.T) {
	in := types.NewInterner()
	reg := newRegistry(in)
	if err := declareRecord(reg, RecordDecl{Name: "Box", Params: []string{"T"}, Fields: []FieldDecl{{Name: "value_type", Type: "T"}}}); err != nil {
		t.Fatalf("declare: %v", err)
	}
	params := map[string]deduce.TemplateParam{
		"T": {Name: "T"},
		"N": {Name: "N", Index: 1, Kind: deduce.ParamNonType},
		"C": {Name: "C", Index: 2, Kind: deduce.ParamTemplate},
	}
	cases := map[string]string{
		"int":                                   "int",
		"const  char *":                         "const char*",
		"char const* volatile":                  "const char* volatile",
		"int[4]&":                               "int[4]&",
		"T[N]":                                  "type-parameter-0-0[type-parameter-0-1]",
		"fn(int, ...) -> void":                  "fn(int, ...) -> void",
		"Box<int>::value_type":                  "int",
		"Box<T>::value_type*":                   "Box<type-parameter-0-0>::value_type*",
		"C<int>":                                "type-parameter-0-2<int>",
		"__attribute__((address_space(3))) int": "__attribute__((address_space(3))) int",
		"__weak Box<int>*":                      "__weak Box<int>*",
	}
	for src, want := range cases {
		q, err := parseType(src, reg, params)
		if err != nil {
			t.Errorf("%q: %v", src, err)
			continue
		}
		if got := types.LabelQual(in, q, nil); got != want {
			t.Errorf("%q: got %q, want %q", src, got, want)
		}
	}
}

func TestParseTypeErrors(t *testing.T) {
	reg := newRegistry(types.NewInterner())
	params := map[string]deduce.TemplateParam{"N": {Name: "N", Kind: deduce.ParamNonType}}
	for _, src := range []string{"", "Widget", "int&&", "int&*", "int[", "N", "int[N", "fn(int) void", "int $"} {
		if _, err := parseType(src, reg, params); err == nil {
			t.Errorf("%q: expected error", src)
		}
	}
}

func TestParseParamAndArg(t *testing.T) {
	in := types.NewInterner()
	reg := newRegistry(in)
	params := map[string]deduce.TemplateParam{"Ts": {Name: "Ts", Pack: true}}
	p, err := parseParam("Ts* ...", reg, params)
	if err != nil || !p.Expansion {
		t.Fatalf("expansion param: %+v %v", p, err)
	}
	p, err = parseParam("int = default", reg, params)
	if err != nil || !p.HasDefault || p.Type != types.Unqualified(in.Builtins().Int) {
		t.Fatalf("default param: %+v %v", p, err)
	}
	a, err := parseArg("-12", reg)
	if err != nil || !a.Const || a.Value != -12 {
		t.Fatalf("constant arg: %+v %v", a, err)
	}
}

func TestIdentifiersAreNormalized(t *testing.T) {
	in := types.NewInterner()
	reg := newRegistry(in)
	composed := "Caf\u00e9"
	decomposed := "Cafe\u0301"
	if err := declareRecord(reg, RecordDecl{Name: composed}); err != nil {
		t.Fatalf("declare: %v", err)
	}
	q, err := parseType(decomposed, reg, nil)
	if err != nil {
		t.Fatalf("decomposed spelling should resolve: %v", err)
	}
	if q.Type != reg.records[composed] {
		t.Fatalf("normalized names must resolve to the same record")
	}
}

func TestTemplateParamSpecs(t *testing.T) {
	cases := map[string]deduce.TemplateParam{
		"T":          {Name: "T"},
		"Ts...":      {Name: "Ts", Pack: true},
		"N:value":    {Name: "N", Kind: deduce.ParamNonType},
		"C:template": {Name: "C", Kind: deduce.ParamTemplate},
	}
	for spec, want := range cases {
		got, err := parseTemplateParam(spec, 0)
		if err != nil || got != want {
			t.Errorf("%q: got %+v (%v), want %+v", spec, got, err, want)
		}
	}
	if _, err := parseTemplateParam("N:kind", 0); err == nil {
		t.Errorf("expected error for unknown kind")
	}
}
