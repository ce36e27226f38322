package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const basicScenario = "../../internal/scenario/testdata/basic.toml"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--color", "off", "--ui", "off"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestDeducePretty(t *testing.T) {
	out, err := execute(t, "deduce", basicScenario)
	if err != nil {
		t.Fatalf("deduce: %v\n%s", err, out)
	}
	for _, frag := range []string{"identity(int)", "{T: int} -> int", "calls:", "computed"} {
		if !strings.Contains(out, frag) {
			t.Errorf("output lacks %q:\n%s", frag, out)
		}
	}
	if strings.Contains(out, "mismatch") {
		t.Errorf("basic scenario should pass:\n%s", out)
	}
}

func TestDeduceJSON(t *testing.T) {
	out, err := execute(t, "deduce", "--format", "json", basicScenario)
	if err != nil {
		t.Fatalf("deduce: %v\n%s", err, out)
	}
	var payload jsonPayload
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, out)
	}
	if len(payload.Files) != 1 || len(payload.Files[0].Calls) == 0 {
		t.Fatalf("unexpected payload %+v", payload)
	}
	first := payload.Files[0].Calls[0]
	if first.Result != "success" || first.Returns != "int" || len(first.Attrs) == 0 {
		t.Fatalf("first call = %+v", first)
	}
}

func TestDeduceReportsFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fail.toml")
	body := `
[[signature]]
name = "id"
template = ["T"]
params = ["T"]
result = "T"

[[call]]
signature = "id"
args = ["int"]
expect = "inconsistent"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "deduce", path)
	if !errors.Is(err, errCallsFailed) {
		t.Fatalf("expected errCallsFailed, got %v\n%s", err, out)
	}
	if !strings.Contains(out, "expected inconsistent, got success") {
		t.Fatalf("mismatch not reported:\n%s", out)
	}
}

func TestSnapshotThenInspect(t *testing.T) {
	snap := filepath.Join(t.TempDir(), "session.msgpack")
	if out, err := execute(t, "deduce", "--snapshot", snap, basicScenario); err != nil {
		t.Fatalf("first run: %v\n%s", err, out)
	}
	out, err := execute(t, "deduce", "--snapshot", snap, basicScenario)
	if err != nil {
		t.Fatalf("second run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "0 computed") {
		t.Fatalf("second run should be served from the snapshot:\n%s", out)
	}
	out, err = execute(t, "cache", "inspect", snap)
	if err != nil {
		t.Fatalf("inspect: %v\n%s", err, out)
	}
	if !strings.Contains(out, "identity(T) -> T") || !strings.Contains(out, "(int)") {
		t.Fatalf("inspect output:\n%s", out)
	}
}

func TestConfigFlag(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "typeforge.toml")
	if err := os.WriteFile(cfg, []byte("[engine]\nmax_depth = 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "--config", cfg, "attrs"); err == nil {
		t.Fatalf("invalid configuration must be rejected")
	}
	if _, err := execute(t, "--jobs", "-1", "attrs"); err == nil {
		t.Fatalf("negative --jobs must be rejected")
	}
}

func TestAttrsAndVersion(t *testing.T) {
	out, err := execute(t, "attrs")
	if err != nil || !strings.Contains(out, "nodiscard") || !strings.Contains(out, "inherited") {
		t.Fatalf("attrs: %v\n%s", err, out)
	}
	out, err = execute(t, "version", "--format", "json", "--hash")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var payload versionPayload
	if err := json.Unmarshal([]byte(out), &payload); err != nil || payload.Tool != "typeforge" || payload.GitCommit == "" {
		t.Fatalf("version payload %+v (%v)", payload, err)
	}
}

func TestProgressDisplay(t *testing.T) {
	for in, want := range map[string]progressDisplay{"": progressAuto, "ON": progressLive, " off ": progressPlain, "plain": progressPlain} {
		got, err := parseProgressDisplay(in)
		if err != nil || got != want {
			t.Errorf("parseProgressDisplay(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := parseProgressDisplay("maybe"); err == nil {
		t.Errorf("expected error")
	}

	var buf bytes.Buffer
	if progressAuto.live(&buf, "pretty", false) {
		t.Errorf("auto must stay plain when output is not a terminal")
	}
	if !progressLive.live(&buf, "pretty", false) {
		t.Errorf("on must force the live view for pretty output")
	}
	if progressLive.live(&buf, "json", false) || progressLive.live(&buf, "pretty", true) {
		t.Errorf("json and quiet reports must never use the live view")
	}
}

func TestCallProgressStatus(t *testing.T) {
	var p callProgress
	if p.status() != "" {
		t.Fatalf("empty run must report no status")
	}
	p.planned(3)
	p.finished()
	if got := p.status(); got != "calls 1/3" {
		t.Fatalf("status = %q", got)
	}
	var none *callProgress
	none.planned(1)
	none.finished()
}
