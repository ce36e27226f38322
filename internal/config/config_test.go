package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"typeforge/internal/trace"
)

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, `
[engine]
max_depth = 16

[cache]
snapshot = "state/session.msgpack"

[batch]
jobs = 4
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Default()
	want.Engine.MaxDepth = 16
	want.Cache.Snapshot = filepath.Join(dir, "state", "session.msgpack")
	want.Batch.Jobs = 4
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsOutOfRangeValues(t *testing.T) {
	path := writeFile(t, t.TempDir(), `
[engine]
max_depth = 0

[trace]
level = "loud"
`)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"MaxDepth", "Level"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, t.TempDir(), "[engine]\nmax_dept = 3\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "max_dept") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestDiscoverWalksUp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "[batch]\njobs = 2\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfg, path, err := Discover(nested)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if path != filepath.Join(root, FileName) || cfg.Batch.Jobs != 2 {
		t.Fatalf("unexpected discovery %q %+v", path, cfg.Batch)
	}
}

func TestTraceSection(t *testing.T) {
	tc := Default().Trace
	tc.Level = "detail"
	tc.Mode = "both"
	got, err := tc.Tracer()
	if err != nil {
		t.Fatalf("tracer config: %v", err)
	}
	if got.Level != trace.LevelDetail || got.Mode != trace.ModeBoth || got.RingSize != 4096 {
		t.Fatalf("unexpected tracer config %+v", got)
	}
}
