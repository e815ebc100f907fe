package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[trace]
strict = true
hot-threshold = 3
max-inline-depth = 8
break-graph = false
skip = ["main", "setup"]

[log]
verbosity = 2

[journal]
path = "trace.db"
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !c.Trace.Strict {
		t.Error("trace strict = false, want true")
	}
	if c.Trace.HotThreshold != 3 {
		t.Errorf("trace hot-threshold = %d, want 3", c.Trace.HotThreshold)
	}
	if c.Trace.MaxInlineDepth != 8 {
		t.Errorf("trace max-inline-depth = %d, want 8", c.Trace.MaxInlineDepth)
	}
	if c.Trace.BreakGraph {
		t.Error("trace break-graph = true, want false")
	}
	if !c.Skipped("setup") || c.Skipped("other") {
		t.Errorf("trace skip = %v, want [main setup]", c.Trace.Skip)
	}
	if c.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", c.Log.Verbosity)
	}
	abs, _ := filepath.Abs(dir)
	if want := filepath.Join(abs, "trace.db"); c.Journal.Path != want {
		t.Errorf("journal path = %q, want %q", c.Journal.Path, want)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[log]
verbosity = 1
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Trace.HotThreshold != 1 {
		t.Errorf("default hot-threshold = %d, want 1", c.Trace.HotThreshold)
	}
	if c.Trace.MaxInlineDepth != 64 {
		t.Errorf("default max-inline-depth = %d, want 64", c.Trace.MaxInlineDepth)
	}
	if !c.Trace.BreakGraph {
		t.Error("default break-graph = false, want true")
	}
	if c.Journal.Path != "" {
		t.Errorf("default journal path = %q, want empty", c.Journal.Path)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[trace\nstrict = true"},
		{"unknown key", "[trace]\nstrikt = true"},
		{"wrong type", "[trace]\nhot-threshold = \"many\""},
		{"negative depth", "[trace]\nmax-inline-depth = -1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)
			if _, err := Load(dir); err == nil {
				t.Error("Expected an error")
			}
		})
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[trace]\nhot-threshold = 5\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c == nil {
		t.Fatal("Expected to find the config in a parent directory")
	}
	if c.Trace.HotThreshold != 5 {
		t.Errorf("hot-threshold = %d, want 5", c.Trace.HotThreshold)
	}
	abs, _ := filepath.Abs(root)
	if c.Dir != abs {
		t.Errorf("Dir = %q, want %q", c.Dir, abs)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SYMTRACE_STRICT", "true")
	t.Setenv("SYMTRACE_LOG_LEVEL", "4")

	c := Default()
	if err := c.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if !c.Trace.Strict {
		t.Error("SYMTRACE_STRICT did not enable strict mode")
	}
	if c.Log.Verbosity != 4 {
		t.Errorf("verbosity = %d, want 4", c.Log.Verbosity)
	}

	t.Setenv("SYMTRACE_STRICT", "maybe")
	if err := Default().ApplyEnv(); err == nil {
		t.Error("Expected an error for a malformed SYMTRACE_STRICT")
	}
}
