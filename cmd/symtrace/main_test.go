package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/symtrace/symbolic"
)

func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func runLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "run ") {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestRunMatchesEager(t *testing.T) {
	traced, stderr, code := runCLI(t, "-repeat", "3", "testdata/mlp.sta")
	if code != 0 {
		t.Fatalf("Expected exit 0, got %d: %s", code, stderr)
	}
	eager, _, code := runCLI(t, "-repeat", "3", "-no-jit", "testdata/mlp.sta")
	if code != 0 {
		t.Fatalf("Expected exit 0 without the JIT, got %d", code)
	}

	tracedRuns, eagerRuns := runLines(traced), runLines(eager)
	if len(tracedRuns) != 3 {
		t.Fatalf("Expected 3 results, got %q", tracedRuns)
	}
	for i := range tracedRuns {
		if tracedRuns[i] != eagerRuns[i] {
			t.Errorf("Expected %q, got %q", eagerRuns[i], tracedRuns[i])
		}
	}
	if !strings.Contains(tracedRuns[0], "24") {
		t.Errorf("Expected the sum 24, got %q", tracedRuns[0])
	}
	if !strings.Contains(traced, "translations: 1  hits: 2") {
		t.Errorf("Expected one translation reused twice, got:\n%s", traced)
	}
	if !strings.Contains(eager, "translations: 0") {
		t.Errorf("Expected no translations without the JIT, got:\n%s", eager)
	}
}

func TestDumpAndDisassemble(t *testing.T) {
	dir := t.TempDir()
	out, stderr, code := runCLI(t, "-dump-sir", "-dis", "-dump-dir", dir, "testdata/mlp.sta")
	if code != 0 {
		t.Fatalf("Expected exit 0, got %d: %s", code, stderr)
	}
	for _, want := range []string{"== program", "== translation 1 of model", "== translated model", "matmul"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "001-model.sir"))
	if err != nil {
		t.Fatalf("Expected an IR dump: %v", err)
	}
	ir, err := symbolic.UnmarshalIR(data)
	if err != nil {
		t.Fatalf("UnmarshalIR failed: %v", err)
	}
	if len(ir.Statements) == 0 {
		t.Error("Expected statements in the dumped IR")
	}
}

func TestJournalFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.db")
	out, stderr, code := runCLI(t, "-repeat", "2", "-journal", path, "testdata/mlp.sta")
	if code != 0 {
		t.Fatalf("Expected exit 0, got %d: %s", code, stderr)
	}
	if !strings.Contains(out, "== journal") || !strings.Contains(out, "hits=1 translations=1") {
		t.Errorf("Expected a journal summary, got:\n%s", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected the journal file: %v", err)
	}
}

func TestCLIErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
		want string
	}{
		{"no program", nil, 2, "expected one program"},
		{"bad repeat", []string{"-repeat", "0", "testdata/mlp.sta"}, 2, "-repeat"},
		{"missing file", []string{"testdata/nope.sta"}, 1, "nope.sta"},
		{"bad assembly", []string{"testdata/bad.sta"}, 1, "NOT_AN_OPCODE"},
		{"missing entry", []string{"-entry", "nope", "testdata/mlp.sta"}, 1, "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, code := runCLI(t, tt.args...)
			if code != tt.code {
				t.Errorf("Expected exit %d, got %d", tt.code, code)
			}
			if !strings.Contains(stderr, tt.want) {
				t.Errorf("Expected %q in stderr, got %q", tt.want, stderr)
			}
		})
	}
}
