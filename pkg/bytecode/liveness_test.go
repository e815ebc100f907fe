package bytecode

import (
	"slices"
	"strings"
	"testing"
)

func TestLiveVariablesStraightLine(t *testing.T) {
	m := MustAssemble(`
func f(x, y)
    LOAD_FAST x
    STORE_FAST a
    LOAD_GLOBAL print
    LOAD_FAST a
    CALL_FUNCTION 1
    POP_TOP
    LOAD_FAST y
    RETURN_VALUE
end`)
	code := m.Functions[0]

	tests := []struct {
		pc   int
		want []string
	}{
		{0, []string{"x", "y"}},
		{2, []string{"y", "a"}},
		{6, []string{"y"}},
		{7, nil},
	}
	for _, tt := range tests {
		got := LiveVariables(code, tt.pc)
		if !slices.Equal(got, tt.want) {
			t.Errorf("LiveVariables(pc=%d) = %v, want %v", tt.pc, got, tt.want)
		}
	}
}

func TestLiveVariablesBranches(t *testing.T) {
	m := MustAssemble(`
func f(c, a, b)
    LOAD_FAST c
    POP_JUMP_IF_FALSE other
    LOAD_FAST a
    RETURN_VALUE
  other:
    LOAD_FAST b
    RETURN_VALUE
end`)
	code := m.Functions[0]

	if got := LiveVariables(code, 1); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Both branch reads should be live, got %v", got)
	}
	if got := LiveVariables(code, 4); !slices.Equal(got, []string{"b"}) {
		t.Errorf("Only b live in the else branch, got %v", got)
	}
}

func TestLiveVariablesLoop(t *testing.T) {
	m := MustAssemble(`
func f(xs)
    LOAD_CONST 0
    STORE_FAST acc
    LOAD_FAST xs
    GET_ITER
  top:
    FOR_ITER done
    STORE_FAST item
    LOAD_FAST acc
    LOAD_FAST item
    BINARY_ADD
    STORE_FAST acc
    JUMP_ABSOLUTE top
  done:
    LOAD_FAST acc
    RETURN_VALUE
end`)
	code := m.Functions[0]

	// Inside the loop acc is read again on the next iteration.
	if got := LiveVariables(code, 4); !slices.Equal(got, []string{"acc"}) {
		t.Errorf("Expected [acc] live at loop head, got %v", got)
	}
	// item is rebound before every read.
	if got := LiveVariables(code, 5); slices.Contains(got, "item") {
		t.Errorf("item should not be live before STORE_FAST item, got %v", got)
	}
	if got := LiveVariables(code, 99); got != nil {
		t.Errorf("Out of range pc should give nil, got %v", got)
	}
}

func TestCodeGenResumeRelocatesJumps(t *testing.T) {
	m := MustAssemble(`
func f(x)
  top:
    LOAD_FAST x
    POP_JUMP_IF_FALSE top
    LOAD_CONST "tail"
    RETURN_VALUE
end`)
	orig := m.Functions[0]

	g := NewCodeGen(orig, "f$resume")
	g.GenLoadConst("prologue")
	g.GenStoreFast("tmp")
	g.GenResumeAt(2)
	code := g.Build()

	if code.Instructions[2].Op != OpJumpAbsolute || code.Instructions[2].JumpTo != 5 {
		t.Fatalf("Expected JUMP_ABSOLUTE -> 5, got %s", code.Instructions[2])
	}
	if got := code.Instructions[4]; got.Op != OpPopJumpIfFalse || got.JumpTo != 3 {
		t.Errorf("Copied jump should be relocated to 3, got %s", got)
	}
	if got := code.Instructions[5]; got.ArgVal != "tail" || code.Consts[got.Arg] != "tail" {
		t.Errorf("Copied constant should keep its value, got %s", got)
	}
	if !slices.Contains(code.VarNames, "tmp") || !slices.Equal(code.ArgNames, orig.ArgNames) {
		t.Errorf("Replacement signature wrong: args=%v vars=%v", code.ArgNames, code.VarNames)
	}
	if len(orig.Instructions) != 4 {
		t.Error("Original code must not be modified")
	}
}

func TestDisassembleListing(t *testing.T) {
	m := MustAssemble(sampleModule)
	loop, _ := m.Function("loop")

	output := loop.Disassemble()
	for _, want := range []string{"=== loop ===", "Parameters (1): n", "COMPARE_OP >", "POP_JUMP_IF_FALSE -> 9", ">>", "line"} {
		if !strings.Contains(output, want) {
			t.Errorf("Disassembly missing %q:\n%s", want, output)
		}
	}

	all := DisassembleModule(m)
	if strings.Count(all, "; === ") != 4 {
		t.Errorf("Expected 4 listings in module disassembly, got:\n%s", all)
	}
}
