package bytecode

import (
	"errors"
	"strings"
	"testing"
)

const sampleModule = `
# a small module
global scale = 2.5
global name = "net"

func add_one(x, y=1)
    LOAD_FAST x
    LOAD_FAST y
    BINARY_ADD
    RETURN_VALUE
end

func outer(a) cellvars(a)
    LOAD_CLOSURE a
    BUILD_TUPLE 1
    LOAD_CONST @inner
    MAKE_FUNCTION 8
    RETURN_VALUE
end

func inner() freevars(a)
    LOAD_DEREF a        ; read the captured cell
    RETURN_VALUE
end

func loop(n)
    LOAD_CONST 0
    STORE_FAST total
  top:
    LOAD_FAST n
    LOAD_CONST 0
    COMPARE_OP >
    POP_JUMP_IF_FALSE done
    LOAD_FAST total
    LOAD_CONST (1, "a;b", None)
    JUMP_ABSOLUTE top
  done:
    LOAD_FAST total
    RETURN_VALUE
end
`

func TestAssembleModule(t *testing.T) {
	m, err := Assemble(sampleModule)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if len(m.Functions) != 4 {
		t.Fatalf("Expected 4 functions, got %d", len(m.Functions))
	}
	if len(m.Globals) != 2 {
		t.Fatalf("Expected 2 globals, got %d", len(m.Globals))
	}
	if m.Globals[0].Name != "scale" || m.Globals[0].Value != 2.5 {
		t.Errorf("Expected scale = 2.5, got %v = %v", m.Globals[0].Name, m.Globals[0].Value)
	}
	if m.Globals[1].Value != "net" {
		t.Errorf("Expected name = \"net\", got %v", m.Globals[1].Value)
	}

	addOne, ok := m.Function("add_one")
	if !ok {
		t.Fatal("add_one not found")
	}
	if len(addOne.ArgNames) != 2 || len(addOne.Defaults) != 1 || addOne.Defaults[0] != int64(1) {
		t.Errorf("add_one signature wrong: args=%v defaults=%v", addOne.ArgNames, addOne.Defaults)
	}
	if got := addOne.Instructions[2].Op; got != OpBinaryAdd {
		t.Errorf("Expected BINARY_ADD, got %s", got)
	}
}

func TestAssembleCodeReferences(t *testing.T) {
	m := MustAssemble(sampleModule)
	outer, _ := m.Function("outer")
	inner, _ := m.Function("inner")

	found := false
	for _, in := range outer.Instructions {
		if in.Op == OpLoadConst {
			if in.ArgVal != any(inner) {
				t.Errorf("Expected @inner to resolve to inner code, got %v", in.ArgVal)
			}
			found = true
		}
	}
	if !found {
		t.Error("LOAD_CONST @inner missing")
	}
	if len(inner.FreeVars) != 1 || inner.FreeVars[0] != "a" {
		t.Errorf("Expected freevars [a], got %v", inner.FreeVars)
	}
	if !outer.HasCell("a") {
		t.Error("outer should have cell a")
	}
}

func TestAssembleLabelsAndTuples(t *testing.T) {
	m := MustAssemble(sampleModule)
	loop, _ := m.Function("loop")

	var jump, back Instruction
	for _, in := range loop.Instructions {
		switch in.Op {
		case OpPopJumpIfFalse:
			jump = in
		case OpJumpAbsolute:
			back = in
		}
	}
	if jump.JumpTo != 9 {
		t.Errorf("Expected done label at 9, got %d", jump.JumpTo)
	}
	if back.JumpTo != 2 {
		t.Errorf("Expected top label at 2, got %d", back.JumpTo)
	}

	tuple, ok := loop.Instructions[7].ArgVal.(ConstTuple)
	if !ok || len(tuple) != 3 {
		t.Fatalf("Expected 3-tuple constant, got %#v", loop.Instructions[7].ArgVal)
	}
	if tuple[0] != int64(1) || tuple[1] != "a;b" || tuple[2] != nil {
		t.Errorf("Tuple contents wrong: %#v", tuple)
	}
	if loop.Instructions[4].ArgVal != ">" {
		t.Errorf("Expected COMPARE_OP >, got %v", loop.Instructions[4].ArgVal)
	}
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown op", "func f()\n FROB\nend", "unknown instruction"},
		{"missing end", "func f()\n RETURN_VALUE", "missing end"},
		{"bad label", "func f()\n JUMP_ABSOLUTE nowhere\nend", "undefined label"},
		{"bad ref", "func f()\n LOAD_CONST @g\n RETURN_VALUE\nend", "undefined code reference"},
		{"outside func", "LOAD_FAST x", "outside func"},
		{"bad compare", "func f()\n COMPARE_OP <>\nend", "bad comparison"},
		{"default order", "func f(a=1, b)\nend", "without default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(tt.src)
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestAssembleErrorLine(t *testing.T) {
	_, err := Assemble("func f()\n  LOAD_FAST x\n  BOGUS\nend")
	var ae *AssembleError
	if !errors.As(err, &ae) {
		t.Fatalf("Expected *AssembleError, got %T", err)
	}
	if ae.Line != 3 {
		t.Errorf("Expected line 3, got %d", ae.Line)
	}
}

func TestBuilderResolvesLabels(t *testing.T) {
	code := NewBuilder("f", "x").
		Op(OpLoadFast, "x").
		Jump(OpPopJumpIfFalse, "else").
		Const(int64(1)).
		Op(OpReturnValue).
		Label("else").
		Const(int64(2)).
		Op(OpReturnValue).
		MustBuild()

	if code.Instructions[1].JumpTo != 4 {
		t.Errorf("Expected jump to 4, got %d", code.Instructions[1].JumpTo)
	}
	if len(code.Consts) != 2 {
		t.Errorf("Expected 2 constants, got %d", len(code.Consts))
	}
}

func TestAddConstKeepsTypesDistinct(t *testing.T) {
	c := &Code{}
	i1 := c.AddConst(int64(1))
	i2 := c.AddConst(float64(1))
	i3 := c.AddConst(true)
	i4 := c.AddConst(int64(1))
	if i1 == i2 || i1 == i3 || i2 == i3 {
		t.Errorf("Distinct constants shared a slot: %d %d %d", i1, i2, i3)
	}
	if i4 != i1 {
		t.Errorf("Equal constants should share a slot, got %d and %d", i1, i4)
	}
}
