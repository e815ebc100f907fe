package vm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/chazu/symtrace/pkg/bytecode"
	"github.com/chazu/symtrace/pkg/meta"
)

func newTestInterpreter(t *testing.T, src string) (*Interpreter, *bytes.Buffer) {
	t.Helper()
	m, err := bytecode.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	in := NewInterpreter()
	out := &bytes.Buffer{}
	in.Out = out
	if err := in.Load(m); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return in, out
}

func TestInterpreterPrograms(t *testing.T) {
	tests := []struct {
		name string
		src  string
		args []any
		want any
	}{
		{
			name: "arithmetic",
			src: `
func f(a, b)
    LOAD_FAST a
    LOAD_FAST b
    BINARY_FLOOR_DIVIDE
    LOAD_FAST a
    LOAD_FAST b
    BINARY_MODULO
    BUILD_TUPLE 2
    RETURN_VALUE
end`,
			args: []any{int64(-7), int64(2)},
			want: NewTuple(int64(-4), int64(1)),
		},
		{
			name: "default argument",
			src: `
func f(a, b=10)
    LOAD_FAST a
    LOAD_FAST b
    BINARY_ADD
    RETURN_VALUE
end`,
			args: []any{int64(1)},
			want: int64(11),
		},
		{
			name: "loop over range",
			src: `
func f(n)
    LOAD_CONST 0
    STORE_FAST total
    LOAD_GLOBAL range
    LOAD_FAST n
    CALL_FUNCTION 1
    GET_ITER
  top:
    FOR_ITER done
    STORE_FAST i
    LOAD_FAST total
    LOAD_FAST i
    INPLACE_ADD
    STORE_FAST total
    JUMP_ABSOLUTE top
  done:
    LOAD_FAST total
    RETURN_VALUE
end`,
			args: []any{int64(5)},
			want: int64(10),
		},
		{
			name: "branch",
			src: `
func f(x)
    LOAD_FAST x
    LOAD_CONST 3
    COMPARE_OP >
    POP_JUMP_IF_FALSE small
    LOAD_CONST "big"
    RETURN_VALUE
  small:
    LOAD_CONST "small"
    RETURN_VALUE
end`,
			args: []any{int64(2)},
			want: "small",
		},
		{
			name: "dict and subscript",
			src: `
func f(k)
    LOAD_CONST 1
    LOAD_CONST 2
    LOAD_CONST ("a", "b")
    BUILD_CONST_KEY_MAP 2
    LOAD_FAST k
    BINARY_SUBSCR
    RETURN_VALUE
end`,
			args: []any{"b"},
			want: int64(2),
		},
		{
			name: "closure",
			src: `
func f(n) cellvars(n)
    LOAD_CLOSURE n
    BUILD_TUPLE 1
    LOAD_CONST @g
    MAKE_FUNCTION 8
    LOAD_CONST 4
    CALL_FUNCTION 1
    RETURN_VALUE
end

func g(y) freevars(n)
    LOAD_FAST y
    LOAD_DEREF n
    BINARY_MULTIPLY
    RETURN_VALUE
end`,
			args: []any{int64(3)},
			want: int64(12),
		},
		{
			name: "keyword call",
			src: `
func add(a, b=0)
    LOAD_FAST a
    LOAD_FAST b
    BINARY_SUBTRACT
    RETURN_VALUE
end

func f()
    LOAD_GLOBAL add
    LOAD_CONST 10
    LOAD_CONST 4
    LOAD_CONST ("b",)
    CALL_FUNCTION_KW 2
    RETURN_VALUE
end`,
			want: int64(6),
		},
		{
			name: "unpack",
			src: `
func f(pair)
    LOAD_FAST pair
    UNPACK_SEQUENCE 2
    BINARY_SUBTRACT
    RETURN_VALUE
end`,
			args: []any{NewTuple(int64(1), int64(5))},
			want: int64(4),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, _ := newTestInterpreter(t, tt.src)
			got, err := in.Run("f", tt.args...)
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if TypeName(got) != TypeName(tt.want) || !Equal(got, tt.want) {
				t.Errorf("Expected %s, got %s", Repr(tt.want), Repr(got))
			}
		})
	}
}

func TestInterpreterHostErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		args []any
		kind string
	}{
		{"zero division", "func f(a)\n LOAD_FAST a\n LOAD_CONST 0\n BINARY_TRUE_DIVIDE\n RETURN_VALUE\nend", []any{int64(1)}, ZeroDivisionError},
		{"missing key", "func f(d)\n LOAD_FAST d\n LOAD_CONST \"x\"\n BINARY_SUBSCR\n RETURN_VALUE\nend", []any{NewDict()}, KeyError},
		{"unbound local", "func f()\n LOAD_FAST y\n RETURN_VALUE\nend", nil, UnboundLocalError},
		{"undefined global", "func f()\n LOAD_GLOBAL nope\n RETURN_VALUE\nend", nil, NameError},
		{"bad operands", "func f()\n LOAD_CONST \"a\"\n LOAD_CONST 1\n BINARY_ADD\n RETURN_VALUE\nend", nil, TypeError},
		{"index", "func f(xs)\n LOAD_FAST xs\n LOAD_CONST 3\n BINARY_SUBSCR\n RETURN_VALUE\nend", []any{NewList()}, IndexError},
		{"too many args", "func f()\n LOAD_CONST None\n RETURN_VALUE\nend", []any{int64(1)}, TypeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, _ := newTestInterpreter(t, tt.src)
			_, err := in.Run("f", tt.args...)
			if !errors.Is(err, NewHostError(tt.kind, "")) {
				t.Errorf("Expected %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestInterpreterRecursionLimit(t *testing.T) {
	in, _ := newTestInterpreter(t, `
func f()
    LOAD_GLOBAL f
    CALL_FUNCTION 0
    RETURN_VALUE
end`)
	in.MaxDepth = 20
	_, err := in.Run("f")
	if !errors.Is(err, NewHostError(RecursionError, "")) {
		t.Errorf("Expected RecursionError, got %v", err)
	}
}

func TestPrintWritesToOut(t *testing.T) {
	in, out := newTestInterpreter(t, `
func f(x)
    LOAD_GLOBAL print
    LOAD_CONST "x ="
    LOAD_FAST x
    CALL_FUNCTION 2
    RETURN_VALUE
end`)
	if _, err := in.Run("f", NewList(int64(1), "a")); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := out.String(); got != "x = [1, \"a\"]\n" {
		t.Errorf("Unexpected output %q", got)
	}
}

func TestTensorProgram(t *testing.T) {
	in, _ := newTestInterpreter(t, `
func f(x, w)
    LOAD_FAST x
    LOAD_FAST w
    BINARY_MATRIX_MULTIPLY
    LOAD_METHOD sum
    CALL_METHOD 0
    RETURN_VALUE
end`)
	x := Full(meta.New(meta.Float32, 2, 3), 1)
	w := Full(meta.New(meta.Float32, 3, 4), 2)
	got, err := in.Run("f", x, w)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	tensor, ok := got.(*Tensor)
	if !ok {
		t.Fatalf("Expected a tensor, got %s", Repr(got))
	}
	if len(tensor.Meta.Shape) != 0 || tensor.Data[0] != 48 {
		t.Errorf("Expected a scalar 48, got %s", tensor)
	}
}

func TestFrameHookSubstitutesCode(t *testing.T) {
	in, _ := newTestInterpreter(t, `
func f()
    LOAD_CONST 1
    RETURN_VALUE
end

func g()
    LOAD_CONST 2
    RETURN_VALUE
end`)
	gv, _ := in.Globals.Get("g")
	replacement := gv.(*Function).Code

	var seen []string
	in.SetFrameHook(func(frame *Frame) (*bytecode.Code, error) {
		seen = append(seen, frame.OriginalCode().Name)
		if frame.Code.Name == "f" {
			return replacement, nil
		}
		return nil, nil
	})

	if got, _ := in.Run("f"); got != int64(2) {
		t.Errorf("Expected the replacement to run, got %v", got)
	}
	if got, _ := in.Run("g"); got != int64(2) {
		t.Errorf("Expected g unchanged, got %v", got)
	}

	restore := DisableHook()
	if got, _ := in.Run("f"); got != int64(1) {
		t.Errorf("Expected the original code with the hook disabled, got %v", got)
	}
	restore()
	restore()
	if !HookEnabled() {
		t.Error("Calling restore twice must not unbalance the hook counter")
	}
	if len(seen) != 2 {
		t.Errorf("Expected the hook to see 2 frames, got %v", seen)
	}

	hookErr := errors.New("hook failed")
	in.SetFrameHook(func(*Frame) (*bytecode.Code, error) { return nil, hookErr })
	if _, err := in.Run("f"); !errors.Is(err, hookErr) {
		t.Errorf("Expected the hook error, got %v", err)
	}
}
