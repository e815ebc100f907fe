package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/chazu/symtrace/pkg/bytecode"
)

// Values of the hosted language are plain Go values:
//
//	nil                  None
//	bool                 bool
//	int64                int
//	float64              float
//	string               str
//	*List, *Tuple, *Dict containers
//	*Tensor              tensor
//	*Range               range
//	*Function, *Builtin, *API, *Layer, *BoundMethod   callables
//	*Cell, *Module, *Object, Iterator                 everything else
//
// Any other Go value may appear as a constant embedded in generated code.

// Callable is implemented by every value that CALL_FUNCTION accepts.
type Callable interface {
	Call(in *Interpreter, args []any, kwargs map[string]any) (any, error)
}

// ---------------------------------------------------------------------------
// Sequences
// ---------------------------------------------------------------------------

// List is a mutable sequence.
type List struct {
	Items []any
}

// NewList returns a list holding items.
func NewList(items ...any) *List {
	if items == nil {
		items = []any{}
	}
	return &List{Items: items}
}

// Tuple is an immutable sequence.
type Tuple struct {
	Items []any
}

// NewTuple returns a tuple holding items.
func NewTuple(items ...any) *Tuple {
	if items == nil {
		items = []any{}
	}
	return &Tuple{Items: items}
}

// Range is an arithmetic progression of ints.
type Range struct {
	Start, Stop, Step int64
}

// Len returns the number of values in the range.
func (r *Range) Len() int64 {
	switch {
	case r.Step > 0 && r.Start < r.Stop:
		return (r.Stop - r.Start + r.Step - 1) / r.Step
	case r.Step < 0 && r.Start > r.Stop:
		return (r.Start - r.Stop - r.Step - 1) / -r.Step
	}
	return 0
}

// At returns the i-th value of the range.
func (r *Range) At(i int64) int64 {
	return r.Start + i*r.Step
}

// ---------------------------------------------------------------------------
// Functions and closures
// ---------------------------------------------------------------------------

// Cell holds a variable captured by an inner function.
type Cell struct {
	Value any
	Set   bool
}

// NewCell returns a cell bound to v.
func NewCell(v any) *Cell {
	return &Cell{Value: v, Set: true}
}

// Get returns the cell contents or a NameError when the cell is empty.
func (c *Cell) Get(name string) (any, error) {
	if !c.Set {
		return nil, NewHostError(NameError, "free variable '%s' referenced before assignment", name)
	}
	return c.Value, nil
}

// Function is a user function: code plus the environment it closes over.
type Function struct {
	Name     string
	Code     *bytecode.Code
	Globals  *Dict
	Defaults []any
	Closure  []*Cell // aligned with Code.FreeVars
}

// NewFunction creates a function over code with the given globals.
func NewFunction(code *bytecode.Code, globals *Dict) *Function {
	return &Function{
		Name:     code.Name,
		Code:     code,
		Globals:  globals,
		Defaults: append([]any(nil), code.Defaults...),
	}
}

func (f *Function) Call(in *Interpreter, args []any, kwargs map[string]any) (any, error) {
	return in.CallFunction(f, args, kwargs)
}

// Builtin is a function implemented in Go. Pure builtins have no side
// effects and may be evaluated at trace time on constant arguments.
type Builtin struct {
	Name string
	Pure bool
	Fn   func(in *Interpreter, args []any, kwargs map[string]any) (any, error)
}

func (b *Builtin) Call(in *Interpreter, args []any, kwargs map[string]any) (any, error) {
	return b.Fn(in, args, kwargs)
}

// BoundMethod is a method of a built-in type bound to its receiver.
type BoundMethod struct {
	Self any
	Name string
	Fn   func(in *Interpreter, self any, args []any, kwargs map[string]any) (any, error)
}

func (m *BoundMethod) Call(in *Interpreter, args []any, kwargs map[string]any) (any, error) {
	return m.Fn(in, m.Self, args, kwargs)
}

// ---------------------------------------------------------------------------
// Namespaces
// ---------------------------------------------------------------------------

// Module is a namespace of attributes, such as the T module of tensor
// operations.
type Module struct {
	Name  string
	Attrs map[string]any
}

// Object is an opaque user object with settable attributes.
type Object struct {
	Class string
	Attrs map[string]any
}

// ---------------------------------------------------------------------------
// Type names and rendering
// ---------------------------------------------------------------------------

// TypeName returns the hosted-language type name of v.
func TypeName(v any) string {
	switch x := v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case *List:
		return "list"
	case *Tuple:
		return "tuple"
	case *Dict:
		return "dict"
	case *Tensor:
		return "Tensor"
	case *Range:
		return "range"
	case *Function:
		return "function"
	case *Builtin:
		return "builtin_function"
	case *API:
		return "api"
	case *Layer:
		return "Layer"
	case *BoundMethod:
		return "method"
	case *Cell:
		return "cell"
	case *Module:
		return "module"
	case *Object:
		return x.Class
	case Iterator:
		return "iterator"
	}
	return fmt.Sprintf("%T", v)
}

// Repr renders v the way the hosted language prints it inside containers.
func Repr(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return Str(v)
}

// Str renders v the way print shows it.
func Str(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatFloat(x)
	case string:
		return x
	case *List:
		return "[" + joinRepr(x.Items) + "]"
	case *Tuple:
		if len(x.Items) == 1 {
			return "(" + Repr(x.Items[0]) + ",)"
		}
		return "(" + joinRepr(x.Items) + ")"
	case *Dict:
		parts := make([]string, 0, x.Len())
		for _, k := range x.Keys() {
			v, _ := x.Get(k)
			parts = append(parts, Repr(k)+": "+Repr(v))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *Tensor:
		return x.String()
	case *Range:
		if x.Step == 1 {
			return fmt.Sprintf("range(%d, %d)", x.Start, x.Stop)
		}
		return fmt.Sprintf("range(%d, %d, %d)", x.Start, x.Stop, x.Step)
	case *Function:
		return fmt.Sprintf("<function %s>", x.Name)
	case *Builtin:
		return fmt.Sprintf("<built-in function %s>", x.Name)
	case *BoundMethod:
		return fmt.Sprintf("<method %s of %s>", x.Name, TypeName(x.Self))
	case *Module:
		return fmt.Sprintf("<module %s>", x.Name)
	case *Object:
		return fmt.Sprintf("<%s object>", x.Class)
	case *Cell:
		return fmt.Sprintf("<cell: %s>", TypeName(x.Value))
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprintf("<%s>", TypeName(v))
}

func joinRepr(items []any) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = Repr(item)
	}
	return strings.Join(parts, ", ")
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	case f == math.Trunc(f) && math.Abs(f) < 1e16:
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// FromConst converts a constant-pool entry into a runtime value.
func FromConst(c any) any {
	switch x := c.(type) {
	case int:
		return int64(x)
	case bytecode.ConstTuple:
		items := make([]any, len(x))
		for i, item := range x {
			items[i] = FromConst(item)
		}
		return &Tuple{Items: items}
	}
	return c
}
