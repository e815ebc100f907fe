package vm

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/symtrace/pkg/meta"
)

// Builtins returns a fresh table of builtin names.
func Builtins() map[string]any {
	b := map[string]any{
		"T": TModule(),
	}
	for _, fn := range builtinFuncs {
		b[fn.Name] = fn
	}
	for _, name := range []string{"ones", "zeros", "full"} {
		if api, ok := LookupAPI(name); ok {
			b[name] = api
		}
	}
	return b
}

var builtinFuncs = []*Builtin{
	{Name: "len", Pure: true, Fn: builtinLen},
	{Name: "range", Pure: true, Fn: builtinRange},
	{Name: "isinstance", Pure: true, Fn: builtinIsInstance},
	{Name: "int", Pure: true, Fn: builtinInt},
	{Name: "float", Pure: true, Fn: builtinFloat},
	{Name: "bool", Pure: true, Fn: builtinBool},
	{Name: "abs", Pure: true, Fn: builtinAbs},
	{Name: "list", Fn: builtinList},
	{Name: "tuple", Fn: builtinTuple},
	{Name: "print", Fn: builtinPrint},
	{Name: "tensor", Fn: builtinTensor},
	{Name: "Linear", Fn: builtinLinear},
	{Name: "iter", Fn: builtinIter},
	{Name: "namespace", Fn: builtinNamespace},
}

func exactly(name string, args []any, n int) error {
	if len(args) != n {
		return typeErrorf("%s() takes exactly %d argument(s) (%d given)", name, n, len(args))
	}
	return nil
}

func builtinLen(_ *Interpreter, args []any, _ map[string]any) (any, error) {
	if err := exactly("len", args, 1); err != nil {
		return nil, err
	}
	return Len(args[0])
}

func builtinRange(_ *Interpreter, args []any, _ map[string]any) (any, error) {
	ints := make([]int64, len(args))
	for i, a := range args {
		v, _, isFloat, ok := numeric(a)
		if !ok || isFloat {
			return nil, typeErrorf("'%s' object cannot be interpreted as an integer", TypeName(a))
		}
		ints[i] = v
	}
	switch len(ints) {
	case 1:
		return &Range{Start: 0, Stop: ints[0], Step: 1}, nil
	case 2:
		return &Range{Start: ints[0], Stop: ints[1], Step: 1}, nil
	case 3:
		if ints[2] == 0 {
			return nil, NewHostError(ValueError, "range() arg 3 must not be zero")
		}
		return &Range{Start: ints[0], Stop: ints[1], Step: ints[2]}, nil
	}
	return nil, typeErrorf("range expected 1 to 3 arguments, got %d", len(args))
}

func builtinIsInstance(_ *Interpreter, args []any, _ map[string]any) (any, error) {
	if err := exactly("isinstance", args, 2); err != nil {
		return nil, err
	}
	name := TypeName(args[0])
	switch t := args[1].(type) {
	case string:
		return name == t, nil
	case *Tuple:
		for _, item := range t.Items {
			if s, ok := item.(string); ok && s == name {
				return true, nil
			}
		}
		return false, nil
	}
	return nil, typeErrorf("isinstance() arg 2 must be a type name or tuple of type names")
}

func builtinInt(_ *Interpreter, args []any, _ map[string]any) (any, error) {
	if err := exactly("int", args, 1); err != nil {
		return nil, err
	}
	i, f, isFloat, ok := numeric(args[0])
	switch {
	case !ok:
		return nil, typeErrorf("int() argument must be a number, not '%s'", TypeName(args[0]))
	case isFloat:
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, NewHostError(ValueError, "cannot convert float %s to integer", formatFloat(f))
		}
		return int64(f), nil
	}
	return i, nil
}

func builtinFloat(_ *Interpreter, args []any, _ map[string]any) (any, error) {
	if err := exactly("float", args, 1); err != nil {
		return nil, err
	}
	_, f, _, ok := numeric(args[0])
	if !ok {
		return nil, typeErrorf("float() argument must be a number, not '%s'", TypeName(args[0]))
	}
	return f, nil
}

func builtinBool(_ *Interpreter, args []any, _ map[string]any) (any, error) {
	if err := exactly("bool", args, 1); err != nil {
		return nil, err
	}
	return Truthy(args[0])
}

func builtinAbs(_ *Interpreter, args []any, _ map[string]any) (any, error) {
	if err := exactly("abs", args, 1); err != nil {
		return nil, err
	}
	if t, ok := args[0].(*Tensor); ok {
		return CallAPI("abs", []any{t}, nil)
	}
	i, f, isFloat, ok := numeric(args[0])
	switch {
	case !ok:
		return nil, typeErrorf("bad operand type for abs(): '%s'", TypeName(args[0]))
	case isFloat:
		return math.Abs(f), nil
	case i < 0:
		return -i, nil
	}
	return i, nil
}

func builtinList(in *Interpreter, args []any, _ map[string]any) (any, error) {
	if len(args) == 0 {
		return NewList(), nil
	}
	items, err := Collect(in, args[0])
	if err != nil {
		return nil, err
	}
	return NewList(items...), nil
}

func builtinTuple(in *Interpreter, args []any, _ map[string]any) (any, error) {
	if len(args) == 0 {
		return NewTuple(), nil
	}
	items, err := Collect(in, args[0])
	if err != nil {
		return nil, err
	}
	return NewTuple(items...), nil
}

func builtinPrint(in *Interpreter, args []any, kwargs map[string]any) (any, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = Str(a)
	}
	sep := " "
	if s, ok := kwargs["sep"].(string); ok {
		sep = s
	}
	if in == nil || in.Out == nil {
		return nil, nil
	}
	_, err := fmt.Fprintln(in.Out, strings.Join(parts, sep))
	return nil, err
}

func builtinTensor(_ *Interpreter, args []any, kwargs map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, typeErrorf("tensor() takes exactly one positional argument")
	}
	var dtype meta.DType
	if d, ok := kwargs["dtype"].(string); ok {
		dtype = meta.DType(d)
		if !dtype.Valid() {
			return nil, NewHostError(ValueError, "unknown dtype %s", d)
		}
	}
	t, err := TensorFromData(args[0], dtype)
	if err != nil {
		return nil, err
	}
	if sg, ok := kwargs["stop_gradient"].(bool); ok {
		t.Meta.StopGradient = sg
	} else {
		t.Meta.StopGradient = true
	}
	return t, nil
}

func builtinLinear(_ *Interpreter, args []any, kwargs map[string]any) (any, error) {
	if err := exactly("Linear", args, 2); err != nil {
		return nil, err
	}
	in, ok1 := args[0].(int64)
	out, ok2 := args[1].(int64)
	if !ok1 || !ok2 || in <= 0 || out <= 0 {
		return nil, typeErrorf("Linear() expects two positive ints")
	}
	name, _ := kwargs["name"].(string)
	if name == "" {
		name = fmt.Sprintf("linear_%dx%d", in, out)
	}
	return NewLinear(name, int(in), int(out)), nil
}

func builtinIter(_ *Interpreter, args []any, _ map[string]any) (any, error) {
	switch len(args) {
	case 1:
		return GetIter(args[0])
	case 2:
		if _, ok := args[0].(Callable); !ok {
			return nil, typeErrorf("iter(v, w): v must be callable")
		}
		return &CallableIter{Fn: args[0], Sentinel: args[1]}, nil
	}
	return nil, typeErrorf("iter expected 1 or 2 arguments, got %d", len(args))
}

func builtinNamespace(_ *Interpreter, args []any, kwargs map[string]any) (any, error) {
	if len(args) != 0 {
		return nil, typeErrorf("namespace() takes only keyword arguments")
	}
	attrs := make(map[string]any, len(kwargs))
	for k, v := range kwargs {
		attrs[k] = v
	}
	return &Object{Class: "namespace", Attrs: attrs}, nil
}
