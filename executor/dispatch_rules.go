package executor

import (
	"github.com/chazu/symtrace/pkg/meta"
	"github.com/chazu/symtrace/vm"
)

var builtinTable = vm.Builtins()

var (
	arithmeticOps = []string{"+", "-", "*", "/", "//", "%", "**"}
	compareOps    = []string{"==", "!=", "<", "<=", ">", ">="}
)

// registerRules installs the built-in handlers.
func registerRules(d *Dispatcher) {
	for _, op := range append(append([]string(nil), arithmeticOps...), compareOps...) {
		d.Register(op, Args(KindConstant, KindConstant), foldBinary(op))
		d.Register(op, Args(KindTensor, KindTensor|KindNumber), recordBinary(op))
		d.Register(op, Args(KindNumber, KindTensor), recordBinary(op))
	}
	d.Register("@", Args(KindTensor, KindTensor), recordBinary("@"))
	d.Register("==", Args(KindSequence, KindSequence), sequenceEqual(false))
	d.Register("!=", Args(KindSequence, KindSequence), sequenceEqual(true))
	d.Register("+", Args(KindList, KindList), concatSequences)
	d.Register("+", Args(KindTuple, KindTuple), concatSequences)
	d.Register("*", Args(KindSequence, KindInt|KindBool), repeatSequence(0, 1))
	d.Register("*", Args(KindInt|KindBool, KindSequence), repeatSequence(1, 0))

	d.Register("neg", Args(KindConstant), foldUnary("-"))
	d.Register("neg", Args(KindTensor), func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		return g.RecordAPI("neg", args, nil)
	})
	d.Register("abs", Args(KindTensor), func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		return g.RecordAPI("abs", args, nil)
	})
	d.Register("not", Args(KindConstant), foldUnary("not"))
	d.Register("not", Args(KindAny), func(g *FunctionGraph, args []Variable, kw map[string]Variable) (Variable, error) {
		b, err := truth(g, args[0])
		if err != nil {
			return nil, err
		}
		return NewConstant(!b, g, derived(args[0])), nil
	})
	d.Register("bool", Args(KindAny), func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		b, err := truth(g, args[0])
		if err != nil {
			return nil, err
		}
		return NewConstant(b, g, derived(args[0])), nil
	})

	d.Register("contains", Args(KindConstant, KindConstant), func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		ok, err := vm.Contains(args[1].(*ConstantVariable).value, args[0].(*ConstantVariable).value)
		if err != nil {
			return nil, err
		}
		return NewConstant(ok, g, derived(args...)), nil
	})
	d.Register("contains", Args(KindConstant, KindSequence), func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		want := args[0].(*ConstantVariable).value
		items, err := args[1].(*ListVariable).Items()
		if err != nil {
			return nil, err
		}
		found := false
		for _, item := range items {
			c, ok := item.(*ConstantVariable)
			if !ok {
				return nil, unsupportedf("membership test against %s", item)
			}
			if vm.Identical(c.value, want) || vm.Equal(c.value, want) {
				found = true
				break
			}
		}
		return NewConstant(found, g, derived(args...)), nil
	})
	d.Register("contains", Args(KindConstant, KindDict), func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		_, ok, err := args[1].(*DictVariable).Get(args[0].(*ConstantVariable).value)
		if err != nil {
			return nil, err
		}
		return NewConstant(ok, g, derived(args...)), nil
	})

	d.Register("getitem", Args(KindSequence, KindInt|KindBool), func(_ *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		return args[0].(*ListVariable).GetItem(args[1].(*ConstantVariable).value)
	})
	d.Register("getitem", Args(KindDict, KindConstant), func(_ *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		return args[0].(*DictVariable).Lookup(args[1].(*ConstantVariable).value)
	})
	d.Register("getitem", Args(KindTensor, KindInt|KindBool), func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		return g.RecordAPI("getitem", args, nil)
	})
	d.Register("getitem", Args(KindString|KindRange, KindInt|KindBool), func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		v, err := vm.GetItem(args[0].(*ConstantVariable).value, args[1].(*ConstantVariable).value)
		if err != nil {
			return nil, err
		}
		return Wrap(v, g, derived(args...))
	})

	d.Register("len", Args(KindSequence), func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		return NewConstant(int64(args[0].(*ListVariable).Len()), g, derived(args[0])), nil
	})
	d.Register("len", Args(KindDict), func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		return NewConstant(int64(args[0].(*DictVariable).Len()), g, derived(args[0])), nil
	})
	d.Register("len", Args(KindConstant), func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		n, err := vm.Len(args[0].(*ConstantVariable).value)
		if err != nil {
			return nil, err
		}
		return NewConstant(n, g, derived(args[0])), nil
	})
	d.Register("len", Args(KindTensor), func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		m := args[0].(*TensorVariable).meta
		if m.Rank() > 0 && m.Shape[0] == meta.Dynamic {
			return nil, unsupportedf("len() of a tensor with dynamic leading dimension")
		}
		n, err := vm.Len(&vm.Tensor{Meta: m})
		if err != nil {
			return nil, err
		}
		return NewConstant(n, g, derived(args[0])), nil
	})

	for _, arity := range [][]Kind{
		{KindInt | KindBool},
		{KindInt | KindBool, KindInt | KindBool},
		{KindInt | KindBool, KindInt | KindBool, KindInt | KindBool},
	} {
		d.Register("range", Args(arity...), evalBuiltin("range"))
	}
	d.Register("isinstance", Args(KindAny, KindString|KindTuple), isInstance)

	d.Register("list.append", Args(KindList, KindAny), func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		if err := args[0].(*ListVariable).Append(args[1]); err != nil {
			return nil, err
		}
		return none(g), nil
	})
	d.Register("list.extend", Args(KindList, KindSequence), func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		items, err := args[1].(*ListVariable).Items()
		if err != nil {
			return nil, err
		}
		l := args[0].(*ListVariable)
		for _, item := range items {
			if err := l.Append(item); err != nil {
				return nil, err
			}
		}
		return none(g), nil
	})

	dictGet := func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		v, ok, err := args[0].(*DictVariable).Get(args[1].(*ConstantVariable).value)
		if err != nil || ok {
			return v, err
		}
		if len(args) == 3 {
			return args[2], nil
		}
		return none(g), nil
	}
	d.Register("dict.get", Args(KindDict, KindConstant), dictGet)
	d.Register("dict.get", Args(KindDict, KindConstant, KindAny), dictGet)
	d.Register("dict.keys", Args(KindDict), func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		dv := args[0].(*DictVariable)
		keys := dv.Keys()
		items := make([]Variable, len(keys))
		for i, k := range keys {
			kv, err := Wrap(k, g, derived(dv))
			if err != nil {
				return nil, err
			}
			items[i] = kv
		}
		return NewListVariable(items, false, g, derived(dv)), nil
	})
	d.Register("dict.values", Args(KindDict), func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		values, err := args[0].(*DictVariable).Values()
		if err != nil {
			return nil, err
		}
		return NewListVariable(values, false, g, derived(args[0])), nil
	})
	d.Register("dict.items", Args(KindDict), func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		dv := args[0].(*DictVariable)
		values, err := dv.Values()
		if err != nil {
			return nil, err
		}
		items := make([]Variable, len(values))
		for i, k := range dv.Keys() {
			kv, err := Wrap(k, g, derived(dv))
			if err != nil {
				return nil, err
			}
			items[i] = NewListVariable([]Variable{kv, values[i]}, true, g, derived(dv))
		}
		return NewListVariable(items, false, g, derived(dv)), nil
	})
	d.Register("dict.update", Args(KindDict, KindDict), func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		dst, src := args[0].(*DictVariable), args[1].(*DictVariable)
		for _, k := range src.Keys() {
			v, _, err := src.Get(k)
			if err != nil {
				return nil, err
			}
			if err := dst.Set(k, v); err != nil {
				return nil, err
			}
		}
		return none(g), nil
	})
}

func none(g *FunctionGraph) Variable {
	return NewConstant(nil, g, &ConstTracker{Value: nil})
}

func foldBinary(op string) Handler {
	return func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		a, b := args[0].(*ConstantVariable).value, args[1].(*ConstantVariable).value
		var v any
		var err error
		if isCompare(op) {
			v, err = vm.Compare(op, a, b)
		} else {
			v, err = vm.BinaryOp(op, a, b)
		}
		if err != nil {
			return nil, err
		}
		return Wrap(v, g, derived(args...))
	}
}

func isCompare(op string) bool {
	for _, c := range compareOps {
		if c == op {
			return true
		}
	}
	return false
}

func recordBinary(op string) Handler {
	return func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		return g.RecordAPI(vm.BinaryOpNames[op], args, nil)
	}
}

func foldUnary(op string) Handler {
	return func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		v, err := vm.UnaryOp(op, args[0].(*ConstantVariable).value)
		if err != nil {
			return nil, err
		}
		return Wrap(v, g, derived(args[0]))
	}
}

func concatSequences(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
	a, b := args[0].(*ListVariable), args[1].(*ListVariable)
	ai, err := a.Items()
	if err != nil {
		return nil, err
	}
	bi, err := b.Items()
	if err != nil {
		return nil, err
	}
	return NewListVariable(append(ai, bi...), a.tuple, g, derived(a, b)), nil
}

func repeatSequence(seqArg, countArg int) Handler {
	return func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		seq := args[seqArg].(*ListVariable)
		n, _, _, _ := intKey(args[countArg].(*ConstantVariable).value)
		items, err := seq.Items()
		if err != nil {
			return nil, err
		}
		var out []Variable
		for i := int64(0); i < n; i++ {
			out = append(out, items...)
		}
		if out == nil {
			out = []Variable{}
		}
		return NewListVariable(out, seq.tuple, g, derived(args...)), nil
	}
}

func sequenceEqual(invert bool) Handler {
	return func(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
		a, okA := concreteValue(args[0])
		b, okB := concreteValue(args[1])
		if !okA || !okB {
			return nil, unsupportedf("comparison of sequences holding non-constant values")
		}
		return NewConstant(vm.Equal(a, b) != invert, g, derived(args...)), nil
	}
}

// truth is the truth value of v, where it does not depend on tensor data.
func truth(g *FunctionGraph, v Variable) (bool, error) {
	switch x := v.(type) {
	case *ConstantVariable:
		return vm.Truthy(x.value)
	case *ListVariable:
		return x.Len() > 0, nil
	case *DictVariable:
		return x.Len() > 0, nil
	case *TensorVariable:
		return false, unsupportedf("data-dependent control flow on %s", x)
	case *FunctionVariable, *APIVariable, *BuiltinVariable, *LayerVariable, *MethodVariable:
		return true, nil
	}
	return false, unsupportedf("truth value of %s", v)
}

// concreteValue rebuilds the runtime value of a variable made only of
// constants.
func concreteValue(v Variable) (any, bool) {
	switch x := v.(type) {
	case *ConstantVariable:
		return x.value, true
	case *ListVariable:
		items, err := x.Items()
		if err != nil {
			return nil, false
		}
		values := make([]any, len(items))
		for i, item := range items {
			value, ok := concreteValue(item)
			if !ok {
				return nil, false
			}
			values[i] = value
		}
		if x.tuple {
			return vm.NewTuple(values...), true
		}
		return vm.NewList(values...), true
	case *DictVariable:
		d := vm.NewDict()
		for _, k := range x.Keys() {
			item, _, err := x.Get(k)
			if err != nil {
				return nil, false
			}
			value, ok := concreteValue(item)
			if !ok {
				return nil, false
			}
			if d.Set(k, value) != nil {
				return nil, false
			}
		}
		return d, true
	}
	return nil, false
}

// evalBuiltin runs a pure builtin on constant operands at trace time.
func evalBuiltin(name string) Handler {
	return func(g *FunctionGraph, args []Variable, kwargs map[string]Variable) (Variable, error) {
		return callPure(g, builtinTable[name].(*vm.Builtin), args, kwargs)
	}
}

func callPure(g *FunctionGraph, b *vm.Builtin, args []Variable, kwargs map[string]Variable) (Variable, error) {
	values := make([]any, len(args))
	var deps []Variable
	for i, a := range args {
		v, ok := concreteValue(a)
		if !ok {
			return nil, unsupportedf("%s() on non-constant %s", b.Name, a)
		}
		values[i] = v
		deps = append(deps, a)
	}
	var kw map[string]any
	if len(kwargs) > 0 {
		kw = make(map[string]any, len(kwargs))
		for name, a := range kwargs {
			v, ok := concreteValue(a)
			if !ok {
				return nil, unsupportedf("%s() on non-constant %s", b.Name, a)
			}
			kw[name] = v
			deps = append(deps, a)
		}
	}
	result, err := b.Fn(nil, values, kw)
	if err != nil {
		return nil, err
	}
	return Wrap(result, g, derived(deps...))
}

// representative returns a runtime value of the same type as v.
func representative(v Variable) (any, bool) {
	switch x := v.(type) {
	case *TensorVariable:
		return (*vm.Tensor)(nil), true
	case *FunctionVariable:
		return (*vm.Function)(nil), true
	case *APIVariable:
		return x.api, true
	case *BuiltinVariable:
		return x.builtin, true
	case *LayerVariable:
		return x.layer, true
	case *MethodVariable:
		return (*vm.BoundMethod)(nil), true
	case *ObjectVariable:
		return x.value, true
	case *ListVariable:
		if x.tuple {
			return (*vm.Tuple)(nil), true
		}
		return (*vm.List)(nil), true
	case *DictVariable:
		return (*vm.Dict)(nil), true
	}
	return concreteValue(v)
}

func isInstance(g *FunctionGraph, args []Variable, _ map[string]Variable) (Variable, error) {
	obj, ok := representative(args[0])
	if !ok {
		return nil, unsupportedf("isinstance() of %s", args[0])
	}
	types, ok := concreteValue(args[1])
	if !ok {
		return nil, unsupportedf("isinstance() with non-constant types")
	}
	b := builtinTable["isinstance"].(*vm.Builtin)
	result, err := b.Fn(nil, []any{obj, types}, nil)
	if err != nil {
		return nil, err
	}
	return NewConstant(result, g, derived(args...)), nil
}
