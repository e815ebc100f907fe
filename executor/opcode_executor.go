package executor

import (
	"fmt"

	"github.com/chazu/symtrace/pkg/bytecode"
	"github.com/chazu/symtrace/vm"
)

// ---------------------------------------------------------------------------
// executorBase: state and instruction handlers shared by all executors
// ---------------------------------------------------------------------------

type executorBase struct {
	graph    *FunctionGraph
	code     *bytecode.Code
	opts     Options
	builtins map[string]any
	depth    int

	stack  VariableStack
	locals map[string]Variable
	cells  map[string]*CellVariable
	pc     int

	loadFast    func(name string) (Variable, error)
	loadGlobal  func(name string) (Variable, error)
	storeGlobal func(name string, v Variable) error
	beforeCall  func()

	returned bool
	retval   Variable
}

type opHandler func(e *executorBase, inst bytecode.Instruction) error

var handlers map[bytecode.Opcode]opHandler

func (e *executorBase) run() error {
	for !e.returned {
		if e.pc < 0 || e.pc >= len(e.code.Instructions) {
			return unsupportedf("control flow leaves %s at %d", e.code.Name, e.pc)
		}
		inst := e.code.Instructions[e.pc]
		h, ok := handlers[inst.Op]
		if !ok {
			return unsupportedf("opcode %s", inst.Op)
		}
		if inst.Op.IsCall() && e.beforeCall != nil {
			e.beforeCall()
		}
		log.Debugf("%s:%d %s (stack %d)", e.code.Name, e.pc, inst, e.stack.Len())
		e.pc++
		if err := h(e, inst); err != nil {
			return err
		}
	}
	return nil
}

func (e *executorBase) defaultLoadFast(name string) (Variable, error) {
	if v, ok := e.locals[name]; ok {
		return v, nil
	}
	return nil, vm.NewHostError(vm.UnboundLocalError, "local variable '%s' referenced before assignment", name)
}

func (e *executorBase) cell(name string) (*CellVariable, error) {
	c, ok := e.cells[name]
	if !ok {
		return nil, innerErrorf("%s has no cell %s", e.code.Name, name)
	}
	return c, nil
}

// guarded marks a value read from outside the trace and returns it.
func (e *executorBase) guarded(v Variable) Variable {
	e.graph.AddGlobalGuardedVariable(v)
	return v
}

// ---------------------------------------------------------------------------
// Attribute access
// ---------------------------------------------------------------------------

func noAttribute(typeName, name string) error {
	return vm.NewHostError(vm.AttributeError, "'%s' object has no attribute '%s'", typeName, name)
}

func (e *executorBase) getAttr(obj Variable, name string) (Variable, error) {
	g := e.graph
	switch x := obj.(type) {
	case *TensorVariable:
		if v, ok, err := x.MetaAttr(name); ok || err != nil {
			return v, err
		}
		if _, ok := vm.TensorMethods[name]; ok || name == "item" || name == "tolist" {
			return newMethodVariable(x, name, g, attrTracker(x, name)), nil
		}
		return nil, noAttribute("Tensor", name)
	case *ListVariable, *DictVariable:
		if defaultDispatcher.Has(methodOp(x, name)) {
			return newMethodVariable(x, name, g, attrTracker(x, name)), nil
		}
		return nil, unsupportedf("method %s", methodOp(x, name))
	case *LayerVariable:
		switch name {
		case "forward":
			return newMethodVariable(x, name, g, attrTracker(x, name)), nil
		case "weight", "bias", "name":
			raw, err := vm.GetAttr(x.layer, name)
			if err != nil {
				return nil, err
			}
			v, err := Wrap(raw, g, attrTracker(x, name))
			if err != nil {
				return nil, err
			}
			return e.guarded(v), nil
		}
		return nil, noAttribute(vm.TypeName(x.layer), name)
	case *ObjectVariable:
		if !x.module {
			return nil, unsupportedf("attribute %s of opaque %s", name, vm.TypeName(x.value))
		}
		raw, err := vm.GetAttr(x.value, name)
		if err != nil {
			return nil, err
		}
		v, err := Wrap(raw, g, attrTracker(x, name))
		if err != nil {
			return nil, err
		}
		return e.guarded(v), nil
	case *ConstantVariable:
		if _, ok := x.value.(*vm.Range); ok {
			raw, err := vm.GetAttr(x.value, name)
			if err != nil {
				return nil, err
			}
			return Wrap(raw, g, derived(x))
		}
		return nil, noAttribute(vm.TypeName(x.value), name)
	case *MethodVariable:
		if name == "__self__" {
			return x.self, nil
		}
	}
	return nil, unsupportedf("attribute %s of %s", name, obj)
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (e *executorBase) call(fn Variable, args []Variable, kwargs map[string]Variable) (Variable, error) {
	g := e.graph
	switch f := fn.(type) {
	case *FunctionVariable:
		if e.depth+1 > e.opts.maxInlineDepth() {
			return nil, unsupportedf("inline depth %d exceeded calling %s", e.opts.maxInlineDepth(), f.Name())
		}
		return newInlineExecutor(e, f).call(args, kwargs)
	case *APIVariable:
		return g.RecordAPI(f.api.Name, args, kwargs)
	case *LayerVariable:
		if len(args) != 1 || len(kwargs) != 0 {
			return nil, vm.NewHostError(vm.TypeError, "%s() takes exactly one argument", f.layer.Name)
		}
		return g.RecordLayer(f, args[0])
	case *BuiltinVariable:
		return e.callBuiltin(f, args, kwargs)
	case *MethodVariable:
		return e.callMethod(f.self, f.name, args, kwargs)
	case *ObjectVariable:
		if _, ok := f.value.(vm.Callable); ok {
			return nil, unsupportedf("call of opaque %s", vm.TypeName(f.value))
		}
	case *ConstantVariable:
		return nil, vm.NewHostError(vm.TypeError, "'%s' object is not callable", vm.TypeName(f.value))
	}
	return nil, unsupportedf("call of %s", fn)
}

func (e *executorBase) callBuiltin(b *BuiltinVariable, args []Variable, kwargs map[string]Variable) (Variable, error) {
	g := e.graph
	name := b.builtin.Name
	switch name {
	case "print":
		return nil, breakGraphf("print() has side effects")
	case "Linear", "namespace", "iter":
		return nil, unsupportedf("%s() creates state the tracer does not model", name)
	case "tensor":
		values := make([]any, len(args))
		for i, a := range args {
			v, ok := concreteValue(a)
			if !ok {
				return nil, unsupportedf("tensor() of non-constant %s", a)
			}
			values[i] = v
		}
		kw := make(map[string]any, len(kwargs))
		for k, a := range kwargs {
			v, ok := concreteValue(a)
			if !ok {
				return nil, unsupportedf("tensor() with non-constant %s", k)
			}
			kw[k] = v
		}
		raw, err := b.builtin.Fn(nil, values, kw)
		if err != nil {
			return nil, err
		}
		t := raw.(*vm.Tensor)
		return NewTensorVariable(t.Meta.Clone(), g, &ConstTracker{Value: t}), nil
	case "list", "tuple":
		if len(args) != 1 || len(kwargs) != 0 {
			return nil, unsupportedf("%s() with %d arguments", name, len(args))
		}
		items, err := drain(args[0], g)
		if err != nil {
			return nil, err
		}
		return NewListVariable(items, name == "tuple", g, derived(args[0])), nil
	}
	if h := defaultDispatcher.Dispatch(name, args, kwargs); h != nil {
		return h(g, args, kwargs)
	}
	if b.builtin.Pure {
		return callPure(g, b.builtin, args, kwargs)
	}
	return nil, unsupportedf("builtin %s()", name)
}

func (e *executorBase) callMethod(self Variable, name string, args []Variable, kwargs map[string]Variable) (Variable, error) {
	g := e.graph
	switch s := self.(type) {
	case *TensorVariable:
		switch name {
		case "item", "tolist":
			return nil, breakGraphf("tensor.%s() needs concrete data", name)
		}
		return g.RecordMethod(name, s, args, kwargs)
	case *LayerVariable:
		if name == "forward" {
			return e.call(s, args, kwargs)
		}
	}
	op := methodOp(self, name)
	all := append([]Variable{self}, args...)
	if h := defaultDispatcher.Dispatch(op, all, kwargs); h != nil {
		return h(g, all, kwargs)
	}
	return nil, unsupportedf("method %s%s", op, describeOperands(all))
}

// drain iterates v to the end.
func drain(v Variable, g *FunctionGraph) ([]Variable, error) {
	it, err := getIter(v, g)
	if err != nil {
		return nil, err
	}
	items := []Variable{}
	for {
		item, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return items, nil
		}
		items = append(items, item)
	}
}

// isOp decides `a is b` where identity does not depend on runtime values.
func isOp(a, b Variable) (bool, error) {
	if a == b {
		return true, nil
	}
	ca, okA := a.(*ConstantVariable)
	cb, okB := b.(*ConstantVariable)
	switch {
	case okA && okB:
		return vm.Identical(ca.value, cb.value), nil
	case okA && ca.value == nil, okB && cb.value == nil:
		return false, nil
	}
	ra, okA := identity(a)
	rb, okB := identity(b)
	if okA && okB {
		return vm.Identical(ra, rb), nil
	}
	return false, unsupportedf("identity of %s and %s", a, b)
}

func identity(v Variable) (any, bool) {
	switch x := v.(type) {
	case *ObjectVariable:
		return x.value, true
	case *APIVariable:
		return x.api, true
	case *BuiltinVariable:
		return x.builtin, true
	case *LayerVariable:
		return x.layer, true
	case *FunctionVariable:
		if x.fn != nil {
			return x.fn, true
		}
	}
	return nil, false
}

func constantKey(v Variable) (any, error) {
	key, ok := concreteValue(v)
	if !ok {
		return nil, unsupportedf("non-constant key %s", v)
	}
	if _, err := vm.HashKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// ---------------------------------------------------------------------------
// Instruction handlers
// ---------------------------------------------------------------------------

func binaryHandler(e *executorBase, inst bytecode.Instruction) error {
	b := e.stack.Pop()
	a := e.stack.Pop()
	v, err := dispatch(e.graph, vm.OpSymbols[inst.Op], []Variable{a, b}, nil)
	if err != nil {
		return err
	}
	e.stack.Push(v)
	return nil
}

func unaryHandler(op string) opHandler {
	return func(e *executorBase, _ bytecode.Instruction) error {
		v, err := dispatch(e.graph, op, []Variable{e.stack.Pop()}, nil)
		if err != nil {
			return err
		}
		e.stack.Push(v)
		return nil
	}
}

func callHandler(e *executorBase, inst bytecode.Instruction) error {
	var kwargs map[string]Variable
	var args []Variable
	switch inst.Op {
	case bytecode.OpCallFunctionKw:
		namesVar := e.stack.Pop()
		names, ok := concreteValue(namesVar)
		tuple, isTuple := names.(*vm.Tuple)
		if !ok || !isTuple {
			return innerErrorf("CALL_FUNCTION_KW expects a constant tuple of names, got %s", namesVar)
		}
		values := e.stack.PopN(inst.Arg)
		npos := len(values) - len(tuple.Items)
		if npos < 0 {
			return innerErrorf("CALL_FUNCTION_KW with %d names for %d values", len(tuple.Items), len(values))
		}
		kwargs = make(map[string]Variable, len(tuple.Items))
		for i, n := range tuple.Items {
			kwargs[n.(string)] = values[npos+i]
		}
		args = values[:npos]
	default:
		args = e.stack.PopN(inst.Arg)
	}
	fn := e.stack.Pop()
	if inst.Op == bytecode.OpCallMethod {
		e.stack.Pop()
	}
	v, err := e.call(fn, args, kwargs)
	if err != nil {
		return err
	}
	e.stack.Push(v)
	return nil
}

func jumpTo(e *executorBase, inst bytecode.Instruction) error {
	if inst.JumpTo < 0 || inst.JumpTo >= len(e.code.Instructions) {
		return unsupportedf("jump to %d outside %s", inst.JumpTo, e.code.Name)
	}
	e.pc = inst.JumpTo
	return nil
}

func init() {
	handlers = map[bytecode.Opcode]opHandler{
		bytecode.OpNop: func(*executorBase, bytecode.Instruction) error { return nil },
		bytecode.OpPopTop: func(e *executorBase, _ bytecode.Instruction) error {
			e.stack.Pop()
			return nil
		},
		bytecode.OpRotTwo: func(e *executorBase, _ bytecode.Instruction) error {
			a, b := e.stack.Peek(1), e.stack.Peek(2)
			e.stack.Set(1, b)
			e.stack.Set(2, a)
			return nil
		},
		bytecode.OpRotThree: func(e *executorBase, _ bytecode.Instruction) error {
			a, b, c := e.stack.Peek(1), e.stack.Peek(2), e.stack.Peek(3)
			e.stack.Set(1, b)
			e.stack.Set(2, c)
			e.stack.Set(3, a)
			return nil
		},
		bytecode.OpDupTop: func(e *executorBase, _ bytecode.Instruction) error {
			e.stack.Push(e.stack.Top())
			return nil
		},
		bytecode.OpDupTopTwo: func(e *executorBase, _ bytecode.Instruction) error {
			a, b := e.stack.Peek(2), e.stack.Peek(1)
			e.stack.Push(a)
			e.stack.Push(b)
			return nil
		},

		bytecode.OpLoadConst: func(e *executorBase, inst bytecode.Instruction) error {
			value := vm.FromConst(inst.ArgVal)
			if code, ok := value.(*bytecode.Code); ok {
				e.stack.Push(NewObject(code, e.graph, &ConstTracker{Value: code}))
				return nil
			}
			v, err := Wrap(value, e.graph, &ConstTracker{Value: value})
			if err != nil {
				return err
			}
			e.stack.Push(v)
			return nil
		},
		bytecode.OpLoadFast: func(e *executorBase, inst bytecode.Instruction) error {
			v, err := e.loadFast(inst.Name())
			if err != nil {
				return err
			}
			e.stack.Push(v)
			return nil
		},
		bytecode.OpStoreFast: func(e *executorBase, inst bytecode.Instruction) error {
			e.locals[inst.Name()] = e.stack.Pop()
			return nil
		},
		bytecode.OpDeleteFast: func(e *executorBase, inst bytecode.Instruction) error {
			if _, err := e.loadFast(inst.Name()); err != nil {
				return err
			}
			delete(e.locals, inst.Name())
			return nil
		},
		bytecode.OpLoadGlobal: func(e *executorBase, inst bytecode.Instruction) error {
			v, err := e.loadGlobal(inst.Name())
			if err != nil {
				return err
			}
			e.stack.Push(v)
			return nil
		},
		bytecode.OpStoreGlobal: func(e *executorBase, inst bytecode.Instruction) error {
			if e.storeGlobal == nil {
				return unsupportedf("assignment to global %s in %s", inst.Name(), e.code.Name)
			}
			return e.storeGlobal(inst.Name(), e.stack.Pop())
		},
		bytecode.OpLoadDeref: func(e *executorBase, inst bytecode.Instruction) error {
			c, err := e.cell(inst.Name())
			if err != nil {
				return err
			}
			v, err := c.Get()
			if err != nil {
				return err
			}
			e.stack.Push(v)
			return nil
		},
		bytecode.OpStoreDeref: func(e *executorBase, inst bytecode.Instruction) error {
			c, err := e.cell(inst.Name())
			if err != nil {
				return err
			}
			return c.Set(e.stack.Pop())
		},
		bytecode.OpLoadClosure: func(e *executorBase, inst bytecode.Instruction) error {
			c, err := e.cell(inst.Name())
			if err != nil {
				return err
			}
			e.stack.Push(c)
			return nil
		},

		bytecode.OpLoadAttr: func(e *executorBase, inst bytecode.Instruction) error {
			v, err := e.getAttr(e.stack.Pop(), inst.Name())
			if err != nil {
				return err
			}
			e.stack.Push(v)
			return nil
		},
		bytecode.OpStoreAttr: func(_ *executorBase, inst bytecode.Instruction) error {
			return unsupportedf("assignment to attribute %s", inst.Name())
		},
		bytecode.OpLoadMethod: func(e *executorBase, inst bytecode.Instruction) error {
			v, err := e.getAttr(e.stack.Pop(), inst.Name())
			if err != nil {
				return err
			}
			marker := vm.MethodMarker{}
			e.stack.Push(NewObject(marker, e.graph, &ConstTracker{Value: marker}))
			e.stack.Push(v)
			return nil
		},
		bytecode.OpCallMethod:     callHandler,
		bytecode.OpCallFunction:   callHandler,
		bytecode.OpCallFunctionKw: callHandler,

		bytecode.OpBinarySubscr: func(e *executorBase, _ bytecode.Instruction) error {
			key := e.stack.Pop()
			container := e.stack.Pop()
			v, err := dispatch(e.graph, "getitem", []Variable{container, key}, nil)
			if err != nil {
				return err
			}
			e.stack.Push(v)
			return nil
		},
		bytecode.OpUnaryNegative: unaryHandler("neg"),
		bytecode.OpUnaryNot:      unaryHandler("not"),
		bytecode.OpCompareOp: func(e *executorBase, inst bytecode.Instruction) error {
			b := e.stack.Pop()
			a := e.stack.Pop()
			v, err := dispatch(e.graph, inst.ArgVal.(string), []Variable{a, b}, nil)
			if err != nil {
				return err
			}
			e.stack.Push(v)
			return nil
		},
		bytecode.OpIsOp: func(e *executorBase, inst bytecode.Instruction) error {
			b := e.stack.Pop()
			a := e.stack.Pop()
			same, err := isOp(a, b)
			if err != nil {
				return err
			}
			e.stack.Push(NewConstant(same != (inst.Arg == 1), e.graph, derived(a, b)))
			return nil
		},
		bytecode.OpContainsOp: func(e *executorBase, inst bytecode.Instruction) error {
			container := e.stack.Pop()
			item := e.stack.Pop()
			v, err := dispatch(e.graph, "contains", []Variable{item, container}, nil)
			if err != nil {
				return err
			}
			if inst.Arg == 1 {
				found, _ := constValue(v)
				v = NewConstant(found != true, e.graph, derived(v))
			}
			e.stack.Push(v)
			return nil
		},

		bytecode.OpBuildList: func(e *executorBase, inst bytecode.Instruction) error {
			items := e.stack.PopN(inst.Arg)
			e.stack.Push(NewListVariable(items, false, e.graph, derived(items...)))
			return nil
		},
		bytecode.OpBuildTuple: func(e *executorBase, inst bytecode.Instruction) error {
			items := e.stack.PopN(inst.Arg)
			e.stack.Push(NewListVariable(items, true, e.graph, derived(items...)))
			return nil
		},
		bytecode.OpBuildMap: func(e *executorBase, inst bytecode.Instruction) error {
			items := e.stack.PopN(2 * inst.Arg)
			keys := make([]any, inst.Arg)
			values := make([]Variable, inst.Arg)
			for i := 0; i < inst.Arg; i++ {
				k, err := constantKey(items[2*i])
				if err != nil {
					return err
				}
				keys[i], values[i] = k, items[2*i+1]
			}
			d, err := NewDictVariable(keys, values, e.graph, derived(items...))
			if err != nil {
				return err
			}
			e.stack.Push(d)
			return nil
		},
		bytecode.OpBuildConstKeyMap: func(e *executorBase, inst bytecode.Instruction) error {
			keysVar := e.stack.Pop()
			raw, ok := concreteValue(keysVar)
			tuple, isTuple := raw.(*vm.Tuple)
			if !ok || !isTuple || len(tuple.Items) != inst.Arg {
				return vm.NewHostError(vm.TypeError, "BUILD_CONST_KEY_MAP expects a tuple of %d keys", inst.Arg)
			}
			values := e.stack.PopN(inst.Arg)
			d, err := NewDictVariable(tuple.Items, values, e.graph, derived(append(values, keysVar)...))
			if err != nil {
				return err
			}
			e.stack.Push(d)
			return nil
		},
		bytecode.OpStoreSubscr: func(e *executorBase, _ bytecode.Instruction) error {
			keyVar := e.stack.Pop()
			container := e.stack.Pop()
			value := e.stack.Pop()
			key, err := constantKey(keyVar)
			if err != nil {
				return err
			}
			switch c := container.(type) {
			case *ListVariable:
				return c.SetItem(key, value)
			case *DictVariable:
				return c.Set(key, value)
			}
			return unsupportedf("item assignment on %s", container)
		},
		bytecode.OpUnpackSequence: func(e *executorBase, inst bytecode.Instruction) error {
			items, err := drain(e.stack.Pop(), e.graph)
			if err != nil {
				return err
			}
			if err := vm.CheckUnpack(len(items), inst.Arg); err != nil {
				return err
			}
			for i := len(items) - 1; i >= 0; i-- {
				e.stack.Push(items[i])
			}
			return nil
		},

		bytecode.OpGetIter: func(e *executorBase, _ bytecode.Instruction) error {
			it, err := getIter(e.stack.Pop(), e.graph)
			if err != nil {
				return err
			}
			e.stack.Push(it)
			return nil
		},
		bytecode.OpForIter: func(e *executorBase, inst bytecode.Instruction) error {
			it, ok := e.stack.Top().(IterVariable)
			if !ok {
				return innerErrorf("FOR_ITER on %s", e.stack.Top())
			}
			v, more, err := it.Next()
			if err != nil {
				return err
			}
			if more {
				e.stack.Push(v)
				return nil
			}
			e.stack.Pop()
			return jumpTo(e, inst)
		},
		bytecode.OpJumpAbsolute: jumpTo,
		bytecode.OpJumpForward:  jumpTo,
		bytecode.OpPopJumpIfFalse: func(e *executorBase, inst bytecode.Instruction) error {
			return condJump(e, inst, false)
		},
		bytecode.OpPopJumpIfTrue: func(e *executorBase, inst bytecode.Instruction) error {
			return condJump(e, inst, true)
		},

		bytecode.OpMakeFunction: makeFunction,
		bytecode.OpReturnValue: func(e *executorBase, _ bytecode.Instruction) error {
			e.retval = e.stack.Pop()
			e.returned = true
			return nil
		},
	}
	for op := range vm.OpSymbols {
		handlers[op] = binaryHandler
	}
}

// condJump follows a conditional jump whose condition is known at trace
// time. Conditions that depend on tensor data are unsupported.
func condJump(e *executorBase, inst bytecode.Instruction, onTrue bool) error {
	cond := e.stack.Pop()
	v, err := dispatch(e.graph, "bool", []Variable{cond}, nil)
	if err != nil {
		return err
	}
	b, ok := constValue(v)
	if !ok {
		return innerErrorf("bool() produced %s", v)
	}
	if b.(bool) == onTrue {
		return jumpTo(e, inst)
	}
	return nil
}

func makeFunction(e *executorBase, inst bytecode.Instruction) error {
	codeVar := e.stack.Pop()
	var code *bytecode.Code
	if obj, ok := codeVar.(*ObjectVariable); ok {
		code, _ = obj.value.(*bytecode.Code)
	}
	if code == nil {
		return innerErrorf("MAKE_FUNCTION expects a code object, got %s", codeVar)
	}
	deps := []Variable{codeVar}
	var closure []*CellVariable
	if inst.Arg&bytecode.MakeFunctionClosure != 0 {
		cellsVar := e.stack.Pop()
		cells, ok := cellsVar.(*ListVariable)
		if !ok {
			return innerErrorf("MAKE_FUNCTION expects a tuple of cells, got %s", cellsVar)
		}
		items, err := cells.Items()
		if err != nil {
			return err
		}
		for _, item := range items {
			c, ok := item.(*CellVariable)
			if !ok {
				return innerErrorf("MAKE_FUNCTION closure holds %s", item)
			}
			closure = append(closure, c)
		}
		deps = append(deps, cellsVar)
	}
	var defaults []Variable
	if inst.Arg&bytecode.MakeFunctionDefaults != 0 {
		defaultsVar := e.stack.Pop()
		tuple, ok := defaultsVar.(*ListVariable)
		if !ok || !tuple.tuple {
			return vm.NewHostError(vm.TypeError, "MAKE_FUNCTION expects a tuple of defaults")
		}
		items, err := tuple.Items()
		if err != nil {
			return err
		}
		defaults = items
		deps = append(deps, defaultsVar)
	}
	if len(closure) != len(code.FreeVars) {
		return vm.NewHostError(vm.TypeError, "%s() requires a closure of %d cells, got %d", code.Name, len(code.FreeVars), len(closure))
	}
	e.stack.Push(newMadeFunction(code, defaults, closure, e.loadGlobal, e.graph, deps))
	return nil
}

func (e *executorBase) String() string {
	return fmt.Sprintf("executor(%s at %d, depth %d)", e.code.Name, e.pc, e.depth)
}
