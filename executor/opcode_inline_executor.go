package executor

import (
	"github.com/chazu/symtrace/vm"
)

// ---------------------------------------------------------------------------
// OpcodeInlineExecutor: tracing through a called function
// ---------------------------------------------------------------------------

// OpcodeInlineExecutor traces a user function called from traced code. It
// records into its caller's graph; its locals are the bound arguments, so
// nothing but the function's globals and closure is read from outside.
type OpcodeInlineExecutor struct {
	executorBase
	fn      *FunctionVariable
	globals map[string]Variable
}

func newInlineExecutor(parent *executorBase, fn *FunctionVariable) *OpcodeInlineExecutor {
	e := &OpcodeInlineExecutor{fn: fn, globals: make(map[string]Variable)}
	e.graph = parent.graph
	e.code = fn.code
	e.opts = parent.opts
	e.builtins = parent.builtins
	e.depth = parent.depth + 1
	e.locals = make(map[string]Variable)
	e.cells = make(map[string]*CellVariable)
	e.loadFast = e.defaultLoadFast
	if fn.Made() {
		e.loadGlobal = fn.globals
	} else {
		e.loadGlobal = e.loadFunctionGlobal
	}
	return e
}

func (e *OpcodeInlineExecutor) defaults() ([]Variable, error) {
	if e.fn.Made() {
		return e.fn.defaults, nil
	}
	if len(e.fn.fn.Defaults) == 0 {
		return nil, nil
	}
	raw, err := vm.GetAttr(e.fn.fn, "__defaults__")
	if err != nil {
		return nil, err
	}
	v, err := Wrap(raw, e.graph, attrTracker(e.fn, "__defaults__"))
	if err != nil {
		return nil, err
	}
	tuple, ok := e.guarded(v).(*ListVariable)
	if !ok {
		return nil, innerErrorf("%s.__defaults__ is %s", e.fn.Name(), v)
	}
	items, err := tuple.Items()
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		e.guarded(item)
	}
	return items, nil
}

func (e *OpcodeInlineExecutor) bindCells(bound map[string]Variable) error {
	for _, name := range e.code.CellVars {
		e.cells[name] = newOwnedCell(name, e.graph, bound[name])
	}
	if e.fn.Made() {
		for i, name := range e.code.FreeVars {
			e.cells[name] = e.fn.closure[i]
		}
		return nil
	}
	if len(e.fn.fn.Closure) != len(e.code.FreeVars) {
		return vm.NewHostError(vm.TypeError, "%s() requires a closure of %d cells, got %d", e.fn.Name(), len(e.code.FreeVars), len(e.fn.fn.Closure))
	}
	for i, name := range e.code.FreeVars {
		name := name
		t := &ClosureTracker{Fn: e.fn, Index: i}
		cell := e.fn.fn.Closure[i]
		e.cells[name] = newExternalCell(name, e.graph, func() (Variable, error) {
			raw, err := cell.Get(name)
			if err != nil {
				return nil, err
			}
			v, err := Wrap(raw, e.graph, t)
			if err != nil {
				return nil, err
			}
			return e.guarded(v), nil
		})
	}
	return nil
}

func (e *OpcodeInlineExecutor) loadFunctionGlobal(name string) (Variable, error) {
	if v, ok := e.globals[name]; ok {
		return v, nil
	}
	var t Tracker
	raw, ok := e.fn.fn.Globals.Get(name)
	if ok {
		t = &FunctionGlobalTracker{Fn: e.fn, Name: name}
	} else if raw, ok = e.builtins[name]; ok {
		t = &BuiltinTracker{Name: name}
	} else {
		return nil, vm.NewHostError(vm.NameError, "name '%s' is not defined", name)
	}
	v, err := Wrap(raw, e.graph, t)
	if err != nil {
		return nil, err
	}
	e.globals[name] = e.guarded(v)
	return v, nil
}

// call binds the arguments and traces the function body, returning the
// traced return value.
func (e *OpcodeInlineExecutor) call(args []Variable, kwargs map[string]Variable) (Variable, error) {
	defaults, err := e.defaults()
	if err != nil {
		return nil, err
	}
	bound, err := vm.BindArgs(e.fn.Name(), e.code.ArgNames, defaults, args, kwargs)
	if err != nil {
		return nil, err
	}
	e.locals = bound
	if err := e.bindCells(bound); err != nil {
		return nil, err
	}
	log.Debugf("inlining %s at depth %d", e.fn.Name(), e.depth)
	if err := e.run(); err != nil {
		return nil, err
	}
	return e.retval, nil
}
