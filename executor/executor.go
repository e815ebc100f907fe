package executor

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/chazu/symtrace/pkg/bytecode"
	"github.com/chazu/symtrace/vm"
)

// ---------------------------------------------------------------------------
// OpcodeExecutor: translation of a top-level frame
// ---------------------------------------------------------------------------

// OpcodeExecutor traces the code of one frame against the frame's current
// locals, globals and cells, and builds the replacement code.
type OpcodeExecutor struct {
	executorBase
	frame    *vm.Frame
	globals  map[string]Variable
	snapshot *breakPoint
}

// breakPoint is the tracer state just before a call instruction, restored
// when that call turns out to need a graph break.
type breakPoint struct {
	memo   *Memo
	stack  []Variable
	locals map[string]Variable
	pc     int
}

// NewOpcodeExecutor prepares to translate frame.
func NewOpcodeExecutor(frame *vm.Frame, opts Options) *OpcodeExecutor {
	e := &OpcodeExecutor{frame: frame, globals: make(map[string]Variable)}
	e.graph = NewFunctionGraph()
	e.code = frame.OriginalCode()
	e.opts = opts
	e.builtins = frame.Builtins
	e.locals = make(map[string]Variable)
	e.cells = make(map[string]*CellVariable)
	for _, name := range append(slices.Clone(e.code.CellVars), e.code.FreeVars...) {
		name := name
		e.cells[name] = newExternalCell(name, e.graph, func() (Variable, error) {
			return e.loadCell(name)
		})
	}
	e.loadFast = e.loadLocal
	e.loadGlobal = e.loadGlobalName
	e.storeGlobal = e.storeGlobalName
	if opts.BreakGraph {
		e.beforeCall = e.saveBreakPoint
	}
	return e
}

// Graph returns the graph being built.
func (e *OpcodeExecutor) Graph() *FunctionGraph {
	return e.graph
}

func (e *OpcodeExecutor) loadLocal(name string) (Variable, error) {
	if v, ok := e.locals[name]; ok {
		return v, nil
	}
	raw, err := e.frame.LoadFast(name)
	if err != nil {
		return nil, err
	}
	v, err := Wrap(raw, e.graph, &LocalTracker{Name: name})
	if err != nil {
		return nil, err
	}
	e.locals[name] = e.guarded(v)
	return v, nil
}

func (e *OpcodeExecutor) loadGlobalName(name string) (Variable, error) {
	if v, ok := e.globals[name]; ok {
		return v, nil
	}
	var t Tracker
	raw, ok := e.frame.Globals.Get(name)
	if ok {
		t = &GlobalTracker{Name: name}
	} else if raw, ok = e.frame.Builtins[name]; ok {
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

// storeGlobalName makes later loads of name see v and records the store
// so the translated code repeats it.
func (e *OpcodeExecutor) storeGlobalName(name string, v Variable) error {
	prev, had := e.globals[name]
	e.globals[name] = v
	e.graph.recordMutation(func() {
		if had {
			e.globals[name] = prev
		} else {
			delete(e.globals, name)
		}
	})
	e.graph.StoreGlobal(name, v)
	return nil
}

func (e *OpcodeExecutor) loadCell(name string) (Variable, error) {
	t := &DerefTracker{Name: name}
	raw, err := t.Trace(e.frame)
	if err != nil {
		return nil, err
	}
	v, err := Wrap(raw, e.graph, t)
	if err != nil {
		return nil, err
	}
	return e.guarded(v), nil
}

func (e *OpcodeExecutor) saveBreakPoint() {
	e.snapshot = &breakPoint{
		memo:   e.graph.SaveMemo(),
		stack:  e.stack.Snapshot(),
		locals: maps.Clone(e.locals),
		pc:     e.pc,
	}
}

// Run traces the frame. Constructs the tracer cannot handle produce a
// BailedOut result rather than an error; errors are internal failures or
// errors the traced code itself raises.
func (e *OpcodeExecutor) Run() (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = innerErrorf("translating %s: %v", e.code.Name, r)
		}
	}()
	log.Debugf("translating %s", e.code.Name)

	if err := e.run(); err != nil {
		reason, ok := fallbackReason(err)
		if !ok {
			return Result{}, err
		}
		var be *BreakGraphError
		if errors.As(err, &be) && e.snapshot != nil {
			return e.breakGraph(reason)
		}
		log.Infof("%s bails out: %s", e.code.Name, reason)
		return bailOut(reason), nil
	}

	cg := bytecode.NewCodeGen(e.code, e.code.Name)
	if err := e.graph.Finalize(cg, e.retval); err != nil {
		if reason, ok := fallbackReason(err); ok {
			return bailOut(reason), nil
		}
		return Result{}, err
	}
	cg.GenReturn()
	return e.compiled(cg, -1, ""), nil
}

func (e *OpcodeExecutor) compiled(cg *bytecode.CodeGen, breakAt int, reason string) Result {
	guard, text := e.graph.GuardFn()
	return Result{
		Outcome:   Compiled,
		Code:      cg.Build(),
		Guard:     guard,
		GuardText: text,
		IR:        e.graph.IR().Clone(),
		Reason:    reason,
		BreakAt:   breakAt,
	}
}

// breakGraph rolls back to the last call instruction, compiles what was
// traced before it and resumes the original code at that instruction. A
// break before any statement yields code that only restores the locals
// and resumes.
func (e *OpcodeExecutor) breakGraph(reason string) (Result, error) {
	if e.code.Uses(bytecode.OpStoreDeref) {
		return bailOut(fmt.Sprintf("%s (cells cannot be restored at a break)", reason)), nil
	}
	bp := e.snapshot
	e.graph.RestoreMemo(bp.memo)
	e.stack.Restore(bp.stack)
	e.locals = bp.locals
	e.pc = bp.pc

	var names []string
	var outputs []Variable
	for _, name := range bytecode.LiveVariables(e.code, bp.pc) {
		if v, ok := e.locals[name]; ok {
			names = append(names, name)
			outputs = append(outputs, v)
		}
	}
	outputs = append(outputs, bp.stack...)

	cg := bytecode.NewCodeGen(e.code, e.code.Name)
	if err := e.graph.Finalize(cg, outputs...); err != nil {
		if r, ok := fallbackReason(err); ok {
			return bailOut(fmt.Sprintf("%s (%s)", reason, r)), nil
		}
		return Result{}, err
	}
	for i := len(bp.stack) - 1; i >= 0; i-- {
		cg.GenStoreFast(resumeName(i))
	}
	for i := len(names) - 1; i >= 0; i-- {
		cg.GenStoreFast(names[i])
	}
	for i := range bp.stack {
		cg.GenLoadFast(resumeName(i))
	}
	cg.GenResumeAt(bp.pc)

	log.Infof("%s breaks at %d: %s", e.code.Name, bp.pc, reason)
	return e.compiled(cg, bp.pc, reason), nil
}

func resumeName(i int) string {
	return fmt.Sprintf("___resume_%d", i)
}

// Translate traces frame with opts.
func Translate(frame *vm.Frame, opts Options) (Result, error) {
	return NewOpcodeExecutor(frame, opts).Run()
}
