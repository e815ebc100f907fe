package executor

import (
	"fmt"

	"github.com/chazu/symtrace/pkg/bytecode"
	"github.com/chazu/symtrace/vm"
)

// Tracker records where a traced value came from. A tracker that is not
// derived can regenerate the value from a frame, both as instructions
// (GenInstructions) and directly (Trace, used by guards).
type Tracker interface {
	// Inputs are the variables this tracker reads from.
	Inputs() []Variable
	// NeedGuard reports whether values with this provenance must be checked
	// before reusing a translation.
	NeedGuard() bool
	GenInstructions(cg *bytecode.CodeGen) error
	Trace(frame *vm.Frame) (any, error)
	String() string
}

// IsDerived reports whether t describes a value computed during tracing.
func IsDerived(t Tracker) bool {
	_, ok := t.(*DummyTracker)
	return ok
}

func traceVariable(v Variable, frame *vm.Frame) (any, error) {
	return v.Tracker().Trace(frame)
}

// LocalTracker is a local variable of the traced frame.
type LocalTracker struct {
	Name string
}

func (t *LocalTracker) Inputs() []Variable { return nil }
func (t *LocalTracker) NeedGuard() bool    { return true }

func (t *LocalTracker) GenInstructions(cg *bytecode.CodeGen) error {
	cg.GenLoadFast(t.Name)
	return nil
}

func (t *LocalTracker) Trace(frame *vm.Frame) (any, error) {
	return frame.LoadFast(t.Name)
}

func (t *LocalTracker) String() string { return "local " + t.Name }

// GlobalTracker is a global of the traced frame.
type GlobalTracker struct {
	Name string
}

func (t *GlobalTracker) Inputs() []Variable { return nil }
func (t *GlobalTracker) NeedGuard() bool    { return true }

func (t *GlobalTracker) GenInstructions(cg *bytecode.CodeGen) error {
	cg.GenLoadGlobal(t.Name)
	return nil
}

func (t *GlobalTracker) Trace(frame *vm.Frame) (any, error) {
	v, ok := frame.Globals.Get(t.Name)
	if !ok {
		return nil, fmt.Errorf("global %s is not defined", t.Name)
	}
	return v, nil
}

func (t *GlobalTracker) String() string { return "global " + t.Name }

// BuiltinTracker is a builtin not shadowed by a global.
type BuiltinTracker struct {
	Name string
}

func (t *BuiltinTracker) Inputs() []Variable { return nil }
func (t *BuiltinTracker) NeedGuard() bool    { return true }

func (t *BuiltinTracker) GenInstructions(cg *bytecode.CodeGen) error {
	cg.GenLoadGlobal(t.Name)
	return nil
}

func (t *BuiltinTracker) Trace(frame *vm.Frame) (any, error) {
	if frame.Globals.Has(t.Name) {
		return nil, fmt.Errorf("builtin %s is shadowed by a global", t.Name)
	}
	v, ok := frame.Builtins[t.Name]
	if !ok {
		return nil, fmt.Errorf("builtin %s is not defined", t.Name)
	}
	return v, nil
}

func (t *BuiltinTracker) String() string { return "builtin " + t.Name }

// ConstTracker is a value fixed at translation time.
type ConstTracker struct {
	Value any
}

func (t *ConstTracker) Inputs() []Variable { return nil }
func (t *ConstTracker) NeedGuard() bool    { return false }

func (t *ConstTracker) GenInstructions(cg *bytecode.CodeGen) error {
	cg.GenLoadConst(t.Value)
	return nil
}

func (t *ConstTracker) Trace(*vm.Frame) (any, error) {
	return t.Value, nil
}

func (t *ConstTracker) String() string { return "const " + vm.Repr(t.Value) }

// DerefTracker is the content of a cell or free variable of the traced frame.
type DerefTracker struct {
	Name string
}

func (t *DerefTracker) Inputs() []Variable { return nil }
func (t *DerefTracker) NeedGuard() bool    { return true }

func (t *DerefTracker) GenInstructions(cg *bytecode.CodeGen) error {
	cg.GenLoadDeref(t.Name)
	return nil
}

func (t *DerefTracker) Trace(frame *vm.Frame) (any, error) {
	c, err := frame.Cell(t.Name)
	if err != nil {
		return nil, err
	}
	return c.Get(t.Name)
}

func (t *DerefTracker) String() string { return "deref " + t.Name }

// GetAttrTracker is an attribute of another tracked value.
type GetAttrTracker struct {
	Obj  Variable
	Attr string
}

func (t *GetAttrTracker) Inputs() []Variable { return []Variable{t.Obj} }
func (t *GetAttrTracker) NeedGuard() bool    { return true }

func (t *GetAttrTracker) GenInstructions(cg *bytecode.CodeGen) error {
	if err := t.Obj.Tracker().GenInstructions(cg); err != nil {
		return err
	}
	cg.GenLoadAttr(t.Attr)
	return nil
}

func (t *GetAttrTracker) Trace(frame *vm.Frame) (any, error) {
	obj, err := traceVariable(t.Obj, frame)
	if err != nil {
		return nil, err
	}
	return vm.GetAttr(obj, t.Attr)
}

func (t *GetAttrTracker) String() string {
	return fmt.Sprintf("(%s).%s", t.Obj.Tracker(), t.Attr)
}

// GetItemTracker is an element of another tracked container.
type GetItemTracker struct {
	Container Variable
	Key       any
}

func (t *GetItemTracker) Inputs() []Variable { return []Variable{t.Container} }
func (t *GetItemTracker) NeedGuard() bool    { return true }

func (t *GetItemTracker) GenInstructions(cg *bytecode.CodeGen) error {
	if err := t.Container.Tracker().GenInstructions(cg); err != nil {
		return err
	}
	cg.GenLoadConst(t.Key)
	cg.GenSubscribe()
	return nil
}

func (t *GetItemTracker) Trace(frame *vm.Frame) (any, error) {
	c, err := traceVariable(t.Container, frame)
	if err != nil {
		return nil, err
	}
	return vm.GetItem(c, t.Key)
}

func (t *GetItemTracker) String() string {
	return fmt.Sprintf("(%s)[%s]", t.Container.Tracker(), vm.Repr(t.Key))
}

// ClosureTracker is the content of a closure cell of a tracked function.
type ClosureTracker struct {
	Fn    Variable
	Index int
}

func (t *ClosureTracker) Inputs() []Variable { return []Variable{t.Fn} }
func (t *ClosureTracker) NeedGuard() bool    { return true }

func (t *ClosureTracker) GenInstructions(cg *bytecode.CodeGen) error {
	if err := t.Fn.Tracker().GenInstructions(cg); err != nil {
		return err
	}
	cg.GenLoadAttr("__closure__")
	cg.GenLoadConst(int64(t.Index))
	cg.GenSubscribe()
	cg.GenLoadAttr("cell_contents")
	return nil
}

func (t *ClosureTracker) Trace(frame *vm.Frame) (any, error) {
	v, err := traceVariable(t.Fn, frame)
	if err != nil {
		return nil, err
	}
	fn, ok := v.(*vm.Function)
	if !ok || t.Index >= len(fn.Closure) {
		return nil, fmt.Errorf("no closure cell %d", t.Index)
	}
	return vm.GetAttr(fn.Closure[t.Index], "cell_contents")
}

func (t *ClosureTracker) String() string {
	return fmt.Sprintf("(%s).__closure__[%d]", t.Fn.Tracker(), t.Index)
}

// FunctionGlobalTracker is a global read by an inlined function, looked up
// in that function's own globals.
type FunctionGlobalTracker struct {
	Fn   Variable
	Name string
}

func (t *FunctionGlobalTracker) Inputs() []Variable { return []Variable{t.Fn} }
func (t *FunctionGlobalTracker) NeedGuard() bool    { return true }

func (t *FunctionGlobalTracker) GenInstructions(cg *bytecode.CodeGen) error {
	if err := t.Fn.Tracker().GenInstructions(cg); err != nil {
		return err
	}
	cg.GenLoadAttr("__globals__")
	cg.GenLoadConst(t.Name)
	cg.GenSubscribe()
	return nil
}

func (t *FunctionGlobalTracker) Trace(frame *vm.Frame) (any, error) {
	v, err := traceVariable(t.Fn, frame)
	if err != nil {
		return nil, err
	}
	fn, ok := v.(*vm.Function)
	if !ok {
		return nil, fmt.Errorf("%s is not a function", vm.TypeName(v))
	}
	g, ok := fn.Globals.Get(t.Name)
	if !ok {
		return nil, fmt.Errorf("global %s is not defined", t.Name)
	}
	return g, nil
}

func (t *FunctionGlobalTracker) String() string {
	return fmt.Sprintf("(%s).__globals__[%q]", t.Fn.Tracker(), t.Name)
}

// DummyTracker marks a value computed during tracing. It has no frame
// provenance of its own; its inputs are what it was computed from.
type DummyTracker struct {
	Deps []Variable
}

func (t *DummyTracker) Inputs() []Variable { return t.Deps }
func (t *DummyTracker) NeedGuard() bool    { return false }

func (t *DummyTracker) GenInstructions(*bytecode.CodeGen) error {
	return innerErrorf("a derived value cannot be regenerated from the frame")
}

func (t *DummyTracker) Trace(*vm.Frame) (any, error) {
	return nil, innerErrorf("a derived value cannot be traced from the frame")
}

func (t *DummyTracker) String() string { return "derived" }

// derived returns a DummyTracker depending on deps.
func derived(deps ...Variable) Tracker {
	return &DummyTracker{Deps: deps}
}

// attrTracker is the provenance of base.attr: derived when base is.
func attrTracker(base Variable, attr string) Tracker {
	switch t := base.Tracker().(type) {
	case *DummyTracker:
		return derived(base)
	case *ConstTracker:
		if v, err := vm.GetAttr(t.Value, attr); err == nil {
			return &ConstTracker{Value: v}
		}
	}
	return &GetAttrTracker{Obj: base, Attr: attr}
}

// itemTracker is the provenance of container[key]: derived when the
// container is.
func itemTracker(container Variable, key any) Tracker {
	switch t := container.Tracker().(type) {
	case *DummyTracker:
		return derived(container)
	case *ConstTracker:
		if v, err := vm.GetItem(t.Value, key); err == nil {
			return &ConstTracker{Value: v}
		}
	}
	return &GetItemTracker{Container: container, Key: key}
}
