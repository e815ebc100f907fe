package executor

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/chazu/symtrace/pkg/bytecode"
	"github.com/chazu/symtrace/vm"
)

// Kind is the category of a traced value. Kinds are bits so dispatch
// patterns can accept several per operand.
type Kind uint32

const (
	KindNone Kind = 1 << iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindRange
	KindList
	KindTuple
	KindDict
	KindTensor
	KindFunction
	KindAPI
	KindBuiltin
	KindMethod
	KindLayer
	KindIterator
	KindModule
	KindObject
	KindCell
)

const (
	KindNumber    = KindBool | KindInt | KindFloat
	KindConstant  = KindNone | KindNumber | KindString | KindRange
	KindSequence  = KindList | KindTuple
	KindContainer = KindSequence | KindDict
	KindCallable  = KindFunction | KindAPI | KindBuiltin | KindMethod | KindLayer
	KindAny       = ^Kind(0)
)

// Check validates a value traced from a frame against what tracing saw.
type Check func(value any) bool

// Variable is a value on the traced stack or in traced locals.
type Variable interface {
	// ID is unique for the process. It orders variables, nothing more.
	ID() int
	Tracker() Tracker
	Kind() Kind
	Graph() *FunctionGraph
	// MakeCheck returns the guard check for this value and a description,
	// or a nil check when the value needs none.
	MakeCheck() (Check, string)
	// Reconstruct emits instructions that push this value.
	Reconstruct(cg *bytecode.CodeGen) error
	String() string

	setTracker(t Tracker)
}

var variableIDs atomic.Int64

// base carries the fields every variable has.
type base struct {
	id      int
	tracker Tracker
	graph   *FunctionGraph
}

func newBase(g *FunctionGraph, t Tracker) base {
	return base{id: int(variableIDs.Add(1)), tracker: t, graph: g}
}

func (b *base) ID() int               { return b.id }
func (b *base) Tracker() Tracker      { return b.tracker }
func (b *base) Graph() *FunctionGraph { return b.graph }
func (b *base) setTracker(t Tracker)  { b.tracker = t }

func (b *base) MakeCheck() (Check, string) { return nil, "" }

// reconstructTracked regenerates v from its tracker.
func reconstructTracked(v Variable, cg *bytecode.CodeGen) error {
	if IsDerived(v.Tracker()) {
		return unsupportedf("%s cannot be reconstructed", v)
	}
	return v.Tracker().GenInstructions(cg)
}

// ---------------------------------------------------------------------------
// ConstantVariable
// ---------------------------------------------------------------------------

// ConstantVariable is an immutable scalar: None, bool, int, float, str or
// range. Constants are specialized on, so reconstructing one just loads it.
type ConstantVariable struct {
	base
	value any
}

// NewConstant wraps a constant value.
func NewConstant(value any, g *FunctionGraph, t Tracker) *ConstantVariable {
	return &ConstantVariable{base: newBase(g, t), value: value}
}

// Value returns the constant.
func (v *ConstantVariable) Value() any {
	return v.value
}

func (v *ConstantVariable) Kind() Kind {
	switch v.value.(type) {
	case nil:
		return KindNone
	case bool:
		return KindBool
	case int64:
		return KindInt
	case float64:
		return KindFloat
	case string:
		return KindString
	}
	return KindRange
}

func (v *ConstantVariable) MakeCheck() (Check, string) {
	want := v.value
	return func(got any) bool {
		return vm.TypeName(got) == vm.TypeName(want) && sameConstant(got, want)
	}, "== " + vm.Repr(want)
}

// sameConstant is vm.Equal except that NaN matches NaN, so a frame holding
// NaN can reuse the translation made for it.
func sameConstant(a, b any) bool {
	x, ok1 := a.(float64)
	y, ok2 := b.(float64)
	if ok1 && ok2 && math.IsNaN(x) && math.IsNaN(y) {
		return true
	}
	return vm.Equal(a, b)
}

func (v *ConstantVariable) Reconstruct(cg *bytecode.CodeGen) error {
	cg.GenLoadConst(v.value)
	return nil
}

func (v *ConstantVariable) String() string {
	return fmt.Sprintf("ConstantVariable(%s, %s)", vm.Repr(v.value), v.tracker)
}

// constValue returns the value of a constant variable.
func constValue(v Variable) (any, bool) {
	c, ok := v.(*ConstantVariable)
	if !ok {
		return nil, false
	}
	return c.value, true
}

// ---------------------------------------------------------------------------
// ObjectVariable
// ---------------------------------------------------------------------------

// ObjectVariable is a value the tracer does not look inside. Only its
// identity is guarded. Modules are objects whose attributes are plain
// lookups and may be traced through.
type ObjectVariable struct {
	base
	value  any
	module bool
}

// NewObject wraps an opaque value.
func NewObject(value any, g *FunctionGraph, t Tracker) *ObjectVariable {
	_, module := value.(*vm.Module)
	return &ObjectVariable{base: newBase(g, t), value: value, module: module}
}

// Value returns the wrapped object.
func (v *ObjectVariable) Value() any {
	return v.value
}

func (v *ObjectVariable) Kind() Kind {
	if v.module {
		return KindModule
	}
	return KindObject
}

func (v *ObjectVariable) MakeCheck() (Check, string) {
	want := v.value
	return func(got any) bool {
		return vm.Identical(got, want)
	}, "is " + vm.TypeName(want)
}

func (v *ObjectVariable) Reconstruct(cg *bytecode.CodeGen) error {
	return reconstructTracked(v, cg)
}

func (v *ObjectVariable) String() string {
	return fmt.Sprintf("ObjectVariable(%s, %s)", vm.TypeName(v.value), v.tracker)
}

// ---------------------------------------------------------------------------
// CellVariable
// ---------------------------------------------------------------------------

// CellVariable is a closure cell seen by traced code. Cells created for an
// inlined call are owned by the trace and may be written; cells that exist
// in the frame or in a real closure are read-only to the tracer.
type CellVariable struct {
	base
	name    string
	content Variable
	owned   bool
	load    func() (Variable, error)
}

func newOwnedCell(name string, g *FunctionGraph, content Variable) *CellVariable {
	return &CellVariable{base: newBase(g, derived()), name: name, content: content, owned: true}
}

func newExternalCell(name string, g *FunctionGraph, load func() (Variable, error)) *CellVariable {
	return &CellVariable{base: newBase(g, derived()), name: name, load: load}
}

func (v *CellVariable) Kind() Kind { return KindCell }

// Get returns the cell content, loading an external cell on first use.
func (v *CellVariable) Get() (Variable, error) {
	if v.content == nil && v.load != nil {
		content, err := v.load()
		if err != nil {
			return nil, err
		}
		v.content, v.load = content, nil
	}
	if v.content == nil {
		return nil, vm.NewHostError(vm.NameError, "free variable '%s' referenced before assignment in enclosing scope", v.name)
	}
	return v.content, nil
}

// Set writes an owned cell.
func (v *CellVariable) Set(content Variable) error {
	if !v.owned {
		return unsupportedf("write to closure cell %s outside the trace", v.name)
	}
	old := v.content
	v.content = content
	v.graph.recordMutation(func() { v.content = old })
	return nil
}

func (v *CellVariable) Reconstruct(*bytecode.CodeGen) error {
	return unsupportedf("cell %s cannot be reconstructed", v.name)
}

func (v *CellVariable) String() string {
	return fmt.Sprintf("CellVariable(%s)", v.name)
}
