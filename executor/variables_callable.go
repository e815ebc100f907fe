package executor

import (
	"fmt"

	"github.com/chazu/symtrace/pkg/bytecode"
	"github.com/chazu/symtrace/symbolic"
	"github.com/chazu/symtrace/vm"
)

// ---------------------------------------------------------------------------
// FunctionVariable: user functions, inlined when called
// ---------------------------------------------------------------------------

// FunctionVariable is a user function. A function read from the frame keeps
// its runtime value so its closure and globals can be traced; a function
// made during tracing by MAKE_FUNCTION carries traced defaults and shares
// its cells with the code that made it.
type FunctionVariable struct {
	base
	fn       *vm.Function
	code     *bytecode.Code
	defaults []Variable
	closure  []*CellVariable
	globals  func(name string) (Variable, error)
}

func newFunctionVariable(fn *vm.Function, g *FunctionGraph, t Tracker) *FunctionVariable {
	return &FunctionVariable{base: newBase(g, t), fn: fn, code: fn.Code}
}

func newMadeFunction(code *bytecode.Code, defaults []Variable, closure []*CellVariable, globals func(string) (Variable, error), g *FunctionGraph, deps []Variable) *FunctionVariable {
	return &FunctionVariable{
		base:     newBase(g, derived(deps...)),
		code:     code,
		defaults: defaults,
		closure:  closure,
		globals:  globals,
	}
}

func (v *FunctionVariable) Kind() Kind { return KindFunction }

// Name returns the function name.
func (v *FunctionVariable) Name() string {
	if v.fn != nil {
		return v.fn.Name
	}
	return v.code.Name
}

// Code returns the function's code object.
func (v *FunctionVariable) Code() *bytecode.Code {
	return v.code
}

// Made reports whether the function was created during tracing.
func (v *FunctionVariable) Made() bool {
	return v.fn == nil
}

func (v *FunctionVariable) MakeCheck() (Check, string) {
	if v.fn == nil {
		return nil, ""
	}
	want := v.fn
	return func(got any) bool {
		return vm.Identical(got, want)
	}, "is function " + want.Name
}

func (v *FunctionVariable) Reconstruct(cg *bytecode.CodeGen) error {
	if v.fn == nil {
		return unsupportedf("function %s made during tracing cannot be rebuilt", v.code.Name)
	}
	return reconstructTracked(v, cg)
}

func (v *FunctionVariable) String() string {
	return fmt.Sprintf("FunctionVariable(%s, %s)", v.Name(), v.tracker)
}

// ---------------------------------------------------------------------------
// APIVariable, BuiltinVariable, LayerVariable
// ---------------------------------------------------------------------------

// APIVariable is an operation of the T module. Calling it records a
// statement.
type APIVariable struct {
	base
	api *vm.API
}

func (v *APIVariable) Kind() Kind { return KindAPI }

// Name returns the operation name.
func (v *APIVariable) Name() string { return v.api.Name }

func (v *APIVariable) MakeCheck() (Check, string) {
	want := v.api
	return func(got any) bool {
		return vm.Identical(got, want)
	}, "is api " + want.Name
}

func (v *APIVariable) Reconstruct(cg *bytecode.CodeGen) error {
	return reconstructTracked(v, cg)
}

func (v *APIVariable) String() string {
	return fmt.Sprintf("APIVariable(%s, %s)", v.api.Name, v.tracker)
}

// BuiltinVariable is a builtin function. Calls dispatch on its name.
type BuiltinVariable struct {
	base
	builtin *vm.Builtin
}

func (v *BuiltinVariable) Kind() Kind { return KindBuiltin }

// Name returns the builtin name.
func (v *BuiltinVariable) Name() string { return v.builtin.Name }

func (v *BuiltinVariable) MakeCheck() (Check, string) {
	want := v.builtin
	return func(got any) bool {
		return vm.Identical(got, want)
	}, "is builtin " + want.Name
}

func (v *BuiltinVariable) Reconstruct(cg *bytecode.CodeGen) error {
	return reconstructTracked(v, cg)
}

func (v *BuiltinVariable) String() string {
	return fmt.Sprintf("BuiltinVariable(%s, %s)", v.builtin.Name, v.tracker)
}

// LayerVariable is a layer. Calling it records a call statement; its
// parameters are part of the layer and are checked by the guard.
type LayerVariable struct {
	base
	layer *vm.Layer
}

func (v *LayerVariable) Kind() Kind { return KindLayer }

// Layer returns the wrapped layer.
func (v *LayerVariable) Layer() *vm.Layer { return v.layer }

func (v *LayerVariable) MakeCheck() (Check, string) {
	want := v.layer
	weight, bias := want.Weight.Meta.Clone(), want.Bias.Meta.Clone()
	return func(got any) bool {
		l, ok := got.(*vm.Layer)
		return ok && l == want && l.Weight.Meta.Equal(weight) && l.Bias.Meta.Equal(bias)
	}, fmt.Sprintf("is layer %s with weight %s", symbolic.LayerName(want), weight)
}

func (v *LayerVariable) Reconstruct(cg *bytecode.CodeGen) error {
	return reconstructTracked(v, cg)
}

func (v *LayerVariable) String() string {
	return fmt.Sprintf("LayerVariable(%s, %s)", symbolic.LayerName(v.layer), v.tracker)
}

// ---------------------------------------------------------------------------
// MethodVariable
// ---------------------------------------------------------------------------

// MethodVariable is a method bound to a traced receiver. Calls dispatch on
// "<type>.<name>" with the receiver as first argument.
type MethodVariable struct {
	base
	self Variable
	name string
}

func newMethodVariable(self Variable, name string, g *FunctionGraph, t Tracker) *MethodVariable {
	return &MethodVariable{base: newBase(g, t), self: self, name: name}
}

func (v *MethodVariable) Kind() Kind { return KindMethod }

// Self returns the receiver.
func (v *MethodVariable) Self() Variable { return v.self }

// Name returns the method name.
func (v *MethodVariable) Name() string { return v.name }

func (v *MethodVariable) MakeCheck() (Check, string) {
	name := v.name
	return func(got any) bool {
		m, ok := got.(*vm.BoundMethod)
		return ok && m.Name == name
	}, "is method " + name
}

func (v *MethodVariable) Reconstruct(cg *bytecode.CodeGen) error {
	if err := v.self.Reconstruct(cg); err != nil {
		return err
	}
	cg.GenLoadAttr(v.name)
	return nil
}

func (v *MethodVariable) String() string {
	return fmt.Sprintf("MethodVariable(%s.%s)", v.self, v.name)
}

// methodOp is the dispatcher operation name of a method call.
func methodOp(self Variable, name string) string {
	switch self.Kind() {
	case KindList:
		return "list." + name
	case KindTuple:
		return "tuple." + name
	case KindDict:
		return "dict." + name
	case KindTensor:
		return "tensor." + name
	case KindLayer:
		return "layer." + name
	}
	return "object." + name
}
