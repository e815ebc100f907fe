package executor

import (
	"fmt"

	"github.com/chazu/symtrace/pkg/bytecode"
	"github.com/chazu/symtrace/pkg/meta"
	"github.com/chazu/symtrace/vm"
)

// TensorVariable is a tensor known only by its MetaInfo. Tensors read from
// the frame are graph inputs; tensors computed during tracing are outputs of
// recorded statements and are always derived.
type TensorVariable struct {
	base
	meta meta.MetaInfo
}

// NewTensorVariable wraps a tensor description.
func NewTensorVariable(m meta.MetaInfo, g *FunctionGraph, t Tracker) *TensorVariable {
	return &TensorVariable{base: newBase(g, t), meta: m}
}

// Meta returns the tensor description.
func (v *TensorVariable) Meta() meta.MetaInfo {
	return v.meta
}

func (v *TensorVariable) Kind() Kind { return KindTensor }

// MetaAttr returns a metadata attribute such as shape or dtype as a
// constant. The attribute is guarded only if the tensor itself is.
func (v *TensorVariable) MetaAttr(name string) (Variable, bool, error) {
	value, ok := vm.TensorMetaAttr(&vm.Tensor{Meta: v.meta}, name)
	if !ok {
		return nil, false, nil
	}
	attr, err := Wrap(value, v.graph, derived(v))
	return attr, true, err
}

func (v *TensorVariable) MakeCheck() (Check, string) {
	want := v.meta.Clone()
	return func(got any) bool {
		t, ok := got.(*vm.Tensor)
		return ok && t.Meta.Equal(want)
	}, "is tensor " + want.String()
}

func (v *TensorVariable) Reconstruct(cg *bytecode.CodeGen) error {
	if !IsDerived(v.tracker) {
		return v.tracker.GenInstructions(cg)
	}
	sym, ok := v.graph.symbols[v.id]
	if !ok {
		return innerErrorf("%s has no symbol", v)
	}
	cg.GenLoadFast(OutName(sym))
	return nil
}

func (v *TensorVariable) String() string {
	return fmt.Sprintf("TensorVariable(%s, %s)", v.meta, v.tracker)
}
