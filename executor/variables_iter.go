package executor

import (
	"fmt"

	"github.com/chazu/symtrace/pkg/bytecode"
	"github.com/chazu/symtrace/pkg/meta"
	"github.com/chazu/symtrace/vm"
)

// IterVariable is the traced state of a for loop. FOR_ITER advances it
// eagerly, so the loop is unrolled into the trace.
type IterVariable interface {
	Variable
	Next() (Variable, bool, error)
}

type iterBase struct {
	base
	pos int
}

func (v *iterBase) Kind() Kind { return KindIterator }

func (v *iterBase) advance() {
	v.pos++
	v.graph.recordMutation(func() { v.pos-- })
}

func (v *iterBase) Reconstruct(*bytecode.CodeGen) error {
	return unsupportedf("iterator in the middle of a loop cannot be rebuilt")
}

// SequenceIterVariable walks a list, a tuple, a range or a string. A list
// is read live so appends made inside the loop are seen. Range items are
// computed one step at a time.
type SequenceIterVariable struct {
	iterBase
	seq    *ListVariable
	rng    *vm.Range
	values []any
	source Variable
}

func newSequenceIter(source Variable, g *FunctionGraph) (*SequenceIterVariable, error) {
	it := &SequenceIterVariable{iterBase: iterBase{base: newBase(g, derived(source))}, source: source}
	switch s := source.(type) {
	case *ListVariable:
		it.seq = s
	case *ConstantVariable:
		switch c := s.value.(type) {
		case *vm.Range:
			it.rng = c
		case string:
			for _, r := range c {
				it.values = append(it.values, string(r))
			}
		default:
			return nil, vm.NewHostError(vm.TypeError, "'%s' object is not iterable", vm.TypeName(s.value))
		}
	default:
		return nil, innerErrorf("sequence iterator over %s", source)
	}
	return it, nil
}

func (v *SequenceIterVariable) Next() (Variable, bool, error) {
	if v.seq != nil {
		if v.pos >= v.seq.Len() {
			return nil, false, nil
		}
		item, err := v.seq.GetItem(int64(v.pos))
		if err != nil {
			return nil, false, err
		}
		v.advance()
		return item, true, nil
	}
	if v.rng != nil {
		if int64(v.pos) >= v.rng.Len() {
			return nil, false, nil
		}
		item := NewConstant(v.rng.At(int64(v.pos)), v.graph, derived(v.source))
		v.advance()
		return item, true, nil
	}
	if v.pos >= len(v.values) {
		return nil, false, nil
	}
	item := NewConstant(v.values[v.pos], v.graph, derived(v.source))
	v.advance()
	return item, true, nil
}

func (v *SequenceIterVariable) String() string {
	return fmt.Sprintf("SequenceIterVariable(%s at %d)", v.source, v.pos)
}

// DictIterVariable walks the keys of a dict as they were when the loop
// started.
type DictIterVariable struct {
	iterBase
	dict *DictVariable
	keys []any
}

func newDictIter(d *DictVariable, g *FunctionGraph) *DictIterVariable {
	return &DictIterVariable{
		iterBase: iterBase{base: newBase(g, derived(d))},
		dict:     d,
		keys:     d.Keys(),
	}
}

func (v *DictIterVariable) Next() (Variable, bool, error) {
	if v.dict.Len() != len(v.keys) {
		return nil, false, vm.NewHostError(vm.ValueError, "dictionary changed size during iteration")
	}
	if v.pos >= len(v.keys) {
		return nil, false, nil
	}
	key, err := Wrap(v.keys[v.pos], v.graph, derived(v.dict))
	if err != nil {
		return nil, false, err
	}
	v.advance()
	return key, true, nil
}

func (v *DictIterVariable) String() string {
	return fmt.Sprintf("DictIterVariable(%s at %d)", v.dict, v.pos)
}

// TensorIterVariable walks the leading dimension of a tensor, recording a
// getitem statement per step.
type TensorIterVariable struct {
	iterBase
	tensor *TensorVariable
}

func newTensorIter(t *TensorVariable, g *FunctionGraph) (*TensorIterVariable, error) {
	m := t.Meta()
	if m.Rank() == 0 {
		return nil, vm.NewHostError(vm.TypeError, "iteration over a 0-d tensor")
	}
	if m.Shape[0] == meta.Dynamic {
		return nil, unsupportedf("iteration over a tensor with dynamic leading dimension")
	}
	return &TensorIterVariable{iterBase: iterBase{base: newBase(g, derived(t))}, tensor: t}, nil
}

func (v *TensorIterVariable) Next() (Variable, bool, error) {
	if v.pos >= v.tensor.Meta().Shape[0] {
		return nil, false, nil
	}
	index := NewConstant(int64(v.pos), v.graph, &ConstTracker{Value: int64(v.pos)})
	item, err := v.graph.RecordAPI("getitem", []Variable{v.tensor, index}, nil)
	if err != nil {
		return nil, false, err
	}
	v.advance()
	return item, true, nil
}

func (v *TensorIterVariable) String() string {
	return fmt.Sprintf("TensorIterVariable(%s at %d)", v.tensor, v.pos)
}

// UserDefinedIterVariable is an iterator the tracer cannot simulate.
type UserDefinedIterVariable struct {
	iterBase
	value vm.Iterator
}

func (v *UserDefinedIterVariable) Next() (Variable, bool, error) {
	return nil, false, unsupportedf("iteration over %s", vm.TypeName(v.value))
}

func (v *UserDefinedIterVariable) MakeCheck() (Check, string) {
	want := v.value
	return func(got any) bool {
		return vm.Identical(got, want)
	}, "is iterator " + vm.TypeName(want)
}

func (v *UserDefinedIterVariable) String() string {
	return fmt.Sprintf("UserDefinedIterVariable(%s, %s)", vm.TypeName(v.value), v.tracker)
}

// getIter returns an iterator over v, as GET_ITER does.
func getIter(v Variable, g *FunctionGraph) (IterVariable, error) {
	switch x := v.(type) {
	case IterVariable:
		return x, nil
	case *ListVariable:
		return newSequenceIter(x, g)
	case *ConstantVariable:
		return newSequenceIter(x, g)
	case *DictVariable:
		return newDictIter(x, g), nil
	case *TensorVariable:
		return newTensorIter(x, g)
	}
	return nil, unsupportedf("iteration over %s", v)
}
