package executor

import (
	"sync"

	"github.com/chazu/symtrace/vm"
)

// Factory wraps a runtime value into a variable, or reports that the value
// is not of its category.
type Factory func(value any, g *FunctionGraph, t Tracker) (Variable, bool, error)

type namedFactory struct {
	name string
	fn   Factory
}

var (
	factoryMu sync.RWMutex
	factories []namedFactory
)

// RegisterFactory appends a factory to the chain Wrap consults. Factories
// run in registration order.
func RegisterFactory(name string, fn Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories = append(factories, namedFactory{name: name, fn: fn})
}

// Wrap turns a runtime value with provenance t into a variable. Values no
// factory claims become opaque objects.
func Wrap(value any, g *FunctionGraph, t Tracker) (Variable, error) {
	if v, ok := value.(Variable); ok {
		return nil, innerErrorf("%s wrapped twice", v)
	}
	if t == nil {
		return nil, innerErrorf("%s wrapped without a tracker", vm.TypeName(value))
	}
	factoryMu.RLock()
	chain := factories
	factoryMu.RUnlock()
	for _, f := range chain {
		v, ok, err := f.fn(value, g, t)
		if err != nil {
			return nil, err
		}
		if ok {
			return v, nil
		}
	}
	return NewObject(value, g, t), nil
}

func init() {
	RegisterFactory("constant", func(value any, g *FunctionGraph, t Tracker) (Variable, bool, error) {
		switch x := value.(type) {
		case nil, bool, int64, float64, string, *vm.Range:
			return NewConstant(x, g, t), true, nil
		case int:
			return NewConstant(int64(x), g, t), true, nil
		}
		return nil, false, nil
	})
	RegisterFactory("sequence", func(value any, g *FunctionGraph, t Tracker) (Variable, bool, error) {
		switch x := value.(type) {
		case *vm.List:
			return newListFromRaw(x.Items, false, g, t), true, nil
		case *vm.Tuple:
			return newListFromRaw(x.Items, true, g, t), true, nil
		}
		return nil, false, nil
	})
	RegisterFactory("dict", func(value any, g *FunctionGraph, t Tracker) (Variable, bool, error) {
		if d, ok := value.(*vm.Dict); ok {
			return newDictFromRaw(d, g, t), true, nil
		}
		return nil, false, nil
	})
	RegisterFactory("tensor", func(value any, g *FunctionGraph, t Tracker) (Variable, bool, error) {
		if x, ok := value.(*vm.Tensor); ok {
			return NewTensorVariable(x.Meta.Clone(), g, t), true, nil
		}
		return nil, false, nil
	})
	RegisterFactory("function", func(value any, g *FunctionGraph, t Tracker) (Variable, bool, error) {
		if fn, ok := value.(*vm.Function); ok {
			return newFunctionVariable(fn, g, t), true, nil
		}
		return nil, false, nil
	})
	RegisterFactory("callable", func(value any, g *FunctionGraph, t Tracker) (Variable, bool, error) {
		switch x := value.(type) {
		case *vm.API:
			return &APIVariable{base: newBase(g, t), api: x}, true, nil
		case *vm.Builtin:
			return &BuiltinVariable{base: newBase(g, t), builtin: x}, true, nil
		case *vm.Layer:
			return &LayerVariable{base: newBase(g, t), layer: x}, true, nil
		}
		return nil, false, nil
	})
	RegisterFactory("method", func(value any, g *FunctionGraph, t Tracker) (Variable, bool, error) {
		m, ok := value.(*vm.BoundMethod)
		if !ok {
			return nil, false, nil
		}
		mv := newMethodVariable(nil, m.Name, g, t)
		self, err := Wrap(m.Self, g, attrTracker(mv, "__self__"))
		if err != nil {
			return nil, false, err
		}
		mv.self = self
		g.AddGlobalGuardedVariable(self)
		return mv, true, nil
	})
	RegisterFactory("iterator", func(value any, g *FunctionGraph, t Tracker) (Variable, bool, error) {
		if it, ok := value.(vm.Iterator); ok {
			return &UserDefinedIterVariable{iterBase: iterBase{base: newBase(g, t)}, value: it}, true, nil
		}
		return nil, false, nil
	})
}
