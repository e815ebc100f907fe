package executor

import (
	"sync"
)

// Pattern describes the operands a handler accepts: one kind mask per
// positional slot and one per keyword.
type Pattern struct {
	Args   []Kind
	Kwargs map[string]Kind
}

// Args is shorthand for a positional-only pattern.
func Args(kinds ...Kind) Pattern {
	return Pattern{Args: kinds}
}

// Match reports whether the operands fit the pattern.
func (p Pattern) Match(args []Variable, kwargs map[string]Variable) bool {
	if len(args) != len(p.Args) || len(kwargs) > len(p.Kwargs) {
		return false
	}
	for i, a := range args {
		if a.Kind()&p.Args[i] == 0 {
			return false
		}
	}
	for name, v := range kwargs {
		k, ok := p.Kwargs[name]
		if !ok || v.Kind()&k == 0 {
			return false
		}
	}
	return true
}

// Handler implements an operation on traced operands.
type Handler func(g *FunctionGraph, args []Variable, kwargs map[string]Variable) (Variable, error)

type rule struct {
	pattern Pattern
	handler Handler
}

// Dispatcher maps operation names to handlers selected by operand kinds.
type Dispatcher struct {
	mu    sync.RWMutex
	rules map[string][]rule
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{rules: make(map[string][]rule)}
}

// Register adds a handler for op. Handlers are tried in registration order.
func (d *Dispatcher) Register(op string, p Pattern, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rules[op] = append(d.rules[op], rule{pattern: p, handler: h})
}

// Dispatch returns the first handler for op whose pattern matches, or nil.
func (d *Dispatcher) Dispatch(op string, args []Variable, kwargs map[string]Variable) Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.rules[op] {
		if r.pattern.Match(args, kwargs) {
			return r.handler
		}
	}
	return nil
}

// Has reports whether any handler is registered for op.
func (d *Dispatcher) Has(op string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rules[op]) > 0
}

var defaultDispatcher = newDefaultDispatcher()

func newDefaultDispatcher() *Dispatcher {
	d := NewDispatcher()
	registerRules(d)
	return d
}

// DefaultDispatcher returns the process-wide dispatcher the executors use.
func DefaultDispatcher() *Dispatcher {
	return defaultDispatcher
}

// ResetDispatcher restores the default dispatcher to the built-in rules,
// dropping anything registered since.
func ResetDispatcher() {
	fresh := newDefaultDispatcher()
	defaultDispatcher.mu.Lock()
	defaultDispatcher.rules = fresh.rules
	defaultDispatcher.mu.Unlock()
}

// dispatch runs op on the default dispatcher, treating a missing handler as
// an unsupported construct.
func dispatch(g *FunctionGraph, op string, args []Variable, kwargs map[string]Variable) (Variable, error) {
	h := defaultDispatcher.Dispatch(op, args, kwargs)
	if h == nil {
		return nil, unsupportedf("no handler for %s%s", op, describeOperands(args))
	}
	return h(g, args, kwargs)
}

func describeOperands(args []Variable) string {
	s := "("
	for i, a := range args {
		if i > 0 {
			s += ", "
		}
		s += a.Kind().String()
	}
	return s + ")"
}

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "str"
	case KindRange:
		return "range"
	case KindList:
		return "list"
	case KindTuple:
		return "tuple"
	case KindDict:
		return "dict"
	case KindTensor:
		return "tensor"
	case KindFunction:
		return "function"
	case KindAPI:
		return "api"
	case KindBuiltin:
		return "builtin"
	case KindMethod:
		return "method"
	case KindLayer:
		return "layer"
	case KindIterator:
		return "iterator"
	case KindModule:
		return "module"
	case KindObject:
		return "object"
	case KindCell:
		return "cell"
	}
	return "kind"
}
