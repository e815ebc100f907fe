package symbolic

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chazu/symtrace/vm"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("symtrace.symbolic")

// ---------------------------------------------------------------------------
// Artifact: an executable IR
// ---------------------------------------------------------------------------

// Artifact runs the statements of a compiled IR. It is called with one
// tuple holding the IR inputs in declared order and returns a tuple holding
// the outputs in declared order.
type Artifact struct {
	IR *StatementIR

	calls atomic.Uint64
}

// Compile checks an IR and returns an artifact for it.
func Compile(ir *StatementIR) (*Artifact, error) {
	if err := ir.Validate(); err != nil {
		return nil, err
	}
	for i, stmt := range ir.Statements {
		if len(stmt.Outputs) == 0 {
			return nil, fmt.Errorf("symbolic: %s: statement %d has no outputs", ir.Name, i)
		}
		switch stmt.Kind {
		case StatementAPI:
			if _, ok := vm.LookupAPI(stmt.Name); !ok {
				return nil, fmt.Errorf("symbolic: %s: unknown operation %s", ir.Name, stmt.Name)
			}
		case StatementMethod:
			if _, ok := vm.TensorMethods[stmt.Name]; !ok {
				return nil, fmt.Errorf("symbolic: %s: unknown tensor method %s", ir.Name, stmt.Name)
			}
			if len(stmt.Inputs) == 0 {
				return nil, fmt.Errorf("symbolic: %s: method %s has no receiver", ir.Name, stmt.Name)
			}
		case StatementCall:
			if stmt.Layer == nil {
				return nil, fmt.Errorf("symbolic: %s: call %s has no layer", ir.Name, stmt.Name)
			}
			if len(stmt.Inputs) != 1 {
				return nil, fmt.Errorf("symbolic: %s: call %s takes one input", ir.Name, stmt.Name)
			}
		default:
			return nil, fmt.Errorf("symbolic: %s: unknown statement kind %q", ir.Name, stmt.Kind)
		}
	}
	return &Artifact{IR: ir}, nil
}

// Calls returns how many times the artifact has run.
func (a *Artifact) Calls() uint64 {
	return a.calls.Load()
}

func (a *Artifact) String() string {
	return "<artifact " + a.IR.Name + ">"
}

// Call implements vm.Callable.
func (a *Artifact) Call(_ *vm.Interpreter, args []any, kwargs map[string]any) (any, error) {
	if len(args) != 1 || len(kwargs) != 0 {
		return nil, fmt.Errorf("symbolic: %s expects a single tuple of inputs", a)
	}
	in, ok := args[0].(*vm.Tuple)
	if !ok || len(in.Items) != len(a.IR.Inputs) {
		return nil, fmt.Errorf("symbolic: %s expects %d inputs", a, len(a.IR.Inputs))
	}
	a.calls.Add(1)

	env := make(map[Symbol]any, len(a.IR.Inputs)+len(a.IR.Statements))
	for i, sym := range a.IR.Inputs {
		env[sym] = in.Items[i]
	}
	for _, stmt := range a.IR.Statements {
		if err := run(stmt, env); err != nil {
			return nil, err
		}
	}

	out := make([]any, len(a.IR.Outputs))
	for i, sym := range a.IR.Outputs {
		out[i] = env[sym]
	}
	return vm.NewTuple(out...), nil
}

func run(stmt *Statement, env map[Symbol]any) error {
	args := make([]any, len(stmt.Inputs))
	for i, in := range stmt.Inputs {
		args[i] = resolve(in, env)
	}
	var kwargs map[string]any
	if len(stmt.Kwargs) > 0 {
		kwargs = make(map[string]any, len(stmt.Kwargs))
		for k, v := range stmt.Kwargs {
			kwargs[k] = resolve(v, env)
		}
	}

	var (
		result any
		err    error
	)
	switch stmt.Kind {
	case StatementAPI:
		result, err = vm.CallAPI(stmt.Name, args, kwargs)
	case StatementMethod:
		result, err = vm.CallAPI(vm.TensorMethods[stmt.Name], args, kwargs)
	case StatementCall:
		result, err = stmt.Layer.Forward(args[0])
	}
	if err != nil {
		return err
	}

	if len(stmt.Outputs) == 1 {
		env[stmt.Outputs[0]] = result
		return nil
	}
	tuple, ok := result.(*vm.Tuple)
	if !ok || len(tuple.Items) != len(stmt.Outputs) {
		return fmt.Errorf("symbolic: %s produced %s, want %d outputs", stmt.Name, vm.TypeName(result), len(stmt.Outputs))
	}
	for i, sym := range stmt.Outputs {
		env[sym] = tuple.Items[i]
	}
	return nil
}

func resolve(o Operand, env map[Symbol]any) any {
	switch o.Kind {
	case OperandSymbol:
		return env[o.Sym]
	case OperandBool:
		return o.Bool
	case OperandInt:
		return o.Int
	case OperandFloat:
		return o.Float
	case OperandString:
		return o.Str
	case OperandList, OperandTuple:
		items := make([]any, len(o.Items))
		for i, item := range o.Items {
			items[i] = resolve(item, env)
		}
		if o.Kind == OperandList {
			return vm.NewList(items...)
		}
		return vm.NewTuple(items...)
	}
	return nil
}

// ---------------------------------------------------------------------------
// CompileCache: artifacts memoized by IR content
// ---------------------------------------------------------------------------

type compiled struct {
	key      []byte
	artifact *Artifact
}

// CompileCache memoizes Compile by the content of the IR, ignoring its name.
type CompileCache struct {
	mu      sync.Mutex
	entries map[uint64][]compiled
	hits    int
	misses  int
}

// NewCompileCache returns an empty cache.
func NewCompileCache() *CompileCache {
	return &CompileCache{entries: make(map[uint64][]compiled)}
}

var defaultCompileCache = NewCompileCache()

// CompileCached compiles ir through the process-wide cache.
func CompileCached(ir *StatementIR) (*Artifact, error) {
	return defaultCompileCache.Compile(ir)
}

// ClearCompileCache empties the process-wide cache.
func ClearCompileCache() {
	defaultCompileCache.Clear()
}

// CompileCacheStats returns the hit and miss counts of the process-wide cache.
func CompileCacheStats() (hits, misses int) {
	return defaultCompileCache.Stats()
}

// Compile returns the cached artifact for an IR with the same content, or
// compiles and caches ir.
func (c *CompileCache) Compile(ir *StatementIR) (*Artifact, error) {
	key, hash, err := ContentKey(ir)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries[hash] {
		if bytes.Equal(e.key, key) {
			c.hits++
			return e.artifact, nil
		}
	}
	c.misses++
	art, err := Compile(ir)
	if err != nil {
		return nil, err
	}
	c.entries[hash] = append(c.entries[hash], compiled{key: key, artifact: art})
	log.Debugf("compiled %s (%d statements, key %016x)", ir.Name, len(ir.Statements), hash)
	return art, nil
}

// Clear drops every cached artifact.
func (c *CompileCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64][]compiled)
	c.hits, c.misses = 0, 0
}

// Stats returns the hit and miss counts.
func (c *CompileCache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of cached artifacts.
func (c *CompileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, bucket := range c.entries {
		n += len(bucket)
	}
	return n
}
