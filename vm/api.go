package vm

import (
	"errors"
	"sort"
	"sync"

	"github.com/chazu/symtrace/pkg/meta"
)

// API is a tensor operation of the T module. The tracer records calls to
// APIs as graph statements instead of running them.
type API struct {
	Name string
	Fn   func(args []any, kwargs map[string]any) (any, error)
}

func (a *API) Call(_ *Interpreter, args []any, kwargs map[string]any) (any, error) {
	return a.Fn(args, kwargs)
}

func (a *API) String() string {
	return "<api T." + a.Name + ">"
}

var (
	apiMu sync.RWMutex
	apis  = make(map[string]*API)
)

// RegisterAPI adds a tensor operation to the T module.
func RegisterAPI(name string, fn func(args []any, kwargs map[string]any) (any, error)) *API {
	apiMu.Lock()
	defer apiMu.Unlock()
	a := &API{Name: name, Fn: fn}
	apis[name] = a
	return a
}

// LookupAPI returns the operation with the given name.
func LookupAPI(name string) (*API, bool) {
	apiMu.RLock()
	defer apiMu.RUnlock()
	a, ok := apis[name]
	return a, ok
}

// CallAPI runs a tensor operation by name.
func CallAPI(name string, args []any, kwargs map[string]any) (any, error) {
	a, ok := LookupAPI(name)
	if !ok {
		return nil, NewHostError(AttributeError, "module 'T' has no attribute '%s'", name)
	}
	return a.Fn(args, kwargs)
}

// TModule returns a module exposing every registered operation.
func TModule() *Module {
	apiMu.RLock()
	defer apiMu.RUnlock()
	attrs := make(map[string]any, len(apis))
	for name, a := range apis {
		attrs[name] = a
	}
	return &Module{Name: "T", Attrs: attrs}
}

// APINames returns the registered operation names in sorted order.
func APINames() []string {
	apiMu.RLock()
	defer apiMu.RUnlock()
	names := make([]string, 0, len(apis))
	for name := range apis {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TensorMethods maps tensor method names to the operation they invoke with
// the receiver as first argument.
var TensorMethods = map[string]string{
	"sum":       "sum",
	"mean":      "mean",
	"max":       "max",
	"min":       "min",
	"reshape":   "reshape",
	"transpose": "transpose",
	"exp":       "exp",
	"log":       "log",
	"sqrt":      "sqrt",
	"relu":      "relu",
	"tanh":      "tanh",
	"sigmoid":   "sigmoid",
	"abs":       "abs",
	"neg":       "neg",
	"clone":     "clone",
	"astype":    "cast",
	"cast":      "cast",
	"matmul":    "matmul",
}

// BinaryOpNames maps operator symbols used by the interpreter to operation names.
var BinaryOpNames = map[string]string{
	"+":  "add",
	"-":  "subtract",
	"*":  "multiply",
	"/":  "divide",
	"//": "floor_divide",
	"%":  "remainder",
	"**": "pow",
	"@":  "matmul",
	"==": "equal",
	"!=": "not_equal",
	"<":  "less",
	"<=": "less_equal",
	">":  "greater",
	">=": "greater_equal",
}

// MetaArg converts a runtime operand into the form meta inference expects.
func MetaArg(v any) any {
	switch x := v.(type) {
	case *Tensor:
		return x.Meta
	case *List:
		return metaItems(x.Items)
	case *Tuple:
		return metaItems(x.Items)
	}
	return v
}

func metaItems(items []any) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = MetaArg(item)
	}
	return out
}

// MetaArgs converts positional and keyword operands for meta inference.
func MetaArgs(args []any, kwargs map[string]any) ([]any, map[string]any) {
	margs := metaItems(args)
	var mkw map[string]any
	if len(kwargs) > 0 {
		mkw = make(map[string]any, len(kwargs))
		for k, v := range kwargs {
			mkw[k] = MetaArg(v)
		}
	}
	return margs, mkw
}

// InferMeta runs meta inference for a named operation, reporting bad
// operands as host errors.
func InferMeta(name string, args []any, kwargs map[string]any) (meta.MetaInfo, error) {
	margs, mkw := MetaArgs(args, kwargs)
	return InferMetaOf(name, margs, mkw)
}

// InferMetaOf is InferMeta for operands that are already in meta form.
func InferMetaOf(name string, args []any, kwargs map[string]any) (meta.MetaInfo, error) {
	m, err := meta.Infer(name, args, kwargs)
	if err != nil {
		var ie *meta.InferError
		if errors.As(err, &ie) {
			return meta.MetaInfo{}, NewHostError(ValueError, "%s", ie.Error())
		}
		return meta.MetaInfo{}, err
	}
	return m, nil
}
