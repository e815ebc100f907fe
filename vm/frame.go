package vm

import (
	"fmt"
	"strings"

	"github.com/chazu/symtrace/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Frame: execution state for a function activation
// ---------------------------------------------------------------------------

// Frame is one activation of a function. Code starts out as the function's
// code and may be swapped for a replacement by the frame hook before the
// first instruction runs.
type Frame struct {
	Code     *bytecode.Code
	Function *Function
	Globals  *Dict
	Builtins map[string]any
	Locals   map[string]any
	Cells    map[string]*Cell
	Back     *Frame
}

// OriginalCode returns the code the frame was activated for.
func (f *Frame) OriginalCode() *bytecode.Code {
	if f.Function != nil {
		return f.Function.Code
	}
	return f.Code
}

// LoadGlobal looks a name up in the globals, then in the builtins.
func (f *Frame) LoadGlobal(name string) (any, error) {
	if v, ok := f.Globals.Get(name); ok {
		return v, nil
	}
	if v, ok := f.Builtins[name]; ok {
		return v, nil
	}
	return nil, NewHostError(NameError, "name '%s' is not defined", name)
}

// LoadFast reads a local variable.
func (f *Frame) LoadFast(name string) (any, error) {
	v, ok := f.Locals[name]
	if !ok {
		return nil, NewHostError(UnboundLocalError, "local variable '%s' referenced before assignment", name)
	}
	return v, nil
}

// Cell returns the cell for a cell or free variable.
func (f *Frame) Cell(name string) (*Cell, error) {
	c, ok := f.Cells[name]
	if !ok {
		return nil, NewHostError(NameError, "no cell named '%s'", name)
	}
	return c, nil
}

func (f *Frame) String() string {
	return fmt.Sprintf("<frame %s>", f.OriginalCode().Name)
}

// ---------------------------------------------------------------------------
// Argument binding
// ---------------------------------------------------------------------------

// BindArgs binds positional and keyword arguments to parameter names,
// filling the trailing parameters from defaults. It is generic so that the
// tracer can bind symbolic values with the same rules.
func BindArgs[T any](fnName string, params []string, defaults []T, args []T, kwargs map[string]T) (map[string]T, error) {
	if len(args) > len(params) {
		return nil, typeErrorf("%s() takes %d positional arguments but %d were given", fnName, len(params), len(args))
	}
	bound := make(map[string]T, len(params))
	for i, a := range args {
		bound[params[i]] = a
	}
	for _, name := range sortedKeys(kwargs) {
		known := false
		for _, p := range params {
			if p == name {
				known = true
				break
			}
		}
		if !known {
			return nil, typeErrorf("%s() got an unexpected keyword argument '%s'", fnName, name)
		}
		if _, dup := bound[name]; dup {
			return nil, typeErrorf("%s() got multiple values for argument '%s'", fnName, name)
		}
		bound[name] = kwargs[name]
	}

	firstDefault := len(params) - len(defaults)
	var missing []string
	for i, p := range params {
		if _, ok := bound[p]; ok {
			continue
		}
		if i >= firstDefault {
			bound[p] = defaults[i-firstDefault]
			continue
		}
		missing = append(missing, "'"+p+"'")
	}
	if len(missing) > 0 {
		return nil, typeErrorf("%s() missing %d required positional argument(s): %s", fnName, len(missing), strings.Join(missing, ", "))
	}
	return bound, nil
}

// NewFrame creates an activation of f with bound arguments and cells.
func (in *Interpreter) NewFrame(f *Function, args []any, kwargs map[string]any) (*Frame, error) {
	code := f.Code
	locals, err := BindArgs(f.Name, code.ArgNames, f.Defaults, args, kwargs)
	if err != nil {
		return nil, err
	}
	if len(f.Closure) != len(code.FreeVars) {
		return nil, typeErrorf("%s() requires a closure of %d cells, got %d", f.Name, len(code.FreeVars), len(f.Closure))
	}
	cells := make(map[string]*Cell, len(code.CellVars)+len(code.FreeVars))
	for _, name := range code.CellVars {
		c := &Cell{}
		if v, ok := locals[name]; ok {
			c.Value, c.Set = v, true
		}
		cells[name] = c
	}
	for i, name := range code.FreeVars {
		cells[name] = f.Closure[i]
	}
	return &Frame{
		Code:     code,
		Function: f,
		Globals:  f.Globals,
		Builtins: in.Builtins,
		Locals:   locals,
		Cells:    cells,
		Back:     in.frame,
	}, nil
}
