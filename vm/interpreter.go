package vm

import (
	"io"
	"os"

	"github.com/chazu/symtrace/pkg/bytecode"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("symtrace.vm")

// OpSymbols maps arithmetic opcodes to the operator they apply. In-place
// forms share the symbol of their binary form and never mutate.
var OpSymbols = map[bytecode.Opcode]string{
	bytecode.OpBinaryAdd:         "+",
	bytecode.OpBinarySubtract:    "-",
	bytecode.OpBinaryMultiply:    "*",
	bytecode.OpBinaryTrueDivide:  "/",
	bytecode.OpBinaryFloorDivide: "//",
	bytecode.OpBinaryModulo:      "%",
	bytecode.OpBinaryPower:       "**",
	bytecode.OpBinaryMatrixMul:   "@",
	bytecode.OpInplaceAdd:        "+",
	bytecode.OpInplaceSubtract:   "-",
	bytecode.OpInplaceMultiply:   "*",
	bytecode.OpInplaceTrueDivide: "/",
}

// MethodMarker is pushed under the callable by LOAD_METHOD.
type MethodMarker struct{}

// DefaultMaxDepth bounds nested function activations.
const DefaultMaxDepth = 512

// ---------------------------------------------------------------------------
// Interpreter: instruction execution engine
// ---------------------------------------------------------------------------

// Interpreter executes code objects.
type Interpreter struct {
	Globals  *Dict
	Builtins map[string]any
	Out      io.Writer
	MaxDepth int

	hook  FrameHook
	depth int
	frame *Frame // innermost running frame
}

// NewInterpreter creates an interpreter with empty globals.
func NewInterpreter() *Interpreter {
	return &Interpreter{
		Globals:  NewDict(),
		Builtins: Builtins(),
		Out:      os.Stdout,
		MaxDepth: DefaultMaxDepth,
	}
}

// Load defines the functions and globals of an assembled module.
func (in *Interpreter) Load(m *bytecode.Module) error {
	for _, code := range m.Functions {
		if err := in.Globals.Set(code.Name, NewFunction(code, in.Globals)); err != nil {
			return err
		}
	}
	for _, g := range m.Globals {
		v := FromConst(g.Value)
		if code, ok := v.(*bytecode.Code); ok {
			v = NewFunction(code, in.Globals)
		}
		if err := in.Globals.Set(g.Name, v); err != nil {
			return err
		}
	}
	return nil
}

// Run calls the global function with the given name.
func (in *Interpreter) Run(name string, args ...any) (any, error) {
	fn, err := (&Frame{Globals: in.Globals, Builtins: in.Builtins}).LoadGlobal(name)
	if err != nil {
		return nil, err
	}
	return in.Call(fn, args, nil)
}

// Call invokes any callable value.
func (in *Interpreter) Call(fn any, args []any, kwargs map[string]any) (any, error) {
	c, ok := fn.(Callable)
	if !ok {
		return nil, typeErrorf("'%s' object is not callable", TypeName(fn))
	}
	return c.Call(in, args, kwargs)
}

// CallFunction activates a user function, giving the frame hook a chance
// to substitute its code.
func (in *Interpreter) CallFunction(f *Function, args []any, kwargs map[string]any) (any, error) {
	frame, err := in.NewFrame(f, args, kwargs)
	if err != nil {
		return nil, err
	}
	return in.RunFrame(frame)
}

// RunFrame runs a prepared frame through the hook.
func (in *Interpreter) RunFrame(frame *Frame) (any, error) {
	if in.hook != nil && HookEnabled() {
		replacement, err := in.hook(frame)
		if err != nil {
			return nil, err
		}
		if replacement != nil {
			frame.Code = replacement
		}
	}
	return in.Execute(frame)
}

// Execute runs the frame's current code to completion, without the hook.
func (in *Interpreter) Execute(frame *Frame) (any, error) {
	maxDepth := in.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if in.depth >= maxDepth {
		return nil, NewHostError(RecursionError, "maximum recursion depth exceeded")
	}
	in.depth++
	prev := in.frame
	in.frame = frame
	defer func() {
		in.depth--
		in.frame = prev
	}()

	e := &execution{in: in, frame: frame, code: frame.Code}
	return e.run()
}

// ---------------------------------------------------------------------------
// execution: the instruction loop of one frame
// ---------------------------------------------------------------------------

type execution struct {
	in    *Interpreter
	frame *Frame
	code  *bytecode.Code
	stack []any
	pc    int
}

func (e *execution) push(v any) {
	e.stack = append(e.stack, v)
}

func (e *execution) pop() any {
	v := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return v
}

func (e *execution) popN(n int) []any {
	items := append([]any(nil), e.stack[len(e.stack)-n:]...)
	e.stack = e.stack[:len(e.stack)-n]
	return items
}

func (e *execution) top() any {
	return e.stack[len(e.stack)-1]
}

func (e *execution) run() (any, error) {
	for e.pc < len(e.code.Instructions) {
		inst := e.code.Instructions[e.pc]
		e.pc++
		done, result, err := e.step(inst)
		if err != nil {
			log.Debugf("%s:%d %s: %v", e.code.Name, e.pc-1, inst.Op, err)
			return nil, err
		}
		if done {
			return result, nil
		}
	}
	return nil, nil
}

func (e *execution) step(inst bytecode.Instruction) (done bool, result any, err error) {
	f := e.frame
	switch inst.Op {
	// Stack manipulation
	case bytecode.OpNop:
	case bytecode.OpPopTop:
		e.pop()
	case bytecode.OpRotTwo:
		n := len(e.stack)
		e.stack[n-1], e.stack[n-2] = e.stack[n-2], e.stack[n-1]
	case bytecode.OpRotThree:
		n := len(e.stack)
		e.stack[n-1], e.stack[n-2], e.stack[n-3] = e.stack[n-2], e.stack[n-3], e.stack[n-1]
	case bytecode.OpDupTop:
		e.push(e.top())
	case bytecode.OpDupTopTwo:
		n := len(e.stack)
		e.push(e.stack[n-2])
		e.push(e.stack[n-1])

	// Names and constants
	case bytecode.OpLoadConst:
		e.push(FromConst(inst.ArgVal))
	case bytecode.OpLoadFast:
		v, err := f.LoadFast(inst.Name())
		if err != nil {
			return false, nil, err
		}
		e.push(v)
	case bytecode.OpStoreFast:
		f.Locals[inst.Name()] = e.pop()
	case bytecode.OpDeleteFast:
		if _, ok := f.Locals[inst.Name()]; !ok {
			return false, nil, NewHostError(UnboundLocalError, "local variable '%s' referenced before assignment", inst.Name())
		}
		delete(f.Locals, inst.Name())
	case bytecode.OpLoadGlobal:
		v, err := f.LoadGlobal(inst.Name())
		if err != nil {
			return false, nil, err
		}
		e.push(v)
	case bytecode.OpStoreGlobal:
		if err := f.Globals.Set(inst.Name(), e.pop()); err != nil {
			return false, nil, err
		}
	case bytecode.OpLoadDeref:
		c, err := f.Cell(inst.Name())
		if err != nil {
			return false, nil, err
		}
		v, err := c.Get(inst.Name())
		if err != nil {
			return false, nil, err
		}
		e.push(v)
	case bytecode.OpStoreDeref:
		c, err := f.Cell(inst.Name())
		if err != nil {
			return false, nil, err
		}
		c.Value, c.Set = e.pop(), true
	case bytecode.OpLoadClosure:
		c, err := f.Cell(inst.Name())
		if err != nil {
			return false, nil, err
		}
		e.push(c)

	// Attributes and calls
	case bytecode.OpLoadAttr:
		v, err := GetAttr(e.pop(), inst.Name())
		if err != nil {
			return false, nil, err
		}
		e.push(v)
	case bytecode.OpStoreAttr:
		obj := e.pop()
		if err := SetAttr(obj, inst.Name(), e.pop()); err != nil {
			return false, nil, err
		}
	case bytecode.OpLoadMethod:
		v, err := GetAttr(e.pop(), inst.Name())
		if err != nil {
			return false, nil, err
		}
		e.push(MethodMarker{})
		e.push(v)
	case bytecode.OpCallMethod:
		args := e.popN(inst.Arg)
		fn := e.pop()
		e.pop() // marker
		v, err := e.in.Call(fn, args, nil)
		if err != nil {
			return false, nil, err
		}
		e.push(v)
	case bytecode.OpCallFunction:
		args := e.popN(inst.Arg)
		v, err := e.in.Call(e.pop(), args, nil)
		if err != nil {
			return false, nil, err
		}
		e.push(v)
	case bytecode.OpCallFunctionKw:
		names, ok := e.pop().(*Tuple)
		if !ok {
			return false, nil, typeErrorf("CALL_FUNCTION_KW expects a tuple of names")
		}
		values := e.popN(inst.Arg)
		npos := len(values) - len(names.Items)
		kwargs := make(map[string]any, len(names.Items))
		for i, n := range names.Items {
			kwargs[n.(string)] = values[npos+i]
		}
		v, err := e.in.Call(e.pop(), values[:npos], kwargs)
		if err != nil {
			return false, nil, err
		}
		e.push(v)

	// Operators
	case bytecode.OpBinaryAdd, bytecode.OpBinarySubtract, bytecode.OpBinaryMultiply,
		bytecode.OpBinaryTrueDivide, bytecode.OpBinaryFloorDivide, bytecode.OpBinaryModulo,
		bytecode.OpBinaryPower, bytecode.OpBinaryMatrixMul, bytecode.OpInplaceAdd,
		bytecode.OpInplaceSubtract, bytecode.OpInplaceMultiply, bytecode.OpInplaceTrueDivide:
		b := e.pop()
		a := e.pop()
		v, err := BinaryOp(OpSymbols[inst.Op], a, b)
		if err != nil {
			return false, nil, err
		}
		e.push(v)
	case bytecode.OpBinarySubscr:
		key := e.pop()
		v, err := GetItem(e.pop(), key)
		if err != nil {
			return false, nil, err
		}
		e.push(v)
	case bytecode.OpUnaryNegative:
		v, err := UnaryOp("-", e.pop())
		if err != nil {
			return false, nil, err
		}
		e.push(v)
	case bytecode.OpUnaryNot:
		v, err := UnaryOp("not", e.pop())
		if err != nil {
			return false, nil, err
		}
		e.push(v)
	case bytecode.OpCompareOp:
		b := e.pop()
		a := e.pop()
		v, err := Compare(inst.ArgVal.(string), a, b)
		if err != nil {
			return false, nil, err
		}
		e.push(v)
	case bytecode.OpIsOp:
		b := e.pop()
		a := e.pop()
		e.push(Identical(a, b) != (inst.Arg == 1))
	case bytecode.OpContainsOp:
		container := e.pop()
		item := e.pop()
		ok, err := Contains(container, item)
		if err != nil {
			return false, nil, err
		}
		e.push(ok != (inst.Arg == 1))

	// Containers
	case bytecode.OpBuildList:
		e.push(NewList(e.popN(inst.Arg)...))
	case bytecode.OpBuildTuple:
		e.push(NewTuple(e.popN(inst.Arg)...))
	case bytecode.OpBuildMap:
		items := e.popN(2 * inst.Arg)
		d := NewDict()
		for i := 0; i < len(items); i += 2 {
			if err := d.Set(items[i], items[i+1]); err != nil {
				return false, nil, err
			}
		}
		e.push(d)
	case bytecode.OpBuildConstKeyMap:
		keys, ok := e.pop().(*Tuple)
		if !ok || len(keys.Items) != inst.Arg {
			return false, nil, typeErrorf("BUILD_CONST_KEY_MAP expects a tuple of %d keys", inst.Arg)
		}
		values := e.popN(inst.Arg)
		d := NewDict()
		for i, k := range keys.Items {
			if err := d.Set(k, values[i]); err != nil {
				return false, nil, err
			}
		}
		e.push(d)
	case bytecode.OpStoreSubscr:
		key := e.pop()
		container := e.pop()
		if err := SetItem(container, key, e.pop()); err != nil {
			return false, nil, err
		}
	case bytecode.OpUnpackSequence:
		items, err := Collect(e.in, e.pop())
		if err != nil {
			return false, nil, err
		}
		if err := CheckUnpack(len(items), inst.Arg); err != nil {
			return false, nil, err
		}
		for i := len(items) - 1; i >= 0; i-- {
			e.push(items[i])
		}

	// Iteration and control flow
	case bytecode.OpGetIter:
		it, err := GetIter(e.pop())
		if err != nil {
			return false, nil, err
		}
		e.push(it)
	case bytecode.OpForIter:
		it := e.top().(Iterator)
		v, ok, err := it.Next(e.in)
		if err != nil {
			return false, nil, err
		}
		if ok {
			e.push(v)
		} else {
			e.pop()
			e.pc = inst.JumpTo
		}
	case bytecode.OpJumpAbsolute, bytecode.OpJumpForward:
		e.pc = inst.JumpTo
	case bytecode.OpPopJumpIfFalse, bytecode.OpPopJumpIfTrue:
		t, err := Truthy(e.pop())
		if err != nil {
			return false, nil, err
		}
		if t == (inst.Op == bytecode.OpPopJumpIfTrue) {
			e.pc = inst.JumpTo
		}

	// Functions
	case bytecode.OpMakeFunction:
		code, ok := e.pop().(*bytecode.Code)
		if !ok {
			return false, nil, typeErrorf("MAKE_FUNCTION expects a code object")
		}
		fn := NewFunction(code, f.Globals)
		if inst.Arg&bytecode.MakeFunctionClosure != 0 {
			cells, ok := e.pop().(*Tuple)
			if !ok {
				return false, nil, typeErrorf("MAKE_FUNCTION expects a tuple of cells")
			}
			for _, c := range cells.Items {
				fn.Closure = append(fn.Closure, c.(*Cell))
			}
		}
		if inst.Arg&bytecode.MakeFunctionDefaults != 0 {
			defaults, ok := e.pop().(*Tuple)
			if !ok {
				return false, nil, typeErrorf("MAKE_FUNCTION expects a tuple of defaults")
			}
			fn.Defaults = append([]any(nil), defaults.Items...)
		}
		e.push(fn)
	case bytecode.OpReturnValue:
		return true, e.pop(), nil

	default:
		return false, nil, typeErrorf("unknown opcode %s", inst.Op)
	}
	return false, nil, nil
}

// CheckUnpack reports a ValueError when got values cannot fill want targets.
func CheckUnpack(got, want int) error {
	switch {
	case got < want:
		return NewHostError(ValueError, "not enough values to unpack (expected %d, got %d)", want, got)
	case got > want:
		return NewHostError(ValueError, "too many values to unpack (expected %d)", want)
	}
	return nil
}
