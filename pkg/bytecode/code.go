package bytecode

import (
	"fmt"
	"slices"
)

// ---------------------------------------------------------------------------
// Instruction and Code: the decoded instruction stream
// ---------------------------------------------------------------------------

// Instruction is one decoded instruction record.
type Instruction struct {
	Op     Opcode
	Arg    int // raw argument: const index, count, flags
	ArgVal any // resolved argument: name, constant value, comparison operator
	JumpTo int // target instruction index for jumps, -1 otherwise
	Line   int // source line in the assembly, 0 if unknown
}

// Name returns ArgVal as a string for name-carrying instructions.
func (in Instruction) Name() string {
	s, _ := in.ArgVal.(string)
	return s
}

func (in Instruction) String() string {
	info := GetOpcodeInfo(in.Op)
	switch info.Operand {
	case OperandNone:
		return info.Name
	case OperandJump:
		return fmt.Sprintf("%s -> %d", info.Name, in.JumpTo)
	case OperandConst:
		return fmt.Sprintf("%s %d (%s)", info.Name, in.Arg, FormatConst(in.ArgVal))
	case OperandName, OperandCompare:
		return fmt.Sprintf("%s %v", info.Name, in.ArgVal)
	default:
		return fmt.Sprintf("%s %d", info.Name, in.Arg)
	}
}

// ConstTuple is a tuple literal in a constant pool.
type ConstTuple []any

// Code is an immutable-after-build unit of instructions, the thing a frame executes.
// The pointer identity of a Code is its cache identity.
type Code struct {
	Name         string
	Filename     string
	ArgNames     []string // positional parameters, in order
	VarNames     []string // every local name, parameters first
	CellVars     []string // locals captured by inner functions
	FreeVars     []string // names captured from an enclosing function
	Consts       []any
	Defaults     []any // default values for the trailing parameters
	Instructions []Instruction
}

// ArgCount returns the number of positional parameters.
func (c *Code) ArgCount() int {
	return len(c.ArgNames)
}

// IndexOf returns the position of target in the instruction list, or -1.
func (c *Code) IndexOf(target *Instruction) int {
	for i := range c.Instructions {
		if &c.Instructions[i] == target {
			return i
		}
	}
	return -1
}

// HasCell reports whether name is a cell or free variable of the code.
func (c *Code) HasCell(name string) bool {
	return slices.Contains(c.CellVars, name) || slices.Contains(c.FreeVars, name)
}

// Uses reports whether any instruction has the given opcode.
func (c *Code) Uses(op Opcode) bool {
	for _, in := range c.Instructions {
		if in.Op == op {
			return true
		}
	}
	return false
}

func (c *Code) String() string {
	return fmt.Sprintf("<code %s>", c.Name)
}

// AddConst appends a constant to the pool and returns its index.
// Comparable constants already in the pool are reused.
func (c *Code) AddConst(value any) int {
	if isComparableConst(value) {
		for i, existing := range c.Consts {
			if isComparableConst(existing) && sameConst(existing, value) {
				return i
			}
		}
	}
	c.Consts = append(c.Consts, value)
	return len(c.Consts) - 1
}

// AddVarName registers a local name and returns whether it was new.
func (c *Code) AddVarName(name string) bool {
	if slices.Contains(c.VarNames, name) {
		return false
	}
	c.VarNames = append(c.VarNames, name)
	return true
}

func isComparableConst(v any) bool {
	switch v.(type) {
	case nil, bool, int64, float64, string:
		return true
	}
	return false
}

func sameConst(a, b any) bool {
	// 1 and 1.0 and true must stay distinct pool entries.
	return fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b) && a == b
}

// FormatConst renders a constant the way the assembler reads it.
func FormatConst(v any) string {
	switch c := v.(type) {
	case nil:
		return "None"
	case bool:
		if c {
			return "True"
		}
		return "False"
	case string:
		return fmt.Sprintf("%q", c)
	case ConstTuple:
		s := "("
		for i, item := range c {
			if i > 0 {
				s += ", "
			}
			s += FormatConst(item)
		}
		if len(c) == 1 {
			s += ","
		}
		return s + ")"
	case *Code:
		return "@" + c.Name
	case fmt.Stringer:
		return c.String()
	default:
		return fmt.Sprintf("%v", c)
	}
}

// ---------------------------------------------------------------------------
// Builder: programmatic construction with labels
// ---------------------------------------------------------------------------

// Builder assembles a Code instruction by instruction. Jumps name labels
// which are resolved by Build.
type Builder struct {
	code   *Code
	labels map[string]int
	fixups map[int]string // instruction index -> label
	line   int
}

// NewBuilder starts a code object with the given name and parameters.
func NewBuilder(name string, args ...string) *Builder {
	c := &Code{
		Name:     name,
		ArgNames: slices.Clone(args),
		VarNames: slices.Clone(args),
	}
	return &Builder{
		code:   c,
		labels: make(map[string]int),
		fixups: make(map[int]string),
	}
}

// Code returns the code under construction.
func (b *Builder) Code() *Code {
	return b.code
}

// SetLine sets the source line recorded on subsequently emitted instructions.
func (b *Builder) SetLine(line int) *Builder {
	b.line = line
	return b
}

// CellVars declares cell variables.
func (b *Builder) CellVars(names ...string) *Builder {
	b.code.CellVars = append(b.code.CellVars, names...)
	return b
}

// FreeVars declares free variables.
func (b *Builder) FreeVars(names ...string) *Builder {
	b.code.FreeVars = append(b.code.FreeVars, names...)
	return b
}

// Defaults sets the default values of the trailing parameters.
func (b *Builder) Defaults(values ...any) *Builder {
	b.code.Defaults = append(b.code.Defaults, values...)
	return b
}

// Label marks the next instruction as the target of name.
func (b *Builder) Label(name string) *Builder {
	b.labels[name] = len(b.code.Instructions)
	return b
}

// Op emits an instruction without a jump. The argument is interpreted by
// the opcode's operand kind: names and comparison operators are strings,
// counts are ints, constants are any value.
func (b *Builder) Op(op Opcode, arg ...any) *Builder {
	in := Instruction{Op: op, JumpTo: -1, Line: b.line}
	var a any
	if len(arg) > 0 {
		a = arg[0]
	}
	switch GetOpcodeInfo(op).Operand {
	case OperandConst:
		in.Arg = b.code.AddConst(a)
		in.ArgVal = b.code.Consts[in.Arg]
	case OperandName:
		name, _ := a.(string)
		in.ArgVal = name
		if op == OpLoadFast || op == OpStoreFast || op == OpDeleteFast {
			b.code.AddVarName(name)
		}
	case OperandCompare:
		in.ArgVal = a
	case OperandCount:
		n, _ := a.(int)
		in.Arg = n
		in.ArgVal = n
	}
	b.code.Instructions = append(b.code.Instructions, in)
	return b
}

// Const is shorthand for LOAD_CONST.
func (b *Builder) Const(v any) *Builder {
	return b.Op(OpLoadConst, v)
}

// Jump emits a jump-carrying instruction targeting label.
func (b *Builder) Jump(op Opcode, label string) *Builder {
	b.fixups[len(b.code.Instructions)] = label
	b.code.Instructions = append(b.code.Instructions, Instruction{Op: op, JumpTo: -1, Line: b.line})
	return b
}

// Build resolves labels and returns the finished code.
func (b *Builder) Build() (*Code, error) {
	for idx, label := range b.fixups {
		target, ok := b.labels[label]
		if !ok {
			return nil, fmt.Errorf("bytecode: %s: undefined label %q", b.code.Name, label)
		}
		b.code.Instructions[idx].JumpTo = target
		b.code.Instructions[idx].Arg = target
		b.code.Instructions[idx].ArgVal = target
	}
	if len(b.code.Defaults) > len(b.code.ArgNames) {
		return nil, fmt.Errorf("bytecode: %s: %d defaults for %d parameters",
			b.code.Name, len(b.code.Defaults), len(b.code.ArgNames))
	}
	return b.code, nil
}

// MustBuild is Build for tests and static tables.
func (b *Builder) MustBuild() *Code {
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}
