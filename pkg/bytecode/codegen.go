package bytecode

import "slices"

// CodeGen builds a replacement code object for an existing one. The new
// code keeps the signature, cells and defaults of the original so a frame
// activated for the original can run it unchanged.
type CodeGen struct {
	orig *Code
	code *Code
}

// NewCodeGen starts a replacement for orig. The name is used in listings.
func NewCodeGen(orig *Code, name string) *CodeGen {
	return &CodeGen{
		orig: orig,
		code: &Code{
			Name:     name,
			Filename: orig.Filename,
			ArgNames: slices.Clone(orig.ArgNames),
			VarNames: slices.Clone(orig.VarNames),
			CellVars: slices.Clone(orig.CellVars),
			FreeVars: slices.Clone(orig.FreeVars),
			Defaults: slices.Clone(orig.Defaults),
		},
	}
}

// Len returns the number of instructions emitted so far.
func (g *CodeGen) Len() int {
	return len(g.code.Instructions)
}

func (g *CodeGen) emit(in Instruction) {
	if !in.Op.IsJump() {
		in.JumpTo = -1
	}
	g.code.Instructions = append(g.code.Instructions, in)
}

func (g *CodeGen) emitName(op Opcode, name string) {
	g.emit(Instruction{Op: op, ArgVal: name})
}

func (g *CodeGen) emitCount(op Opcode, n int) {
	g.emit(Instruction{Op: op, Arg: n, ArgVal: n})
}

// GenLoadConst pushes an arbitrary value, which need not be a literal.
func (g *CodeGen) GenLoadConst(value any) {
	idx := g.code.AddConst(value)
	g.emit(Instruction{Op: OpLoadConst, Arg: idx, ArgVal: g.code.Consts[idx]})
}

func (g *CodeGen) GenLoadFast(name string) {
	g.emitName(OpLoadFast, name)
}

// GenStoreFast stores into a local, registering the name if it is new.
func (g *CodeGen) GenStoreFast(name string) {
	g.code.AddVarName(name)
	g.emitName(OpStoreFast, name)
}

func (g *CodeGen) GenLoadGlobal(name string) {
	g.emitName(OpLoadGlobal, name)
}

func (g *CodeGen) GenStoreGlobal(name string) {
	g.emitName(OpStoreGlobal, name)
}

func (g *CodeGen) GenLoadDeref(name string) {
	g.emitName(OpLoadDeref, name)
}

func (g *CodeGen) GenLoadAttr(name string) {
	g.emitName(OpLoadAttr, name)
}

// GenSubscribe emits container[key] for the two values on the stack.
func (g *CodeGen) GenSubscribe() {
	g.emit(Instruction{Op: OpBinarySubscr})
}

func (g *CodeGen) GenBuildTuple(n int) {
	g.emitCount(OpBuildTuple, n)
}

func (g *CodeGen) GenBuildList(n int) {
	g.emitCount(OpBuildList, n)
}

// GenBuildMap builds a dict from n key/value pairs on the stack.
func (g *CodeGen) GenBuildMap(n int) {
	g.emitCount(OpBuildMap, n)
}

func (g *CodeGen) GenCallFunction(argc int) {
	g.emitCount(OpCallFunction, argc)
}

func (g *CodeGen) GenUnpackSequence(n int) {
	g.emitCount(OpUnpackSequence, n)
}

func (g *CodeGen) GenPopTop() {
	g.emit(Instruction{Op: OpPopTop})
}

// GenJumpAbsolute jumps to an instruction index of the code being built.
func (g *CodeGen) GenJumpAbsolute(target int) {
	g.emit(Instruction{Op: OpJumpAbsolute, Arg: target, ArgVal: target, JumpTo: target})
}

func (g *CodeGen) GenReturn() {
	g.emit(Instruction{Op: OpReturnValue})
}

// AppendOriginal copies the original instruction stream after what has been
// emitted so far, shifting jump targets and constant indices to match.
// It returns the index at which the copy starts.
func (g *CodeGen) AppendOriginal() int {
	base := len(g.code.Instructions)
	constBase := len(g.code.Consts)
	g.code.Consts = append(g.code.Consts, g.orig.Consts...)
	for _, name := range g.orig.VarNames {
		g.code.AddVarName(name)
	}
	for _, in := range g.orig.Instructions {
		if in.Op.IsJump() {
			in.JumpTo += base
			in.Arg = in.JumpTo
			in.ArgVal = in.JumpTo
		}
		if GetOpcodeInfo(in.Op).Operand == OperandConst {
			in.Arg += constBase
		}
		g.code.Instructions = append(g.code.Instructions, in)
	}
	return base
}

// GenResumeAt jumps into a copy of the original stream at instruction pc.
func (g *CodeGen) GenResumeAt(pc int) {
	base := len(g.code.Instructions) + 1
	g.GenJumpAbsolute(base + pc)
	g.AppendOriginal()
}

// Build returns the finished code object.
func (g *CodeGen) Build() *Code {
	return g.code
}
