// Package bytecode defines the stack-machine instruction set executed by the
// vm package and traced by the executor package.
//
// # Architecture Overview
//
// The package consists of several components:
//
//   - Opcodes: stack instructions covering names, attributes, calls,
//     arithmetic, containers, iteration and control flow. Each opcode has an
//     OpcodeInfo entry giving its name, stack effect and operand kind.
//
//   - Code: a decoded instruction stream with its constant pool, parameter
//     names, defaults and closure cells. The pointer identity of a Code is
//     what caches key on.
//
//   - Builder and Assemble: two ways to construct Code. Builder is
//     programmatic and resolves labels on Build; Assemble reads a
//     line-oriented text format (see Assemble for the grammar).
//
//   - CodeGen: emits a replacement Code that keeps the original's signature.
//     It can append a relocated copy of the original stream so a replacement
//     can jump back into it.
//
//   - LiveVariables: backward dataflow telling which locals may still be
//     read from a given instruction onward.
//
// # Jumps
//
// Jump operands are instruction indices, not byte offsets. FOR_ITER jumps
// when its iterator is exhausted; POP_JUMP_IF_* jump on the popped value.
//
// # Closures
//
// Cell and free variables live beside the locals, not in them. LOAD_CLOSURE
// pushes the cell object itself; MAKE_FUNCTION with the closure flag expects
// a tuple of cells under the code constant.
package bytecode
