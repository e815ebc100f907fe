// Package symbolic holds the statement IR produced by tracing and turns it
// into callable artifacts.
//
// A StatementIR is a flat list of statements over named Symbols. Each
// statement is an api call (an operation of the T module), a method call (a
// tensor method on its first operand) or a call (a layer applied to its
// input). Inputs and outputs are derived from the statement list:
// AnalyzeInputs returns what is read before it is produced, AnalyzeOutputs
// intersects the produced symbols with a live set.
//
// Compile validates an IR and wraps it in an Artifact. Artifacts implement
// vm.Callable so generated code can load one as a constant and call it with
// a tuple of inputs. CompileCache memoizes artifacts by the canonical CBOR
// encoding of the IR content, hashed with xxh3.
package symbolic
