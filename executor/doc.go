// Package executor traces frames symbolically and caches the replacement
// code it builds for them.
//
// # Tracing
//
// An OpcodeExecutor runs the instructions of a frame over Variables instead
// of values. Every Variable carries a Tracker describing where it came from:
// a local, a global, a builtin, an attribute or item of another tracked
// value, a constant, or a value computed during tracing (a DummyTracker).
// Tensor operations are not evaluated. They are recorded as statements in
// the FunctionGraph and produce TensorVariables whose metadata comes from
// meta inference. Everything else (numbers, strings, containers, calls to
// user functions) is evaluated eagerly, so control flow that depends only on
// those values is resolved at trace time.
//
// Operations on Variables are routed through a Dispatcher keyed by
// operation name and operand Kinds. Calls to user functions are inlined by
// an OpcodeInlineExecutor that shares the caller's graph.
//
// # Finalization
//
// When the traced function returns, the graph compiles its statements into
// an artifact and emits code that loads the artifact, rebuilds its inputs
// from their trackers, calls it, and rebuilds the return value. A guard is
// built from the checks of every variable read from the frame, ordered so a
// variable is checked after the variables it was read through.
//
// A call that must run untraced (print, tensor.item) breaks the graph: the
// executor rolls back to the call, compiles what it had, restores the live
// locals and stack, and jumps into a copy of the original code at the call.
// Anything else the tracer cannot handle bails out and the frame runs
// unmodified.
//
// # Caching
//
// Cache keys translations by code object. A translation is reused while its
// guard holds for the new frame. Code that bailed out is never translated
// again.
package executor

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("symtrace.executor")
