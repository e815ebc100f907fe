// Package vm implements the stack interpreter that runs assembled code.
//
// This package contains:
//   - The value model: numbers, strings, lists, tuples, dicts, ranges,
//     tensors, layers, functions and closure cells
//   - The instruction loop and frame setup
//   - Builtins and the T module of tensor operations with their kernels
//   - The frame hook that lets a tracer substitute a frame's code
//   - A per-code activation profiler
package vm
