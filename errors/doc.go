// Package errors provides structured error types for the wasm-engine library.
//
// Errors are categorized by Phase (which pipeline stage failed) and Kind
// (error category). The Error type includes the import path that failed,
// expected/actual type descriptions, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseResolve, errors.KindImportTypeMismatch).
//		Import("env", "double").
//		Expected("func(i32) -> i32").
//		Actual("memory").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.UnresolvedImport("wasi_snapshot_preview1", "fd_write")
//	err := errors.Unsupported(errors.PhaseCompile, "opcode 0xfd (simd)")
//
// All errors implement the standard error interface and support errors.Is/As.
// Runtime traps are not represented here; see the trap package.
package errors
