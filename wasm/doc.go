// Package wasm defines the compiler-independent module description and the
// binary-format reader that produces it.
//
// A Module is the static picture of a WebAssembly module: its function
// signatures, imports, exports, memory/table/global declarations, and raw
// function bodies. It is created once by Decode (or assembled by a Builder)
// and never mutated afterwards, so a single Module may be shared by many
// artifacts and instances.
//
// Structural validation is an upstream concern: Decode rejects malformed
// encodings (bad magic, truncated sections, unknown constructs) but assumes
// the module is otherwise well formed, as produced by a validating front-end.
//
// The Builder assembles a Module programmatically and emits canonical binary
// bytes. It exists for tests and tooling that need small modules without a
// text-format toolchain:
//
//	b := wasm.NewBuilder()
//	sig := b.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}})
//	b.AddFunction(sig, nil, []byte{wasm.OpLocalGet, 0, wasm.OpLocalGet, 0, wasm.OpI32Add, wasm.OpEnd})
//	b.ExportFunc("double_it", 0)
//	bytes := b.Bytes()
package wasm
