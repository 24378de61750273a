// Package compiler translates WebAssembly function bodies into the
// engine's executable form.
//
// A Compiler is a pluggable backend behind a small contract: given a
// decoded module and a target description, produce one CompiledFunction
// per locally defined function. A CompiledFunction bundles everything
// later stages need — the lowered instruction stream, relocation records
// for call sites, trap sites keyed by instruction offset, and a source
// map back to the original body bytes. Compilers never mutate the module
// and hold no state across calls, so a single backend value may compile
// many modules concurrently.
//
// The SinglePass backend is the engine's default. It walks each body
// once, flattening structured control flow (block/loop/if) into branches
// with explicit stack-adjustment ranges, so the executor runs a flat
// stream with no label bookkeeping at run time.
package compiler
