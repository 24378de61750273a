// Package vm holds the per-instance execution state of a WebAssembly
// module: linear memories, tables, globals, and the function references
// the executor calls through.
//
// A Context is the unit of instantiation. Allocate builds one from a
// decoded module and already-resolved import values, in a fixed order:
// functions are wired first, then memories and tables are allocated,
// globals are initialized in declaration order, and finally element and
// data segments are bounds-checked in full before any of them is
// applied. A failed allocation returns an error and no Context; callers
// never observe a half-initialized instance.
//
// Imported entities are wired by reference. An instance importing
// another's memory sees the same backing bytes, and growth through
// either side is visible to both.
package vm
