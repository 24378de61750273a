// Package engine links compiled functions into executable artifacts and
// runs them.
//
// Link takes a compiled module, resolves every call relocation, assigns
// the functions a range in the process-wide code-address space, and
// registers their frame metadata so traps can render backtraces. The
// result is an Artifact: immutable, safe to instantiate from any number
// of goroutines, and serializable to a byte image that a later process
// can load without recompiling (provided target and compiler match).
//
// Call drives the executor: a dispatch loop over the lowered instruction
// stream, one frame per guest call. Guest faults are raised as trap
// panics and recovered at the Call boundary, never crossing into the
// caller as panics. Host function errors unwind the same way and come
// back verbatim.
package engine
