// Package trap defines WebAssembly execution faults and the process-wide
// frame-info registry that maps code addresses back to symbolic locations.
//
// A Trap is a defined, recoverable guest fault: out-of-bounds access,
// division fault, indirect-call signature mismatch, stack overflow, and so
// on. Traps terminate the current guest call and unwind to the nearest host
// call boundary; they never crash the host process. Instance state mutated
// before the trap remains as-is.
//
// The Registry is shared by all artifacts in the process. Artifacts reserve
// a code-address range at link time and register per-function frame
// metadata; lookups resolve an address to {module, function, source offset}
// for backtraces. The read path is lock-free over an atomically published
// snapshot, so it is safe during unwinding: registration swaps in a new
// snapshot under a mutex, and readers never observe a half-updated
// structure.
package trap
