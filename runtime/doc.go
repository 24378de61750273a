// Package runtime is the embedding API: compile or load a module, wire
// its imports, instantiate it, and call its exports.
//
// A Runtime fixes the compilation backend and target. Compile produces a
// Module, which wraps a linked artifact; one Module may be instantiated
// any number of times, concurrently, each Instance with its own memory,
// tables, and globals. Serialize and Deserialize move compiled modules
// across processes without recompiling.
//
// Values cross the boundary as raw 64-bit bits in signature order; the
// I32/I64/F32/F64 helpers and their Decode counterparts convert typed Go
// values. Guest traps come back from Call as *trap.Trap errors carrying
// a backtrace; host function errors pass through unchanged.
package runtime
