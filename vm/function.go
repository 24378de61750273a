package vm

import (
	"github.com/wippyai/wasm-engine/compiler"
	"github.com/wippyai/wasm-engine/wasm"
)

// HostFunc is a host implementation callable from guest code. Arguments
// and results are raw value bits in signature order. caller is the
// invoking instance's context, nil when the host calls the function
// directly.
type HostFunc func(caller *Context, args []uint64) ([]uint64, error)

// Function is one callable: either a compiled guest function bound to
// its instance context, or a host function. Table slots and import
// wiring hold these by reference, so two instances importing the same
// function share one value.
type Function struct {
	// Type is the function's signature.
	Type wasm.FuncType
	// TypeID is the engine-wide identity of Type. Indirect calls
	// compare TypeIDs, never structural signatures.
	TypeID uint32

	// Compiled is the lowered body for guest functions, nil for host
	// functions.
	Compiled *compiler.CompiledFunction
	// Host is the implementation for host functions, nil for guest
	// functions.
	Host HostFunc

	// Ctx is the owning instance's state. Nil for host functions.
	Ctx *Context

	// Addr is the function's code address in the frame-info registry.
	// Zero for host functions.
	Addr uint64
	// Index is the function's index in its module's function space.
	Index uint32
	// Module and Name are the symbolic names used in backtraces.
	Module string
	Name   string
}

// IsHost reports whether the function is host-implemented.
func (f *Function) IsHost() bool { return f.Host != nil }
