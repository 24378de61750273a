package vm

import "github.com/wippyai/wasm-engine/wasm"

// Global is one global variable cell. Values are stored as raw 64-bit
// bits regardless of type; narrower types use the low bits.
type Global struct {
	Type wasm.GlobalType
	bits uint64
}

// NewGlobal builds a global holding the given raw bits.
func NewGlobal(t wasm.GlobalType, bits uint64) *Global {
	return &Global{Type: t, bits: bits}
}

// Get returns the raw value bits.
func (g *Global) Get() uint64 { return g.bits }

// Set stores raw value bits. Mutability is enforced at compile time for
// guest code; host callers are trusted.
func (g *Global) Set(bits uint64) { g.bits = bits }
