package runtime

import "math"

// Call values are raw 64-bit bits. These helpers convert between typed
// Go values and the wire representation.

// I32 encodes a signed 32-bit integer argument.
func I32(v int32) uint64 { return uint64(uint32(v)) }

// I64 encodes a signed 64-bit integer argument.
func I64(v int64) uint64 { return uint64(v) }

// F32 encodes a 32-bit float argument.
func F32(v float32) uint64 { return uint64(math.Float32bits(v)) }

// F64 encodes a 64-bit float argument.
func F64(v float64) uint64 { return math.Float64bits(v) }

// DecodeI32 reads a result as a signed 32-bit integer.
func DecodeI32(bits uint64) int32 { return int32(uint32(bits)) }

// DecodeI64 reads a result as a signed 64-bit integer.
func DecodeI64(bits uint64) int64 { return int64(bits) }

// DecodeF32 reads a result as a 32-bit float.
func DecodeF32(bits uint64) float32 { return math.Float32frombits(uint32(bits)) }

// DecodeF64 reads a result as a 64-bit float.
func DecodeF64(bits uint64) float64 { return math.Float64frombits(bits) }
