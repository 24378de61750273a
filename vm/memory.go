package vm

import (
	"sync"
	"sync/atomic"

	"github.com/wippyai/wasm-engine/errors"
	"github.com/wippyai/wasm-engine/wasm"
)

// MaxMemoryPages is the hard ceiling on linear memory size, 4 GiB.
const MaxMemoryPages = 65536

// Memory is one linear memory. The byte slice is published through an
// atomic pointer: growth swaps in a longer slice, and readers always see
// either the old or the new length, never a torn header. When a maximum
// is declared the full reservation is made up front and growth only
// extends the visible length, so the base address is stable for the
// memory's lifetime; without a maximum, growth reallocates and copies.
type Memory struct {
	Type wasm.MemoryType

	mu   sync.Mutex // serializes Grow
	data atomic.Pointer[[]byte]
}

// NewMemory allocates a memory at its declared minimum size.
func NewMemory(t wasm.MemoryType) (*Memory, error) {
	maxPages := uint32(MaxMemoryPages)
	if t.Limits.Max != nil {
		maxPages = *t.Limits.Max
	}
	if t.Limits.Min > maxPages || maxPages > MaxMemoryPages {
		return nil, errors.InvalidData(errors.PhaseInstantiate, "memory limits out of range")
	}
	if t.Limits.Shared && t.Limits.Max == nil {
		return nil, errors.InvalidData(errors.PhaseInstantiate, "shared memory requires a maximum")
	}

	m := &Memory{Type: t}
	var buf []byte
	if t.Limits.Max != nil {
		buf = make([]byte, int(t.Limits.Min)*wasm.PageSize, int(maxPages)*wasm.PageSize)
	} else {
		buf = make([]byte, int(t.Limits.Min)*wasm.PageSize)
	}
	m.data.Store(&buf)
	return m, nil
}

// Data returns the current byte view. The slice stays valid but may stop
// reflecting the full memory after a concurrent Grow.
func (m *Memory) Data() []byte { return *m.data.Load() }

// Size returns the current size in pages.
func (m *Memory) Size() uint32 { return uint32(len(m.Data()) / wasm.PageSize) }

// Grow extends the memory by delta pages. It returns the previous size
// in pages and whether the growth was applied; a denied growth leaves
// the memory untouched and is reported as a value, not an error.
func (m *Memory) Grow(delta uint32) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := *m.data.Load()
	oldPages := uint32(len(cur) / wasm.PageSize)
	if delta == 0 {
		return oldPages, true
	}

	maxPages := uint32(MaxMemoryPages)
	if m.Type.Limits.Max != nil {
		maxPages = *m.Type.Limits.Max
	}
	newPages := uint64(oldPages) + uint64(delta)
	if newPages > uint64(maxPages) {
		return oldPages, false
	}

	newLen := int(newPages) * wasm.PageSize
	var next []byte
	if newLen <= cap(cur) {
		next = cur[:newLen]
	} else {
		next = make([]byte, newLen)
		copy(next, cur)
	}
	m.data.Store(&next)
	return oldPages, true
}

// Bytes returns a bounds-checked view of [offset, offset+n) against the
// current length.
func (m *Memory) Bytes(offset, n uint32) ([]byte, bool) {
	d := m.Data()
	end := uint64(offset) + uint64(n)
	if end > uint64(len(d)) {
		return nil, false
	}
	return d[offset:end], true
}

// WriteAt copies b into memory at offset, failing without a partial
// write when the range is out of bounds.
func (m *Memory) WriteAt(offset uint32, b []byte) bool {
	dst, ok := m.Bytes(offset, uint32(len(b)))
	if !ok {
		return false
	}
	copy(dst, b)
	return true
}
