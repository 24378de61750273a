package vm

import (
	"testing"

	"github.com/wippyai/wasm-engine/wasm"
)

func maxPtr(v uint32) *uint32 { return &v }

func TestMemoryGrowBounded(t *testing.T) {
	m, err := NewMemory(wasm.MemoryType{Limits: wasm.Limits{Min: 1, Max: maxPtr(3)}})
	if err != nil {
		t.Fatal(err)
	}
	if m.Size() != 1 {
		t.Fatalf("initial size = %d pages", m.Size())
	}

	base := &m.Data()[0]

	old, ok := m.Grow(2)
	if !ok || old != 1 {
		t.Fatalf("Grow(2) = %d, %v", old, ok)
	}
	if m.Size() != 3 {
		t.Fatalf("size after grow = %d", m.Size())
	}
	// With a declared maximum the reservation is made up front, so
	// growth must not move the base.
	if &m.Data()[0] != base {
		t.Error("bounded memory moved on grow")
	}

	// Past the maximum: denied as a value, state untouched.
	old, ok = m.Grow(1)
	if ok {
		t.Fatal("grow past maximum succeeded")
	}
	if old != 3 || m.Size() != 3 {
		t.Errorf("denied grow reported %d, size %d", old, m.Size())
	}
}

func TestMemoryGrowUnbounded(t *testing.T) {
	m, err := NewMemory(wasm.MemoryType{Limits: wasm.Limits{Min: 1}})
	if err != nil {
		t.Fatal(err)
	}
	m.Data()[0] = 0xAB

	if _, ok := m.Grow(4); !ok {
		t.Fatal("grow failed")
	}
	if m.Size() != 5 {
		t.Fatalf("size = %d", m.Size())
	}
	if m.Data()[0] != 0xAB {
		t.Error("contents lost across reallocating grow")
	}
}

func TestMemoryGrowZero(t *testing.T) {
	m, _ := NewMemory(wasm.MemoryType{Limits: wasm.Limits{Min: 2}})
	old, ok := m.Grow(0)
	if !ok || old != 2 {
		t.Errorf("Grow(0) = %d, %v", old, ok)
	}
}

func TestMemoryBounds(t *testing.T) {
	m, _ := NewMemory(wasm.MemoryType{Limits: wasm.Limits{Min: 1}})

	if _, ok := m.Bytes(wasm.PageSize-4, 4); !ok {
		t.Error("in-bounds read denied")
	}
	if _, ok := m.Bytes(wasm.PageSize-3, 4); ok {
		t.Error("read straddling the end allowed")
	}
	if _, ok := m.Bytes(wasm.PageSize, 1); ok {
		t.Error("read past the end allowed")
	}
	if !m.WriteAt(0, []byte{1, 2, 3}) {
		t.Error("in-bounds write denied")
	}
	if m.WriteAt(wasm.PageSize-1, []byte{1, 2}) {
		t.Error("partial out-of-bounds write allowed")
	}
}

func TestMemoryValidation(t *testing.T) {
	if _, err := NewMemory(wasm.MemoryType{Limits: wasm.Limits{Min: 2, Max: maxPtr(1)}}); err == nil {
		t.Error("min above max accepted")
	}
	if _, err := NewMemory(wasm.MemoryType{Limits: wasm.Limits{Min: 1, Shared: true}}); err == nil {
		t.Error("shared memory without maximum accepted")
	}
}
