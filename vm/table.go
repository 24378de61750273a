package vm

import "github.com/wippyai/wasm-engine/wasm"

// Table is one funcref table. A nil slot is uninitialized; calling
// through it traps.
type Table struct {
	Type  wasm.TableType
	Elems []*Function
}

// NewTable allocates a table at its declared minimum size with every
// slot uninitialized.
func NewTable(t wasm.TableType) *Table {
	return &Table{Type: t, Elems: make([]*Function, t.Limits.Min)}
}

// Size returns the current element count.
func (t *Table) Size() uint32 { return uint32(len(t.Elems)) }

// Get returns the function at index i; ok is false past the table end.
// A true ok with a nil function means the slot was never initialized.
func (t *Table) Get(i uint32) (*Function, bool) {
	if i >= uint32(len(t.Elems)) {
		return nil, false
	}
	return t.Elems[i], true
}

// Grow extends the table by delta uninitialized slots and returns the
// previous size. A false ok means the declared maximum would be
// exceeded; denial is a value, not an error.
func (t *Table) Grow(delta uint32) (uint32, bool) {
	old := uint32(len(t.Elems))
	if delta > ^uint32(0)-old {
		return old, false
	}
	if t.Type.Limits.Max != nil && old+delta > *t.Type.Limits.Max {
		return old, false
	}
	t.Elems = append(t.Elems, make([]*Function, delta)...)
	return old, true
}

// Set stores a function reference at index i.
func (t *Table) Set(i uint32, f *Function) bool {
	if i >= uint32(len(t.Elems)) {
		return false
	}
	t.Elems[i] = f
	return true
}
