package engine

import (
	"sync"

	"github.com/wippyai/wasm-engine/wasm"
)

// Signature identities are process-wide: two structurally equal function
// types always map to the same id, so an indirect call compares one
// integer regardless of which module defined the type.
var (
	typeIDMu sync.Mutex
	typeIDs  = make(map[string]uint32)
)

// TypeID interns a function type and returns its process-wide identity.
// Host functions placed in tables need it set for indirect calls to
// match.
func TypeID(t wasm.FuncType) uint32 { return typeID(t) }

// typeID interns a function type and returns its identity.
func typeID(t wasm.FuncType) uint32 {
	key := t.String()
	typeIDMu.Lock()
	defer typeIDMu.Unlock()
	id, ok := typeIDs[key]
	if !ok {
		id = uint32(len(typeIDs))
		typeIDs[key] = id
	}
	return id
}
