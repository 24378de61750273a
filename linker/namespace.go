package linker

import (
	"sync"

	"github.com/wippyai/wasm-engine/engine"
	"github.com/wippyai/wasm-engine/vm"
	"github.com/wippyai/wasm-engine/wasm"
)

// Extern is one providable entity; exactly one field is set.
type Extern struct {
	Func   *vm.Function
	Memory *vm.Memory
	Table  *vm.Table
	Global *vm.Global
}

// Kind returns the wasm descriptor kind of the set field.
func (e Extern) Kind() byte {
	switch {
	case e.Func != nil:
		return wasm.KindFunc
	case e.Memory != nil:
		return wasm.KindMemory
	case e.Table != nil:
		return wasm.KindTable
	default:
		return wasm.KindGlobal
	}
}

// Provider supplies import values by name.
type Provider interface {
	// Lookup returns the extern registered under (module, field), if
	// any.
	Lookup(module, field string) (Extern, bool)
}

// Namespace is a mutable name table implementing Provider. It is safe
// for concurrent use.
type Namespace struct {
	mu      sync.RWMutex
	entries map[[2]string]Extern
}

// NewNamespace returns an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{entries: make(map[[2]string]Extern)}
}

// Lookup implements Provider.
func (n *Namespace) Lookup(module, field string) (Extern, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	e, ok := n.entries[[2]string{module, field}]
	return e, ok
}

// Define registers an extern, replacing any previous entry under the
// same names.
func (n *Namespace) Define(module, field string, e Extern) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries[[2]string{module, field}] = e
}

// DefineFunc registers a host function under (module, field).
func (n *Namespace) DefineFunc(module, field string, t wasm.FuncType, fn vm.HostFunc) {
	n.Define(module, field, Extern{Func: &vm.Function{
		Type:   t,
		TypeID: engine.TypeID(t),
		Host:   fn,
		Module: module,
		Name:   field,
	}})
}

// DefineMemory registers a memory under (module, field).
func (n *Namespace) DefineMemory(module, field string, m *vm.Memory) {
	n.Define(module, field, Extern{Memory: m})
}

// DefineTable registers a table under (module, field).
func (n *Namespace) DefineTable(module, field string, t *vm.Table) {
	n.Define(module, field, Extern{Table: t})
}

// DefineGlobal registers a global under (module, field).
func (n *Namespace) DefineGlobal(module, field string, g *vm.Global) {
	n.Define(module, field, Extern{Global: g})
}
