package engine

import (
	"sync/atomic"

	"github.com/wippyai/wasm-engine/compiler"
	"github.com/wippyai/wasm-engine/errors"
	"github.com/wippyai/wasm-engine/trap"
	"github.com/wippyai/wasm-engine/wasm"
)

// Artifact is a linked, executable module image. It is immutable after
// linking and may back any number of live instances concurrently; the
// instances share the code and per-function metadata, never per-instance
// state.
type Artifact struct {
	module       *wasm.Module
	moduleBytes  []byte
	target       compiler.Target
	compilerName string
	funcs        []*compiler.CompiledFunction
	typeIDs      []uint32 // module type index -> engine identity
	funcAddrs    []uint64 // local function index -> code base address
	base         uint64
	size         uint64
	closed       atomic.Bool
}

// Module returns the decoded module the artifact was built from.
func (a *Artifact) Module() *wasm.Module { return a.module }

// Target reports the target the artifact was compiled for.
func (a *Artifact) Target() compiler.Target { return a.target }

// CompilerName reports the backend that produced the artifact.
func (a *Artifact) CompilerName() string { return a.compilerName }

// Close removes the artifact's frame metadata from the process-wide
// registry. Instances started before Close keep running, but their traps
// lose symbolic frames. Closing twice is an error.
func (a *Artifact) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return &errors.Error{
			Phase:  errors.PhaseRuntime,
			Kind:   errors.KindAlreadyClosed,
			Detail: "artifact already closed",
		}
	}
	if a.size > 0 {
		trap.Unregister(a.base)
	}
	return nil
}

// Link resolves relocations, assigns the compiled functions a range of
// the process-wide code-address space, and registers frame metadata for
// backtraces. moduleBytes is retained for serialization and must be the
// binary m was decoded from.
func Link(m *wasm.Module, moduleBytes []byte, fns []*compiler.CompiledFunction,
	target compiler.Target, compilerName string) (*Artifact, error) {

	imported := m.NumImportedFuncs()
	total := imported + uint32(len(fns))

	var size uint64
	for _, fn := range fns {
		size += uint64(len(fn.Ops))
	}

	a := &Artifact{
		module:       m,
		moduleBytes:  moduleBytes,
		target:       target,
		compilerName: compilerName,
		funcs:        fns,
		typeIDs:      make([]uint32, len(m.Types)),
		funcAddrs:    make([]uint64, len(fns)),
		size:         size,
	}
	for i, t := range m.Types {
		a.typeIDs[i] = typeID(t)
	}

	for i, fn := range fns {
		for _, rel := range fn.Relocs {
			if rel.FuncIndex >= total {
				return nil, errors.Relocation(
					"call site %d in %s references function %d, module has %d",
					rel.OpIndex, m.FuncName(imported+uint32(i)), rel.FuncIndex, total)
			}
		}
	}

	if size > 0 {
		a.base = trap.Reserve(size)
		infos := make([]trap.FuncInfo, len(fns))
		addr := a.base
		for i, fn := range fns {
			idx := imported + uint32(i)
			a.funcAddrs[i] = addr
			infos[i] = trap.FuncInfo{
				Start:   addr,
				End:     addr + uint64(len(fn.Ops)),
				Index:   idx,
				Module:  m.Name,
				Name:    m.FuncName(idx),
				Sources: fn.Sources,
				Sites:   fn.Sites,
			}
			addr += uint64(len(fn.Ops))
		}
		trap.Register(a.base, size, infos)
	}

	debugf("link: %s: %d functions over %d instructions at %#x",
		m.Name, len(fns), size, a.base)
	return a, nil
}
