package runtime

import (
	"context"
	"sync/atomic"

	"github.com/wippyai/wasm-engine/engine"
	"github.com/wippyai/wasm-engine/errors"
	"github.com/wippyai/wasm-engine/linker"
	"github.com/wippyai/wasm-engine/vm"
	"github.com/wippyai/wasm-engine/wasm"
)

// Instance is one live instantiation of a Module.
type Instance struct {
	module *Module
	ctx    *vm.Context
	closed atomic.Bool
}

// Close marks the instance unusable. Calls through previously obtained
// Funcs fail afterwards. Entities shared by reference with other
// instances stay alive.
func (i *Instance) Close() error {
	if !i.closed.CompareAndSwap(false, true) {
		return &errors.Error{
			Phase:  errors.PhaseRuntime,
			Kind:   errors.KindAlreadyClosed,
			Detail: "instance already closed",
		}
	}
	return nil
}

func (i *Instance) export(name string, kind byte) (uint32, error) {
	for _, exp := range i.ctx.Module.Exports {
		if exp.Name == name && exp.Kind == kind {
			return exp.Idx, nil
		}
	}
	return 0, errors.NotFound(errors.PhaseRuntime, "exported "+wasm.KindName(kind), name)
}

// Func returns the exported function with the given name.
func (i *Instance) Func(name string) (*Func, error) {
	idx, err := i.export(name, wasm.KindFunc)
	if err != nil {
		return nil, err
	}
	return &Func{inst: i, fn: i.ctx.Functions[idx]}, nil
}

// Memory returns the exported memory with the given name.
func (i *Instance) Memory(name string) (*vm.Memory, error) {
	idx, err := i.export(name, wasm.KindMemory)
	if err != nil {
		return nil, err
	}
	return i.ctx.Memories[idx], nil
}

// Global returns the exported global with the given name.
func (i *Instance) Global(name string) (*vm.Global, error) {
	idx, err := i.export(name, wasm.KindGlobal)
	if err != nil {
		return nil, err
	}
	return i.ctx.Globals[idx], nil
}

// Table returns the exported table with the given name.
func (i *Instance) Table(name string) (*vm.Table, error) {
	idx, err := i.export(name, wasm.KindTable)
	if err != nil {
		return nil, err
	}
	return i.ctx.Tables[idx], nil
}

// Lookup implements linker.Provider, serving this instance's exports
// under its module name so one instance can satisfy another module's
// imports.
func (i *Instance) Lookup(module, field string) (linker.Extern, bool) {
	if i.closed.Load() || module != i.ctx.Module.Name {
		return linker.Extern{}, false
	}
	for _, exp := range i.ctx.Module.Exports {
		if exp.Name != field {
			continue
		}
		switch exp.Kind {
		case wasm.KindFunc:
			return linker.Extern{Func: i.ctx.Functions[exp.Idx]}, true
		case wasm.KindMemory:
			return linker.Extern{Memory: i.ctx.Memories[exp.Idx]}, true
		case wasm.KindTable:
			return linker.Extern{Table: i.ctx.Tables[exp.Idx]}, true
		case wasm.KindGlobal:
			return linker.Extern{Global: i.ctx.Globals[exp.Idx]}, true
		}
	}
	return linker.Extern{}, false
}

// Func is a callable export handle.
type Func struct {
	inst *Instance
	fn   *vm.Function
}

// Type returns the function's signature.
func (f *Func) Type() wasm.FuncType { return f.fn.Type }

// Call invokes the function with raw argument bits and returns raw
// result bits. Argument count is validated against the signature. Guest
// traps come back as *trap.Trap; host function errors pass through.
func (f *Func) Call(ctx context.Context, args ...uint64) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.inst.closed.Load() {
		return nil, &errors.Error{
			Phase:  errors.PhaseRuntime,
			Kind:   errors.KindAlreadyClosed,
			Detail: "instance is closed",
		}
	}
	return engine.Call(f.fn, args)
}
