package vm

import (
	"github.com/wippyai/wasm-engine/errors"
	"github.com/wippyai/wasm-engine/wasm"
)

// ImportValues carries resolved imports in module declaration order, one
// slice per kind.
type ImportValues struct {
	Functions []*Function
	Memories  []*Memory
	Tables    []*Table
	Globals   []*Global
}

// Allocate builds an instance context. Imported entities are wired by
// reference, local ones are allocated, globals are initialized in
// declaration order, and element and data segments are validated in
// full before any is applied. On error nothing partially initialized
// escapes; already-shared imports are untouched beyond what applied
// segments wrote.
func Allocate(m *wasm.Module, imp ImportValues, localFuncs []*Function) (*Context, error) {
	if uint32(len(imp.Functions)) != m.NumImportedFuncs() ||
		uint32(len(imp.Memories)) != m.NumImportedMemories() ||
		uint32(len(imp.Tables)) != m.NumImportedTables() ||
		uint32(len(imp.Globals)) != m.NumImportedGlobals() {
		return nil, errors.InvalidData(errors.PhaseInstantiate, "resolved import count mismatch")
	}
	if len(localFuncs) != len(m.Code) {
		return nil, errors.InvalidData(errors.PhaseInstantiate, "compiled function count mismatch")
	}

	ctx := &Context{Module: m}

	ctx.Functions = append(ctx.Functions, imp.Functions...)
	ctx.Functions = append(ctx.Functions, localFuncs...)

	ctx.Memories = append(ctx.Memories, imp.Memories...)
	for _, mt := range m.Memories {
		mem, err := NewMemory(mt)
		if err != nil {
			return nil, err
		}
		ctx.Memories = append(ctx.Memories, mem)
	}

	ctx.Tables = append(ctx.Tables, imp.Tables...)
	for _, tt := range m.Tables {
		ctx.Tables = append(ctx.Tables, NewTable(tt))
	}

	// Initializer expressions may only read imported globals.
	numImported := uint32(len(imp.Globals))
	importedGlobal := func(idx uint32) (uint64, bool) {
		if idx >= numImported {
			return 0, false
		}
		return imp.Globals[idx].Get(), true
	}

	ctx.Globals = append(ctx.Globals, imp.Globals...)
	for _, g := range m.Globals {
		bits, err := g.Init.Eval(importedGlobal)
		if err != nil {
			return nil, err
		}
		ctx.Globals = append(ctx.Globals, NewGlobal(g.Type, bits))
	}

	// Validate every segment before applying any, so a bad one cannot
	// leave earlier segments half-applied.
	elemOffsets := make([]uint32, len(m.Elements))
	for i, e := range m.Elements {
		if int(e.TableIdx) >= len(ctx.Tables) {
			return nil, errors.InvalidData(errors.PhaseInstantiate, "element segment table index out of range")
		}
		bits, err := e.Offset.Eval(importedGlobal)
		if err != nil {
			return nil, err
		}
		off := uint32(bits)
		if uint64(off)+uint64(len(e.FuncIdxs)) > uint64(ctx.Tables[e.TableIdx].Size()) {
			return nil, errors.InitializerFailed(
				"element segment [%d, %d) exceeds table size %d",
				off, uint64(off)+uint64(len(e.FuncIdxs)), ctx.Tables[e.TableIdx].Size())
		}
		for _, fi := range e.FuncIdxs {
			if int(fi) >= len(ctx.Functions) {
				return nil, errors.InvalidData(errors.PhaseInstantiate, "element segment function index out of range")
			}
		}
		elemOffsets[i] = off
	}

	dataOffsets := make([]uint32, len(m.Data))
	for i, d := range m.Data {
		if int(d.MemIdx) >= len(ctx.Memories) {
			return nil, errors.InvalidData(errors.PhaseInstantiate, "data segment memory index out of range")
		}
		bits, err := d.Offset.Eval(importedGlobal)
		if err != nil {
			return nil, err
		}
		off := uint32(bits)
		if uint64(off)+uint64(len(d.Init)) > uint64(len(ctx.Memories[d.MemIdx].Data())) {
			return nil, errors.InitializerFailed(
				"data segment [%d, %d) exceeds memory size %d",
				off, uint64(off)+uint64(len(d.Init)), len(ctx.Memories[d.MemIdx].Data()))
		}
		dataOffsets[i] = off
	}

	for i, e := range m.Elements {
		tbl := ctx.Tables[e.TableIdx]
		for j, fi := range e.FuncIdxs {
			tbl.Elems[elemOffsets[i]+uint32(j)] = ctx.Functions[fi]
		}
	}
	for i, d := range m.Data {
		copy(ctx.Memories[d.MemIdx].Data()[dataOffsets[i]:], d.Init)
	}

	for _, f := range localFuncs {
		f.Ctx = ctx
	}
	return ctx, nil
}
