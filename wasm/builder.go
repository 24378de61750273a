package wasm

import "encoding/binary"

// Builder assembles a module programmatically and emits canonical binary
// bytes. Index spaces follow declaration order: imported entities precede
// locally defined ones, exactly as in the binary format.
type Builder struct {
	mod Module
}

// NewBuilder creates an empty module builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddType registers a function signature, reusing an existing identical
// entry, and returns its type index.
func (b *Builder) AddType(t FuncType) uint32 {
	for i, existing := range b.mod.Types {
		if existing.Equal(t) {
			return uint32(i)
		}
	}
	b.mod.Types = append(b.mod.Types, t)
	return uint32(len(b.mod.Types) - 1)
}

// ImportFunc declares a function import and returns its function index.
// All imports must be declared before the corresponding local definitions.
func (b *Builder) ImportFunc(module, name string, typeIdx uint32) uint32 {
	b.mod.Imports = append(b.mod.Imports, Import{
		Module: module, Name: name,
		Desc: ImportDesc{Kind: KindFunc, TypeIdx: typeIdx},
	})
	return b.mod.NumImportedFuncs() - 1
}

// ImportMemory declares a memory import.
func (b *Builder) ImportMemory(module, name string, min uint32, max *uint32) {
	b.mod.Imports = append(b.mod.Imports, Import{
		Module: module, Name: name,
		Desc: ImportDesc{Kind: KindMemory, Memory: &MemoryType{Limits: Limits{Min: min, Max: max}}},
	})
}

// ImportTable declares a table import.
func (b *Builder) ImportTable(module, name string, min uint32, max *uint32) {
	b.mod.Imports = append(b.mod.Imports, Import{
		Module: module, Name: name,
		Desc: ImportDesc{Kind: KindTable, Table: &TableType{ElemType: ValFuncRef, Limits: Limits{Min: min, Max: max}}},
	})
}

// ImportGlobal declares a global import.
func (b *Builder) ImportGlobal(module, name string, t GlobalType) uint32 {
	b.mod.Imports = append(b.mod.Imports, Import{
		Module: module, Name: name,
		Desc: ImportDesc{Kind: KindGlobal, Global: &t},
	})
	return b.mod.NumImportedGlobals() - 1
}

// AddFunction defines a function with the given type index, locals, and raw
// body code (which must end with OpEnd), returning its function index.
func (b *Builder) AddFunction(typeIdx uint32, locals []ValType, code []byte) uint32 {
	b.mod.Funcs = append(b.mod.Funcs, typeIdx)
	var entries []LocalEntry
	for _, vt := range locals {
		if n := len(entries); n > 0 && entries[n-1].ValType == vt {
			entries[n-1].Count++
		} else {
			entries = append(entries, LocalEntry{Count: 1, ValType: vt})
		}
	}
	b.mod.Code = append(b.mod.Code, FuncBody{Locals: entries, Code: code})
	return b.mod.NumImportedFuncs() + uint32(len(b.mod.Funcs)) - 1
}

// AddMemory defines a linear memory and returns its memory index.
func (b *Builder) AddMemory(min uint32, max *uint32) uint32 {
	b.mod.Memories = append(b.mod.Memories, MemoryType{Limits: Limits{Min: min, Max: max}})
	return b.mod.NumImportedMemories() + uint32(len(b.mod.Memories)) - 1
}

// AddTable defines a funcref table and returns its table index.
func (b *Builder) AddTable(min uint32, max *uint32) uint32 {
	b.mod.Tables = append(b.mod.Tables, TableType{ElemType: ValFuncRef, Limits: Limits{Min: min, Max: max}})
	return b.mod.NumImportedTables() + uint32(len(b.mod.Tables)) - 1
}

// AddGlobal defines a global and returns its global index.
func (b *Builder) AddGlobal(t GlobalType, init ConstExpr) uint32 {
	b.mod.Globals = append(b.mod.Globals, Global{Type: t, Init: init})
	return b.mod.NumImportedGlobals() + uint32(len(b.mod.Globals)) - 1
}

// Export adds an export of the given kind.
func (b *Builder) Export(name string, kind byte, idx uint32) {
	b.mod.Exports = append(b.mod.Exports, Export{Name: name, Kind: kind, Idx: idx})
}

// ExportFunc exports function idx under name.
func (b *Builder) ExportFunc(name string, idx uint32) { b.Export(name, KindFunc, idx) }

// ExportMemory exports memory idx under name.
func (b *Builder) ExportMemory(name string, idx uint32) { b.Export(name, KindMemory, idx) }

// ExportTable exports table idx under name.
func (b *Builder) ExportTable(name string, idx uint32) { b.Export(name, KindTable, idx) }

// ExportGlobal exports global idx under name.
func (b *Builder) ExportGlobal(name string, idx uint32) { b.Export(name, KindGlobal, idx) }

// SetStart declares the start function.
func (b *Builder) SetStart(funcIdx uint32) {
	idx := funcIdx
	b.mod.Start = &idx
}

// AddData adds an active data segment.
func (b *Builder) AddData(memIdx uint32, offset ConstExpr, init []byte) {
	b.mod.Data = append(b.mod.Data, DataSegment{MemIdx: memIdx, Offset: offset, Init: init})
}

// AddElement adds an active element segment.
func (b *Builder) AddElement(tableIdx uint32, offset ConstExpr, funcIdxs []uint32) {
	b.mod.Elements = append(b.mod.Elements, Element{TableIdx: tableIdx, Offset: offset, FuncIdxs: funcIdxs})
}

// SetName sets the module name emitted in the custom "name" section.
func (b *Builder) SetName(name string) {
	b.mod.Name = name
}

// NameFunc records a function name for the custom "name" section.
func (b *Builder) NameFunc(idx uint32, name string) {
	if b.mod.FuncNames == nil {
		b.mod.FuncNames = make(map[uint32]string)
	}
	b.mod.FuncNames[idx] = name
}

// Module returns the assembled module description.
func (b *Builder) Module() *Module {
	return &b.mod
}

// Bytes encodes the module into WebAssembly binary format.
func (b *Builder) Bytes() []byte {
	m := &b.mod
	out := make([]byte, 0, 256)
	out = appendU32LE(out, Magic)
	out = appendU32LE(out, Version)

	if len(m.Types) > 0 {
		var p []byte
		p = AppendU32(p, uint32(len(m.Types)))
		for _, t := range m.Types {
			p = append(p, 0x60)
			p = appendValTypes(p, t.Params)
			p = appendValTypes(p, t.Results)
		}
		out = appendSection(out, SectionType, p)
	}

	if len(m.Imports) > 0 {
		var p []byte
		p = AppendU32(p, uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			p = appendName(p, imp.Module)
			p = appendName(p, imp.Name)
			p = append(p, imp.Desc.Kind)
			switch imp.Desc.Kind {
			case KindFunc:
				p = AppendU32(p, imp.Desc.TypeIdx)
			case KindTable:
				p = append(p, byte(imp.Desc.Table.ElemType))
				p = appendLimits(p, imp.Desc.Table.Limits)
			case KindMemory:
				p = appendLimits(p, imp.Desc.Memory.Limits)
			case KindGlobal:
				p = append(p, byte(imp.Desc.Global.ValType))
				p = appendBool(p, imp.Desc.Global.Mutable)
			}
		}
		out = appendSection(out, SectionImport, p)
	}

	if len(m.Funcs) > 0 {
		var p []byte
		p = AppendU32(p, uint32(len(m.Funcs)))
		for _, typeIdx := range m.Funcs {
			p = AppendU32(p, typeIdx)
		}
		out = appendSection(out, SectionFunction, p)
	}

	if len(m.Tables) > 0 {
		var p []byte
		p = AppendU32(p, uint32(len(m.Tables)))
		for _, t := range m.Tables {
			p = append(p, byte(t.ElemType))
			p = appendLimits(p, t.Limits)
		}
		out = appendSection(out, SectionTable, p)
	}

	if len(m.Memories) > 0 {
		var p []byte
		p = AppendU32(p, uint32(len(m.Memories)))
		for _, mem := range m.Memories {
			p = appendLimits(p, mem.Limits)
		}
		out = appendSection(out, SectionMemory, p)
	}

	if len(m.Globals) > 0 {
		var p []byte
		p = AppendU32(p, uint32(len(m.Globals)))
		for _, g := range m.Globals {
			p = append(p, byte(g.Type.ValType))
			p = appendBool(p, g.Type.Mutable)
			p = g.Init.append(p)
		}
		out = appendSection(out, SectionGlobal, p)
	}

	if len(m.Exports) > 0 {
		var p []byte
		p = AppendU32(p, uint32(len(m.Exports)))
		for _, e := range m.Exports {
			p = appendName(p, e.Name)
			p = append(p, e.Kind)
			p = AppendU32(p, e.Idx)
		}
		out = appendSection(out, SectionExport, p)
	}

	if m.Start != nil {
		out = appendSection(out, SectionStart, AppendU32(nil, *m.Start))
	}

	if len(m.Elements) > 0 {
		var p []byte
		p = AppendU32(p, uint32(len(m.Elements)))
		for _, e := range m.Elements {
			if e.TableIdx == 0 {
				p = AppendU32(p, 0)
			} else {
				p = AppendU32(p, 2)
				p = AppendU32(p, e.TableIdx)
			}
			p = e.Offset.append(p)
			if e.TableIdx != 0 {
				p = append(p, 0x00) // elemkind funcref
			}
			p = AppendU32(p, uint32(len(e.FuncIdxs)))
			for _, fi := range e.FuncIdxs {
				p = AppendU32(p, fi)
			}
		}
		out = appendSection(out, SectionElement, p)
	}

	if len(m.Code) > 0 {
		var p []byte
		p = AppendU32(p, uint32(len(m.Code)))
		for _, fb := range m.Code {
			var body []byte
			body = AppendU32(body, uint32(len(fb.Locals)))
			for _, l := range fb.Locals {
				body = AppendU32(body, l.Count)
				body = append(body, byte(l.ValType))
			}
			body = append(body, fb.Code...)
			p = AppendU32(p, uint32(len(body)))
			p = append(p, body...)
		}
		out = appendSection(out, SectionCode, p)
	}

	if len(m.Data) > 0 {
		var p []byte
		p = AppendU32(p, uint32(len(m.Data)))
		for _, seg := range m.Data {
			if seg.MemIdx == 0 {
				p = AppendU32(p, 0)
			} else {
				p = AppendU32(p, 2)
				p = AppendU32(p, seg.MemIdx)
			}
			p = seg.Offset.append(p)
			p = AppendU32(p, uint32(len(seg.Init)))
			p = append(p, seg.Init...)
		}
		out = appendSection(out, SectionData, p)
	}

	if m.Name != "" || len(m.FuncNames) > 0 {
		out = appendSection(out, SectionCustom, appendNameSection(m))
	}

	return out
}

func appendNameSection(m *Module) []byte {
	var p []byte
	p = appendName(p, "name")
	if m.Name != "" {
		sub := appendName(nil, m.Name)
		p = append(p, 0)
		p = AppendU32(p, uint32(len(sub)))
		p = append(p, sub...)
	}
	if len(m.FuncNames) > 0 {
		// Emit in ascending function index order for a canonical encoding.
		maxIdx := uint32(0)
		for idx := range m.FuncNames {
			if idx > maxIdx {
				maxIdx = idx
			}
		}
		var sub []byte
		sub = AppendU32(sub, uint32(len(m.FuncNames)))
		for idx := uint32(0); idx <= maxIdx; idx++ {
			name, ok := m.FuncNames[idx]
			if !ok {
				continue
			}
			sub = AppendU32(sub, idx)
			sub = appendName(sub, name)
		}
		p = append(p, 1)
		p = AppendU32(p, uint32(len(sub)))
		p = append(p, sub...)
	}
	return p
}

func appendSection(out []byte, id byte, payload []byte) []byte {
	out = append(out, id)
	out = AppendU32(out, uint32(len(payload)))
	return append(out, payload...)
}

func appendName(dst []byte, s string) []byte {
	dst = AppendU32(dst, uint32(len(s)))
	return append(dst, s...)
}

func appendValTypes(dst []byte, ts []ValType) []byte {
	dst = AppendU32(dst, uint32(len(ts)))
	for _, t := range ts {
		dst = append(dst, byte(t))
	}
	return dst
}

func appendLimits(dst []byte, l Limits) []byte {
	var flags byte
	if l.Max != nil {
		flags |= 0x01
	}
	if l.Shared {
		flags |= 0x02
	}
	dst = append(dst, flags)
	dst = AppendU32(dst, l.Min)
	if l.Max != nil {
		dst = AppendU32(dst, *l.Max)
	}
	return dst
}

func appendBool(dst []byte, v bool) []byte {
	if v {
		return append(dst, 1)
	}
	return append(dst, 0)
}

func appendU32LE(dst []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, v)
}

func appendU64LE(dst []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, v)
}
