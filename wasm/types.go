package wasm

import "strings"

// Module is the static, compiler-independent description of a WebAssembly
// module. It is immutable after Decode and may be shared by many artifacts
// and instances.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // Type indices for locally defined functions
	Tables   []TableType
	Memories []MemoryType
	Globals  []Global
	Exports  []Export
	Start    *uint32
	Elements []Element
	Code     []FuncBody
	Data     []DataSegment

	// Name is the module name from the custom "name" section, if present.
	Name string

	// FuncNames maps function index to its name from the custom "name"
	// section. Used for backtraces; may be nil.
	FuncNames map[uint32]string
}

// ValType represents a WebAssembly value type.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValFuncRef:
		return "funcref"
	default:
		return "unknown"
	}
}

// FuncType represents a WebAssembly function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// String renders the signature, e.g. "func(i32, i32) -> i32". The rendered
// form is also the key used for signature identity in indirect-call checks.
func (t FuncType) String() string {
	var b strings.Builder
	b.WriteString("func(")
	for i, p := range t.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteByte(')')
	if len(t.Results) > 0 {
		b.WriteString(" -> ")
		for i, r := range t.Results {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(r.String())
		}
	}
	return b.String()
}

// Equal reports whether two signatures have identical params and results.
func (t FuncType) Equal(other FuncType) bool {
	if len(t.Params) != len(other.Params) || len(t.Results) != len(other.Results) {
		return false
	}
	for i := range t.Params {
		if t.Params[i] != other.Params[i] {
			return false
		}
	}
	for i := range t.Results {
		if t.Results[i] != other.Results[i] {
			return false
		}
	}
	return true
}

// Import represents an imported function, table, memory, or global.
type Import struct {
	Module string
	Name   string
	Desc   ImportDesc
}

// ImportDesc describes an imported item.
// Kind uses KindFunc, KindTable, KindMemory, or KindGlobal constants.
type ImportDesc struct {
	Table   *TableType
	Memory  *MemoryType
	Global  *GlobalType
	TypeIdx uint32
	Kind    byte
}

// KindName returns the human-readable extern kind for an import/export kind byte.
func KindName(kind byte) string {
	switch kind {
	case KindFunc:
		return "function"
	case KindTable:
		return "table"
	case KindMemory:
		return "memory"
	case KindGlobal:
		return "global"
	default:
		return "unknown"
	}
}

// Limits describes size constraints for tables and memories.
// Sizes are in pages for memories and elements for tables.
type Limits struct {
	Max    *uint32
	Min    uint32
	Shared bool
}

// TableType describes a table with element type and size limits.
type TableType struct {
	ElemType ValType
	Limits   Limits
}

// MemoryType describes a linear memory with size limits.
type MemoryType struct {
	Limits Limits
}

// GlobalType describes a global variable's type and mutability.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// String renders a global type, e.g. "mut i32".
func (t GlobalType) String() string {
	if t.Mutable {
		return "mut " + t.ValType.String()
	}
	return t.ValType.String()
}

// Global represents a global variable declaration with its initializer.
type Global struct {
	Type GlobalType
	Init ConstExpr
}

// Export describes an exported item.
// Kind uses KindFunc, KindTable, KindMemory, or KindGlobal constants.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// Element represents an active element segment: function indices copied into
// a table at instantiation time.
type Element struct {
	TableIdx uint32
	Offset   ConstExpr
	FuncIdxs []uint32
}

// DataSegment represents an active data segment: bytes copied into a memory
// at instantiation time.
type DataSegment struct {
	MemIdx uint32
	Offset ConstExpr
	Init   []byte
}

// FuncBody represents a function's local declarations and bytecode.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte // Raw code bytes including the end opcode
}

// LocalEntry represents a group of local variables with the same type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// NumLocals returns the total number of declared locals (excluding params).
func (b FuncBody) NumLocals() uint32 {
	var n uint32
	for _, l := range b.Locals {
		n += l.Count
	}
	return n
}

// NumImportedFuncs returns the number of imported functions.
func (m *Module) NumImportedFuncs() uint32 {
	var count uint32
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc {
			count++
		}
	}
	return count
}

// NumImportedMemories returns the number of imported memories.
func (m *Module) NumImportedMemories() uint32 {
	var count uint32
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindMemory {
			count++
		}
	}
	return count
}

// NumImportedTables returns the number of imported tables.
func (m *Module) NumImportedTables() uint32 {
	var count uint32
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindTable {
			count++
		}
	}
	return count
}

// NumImportedGlobals returns the number of imported globals.
func (m *Module) NumImportedGlobals() uint32 {
	var count uint32
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindGlobal {
			count++
		}
	}
	return count
}

// FuncTypeIndex returns the type index of the function at idx in the
// combined index space (imports first, then locally defined functions).
func (m *Module) FuncTypeIndex(idx uint32) uint32 {
	imported := m.NumImportedFuncs()
	if idx < imported {
		var seen uint32
		for _, imp := range m.Imports {
			if imp.Desc.Kind != KindFunc {
				continue
			}
			if seen == idx {
				return imp.Desc.TypeIdx
			}
			seen++
		}
	}
	return m.Funcs[idx-imported]
}

// FuncName returns the function's name from the name section, or a
// synthesized "func[N]" placeholder.
func (m *Module) FuncName(idx uint32) string {
	if name, ok := m.FuncNames[idx]; ok {
		return name
	}
	return "func[" + itoa(idx) + "]"
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// ExportedFunc returns the function index exported under name.
func (m *Module) ExportedFunc(name string) (uint32, bool) {
	for _, exp := range m.Exports {
		if exp.Name == name && exp.Kind == KindFunc {
			return exp.Idx, true
		}
	}
	return 0, false
}
