package wasm

import (
	"fmt"
	"io"

	"github.com/wippyai/wasm-engine/errors"
)

// Decode parses a WebAssembly binary module into its static description.
// It rejects malformed encodings but performs no structural validation
// beyond what decoding requires; a validating front-end is assumed.
func Decode(data []byte) (*Module, error) {
	r := NewReader(data)

	magic, err := r.U32LE()
	if err != nil {
		return nil, decodeErr("header", err)
	}
	if magic != Magic {
		return nil, errors.InvalidData(errors.PhaseDecode, "invalid wasm magic number")
	}

	version, err := r.U32LE()
	if err != nil {
		return nil, decodeErr("header", err)
	}
	if version != Version {
		return nil, errors.InvalidData(errors.PhaseDecode, fmt.Sprintf("unsupported wasm version %d", version))
	}

	m := &Module{}
	var lastSection byte

	for r.Len() > 0 {
		sectionID, err := r.Byte()
		if err != nil {
			return nil, decodeErr("section header", err)
		}
		if sectionID != SectionCustom {
			if sectionID <= lastSection {
				return nil, errors.InvalidData(errors.PhaseDecode,
					fmt.Sprintf("section %d appears out of order", sectionID))
			}
			lastSection = sectionID
		}

		size, err := r.U32()
		if err != nil {
			return nil, decodeErr("section size", err)
		}
		body, err := r.Bytes(int(size))
		if err != nil {
			return nil, decodeErr("section data", err)
		}
		sr := NewReader(body)

		switch sectionID {
		case SectionCustom:
			if err := decodeCustomSection(sr, m); err != nil {
				return nil, decodeErr("custom section", err)
			}
		case SectionType:
			if err := decodeTypeSection(sr, m); err != nil {
				return nil, decodeErr("type section", err)
			}
		case SectionImport:
			if err := decodeImportSection(sr, m); err != nil {
				return nil, decodeErr("import section", err)
			}
		case SectionFunction:
			if err := decodeFunctionSection(sr, m); err != nil {
				return nil, decodeErr("function section", err)
			}
		case SectionTable:
			if err := decodeTableSection(sr, m); err != nil {
				return nil, decodeErr("table section", err)
			}
		case SectionMemory:
			if err := decodeMemorySection(sr, m); err != nil {
				return nil, decodeErr("memory section", err)
			}
		case SectionGlobal:
			if err := decodeGlobalSection(sr, m); err != nil {
				return nil, decodeErr("global section", err)
			}
		case SectionExport:
			if err := decodeExportSection(sr, m); err != nil {
				return nil, decodeErr("export section", err)
			}
		case SectionStart:
			idx, err := sr.U32()
			if err != nil {
				return nil, decodeErr("start section", err)
			}
			m.Start = &idx
		case SectionElement:
			if err := decodeElementSection(sr, m); err != nil {
				return nil, decodeErr("element section", err)
			}
		case SectionCode:
			if err := decodeCodeSection(sr, m); err != nil {
				return nil, decodeErr("code section", err)
			}
		case SectionData:
			if err := decodeDataSection(sr, m); err != nil {
				return nil, decodeErr("data section", err)
			}
		default:
			return nil, errors.Unsupported(errors.PhaseDecode,
				fmt.Sprintf("section id %d", sectionID))
		}
	}

	if len(m.Funcs) != len(m.Code) {
		return nil, errors.InvalidData(errors.PhaseDecode,
			fmt.Sprintf("function section declares %d functions, code section has %d bodies",
				len(m.Funcs), len(m.Code)))
	}
	return m, nil
}

func decodeErr(where string, err error) error {
	if err == io.ErrUnexpectedEOF {
		return errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, where+": truncated")
	}
	return errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, where)
}

func decodeTypeSection(r *Reader, m *Module) error {
	count, err := r.U32()
	if err != nil {
		return err
	}
	m.Types = make([]FuncType, 0, count)
	for i := uint32(0); i < count; i++ {
		form, err := r.Byte()
		if err != nil {
			return err
		}
		if form != 0x60 {
			return fmt.Errorf("type %d: unsupported type form 0x%02x", i, form)
		}
		params, err := decodeValTypes(r)
		if err != nil {
			return err
		}
		results, err := decodeValTypes(r)
		if err != nil {
			return err
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func decodeValTypes(r *Reader) ([]ValType, error) {
	count, err := r.U32()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	out := make([]ValType, count)
	for i := range out {
		b, err := r.Byte()
		if err != nil {
			return nil, err
		}
		out[i] = ValType(b)
	}
	return out, nil
}

func decodeImportSection(r *Reader, m *Module) error {
	count, err := r.U32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		module, err := r.Name()
		if err != nil {
			return err
		}
		name, err := r.Name()
		if err != nil {
			return err
		}
		kind, err := r.Byte()
		if err != nil {
			return err
		}
		imp := Import{Module: module, Name: name, Desc: ImportDesc{Kind: kind}}
		switch kind {
		case KindFunc:
			if imp.Desc.TypeIdx, err = r.U32(); err != nil {
				return err
			}
		case KindTable:
			tt, err := decodeTableType(r)
			if err != nil {
				return err
			}
			imp.Desc.Table = &tt
		case KindMemory:
			limits, err := decodeLimits(r)
			if err != nil {
				return err
			}
			imp.Desc.Memory = &MemoryType{Limits: limits}
		case KindGlobal:
			gt, err := decodeGlobalType(r)
			if err != nil {
				return err
			}
			imp.Desc.Global = &gt
		default:
			return fmt.Errorf("import %d: unknown kind 0x%02x", i, kind)
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func decodeFunctionSection(r *Reader, m *Module) error {
	count, err := r.U32()
	if err != nil {
		return err
	}
	m.Funcs = make([]uint32, count)
	for i := range m.Funcs {
		if m.Funcs[i], err = r.U32(); err != nil {
			return err
		}
	}
	return nil
}

func decodeTableType(r *Reader) (TableType, error) {
	elem, err := r.Byte()
	if err != nil {
		return TableType{}, err
	}
	limits, err := decodeLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ElemType: ValType(elem), Limits: limits}, nil
}

func decodeLimits(r *Reader) (Limits, error) {
	flags, err := r.Byte()
	if err != nil {
		return Limits{}, err
	}
	var l Limits
	if l.Min, err = r.U32(); err != nil {
		return Limits{}, err
	}
	if flags&0x01 != 0 {
		max, err := r.U32()
		if err != nil {
			return Limits{}, err
		}
		l.Max = &max
	}
	l.Shared = flags&0x02 != 0
	return l, nil
}

func decodeGlobalType(r *Reader) (GlobalType, error) {
	vt, err := r.Byte()
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.Byte()
	if err != nil {
		return GlobalType{}, err
	}
	return GlobalType{ValType: ValType(vt), Mutable: mut == 1}, nil
}

func decodeTableSection(r *Reader, m *Module) error {
	count, err := r.U32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		tt, err := decodeTableType(r)
		if err != nil {
			return err
		}
		m.Tables = append(m.Tables, tt)
	}
	return nil
}

func decodeMemorySection(r *Reader, m *Module) error {
	count, err := r.U32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		limits, err := decodeLimits(r)
		if err != nil {
			return err
		}
		m.Memories = append(m.Memories, MemoryType{Limits: limits})
	}
	return nil
}

func decodeGlobalSection(r *Reader, m *Module) error {
	count, err := r.U32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		gt, err := decodeGlobalType(r)
		if err != nil {
			return err
		}
		init, err := decodeConstExpr(r)
		if err != nil {
			return err
		}
		m.Globals = append(m.Globals, Global{Type: gt, Init: init})
	}
	return nil
}

func decodeExportSection(r *Reader, m *Module) error {
	count, err := r.U32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := r.Name()
		if err != nil {
			return err
		}
		kind, err := r.Byte()
		if err != nil {
			return err
		}
		idx, err := r.U32()
		if err != nil {
			return err
		}
		m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Idx: idx})
	}
	return nil
}

func decodeElementSection(r *Reader, m *Module) error {
	count, err := r.U32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		flags, err := r.U32()
		if err != nil {
			return err
		}
		// Only active funcref segments (flags 0 and 2); passive and
		// expression-form segments belong to the bulk-memory proposal.
		if flags != 0 && flags != 2 {
			return errors.Unsupported(errors.PhaseDecode,
				fmt.Sprintf("element segment flags %d", flags))
		}
		var elem Element
		if flags == 2 {
			if elem.TableIdx, err = r.U32(); err != nil {
				return err
			}
		}
		if elem.Offset, err = decodeConstExpr(r); err != nil {
			return err
		}
		if flags == 2 {
			kind, err := r.Byte()
			if err != nil {
				return err
			}
			if kind != 0x00 {
				return fmt.Errorf("element segment %d: unsupported elemkind 0x%02x", i, kind)
			}
		}
		n, err := r.U32()
		if err != nil {
			return err
		}
		elem.FuncIdxs = make([]uint32, n)
		for j := range elem.FuncIdxs {
			if elem.FuncIdxs[j], err = r.U32(); err != nil {
				return err
			}
		}
		m.Elements = append(m.Elements, elem)
	}
	return nil
}

func decodeCodeSection(r *Reader, m *Module) error {
	count, err := r.U32()
	if err != nil {
		return err
	}
	m.Code = make([]FuncBody, 0, count)
	for i := uint32(0); i < count; i++ {
		size, err := r.U32()
		if err != nil {
			return err
		}
		body, err := r.Bytes(int(size))
		if err != nil {
			return err
		}
		br := NewReader(body)
		localGroups, err := br.U32()
		if err != nil {
			return err
		}
		var fb FuncBody
		for j := uint32(0); j < localGroups; j++ {
			n, err := br.U32()
			if err != nil {
				return err
			}
			vt, err := br.Byte()
			if err != nil {
				return err
			}
			fb.Locals = append(fb.Locals, LocalEntry{Count: n, ValType: ValType(vt)})
		}
		fb.Code = body[br.Pos():]
		m.Code = append(m.Code, fb)
	}
	return nil
}

func decodeDataSection(r *Reader, m *Module) error {
	count, err := r.U32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		flags, err := r.U32()
		if err != nil {
			return err
		}
		if flags != 0 && flags != 2 {
			return errors.Unsupported(errors.PhaseDecode,
				fmt.Sprintf("data segment flags %d", flags))
		}
		var seg DataSegment
		if flags == 2 {
			if seg.MemIdx, err = r.U32(); err != nil {
				return err
			}
		}
		if seg.Offset, err = decodeConstExpr(r); err != nil {
			return err
		}
		n, err := r.U32()
		if err != nil {
			return err
		}
		if seg.Init, err = r.Bytes(int(n)); err != nil {
			return err
		}
		m.Data = append(m.Data, seg)
	}
	return nil
}

// decodeCustomSection reads the "name" custom section for module and
// function names. Other custom sections are skipped.
func decodeCustomSection(r *Reader, m *Module) error {
	name, err := r.Name()
	if err != nil {
		return err
	}
	if name != "name" {
		return nil
	}
	for r.Len() > 0 {
		subID, err := r.Byte()
		if err != nil {
			return err
		}
		size, err := r.U32()
		if err != nil {
			return err
		}
		body, err := r.Bytes(int(size))
		if err != nil {
			return err
		}
		sr := NewReader(body)
		switch subID {
		case 0: // module name
			if m.Name, err = sr.Name(); err != nil {
				return err
			}
		case 1: // function names
			count, err := sr.U32()
			if err != nil {
				return err
			}
			if m.FuncNames == nil {
				m.FuncNames = make(map[uint32]string, count)
			}
			for i := uint32(0); i < count; i++ {
				idx, err := sr.U32()
				if err != nil {
					return err
				}
				fn, err := sr.Name()
				if err != nil {
					return err
				}
				m.FuncNames[idx] = fn
			}
		}
	}
	return nil
}
