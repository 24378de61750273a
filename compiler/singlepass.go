package compiler

import (
	"math"

	"github.com/wippyai/wasm-engine/errors"
	"github.com/wippyai/wasm-engine/trap"
	"github.com/wippyai/wasm-engine/wasm"
)

// SinglePass lowers function bodies in one left-to-right walk. Structured
// control flow becomes branches carrying explicit stack-drop ranges, so
// the output stream needs no label resolution at run time.
type SinglePass struct{}

// Name implements Compiler.
func (SinglePass) Name() string { return "singlepass" }

// Compile implements Compiler.
func (SinglePass) Compile(m *wasm.Module, _ Target) ([]*CompiledFunction, error) {
	out := make([]*CompiledFunction, len(m.Code))
	for i := range m.Code {
		fn, err := lowerFunc(m, uint32(i))
		if err != nil {
			return nil, errors.Wrap(errors.PhaseCompile, errors.KindInvalidData, err,
				"lowering "+m.FuncName(m.NumImportedFuncs()+uint32(i)))
		}
		out[i] = fn
	}
	return out, nil
}

const (
	frameFunc = iota
	frameBlock
	frameLoop
	frameIf
)

type ctrlFrame struct {
	kind    int
	height  int // operand height at entry
	results int
	endLbl  uint64
	contLbl uint64 // loop continuation
	elseLbl uint64 // if false edge
	hasElse bool
	dead    bool
}

type lowering struct {
	m       *wasm.Module
	r       *wasm.Reader
	fn      *CompiledFunction
	frames  []ctrlFrame
	labels  map[uint64]uint64
	nextLbl uint64
	height  int
	max     int
}

func lowerFunc(m *wasm.Module, local uint32) (*CompiledFunction, error) {
	typeIdx := m.Funcs[local]
	if int(typeIdx) >= len(m.Types) {
		return nil, errors.InvalidData(errors.PhaseCompile, "function type index out of range")
	}
	ft := m.Types[typeIdx]
	body := &m.Code[local]

	l := &lowering{
		m: m,
		r: wasm.NewReader(body.Code),
		fn: &CompiledFunction{
			TypeIndex: typeIdx,
			NumLocals: uint32(len(ft.Params)) + body.NumLocals(),
		},
		labels: make(map[uint64]uint64),
	}
	l.frames = append(l.frames, ctrlFrame{
		kind:    frameFunc,
		results: len(ft.Results),
		endLbl:  l.newLabel(),
	})

	for l.r.Len() > 0 {
		if err := l.step(); err != nil {
			return nil, err
		}
	}
	if len(l.frames) != 0 {
		return nil, errors.InvalidData(errors.PhaseCompile, "function body ended inside a block")
	}

	// Branches were emitted against label ids; rewrite them to
	// instruction offsets now that every label has a position.
	for i := range l.fn.Ops {
		op := &l.fn.Ops[i]
		switch op.Kind {
		case KindBr:
			op.Then.PC = l.labels[op.Then.PC]
		case KindBrIf:
			op.Then.PC = l.labels[op.Then.PC]
			op.Else.PC = l.labels[op.Else.PC]
		case KindBrTable:
			for j := range op.Table {
				op.Table[j].PC = l.labels[op.Table[j].PC]
			}
		}
	}

	l.fn.MaxStack = uint32(l.max)
	return l.fn, nil
}

func (l *lowering) newLabel() uint64 {
	l.nextLbl++
	return l.nextLbl
}

func (l *lowering) define(lbl uint64) {
	l.labels[lbl] = uint64(len(l.fn.Ops))
}

func (l *lowering) top() *ctrlFrame {
	return &l.frames[len(l.frames)-1]
}

func (l *lowering) emit(op Op, src int) {
	l.fn.Ops = append(l.fn.Ops, op)
	l.fn.Sources = append(l.fn.Sources, uint32(src))
}

// site records a trap classification for the next emitted instruction.
func (l *lowering) site(code trap.Code) {
	l.fn.Sites = append(l.fn.Sites, trap.Site{Offset: uint32(len(l.fn.Ops)), Code: code})
}

func (l *lowering) push(n int) {
	l.height += n
	if l.height > l.max {
		l.max = l.height
	}
}

func (l *lowering) pop(n int) error {
	if l.height < n {
		return errors.InvalidData(errors.PhaseCompile, "operand stack underflow")
	}
	l.height -= n
	return nil
}

// branchTo resolves a label depth to a branch edge, computing the stack
// entries to drop so the target frame sees exactly its expected operands.
func (l *lowering) branchTo(depth uint32) (Branch, error) {
	if int(depth) >= len(l.frames) {
		return Branch{}, errors.InvalidData(errors.PhaseCompile, "branch depth out of range")
	}
	f := &l.frames[len(l.frames)-1-int(depth)]
	keep := f.results
	lbl := f.endLbl
	if f.kind == frameLoop {
		keep = 0
		lbl = f.contLbl
	}
	br := Branch{PC: lbl, Drop: NoDrop}
	if extra := l.height - keep - f.height; extra > 0 {
		br.Drop = Range{Start: int32(keep), End: int32(keep + extra - 1)}
	}
	return br, nil
}

func (l *lowering) blockType() (int, error) {
	bt, err := l.r.S32()
	if err != nil {
		return 0, err
	}
	switch bt {
	case wasm.BlockTypeVoid:
		return 0, nil
	case -0x01, -0x02, -0x03, -0x04: // i32, i64, f32, f64
		return 1, nil
	}
	return 0, errors.Unsupported(errors.PhaseCompile, "typed block signatures")
}

func (l *lowering) globalType(idx uint32) (wasm.GlobalType, error) {
	var seen uint32
	for _, imp := range l.m.Imports {
		if imp.Desc.Kind != wasm.KindGlobal {
			continue
		}
		if seen == idx {
			return *imp.Desc.Global, nil
		}
		seen++
	}
	local := idx - seen
	if int(local) >= len(l.m.Globals) {
		return wasm.GlobalType{}, errors.InvalidData(errors.PhaseCompile, "global index out of range")
	}
	return l.m.Globals[local].Type, nil
}

func (l *lowering) step() error {
	src := l.r.Pos()
	op, err := l.r.Byte()
	if err != nil {
		return err
	}
	live := !l.top().dead

	switch op {
	case wasm.OpNop:
		// no output

	case wasm.OpUnreachable:
		if live {
			l.site(trap.Unreachable)
			l.emit(Op{Kind: Kind(op)}, src)
			l.top().dead = true
		}

	case wasm.OpBlock:
		results, err := l.blockType()
		if err != nil {
			return err
		}
		l.frames = append(l.frames, ctrlFrame{
			kind:    frameBlock,
			height:  l.height,
			results: results,
			endLbl:  l.newLabel(),
			dead:    !live,
		})

	case wasm.OpLoop:
		results, err := l.blockType()
		if err != nil {
			return err
		}
		f := ctrlFrame{
			kind:    frameLoop,
			height:  l.height,
			results: results,
			endLbl:  l.newLabel(),
			contLbl: l.newLabel(),
			dead:    !live,
		}
		l.define(f.contLbl)
		l.frames = append(l.frames, f)

	case wasm.OpIf:
		results, err := l.blockType()
		if err != nil {
			return err
		}
		f := ctrlFrame{
			kind:    frameIf,
			results: results,
			endLbl:  l.newLabel(),
			elseLbl: l.newLabel(),
			dead:    !live,
		}
		if live {
			if err := l.pop(1); err != nil {
				return err
			}
			f.height = l.height
			thenLbl := l.newLabel()
			l.emit(Op{
				Kind: KindBrIf,
				Then: Branch{PC: thenLbl, Drop: NoDrop},
				Else: Branch{PC: f.elseLbl, Drop: NoDrop},
			}, src)
			l.define(thenLbl)
		}
		l.frames = append(l.frames, f)

	case wasm.OpElse:
		f := l.top()
		if f.kind != frameIf {
			return errors.InvalidData(errors.PhaseCompile, "else outside if")
		}
		if !f.dead {
			br, err := l.branchTo(0)
			if err != nil {
				return err
			}
			l.emit(Op{Kind: KindBr, Then: br}, src)
		}
		f.hasElse = true
		f.dead = l.frames[len(l.frames)-2].dead
		l.define(f.elseLbl)
		l.height = f.height

	case wasm.OpEnd:
		f := *l.top()
		l.frames = l.frames[:len(l.frames)-1]
		if f.kind == frameIf && !f.hasElse {
			l.define(f.elseLbl)
		}
		l.define(f.endLbl)
		l.height = f.height + f.results
		if l.height > l.max {
			l.max = l.height
		}
		if f.kind == frameFunc {
			l.emit(Op{Kind: KindReturn}, src)
			if l.r.Len() != 0 {
				return errors.InvalidData(errors.PhaseCompile, "trailing bytes after function end")
			}
		}

	case wasm.OpBr:
		depth, err := l.r.U32()
		if err != nil {
			return err
		}
		if live {
			br, err := l.branchTo(depth)
			if err != nil {
				return err
			}
			l.emit(Op{Kind: KindBr, Then: br}, src)
			l.top().dead = true
		}

	case wasm.OpBrIf:
		depth, err := l.r.U32()
		if err != nil {
			return err
		}
		if live {
			if err := l.pop(1); err != nil {
				return err
			}
			then, err := l.branchTo(depth)
			if err != nil {
				return err
			}
			fall := l.newLabel()
			l.emit(Op{
				Kind: KindBrIf,
				Then: then,
				Else: Branch{PC: fall, Drop: NoDrop},
			}, src)
			l.define(fall)
		}

	case wasm.OpBrTable:
		count, err := l.r.U32()
		if err != nil {
			return err
		}
		depths := make([]uint32, count+1)
		for i := range depths {
			if depths[i], err = l.r.U32(); err != nil {
				return err
			}
		}
		if live {
			if err := l.pop(1); err != nil {
				return err
			}
			table := make([]Branch, len(depths))
			for i, d := range depths {
				if table[i], err = l.branchTo(d); err != nil {
					return err
				}
			}
			l.emit(Op{Kind: KindBrTable, Table: table}, src)
			l.top().dead = true
		}

	case wasm.OpReturn:
		if live {
			l.emit(Op{Kind: KindReturn}, src)
			l.top().dead = true
		}

	case wasm.OpCall:
		idx, err := l.r.U32()
		if err != nil {
			return err
		}
		if live {
			if idx >= l.m.NumImportedFuncs()+uint32(len(l.m.Funcs)) {
				return errors.InvalidData(errors.PhaseCompile, "call target out of range")
			}
			ft := l.m.Types[l.m.FuncTypeIndex(idx)]
			if err := l.pop(len(ft.Params)); err != nil {
				return err
			}
			l.push(len(ft.Results))
			l.fn.Relocs = append(l.fn.Relocs, Reloc{
				OpIndex:   uint32(len(l.fn.Ops)),
				FuncIndex: idx,
			})
			l.emit(Op{Kind: Kind(op), U1: uint64(idx)}, src)
		}

	case wasm.OpCallIndirect:
		typeIdx, err := l.r.U32()
		if err != nil {
			return err
		}
		tableIdx, err := l.r.U32()
		if err != nil {
			return err
		}
		if live {
			if int(typeIdx) >= len(l.m.Types) {
				return errors.InvalidData(errors.PhaseCompile, "call_indirect type index out of range")
			}
			if tableIdx != 0 {
				return errors.Unsupported(errors.PhaseCompile, "multiple tables")
			}
			if l.m.NumImportedTables()+uint32(len(l.m.Tables)) == 0 {
				return errors.InvalidData(errors.PhaseCompile, "call_indirect without a table")
			}
			ft := l.m.Types[typeIdx]
			if err := l.pop(1 + len(ft.Params)); err != nil {
				return err
			}
			l.push(len(ft.Results))
			l.site(trap.OutOfBoundsTable)
			l.emit(Op{Kind: Kind(op), U1: uint64(typeIdx), U2: uint64(tableIdx)}, src)
		}

	case wasm.OpDrop:
		if live {
			if err := l.pop(1); err != nil {
				return err
			}
			l.emit(Op{Kind: Kind(op)}, src)
		}

	case wasm.OpSelect:
		if live {
			if err := l.pop(3); err != nil {
				return err
			}
			l.push(1)
			l.emit(Op{Kind: Kind(op)}, src)
		}

	case wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee:
		idx, err := l.r.U32()
		if err != nil {
			return err
		}
		if live {
			if idx >= l.fn.NumLocals {
				return errors.InvalidData(errors.PhaseCompile, "local index out of range")
			}
			switch op {
			case wasm.OpLocalGet:
				l.push(1)
			case wasm.OpLocalSet:
				if err := l.pop(1); err != nil {
					return err
				}
			}
			l.emit(Op{Kind: Kind(op), U1: uint64(idx)}, src)
		}

	case wasm.OpGlobalGet, wasm.OpGlobalSet:
		idx, err := l.r.U32()
		if err != nil {
			return err
		}
		if live {
			gt, err := l.globalType(idx)
			if err != nil {
				return err
			}
			if op == wasm.OpGlobalGet {
				l.push(1)
			} else {
				if !gt.Mutable {
					return errors.InvalidData(errors.PhaseCompile, "global.set on immutable global")
				}
				if err := l.pop(1); err != nil {
					return err
				}
			}
			l.emit(Op{Kind: Kind(op), U1: uint64(idx)}, src)
		}

	case wasm.OpMemorySize, wasm.OpMemoryGrow:
		reserved, err := l.r.U32()
		if err != nil {
			return err
		}
		if live {
			if reserved != 0 {
				return errors.InvalidData(errors.PhaseCompile, "nonzero memory index")
			}
			if err := l.requireMemory(); err != nil {
				return err
			}
			if op == wasm.OpMemoryGrow {
				if err := l.pop(1); err != nil {
					return err
				}
			}
			l.push(1)
			l.emit(Op{Kind: Kind(op)}, src)
		}

	case wasm.OpI32Const:
		v, err := l.r.S32()
		if err != nil {
			return err
		}
		if live {
			l.push(1)
			l.emit(Op{Kind: Kind(op), U1: uint64(uint32(v))}, src)
		}

	case wasm.OpI64Const:
		v, err := l.r.S64()
		if err != nil {
			return err
		}
		if live {
			l.push(1)
			l.emit(Op{Kind: Kind(op), U1: uint64(v)}, src)
		}

	case wasm.OpF32Const:
		v, err := l.r.F32()
		if err != nil {
			return err
		}
		if live {
			l.push(1)
			l.emit(Op{Kind: Kind(op), U1: uint64(math.Float32bits(v))}, src)
		}

	case wasm.OpF64Const:
		v, err := l.r.F64()
		if err != nil {
			return err
		}
		if live {
			l.push(1)
			l.emit(Op{Kind: Kind(op), U1: math.Float64bits(v)}, src)
		}

	default:
		if op >= wasm.OpI32Load && op <= wasm.OpI64Store32 {
			return l.lowerMemAccess(op, src, live)
		}
		pops, pushes, ok := stackEffect(op)
		if !ok {
			return errors.Unsupported(errors.PhaseCompile, "opcode 0x"+hexByte(op))
		}
		if live {
			if code, hasSite := siteFor(op); hasSite {
				l.site(code)
			}
			if err := l.pop(pops); err != nil {
				return err
			}
			l.push(pushes)
			l.emit(Op{Kind: Kind(op)}, src)
		}
	}
	return nil
}

func (l *lowering) lowerMemAccess(op byte, src int, live bool) error {
	if _, err := l.r.U32(); err != nil { // alignment hint, unused
		return err
	}
	offset, err := l.r.U32()
	if err != nil {
		return err
	}
	if !live {
		return nil
	}
	if err := l.requireMemory(); err != nil {
		return err
	}
	isStore := op >= wasm.OpI32Store
	if isStore {
		if err := l.pop(2); err != nil {
			return err
		}
	} else {
		if err := l.pop(1); err != nil {
			return err
		}
		l.push(1)
	}
	l.site(trap.OutOfBoundsMemory)
	l.emit(Op{Kind: Kind(op), U1: uint64(offset)}, src)
	return nil
}

func (l *lowering) requireMemory() error {
	if l.m.NumImportedMemories()+uint32(len(l.m.Memories)) == 0 {
		return errors.InvalidData(errors.PhaseCompile, "memory access without a memory")
	}
	return nil
}

// stackEffect reports operand pops and pushes for plain numeric opcodes.
func stackEffect(op byte) (pops, pushes int, ok bool) {
	switch {
	case op == wasm.OpI32Eqz || op == wasm.OpI64Eqz:
		return 1, 1, true
	case op >= wasm.OpI32Eq && op <= wasm.OpF64Ge: // comparisons
		return 2, 1, true
	case op >= wasm.OpI32Clz && op <= wasm.OpI32Popcnt:
		return 1, 1, true
	case op >= wasm.OpI32Add && op <= wasm.OpI32Rotr:
		return 2, 1, true
	case op >= wasm.OpI64Clz && op <= wasm.OpI64Popcnt:
		return 1, 1, true
	case op >= wasm.OpI64Add && op <= wasm.OpI64Rotr:
		return 2, 1, true
	case op >= wasm.OpF32Abs && op <= wasm.OpF32Sqrt:
		return 1, 1, true
	case op >= wasm.OpF32Add && op <= wasm.OpF32Copysign:
		return 2, 1, true
	case op >= wasm.OpF64Abs && op <= wasm.OpF64Sqrt:
		return 1, 1, true
	case op >= wasm.OpF64Add && op <= wasm.OpF64Copysign:
		return 2, 1, true
	case op >= wasm.OpI32WrapI64 && op <= wasm.OpF64ReinterpretI64: // conversions
		return 1, 1, true
	case op >= wasm.OpI32Extend8S && op <= wasm.OpI64Extend32S:
		return 1, 1, true
	}
	return 0, 0, false
}

// siteFor reports the trap classification for numeric opcodes that can
// fault at run time.
func siteFor(op byte) (trap.Code, bool) {
	switch op {
	case wasm.OpI32DivS, wasm.OpI32DivU, wasm.OpI32RemS, wasm.OpI32RemU,
		wasm.OpI64DivS, wasm.OpI64DivU, wasm.OpI64RemS, wasm.OpI64RemU:
		return trap.IntegerDivideByZero, true
	case wasm.OpI32TruncF32S, wasm.OpI32TruncF32U, wasm.OpI32TruncF64S, wasm.OpI32TruncF64U,
		wasm.OpI64TruncF32S, wasm.OpI64TruncF32U, wasm.OpI64TruncF64S, wasm.OpI64TruncF64U:
		return trap.InvalidConversionToInteger, true
	}
	return 0, false
}

func hexByte(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0xF]})
}
