package wasm

import (
	"math"

	"github.com/wippyai/wasm-engine/errors"
)

// ConstExpr is a parsed constant expression: a single const or global.get
// instruction followed by end. Used for global initializers and data/element
// segment offsets.
type ConstExpr struct {
	Op    byte
	Value uint64 // Raw bits for consts; global index for OpGlobalGet
}

// I32Const builds an i32.const expression.
func I32Const(v int32) ConstExpr {
	return ConstExpr{Op: OpI32Const, Value: uint64(uint32(v))}
}

// I64Const builds an i64.const expression.
func I64Const(v int64) ConstExpr {
	return ConstExpr{Op: OpI64Const, Value: uint64(v)}
}

// F32Const builds an f32.const expression.
func F32Const(v float32) ConstExpr {
	return ConstExpr{Op: OpF32Const, Value: uint64(math.Float32bits(v))}
}

// F64Const builds an f64.const expression.
func F64Const(v float64) ConstExpr {
	return ConstExpr{Op: OpF64Const, Value: math.Float64bits(v)}
}

// GlobalGet builds a global.get expression reading global idx.
func GlobalGet(idx uint32) ConstExpr {
	return ConstExpr{Op: OpGlobalGet, Value: uint64(idx)}
}

// Eval evaluates the expression. globalRead resolves a global index to its
// current raw value; initializers may only read earlier (imported or already
// initialized) globals, which the caller enforces by initialization order.
func (e ConstExpr) Eval(globalRead func(idx uint32) (uint64, bool)) (uint64, error) {
	switch e.Op {
	case OpI32Const, OpI64Const, OpF32Const, OpF64Const:
		return e.Value, nil
	case OpGlobalGet:
		v, ok := globalRead(uint32(e.Value))
		if !ok {
			return 0, errors.InitializerFailed("initializer reads undefined global %d", e.Value)
		}
		return v, nil
	default:
		return 0, errors.InvalidData(errors.PhaseInstantiate, "unsupported constant expression opcode")
	}
}

func decodeConstExpr(r *Reader) (ConstExpr, error) {
	op, err := r.Byte()
	if err != nil {
		return ConstExpr{}, err
	}
	var e ConstExpr
	e.Op = op
	switch op {
	case OpI32Const:
		v, err := r.S32()
		if err != nil {
			return ConstExpr{}, err
		}
		e.Value = uint64(uint32(v))
	case OpI64Const:
		v, err := r.S64()
		if err != nil {
			return ConstExpr{}, err
		}
		e.Value = uint64(v)
	case OpF32Const:
		v, err := r.F32()
		if err != nil {
			return ConstExpr{}, err
		}
		e.Value = uint64(math.Float32bits(v))
	case OpF64Const:
		v, err := r.F64()
		if err != nil {
			return ConstExpr{}, err
		}
		e.Value = math.Float64bits(v)
	case OpGlobalGet:
		v, err := r.U32()
		if err != nil {
			return ConstExpr{}, err
		}
		e.Value = uint64(v)
	default:
		return ConstExpr{}, errors.InvalidData(errors.PhaseDecode, "unsupported constant expression opcode")
	}
	end, err := r.Byte()
	if err != nil {
		return ConstExpr{}, err
	}
	if end != OpEnd {
		return ConstExpr{}, errors.InvalidData(errors.PhaseDecode, "constant expression not terminated by end")
	}
	return e, nil
}

func (e ConstExpr) append(dst []byte) []byte {
	dst = append(dst, e.Op)
	switch e.Op {
	case OpI32Const:
		dst = AppendS32(dst, int32(uint32(e.Value)))
	case OpI64Const:
		dst = AppendS64(dst, int64(e.Value))
	case OpF32Const:
		dst = appendU32LE(dst, uint32(e.Value))
	case OpF64Const:
		dst = appendU64LE(dst, e.Value)
	case OpGlobalGet:
		dst = AppendU32(dst, uint32(e.Value))
	}
	return append(dst, OpEnd)
}
