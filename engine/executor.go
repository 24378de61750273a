package engine

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"runtime"

	"github.com/wippyai/wasm-engine/compiler"
	"github.com/wippyai/wasm-engine/errors"
	"github.com/wippyai/wasm-engine/trap"
	"github.com/wippyai/wasm-engine/vm"
	"github.com/wippyai/wasm-engine/wasm"
)

// callStackCeiling bounds guest call nesting. Exceeding it raises a
// stack-overflow trap instead of exhausting the host stack.
var callStackCeiling = 2000

// SetCallDepthLimit overrides the default guest call nesting bound. It
// applies process-wide and should be set before any call runs.
func SetCallDepthLimit(n int) {
	if n > 0 {
		callStackCeiling = n
	}
}

type callFrame struct {
	fn     *vm.Function
	pc     int
	stack  []uint64
	locals []uint64
}

func (f *callFrame) push(v uint64) { f.stack = append(f.stack, v) }

func (f *callFrame) pop() uint64 {
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

// popN removes the top n values, preserving their order.
func (f *callFrame) popN(n int) []uint64 {
	out := f.stack[len(f.stack)-n:]
	f.stack = f.stack[:len(f.stack)-n]
	return out
}

// drop removes the stack entries a branch marks dead, counted as
// inclusive depths from the top.
func (f *callFrame) drop(r compiler.Range) {
	if r.Start < 0 {
		return
	}
	n := len(f.stack)
	lo := n - 1 - int(r.End)
	hi := n - int(r.Start)
	f.stack = append(f.stack[:lo], f.stack[hi:]...)
}

type executor struct {
	frames []*callFrame
}

// hostError carries a host function's error through the unwind without
// converting it into a trap.
type hostError struct{ err error }

// Call invokes fn with raw argument bits and returns raw result bits.
// Guest faults surface as *trap.Trap with a backtrace; errors returned
// by host functions come back unchanged.
func Call(fn *vm.Function, args []uint64) (results []uint64, err error) {
	if len(args) != len(fn.Type.Params) {
		return nil, errors.SignatureMismatch(errors.PhaseRuntime,
			fmt.Sprintf("%d arguments", len(fn.Type.Params)),
			fmt.Sprintf("%d arguments", len(args)))
	}
	e := &executor{}
	defer func() {
		if r := recover(); r != nil {
			err = e.unwind(r)
			results = nil
		}
	}()
	return e.call(fn, args, nil), nil
}

// unwind converts a panic raised during execution into the error Call
// reports, attaching backtrace frames from the live call stack.
func (e *executor) unwind(r any) error {
	var t *trap.Trap
	switch p := r.(type) {
	case *trap.Trap:
		t = p
	case hostError:
		return p.err
	case runtime.Error:
		// A fault the dispatch loop did not pre-check; classify it by
		// the faulting instruction's registered trap site.
		if len(e.frames) > 0 {
			f := e.frames[len(e.frames)-1]
			if code, ok := trap.CodeAt(f.fn.Addr + uint64(f.pc)); ok {
				t = trap.New(code)
				break
			}
		}
		return errors.Wrap(errors.PhaseRuntime, errors.KindInvalidData, p,
			"unclassified runtime fault")
	default:
		panic(r)
	}

	for i := len(e.frames) - 1; i >= 0; i-- {
		f := e.frames[i]
		if fr, ok := trap.Lookup(f.fn.Addr + uint64(f.pc)); ok {
			t.PushFrame(fr)
			continue
		}
		t.PushFrame(trap.Frame{
			Module:    f.fn.Module,
			Func:      f.fn.Name,
			FuncIndex: f.fn.Index,
		})
	}
	return t
}

func (e *executor) call(fn *vm.Function, args []uint64, caller *vm.Context) []uint64 {
	if fn.IsHost() {
		res, err := fn.Host(caller, args)
		if err != nil {
			panic(hostError{err})
		}
		return res
	}
	if len(e.frames) >= callStackCeiling {
		panic(trap.New(trap.StackOverflow))
	}

	f := &callFrame{
		fn:     fn,
		stack:  make([]uint64, 0, fn.Compiled.MaxStack),
		locals: make([]uint64, fn.Compiled.NumLocals),
	}
	copy(f.locals, args)
	e.frames = append(e.frames, f)
	e.run(f)
	e.frames = e.frames[:len(e.frames)-1]

	nres := len(fn.Type.Results)
	return f.stack[len(f.stack)-nres:]
}

func (e *executor) run(f *callFrame) {
	ctx := f.fn.Ctx
	ops := f.fn.Compiled.Ops

	for {
		op := &ops[f.pc]
		switch op.Kind {

		case compiler.KindReturn:
			return

		case compiler.KindBr:
			f.drop(op.Then.Drop)
			f.pc = int(op.Then.PC)
			continue

		case compiler.KindBrIf:
			br := &op.Else
			if f.pop() != 0 {
				br = &op.Then
			}
			f.drop(br.Drop)
			f.pc = int(br.PC)
			continue

		case compiler.KindBrTable:
			i := uint32(f.pop())
			if int(i) >= len(op.Table)-1 {
				i = uint32(len(op.Table) - 1)
			}
			br := &op.Table[i]
			f.drop(br.Drop)
			f.pc = int(br.PC)
			continue

		case compiler.Kind(wasm.OpUnreachable):
			panic(trap.New(trap.Unreachable))

		case compiler.Kind(wasm.OpCall):
			callee := ctx.Functions[op.U1]
			args := f.popN(len(callee.Type.Params))
			res := e.call(callee, args, ctx)
			f.stack = append(f.stack, res...)

		case compiler.Kind(wasm.OpCallIndirect):
			elem := uint32(f.pop())
			tbl := ctx.Tables[op.U2]
			callee, ok := tbl.Get(elem)
			if !ok {
				panic(trap.New(trap.OutOfBoundsTable))
			}
			if callee == nil {
				panic(trap.New(trap.UninitializedElement))
			}
			if callee.TypeID != ctx.TypeIDs[op.U1] {
				panic(trap.New(trap.IndirectCallTypeMismatch))
			}
			args := f.popN(len(callee.Type.Params))
			res := e.call(callee, args, ctx)
			f.stack = append(f.stack, res...)

		case compiler.Kind(wasm.OpDrop):
			f.pop()

		case compiler.Kind(wasm.OpSelect):
			c := f.pop()
			b := f.pop()
			a := f.pop()
			if c != 0 {
				f.push(a)
			} else {
				f.push(b)
			}

		case compiler.Kind(wasm.OpLocalGet):
			f.push(f.locals[op.U1])
		case compiler.Kind(wasm.OpLocalSet):
			f.locals[op.U1] = f.pop()
		case compiler.Kind(wasm.OpLocalTee):
			f.locals[op.U1] = f.stack[len(f.stack)-1]

		case compiler.Kind(wasm.OpGlobalGet):
			f.push(ctx.Globals[op.U1].Get())
		case compiler.Kind(wasm.OpGlobalSet):
			ctx.Globals[op.U1].Set(f.pop())

		case compiler.Kind(wasm.OpMemorySize):
			f.push(uint64(ctx.Memory().Size()))
		case compiler.Kind(wasm.OpMemoryGrow):
			delta := uint32(f.pop())
			if old, ok := ctx.Memory().Grow(delta); ok {
				f.push(uint64(old))
			} else {
				f.push(uint64(uint32(0xFFFFFFFF)))
			}

		case compiler.Kind(wasm.OpI32Const), compiler.Kind(wasm.OpI64Const),
			compiler.Kind(wasm.OpF32Const), compiler.Kind(wasm.OpF64Const):
			f.push(op.U1)

		default:
			if op.Kind >= compiler.Kind(wasm.OpI32Load) && op.Kind <= compiler.Kind(wasm.OpI64Store32) {
				memAccess(f, ctx.Memory(), op)
			} else {
				numeric(f, op)
			}
		}
		f.pc++
	}
}

// memBytes bounds-checks an access against the memory's current length
// and returns the addressed window.
func memBytes(mem *vm.Memory, base uint64, offset uint64, size int) []byte {
	data := mem.Data()
	addr := base + offset
	if addr+uint64(size) > uint64(len(data)) {
		panic(trap.New(trap.OutOfBoundsMemory))
	}
	return data[addr : addr+uint64(size)]
}

func memAccess(f *callFrame, mem *vm.Memory, op *compiler.Op) {
	k := byte(op.Kind)
	if k >= wasm.OpI32Store {
		val := f.pop()
		base := uint64(uint32(f.pop()))
		switch k {
		case wasm.OpI32Store:
			binary.LittleEndian.PutUint32(memBytes(mem, base, op.U1, 4), uint32(val))
		case wasm.OpI64Store:
			binary.LittleEndian.PutUint64(memBytes(mem, base, op.U1, 8), val)
		case wasm.OpF32Store:
			binary.LittleEndian.PutUint32(memBytes(mem, base, op.U1, 4), uint32(val))
		case wasm.OpF64Store:
			binary.LittleEndian.PutUint64(memBytes(mem, base, op.U1, 8), val)
		case wasm.OpI32Store8, wasm.OpI64Store8:
			memBytes(mem, base, op.U1, 1)[0] = byte(val)
		case wasm.OpI32Store16, wasm.OpI64Store16:
			binary.LittleEndian.PutUint16(memBytes(mem, base, op.U1, 2), uint16(val))
		case wasm.OpI64Store32:
			binary.LittleEndian.PutUint32(memBytes(mem, base, op.U1, 4), uint32(val))
		}
		return
	}

	base := uint64(uint32(f.pop()))
	switch k {
	case wasm.OpI32Load, wasm.OpF32Load:
		f.push(uint64(binary.LittleEndian.Uint32(memBytes(mem, base, op.U1, 4))))
	case wasm.OpI64Load, wasm.OpF64Load:
		f.push(binary.LittleEndian.Uint64(memBytes(mem, base, op.U1, 8)))
	case wasm.OpI32Load8S:
		f.push(uint64(uint32(int32(int8(memBytes(mem, base, op.U1, 1)[0])))))
	case wasm.OpI32Load8U:
		f.push(uint64(memBytes(mem, base, op.U1, 1)[0]))
	case wasm.OpI32Load16S:
		f.push(uint64(uint32(int32(int16(binary.LittleEndian.Uint16(memBytes(mem, base, op.U1, 2)))))))
	case wasm.OpI32Load16U:
		f.push(uint64(binary.LittleEndian.Uint16(memBytes(mem, base, op.U1, 2))))
	case wasm.OpI64Load8S:
		f.push(uint64(int64(int8(memBytes(mem, base, op.U1, 1)[0]))))
	case wasm.OpI64Load8U:
		f.push(uint64(memBytes(mem, base, op.U1, 1)[0]))
	case wasm.OpI64Load16S:
		f.push(uint64(int64(int16(binary.LittleEndian.Uint16(memBytes(mem, base, op.U1, 2))))))
	case wasm.OpI64Load16U:
		f.push(uint64(binary.LittleEndian.Uint16(memBytes(mem, base, op.U1, 2))))
	case wasm.OpI64Load32S:
		f.push(uint64(int64(int32(binary.LittleEndian.Uint32(memBytes(mem, base, op.U1, 4))))))
	case wasm.OpI64Load32U:
		f.push(uint64(binary.LittleEndian.Uint32(memBytes(mem, base, op.U1, 4))))
	}
}

func pushBool(f *callFrame, b bool) {
	if b {
		f.push(1)
	} else {
		f.push(0)
	}
}

func pushI32(f *callFrame, v uint32) { f.push(uint64(v)) }

func pushF32(f *callFrame, v float32) { f.push(uint64(math.Float32bits(v))) }

func pushF64(f *callFrame, v float64) { f.push(math.Float64bits(v)) }

func popF32(f *callFrame) float32 { return math.Float32frombits(uint32(f.pop())) }

func popF64(f *callFrame) float64 { return math.Float64frombits(f.pop()) }

func numeric(f *callFrame, op *compiler.Op) {
	switch byte(op.Kind) {

	case wasm.OpI32Eqz:
		pushBool(f, uint32(f.pop()) == 0)
	case wasm.OpI32Eq:
		y, x := uint32(f.pop()), uint32(f.pop())
		pushBool(f, x == y)
	case wasm.OpI32Ne:
		y, x := uint32(f.pop()), uint32(f.pop())
		pushBool(f, x != y)
	case wasm.OpI32LtS:
		y, x := int32(f.pop()), int32(f.pop())
		pushBool(f, x < y)
	case wasm.OpI32LtU:
		y, x := uint32(f.pop()), uint32(f.pop())
		pushBool(f, x < y)
	case wasm.OpI32GtS:
		y, x := int32(f.pop()), int32(f.pop())
		pushBool(f, x > y)
	case wasm.OpI32GtU:
		y, x := uint32(f.pop()), uint32(f.pop())
		pushBool(f, x > y)
	case wasm.OpI32LeS:
		y, x := int32(f.pop()), int32(f.pop())
		pushBool(f, x <= y)
	case wasm.OpI32LeU:
		y, x := uint32(f.pop()), uint32(f.pop())
		pushBool(f, x <= y)
	case wasm.OpI32GeS:
		y, x := int32(f.pop()), int32(f.pop())
		pushBool(f, x >= y)
	case wasm.OpI32GeU:
		y, x := uint32(f.pop()), uint32(f.pop())
		pushBool(f, x >= y)

	case wasm.OpI64Eqz:
		pushBool(f, f.pop() == 0)
	case wasm.OpI64Eq:
		y, x := f.pop(), f.pop()
		pushBool(f, x == y)
	case wasm.OpI64Ne:
		y, x := f.pop(), f.pop()
		pushBool(f, x != y)
	case wasm.OpI64LtS:
		y, x := int64(f.pop()), int64(f.pop())
		pushBool(f, x < y)
	case wasm.OpI64LtU:
		y, x := f.pop(), f.pop()
		pushBool(f, x < y)
	case wasm.OpI64GtS:
		y, x := int64(f.pop()), int64(f.pop())
		pushBool(f, x > y)
	case wasm.OpI64GtU:
		y, x := f.pop(), f.pop()
		pushBool(f, x > y)
	case wasm.OpI64LeS:
		y, x := int64(f.pop()), int64(f.pop())
		pushBool(f, x <= y)
	case wasm.OpI64LeU:
		y, x := f.pop(), f.pop()
		pushBool(f, x <= y)
	case wasm.OpI64GeS:
		y, x := int64(f.pop()), int64(f.pop())
		pushBool(f, x >= y)
	case wasm.OpI64GeU:
		y, x := f.pop(), f.pop()
		pushBool(f, x >= y)

	case wasm.OpF32Eq:
		y, x := popF32(f), popF32(f)
		pushBool(f, x == y)
	case wasm.OpF32Ne:
		y, x := popF32(f), popF32(f)
		pushBool(f, x != y)
	case wasm.OpF32Lt:
		y, x := popF32(f), popF32(f)
		pushBool(f, x < y)
	case wasm.OpF32Gt:
		y, x := popF32(f), popF32(f)
		pushBool(f, x > y)
	case wasm.OpF32Le:
		y, x := popF32(f), popF32(f)
		pushBool(f, x <= y)
	case wasm.OpF32Ge:
		y, x := popF32(f), popF32(f)
		pushBool(f, x >= y)

	case wasm.OpF64Eq:
		y, x := popF64(f), popF64(f)
		pushBool(f, x == y)
	case wasm.OpF64Ne:
		y, x := popF64(f), popF64(f)
		pushBool(f, x != y)
	case wasm.OpF64Lt:
		y, x := popF64(f), popF64(f)
		pushBool(f, x < y)
	case wasm.OpF64Gt:
		y, x := popF64(f), popF64(f)
		pushBool(f, x > y)
	case wasm.OpF64Le:
		y, x := popF64(f), popF64(f)
		pushBool(f, x <= y)
	case wasm.OpF64Ge:
		y, x := popF64(f), popF64(f)
		pushBool(f, x >= y)

	case wasm.OpI32Clz:
		pushI32(f, uint32(bits.LeadingZeros32(uint32(f.pop()))))
	case wasm.OpI32Ctz:
		pushI32(f, uint32(bits.TrailingZeros32(uint32(f.pop()))))
	case wasm.OpI32Popcnt:
		pushI32(f, uint32(bits.OnesCount32(uint32(f.pop()))))
	case wasm.OpI32Add:
		y, x := uint32(f.pop()), uint32(f.pop())
		pushI32(f, x+y)
	case wasm.OpI32Sub:
		y, x := uint32(f.pop()), uint32(f.pop())
		pushI32(f, x-y)
	case wasm.OpI32Mul:
		y, x := uint32(f.pop()), uint32(f.pop())
		pushI32(f, x*y)
	case wasm.OpI32DivS:
		y, x := int32(f.pop()), int32(f.pop())
		if y == 0 {
			panic(trap.New(trap.IntegerDivideByZero))
		}
		if x == math.MinInt32 && y == -1 {
			panic(trap.New(trap.IntegerOverflow))
		}
		pushI32(f, uint32(x/y))
	case wasm.OpI32DivU:
		y, x := uint32(f.pop()), uint32(f.pop())
		if y == 0 {
			panic(trap.New(trap.IntegerDivideByZero))
		}
		pushI32(f, x/y)
	case wasm.OpI32RemS:
		y, x := int32(f.pop()), int32(f.pop())
		if y == 0 {
			panic(trap.New(trap.IntegerDivideByZero))
		}
		pushI32(f, uint32(x%y))
	case wasm.OpI32RemU:
		y, x := uint32(f.pop()), uint32(f.pop())
		if y == 0 {
			panic(trap.New(trap.IntegerDivideByZero))
		}
		pushI32(f, x%y)
	case wasm.OpI32And:
		y, x := uint32(f.pop()), uint32(f.pop())
		pushI32(f, x&y)
	case wasm.OpI32Or:
		y, x := uint32(f.pop()), uint32(f.pop())
		pushI32(f, x|y)
	case wasm.OpI32Xor:
		y, x := uint32(f.pop()), uint32(f.pop())
		pushI32(f, x^y)
	case wasm.OpI32Shl:
		y, x := uint32(f.pop()), uint32(f.pop())
		pushI32(f, x<<(y&31))
	case wasm.OpI32ShrS:
		y, x := uint32(f.pop()), int32(f.pop())
		pushI32(f, uint32(x>>(y&31)))
	case wasm.OpI32ShrU:
		y, x := uint32(f.pop()), uint32(f.pop())
		pushI32(f, x>>(y&31))
	case wasm.OpI32Rotl:
		y, x := uint32(f.pop()), uint32(f.pop())
		pushI32(f, bits.RotateLeft32(x, int(y&31)))
	case wasm.OpI32Rotr:
		y, x := uint32(f.pop()), uint32(f.pop())
		pushI32(f, bits.RotateLeft32(x, -int(y&31)))

	case wasm.OpI64Clz:
		f.push(uint64(bits.LeadingZeros64(f.pop())))
	case wasm.OpI64Ctz:
		f.push(uint64(bits.TrailingZeros64(f.pop())))
	case wasm.OpI64Popcnt:
		f.push(uint64(bits.OnesCount64(f.pop())))
	case wasm.OpI64Add:
		y, x := f.pop(), f.pop()
		f.push(x + y)
	case wasm.OpI64Sub:
		y, x := f.pop(), f.pop()
		f.push(x - y)
	case wasm.OpI64Mul:
		y, x := f.pop(), f.pop()
		f.push(x * y)
	case wasm.OpI64DivS:
		y, x := int64(f.pop()), int64(f.pop())
		if y == 0 {
			panic(trap.New(trap.IntegerDivideByZero))
		}
		if x == math.MinInt64 && y == -1 {
			panic(trap.New(trap.IntegerOverflow))
		}
		f.push(uint64(x / y))
	case wasm.OpI64DivU:
		y, x := f.pop(), f.pop()
		if y == 0 {
			panic(trap.New(trap.IntegerDivideByZero))
		}
		f.push(x / y)
	case wasm.OpI64RemS:
		y, x := int64(f.pop()), int64(f.pop())
		if y == 0 {
			panic(trap.New(trap.IntegerDivideByZero))
		}
		f.push(uint64(x % y))
	case wasm.OpI64RemU:
		y, x := f.pop(), f.pop()
		if y == 0 {
			panic(trap.New(trap.IntegerDivideByZero))
		}
		f.push(x % y)
	case wasm.OpI64And:
		y, x := f.pop(), f.pop()
		f.push(x & y)
	case wasm.OpI64Or:
		y, x := f.pop(), f.pop()
		f.push(x | y)
	case wasm.OpI64Xor:
		y, x := f.pop(), f.pop()
		f.push(x ^ y)
	case wasm.OpI64Shl:
		y, x := f.pop(), f.pop()
		f.push(x << (y & 63))
	case wasm.OpI64ShrS:
		y, x := f.pop(), int64(f.pop())
		f.push(uint64(x >> (y & 63)))
	case wasm.OpI64ShrU:
		y, x := f.pop(), f.pop()
		f.push(x >> (y & 63))
	case wasm.OpI64Rotl:
		y, x := f.pop(), f.pop()
		f.push(bits.RotateLeft64(x, int(y&63)))
	case wasm.OpI64Rotr:
		y, x := f.pop(), f.pop()
		f.push(bits.RotateLeft64(x, -int(y&63)))

	case wasm.OpF32Abs:
		pushF32(f, float32(math.Abs(float64(popF32(f)))))
	case wasm.OpF32Neg:
		f.push(f.pop() ^ 0x80000000)
	case wasm.OpF32Ceil:
		pushF32(f, float32(math.Ceil(float64(popF32(f)))))
	case wasm.OpF32Floor:
		pushF32(f, float32(math.Floor(float64(popF32(f)))))
	case wasm.OpF32Trunc:
		pushF32(f, float32(math.Trunc(float64(popF32(f)))))
	case wasm.OpF32Nearest:
		pushF32(f, float32(math.RoundToEven(float64(popF32(f)))))
	case wasm.OpF32Sqrt:
		pushF32(f, float32(math.Sqrt(float64(popF32(f)))))
	case wasm.OpF32Add:
		y, x := popF32(f), popF32(f)
		pushF32(f, x+y)
	case wasm.OpF32Sub:
		y, x := popF32(f), popF32(f)
		pushF32(f, x-y)
	case wasm.OpF32Mul:
		y, x := popF32(f), popF32(f)
		pushF32(f, x*y)
	case wasm.OpF32Div:
		y, x := popF32(f), popF32(f)
		pushF32(f, x/y)
	case wasm.OpF32Min:
		y, x := popF32(f), popF32(f)
		pushF32(f, float32(math.Min(float64(x), float64(y))))
	case wasm.OpF32Max:
		y, x := popF32(f), popF32(f)
		pushF32(f, float32(math.Max(float64(x), float64(y))))
	case wasm.OpF32Copysign:
		y, x := popF32(f), popF32(f)
		pushF32(f, float32(math.Copysign(float64(x), float64(y))))

	case wasm.OpF64Abs:
		pushF64(f, math.Abs(popF64(f)))
	case wasm.OpF64Neg:
		f.push(f.pop() ^ 0x8000000000000000)
	case wasm.OpF64Ceil:
		pushF64(f, math.Ceil(popF64(f)))
	case wasm.OpF64Floor:
		pushF64(f, math.Floor(popF64(f)))
	case wasm.OpF64Trunc:
		pushF64(f, math.Trunc(popF64(f)))
	case wasm.OpF64Nearest:
		pushF64(f, math.RoundToEven(popF64(f)))
	case wasm.OpF64Sqrt:
		pushF64(f, math.Sqrt(popF64(f)))
	case wasm.OpF64Add:
		y, x := popF64(f), popF64(f)
		pushF64(f, x+y)
	case wasm.OpF64Sub:
		y, x := popF64(f), popF64(f)
		pushF64(f, x-y)
	case wasm.OpF64Mul:
		y, x := popF64(f), popF64(f)
		pushF64(f, x*y)
	case wasm.OpF64Div:
		y, x := popF64(f), popF64(f)
		pushF64(f, x/y)
	case wasm.OpF64Min:
		y, x := popF64(f), popF64(f)
		pushF64(f, math.Min(x, y))
	case wasm.OpF64Max:
		y, x := popF64(f), popF64(f)
		pushF64(f, math.Max(x, y))
	case wasm.OpF64Copysign:
		y, x := popF64(f), popF64(f)
		pushF64(f, math.Copysign(x, y))

	case wasm.OpI32WrapI64:
		pushI32(f, uint32(f.pop()))
	case wasm.OpI32TruncF32S:
		pushI32(f, uint32(truncS32(float64(popF32(f)))))
	case wasm.OpI32TruncF32U:
		pushI32(f, truncU32(float64(popF32(f))))
	case wasm.OpI32TruncF64S:
		pushI32(f, uint32(truncS32(popF64(f))))
	case wasm.OpI32TruncF64U:
		pushI32(f, truncU32(popF64(f)))
	case wasm.OpI64ExtendI32S:
		f.push(uint64(int64(int32(f.pop()))))
	case wasm.OpI64ExtendI32U:
		f.push(uint64(uint32(f.pop())))
	case wasm.OpI64TruncF32S:
		f.push(uint64(truncS64(float64(popF32(f)))))
	case wasm.OpI64TruncF32U:
		f.push(truncU64(float64(popF32(f))))
	case wasm.OpI64TruncF64S:
		f.push(uint64(truncS64(popF64(f))))
	case wasm.OpI64TruncF64U:
		f.push(truncU64(popF64(f)))
	case wasm.OpF32ConvertI32S:
		pushF32(f, float32(int32(f.pop())))
	case wasm.OpF32ConvertI32U:
		pushF32(f, float32(uint32(f.pop())))
	case wasm.OpF32ConvertI64S:
		pushF32(f, float32(int64(f.pop())))
	case wasm.OpF32ConvertI64U:
		pushF32(f, float32(f.pop()))
	case wasm.OpF32DemoteF64:
		pushF32(f, float32(popF64(f)))
	case wasm.OpF64ConvertI32S:
		pushF64(f, float64(int32(f.pop())))
	case wasm.OpF64ConvertI32U:
		pushF64(f, float64(uint32(f.pop())))
	case wasm.OpF64ConvertI64S:
		pushF64(f, float64(int64(f.pop())))
	case wasm.OpF64ConvertI64U:
		pushF64(f, float64(f.pop()))
	case wasm.OpF64PromoteF32:
		pushF64(f, float64(popF32(f)))

	case wasm.OpI32ReinterpretF32, wasm.OpI64ReinterpretF64,
		wasm.OpF32ReinterpretI32, wasm.OpF64ReinterpretI64:
		// values are stored as raw bits already

	case wasm.OpI32Extend8S:
		pushI32(f, uint32(int32(int8(f.pop()))))
	case wasm.OpI32Extend16S:
		pushI32(f, uint32(int32(int16(f.pop()))))
	case wasm.OpI64Extend8S:
		f.push(uint64(int64(int8(f.pop()))))
	case wasm.OpI64Extend16S:
		f.push(uint64(int64(int16(f.pop()))))
	case wasm.OpI64Extend32S:
		f.push(uint64(int64(int32(f.pop()))))

	default:
		panic(fmt.Sprintf("executor: unhandled op kind %#x", op.Kind))
	}
}

func checkTrunc(t float64) {
	if math.IsNaN(t) {
		panic(trap.New(trap.InvalidConversionToInteger))
	}
}

func truncS32(v float64) int32 {
	t := math.Trunc(v)
	checkTrunc(t)
	if t < math.MinInt32 || t > math.MaxInt32 {
		panic(trap.New(trap.IntegerOverflow))
	}
	return int32(t)
}

func truncU32(v float64) uint32 {
	t := math.Trunc(v)
	checkTrunc(t)
	if t < 0 || t > math.MaxUint32 {
		panic(trap.New(trap.IntegerOverflow))
	}
	return uint32(t)
}

func truncS64(v float64) int64 {
	t := math.Trunc(v)
	checkTrunc(t)
	if t < math.MinInt64 || t >= math.MaxInt64 {
		panic(trap.New(trap.IntegerOverflow))
	}
	return int64(t)
}

func truncU64(v float64) uint64 {
	t := math.Trunc(v)
	checkTrunc(t)
	if t < 0 || t >= math.MaxUint64 {
		panic(trap.New(trap.IntegerOverflow))
	}
	return uint64(t)
}
