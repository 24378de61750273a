package engine

import (
	stderrors "errors"
	"math"
	"strings"
	"testing"

	"github.com/wippyai/wasm-engine/compiler"
	"github.com/wippyai/wasm-engine/trap"
	"github.com/wippyai/wasm-engine/vm"
	"github.com/wippyai/wasm-engine/wasm"
)

func link(t *testing.T, b *wasm.Builder) *Artifact {
	t.Helper()
	m := b.Module()
	fns, err := compiler.SinglePass{}.Compile(m, compiler.NativeTarget())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	a, err := Link(m, b.Bytes(), fns, compiler.NativeTarget(), compiler.SinglePass{}.Name())
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func instantiate(t *testing.T, b *wasm.Builder, imp vm.ImportValues) *vm.Context {
	t.Helper()
	ctx, err := Instantiate(link(t, b), imp)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return ctx
}

func exported(t *testing.T, ctx *vm.Context, name string) *vm.Function {
	t.Helper()
	idx, ok := ctx.Module.ExportedFunc(name)
	if !ok {
		t.Fatalf("no export %q", name)
	}
	return ctx.Functions[idx]
}

func call1(t *testing.T, fn *vm.Function, args ...uint64) uint64 {
	t.Helper()
	res, err := Call(fn, args)
	if err != nil {
		t.Fatalf("call %s: %v", fn.Name, err)
	}
	if len(res) != 1 {
		t.Fatalf("call %s: %d results", fn.Name, len(res))
	}
	return res[0]
}

func trapCode(t *testing.T, err error) trap.Code {
	t.Helper()
	var tr *trap.Trap
	if !stderrors.As(err, &tr) {
		t.Fatalf("not a trap: %v", err)
	}
	return tr.TrapCode()
}

func TestCallAdd(t *testing.T) {
	b := wasm.NewBuilder()
	ti := b.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	})
	f := b.AddFunction(ti, nil, []byte{
		wasm.OpLocalGet, 0, wasm.OpLocalGet, 1, wasm.OpI32Add, wasm.OpEnd,
	})
	b.ExportFunc("add", f)
	ctx := instantiate(t, b, vm.ImportValues{})

	if got := call1(t, exported(t, ctx, "add"), 2, 3); got != 5 {
		t.Errorf("add(2, 3) = %d", got)
	}
}

func TestCallRecursion(t *testing.T) {
	b := wasm.NewBuilder()
	ti := b.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	})
	f := b.AddFunction(ti, nil, []byte{
		wasm.OpLocalGet, 0, wasm.OpI32Const, 2, wasm.OpI32LtS,
		wasm.OpIf, 0x40,
		wasm.OpLocalGet, 0, wasm.OpReturn,
		wasm.OpEnd,
		wasm.OpLocalGet, 0, wasm.OpI32Const, 1, wasm.OpI32Sub, wasm.OpCall, 0,
		wasm.OpLocalGet, 0, wasm.OpI32Const, 2, wasm.OpI32Sub, wasm.OpCall, 0,
		wasm.OpI32Add,
		wasm.OpEnd,
	})
	b.ExportFunc("fib", f)
	b.NameFunc(f, "fib")
	ctx := instantiate(t, b, vm.ImportValues{})

	if got := call1(t, exported(t, ctx, "fib"), 10); got != 55 {
		t.Errorf("fib(10) = %d", got)
	}
}

func TestCallLoop(t *testing.T) {
	// Sums 1..n with a backward branch.
	b := wasm.NewBuilder()
	ti := b.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	})
	f := b.AddFunction(ti, []wasm.ValType{wasm.ValI32, wasm.ValI32}, []byte{
		wasm.OpLoop, 0x40,
		wasm.OpLocalGet, 1, wasm.OpI32Const, 1, wasm.OpI32Add, wasm.OpLocalTee, 1,
		wasm.OpLocalGet, 2, wasm.OpI32Add, wasm.OpLocalSet, 2,
		wasm.OpLocalGet, 1, wasm.OpLocalGet, 0, wasm.OpI32LtU,
		wasm.OpBrIf, 0,
		wasm.OpEnd,
		wasm.OpLocalGet, 2,
		wasm.OpEnd,
	})
	b.ExportFunc("sum", f)
	ctx := instantiate(t, b, vm.ImportValues{})

	if got := call1(t, exported(t, ctx, "sum"), 10); got != 55 {
		t.Errorf("sum(10) = %d", got)
	}
}

func memModule() *wasm.Builder {
	two := uint32(2)
	b := wasm.NewBuilder()
	store := b.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}})
	load := b.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	})
	b.AddMemory(1, &two)
	f := b.AddFunction(store, nil, []byte{
		wasm.OpLocalGet, 0, wasm.OpLocalGet, 1, wasm.OpI32Store, 2, 0, wasm.OpEnd,
	})
	b.ExportFunc("store", f)
	f = b.AddFunction(load, nil, []byte{
		wasm.OpLocalGet, 0, wasm.OpI32Load, 2, 0, wasm.OpEnd,
	})
	b.ExportFunc("load", f)
	f = b.AddFunction(load, nil, []byte{
		wasm.OpLocalGet, 0, wasm.OpMemoryGrow, 0, wasm.OpEnd,
	})
	b.ExportFunc("grow", f)
	return b
}

func TestMemoryOps(t *testing.T) {
	ctx := instantiate(t, memModule(), vm.ImportValues{})
	store := exported(t, ctx, "store")
	load := exported(t, ctx, "load")
	grow := exported(t, ctx, "grow")

	if _, err := Call(store, []uint64{40, 0x11223344}); err != nil {
		t.Fatal(err)
	}
	if got := call1(t, load, 40); got != 0x11223344 {
		t.Errorf("load = %#x", got)
	}

	// An access straddling the current length traps.
	_, err := Call(load, []uint64{wasm.PageSize - 3})
	if code := trapCode(t, err); code != trap.OutOfBoundsMemory {
		t.Errorf("trap = %v", code)
	}

	// Growth makes that address valid.
	if got := call1(t, grow, 1); got != 1 {
		t.Errorf("grow(1) returned %d, want old size 1", got)
	}
	if got := call1(t, load, wasm.PageSize-3); got != 0 {
		t.Errorf("load after grow = %d", got)
	}

	// Growth past the declared maximum is a -1 value, not an error.
	if got := call1(t, grow, 1); got != 0xFFFFFFFF {
		t.Errorf("grow past max = %#x", got)
	}
}

func TestCallIndirect(t *testing.T) {
	b := wasm.NewBuilder()
	binOp := b.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	})
	nullary := b.AddType(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}})
	add := b.AddFunction(binOp, nil, []byte{
		wasm.OpLocalGet, 0, wasm.OpLocalGet, 1, wasm.OpI32Add, wasm.OpEnd,
	})
	answer := b.AddFunction(nullary, nil, []byte{wasm.OpI32Const, 42, wasm.OpEnd})
	caller := b.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32, wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	})
	f := b.AddFunction(caller, nil, []byte{
		wasm.OpLocalGet, 0, wasm.OpLocalGet, 1, wasm.OpLocalGet, 2,
		wasm.OpCallIndirect, byte(binOp), 0,
		wasm.OpEnd,
	})
	b.ExportFunc("dispatch", f)
	b.AddTable(4, nil)
	b.AddElement(0, wasm.I32Const(0), []uint32{add, answer})
	ctx := instantiate(t, b, vm.ImportValues{})
	dispatch := exported(t, ctx, "dispatch")

	if got := call1(t, dispatch, 20, 22, 0); got != 42 {
		t.Errorf("dispatch through slot 0 = %d", got)
	}

	_, err := Call(dispatch, []uint64{0, 0, 1})
	if code := trapCode(t, err); code != trap.IndirectCallTypeMismatch {
		t.Errorf("wrong-signature slot: %v", code)
	}

	_, err = Call(dispatch, []uint64{0, 0, 2})
	if code := trapCode(t, err); code != trap.UninitializedElement {
		t.Errorf("empty slot: %v", code)
	}

	_, err = Call(dispatch, []uint64{0, 0, 9})
	if code := trapCode(t, err); code != trap.OutOfBoundsTable {
		t.Errorf("out-of-range index: %v", code)
	}
}

func TestHostImport(t *testing.T) {
	b := wasm.NewBuilder()
	unOp := b.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	})
	imported := b.ImportFunc("env", "double", unOp)
	f := b.AddFunction(unOp, nil, []byte{
		wasm.OpLocalGet, 0, wasm.OpCall, byte(imported), wasm.OpI32Const, 1, wasm.OpI32Add,
		wasm.OpEnd,
	})
	b.ExportFunc("doublePlusOne", f)

	m := b.Module()
	double := &vm.Function{
		Type:   m.Types[unOp],
		TypeID: typeID(m.Types[unOp]),
		Host: func(_ *vm.Context, args []uint64) ([]uint64, error) {
			return []uint64{uint64(uint32(args[0]) * 2)}, nil
		},
		Module: "env",
		Name:   "double",
	}
	ctx := instantiate(t, b, vm.ImportValues{Functions: []*vm.Function{double}})

	if got := call1(t, exported(t, ctx, "doublePlusOne"), 20); got != 41 {
		t.Errorf("doublePlusOne(20) = %d", got)
	}
}

func TestHostErrorPropagates(t *testing.T) {
	sentinel := stderrors.New("backing store unavailable")
	b := wasm.NewBuilder()
	void := b.AddType(wasm.FuncType{})
	imported := b.ImportFunc("env", "fail", void)
	f := b.AddFunction(void, nil, []byte{wasm.OpCall, byte(imported), wasm.OpEnd})
	b.ExportFunc("run", f)

	fail := &vm.Function{
		Type: wasm.FuncType{},
		Host: func(_ *vm.Context, _ []uint64) ([]uint64, error) {
			return nil, sentinel
		},
	}
	ctx := instantiate(t, b, vm.ImportValues{Functions: []*vm.Function{fail}})

	_, err := Call(exported(t, ctx, "run"), nil)
	if !stderrors.Is(err, sentinel) {
		t.Errorf("host error arrived as %v", err)
	}
	var tr *trap.Trap
	if stderrors.As(err, &tr) {
		t.Error("host error must not be converted into a trap")
	}
}

func TestTrapBacktrace(t *testing.T) {
	b := wasm.NewBuilder()
	binOp := b.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	})
	div := b.AddFunction(binOp, nil, []byte{
		wasm.OpLocalGet, 0, wasm.OpLocalGet, 1, wasm.OpI32DivS, wasm.OpEnd,
	})
	outer := b.AddFunction(binOp, nil, []byte{
		wasm.OpLocalGet, 0, wasm.OpLocalGet, 1, wasm.OpCall, byte(div), wasm.OpEnd,
	})
	b.ExportFunc("compute", outer)
	b.SetName("math")
	b.NameFunc(div, "div")
	b.NameFunc(outer, "compute")
	ctx := instantiate(t, b, vm.ImportValues{})

	_, err := Call(exported(t, ctx, "compute"), []uint64{7, 0})
	var tr *trap.Trap
	if !stderrors.As(err, &tr) {
		t.Fatalf("expected trap, got %v", err)
	}
	if tr.TrapCode() != trap.IntegerDivideByZero {
		t.Fatalf("code = %v", tr.TrapCode())
	}

	frames := tr.Frames()
	if len(frames) != 2 {
		t.Fatalf("frames = %+v", frames)
	}
	if frames[0].Func != "div" || frames[1].Func != "compute" {
		t.Errorf("backtrace order: %+v", frames)
	}
	if frames[0].Module != "math" {
		t.Errorf("module name missing: %+v", frames[0])
	}
	if !strings.Contains(err.Error(), "wasm backtrace:") {
		t.Errorf("rendered error lacks backtrace: %s", err)
	}
}

func TestStackOverflowTrap(t *testing.T) {
	b := wasm.NewBuilder()
	void := b.AddType(wasm.FuncType{})
	f := b.AddFunction(void, nil, []byte{wasm.OpCall, 0, wasm.OpEnd})
	b.ExportFunc("loop", f)
	ctx := instantiate(t, b, vm.ImportValues{})

	_, err := Call(exported(t, ctx, "loop"), nil)
	if code := trapCode(t, err); code != trap.StackOverflow {
		t.Errorf("trap = %v", code)
	}
}

func TestTruncTraps(t *testing.T) {
	b := wasm.NewBuilder()
	ti := b.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValF64},
		Results: []wasm.ValType{wasm.ValI32},
	})
	f := b.AddFunction(ti, nil, []byte{
		wasm.OpLocalGet, 0, wasm.OpI32TruncF64S, wasm.OpEnd,
	})
	b.ExportFunc("trunc", f)
	ctx := instantiate(t, b, vm.ImportValues{})
	fn := exported(t, ctx, "trunc")

	if got := call1(t, fn, f64(-3.7)); int32(got) != -3 {
		t.Errorf("trunc(-3.7) = %d", int32(got))
	}

	_, err := Call(fn, []uint64{f64(math.NaN())})
	if code := trapCode(t, err); code != trap.InvalidConversionToInteger {
		t.Errorf("NaN: %v", code)
	}

	_, err = Call(fn, []uint64{f64(3e9)})
	if code := trapCode(t, err); code != trap.IntegerOverflow {
		t.Errorf("out of range: %v", code)
	}
}

func TestInstanceIsolation(t *testing.T) {
	a := link(t, memModule())
	ctxA, err := Instantiate(a, vm.ImportValues{})
	if err != nil {
		t.Fatal(err)
	}
	ctxB, err := Instantiate(a, vm.ImportValues{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Call(exported(t, ctxA, "store"), []uint64{0, 99}); err != nil {
		t.Fatal(err)
	}
	if got := call1(t, exported(t, ctxB, "load"), 0); got != 0 {
		t.Errorf("instance B observed instance A's store: %d", got)
	}
}

func TestStartFunction(t *testing.T) {
	b := wasm.NewBuilder()
	void := b.AddType(wasm.FuncType{})
	b.AddMemory(1, nil)
	f := b.AddFunction(void, nil, []byte{
		wasm.OpI32Const, 8, wasm.OpI32Const, 7, wasm.OpI32Store, 2, 0, wasm.OpEnd,
	})
	b.SetStart(f)
	ctx := instantiate(t, b, vm.ImportValues{})

	if ctx.Memory().Data()[8] != 7 {
		t.Error("start function did not run")
	}
}

func TestStartFunctionTrapFailsInstantiation(t *testing.T) {
	b := wasm.NewBuilder()
	void := b.AddType(wasm.FuncType{})
	f := b.AddFunction(void, nil, []byte{wasm.OpUnreachable, wasm.OpEnd})
	b.SetStart(f)

	_, err := Instantiate(link(t, b), vm.ImportValues{})
	if code := trapCode(t, err); code != trap.Unreachable {
		t.Errorf("start trap = %v", code)
	}
}

func TestCallArgumentCount(t *testing.T) {
	b := wasm.NewBuilder()
	ti := b.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}})
	f := b.AddFunction(ti, nil, []byte{wasm.OpEnd})
	b.ExportFunc("f", f)
	ctx := instantiate(t, b, vm.ImportValues{})

	if _, err := Call(exported(t, ctx, "f"), nil); err == nil {
		t.Error("missing argument accepted")
	}
}

func f64(v float64) uint64 { return math.Float64bits(v) }
