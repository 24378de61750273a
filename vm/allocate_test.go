package vm

import (
	"errors"
	"testing"

	wasmerrors "github.com/wippyai/wasm-engine/errors"
	"github.com/wippyai/wasm-engine/wasm"
)

func TestAllocateGlobalsInOrder(t *testing.T) {
	b := wasm.NewBuilder()
	b.ImportGlobal("env", "base", wasm.GlobalType{ValType: wasm.ValI32})
	b.AddGlobal(wasm.GlobalType{ValType: wasm.ValI32}, wasm.GlobalGet(0))
	b.AddGlobal(wasm.GlobalType{ValType: wasm.ValI64, Mutable: true}, wasm.I64Const(-7))
	m := b.Module()

	imp := ImportValues{Globals: []*Global{
		NewGlobal(wasm.GlobalType{ValType: wasm.ValI32}, 41),
	}}
	ctx, err := Allocate(m, imp, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(ctx.Globals) != 3 {
		t.Fatalf("globals = %d", len(ctx.Globals))
	}
	if ctx.Globals[1].Get() != 41 {
		t.Errorf("global.get initializer = %d, want 41", ctx.Globals[1].Get())
	}
	if int64(ctx.Globals[2].Get()) != -7 {
		t.Errorf("i64 initializer = %d", int64(ctx.Globals[2].Get()))
	}
}

func TestAllocateSegments(t *testing.T) {
	b := wasm.NewBuilder()
	ti := b.AddType(wasm.FuncType{})
	f := b.AddFunction(ti, nil, []byte{wasm.OpEnd})
	b.AddMemory(1, nil)
	b.AddTable(4, nil)
	b.AddData(0, wasm.I32Const(16), []byte("hi"))
	b.AddElement(0, wasm.I32Const(2), []uint32{f})
	m := b.Module()

	fn := &Function{Index: f}
	ctx, err := Allocate(m, ImportValues{}, []*Function{fn})
	if err != nil {
		t.Fatal(err)
	}

	if got := ctx.Memory().Data()[16:18]; string(got) != "hi" {
		t.Errorf("data segment wrote %q", got)
	}
	if got, ok := ctx.Table().Get(2); !ok || got != fn {
		t.Errorf("table slot 2 = %v, %v", got, ok)
	}
	if got, ok := ctx.Table().Get(3); !ok || got != nil {
		t.Errorf("untouched slot should stay uninitialized, got %v", got)
	}
	if fn.Ctx != ctx {
		t.Error("local function not bound to its context")
	}
}

func TestAllocateRejectsOutOfBoundsData(t *testing.T) {
	b := wasm.NewBuilder()
	b.AddMemory(1, nil)
	b.AddData(0, wasm.I32Const(wasm.PageSize-1), []byte("xx"))
	m := b.Module()

	_, err := Allocate(m, ImportValues{}, nil)
	if err == nil {
		t.Fatal("out-of-bounds data segment accepted")
	}
	want := &wasmerrors.Error{Phase: wasmerrors.PhaseInstantiate, Kind: wasmerrors.KindInitializerFailed}
	if !errors.Is(err, want) {
		t.Errorf("error = %v", err)
	}
}

func TestAllocateValidatesBeforeApplying(t *testing.T) {
	// The first segment is fine, the second is out of bounds. Because
	// the memory is imported, a partial apply would be visible to the
	// caller; validate-then-apply means it must stay untouched.
	b := wasm.NewBuilder()
	b.ImportMemory("env", "mem", 1, nil)
	b.AddData(0, wasm.I32Const(0), []byte("ok"))
	b.AddData(0, wasm.I32Const(wasm.PageSize), []byte("bad"))
	m := b.Module()

	mem, _ := NewMemory(wasm.MemoryType{Limits: wasm.Limits{Min: 1}})
	if _, err := Allocate(m, ImportValues{Memories: []*Memory{mem}}, nil); err == nil {
		t.Fatal("expected initializer failure")
	}
	if mem.Data()[0] != 0 {
		t.Error("failed instantiation applied a data segment")
	}
}

func TestAllocateImportCountMismatch(t *testing.T) {
	b := wasm.NewBuilder()
	b.ImportMemory("env", "mem", 1, nil)
	m := b.Module()

	if _, err := Allocate(m, ImportValues{}, nil); err == nil {
		t.Fatal("missing resolved import accepted")
	}
}

func TestAllocateSharedImportedMemory(t *testing.T) {
	b := wasm.NewBuilder()
	b.ImportMemory("env", "mem", 1, nil)
	m := b.Module()

	mem, _ := NewMemory(wasm.MemoryType{Limits: wasm.Limits{Min: 1}})
	ctxA, err := Allocate(m, ImportValues{Memories: []*Memory{mem}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctxB, err := Allocate(m, ImportValues{Memories: []*Memory{mem}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctxA.Memory().Data()[5] = 0x77
	if ctxB.Memory().Data()[5] != 0x77 {
		t.Error("imported memory not shared by reference")
	}
}
