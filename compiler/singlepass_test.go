package compiler

import (
	"testing"

	"github.com/wippyai/wasm-engine/trap"
	"github.com/wippyai/wasm-engine/wasm"
)

// moduleWith builds a single-function module around body, which must end
// with the function's closing end opcode.
func moduleWith(t *testing.T, ft wasm.FuncType, locals []wasm.ValType, body []byte) *wasm.Module {
	t.Helper()
	b := wasm.NewBuilder()
	ti := b.AddType(ft)
	b.AddFunction(ti, locals, body)
	return b.Module()
}

func compileOne(t *testing.T, m *wasm.Module) *CompiledFunction {
	t.Helper()
	fns, err := SinglePass{}.Compile(m, NativeTarget())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return fns[len(fns)-1]
}

func TestLowerAdd(t *testing.T) {
	m := moduleWith(t,
		wasm.FuncType{
			Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32},
			Results: []wasm.ValType{wasm.ValI32},
		},
		nil,
		[]byte{wasm.OpLocalGet, 0, wasm.OpLocalGet, 1, wasm.OpI32Add, wasm.OpEnd},
	)
	fn := compileOne(t, m)

	want := []Kind{Kind(wasm.OpLocalGet), Kind(wasm.OpLocalGet), Kind(wasm.OpI32Add), KindReturn}
	if len(fn.Ops) != len(want) {
		t.Fatalf("ops = %d, want %d", len(fn.Ops), len(want))
	}
	for i, k := range want {
		if fn.Ops[i].Kind != k {
			t.Errorf("op %d kind = %#x, want %#x", i, fn.Ops[i].Kind, k)
		}
	}
	if fn.Ops[1].U1 != 1 {
		t.Errorf("second local.get index = %d", fn.Ops[1].U1)
	}
	if fn.NumLocals != 2 || fn.MaxStack != 2 {
		t.Errorf("NumLocals=%d MaxStack=%d", fn.NumLocals, fn.MaxStack)
	}
}

func TestLowerBlockBranch(t *testing.T) {
	// block  br 0  end  — the branch must land just past the block.
	m := moduleWith(t, wasm.FuncType{}, nil, []byte{
		wasm.OpBlock, 0x40,
		wasm.OpBr, 0,
		wasm.OpEnd,
		wasm.OpEnd,
	})
	fn := compileOne(t, m)

	// Ops: [0] br, [1] return
	if len(fn.Ops) != 2 || fn.Ops[0].Kind != KindBr {
		t.Fatalf("ops = %+v", fn.Ops)
	}
	if fn.Ops[0].Then.PC != 1 {
		t.Errorf("branch target = %d, want 1", fn.Ops[0].Then.PC)
	}
	if fn.Ops[0].Then.Drop.Start != -1 {
		t.Errorf("unexpected drop range %+v", fn.Ops[0].Then.Drop)
	}
}

func TestLowerLoopBranchesBackward(t *testing.T) {
	// loop  br 0  end — the branch must land on the loop head.
	m := moduleWith(t, wasm.FuncType{}, nil, []byte{
		wasm.OpLoop, 0x40,
		wasm.OpBr, 0,
		wasm.OpEnd,
		wasm.OpEnd,
	})
	fn := compileOne(t, m)
	if fn.Ops[0].Kind != KindBr || fn.Ops[0].Then.PC != 0 {
		t.Fatalf("loop branch = %+v", fn.Ops[0])
	}
}

func TestLowerBranchDropsExtraOperands(t *testing.T) {
	// A branch out of a one-result block with two values on the stack
	// keeps the top value and drops the one beneath it.
	m := moduleWith(t,
		wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}},
		nil,
		[]byte{
			wasm.OpBlock, 0x7F, // block (result i32)
			wasm.OpI32Const, 1,
			wasm.OpI32Const, 2,
			wasm.OpBr, 0,
			wasm.OpEnd,
			wasm.OpEnd,
		})
	fn := compileOne(t, m)

	br := fn.Ops[2]
	if br.Kind != KindBr {
		t.Fatalf("op 2 = %+v", br)
	}
	if br.Then.Drop != (Range{Start: 1, End: 1}) {
		t.Errorf("drop range = %+v, want [1,1]", br.Then.Drop)
	}
}

func TestLowerIfElse(t *testing.T) {
	m := moduleWith(t,
		wasm.FuncType{
			Params:  []wasm.ValType{wasm.ValI32},
			Results: []wasm.ValType{wasm.ValI32},
		},
		nil,
		[]byte{
			wasm.OpLocalGet, 0,
			wasm.OpIf, 0x7F,
			wasm.OpI32Const, 1,
			wasm.OpElse,
			wasm.OpI32Const, 2,
			wasm.OpEnd,
			wasm.OpEnd,
		})
	fn := compileOne(t, m)

	// Ops: [0] local.get, [1] br_if, [2] const 1, [3] br end, [4] const 2, [5] return
	if len(fn.Ops) != 6 {
		t.Fatalf("ops = %d: %+v", len(fn.Ops), fn.Ops)
	}
	brif := fn.Ops[1]
	if brif.Kind != KindBrIf || brif.Then.PC != 2 || brif.Else.PC != 4 {
		t.Errorf("br_if = %+v", brif)
	}
	if fn.Ops[3].Kind != KindBr || fn.Ops[3].Then.PC != 5 {
		t.Errorf("then exit branch = %+v", fn.Ops[3])
	}
}

func TestLowerBrTable(t *testing.T) {
	m := moduleWith(t,
		wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}},
		nil,
		[]byte{
			wasm.OpBlock, 0x40,
			wasm.OpBlock, 0x40,
			wasm.OpLocalGet, 0,
			wasm.OpBrTable, 1, 0, 1, // targets [inner], default outer
			wasm.OpEnd,
			wasm.OpI32Const, 7,
			wasm.OpDrop,
			wasm.OpEnd,
			wasm.OpEnd,
		})
	fn := compileOne(t, m)

	var bt *Op
	for i := range fn.Ops {
		if fn.Ops[i].Kind == KindBrTable {
			bt = &fn.Ops[i]
		}
	}
	if bt == nil {
		t.Fatal("no br_table lowered")
	}
	if len(bt.Table) != 2 {
		t.Fatalf("table entries = %d", len(bt.Table))
	}
	if bt.Table[0].PC >= bt.Table[1].PC {
		t.Errorf("inner target %d should precede outer target %d",
			bt.Table[0].PC, bt.Table[1].PC)
	}
}

func TestLowerTrapSites(t *testing.T) {
	b := wasm.NewBuilder()
	ti := b.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	})
	b.AddMemory(1, nil)
	b.AddFunction(ti, nil, []byte{
		wasm.OpLocalGet, 0,
		wasm.OpLocalGet, 1,
		wasm.OpI32DivS,
		wasm.OpI32Load, 2, 0, // align, offset
		wasm.OpEnd,
	})
	fn := compileOne(t, b.Module())

	if len(fn.Sites) != 2 {
		t.Fatalf("sites = %+v", fn.Sites)
	}
	if fn.Sites[0] != (trap.Site{Offset: 2, Code: trap.IntegerDivideByZero}) {
		t.Errorf("div site = %+v", fn.Sites[0])
	}
	if fn.Sites[1] != (trap.Site{Offset: 3, Code: trap.OutOfBoundsMemory}) {
		t.Errorf("load site = %+v", fn.Sites[1])
	}
}

func TestLowerCallReloc(t *testing.T) {
	b := wasm.NewBuilder()
	ti := b.AddType(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}})
	imported := b.ImportFunc("env", "answer", ti)
	b.AddFunction(ti, nil, []byte{
		wasm.OpCall, byte(imported),
		wasm.OpEnd,
	})
	fn := compileOne(t, b.Module())

	if len(fn.Relocs) != 1 {
		t.Fatalf("relocs = %+v", fn.Relocs)
	}
	if fn.Relocs[0] != (Reloc{OpIndex: 0, FuncIndex: imported}) {
		t.Errorf("reloc = %+v", fn.Relocs[0])
	}
}

func TestLowerDeadCodeSkipped(t *testing.T) {
	// Everything between return and end must vanish, including code that
	// would not validate if live.
	m := moduleWith(t, wasm.FuncType{}, nil, []byte{
		wasm.OpReturn,
		wasm.OpI32Add, // would underflow if live
		wasm.OpBlock, 0x40,
		wasm.OpEnd,
		wasm.OpEnd,
	})
	fn := compileOne(t, m)
	if len(fn.Ops) != 2 { // return + implicit return
		t.Fatalf("ops = %+v", fn.Ops)
	}
}

func TestLowerSourceMap(t *testing.T) {
	m := moduleWith(t,
		wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}},
		nil,
		[]byte{
			wasm.OpNop,           // offset 0, no output
			wasm.OpI32Const, 42,  // offset 1
			wasm.OpEnd,           // offset 3
		})
	fn := compileOne(t, m)
	if len(fn.Sources) != len(fn.Ops) {
		t.Fatalf("source map length %d, ops %d", len(fn.Sources), len(fn.Ops))
	}
	if fn.Sources[0] != 1 || fn.Sources[1] != 3 {
		t.Errorf("sources = %v", fn.Sources)
	}
}

func TestLowerErrors(t *testing.T) {
	tests := []struct {
		name   string
		ft     wasm.FuncType
		body   []byte
	}{
		{"stack underflow", wasm.FuncType{}, []byte{wasm.OpI32Add, wasm.OpEnd}},
		{"unknown opcode", wasm.FuncType{}, []byte{0xFC, wasm.OpEnd}},
		{"else outside if", wasm.FuncType{}, []byte{wasm.OpElse, wasm.OpEnd}},
		{"unterminated block", wasm.FuncType{}, []byte{wasm.OpBlock, 0x40, wasm.OpEnd}},
		{"branch depth", wasm.FuncType{}, []byte{wasm.OpBr, 5, wasm.OpEnd}},
		{"call out of range", wasm.FuncType{}, []byte{wasm.OpCall, 9, wasm.OpEnd}},
		{"local out of range", wasm.FuncType{}, []byte{wasm.OpLocalGet, 3, wasm.OpDrop, wasm.OpEnd}},
		{"memory access without memory", wasm.FuncType{}, []byte{
			wasm.OpI32Const, 0, wasm.OpI32Load, 2, 0, wasm.OpDrop, wasm.OpEnd}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := moduleWith(t, tt.ft, nil, tt.body)
			if _, err := (SinglePass{}).Compile(m, NativeTarget()); err == nil {
				t.Error("expected a compile error")
			}
		})
	}
}

func TestLowerImportedGlobal(t *testing.T) {
	b := wasm.NewBuilder()
	b.ImportGlobal("env", "counter", wasm.GlobalType{ValType: wasm.ValI32, Mutable: true})
	ti := b.AddType(wasm.FuncType{})
	b.AddFunction(ti, nil, []byte{
		wasm.OpGlobalGet, 0,
		wasm.OpGlobalSet, 0,
		wasm.OpEnd,
	})
	fn := compileOne(t, b.Module())

	want := []Kind{Kind(wasm.OpGlobalGet), Kind(wasm.OpGlobalSet), KindReturn}
	if len(fn.Ops) != len(want) {
		t.Fatalf("ops = %d, want %d", len(fn.Ops), len(want))
	}
	for i, k := range want {
		if fn.Ops[i].Kind != k {
			t.Errorf("op %d kind = %#x, want %#x", i, fn.Ops[i].Kind, k)
		}
	}
}

func TestLowerImportedGlobalImmutableSet(t *testing.T) {
	b := wasm.NewBuilder()
	b.ImportGlobal("env", "limit", wasm.GlobalType{ValType: wasm.ValI32})
	ti := b.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}})
	b.AddFunction(ti, nil, []byte{
		wasm.OpLocalGet, 0,
		wasm.OpGlobalSet, 0,
		wasm.OpEnd,
	})
	if _, err := (SinglePass{}).Compile(b.Module(), NativeTarget()); err == nil {
		t.Fatal("global.set on an immutable imported global compiled")
	}
}
