package engine

import (
	stderrors "errors"
	"testing"

	"github.com/wippyai/wasm-engine/compiler"
	"github.com/wippyai/wasm-engine/errors"
	"github.com/wippyai/wasm-engine/vm"
	"github.com/wippyai/wasm-engine/wasm"
)

func fibBuilder() *wasm.Builder {
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
	return b
}

func TestSerializeRoundTrip(t *testing.T) {
	a := link(t, fibBuilder())
	img := a.Serialize()

	b, err := Deserialize(img, compiler.NativeTarget())
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	defer b.Close()

	if b.CompilerName() != a.CompilerName() {
		t.Errorf("compiler name %q, want %q", b.CompilerName(), a.CompilerName())
	}

	ctx, err := Instantiate(b, vm.ImportValues{})
	if err != nil {
		t.Fatal(err)
	}
	if got := call1(t, exported(t, ctx, "fib"), 10); got != 55 {
		t.Errorf("fib(10) after round trip = %d", got)
	}
}

func TestDeserializeHeaderChecks(t *testing.T) {
	a := link(t, fibBuilder())
	img := a.Serialize()

	headerErr := &errors.Error{Phase: errors.PhaseSerialize, Kind: errors.KindHeaderMismatch}

	t.Run("wrong target", func(t *testing.T) {
		_, err := Deserialize(img, compiler.Target{OS: "plan9", Arch: "mips"})
		if !stderrors.Is(err, headerErr) {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte{}, img...)
		bad[1] ^= 0xFF
		if _, err := Deserialize(bad, compiler.NativeTarget()); !stderrors.Is(err, headerErr) {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		if _, err := Deserialize(img[:len(img)/2], compiler.NativeTarget()); err == nil {
			t.Error("truncated image accepted")
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := Deserialize(nil, compiler.NativeTarget()); !stderrors.Is(err, headerErr) {
			t.Error("empty image accepted")
		}
	})
}

func TestArtifactClose(t *testing.T) {
	m := fibBuilder()
	fns, err := compiler.SinglePass{}.Compile(m.Module(), compiler.NativeTarget())
	if err != nil {
		t.Fatal(err)
	}
	a, err := Link(m.Module(), m.Bytes(), fns, compiler.NativeTarget(), "singlepass")
	if err != nil {
		t.Fatal(err)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	closedErr := &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindAlreadyClosed}
	if err := a.Close(); !stderrors.Is(err, closedErr) {
		t.Errorf("second close = %v", err)
	}

	if _, err := Instantiate(a, vm.ImportValues{}); err == nil {
		t.Error("instantiating a closed artifact succeeded")
	}
}

func TestLinkRejectsDanglingReloc(t *testing.T) {
	b := fibBuilder()
	m := b.Module()
	fns, err := compiler.SinglePass{}.Compile(m, compiler.NativeTarget())
	if err != nil {
		t.Fatal(err)
	}
	fns[0].Relocs[0].FuncIndex = 99

	_, err = Link(m, b.Bytes(), fns, compiler.NativeTarget(), "singlepass")
	relocErr := &errors.Error{Phase: errors.PhaseLink, Kind: errors.KindRelocation}
	if !stderrors.Is(err, relocErr) {
		t.Errorf("error = %v", err)
	}
}

func TestTypeIDInterning(t *testing.T) {
	a := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI64}}
	b := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI64}}
	c := wasm.FuncType{Params: []wasm.ValType{wasm.ValI64}, Results: []wasm.ValType{wasm.ValI64}}

	if typeID(a) != typeID(b) {
		t.Error("structurally equal types got different identities")
	}
	if typeID(a) == typeID(c) {
		t.Error("distinct types share an identity")
	}
}
