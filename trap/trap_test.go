package trap

import (
	"errors"
	"strings"
	"testing"
)

func TestTrapError(t *testing.T) {
	tr := New(IntegerDivideByZero)
	if got := tr.Error(); got != "wasm trap: integer divide by zero" {
		t.Fatalf("Error() = %q", got)
	}

	tr.PushFrame(Frame{Module: "math", Func: "div", FuncIndex: 3, SourceOffset: 0x42})
	tr.PushFrame(Frame{Func: "func[0]"})

	out := tr.Error()
	if !strings.Contains(out, "wasm backtrace:") {
		t.Fatalf("missing backtrace header in %q", out)
	}
	if !strings.Contains(out, "0: math!div") {
		t.Errorf("missing innermost frame in %q", out)
	}
	if !strings.Contains(out, "1: func[0]") {
		t.Errorf("missing outer frame in %q", out)
	}
}

func TestTrapIs(t *testing.T) {
	tr := New(Unreachable)
	tr.PushFrame(Frame{Func: "f"})

	if !errors.Is(tr, New(Unreachable)) {
		t.Error("traps with equal codes should match regardless of frames")
	}
	if errors.Is(tr, New(StackOverflow)) {
		t.Error("traps with different codes must not match")
	}
	if errors.Is(tr, errors.New("wasm trap: unreachable")) {
		t.Error("trap must not match a plain error")
	}
}

func TestCodeString(t *testing.T) {
	if OutOfBoundsMemory.String() != "out of bounds memory access" {
		t.Errorf("OutOfBoundsMemory.String() = %q", OutOfBoundsMemory.String())
	}
	if Code(200).String() != "unknown trap" {
		t.Errorf("unknown code String() = %q", Code(200).String())
	}
}
