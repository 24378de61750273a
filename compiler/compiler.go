package compiler

import (
	"runtime"

	"github.com/wippyai/wasm-engine/trap"
	"github.com/wippyai/wasm-engine/wasm"
)

// Target describes the host a compilation is produced for. Artifacts
// record their target and refuse to load on a different one.
type Target struct {
	OS   string
	Arch string
}

// NativeTarget returns the target of the running process.
func NativeTarget() Target {
	return Target{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

func (t Target) String() string { return t.OS + "/" + t.Arch }

// Compiler is a compilation backend.
type Compiler interface {
	// Name identifies the backend inside serialized artifact headers.
	Name() string

	// Compile translates every locally defined function of m. The
	// returned slice parallels m.Code.
	Compile(m *wasm.Module, target Target) ([]*CompiledFunction, error)
}

// Kind discriminates lowered instructions. Plain instructions reuse their
// WebAssembly opcode value; structured control flow is replaced during
// lowering by the Kind* branches below.
type Kind uint16

const (
	// KindBr is an unconditional jump to Then.
	KindBr Kind = 0x100 + iota
	// KindBrIf pops a condition and jumps to Then when nonzero, Else
	// otherwise.
	KindBrIf
	// KindBrTable pops an index and jumps through Table; out-of-range
	// indices take the last entry.
	KindBrTable
	// KindReturn leaves the function with the top result values.
	KindReturn
)

// Range marks operand-stack entries to discard before a branch lands,
// expressed as inclusive depths from the top (0 = top of stack). A
// negative Start means nothing is dropped.
type Range struct {
	Start int32
	End   int32
}

// NoDrop is the empty drop range.
var NoDrop = Range{Start: -1, End: -1}

// Branch is one resolved edge of a lowered control transfer.
type Branch struct {
	// PC is the instruction offset the edge jumps to.
	PC uint64
	// Drop is applied to the operand stack before the jump.
	Drop Range
}

// Op is one lowered instruction.
//
// Operand use by kind: constants carry their raw bits in U1; loads and
// stores carry the static address offset in U1; local, global and call
// instructions carry the index in U1; call_indirect carries the expected
// type index in U1 and the table index in U2.
type Op struct {
	Kind  Kind
	U1    uint64
	U2    uint64
	Then  Branch
	Else  Branch
	Table []Branch
}

// Reloc records a direct call site. OpIndex is the call instruction's
// offset in Ops; FuncIndex is the callee in the module's combined
// function index space. Linking fails if any record names a function
// that does not exist.
type Reloc struct {
	OpIndex   uint32
	FuncIndex uint32
}

// CompiledFunction is the compiler's output for one function body.
type CompiledFunction struct {
	// TypeIndex is the function's signature in the module type section.
	TypeIndex uint32
	// NumLocals counts parameters plus declared locals.
	NumLocals uint32
	// MaxStack is the operand-stack high-water mark, for frame
	// preallocation.
	MaxStack uint32
	// Ops is the lowered instruction stream.
	Ops []Op
	// Relocs lists direct call sites for link-time resolution.
	Relocs []Reloc
	// Sites classifies faults by instruction offset, sorted ascending.
	Sites []trap.Site
	// Sources maps instruction offsets to byte offsets within the
	// original function body.
	Sources []uint32
}
