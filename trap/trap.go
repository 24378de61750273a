package trap

import (
	"strconv"
	"strings"
)

// Site marks a code offset within a compiled function at which a runtime
// fault maps to a specific trap code. Compilers emit one site per faulting
// instruction; the executor consults them to classify faults raised by the
// host runtime, such as a divide fault surfacing as IntegerDivideByZero.
type Site struct {
	// Offset is the instruction offset within the function body.
	Offset uint32
	// Code is the trap classification for a fault at Offset.
	Code Code
}

// Frame is one level of a guest backtrace.
type Frame struct {
	// Module is the defining module's name, or empty when unnamed.
	Module string
	// Func is the function's symbolic name, or a "func[N]" placeholder.
	Func string
	// FuncIndex is the function's index in its module's function space.
	FuncIndex uint32
	// SourceOffset is the byte offset of the faulting instruction within
	// the original module binary, when the compiler recorded one.
	SourceOffset uint32
}

func (f Frame) String() string {
	var b strings.Builder
	if f.Module != "" {
		b.WriteString(f.Module)
		b.WriteByte('!')
	}
	b.WriteString(f.Func)
	return b.String()
}

// Trap is a guest execution fault. It satisfies error and carries the
// backtrace captured at the point of the fault, innermost frame first.
type Trap struct {
	code   Code
	frames []Frame
}

// New builds a trap with no backtrace. The executor attaches frames as the
// fault unwinds.
func New(code Code) *Trap {
	return &Trap{code: code}
}

// TrapCode reports the fault class.
func (t *Trap) TrapCode() Code { return t.code }

// Frames returns the captured backtrace, innermost first. The returned
// slice is owned by the trap and must not be mutated.
func (t *Trap) Frames() []Frame { return t.frames }

// PushFrame appends the next outer frame to the backtrace.
func (t *Trap) PushFrame(f Frame) { t.frames = append(t.frames, f) }

func (t *Trap) Error() string {
	var b strings.Builder
	b.WriteString("wasm trap: ")
	b.WriteString(t.code.String())
	if len(t.frames) > 0 {
		b.WriteString("\nwasm backtrace:")
		for i, f := range t.frames {
			b.WriteString("\n  ")
			b.WriteString(strconv.Itoa(i))
			b.WriteString(": ")
			b.WriteString(f.String())
		}
	}
	return b.String()
}

// Is matches any *Trap with the same code, so errors.Is can test for a
// fault class without comparing backtraces.
func (t *Trap) Is(target error) bool {
	o, ok := target.(*Trap)
	return ok && o.code == t.code
}
