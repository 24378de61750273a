package trap

// Code identifies the class of a guest fault.
type Code uint8

const (
	// OutOfBoundsMemory is a load or store outside the memory's current
	// byte length.
	OutOfBoundsMemory Code = iota

	// OutOfBoundsTable is an indirect call through an index past the
	// table's current size.
	OutOfBoundsTable

	// UninitializedElement is an indirect call through a table slot that
	// no element segment ever filled.
	UninitializedElement

	// IndirectCallTypeMismatch is an indirect call whose expected
	// signature differs from the callee's actual signature.
	IndirectCallTypeMismatch

	// IntegerDivideByZero is an integer division or remainder with a zero
	// divisor.
	IntegerDivideByZero

	// IntegerOverflow is a division result unrepresentable in the result
	// type, such as INT32_MIN / -1.
	IntegerOverflow

	// InvalidConversionToInteger is a float-to-int truncation of a NaN or
	// a value outside the integer range.
	InvalidConversionToInteger

	// Unreachable is the unreachable instruction.
	Unreachable

	// StackOverflow is guest call nesting past the engine's depth ceiling.
	StackOverflow
)

var codeNames = [...]string{
	OutOfBoundsMemory:          "out of bounds memory access",
	OutOfBoundsTable:           "undefined element: out of bounds table access",
	UninitializedElement:       "uninitialized element",
	IndirectCallTypeMismatch:   "indirect call type mismatch",
	IntegerDivideByZero:        "integer divide by zero",
	IntegerOverflow:            "integer overflow",
	InvalidConversionToInteger: "invalid conversion to integer",
	Unreachable:                "unreachable",
	StackOverflow:              "call stack exhausted",
}

func (c Code) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return "unknown trap"
}
