package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which pipeline stage the error occurred in
type Phase string

const (
	PhaseDecode      Phase = "decode"      // binary format reading
	PhaseCompile     Phase = "compile"     // function translation
	PhaseLink        Phase = "link"        // artifact relocation resolution
	PhaseResolve     Phase = "resolve"     // import resolution
	PhaseInstantiate Phase = "instantiate" // instance allocation and init
	PhaseRuntime     Phase = "runtime"     // host-side runtime operations
	PhaseSerialize   Phase = "serialize"   // artifact encode/decode
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidData        Kind = "invalid_data"
	KindUnsupported        Kind = "unsupported"
	KindRelocation         Kind = "relocation"
	KindUnresolvedImport   Kind = "unresolved_import"
	KindImportTypeMismatch Kind = "import_type_mismatch"
	KindOutOfBounds        Kind = "out_of_bounds"
	KindExhaustion         Kind = "exhaustion"
	KindHeaderMismatch     Kind = "header_mismatch"
	KindNotFound           Kind = "not_found"
	KindSignatureMismatch  Kind = "signature_mismatch"
	KindInitializerFailed  Kind = "initializer_failed"
	KindAlreadyClosed      Kind = "already_closed"
)

// Error is the structured error type used throughout the engine
type Error struct {
	Cause    error
	Phase    Phase
	Kind     Kind
	Module   string // import module name, when applicable
	Field    string // import field name, when applicable
	Expected string
	Actual   string
	Detail   string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Module != "" || e.Field != "" {
		b.WriteString(" at ")
		b.WriteString(e.Module)
		b.WriteByte('.')
		b.WriteString(e.Field)
	}

	if e.Expected != "" || e.Actual != "" {
		b.WriteString(": expected ")
		b.WriteString(e.Expected)
		b.WriteString(", got ")
		b.WriteString(e.Actual)
	}

	if e.Detail != "" {
		if e.Expected != "" || e.Actual != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Import sets the import module/field pair
func (b *Builder) Import(module, field string) *Builder {
	b.err.Module = module
	b.err.Field = field
	return b
}

// Expected sets the expected type description
func (b *Builder) Expected(t string) *Builder {
	b.err.Expected = t
	return b
}

// Actual sets the observed type description
func (b *Builder) Actual(t string) *Builder {
	b.err.Actual = t
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// UnresolvedImport creates an error naming an import with no provider
func UnresolvedImport(module, field string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindUnresolvedImport,
		Module: module,
		Field:  field,
		Detail: "no provider supplied this import",
	}
}

// ImportTypeMismatch creates an error for an import whose provided extern
// does not match the declared expectation
func ImportTypeMismatch(module, field, expected, actual string) *Error {
	return &Error{
		Phase:    PhaseResolve,
		Kind:     KindImportTypeMismatch,
		Module:   module,
		Field:    field,
		Expected: expected,
		Actual:   actual,
	}
}

// Unsupported creates an unsupported feature error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// Relocation creates a link-time relocation failure. An unresolved
// relocation indicates a compiler/runtime ABI mismatch and is not
// recoverable.
func Relocation(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindRelocation,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// HeaderMismatch creates a serialized-artifact header validation error
func HeaderMismatch(expected, actual string) *Error {
	return &Error{
		Phase:    PhaseSerialize,
		Kind:     KindHeaderMismatch,
		Expected: expected,
		Actual:   actual,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// SignatureMismatch creates a call argument typing error
func SignatureMismatch(phase Phase, expected, actual string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindSignatureMismatch,
		Expected: expected,
		Actual:   actual,
	}
}

// InitializerFailed creates a data/element segment initialization error.
// The instantiation that hit it is discarded; no partially initialized
// instance is observable to the caller.
func InitializerFailed(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInitializerFailed,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// Exhaustion creates a resource exhaustion error for host-facing allocation
// failures. Growth denials observable to guest code are returned to the
// guest as values, never as this error.
func Exhaustion(phase Phase, detail string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindExhaustion,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// Wrap wraps an existing error with phase and kind context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
