package runtime

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-engine/compiler"
	"github.com/wippyai/wasm-engine/engine"
	"github.com/wippyai/wasm-engine/errors"
	"github.com/wippyai/wasm-engine/wasm"
)

// Runtime compiles and loads modules with a fixed backend and target.
// It is safe for concurrent use.
type Runtime struct {
	compiler compiler.Compiler
	target   compiler.Target
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithCompiler selects the compilation backend. The default is the
// single-pass backend.
func WithCompiler(c compiler.Compiler) Option {
	return func(r *Runtime) { r.compiler = c }
}

// WithTarget overrides the compilation target, for producing artifacts a
// different host will deserialize.
func WithTarget(t compiler.Target) Option {
	return func(r *Runtime) { r.target = t }
}

// WithLogger installs a logger for engine diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(*Runtime) { engine.SetLogger(l) }
}

// WithCallDepthLimit bounds guest call nesting. The limit is enforced
// process-wide by the executor.
func WithCallDepthLimit(n int) Option {
	return func(*Runtime) { engine.SetCallDepthLimit(n) }
}

// New builds a runtime.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		compiler: compiler.SinglePass{},
		target:   compiler.NativeTarget(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Compile decodes and compiles a WebAssembly binary into a Module.
func (r *Runtime) Compile(data []byte) (*Module, error) {
	m, err := wasm.Decode(data)
	if err != nil {
		return nil, err
	}
	return r.CompileModule(m, data)
}

// CompileModule compiles an already-decoded module. data must be the
// binary it was decoded from; it is retained for serialization.
func (r *Runtime) CompileModule(m *wasm.Module, data []byte) (*Module, error) {
	fns, err := r.compiler.Compile(m, r.target)
	if err != nil {
		return nil, err
	}
	a, err := engine.Link(m, data, fns, r.target, r.compiler.Name())
	if err != nil {
		return nil, err
	}
	return &Module{rt: r, artifact: a}, nil
}

// Deserialize loads a serialized Module. The image must have been
// produced on the same target by the same compiler backend; any
// mismatch is rejected before the body is trusted.
func (r *Runtime) Deserialize(data []byte) (*Module, error) {
	a, err := engine.Deserialize(data, r.target)
	if err != nil {
		return nil, err
	}
	if a.CompilerName() != r.compiler.Name() {
		a.Close()
		return nil, errors.HeaderMismatch(r.compiler.Name(), a.CompilerName())
	}
	return &Module{rt: r, artifact: a}, nil
}
