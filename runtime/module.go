package runtime

import (
	"context"

	"github.com/wippyai/wasm-engine/engine"
	"github.com/wippyai/wasm-engine/linker"
	"github.com/wippyai/wasm-engine/wasm"
)

// Module is a compiled, linked module ready to instantiate. Instances
// share its code and metadata but nothing mutable.
type Module struct {
	rt       *Runtime
	artifact *engine.Artifact
}

// Name returns the module's declared name, if its binary carried one.
func (m *Module) Name() string { return m.artifact.Module().Name }

// Info returns the decoded module description.
func (m *Module) Info() *wasm.Module { return m.artifact.Module() }

// Serialize encodes the module for a later Runtime.Deserialize.
func (m *Module) Serialize() []byte { return m.artifact.Serialize() }

// Close releases the module's registry entries. Existing instances keep
// running but lose symbolic backtraces; new instantiations fail.
func (m *Module) Close() error { return m.artifact.Close() }

// Instantiate resolves the module's imports against the providers in
// order, allocates an instance, and runs the start function if one is
// declared. The context bounds the start function's execution setup; a
// canceled context fails the instantiation before any guest code runs.
func (m *Module) Instantiate(ctx context.Context, providers ...linker.Provider) (*Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	imp, err := linker.Resolve(m.artifact.Module(), providers...)
	if err != nil {
		return nil, err
	}
	vctx, err := engine.Instantiate(m.artifact, imp)
	if err != nil {
		return nil, err
	}
	return &Instance{module: m, ctx: vctx}, nil
}
