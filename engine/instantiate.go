package engine

import (
	"github.com/wippyai/wasm-engine/errors"
	"github.com/wippyai/wasm-engine/vm"
)

// Instantiate builds a live instance from the artifact and resolved
// imports, then runs the module's start function if it declares one. A
// start-function trap discards nothing the instance already shares by
// reference, but the instance itself is not returned.
func Instantiate(a *Artifact, imp vm.ImportValues) (*vm.Context, error) {
	if a.closed.Load() {
		return nil, &errors.Error{
			Phase:  errors.PhaseInstantiate,
			Kind:   errors.KindAlreadyClosed,
			Detail: "artifact is closed",
		}
	}

	m := a.module
	imported := m.NumImportedFuncs()
	fns := make([]*vm.Function, len(a.funcs))
	for i, cf := range a.funcs {
		idx := imported + uint32(i)
		fns[i] = &vm.Function{
			Type:     m.Types[cf.TypeIndex],
			TypeID:   a.typeIDs[cf.TypeIndex],
			Compiled: cf,
			Addr:     a.funcAddrs[i],
			Index:    idx,
			Module:   m.Name,
			Name:     m.FuncName(idx),
		}
	}

	ctx, err := vm.Allocate(m, imp, fns)
	if err != nil {
		return nil, err
	}
	ctx.TypeIDs = a.typeIDs

	if m.Start != nil {
		start := ctx.Functions[*m.Start]
		if len(start.Type.Params) != 0 || len(start.Type.Results) != 0 {
			return nil, errors.SignatureMismatch(errors.PhaseInstantiate,
				"func()", start.Type.String())
		}
		debugf("instantiate: %s: running start function %s", m.Name, start.Name)
		if _, err := Call(start, nil); err != nil {
			return nil, err
		}
	}
	return ctx, nil
}
