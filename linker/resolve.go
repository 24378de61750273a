package linker

import (
	"github.com/wippyai/wasm-engine/errors"
	"github.com/wippyai/wasm-engine/vm"
	"github.com/wippyai/wasm-engine/wasm"
)

// Resolve satisfies every import of m from the given providers, asked in
// order, and returns the values in declaration order per kind. The first
// unresolved or ill-typed import fails the resolution.
func Resolve(m *wasm.Module, providers ...Provider) (vm.ImportValues, error) {
	var out vm.ImportValues

	for _, imp := range m.Imports {
		ext, ok := lookup(providers, imp.Module, imp.Name)
		if !ok {
			return vm.ImportValues{}, errors.UnresolvedImport(imp.Module, imp.Name)
		}
		if ext.Kind() != imp.Desc.Kind {
			return vm.ImportValues{}, errors.ImportTypeMismatch(imp.Module, imp.Name,
				wasm.KindName(imp.Desc.Kind), wasm.KindName(ext.Kind()))
		}

		switch imp.Desc.Kind {
		case wasm.KindFunc:
			declared := m.Types[imp.Desc.TypeIdx]
			if !ext.Func.Type.Equal(declared) {
				return vm.ImportValues{}, errors.ImportTypeMismatch(imp.Module, imp.Name,
					declared.String(), ext.Func.Type.String())
			}
			out.Functions = append(out.Functions, ext.Func)

		case wasm.KindMemory:
			declared := imp.Desc.Memory.Limits
			actual := wasm.Limits{
				Min:    ext.Memory.Size(),
				Max:    ext.Memory.Type.Limits.Max,
				Shared: ext.Memory.Type.Limits.Shared,
			}
			if err := checkLimits(imp, "memory", declared, actual); err != nil {
				return vm.ImportValues{}, err
			}
			out.Memories = append(out.Memories, ext.Memory)

		case wasm.KindTable:
			declared := imp.Desc.Table.Limits
			actual := wasm.Limits{Min: ext.Table.Size(), Max: ext.Table.Type.Limits.Max}
			if err := checkLimits(imp, "table", declared, actual); err != nil {
				return vm.ImportValues{}, err
			}
			out.Tables = append(out.Tables, ext.Table)

		case wasm.KindGlobal:
			declared := *imp.Desc.Global
			if ext.Global.Type != declared {
				return vm.ImportValues{}, errors.ImportTypeMismatch(imp.Module, imp.Name,
					declared.String(), ext.Global.Type.String())
			}
			out.Globals = append(out.Globals, ext.Global)
		}
	}

	debugf("resolve: %s: %d functions, %d memories, %d tables, %d globals",
		m.Name, len(out.Functions), len(out.Memories), len(out.Tables), len(out.Globals))
	return out, nil
}

func lookup(providers []Provider, module, field string) (Extern, bool) {
	for _, p := range providers {
		if e, ok := p.Lookup(module, field); ok {
			return e, true
		}
	}
	return Extern{}, false
}

// checkLimits verifies the provided entity's limits fall within the
// declared range: at least the declared minimum, and never allowed to
// outgrow a declared maximum.
func checkLimits(imp wasm.Import, what string, declared, actual wasm.Limits) error {
	if actual.Shared != declared.Shared {
		return errors.ImportTypeMismatch(imp.Module, imp.Name,
			sharedName(what, declared.Shared), sharedName(what, actual.Shared))
	}
	if actual.Min < declared.Min {
		return errors.New(errors.PhaseResolve, errors.KindImportTypeMismatch).
			Import(imp.Module, imp.Name).
			Detail("%s size %d below declared minimum %d", what, actual.Min, declared.Min).
			Build()
	}
	if declared.Max != nil && (actual.Max == nil || *actual.Max > *declared.Max) {
		return errors.New(errors.PhaseResolve, errors.KindImportTypeMismatch).
			Import(imp.Module, imp.Name).
			Detail("%s can grow past the declared maximum %d", what, *declared.Max).
			Build()
	}
	return nil
}

func sharedName(what string, shared bool) string {
	if shared {
		return "shared " + what
	}
	return what
}
