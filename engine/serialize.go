package engine

import (
	"github.com/wippyai/wasm-engine/compiler"
	"github.com/wippyai/wasm-engine/errors"
	"github.com/wippyai/wasm-engine/trap"
	"github.com/wippyai/wasm-engine/wasm"
)

// Serialized artifact layout: header, then the original module binary,
// then the compiled function bodies. The header is validated fail-closed
// on load; any mismatch rejects the image before a single body is read.
const (
	serializeMagic   = "\x00wasmengine"
	serializeVersion = 1
)

// Serialize encodes the artifact for a later Deserialize in a process on
// the same target with the same compiler backend.
func (a *Artifact) Serialize() []byte {
	out := []byte(serializeMagic)
	out = append(out, serializeVersion)
	out = appendString(out, a.compilerName)
	out = appendString(out, a.target.OS)
	out = appendString(out, a.target.Arch)

	out = wasm.AppendU32(out, uint32(len(a.moduleBytes)))
	out = append(out, a.moduleBytes...)

	out = wasm.AppendU32(out, uint32(len(a.funcs)))
	for _, fn := range a.funcs {
		out = appendFunc(out, fn)
	}
	return out
}

// Deserialize loads a serialized artifact, relinking it into the current
// process. The image must carry the given target; the stored compiler
// name is returned on the artifact for the caller to vet.
func Deserialize(data []byte, target compiler.Target) (*Artifact, error) {
	if len(data) < len(serializeMagic)+1 || string(data[:len(serializeMagic)]) != serializeMagic {
		return nil, errors.HeaderMismatch("wasmengine artifact", "unrecognized image")
	}
	r := wasm.NewReader(data[len(serializeMagic):])

	version, err := r.Byte()
	if err != nil {
		return nil, serializeErr(err)
	}
	if version != serializeVersion {
		return nil, errors.HeaderMismatch("format version 1", "version "+string('0'+version))
	}

	compilerName, err := r.Name()
	if err != nil {
		return nil, serializeErr(err)
	}
	os, err := r.Name()
	if err != nil {
		return nil, serializeErr(err)
	}
	arch, err := r.Name()
	if err != nil {
		return nil, serializeErr(err)
	}
	stored := compiler.Target{OS: os, Arch: arch}
	if stored != target {
		return nil, errors.HeaderMismatch(target.String(), stored.String())
	}

	nbytes, err := r.U32()
	if err != nil {
		return nil, serializeErr(err)
	}
	moduleBytes, err := r.Bytes(int(nbytes))
	if err != nil {
		return nil, serializeErr(err)
	}
	m, err := wasm.Decode(moduleBytes)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseSerialize, errors.KindInvalidData, err,
			"embedded module binary")
	}

	nfuncs, err := r.U32()
	if err != nil {
		return nil, serializeErr(err)
	}
	if int(nfuncs) != len(m.Code) {
		return nil, errors.InvalidData(errors.PhaseSerialize, "function count does not match module")
	}
	fns := make([]*compiler.CompiledFunction, nfuncs)
	for i := range fns {
		if fns[i], err = readFunc(r); err != nil {
			return nil, err
		}
	}
	if r.Len() != 0 {
		return nil, errors.InvalidData(errors.PhaseSerialize, "trailing bytes after artifact body")
	}

	return Link(m, moduleBytes, fns, stored, compilerName)
}

func serializeErr(err error) error {
	return errors.Wrap(errors.PhaseSerialize, errors.KindInvalidData, err, "truncated artifact")
}

func appendString(dst []byte, s string) []byte {
	dst = wasm.AppendU32(dst, uint32(len(s)))
	return append(dst, s...)
}

func appendBranch(dst []byte, b compiler.Branch) []byte {
	dst = wasm.AppendU64(dst, b.PC)
	dst = wasm.AppendS32(dst, b.Drop.Start)
	return wasm.AppendS32(dst, b.Drop.End)
}

func appendFunc(dst []byte, fn *compiler.CompiledFunction) []byte {
	dst = wasm.AppendU32(dst, fn.TypeIndex)
	dst = wasm.AppendU32(dst, fn.NumLocals)
	dst = wasm.AppendU32(dst, fn.MaxStack)

	dst = wasm.AppendU32(dst, uint32(len(fn.Ops)))
	for _, op := range fn.Ops {
		dst = wasm.AppendU32(dst, uint32(op.Kind))
		dst = wasm.AppendU64(dst, op.U1)
		dst = wasm.AppendU64(dst, op.U2)
		switch op.Kind {
		case compiler.KindBr:
			dst = appendBranch(dst, op.Then)
		case compiler.KindBrIf:
			dst = appendBranch(dst, op.Then)
			dst = appendBranch(dst, op.Else)
		case compiler.KindBrTable:
			dst = wasm.AppendU32(dst, uint32(len(op.Table)))
			for _, b := range op.Table {
				dst = appendBranch(dst, b)
			}
		}
	}

	dst = wasm.AppendU32(dst, uint32(len(fn.Relocs)))
	for _, rel := range fn.Relocs {
		dst = wasm.AppendU32(dst, rel.OpIndex)
		dst = wasm.AppendU32(dst, rel.FuncIndex)
	}

	dst = wasm.AppendU32(dst, uint32(len(fn.Sites)))
	for _, s := range fn.Sites {
		dst = wasm.AppendU32(dst, s.Offset)
		dst = append(dst, byte(s.Code))
	}

	dst = wasm.AppendU32(dst, uint32(len(fn.Sources)))
	for _, s := range fn.Sources {
		dst = wasm.AppendU32(dst, s)
	}
	return dst
}

func readBranch(r *wasm.Reader) (compiler.Branch, error) {
	var b compiler.Branch
	var err error
	if b.PC, err = r.U64(); err != nil {
		return b, serializeErr(err)
	}
	if b.Drop.Start, err = r.S32(); err != nil {
		return b, serializeErr(err)
	}
	if b.Drop.End, err = r.S32(); err != nil {
		return b, serializeErr(err)
	}
	return b, nil
}

func readFunc(r *wasm.Reader) (*compiler.CompiledFunction, error) {
	fn := &compiler.CompiledFunction{}
	var err error
	if fn.TypeIndex, err = r.U32(); err != nil {
		return nil, serializeErr(err)
	}
	if fn.NumLocals, err = r.U32(); err != nil {
		return nil, serializeErr(err)
	}
	if fn.MaxStack, err = r.U32(); err != nil {
		return nil, serializeErr(err)
	}

	nops, err := r.U32()
	if err != nil {
		return nil, serializeErr(err)
	}
	fn.Ops = make([]compiler.Op, nops)
	for i := range fn.Ops {
		op := &fn.Ops[i]
		kind, err := r.U32()
		if err != nil {
			return nil, serializeErr(err)
		}
		op.Kind = compiler.Kind(kind)
		if op.U1, err = r.U64(); err != nil {
			return nil, serializeErr(err)
		}
		if op.U2, err = r.U64(); err != nil {
			return nil, serializeErr(err)
		}
		switch op.Kind {
		case compiler.KindBr:
			if op.Then, err = readBranch(r); err != nil {
				return nil, err
			}
		case compiler.KindBrIf:
			if op.Then, err = readBranch(r); err != nil {
				return nil, err
			}
			if op.Else, err = readBranch(r); err != nil {
				return nil, err
			}
		case compiler.KindBrTable:
			n, err := r.U32()
			if err != nil {
				return nil, serializeErr(err)
			}
			op.Table = make([]compiler.Branch, n)
			for j := range op.Table {
				if op.Table[j], err = readBranch(r); err != nil {
					return nil, err
				}
			}
		}
	}

	nrel, err := r.U32()
	if err != nil {
		return nil, serializeErr(err)
	}
	fn.Relocs = make([]compiler.Reloc, nrel)
	for i := range fn.Relocs {
		if fn.Relocs[i].OpIndex, err = r.U32(); err != nil {
			return nil, serializeErr(err)
		}
		if fn.Relocs[i].FuncIndex, err = r.U32(); err != nil {
			return nil, serializeErr(err)
		}
	}

	nsites, err := r.U32()
	if err != nil {
		return nil, serializeErr(err)
	}
	fn.Sites = make([]trap.Site, nsites)
	for i := range fn.Sites {
		if fn.Sites[i].Offset, err = r.U32(); err != nil {
			return nil, serializeErr(err)
		}
		code, err := r.Byte()
		if err != nil {
			return nil, serializeErr(err)
		}
		fn.Sites[i].Code = trap.Code(code)
	}

	nsrc, err := r.U32()
	if err != nil {
		return nil, serializeErr(err)
	}
	fn.Sources = make([]uint32, nsrc)
	for i := range fn.Sources {
		if fn.Sources[i], err = r.U32(); err != nil {
			return nil, serializeErr(err)
		}
	}
	return fn, nil
}
