// Package wasmengine provides a Go implementation of a WebAssembly
// execution engine: modules are compiled ahead of time into portable
// artifacts, linked against host-provided imports, and instantiated
// into isolated sandboxes.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	wasmengine/          Root package documentation
//	├── runtime/         High-level API for compiling and running modules
//	├── engine/          Artifacts, serialization, and the executor
//	├── linker/          Import resolution against host namespaces
//	├── compiler/        Compiler backends producing lowered function code
//	├── vm/              Instance state: memories, tables, globals
//	├── trap/            Trap codes, backtraces, and the frame registry
//	├── wasm/            Binary format decoding and module description
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Compile and call an exported function:
//
//	rt := runtime.New()
//
//	mod, err := rt.Compile(wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mod.Close()
//
//	inst, err := mod.Instantiate(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close()
//
//	add, err := inst.Func("add")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	results, err := add.Call(ctx, runtime.I32(2), runtime.I32(3))
//	fmt.Println(runtime.DecodeI32(results[0])) // 5
//
// # Host Functions
//
// Register Go functions as imports through a linker namespace:
//
//	ns := linker.NewNamespace()
//	ns.DefineFunc("env", "now",
//	    wasm.FuncType{Results: []wasm.ValType{wasm.ValI64}},
//	    func(caller *vm.Context, args []uint64) ([]uint64, error) {
//	        return []uint64{uint64(time.Now().Unix())}, nil
//	    },
//	)
//	inst, err := mod.Instantiate(ctx, ns)
//
// # Precompilation
//
// Module.Serialize produces a self-contained artifact that
// Runtime.Deserialize can load later without recompiling. Artifacts
// embed the compiler name and target and are rejected on any mismatch.
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use. Instance is NOT
// thread-safe and should be used by a single goroutine, or access must
// be synchronized.
//
// # Memory Model
//
// WASM linear memory can only grow, never shrink. This is a
// WebAssembly specification limitation. When guest applications free
// memory, it remains allocated but available for reuse within the
// instance.
package wasmengine
