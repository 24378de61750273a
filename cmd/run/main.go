// Command run compiles a WebAssembly module and invokes an exported
// function, printing the decoded results. It can also list exports,
// precompile a module to a serialized artifact, run a precompiled
// artifact, and launch an interactive export browser.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/wippyai/wasm-engine/runtime"
	"github.com/wippyai/wasm-engine/wasm"
)

var (
	wasmFile    = flag.String("wasm", "", "path to the WebAssembly module (required)")
	funcName    = flag.String("func", "", "exported function to call (default: _start, run, or main)")
	funcArgs    = flag.String("args", "", "comma-separated arguments, typed by the function signature")
	listFuncs   = flag.Bool("list", false, "list exported functions and exit")
	savePath    = flag.String("save", "", "serialize the compiled artifact to this path and exit")
	precompiled = flag.Bool("precompiled", false, "treat -wasm as a serialized artifact instead of a module")
	interactive = flag.Bool("i", false, "interactive mode: browse and call exports")
)

func main() {
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "usage: run -wasm <file> [-func name] [-args a,b,c] [-list] [-save path] [-precompiled] [-i]")
		os.Exit(2)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "run: interactive mode requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*wasmFile); err != nil {
			fmt.Fprintf(os.Stderr, "run: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	data, err := os.ReadFile(*wasmFile)
	if err != nil {
		return err
	}

	rt := runtime.New()

	var mod *runtime.Module
	if *precompiled {
		mod, err = rt.Deserialize(data)
	} else {
		mod, err = rt.Compile(data)
	}
	if err != nil {
		return err
	}
	defer mod.Close()

	if *savePath != "" {
		return os.WriteFile(*savePath, mod.Serialize(), 0o644)
	}

	info := mod.Info()
	if *listFuncs {
		listExports(info)
		return nil
	}

	name := *funcName
	if name == "" {
		name = pickEntryPoint(info)
		if name == "" {
			listExports(info)
			return fmt.Errorf("no entry point found; pick one with -func")
		}
	}

	ctx := context.Background()

	inst, err := mod.Instantiate(ctx)
	if err != nil {
		return err
	}
	defer inst.Close()

	fn, err := inst.Func(name)
	if err != nil {
		return err
	}

	args, err := parseArgs(*funcArgs, fn.Type().Params)
	if err != nil {
		return err
	}

	results, err := fn.Call(ctx, args...)
	if err != nil {
		return err
	}

	for i, r := range results {
		fmt.Println(formatResult(r, fn.Type().Results[i]))
	}
	return nil
}

func listExports(m *wasm.Module) {
	fmt.Printf("module %q exports:\n", m.Name)
	for _, exp := range m.Exports {
		if exp.Kind != wasm.KindFunc {
			fmt.Printf("  %s %s\n", wasm.KindName(exp.Kind), exp.Name)
			continue
		}
		t := m.Types[m.FuncTypeIndex(exp.Idx)]
		fmt.Printf("  %s %s\n", exp.Name, t)
	}
}

// pickEntryPoint returns the conventional entry export, preferring
// _start, then run, then main.
func pickEntryPoint(m *wasm.Module) string {
	for _, candidate := range []string{"_start", "run", "main"} {
		if _, ok := m.ExportedFunc(candidate); ok {
			return candidate
		}
	}
	return ""
}

func parseArgs(raw string, params []wasm.ValType) ([]uint64, error) {
	var fields []string
	if raw != "" {
		fields = strings.Split(raw, ",")
	}
	if len(fields) != len(params) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(params), len(fields))
	}
	args := make([]uint64, len(fields))
	for i, f := range fields {
		v, err := parseArg(strings.TrimSpace(f), params[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

func parseArg(s string, t wasm.ValType) (uint64, error) {
	switch t {
	case wasm.ValI32:
		v, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("%q is not an i32", s)
		}
		return runtime.I32(int32(v)), nil
	case wasm.ValI64:
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an i64", s)
		}
		return runtime.I64(v), nil
	case wasm.ValF32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return 0, fmt.Errorf("%q is not an f32", s)
		}
		return runtime.F32(float32(v)), nil
	case wasm.ValF64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an f64", s)
		}
		return runtime.F64(v), nil
	default:
		return 0, fmt.Errorf("unsupported parameter type %s", t)
	}
}

func formatResult(bits uint64, t wasm.ValType) string {
	switch t {
	case wasm.ValI32:
		return strconv.FormatInt(int64(runtime.DecodeI32(bits)), 10)
	case wasm.ValI64:
		return strconv.FormatInt(runtime.DecodeI64(bits), 10)
	case wasm.ValF32:
		return strconv.FormatFloat(float64(runtime.DecodeF32(bits)), 'g', -1, 32)
	case wasm.ValF64:
		return strconv.FormatFloat(runtime.DecodeF64(bits), 'g', -1, 64)
	default:
		return fmt.Sprintf("0x%x", bits)
	}
}
