// Command evmc is the CLI front end for the Vybium EVM compiler backend
// (spec §6.2): `compile [options] <file>`.
//
// Lexing, parsing and type checking are out of scope for this repo (spec
// §1 "Out of scope"): <file> is a JSON encoding of
// internal/vybium-evm-compiler/ast.Program, the typed-AST contract a real
// front end would hand off to this backend. This keeps the CLI runnable
// end to end without inventing a parser this repo does not implement.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	vybiumevmcompiler "github.com/vybium/vybium-evm-compiler/pkg/vybium-evm-compiler"

	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ast"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/bytecode"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/diag"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/liveness"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/memplan"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/stats"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/validate"
)

func main() {
	var (
		stopAfter  = flag.String("s", "bytecode", "stop after {ast|ir|bytecode}")
		optimize   = flag.Int("O", 0, "optimizer level {0|1|2|3}")
		format     = flag.String("f", "text", "output format {text|json|asm}")
		output     = flag.String("o", "", "output file (default stdout)")
		pretty     = flag.Bool("p", false, "pretty-print JSON")
		doValidate = flag.Bool("validate", false, "run IR validator")
		doStats    = flag.Bool("stats", false, "print IR statistics")
		showBoth   = flag.Bool("show-both", false, "print both unoptimized and optimized IR")
	)
	flag.StringVar(stopAfter, "stop-after", *stopAfter, "stop after {ast|ir|bytecode}")
	flag.IntVar(optimize, "optimize", *optimize, "optimizer level {0|1|2|3}")
	flag.StringVar(format, "format", *format, "output format {text|json|asm}")
	flag.StringVar(output, "output", *output, "output file (default stdout)")
	flag.BoolVar(pretty, "pretty", *pretty, "pretty-print JSON")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(1)
	}
	path := flag.Arg(0)

	artifact, err := vybiumevmcompiler.ParseArtifact(*stopAfter)
	if err != nil {
		fatal(err.Error())
	}

	src, err := os.ReadFile(path)
	if err != nil {
		fatal(fmt.Sprintf("failed to read %s: %v", path, err))
	}

	var program ast.Program
	if err := json.Unmarshal(src, &program); err != nil {
		fatal(fmt.Sprintf("failed to parse %s as an AST document: %v", path, err))
	}

	opts := vybiumevmcompiler.DefaultOptions().
		WithProgram(&program).
		WithSource(string(src)).
		WithSourcePath(path).
		WithTo(artifact).
		WithOptimizerLevel(*optimize)

	var unoptimizedIR *ir.Module
	if *showBoth && artifact == vybiumevmcompiler.ArtifactIR && *optimize > 0 {
		unopt := opts.Clone().WithOptimizerLevel(0)
		if r, err := vybiumevmcompiler.Compile(unopt); err == nil {
			unoptimizedIR = r.IR
		}
	}

	result, err := vybiumevmcompiler.Compile(opts)
	if err != nil {
		if ce, ok := err.(*vybiumevmcompiler.CompileError); ok && ce.Diagnostics != nil {
			fmt.Fprint(os.Stderr, diag.Render(string(src), ce.Diagnostics.Items()))
		}
		fatal(err.Error())
	}

	for _, w := range result.Warnings {
		logStderr(w.String())
	}

	// --validate and --stats inspect the IR even when the requested
	// artifact is bytecode; re-run the front half of the pipeline for it.
	irMod := result.IR
	if (*doValidate || *doStats) && irMod == nil {
		if r, err := vybiumevmcompiler.Compile(opts.Clone().WithTo(vybiumevmcompiler.ArtifactIR)); err == nil {
			irMod = r.IR
		}
	}

	if *doValidate && irMod != nil {
		vdiags := validate.Module(irMod)
		if len(vdiags.Items()) > 0 {
			fmt.Fprint(os.Stderr, diag.Render(string(src), vdiags.Items()))
		}
		if vdiags.HasErrors() {
			os.Exit(1)
		}
	}

	if *doStats && irMod != nil {
		logStderr(stats.Collect(irMod, collectPlans(irMod)).String())
	}

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fatal(fmt.Sprintf("failed to open %s: %v", *output, err))
		}
		defer f.Close()
		out = f
	}

	if unoptimizedIR != nil {
		fmt.Fprintln(out, "--- unoptimized ---")
		fmt.Fprint(out, ir.Print(unoptimizedIR))
		fmt.Fprintln(out, "--- optimized ---")
	}

	render(out, result, artifact, *format, *pretty)
}

func render(out *os.File, result *vybiumevmcompiler.Result, artifact vybiumevmcompiler.Artifact, format string, pretty bool) {
	switch artifact {
	case vybiumevmcompiler.ArtifactAST:
		writeJSONOrText(out, result.AST, format, pretty, func() string { return fmt.Sprintf("%+v", result.AST) })
	case vybiumevmcompiler.ArtifactIR:
		writeJSONOrText(out, result.IR, format, pretty, func() string { return ir.Print(result.IR) })
	case vybiumevmcompiler.ArtifactBytecode:
		switch format {
		case "json":
			writeJSON(out, result.Bytecode, pretty)
		case "asm":
			fmt.Fprintln(out, "; runtime")
			fmt.Fprint(out, bytecode.Disassemble(result.Bytecode.Runtime))
			if len(result.Bytecode.Create) > 0 {
				fmt.Fprintln(out, "; create")
				fmt.Fprint(out, bytecode.Disassemble(result.Bytecode.Create))
			}
		default:
			fmt.Fprintf(out, "runtime: %x\n", result.Bytecode.Runtime)
			if len(result.Bytecode.Create) > 0 {
				fmt.Fprintf(out, "create:  %x\n", result.Bytecode.Create)
			}
		}
	}
}

func writeJSONOrText(out *os.File, v interface{}, format string, pretty bool, text func() string) {
	if format == "json" {
		writeJSON(out, v, pretty)
		return
	}
	fmt.Fprintln(out, text())
}

func writeJSON(out *os.File, v interface{}, pretty bool) {
	var (
		b   []byte
		err error
	)
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		fatal(fmt.Sprintf("failed to encode JSON: %v", err))
	}
	out.Write(b)
	out.Write([]byte("\n"))
}

// collectPlans runs liveness + memplan per function purely to size the
// --stats spill counts; it is otherwise redundant with what EmitModule
// already computed internally during bytecode generation; Compile does
// not expose per-function plans since ordinary callers never need them.
func collectPlans(mod *ir.Module) map[string]*memplan.MemoryPlan {
	plans := make(map[string]*memplan.MemoryPlan)
	for _, fn := range mod.AllFunctions() {
		live := liveness.Analyze(fn)
		plan, _ := memplan.Plan(fn, live)
		plans[fn.Name] = plan
	}
	return plans
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: compile [options] <file>")
	flag.PrintDefaults()
}

func logStderr(msg string) {
	fmt.Fprintln(os.Stderr, "evmc:", msg)
}

func fatal(msg string) {
	logStderr("ERROR: " + msg)
	os.Exit(1)
}
