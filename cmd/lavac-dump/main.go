// Command lavac-dump is a development harness for the compiler core: it
// drives a handful of hand-built ast.FuncDecl fixtures through the full
// bytecode → liveness → HIR pipeline and prints each stage's output.
// There is no parser wired in, so fixtures stand in for real source
// text.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dianpeng/lavascript/ast"
	"github.com/dianpeng/lavascript/bytecode"
	"github.com/dianpeng/lavascript/bytecode/liveness"
	"github.com/dianpeng/lavascript/hir"
	"github.com/dianpeng/lavascript/internal/compilepool"
	"github.com/dianpeng/lavascript/internal/trace"
)

func main() {
	var verbose bool

	root := &cobra.Command{
		Use:   "lavac-dump",
		Short: "Dump bytecode and HIR for the built-in compiler fixtures",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				trace.SetLevel(slog.LevelDebug)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level tracing")

	root.AddCommand(listCmd())
	root.AddCommand(dumpCmd())
	root.AddCommand(allCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the built-in fixtures",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range fixtures() {
				fmt.Println(f.Name)
			}
			return nil
		},
	}
}

func dumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <fixture>",
		Short: "Compile one fixture and print bytecode + HIR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fd, ok := lookupFixture(args[0])
			if !ok {
				return fmt.Errorf("no such fixture %q (see `lavac-dump list`)", args[0])
			}
			ssoPool := bytecode.NewSSOPool()
			gen := bytecode.NewGenerator(fd, ssoPool)
			proto, ok := gen.Compile(fd)
			if !ok {
				return fmt.Errorf("compile %s: %s", fd.Name, gen.B.Diags.Error())
			}
			fmt.Printf("=== %s: bytecode ===\n%s\n", fd.Name, disassemble(proto))

			analysis := liveness.Analyze(proto)
			fmt.Printf("=== %s: HIR ===\n", fd.Name)
			graph := hir.Build(proto, analysis)
			fmt.Print(hir.Dump(graph))
			return nil
		},
	}
}

func allCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Compile every fixture concurrently through internal/compilepool and report pass/fail",
		RunE: func(cmd *cobra.Command, args []string) error {
			var units []compilepool.Unit
			for _, f := range fixtures() {
				units = append(units, compilepool.Unit{Name: f.Name, Func: f})
			}
			results, err := compilepool.CompileAll(context.Background(), units)
			if err != nil {
				return err
			}
			for _, r := range results {
				if r.Err != nil {
					fmt.Printf("%-16s FAIL: %v\n", r.Unit.Name, r.Err)
					continue
				}
				fmt.Printf("%-16s OK   %d instrs, %d HIR nodes\n", r.Unit.Name, len(r.Proto.Code), r.Graph.Len())
			}
			return nil
		},
	}
}

func lookupFixture(name string) (*ast.FuncDecl, bool) {
	for _, f := range fixtures() {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// disassemble renders a Prototype's code buffer one instruction per
// line. Opcode is always the low byte of the first word (every Emit*
// in bytecode.Builder packs it there), so this needs no knowledge of
// the richer per-type field layout bytecode/liveness and hir/builder.go
// decode internally.
func disassemble(p *bytecode.Prototype) string {
	out := ""
	for pc, w := range p.Code {
		op := bytecode.Op(w & 0xFF)
		out += fmt.Sprintf("%4d: %-10s (word=%#08x)\n", pc, op, uint32(w))
	}
	return out
}
