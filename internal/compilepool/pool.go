// Package compilepool runs independent function compilations
// concurrently. The compiler core itself is single-threaded, but two
// compilations share no mutable state, so a caller can fan a batch out
// across goroutines by giving each its own builder and graph.
package compilepool

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dianpeng/lavascript/bytecode"
	"github.com/dianpeng/lavascript/bytecode/liveness"
	"github.com/dianpeng/lavascript/hir"
	"github.com/dianpeng/lavascript/internal/trace"

	"github.com/dianpeng/lavascript/ast"
)

// Unit is one function to compile through the full pipeline
// (bytecode → liveness → HIR).
type Unit struct {
	Name string
	Func *ast.FuncDecl
}

// Result holds one unit's pipeline output, or Err if any stage failed.
// A failed unit never carries a partial Proto/Analysis/Graph.
type Result struct {
	Unit     Unit
	Proto    *bytecode.Prototype
	Analysis *liveness.Analysis
	Graph    *hir.Graph
	Err      error
}

// MaxParallel bounds how many compilations run at once; each holds its
// own Builder/Graph arenas, so the limit exists only to cap peak memory
// on a large batch, not for correctness.
const MaxParallel = 8

// CompileAll runs units through the full pipeline concurrently. Each
// unit gets its own bytecode.SSOPool, so units share no interning
// state (an SSOPool is itself safe for concurrent use).
//
// CompileAll returns a non-nil error only if ctx is cancelled; per-unit
// compile failures are reported through Result.Err, one result per
// input unit, in input order, so callers can tell which unit failed
// without re-matching by name.
func CompileAll(ctx context.Context, units []Unit) ([]*Result, error) {
	results := make([]*Result, len(units))
	log := trace.For(trace.Pool)

	g, egctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxParallel)

	for i, u := range units {
		i, u := i, u
		g.Go(func() error {
			if err := egctx.Err(); err != nil {
				return err
			}
			results[i] = compileOne(u)
			if results[i].Err != nil {
				log.Warn("unit failed", "unit", u.Name, "err", results[i].Err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compilepool: %w", err)
	}
	return results, nil
}

func compileOne(u Unit) *Result {
	ssoPool := bytecode.NewSSOPool()
	gen := bytecode.NewGenerator(u.Func, ssoPool)

	proto, ok := gen.Compile(u.Func)
	if !ok {
		err := fmt.Errorf("compile %s: %s", u.Name, gen.B.Diags.Error())
		return &Result{Unit: u, Err: err}
	}

	analysis := liveness.Analyze(proto)
	graph := hir.Build(proto, analysis)

	return &Result{Unit: u, Proto: proto, Analysis: analysis, Graph: graph}
}
