package hir

import (
	"testing"

	"github.com/dianpeng/lavascript/ast"
	"github.com/dianpeng/lavascript/bytecode"
	"github.com/dianpeng/lavascript/bytecode/liveness"
)

// compile drives a FuncDecl through the same pipeline cmd/lavac-dump
// uses: Generator -> liveness.Analyze -> hir.Build.
func compile(t *testing.T, fd *ast.FuncDecl) *Graph {
	t.Helper()
	gen := bytecode.NewGenerator(fd, bytecode.NewSSOPool())
	proto, ok := gen.Compile(fd)
	if !ok {
		t.Fatalf("compile %s: %s", fd.Name, gen.B.Diags.Error())
	}
	analysis := liveness.Analyze(proto)
	return Build(proto, analysis)
}

func countKind(g *Graph, k Kind) int {
	n := 0
	for id := ID(1); int(id) <= g.Len(); id++ {
		if g.Get(id).Kind == k {
			n++
		}
	}
	return n
}

// A function with no control flow produces exactly one Start and one
// End, connected.
func TestBuildEmptyFunction(t *testing.T) {
	fd := &ast.FuncDecl{Name: "empty", Body: &ast.Block{}}
	g := compile(t, fd)

	if g.Start == NoID || g.End == NoID {
		t.Fatal("want both Start and End set")
	}
	if g.Get(g.Start).Kind != KStart {
		t.Fatalf("want Start kind KStart, got %v", g.Get(g.Start).Kind)
	}
	if g.Get(g.End).Kind != KEnd {
		t.Fatalf("want End kind KEnd, got %v", g.Get(g.End).Kind)
	}
}

// if/else with two returning arms gets an IfMerge with no
// predecessors — both arms are terminal (RETURN), so buildIf must not
// fold either into the join region. Compile appends a trailing RETNULL
// after the if/else (the function's last statement is not a return),
// and the walk translates it into a third Return past the merge.
func TestBuildIfElseBothArmsTerminalMergeHasNoPredecessors(t *testing.T) {
	cond := &ast.BinaryExpr{
		Op:    ast.OpLT,
		Left:  &ast.LocalRef{Slot: 0, Name: "a0"},
		Right: &ast.IntLit{Value: 10},
	}
	ifs := &ast.IfStmt{
		Cond: cond,
		Then: &ast.Block{Stmts: []ast.Stmt{
			&ast.ReturnStmt{Value: &ast.IntLit{Value: 1}},
		}},
		Else: &ast.Block{Stmts: []ast.Stmt{
			&ast.ReturnStmt{Value: &ast.IntLit{Value: 0}},
		}},
	}
	fd := &ast.FuncDecl{
		Name: "if_else", NumArgs: 1, NumLocals: 1,
		Body: &ast.Block{Stmts: []ast.Stmt{ifs}},
	}
	g := compile(t, fd)

	if countKind(g, KIf) != 1 {
		t.Fatalf("want exactly one If node, got %d", countKind(g, KIf))
	}
	if countKind(g, KIfMerge) != 1 {
		t.Fatalf("want exactly one IfMerge, got %d", countKind(g, KIfMerge))
	}
	for id := ID(1); int(id) <= g.Len(); id++ {
		if n := g.Get(id); n.Kind == KIfMerge && len(n.ControlIn) != 0 {
			t.Fatalf("want no IfMerge predecessors when both arms are terminal, got %v", n.ControlIn)
		}
	}
	if countKind(g, KReturn) != 3 {
		t.Fatalf("want three Return nodes (one per arm, plus the trailing RETNULL), got %d", countKind(g, KReturn))
	}
}

// An if with only one terminal arm still needs a merge: the live arm's
// fall-through joins the after-if control flow.
func TestBuildIfOneArmTerminalStillMerges(t *testing.T) {
	cond := &ast.BinaryExpr{
		Op:    ast.OpLT,
		Left:  &ast.LocalRef{Slot: 0, Name: "a0"},
		Right: &ast.IntLit{Value: 10},
	}
	ifs := &ast.IfStmt{
		Cond: cond,
		Then: &ast.Block{Stmts: []ast.Stmt{
			&ast.ReturnStmt{Value: &ast.IntLit{Value: 1}},
		}},
		// no Else: falls through
	}
	fd := &ast.FuncDecl{
		Name: "if_one_arm", NumArgs: 1, NumLocals: 1,
		Body: &ast.Block{Stmts: []ast.Stmt{
			ifs,
			&ast.ReturnStmt{Value: &ast.IntLit{Value: 0}},
		}},
	}
	g := compile(t, fd)

	if countKind(g, KIf) != 1 {
		t.Fatalf("want exactly one If node, got %d", countKind(g, KIf))
	}
	if countKind(g, KIfMerge) != 1 {
		t.Fatalf("want exactly one IfMerge joining the live arm, got %d", countKind(g, KIfMerge))
	}
	if countKind(g, KReturn) != 2 {
		t.Fatalf("want two Return nodes, got %d", countKind(g, KReturn))
	}
}

// AND/OR flatten into value nodes, never branches — a logical
// expression used only as a return value must not add any If node to
// the graph.
func TestBuildLogicalFlattensToValueNodes(t *testing.T) {
	and := &ast.LogicalExpr{
		Op:    ast.OpAnd,
		Left:  &ast.LocalRef{Slot: 0, Name: "a0"},
		Right: &ast.LocalRef{Slot: 1, Name: "a1"},
	}
	or := &ast.LogicalExpr{
		Op:    ast.OpOr,
		Left:  and,
		Right: &ast.LocalRef{Slot: 0, Name: "a0"},
	}
	fd := &ast.FuncDecl{
		Name: "logical", NumArgs: 2, NumLocals: 2,
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.ReturnStmt{Value: or},
		}},
	}
	g := compile(t, fd)

	if countKind(g, KIf) != 0 {
		t.Fatalf("want no If nodes for a pure value-position AND/OR, got %d", countKind(g, KIf))
	}
	if countKind(g, KReturn) != 1 {
		t.Fatalf("want exactly one Return, got %d", countKind(g, KReturn))
	}
}

// A ternary in value position must also avoid branching: it becomes a
// Ternary value node, not an If.
func TestBuildTernaryIsValueNode(t *testing.T) {
	tern := &ast.TernaryExpr{
		Cond: &ast.BinaryExpr{
			Op: ast.OpLT, Left: &ast.LocalRef{Slot: 0, Name: "a0"}, Right: &ast.IntLit{Value: 0},
		},
		Then: &ast.BinaryExpr{
			Op: ast.OpSub, Left: &ast.IntLit{Value: 0}, Right: &ast.LocalRef{Slot: 0, Name: "a0"},
		},
		Else: &ast.LocalRef{Slot: 0, Name: "a0"},
	}
	fd := &ast.FuncDecl{
		Name: "ternary", NumArgs: 1, NumLocals: 1,
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.ReturnStmt{Value: tern},
		}},
	}
	g := compile(t, fd)

	if countKind(g, KTernary) != 1 {
		t.Fatalf("want exactly one Ternary value node, got %d", countKind(g, KTernary))
	}
	if countKind(g, KIf) != 0 {
		t.Fatalf("want no If node for a ternary in value position, got %d", countKind(g, KIf))
	}
}

// The canonical induction for-loop produces a LoopHeader, a Loop body,
// a LoopExit, and a Phi recording the loop-modified local (sum),
// matching liveness's Phi.Vars.
func TestBuildInductionForLoopProducesPhi(t *testing.T) {
	initDecl := &ast.LocalDeclStmt{Slot: 1, Init: &ast.IntLit{Value: 0}}
	forStmt := &ast.ForStmt{
		Init: initDecl,
		Cond: &ast.BinaryExpr{
			Op: ast.OpLT, Left: &ast.LocalRef{Slot: 1, Name: "i"}, Right: &ast.IntLit{Value: 10},
		},
		Post: &ast.AssignStmt{
			Target: &ast.LocalRef{Slot: 1, Name: "i"},
			Value: &ast.BinaryExpr{
				Op: ast.OpAdd, Left: &ast.LocalRef{Slot: 1, Name: "i"}, Right: &ast.IntLit{Value: 1},
			},
		},
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.AssignStmt{
				Target: &ast.LocalRef{Slot: 0, Name: "sum"},
				Value: &ast.BinaryExpr{
					Op: ast.OpAdd, Left: &ast.LocalRef{Slot: 0, Name: "sum"}, Right: &ast.LocalRef{Slot: 1, Name: "i"},
				},
			},
		}},
	}
	fd := &ast.FuncDecl{
		Name: "induction_for", NumLocals: 2,
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.LocalDeclStmt{Slot: 0, Init: &ast.IntLit{Value: 0}},
			forStmt,
			&ast.ReturnStmt{Value: &ast.LocalRef{Slot: 0, Name: "sum"}},
		}},
	}
	g := compile(t, fd)

	if countKind(g, KLoopHeader) != 1 {
		t.Fatalf("want exactly one LoopHeader, got %d", countKind(g, KLoopHeader))
	}
	if countKind(g, KLoop) != 1 {
		t.Fatalf("want exactly one Loop body region, got %d", countKind(g, KLoop))
	}
	if countKind(g, KLoopExit) != 1 {
		t.Fatalf("want exactly one LoopExit, got %d", countKind(g, KLoopExit))
	}
	if countKind(g, KPhi) == 0 {
		t.Fatal("want at least one Phi for the loop-modified local (sum)")
	}
}

// A forever loop with a conditional break is an unconditional Loop
// region (no If(true) guard), and the break becomes a patched Jump
// landing at the LoopMerge after-region.
func TestBuildForeverBreakUnconditionalLoopNoDeadGuard(t *testing.T) {
	body := &ast.Block{Stmts: []ast.Stmt{
		&ast.IfStmt{
			Cond: &ast.LocalRef{Slot: 0, Name: "a0"},
			Then: &ast.Block{Stmts: []ast.Stmt{&ast.BreakStmt{}}},
		},
	}}
	fd := &ast.FuncDecl{
		Name: "forever_break", NumArgs: 1, NumLocals: 1,
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.ForeverStmt{Body: body},
			&ast.ReturnStmt{Value: &ast.IntLit{Value: 0}},
		}},
	}
	g := compile(t, fd)

	if countKind(g, KLoop) == 0 {
		t.Fatal("want at least one Loop region for the forever body")
	}
	if countKind(g, KJump) == 0 {
		t.Fatal("want the break to materialize as a Jump node")
	}
	if countKind(g, KLoopMerge) == 0 {
		t.Fatal("want a LoopMerge after-region for the patched break edge")
	}
	if countKind(g, KTrap) != 0 {
		t.Fatal("a loop with a real break must not fall back to the no-break Trap shape")
	}
}

// for-each lowers the iterator protocol (ItrNew/ItrNext/ItrDeref) and
// still records a loop Phi for the accumulator.
func TestBuildForEachUsesIteratorProtocol(t *testing.T) {
	feach := &ast.ForEachStmt{
		Iterable: &ast.LocalRef{Slot: 0, Name: "a0"},
		KeySlot:  1, ValueSlot: 2,
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.AssignStmt{
				Target: &ast.LocalRef{Slot: 3, Name: "sum"},
				Value: &ast.BinaryExpr{
					Op: ast.OpAdd, Left: &ast.LocalRef{Slot: 3, Name: "sum"}, Right: &ast.LocalRef{Slot: 2, Name: "v"},
				},
			},
		}},
	}
	fd := &ast.FuncDecl{
		Name: "foreach_sum", NumArgs: 1, NumLocals: 4,
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.LocalDeclStmt{Slot: 3, Init: &ast.IntLit{Value: 0}},
			feach,
			&ast.ReturnStmt{Value: &ast.LocalRef{Slot: 3, Name: "sum"}},
		}},
	}
	g := compile(t, fd)

	if countKind(g, KItrNew) != 1 {
		t.Fatalf("want exactly one ItrNew, got %d", countKind(g, KItrNew))
	}
	if countKind(g, KItrNext) == 0 {
		t.Fatal("want at least one ItrNext advancing the iterator")
	}
	if countKind(g, KItrDeref) == 0 {
		t.Fatal("want at least one ItrDeref projecting the key/value pair")
	}
	if countKind(g, KPhi) == 0 {
		t.Fatal("want a Phi for the loop-modified accumulator")
	}
}

// BuildOSR reloads live registers at the entry pc via OSRLoad nodes
// rather than walking from function entry.
func TestBuildOSRReloadsLiveRegisters(t *testing.T) {
	initDecl := &ast.LocalDeclStmt{Slot: 1, Init: &ast.IntLit{Value: 0}}
	forStmt := &ast.ForStmt{
		Init: initDecl,
		Cond: &ast.BinaryExpr{
			Op: ast.OpLT, Left: &ast.LocalRef{Slot: 1, Name: "i"}, Right: &ast.IntLit{Value: 10},
		},
		Post: &ast.AssignStmt{
			Target: &ast.LocalRef{Slot: 1, Name: "i"},
			Value: &ast.BinaryExpr{
				Op: ast.OpAdd, Left: &ast.LocalRef{Slot: 1, Name: "i"}, Right: &ast.IntLit{Value: 1},
			},
		},
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.AssignStmt{
				Target: &ast.LocalRef{Slot: 0, Name: "sum"},
				Value: &ast.BinaryExpr{
					Op: ast.OpAdd, Left: &ast.LocalRef{Slot: 0, Name: "sum"}, Right: &ast.LocalRef{Slot: 1, Name: "i"},
				},
			},
		}},
	}
	fd := &ast.FuncDecl{
		Name: "induction_for", NumLocals: 2,
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.LocalDeclStmt{Slot: 0, Init: &ast.IntLit{Value: 0}},
			forStmt,
			&ast.ReturnStmt{Value: &ast.LocalRef{Slot: 0, Name: "sum"}},
		}},
	}

	gen := bytecode.NewGenerator(fd, bytecode.NewSSOPool())
	proto, ok := gen.Compile(fd)
	if !ok {
		t.Fatalf("compile: %s", gen.B.Diags.Error())
	}
	analysis := liveness.Analyze(proto)

	// Pick the loop body's start pc as the OSR entry point.
	var bodyPC int
	for pc := 0; pc < len(proto.Code); pc++ {
		if analysis.LookUpLoopHeader(pc) != nil {
			bodyPC = pc
			break
		}
	}
	if bodyPC == 0 {
		t.Fatal("expected to find a loop header pc to OSR into")
	}

	g := BuildOSR(proto, analysis, bodyPC)
	if !g.IsOSR {
		t.Fatal("want IsOSR true")
	}
	if g.Get(g.Start).Kind != KOSRStart {
		t.Fatalf("want Start kind KOSRStart, got %v", g.Get(g.Start).Kind)
	}
	if countKind(g, KOSRLoad) == 0 {
		t.Fatal("want at least one OSRLoad reloading a live register")
	}
	if g.Get(g.End).Kind != KOSREnd {
		t.Fatalf("want End kind KOSREnd, got %v", g.Get(g.End).Kind)
	}
}
