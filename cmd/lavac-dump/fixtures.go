package main

import (
	"github.com/dianpeng/lavascript/ast"
)

// fixtures stands in for parsed source text: one hand-built ast.FuncDecl
// per pipeline shape worth exercising end to end.
func fixtures() []*ast.FuncDecl {
	return []*ast.FuncDecl{
		emptyFunc(),
		ifElseFunc(),
		inductionForFunc(),
		foreverBreakFunc(),
		logicalAndOrFunc(),
		ternaryFunc(),
		forEachFunc(),
	}
}

func emptyFunc() *ast.FuncDecl {
	return &ast.FuncDecl{
		Name:      "empty",
		NumArgs:   0,
		NumLocals: 0,
		Body:      &ast.Block{},
	}
}

// ifElseFunc: `if (a0 < 10) return 1 else return 0`.
func ifElseFunc() *ast.FuncDecl {
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
	return &ast.FuncDecl{
		Name:      "if_else",
		NumArgs:   1,
		NumLocals: 1,
		Body:      &ast.Block{Stmts: []ast.Stmt{ifs}},
	}
}

// inductionForFunc: `for (i = 0; i < 10; i = i + 1) { sum = sum + i }
// return sum` — the canonical FEND2 induction form.
func inductionForFunc() *ast.FuncDecl {
	initDecl := &ast.LocalDeclStmt{Slot: 1, Init: &ast.IntLit{Value: 0}}
	forStmt := &ast.ForStmt{
		Init: initDecl,
		Cond: &ast.BinaryExpr{
			Op:    ast.OpLT,
			Left:  &ast.LocalRef{Slot: 1, Name: "i"},
			Right: &ast.IntLit{Value: 10},
		},
		Post: &ast.AssignStmt{
			Target: &ast.LocalRef{Slot: 1, Name: "i"},
			Value: &ast.BinaryExpr{
				Op:    ast.OpAdd,
				Left:  &ast.LocalRef{Slot: 1, Name: "i"},
				Right: &ast.IntLit{Value: 1},
			},
		},
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.AssignStmt{
				Target: &ast.LocalRef{Slot: 0, Name: "sum"},
				Value: &ast.BinaryExpr{
					Op:    ast.OpAdd,
					Left:  &ast.LocalRef{Slot: 0, Name: "sum"},
					Right: &ast.LocalRef{Slot: 1, Name: "i"},
				},
			},
		}},
	}
	return &ast.FuncDecl{
		Name:      "induction_for",
		NumArgs:   0,
		NumLocals: 2,
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.LocalDeclStmt{Slot: 0, Init: &ast.IntLit{Value: 0}},
			forStmt,
			&ast.ReturnStmt{Value: &ast.LocalRef{Slot: 0, Name: "sum"}},
		}},
	}
}

// foreverBreakFunc: `for {} if (a0) break; return 0` wrapped as a
// forever loop with a conditional break — exercises FEVRSTART/FEVREND.
func foreverBreakFunc() *ast.FuncDecl {
	body := &ast.Block{Stmts: []ast.Stmt{
		&ast.IfStmt{
			Cond: &ast.LocalRef{Slot: 0, Name: "a0"},
			Then: &ast.Block{Stmts: []ast.Stmt{&ast.BreakStmt{}}},
		},
	}}
	return &ast.FuncDecl{
		Name:      "forever_break",
		NumArgs:   1,
		NumLocals: 1,
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.ForeverStmt{Body: body},
			&ast.ReturnStmt{Value: &ast.IntLit{Value: 0}},
		}},
	}
}

// logicalAndOrFunc: `return (a0 and a1) or a0` — short-circuit AND/OR
// flattened to value nodes, not control flow.
func logicalAndOrFunc() *ast.FuncDecl {
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
	return &ast.FuncDecl{
		Name:      "logical_and_or",
		NumArgs:   2,
		NumLocals: 2,
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.ReturnStmt{Value: or},
		}},
	}
}

// ternaryFunc: `return a0 < 0 ? 0 - a0 : a0`.
func ternaryFunc() *ast.FuncDecl {
	tern := &ast.TernaryExpr{
		Cond: &ast.BinaryExpr{
			Op:    ast.OpLT,
			Left:  &ast.LocalRef{Slot: 0, Name: "a0"},
			Right: &ast.IntLit{Value: 0},
		},
		Then: &ast.BinaryExpr{
			Op:    ast.OpSub,
			Left:  &ast.IntLit{Value: 0},
			Right: &ast.LocalRef{Slot: 0, Name: "a0"},
		},
		Else: &ast.LocalRef{Slot: 0, Name: "a0"},
	}
	return &ast.FuncDecl{
		Name:      "ternary_abs",
		NumArgs:   1,
		NumLocals: 1,
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.ReturnStmt{Value: tern},
		}},
	}
}

// forEachFunc: `for v in a0 { sum = sum + v } return sum` — exercises
// FESTART/FEEND iterator lowering.
func forEachFunc() *ast.FuncDecl {
	feach := &ast.ForEachStmt{
		Iterable:  &ast.LocalRef{Slot: 0, Name: "a0"},
		KeySlot:   1,
		ValueSlot: 2,
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.AssignStmt{
				Target: &ast.LocalRef{Slot: 3, Name: "sum"},
				Value: &ast.BinaryExpr{
					Op:    ast.OpAdd,
					Left:  &ast.LocalRef{Slot: 3, Name: "sum"},
					Right: &ast.LocalRef{Slot: 2, Name: "v"},
				},
			},
		}},
	}
	return &ast.FuncDecl{
		Name:      "foreach_sum",
		NumArgs:   1,
		NumLocals: 4,
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.LocalDeclStmt{Slot: 3, Init: &ast.IntLit{Value: 0}},
			feach,
			&ast.ReturnStmt{Value: &ast.LocalRef{Slot: 3, Name: "sum"}},
		}},
	}
}
