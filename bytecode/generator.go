package bytecode

import (
	"github.com/dianpeng/lavascript/ast"
	"github.com/dianpeng/lavascript/internal/diag"
	"github.com/dianpeng/lavascript/source"
)

// ResultKind tags an ExprResult: either a materialised register, or one
// of the constant shapes the arithmetic/comparison opcodes can consume
// directly (RV/VR forms) without first loading into a register (spec
// §4.1 component C: "evaluates expressions into registers using an
// ExprResult tagged value (literal-or-register)").
type ResultKind int

const (
	ResultRegister ResultKind = iota
	ResultReal
	ResultString
	ResultBool
	ResultNull
)

// ExprResult is the generator's literal-or-register tagged value.
type ExprResult struct {
	Kind ResultKind
	Reg  uint8

	RealIdx   int32 // valid when Kind == ResultReal: real-table index
	StringIdx int32 // valid when Kind == ResultString: string-table index
	StringVal string
	Bool      bool
}

func regResult(r uint8) ExprResult { return ExprResult{Kind: ResultRegister, Reg: r} }

// dropTemp releases reg back to the temporary pool once it has been
// consumed into an instruction. Local/argument registers and the
// accumulator were never granted by Grab, so this is a safe no-op for
// them.
func (g *Generator) dropTemp(reg uint8) {
	if g.B.Regs.IsTemp(int(reg)) {
		g.B.Regs.Drop(int(reg))
	}
}

func (g *Generator) dropTemps(regs ...uint8) {
	for _, r := range regs {
		g.dropTemp(r)
	}
}

// Generator walks an ast.FuncDecl and emits bytecode into a Builder,
// expressed as flat-struct AST-walking methods rather than a visitor
// interface.
type Generator struct {
	B     *Builder
	loops []*loopScope
}

type loopScope struct {
	// bodyStart is the PC the loop's back-edge (FEND1/FEND2/FEEND/FEVREND)
	// jumps to.
	bodyStart uint16
	// guard is the Label whose target must be patched to the
	// post-loop PC once known (FSTART/FESTART's forward-skip target; nil
	// for FEVRSTART, which has no guard).
	guard *Label
	// pendingBreaks/pendingContinues are forward references resolved when
	// the loop closes.
	pendingBreaks    []Label
	pendingContinues []Label
	continueTarget   uint16
	continueKnown    bool
}

// NewGenerator creates a Generator over a fresh Builder for fd.
func NewGenerator(fd *ast.FuncDecl, ssoPool *SSOPool) *Generator {
	diags := &diag.Bag{}
	b := NewBuilder(fd.Name, fd.NumArgs, fd.NumLocals, ssoPool, diags)
	return &Generator{B: b}
}

// Compile lowers fd's body into b's code buffer and finalises a
// Prototype. It returns ok=false if any diagnostic was recorded.
func (g *Generator) Compile(fd *ast.FuncDecl) (*Prototype, bool) {
	for _, uv := range fd.Upvalues {
		state := UVEmbed
		if uv.State == ast.UVDetach {
			state = UVDetach
		}
		if _, ok := g.B.AddUpValue(state, uv.Index, fd.Span()); !ok {
			return nil, false
		}
	}

	if len(fd.Body.Stmts) == 0 {
		// Empty function: code buffer begins (and ends) with RETNULL.
		if !g.B.EmitX(fd.Span(), RETNULL) {
			return nil, false
		}
		return g.B.Finalize()
	}

	if !g.compileBlock(fd.Body) {
		return nil, false
	}
	if !g.endsInReturn(fd.Body) {
		if !g.B.EmitX(fd.Span(), RETNULL) {
			return nil, false
		}
	}
	return g.B.Finalize()
}

func (g *Generator) endsInReturn(b *ast.Block) bool {
	if len(b.Stmts) == 0 {
		return false
	}
	_, ok := b.Stmts[len(b.Stmts)-1].(*ast.ReturnStmt)
	return ok
}

// --- statements ---

func (g *Generator) compileBlock(b *ast.Block) bool {
	base := 0
	entered := false
	if b.NumLocals > 0 {
		var ok bool
		base, ok = g.B.Regs.Reserve(b.NumLocals)
		if !ok {
			g.B.Diags.Add(diag.RegisterOverflow, b.Span(), "block needs %d local registers, none available", b.NumLocals)
			return false
		}
		entered = true
	}
	for _, s := range b.Stmts {
		if !g.compileStmt(s) {
			if entered {
				g.B.Regs.Leave(base)
			}
			return false
		}
	}
	if entered {
		g.B.Regs.Leave(base)
	}
	return true
}

func (g *Generator) compileStmt(s ast.Stmt) bool {
	switch n := s.(type) {
	case *ast.Block:
		return g.compileBlock(n)
	case *ast.ExprStmt:
		_, ok := g.compileExprToRegister(n.X)
		return ok
	case *ast.LocalDeclStmt:
		return g.compileLocalDecl(n)
	case *ast.AssignStmt:
		return g.compileAssign(n)
	case *ast.IfStmt:
		return g.compileIf(n)
	case *ast.ForStmt:
		return g.compileFor(n)
	case *ast.ForEachStmt:
		return g.compileForEach(n)
	case *ast.ForeverStmt:
		return g.compileForever(n)
	case *ast.BreakStmt:
		return g.compileBreak(n)
	case *ast.ContinueStmt:
		return g.compileContinue(n)
	case *ast.ReturnStmt:
		return g.compileReturn(n)
	default:
		panic("bytecode: unknown statement node")
	}
}

func (g *Generator) compileLocalDecl(n *ast.LocalDeclStmt) bool {
	if n.Init == nil {
		return g.B.EmitF(n.Span(), LOADNULL, uint8(n.Slot))
	}
	res, ok := g.compileExpr(n.Init)
	if !ok {
		return false
	}
	if !g.moveResultInto(n.Span(), res, uint8(n.Slot)) {
		return false
	}
	if res.Kind == ResultRegister {
		g.dropTemp(res.Reg)
	}
	return true
}

func (g *Generator) compileAssign(n *ast.AssignStmt) bool {
	switch t := n.Target.(type) {
	case *ast.LocalRef:
		res, ok := g.compileExpr(n.Value)
		if !ok {
			return false
		}
		if !g.moveResultInto(n.Span(), res, uint8(t.Slot)) {
			return false
		}
		if res.Kind == ResultRegister {
			g.dropTemp(res.Reg)
		}
		return true
	case *ast.UpvalueRef:
		reg, ok := g.compileExprToRegister(n.Value)
		if !ok {
			return false
		}
		if !g.B.EmitE(n.Span(), UVSET, uint8(t.Index), reg) {
			return false
		}
		g.dropTemp(reg)
		return true
	case *ast.GlobalRef:
		reg, ok := g.compileExprToRegister(n.Value)
		if !ok {
			return false
		}
		if t.SSO {
			idx, ok := g.B.AddSSO(t.Name, n.Span())
			if !ok {
				return false
			}
			if !g.B.EmitE(n.Span(), GSETSSO, uint8(idx), reg) {
				return false
			}
			g.dropTemp(reg)
			return true
		}
		idx, ok := g.B.AddString(t.Name, n.Span())
		if !ok {
			return false
		}
		if !g.B.EmitE(n.Span(), GSET, uint8(idx), reg) {
			return false
		}
		g.dropTemp(reg)
		return true
	case *ast.PropertySetTarget:
		obj, ok := g.compileExprToRegister(t.Object)
		if !ok {
			return false
		}
		val, ok := g.compileExprToRegister(n.Value)
		if !ok {
			return false
		}
		if t.SSO {
			idx, ok := g.B.AddSSO(t.Property, n.Span())
			if !ok {
				return false
			}
			if !g.B.EmitD(n.Span(), PROPSETSSO, obj, uint8(idx), val) {
				return false
			}
			g.dropTemps(obj, val)
			return true
		}
		idx, ok := g.B.AddString(t.Property, n.Span())
		if !ok {
			return false
		}
		if !g.B.EmitD(n.Span(), PROPSET, obj, uint8(idx), val) {
			return false
		}
		g.dropTemps(obj, val)
		return true
	case *ast.IndexSetTarget:
		obj, ok := g.compileExprToRegister(t.Object)
		if !ok {
			return false
		}
		idx, ok := g.compileExprToRegister(t.Index)
		if !ok {
			return false
		}
		val, ok := g.compileExprToRegister(n.Value)
		if !ok {
			return false
		}
		if !g.B.EmitD(n.Span(), IDXSET, obj, idx, val) {
			return false
		}
		g.dropTemps(obj, idx, val)
		return true
	default:
		panic("bytecode: unknown assign target")
	}
}

// moveResultInto writes an already-computed ExprResult into dst,
// materialising literal-kind results via the matching LOAD* opcode.
func (g *Generator) moveResultInto(span source.Span, res ExprResult, dst uint8) bool {
	switch res.Kind {
	case ResultRegister:
		if res.Reg == dst {
			return true
		}
		return g.B.EmitE(span, MOVE, dst, res.Reg)
	case ResultReal:
		return g.B.EmitE(span, LOADR, dst, uint8(res.RealIdx))
	case ResultString:
		return g.B.EmitE(span, LOADSTR, dst, uint8(res.StringIdx))
	case ResultBool:
		if res.Bool {
			return g.B.EmitF(span, LOADTRUE, dst)
		}
		return g.B.EmitF(span, LOADFALSE, dst)
	case ResultNull:
		return g.B.EmitF(span, LOADNULL, dst)
	default:
		panic("bytecode: unknown ExprResult kind")
	}
}

func (g *Generator) compileIf(n *ast.IfStmt) bool {
	cond, ok := g.compileExprToRegister(n.Cond)
	if !ok {
		return false
	}
	falseLabel, ok := g.B.EmitB(n.Span(), JMPF, cond, 0)
	if !ok {
		return false
	}
	g.dropTemp(cond)
	if !g.compileBlock(n.Then) {
		return false
	}
	if n.Else != nil {
		jmpEnd, ok := g.B.EmitG(n.Span(), JMP, 0)
		if !ok {
			return false
		}
		falseLabel.Patch(g.B.CodePosition())
		if !g.compileBlock(n.Else) {
			return false
		}
		jmpEnd.Patch(g.B.CodePosition())
	} else {
		falseLabel.Patch(g.B.CodePosition())
	}
	return true
}

func (g *Generator) compileFor(n *ast.ForStmt) bool {
	base, entered := 0, false
	if n.Init != nil {
		var ok bool
		base, ok = g.B.Regs.Reserve(1)
		if !ok {
			g.B.Diags.Add(diag.RegisterOverflow, n.Span(), "for-loop induction register unavailable")
			return false
		}
		entered = true
		if !g.compileLocalDecl(n.Init) {
			return false
		}
	}

	induction, step, bound, isInductionForm := g.matchInductionForm(n)

	guardOutReg := uint8(0)
	if n.Init != nil {
		guardOutReg = uint8(n.Init.Slot)
	}
	guard, ok := g.B.EmitB(n.Span(), FSTART, guardOutReg, 0)
	if !ok {
		return false
	}
	ls := &loopScope{bodyStart: g.B.CodePosition(), guard: &guard}
	g.loops = append(g.loops, ls)

	if !g.compileBlock(n.Body) {
		g.popLoop()
		return false
	}

	ls.continueTarget = g.B.CodePosition()
	ls.continueKnown = true

	if isInductionForm {
		// step/bound must stay live across the whole body (FEND2 re-reads
		// them on every back-edge check), so they are only released here,
		// once the loop's last reference to them is emitted.
		if _, ok := g.B.EmitH(n.Span(), FEND2, uint8(induction), uint8(step), uint8(bound), uint32(ls.bodyStart)); !ok {
			g.popLoop()
			return false
		}
		g.dropTemps(uint8(step), uint8(bound))
	} else {
		lhsReg, rhsReg, ok := g.compileForExitOperands(n.Cond)
		if !ok {
			g.popLoop()
			return false
		}
		if _, ok := g.B.EmitH(n.Span(), FEND1, lhsReg, rhsReg, 0, uint32(ls.bodyStart)); !ok {
			g.popLoop()
			return false
		}
		g.dropTemps(lhsReg, rhsReg)
	}

	after := g.B.CodePosition()
	ls.guard.Patch(after)
	for _, l := range ls.pendingBreaks {
		l.Patch(after)
	}
	for _, l := range ls.pendingContinues {
		l.Patch(ls.continueTarget)
	}
	g.popLoop()

	if entered {
		g.B.Regs.Leave(base)
	}
	return true
}

func (g *Generator) popLoop() { g.loops = g.loops[:len(g.loops)-1] }

// matchInductionForm recognises the canonical `for(i=a; i<b; i=i+step)`
// shape that lowers to FEND2 with an implicit induction/step/bound
// triple. Any other for-loop uses the general FEND1 fallback.
func (g *Generator) matchInductionForm(n *ast.ForStmt) (induction, step, bound int, ok bool) {
	if n.Init == nil || n.Post == nil {
		return 0, 0, 0, false
	}
	cond, isBin := n.Cond.(*ast.BinaryExpr)
	if !isBin || cond.Op != ast.OpLT {
		return 0, 0, 0, false
	}
	condLocal, isLocal := cond.Left.(*ast.LocalRef)
	if !isLocal || condLocal.Slot != n.Init.Slot {
		return 0, 0, 0, false
	}
	postLocal, isLocal := n.Post.Target.(*ast.LocalRef)
	if !isLocal || postLocal.Slot != n.Init.Slot {
		return 0, 0, 0, false
	}
	sum, isBin := n.Post.Value.(*ast.BinaryExpr)
	if !isBin || sum.Op != ast.OpAdd {
		return 0, 0, 0, false
	}
	sumLocal, isLocal := sum.Left.(*ast.LocalRef)
	if !isLocal || sumLocal.Slot != n.Init.Slot {
		return 0, 0, 0, false
	}
	stepReg, ok := g.compileExprToRegister(sum.Right)
	if !ok {
		return 0, 0, 0, false
	}
	boundReg, ok := g.compileExprToRegister(cond.Right)
	if !ok {
		return 0, 0, 0, false
	}
	return n.Init.Slot, int(stepReg), int(boundReg), true
}

// compileForExitOperands evaluates the FEND1 fallback path's two exit
// operands, normalising `>` by swapping so the emitted registers always
// mean "continue while lhs < rhs". Only LT/GT for-conditions are
// supported by this codegen.
func (g *Generator) compileForExitOperands(cond ast.Expr) (lhs, rhs uint8, ok bool) {
	bin, isBin := cond.(*ast.BinaryExpr)
	if !isBin || (bin.Op != ast.OpLT && bin.Op != ast.OpGT) {
		g.B.Diags.Add(diag.LocalVariableNotExisted, cond.Span(),
			"for-loop condition must be a simple '<' or '>' comparison")
		return 0, 0, false
	}
	l, ok := g.compileExprToRegister(bin.Left)
	if !ok {
		return 0, 0, false
	}
	r, ok := g.compileExprToRegister(bin.Right)
	if !ok {
		return 0, 0, false
	}
	if bin.Op == ast.OpGT {
		return r, l, true
	}
	return l, r, true
}

func (g *Generator) compileForEach(n *ast.ForEachStmt) bool {
	containerReg, ok := g.compileExprToRegister(n.Iterable)
	if !ok {
		return false
	}
	guard, ok := g.B.EmitB(n.Span(), FESTART, containerReg, 0)
	if !ok {
		return false
	}
	ls := &loopScope{bodyStart: g.B.CodePosition(), guard: &guard}
	g.loops = append(g.loops, ls)

	if !g.B.EmitD(n.Span(), IDREF, containerReg, uint8(n.KeySlot), uint8(n.ValueSlot)) {
		g.popLoop()
		return false
	}
	if !g.compileBlock(n.Body) {
		g.popLoop()
		return false
	}

	ls.continueTarget = g.B.CodePosition()
	ls.continueKnown = true
	if _, ok := g.B.EmitB(n.Span(), FEEND, containerReg, ls.bodyStart); !ok {
		g.popLoop()
		return false
	}
	// containerReg is read by FESTART/IDREF/FEEND across every iteration
	// of the body, so it is only released once the loop is fully closed.
	g.dropTemp(containerReg)

	after := g.B.CodePosition()
	ls.guard.Patch(after)
	for _, l := range ls.pendingBreaks {
		l.Patch(after)
	}
	for _, l := range ls.pendingContinues {
		l.Patch(ls.bodyStart)
	}
	g.popLoop()
	return true
}

func (g *Generator) compileForever(n *ast.ForeverStmt) bool {
	if !g.B.EmitX(n.Span(), FEVRSTART) {
		return false
	}
	ls := &loopScope{bodyStart: g.B.CodePosition()}
	g.loops = append(g.loops, ls)

	if !g.compileBlock(n.Body) {
		g.popLoop()
		return false
	}
	ls.continueTarget = g.B.CodePosition()
	ls.continueKnown = true
	if _, ok := g.B.EmitG(n.Span(), FEVREND, ls.bodyStart); !ok {
		g.popLoop()
		return false
	}

	after := g.B.CodePosition()
	for _, l := range ls.pendingBreaks {
		l.Patch(after)
	}
	for _, l := range ls.pendingContinues {
		l.Patch(ls.bodyStart)
	}
	g.popLoop()
	return true
}

func (g *Generator) compileBreak(n *ast.BreakStmt) bool {
	if len(g.loops) == 0 {
		panic("bytecode: break outside of loop (should have been rejected earlier in the pipeline)")
	}
	ls := g.loops[len(g.loops)-1]
	l, ok := g.B.EmitG(n.Span(), BRK, 0)
	if !ok {
		return false
	}
	ls.pendingBreaks = append(ls.pendingBreaks, l)
	return true
}

func (g *Generator) compileContinue(n *ast.ContinueStmt) bool {
	if len(g.loops) == 0 {
		panic("bytecode: continue outside of loop (should have been rejected earlier in the pipeline)")
	}
	ls := g.loops[len(g.loops)-1]
	l, ok := g.B.EmitG(n.Span(), CONT, 0)
	if !ok {
		return false
	}
	if ls.continueKnown {
		l.Patch(ls.continueTarget)
	} else {
		ls.pendingContinues = append(ls.pendingContinues, l)
	}
	return true
}

func (g *Generator) compileReturn(n *ast.ReturnStmt) bool {
	if n.Value == nil {
		return g.B.EmitX(n.Span(), RETNULL)
	}
	_, ok := g.compileExprToRegister(n.Value)
	if !ok {
		return false
	}
	return g.B.EmitX(n.Span(), RET)
}

// --- expressions ---

// compileExprToRegister evaluates x and guarantees the result lands in
// a register (materialising literal ExprResults when needed) — used
// everywhere an operand must be a register (calls, property/index
// access, branch conditions).
func (g *Generator) compileExprToRegister(x ast.Expr) (uint8, bool) {
	res, ok := g.compileExpr(x)
	if !ok {
		return 0, false
	}
	if res.Kind == ResultRegister {
		return res.Reg, true
	}
	reg, ok := g.B.Regs.Grab()
	if !ok {
		g.B.Diags.Add(diag.RegisterOverflow, x.Span(), "temporary register pool exhausted")
		return 0, false
	}
	if !g.moveResultInto(x.Span(), res, uint8(reg)) {
		return 0, false
	}
	return uint8(reg), true
}

func (g *Generator) compileExpr(x ast.Expr) (ExprResult, bool) {
	switch n := x.(type) {
	case *ast.IntLit:
		return g.compileIntLit(n)
	case *ast.RealLit:
		idx, ok := g.B.Add(n.Value, n.Span())
		if !ok {
			return ExprResult{}, false
		}
		return ExprResult{Kind: ResultReal, RealIdx: idx}, true
	case *ast.StringLit:
		// SSO is only a distinct encoding for property/global *names*;
		// a string used as an expression value always goes through the
		// long-string table and LOADSTR.
		idx, ok := g.B.AddString(n.Value, n.Span())
		if !ok {
			return ExprResult{}, false
		}
		return ExprResult{Kind: ResultString, StringIdx: idx, StringVal: n.Value}, true
	case *ast.BoolLit:
		return ExprResult{Kind: ResultBool, Bool: n.Value}, true
	case *ast.NullLit:
		return ExprResult{Kind: ResultNull}, true
	case *ast.LocalRef:
		return regResult(uint8(n.Slot)), true
	case *ast.UpvalueRef:
		reg, ok := g.B.Regs.Grab()
		if !ok {
			g.B.Diags.Add(diag.RegisterOverflow, n.Span(), "temporary register pool exhausted")
			return ExprResult{}, false
		}
		if !g.B.EmitE(n.Span(), UVGET, uint8(reg), uint8(n.Index)) {
			return ExprResult{}, false
		}
		return regResult(uint8(reg)), true
	case *ast.GlobalRef:
		reg, ok := g.B.Regs.Grab()
		if !ok {
			g.B.Diags.Add(diag.RegisterOverflow, n.Span(), "temporary register pool exhausted")
			return ExprResult{}, false
		}
		if n.SSO {
			idx, ok := g.B.AddSSO(n.Name, n.Span())
			if !ok {
				return ExprResult{}, false
			}
			if !g.B.EmitE(n.Span(), GGETSSO, uint8(reg), uint8(idx)) {
				return ExprResult{}, false
			}
		} else {
			idx, ok := g.B.AddString(n.Name, n.Span())
			if !ok {
				return ExprResult{}, false
			}
			if !g.B.EmitE(n.Span(), GGET, uint8(reg), uint8(idx)) {
				return ExprResult{}, false
			}
		}
		return regResult(uint8(reg)), true
	case *ast.BinaryExpr:
		return g.compileBinary(n)
	case *ast.UnaryExpr:
		return g.compileUnary(n)
	case *ast.LogicalExpr:
		return g.compileLogical(n)
	case *ast.TernaryExpr:
		return g.compileTernary(n)
	case *ast.CallExpr:
		return g.compileCall(n)
	case *ast.PropertyGetExpr:
		return g.compilePropertyGet(n)
	case *ast.IndexGetExpr:
		return g.compileIndexGet(n)
	case *ast.ListLit:
		return g.compileListLit(n)
	case *ast.ObjectLit:
		return g.compileObjectLit(n)
	default:
		panic("bytecode: unknown expression node")
	}
}

func (g *Generator) compileIntLit(n *ast.IntLit) (ExprResult, bool) {
	switch n.Value {
	case 0:
		reg, ok := g.B.Regs.Grab()
		if !ok {
			g.B.Diags.Add(diag.RegisterOverflow, n.Span(), "temporary register pool exhausted")
			return ExprResult{}, false
		}
		return regResult(uint8(reg)), g.B.EmitF(n.Span(), LOAD0, uint8(reg))
	case 1:
		reg, ok := g.B.Regs.Grab()
		if !ok {
			return ExprResult{}, false
		}
		return regResult(uint8(reg)), g.B.EmitF(n.Span(), LOAD1, uint8(reg))
	case -1:
		reg, ok := g.B.Regs.Grab()
		if !ok {
			return ExprResult{}, false
		}
		return regResult(uint8(reg)), g.B.EmitF(n.Span(), LOADN1, uint8(reg))
	default:
		idx, ok := g.B.Add(float64(n.Value), n.Span())
		if !ok {
			return ExprResult{}, false
		}
		return ExprResult{Kind: ResultReal, RealIdx: idx}, true
	}
}

// rvvOps gives the opcode triple for a binary operator's
// real-register, register-real, and register-register forms (spec
// §4.1's "ADDRV/ADDVR/ADDVV"-style opcode families).
func rvvOps(op ast.BinOp) (rv, vr, vv Op, isCompare bool) {
	switch op {
	case ast.OpAdd:
		return ADDRV, ADDVR, ADDVV, false
	case ast.OpSub:
		return SUBRV, SUBVR, SUBVV, false
	case ast.OpMul:
		return MULRV, MULVR, MULVV, false
	case ast.OpDiv:
		return DIVRV, DIVVR, DIVVV, false
	case ast.OpMod:
		return MODRV, MODVR, MODVV, false
	case ast.OpPow:
		return POWRV, POWVR, POWVV, false
	case ast.OpLT:
		return LTRV, LTVR, LTVV, true
	case ast.OpLE:
		return LERV, LEVR, LEVV, true
	case ast.OpGT:
		return GTRV, GTVR, GTVV, true
	case ast.OpGE:
		return GERV, GEVR, GEVV, true
	case ast.OpEQ:
		return EQRV, EQVR, EQVV, true
	case ast.OpNE:
		return NERV, NEVR, NEVV, true
	default:
		panic("bytecode: unknown binary operator")
	}
}

func (g *Generator) compileBinary(n *ast.BinaryExpr) (ExprResult, bool) {
	// String (in)equality gets its own SREF-taking opcodes (EQSV/EQVS,
	// NESV/NEVS) when one side is a plain (non-SSO) string literal.
	if n.Op == ast.OpEQ || n.Op == ast.OpNE {
		if lit, ok := n.Left.(*ast.StringLit); ok && !lit.SSO {
			return g.compileStringCompare(n, lit, n.Right, true)
		}
		if lit, ok := n.Right.(*ast.StringLit); ok && !lit.SSO {
			return g.compileStringCompare(n, lit, n.Left, false)
		}
	}

	rv, vr, vv, _ := rvvOps(n.Op)
	out, ok := g.B.Regs.Grab()
	if !ok {
		g.B.Diags.Add(diag.RegisterOverflow, n.Span(), "temporary register pool exhausted")
		return ExprResult{}, false
	}

	if lit, ok := n.Left.(*ast.RealLit); ok {
		idx, ok := g.B.Add(lit.Value, lit.Span())
		if !ok {
			return ExprResult{}, false
		}
		r, ok := g.compileExprToRegister(n.Right)
		if !ok {
			return ExprResult{}, false
		}
		if !g.B.EmitD(n.Span(), rv, uint8(out), uint8(idx), r) {
			return ExprResult{}, false
		}
		g.dropTemp(r)
		return regResult(uint8(out)), true
	}
	if lit, ok := n.Right.(*ast.RealLit); ok {
		l, ok := g.compileExprToRegister(n.Left)
		if !ok {
			return ExprResult{}, false
		}
		idx, ok := g.B.Add(lit.Value, lit.Span())
		if !ok {
			return ExprResult{}, false
		}
		if !g.B.EmitD(n.Span(), vr, uint8(out), l, uint8(idx)) {
			return ExprResult{}, false
		}
		g.dropTemp(l)
		return regResult(uint8(out)), true
	}

	l, ok := g.compileExprToRegister(n.Left)
	if !ok {
		return ExprResult{}, false
	}
	r, ok := g.compileExprToRegister(n.Right)
	if !ok {
		return ExprResult{}, false
	}
	if !g.B.EmitD(n.Span(), vv, uint8(out), l, r) {
		return ExprResult{}, false
	}
	g.dropTemps(l, r)
	return regResult(uint8(out)), true
}

func (g *Generator) compileStringCompare(n *ast.BinaryExpr, lit *ast.StringLit, other ast.Expr, litOnLeft bool) (ExprResult, bool) {
	op := EQSV
	if !litOnLeft {
		op = EQVS
	}
	if n.Op == ast.OpNE {
		if litOnLeft {
			op = NESV
		} else {
			op = NEVS
		}
	}
	idx, ok := g.B.AddString(lit.Value, lit.Span())
	if !ok {
		return ExprResult{}, false
	}
	otherReg, ok := g.compileExprToRegister(other)
	if !ok {
		return ExprResult{}, false
	}
	out, ok := g.B.Regs.Grab()
	if !ok {
		g.B.Diags.Add(diag.RegisterOverflow, n.Span(), "temporary register pool exhausted")
		return ExprResult{}, false
	}
	if litOnLeft {
		if !g.B.EmitD(n.Span(), op, uint8(out), uint8(idx), otherReg) {
			return ExprResult{}, false
		}
	} else {
		if !g.B.EmitD(n.Span(), op, uint8(out), otherReg, uint8(idx)) {
			return ExprResult{}, false
		}
	}
	g.dropTemp(otherReg)
	return regResult(uint8(out)), true
}

func (g *Generator) compileUnary(n *ast.UnaryExpr) (ExprResult, bool) {
	operand, ok := g.compileExprToRegister(n.Operand)
	if !ok {
		return ExprResult{}, false
	}
	out, ok := g.B.Regs.Grab()
	if !ok {
		g.B.Diags.Add(diag.RegisterOverflow, n.Span(), "temporary register pool exhausted")
		return ExprResult{}, false
	}
	op := NEGATE
	if n.Op == ast.OpNot {
		op = NOT
	}
	if !g.B.EmitE(n.Span(), op, uint8(out), operand) {
		return ExprResult{}, false
	}
	g.dropTemp(operand)
	return regResult(uint8(out)), true
}

// compileLogical lowers short-circuit and/or to the AND/OR type-H
// opcode, which carries both an output register and a patchable
// short-circuit target.
func (g *Generator) compileLogical(n *ast.LogicalExpr) (ExprResult, bool) {
	lhs, ok := g.compileExprToRegister(n.Left)
	if !ok {
		return ExprResult{}, false
	}
	out, ok := g.B.Regs.Grab()
	if !ok {
		g.B.Diags.Add(diag.RegisterOverflow, n.Span(), "temporary register pool exhausted")
		return ExprResult{}, false
	}
	op := AND
	if n.Op == ast.OpOr {
		op = OR
	}
	label, ok := g.B.EmitH(n.Span(), op, lhs, uint8(out), 0, 0)
	if !ok {
		return ExprResult{}, false
	}
	g.dropTemp(lhs)
	rhs, ok := g.compileExprToRegister(n.Right)
	if !ok {
		return ExprResult{}, false
	}
	if !g.B.EmitE(n.Span(), MOVE, uint8(out), rhs) {
		return ExprResult{}, false
	}
	g.dropTemp(rhs)
	label.PatchDWord(uint32(g.B.CodePosition()))
	return regResult(uint8(out)), true
}

func (g *Generator) compileTernary(n *ast.TernaryExpr) (ExprResult, bool) {
	cond, ok := g.compileExprToRegister(n.Cond)
	if !ok {
		return ExprResult{}, false
	}
	out, ok := g.B.Regs.Grab()
	if !ok {
		g.B.Diags.Add(diag.RegisterOverflow, n.Span(), "temporary register pool exhausted")
		return ExprResult{}, false
	}
	label, ok := g.B.EmitH(n.Span(), TERN, cond, uint8(out), 0, 0)
	if !ok {
		return ExprResult{}, false
	}
	g.dropTemp(cond)
	thenReg, ok := g.compileExprToRegister(n.Then)
	if !ok {
		return ExprResult{}, false
	}
	if !g.B.EmitE(n.Span(), MOVE, uint8(out), thenReg) {
		return ExprResult{}, false
	}
	g.dropTemp(thenReg)
	jmpEnd, ok := g.B.EmitG(n.Span(), JMP, 0)
	if !ok {
		return ExprResult{}, false
	}
	label.PatchDWord(uint32(g.B.CodePosition()))
	elseReg, ok := g.compileExprToRegister(n.Else)
	if !ok {
		return ExprResult{}, false
	}
	if !g.B.EmitE(n.Span(), MOVE, uint8(out), elseReg) {
		return ExprResult{}, false
	}
	g.dropTemp(elseReg)
	jmpEnd.Patch(g.B.CodePosition())
	return regResult(uint8(out)), true
}

func (g *Generator) compileCall(n *ast.CallExpr) (ExprResult, bool) {
	callee, ok := g.compileExprToRegister(n.Callee)
	if !ok {
		return ExprResult{}, false
	}
	// Every argument's register is consumed positionally (base..base+len-1)
	// by the CALL/TCALL instruction itself, so none of them — nor callee —
	// can be released until that instruction has been emitted.
	base := -1
	argRegs := make([]uint8, 0, len(n.Args))
	for _, a := range n.Args {
		reg, ok := g.compileExprToRegister(a)
		if !ok {
			return ExprResult{}, false
		}
		argRegs = append(argRegs, reg)
		if base < 0 {
			base = int(reg)
		}
	}
	if base < 0 {
		base = 0
	}
	op := CALL
	if n.Tail {
		op = TCALL
	}
	if !g.B.EmitD(n.Span(), op, callee, uint8(base), uint8(len(n.Args))) {
		return ExprResult{}, false
	}
	g.dropTemp(callee)
	g.dropTemps(argRegs...)
	return regResult(AccumulatorRegister), true
}

func (g *Generator) compilePropertyGet(n *ast.PropertyGetExpr) (ExprResult, bool) {
	obj, ok := g.compileExprToRegister(n.Object)
	if !ok {
		return ExprResult{}, false
	}
	out, ok := g.B.Regs.Grab()
	if !ok {
		g.B.Diags.Add(diag.RegisterOverflow, n.Span(), "temporary register pool exhausted")
		return ExprResult{}, false
	}
	if n.SSO {
		idx, ok := g.B.AddSSO(n.Property, n.Span())
		if !ok {
			return ExprResult{}, false
		}
		if !g.B.EmitD(n.Span(), PROPGETSSO, uint8(out), uint8(idx), obj) {
			return ExprResult{}, false
		}
		g.dropTemp(obj)
		return regResult(uint8(out)), true
	}
	idx, ok := g.B.AddString(n.Property, n.Span())
	if !ok {
		return ExprResult{}, false
	}
	if !g.B.EmitD(n.Span(), PROPGET, uint8(out), uint8(idx), obj) {
		return ExprResult{}, false
	}
	g.dropTemp(obj)
	return regResult(uint8(out)), true
}

func (g *Generator) compileIndexGet(n *ast.IndexGetExpr) (ExprResult, bool) {
	obj, ok := g.compileExprToRegister(n.Object)
	if !ok {
		return ExprResult{}, false
	}
	idx, ok := g.compileExprToRegister(n.Index)
	if !ok {
		return ExprResult{}, false
	}
	out, ok := g.B.Regs.Grab()
	if !ok {
		g.B.Diags.Add(diag.RegisterOverflow, n.Span(), "temporary register pool exhausted")
		return ExprResult{}, false
	}
	if !g.B.EmitD(n.Span(), IDXGET, uint8(out), obj, idx) {
		return ExprResult{}, false
	}
	g.dropTemps(obj, idx)
	return regResult(uint8(out)), true
}

func (g *Generator) compileListLit(n *ast.ListLit) (ExprResult, bool) {
	out, ok := g.B.Regs.Grab()
	if !ok {
		g.B.Diags.Add(diag.RegisterOverflow, n.Span(), "temporary register pool exhausted")
		return ExprResult{}, false
	}
	if len(n.Elems) == 0 {
		return regResult(uint8(out)), g.B.EmitF(n.Span(), LOADLIST0, uint8(out))
	}
	if len(n.Elems) == 1 {
		e, ok := g.compileExprToRegister(n.Elems[0])
		if !ok {
			return ExprResult{}, false
		}
		if !g.B.EmitE(n.Span(), LOADLIST1, uint8(out), e) {
			return ExprResult{}, false
		}
		g.dropTemp(e)
		return regResult(uint8(out)), true
	}
	if len(n.Elems) == 2 {
		e0, ok := g.compileExprToRegister(n.Elems[0])
		if !ok {
			return ExprResult{}, false
		}
		e1, ok := g.compileExprToRegister(n.Elems[1])
		if !ok {
			return ExprResult{}, false
		}
		if !g.B.EmitD(n.Span(), LOADLIST2, uint8(out), e0, e1) {
			return ExprResult{}, false
		}
		g.dropTemps(e0, e1)
		return regResult(uint8(out)), true
	}
	if _, ok := g.B.EmitB(n.Span(), NEWLIST, uint8(out), uint16(len(n.Elems))); !ok {
		return ExprResult{}, false
	}
	for _, e := range n.Elems {
		reg, ok := g.compileExprToRegister(e)
		if !ok {
			return ExprResult{}, false
		}
		if !g.B.EmitD(n.Span(), ADDLIST, uint8(out), reg, 0) {
			return ExprResult{}, false
		}
		g.dropTemp(reg)
	}
	return regResult(uint8(out)), true
}

func (g *Generator) compileObjectLit(n *ast.ObjectLit) (ExprResult, bool) {
	out, ok := g.B.Regs.Grab()
	if !ok {
		g.B.Diags.Add(diag.RegisterOverflow, n.Span(), "temporary register pool exhausted")
		return ExprResult{}, false
	}
	if len(n.Entries) == 0 {
		return regResult(uint8(out)), g.B.EmitF(n.Span(), LOADOBJ0, uint8(out))
	}
	if len(n.Entries) == 1 {
		k, ok := g.compileExprToRegister(n.Entries[0].Key)
		if !ok {
			return ExprResult{}, false
		}
		v, ok := g.compileExprToRegister(n.Entries[0].Value)
		if !ok {
			return ExprResult{}, false
		}
		if !g.B.EmitD(n.Span(), LOADOBJ1, uint8(out), k, v) {
			return ExprResult{}, false
		}
		g.dropTemps(k, v)
		return regResult(uint8(out)), true
	}
	if _, ok := g.B.EmitB(n.Span(), NEWOBJ, uint8(out), uint16(len(n.Entries))); !ok {
		return ExprResult{}, false
	}
	for _, e := range n.Entries {
		k, ok := g.compileExprToRegister(e.Key)
		if !ok {
			return ExprResult{}, false
		}
		v, ok := g.compileExprToRegister(e.Value)
		if !ok {
			return ExprResult{}, false
		}
		if !g.B.EmitD(n.Span(), ADDOBJ, uint8(out), k, v) {
			return ExprResult{}, false
		}
		g.dropTemps(k, v)
	}
	return regResult(uint8(out)), true
}
