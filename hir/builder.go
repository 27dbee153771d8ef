package hir

import (
	"fmt"

	"github.com/dianpeng/lavascript/bytecode"
	"github.com/dianpeng/lavascript/bytecode/liveness"
)

// This file translates a finalized bytecode.Prototype plus its
// liveness.Analysis into a Graph. It walks instructions in program
// order maintaining a *value stack* — here regs, a map from
// interpreter register index to the Node currently holding that
// register's value — alongside the current region, loop-info stack,
// and active basic-block stack.
//
// Structured as the same recursive-descent shape as
// bytecode/liveness/liveness.go's walk, since both passes must agree
// on where one basic block or loop ends and the next begins.

// loopCtx tracks one loop's pending break/continue edges and pending
// φ-patch requests.
type loopCtx struct {
	loopRegion       ID
	pendingBreaks    []ID
	pendingContinues []ID
	phiPatches       []phiPatch
	continueTarget   ID // set once the loop-exit region exists
}

type phiPatch struct {
	reg int
	phi ID
}

// GraphBuilder holds one function's translation state.
type GraphBuilder struct {
	g        *Graph
	proto    *bytecode.Prototype
	analysis *liveness.Analysis

	regs map[int]ID // value stack: register index -> current Node id

	curControl ID
	curEffect  ID

	loops []*loopCtx

	ssoNodes map[*bytecode.SSORef]*SSORef
}

// Build runs GraphBuilder over proto starting at its entry (pc 0),
// producing a complete, non-OSR Graph.
func Build(proto *bytecode.Prototype, analysis *liveness.Analysis) *Graph {
	g := NewGraph()
	b := &GraphBuilder{
		g:        g,
		proto:    proto,
		analysis: analysis,
		regs:     make(map[int]ID),
		ssoNodes: make(map[*bytecode.SSORef]*SSORef),
	}
	start := NewStart(g)
	b.curControl = start.ID
	b.curEffect = NewInitBarrier(g, start.ID).ID

	b.walk(0, -1, nil)
	b.finish(b.curControl)
	return g
}

// BuildOSR builds a graph entered mid-function at pc. All locals live
// at pc (per the innermost enclosing basic block the liveness pass
// recorded) are reloaded via OSRLoad. The graph covers the rest of that
// basic block only and ends at OSREnd where the block ends; loops
// enclosing pc are not rebuilt.
func BuildOSR(proto *bytecode.Prototype, analysis *liveness.Analysis, pc int) *Graph {
	g := NewGraph()
	b := &GraphBuilder{
		g:        g,
		proto:    proto,
		analysis: analysis,
		regs:     make(map[int]ID),
		ssoNodes: make(map[*bytecode.SSORef]*SSORef),
	}
	start := NewOSRStart(g)
	b.curControl = start.ID
	b.curEffect = NewInitBarrier(g, start.ID).ID

	stopPC := -1
	bb := analysis.BasicBlockContaining(pc)
	if bb != nil {
		stopPC = bb.End
		for reg := 0; reg < analysis.MaxLocalVarSize; reg++ {
			if bb.IsAlive(reg) {
				load := NewOSRLoad(g, reg)
				b.regs[reg] = load.ID
			}
		}
	}

	b.walk(pc, stopPC, nil)
	oend := NewOSREnd(g, b.curControl)
	g.End = oend.ID
	return g
}

func (b *GraphBuilder) finish(lastControl ID) {
	last := b.g.Get(lastControl)
	if last != nil && (last.Kind == KReturn || last.Kind == KTrap || last.Kind == KEnd) {
		if last.Kind != KEnd {
			NewEnd(b.g, lastControl)
		}
		return
	}
	NewEnd(b.g, lastControl)
}

func (b *GraphBuilder) getReg(reg int) *Node {
	if id, ok := b.regs[reg]; ok {
		if n := b.g.Get(id); n != nil {
			return n
		}
	}
	if reg < b.proto.ArgumentSize {
		n := NewArg(b.g, reg)
		b.regs[reg] = n.ID
		return n
	}
	n := NewNil(b.g)
	b.regs[reg] = n.ID
	return n
}

func (b *GraphBuilder) setReg(reg int, n *Node) { b.regs[reg] = n.ID }

func (b *GraphBuilder) snapshotRegs() map[int]ID {
	out := make(map[int]ID, len(b.regs))
	for k, v := range b.regs {
		out[k] = v
	}
	return out
}

func (b *GraphBuilder) constReal(idx uint32) *Node {
	return NewFloat64(b.g, b.proto.RealTable[idx])
}

func (b *GraphBuilder) constStr(idx uint32) *Node {
	return NewLString(b.g, b.proto.StringTable[idx])
}

func (b *GraphBuilder) constSSO(idx uint32) *Node {
	ref := b.proto.SSOTable[idx]
	if sn, ok := b.ssoNodes[ref]; ok {
		return NewSString(b.g, sn)
	}
	sn := &SSORef{content: ref.String()}
	b.ssoNodes[ref] = sn
	return NewSString(b.g, sn)
}

func (b *GraphBuilder) curRegion() *Node { return b.g.Get(b.curControl) }

// --- write/read effect helpers ---

func (b *GraphBuilder) write(writer *Node) {
	we := NewWriteEffect(b.g, b.g.Get(b.curEffect), writer, b.curControl)
	b.curEffect = we.ID
}

func (b *GraphBuilder) read(reader *Node) {
	NewReadEffect(b.g, b.g.Get(b.curEffect), reader)
}

func instrLen(op bytecode.Op) int {
	if bytecode.TypeOf(op) == bytecode.TypeH {
		return 2
	}
	return 1
}

func decodeFields(op bytecode.Op, w0, w1 bytecode.Word) [4]uint32 {
	var out [4]uint32
	switch bytecode.TypeOf(op) {
	case bytecode.TypeB:
		out[0] = uint32(w0>>8) & 0xFF
		out[1] = uint32(w0>>16) & 0xFFFF
	case bytecode.TypeC:
		out[0] = uint32(w0>>8) & 0xFFFF
		out[1] = uint32(w0>>24) & 0xFF
	case bytecode.TypeD:
		out[0] = uint32(w0>>8) & 0xFF
		out[1] = uint32(w0>>16) & 0xFF
		out[2] = uint32(w0>>24) & 0xFF
	case bytecode.TypeE:
		out[0] = uint32(w0>>8) & 0xFF
		out[1] = uint32(w0>>16) & 0xFF
	case bytecode.TypeF:
		out[0] = uint32(w0>>8) & 0xFF
	case bytecode.TypeG:
		out[0] = uint32(w0>>8) & 0xFFFF
	case bytecode.TypeH:
		out[0] = uint32(w0>>8) & 0xFF
		out[1] = uint32(w0>>16) & 0xFF
		out[2] = uint32(w0>>24) & 0xFF
		out[3] = uint32(w1)
	}
	return out
}

type binOpForm int

const (
	formRV binOpForm = iota
	formVR
	formVV
	formSV
	formVS
)

type binOpEntry struct {
	op   BinOp
	form binOpForm
}

var binOpTable = map[bytecode.Op]binOpEntry{
	bytecode.ADDRV: {OpAdd, formRV}, bytecode.ADDVR: {OpAdd, formVR}, bytecode.ADDVV: {OpAdd, formVV},
	bytecode.SUBRV: {OpSub, formRV}, bytecode.SUBVR: {OpSub, formVR}, bytecode.SUBVV: {OpSub, formVV},
	bytecode.MULRV: {OpMul, formRV}, bytecode.MULVR: {OpMul, formVR}, bytecode.MULVV: {OpMul, formVV},
	bytecode.DIVRV: {OpDiv, formRV}, bytecode.DIVVR: {OpDiv, formVR}, bytecode.DIVVV: {OpDiv, formVV},
	bytecode.MODRV: {OpMod, formRV}, bytecode.MODVR: {OpMod, formVR}, bytecode.MODVV: {OpMod, formVV},
	bytecode.POWRV: {OpPow, formRV}, bytecode.POWVR: {OpPow, formVR}, bytecode.POWVV: {OpPow, formVV},

	bytecode.LTRV: {OpLT, formRV}, bytecode.LTVR: {OpLT, formVR}, bytecode.LTVV: {OpLT, formVV},
	bytecode.LERV: {OpLE, formRV}, bytecode.LEVR: {OpLE, formVR}, bytecode.LEVV: {OpLE, formVV},
	bytecode.GTRV: {OpGT, formRV}, bytecode.GTVR: {OpGT, formVR}, bytecode.GTVV: {OpGT, formVV},
	bytecode.GERV: {OpGE, formRV}, bytecode.GEVR: {OpGE, formVR}, bytecode.GEVV: {OpGE, formVV},

	bytecode.EQRV: {OpEQ, formRV}, bytecode.EQVR: {OpEQ, formVR}, bytecode.EQVV: {OpEQ, formVV},
	bytecode.EQSV: {OpEQ, formSV}, bytecode.EQVS: {OpEQ, formVS},
	bytecode.NERV: {OpNE, formRV}, bytecode.NEVR: {OpNE, formVR}, bytecode.NEVV: {OpNE, formVV},
	bytecode.NESV: {OpNE, formSV}, bytecode.NEVS: {OpNE, formVS},
}

func (b *GraphBuilder) binOperand(form binOpForm, slot int, fields [4]uint32) *Node {
	// slot 0 means "the constant/register occupying operand position 1"
	// (A's right-hand partner), slot 1 means position 2.
	switch form {
	case formRV:
		if slot == 0 {
			return b.constReal(fields[1])
		}
		return b.getReg(int(fields[2]))
	case formVR:
		if slot == 0 {
			return b.getReg(int(fields[1]))
		}
		return b.constReal(fields[2])
	case formVV:
		if slot == 0 {
			return b.getReg(int(fields[1]))
		}
		return b.getReg(int(fields[2]))
	case formSV:
		if slot == 0 {
			return b.constStr(fields[1])
		}
		return b.getReg(int(fields[2]))
	case formVS:
		if slot == 0 {
			return b.getReg(int(fields[1]))
		}
		return b.constStr(fields[2])
	}
	panic("hir: unreachable binOpForm")
}

// simple executes one non-control-flow instruction at pc, updating
// regs/curEffect, and returns its length in words.
func (b *GraphBuilder) simple(pc int) int {
	op := bytecode.Op(b.proto.Code[pc])
	var w1 bytecode.Word
	if bytecode.TypeOf(op) == bytecode.TypeH {
		w1 = b.proto.Code[pc+1]
	}
	f := decodeFields(op, b.proto.Code[pc], w1)

	if entry, ok := binOpTable[op]; ok {
		lhs := b.binOperand(entry.form, 0, f)
		rhs := b.binOperand(entry.form, 1, f)
		b.setReg(int(f[0]), NewBinary(b.g, entry.op, lhs, rhs))
		return instrLen(op)
	}

	switch op {
	case bytecode.NEGATE:
		b.setReg(int(f[0]), NewUnary(b.g, OpNeg, b.getReg(int(f[1]))))
	case bytecode.NOT:
		b.setReg(int(f[0]), NewUnary(b.g, OpNot, b.getReg(int(f[1]))))
	case bytecode.MOVE:
		b.setReg(int(f[0]), b.getReg(int(f[1])))
	case bytecode.LOAD0:
		b.setReg(int(f[0]), NewFloat64(b.g, 0))
	case bytecode.LOAD1:
		b.setReg(int(f[0]), NewFloat64(b.g, 1))
	case bytecode.LOADN1:
		b.setReg(int(f[0]), NewFloat64(b.g, -1))
	case bytecode.LOADR:
		b.setReg(int(f[0]), b.constReal(f[1]))
	case bytecode.LOADSTR:
		b.setReg(int(f[0]), b.constStr(f[1]))
	case bytecode.LOADTRUE:
		b.setReg(int(f[0]), NewBoolean(b.g, true))
	case bytecode.LOADFALSE:
		b.setReg(int(f[0]), NewBoolean(b.g, false))
	case bytecode.LOADNULL:
		b.setReg(int(f[0]), NewNil(b.g))

	case bytecode.LOADLIST0:
		b.setReg(int(f[0]), NewList(b.g, nil))
	case bytecode.LOADLIST1:
		b.setReg(int(f[0]), NewList(b.g, []*Node{b.getReg(int(f[1]))}))
	case bytecode.LOADLIST2:
		b.setReg(int(f[0]), NewList(b.g, []*Node{b.getReg(int(f[1])), b.getReg(int(f[2]))}))
	case bytecode.NEWLIST:
		b.setReg(int(f[0]), NewList(b.g, nil))
	case bytecode.ADDLIST:
		AppendList(b.g, b.getReg(int(f[0])), b.getReg(int(f[1])))
	case bytecode.LOADOBJ0:
		b.setReg(int(f[0]), NewObject(b.g, nil))
	case bytecode.LOADOBJ1:
		b.setReg(int(f[0]), NewObject(b.g, []*Node{b.getReg(int(f[1])), b.getReg(int(f[2]))}))
	case bytecode.NEWOBJ:
		b.setReg(int(f[0]), NewObject(b.g, nil))
	case bytecode.ADDOBJ:
		AppendObject(b.g, b.getReg(int(f[0])), b.getReg(int(f[1])), b.getReg(int(f[2])))
	case bytecode.LOADCLS:
		b.setReg(int(f[0]), NewClosure(b.g, int(f[1])))
	case bytecode.INITCLS:
		// upvalue binding is a runtime/object-layer concern; the closure
		// node itself was already created by LOADCLS.

	case bytecode.PROPGET:
		reader := NewPropGet(b.g, b.getReg(int(f[2])), b.proto.StringTable[f[1]])
		b.read(reader)
		b.setReg(int(f[0]), reader)
	case bytecode.PROPGETSSO:
		reader := NewPropGet(b.g, b.getReg(int(f[2])), b.proto.SSOTable[f[1]].String())
		b.read(reader)
		b.setReg(int(f[0]), reader)
	case bytecode.PROPSET:
		writer := NewPropSet(b.g, b.getReg(int(f[0])), b.proto.StringTable[f[1]], b.getReg(int(f[2])))
		b.write(writer)
	case bytecode.PROPSETSSO:
		writer := NewPropSet(b.g, b.getReg(int(f[0])), b.proto.SSOTable[f[1]].String(), b.getReg(int(f[2])))
		b.write(writer)
	case bytecode.IDXGET:
		reader := NewIdxGet(b.g, b.getReg(int(f[1])), b.getReg(int(f[2])))
		b.read(reader)
		b.setReg(int(f[0]), reader)
	case bytecode.IDXGETI:
		reader := NewIdxGet(b.g, b.getReg(int(f[1])), NewFloat64(b.g, float64(f[2])))
		b.read(reader)
		b.setReg(int(f[0]), reader)
	case bytecode.IDXSET:
		writer := NewIdxSet(b.g, b.getReg(int(f[0])), b.getReg(int(f[1])), b.getReg(int(f[2])))
		b.write(writer)
	case bytecode.IDXSETI:
		writer := NewIdxSet(b.g, b.getReg(int(f[0])), NewFloat64(b.g, float64(f[1])), b.getReg(int(f[2])))
		b.write(writer)

	case bytecode.UVGET:
		reader := NewUVGet(b.g, int(f[1]))
		b.read(reader)
		b.setReg(int(f[0]), reader)
	case bytecode.UVSET:
		writer := NewUVSet(b.g, int(f[0]), b.getReg(int(f[1])))
		b.write(writer)
	case bytecode.GGET:
		reader := NewGGet(b.g, b.proto.StringTable[f[1]])
		b.read(reader)
		b.setReg(int(f[0]), reader)
	case bytecode.GGETSSO:
		reader := NewGGet(b.g, b.proto.SSOTable[f[1]].String())
		b.read(reader)
		b.setReg(int(f[0]), reader)
	case bytecode.GSET:
		writer := NewGSet(b.g, b.proto.StringTable[f[0]], b.getReg(int(f[1])))
		b.write(writer)
	case bytecode.GSETSSO:
		writer := NewGSet(b.g, b.proto.SSOTable[f[0]].String(), b.getReg(int(f[1])))
		b.write(writer)

	case bytecode.CALL, bytecode.TCALL:
		callee := b.getReg(int(f[0]))
		base, count := int(f[1]), int(f[2])
		args := make([]*Node, count)
		for i := 0; i < count; i++ {
			args[i] = b.getReg(base + i)
		}
		call := NewCall(b.g, callee, args)
		if op == bytecode.TCALL {
			MarkTailCall(call)
		}
		b.read(call)
		b.write(call)
		b.setReg(AccumulatorRegister, call)

	case bytecode.IDREF:
		iter := b.getReg(int(f[0]))
		deref := NewItrDeref(b.g, iter)
		b.setReg(int(f[1]), NewProjection(b.g, deref, 0))
		b.setReg(int(f[2]), NewProjection(b.g, deref, 1))

	case bytecode.HLT:
		// no-op marker; never reached by normal control flow.

	default:
		panic(fmt.Sprintf("hir: unhandled simple opcode %s at pc %d", op, pc))
	}
	return instrLen(op)
}

// AccumulatorRegister mirrors bytecode.AccumulatorRegister (register
// #255).
const AccumulatorRegister = 255

// walk is the structural counterpart of liveness.analyzer.walk: same
// recursive-descent shape, same stop conditions, but building Graph
// nodes and threading curControl/curEffect/regs instead of only
// recording register kills.
func (b *GraphBuilder) walk(pc int, stopPC int, stopOps map[bytecode.Op]bool) int {
	for pc < len(b.proto.Code) {
		if stopPC >= 0 && pc == stopPC {
			return pc
		}
		op := bytecode.Op(b.proto.Code[pc])
		if stopOps != nil && stopOps[op] {
			return pc
		}

		switch op {
		case bytecode.JMPF, bytecode.JMPT:
			pc = b.buildIf(pc)
			continue
		case bytecode.AND, bytecode.OR:
			pc = b.buildLogic(pc)
			continue
		case bytecode.TERN:
			pc = b.buildTernary(pc)
			continue
		case bytecode.FSTART:
			pc = b.buildForLoop(pc)
			continue
		case bytecode.FESTART:
			pc = b.buildForEachLoop(pc)
			continue
		case bytecode.FEVRSTART:
			pc = b.buildForeverLoop(pc)
			continue
		case bytecode.BRK:
			jmp := NewJump(b.g, b.curControl)
			cur := b.loops[len(b.loops)-1]
			cur.pendingBreaks = append(cur.pendingBreaks, jmp.ID)
			b.curControl = jmp.ID
			return pc + instrLen(op) // a basic block ends here; caller's stopOps/stopPC continues the outer scan
		case bytecode.CONT:
			jmp := NewJump(b.g, b.curControl)
			cur := b.loops[len(b.loops)-1]
			cur.pendingContinues = append(cur.pendingContinues, jmp.ID)
			b.curControl = jmp.ID
			return pc + instrLen(op)
		case bytecode.RET:
			ret := NewReturn(b.g, b.curControl, b.getReg(AccumulatorRegister))
			succ := NewSuccess(b.g, ret.ID)
			b.curControl = succ.ID
			return pc + instrLen(op)
		case bytecode.RETNULL:
			ret := NewReturn(b.g, b.curControl, nil)
			succ := NewSuccess(b.g, ret.ID)
			b.curControl = succ.ID
			return pc + instrLen(op)
		}

		pc += b.simple(pc)
	}
	return pc
}

// buildIf translates a JMPF/JMPT into If/IfTrue/IfFalse/IfMerge,
// inserting φ for every register whose value differs between the two
// arms.
func (b *GraphBuilder) buildIf(pc int) int {
	op := bytecode.Op(b.proto.Code[pc])
	f := decodeFields(op, b.proto.Code[pc], 0)
	condReg := int(f[0])
	elseStart := int(f[1])

	cond := b.getReg(condReg)
	if op == bytecode.JMPT {
		cond = NewUnary(b.g, OpNot, cond)
	}
	ifNode := NewIf(b.g, b.curControl, cond)

	before := b.snapshotRegs()
	beforeEffect := b.curEffect

	thenRegion := NewIfTrue(b.g, ifNode.ID)
	b.curControl = thenRegion.ID
	b.walk(pc+1, elseStart, nil)
	thenExit := b.curControl
	thenRegs := b.snapshotRegs()
	thenEffect := b.curEffect

	merge := elseStart
	hasElse := false
	if elseStart > 0 && elseStart <= len(b.proto.Code) {
		if prev := bytecode.Op(b.proto.Code[elseStart-1]); prev == bytecode.JMP {
			prevFields := decodeFields(bytecode.JMP, b.proto.Code[elseStart-1], 0)
			merge = int(prevFields[0])
			hasElse = true
		}
	}

	b.regs = before
	b.curEffect = beforeEffect
	elseRegion := NewIfFalse(b.g, ifNode.ID)
	b.curControl = elseRegion.ID
	elseExit := elseRegion.ID
	elseRegs := before
	elseEffect := beforeEffect
	if hasElse {
		b.walk(elseStart, merge, nil)
		elseExit = b.curControl
		elseRegs = b.snapshotRegs()
		elseEffect = b.curEffect
	}

	// A branch that ends in BRK/CONT/RET never reaches the merge: its
	// exit node already has its true successor (the loop's after-region,
	// or Success/Trap) set elsewhere, so it must not also feed IfMerge,
	// and its register/effect state must not be folded into the join.
	thenLive := !isTerminal(b.g.Get(thenExit))
	elseLive := !isTerminal(b.g.Get(elseExit))

	var preds []ID
	if thenLive {
		preds = append(preds, thenExit)
	}
	if elseLive {
		preds = append(preds, elseExit)
	}
	ifMerge := NewIfMerge(b.g, preds...)
	b.curControl = ifMerge.ID

	switch {
	case thenLive && elseLive:
		merged := make(map[int]ID)
		seen := make(map[int]bool)
		for r := range thenRegs {
			seen[r] = true
		}
		for r := range elseRegs {
			seen[r] = true
		}
		for r := range seen {
			tv, tok := thenRegs[r]
			ev, eok := elseRegs[r]
			if !tok || !eok {
				continue
			}
			if tv == ev {
				merged[r] = tv
				continue
			}
			phi := NewCompletePhi(b.g, ifMerge.ID, b.g.Get(tv), b.g.Get(ev))
			merged[r] = phi.ID
		}
		b.regs = merged
		if thenEffect != elseEffect {
			b.curEffect = NewEffectMerge(b.g, b.g.Get(thenEffect), b.g.Get(elseEffect), ifMerge.ID).ID
		} else {
			b.curEffect = thenEffect
		}
	case thenLive:
		b.regs = thenRegs
		b.curEffect = thenEffect
	case elseLive:
		b.regs = elseRegs
		b.curEffect = elseEffect
	default:
		// both arms terminal: code past the merge is unreachable and the
		// IfMerge has no predecessors. Keep whatever state was live going
		// in; a walk with no stop condition (the top-level one) still
		// translates the bytecode after the merge, into nodes that hang
		// off this unreachable IfMerge.
		b.regs = before
		b.curEffect = beforeEffect
	}

	return merge
}

// isTerminal reports whether control leaving n can fall through to a
// structural successor the caller should join on, as opposed to
// already having its true destination fixed elsewhere (BRK/CONT jump
// to a loop edge, RET's Success, an unreachable Trap).
func isTerminal(n *Node) bool {
	if n == nil {
		return true
	}
	switch n.Kind {
	case KJump, KSuccess, KFail, KTrap, KReturn:
		return true
	}
	return false
}

// buildLogic flattens AND/OR into a single Binary node: expression-level
// short-circuit control flow carries no observable branch structure in
// the HIR.
func (b *GraphBuilder) buildLogic(pc int) int {
	op := bytecode.Op(b.proto.Code[pc])
	w1 := b.proto.Code[pc+1]
	f := decodeFields(op, b.proto.Code[pc], w1)
	lhsReg, outReg, target := int(f[0]), int(f[1]), int(f[3])

	lhs := b.getReg(lhsReg)
	b.walk(pc+2, target, nil)
	rhs := b.getReg(outReg)

	hirOp := OpAnd
	if op == bytecode.OR {
		hirOp = OpOr
	}
	b.setReg(outReg, NewBinary(b.g, hirOp, lhs, rhs))
	return target
}

// buildTernary translates TERN into a genuine Ternary(cond, lhs, rhs)
// value node, evaluating both arms from the same pre-branch register
// snapshot.
func (b *GraphBuilder) buildTernary(pc int) int {
	op := bytecode.Op(b.proto.Code[pc])
	w1 := b.proto.Code[pc+1]
	f := decodeFields(op, b.proto.Code[pc], w1)
	condReg, outReg, elseStart := int(f[0]), int(f[1]), int(f[3])

	cond := b.getReg(condReg)
	before := b.snapshotRegs()

	b.walk(pc+2, elseStart-1, nil) // stop just before the then-arm's trailing JMP
	thenVal := b.getReg(outReg)

	jmpFields := decodeFields(bytecode.JMP, b.proto.Code[elseStart-1], 0)
	merge := int(jmpFields[0])

	b.regs = before
	b.walk(elseStart, merge, nil)
	elseVal := b.getReg(outReg)

	b.setReg(outReg, NewTernary(b.g, cond, thenVal, elseVal))
	return merge
}

// buildForLoop translates FSTART/FEND1/FEND2. The loop is inverted: a
// LoopHeader (built with no condition operand) leads into the Loop
// body region, a pending Phi is pre-inserted for every register the
// liveness pre-pass recorded as modified by this loop, and each Phi's
// loop-carried operand is filled in once the body (and its exit test)
// are known. The exit test sits on the LoopExit; the after-region joins
// the LoopExit and every break, and has no edge from the LoopHeader.
func (b *GraphBuilder) buildForLoop(pc int) int {
	bodyStart := pc + 1
	lh := b.analysis.LookUpLoopHeader(bodyStart)

	headerIf := NewLoopHeader(b.g, b.curControl, nil)
	loopRegion := NewLoop(b.g, headerIf.ID)
	b.curControl = loopRegion.ID

	cur := &loopCtx{loopRegion: loopRegion.ID}
	b.loops = append(b.loops, cur)

	if lh != nil {
		for _, reg := range lh.Phi.SortedVars() {
			old := b.getReg(reg)
			phi := NewPhi(b.g, loopRegion.ID, old)
			b.setReg(reg, phi)
			cur.phiPatches = append(cur.phiPatches, phiPatch{reg: reg, phi: phi.ID})
		}
	}

	endPC := b.walk(bodyStart, -1, map[bytecode.Op]bool{bytecode.FEND1: true, bytecode.FEND2: true})

	endOp := bytecode.Op(b.proto.Code[endPC])
	w1 := b.proto.Code[endPC+1]
	f := decodeFields(endOp, b.proto.Code[endPC], w1)

	var exitCond *Node
	if endOp == bytecode.FEND1 {
		exitCond = NewBinary(b.g, OpLT, b.getReg(int(f[0])), b.getReg(int(f[1])))
	} else { // FEND2
		inductionReg := int(f[0])
		phi := b.getReg(inductionReg)
		step := b.getReg(int(f[1]))
		bound := b.getReg(int(f[2]))
		add := NewBinary(b.g, OpAdd, phi, step)
		b.setReg(inductionReg, add)
		exitCond = NewBinary(b.g, OpLT, add, bound)
	}

	loopExit := NewLoopExit(b.g, b.curControl, exitCond)
	cur.continueTarget = loopExit.ID

	for _, p := range cur.phiPatches {
		CompletePhi(b.g, b.g.Get(p.phi), b.getReg(p.reg))
	}

	afterPreds := append([]ID{loopExit.ID}, cur.pendingBreaks...)
	after := NewLoopMerge(b.g, afterPreds...)
	for _, jmp := range cur.pendingBreaks {
		PatchJump(b.g, jmp, after.ID)
	}
	for _, jmp := range cur.pendingContinues {
		PatchJump(b.g, jmp, loopExit.ID)
	}

	b.loops = b.loops[:len(b.loops)-1]
	b.curControl = after.ID
	return endPC + instrLen(endOp)
}

// buildForEachLoop translates FESTART/IDREF/FEEND the same way, using
// ItrNext as the exit test in place of a register comparison.
func (b *GraphBuilder) buildForEachLoop(pc int) int {
	bodyStart := pc + 1
	f0 := decodeFields(bytecode.FESTART, b.proto.Code[pc], 0)
	containerReg := int(f0[0])

	headerIf := NewLoopHeader(b.g, b.curControl, nil)
	loopRegion := NewLoop(b.g, headerIf.ID)
	b.curControl = loopRegion.ID

	iter := NewItrNew(b.g, b.getReg(containerReg))
	b.setReg(containerReg, iter)

	cur := &loopCtx{loopRegion: loopRegion.ID}
	b.loops = append(b.loops, cur)

	lh := b.analysis.LookUpLoopHeader(bodyStart)
	if lh != nil {
		for _, reg := range lh.Phi.SortedVars() {
			old := b.getReg(reg)
			phi := NewPhi(b.g, loopRegion.ID, old)
			b.setReg(reg, phi)
			cur.phiPatches = append(cur.phiPatches, phiPatch{reg: reg, phi: phi.ID})
		}
	}

	endPC := b.walk(bodyStart, -1, map[bytecode.Op]bool{bytecode.FEEND: true})

	next := NewItrNext(b.g, b.getReg(containerReg))
	loopExit := NewLoopExit(b.g, b.curControl, next)
	cur.continueTarget = loopExit.ID

	for _, p := range cur.phiPatches {
		CompletePhi(b.g, b.g.Get(p.phi), b.getReg(p.reg))
	}

	afterPreds := append([]ID{loopExit.ID}, cur.pendingBreaks...)
	after := NewLoopMerge(b.g, afterPreds...)
	for _, jmp := range cur.pendingBreaks {
		PatchJump(b.g, jmp, after.ID)
	}
	for _, jmp := range cur.pendingContinues {
		PatchJump(b.g, jmp, loopExit.ID)
	}

	b.loops = b.loops[:len(b.loops)-1]
	b.curControl = after.ID
	_ = endPC
	return endPC + instrLen(bytecode.FEEND)
}

// buildForeverLoop translates FEVRSTART/FEVREND into a Loop region with
// no LoopHeader If(true) guard at all: the only exit is via BRK.
func (b *GraphBuilder) buildForeverLoop(pc int) int {
	bodyStart := pc + instrLen(bytecode.FEVRSTART)
	loopRegion := NewLoop(b.g, b.curControl)
	b.curControl = loopRegion.ID

	cur := &loopCtx{loopRegion: loopRegion.ID}
	b.loops = append(b.loops, cur)

	lh := b.analysis.LookUpLoopHeader(bodyStart)
	if lh != nil {
		for _, reg := range lh.Phi.SortedVars() {
			old := b.getReg(reg)
			phi := NewPhi(b.g, loopRegion.ID, old)
			b.setReg(reg, phi)
			cur.phiPatches = append(cur.phiPatches, phiPatch{reg: reg, phi: phi.ID})
		}
	}

	endPC := b.walk(bodyStart, -1, map[bytecode.Op]bool{bytecode.FEVREND: true})

	backEdge := NewJump(b.g, b.curControl)
	for _, p := range cur.phiPatches {
		CompletePhi(b.g, b.g.Get(p.phi), b.getReg(p.reg))
	}
	PatchJump(b.g, backEdge.ID, loopRegion.ID)
	cur.continueTarget = backEdge.ID

	if len(cur.pendingBreaks) == 0 {
		// an infinite loop with no break is unreachable past this point;
		// model the fallthrough as a Trap rather than fabricating a
		// control region nothing can reach.
		trap := NewTrap(b.g, b.curControl)
		b.loops = b.loops[:len(b.loops)-1]
		b.curControl = trap.ID
		return endPC + instrLen(bytecode.FEVREND)
	}

	after := NewLoopMerge(b.g, cur.pendingBreaks...)
	for _, jmp := range cur.pendingBreaks {
		PatchJump(b.g, jmp, after.ID)
	}
	for _, jmp := range cur.pendingContinues {
		PatchJump(b.g, jmp, backEdge.ID)
	}

	b.loops = b.loops[:len(b.loops)-1]
	b.curControl = after.ID
	return endPC + instrLen(bytecode.FEVREND)
}
