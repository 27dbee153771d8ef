package hir

import (
	"fmt"
	"strings"
)

var kindNames = map[Kind]string{
	KStart: "Start", KRegion: "Region", KIf: "If", KIfTrue: "IfTrue", KIfFalse: "IfFalse",
	KIfMerge: "IfMerge", KLoopHeader: "LoopHeader", KLoop: "Loop", KLoopExit: "LoopExit",
	KLoopMerge: "LoopMerge", KJump: "Jump", KReturn: "Return", KTrap: "Trap",
	KSuccess: "Success", KFail: "Fail", KEnd: "End", KOSRStart: "OSRStart", KOSREnd: "OSREnd",
	KInlineStart: "InlineStart", KInlineEnd: "InlineEnd",

	KArg: "Arg", KFloat64: "Float64", KBoolean: "Boolean", KLString: "LString",
	KSString: "SString", KNil: "Nil", KUnary: "Unary", KBinary: "Binary",
	KTernary: "Ternary", KPhi: "Phi", KProjection: "Projection",
	KFloat64Negate: "Float64Negate", KFloat64Arithmetic: "Float64Arithmetic",
	KFloat64Bitwise: "Float64Bitwise", KFloat64Compare: "Float64Compare",
	KStringCompare: "StringCompare", KSStringEq: "SStringEq", KSStringNe: "SStringNe",
	KBooleanNot: "BooleanNot", KBooleanLogic: "BooleanLogic",
	KBox: "Box", KUnbox: "Unbox", KCastToBoolean: "CastToBoolean", KTestType: "TestType",
	KGuard: "Guard", KCheckpoint: "Checkpoint", KStackSlot: "StackSlot",
	KCall: "Call", KGGet: "GGet", KGSet: "GSet", KUVGet: "UVGet", KUVSet: "UVSet",
	KPropGet: "PropGet", KPropSet: "PropSet", KIdxGet: "IdxGet", KIdxSet: "IdxSet",
	KItrNew: "ItrNew", KItrNext: "ItrNext", KItrDeref: "ItrDeref", KOSRLoad: "OSRLoad",
	KNewList: "NewList", KListAppend: "ListAppend", KNewObject: "NewObject",
	KObjectAppend: "ObjectAppend", KClosure: "Closure", KInitClosure: "InitClosure",

	KWriteEffect: "WriteEffect", KReadEffect: "ReadEffect", KEffectBarrier: "EffectBarrier",
	KHardBarrier: "HardBarrier", KSoftBarrier: "SoftBarrier", KEffectMerge: "EffectMerge",
	KLoopEffectStart: "LoopEffectStart", KInitBarrier: "InitBarrier",
	KEmptyWriteEffect: "EmptyWriteEffect", KBranchStartEffect: "BranchStartEffect",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "?"
}

// Dump renders g as a flat node listing in arena (creation) order, for
// diagnostic use by cmd/lavac-dump. Arena order is used rather than a
// control-flow iteration order because it is the only order that
// includes pure data nodes never reached by a ControlOut walk.
func Dump(g *Graph) string {
	var sb strings.Builder
	for id := ID(1); int(id) <= g.Len(); id++ {
		n := g.Get(id)
		fmt.Fprintf(&sb, "%4d: %-14s", n.ID, n.Kind)
		if len(n.Operands) > 0 {
			fmt.Fprintf(&sb, " ops=%v", n.Operands)
		}
		if len(n.ControlIn) > 0 {
			fmt.Fprintf(&sb, " cin=%v", n.ControlIn)
		}
		switch n.Kind {
		case KFloat64:
			fmt.Fprintf(&sb, " val=%g", n.Float64Val)
		case KBoolean:
			fmt.Fprintf(&sb, " val=%v", n.BoolVal)
		case KLString:
			fmt.Fprintf(&sb, " val=%q", n.StringVal)
		case KArg, KProjection, KStackSlot, KOSRLoad:
			fmt.Fprintf(&sb, " idx=%d", n.Index)
		case KGGet, KGSet:
			fmt.Fprintf(&sb, " name=%q", n.GlobalName)
		case KBinary, KUnary, KTernary, KFloat64Arithmetic, KFloat64Compare, KBooleanLogic:
			fmt.Fprintf(&sb, " op=%d", n.Op)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
