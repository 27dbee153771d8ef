// Package hir builds the sea-of-nodes high-level IR: a dependence
// graph with control, data, and effect edges, translated from
// finalized bytecode using the liveness pre-pass (bytecode/liveness)
// to drive φ-insertion at branch merges and loop heads.
//
// A flat tagged-variant Node plus capability-check methods
// (IsControlFlow, IsWriteEffect, IsTest) stands in for what a deeper
// class hierarchy (Node, Expr, PhiNode, Phi, ...) would otherwise
// encode as distinct types.
package hir

// ID identifies a node within one Graph's arena. The zero value never
// denotes a real node (arenas start allocation at 1), so ID 0 doubles
// as "no node" without a separate sentinel type.
type ID uint32

const NoID ID = 0

// Kind is the flat tag distinguishing every node variant the source's
// inheritance hierarchy would otherwise encode as a distinct class.
type Kind uint16

const (
	KindInvalid Kind = iota

	// --- control flow ---
	KStart
	KRegion
	KIf
	KIfTrue
	KIfFalse
	KIfMerge
	KLoopHeader
	KLoop
	KLoopExit
	KLoopMerge
	KJump
	KReturn
	KTrap
	KSuccess
	KFail
	KEnd
	KOSRStart
	KOSREnd
	KInlineStart
	KInlineEnd

	// --- expression / data ---
	KArg
	KFloat64
	KBoolean
	KLString
	KSString
	KNil
	KUnary
	KBinary
	KTernary
	KPhi
	KProjection
	KFloat64Negate
	KFloat64Arithmetic
	KFloat64Bitwise
	KFloat64Compare
	KStringCompare
	KSStringEq
	KSStringNe
	KBooleanNot
	KBooleanLogic
	KBox
	KUnbox
	KCastToBoolean
	KTestType
	KGuard
	KCheckpoint
	KStackSlot
	KCall
	KGGet
	KGSet
	KUVGet
	KUVSet
	KPropGet
	KPropSet
	KIdxGet
	KIdxSet
	KItrNew
	KItrNext
	KItrDeref
	KOSRLoad
	KNewList
	KListAppend
	KNewObject
	KObjectAppend
	KClosure
	KInitClosure

	// --- effect / memory ---
	KWriteEffect
	KReadEffect
	KEffectBarrier
	KHardBarrier
	KSoftBarrier
	KEffectMerge
	KLoopEffectStart
	KInitBarrier
	KEmptyWriteEffect
	KBranchStartEffect
)

// Use records one use-site: a user node U that reads this node through
// U's operand list at position Slot. Pairing the user with the exact
// slot is what lets Replace rewrite the edge in O(1) instead of
// scanning U's whole operand list.
type Use struct {
	User ID
	Slot int
}

// Node is the single concrete representation for every node variant.
// Payload fields not meaningful for a given Kind stay zero; this costs
// a little memory per node in exchange for one Go type instead of N
// structurally-similar ones, which is what makes Replace/the ref-list
// machinery uniform.
type Node struct {
	ID   ID
	Kind Kind

	// Operands: ordered data/control inputs, depending on Kind. Stored
	// as a single slice so substitution (Replace) only ever touches one
	// place regardless of variant.
	Operands []ID

	// Refs: who-uses-me, the reverse reference list. Appended to on
	// AddOperand, spliced on Replace.
	Refs []Use

	// Control-flow predecessors (backward_edge) for region-like nodes;
	// empty for pure expression nodes.
	ControlIn []ID
	// Control-flow successors (forward_edge); populated by SetNext as
	// regions are linked during construction.
	ControlOut []ID

	// Pin: side-effecting expression nodes record which region they are
	// bound to.
	Pin       ID
	PinIndex  int

	// --- payload, interpreted per Kind ---
	Int64Val   int64
	Float64Val float64
	BoolVal    bool
	StringVal  string
	SSORef     *SSORef
	Index      int    // Arg index, Projection index, StackSlot index, OSRLoad slot
	TypeKind   TypeKind
	Op         BinOp // Unary/Binary/typed-variant operator
	GlobalName string
	PC         int // originating bytecode PC, for diagnostics/OSR

	// Region bound to a Phi (nil until fixed by the builder).
	Region ID

	// Complete marks a Phi that has received all its operands; an
	// incomplete Phi (holding only one operand, mid loop-header
	// construction) must not be read by anything outside the loop
	// header construction itself.
	Complete bool
}

// SSORef mirrors bytecode.SSORef's opaque, pointer-identity-compared
// handle.
type SSORef struct{ content string }

// TypeKind tags Box/Unbox/TestType/Cast nodes.
type TypeKind int

const (
	TypeUnknown TypeKind = iota
	TypeFloat64
	TypeBoolean
	TypeString
	TypeObject
	TypeList
	TypeNull
)

// BinOp enumerates the operator space shared by Unary/Binary/Ternary
// and their typed-variant descendants.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpLT
	OpLE
	OpGT
	OpGE
	OpEQ
	OpNE
	OpAnd
	OpOr
	OpNeg
	OpNot
	OpTernary
)

// IsControlFlow reports whether n belongs to the control-flow edge
// colour.
func (n *Node) IsControlFlow() bool {
	switch n.Kind {
	case KStart, KRegion, KIf, KIfTrue, KIfFalse, KIfMerge, KLoopHeader, KLoop,
		KLoopExit, KLoopMerge, KJump, KReturn, KTrap, KSuccess, KFail, KEnd,
		KOSRStart, KOSREnd, KInlineStart, KInlineEnd:
		return true
	}
	return false
}

// IsWriteEffect reports whether n participates in the effect chain as
// a write link.
func (n *Node) IsWriteEffect() bool {
	switch n.Kind {
	case KWriteEffect, KEffectBarrier, KHardBarrier, KSoftBarrier, KEffectMerge,
		KLoopEffectStart, KInitBarrier, KEmptyWriteEffect, KBranchStartEffect:
		return true
	}
	return false
}

// IsEffectBarrier reports whether n stops effect code-motion: effect
// chain walks follow NextWrite until a node satisfying IsEffectBarrier
// or IsInitBarrier is found.
func (n *Node) IsEffectBarrier() bool {
	switch n.Kind {
	case KEffectBarrier, KHardBarrier, KSoftBarrier:
		return true
	}
	return false
}

func (n *Node) IsInitBarrier() bool { return n.Kind == KInitBarrier }

// IsTest reports whether n is a guard/type-test node.
func (n *Node) IsTest() bool {
	return n.Kind == KTestType || n.Kind == KGuard
}

func (n *Node) IsPhi() bool { return n.Kind == KPhi }
