package hir

import "math"

// This file implements the expression-node contracts. GVN-hashable
// literals are deduplicated per graph the same way bytecode.Builder
// interns constants (bytecode/builder.go Add/AddString): a small
// per-graph index keyed by value, checked before allocating a new
// node. Dedup is scoped to one Graph, matching the per-prototype scope
// of the bytecode constant tables it mirrors.

type gvnTables struct {
	float64s map[uint64]ID
	strings  map[string]ID
	ssos     map[*SSORef]ID
	booleans [2]ID // index 0 = false, 1 = true
	nilNode  ID
	args     map[int]ID
}

func tables(g *Graph) *gvnTables { return g.gvn }

// NewArg returns the (deduplicated) node reading argument index.
func NewArg(g *Graph, index int) *Node {
	t := tables(g)
	if id, ok := t.args[index]; ok {
		return g.Get(id)
	}
	n := g.NewNode(KArg)
	n.Index = index
	t.args[index] = n.ID
	return n
}

// NewFloat64 returns the (deduplicated, by exact bit pattern) real
// constant node.
func NewFloat64(g *Graph, v float64) *Node {
	t := tables(g)
	key := math.Float64bits(v)
	if id, ok := t.float64s[key]; ok {
		return g.Get(id)
	}
	n := g.NewNode(KFloat64)
	n.Float64Val = v
	t.float64s[key] = n.ID
	return n
}

func NewBoolean(g *Graph, v bool) *Node {
	t := tables(g)
	idx := 0
	if v {
		idx = 1
	}
	if t.booleans[idx] != NoID {
		return g.Get(t.booleans[idx])
	}
	n := g.NewNode(KBoolean)
	n.BoolVal = v
	t.booleans[idx] = n.ID
	return n
}

// NewLString returns the (deduplicated by content) long-string literal
// node.
func NewLString(g *Graph, s string) *Node {
	t := tables(g)
	if id, ok := t.strings[s]; ok {
		return g.Get(id)
	}
	n := g.NewNode(KLString)
	n.StringVal = s
	t.strings[s] = n.ID
	return n
}

// NewSString returns the (deduplicated by interned pointer) short
// string node, mirroring bytecode.SSORef's pointer-identity contract.
func NewSString(g *Graph, ref *SSORef) *Node {
	t := tables(g)
	if id, ok := t.ssos[ref]; ok {
		return g.Get(id)
	}
	n := g.NewNode(KSString)
	n.SSORef = ref
	t.ssos[ref] = n.ID
	return n
}

func NewNil(g *Graph) *Node {
	t := tables(g)
	if t.nilNode != NoID {
		return g.Get(t.nilNode)
	}
	n := g.NewNode(KNil)
	t.nilNode = n.ID
	return n
}

// NewUnary builds a polymorphic unary op node (NEGATE/NOT).
func NewUnary(g *Graph, op BinOp, operand *Node) *Node {
	n := g.NewNode(KUnary)
	n.Op = op
	g.AddOperand(n, operand.ID)
	return n
}

// NewBinary builds a polymorphic binary arithmetic/comparison node.
func NewBinary(g *Graph, op BinOp, lhs, rhs *Node) *Node {
	n := g.NewNode(KBinary)
	n.Op = op
	g.AddOperand(n, lhs.ID)
	g.AddOperand(n, rhs.ID)
	return n
}

// NewTernary builds the TERN lowering's node: cond ? lhs : rhs.
func NewTernary(g *Graph, cond, lhs, rhs *Node) *Node {
	n := g.NewNode(KTernary)
	n.Op = OpTernary
	g.AddOperand(n, cond.ID)
	g.AddOperand(n, lhs.ID)
	g.AddOperand(n, rhs.ID)
	return n
}

// NewPhi creates a phi bound to region. A loop phi may start with a
// single operand (incomplete) and gain a second via CompletePhi;
// NewCompletePhi is for the branch-merge case where both operands are
// already known.
func NewPhi(g *Graph, region ID, first *Node) *Node {
	n := g.NewNode(KPhi)
	n.Region = region
	g.AddOperand(n, first.ID)
	n.Complete = false
	return n
}

func NewCompletePhi(g *Graph, region ID, a, b *Node) *Node {
	n := g.NewNode(KPhi)
	n.Region = region
	g.AddOperand(n, a.ID)
	g.AddOperand(n, b.ID)
	n.Complete = true
	return n
}

// CompletePhi fills in a phi's pending second operand.
func CompletePhi(g *Graph, phi *Node, second *Node) {
	g.AddOperand(phi, second.ID)
	phi.Complete = true
}

// NewProjection extracts a sub-value of a multi-result node (e.g. an
// iterator's key vs. value half).
func NewProjection(g *Graph, input *Node, index int) *Node {
	n := g.NewNode(KProjection)
	n.Index = index
	g.AddOperand(n, input.ID)
	return n
}

// --- typed variants: added by later lowering passes, not produced by
// the initial builder, but must still be representable. ---

func NewFloat64Negate(g *Graph, operand *Node) *Node {
	n := g.NewNode(KFloat64Negate)
	n.Op = OpNeg
	g.AddOperand(n, operand.ID)
	return n
}

func NewFloat64Arithmetic(g *Graph, op BinOp, lhs, rhs *Node) *Node {
	n := g.NewNode(KFloat64Arithmetic)
	n.Op = op
	g.AddOperand(n, lhs.ID)
	g.AddOperand(n, rhs.ID)
	return n
}

func NewFloat64Bitwise(g *Graph, op BinOp, lhs, rhs *Node) *Node {
	n := g.NewNode(KFloat64Bitwise)
	n.Op = op
	g.AddOperand(n, lhs.ID)
	g.AddOperand(n, rhs.ID)
	return n
}

func NewFloat64Compare(g *Graph, op BinOp, lhs, rhs *Node) *Node {
	n := g.NewNode(KFloat64Compare)
	n.Op = op
	g.AddOperand(n, lhs.ID)
	g.AddOperand(n, rhs.ID)
	return n
}

func NewStringCompare(g *Graph, op BinOp, lhs, rhs *Node) *Node {
	n := g.NewNode(KStringCompare)
	n.Op = op
	g.AddOperand(n, lhs.ID)
	g.AddOperand(n, rhs.ID)
	return n
}

func NewSStringEq(g *Graph, lhs, rhs *Node) *Node {
	n := g.NewNode(KSStringEq)
	g.AddOperand(n, lhs.ID)
	g.AddOperand(n, rhs.ID)
	return n
}

func NewSStringNe(g *Graph, lhs, rhs *Node) *Node {
	n := g.NewNode(KSStringNe)
	g.AddOperand(n, lhs.ID)
	g.AddOperand(n, rhs.ID)
	return n
}

func NewBooleanNot(g *Graph, operand *Node) *Node {
	n := g.NewNode(KBooleanNot)
	n.Op = OpNot
	g.AddOperand(n, operand.ID)
	return n
}

func NewBooleanLogic(g *Graph, op BinOp, lhs, rhs *Node) *Node {
	n := g.NewNode(KBooleanLogic)
	n.Op = op
	g.AddOperand(n, lhs.ID)
	g.AddOperand(n, rhs.ID)
	return n
}

// NewBox wraps value with a type-kind tag.
func NewBox(g *Graph, value *Node, kind TypeKind) *Node {
	n := g.NewNode(KBox)
	n.TypeKind = kind
	g.AddOperand(n, value.ID)
	return n
}

// NewUnboxNode eliminates a trivial Box/Unbox pair on construction:
// NewUnboxNode(graph, Box(v,k), k) returns v directly instead of
// wrapping it again.
func NewUnboxNode(g *Graph, value *Node, kind TypeKind) *Node {
	if value.Kind == KBox && value.TypeKind == kind {
		return g.Get(value.Operands[0])
	}
	n := g.NewNode(KUnbox)
	n.TypeKind = kind
	g.AddOperand(n, value.ID)
	return n
}

func NewCastToBoolean(g *Graph, value *Node) *Node {
	n := g.NewNode(KCastToBoolean)
	n.TypeKind = TypeBoolean
	g.AddOperand(n, value.ID)
	return n
}

// NewTestType builds a guard test, compared structurally by (kind,
// object).
func NewTestType(g *Graph, kind TypeKind, object *Node) *Node {
	n := g.NewNode(KTestType)
	n.TypeKind = kind
	g.AddOperand(n, object.ID)
	return n
}

// NewGuard pairs a test with the checkpoint to deoptimize to if it
// fails.
func NewGuard(g *Graph, test, checkpoint *Node) *Node {
	n := g.NewNode(KGuard)
	g.AddOperand(n, test.ID)
	g.AddOperand(n, checkpoint.ID)
	return n
}

// NewStackSlot is one child of a Checkpoint: the live value at a given
// interpreter register index at the point of capture.
func NewStackSlot(g *Graph, value *Node, index int) *Node {
	n := g.NewNode(KStackSlot)
	n.Index = index
	g.AddOperand(n, value.ID)
	return n
}

// NewCheckpoint captures the full set of live stack slots for later
// deoptimization.
func NewCheckpoint(g *Graph, slots []*Node) *Node {
	n := g.NewNode(KCheckpoint)
	for _, s := range slots {
		g.AddOperand(n, s.ID)
	}
	return n
}

// --- list/object/closure literal construction ---
//
// These mirror the Generator's LOADLIST*/NEWLIST/ADDLIST and
// LOADOBJ*/NEWOBJ/ADDOBJ/LOADCLS/INITCLS families (bytecode/opcode.go).
// They are pure value nodes: building a list or object literal has no
// externally observable effect until one of its elements aliases
// something outside the literal, which this compiler core does not
// track — that aliasing analysis belongs to the external GC/object
// layer.

func NewList(g *Graph, elems []*Node) *Node {
	n := g.NewNode(KNewList)
	for _, e := range elems {
		g.AddOperand(n, e.ID)
	}
	return n
}

// AppendList grows an in-progress list literal by one element,
// returning the (same) list node for chaining (mirrors ADDLIST).
func AppendList(g *Graph, list *Node, elem *Node) *Node {
	g.AddOperand(list, elem.ID)
	return list
}

func NewObject(g *Graph, keyVals []*Node) *Node {
	n := g.NewNode(KNewObject)
	for _, kv := range keyVals {
		g.AddOperand(n, kv.ID)
	}
	return n
}

func AppendObject(g *Graph, obj *Node, key, val *Node) *Node {
	g.AddOperand(obj, key.ID)
	g.AddOperand(obj, val.ID)
	return obj
}

// NewClosure references a compiled sub-prototype by table index
// (LOADCLS); InitClosure binds its upvalues once the enclosing frame's
// captures are known (INITCLS).
func NewClosure(g *Graph, protoIndex int) *Node {
	n := g.NewNode(KClosure)
	n.Index = protoIndex
	return n
}

func InitClosure(g *Graph, closure *Node, upvalues []*Node) *Node {
	for _, uv := range upvalues {
		g.AddOperand(closure, uv.ID)
	}
	return closure
}

// --- memory-observing value nodes (GGET/GSET/UVGET/UVSET/PROPGET/
// PROPSET/IDXGET/IDXSET/CALL/iterator protocol) ---
//
// Each of these is a plain data node carrying its own operands; the
// caller (GraphBuilder) is responsible for threading it onto the
// effect chain via NewWriteEffect/NewReadEffect (effect.go), since only
// the builder knows the current region and effect-chain tip.

func NewGGet(g *Graph, name string) *Node {
	n := g.NewNode(KGGet)
	n.GlobalName = name
	return n
}

func NewGSet(g *Graph, name string, value *Node) *Node {
	n := g.NewNode(KGSet)
	n.GlobalName = name
	g.AddOperand(n, value.ID)
	return n
}

func NewUVGet(g *Graph, slot int) *Node {
	n := g.NewNode(KUVGet)
	n.Index = slot
	return n
}

func NewUVSet(g *Graph, slot int, value *Node) *Node {
	n := g.NewNode(KUVSet)
	n.Index = slot
	g.AddOperand(n, value.ID)
	return n
}

func NewPropGet(g *Graph, object *Node, key string) *Node {
	n := g.NewNode(KPropGet)
	n.StringVal = key
	g.AddOperand(n, object.ID)
	return n
}

func NewPropSet(g *Graph, object *Node, key string, value *Node) *Node {
	n := g.NewNode(KPropSet)
	n.StringVal = key
	g.AddOperand(n, object.ID)
	g.AddOperand(n, value.ID)
	return n
}

func NewIdxGet(g *Graph, object, index *Node) *Node {
	n := g.NewNode(KIdxGet)
	g.AddOperand(n, object.ID)
	g.AddOperand(n, index.ID)
	return n
}

func NewIdxSet(g *Graph, object, index, value *Node) *Node {
	n := g.NewNode(KIdxSet)
	g.AddOperand(n, object.ID)
	g.AddOperand(n, index.ID)
	g.AddOperand(n, value.ID)
	return n
}

// NewCall builds a Call node over the callee and its argument list;
// MarkTailCall flags it once tail-call position has been detected.
func NewCall(g *Graph, callee *Node, args []*Node) *Node {
	n := g.NewNode(KCall)
	g.AddOperand(n, callee.ID)
	for _, a := range args {
		g.AddOperand(n, a.ID)
	}
	return n
}

func MarkTailCall(n *Node) { n.BoolVal = true }
func IsTailCall(n *Node) bool { return n.Kind == KCall && n.BoolVal }

// NewItrNew/NewItrNext/NewItrDeref implement the for-each iterator
// protocol (FESTART/FEEND/IDREF): ItrNew produces an opaque iterator
// value over a container, ItrNext advances it (and is its own
// MemoryWrite since iterator state is mutable), ItrDeref projects out
// the key/value pair IDREF loads.
func NewItrNew(g *Graph, container *Node) *Node {
	n := g.NewNode(KItrNew)
	g.AddOperand(n, container.ID)
	return n
}

func NewItrNext(g *Graph, iter *Node) *Node {
	n := g.NewNode(KItrNext)
	g.AddOperand(n, iter.ID)
	return n
}

func NewItrDeref(g *Graph, iter *Node) *Node {
	n := g.NewNode(KItrDeref)
	g.AddOperand(n, iter.ID)
	return n
}
