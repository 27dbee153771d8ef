package hir

// This file implements the effect chain: WriteEffect forms a doubly
// linked chain where a later write points *backwards* to the write it
// follows (NextWrite), ReadEffect attaches to the WriteEffect it
// observes, and EffectBarrier/EffectMerge/LoopEffectStart control how
// far a read may be forwarded across writes.
//
// NextBarrier walks NextWrite explicitly until it finds a node
// satisfying IsEffectBarrier or IsInitBarrier, rather than relying on
// any implicit loop termination.

// effectPayload lives on Node via the generic Operands/fields; by
// convention operand 0 of a WriteEffect-kind node is its NextWrite
// (the write that happened before it), except InitBarrier/
// EmptyWriteEffect/BranchStartEffect which start a fresh chain and
// carry no predecessor.

// NewInitBarrier seeds a new effect chain.
func NewInitBarrier(g *Graph, region ID) *Node {
	n := g.NewNode(KInitBarrier)
	g.Pin(n, region)
	return n
}

// NewEmptyWriteEffect is a neutral pass-through link with no
// observable write of its own.
func NewEmptyWriteEffect(g *Graph, prevWrite *Node, region ID) *Node {
	n := g.NewNode(KEmptyWriteEffect)
	g.AddOperand(n, prevWrite.ID)
	g.Pin(n, region)
	return n
}

// NewBranchStartEffect marks a control fan-out point in the effect
// chain without itself ordering anything.
func NewBranchStartEffect(g *Graph, prevWrite *Node, region ID) *Node {
	n := g.NewNode(KBranchStartEffect)
	g.AddOperand(n, prevWrite.ID)
	g.Pin(n, region)
	return n
}

// NewWriteEffect records a new observable write, chained after
// prevWrite — later writes point backwards to earlier writes.
func NewWriteEffect(g *Graph, prevWrite *Node, writer *Node, region ID) *Node {
	n := g.NewNode(KWriteEffect)
	g.AddOperand(n, prevWrite.ID)
	g.AddOperand(n, writer.ID)
	g.Pin(n, region)
	return n
}

// NextWrite returns the write this node chains after (operand 0 for
// every write-kind node).
func NextWrite(g *Graph, n *Node) *Node {
	if !n.IsWriteEffect() || len(n.Operands) == 0 {
		return nil
	}
	return g.Get(n.Operands[0])
}

// NewHardBarrier/NewSoftBarrier create EffectBarrier subtypes: a hard
// barrier refuses any code motion across it, a soft barrier may be
// crossed by independent reads.
func NewHardBarrier(g *Graph, prevWrite *Node, region ID) *Node {
	n := g.NewNode(KHardBarrier)
	g.AddOperand(n, prevWrite.ID)
	g.Pin(n, region)
	return n
}

func NewSoftBarrier(g *Graph, prevWrite *Node, region ID) *Node {
	n := g.NewNode(KSoftBarrier)
	g.AddOperand(n, prevWrite.ID)
	g.Pin(n, region)
	return n
}

// NewReadEffect attaches a memory read to the WriteEffect it observes,
// appending itself to that write's ref list.
func NewReadEffect(g *Graph, observes *Node, reader *Node) *Node {
	n := g.NewNode(KReadEffect)
	g.AddOperand(n, observes.ID)
	g.AddOperand(n, reader.ID)
	return n
}

// ObservedWrite returns the WriteEffect a ReadEffect watches.
func ObservedWrite(g *Graph, r *Node) *Node {
	if r.Kind != KReadEffect || len(r.Operands) == 0 {
		return nil
	}
	return g.Get(r.Operands[0])
}

// NewEffectMerge phi-joins two effect chains at a control merge.
func NewEffectMerge(g *Graph, lhs, rhs *Node, region ID) *Node {
	n := g.NewNode(KEffectMerge)
	g.AddOperand(n, lhs.ID)
	g.AddOperand(n, rhs.ID)
	g.Pin(n, region)
	return n
}

// NewLoopEffectStart opens a loop's own effect chain with a back-edge
// operand that starts out as the incoming state and is repointed later
// via SetBackwardEffect, closing
// the cycle once the loop body's final effect state is known. This
// prevents any read outside the loop from forwarding past a write
// inside it.
func NewLoopEffectStart(g *Graph, incoming *Node, region ID) *Node {
	n := g.NewNode(KLoopEffectStart)
	g.AddOperand(n, incoming.ID) // operand 0: effect state entering the loop
	g.AddOperand(n, incoming.ID) // operand 1: backward edge, patched below
	g.Pin(n, region)
	return n
}

// SetBackwardEffect patches a LoopEffectStart's back-edge (operand 1)
// once the loop body's final effect chain is known.
func SetBackwardEffect(g *Graph, loopStart *Node, backward *Node) {
	g.SetOperand(loopStart, 1, backward.ID)
}

// NextBarrier walks the effect chain from n until it finds a node that
// is itself a barrier or the chain's InitBarrier — the corrected
// semantics noted above, not the source's empty-bodied loop.
func NextBarrier(g *Graph, n *Node) *Node {
	cur := n
	for cur != nil {
		if cur.IsEffectBarrier() || cur.IsInitBarrier() {
			return cur
		}
		cur = NextWrite(g, cur)
	}
	return nil
}
