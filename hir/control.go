package hir

// This file builds the control-flow node contracts: each region exposes
// its backward edges (ControlIn), forward edges (ControlOut), a ref
// list (Refs, for uses of the region itself, e.g. by a Phi), and an
// operand list for data inputs such as If.condition.

// NewStart creates the graph's entry region. A non-OSR graph has
// exactly one; OSRStart is used instead for mid-function entry.
func NewStart(g *Graph) *Node {
	n := g.NewNode(KStart)
	g.Start = n.ID
	return n
}

func NewOSRStart(g *Graph) *Node {
	n := g.NewNode(KOSRStart)
	g.Start = n.ID
	g.IsOSR = true
	return n
}

func NewEnd(g *Graph, last ID) *Node {
	n := g.NewNode(KEnd)
	g.SetNext(last, n.ID)
	g.End = n.ID
	return n
}

func NewOSREnd(g *Graph, last ID) *Node {
	n := g.NewNode(KOSREnd)
	g.SetNext(last, n.ID)
	g.End = n.ID
	return n
}

// NewRegion creates a plain merge-free straight-line region following
// prev.
func NewRegion(g *Graph, prev ID) *Node {
	n := g.NewNode(KRegion)
	g.SetNext(prev, n.ID)
	return n
}

// NewIf gates cond at the end of region prev, returning the If node.
// Callers then build IfTrue/IfFalse successors from it.
func NewIf(g *Graph, prev ID, cond *Node) *Node {
	n := g.NewNode(KIf)
	g.SetNext(prev, n.ID)
	g.AddOperand(n, cond.ID)
	return n
}

func NewIfTrue(g *Graph, ifNode ID) *Node {
	n := g.NewNode(KIfTrue)
	g.SetNext(ifNode, n.ID)
	return n
}

func NewIfFalse(g *Graph, ifNode ID) *Node {
	n := g.NewNode(KIfFalse)
	g.SetNext(ifNode, n.ID)
	return n
}

// NewIfMerge joins a (possibly single) set of predecessor regions
// after an if/else.
func NewIfMerge(g *Graph, preds ...ID) *Node {
	n := g.NewNode(KIfMerge)
	for _, p := range preds {
		g.SetNext(p, n.ID)
	}
	return n
}

// NewLoopHeader is the inverted-loop entry test region: an If gating
// the loop body against the after-region.
func NewLoopHeader(g *Graph, prev ID, cond *Node) *Node {
	n := g.NewNode(KLoopHeader)
	g.SetNext(prev, n.ID)
	if cond != nil {
		g.AddOperand(n, cond.ID)
	}
	return n
}

// NewLoop creates the loop body region, entered from header.
func NewLoop(g *Graph, header ID) *Node {
	n := g.NewNode(KLoop)
	g.SetNext(header, n.ID)
	return n
}

// NewLoopExit is the loop's own exit test (FEND1/FEND2/FEEND), distinct
// from the entry LoopHeader because the exit condition depends on the
// loop's terminator opcode.
func NewLoopExit(g *Graph, prev ID, cond *Node) *Node {
	n := g.NewNode(KLoopExit)
	g.SetNext(prev, n.ID)
	if cond != nil {
		g.AddOperand(n, cond.ID)
	}
	return n
}

// NewLoopMerge is the after-loop region, joining the loop-header's
// false edge with every patched break edge.
func NewLoopMerge(g *Graph, preds ...ID) *Node {
	n := g.NewNode(KLoopMerge)
	for _, p := range preds {
		g.SetNext(p, n.ID)
	}
	return n
}

// NewJump represents a BRK/CONT; its target is unresolved until the
// enclosing loop closes and patches the pending edge, recorded on the
// loop's pending list in the meantime.
func NewJump(g *Graph, prev ID) *Node {
	n := g.NewNode(KJump)
	g.SetNext(prev, n.ID)
	return n
}

// PatchJump finalizes a previously-unresolved Jump's target.
func PatchJump(g *Graph, jump, target ID) {
	g.SetNext(jump, target)
}

func NewReturn(g *Graph, prev ID, value *Node) *Node {
	n := g.NewNode(KReturn)
	g.SetNext(prev, n.ID)
	if value != nil {
		g.AddOperand(n, value.ID)
	}
	return n
}

func NewTrap(g *Graph, prev ID) *Node {
	n := g.NewNode(KTrap)
	g.SetNext(prev, n.ID)
	return n
}

func NewSuccess(g *Graph, prev ID) *Node {
	n := g.NewNode(KSuccess)
	g.SetNext(prev, n.ID)
	return n
}

func NewFail(g *Graph, prev ID) *Node {
	n := g.NewNode(KFail)
	g.SetNext(prev, n.ID)
	return n
}

func NewInlineStart(g *Graph, prev ID) *Node {
	n := g.NewNode(KInlineStart)
	g.SetNext(prev, n.ID)
	return n
}

func NewInlineEnd(g *Graph, prev ID) *Node {
	n := g.NewNode(KInlineEnd)
	g.SetNext(prev, n.ID)
	return n
}

// NewOSRLoad reloads a live interpreter slot at an OSR entry point; one
// is materialised for each live slot at the OSR entry.
func NewOSRLoad(g *Graph, slot int) *Node {
	n := g.NewNode(KOSRLoad)
	n.Index = slot
	return n
}
