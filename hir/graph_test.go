package hir

import "testing"

func TestNewGraphReservesNoID(t *testing.T) {
	g := NewGraph()
	if g.Len() != 0 {
		t.Fatalf("want empty arena, got Len()=%d", g.Len())
	}
	if g.Get(NoID) != nil {
		t.Fatal("Get(NoID) must return nil")
	}
}

func TestNewNodeAssignsSequentialIDs(t *testing.T) {
	g := NewGraph()
	a := g.NewNode(KFloat64)
	b := g.NewNode(KBoolean)
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("want IDs 1,2 got %d,%d", a.ID, b.ID)
	}
	if g.Len() != 2 {
		t.Fatalf("want Len()=2, got %d", g.Len())
	}
	if g.Get(a.ID) != a || g.Get(b.ID) != b {
		t.Fatal("Get must return the same pointer NewNode returned")
	}
}

// AddOperand keeps both the operand list and the reverse ref list in
// sync.
func TestAddOperandRecordsReverseRef(t *testing.T) {
	g := NewGraph()
	lhs := NewFloat64(g, 1)
	rhs := NewFloat64(g, 2)
	bin := NewBinary(g, OpAdd, lhs, rhs)

	if len(bin.Operands) != 2 || bin.Operands[0] != lhs.ID || bin.Operands[1] != rhs.ID {
		t.Fatalf("want operands [lhs,rhs], got %v", bin.Operands)
	}
	if len(lhs.Refs) != 1 || lhs.Refs[0] != (Use{User: bin.ID, Slot: 0}) {
		t.Fatalf("want lhs.Refs == [{bin,0}], got %v", lhs.Refs)
	}
	if len(rhs.Refs) != 1 || rhs.Refs[0] != (Use{User: bin.ID, Slot: 1}) {
		t.Fatalf("want rhs.Refs == [{bin,1}], got %v", rhs.Refs)
	}
}

func TestSetOperandMovesReverseRef(t *testing.T) {
	g := NewGraph()
	a := NewFloat64(g, 1)
	b := NewFloat64(g, 2)
	c := NewFloat64(g, 3)
	bin := NewBinary(g, OpAdd, a, b)

	g.SetOperand(bin, 1, c.ID)
	if bin.Operands[1] != c.ID {
		t.Fatalf("want operand 1 == c, got %d", bin.Operands[1])
	}
	if len(b.Refs) != 0 {
		t.Fatalf("want b's ref removed, got %v", b.Refs)
	}
	if len(c.Refs) != 1 || c.Refs[0].User != bin.ID {
		t.Fatalf("want c referenced by bin, got %v", c.Refs)
	}
}

func TestReplaceRewritesAllUseSites(t *testing.T) {
	g := NewGraph()
	orig := NewFloat64(g, 1)
	other := NewFloat64(g, 2)
	u1 := NewUnary(g, OpNeg, orig)
	u2 := NewBinary(g, OpAdd, orig, other)

	replacement := NewFloat64(g, 99)
	g.Replace(orig.ID, replacement.ID)

	if u1.Operands[0] != replacement.ID {
		t.Fatalf("want u1's operand rewritten to replacement, got %d", u1.Operands[0])
	}
	if u2.Operands[0] != replacement.ID {
		t.Fatalf("want u2's operand 0 rewritten to replacement, got %d", u2.Operands[0])
	}
	if u2.Operands[1] != other.ID {
		t.Fatalf("want u2's operand 1 untouched, got %d", u2.Operands[1])
	}
	if len(orig.Refs) != 0 {
		t.Fatalf("want orig to have no remaining refs, got %v", orig.Refs)
	}
	if len(orig.Operands) != 0 {
		t.Fatalf("want orig's own operand list cleared, got %v", orig.Operands)
	}
	if len(replacement.Refs) != 2 {
		t.Fatalf("want replacement to have inherited both use-sites, got %v", replacement.Refs)
	}
}

// When a node appears twice in the same operand list (e.g. x+x), both
// Use entries must be unlinked, not just the first match.
func TestReplaceHandlesRepeatedOperand(t *testing.T) {
	g := NewGraph()
	orig := NewFloat64(g, 1)
	bin := NewBinary(g, OpAdd, orig, orig)

	if len(orig.Refs) != 2 {
		t.Fatalf("want orig referenced twice before Replace, got %v", orig.Refs)
	}

	replacement := NewFloat64(g, 99)
	g.Replace(orig.ID, replacement.ID)

	if bin.Operands[0] != replacement.ID || bin.Operands[1] != replacement.ID {
		t.Fatalf("want both operands rewritten to replacement, got %v", bin.Operands)
	}
	if len(orig.Refs) != 0 {
		t.Fatalf("want orig to have no remaining refs, got %v", orig.Refs)
	}
	if len(replacement.Refs) != 2 {
		t.Fatalf("want replacement to have inherited both use-sites, got %v", replacement.Refs)
	}
}

func TestReplaceNoOpWhenSameID(t *testing.T) {
	g := NewGraph()
	n := NewFloat64(g, 1)
	before := len(n.Refs)
	g.Replace(n.ID, n.ID)
	if len(n.Refs) != before {
		t.Fatal("Replace(x, x) must be a no-op")
	}
}

func TestSetNextRecordsBothEdgeDirections(t *testing.T) {
	g := NewGraph()
	start := NewStart(g)
	region := NewRegion(g, start.ID)

	if len(start.ControlOut) != 1 || start.ControlOut[0] != region.ID {
		t.Fatalf("want start.ControlOut == [region], got %v", start.ControlOut)
	}
	if len(region.ControlIn) != 1 || region.ControlIn[0] != start.ID {
		t.Fatalf("want region.ControlIn == [start], got %v", region.ControlIn)
	}
}

// BFS/PostOrder/ReversePostOrder must each visit every control-reachable
// node exactly once, and ReversePostOrder must be PostOrder reversed.
func TestIterationOrdersVisitOnce(t *testing.T) {
	g := NewGraph()
	start := NewStart(g)
	ifNode := NewIf(g, start.ID, NewBoolean(g, true))
	ifTrue := NewIfTrue(g, ifNode.ID)
	ifFalse := NewIfFalse(g, ifNode.ID)
	merge := NewIfMerge(g, ifTrue.ID, ifFalse.ID)
	NewEnd(g, merge.ID)

	bfs := g.BFS()
	seen := make(map[ID]bool)
	for _, id := range bfs {
		if seen[id] {
			t.Fatalf("BFS visited %d twice", id)
		}
		seen[id] = true
	}
	if len(bfs) != 6 {
		t.Fatalf("want 6 nodes visited (start,if,true,false,merge,end), got %d: %v", len(bfs), bfs)
	}
	if bfs[0] != start.ID {
		t.Fatalf("want BFS to start at Start, got %v", bfs[0])
	}

	po := g.PostOrder()
	if len(po) != len(bfs) {
		t.Fatalf("want PostOrder to visit the same node count as BFS, got %d vs %d", len(po), len(bfs))
	}
	if po[len(po)-1] != start.ID {
		t.Fatalf("want PostOrder's last node to be Start, got %v", po[len(po)-1])
	}

	rpo := g.ReversePostOrder()
	if len(rpo) != len(po) {
		t.Fatal("ReversePostOrder must have the same length as PostOrder")
	}
	for i, id := range rpo {
		if id != po[len(po)-1-i] {
			t.Fatalf("ReversePostOrder is not PostOrder reversed at index %d", i)
		}
	}
	if rpo[0] != start.ID {
		t.Fatalf("want ReversePostOrder to start at Start, got %v", rpo[0])
	}
}

// A loop back-edge must not make PostOrder recurse forever: once a node
// is on the current DFS stack it is skipped, not re-descended into.
func TestPostOrderIgnoresBackEdges(t *testing.T) {
	g := NewGraph()
	start := NewStart(g)
	header := NewLoopHeader(g, start.ID, NewBoolean(g, true))
	loop := NewLoop(g, header.ID)
	exit := NewLoopExit(g, loop.ID, NewBoolean(g, true))
	g.SetNext(exit.ID, header.ID) // back-edge
	merge := NewLoopMerge(g, header.ID)
	NewEnd(g, merge.ID)

	po := g.PostOrder()
	if len(po) == 0 {
		t.Fatal("want a non-empty post-order")
	}
	seen := make(map[ID]bool)
	for _, id := range po {
		if seen[id] {
			t.Fatalf("PostOrder visited %d twice despite the back-edge", id)
		}
		seen[id] = true
	}
}
