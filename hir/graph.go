package hir

// Graph owns the arena for one function's (or one OSR entry's) HIR.
// Node storage is a single growable slice; IDs are indices into it. The
// whole arena is dropped at once when the graph goes out of scope —
// there is no per-node free, which is what makes cyclic phi/effect
// references safe without a GC.
type Graph struct {
	nodes []*Node

	Start ID
	End   ID

	// IsOSR marks a graph entered mid-function.
	IsOSR bool

	// gvn holds this graph's own literal-dedup tables.
	gvn *gvnTables
}

// NewGraph allocates an empty arena. Index 0 is reserved as NoID so a
// zero ID is never mistaken for node 0.
func NewGraph() *Graph {
	return &Graph{
		nodes: make([]*Node, 1, 64),
		gvn: &gvnTables{
			float64s: make(map[uint64]ID),
			strings:  make(map[string]ID),
			ssos:     make(map[*SSORef]ID),
			args:     make(map[int]ID),
		},
	}
}

// NewNode allocates a fresh node of the given kind and returns it.
func (g *Graph) NewNode(kind Kind) *Node {
	n := &Node{ID: ID(len(g.nodes)), Kind: kind}
	g.nodes = append(g.nodes, n)
	return n
}

func (g *Graph) Get(id ID) *Node {
	if id == NoID || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

func (g *Graph) Len() int { return len(g.nodes) - 1 }

// AddOperand appends input to user's operand list and records the
// reverse reference on input's ref list at the resulting slot.
func (g *Graph) AddOperand(user *Node, input ID) {
	slot := len(user.Operands)
	user.Operands = append(user.Operands, input)
	if in := g.Get(input); in != nil {
		in.Refs = append(in.Refs, Use{User: user.ID, Slot: slot})
	}
}

// SetOperand overwrites an existing operand slot, updating both
// endpoints' bookkeeping. Used by SetBackwardEffect to repoint a
// LoopEffectStart's back-edge operand.
func (g *Graph) SetOperand(user *Node, slot int, input ID) {
	old := user.Operands[slot]
	if oldNode := g.Get(old); oldNode != nil {
		oldNode.Refs = removeUse(oldNode.Refs, user.ID, slot)
	}
	user.Operands[slot] = input
	if in := g.Get(input); in != nil {
		in.Refs = append(in.Refs, Use{User: user.ID, Slot: slot})
	}
}

func removeUse(refs []Use, user ID, slot int) []Use {
	out := refs[:0]
	for _, u := range refs {
		if u.User == user && u.Slot == slot {
			continue
		}
		out = append(out, u)
	}
	return out
}

// Replace rewrites every use-site of old to point at replacement: each
// prior user's operand list is updated in place via the recorded slot,
// the ref lists are merged, and old's own operand/ref lists are cleared
// so it becomes unreferenced and unreferencing. Iterates old's operand
// list by slot rather than by value so a repeated operand (e.g. x+x)
// still unlinks both of its Use entries, not just the first match.
func (g *Graph) Replace(old, replacement ID) {
	oldNode := g.Get(old)
	if oldNode == nil || old == replacement {
		return
	}
	newNode := g.Get(replacement)
	for _, use := range oldNode.Refs {
		user := g.Get(use.User)
		if user == nil {
			continue
		}
		user.Operands[use.Slot] = replacement
		if newNode != nil {
			newNode.Refs = append(newNode.Refs, use)
		}
	}
	oldNode.Refs = nil
	for slot, opnd := range oldNode.Operands {
		if opndNode := g.Get(opnd); opndNode != nil {
			opndNode.Refs = removeUse(opndNode.Refs, old, slot)
		}
	}
	oldNode.Operands = nil
}

// SetNext links from→to along the control-flow edge, recording both
// the forward and backward edge.
func (g *Graph) SetNext(from, to ID) {
	fromNode, toNode := g.Get(from), g.Get(to)
	if fromNode != nil {
		fromNode.ControlOut = append(fromNode.ControlOut, to)
	}
	if toNode != nil {
		toNode.ControlIn = append(toNode.ControlIn, from)
	}
}

// Pin binds a side-effecting expression node to a control region.
func (g *Graph) Pin(n *Node, region ID) {
	n.Pin = region
	if r := g.Get(region); r != nil {
		n.PinIndex = len(r.Operands) // reuse Operands-length as a stable pin-list position marker
	}
}

// --- iteration orders ---

// BFS walks control-flow successors breadth-first from the graph's
// Start, visiting each node at most once.
func (g *Graph) BFS() []ID {
	if g.Start == NoID {
		return nil
	}
	seen := make(map[ID]bool)
	queue := []ID{g.Start}
	seen[g.Start] = true
	var order []ID
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		if n := g.Get(id); n != nil {
			for _, succ := range n.ControlOut {
				if !seen[succ] {
					seen[succ] = true
					queue = append(queue, succ)
				}
			}
		}
	}
	return order
}

// PostOrder walks control-flow from Start, emitting each node after
// all its successors (ignoring edges back to an already-on-stack
// ancestor, i.e. loop back-edges).
func (g *Graph) PostOrder() []ID {
	seen := make(map[ID]bool)
	onStack := make(map[ID]bool)
	var order []ID
	var visit func(id ID)
	visit = func(id ID) {
		if id == NoID || seen[id] || onStack[id] {
			return
		}
		onStack[id] = true
		if n := g.Get(id); n != nil {
			for _, succ := range n.ControlOut {
				visit(succ)
			}
		}
		onStack[id] = false
		seen[id] = true
		order = append(order, id)
	}
	visit(g.Start)
	return order
}

// ReversePostOrder is PostOrder reversed — the conventional forward
// scheduling order for a control-flow graph.
func (g *Graph) ReversePostOrder() []ID {
	po := g.PostOrder()
	out := make([]ID, len(po))
	for i, id := range po {
		out[len(po)-1-i] = id
	}
	return out
}
