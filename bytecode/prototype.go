package bytecode

import "github.com/dianpeng/lavascript/source"

// Word is one 32-bit instruction slot. Type-H instructions occupy two
// consecutive words (the second being the trailing D operand).
type Word uint32

// UpvalueState tells the generator whether an upvalue resolves in the
// parent's register (EMBED) or the parent's own upvalue slot (DETACH).
type UpvalueState int

const (
	UVEmbed UpvalueState = iota
	UVDetach
)

// UpvalueSlot is one entry of the upvalue table; it packs (state,
// index) into a single 32-bit slot: state in the high 16 bits, index in
// the low 16 bits.
type UpvalueSlot uint32

func MakeUpvalueSlot(state UpvalueState, index uint16) UpvalueSlot {
	return UpvalueSlot(uint32(state)<<16 | uint32(index))
}

func (s UpvalueSlot) State() UpvalueState { return UpvalueState(s >> 16) }
func (s UpvalueSlot) Index() uint16       { return uint16(s) }

// SSORef is an opaque handle into an external, process-wide small-string
// pool: equality is pointer identity, and the compiler never inspects
// its contents. SSOPool below stands in for the GC/object layer that
// would normally own it.
type SSORef struct {
	content string
}

// Prototype is the compiled, immutable form of one function. Every
// field is fixed once Builder.Finalize succeeds.
type Prototype struct {
	ProtoString     string
	ArgumentSize    int
	MaxLocalVarSize int

	RealTable   []float64
	StringTable []string
	SSOTable    []*SSORef

	UpvalueTable []UpvalueSlot

	Code []Word

	// Parallel arrays indexed by instruction word: len(Code) ==
	// len(SourceInfo) == len(RegOffset).
	SourceInfo []source.Span
	RegOffset  []int
}

// CheckInvariant verifies the parallel-array length invariant above.
func (p *Prototype) CheckInvariant() bool {
	return len(p.Code) == len(p.SourceInfo) && len(p.Code) == len(p.RegOffset)
}
