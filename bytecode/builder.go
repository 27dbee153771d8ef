package bytecode

import (
	"math"

	"github.com/dianpeng/lavascript/internal/diag"
	"github.com/dianpeng/lavascript/internal/trace"
	"github.com/dianpeng/lavascript/source"
)

// Builder owns a growing code buffer and its parallel metadata arrays.
// It is not safe for concurrent use; run independent Builders from
// independent goroutines instead (see internal/compilepool).
type Builder struct {
	protoString  string
	argumentSize int

	code       []Word
	sourceInfo []source.Span
	regOffset  []int

	realTable []float64
	realIndex map[uint64]int32

	stringTable []string
	stringIndex map[string]int32

	ssoPool     *SSOPool
	ssoTable    []*SSORef
	ssoIndex    map[*SSORef]int32

	upvalueSlots []UpvalueSlot

	Regs *Registers

	Diags *diag.Bag
}

// NewBuilder creates a Builder for one function. maxLocal is the
// argument+local register count reserved from the low end of the
// register file.
func NewBuilder(protoString string, argumentSize, maxLocal int, ssoPool *SSOPool, diags *diag.Bag) *Builder {
	if ssoPool == nil {
		ssoPool = NewSSOPool()
	}
	return &Builder{
		protoString:  protoString,
		argumentSize: argumentSize,
		realIndex:    make(map[uint64]int32),
		stringIndex:  make(map[string]int32),
		ssoPool:      ssoPool,
		ssoIndex:     make(map[*SSORef]int32),
		Regs:         NewRegisters(maxLocal),
		Diags:        diags,
	}
}

func (b *Builder) CodePosition() uint16 { return uint16(len(b.code)) }

// --- constant interning ---

// Add interns a real (float64) constant, deduplicated by exact bit
// pattern, bounded by KMaxLiteralSize.
func (b *Builder) Add(v float64, span source.Span) (int32, bool) {
	key := math.Float64bits(v)
	if idx, ok := b.realIndex[key]; ok {
		return idx, true
	}
	if len(b.realTable) >= KMaxLiteralSize {
		b.Diags.Add(diag.TooManyLiterals, span, "real constant table overflow (max %d)", KMaxLiteralSize)
		return 0, false
	}
	idx := int32(len(b.realTable))
	b.realTable = append(b.realTable, v)
	b.realIndex[key] = idx
	return idx, true
}

// AddString interns a long-string constant, deduplicated by content.
func (b *Builder) AddString(s string, span source.Span) (int32, bool) {
	if idx, ok := b.stringIndex[s]; ok {
		return idx, true
	}
	if len(b.stringTable) >= KMaxLiteralSize {
		b.Diags.Add(diag.TooManyLiterals, span, "string constant table overflow (max %d)", KMaxLiteralSize)
		return 0, false
	}
	idx := int32(len(b.stringTable))
	b.stringTable = append(b.stringTable, s)
	b.stringIndex[s] = idx
	return idx, true
}

// AddSSO interns a short string into the external SSO pool and records
// its identity in this prototype's SSO table, deduplicated by pointer
// identity.
func (b *Builder) AddSSO(s string, span source.Span) (int32, bool) {
	ref := b.ssoPool.Intern(s)
	if idx, ok := b.ssoIndex[ref]; ok {
		return idx, true
	}
	if len(b.ssoTable) >= KMaxLiteralSize {
		b.Diags.Add(diag.TooManyLiterals, span, "SSO table overflow (max %d)", KMaxLiteralSize)
		return 0, false
	}
	idx := int32(len(b.ssoTable))
	b.ssoTable = append(b.ssoTable, ref)
	b.ssoIndex[ref] = idx
	return idx, true
}

// AddUpValue appends an upvalue slot (append-only, bounded by
// KMaxUpValueSize).
func (b *Builder) AddUpValue(state UpvalueState, index uint16, span source.Span) (uint16, bool) {
	if len(b.upvalueSlots) >= KMaxUpValueSize {
		b.Diags.Add(diag.UpvalueOverflow, span, "more than %d upvalues captured", KMaxUpValueSize)
		return 0, false
	}
	slot := uint16(len(b.upvalueSlots))
	b.upvalueSlots = append(b.upvalueSlots, MakeUpvalueSlot(state, index))
	return slot, true
}

// --- emission ---

func (b *Builder) pushMeta(span source.Span) {
	b.sourceInfo = append(b.sourceInfo, span)
	b.regOffset = append(b.regOffset, b.Regs.LocalTop())
}

func (b *Builder) overflow(span source.Span) bool {
	if len(b.code) >= KMaxCodeLength {
		b.Diags.Add(diag.FunctionTooLong, span, "function body exceeds %d instructions", KMaxCodeLength)
		return true
	}
	return false
}

// EmitX emits a type-X (no operand) instruction.
func (b *Builder) EmitX(span source.Span, op Op) bool {
	if b.overflow(span) {
		return false
	}
	b.code = append(b.code, Word(op))
	b.pushMeta(span)
	return true
}

// EmitF emits a type-F (single 8-bit A) instruction.
func (b *Builder) EmitF(span source.Span, op Op, a uint8) bool {
	if b.overflow(span) {
		return false
	}
	b.code = append(b.code, Word(uint32(op)|uint32(a)<<8))
	b.pushMeta(span)
	return true
}

// EmitE emits a type-E (8-bit A, 8-bit B) instruction.
func (b *Builder) EmitE(span source.Span, op Op, a, c uint8) bool {
	if b.overflow(span) {
		return false
	}
	b.code = append(b.code, Word(uint32(op)|uint32(a)<<8|uint32(c)<<16))
	b.pushMeta(span)
	return true
}

// EmitD emits a type-D (8-bit A, 8-bit B, 8-bit C) instruction.
func (b *Builder) EmitD(span source.Span, op Op, a, c, d uint8) bool {
	if b.overflow(span) {
		return false
	}
	b.code = append(b.code, Word(uint32(op)|uint32(a)<<8|uint32(c)<<16|uint32(d)<<24))
	b.pushMeta(span)
	return true
}

// EmitC emits a type-C (16-bit A, 8-bit B) instruction.
func (b *Builder) EmitC(span source.Span, op Op, a uint16, c uint8) bool {
	if b.overflow(span) {
		return false
	}
	b.code = append(b.code, Word(uint32(op)|uint32(a)<<8|uint32(c)<<24))
	b.pushMeta(span)
	return true
}

// EmitB emits a type-B (8-bit A, 16-bit B) instruction, returning a
// Label over B's upper 16 bits for later patching (the JMPT/JMPF
// target, NEWLIST/NEWOBJ size, FSTART's initial loop target, etc).
func (b *Builder) EmitB(span source.Span, op Op, a uint8, c uint16) (Label, bool) {
	if b.overflow(span) {
		return Label{}, false
	}
	idx := len(b.code)
	b.code = append(b.code, Word(uint32(op)|uint32(a)<<8|uint32(c)<<16))
	b.pushMeta(span)
	return Label{builder: b, index: idx, typ: TypeB}, true
}

// EmitG emits a type-G (16-bit A) instruction, returning a Label over
// the 16 bits at byte offset 1 (JMP/BRK/CONT/FEVREND targets).
func (b *Builder) EmitG(span source.Span, op Op, a uint16) (Label, bool) {
	if b.overflow(span) {
		return Label{}, false
	}
	idx := len(b.code)
	b.code = append(b.code, Word(uint32(op)|uint32(a)<<8))
	b.pushMeta(span)
	return Label{builder: b, index: idx, typ: TypeG}, true
}

// EmitH emits a type-H instruction: a first word (8-bit A, 8-bit B,
// 8-bit C) followed by a trailing 32-bit D word holding the patchable
// loop-end target. Returns a Label over the trailing word.
func (b *Builder) EmitH(span source.Span, op Op, a, c, d uint8, dword uint32) (Label, bool) {
	if b.overflow(span) {
		return Label{}, false
	}
	b.code = append(b.code, Word(uint32(op)|uint32(a)<<8|uint32(c)<<16|uint32(d)<<24))
	b.pushMeta(span)
	if b.overflow(span) {
		return Label{}, false
	}
	dwordIdx := len(b.code)
	b.code = append(b.code, Word(dword))
	b.pushMeta(span)
	return Label{builder: b, index: dwordIdx, typ: TypeH}, true
}

// --- labels ---

// Label records where a jump target needs patching once the target PC
// is known. It is valid only while the originating Builder is still
// live.
type Label struct {
	builder *Builder
	index   int
	typ     Type
}

func (l Label) IsOk() bool { return l.builder != nil }

// Patch writes target into the correct bit slice for l's encoding: the
// upper 16 bits for type B, bits 8-23 for type G. Type H labels are
// patched with PatchDWord instead.
func (l Label) Patch(target uint16) {
	switch l.typ {
	case TypeB:
		w := l.builder.code[l.index]
		l.builder.code[l.index] = (w &^ 0xFFFF0000) | Word(uint32(target)<<16)
	case TypeG:
		w := l.builder.code[l.index]
		l.builder.code[l.index] = (w &^ 0x00FFFF00) | Word(uint32(target)<<8)
	default:
		panic("bytecode: Patch(uint16) called on a non-B/G label")
	}
}

// PatchDWord writes target into a type-H label's trailing 32-bit word.
func (l Label) PatchDWord(target uint32) {
	if l.typ != TypeH {
		panic("bytecode: PatchDWord called on a non-H label")
	}
	l.builder.code[l.index] = Word(target)
}

// --- finalisation ---

// Finalize produces an immutable Prototype from the builder's state.
// It fails (returning ok=false) whenever any diagnostic has been
// recorded in b.Diags, including one from an emit failure the caller
// ignored; the size bounds themselves are enforced by the per-emit
// checks above.
func (b *Builder) Finalize() (*Prototype, bool) {
	if !b.Diags.Ok() {
		return nil, false
	}
	p := &Prototype{
		ProtoString:     b.protoString,
		ArgumentSize:    b.argumentSize,
		MaxLocalVarSize: b.Regs.maxLocal,
		RealTable:       b.realTable,
		StringTable:     b.stringTable,
		SSOTable:        b.ssoTable,
		UpvalueTable:    b.upvalueSlots,
		Code:            b.code,
		SourceInfo:      b.sourceInfo,
		RegOffset:       b.regOffset,
	}
	if !p.CheckInvariant() {
		panic("bytecode: Builder produced a Prototype violating the parallel-array invariant")
	}
	trace.For(trace.Builder).Debug("finalized prototype",
		"proto", p.ProtoString, "instructions", len(p.Code), "locals", p.MaxLocalVarSize)
	return p, true
}
