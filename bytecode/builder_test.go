package bytecode

import (
	"testing"

	"github.com/dianpeng/lavascript/internal/diag"
	"github.com/dianpeng/lavascript/source"
)

func newTestBuilder(maxLocal int) *Builder {
	return NewBuilder("test", 0, maxLocal, nil, &diag.Bag{})
}

// Code, SourceInfo, and RegOffset stay the same length after every
// emit.
func TestBuilderParallelArraysStayInSync(t *testing.T) {
	b := newTestBuilder(4)
	if !b.EmitX(source.Zero, RETNULL) {
		t.Fatal("EmitX failed")
	}
	if !b.EmitF(source.Zero, LOADNULL, 0) {
		t.Fatal("EmitF failed")
	}
	if !b.EmitD(source.Zero, IDXSET, 0, 1, 2) {
		t.Fatal("EmitD failed")
	}
	proto, ok := b.Finalize()
	if !ok {
		t.Fatal("Finalize failed")
	}
	if !proto.CheckInvariant() {
		t.Fatal("parallel-array invariant violated")
	}
	if len(proto.Code) != 3 {
		t.Fatalf("want 3 instructions, got %d", len(proto.Code))
	}
}

// A Label patched after emission lands in the exact bit range each
// encoding reserves for it, and nothing else in the word moves.
func TestLabelPatchBitExact(t *testing.T) {
	b := newTestBuilder(4)
	label, ok := b.EmitB(source.Zero, FSTART, 7, 0)
	if !ok {
		t.Fatal("EmitB failed")
	}
	label.Patch(0x1234)
	w := b.code[label.index]
	if Op(w&0xFF) != FSTART {
		t.Fatalf("opcode byte clobbered: got %v", Op(w&0xFF))
	}
	if uint8(w>>8) != 7 {
		t.Fatalf("A field clobbered: got %d", uint8(w>>8))
	}
	if uint16(w>>16) != 0x1234 {
		t.Fatalf("patched target wrong: got %#x", uint16(w>>16))
	}

	g, ok := b.EmitG(source.Zero, JMP, 0)
	if !ok {
		t.Fatal("EmitG failed")
	}
	g.Patch(0xABCD)
	w2 := b.code[g.index]
	if Op(w2&0xFF) != JMP {
		t.Fatalf("opcode byte clobbered: got %v", Op(w2&0xFF))
	}
	if uint16((w2>>8)&0xFFFF) != 0xABCD {
		t.Fatalf("patched target wrong: got %#x", uint16((w2>>8)&0xFFFF))
	}
}

// PatchDWord must write the H-type label's trailing word verbatim,
// leaving the preceding instruction word untouched.
func TestLabelPatchDWord(t *testing.T) {
	b := newTestBuilder(4)
	label, ok := b.EmitH(source.Zero, AND, 1, 2, 0, 0)
	if !ok {
		t.Fatal("EmitH failed")
	}
	firstWord := b.code[label.index-1]
	label.PatchDWord(0xDEADBEEF)
	if b.code[label.index-1] != firstWord {
		t.Fatal("PatchDWord touched the preceding instruction word")
	}
	if uint32(b.code[label.index]) != 0xDEADBEEF {
		t.Fatalf("want 0xDEADBEEF, got %#x", uint32(b.code[label.index]))
	}
}

// Constant pools dedup by value/content/identity, never growing for a
// repeated literal.
func TestConstantPoolDedup(t *testing.T) {
	b := newTestBuilder(4)
	i1, _ := b.Add(3.14, source.Zero)
	i2, _ := b.Add(3.14, source.Zero)
	if i1 != i2 {
		t.Fatalf("real constant not deduped: %d != %d", i1, i2)
	}
	if len(b.realTable) != 1 {
		t.Fatalf("want 1 real constant, got %d", len(b.realTable))
	}

	s1, _ := b.AddString("hello", source.Zero)
	s2, _ := b.AddString("hello", source.Zero)
	if s1 != s2 || len(b.stringTable) != 1 {
		t.Fatalf("string constant not deduped")
	}

	sso1, _ := b.AddSSO("x", source.Zero)
	sso2, _ := b.AddSSO("x", source.Zero)
	if sso1 != sso2 || len(b.ssoTable) != 1 {
		t.Fatalf("SSO constant not deduped")
	}
}

func TestConstantPoolOverflow(t *testing.T) {
	b := newTestBuilder(4)
	for i := 0; i < KMaxLiteralSize; i++ {
		if _, ok := b.Add(float64(i), source.Zero); !ok {
			t.Fatalf("unexpected overflow at %d", i)
		}
	}
	if _, ok := b.Add(float64(KMaxLiteralSize), source.Zero); ok {
		t.Fatal("want overflow past KMaxLiteralSize")
	}
	if b.Diags.Ok() {
		t.Fatal("want a TooManyLiterals diagnostic recorded")
	}
}

func TestUpvalueOverflow(t *testing.T) {
	b := newTestBuilder(4)
	for i := 0; i < KMaxUpValueSize; i++ {
		if _, ok := b.AddUpValue(UVEmbed, uint16(i), source.Zero); !ok {
			t.Fatalf("unexpected overflow at %d", i)
		}
	}
	if _, ok := b.AddUpValue(UVEmbed, 0, source.Zero); ok {
		t.Fatal("want UpvalueOverflow")
	}
}

// Register allocator: Reserve/Leave is a stack; Grab always returns the
// lowest free temporary, Drop restores it in sorted position.
func TestRegistersReserveLeaveStack(t *testing.T) {
	r := NewRegisters(4)
	base, ok := r.Reserve(2)
	if !ok || base != 0 {
		t.Fatalf("want base 0, got %d ok=%v", base, ok)
	}
	inner, ok := r.Reserve(2)
	if !ok || inner != 2 {
		t.Fatalf("want inner base 2, got %d", inner)
	}
	r.Leave(inner)
	r.Leave(base)
	if r.LocalTop() != 0 {
		t.Fatalf("want LocalTop back to 0, got %d", r.LocalTop())
	}
}

func TestRegistersLeaveWrongOrderPanics(t *testing.T) {
	r := NewRegisters(4)
	base, _ := r.Reserve(1)
	_, _ = r.Reserve(1)
	defer func() {
		if recover() == nil {
			t.Fatal("want panic leaving scopes out of order")
		}
	}()
	r.Leave(base)
}

func TestRegistersGrabDropLowestFirst(t *testing.T) {
	r := NewRegisters(0)
	a, _ := r.Grab()
	b, _ := r.Grab()
	if b != a+1 {
		t.Fatalf("want consecutive grabs, got %d then %d", a, b)
	}
	r.Drop(a)
	r.Drop(b)
	c, _ := r.Grab()
	if c != a {
		t.Fatalf("want Grab to return lowest freed register %d, got %d", a, c)
	}
}

func TestRegistersDropUngrantedPanics(t *testing.T) {
	r := NewRegisters(0)
	defer func() {
		if recover() == nil {
			t.Fatal("want panic dropping a register that was never granted")
		}
	}()
	r.Drop(200)
}

// Finalize must refuse to hand back a Prototype once any diagnostic has
// been recorded: no partial Prototype is ever handed further down the
// pipeline.
func TestFinalizeFailsWithPendingDiagnostics(t *testing.T) {
	b := newTestBuilder(4)
	b.Diags.Add(diag.RegisterOverflow, source.Zero, "forced failure")
	if _, ok := b.Finalize(); ok {
		t.Fatal("want Finalize to fail once a diagnostic is recorded")
	}
}
