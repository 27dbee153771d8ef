// Package liveness implements the bytecode liveness/loop analysis that runs as a pre-pass before sea-of-nodes graph
// construction. It walks a finalised bytecode.Prototype once, in the
// same structured recursive-descent shape the generator used to emit
// it (if/then/else, short-circuit and/or/ternary, the three for-loop
// families), and produces two PC-indexed maps: BasicBlockVariable
// (which registers a basic block defines) and LoopHeaderInfo (which
// registers/upvalues/globals a loop body modifies — the trigger set
// for φ-insertion at loop headers).
//
// Basic-block and loop boundaries are discovered by recognising the
// same structural shapes bytecode.Generator emits them in.
package liveness

import (
	"sort"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/dianpeng/lavascript/bytecode"
)

// BasicBlockVariable records which registers a basic block defines,
// chained to its parent scope.
type BasicBlockVariable struct {
	Prev       *BasicBlockVariable
	Defined    map[int]bool
	Start, End int
}

func newBasicBlockVariable(prev *BasicBlockVariable, start int) *BasicBlockVariable {
	return &BasicBlockVariable{Prev: prev, Defined: make(map[int]bool), Start: start}
}

// IsAlive reports whether reg is defined in this block or any ancestor.
func (b *BasicBlockVariable) IsAlive(reg int) bool {
	for s := b; s != nil; s = s.Prev {
		if s.Defined[reg] {
			return true
		}
	}
	return false
}

// LoopModifiedVar is the set of names a loop body can write to — the
// φ-insertion trigger set.
type LoopModifiedVar struct {
	Vars     map[int]bool
	Upvalues map[int]bool
	Globals  map[string]bool
}

func newLoopModifiedVar() LoopModifiedVar {
	return LoopModifiedVar{
		Vars:     make(map[int]bool),
		Upvalues: make(map[int]bool),
		Globals:  make(map[string]bool),
	}
}

// SortedVars returns the modified local-register set in ascending
// order, for deterministic φ-insertion order in the graph builder.
func (m LoopModifiedVar) SortedVars() []int {
	out := maps.Keys(m.Vars)
	slices.Sort(out)
	return out
}

// LoopHeaderInfo captures one loop's nesting and modified-variable
// information.
type LoopHeaderInfo struct {
	Prev       *LoopHeaderInfo
	BB         *BasicBlockVariable
	Start, End int
	Phi        LoopModifiedVar
}

// EnclosedBB is the basic block lexically enclosing this loop (the
// scope the loop header itself was built in).
func (l *LoopHeaderInfo) EnclosedBB() *BasicBlockVariable { return l.BB }

// Analysis is the complete result of analyzing one Prototype: two
// PC-indexed maps plus sorted key slices, for the LookUp* methods (by
// exact PC) and the *Containing methods (for an arbitrary interior PC).
type Analysis struct {
	basicBlocks    map[int]*BasicBlockVariable
	loopHeaders    map[int]*LoopHeaderInfo
	bbStarts       []int
	loopStarts     []int
	MaxLocalVarSize int
}

// LookUpBasicBlock returns the BasicBlockVariable that starts exactly
// at pc, or nil.
func (a *Analysis) LookUpBasicBlock(pc int) *BasicBlockVariable { return a.basicBlocks[pc] }

// LookUpLoopHeader returns the LoopHeaderInfo that starts exactly at
// pc, or nil.
func (a *Analysis) LookUpLoopHeader(pc int) *LoopHeaderInfo { return a.loopHeaders[pc] }

// BasicBlockContaining finds the innermost basic block whose
// [Start,End) range contains pc (for callers, like the HIR builder,
// that only know an interior PC).
func (a *Analysis) BasicBlockContaining(pc int) *BasicBlockVariable {
	i := sort.SearchInts(a.bbStarts, pc+1) - 1
	for i >= 0 {
		bb := a.basicBlocks[a.bbStarts[i]]
		if pc >= bb.Start && pc < bb.End {
			return bb
		}
		i--
	}
	return nil
}

// LoopHeaderContaining is BasicBlockContaining's counterpart for loops.
func (a *Analysis) LoopHeaderContaining(pc int) *LoopHeaderInfo {
	i := sort.SearchInts(a.loopStarts, pc+1) - 1
	for i >= 0 {
		lh := a.loopHeaders[a.loopStarts[i]]
		if pc >= lh.Start && pc < lh.End {
			return lh
		}
		i--
	}
	return nil
}

// analyzer holds the single-pass walk's mutable state.
type analyzer struct {
	code     []bytecode.Word
	proto    *bytecode.Prototype
	maxLocal int

	bbStack   []*BasicBlockVariable
	loopStack []*LoopHeaderInfo

	basicBlocks map[int]*BasicBlockVariable
	loopHeaders map[int]*LoopHeaderInfo
}

func (a *analyzer) curBB() *BasicBlockVariable {
	if len(a.bbStack) == 0 {
		return nil
	}
	return a.bbStack[len(a.bbStack)-1]
}

func (a *analyzer) curLoop() *LoopHeaderInfo {
	if len(a.loopStack) == 0 {
		return nil
	}
	return a.loopStack[len(a.loopStack)-1]
}

func (a *analyzer) enterBasicBlock(start int) *BasicBlockVariable {
	bb := newBasicBlockVariable(a.curBB(), start)
	a.bbStack = append(a.bbStack, bb)
	a.basicBlocks[start] = bb
	return bb
}

func (a *analyzer) leaveBasicBlock(end int) {
	bb := a.bbStack[len(a.bbStack)-1]
	bb.End = end
	a.bbStack = a.bbStack[:len(a.bbStack)-1]
}

func (a *analyzer) enterLoop(start int) *LoopHeaderInfo {
	lh := &LoopHeaderInfo{Prev: a.curLoop(), BB: a.curBB(), Start: start, Phi: newLoopModifiedVar()}
	a.loopStack = append(a.loopStack, lh)
	a.loopHeaders[start] = lh
	return lh
}

func (a *analyzer) leaveLoop(end int) {
	lh := a.loopStack[len(a.loopStack)-1]
	lh.End = end
	a.loopStack = a.loopStack[:len(a.loopStack)-1]
}

// kill is the single source of truth for which register writes matter
// to liveness/φ-insertion: only writes to registers inside the reserved
// (local-variable) range are tracked — temporaries never need a φ node,
// since they never survive past the expression that produced them.
//
// A write is one of three cases: the register is already defined in
// this exact block (just re-recorded, nothing new to do), or it isn't
// alive anywhere in the enclosing chain (a fresh local — record it as
// defined here, no φ), or it's alive in some ancestor block (the
// register predates this block). Only the third case can need a φ, and
// only when that ancestor liveness reaches back past the innermost
// loop's own header scope — a register first written inside the loop
// body itself, even if written again on a later iteration, was never
// live coming into the loop and must not get a spurious φ.
func (a *analyzer) kill(reg int) {
	if reg >= a.maxLocal {
		return
	}
	bb := a.curBB()
	if bb.Defined[reg] || !bb.IsAlive(reg) {
		bb.Defined[reg] = true
		return
	}
	if lh := a.curLoop(); lh != nil {
		if lh.EnclosedBB().IsAlive(reg) {
			lh.Phi.Vars[reg] = true
		}
	}
}

func (a *analyzer) killUpvalue(idx int) {
	if lh := a.curLoop(); lh != nil {
		lh.Phi.Upvalues[idx] = true
	}
}

func (a *analyzer) killGlobal(name string) {
	if lh := a.curLoop(); lh != nil {
		lh.Phi.Globals[name] = true
	}
}

func instrLen(op bytecode.Op) int {
	if bytecode.TypeOf(op) == bytecode.TypeH {
		return 2
	}
	return 1
}

// decodeFields unpacks up to 4 operand fields from an instruction word
// (plus, for type H, its trailing word), mirroring exactly the bit
// layout bytecode.Builder's Emit* methods use to pack them.
func decodeFields(op bytecode.Op, w0, w1 bytecode.Word) [4]uint32 {
	var out [4]uint32
	switch bytecode.TypeOf(op) {
	case bytecode.TypeB:
		out[0] = uint32(w0>>8) & 0xFF
		out[1] = uint32(w0>>16) & 0xFFFF
	case bytecode.TypeC:
		out[0] = uint32(w0>>8) & 0xFFFF
		out[1] = uint32(w0>>24) & 0xFF
	case bytecode.TypeD:
		out[0] = uint32(w0>>8) & 0xFF
		out[1] = uint32(w0>>16) & 0xFF
		out[2] = uint32(w0>>24) & 0xFF
	case bytecode.TypeE:
		out[0] = uint32(w0>>8) & 0xFF
		out[1] = uint32(w0>>16) & 0xFF
	case bytecode.TypeF:
		out[0] = uint32(w0>>8) & 0xFF
	case bytecode.TypeG:
		out[0] = uint32(w0>>8) & 0xFFFF
	case bytecode.TypeH:
		out[0] = uint32(w0>>8) & 0xFF
		out[1] = uint32(w0>>16) & 0xFF
		out[2] = uint32(w0>>24) & 0xFF
		out[3] = uint32(w1)
	}
	return out
}

// walk scans instructions starting at pc, stopping (without consuming)
// either at stopPC (if >= 0) or at the first instruction whose opcode
// is in stopOps (if non-nil), and returns the PC it stopped at.
//
// Nested branches and loops are consumed recursively before the outer
// scan ever sees their closing token, so a single stopOps set per call
// unambiguously matches only the construct this call was invoked for.
func (a *analyzer) walk(pc int, stopPC int, stopOps map[bytecode.Op]bool) int {
	for pc < len(a.code) {
		if stopPC >= 0 && pc == stopPC {
			return pc
		}
		op := bytecode.Op(a.code[pc])
		if stopOps != nil && stopOps[op] {
			return pc
		}

		var w1 bytecode.Word
		if bytecode.TypeOf(op) == bytecode.TypeH {
			w1 = a.code[pc+1]
		}
		fields := decodeFields(op, a.code[pc], w1)
		u := bytecode.GetUsage(op)
		for i, k := range u.Args {
			if k == bytecode.Output || k == bytecode.Inout {
				a.kill(int(fields[i]))
			}
		}
		switch op {
		case bytecode.UVSET:
			a.killUpvalue(int(fields[0]))
		case bytecode.GSET:
			a.killGlobal(a.proto.StringTable[fields[0]])
		case bytecode.GSETSSO:
			a.killGlobal(a.proto.SSOTable[fields[0]].String())
		}

		switch op {
		case bytecode.JMPF, bytecode.JMPT:
			thenStart := pc + 1
			elseStart := int(fields[1])
			a.enterBasicBlock(thenStart)
			a.walk(thenStart, elseStart, nil)
			a.leaveBasicBlock(elseStart)

			merge := elseStart
			if elseStart > 0 && elseStart <= len(a.code) {
				if prev := bytecode.Op(a.code[elseStart-1]); prev == bytecode.JMP {
					prevFields := decodeFields(bytecode.JMP, a.code[elseStart-1], 0)
					merge = int(prevFields[0])
					a.enterBasicBlock(elseStart)
					a.walk(elseStart, merge, nil)
					a.leaveBasicBlock(merge)
				}
			}
			pc = merge
			continue

		case bytecode.AND, bytecode.OR, bytecode.TERN:
			bodyStart := pc + 2
			target := int(fields[3])
			a.enterBasicBlock(bodyStart)
			a.walk(bodyStart, target, nil)
			a.leaveBasicBlock(target)
			pc = target
			continue

		case bytecode.FSTART:
			bodyStart := pc + 1
			a.enterLoop(bodyStart)
			a.enterBasicBlock(bodyStart)
			endPC := a.walk(bodyStart, -1, map[bytecode.Op]bool{bytecode.FEND1: true, bytecode.FEND2: true})
			a.leaveBasicBlock(endPC)
			a.leaveLoop(endPC)
			pc = endPC + instrLen(bytecode.Op(a.code[endPC]))
			continue

		case bytecode.FESTART:
			bodyStart := pc + 1
			a.enterLoop(bodyStart)
			a.enterBasicBlock(bodyStart)
			endPC := a.walk(bodyStart, -1, map[bytecode.Op]bool{bytecode.FEEND: true})
			a.leaveBasicBlock(endPC)
			a.leaveLoop(endPC)
			pc = endPC + instrLen(bytecode.FEEND)
			continue

		case bytecode.FEVRSTART:
			bodyStart := pc + 1
			a.enterLoop(bodyStart)
			a.enterBasicBlock(bodyStart)
			endPC := a.walk(bodyStart, -1, map[bytecode.Op]bool{bytecode.FEVREND: true})
			a.leaveBasicBlock(endPC)
			a.leaveLoop(endPC)
			pc = endPC + instrLen(bytecode.FEVREND)
			continue
		}

		pc += instrLen(op)
	}
	return pc
}

// Analyze runs the liveness/loop pre-pass over p.
func Analyze(p *bytecode.Prototype) *Analysis {
	a := &analyzer{
		code:        p.Code,
		proto:       p,
		maxLocal:    p.MaxLocalVarSize,
		basicBlocks: make(map[int]*BasicBlockVariable),
		loopHeaders: make(map[int]*LoopHeaderInfo),
	}
	a.enterBasicBlock(0)
	end := a.walk(0, -1, nil)
	a.leaveBasicBlock(end)

	result := &Analysis{
		basicBlocks:     a.basicBlocks,
		loopHeaders:     a.loopHeaders,
		MaxLocalVarSize: a.maxLocal,
	}
	result.bbStarts = maps.Keys(a.basicBlocks)
	slices.Sort(result.bbStarts)
	result.loopStarts = maps.Keys(a.loopHeaders)
	slices.Sort(result.loopStarts)
	return result
}
