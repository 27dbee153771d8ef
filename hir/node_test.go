package hir

import "testing"

// Every Kind falls into exactly one of the three edge-colour capability
// buckets (control, write-effect, plain data), never two.
func TestControlFlowAndWriteEffectAreDisjoint(t *testing.T) {
	n := &Node{}
	for k := Kind(1); k <= KBranchStartEffect; k++ {
		n.Kind = k
		if n.IsControlFlow() && n.IsWriteEffect() {
			t.Fatalf("kind %d claims both control-flow and write-effect", k)
		}
	}
}

func TestIsControlFlowCoversRegionKinds(t *testing.T) {
	cases := []Kind{KStart, KRegion, KIf, KIfTrue, KIfFalse, KIfMerge, KLoopHeader,
		KLoop, KLoopExit, KLoopMerge, KJump, KReturn, KTrap, KSuccess, KFail, KEnd,
		KOSRStart, KOSREnd, KInlineStart, KInlineEnd}
	for _, k := range cases {
		n := &Node{Kind: k}
		if !n.IsControlFlow() {
			t.Errorf("kind %v: want IsControlFlow true", k)
		}
	}
	n := &Node{Kind: KFloat64}
	if n.IsControlFlow() {
		t.Fatal("KFloat64 must not be control-flow")
	}
}

// KGSet/KPropSet/KIdxSet/KUVSet carry the written *value* as an operand,
// not a predecessor write link, so they must not satisfy IsWriteEffect.
func TestIsWriteEffectExcludesPlainWriters(t *testing.T) {
	notChainLinks := []Kind{KGSet, KPropSet, KIdxSet, KUVSet}
	for _, k := range notChainLinks {
		n := &Node{Kind: k}
		if n.IsWriteEffect() {
			t.Errorf("kind %v must not be a write-effect chain link", k)
		}
	}
	chainLinks := []Kind{KWriteEffect, KEffectBarrier, KHardBarrier, KSoftBarrier,
		KEffectMerge, KLoopEffectStart, KInitBarrier, KEmptyWriteEffect, KBranchStartEffect}
	for _, k := range chainLinks {
		n := &Node{Kind: k}
		if !n.IsWriteEffect() {
			t.Errorf("kind %v must be a write-effect chain link", k)
		}
	}
}

func TestIsEffectBarrierSubsetOfWriteEffect(t *testing.T) {
	barriers := []Kind{KEffectBarrier, KHardBarrier, KSoftBarrier}
	for _, k := range barriers {
		n := &Node{Kind: k}
		if !n.IsEffectBarrier() {
			t.Errorf("kind %v: want IsEffectBarrier true", k)
		}
		if !n.IsWriteEffect() {
			t.Errorf("kind %v: every barrier must also be a write-effect link", k)
		}
	}
	if (&Node{Kind: KInitBarrier}).IsEffectBarrier() {
		t.Fatal("InitBarrier is not itself an EffectBarrier (it is a distinct stop condition)")
	}
	if !(&Node{Kind: KInitBarrier}).IsInitBarrier() {
		t.Fatal("want IsInitBarrier true for KInitBarrier")
	}
}

func TestIsTestAndIsPhi(t *testing.T) {
	if !(&Node{Kind: KTestType}).IsTest() {
		t.Fatal("want KTestType to be IsTest")
	}
	if !(&Node{Kind: KGuard}).IsTest() {
		t.Fatal("want KGuard to be IsTest")
	}
	if (&Node{Kind: KPhi}).IsTest() {
		t.Fatal("KPhi must not be IsTest")
	}
	if !(&Node{Kind: KPhi}).IsPhi() {
		t.Fatal("want KPhi to be IsPhi")
	}
	if (&Node{Kind: KBinary}).IsPhi() {
		t.Fatal("KBinary must not be IsPhi")
	}
}
