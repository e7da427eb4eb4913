package cfg

import (
	"testing"

	"github.com/0o001/visa-finalizer/internal/ir"
)

func linear(ops ...ir.Opcode) []*ir.Instruction {
	out := make([]*ir.Instruction, len(ops))
	for i, op := range ops {
		out[i] = &ir.Instruction{Op: op, LexicalID: i}
	}

	return out
}

func TestNewGraphSingleBlock(t *testing.T) {
	insns := linear(ir.OpMov, ir.OpAdd, ir.OpReturn)
	g := NewGraph(insns, nil)

	if len(g.Blocks) != 1 {
		t.Fatalf("len(Blocks) = %d, want 1", len(g.Blocks))
	}

	if len(g.Blocks[0].Insns) != 3 {
		t.Fatalf("len(Insns) = %d, want 3", len(g.Blocks[0].Insns))
	}
}

func TestNewGraphSplitsAtLabel(t *testing.T) {
	insns := []*ir.Instruction{
		{Op: ir.OpMov},
		{Op: ir.OpLabel},
		{Op: ir.OpReturn},
	}

	g := NewGraph(insns, nil)

	if len(g.Blocks) != 2 {
		t.Fatalf("len(Blocks) = %d, want 2", len(g.Blocks))
	}

	if len(g.Blocks[0].Insns) != 1 {
		t.Fatalf("block 0 len = %d, want 1", len(g.Blocks[0].Insns))
	}
}

func TestNewGraphSplitsAfterReturnAndDropsUnreachableTail(t *testing.T) {
	insns := linear(ir.OpMov, ir.OpReturn, ir.OpMov, ir.OpReturn)
	g := NewGraph(insns, nil)

	// the second block starts right after the first OpReturn but has no
	// predecessor (nothing branches to it), so removeUnreachable drops it.
	if len(g.Blocks) != 1 {
		t.Fatalf("len(Blocks) = %d, want 1 (unreachable tail removed)", len(g.Blocks))
	}

	if g.Blocks[0].Succs != nil {
		t.Fatalf("entry block should have no fall-through successor after a return, got %v", g.Blocks[0].Succs)
	}
}

func TestFallThroughSuccessorIsFirst(t *testing.T) {
	insns := []*ir.Instruction{
		{Op: ir.OpLabel},
		{Op: ir.OpMov},
		{Op: ir.OpLabel},
		{Op: ir.OpReturn},
	}

	g := NewGraph(insns, nil)

	if len(g.Blocks[0].Succs) == 0 {
		t.Fatal("expected a fall-through successor")
	}

	if g.Blocks[0].Succs[0] != g.Blocks[1].ID {
		t.Fatalf("fall-through successor should be first in Succs, got %v", g.Blocks[0].Succs)
	}
}

func TestCallBlockFallsThroughToThePhysicallyNextBlock(t *testing.T) {
	insns := []*ir.Instruction{
		{Op: ir.OpMov},
		{Op: ir.OpFuncCall, Src: [3]ir.Operand{{Kind: ir.OperandLabel, Lbl: ir.Label{Name: "callee"}}}, NumSrc: 1},
		{Op: ir.OpMov},
		{Op: ir.OpReturn},
	}

	g := NewGraph(insns, nil)

	if len(g.Blocks) != 2 {
		t.Fatalf("len(Blocks) = %d, want 2 (split after the call)", len(g.Blocks))
	}

	if !g.Blocks[0].HasClass(ClassCall) {
		t.Fatal("the call-ending block should be classified ClassCall")
	}

	if len(g.Blocks[0].Succs) != 1 || g.Blocks[0].Succs[0] != g.Blocks[1].ID {
		t.Fatalf("a call-ending block must have exactly one successor, the call-return continuation; got %v", g.Blocks[0].Succs)
	}
}

func TestStitchedCallFallsThroughIntoTheInlinedCalleeBody(t *testing.T) {
	// builder/stitch.go splices a callee's body immediately after the
	// rewritten OpCall with no OpLabel marking its entry, and replaces
	// the callee's own OpReturn with OpFuncRet so it falls back through
	// into whatever the caller had next, rather than exiting.
	insns := []*ir.Instruction{
		{Op: ir.OpCall, Src: [3]ir.Operand{{Kind: ir.OperandLabel, Lbl: ir.Label{Name: "callee.entry"}}}, NumSrc: 1},
		{Op: ir.OpMov}, // inlined callee body
		{Op: ir.OpFuncRet},
		{Op: ir.OpMov}, // caller code resumed after the inlined call
		{Op: ir.OpReturn},
	}

	g := NewGraph(insns, nil)

	if len(g.Blocks) != 3 {
		t.Fatalf("len(Blocks) = %d, want 3 (split after the call and after the inlined return)", len(g.Blocks))
	}

	callBlock, calleeBlock, resumeBlock := g.Blocks[0], g.Blocks[1], g.Blocks[2]

	if len(callBlock.Succs) != 1 || callBlock.Succs[0] != calleeBlock.ID {
		t.Fatalf("the call block's successor should be the inlined callee entry, got %v", callBlock.Succs)
	}

	if len(calleeBlock.Succs) != 1 || calleeBlock.Succs[0] != resumeBlock.ID {
		t.Fatalf("the inlined return block's successor should be the resumed caller code, got %v", calleeBlock.Succs)
	}

	if resumeBlock.Succs != nil {
		t.Fatalf("the final OpReturn should have no successor, got %v", resumeBlock.Succs)
	}
}

func TestDominatorsSimpleDiamond(t *testing.T) {
	// b0 -> b1, b0 -> b2, b1 -> b3, b2 -> b3
	g := &Graph{Entry: 0, NaturalLoops: map[int][]int{}}
	g.Blocks = []*Block{
		{ID: 0, Succs: []int{1, 2}, IDom: -1},
		{ID: 1, Preds: []int{0}, Succs: []int{3}, IDom: -1},
		{ID: 2, Preds: []int{0}, Succs: []int{3}, IDom: -1},
		{ID: 3, Preds: []int{1, 2}, IDom: -1},
	}

	g.ComputeDominators()

	if g.Blocks[3].IDom != 0 {
		t.Fatalf("IDom(3) = %d, want 0", g.Blocks[3].IDom)
	}

	if g.Blocks[1].IDom != 0 || g.Blocks[2].IDom != 0 {
		t.Fatalf("IDom(1)=%d IDom(2)=%d, want 0,0", g.Blocks[1].IDom, g.Blocks[2].IDom)
	}
}

func TestNaturalLoopDetection(t *testing.T) {
	// b0 -> b1 (header) -> b2 -> b1 (back edge), b1 -> b3 (exit)
	g := &Graph{Entry: 0, NaturalLoops: map[int][]int{}}
	g.Blocks = []*Block{
		{ID: 0, Succs: []int{1}, IDom: -1},
		{ID: 1, Preds: []int{0, 2}, Succs: []int{2, 3}, IDom: -1},
		{ID: 2, Preds: []int{1}, Succs: []int{1}, IDom: -1},
		{ID: 3, Preds: []int{1}, IDom: -1},
	}

	g.ComputeDominators()
	g.ComputeNaturalLoops()

	if len(g.BackEdges) != 1 {
		t.Fatalf("len(BackEdges) = %d, want 1", len(g.BackEdges))
	}

	body, ok := g.NaturalLoops[1]
	if !ok {
		t.Fatal("expected natural loop headed at block 1")
	}

	if len(body) != 2 {
		t.Fatalf("loop body = %v, want [1,2]", body)
	}
}

func TestCallGraphReverseTopoOrder(t *testing.T) {
	funcs := map[string]*FuncInfo{
		"kernel_main": {Name: "kernel_main", CallSites: []CallSite{{Callee: "helper"}}},
		"helper":      {Name: "helper", CallSites: []CallSite{{Callee: "leaf"}}},
		"leaf":        {Name: "leaf"},
	}

	cg := NewCallGraph(funcs)

	pos := map[string]int{}
	for i, n := range cg.Order {
		pos[n] = i
	}

	if pos["leaf"] > pos["helper"] {
		t.Fatalf("leaf must precede helper in reverse topo order: %v", cg.Order)
	}

	if pos["helper"] > pos["kernel_main"] {
		t.Fatalf("helper must precede kernel_main in reverse topo order: %v", cg.Order)
	}
}

func TestCalledByFindsAllCallers(t *testing.T) {
	funcs := map[string]*FuncInfo{
		"a": {Name: "a", CallSites: []CallSite{{Callee: "leaf"}}},
		"b": {Name: "b", CallSites: []CallSite{{Callee: "leaf"}}},
		"leaf": {Name: "leaf"},
	}

	cg := NewCallGraph(funcs)

	callers := cg.CalledBy("leaf")
	if len(callers) != 2 {
		t.Fatalf("CalledBy(leaf) = %v, want 2 callers", callers)
	}
}
