package spillmgr

import (
	"testing"

	"github.com/0o001/visa-finalizer/internal/cfg"
	"github.com/0o001/visa-finalizer/internal/ir"
	"github.com/0o001/visa-finalizer/internal/regalloc"
)

func dstOp(v ir.VarID) ir.Operand { return ir.Operand{Kind: ir.OperandDst, Dst: ir.Region{Base: v}} }
func srcOp(v ir.VarID) ir.Operand { return ir.Operand{Kind: ir.OperandSrc, Src: ir.Region{Base: v}} }

func TestRewriteScalarImmediateRematerializesAndDeletesOriginalDef(t *testing.T) {
	decls := ir.NewDeclTable()
	vars := ir.NewVarTable()

	d := decls.Add(ir.Declaration{Name: "s", File: ir.FileGeneral, Type: ir.TypeDword, NElem: 1})
	v := vars.Add(ir.RegisterVariable{Decl: d})

	imm := ir.Immediate{Type: ir.TypeDword, Bits: 7}

	insns := []*ir.Instruction{
		{Op: ir.OpMov, Dst: dstOp(v), Src: [3]ir.Operand{{Kind: ir.OperandImmediate, Imm: imm}}, NumSrc: 1},
		{Op: ir.OpAdd, Dst: dstOp(2), Src: [3]ir.Operand{srcOp(v), srcOp(v)}, NumSrc: 2},
		{Op: ir.OpReturn},
	}

	g := cfg.NewGraph(insns, nil)

	m := NewManager(0, false)

	spilled := []*regalloc.LiveRange{{Var: v}}

	newGraph, err := m.Rewrite(g, vars, decls, spilled)
	if err != nil {
		t.Fatal(err)
	}

	flat := flatten(newGraph)

	for _, in := range flat {
		if in.Op == ir.OpMov && in.Dst.Kind == ir.OperandDst && in.Dst.Dst.Base == v {
			t.Fatal("original scalar definition should have been deleted")
		}

		if in.Op == ir.OpSpill || in.Op == ir.OpFill {
			t.Fatal("scalar rematerialization must not produce spill/fill sends")
		}
	}

	movCount := 0

	for _, in := range flat {
		if in.Op == ir.OpMov {
			movCount++
		}
	}

	if movCount != 1 {
		t.Fatalf("expected exactly one rematerializing move (the add uses v twice from the same instruction), got %d", movCount)
	}
}

func TestRewriteMemorySpillInsertsSpillAfterDefAndFillBeforeUse(t *testing.T) {
	decls := ir.NewDeclTable()
	vars := ir.NewVarTable()

	d := decls.Add(ir.Declaration{Name: "x", File: ir.FileGeneral, Type: ir.TypeDword, RowCount: 1})
	v := vars.Add(ir.RegisterVariable{Decl: d})

	insns := []*ir.Instruction{
		{Op: ir.OpMov, Dst: dstOp(v), Src: [3]ir.Operand{{Kind: ir.OperandImmediate, Imm: ir.Immediate{Type: ir.TypeDword, Bits: 1}}}, NumSrc: 1},
		{Op: ir.OpLabel, Src: [3]ir.Operand{{Kind: ir.OperandLabel, Lbl: ir.Label{Name: "mid"}}}, NumSrc: 1},
		{Op: ir.OpAdd, Dst: dstOp(2), Src: [3]ir.Operand{srcOp(v), srcOp(v)}, NumSrc: 2},
		{Op: ir.OpReturn},
	}

	g := cfg.NewGraph(insns, map[string]int{"mid": 1})

	m := NewManager(256, false)

	spilled := []*regalloc.LiveRange{{Var: v}}

	newGraph, err := m.Rewrite(g, vars, decls, spilled)
	if err != nil {
		t.Fatal(err)
	}

	flat := flatten(newGraph)

	sawSpill, sawFill := false, false

	for _, in := range flat {
		if in.Op == ir.OpSpill {
			sawSpill = true

			if in.SpillFill == nil || in.SpillFill.SlotOffset < 256 {
				t.Fatalf("spill offset should be at/after SpillMemOffset, got %+v", in.SpillFill)
			}
		}

		if in.Op == ir.OpFill {
			sawFill = true
		}
	}

	if !sawSpill {
		t.Fatal("expected a spill instruction after the rewritten definition")
	}

	if !sawFill {
		t.Fatal("expected a fill instruction before the rewritten use")
	}
}

func TestRewriteIndirectSpillBracketsEveryIndirectOperandWithFillAndSpill(t *testing.T) {
	decls := ir.NewDeclTable()
	vars := ir.NewVarTable()

	d := decls.Add(ir.Declaration{Name: "buf", File: ir.FileGeneral, Type: ir.TypeDword, RowCount: 1})
	v := vars.Add(ir.RegisterVariable{Decl: d, IsIndirect: true})

	addr := vars.Add(ir.RegisterVariable{Decl: decls.Add(ir.Declaration{Name: "a0", File: ir.FileAddress, Type: ir.TypeUDword, NElem: 1})})

	indirectSrc := ir.Operand{Kind: ir.OperandIndirect, Indirect: ir.IndirectOperand{AddrVar: addr, Type: ir.TypeDword, ElemsPerEx: 1}}
	indirectDst := ir.Operand{Kind: ir.OperandIndirect, Indirect: ir.IndirectOperand{AddrVar: addr, Type: ir.TypeDword, ElemsPerEx: 1}}

	insns := []*ir.Instruction{
		// reads v indirectly: wants a fill, no spill (not a define).
		{Op: ir.OpMov, Dst: dstOp(2), Src: [3]ir.Operand{indirectSrc}, NumSrc: 1},
		// writes v indirectly: wants both a fill (conservative) and a spill.
		{Op: ir.OpMov, Dst: indirectDst, Src: [3]ir.Operand{{Kind: ir.OperandImmediate, Imm: ir.Immediate{Type: ir.TypeDword, Bits: 9}}}, NumSrc: 1},
		// unrelated direct instruction: untouched.
		{Op: ir.OpReturn},
	}

	g := cfg.NewGraph(insns, map[string]int{})

	m := NewManager(512, false)

	spilled := []*regalloc.LiveRange{{Var: v}}

	newGraph, err := m.Rewrite(g, vars, decls, spilled)
	if err != nil {
		t.Fatal(err)
	}

	flat := flatten(newGraph)

	var fills, spills, returns int

	for _, in := range flat {
		switch in.Op {
		case ir.OpFill:
			fills++

			if in.SpillFill == nil || in.SpillFill.SlotOffset < 512 {
				t.Fatalf("fill offset should be at/after SpillMemOffset, got %+v", in.SpillFill)
			}
		case ir.OpSpill:
			spills++
		case ir.OpReturn:
			returns++
		}
	}

	if fills != 2 {
		t.Fatalf("expected a fill before each of the two indirect instructions, got %d", fills)
	}

	if spills != 1 {
		t.Fatalf("expected a spill only after the instruction that defines through the indirect operand, got %d", spills)
	}

	if returns != 1 {
		t.Fatal("the unrelated direct instruction should pass through untouched")
	}

	if len(flat) != len(insns)+3 {
		t.Fatalf("expected 3 bracketing instructions inserted, got %d extra", len(flat)-len(insns))
	}
}

func TestSlotAllocatorAppendsWithoutCompressionGRFAligned(t *testing.T) {
	s := NewSlotAllocator(0)

	off1 := s.Assign(1, 32, false, nil)
	off2 := s.Assign(2, 16, false, nil)

	if off1 != 0 {
		t.Fatalf("first slot should start at 0, got %d", off1)
	}

	if off2 != 32 {
		t.Fatalf("second slot should start after the first, GRF-aligned: got %d", off2)
	}
}

func TestSlotAllocatorCompressionSharesNonInterferingSlots(t *testing.T) {
	s := NewSlotAllocator(0)

	off1 := s.Assign(1, 32, true, func(ir.DeclID) bool { return false })
	off2 := s.Assign(2, 32, true, func(other ir.DeclID) bool { return other == 1 })

	if off1 != 0 {
		t.Fatalf("first slot should start at 0, got %d", off1)
	}

	// decl 2 interferes with decl 1, so it must not share decl 1's slot.
	if off2 == off1 {
		t.Fatal("interfering declarations must not share a slot")
	}
}

func TestSlotAllocatorCompressionReusesNonInterferingOffset(t *testing.T) {
	s := NewSlotAllocator(0)

	off1 := s.Assign(1, 32, true, func(ir.DeclID) bool { return false })
	off2 := s.Assign(2, 32, true, func(ir.DeclID) bool { return false })

	if off2 != off1 {
		t.Fatalf("non-interfering declarations should be allowed to share a slot, got %d and %d", off1, off2)
	}
}
