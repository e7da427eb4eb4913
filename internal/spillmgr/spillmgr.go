package spillmgr

import (
	"github.com/0o001/visa-finalizer/internal/cfg"
	"github.com/0o001/visa-finalizer/internal/ir"
	"github.com/0o001/visa-finalizer/internal/liveness"
	"github.com/0o001/visa-finalizer/internal/regalloc"
)

// Manager rewrites a routine's IR to materialize spilled live ranges.
// It implements regalloc.Rewriter.
type Manager struct {
	SpillMemOffset        uint32
	SpillSpaceCompression bool
}

// NewManager creates a spill manager whose spill area begins at
// spillMemOffset.
func NewManager(spillMemOffset uint32, compression bool) *Manager {
	return &Manager{SpillMemOffset: spillMemOffset, SpillSpaceCompression: compression}
}

// Rewrite implements regalloc.Rewriter: for every spilled live range it
// either rematerializes (scalar-immediate case) or assigns a scratch
// slot and brackets every def/use with spill/fill intrinsics, then
// rebuilds the graph from the resulting flat instruction list.
func (m *Manager) Rewrite(g *cfg.Graph, vars *ir.VarTable, decls *ir.DeclTable, spilled []*regalloc.LiveRange) (*cfg.Graph, error) {
	insns := flatten(g)

	li := liveness.Compute(g, vars, decls)
	oracle := liveness.NewOracle(li)

	slots := NewSlotAllocator(m.SpillMemOffset)

	declOfVar := func(v ir.VarID) ir.DeclID {
		root, _ := decls.AliasRoot(vars.Get(v).Decl)

		return root
	}

	spilledDeclVar := map[ir.DeclID]ir.VarID{}
	for _, lr := range spilled {
		spilledDeclVar[declOfVar(lr.Var)] = lr.Var
	}

	for _, lr := range spilled {
		v := lr.Var
		rv := vars.Get(v)
		root := declOfVar(v)
		d := decls.Get(root)

		if defIdx, imm, ok := scalarRematCandidate(insns, v, d); ok {
			insns = rematerialize(insns, vars, decls, v, imm, defIdx)

			continue
		}

		interferes := func(other ir.DeclID) bool {
			if other == root {
				return false
			}

			otherVar, ok := spilledDeclVar[other]
			if !ok {
				return false
			}

			return oracle.Interferes(otherVar, v)
		}

		offset := slots.Assign(root, d.ByteSize(), m.SpillSpaceCompression, interferes)
		rows := rowsForBytes(d.ByteSize())

		if rv.IsIndirect {
			insns = rewriteIndirectSpill(insns, vars, decls, v, d, offset, rows)

			continue
		}

		insns = rewriteMemorySpill(insns, vars, decls, v, d, offset, rows)
	}

	return cfg.NewGraph(insns, scanLabelTargets(insns)), nil
}

func rowsForBytes(byteSize uint32) uint32 {
	rows := (byteSize + ir.DefaultGRFBytes - 1) / ir.DefaultGRFBytes
	if rows == 0 {
		rows = 1
	}

	return rows
}

func flatten(g *cfg.Graph) []*ir.Instruction {
	var out []*ir.Instruction

	for _, b := range g.Blocks {
		out = append(out, b.Insns...)
	}

	return out
}

func scanLabelTargets(insns []*ir.Instruction) map[string]int {
	idx := make(map[string]int)

	for i, in := range insns {
		if in.Op != ir.OpLabel || in.NumSrc == 0 {
			continue
		}

		if in.Src[0].Kind == ir.OperandLabel {
			idx[in.Src[0].Lbl.Name] = i
		}
	}

	return idx
}

func newTransientVar(vars *ir.VarTable, decls *ir.DeclTable, parent *ir.Declaration, parentID ir.DeclID, kind ir.TransientKind) ir.VarID {
	tmpDecl := decls.Add(ir.Declaration{
		Name:  parent.Name + ".spilltmp",
		File:  parent.File,
		Type:  parent.Type,
		NElem: parent.NElem,
		Align: ir.AlignEvenGRF,
	})

	return vars.Add(ir.RegisterVariable{Decl: tmpDecl, Transient: kind, InducedByDecl: parentID})
}
