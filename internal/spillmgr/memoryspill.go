package spillmgr

import "github.com/0o001/visa-finalizer/internal/ir"

// rewriteMemorySpill brackets every definition of v with a spill to
// offset and every use with a fill from offset (§4.5's destination/
// source rewrite), treating the whole declaration as one GRF-aligned
// segment (the "aligned whole" region case; partial/unaligned
// sub-region spilling is not modeled).
func rewriteMemorySpill(insns []*ir.Instruction, vars *ir.VarTable, decls *ir.DeclTable, v ir.VarID, d *ir.Declaration, offset, rows uint32) []*ir.Instruction {
	rv := vars.Get(v)

	out := make([]*ir.Instruction, 0, len(insns))

	for _, in := range insns {
		defines := in.Dst.Kind == ir.OperandDst && in.Dst.Dst.Base == v

		usesAsSrc := false

		for s := 0; s < in.NumSrc && s < 3; s++ {
			if in.Src[s].Kind == ir.OperandSrc && in.Src[s].Src.Base == v {
				usesAsSrc = true
			}
		}

		if !defines && !usesAsSrc {
			out = append(out, in)

			continue
		}

		rewritten := *in

		if usesAsSrc {
			fillTmp := newTransientVar(vars, decls, d, rv.Decl, ir.TransientFillTemp)

			out = append(out, &ir.Instruction{
				Op: ir.OpFill,
				SpillFill: &ir.SpillFillMeta{
					NumRows:    rows,
					SlotOffset: offset,
					PayloadVar: fillTmp,
				},
			})

			for s := 0; s < rewritten.NumSrc && s < 3; s++ {
				if rewritten.Src[s].Kind == ir.OperandSrc && rewritten.Src[s].Src.Base == v {
					rewritten.Src[s].Src.Base = fillTmp
				}
			}
		}

		var spillTmp ir.VarID

		if defines {
			spillTmp = newTransientVar(vars, decls, d, rv.Decl, ir.TransientSpillTemp)
			rewritten.Dst.Dst.Base = spillTmp
		}

		out = append(out, &rewritten)

		if defines {
			out = append(out, &ir.Instruction{
				Op: ir.OpSpill,
				SpillFill: &ir.SpillFillMeta{
					NumRows:    rows,
					SlotOffset: offset,
					PayloadVar: spillTmp,
				},
			})
		}
	}

	return out
}
