package spillmgr

import "github.com/0o001/visa-finalizer/internal/ir"

// rewriteIndirectSpill handles a spilled, address-taken declaration
// (§4.5 "Indirect (address-taken) spills"): a dedicated spill/fill
// range is pre-allocated at the declaration's size, and every
// instruction carrying an indirect operand is bracketed with a fill
// before it and, if the instruction may define through that operand, a
// spill after. Without a precise points-to set, every indirect operand
// in the routine is conservatively treated as possibly aliasing v, the
// same conservatism internal/liveness applies to address-taken
// variables. The indirect operand itself addresses v through a
// separate address variable, not a rewritable Base field, so this pass
// only inserts the bracketing fill/spill mechanics; adjusting the
// address computation to target the dedicated range is the address-add
// pass's responsibility, not the spill manager's.
func rewriteIndirectSpill(insns []*ir.Instruction, vars *ir.VarTable, decls *ir.DeclTable, v ir.VarID, d *ir.Declaration, offset, rows uint32) []*ir.Instruction {
	rv := vars.Get(v)
	dedicated := newTransientVar(vars, decls, d, rv.Decl, ir.TransientFillTemp)

	out := make([]*ir.Instruction, 0, len(insns))

	for _, in := range insns {
		hasIndirect := in.Dst.Kind == ir.OperandIndirect

		mayDefine := in.Dst.Kind == ir.OperandIndirect

		for s := 0; s < in.NumSrc && s < 3; s++ {
			if in.Src[s].Kind == ir.OperandIndirect {
				hasIndirect = true
			}
		}

		if !hasIndirect {
			out = append(out, in)

			continue
		}

		out = append(out, &ir.Instruction{
			Op: ir.OpFill,
			SpillFill: &ir.SpillFillMeta{
				NumRows:    rows,
				SlotOffset: offset,
				PayloadVar: dedicated,
			},
		})

		out = append(out, in)

		if mayDefine {
			out = append(out, &ir.Instruction{
				Op: ir.OpSpill,
				SpillFill: &ir.SpillFillMeta{
					NumRows:    rows,
					SlotOffset: offset,
					PayloadVar: dedicated,
				},
			})
		}
	}

	return out
}
