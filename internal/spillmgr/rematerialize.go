package spillmgr

import "github.com/0o001/visa-finalizer/internal/ir"

// scalarRematCandidate reports whether v is a single-element scalar
// defined exactly once by an unpredicated move from an immediate —
// §4.5's rematerialization precondition — returning that definition's
// index and the immediate it moves.
func scalarRematCandidate(insns []*ir.Instruction, v ir.VarID, d *ir.Declaration) (defIdx int, imm ir.Immediate, ok bool) {
	if d.NElem != 1 {
		return 0, ir.Immediate{}, false
	}

	found := -1

	for i, in := range insns {
		if in.Dst.Kind != ir.OperandDst || in.Dst.Dst.Base != v {
			continue
		}

		if found != -1 {
			// more than one definition: not a rematerialization candidate.
			return 0, ir.Immediate{}, false
		}

		if in.Op != ir.OpMov || in.NumSrc != 1 || in.Src[0].Kind != ir.OperandImmediate || in.Predicate != nil {
			return 0, ir.Immediate{}, false
		}

		found = i
	}

	if found == -1 {
		return 0, ir.Immediate{}, false
	}

	return found, insns[found].Src[0].Imm, true
}

// rematerialize deletes v's single defining move and replaces every use
// of v with a fresh move of the same immediate into a per-use
// temporary, emitted immediately before the use (§4.5): this produces
// zero spill/fill memory traffic for v.
func rematerialize(insns []*ir.Instruction, vars *ir.VarTable, decls *ir.DeclTable, v ir.VarID, imm ir.Immediate, defIdx int) []*ir.Instruction {
	rv := vars.Get(v)
	d := decls.Get(rv.Decl)

	out := make([]*ir.Instruction, 0, len(insns))

	for i, in := range insns {
		if i == defIdx {
			continue
		}

		usesV := false

		for s := 0; s < in.NumSrc && s < 3; s++ {
			if in.Src[s].Kind == ir.OperandSrc && in.Src[s].Src.Base == v {
				usesV = true
			}
		}

		if !usesV {
			out = append(out, in)

			continue
		}

		tmp := newTransientVar(vars, decls, d, rv.Decl, ir.TransientFillTemp)

		out = append(out, &ir.Instruction{
			Op:       ir.OpMov,
			ExecSize: 1,
			Dst:      ir.Operand{Kind: ir.OperandDst, Dst: ir.Region{Base: tmp, Type: d.Type}},
			Src:      [3]ir.Operand{{Kind: ir.OperandImmediate, Imm: imm}},
			NumSrc:   1,
		})

		rewritten := *in

		for s := 0; s < rewritten.NumSrc && s < 3; s++ {
			if rewritten.Src[s].Kind == ir.OperandSrc && rewritten.Src[s].Src.Base == v {
				rewritten.Src[s].Src.Base = tmp
			}
		}

		out = append(out, &rewritten)
	}

	return out
}
