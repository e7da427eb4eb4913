package regalloc

import (
	"sort"

	"github.com/0o001/visa-finalizer/internal/cfg"
	"github.com/0o001/visa-finalizer/internal/ir"
	"github.com/0o001/visa-finalizer/internal/liveness"
)

// lexicalOrder assigns every instruction in g a dense, program-order id,
// walking blocks in the order cfg.NewGraph laid them out (fall-through
// successor first), matching how the teacher's x64 allocator numbers
// instructions before computing live intervals.
func lexicalOrder(g *cfg.Graph) map[*ir.Instruction]int {
	order := map[*ir.Instruction]int{}

	id := 0

	for _, b := range g.Blocks {
		for _, in := range b.Insns {
			order[in] = id
			id++
		}
	}

	return order
}

// BuildLiveRanges derives one LiveRange per register variable referenced
// in g from the variable table and a block-granularity liveness result,
// widening each variable's first-def/last-use to the full span implied
// by every block where it is live-in or live-out, per §4.3/§4.4.
func BuildLiveRanges(g *cfg.Graph, vars *ir.VarTable, decls *ir.DeclTable, li *liveness.Info) []*LiveRange {
	order := lexicalOrder(g)

	starts := map[ir.VarID]int{}
	ends := map[ir.VarID]int{}
	refs := map[ir.VarID]int{}

	touch := func(v ir.VarID, at int) {
		if v == 0 {
			return
		}

		if s, ok := starts[v]; !ok || at < s {
			starts[v] = at
		}

		if e, ok := ends[v]; !ok || at > e {
			ends[v] = at
		}

		refs[v]++
	}

	for _, b := range g.Blocks {
		for _, in := range b.Insns {
			at := order[in]

			if in.Predicate != nil {
				touch(in.Predicate.Var, at)
			}

			touchOperand(in.Dst, touch, at)

			for i := 0; i < in.NumSrc && i < 3; i++ {
				touchOperand(in.Src[i], touch, at)
			}
		}

		sets := li.Blocks[b.ID]
		if sets == nil {
			continue
		}

		blockStart, blockEnd := blockExtent(b, order)

		for v := range sets.LiveIn {
			touch(v, blockStart)
		}

		for v := range sets.LiveOut {
			touch(v, blockEnd)
		}
	}

	ranges := make([]*LiveRange, 0, len(starts))

	for vid, start := range starts {
		rv := vars.Get(vid)

		d := decls.Get(rv.Decl)

		words := (d.ByteSize() + 1) / 2
		if words == 0 {
			words = 1
		}

		lr := &LiveRange{
			Var:      vid,
			Start:    start,
			End:      ends[vid] + 1,
			Words:    words,
			Align:    d.Align,
			RefCount: refs[vid],
			State:    Unvisited,
			Kind:     KindNormal,
		}

		if rv.IsInput {
			lr.Kind = KindInput
		}

		if rv.IsEOT {
			lr.EOT = true
		}

		if rv.PreAssign && rv.Physical != nil {
			lr.Kind = KindPreAssigned
			lr.State = PreAssigned
			assignment := *rv.Physical
			lr.Assignment = &assignment
		}

		if li.AddressTaken[vid] {
			lr.Start = 0
		}

		ranges = append(ranges, lr)
	}

	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].Start != ranges[j].Start {
			return ranges[i].Start < ranges[j].Start
		}

		return ranges[i].Var < ranges[j].Var
	})

	return ranges
}

func blockExtent(b *cfg.Block, order map[*ir.Instruction]int) (start, end int) {
	if len(b.Insns) == 0 {
		return 0, 0
	}

	start = order[b.Insns[0]]
	end = order[b.Insns[len(b.Insns)-1]]

	return start, end
}

func touchOperand(op ir.Operand, touch func(ir.VarID, int), at int) {
	switch op.Kind {
	case ir.OperandDst:
		touch(op.Dst.Base, at)
	case ir.OperandSrc:
		touch(op.Src.Base, at)
	case ir.OperandIndirect:
		touch(op.Indirect.AddrVar, at)
	case ir.OperandRaw:
		touch(op.Raw.Var, at)
	case ir.OperandStateHandle:
		touch(op.State.Var, at)
	}
}

// CallSites locates every OpFuncCall/OpCall instruction's lexical id in
// g, used by the scan to extend every simultaneously-active range's end
// across the call per §4.4's caller-save handling.
func CallSites(g *cfg.Graph) []int {
	order := lexicalOrder(g)

	var sites []int

	for _, b := range g.Blocks {
		for _, in := range b.Insns {
			if in.Op == ir.OpFuncCall || in.Op == ir.OpCall {
				sites = append(sites, order[in])
			}
		}
	}

	sort.Ints(sites)

	return sites
}
