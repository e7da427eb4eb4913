// Package liveness computes, for every basic block of a control-flow
// graph, the sets of register variables live at entry and live at exit,
// and answers interference queries over them (§4.3).
package liveness

import (
	"github.com/0o001/visa-finalizer/internal/cfg"
	"github.com/0o001/visa-finalizer/internal/ir"
)

// BlockSets holds the live-in and live-out variable sets for one block.
type BlockSets struct {
	LiveIn  map[ir.VarID]bool
	LiveOut map[ir.VarID]bool
}

// Info is the liveness result for one routine's graph: per-block
// live-in/live-out sets plus the set of variables whose address is
// taken somewhere in the routine (conservatively live across every
// block that contains an indirect operand naming them).
type Info struct {
	Blocks map[int]*BlockSets

	// AddressTaken maps a variable to true if some instruction's
	// AddressExpr names its declaration; such variables are treated as
	// live across any block with an indirect operand that might alias
	// them, per §4.3.
	AddressTaken map[ir.VarID]bool
}

// Compute runs the standard backward fixpoint over g: for each block,
// liveOut = union(liveIn(succ)), liveIn = use ∪ (liveOut - def).
// Address-taken variables are folded into every block's liveIn/liveOut
// that contains an indirect operand, since their points-to set may
// include any address-taken declaration.
func Compute(g *cfg.Graph, vars *ir.VarTable, decls *ir.DeclTable) *Info {
	info := &Info{Blocks: make(map[int]*BlockSets, len(g.Blocks)), AddressTaken: map[ir.VarID]bool{}}

	for _, b := range g.Blocks {
		info.Blocks[b.ID] = &BlockSets{LiveIn: map[ir.VarID]bool{}, LiveOut: map[ir.VarID]bool{}}
	}

	addressTakenDecls := collectAddressTaken(g)
	markAddressTakenVars(info, vars, addressTakenDecls)

	changed := true

	for changed {
		changed = false

		for i := len(g.Blocks) - 1; i >= 0; i-- {
			b := g.Blocks[i]
			sets := info.Blocks[b.ID]

			newOut := map[ir.VarID]bool{}

			for _, succ := range b.Succs {
				for v := range info.Blocks[succ].LiveIn {
					newOut[v] = true
				}
			}

			use, def := useDef(b)

			newIn := map[ir.VarID]bool{}

			for v := range use {
				newIn[v] = true
			}

			for v := range newOut {
				if !def[v] {
					newIn[v] = true
				}
			}

			if hasIndirect(b) {
				for v := range info.AddressTaken {
					newIn[v] = true
					newOut[v] = true
				}
			}

			if !setEqual(sets.LiveIn, newIn) || !setEqual(sets.LiveOut, newOut) {
				changed = true
			}

			sets.LiveIn = newIn
			sets.LiveOut = newOut
		}
	}

	return info
}

func collectAddressTaken(g *cfg.Graph) map[ir.DeclID]bool {
	out := map[ir.DeclID]bool{}

	for _, b := range g.Blocks {
		for _, in := range b.Insns {
			if in.Dst.Kind == ir.OperandAddressExpr {
				out[in.Dst.AddrExpr.Target] = true
			}

			for i := 0; i < in.NumSrc && i < 3; i++ {
				if in.Src[i].Kind == ir.OperandAddressExpr {
					out[in.Src[i].AddrExpr.Target] = true
				}
			}
		}
	}

	return out
}

func markAddressTakenVars(info *Info, vars *ir.VarTable, declSet map[ir.DeclID]bool) {
	for vid := 1; vid < vars.Len(); vid++ {
		v := ir.VarID(vid)
		if declSet[vars.Get(v).Decl] {
			info.AddressTaken[v] = true
		}
	}
}

func hasIndirect(b *cfg.Block) bool {
	for _, in := range b.Insns {
		if in.Dst.Kind == ir.OperandIndirect {
			return true
		}

		for i := 0; i < in.NumSrc && i < 3; i++ {
			if in.Src[i].Kind == ir.OperandIndirect {
				return true
			}
		}
	}

	return false
}

// useDef returns the set of variables used (read) and defined (written)
// anywhere in the block, ignoring intra-block ordering: the allocator
// only needs block-granularity liveness, per §4.3/§4.4.
func useDef(b *cfg.Block) (use, def map[ir.VarID]bool) {
	use = map[ir.VarID]bool{}
	def = map[ir.VarID]bool{}

	for _, in := range b.Insns {
		if in.Predicate != nil {
			noteUse(use, def, in.Predicate.Var)
		}

		noteDef(use, def, in.Dst)

		for i := 0; i < in.NumSrc && i < 3; i++ {
			noteUse2(use, def, in.Src[i])
		}
	}

	return use, def
}

func noteDef(use, def map[ir.VarID]bool, op ir.Operand) {
	switch op.Kind {
	case ir.OperandDst:
		if !def[op.Dst.Base] {
			def[op.Dst.Base] = true
		}
	case ir.OperandIndirect:
		// an indirect destination may or may not write the addressed
		// variable; conservatively treat it as a use, not a kill.
		noteUse(use, def, op.Indirect.AddrVar)
	}
}

func noteUse2(use, def map[ir.VarID]bool, op ir.Operand) {
	switch op.Kind {
	case ir.OperandSrc:
		noteUse(use, def, op.Src.Base)
	case ir.OperandIndirect:
		noteUse(use, def, op.Indirect.AddrVar)
	case ir.OperandRaw:
		noteUse(use, def, op.Raw.Var)
	case ir.OperandStateHandle:
		noteUse(use, def, op.State.Var)
	}
}

func noteUse(use, def map[ir.VarID]bool, v ir.VarID) {
	if v != 0 && !def[v] {
		use[v] = true
	}
}

func setEqual(a, b map[ir.VarID]bool) bool {
	if len(a) != len(b) {
		return false
	}

	for k := range a {
		if !b[k] {
			return false
		}
	}

	return true
}

// Oracle answers "do variables i and j overlap in any block" by
// intersecting each block's live set with the instruction-level
// def points. The spill manager consults it when deciding whether two
// spilled declarations may share a scratch slot (§4.5).
type Oracle struct {
	info *Info
}

// NewOracle builds an interference oracle over an already-computed
// Info.
func NewOracle(info *Info) *Oracle { return &Oracle{info: info} }

// Interferes reports whether a and b are simultaneously live in at
// least one block (entry or exit), a sound over-approximation of true
// interference sufficient to drive conservative spill/fill decisions.
func (o *Oracle) Interferes(a, b ir.VarID) bool {
	if a == b {
		return false
	}

	for _, sets := range o.info.Blocks {
		if (sets.LiveIn[a] && sets.LiveIn[b]) || (sets.LiveOut[a] && sets.LiveOut[b]) {
			return true
		}
	}

	return false
}
