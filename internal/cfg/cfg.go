// Package cfg builds and analyzes the control-flow graph over a linear
// vISA instruction stream: basic-block leader/terminator discovery, edge
// construction, unreachable-block removal, dominators, natural loops,
// and the call graph. See spec §4.2.
package cfg

import (
	"sort"

	"github.com/0o001/visa-finalizer/internal/ir"
)

// BlockClass is a bitmask classifying a basic block's role.
type BlockClass uint8

const (
	ClassCall BlockClass = 1 << iota
	ClassReturn
	ClassInit
	ClassExit
)

// Block is an ordered instruction list plus the bookkeeping the
// allocator, liveness, and the spill manager all need.
type Block struct {
	ID int

	Insns []*ir.Instruction

	Preds []int
	Succs []int

	// PhysPred/PhysSucc mirror the physical layout order emitted to the
	// binary; recomputed whenever block order changes (§4.2).
	PhysPred []int
	PhysSucc []int

	IDom int // immediate dominator block id, -1 for the entry block

	PreOrder  int
	RPOrder   int

	Class BlockClass

	LoopNestLevel int
	InNaturalLoop bool

	ContainsSend bool
}

// HasClass reports whether c is set on the block.
func (b *Block) HasClass(c BlockClass) bool { return b.Class&c != 0 }

// Edge is a directed control-flow edge between two block ids.
type Edge struct {
	From, To int
}

// Graph is the control-flow graph for one function or kernel body.
type Graph struct {
	Entry  int
	Blocks []*Block

	BackEdges []Edge

	// NaturalLoops maps a loop header block id to the set of block ids
	// in its body (including the header).
	NaturalLoops map[int][]int

	// dominance frontier-free dominator tree: parent[i] = IDom(i).
	idomComputed bool
}

// NewGraph constructs a Graph from a flat instruction stream using the
// leader/terminator rules of §4.2:
//   - a block begins at: program start, every label target, and every
//     instruction following a branch, call, return, or end-of-thread
//     send;
//   - a block ends at: a branch, call, return, end-of-thread send, or
//     the instruction before a new label.
func NewGraph(insns []*ir.Instruction, labelTargets map[string]int) *Graph {
	if len(insns) == 0 {
		return &Graph{Entry: -1, NaturalLoops: map[int][]int{}}
	}

	leaders := make(map[int]bool)
	leaders[0] = true

	for i, in := range insns {
		if in.Op == ir.OpLabel {
			leaders[i] = true
		}

		if i > 0 && insns[i-1].IsBlockTerminator() {
			leaders[i] = true
		}
	}

	var leaderIdx []int

	for idx := range leaders {
		leaderIdx = append(leaderIdx, idx)
	}

	sort.Ints(leaderIdx)

	blocks := make([]*Block, 0, len(leaderIdx))
	startOf := make(map[int]int, len(leaderIdx)) // instruction index -> block id

	for bi, start := range leaderIdx {
		end := len(insns)
		if bi+1 < len(leaderIdx) {
			end = leaderIdx[bi+1]
		}

		b := &Block{ID: bi, Insns: insns[start:end], IDom: -1}

		for _, in := range b.Insns {
			if in.Op == ir.OpSend || in.Op == ir.OpSendSplit {
				b.ContainsSend = true
			}
		}

		blocks = append(blocks, b)
		startOf[start] = bi
	}

	g := &Graph{Entry: 0, Blocks: blocks, NaturalLoops: map[int][]int{}}

	g.buildEdges(insns, leaderIdx, startOf, labelTargets)
	g.removeUnreachable()
	g.recomputePhysicalOrder()

	return g
}

// buildEdges wires fall-through, branch, call, and return edges. The
// fall-through successor, when present, is kept first in the successor
// list per the invariant in §3.
func (g *Graph) buildEdges(insns []*ir.Instruction, leaderIdx []int, startOf map[int]int, labelTargets map[string]int) {
	for bi, b := range g.Blocks {
		if len(b.Insns) == 0 {
			continue
		}

		last := b.Insns[len(b.Insns)-1]
		nextBlock := bi + 1

		fallsThrough := !last.IsBlockTerminator()

		switch last.Op {
		case ir.OpJump, ir.OpGoto:
			if tgt, ok := resolveLabelTarget(last, labelTargets, startOf); ok {
				addEdge(b, g.Blocks[tgt], false)
			}

			if last.Predicate != nil {
				// conditional branch also falls through
				if nextBlock < len(g.Blocks) {
					addEdge(b, g.Blocks[nextBlock], true)
				}
			}
		case ir.OpCall, ir.OpFuncCall:
			// The label operand names the callee routine, not a local
			// OpLabel target, so it is never resolvable through
			// labelTargets: pre-stitch this is a pseudo call whose single
			// successor is the call-return continuation; post-stitch
			// (builder/stitch.go) the callee's body is spliced in
			// immediately after the call site with no OpLabel instruction
			// marking its entry. In both cases the physically next block is
			// the right (and only) successor.
			b.Class |= ClassCall

			if nextBlock < len(g.Blocks) {
				addEdge(b, g.Blocks[nextBlock], true)
			}
		case ir.OpReturn:
			// a true routine/kernel exit: no successor.
			b.Class |= ClassReturn
		case ir.OpFuncRet:
			// a stitched-in callee's return, inlined mid-stream: falls
			// through to whatever instruction the caller had next.
			b.Class |= ClassReturn

			if nextBlock < len(g.Blocks) {
				addEdge(b, g.Blocks[nextBlock], true)
			}
		case ir.OpSwitchJump:
			for _, src := range last.Src {
				if src.Kind == ir.OperandLabel {
					if tgt, ok := startOf[src.Lbl.Target]; ok {
						addEdge(b, g.Blocks[tgt], false)
					}
				}
			}
		default:
			if fallsThrough && nextBlock < len(g.Blocks) {
				addEdge(b, g.Blocks[nextBlock], true)
			}
		}
	}
}

// resolveLabelTarget finds the destination block for a branch/call
// instruction's label operand.
func resolveLabelTarget(in *ir.Instruction, labelTargets map[string]int, startOf map[int]int) (int, bool) {
	for _, src := range in.Src[:in.NumSrc] {
		if src.Kind == ir.OperandLabel {
			instrIdx, ok := labelTargets[src.Lbl.Name]
			if !ok {
				return 0, false
			}

			blockID, ok := startOf[instrIdx]

			return blockID, ok
		}
	}

	return 0, false
}

// addEdge records a directed edge; fallThrough edges are inserted at the
// front of the successor/predecessor list so they stay first.
func addEdge(from, to *Block, fallThrough bool) {
	if fallThrough {
		from.Succs = append([]int{to.ID}, from.Succs...)
		to.Preds = append([]int{from.ID}, to.Preds...)

		return
	}

	from.Succs = append(from.Succs, to.ID)
	to.Preds = append(to.Preds, from.ID)
}

// removeUnreachable drops blocks with no predecessor that are not the
// entry block, per §4.2.
func (g *Graph) removeUnreachable() {
	if g.Entry < 0 || g.Entry >= len(g.Blocks) {
		return
	}

	reachable := make(map[int]bool)
	queue := []int{g.Entry}
	reachable[g.Entry] = true

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, s := range g.Blocks[id].Succs {
			if !reachable[s] {
				reachable[s] = true
				queue = append(queue, s)
			}
		}
	}

	kept := make([]*Block, 0, len(g.Blocks))
	remap := make(map[int]int)

	for _, b := range g.Blocks {
		if reachable[b.ID] {
			remap[b.ID] = len(kept)
			kept = append(kept, b)
		}
	}

	for _, b := range kept {
		b.Preds = remapFiltered(b.Preds, remap)
		b.Succs = remapFiltered(b.Succs, remap)
		b.ID = remap[b.ID]
	}

	g.Entry = remap[g.Entry]
	g.Blocks = kept
}

func remapFiltered(ids []int, remap map[int]int) []int {
	out := ids[:0]

	for _, id := range ids {
		if nid, ok := remap[id]; ok {
			out = append(out, nid)
		}
	}

	return append([]int(nil), out...)
}

// recomputePhysicalOrder sets PhysPred/PhysSucc to the current block
// layout order (linear list order), recomputed whenever block order
// changes per §4.2.
func (g *Graph) recomputePhysicalOrder() {
	for i, b := range g.Blocks {
		b.PhysPred = nil
		b.PhysSucc = nil

		if i > 0 {
			b.PhysPred = []int{g.Blocks[i-1].ID}
		}

		if i+1 < len(g.Blocks) {
			b.PhysSucc = []int{g.Blocks[i+1].ID}
		}
	}
}

// Block returns the block with the given id, or nil if out of range.
func (g *Graph) Block(id int) *Block {
	if id < 0 || id >= len(g.Blocks) {
		return nil
	}

	return g.Blocks[id]
}
