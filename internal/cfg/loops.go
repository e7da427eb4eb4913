package cfg

// ComputeNaturalLoops discovers back edges (tail → head where head
// dominates tail) and, for each, collects the set of blocks that reach
// the tail without passing through the head — the natural loop body —
// per §4.2. Computes dominators first if they have not been computed.
func (g *Graph) ComputeNaturalLoops() {
	g.BackEdges = nil
	g.NaturalLoops = map[int][]int{}

	if !g.idomComputed {
		g.ComputeDominators()
	}

	for _, b := range g.Blocks {
		for _, s := range b.Succs {
			if g.Dominates(s, b.ID) {
				g.BackEdges = append(g.BackEdges, Edge{From: b.ID, To: s})
			}
		}
	}

	for _, e := range g.BackEdges {
		body := g.naturalLoopBody(e.To, e.From)

		existing := g.NaturalLoops[e.To]
		g.NaturalLoops[e.To] = mergeSorted(existing, body)
	}

	for header, body := range g.NaturalLoops {
		for _, id := range body {
			blk := g.Block(id)
			if blk == nil {
				continue
			}

			blk.InNaturalLoop = true
			blk.LoopNestLevel++
		}

		_ = header
	}
}

// naturalLoopBody collects, via reverse-edge walk from tail, every block
// that reaches tail without going through head, plus head and tail
// themselves.
func (g *Graph) naturalLoopBody(head, tail int) []int {
	body := map[int]bool{head: true, tail: true}

	stack := []int{tail}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		blk := g.Block(id)
		if blk == nil {
			continue
		}

		for _, p := range blk.Preds {
			if !body[p] {
				body[p] = true

				stack = append(stack, p)
			}
		}
	}

	out := make([]int, 0, len(body))
	for id := range body {
		out = append(out, id)
	}

	return sortInts(out)
}

func sortInts(ids []int) []int {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}

	return ids
}

func mergeSorted(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))

	for _, x := range a {
		seen[x] = true
	}

	for _, x := range b {
		seen[x] = true
	}

	out := make([]int, 0, len(seen))
	for x := range seen {
		out = append(out, x)
	}

	return sortInts(out)
}

// IsLoopHeader reports whether id is the head of some natural loop.
func (g *Graph) IsLoopHeader(id int) bool {
	_, ok := g.NaturalLoops[id]

	return ok
}
