package cfg

// ComputeDominators computes the immediate dominator of every block by
// iterative intersection over the reverse post order, the standard
// Cooper/Harvey/Kennedy algorithm, per §4.2 ("Dominators by iterative
// intersection on the reverse post order").
func (g *Graph) ComputeDominators() {
	if g.Entry < 0 || len(g.Blocks) == 0 {
		return
	}

	order := g.reversePostOrder()
	rpoIndex := make(map[int]int, len(order))

	for i, id := range order {
		rpoIndex[id] = i
		g.Blocks[id].RPOrder = i
	}

	idom := make(map[int]int, len(g.Blocks))
	idom[g.Entry] = g.Entry

	changed := true
	for changed {
		changed = false

		for _, id := range order {
			if id == g.Entry {
				continue
			}

			b := g.Blocks[id]

			var newIdom int

			first := true

			for _, p := range b.Preds {
				if _, ok := idom[p]; !ok {
					continue
				}

				if first {
					newIdom = p
					first = false

					continue
				}

				newIdom = intersect(p, newIdom, idom, rpoIndex)
			}

			if first {
				continue
			}

			if cur, ok := idom[id]; !ok || cur != newIdom {
				idom[id] = newIdom
				changed = true
			}
		}
	}

	for _, b := range g.Blocks {
		if d, ok := idom[b.ID]; ok && d != b.ID {
			b.IDom = d
		} else if b.ID == g.Entry {
			b.IDom = -1
		}
	}

	g.idomComputed = true
	g.assignPreOrder()
}

func intersect(a, b int, idom map[int]int, rpoIndex map[int]int) int {
	for a != b {
		for rpoIndex[a] > rpoIndex[b] {
			a = idom[a]
		}

		for rpoIndex[b] > rpoIndex[a] {
			b = idom[b]
		}
	}

	return a
}

// reversePostOrder returns block ids in reverse post-order starting at
// Entry.
func (g *Graph) reversePostOrder() []int {
	visited := make([]bool, len(g.Blocks))

	var post []int

	var dfs func(id int)

	dfs = func(id int) {
		if id < 0 || id >= len(g.Blocks) || visited[id] {
			return
		}

		visited[id] = true

		for _, s := range g.Blocks[id].Succs {
			dfs(s)
		}

		post = append(post, id)
	}

	dfs(g.Entry)

	// reverse post to get RPO
	rpo := make([]int, len(post))
	for i, id := range post {
		rpo[len(post)-1-i] = id
	}

	return rpo
}

// assignPreOrder assigns a DFS pre-order number to every block and
// stores it in the block's PreOrder field.
func (g *Graph) assignPreOrder() {
	visited := make([]bool, len(g.Blocks))
	counter := 0

	var dfs func(id int)

	dfs = func(id int) {
		if id < 0 || id >= len(g.Blocks) || visited[id] {
			return
		}

		visited[id] = true
		g.Blocks[id].PreOrder = counter
		counter++

		for _, s := range g.Blocks[id].Succs {
			dfs(s)
		}
	}

	dfs(g.Entry)
}

// Dominates reports whether block a dominates block b.
func (g *Graph) Dominates(a, b int) bool {
	if a == b {
		return true
	}

	cur := b

	for {
		blk := g.Block(cur)
		if blk == nil || blk.IDom < 0 {
			return false
		}

		if blk.IDom == a {
			return true
		}

		cur = blk.IDom
	}
}
