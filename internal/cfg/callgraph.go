package cfg

// FuncInfo is the per-function bookkeeping §4.1/§4.2 require: init/exit
// blocks, call sites, and a scope id used by debug-info and stitching.
type FuncInfo struct {
	Name string

	InitBlock int
	ExitBlock int

	CallSites []CallSite

	ScopeID int
	IsKernel  bool
	IsExtern  bool // treated as a root rather than stitched, under noStitchExternFunc
}

// CallSite is one call instruction's block id plus the callee name.
type CallSite struct {
	BlockID int
	Callee  string
}

// CallGraph holds every function's FuncInfo plus a reverse-topological
// order over the call relation (leaves first), used to drive stitching
// bottom-up and to process allocation leaf functions before their
// callers.
type CallGraph struct {
	Funcs map[string]*FuncInfo
	Order []string // reverse topological: callees before callers
}

// NewCallGraph builds a CallGraph from a set of FuncInfos, each of whose
// CallSites names a callee by function name.
func NewCallGraph(funcs map[string]*FuncInfo) *CallGraph {
	cg := &CallGraph{Funcs: funcs}
	cg.Order = cg.reverseTopoSort()

	return cg
}

// reverseTopoSort performs a DFS post-order over the call relation;
// the post-order of a DFS over "caller -> callee" edges is exactly the
// reverse-topological order the spec calls for (leaves/callees first).
func (cg *CallGraph) reverseTopoSort() []string {
	visited := make(map[string]bool, len(cg.Funcs))

	var order []string

	var names []string
	for name := range cg.Funcs {
		names = append(names, name)
	}

	names = sortStrings(names)

	var visit func(name string)

	visit = func(name string) {
		if visited[name] {
			return
		}

		visited[name] = true

		fi, ok := cg.Funcs[name]
		if !ok {
			return
		}

		callees := sortStrings(calleeNames(fi.CallSites))
		for _, callee := range callees {
			if _, exists := cg.Funcs[callee]; exists {
				visit(callee)
			}
		}

		order = append(order, name)
	}

	for _, name := range names {
		visit(name)
	}

	return order
}

func calleeNames(sites []CallSite) []string {
	out := make([]string, 0, len(sites))
	seen := map[string]bool{}

	for _, s := range sites {
		if !seen[s.Callee] {
			seen[s.Callee] = true

			out = append(out, s.Callee)
		}
	}

	return out
}

func sortStrings(s []string) []string {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}

	return s
}

// CalledBy returns the sorted names of the functions that call callee,
// i.e. every caller a callee's IR would be spliced into.
func (cg *CallGraph) CalledBy(callee string) []string {
	var callers []string

	for name, fi := range cg.Funcs {
		for _, cs := range fi.CallSites {
			if cs.Callee == callee {
				callers = append(callers, name)

				break
			}
		}
	}

	return sortStrings(callers)
}
