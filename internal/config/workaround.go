package config

// Workaround enumerates a platform/stepping-specific behavior the
// allocator or spill manager must special-case. The table that decides
// which workarounds are active for a given platform is the host
// driver's responsibility (§1 Non-goals: "workaround tables" are an
// external collaborator) — this package only carries the frozen struct
// the driver hands in.
type Workaround int

const (
	WANoIndirectSpill Workaround = iota
	WAForceEvenGRFAlign
	WAReserveExtraDebugGRF
	WADisableSpillCompression
)

// WorkaroundTable is a frozen, boolean-keyed configuration struct (§9):
// callers build one and pass it by reference; nothing in this module
// ever mutates a WorkaroundTable it was handed; Set and
// LoadWorkaroundTable return new tables instead.
type WorkaroundTable struct {
	enabled map[Workaround]bool
}

// NewWorkaroundTable builds a table with every workaround disabled.
func NewWorkaroundTable() *WorkaroundTable {
	return &WorkaroundTable{enabled: map[Workaround]bool{}}
}

// Enabled reports whether wa is active in this table.
func (t *WorkaroundTable) Enabled(wa Workaround) bool {
	if t == nil {
		return false
	}

	return t.enabled[wa]
}

// Set enables or disables wa, returning a new table so the caller's
// existing reference stays frozen; this mirrors the append-only, never
// mutate-in-place discipline §9 asks for.
func (t *WorkaroundTable) Set(wa Workaround, on bool) *WorkaroundTable {
	next := &WorkaroundTable{enabled: make(map[Workaround]bool, len(t.enabled)+1)}

	for k, v := range t.enabled {
		next.enabled[k] = v
	}

	next.enabled[wa] = on

	return next
}
