package ir

// DeclID uniquely identifies a Declaration within one compilation. The
// zero value means "no declaration" (used as the alias-root sentinel).
type DeclID uint32

// Declaration is named storage holding NumElements scalars of one Type,
// resident in one RegFile. Aliasing forms a tree whose root is the
// backing storage; AliasParent is 0 (invalid) for roots.
type Declaration struct {
	ID    DeclID
	Name  string
	File  RegFile
	Type  DataType
	NElem uint32

	RowCount  uint32 // multiples of one GRF width
	WordCount uint32 // used for sub-GRF declarations

	AliasParent DeclID // 0 if this is a root declaration
	AliasOffset uint32 // byte offset into AliasParent's storage

	Align    Alignment
	SubAlign SubAlignment

	// Bookkeeping the builder fills in; not part of the declaration's
	// identity.
	IsInput  bool
	IsOutput bool
}

// IsAlias reports whether this declaration aliases another.
func (d *Declaration) IsAlias() bool { return d.AliasParent != 0 }

// ByteSize returns the storage footprint of the declaration in bytes.
func (d *Declaration) ByteSize() uint32 {
	if d.RowCount > 0 {
		return d.RowCount * DefaultGRFBytes
	}

	return d.WordCount * 2
}

// DeclTable owns every Declaration created for one compilation. It is
// arena-scoped: the slice grows for the duration of the compilation and
// is discarded with the arena.
type DeclTable struct {
	decls []Declaration
}

// NewDeclTable creates an empty declaration table.
func NewDeclTable() *DeclTable {
	return &DeclTable{decls: make([]Declaration, 1, 64)} // index 0 reserved as "invalid"
}

// Add appends a new declaration and returns its id.
func (t *DeclTable) Add(d Declaration) DeclID {
	id := DeclID(len(t.decls))
	d.ID = id
	t.decls = append(t.decls, d)

	return id
}

// Get returns the declaration for id. It panics on an out-of-range id,
// the same contract as a slice index: callers validate ids against the
// table before dereferencing, exactly where the byte-code reader and the
// direct-API builder must surface errors.StandardError instead.
func (t *DeclTable) Get(id DeclID) *Declaration {
	return &t.decls[id]
}

// Valid reports whether id names a declaration in this table.
func (t *DeclTable) Valid(id DeclID) bool {
	return id != 0 && int(id) < len(t.decls)
}

// Len returns the number of declarations, including the reserved slot 0.
func (t *DeclTable) Len() int { return len(t.decls) }

// AliasRoot walks the alias tree to its backing-storage root and returns
// the root id plus the cumulative byte offset from the root.
func (t *DeclTable) AliasRoot(id DeclID) (root DeclID, offset uint32) {
	cur := id
	off := uint32(0)

	for {
		d := t.Get(cur)
		if !d.IsAlias() {
			return cur, off
		}

		off += d.AliasOffset
		cur = d.AliasParent
	}
}
