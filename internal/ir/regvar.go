package ir

// TransientKind classifies register variables synthesized by a pass
// rather than declared by the embedder or the byte-code stream.
type TransientKind uint8

const (
	TransientNone TransientKind = iota
	TransientSpillTemp
	TransientFillTemp
	TransientTmp
)

// PhysicalAssignment is the physical location a RegisterVariable has
// been bound to by the allocator.
type PhysicalAssignment struct {
	GRF    uint32 // physical GRF row number
	SubReg uint32 // sub-register word offset within the row
}

// RegisterVariable is the runtime handle attached to a Declaration. It
// carries an optional physical assignment plus the flags the allocator
// and spill manager need to treat it specially.
type RegisterVariable struct {
	Decl DeclID

	Physical   *PhysicalAssignment
	PreAssign  bool
	Spilled    bool
	IsInput    bool
	IsOutput   bool
	IsEOT      bool // must land in the last sixteen GRFs of the file
	IsIndirect bool // address is taken somewhere in the program

	Transient       TransientKind
	InducedByDecl   DeclID // parent declaration the transient was spilled/filled for
	InducedByRegion *Region // the region access that produced this transient, if any
}

// IsPhysical reports whether the variable has a concrete GRF+subreg
// binding (either pre-assigned or allocator-assigned).
func (v *RegisterVariable) IsPhysical() bool { return v.Physical != nil }

// VarID indexes into a VarTable.
type VarID uint32

// VarTable owns every RegisterVariable for one compilation.
type VarTable struct {
	vars []RegisterVariable
}

// NewVarTable creates an empty register-variable table.
func NewVarTable() *VarTable {
	return &VarTable{vars: make([]RegisterVariable, 1, 64)}
}

// Add appends a new register variable and returns its id.
func (t *VarTable) Add(v RegisterVariable) VarID {
	id := VarID(len(t.vars))
	t.vars = append(t.vars, v)

	return id
}

// Get returns the register variable for id.
func (t *VarTable) Get(id VarID) *RegisterVariable { return &t.vars[id] }

// Valid reports whether id names a variable in this table.
func (t *VarTable) Valid(id VarID) bool { return id != 0 && int(id) < len(t.vars) }

// Len returns the number of variables, including the reserved slot 0.
func (t *VarTable) Len() int { return len(t.vars) }
