package bytecode

import "fmt"

// VarDecl is the raw, not-yet-semantic record for one general/address/
// predicate variable declared in a routine's local header: an id, an
// optional alias-parent id (0 = none) plus byte offset, and the raw
// type/row/word counts. The builder turns these into ir.Declaration
// values; this package only has to preserve the on-disk fields.
type VarDecl struct {
	ID          uint32
	NameIdx     uint32
	TypeCode    uint8
	NumElements uint32
	AliasParent uint32
	AliasOffset uint32
}

// LabelDecl is one label table entry: an id and its textual name.
type LabelDecl struct {
	ID      uint32
	NameIdx uint32
	Kind    uint8 // 0 = block, 1 = subroutine, 2 = function-call
}

// InputDecl is one kernel input-argument binding. DeclID names the
// general/address/predicate declaration this input binds, resolved
// against the routine's own variable tables.
type InputDecl struct {
	DeclID       uint32
	Offset       uint32
	Size         uint32
	ImplicitKind uint8
}

// Attribute is one kernel/function attribute: selected by name, carrying
// a bool, a 32-bit int, or a C-string payload.
type Attribute struct {
	NameIdx uint32
	Kind    uint8 // 0=bool,1=int32,2=string
	Bool    bool
	Int32   int32
	Str     string
}

// RoutineHeader is the per-kernel or per-function local header of §6:
// a string pool, a name index, then sequential tables for general
// variables, address variables, predicate variables, labels, samplers,
// surfaces, inputs (kernels only), plus body size / entry offset /
// input-output sizes (functions only) and attributes.
type RoutineHeader struct {
	Strings []string
	NameIdx uint32

	GeneralVars   []VarDecl
	AddressVars   []VarDecl
	PredicateVars []VarDecl
	Labels        []LabelDecl
	Samplers      []VarDecl
	Surfaces      []VarDecl

	Inputs []InputDecl // kernels only

	BodySize   uint32
	EntryOffset uint32

	InputSize  uint32 // functions only
	ReturnSize uint32 // functions only

	Attributes []Attribute
}

// ReadRoutineHeader parses one routine's local header per §6. isKernel
// selects whether the inputs table (kernel) or the input/return size
// pair (function) follows the samplers/surfaces tables.
func ReadRoutineHeader(r *Reader, w FieldWidths, isKernel bool) (*RoutineHeader, error) {
	strs, err := r.StringPool()
	if err != nil {
		return nil, fmt.Errorf("bytecode: routine string pool: %w", err)
	}

	nameIdx, err := r.FileIdx(w)
	if err != nil {
		return nil, fmt.Errorf("bytecode: routine name index: %w", err)
	}

	h := &RoutineHeader{Strings: strs, NameIdx: nameIdx}

	if h.GeneralVars, err = readVarTable(r, w); err != nil {
		return nil, fmt.Errorf("bytecode: general variables: %w", err)
	}

	if h.AddressVars, err = readVarTable(r, w); err != nil {
		return nil, fmt.Errorf("bytecode: address variables: %w", err)
	}

	if h.PredicateVars, err = readVarTable(r, w); err != nil {
		return nil, fmt.Errorf("bytecode: predicate variables: %w", err)
	}

	if h.Labels, err = readLabelTable(r, w); err != nil {
		return nil, fmt.Errorf("bytecode: labels: %w", err)
	}

	if h.Samplers, err = readVarTable(r, w); err != nil {
		return nil, fmt.Errorf("bytecode: samplers: %w", err)
	}

	// Surfaces are preceded by an unused vme-count byte whose value must
	// be zero (§6).
	vmeCount, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("bytecode: vme-count byte: %w", err)
	}

	if vmeCount != 0 {
		return nil, fmt.Errorf("bytecode: vme-count byte must be zero, got %d", vmeCount)
	}

	if h.Surfaces, err = readVarTable(r, w); err != nil {
		return nil, fmt.Errorf("bytecode: surfaces: %w", err)
	}

	if isKernel {
		if h.Inputs, err = readInputTable(r, w); err != nil {
			return nil, fmt.Errorf("bytecode: inputs: %w", err)
		}
	}

	if h.BodySize, err = r.U32(); err != nil {
		return nil, fmt.Errorf("bytecode: body size: %w", err)
	}

	if h.EntryOffset, err = r.U32(); err != nil {
		return nil, fmt.Errorf("bytecode: entry offset: %w", err)
	}

	if !isKernel {
		if h.InputSize, err = r.U32(); err != nil {
			return nil, fmt.Errorf("bytecode: function input size: %w", err)
		}

		if h.ReturnSize, err = r.U32(); err != nil {
			return nil, fmt.Errorf("bytecode: function return size: %w", err)
		}
	}

	if h.Attributes, err = readAttributeTable(r, w); err != nil {
		return nil, fmt.Errorf("bytecode: attributes: %w", err)
	}

	return h, nil
}

func readVarTable(r *Reader, w FieldWidths) ([]VarDecl, error) {
	count, err := r.U32()
	if err != nil {
		return nil, err
	}

	out := make([]VarDecl, count)

	for i := range out {
		id, err := r.UID(w)
		if err != nil {
			return nil, err
		}

		nameIdx, err := r.FileIdx(w)
		if err != nil {
			return nil, err
		}

		typeCode, err := r.U8()
		if err != nil {
			return nil, err
		}

		nElem, err := r.U32()
		if err != nil {
			return nil, err
		}

		aliasParent, err := r.UID(w)
		if err != nil {
			return nil, err
		}

		aliasOffset, err := r.U32()
		if err != nil {
			return nil, err
		}

		out[i] = VarDecl{
			ID: id, NameIdx: nameIdx, TypeCode: typeCode, NumElements: nElem,
			AliasParent: aliasParent, AliasOffset: aliasOffset,
		}
	}

	return out, nil
}

func readLabelTable(r *Reader, w FieldWidths) ([]LabelDecl, error) {
	count, err := r.U32()
	if err != nil {
		return nil, err
	}

	out := make([]LabelDecl, count)

	for i := range out {
		id, err := r.UID(w)
		if err != nil {
			return nil, err
		}

		nameIdx, err := r.FileIdx(w)
		if err != nil {
			return nil, err
		}

		kind, err := r.U8()
		if err != nil {
			return nil, err
		}

		out[i] = LabelDecl{ID: id, NameIdx: nameIdx, Kind: kind}
	}

	return out, nil
}

func readInputTable(r *Reader, w FieldWidths) ([]InputDecl, error) {
	count, err := r.InputCount(w)
	if err != nil {
		return nil, err
	}

	out := make([]InputDecl, count)

	for i := range out {
		declID, err := r.UID(w)
		if err != nil {
			return nil, err
		}

		offset, err := r.U32()
		if err != nil {
			return nil, err
		}

		size, err := r.U32()
		if err != nil {
			return nil, err
		}

		kind, err := r.U8()
		if err != nil {
			return nil, err
		}

		out[i] = InputDecl{DeclID: declID, Offset: offset, Size: size, ImplicitKind: kind}
	}

	return out, nil
}

func readAttributeTable(r *Reader, w FieldWidths) ([]Attribute, error) {
	count, err := r.U32()
	if err != nil {
		return nil, err
	}

	out := make([]Attribute, count)

	for i := range out {
		nameIdx, err := r.FileIdx(w)
		if err != nil {
			return nil, err
		}

		kind, err := r.U8()
		if err != nil {
			return nil, err
		}

		attr := Attribute{NameIdx: nameIdx, Kind: kind}

		switch kind {
		case 0:
			b, err := r.U8()
			if err != nil {
				return nil, err
			}

			attr.Bool = b != 0
		case 1:
			v, err := r.U32()
			if err != nil {
				return nil, err
			}

			attr.Int32 = int32(v)
		case 2:
			s, err := r.CString()
			if err != nil {
				return nil, err
			}

			attr.Str = s
		default:
			return nil, fmt.Errorf("bytecode: unknown attribute kind %d for attribute %d", kind, i)
		}

		out[i] = attr
	}

	return out, nil
}
