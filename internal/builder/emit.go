package builder

import (
	"sort"

	"github.com/0o001/visa-finalizer/internal/bytecode"
	"github.com/0o001/visa-finalizer/internal/ir"
)

// wireVersionMajor/Minor select the byte-code version ToByteCode
// targets; (3, 6) is comfortably inside the supported range and uses
// the widest field-width table, so round trips never lose precision.
const (
	wireVersionMajor = 3
	wireVersionMinor = 6
)

// ToByteCode serializes the builder's kernels and functions to the
// little-endian wire format internal/bytecode reads, satisfying the
// serialize-then-parse testable property (§8): re-parsing the result
// with FromByteCode yields IR matching the original up to declaration
// renaming.
func (b *Builder) ToByteCode() ([]byte, error) {
	fw := bytecode.ResolveFieldWidthsForHeaderWrite(wireVersionMajor, wireVersionMinor)

	var bodies [][]byte

	var kernelTable, functionTable []bytecode.RoutineTableEntry

	for _, r := range b.Kernels {
		buf, err := b.encodeRoutine(fw, r, true)
		if err != nil {
			return nil, err
		}

		kernelTable = append(kernelTable, bytecode.RoutineTableEntry{NameIndex: 0, Size: uint32(len(buf))})
		bodies = append(bodies, buf)
	}

	for _, r := range b.Functions {
		buf, err := b.encodeRoutine(fw, r, false)
		if err != nil {
			return nil, err
		}

		functionTable = append(functionTable, bytecode.RoutineTableEntry{NameIndex: 0, Size: uint32(len(buf))})
		bodies = append(bodies, buf)
	}

	// Two-pass layout: write a placeholder header to measure its size,
	// then rewrite with real offsets now that every routine's length is
	// known, mirroring how a relocatable-binary layout is always
	// computed after all section sizes are fixed.
	headerW := bytecode.NewWriter()
	bytecode.WriteHeader(headerW, wireVersionMajor, wireVersionMinor, kernelTable, functionTable)
	headerSize := uint32(len(headerW.Bytes()))

	offset := headerSize

	for i := range kernelTable {
		kernelTable[i].Offset = offset
		offset += kernelTable[i].Size
	}

	for i := range functionTable {
		functionTable[i].Offset = offset
		offset += functionTable[i].Size
	}

	final := bytecode.NewWriter()
	bytecode.WriteHeader(final, wireVersionMajor, wireVersionMinor, kernelTable, functionTable)

	for _, body := range bodies {
		final.Bytes(body)
	}

	return final.Bytes(), nil
}

func (b *Builder) encodeRoutine(fw bytecode.FieldWidths, r *Routine, isKernel bool) ([]byte, error) {
	strings := []string{r.Name}
	stringIdx := map[string]uint32{r.Name: 0}

	intern := func(s string) uint32 {
		if idx, ok := stringIdx[s]; ok {
			return idx
		}

		idx := uint32(len(strings))
		strings = append(strings, s)
		stringIdx[s] = idx

		return idx
	}

	declIDs := b.collectDeclIDs(r)

	rh := &bytecode.RoutineHeader{NameIdx: 0}

	for _, id := range declIDs {
		d := b.Decls.Get(id)

		vd := bytecode.VarDecl{
			ID:          uint32(id),
			NameIdx:     intern(d.Name),
			TypeCode:    byte(d.Type),
			NumElements: d.NElem,
			AliasParent: uint32(d.AliasParent),
			AliasOffset: d.AliasOffset,
		}

		switch d.File {
		case ir.FileGeneral:
			rh.GeneralVars = append(rh.GeneralVars, vd)
		case ir.FileAddress:
			rh.AddressVars = append(rh.AddressVars, vd)
		case ir.FileFlag:
			rh.PredicateVars = append(rh.PredicateVars, vd)
		case ir.FileState:
			rh.Surfaces = append(rh.Surfaces, vd)
		}
	}

	for name, lbl := range r.Labels {
		rh.Labels = append(rh.Labels, bytecode.LabelDecl{ID: uint32(lbl.Target + 1), NameIdx: intern(name), Kind: uint8(lbl.Kind)})
	}

	sort.Slice(rh.Labels, func(i, j int) bool { return rh.Labels[i].ID < rh.Labels[j].ID })

	for _, declID := range r.Inputs {
		d := b.Decls.Get(declID)
		rh.Inputs = append(rh.Inputs, bytecode.InputDecl{
			DeclID: uint32(declID),
			Offset: r.InputOffsets[declID],
			Size:   d.ByteSize(),
		})
	}

	for _, attr := range r.Attributes {
		wa := bytecode.Attribute{NameIdx: intern(attr.Name), Kind: uint8(attr.Kind)}

		switch attr.Kind {
		case AttrBool:
			wa.Bool = attr.Bool
		case AttrInt32:
			wa.Int32 = attr.Int32
		case AttrString:
			wa.Str = attr.Str
		}

		rh.Attributes = append(rh.Attributes, wa)
	}

	bodyW := bytecode.NewWriter()

	for _, ins := range r.Insns {
		buf, err := bytecode.EncodeInstruction(nil, fw, ins)
		if err != nil {
			return nil, err
		}

		bodyW.Bytes(buf)
	}

	rh.BodySize = uint32(len(bodyW.Bytes()))
	rh.Strings = strings

	w := bytecode.NewWriter()
	bytecode.WriteRoutineHeader(w, fw, rh, isKernel)
	w.Bytes(bodyW.Bytes())

	return w.Bytes(), nil
}

// collectDeclIDs gathers every declaration referenced, directly or
// through an operand's base variable, by r's instructions or inputs,
// plus every declaration transitively reached by following alias
// parents, sorted ascending so a parent always precedes its alias
// children in the emitted table (reconstructVarTable requires this since
// it resolves AliasParent against already-seen entries).
func (b *Builder) collectDeclIDs(r *Routine) []ir.DeclID {
	seen := map[ir.DeclID]bool{}

	addDecl := func(id ir.DeclID) {
		for id != 0 && !seen[id] {
			seen[id] = true
			id = b.Decls.Get(id).AliasParent
		}
	}

	addVar := func(v ir.VarID) {
		if v == 0 || !b.Vars.Valid(v) {
			return
		}

		addDecl(b.Vars.Get(v).Decl)
	}

	for _, ins := range r.Insns {
		if ins.Predicate != nil {
			addVar(ins.Predicate.Var)
		}

		addOperandVar(ins.Dst, addVar, addDecl)

		for i := 0; i < ins.NumSrc && i < 3; i++ {
			addOperandVar(ins.Src[i], addVar, addDecl)
		}
	}

	for _, id := range r.Inputs {
		addDecl(id)
	}

	out := make([]ir.DeclID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

func addOperandVar(op ir.Operand, addVar func(ir.VarID), addDecl func(ir.DeclID)) {
	switch op.Kind {
	case ir.OperandDst:
		addVar(op.Dst.Base)
	case ir.OperandSrc:
		addVar(op.Src.Base)
	case ir.OperandIndirect:
		addVar(op.Indirect.AddrVar)
	case ir.OperandRaw:
		addVar(op.Raw.Var)
	case ir.OperandAddressExpr:
		addDecl(op.AddrExpr.Target)
	case ir.OperandStateHandle:
		addVar(op.State.Var)
	}
}
