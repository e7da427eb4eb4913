package builder

import (
	"fmt"

	"github.com/0o001/visa-finalizer/internal/bytecode"
	"github.com/0o001/visa-finalizer/internal/ir"
)

// FromByteCode reconstructs a Builder in state Building from a raw
// byte-code buffer (§4.1's "byte-code reconstruction" mode): it reads
// the common header, then for each kernel and function table entry
// reads the local header and decodes the instruction stream at the
// entry's recorded offset/size.
func FromByteCode(buf []byte, opts Options) (*Builder, error) {
	b := New(opts)

	r := bytecode.NewReader(buf)

	header, err := bytecode.ReadHeader(r)
	if err != nil {
		return nil, err
	}

	for _, entry := range header.KernelTable {
		if err := reconstructRoutine(b, buf, header.Widths, entry, true); err != nil {
			return nil, fmt.Errorf("builder: reconstructing kernel at offset %d: %w", entry.Offset, err)
		}
	}

	for _, entry := range header.FunctionTable {
		if err := reconstructRoutine(b, buf, header.Widths, entry, false); err != nil {
			return nil, fmt.Errorf("builder: reconstructing function at offset %d: %w", entry.Offset, err)
		}
	}

	return b, nil
}

func reconstructRoutine(b *Builder, buf []byte, w bytecode.FieldWidths, entry bytecode.RoutineTableEntry, isKernel bool) error {
	localR := bytecode.NewReader(buf[entry.Offset:])

	rh, err := bytecode.ReadRoutineHeader(localR, w, isKernel)
	if err != nil {
		return err
	}

	name := routineName(rh)

	var r *Routine

	if isKernel {
		r, err = b.AddKernel(name)
	} else {
		r, err = b.AddFunction(name, false)
	}

	if err != nil {
		return err
	}

	declByWireID := make(map[uint32]ir.DeclID, len(rh.GeneralVars)+len(rh.AddressVars)+len(rh.PredicateVars))

	if err := reconstructVarTable(b, rh.GeneralVars, ir.FileGeneral, declByWireID); err != nil {
		return err
	}

	if err := reconstructVarTable(b, rh.AddressVars, ir.FileAddress, declByWireID); err != nil {
		return err
	}

	if err := reconstructVarTable(b, rh.PredicateVars, ir.FileFlag, declByWireID); err != nil {
		return err
	}

	if err := reconstructVarTable(b, rh.Samplers, ir.FileState, declByWireID); err != nil {
		return err
	}

	if err := reconstructVarTable(b, rh.Surfaces, ir.FileState, declByWireID); err != nil {
		return err
	}

	for _, lbl := range rh.Labels {
		b.NewLabel(r, labelName(rh, lbl), ir.LabelKind(lbl.Kind))
	}

	for _, in := range rh.Inputs {
		declID, ok := declByWireID[in.DeclID]
		if !ok {
			return fmt.Errorf("builder: input references undeclared wire id %d", in.DeclID)
		}

		if err := b.BindInput(r, declID, in.Offset); err != nil {
			return err
		}
	}

	bodyOffset := int(entry.Offset) + localR.Pos()
	bodyLen := int(rh.BodySize)

	if bodyOffset+bodyLen > len(buf) {
		return fmt.Errorf("builder: routine %s body [%d,%d) exceeds buffer of length %d", name, bodyOffset, bodyOffset+bodyLen, len(buf))
	}

	bodyR := bytecode.NewReader(buf[bodyOffset : bodyOffset+bodyLen])

	for bodyR.Remaining() > 0 {
		ins, err := bytecode.DecodeInstruction(bodyR, w)
		if err != nil {
			return err
		}

		ins.LexicalID = len(r.Insns)
		r.Insns = append(r.Insns, ins)
	}

	return nil
}

func reconstructVarTable(b *Builder, decls []bytecode.VarDecl, file ir.RegFile, declByWireID map[uint32]ir.DeclID) error {
	for _, vd := range decls {
		aliasParent := ir.DeclID(0)

		if vd.AliasParent != 0 {
			parent, ok := declByWireID[vd.AliasParent]
			if !ok {
				return fmt.Errorf("builder: alias parent %d referenced before declaration", vd.AliasParent)
			}

			aliasParent = parent
		}

		id, err := b.declare(file, fmt.Sprintf("V%d", vd.ID), ir.DataType(vd.TypeCode), vd.NumElements, aliasParent, vd.AliasOffset, ir.AlignAny)
		if err != nil {
			return err
		}

		declByWireID[vd.ID] = id
	}

	return nil
}

func routineName(rh *bytecode.RoutineHeader) string {
	if int(rh.NameIdx) < len(rh.Strings) {
		return rh.Strings[rh.NameIdx]
	}

	return fmt.Sprintf("routine_%d", rh.NameIdx)
}

func labelName(rh *bytecode.RoutineHeader, lbl bytecode.LabelDecl) string {
	if int(lbl.NameIdx) < len(rh.Strings) {
		return rh.Strings[lbl.NameIdx]
	}

	return fmt.Sprintf("label_%d", lbl.ID)
}
