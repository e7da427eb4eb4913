package bytecode

// Writer accumulates a little-endian byte-code buffer; it is the
// serialize side of Reader, used by the builder's byte-code production
// path and by the serialize-then-parse round trip tests.
type Writer struct {
	buf []byte
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) U8(b byte) { w.buf = append(w.buf, b) }

func (w *Writer) U16(v uint16) { w.buf = append(w.buf, byte(v), byte(v>>8)) }

func (w *Writer) U32(v uint32) {
	w.buf = append(w.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (w *Writer) U64(v uint64) {
	w.U32(uint32(v))
	w.U32(uint32(v >> 32))
}

// UID writes an id at the width fw mandates.
func (w *Writer) UID(fw FieldWidths, v uint32) {
	if fw.IDBytes == 4 {
		w.U32(v)
	} else {
		w.U16(uint16(v))
	}
}

// InputCount writes an input-argument count at the width fw mandates.
func (w *Writer) InputCount(fw FieldWidths, v uint32) {
	if fw.InputCountBytes == 4 {
		w.U32(v)
	} else {
		w.U8(byte(v))
	}
}

// FileIdx writes a string-pool index at the width fw mandates.
func (w *Writer) FileIdx(fw FieldWidths, v uint32) {
	if fw.FileIdxBytes == 4 {
		w.U32(v)
	} else {
		w.U16(uint16(v))
	}
}

func (w *Writer) Bytes(b []byte) { w.buf = append(w.buf, b...) }

// CString writes s followed by a NUL terminator.
func (w *Writer) CString(s string) {
	w.buf = append(w.buf, []byte(s)...)
	w.buf = append(w.buf, 0)
}

// StringPool writes a (count + NUL-terminated strings) pool.
func (w *Writer) StringPool(strs []string) {
	w.U32(uint32(len(strs)))

	for _, s := range strs {
		w.CString(s)
	}
}

// WriteHeader writes the common top-level header. Callers fill
// KernelTable/FunctionTable entries' offsets only after their routine
// bodies have been written and their byte positions are known; this
// function assumes that accounting has already happened.
func WriteHeader(w *Writer, major, minor uint8, kernelTable, functionTable []RoutineTableEntry) {
	w.U32(magicNumber)
	w.U8(major)
	w.U8(minor)
	w.U32(uint32(len(kernelTable)))
	w.U32(uint32(len(functionTable)))

	writeRoutineTable(w, ResolveFieldWidthsForHeaderWrite(major, minor), kernelTable)
	writeRoutineTable(w, ResolveFieldWidthsForHeaderWrite(major, minor), functionTable)
}

// ResolveFieldWidthsForHeaderWrite mirrors ResolveFieldWidths without
// requiring callers to construct a semver.Version just to write a
// header whose major/minor they already have on hand.
func ResolveFieldWidthsForHeaderWrite(major, minor uint8) FieldWidths {
	v, err := NewVersion(major, minor)
	if err != nil {
		// NewVersion only fails on values unrepresentable by two uint8s,
		// which cannot happen; fall back to the narrowest table.
		return FieldWidths{IDBytes: 2, InputCountBytes: 1, FileIdxBytes: 2}
	}

	return ResolveFieldWidths(v)
}

func writeRoutineTable(w *Writer, fw FieldWidths, table []RoutineTableEntry) {
	for _, e := range table {
		w.FileIdx(fw, e.NameIndex)
		w.U32(e.Offset)
		w.U32(e.Size)
	}
}

// WriteRoutineHeader writes one routine's local header matching the
// field order ReadRoutineHeader parses.
func WriteRoutineHeader(w *Writer, fw FieldWidths, rh *RoutineHeader, isKernel bool) {
	w.StringPool(rh.Strings)
	w.FileIdx(fw, rh.NameIdx)

	writeVarTable(w, fw, rh.GeneralVars)
	writeVarTable(w, fw, rh.AddressVars)
	writeVarTable(w, fw, rh.PredicateVars)
	writeLabelTable(w, fw, rh.Labels)
	writeVarTable(w, fw, rh.Samplers)

	w.U8(0) // vme-count byte, always zero
	writeVarTable(w, fw, rh.Surfaces)

	if isKernel {
		writeInputTable(w, fw, rh.Inputs)
	}

	w.U32(rh.BodySize)
	w.U32(rh.EntryOffset)

	if !isKernel {
		w.U32(rh.InputSize)
		w.U32(rh.ReturnSize)
	}

	writeAttributeTable(w, fw, rh.Attributes)
}

func writeVarTable(w *Writer, fw FieldWidths, decls []VarDecl) {
	w.U32(uint32(len(decls)))

	for _, d := range decls {
		w.UID(fw, d.ID)
		w.FileIdx(fw, d.NameIdx)
		w.U8(d.TypeCode)
		w.U32(d.NumElements)
		w.UID(fw, d.AliasParent)
		w.U32(d.AliasOffset)
	}
}

func writeLabelTable(w *Writer, fw FieldWidths, labels []LabelDecl) {
	w.U32(uint32(len(labels)))

	for _, l := range labels {
		w.UID(fw, l.ID)
		w.FileIdx(fw, l.NameIdx)
		w.U8(l.Kind)
	}
}

func writeInputTable(w *Writer, fw FieldWidths, inputs []InputDecl) {
	w.InputCount(fw, uint32(len(inputs)))

	for _, in := range inputs {
		w.UID(fw, in.DeclID)
		w.U32(in.Offset)
		w.U32(in.Size)
		w.U8(in.ImplicitKind)
	}
}

func writeAttributeTable(w *Writer, fw FieldWidths, attrs []Attribute) {
	w.U32(uint32(len(attrs)))

	for _, a := range attrs {
		w.FileIdx(fw, a.NameIdx)
		w.U8(a.Kind)

		switch a.Kind {
		case 0:
			w.U8(boolByteW(a.Bool))
		case 1:
			w.U32(uint32(a.Int32))
		case 2:
			w.CString(a.Str)
		}
	}
}

func boolByteW(b bool) byte {
	if b {
		return 1
	}

	return 0
}
