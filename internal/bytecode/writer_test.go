package bytecode

import "testing"

func TestWriteReadHeaderRoundTrip(t *testing.T) {
	kernelTable := []RoutineTableEntry{{NameIndex: 0, Offset: 100, Size: 40}}
	functionTable := []RoutineTableEntry{{NameIndex: 1, Offset: 140, Size: 20}}

	w := NewWriter()
	WriteHeader(w, 3, 6, kernelTable, functionTable)

	h, err := ReadHeader(NewReader(w.Bytes()))
	if err != nil {
		t.Fatal(err)
	}

	if h.Version.Major() != 3 || h.Version.Minor() != 6 {
		t.Fatalf("Version = %v, want 3.6", h.Version)
	}

	if len(h.KernelTable) != 1 || h.KernelTable[0].Offset != 100 {
		t.Fatalf("KernelTable = %+v", h.KernelTable)
	}

	if len(h.FunctionTable) != 1 || h.FunctionTable[0].Size != 20 {
		t.Fatalf("FunctionTable = %+v", h.FunctionTable)
	}
}

func TestWriteReadRoutineHeaderRoundTrip(t *testing.T) {
	fw := FieldWidths{IDBytes: 2, InputCountBytes: 1, FileIdxBytes: 2}

	rh := &RoutineHeader{
		Strings: []string{"kernel_main", "V10"},
		NameIdx: 0,
		GeneralVars: []VarDecl{
			{ID: 1, NameIdx: 1, TypeCode: 4, NumElements: 16},
		},
		Labels: []LabelDecl{{ID: 1, NameIdx: 1, Kind: 0}},
		Inputs: []InputDecl{{Offset: 0, Size: 16, ImplicitKind: 0}},
		BodySize:    64,
		EntryOffset: 0,
		Attributes:  []Attribute{{NameIdx: 0, Kind: 1, Int32: 42}},
	}

	w := NewWriter()
	WriteRoutineHeader(w, fw, rh, true)

	got, err := ReadRoutineHeader(NewReader(w.Bytes()), fw, true)
	if err != nil {
		t.Fatal(err)
	}

	if len(got.GeneralVars) != 1 || got.GeneralVars[0].NumElements != 16 {
		t.Fatalf("GeneralVars = %+v", got.GeneralVars)
	}

	if len(got.Attributes) != 1 || got.Attributes[0].Int32 != 42 {
		t.Fatalf("Attributes = %+v", got.Attributes)
	}

	if got.BodySize != 64 {
		t.Fatalf("BodySize = %d, want 64", got.BodySize)
	}
}
