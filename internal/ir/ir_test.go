package ir

import "testing"

func TestRegionByteRangeSimdOne(t *testing.T) {
	r := Region{RowOffset: 0, SubReg: 0, Type: TypeDword, HStride: 1}

	start, end := r.ByteRange(1)
	if start != 0 || end != 4 {
		t.Fatalf("ByteRange(1) = (%d,%d), want (0,4)", start, end)
	}
}

func TestRegionByteRangeExecSizeEight(t *testing.T) {
	r := Region{RowOffset: 1, SubReg: 0, Type: TypeDword, HStride: 1}

	start, end := r.ByteRange(8)
	if start != DefaultGRFBytes {
		t.Fatalf("start = %d, want %d", start, DefaultGRFBytes)
	}

	wantEnd := DefaultGRFBytes + 8*4
	if end != uint32(wantEnd) {
		t.Fatalf("end = %d, want %d", end, wantEnd)
	}
}

func TestAliasRootWalksToBackingStorage(t *testing.T) {
	table := NewDeclTable()

	root := table.Add(Declaration{Name: "root", File: FileGeneral, Type: TypeDword, RowCount: 2})
	child := table.Add(Declaration{Name: "child", File: FileGeneral, Type: TypeDword, AliasParent: root, AliasOffset: 16})
	grandchild := table.Add(Declaration{Name: "grandchild", File: FileGeneral, Type: TypeDword, AliasParent: child, AliasOffset: 4})

	rootID, offset := table.AliasRoot(grandchild)
	if rootID != root {
		t.Fatalf("AliasRoot root = %d, want %d", rootID, root)
	}

	if offset != 20 {
		t.Fatalf("AliasRoot offset = %d, want 20", offset)
	}
}

func TestDeclTableInvalidIDIsZero(t *testing.T) {
	table := NewDeclTable()
	if table.Valid(0) {
		t.Fatal("id 0 must never be valid")
	}

	id := table.Add(Declaration{Name: "x"})
	if !table.Valid(id) {
		t.Fatalf("id %d should be valid after Add", id)
	}
}

func TestInstructionIsBlockTerminator(t *testing.T) {
	ret := &Instruction{Op: OpReturn}
	if !ret.IsBlockTerminator() {
		t.Fatal("OpReturn must terminate its block")
	}

	mov := &Instruction{Op: OpMov}
	if mov.IsBlockTerminator() {
		t.Fatal("OpMov must not terminate its block")
	}

	eotSend := &Instruction{Op: OpSend, Options: InstrOptions{EOT: true}}
	if !eotSend.IsBlockTerminator() {
		t.Fatal("EOT send must terminate its block")
	}

	plainSend := &Instruction{Op: OpSend}
	if plainSend.IsBlockTerminator() {
		t.Fatal("non-EOT send must not terminate its block")
	}
}
