package bytecode

import "testing"

func TestResolveFieldWidthsPreV34Uses16BitIDs(t *testing.T) {
	v, err := NewVersion(3, 3)
	if err != nil {
		t.Fatal(err)
	}

	w := ResolveFieldWidths(v)

	if w.IDBytes != 2 {
		t.Fatalf("IDBytes = %d, want 2", w.IDBytes)
	}

	if w.FileIdxBytes != 2 {
		t.Fatalf("FileIdxBytes = %d, want 2", w.FileIdxBytes)
	}

	if w.InputCountBytes != 1 {
		t.Fatalf("InputCountBytes = %d, want 1", w.InputCountBytes)
	}
}

func TestResolveFieldWidthsAtV34Uses32BitIDs(t *testing.T) {
	v, err := NewVersion(3, 4)
	if err != nil {
		t.Fatal(err)
	}

	w := ResolveFieldWidths(v)

	if w.IDBytes != 4 {
		t.Fatalf("IDBytes = %d, want 4", w.IDBytes)
	}

	if w.FileIdxBytes != 4 {
		t.Fatalf("FileIdxBytes = %d, want 4", w.FileIdxBytes)
	}

	if w.InputCountBytes != 1 {
		t.Fatalf("InputCountBytes = %d, want 1 (gated at 3.5)", w.InputCountBytes)
	}
}

func TestResolveFieldWidthsAtV35Uses32BitInputCount(t *testing.T) {
	v, err := NewVersion(3, 5)
	if err != nil {
		t.Fatal(err)
	}

	w := ResolveFieldWidths(v)

	if w.InputCountBytes != 4 {
		t.Fatalf("InputCountBytes = %d, want 4", w.InputCountBytes)
	}
}

func TestExecMaskV1GatedAtV31(t *testing.T) {
	v0, _ := NewVersion(3, 0)
	v1, _ := NewVersion(3, 1)

	if ResolveFieldWidths(v0).ExecMaskV1 {
		t.Fatal("3.0 should not have ExecMaskV1")
	}

	if !ResolveFieldWidths(v1).ExecMaskV1 {
		t.Fatal("3.1 should have ExecMaskV1")
	}
}

func TestCheckSupportedRejectsOutOfRangeVersions(t *testing.T) {
	tooOld, _ := NewVersion(2, 9)
	tooNew, _ := NewVersion(4, 0)
	inRange, _ := NewVersion(3, 7)

	if CheckSupported(tooOld) {
		t.Fatal("2.9 should be unsupported")
	}

	if CheckSupported(tooNew) {
		t.Fatal("4.0 should be unsupported")
	}

	if !CheckSupported(inRange) {
		t.Fatal("3.7 should be supported")
	}
}
