package errors

import "testing"

func TestVersionMismatchFormatsMajorMinor(t *testing.T) {
	err := VersionMismatch(2, 7)
	if err.Category != CategoryBytecode {
		t.Fatalf("Category = %s, want %s", err.Category, CategoryBytecode)
	}

	want := "unsupported vISA byte-code version 2.7"
	if err.Message != want {
		t.Fatalf("Message = %q, want %q", err.Message, want)
	}
}

func TestInsufficientPhysicalRegistersCarriesSpilledNames(t *testing.T) {
	err := InsufficientPhysicalRegisters("kernel_main", []string{"V10", "V22"})

	names, ok := err.Context["stillSpilled"].([]string)
	if !ok || len(names) != 2 {
		t.Fatalf("Context[stillSpilled] = %v, want 2-element slice", err.Context["stillSpilled"])
	}
}

func TestErrorStringIncludesCategoryCodeAndCaller(t *testing.T) {
	err := BuilderMisuse("AppendInstruction", "Finalized")

	s := err.Error()
	if s == "" {
		t.Fatal("Error() returned empty string")
	}

	if err.Caller == "unknown" {
		t.Fatal("Caller should resolve to the calling function")
	}
}
