package config

import "testing"

func TestDefaultBuildOptionsValidates(t *testing.T) {
	if err := DefaultBuildOptions().Validate(); err != nil {
		t.Fatalf("default options should validate: %v", err)
	}
}

func TestValidateRejectsGRFNumToUseExceedingTotal(t *testing.T) {
	o := DefaultBuildOptions()
	o.GRFNumToUse = o.TotalGRFNum + 1

	if err := o.Validate(); err == nil {
		t.Fatal("expected an error when GRFNumToUse exceeds TotalGRFNum")
	}
}

func TestValidateRejectsReservedGRFNumAtOrAboveGRFNumToUse(t *testing.T) {
	o := DefaultBuildOptions()
	o.ReservedGRFNum = o.GRFNumToUse

	if err := o.Validate(); err == nil {
		t.Fatal("expected an error when ReservedGRFNum >= GRFNumToUse")
	}
}
