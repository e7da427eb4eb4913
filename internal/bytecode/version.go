// Package bytecode implements the little-endian vISA byte-code reader
// of spec §6: the common header, per-routine local header, and the
// version-gated field-width table. The (major, minor) byte-code version
// is modeled as a semver.Version so the width table is selected through
// semver.Constraints instead of a chain of ad hoc integer comparisons.
package bytecode

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// NewVersion builds the semver representation of a byte-code
// (major, minor) header pair. The patch component is always 0: the
// on-disk format has no patch-level field, but semver.Version requires
// one for comparison.
func NewVersion(major, minor uint8) (*semver.Version, error) {
	v, err := semver.NewVersion(fmt.Sprintf("%d.%d.0", major, minor))
	if err != nil {
		return nil, fmt.Errorf("bytecode: invalid version %d.%d: %w", major, minor, err)
	}

	return v, nil
}

// Width-gating constraints, named after the field they gate. Each is
// "the version at and after which the wider encoding applies."
var (
	constraint32BitIDs     = mustConstraint(">= 3.4.0")
	constraint32BitInputs  = mustConstraint(">= 3.5.0")
	constraint32BitFileIdx = mustConstraint(">= 3.4.0")
	constraintExecMaskV1   = mustConstraint(">= 3.1.0")
)

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(fmt.Sprintf("bytecode: invalid built-in constraint %q: %v", s, err))
	}

	return c
}

// FieldWidths is the version-gated width table of §4.1/§6: declaration
// (variable/label/address/predicate) ids switch from 16-bit to 32-bit at
// (3,4); input counts switch from 8-bit to 32-bit at (3,5); file-name
// indices switch from 16-bit to 32-bit at (3,4); the execute-mask
// encoding has two schemes selected by (3,0) vs (3,1)+.
type FieldWidths struct {
	IDBytes       int // 2 or 4
	InputCountBytes int // 1 or 4
	FileIdxBytes  int // 2 or 4
	ExecMaskV1    bool
}

// ResolveFieldWidths selects the width table for a parsed version,
// preserving the table-driven mapping the byte-code format mandates.
func ResolveFieldWidths(v *semver.Version) FieldWidths {
	w := FieldWidths{IDBytes: 2, InputCountBytes: 1, FileIdxBytes: 2}

	if constraint32BitIDs.Check(v) {
		w.IDBytes = 4
	}

	if constraint32BitInputs.Check(v) {
		w.InputCountBytes = 4
	}

	if constraint32BitFileIdx.Check(v) {
		w.FileIdxBytes = 4
	}

	w.ExecMaskV1 = constraintExecMaskV1.Check(v)

	return w
}

// SupportedRange is the range of byte-code versions this finalizer
// understands; it is also what `visa-finalize version` reports as its
// compatibility window.
var SupportedRange = mustConstraint(">= 3.0.0, < 4.0.0")

// CheckSupported reports whether v falls within SupportedRange.
func CheckSupported(v *semver.Version) bool {
	return SupportedRange.Check(v)
}
