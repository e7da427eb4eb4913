// Package config holds the finalizer's option surface: the per-compile
// BuildOptions (§6) and the frozen WorkaroundTable (§9), plus a
// fsnotify-backed hot reload for development builds.
package config

// BuildOptions is the full option surface a host driver supplies for
// one compilation (§6).
type BuildOptions struct {
	TotalGRFNum    uint32
	GRFNumToUse    uint32
	ReservedGRFNum uint32
	ReserveR0      bool

	EnablePreemption   bool
	NoStitchExternFunc bool

	SpillMemOffset uint32
	SWSBTokenNum   uint32
	NumGeneralAcc  uint32

	GTPinScratchAreaSize uint32

	AbortOnSpill          bool
	AbortOnSpillThreshold int

	SpillSpaceCompression bool
	GenerateDebugInfo     bool
}

// DefaultBuildOptions returns the conservative baseline options: the
// full 128-GRF file available and no rows withheld except row 0, which
// ReserveR0 keeps out of allocation for the r0 header.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		TotalGRFNum:           128,
		GRFNumToUse:           128,
		ReservedGRFNum:        0,
		ReserveR0:             true,
		SWSBTokenNum:          16,
		AbortOnSpill:          false,
		AbortOnSpillThreshold: 64,
	}
}

// Validate checks the option surface for internally-inconsistent
// values before a compile begins, the way a misconfigured GRF budget
// should fail fast rather than surface as a mysterious allocation
// failure partway through.
func (o BuildOptions) Validate() error {
	if o.GRFNumToUse == 0 || o.GRFNumToUse > o.TotalGRFNum {
		return &InvalidOptionError{Field: "GRFNumToUse", Reason: "must be in (0, TotalGRFNum]"}
	}

	if o.ReservedGRFNum >= o.GRFNumToUse {
		return &InvalidOptionError{Field: "ReservedGRFNum", Reason: "must be less than GRFNumToUse"}
	}

	return nil
}

// InvalidOptionError reports a BuildOptions field that failed
// Validate.
type InvalidOptionError struct {
	Field  string
	Reason string
}

func (e *InvalidOptionError) Error() string {
	return "config: invalid " + e.Field + ": " + e.Reason
}
