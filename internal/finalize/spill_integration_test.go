package finalize

import (
	"testing"

	"github.com/0o001/visa-finalizer/internal/builder"
	"github.com/0o001/visa-finalizer/internal/config"
	"github.com/0o001/visa-finalizer/internal/ir"
)

// buildWideKernel declares n scalar dword variables, defines every one of
// them before using any of them, then sums them all into an accumulator.
// Defining the whole set ahead of its single, much later use forces every
// variable's live range to overlap every other one's, well beyond what a
// small physical file can hold simultaneously.
func buildWideKernel(t *testing.T, n int) []byte {
	t.Helper()

	b := builder.New(builder.Options{})

	k, err := b.AddKernel("kernel_main")
	if err != nil {
		t.Fatal(err)
	}

	accDecl, err := b.DeclareGeneral("acc", ir.TypeDword, 1, 0, 0, ir.AlignAny)
	if err != nil {
		t.Fatal(err)
	}

	acc, err := b.NewVar(accDecl)
	if err != nil {
		t.Fatal(err)
	}

	if err := b.Move(k, ir.OpMov, 1, builder.Dst(acc, 0, 0, ir.TypeDword, 1), builder.Imm(ir.TypeDword, 0), ir.InstrOptions{}); err != nil {
		t.Fatal(err)
	}

	vars := make([]ir.VarID, n)

	for i := 0; i < n; i++ {
		d, err := b.DeclareGeneral("v", ir.TypeDword, 1, 0, 0, ir.AlignAny)
		if err != nil {
			t.Fatal(err)
		}

		v, err := b.NewVar(d)
		if err != nil {
			t.Fatal(err)
		}

		vars[i] = v

		// Defined by an add of two immediates rather than a plain
		// immediate move, so this does not qualify as a scalar
		// rematerialization candidate (§4.5) and must instead take the
		// memory spill/fill path when it cannot fit in the GRF file.
		dst := builder.Dst(v, 0, 0, ir.TypeDword, 1)
		src0 := builder.Imm(ir.TypeDword, uint64(i+1))
		src1 := builder.Imm(ir.TypeDword, 0)

		if err := b.Arithmetic(k, ir.OpAdd, 1, dst, src0, src1, ir.InstrOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	for _, v := range vars {
		dst := builder.Dst(acc, 0, 0, ir.TypeDword, 1)
		src0 := builder.Src(acc, 0, 0, ir.TypeDword, 0, 1, 0)
		src1 := builder.Src(v, 0, 0, ir.TypeDword, 0, 1, 0)

		if err := b.Arithmetic(k, ir.OpAdd, 1, dst, src0, src1, ir.InstrOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	if err := b.Return(k); err != nil {
		t.Fatal(err)
	}

	if err := b.Finalize(); err != nil {
		t.Fatal(err)
	}

	bc, err := b.ToByteCode()
	if err != nil {
		t.Fatal(err)
	}

	return bc
}

// TestRunSpillsAndRecoversWhenLiveSetExceedsTheGRFFile builds a kernel
// whose two hundred simultaneously-live scalars cannot possibly fit in an
// eight-row physical file, driving Run's full builder -> regalloc ->
// spillmgr -> encoder/emitter pipeline through at least one spill/rewrite
// iteration end to end, not just regalloc.RunIteration in isolation.
func TestRunSpillsAndRecoversWhenLiveSetExceedsTheGRFFile(t *testing.T) {
	bc := buildWideKernel(t, 200)

	opts := config.DefaultBuildOptions()
	opts.TotalGRFNum = 16
	opts.GRFNumToUse = 8
	opts.ReservedGRFNum = 0
	opts.SpillMemOffset = 0
	opts.AbortOnSpillThreshold = 0

	encoder := &recordingEncoder{}
	emitter := &recordingEmitter{}

	result, err := Run(bc, opts, encoder, emitter)
	if err != nil {
		t.Fatalf("Run should converge by rewriting spills rather than failing: %v", err)
	}

	if encoder.calls == 0 {
		t.Fatal("expected the encoder to be invoked on the rewritten, fully-allocated graph")
	}

	info, ok := result.Meta["kernel_main"]
	if !ok {
		t.Fatal("expected JIT metadata for kernel_main")
	}

	if !info.IsSpill {
		t.Fatal("two hundred simultaneously-live scalars in an eight-row file must spill")
	}

	if info.NumGRFSpillFill == 0 {
		t.Fatal("expected a non-zero spill/fill instruction count once spilling occurred")
	}
}

// TestRunCompressedSpillSpaceAlsoConverges exercises the same oversubscribed
// scenario with slot compression enabled, so the compression path in
// internal/spillmgr's SlotAllocator is reached by the full pipeline too.
func TestRunCompressedSpillSpaceAlsoConverges(t *testing.T) {
	bc := buildWideKernel(t, 200)

	opts := config.DefaultBuildOptions()
	opts.TotalGRFNum = 16
	opts.ReservedGRFNum = 0
	opts.AbortOnSpillThreshold = 0
	opts.GRFNumToUse = 8
	opts.SpillSpaceCompression = true

	result, err := Run(bc, opts, &recordingEncoder{}, &recordingEmitter{})
	if err != nil {
		t.Fatalf("Run should converge with compression enabled: %v", err)
	}

	if !result.Meta["kernel_main"].IsSpill {
		t.Fatal("expected spilling with compression enabled too")
	}
}
