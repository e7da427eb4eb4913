package finalize

import (
	"testing"

	"github.com/0o001/visa-finalizer/internal/builder"
	"github.com/0o001/visa-finalizer/internal/config"
	"github.com/0o001/visa-finalizer/internal/ir"
	"github.com/0o001/visa-finalizer/internal/jitmeta"
)

type recordingEncoder struct{ calls int }

func (e *recordingEncoder) Encode(insns []*ir.Instruction, vars *ir.VarTable, decls *ir.DeclTable) ([]byte, error) {
	e.calls++

	return []byte{byte(len(insns))}, nil
}

type recordingEmitter struct{ routines []EncodedRoutine }

func (e *recordingEmitter) EmitRelocatable(routines []EncodedRoutine, meta map[string]*jitmeta.Info) ([]byte, error) {
	e.routines = routines

	return []byte("relocatable"), nil
}

func buildSimpleKernel(t *testing.T) []byte {
	t.Helper()

	b := builder.New(builder.Options{})

	k, err := b.AddKernel("kernel_main")
	if err != nil {
		t.Fatal(err)
	}

	d, err := b.DeclareGeneral("s", ir.TypeDword, 1, 0, 0, ir.AlignAny)
	if err != nil {
		t.Fatal(err)
	}

	v, err := b.NewVar(d)
	if err != nil {
		t.Fatal(err)
	}

	dst := builder.Dst(v, 0, 0, ir.TypeDword, 1)
	src := builder.Imm(ir.TypeDword, 7)

	if err := b.Move(k, ir.OpMov, 1, dst, src, ir.InstrOptions{}); err != nil {
		t.Fatal(err)
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

func TestRunAllocatesEncodesAndEmitsASimpleKernel(t *testing.T) {
	bc := buildSimpleKernel(t)

	opts := config.DefaultBuildOptions()

	encoder := &recordingEncoder{}
	emitter := &recordingEmitter{}

	result, err := Run(bc, opts, encoder, emitter)
	if err != nil {
		t.Fatal(err)
	}

	if string(result.Binary) != "relocatable" {
		t.Fatalf("expected emitter's bytes to pass through, got %q", result.Binary)
	}

	if encoder.calls == 0 {
		t.Fatal("expected the encoder to be invoked at least once")
	}

	if len(emitter.routines) == 0 {
		t.Fatal("expected at least one encoded routine reaching the emitter")
	}

	info, ok := result.Meta["kernel_main"]
	if !ok {
		t.Fatal("expected JIT metadata for kernel_main")
	}

	if info.IsSpill {
		t.Fatal("a single scalar should never need to spill")
	}
}

func TestRunRejectsInvalidBuildOptions(t *testing.T) {
	bc := buildSimpleKernel(t)

	opts := config.DefaultBuildOptions()
	opts.GRFNumToUse = 0

	if _, err := Run(bc, opts, &recordingEncoder{}, &recordingEmitter{}); err == nil {
		t.Fatal("expected Validate to reject GRFNumToUse == 0")
	}
}
