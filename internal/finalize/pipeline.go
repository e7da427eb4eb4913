// Package finalize wires the builder, register allocator, and spill
// manager into the single entry point §1 calls "the finalizer": take a
// vISA byte-code module plus build options, run register allocation to
// a fixed point (spilling and rewriting as needed), and hand the
// allocated, encoded routines to the binary emitter. The instruction
// encoder (IGA) and the binary emitter are out-of-scope external
// collaborators (§1); this package only ever sees them through the
// InstructionEncoder/BinaryEmitter interfaces, the same seam
// internal/regalloc uses for the spill manager via Rewriter.
package finalize

import (
	"fmt"

	"github.com/0o001/visa-finalizer/internal/builder"
	"github.com/0o001/visa-finalizer/internal/cfg"
	"github.com/0o001/visa-finalizer/internal/config"
	"github.com/0o001/visa-finalizer/internal/ir"
	"github.com/0o001/visa-finalizer/internal/jitmeta"
	"github.com/0o001/visa-finalizer/internal/regalloc"
	"github.com/0o001/visa-finalizer/internal/spillmgr"
)

// InstructionEncoder turns a routine's final, register-assigned
// instruction stream into whatever native encoding the out-of-scope
// instruction encoder (IGA) produces. The finalizer never interprets
// the returned bytes; it only forwards them to the BinaryEmitter.
type InstructionEncoder interface {
	Encode(insns []*ir.Instruction, vars *ir.VarTable, decls *ir.DeclTable) ([]byte, error)
}

// BinaryEmitter stitches every routine's encoded bytes and its JIT
// metadata into the relocatable binary §1 describes as the
// finalizer's final product. Relocation/linking policy is entirely
// the emitter's concern.
type BinaryEmitter interface {
	EmitRelocatable(routines []EncodedRoutine, meta map[string]*jitmeta.Info) ([]byte, error)
}

// EncodedRoutine is one routine's encoder output, labeled by name so
// the emitter can resolve call-site relocations.
type EncodedRoutine struct {
	Name     string
	IsKernel bool
	Code     []byte
}

// Result is what a finalize run produces: the relocatable binary, the
// per-routine JIT metadata block, and the builder's diagnostic
// messages (§4.6 "Messages").
type Result struct {
	Binary   []byte
	Meta     map[string]*jitmeta.Info
	Messages []string
}

// Run reconstructs a builder from vISA byte-code, finalizes it,
// allocates registers (spilling and rewriting via spillmgr as needed)
// for every kernel and function, and emits the relocatable binary.
func Run(bc []byte, opts config.BuildOptions, encoder InstructionEncoder, emitter BinaryEmitter) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	b, err := builder.FromByteCode(bc, builder.Options{NoStitchExternFunc: opts.NoStitchExternFunc})
	if err != nil {
		return nil, fmt.Errorf("finalize: reconstructing byte-code: %w", err)
	}

	if err := b.Finalize(); err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}

	routines := append(append([]*builder.Routine(nil), b.Kernels...), b.Functions...)

	encoded := make([]EncodedRoutine, 0, len(routines))
	meta := make(map[string]*jitmeta.Info, len(routines))

	rcfg := regalloc.Config{
		TotalGRFNum:           opts.TotalGRFNum,
		GRFNumToUse:           opts.GRFNumToUse,
		ReservedGRFNum:        opts.ReservedGRFNum,
		ReserveR0:             opts.ReserveR0,
		MaxIterations:         8,
		AbortOnSpill:          opts.AbortOnSpill,
		AbortOnSpillThreshold: opts.AbortOnSpillThreshold,
	}

	mgr := spillmgr.NewManager(opts.SpillMemOffset, opts.SpillSpaceCompression)

	allocateAndEncode := func(r *builder.Routine) error {
		outcome, err := regalloc.Allocate(r.Graph, b.Vars, b.Decls, rcfg, mgr)
		if err != nil {
			return fmt.Errorf("finalize: allocating %q: %w", r.Name, err)
		}

		r.Graph = outcome.Graph

		flat := flatten(r.Graph)

		code, err := encoder.Encode(flat, b.Vars, b.Decls)
		if err != nil {
			return fmt.Errorf("finalize: encoding %q: %w", r.Name, err)
		}

		encoded = append(encoded, EncodedRoutine{Name: r.Name, IsKernel: r.IsKernel, Code: code})
		meta[r.Name] = buildInfo(outcome, flat, opts)

		return nil
	}

	// §4.1: stitching splices every called subroutine's IR into its
	// caller's instruction list after per-function lowering but before
	// the containing kernel is handed to the allocator, then un-splices
	// it again once code generation for that kernel is done so the
	// builder's routines are left in their pre-stitch form.
	for _, k := range b.Kernels {
		if err := b.Stitch(k); err != nil {
			return nil, fmt.Errorf("finalize: stitching %q: %w", k.Name, err)
		}

		err := allocateAndEncode(k)

		if unstitchErr := b.Unstitch(k); unstitchErr != nil && err == nil {
			err = fmt.Errorf("finalize: unstitching %q: %w", k.Name, unstitchErr)
		}

		if err != nil {
			return nil, err
		}
	}

	// Functions stitched into every one of their callers leave nothing to
	// compile standalone; only extern functions the options chose not to
	// inline (§6 NoStitchExternFunc) remain real, separately-allocated
	// routines reachable by a genuine OpCall.
	for _, f := range b.Functions {
		if !(f.IsExtern && opts.NoStitchExternFunc) {
			continue
		}

		if err := allocateAndEncode(f); err != nil {
			return nil, err
		}
	}

	binary, err := emitter.EmitRelocatable(encoded, meta)
	if err != nil {
		return nil, fmt.Errorf("finalize: emitting relocatable binary: %w", err)
	}

	return &Result{Binary: binary, Meta: meta, Messages: b.Messages()}, nil
}

func flatten(g *cfg.Graph) []*ir.Instruction {
	var out []*ir.Instruction

	for _, blk := range g.Blocks {
		out = append(out, blk.Insns...)
	}

	return out
}

// buildInfo derives the §6 JIT metadata block from a completed
// allocation outcome: whether any range spilled (allocation took more
// than one iteration), the number of spill and fill instructions in the
// final stream (a plain count, not weighted by loop nesting), how many
// GRF rows the routine used, and a coarse per-block timing placeholder (the
// real cycle estimator is a scheduling-pass concern, out of scope
// per §1's Non-goals).
func buildInfo(outcome *regalloc.Outcome, flat []*ir.Instruction, opts config.BuildOptions) *jitmeta.Info {
	info := &jitmeta.Info{
		NumAsmCount: int32(len(flat)),
		NumGRFTotal: opts.TotalGRFNum,
	}

	wordsPerRow := uint32(ir.DefaultGRFBytes / 2)
	highWord := uint32(0)

	info.IsSpill = outcome.Iterations > 1

	for _, in := range flat {
		if in.Op == ir.OpSpill || in.Op == ir.OpFill {
			info.NumGRFSpillFill++
		}
	}

	for _, lr := range outcome.Ranges {
		if lr.Assignment == nil {
			continue
		}

		top := lr.Assignment.GRF*wordsPerRow + lr.Assignment.SubReg + lr.Words
		if top > highWord {
			highWord = top
		}
	}

	info.NumGRFUsed = int32((highWord + wordsPerRow - 1) / wordsPerRow)
	info.Blocks = make([]jitmeta.BlockInfo, 0)

	return info
}
