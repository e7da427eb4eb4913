package builder

import (
	"github.com/0o001/visa-finalizer/internal/cfg"
	"github.com/0o001/visa-finalizer/internal/errors"
	"github.com/0o001/visa-finalizer/internal/ir"
)

// preStitchSnapshot preserves a routine's instruction list and label
// table exactly as they stood before any callee was spliced in, so
// Unstitch can restore them byte-for-byte after code generation (§4.1,
// §8 scenario 5: "after code generation and un-stitching, K's IR is
// byte-identical to its pre-stitch form").
type preStitchSnapshot struct {
	insns  []*ir.Instruction
	labels map[string]*ir.Label
}

// Stitch splices every (non-extern, or all if NoStitchExternFunc is
// false) callee transitively reachable from caller's pseudo
// function-call instructions into caller's instruction list, rewriting
// each call site into a real call/return pair. It must run after
// per-function lowering and before the containing kernel is handed to
// the allocator.
func (b *Builder) Stitch(caller *Routine) error {
	if caller.preStitch != nil {
		return errors.StitchingInvariant("Stitch called twice on " + caller.Name + " without an intervening Unstitch")
	}

	labelsCopy := make(map[string]*ir.Label, len(caller.Labels))
	for name, lbl := range caller.Labels {
		labelsCopy[name] = lbl
	}

	caller.preStitch = &preStitchSnapshot{
		insns:  append([]*ir.Instruction(nil), caller.Insns...),
		labels: labelsCopy,
	}

	var out []*ir.Instruction

	for _, inst := range caller.Insns {
		if inst.Op != ir.OpFuncCall {
			out = append(out, inst)
			continue
		}

		calleeName := inst.Src[0].Lbl.Name

		callee, ok := b.Lookup(calleeName)
		if !ok {
			return errors.StitchingInvariant("call to unknown function " + calleeName + " from " + caller.Name)
		}

		if callee.IsExtern && b.Options.NoStitchExternFunc {
			// Extern functions are treated as roots: the call site is
			// rewritten to a real call/return pair but the callee's body is
			// not inlined into the caller.
			out = append(out, rewriteCallSite(inst, calleeName))
			continue
		}

		if err := b.Stitch(callee); err != nil {
			return err
		}

		entryLabel := &ir.Label{Kind: ir.LabelSubroutine, Name: calleeName + ".entry", Target: len(out) + 1}

		out = append(out, rewriteCallSiteWithLabel(inst, entryLabel))

		for _, calleeInst := range callee.Insns {
			if calleeInst.Op == ir.OpReturn {
				out = append(out, &ir.Instruction{Op: ir.OpFuncRet})
				continue
			}

			out = append(out, calleeInst)
		}

		// The callee's own labels (intra-function jump targets) move with
		// its body into the caller's instruction stream, so they must
		// resolve through the caller's label table from here on, relocated
		// by the position the inlined body now starts at.
		base := entryLabel.Target

		for name, lbl := range callee.Labels {
			relocated := *lbl
			relocated.Target += base
			caller.Labels[name] = &relocated
		}

		if err := b.Unstitch(callee); err != nil {
			return err
		}
	}

	caller.Insns = out
	caller.Graph = cfg.NewGraph(out, labelIndex(caller))

	return nil
}

// Unstitch restores caller's instruction list, label table, and graph to
// their pre-stitch form. It is a no-op (returns nil) if the routine was
// never stitched.
func (b *Builder) Unstitch(caller *Routine) error {
	if caller.preStitch == nil {
		return nil
	}

	caller.Insns = caller.preStitch.insns
	caller.Labels = caller.preStitch.labels
	caller.Graph = cfg.NewGraph(caller.Insns, labelIndex(caller))
	caller.preStitch = nil

	return nil
}

func rewriteCallSite(inst *ir.Instruction, calleeName string) *ir.Instruction {
	return &ir.Instruction{
		Op:  ir.OpCall,
		Src: [3]ir.Operand{{Kind: ir.OperandLabel, Lbl: ir.Label{Kind: ir.LabelFunctionCall, Name: calleeName, Target: -1}}},
		NumSrc: 1,
		Predicate: inst.Predicate,
	}
}

func rewriteCallSiteWithLabel(inst *ir.Instruction, lbl *ir.Label) *ir.Instruction {
	return &ir.Instruction{
		Op:        ir.OpCall,
		Src:       [3]ir.Operand{{Kind: ir.OperandLabel, Lbl: *lbl}},
		NumSrc:    1,
		Predicate: inst.Predicate,
	}
}
