package regalloc

import (
	"fmt"

	"github.com/0o001/visa-finalizer/internal/cfg"
	"github.com/0o001/visa-finalizer/internal/ir"
	"github.com/0o001/visa-finalizer/internal/liveness"
)

// Config bounds one Allocate run: the physical file dimensions plus the
// iteration and spill-threshold controls of §4.4's "abort rather than
// loop forever" requirement.
type Config struct {
	TotalGRFNum    uint32
	GRFNumToUse    uint32
	ReservedGRFNum uint32
	ReserveR0      bool

	MaxIterations int // hard bound on rewrite/reallocate rounds

	AbortOnSpill          bool // fail instead of invoking Rewriter at all
	AbortOnSpillThreshold int  // fail once total spilled ranges exceeds this across all iterations
}

// Rewriter is the external collaborator that turns one iteration's
// spilled live ranges into concrete spill/fill code, recomputing the
// live ranges the next iteration scans. The spill manager implements
// this; regalloc never constructs spill code itself (§4.5 is a separate
// external collaborator from the allocator's point of view).
type Rewriter interface {
	Rewrite(g *cfg.Graph, vars *ir.VarTable, decls *ir.DeclTable, spilled []*LiveRange) (*cfg.Graph, error)
}

// AllocateError reports why Allocate gave up.
type AllocateError struct {
	Reason string
}

func (e *AllocateError) Error() string { return "regalloc: " + e.Reason }

// Outcome is the final result of a possibly-multi-iteration Allocate
// run: the graph as last rewritten (identical to the input if no spills
// occurred) and the live ranges placed in the final iteration.
type Outcome struct {
	Graph      *cfg.Graph
	Ranges     []*LiveRange
	Iterations int
}

// Allocate runs linear-scan to a fixed point: build live ranges, scan,
// and if any ranges spilled, hand them to rewriter to rewrite g before
// trying again, up to cfg.MaxIterations, per §4.4's iterate-until-fit
// control loop with both a hard iteration bound and a cumulative
// spilled-range abort threshold.
func Allocate(g *cfg.Graph, vars *ir.VarTable, decls *ir.DeclTable, cfgOpts Config, rewriter Rewriter) (*Outcome, error) {
	maxIter := cfgOpts.MaxIterations
	if maxIter <= 0 {
		maxIter = 8
	}

	totalSpilled := 0

	for iter := 1; iter <= maxIter; iter++ {
		file := NewPhysicalFile(cfgOpts.TotalGRFNum, cfgOpts.GRFNumToUse, cfgOpts.ReservedGRFNum)
		if cfgOpts.ReserveR0 {
			file.ReserveR0()
		}

		li := liveness.Compute(g, vars, decls)
		ranges := BuildLiveRanges(g, vars, decls, li)
		callSites := CallSites(g)

		result := RunIteration(ranges, file, callSites)

		if len(result.Spilled) == 0 {
			writeBackAssignments(ranges, vars)

			return &Outcome{Graph: g, Ranges: ranges, Iterations: iter}, nil
		}

		totalSpilled += len(result.Spilled)

		if cfgOpts.AbortOnSpill {
			return nil, &AllocateError{Reason: fmt.Sprintf("spilled %d live ranges with AbortOnSpill set", len(result.Spilled))}
		}

		if cfgOpts.AbortOnSpillThreshold > 0 && totalSpilled > cfgOpts.AbortOnSpillThreshold {
			return nil, &AllocateError{Reason: fmt.Sprintf("cumulative spill count %d exceeds threshold %d", totalSpilled, cfgOpts.AbortOnSpillThreshold)}
		}

		if rewriter == nil {
			return nil, &AllocateError{Reason: "ranges spilled but no Rewriter was supplied"}
		}

		rewritten, err := rewriter.Rewrite(g, vars, decls, result.Spilled)
		if err != nil {
			return nil, fmt.Errorf("regalloc: spill rewrite failed: %w", err)
		}

		g = rewritten
	}

	return nil, &AllocateError{Reason: fmt.Sprintf("did not converge within %d iterations", maxIter)}
}

func writeBackAssignments(ranges []*LiveRange, vars *ir.VarTable) {
	for _, lr := range ranges {
		if lr.Assignment == nil {
			continue
		}

		rv := vars.Get(lr.Var)
		assignment := *lr.Assignment
		rv.Physical = &assignment
	}
}
