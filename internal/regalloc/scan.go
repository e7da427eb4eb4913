package regalloc

import "sort"

// SpillCandidate is one live range nominated for spilling by a single
// scan pass: the range itself and the cost the heuristic computed for
// it at the point of failure.
type SpillCandidate struct {
	Range *LiveRange
	Cost  float64
}

// Result is the outcome of one RunIteration pass: every range's updated
// State/Assignment, plus the ranges that could not be placed and must be
// handed to the spill manager before the next iteration.
type Result struct {
	Spilled []*LiveRange
}

// RunIteration performs one linear-scan pass over ranges (already sorted
// by Start) against file, per §4.4 steps 1-5:
//  1. sort by start (the caller's responsibility, enforced by BuildLiveRanges)
//  2. walk ranges in order, expiring active ranges whose End has passed
//  3. pre-assigned ranges are reserved in the physical file and skipped
//  4. call-site synthetic ranges extend every active range across the call
//  5. all other ranges search for a free, aligned window; on failure the
//     eligible active ranges are tried as eviction victims one at a time,
//     cheapest first, until freeing one makes room (that victim is marked
//     Spilled and reported in Result.Spilled); if none does, the current
//     range itself is marked Spilled.
func RunIteration(ranges []*LiveRange, file *PhysicalFile, callSites []int) *Result {
	sort.SliceStable(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })

	var active []*LiveRange

	result := &Result{}

	expire := func(at int) {
		kept := active[:0]

		for _, a := range active {
			if a.End <= at {
				a.State = Expired
				file.MarkFree(wordOffsetOf(file, a), a.Words)
			} else {
				kept = append(kept, a)
			}
		}

		active = kept
	}

	extendAcrossCallSite := func(site, end int) {
		for _, a := range active {
			if a.Start <= site && a.End < end {
				a.End = end
			}
		}
	}

	csIdx := 0

	for _, cur := range ranges {
		expire(cur.Start)

		for csIdx < len(callSites) && callSites[csIdx] < cur.Start {
			extendAcrossCallSite(callSites[csIdx], callSites[csIdx]+1)
			csIdx++
		}

		switch {
		case cur.Kind == KindPreAssigned:
			if cur.Assignment != nil {
				off := file.FromAssignment(*cur.Assignment)
				file.MarkBusy(off, cur.Words)
			}

			cur.State = PreAssigned
			active = append(active, cur)

		case cur.Kind == KindCallSiteSynthetic:
			extendAcrossCallSite(cur.Start, cur.End)
			cur.State = Active
			active = append(active, cur)

		default:
			searchStart, searchEnd := 0, file.busy.Len()
			if cur.EOT {
				searchStart, searchEnd = file.EOTWindow()
			}

			off, ok := file.FindWindow(cur.Words, cur.Align, cur.Forbidden, searchStart, searchEnd)
			if !ok {
				off, ok = evictCheapestAndRetry(cur, active, file)
			}

			if !ok {
				cur.State = Spilled
				result.Spilled = append(result.Spilled, cur)

				continue
			}

			assignment := file.ToAssignment(off)
			cur.Assignment = &assignment
			cur.State = Active
			file.MarkBusy(off, cur.Words)

			for _, a := range active {
				if a.State == Spilled {
					result.Spilled = append(result.Spilled, a)
				}
			}

			active = dropSpilled(active)
			active = append(active, cur)
		}
	}

	return result
}

// evictCheapestAndRetry tries the spill-eligible active ranges as
// eviction victims one at a time, in ascending spillCost relative to
// cur's start (equal costs ordered by lower register offset, then lower
// variable id), repeating the window search after freeing each. The
// first victim whose eviction makes room is marked Spilled with its
// assignment cleared; a victim that does not help is marked busy again.
// It returns ok=false, leaving the file unchanged, if no single
// eviction makes room.
func evictCheapestAndRetry(cur *LiveRange, active []*LiveRange, file *PhysicalFile) (int, bool) {
	candidates := make([]*LiveRange, 0, len(active))

	for _, a := range active {
		if !a.Kind.spillIneligible() && a.Assignment != nil {
			candidates = append(candidates, a)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i].spillCost(cur.Start), candidates[j].spillCost(cur.Start)
		if ci != cj {
			return ci < cj
		}

		oi, oj := file.FromAssignment(*candidates[i].Assignment), file.FromAssignment(*candidates[j].Assignment)
		if oi != oj {
			return oi < oj
		}

		return candidates[i].Var < candidates[j].Var
	})

	for _, victim := range candidates {
		off := file.FromAssignment(*victim.Assignment)
		file.MarkFree(off, victim.Words)

		searchStart, searchEnd := 0, file.busy.Len()
		if cur.EOT {
			searchStart, searchEnd = file.EOTWindow()
		}

		if newOff, ok := file.FindWindow(cur.Words, cur.Align, cur.Forbidden, searchStart, searchEnd); ok {
			victim.State = Spilled
			victim.Assignment = nil

			return newOff, true
		}

		// This eviction alone didn't help; put it back busy and try the
		// next cheapest candidate.
		file.MarkBusy(off, victim.Words)
	}

	return 0, false
}

// dropSpilled removes entries an eviction just marked Spilled from the
// active list, so a later expire() never tries to free a spilled
// range's (now nil) assignment on top of whatever range took its place.
func dropSpilled(active []*LiveRange) []*LiveRange {
	kept := active[:0]

	for _, a := range active {
		if a.State != Spilled {
			kept = append(kept, a)
		}
	}

	return kept
}

func wordOffsetOf(file *PhysicalFile, lr *LiveRange) int {
	if lr.Assignment == nil {
		return 0
	}

	return file.FromAssignment(*lr.Assignment)
}
