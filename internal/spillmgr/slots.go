// Package spillmgr rewrites IR so that spilled live ranges read from
// and write to scratch memory, introducing only short-lived spill and
// fill temporaries a subsequent allocator iteration can color (§4.5).
// It implements internal/regalloc's Rewriter interface.
package spillmgr

import "github.com/0o001/visa-finalizer/internal/ir"

type slotAssignment struct {
	decl  ir.DeclID
	start uint32
	size  uint32
}

// SlotAllocator assigns byte offsets in the spill area, sweeping
// occupants in ascending-offset order (§4.5 "Slot assignment").
type SlotAllocator struct {
	base     uint32
	assigned []slotAssignment
}

// NewSlotAllocator creates an allocator whose first slot lands at base
// (SpillMemOffset).
func NewSlotAllocator(base uint32) *SlotAllocator {
	return &SlotAllocator{base: base}
}

func alignUp(v, a uint32) uint32 {
	if a == 0 {
		return v
	}

	return (v + a - 1) / a * a
}

// Assign returns the byte offset to use for decl, sized bytes long.
// With compression disabled, slots are simply appended (no reuse).
// With compression enabled, the new slot lands at the lowest
// GRF-aligned address that does not overlap any already-assigned
// occupant for which interferes returns true.
func (s *SlotAllocator) Assign(decl ir.DeclID, size uint32, compression bool, interferes func(ir.DeclID) bool) uint32 {
	if size == 0 {
		size = ir.DefaultGRFBytes
	}

	if !compression {
		start := alignUp(s.base, ir.DefaultGRFBytes)
		if n := len(s.assigned); n > 0 {
			last := s.assigned[n-1]
			start = alignUp(last.start+last.size, ir.DefaultGRFBytes)
		}

		s.assigned = append(s.assigned, slotAssignment{decl: decl, start: start, size: size})

		return start
	}

	candidate := alignUp(s.base, ir.DefaultGRFBytes)

	for {
		conflict := false

		for _, a := range s.assigned {
			if !interferes(a.decl) {
				continue
			}

			if candidate < a.start+a.size && a.start < candidate+size {
				conflict = true
				candidate = alignUp(a.start+a.size, ir.DefaultGRFBytes)

				break
			}
		}

		if !conflict {
			break
		}
	}

	s.assigned = append(s.assigned, slotAssignment{decl: decl, start: candidate, size: size})

	return candidate
}

// Lookup returns the previously assigned offset for decl, if any; used
// so alias declarations and transient spill/fill temps can inherit
// their parent's or inducing region's slot.
func (s *SlotAllocator) Lookup(decl ir.DeclID) (uint32, bool) {
	for _, a := range s.assigned {
		if a.decl == decl {
			return a.start, true
		}
	}

	return 0, false
}
