// Package arena provides a region allocator scoped to the lifetime of one
// compilation. Every IR node, declaration, live range, and transient
// container built by the finalizer core is handed out of one Arena and
// freed together when the Arena is released.
package arena

import (
	"fmt"
	"sync"
)

// defaultAlignment is the alignment applied to every allocation; it is
// wide enough for any scalar the IR stores (qword, double).
const defaultAlignment = 8

// Arena is a bump allocator over a single backing region. It is not safe
// for concurrent use from more than one compilation: a compilation owns
// exactly one Arena and never shares it across goroutines (see the
// concurrency model: one thread per compilation, no shared mutable
// state between compilations).
type Arena struct {
	backing backingRegion
	cursor  uintptr
	size    uintptr

	allocCount uint64
	peakUsage  uintptr

	mu sync.Mutex

	released bool
}

// backingRegion abstracts the raw memory source so the arena can be
// mmap-backed where golang.org/x/sys/unix is available and fall back to
// a plain Go slice elsewhere. See arena_unix.go / arena_fallback.go.
type backingRegion interface {
	Bytes() []byte
	Release() error
}

// New creates an Arena with the given byte capacity. The capacity is a
// hint, not a hard ceiling on object count: the region grows
// automatically when it is exhausted. Byte offsets into the region stay
// valid across growth; slices returned by earlier Alloc calls do not.
func New(sizeHint uintptr) (*Arena, error) {
	if sizeHint == 0 {
		sizeHint = 1 << 20 // 1MiB default compilation arena
	}

	region, err := newBackingRegion(sizeHint)
	if err != nil {
		return nil, fmt.Errorf("arena: failed to reserve %d bytes: %w", sizeHint, err)
	}

	return &Arena{backing: region, size: sizeHint}, nil
}

// alignUp rounds size up to the arena's fixed alignment.
func alignUp(size uintptr) uintptr {
	return (size + defaultAlignment - 1) &^ (defaultAlignment - 1)
}

// Alloc reserves n bytes from the arena and returns a byte slice backed
// by the arena's region. The slice is only valid until the arena next
// grows or is released: growth copies the used bytes into a new region
// and releases the old one the slice points into.
func (a *Arena) Alloc(n uintptr) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.released {
		return nil, fmt.Errorf("arena: alloc after release")
	}

	aligned := alignUp(n)
	if a.cursor+aligned > a.size {
		if err := a.growLocked(aligned); err != nil {
			return nil, err
		}
	}

	buf := a.backing.Bytes()
	start := a.cursor
	a.cursor += aligned
	a.allocCount++

	if a.cursor > a.peakUsage {
		a.peakUsage = a.cursor
	}

	return buf[start : start+n : start+aligned], nil
}

// growLocked doubles the arena at least enough to fit need more bytes.
// Both backing kinds grow the same way: a fresh region is reserved, the
// used prefix is copied to the same offsets, and the old region is
// released, so byte offsets stay valid while earlier slices do not.
func (a *Arena) growLocked(need uintptr) error {
	newSize := a.size * 2
	for newSize < a.size+need {
		newSize *= 2
	}

	region, err := newBackingRegion(newSize)
	if err != nil {
		return fmt.Errorf("arena: failed to grow to %d bytes: %w", newSize, err)
	}

	copy(region.Bytes(), a.backing.Bytes()[:a.cursor])

	if err := a.backing.Release(); err != nil {
		_ = region.Release()

		return fmt.Errorf("arena: failed to release old region during grow: %w", err)
	}

	a.backing = region
	a.size = newSize

	return nil
}

// Release returns the arena's backing memory to the OS (mmap path) or to
// the GC (fallback path). Every handle minted from this Arena becomes
// invalid; the builder enforces this by refusing further appends once
// its owning compilation has reached EmittingBinary (see builder
// package).
func (a *Arena) Release() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.released {
		return nil
	}

	a.released = true

	return a.backing.Release()
}

// Stats reports bump-allocator bookkeeping, primarily for diagnostics
// and tests.
type Stats struct {
	Capacity   uintptr
	PeakUsage  uintptr
	AllocCount uint64
}

// Stats returns a snapshot of the arena's allocation bookkeeping.
func (a *Arena) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Stats{Capacity: a.size, PeakUsage: a.peakUsage, AllocCount: a.allocCount}
}
