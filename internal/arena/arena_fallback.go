//go:build !linux && !darwin

package arena

// sliceRegion backs an Arena with a plain Go slice on platforms where
// golang.org/x/sys/unix's mmap is unavailable; Release drops the
// reference and lets the garbage collector reclaim it.
type sliceRegion struct {
	data []byte
}

func newBackingRegion(size uintptr) (backingRegion, error) {
	return &sliceRegion{data: make([]byte, size)}, nil
}

func (r *sliceRegion) Bytes() []byte { return r.data }

func (r *sliceRegion) Release() error {
	r.data = nil

	return nil
}
