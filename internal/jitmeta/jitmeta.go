// Package jitmeta is the JIT metadata output of §6: the per-kernel
// statistics block a host driver reads back after finalization, plus
// the per-basic-block timing array it embeds.
package jitmeta

import (
	"encoding/binary"
	"fmt"
)

// MaxNamedBarriers mirrors the finalizer's fixed named-barrier budget.
const MaxNamedBarriers = 32

// BlockInfo is the per-basic-block entry of §6's timing array: an id,
// a static cycle estimate, a send-stall cycle estimate, and the loop
// nest depth the block sits at.
type BlockInfo struct {
	ID             int32
	StaticCycle    uint32
	SendStallCycle uint32
	LoopNestLevel  uint8
}

// Info is the finalizer's output metadata block (FINALIZER_INFO
// equivalent): spill statistics, GRF usage, barrier/stack-call flags,
// scratch-memory accounting, and the per-block timing array.
type Info struct {
	IsSpill     bool
	NumGRFUsed  int32
	NumAsmCount int32

	// SpillMemUsed is the scratch-space size in bytes consumed by this
	// kernel/function's vISA stack: spill slots plus caller/callee save
	// areas.
	SpillMemUsed uint32

	DebugInfo []byte // nil unless debug-info emission was requested

	NumFlagSpillStore uint32
	NumFlagSpillLoad  uint32

	// UsesBarrier is the number of named barriers used; zero means the
	// kernel uses no barrier.
	UsesBarrier uint32

	Blocks []BlockInfo

	// NumGRFSpillFill is the spill/fill count weighted by loop nesting.
	NumGRFSpillFill uint32

	// AvoidRetry signals that recompiling this kernel with different
	// allocation parameters is unlikely to help.
	AvoidRetry bool

	FreeGRFInfo []byte

	NumBytesScratchGtpin uint8

	OffsetToSkipPerThreadDataLoad      uint32
	OffsetToSkipCrossThreadDataLoad    uint32
	OffsetToSkipSetFFIDGP              uint32
	OffsetToSkipSetFFIDGP1             uint32

	HasStackcalls bool

	NumGRFTotal uint32
	NumThreads  uint32
}

// Marshal serializes Info to the little-endian binary layout a host
// driver reads back after finalization. Variable-length payloads
// (debug info, free-GRF info, per-block array) are each prefixed with
// their own length so the layout is self-describing without needing
// the original C struct's raw pointers.
func (info *Info) Marshal() []byte {
	size := 1 + 4 + 4 + 4 + // isSpill, numGRFUsed, numAsmCount, spillMemUsed
		4 + len(info.DebugInfo) +
		4 + 4 + // flag spill store/load
		4 + // usesBarrier
		4 + len(info.Blocks)*13 + // BBNum + BBInfo array
		4 + // numGRFSpillFill
		1 + // avoidRetry
		4 + len(info.FreeGRFInfo) +
		1 + // numBytesScratchGtpin
		4 + 4 + 4 + 4 + // 4 skip offsets
		1 + // hasStackcalls
		4 + 4 // numGRFTotal, numThreads

	buf := make([]byte, size)
	pos := 0

	putBool := func(b bool) {
		if b {
			buf[pos] = 1
		}

		pos++
	}

	putU32 := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[pos:], v)
		pos += 4
	}

	putBytes := func(b []byte) {
		putU32(uint32(len(b)))
		pos += copy(buf[pos:], b)
	}

	putBool(info.IsSpill)
	putU32(uint32(info.NumGRFUsed))
	putU32(uint32(info.NumAsmCount))
	putU32(info.SpillMemUsed)
	putBytes(info.DebugInfo)
	putU32(info.NumFlagSpillStore)
	putU32(info.NumFlagSpillLoad)
	putU32(info.UsesBarrier)

	putU32(uint32(len(info.Blocks)))

	for _, b := range info.Blocks {
		putU32(uint32(b.ID))
		putU32(b.StaticCycle)
		putU32(b.SendStallCycle)
		buf[pos] = b.LoopNestLevel
		pos++
	}

	putU32(info.NumGRFSpillFill)
	putBool(info.AvoidRetry)
	putBytes(info.FreeGRFInfo)
	buf[pos] = info.NumBytesScratchGtpin
	pos++
	putU32(info.OffsetToSkipPerThreadDataLoad)
	putU32(info.OffsetToSkipCrossThreadDataLoad)
	putU32(info.OffsetToSkipSetFFIDGP)
	putU32(info.OffsetToSkipSetFFIDGP1)
	putBool(info.HasStackcalls)
	putU32(info.NumGRFTotal)
	putU32(info.NumThreads)

	return buf[:pos]
}

// Unmarshal parses the layout Marshal produces.
func Unmarshal(buf []byte) (*Info, error) {
	r := &reader{buf: buf}

	info := &Info{}

	var err error

	if info.IsSpill, err = r.bool_(); err != nil {
		return nil, err
	}

	v, err := r.u32()
	if err != nil {
		return nil, err
	}

	info.NumGRFUsed = int32(v)

	if v, err = r.u32(); err != nil {
		return nil, err
	}

	info.NumAsmCount = int32(v)

	if info.SpillMemUsed, err = r.u32(); err != nil {
		return nil, err
	}

	if info.DebugInfo, err = r.bytes(); err != nil {
		return nil, err
	}

	if info.NumFlagSpillStore, err = r.u32(); err != nil {
		return nil, err
	}

	if info.NumFlagSpillLoad, err = r.u32(); err != nil {
		return nil, err
	}

	if info.UsesBarrier, err = r.u32(); err != nil {
		return nil, err
	}

	bbNum, err := r.u32()
	if err != nil {
		return nil, err
	}

	info.Blocks = make([]BlockInfo, bbNum)

	for i := range info.Blocks {
		id, err := r.u32()
		if err != nil {
			return nil, err
		}

		sc, err := r.u32()
		if err != nil {
			return nil, err
		}

		ssc, err := r.u32()
		if err != nil {
			return nil, err
		}

		lvl, err := r.u8()
		if err != nil {
			return nil, err
		}

		info.Blocks[i] = BlockInfo{ID: int32(id), StaticCycle: sc, SendStallCycle: ssc, LoopNestLevel: lvl}
	}

	if info.NumGRFSpillFill, err = r.u32(); err != nil {
		return nil, err
	}

	if info.AvoidRetry, err = r.bool_(); err != nil {
		return nil, err
	}

	if info.FreeGRFInfo, err = r.bytes(); err != nil {
		return nil, err
	}

	if info.NumBytesScratchGtpin, err = r.u8(); err != nil {
		return nil, err
	}

	if info.OffsetToSkipPerThreadDataLoad, err = r.u32(); err != nil {
		return nil, err
	}

	if info.OffsetToSkipCrossThreadDataLoad, err = r.u32(); err != nil {
		return nil, err
	}

	if info.OffsetToSkipSetFFIDGP, err = r.u32(); err != nil {
		return nil, err
	}

	if info.OffsetToSkipSetFFIDGP1, err = r.u32(); err != nil {
		return nil, err
	}

	if info.HasStackcalls, err = r.bool_(); err != nil {
		return nil, err
	}

	if info.NumGRFTotal, err = r.u32(); err != nil {
		return nil, err
	}

	if info.NumThreads, err = r.u32(); err != nil {
		return nil, err
	}

	return info, nil
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) need(n int) error {
	if len(r.buf)-r.pos < n {
		return fmt.Errorf("jitmeta: truncated buffer at byte %d, need %d more bytes", r.pos, n-(len(r.buf)-r.pos))
	}

	return nil
}

func (r *reader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}

	b := r.buf[r.pos]
	r.pos++

	return b, nil
}

func (r *reader) bool_() (bool, error) {
	b, err := r.u8()

	return b != 0, err
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}

	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4

	return v, nil
}

func (r *reader) bytes() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}

	if err := r.need(int(n)); err != nil {
		return nil, err
	}

	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)

	if n == 0 {
		return nil, nil
	}

	out := make([]byte, n)
	copy(out, b)

	return out, nil
}
