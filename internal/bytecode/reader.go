package bytecode

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const magicNumber uint32 = 0x41434953 // "SICA" little-endian ("vISA" container tag)

// Reader is a cursor over a little-endian byte-code buffer. It never
// copies the input; every read advances an offset and returns an error
// instead of panicking on truncation, matching §7's "input validation"
// error kind.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential little-endian reads.
func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Pos returns the current byte offset, used for diagnostics that name a
// byte position (§7).
func (r *Reader) Pos() int { return r.pos }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("bytecode: truncated stream at byte %d, need %d more bytes", r.pos, n-r.Remaining())
	}

	return nil
}

// U8 reads one byte.
func (r *Reader) U8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}

	b := r.buf[r.pos]
	r.pos++

	return b, nil
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}

	v := uint16(r.buf[r.pos]) | uint16(r.buf[r.pos+1])<<8
	r.pos += 2

	return v, nil
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}

	v := uint32(r.buf[r.pos]) | uint32(r.buf[r.pos+1])<<8 | uint32(r.buf[r.pos+2])<<16 | uint32(r.buf[r.pos+3])<<24
	r.pos += 4

	return v, nil
}

// U64 reads a little-endian uint64.
func (r *Reader) U64() (uint64, error) {
	lo, err := r.U32()
	if err != nil {
		return 0, err
	}

	hi, err := r.U32()
	if err != nil {
		return 0, err
	}

	return uint64(lo) | uint64(hi)<<32, nil
}

// UID reads an id whose width depends on the decoded FieldWidths
// (16-bit pre-(3,4), 32-bit from (3,4)).
func (r *Reader) UID(w FieldWidths) (uint32, error) {
	if w.IDBytes == 4 {
		return r.U32()
	}

	v, err := r.U16()

	return uint32(v), err
}

// InputCount reads the input-argument count (8-bit pre-(3,5), 32-bit
// from (3,5)).
func (r *Reader) InputCount(w FieldWidths) (uint32, error) {
	if w.InputCountBytes == 4 {
		return r.U32()
	}

	b, err := r.U8()

	return uint32(b), err
}

// FileIdx reads a string-pool/file-name index (16-bit pre-(3,4), 32-bit
// from (3,4)).
func (r *Reader) FileIdx(w FieldWidths) (uint32, error) {
	if w.FileIdxBytes == 4 {
		return r.U32()
	}

	v, err := r.U16()

	return uint32(v), err
}

// Bytes reads n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}

	b := r.buf[r.pos : r.pos+n]
	r.pos += n

	return b, nil
}

// CString reads a NUL-terminated string.
func (r *Reader) CString() (string, error) {
	start := r.pos

	for r.pos < len(r.buf) {
		if r.buf[r.pos] == 0 {
			s := string(r.buf[start:r.pos])
			r.pos++

			return s, nil
		}

		r.pos++
	}

	return "", fmt.Errorf("bytecode: unterminated string starting at byte %d", start)
}

// StringPool reads a (count + NUL-terminated strings) pool.
func (r *Reader) StringPool() ([]string, error) {
	count, err := r.U32()
	if err != nil {
		return nil, err
	}

	pool := make([]string, count)

	for i := range pool {
		s, err := r.CString()
		if err != nil {
			return nil, fmt.Errorf("bytecode: string pool entry %d: %w", i, err)
		}

		pool[i] = s
	}

	return pool, nil
}

// RoutineTableEntry is one {name-index, offset, size} entry in the
// kernel or function table.
type RoutineTableEntry struct {
	NameIndex uint32
	Offset    uint32
	Size      uint32
}

// Header is the common top-level byte-code layout: magic, (major,
// minor), kernel count, function count, and the kernel/function tables.
type Header struct {
	Magic         uint32
	Version       *semver.Version
	Widths        FieldWidths
	KernelTable   []RoutineTableEntry
	FunctionTable []RoutineTableEntry
}

// ReadHeader parses the common header described in §6.
func ReadHeader(r *Reader) (*Header, error) {
	magic, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("bytecode: reading magic: %w", err)
	}

	if magic != magicNumber {
		return nil, fmt.Errorf("bytecode: bad magic 0x%08x at byte 0", magic)
	}

	major, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("bytecode: reading major version: %w", err)
	}

	minor, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("bytecode: reading minor version: %w", err)
	}

	version, err := NewVersion(major, minor)
	if err != nil {
		return nil, err
	}

	if !CheckSupported(version) {
		return nil, fmt.Errorf("bytecode: %s", versionMismatchMsg(major, minor))
	}

	widths := ResolveFieldWidths(version)

	kernelCount, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("bytecode: reading kernel count: %w", err)
	}

	functionCount, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("bytecode: reading function count: %w", err)
	}

	kernelTable, err := readRoutineTable(r, widths, kernelCount)
	if err != nil {
		return nil, fmt.Errorf("bytecode: reading kernel table: %w", err)
	}

	functionTable, err := readRoutineTable(r, widths, functionCount)
	if err != nil {
		return nil, fmt.Errorf("bytecode: reading function table: %w", err)
	}

	return &Header{
		Magic:         magic,
		Version:       version,
		Widths:        widths,
		KernelTable:   kernelTable,
		FunctionTable: functionTable,
	}, nil
}

func readRoutineTable(r *Reader, w FieldWidths, count uint32) ([]RoutineTableEntry, error) {
	table := make([]RoutineTableEntry, count)

	for i := range table {
		nameIdx, err := r.FileIdx(w)
		if err != nil {
			return nil, err
		}

		offset, err := r.U32()
		if err != nil {
			return nil, err
		}

		size, err := r.U32()
		if err != nil {
			return nil, err
		}

		table[i] = RoutineTableEntry{NameIndex: nameIdx, Offset: offset, Size: size}
	}

	return table, nil
}

func versionMismatchMsg(major, minor uint8) string {
	return fmt.Sprintf("unsupported vISA byte-code version %d.%d", major, minor)
}
