// Package regalloc implements the linear-scan register allocator of
// §4.4: it assigns a physical GRF row + sub-register to every
// non-pre-assigned, non-spilled live range so that no two simultaneously
// live ranges ever overlap on the same bytes.
package regalloc

import "github.com/0o001/visa-finalizer/internal/ir"

// State is a live range's allocator state (§4.6).
type State int

const (
	Unvisited State = iota
	PreAssigned
	Assigned
	Active
	Expired
	Spilled
)

func (s State) String() string {
	switch s {
	case Unvisited:
		return "Unvisited"
	case PreAssigned:
		return "PreAssigned"
	case Assigned:
		return "Assigned"
	case Active:
		return "Active"
	case Expired:
		return "Expired"
	case Spilled:
		return "Spilled"
	default:
		return "Unknown"
	}
}

// Kind flags a live range's special handling, gating eligibility for
// spill-victim selection (§4.4 step 5: "skip ineligible ranges").
type Kind uint8

const (
	KindNormal Kind = iota
	KindPreAssigned
	KindCallSiteSynthetic
	KindCallerSave
	KindCalleeSave
	KindStackCallPseudo
	KindTransient
	KindInput
	KindNull
)

func (k Kind) spillIneligible() bool {
	switch k {
	case KindPreAssigned, KindCallSiteSynthetic, KindStackCallPseudo, KindTransient, KindInput, KindNull:
		return true
	default:
		return false
	}
}

// LiveRange is one allocator-visible interval: the variable it covers,
// its lexical extent, its required footprint in words, its alignment
// and forbidden-register constraints, and bookkeeping the scan mutates.
type LiveRange struct {
	Var ir.VarID

	Start, End int // lexical instruction ids, half-open [Start, End)

	Words    uint32
	Align    ir.Alignment
	Bank     ir.BankAlign
	Forbidden *Bitmap

	Kind Kind
	EOT  bool

	RefCount int // use+def count, for the spill-cost heuristic

	State      State
	Assignment *ir.PhysicalAssignment
}

// spillCost implements §4.4's heuristic: reference count divided by
// remaining extent, multiplied across affected rows. Lower cost is a
// cheaper range to spill.
func (lr *LiveRange) spillCost(currentStart int) float64 {
	remaining := lr.End - currentStart
	if remaining <= 0 {
		remaining = 1
	}

	rows := rowsFor(lr.Words)
	if rows == 0 {
		rows = 1
	}

	return float64(lr.RefCount) / float64(remaining) * float64(rows)
}

func rowsFor(words uint32) uint32 {
	wordsPerRow := uint32(ir.DefaultGRFBytes / 2)

	return (words + wordsPerRow - 1) / wordsPerRow
}

// Bitmap is a simple fixed-size bit set over GRF words, used both for
// the physical-register manager's busy map and for a live range's
// forbidden set.
type Bitmap struct {
	bits []bool
}

// NewBitmap creates a bitmap covering n words, all initially false.
func NewBitmap(n int) *Bitmap { return &Bitmap{bits: make([]bool, n)} }

func (bm *Bitmap) Set(i int)        { bm.bits[i] = true }
func (bm *Bitmap) Clear(i int)      { bm.bits[i] = false }
func (bm *Bitmap) Get(i int) bool   { return i >= 0 && i < len(bm.bits) && bm.bits[i] }
func (bm *Bitmap) Len() int         { return len(bm.bits) }

// SetRange marks [start,start+n) busy/free.
func (bm *Bitmap) SetRange(start, n int, v bool) {
	for i := start; i < start+n && i < len(bm.bits); i++ {
		bm.bits[i] = v
	}
}

// AnySet reports whether any bit in [start,start+n) is true.
func (bm *Bitmap) AnySet(start, n int) bool {
	for i := start; i < start+n; i++ {
		if i >= len(bm.bits) || bm.bits[i] {
			return true
		}
	}

	return false
}

// PhysicalFile is the physical-register manager of §5: a word-granular
// busy bitmap over TotalGRFNum rows, minus any reserved tail and minus
// driver-unavailable registers.
type PhysicalFile struct {
	TotalGRFNum    uint32
	GRFNumToUse    uint32
	ReservedGRFNum uint32
	WordsPerRow    uint32

	busy *Bitmap
}

// NewPhysicalFile creates a manager sized to totalGRFNum rows, with the
// allocator ceiling grfNumToUse and reservedGRFNum high rows withheld.
func NewPhysicalFile(totalGRFNum, grfNumToUse, reservedGRFNum uint32) *PhysicalFile {
	wordsPerRow := uint32(ir.DefaultGRFBytes / 2)

	pf := &PhysicalFile{
		TotalGRFNum:    totalGRFNum,
		GRFNumToUse:    grfNumToUse,
		ReservedGRFNum: reservedGRFNum,
		WordsPerRow:    wordsPerRow,
		busy:           NewBitmap(int(totalGRFNum * wordsPerRow)),
	}

	// Reserve the withheld tail permanently.
	ceiling := grfNumToUse
	if reservedGRFNum < ceiling {
		ceiling -= reservedGRFNum
	} else {
		ceiling = 0
	}

	pf.busy.SetRange(int(ceiling*wordsPerRow), int((totalGRFNum-ceiling)*wordsPerRow), true)

	return pf
}

// ReserveR0 marks GRF row 0 (the r0 header) permanently busy.
func (pf *PhysicalFile) ReserveR0() {
	pf.busy.SetRange(0, int(pf.WordsPerRow), true)
}

// EOTWindow returns the [start,end) word range of the last sixteen GRFs
// of the file, the mandatory placement region for EOT live ranges.
func (pf *PhysicalFile) EOTWindow() (start, end int) {
	eotRows := uint32(16)
	if eotRows > pf.TotalGRFNum {
		eotRows = pf.TotalGRFNum
	}

	startRow := pf.TotalGRFNum - eotRows

	return int(startRow * pf.WordsPerRow), int(pf.TotalGRFNum * pf.WordsPerRow)
}

// FindWindow searches for the first free, aligned, size-`words` window
// respecting forbidden, scanning only within [searchStart, searchEnd).
// It returns the starting word offset and true on success.
func (pf *PhysicalFile) FindWindow(words uint32, align ir.Alignment, forbidden *Bitmap, searchStart, searchEnd int) (int, bool) {
	if searchEnd <= 0 || searchEnd > pf.busy.Len() {
		searchEnd = pf.busy.Len()
	}

	step := int(pf.WordsPerRow)
	start := searchStart

	if align == ir.AlignEvenGRF {
		start = roundUpToRowMultiple(start, step, 2)
	} else if align == ir.AlignOddGRF {
		start = roundUpToOddRow(start, step)
	}

	for cur := start; cur+int(words) <= searchEnd; cur += alignStep(align, step) {
		if pf.busy.AnySet(cur, int(words)) {
			continue
		}

		if forbidden != nil && forbidden.AnySet(cur, int(words)) {
			continue
		}

		return cur, true
	}

	return 0, false
}

func alignStep(align ir.Alignment, rowWords int) int {
	if align == ir.AlignAny {
		return 1
	}

	// start is already rounded to the first row of the required parity;
	// stepping by a single row would land the next candidate on the
	// opposite parity, so even/odd alignment must advance two rows at a
	// time to stay on the same parity throughout the scan.
	return 2 * rowWords
}

func roundUpToRowMultiple(offset, rowWords, rowMultiple int) int {
	rowsUnit := rowWords * rowMultiple
	if offset%rowsUnit == 0 {
		return offset
	}

	return ((offset / rowsUnit) + 1) * rowsUnit
}

func roundUpToOddRow(offset, rowWords int) int {
	row := offset / rowWords
	if row%2 == 0 {
		row++
	}

	return row * rowWords
}

// MarkBusy marks [start,start+words) busy.
func (pf *PhysicalFile) MarkBusy(start int, words uint32) { pf.busy.SetRange(start, int(words), true) }

// MarkFree marks [start,start+words) free.
func (pf *PhysicalFile) MarkFree(start int, words uint32) { pf.busy.SetRange(start, int(words), false) }

// ToAssignment converts a word offset to a GRF row + sub-register pair.
func (pf *PhysicalFile) ToAssignment(wordOffset int) ir.PhysicalAssignment {
	row := uint32(wordOffset) / pf.WordsPerRow
	sub := uint32(wordOffset) % pf.WordsPerRow

	return ir.PhysicalAssignment{GRF: row, SubReg: sub}
}

// FromAssignment converts a GRF row + sub-register pair back to a word
// offset.
func (pf *PhysicalFile) FromAssignment(a ir.PhysicalAssignment) int {
	return int(a.GRF*pf.WordsPerRow + a.SubReg)
}
