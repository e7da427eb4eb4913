package ir

import "fmt"

// OperandKind tags the Operand union.
type OperandKind uint8

const (
	OperandInvalid OperandKind = iota
	OperandDst                 // destination region
	OperandSrc                 // source region
	OperandIndirect             // indirect source/destination
	OperandImmediate
	OperandLabel
	OperandPredicate
	OperandRaw // aligned-register handle for send payloads
	OperandAddressExpr
	OperandStateHandle
)

// Region describes <base, row offset, sub-register offset, element
// type> plus the source-only region descriptor <vertical stride,
// width, horizontal stride>. A destination region only uses HStride;
// VStride and Width are meaningful for source regions.
type Region struct {
	Base      VarID
	RowOffset uint32 // GRF row offset from the base variable's storage
	SubReg    uint32 // sub-register word offset within the row
	Type      DataType

	VStride uint32 // source-only: vertical stride between rows
	Width   uint32 // source-only: elements per row in the region
	HStride uint32 // horizontal stride between consecutive elements
}

// ByteRange computes the linearized [start, end) byte range a region
// touches for the given execution size, per §3's "operands compute
// their linearized byte range from base + region + execution size."
func (r Region) ByteRange(execSize int) (start, end uint32) {
	elemSize := uint32(r.Type.Size())
	base := r.RowOffset*DefaultGRFBytes + r.SubReg*2

	hStride := r.HStride
	if hStride == 0 {
		hStride = 1
	}

	lastElemOffset := uint32(execSize-1) * hStride * elemSize

	return base, base + lastElemOffset + elemSize
}

// IndirectOperand addresses memory through an address variable plus a
// 16-bit immediate byte offset.
type IndirectOperand struct {
	AddrVar    VarID
	ImmOffset  int16
	Type       DataType
	ElemsPerEx uint32
}

// Immediate is a compile-time constant operand.
type Immediate struct {
	Type  DataType
	Bits  uint64 // raw bit pattern, reinterpreted per Type
}

// PredicateControl selects which lanes of a predicate are consulted.
type PredicateControl uint8

const (
	PredNone PredicateControl = iota
	PredNormal
	PredAnyH
	PredAllH
)

// Predicate gates instruction execution on a flag variable.
type Predicate struct {
	Var     VarID
	Inverse bool
	Control PredicateControl
}

// Label identifies a branch target: a basic block, a subroutine entry,
// or a function-call target.
type LabelKind uint8

const (
	LabelBlock LabelKind = iota
	LabelSubroutine
	LabelFunctionCall
)

type Label struct {
	Kind LabelKind
	Name string
	// Target is resolved by the CFG builder once block numbering is
	// known; -1 means unresolved.
	Target int
}

// RawOperand is an aligned-register handle used for send payloads: the
// allocator must place it at a GRF-aligned boundary but the operand
// itself carries no sub-region descriptor.
type RawOperand struct {
	Var     VarID
	Rows    uint32
}

// AddressExpr is a compile-time address-of-variable operand (used to
// materialize the address of a Declaration into an address variable).
type AddressExpr struct {
	Target DeclID
	Offset uint32
}

// StateHandle references a predefined or user surface/sampler.
type StateHandle struct {
	Var   VarID
	Index uint32
}

// Operand is a tagged variant over every vISA operand class. Exactly
// one of the typed fields is meaningful, selected by Kind; this mirrors
// the opcode-family tagged-variant guidance in the re-architecture
// notes (replace down-casts with a tagged union, keep payload inline).
type Operand struct {
	Kind OperandKind

	Dst       Region
	Src       Region
	Indirect  IndirectOperand
	Imm       Immediate
	Lbl       Label
	Pred      Predicate
	Raw       RawOperand
	AddrExpr  AddressExpr
	State     StateHandle
}

// ByteRange dispatches to the operand's concrete region for the linear
// byte range it touches, or (0,0) for operand kinds with no memory
// footprint (label, immediate).
func (o Operand) ByteRange(execSize int) (start, end uint32) {
	switch o.Kind {
	case OperandDst:
		return o.Dst.ByteRange(execSize)
	case OperandSrc:
		return o.Src.ByteRange(execSize)
	case OperandRaw:
		return 0, o.Raw.Rows * DefaultGRFBytes
	default:
		return 0, 0
	}
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandDst:
		return fmt.Sprintf("dst(v%d+%d.%d)", o.Dst.Base, o.Dst.RowOffset, o.Dst.SubReg)
	case OperandSrc:
		return fmt.Sprintf("src(v%d+%d.%d)<%d;%d,%d>", o.Src.Base, o.Src.RowOffset, o.Src.SubReg, o.Src.VStride, o.Src.Width, o.Src.HStride)
	case OperandIndirect:
		return fmt.Sprintf("indirect(a%d+%d)", o.Indirect.AddrVar, o.Indirect.ImmOffset)
	case OperandImmediate:
		return fmt.Sprintf("imm(0x%x:%s)", o.Imm.Bits, o.Imm.Type)
	case OperandLabel:
		return fmt.Sprintf("label(%s)", o.Lbl.Name)
	case OperandPredicate:
		return fmt.Sprintf("pred(v%d)", o.Pred.Var)
	case OperandRaw:
		return fmt.Sprintf("raw(v%d,%d rows)", o.Raw.Var, o.Raw.Rows)
	case OperandAddressExpr:
		return fmt.Sprintf("addrof(d%d+%d)", o.AddrExpr.Target, o.AddrExpr.Offset)
	case OperandStateHandle:
		return fmt.Sprintf("state(v%d[%d])", o.State.Var, o.State.Index)
	default:
		return "invalid"
	}
}
