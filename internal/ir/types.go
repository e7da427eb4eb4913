// Package ir implements the vISA-level intermediate representation: the
// declaration, register-variable, operand, and instruction model shared
// by the builder, the control-flow graph, liveness, the register
// allocator, and the spill manager. Declarations and register variables
// are referred to by typed indices (DeclID, VarID) into their tables
// rather than by pointer, so passes can be reset and rerun without
// dangling references (see the region-allocator design note);
// instructions are handled by pointer.
package ir

import "fmt"

// RegFile is one of the four register files a Declaration can live in.
type RegFile uint8

const (
	FileGeneral RegFile = iota // GRF
	FileAddress                // address register
	FileFlag                   // flag / predicate register
	FileState                  // surface / sampler handle
)

func (f RegFile) String() string {
	switch f {
	case FileGeneral:
		return "general"
	case FileAddress:
		return "address"
	case FileFlag:
		return "flag"
	case FileState:
		return "state"
	default:
		return fmt.Sprintf("RegFile(%d)", uint8(f))
	}
}

// DataType is the scalar element type of a Declaration or Immediate.
type DataType uint8

const (
	TypeInvalid DataType = iota
	TypeByte
	TypeUByte
	TypeWord
	TypeUWord
	TypeDword
	TypeUDword
	TypeQword
	TypeUQword
	TypeHalfFloat
	TypeFloat
	TypeDouble
)

// Size returns the element size in bytes for the data type.
func (t DataType) Size() int {
	switch t {
	case TypeByte, TypeUByte:
		return 1
	case TypeWord, TypeUWord, TypeHalfFloat:
		return 2
	case TypeDword, TypeUDword, TypeFloat:
		return 4
	case TypeQword, TypeUQword, TypeDouble:
		return 8
	default:
		return 0
	}
}

func (t DataType) String() string {
	switch t {
	case TypeByte:
		return "b"
	case TypeUByte:
		return "ub"
	case TypeWord:
		return "w"
	case TypeUWord:
		return "uw"
	case TypeDword:
		return "d"
	case TypeUDword:
		return "ud"
	case TypeQword:
		return "q"
	case TypeUQword:
		return "uq"
	case TypeHalfFloat:
		return "hf"
	case TypeFloat:
		return "f"
	case TypeDouble:
		return "df"
	default:
		return "invalid"
	}
}

// Alignment constrains the GRF row a Declaration's backing storage may
// start on.
type Alignment uint8

const (
	AlignAny Alignment = iota
	AlignEvenGRF
	AlignOddGRF
)

// SubAlignment constrains the sub-register word offset within a row.
type SubAlignment uint8

const (
	SubAlignAny SubAlignment = iota
	SubAlignWord
	SubAlignDword
	SubAlignQword
)

// DefaultGRFBytes is the physical byte width of one GRF row, the common
// 32-byte row. It is a compile-time constant used throughout the core;
// no option selects a different row width.
const DefaultGRFBytes = 32

// BankAlign biases the allocator's scan to reduce register-bank
// conflicts; it never overrides Alignment, only tie-breaks among equally
// valid windows.
type BankAlign uint8

const (
	BankAlignNone BankAlign = iota
	BankAlignEven2GRF
	BankAlignOdd2GRF
)
