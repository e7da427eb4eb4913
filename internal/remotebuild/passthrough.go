package remotebuild

import (
	"encoding/binary"

	"github.com/0o001/visa-finalizer/internal/bytecode"
	"github.com/0o001/visa-finalizer/internal/finalize"
	"github.com/0o001/visa-finalizer/internal/ir"
	"github.com/0o001/visa-finalizer/internal/jitmeta"
)

// WireEncoder is a default InstructionEncoder standing in for the
// out-of-scope instruction encoder (IGA): it serializes the allocated
// instruction stream through the same little-endian per-instruction
// codec internal/bytecode already round-trips byte-code through,
// rather than producing real native machine code. Callers with a real
// encoder should supply their own finalize.InstructionEncoder instead.
type WireEncoder struct {
	Widths bytecode.FieldWidths
}

// NewWireEncoder builds a WireEncoder at the widest (most permissive)
// field-width table the byte-code format defines.
func NewWireEncoder() *WireEncoder {
	v, _ := bytecode.NewVersion(3, 5)

	return &WireEncoder{Widths: bytecode.ResolveFieldWidths(v)}
}

func (e *WireEncoder) Encode(insns []*ir.Instruction, vars *ir.VarTable, decls *ir.DeclTable) ([]byte, error) {
	var buf []byte

	for _, in := range insns {
		var err error

		buf, err = bytecode.EncodeInstruction(buf, e.Widths, in)
		if err != nil {
			return nil, err
		}
	}

	return buf, nil
}

// ConcatEmitter is a default BinaryEmitter standing in for the
// out-of-scope relocatable-binary emitter: it concatenates every
// routine's encoded bytes and marshaled JIT metadata behind a simple
// length-prefixed directory, with no real relocation/linking. Callers
// with a real emitter should supply their own finalize.BinaryEmitter.
type ConcatEmitter struct{}

func (ConcatEmitter) EmitRelocatable(routines []finalize.EncodedRoutine, meta map[string]*jitmeta.Info) ([]byte, error) {
	var out []byte

	hdr := make([]byte, 4)
	binary.LittleEndian.PutUint32(hdr, uint32(len(routines)))
	out = append(out, hdr...)

	for _, r := range routines {
		out = append(out, lengthPrefixedString(r.Name)...)

		kernelByte := byte(0)
		if r.IsKernel {
			kernelByte = 1
		}

		out = append(out, kernelByte)
		out = append(out, lengthPrefixed(r.Code)...)

		info := meta[r.Name]
		if info == nil {
			out = append(out, lengthPrefixed(nil)...)

			continue
		}

		out = append(out, lengthPrefixed(info.Marshal())...)
	}

	return out, nil
}

func lengthPrefixed(b []byte) []byte {
	hdr := make([]byte, 4)
	binary.LittleEndian.PutUint32(hdr, uint32(len(b)))

	return append(hdr, b...)
}

func lengthPrefixedString(s string) []byte {
	return lengthPrefixed([]byte(s))
}
