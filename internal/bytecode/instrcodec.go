package bytecode

import (
	"fmt"

	"github.com/0o001/visa-finalizer/internal/errors"
	"github.com/0o001/visa-finalizer/internal/ir"
)

// instrOpcodeByte is the on-disk opcode tag, independent of ir.Opcode's
// numeric value so the wire format stays stable if the in-memory enum
// is reordered. Dispatch on these bytes is table-driven the same way
// the original reader dispatches on opcode family, not opcode value.
const (
	wireOpAdd byte = iota + 1
	wireOpSub
	wireOpMul
	wireOpDiv
	wireOpMod
	wireOpMulH
	wireOpAnd
	wireOpOr
	wireOpXor
	wireOpNot
	wireOpShl
	wireOpShr
	wireOpMov
	wireOpSel
	wireOpCmp
	wireOpAddrAdd
	wireOpSend
	wireOpSendSplit
	wireOpJump
	wireOpGoto
	wireOpCall
	wireOpReturn
	wireOpSwitchJump
	wireOpFuncCall
	wireOpFuncRet
	wireOpSymbol
	wireOpFence
	wireOpWait
	wireOpBarrier
	wireOpLabel
	wireOpLifetimeStart
	wireOpLifetimeEnd
	wireOpPseudoKill
	wireOpSpill
	wireOpFill
	wireOpUse
)

var opcodeToWire = map[ir.Opcode]byte{
	ir.OpAdd: wireOpAdd, ir.OpSub: wireOpSub, ir.OpMul: wireOpMul, ir.OpDiv: wireOpDiv,
	ir.OpMod: wireOpMod, ir.OpMulH: wireOpMulH,
	ir.OpAnd: wireOpAnd, ir.OpOr: wireOpOr, ir.OpXor: wireOpXor, ir.OpNot: wireOpNot,
	ir.OpShl: wireOpShl, ir.OpShr: wireOpShr,
	ir.OpMov: wireOpMov, ir.OpSel: wireOpSel,
	ir.OpCmp:     wireOpCmp,
	ir.OpAddrAdd: wireOpAddrAdd,
	ir.OpSend:    wireOpSend, ir.OpSendSplit: wireOpSendSplit,
	ir.OpJump: wireOpJump, ir.OpGoto: wireOpGoto, ir.OpCall: wireOpCall, ir.OpReturn: wireOpReturn,
	ir.OpSwitchJump: wireOpSwitchJump, ir.OpFuncCall: wireOpFuncCall, ir.OpFuncRet: wireOpFuncRet,
	ir.OpSymbol:        wireOpSymbol,
	ir.OpFence:         wireOpFence,
	ir.OpWait:          wireOpWait,
	ir.OpBarrier:       wireOpBarrier,
	ir.OpLabel:         wireOpLabel,
	ir.OpLifetimeStart: wireOpLifetimeStart,
	ir.OpLifetimeEnd:   wireOpLifetimeEnd,
	ir.OpPseudoKill:    wireOpPseudoKill,
	ir.OpSpill:         wireOpSpill,
	ir.OpFill:          wireOpFill,
	ir.OpUse:           wireOpUse,
}

var wireToOpcode = func() map[byte]ir.Opcode {
	m := make(map[byte]ir.Opcode, len(opcodeToWire))
	for op, w := range opcodeToWire {
		m[w] = op
	}

	return m
}()

// operand kind wire tags, one byte each.
const (
	wireOperandInvalid byte = iota
	wireOperandDst
	wireOperandSrc
	wireOperandIndirect
	wireOperandImmediate
	wireOperandLabel
	wireOperandPredicate
	wireOperandRaw
	wireOperandAddressExpr
	wireOperandStateHandle
	wireOperandNone // no operand present in this slot
)

// EncodeInstruction appends one instruction's wire form to buf. Every
// opcode uses the same layout: a one-byte opcode, the execution size,
// the options byte, a predicate-present byte (followed by the predicate
// when set), the destination operand, the source count, then each
// source operand, every operand tagged with its kind.
func EncodeInstruction(buf []byte, w FieldWidths, ins *ir.Instruction) ([]byte, error) {
	wireOp, ok := opcodeToWire[ins.Op]
	if !ok {
		return nil, fmt.Errorf("bytecode: no wire encoding for opcode %d", ins.Op)
	}

	buf = append(buf, wireOp)
	buf = append(buf, ins.ExecSize)
	buf = append(buf, encodeOptions(ins.Options))
	buf = append(buf, boolByte(ins.Predicate != nil))

	if ins.Predicate != nil {
		buf = appendUID(buf, w, uint32(ins.Predicate.Var))
		buf = append(buf, boolByte(ins.Predicate.Inverse), byte(ins.Predicate.Control))
	}

	buf = encodeOperand(buf, w, ins.Dst, true)

	buf = append(buf, byte(ins.NumSrc))
	for i := 0; i < ins.NumSrc; i++ {
		buf = encodeOperand(buf, w, ins.Src[i], false)
	}

	return buf, nil
}

func encodeOptions(o ir.InstrOptions) byte {
	var b byte

	if o.NoMask {
		b |= 1 << 0
	}

	if o.WriteEnable {
		b |= 1 << 1
	}

	if o.CompactionHint {
		b |= 1 << 2
	}

	if o.EOT {
		b |= 1 << 3
	}

	return b
}

func decodeOptions(b byte, maskOffset uint8) ir.InstrOptions {
	return ir.InstrOptions{
		NoMask:         b&(1<<0) != 0,
		WriteEnable:    b&(1<<1) != 0,
		CompactionHint: b&(1<<2) != 0,
		EOT:            b&(1<<3) != 0,
		MaskOffset:     maskOffset,
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}

	return 0
}

func appendUID(buf []byte, w FieldWidths, v uint32) []byte {
	if w.IDBytes == 4 {
		return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}

	return append(buf, byte(v), byte(v>>8))
}

func encodeOperand(buf []byte, w FieldWidths, op ir.Operand, isDst bool) []byte {
	switch op.Kind {
	case ir.OperandInvalid:
		return append(buf, wireOperandNone)
	case ir.OperandDst:
		buf = append(buf, wireOperandDst)
		return encodeRegion(buf, w, op.Dst)
	case ir.OperandSrc:
		buf = append(buf, wireOperandSrc)
		return encodeRegion(buf, w, op.Src)
	case ir.OperandIndirect:
		buf = append(buf, wireOperandIndirect)
		buf = appendUID(buf, w, uint32(op.Indirect.AddrVar))
		buf = append(buf, byte(op.Indirect.ImmOffset), byte(op.Indirect.ImmOffset>>8))
		buf = append(buf, byte(op.Indirect.Type))
		return appendU32(buf, op.Indirect.ElemsPerEx)
	case ir.OperandImmediate:
		buf = append(buf, wireOperandImmediate, byte(op.Imm.Type))
		return appendU64(buf, op.Imm.Bits)
	case ir.OperandLabel:
		buf = append(buf, wireOperandLabel, byte(op.Lbl.Kind))
		buf = appendU32(buf, uint32(len(op.Lbl.Name)))
		return append(buf, []byte(op.Lbl.Name)...)
	case ir.OperandRaw:
		buf = append(buf, wireOperandRaw)
		buf = appendUID(buf, w, uint32(op.Raw.Var))
		return appendU32(buf, op.Raw.Rows)
	case ir.OperandAddressExpr:
		buf = append(buf, wireOperandAddressExpr)
		buf = appendUID(buf, w, uint32(op.AddrExpr.Target))
		return appendU32(buf, op.AddrExpr.Offset)
	case ir.OperandStateHandle:
		buf = append(buf, wireOperandStateHandle)
		buf = appendUID(buf, w, uint32(op.State.Var))
		return appendU32(buf, op.State.Index)
	default:
		return append(buf, wireOperandNone)
	}
}

func encodeRegion(buf []byte, w FieldWidths, r ir.Region) []byte {
	buf = appendUID(buf, w, uint32(r.Base))
	buf = appendU32(buf, r.RowOffset)
	buf = appendU32(buf, r.SubReg)
	buf = append(buf, byte(r.Type))
	buf = appendU32(buf, r.VStride)
	buf = appendU32(buf, r.Width)

	return appendU32(buf, r.HStride)
}

func appendU32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendU64(buf []byte, v uint64) []byte {
	return appendU32(appendU32(buf, uint32(v)), uint32(v>>32))
}

// DecodeInstruction reads one instruction's wire form starting at r's
// current position.
func DecodeInstruction(r *Reader, w FieldWidths) (*ir.Instruction, error) {
	startPos := r.Pos()

	wireOp, err := r.U8()
	if err != nil {
		return nil, err
	}

	op, ok := wireToOpcode[wireOp]
	if !ok {
		return nil, errors.UnknownOpcode(wireOp, startPos)
	}

	execSize, err := r.U8()
	if err != nil {
		return nil, err
	}

	optByte, err := r.U8()
	if err != nil {
		return nil, err
	}

	hasPred, err := r.U8()
	if err != nil {
		return nil, err
	}

	ins := &ir.Instruction{Op: op, ExecSize: execSize}

	if hasPred != 0 {
		varID, err := r.UID(w)
		if err != nil {
			return nil, err
		}

		inv, err := r.U8()
		if err != nil {
			return nil, err
		}

		ctrl, err := r.U8()
		if err != nil {
			return nil, err
		}

		ins.Predicate = &ir.Predicate{Var: ir.VarID(varID), Inverse: inv != 0, Control: ir.PredicateControl(ctrl)}
	}

	ins.Options = decodeOptions(optByte, 0)

	dst, err := decodeOperand(r, w)
	if err != nil {
		return nil, err
	}

	ins.Dst = dst

	numSrc, err := r.U8()
	if err != nil {
		return nil, err
	}

	ins.NumSrc = int(numSrc)

	for i := 0; i < ins.NumSrc && i < 3; i++ {
		src, err := decodeOperand(r, w)
		if err != nil {
			return nil, err
		}

		ins.Src[i] = src
	}

	return ins, nil
}

func decodeOperand(r *Reader, w FieldWidths) (ir.Operand, error) {
	kind, err := r.U8()
	if err != nil {
		return ir.Operand{}, err
	}

	switch kind {
	case wireOperandNone:
		return ir.Operand{}, nil
	case wireOperandDst:
		reg, err := decodeRegion(r, w)
		return ir.Operand{Kind: ir.OperandDst, Dst: reg}, err
	case wireOperandSrc:
		reg, err := decodeRegion(r, w)
		return ir.Operand{Kind: ir.OperandSrc, Src: reg}, err
	case wireOperandIndirect:
		addrVar, err := r.UID(w)
		if err != nil {
			return ir.Operand{}, err
		}

		lo, err := r.U8()
		if err != nil {
			return ir.Operand{}, err
		}

		hi, err := r.U8()
		if err != nil {
			return ir.Operand{}, err
		}

		typeCode, err := r.U8()
		if err != nil {
			return ir.Operand{}, err
		}

		elems, err := r.U32()
		if err != nil {
			return ir.Operand{}, err
		}

		return ir.Operand{Kind: ir.OperandIndirect, Indirect: ir.IndirectOperand{
			AddrVar: ir.VarID(addrVar), ImmOffset: int16(uint16(lo) | uint16(hi)<<8), Type: ir.DataType(typeCode), ElemsPerEx: elems,
		}}, nil
	case wireOperandImmediate:
		typeCode, err := r.U8()
		if err != nil {
			return ir.Operand{}, err
		}

		bits, err := r.U64()
		if err != nil {
			return ir.Operand{}, err
		}

		return ir.Operand{Kind: ir.OperandImmediate, Imm: ir.Immediate{Type: ir.DataType(typeCode), Bits: bits}}, nil
	case wireOperandLabel:
		labelKind, err := r.U8()
		if err != nil {
			return ir.Operand{}, err
		}

		nameLen, err := r.U32()
		if err != nil {
			return ir.Operand{}, err
		}

		nameBytes, err := r.Bytes(int(nameLen))
		if err != nil {
			return ir.Operand{}, err
		}

		return ir.Operand{Kind: ir.OperandLabel, Lbl: ir.Label{Kind: ir.LabelKind(labelKind), Name: string(nameBytes), Target: -1}}, nil
	case wireOperandRaw:
		varID, err := r.UID(w)
		if err != nil {
			return ir.Operand{}, err
		}

		rows, err := r.U32()
		if err != nil {
			return ir.Operand{}, err
		}

		return ir.Operand{Kind: ir.OperandRaw, Raw: ir.RawOperand{Var: ir.VarID(varID), Rows: rows}}, nil
	case wireOperandAddressExpr:
		target, err := r.UID(w)
		if err != nil {
			return ir.Operand{}, err
		}

		offset, err := r.U32()
		if err != nil {
			return ir.Operand{}, err
		}

		return ir.Operand{Kind: ir.OperandAddressExpr, AddrExpr: ir.AddressExpr{Target: ir.DeclID(target), Offset: offset}}, nil
	case wireOperandStateHandle:
		varID, err := r.UID(w)
		if err != nil {
			return ir.Operand{}, err
		}

		index, err := r.U32()
		if err != nil {
			return ir.Operand{}, err
		}

		return ir.Operand{Kind: ir.OperandStateHandle, State: ir.StateHandle{Var: ir.VarID(varID), Index: index}}, nil
	default:
		return ir.Operand{}, fmt.Errorf("bytecode: unknown operand tag %d at byte %d", kind, r.Pos())
	}
}

func decodeRegion(r *Reader, w FieldWidths) (ir.Region, error) {
	base, err := r.UID(w)
	if err != nil {
		return ir.Region{}, err
	}

	rowOffset, err := r.U32()
	if err != nil {
		return ir.Region{}, err
	}

	subReg, err := r.U32()
	if err != nil {
		return ir.Region{}, err
	}

	typeCode, err := r.U8()
	if err != nil {
		return ir.Region{}, err
	}

	vStride, err := r.U32()
	if err != nil {
		return ir.Region{}, err
	}

	width, err := r.U32()
	if err != nil {
		return ir.Region{}, err
	}

	hStride, err := r.U32()
	if err != nil {
		return ir.Region{}, err
	}

	return ir.Region{
		Base: ir.VarID(base), RowOffset: rowOffset, SubReg: subReg, Type: ir.DataType(typeCode),
		VStride: vStride, Width: width, HStride: hStride,
	}, nil
}
