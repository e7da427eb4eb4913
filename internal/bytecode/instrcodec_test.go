package bytecode

import (
	"testing"

	"github.com/0o001/visa-finalizer/internal/ir"
)

func TestEncodeDecodeInstructionRoundTripsMov(t *testing.T) {
	w := FieldWidths{IDBytes: 2, InputCountBytes: 1, FileIdxBytes: 2}

	ins := &ir.Instruction{
		Op:       ir.OpMov,
		ExecSize: 8,
		Dst:      ir.Operand{Kind: ir.OperandDst, Dst: ir.Region{Base: 3, Type: ir.TypeFloat, HStride: 1}},
		Src:      [3]ir.Operand{{Kind: ir.OperandSrc, Src: ir.Region{Base: 4, Type: ir.TypeFloat, HStride: 1, Width: 8}}},
		NumSrc:   1,
		Options:  ir.InstrOptions{WriteEnable: true},
	}

	buf, err := EncodeInstruction(nil, w, ins)
	if err != nil {
		t.Fatal(err)
	}

	got, err := DecodeInstruction(NewReader(buf), w)
	if err != nil {
		t.Fatal(err)
	}

	if got.Op != ir.OpMov || got.ExecSize != 8 || !got.Options.WriteEnable {
		t.Fatalf("got %+v", got)
	}

	if got.Dst.Dst.Base != 3 || got.Src[0].Src.Base != 4 {
		t.Fatalf("operand bases not preserved: dst=%+v src=%+v", got.Dst, got.Src[0])
	}
}

func TestEncodeDecodeInstructionRoundTripsPredicatedSend(t *testing.T) {
	w := FieldWidths{IDBytes: 4, InputCountBytes: 4, FileIdxBytes: 4}

	ins := &ir.Instruction{
		Op:        ir.OpSend,
		ExecSize:  16,
		Predicate: &ir.Predicate{Var: 9, Inverse: true, Control: ir.PredAllH},
		Dst:       ir.Operand{Kind: ir.OperandDst, Dst: ir.Region{Base: 1}},
		Src:       [3]ir.Operand{{Kind: ir.OperandRaw, Raw: ir.RawOperand{Var: 2, Rows: 4}}},
		NumSrc:    1,
		Options:   ir.InstrOptions{EOT: true},
	}

	buf, err := EncodeInstruction(nil, w, ins)
	if err != nil {
		t.Fatal(err)
	}

	got, err := DecodeInstruction(NewReader(buf), w)
	if err != nil {
		t.Fatal(err)
	}

	if got.Predicate == nil || got.Predicate.Var != 9 || !got.Predicate.Inverse {
		t.Fatalf("Predicate = %+v", got.Predicate)
	}

	if !got.Options.EOT {
		t.Fatal("EOT flag not preserved")
	}

	if got.Src[0].Raw.Rows != 4 {
		t.Fatalf("Raw.Rows = %d, want 4", got.Src[0].Raw.Rows)
	}
}

func TestEncodeDecodeInstructionRoundTripsLabelOperand(t *testing.T) {
	w := FieldWidths{IDBytes: 2, InputCountBytes: 1, FileIdxBytes: 2}

	ins := &ir.Instruction{
		Op:     ir.OpGoto,
		Src:    [3]ir.Operand{{Kind: ir.OperandLabel, Lbl: ir.Label{Kind: ir.LabelBlock, Name: "loop_head", Target: -1}}},
		NumSrc: 1,
	}

	buf, err := EncodeInstruction(nil, w, ins)
	if err != nil {
		t.Fatal(err)
	}

	got, err := DecodeInstruction(NewReader(buf), w)
	if err != nil {
		t.Fatal(err)
	}

	if got.Src[0].Lbl.Name != "loop_head" {
		t.Fatalf("Lbl.Name = %q, want loop_head", got.Src[0].Lbl.Name)
	}
}

func TestDecodeInstructionUnknownOpcodeErrors(t *testing.T) {
	w := FieldWidths{IDBytes: 2, InputCountBytes: 1, FileIdxBytes: 2}

	_, err := DecodeInstruction(NewReader([]byte{0xFE}), w)
	if err == nil {
		t.Fatal("expected error for unknown wire opcode")
	}
}

func TestMultipleInstructionsConcatenateAndDecodeSequentially(t *testing.T) {
	w := FieldWidths{IDBytes: 2, InputCountBytes: 1, FileIdxBytes: 2}

	var buf []byte

	buf, _ = EncodeInstruction(buf, w, &ir.Instruction{Op: ir.OpReturn})
	buf, _ = EncodeInstruction(buf, w, &ir.Instruction{Op: ir.OpLabel})

	r := NewReader(buf)

	first, err := DecodeInstruction(r, w)
	if err != nil {
		t.Fatal(err)
	}

	second, err := DecodeInstruction(r, w)
	if err != nil {
		t.Fatal(err)
	}

	if first.Op != ir.OpReturn || second.Op != ir.OpLabel {
		t.Fatalf("decoded ops: %v, %v", first.Op, second.Op)
	}

	if r.Remaining() != 0 {
		t.Fatalf("Remaining() = %d, want 0", r.Remaining())
	}
}
