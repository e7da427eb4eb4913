// Package builder implements the single monotonic API §4.1 describes
// for constructing or reconstructing the vISA-level IR: declaration and
// operand factories, one append-instruction entry point per opcode
// family, kernel/function composition, and the byte-code reconstruction
// path built on internal/bytecode.
package builder

import (
	"fmt"

	"github.com/0o001/visa-finalizer/internal/cfg"
	"github.com/0o001/visa-finalizer/internal/errors"
	"github.com/0o001/visa-finalizer/internal/ir"
)

// State is the builder's per-compilation state machine (§4.6): Building
// accepts appends, Finalized computes per-kernel/per-function
// attributes and forbids further appends, EmittingBinary is terminal.
type State int

const (
	StateBuilding State = iota
	StateFinalized
	StateEmittingBinary
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "Building"
	case StateFinalized:
		return "Finalized"
	case StateEmittingBinary:
		return "EmittingBinary"
	default:
		return "Unknown"
	}
}

// BuildMode selects direct-API construction vs byte-code reconstruction;
// both route through the same Routine/instruction-append machinery.
type BuildMode int

const (
	ModeDirect BuildMode = iota
	ModeByteCode
)

// Routine is one kernel or function under construction: its own
// instruction stream, declarations visible to it, labels, and (for
// functions) the extern flag that governs stitching policy.
type Routine struct {
	Name     string
	IsKernel bool
	IsExtern bool

	Insns  []*ir.Instruction
	Labels map[string]*ir.Label

	Inputs        []ir.DeclID
	InputOffsets  map[ir.DeclID]uint32
	Attributes    []RoutineAttribute

	Graph *cfg.Graph

	// preStitch holds the pre-stitch instruction/graph snapshot while a
	// function is spliced into a caller, so un-stitching can restore it.
	preStitch *preStitchSnapshot
}

// RoutineAttribute is a kernel/function attribute: bool, int32, or
// C-string payload, selected by name the way byte-code attributes are.
type RoutineAttribute struct {
	Name  string
	Kind  AttrKind
	Bool  bool
	Int32 int32
	Str   string
}

type AttrKind int

const (
	AttrBool AttrKind = iota
	AttrInt32
	AttrString
)

// Builder owns one compilation's IR: its arena-scoped declaration and
// variable tables, its kernel/function lists, the predefined-variable
// table, and the critical-message stream embedders read after Compile
// returns.
type Builder struct {
	state State

	Decls *ir.DeclTable
	Vars  *ir.VarTable
	pre   *predefinedTable

	Kernels   []*Routine
	Functions []*Routine
	byName    map[string]*Routine

	Options Options

	messages []string
	firstErr error
}

// Options mirrors the command-line/option surface of §6 relevant to
// construction and stitching; allocator/spill-specific options live in
// internal/config.
type Options struct {
	NoStitchExternFunc bool
}

// New creates a Builder in state Building, with every predefined
// variable already materialized.
func New(opts Options) *Builder {
	decls := ir.NewDeclTable()
	vars := ir.NewVarTable()

	return &Builder{
		state:   StateBuilding,
		Decls:   decls,
		Vars:    vars,
		pre:     materializePredefined(decls, vars),
		byName:  make(map[string]*Routine),
		Options: opts,
	}
}

// Predefined exposes the materialized predefined-variable table so
// callers can reference V0/FP/SP/etc. without re-deriving them.
func (b *Builder) Predefined() *predefinedTable { return b.pre }

func (b *Builder) requireState(op string, want State) error {
	if b.state != want {
		err := errors.BuilderMisuse(op, b.state.String())
		b.recordError(err)

		return err
	}

	return nil
}

func (b *Builder) recordError(err error) {
	if b.firstErr == nil {
		b.firstErr = err
	}

	b.messages = append(b.messages, err.Error())
}

// Messages returns the critical-message stream accumulated so far, in
// the order they were recorded (§7: "read after the compile call
// returns").
func (b *Builder) Messages() []string { return b.messages }

// FirstError returns the first error recorded since creation, or nil.
func (b *Builder) FirstError() error { return b.firstErr }

// AddKernel creates a new kernel routine and returns it. Valid only in
// state Building.
func (b *Builder) AddKernel(name string) (*Routine, error) {
	if err := b.requireState("AddKernel", StateBuilding); err != nil {
		return nil, err
	}

	r := &Routine{Name: name, IsKernel: true, Labels: map[string]*ir.Label{}, InputOffsets: map[ir.DeclID]uint32{}}
	b.Kernels = append(b.Kernels, r)
	b.byName[name] = r

	return r, nil
}

// AddFunction creates a new non-kernel function routine.
func (b *Builder) AddFunction(name string, isExtern bool) (*Routine, error) {
	if err := b.requireState("AddFunction", StateBuilding); err != nil {
		return nil, err
	}

	r := &Routine{Name: name, IsExtern: isExtern, Labels: map[string]*ir.Label{}, InputOffsets: map[ir.DeclID]uint32{}}
	b.Functions = append(b.Functions, r)
	b.byName[name] = r

	return r, nil
}

// Lookup finds a previously-added kernel or function by name.
func (b *Builder) Lookup(name string) (*Routine, bool) {
	r, ok := b.byName[name]

	return r, ok
}

// DeclareGeneral creates a general-register declaration, optionally
// aliasing an existing declaration at a byte offset (aliasParent == 0
// for a root declaration).
func (b *Builder) DeclareGeneral(name string, typ ir.DataType, nElem uint32, aliasParent ir.DeclID, aliasOffset uint32, align ir.Alignment) (ir.DeclID, error) {
	return b.declare(ir.FileGeneral, name, typ, nElem, aliasParent, aliasOffset, align)
}

// DeclareAddress creates an address-register declaration.
func (b *Builder) DeclareAddress(name string, nElem uint32) (ir.DeclID, error) {
	return b.declare(ir.FileAddress, name, ir.TypeUWord, nElem, 0, 0, ir.AlignAny)
}

// DeclarePredicate creates a predicate (flag-register) declaration.
func (b *Builder) DeclarePredicate(name string, nElem uint32) (ir.DeclID, error) {
	return b.declare(ir.FileFlag, name, ir.TypeUWord, nElem, 0, 0, ir.AlignAny)
}

// DeclareSurface creates a surface-state declaration.
func (b *Builder) DeclareSurface(name string) (ir.DeclID, error) {
	return b.declare(ir.FileState, name, ir.TypeUDword, 1, 0, 0, ir.AlignAny)
}

// DeclareSampler creates a sampler-state declaration.
func (b *Builder) DeclareSampler(name string) (ir.DeclID, error) {
	return b.declare(ir.FileState, name, ir.TypeUDword, 1, 0, 0, ir.AlignAny)
}

func (b *Builder) declare(file ir.RegFile, name string, typ ir.DataType, nElem uint32, aliasParent ir.DeclID, aliasOffset uint32, align ir.Alignment) (ir.DeclID, error) {
	if err := b.requireState("Declare", StateBuilding); err != nil {
		return 0, err
	}

	if aliasParent != 0 && !b.Decls.Valid(aliasParent) {
		err := errors.UndefinedVariable(uint32(aliasParent))
		b.recordError(err)

		return 0, err
	}

	totalBytes := nElem * uint32(typ.Size())

	var rowCount, wordCount uint32
	if totalBytes >= ir.DefaultGRFBytes {
		rowCount = (totalBytes + ir.DefaultGRFBytes - 1) / ir.DefaultGRFBytes
	} else {
		wordCount = (totalBytes + 1) / 2
	}

	id := b.Decls.Add(ir.Declaration{
		Name:        name,
		File:        file,
		Type:        typ,
		NElem:       nElem,
		RowCount:    rowCount,
		WordCount:   wordCount,
		AliasParent: aliasParent,
		AliasOffset: aliasOffset,
		Align:       align,
	})

	return id, nil
}

// BindInput marks decl as an input argument with the given byte offset
// and registers it on the routine's Inputs list (kernels only, per
// §4.1).
func (b *Builder) BindInput(r *Routine, decl ir.DeclID, offset uint32) error {
	if err := b.requireState("BindInput", StateBuilding); err != nil {
		return err
	}

	if !b.Decls.Valid(decl) {
		err := errors.UndefinedVariable(uint32(decl))
		b.recordError(err)

		return err
	}

	d := b.Decls.Get(decl)
	d.IsInput = true
	r.Inputs = append(r.Inputs, decl)

	if r.InputOffsets == nil {
		r.InputOffsets = make(map[ir.DeclID]uint32)
	}

	r.InputOffsets[decl] = offset

	return nil
}

// AttachAttribute appends a kernel/function attribute.
func (b *Builder) AttachAttribute(r *Routine, attr RoutineAttribute) error {
	if err := b.requireState("AttachAttribute", StateBuilding); err != nil {
		return err
	}

	r.Attributes = append(r.Attributes, attr)

	return nil
}

// NewVar creates a register variable bound to decl.
func (b *Builder) NewVar(decl ir.DeclID) (ir.VarID, error) {
	if !b.Decls.Valid(decl) {
		err := errors.UndefinedVariable(uint32(decl))
		b.recordError(err)

		return 0, err
	}

	return b.Vars.Add(ir.RegisterVariable{Decl: decl}), nil
}

// NewLabel creates a label of the given kind and registers it on r.
func (b *Builder) NewLabel(r *Routine, name string, kind ir.LabelKind) *ir.Label {
	lbl := &ir.Label{Kind: kind, Name: name, Target: -1}
	r.Labels[name] = lbl

	return lbl
}

// --- operand factories -----------------------------------------------

// Dst builds a destination-region operand.
func Dst(base ir.VarID, rowOffset, subReg uint32, typ ir.DataType, hStride uint32) ir.Operand {
	return ir.Operand{Kind: ir.OperandDst, Dst: ir.Region{Base: base, RowOffset: rowOffset, SubReg: subReg, Type: typ, HStride: hStride}}
}

// Src builds a source-region operand.
func Src(base ir.VarID, rowOffset, subReg uint32, typ ir.DataType, vStride, width, hStride uint32) ir.Operand {
	return ir.Operand{Kind: ir.OperandSrc, Src: ir.Region{Base: base, RowOffset: rowOffset, SubReg: subReg, Type: typ, VStride: vStride, Width: width, HStride: hStride}}
}

// Imm builds an immediate operand.
func Imm(typ ir.DataType, bits uint64) ir.Operand {
	return ir.Operand{Kind: ir.OperandImmediate, Imm: ir.Immediate{Type: typ, Bits: bits}}
}

// LabelOperand builds a label operand referencing lbl.
func LabelOperand(lbl *ir.Label) ir.Operand {
	return ir.Operand{Kind: ir.OperandLabel, Lbl: *lbl}
}

// Indirect builds an indirect source/destination operand.
func Indirect(addr ir.VarID, immOffset int16, typ ir.DataType, elemsPerEx uint32) ir.Operand {
	return ir.Operand{Kind: ir.OperandIndirect, Indirect: ir.IndirectOperand{AddrVar: addr, ImmOffset: immOffset, Type: typ, ElemsPerEx: elemsPerEx}}
}

// --- append-instruction entry points, one per opcode family ----------

func (b *Builder) append(r *Routine, ins *ir.Instruction) error {
	if err := b.requireState("append", StateBuilding); err != nil {
		return err
	}

	ins.LexicalID = len(r.Insns)
	r.Insns = append(r.Insns, ins)

	return nil
}

// Arithmetic appends an arithmetic-family instruction (add/sub/mul/div/mod/mulh).
func (b *Builder) Arithmetic(r *Routine, op ir.Opcode, execSize uint8, dst, src0, src1 ir.Operand, opts ir.InstrOptions) error {
	if ir.ClassOf(op) != ir.ClassArithmetic {
		err := errors.TypeMismatch(fmt.Sprintf("opcode(%d)", op), "arithmetic")
		b.recordError(err)

		return err
	}

	return b.append(r, &ir.Instruction{Op: op, ExecSize: execSize, Dst: dst, Src: [3]ir.Operand{src0, src1}, NumSrc: 2, Options: opts})
}

// Logical appends a logical-family instruction.
func (b *Builder) Logical(r *Routine, op ir.Opcode, execSize uint8, dst, src0, src1 ir.Operand, opts ir.InstrOptions) error {
	if ir.ClassOf(op) != ir.ClassLogical {
		err := errors.TypeMismatch(fmt.Sprintf("opcode(%d)", op), "logical")
		b.recordError(err)

		return err
	}

	return b.append(r, &ir.Instruction{Op: op, ExecSize: execSize, Dst: dst, Src: [3]ir.Operand{src0, src1}, NumSrc: 2, Options: opts})
}

// Move appends a data-movement instruction (mov/sel).
func (b *Builder) Move(r *Routine, op ir.Opcode, execSize uint8, dst, src ir.Operand, opts ir.InstrOptions) error {
	if ir.ClassOf(op) != ir.ClassDataMovement {
		err := errors.TypeMismatch(fmt.Sprintf("opcode(%d)", op), "data-movement")
		b.recordError(err)

		return err
	}

	return b.append(r, &ir.Instruction{Op: op, ExecSize: execSize, Dst: dst, Src: [3]ir.Operand{src}, NumSrc: 1, Options: opts})
}

// Compare appends a compare instruction, writing its result into a flag
// declaration referenced by predDst.
func (b *Builder) Compare(r *Routine, execSize uint8, predDst ir.Operand, src0, src1 ir.Operand, opts ir.InstrOptions) error {
	return b.append(r, &ir.Instruction{Op: ir.OpCmp, ExecSize: execSize, Dst: predDst, Src: [3]ir.Operand{src0, src1}, NumSrc: 2, Options: opts})
}

// AddrAdd appends an address-add instruction.
func (b *Builder) AddrAdd(r *Routine, execSize uint8, dst, src0, src1 ir.Operand, opts ir.InstrOptions) error {
	return b.append(r, &ir.Instruction{Op: ir.OpAddrAdd, ExecSize: execSize, Dst: dst, Src: [3]ir.Operand{src0, src1}, NumSrc: 2, Options: opts})
}

// Send appends a send or split-send instruction with a raw payload.
func (b *Builder) Send(r *Routine, op ir.Opcode, execSize uint8, dst, payload ir.Operand, opts ir.InstrOptions) error {
	if ir.ClassOf(op) != ir.ClassSend {
		err := errors.TypeMismatch(fmt.Sprintf("opcode(%d)", op), "send")
		b.recordError(err)

		return err
	}

	return b.append(r, &ir.Instruction{Op: op, ExecSize: execSize, Dst: dst, Src: [3]ir.Operand{payload}, NumSrc: 1, Options: opts})
}

// Branch appends a control-flow instruction targeting lbl (jump/goto/call).
func (b *Builder) Branch(r *Routine, op ir.Opcode, lbl *ir.Label, pred *ir.Predicate) error {
	if ir.ClassOf(op) != ir.ClassControlFlow {
		err := errors.TypeMismatch(fmt.Sprintf("opcode(%d)", op), "control-flow")
		b.recordError(err)

		return err
	}

	ins := &ir.Instruction{Op: op, Predicate: pred}
	if lbl != nil {
		ins.Src[0] = LabelOperand(lbl)
		ins.NumSrc = 1
	}

	return b.append(r, ins)
}

// Return appends a return instruction.
func (b *Builder) Return(r *Routine) error {
	return b.append(r, &ir.Instruction{Op: ir.OpReturn})
}

// Sync appends a sync-family instruction (fence/wait/barrier).
func (b *Builder) Sync(r *Routine, op ir.Opcode) error {
	if ir.ClassOf(op) != ir.ClassSync {
		err := errors.TypeMismatch(fmt.Sprintf("opcode(%d)", op), "sync")
		b.recordError(err)

		return err
	}

	return b.append(r, &ir.Instruction{Op: op})
}

// PlaceLabel appends an OpLabel instruction marking lbl's position,
// resolving lbl's Target to the lexical id that will become this
// block's leader once the CFG is built.
func (b *Builder) PlaceLabel(r *Routine, lbl *ir.Label) error {
	lbl.Target = len(r.Insns)

	return b.append(r, &ir.Instruction{Op: ir.OpLabel, Src: [3]ir.Operand{LabelOperand(lbl)}, NumSrc: 1})
}

// Lifetime appends a lifetime-start or lifetime-end marker for v.
func (b *Builder) Lifetime(r *Routine, op ir.Opcode, v ir.VarID) error {
	if ir.ClassOf(op) != ir.ClassLifetime {
		err := errors.TypeMismatch(fmt.Sprintf("opcode(%d)", op), "lifetime")
		b.recordError(err)

		return err
	}

	return b.append(r, &ir.Instruction{Op: op, Dst: ir.Operand{Kind: ir.OperandDst, Dst: ir.Region{Base: v}}})
}

// Finalize transitions the builder from Building to Finalized, building
// each routine's CFG and forbidding further appends. Per §4.1, stitching
// happens between Finalize and EmitBinary, driven by the caller via
// Stitch.
func (b *Builder) Finalize() error {
	if err := b.requireState("Finalize", StateBuilding); err != nil {
		return err
	}

	for _, r := range append(append([]*Routine{}, b.Kernels...), b.Functions...) {
		r.Graph = cfg.NewGraph(r.Insns, labelIndex(r))
	}

	b.state = StateFinalized

	return nil
}

// BeginEmitBinary transitions Finalized -> EmittingBinary, the terminal
// state; no further IR mutation is permitted afterward.
func (b *Builder) BeginEmitBinary() error {
	if err := b.requireState("BeginEmitBinary", StateFinalized); err != nil {
		return err
	}

	b.state = StateEmittingBinary

	return nil
}

func (b *Builder) State() State { return b.state }

func labelIndex(r *Routine) map[string]int {
	idx := make(map[string]int, len(r.Labels))

	for name, lbl := range r.Labels {
		idx[name] = lbl.Target
	}

	return idx
}
