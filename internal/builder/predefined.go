package builder

import "github.com/0o001/visa-finalizer/internal/ir"

// Predefined enumerates the fixed, platform-independent general and
// state variables §4.1 requires the builder to materialize before any
// user declaration, addressed through a stable enumeration so byte-code
// references to them survive across versions.
type Predefined int

const (
	PredefinedNull Predefined = iota // V0 / null: destination for discarded results
	PredefinedVCEAddress              // VCE_ADDRESS_REG: vector-call-epilogue address scratch
	PredefinedArg                     // ARG: stack-call argument passing register
	PredefinedRet                     // RET: stack-call return-value register
	PredefinedFP                      // FP: frame pointer
	PredefinedSP                      // SP: stack pointer
	PredefinedHWTID                   // HWTID: hardware thread id
	PredefinedColor                   // COLOR: color/priority scratch
	PredefinedTSC                     // TSC: timestamp counter
	PredefinedR0                      // R0: per-thread header
	PredefinedBindlessBase             // T0..T252: bindless surface handles, indexed from here
	PredefinedBindlessLast
	PredefinedScratchSurface // T255: scratch surface
)

const bindlessSurfaceCount = 253 // T0..T252 inclusive

// predefinedName is used only for diagnostics and byte-code attribute
// name-table resolution, never for user-visible declaration identity.
func predefinedName(p Predefined) string {
	switch p {
	case PredefinedNull:
		return "V0"
	case PredefinedVCEAddress:
		return "VCE_ADDRESS_REG"
	case PredefinedArg:
		return "ARG"
	case PredefinedRet:
		return "RET"
	case PredefinedFP:
		return "FP"
	case PredefinedSP:
		return "SP"
	case PredefinedHWTID:
		return "HWTID"
	case PredefinedColor:
		return "COLOR"
	case PredefinedTSC:
		return "TSC"
	case PredefinedR0:
		return "R0"
	case PredefinedScratchSurface:
		return "T255"
	default:
		return "BINDLESS"
	}
}

// predefinedTable holds the materialized declarations/variables for
// every Predefined entry, built once per Builder before any user
// declaration so their DeclID/VarID values are stable and low-numbered.
type predefinedTable struct {
	decl map[Predefined]ir.DeclID
	vars map[Predefined]ir.VarID

	bindless    []ir.VarID // indexed 0..252 for T0..T252
	bindlessDcl []ir.DeclID
}

func materializePredefined(decls *ir.DeclTable, varsT *ir.VarTable) *predefinedTable {
	pt := &predefinedTable{
		decl: make(map[Predefined]ir.DeclID),
		vars: make(map[Predefined]ir.VarID),
	}

	add := func(p Predefined, file ir.RegFile, rows uint32, eot, input bool) {
		d := decls.Add(ir.Declaration{
			Name:     predefinedName(p),
			File:     file,
			Type:     ir.TypeUDword,
			NElem:    rows * ir.DefaultGRFBytes / 4,
			RowCount: rows,
			Align:    ir.AlignAny,
		})

		v := varsT.Add(ir.RegisterVariable{Decl: d, IsEOT: eot, IsInput: input})

		pt.decl[p] = d
		pt.vars[p] = v
	}

	add(PredefinedNull, ir.FileGeneral, 1, false, false)
	add(PredefinedVCEAddress, ir.FileAddress, 1, false, false)
	add(PredefinedArg, ir.FileGeneral, 8, false, false)
	add(PredefinedRet, ir.FileGeneral, 4, false, false)
	add(PredefinedFP, ir.FileGeneral, 1, false, false)
	add(PredefinedSP, ir.FileGeneral, 1, false, false)
	add(PredefinedHWTID, ir.FileGeneral, 1, false, false)
	add(PredefinedColor, ir.FileGeneral, 1, false, false)
	add(PredefinedTSC, ir.FileGeneral, 1, false, false)
	add(PredefinedR0, ir.FileGeneral, 1, false, true)
	add(PredefinedScratchSurface, ir.FileState, 1, false, false)

	pt.bindless = make([]ir.VarID, bindlessSurfaceCount)
	pt.bindlessDcl = make([]ir.DeclID, bindlessSurfaceCount)

	for i := 0; i < bindlessSurfaceCount; i++ {
		d := decls.Add(ir.Declaration{
			Name:  "T" + itoa(i),
			File:  ir.FileState,
			Type:  ir.TypeUDword,
			NElem: 1,
		})
		v := varsT.Add(ir.RegisterVariable{Decl: d})

		pt.bindlessDcl[i] = d
		pt.bindless[i] = v
	}

	return pt
}

// Var returns the register-variable id for a non-bindless predefined.
func (pt *predefinedTable) Var(p Predefined) ir.VarID { return pt.vars[p] }

// Decl returns the declaration id for a non-bindless predefined.
func (pt *predefinedTable) Decl(p Predefined) ir.DeclID { return pt.decl[p] }

// Bindless returns the register-variable id for bindless surface index
// (0-based, 0..252 inclusive).
func (pt *predefinedTable) Bindless(index int) (ir.VarID, bool) {
	if index < 0 || index >= len(pt.bindless) {
		return 0, false
	}

	return pt.bindless[index], true
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}

	var buf [20]byte

	i := len(buf)
	neg := n < 0

	if neg {
		n = -n
	}

	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}

	if neg {
		i--
		buf[i] = '-'
	}

	return string(buf[i:])
}
