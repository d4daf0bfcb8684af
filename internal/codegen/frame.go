package codegen

import (
	"sort"

	"github.com/samber/lo"

	"x64cc/internal/abi"
	"x64cc/internal/ir"
	"x64cc/internal/regalloc"
	"x64cc/internal/types"
)

// Frame is the stack-frame layout computed for one function: the rbp-
// relative offset of every alloca and spilled variable, the N of the
// prologue's `sub rsp, N` (issued after the callee-saved pushes and sized so
// that the pushes plus N leave rsp 16-byte aligned), and the fixed
// outgoing-call area carved out of the bottom of that reservation.
type Frame struct {
	AllocaOffset map[ir.VarId]int32
	SpillOffset  map[ir.VarId]int32
	FloatOffset  map[ir.VarId]int32
	Size         int32

	// CallAreaOffset is the rbp-relative offset of byte 0 of the outgoing
	// call area (its lowest address, coinciding with rsp once the prologue
	// has run) — 0 if the function makes no calls needing one.
	CallAreaOffset int32
	// ShadowSpace is the convention's fixed reservation at the bottom of
	// the call area; the first overflow argument lands right above it.
	ShadowSpace int32
}

// buildFrame assigns each Alloca its own slot (sized/aligned per its
// declared type), each spilled SSA variable an 8-byte slot, and every
// float/double-typed SSA variable a dedicated 8-byte slot of its own —
// floats are loaded into an xmm scratch register immediately before use and
// stored back immediately after definition rather than run through the
// general-purpose graph colorer, since that colorer only models the
// integer register file.
//
// Below the locals it reserves one outgoing call area, sized for the
// widest call the function makes (shadow space plus the most overflow
// arguments any one call site passes), so marshalArgs can place arguments
// with plain stores to fixed offsets instead of adjusting rsp per call.
// The locals sit directly below the callee-saved pushes. Everything below
// rbp — pushes, locals, and call area — is rounded up to a multiple of 16,
// so rsp lands 16-byte aligned once the prologue's sub has run, and stays
// there for every call in the function's body since nothing moves rsp
// afterward.
func buildFrame(fn *ir.Function, reg *types.Registry, alloc regalloc.Allocation, conv abi.Convention) *Frame {
	f := &Frame{
		AllocaOffset: make(map[ir.VarId]int32),
		SpillOffset:  make(map[ir.VarId]int32),
		FloatOffset:  make(map[ir.VarId]int32),
	}

	// The prologue pushes the used callee-saved registers right below the
	// saved rbp; slots are laid out below them.
	used := calleeSavedUsed(alloc, conv)
	pushed := 8 * len(used)
	offset := pushed
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			a, ok := inst.(*ir.AllocaInst)
			if !ok {
				continue
			}
			size := types.Size(a.Type, reg)
			align := types.Align(a.Type, reg)
			if align < 1 {
				align = 1
			}
			offset = types.AlignUp(offset+size, align)
			f.AllocaOffset[a.Dest] = -int32(offset)
		}
	}

	// Spill and float slots are assigned in a fixed variable-ID order rather
	// than map iteration order, so two runs over the same function lay out
	// an identical frame instead of a layout that only happens to vary by
	// nothing observable today but would once slot order became significant
	// (debug-info offsets, deterministic-build diffing).
	spillVars := lo.Keys(alloc.Spills)
	sort.Slice(spillVars, func(i, j int) bool { return spillVars[i] < spillVars[j] })
	for _, v := range spillVars {
		offset += 8
		f.SpillOffset[v] = -int32(offset)
	}

	floatVars := lo.Keys(fn.VarTypes)
	sort.Slice(floatVars, func(i, j int) bool { return floatVars[i] < floatVars[j] })
	for _, v := range floatVars {
		t := fn.VarTypes[v]
		if _, isAlloca := f.AllocaOffset[v]; isAlloca {
			continue
		}
		if t != nil && t.IsFloat() {
			offset += 8
			f.FloatOffset[v] = -int32(offset)
		}
	}

	shadow := conv.ShadowSpaceSize()
	callArea := shadow + maxOverflowBytes(fn, conv)
	total := offset + callArea

	// rbp is 16-aligned once `push rbp` has run, so rounding everything
	// below it to 16 leaves the post-prologue rsp aligned too.
	frameBytes := types.AlignUp(total, 16)

	f.Size = int32(frameBytes - pushed)
	f.ShadowSpace = int32(shadow)
	if callArea > 0 {
		f.CallAreaOffset = -int32(frameBytes)
	}
	return f
}

// calleeSavedUsed lists, in the convention's declaration order, the
// callee-saved registers the colorer actually handed to a variable in this
// function — the exact set emitPrologue/emitEpilogue push and pop. The
// order must be deterministic: prologue and epilogue each compute this list
// independently and rely on getting the same sequence.
func calleeSavedUsed(alloc regalloc.Allocation, conv abi.Convention) []abi.Reg {
	used := make(map[abi.Reg]bool)
	for _, r := range alloc.Regs {
		used[r] = true
	}
	var out []abi.Reg
	for _, r := range conv.CalleeSavedRegs() {
		if used[r] {
			out = append(out, r)
		}
	}
	return out
}

// maxOverflowBytes scans every call site in fn and returns the largest
// number of stack-passed (beyond the register file) argument bytes any one
// of them needs, so the call area only has to be reserved once, sized for
// the widest call.
func maxOverflowBytes(fn *ir.Function, conv abi.Convention) int {
	intSlots := len(conv.ParamRegs())
	floatSlots := len(conv.FloatParamRegs())
	max := 0
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			var args []ir.Operand
			switch v := inst.(type) {
			case *ir.CallInst:
				args = v.Args
			case *ir.IndirectCallInst:
				args = v.Args
			default:
				continue
			}
			ii, fi, overflow := 0, 0, 0
			for _, a := range args {
				isFloat := a.Kind == ir.OpFloatConstant || (a.IsVar() && fn.TypeOf(a.Var).IsFloat())
				if isFloat {
					if fi < floatSlots {
						fi++
						continue
					}
				} else if ii < intSlots {
					ii++
					continue
				}
				overflow++
			}
			if n := overflow * 8; n > max {
				max = n
			}
		}
	}
	return max
}

// offsetOf returns the rbp-relative offset for an address-producing var
// (an alloca slot) or a spilled SSA variable, and reports which kind it is.
func (f *Frame) offsetOf(v ir.VarId) (int32, bool) {
	if o, ok := f.AllocaOffset[v]; ok {
		return o, true
	}
	if o, ok := f.SpillOffset[v]; ok {
		return o, true
	}
	return 0, false
}
