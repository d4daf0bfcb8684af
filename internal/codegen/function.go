package codegen

import (
	"fmt"
	"math"

	"x64cc/internal/abi"
	"x64cc/internal/ir"
	"x64cc/internal/regalloc"
	"x64cc/internal/types"
)

// abiScratchInt/abiScratchFloat are the registers codegen reserves for its
// own use (address computation, division, return-value staging, φ-cycle
// breaking) and which the register allocator never hands out to a
// variable — see the scratch set in internal/regalloc.
const (
	abiScratchInt   = abi.Rax
	abiScratchFloat = abi.Xmm0
)

// funcGen carries all the state instruction selection needs for one
// function: its register allocation, frame layout, and the running output
// list.
type funcGen struct {
	fn         *ir.Function
	conv       abi.Convention
	reg        *types.Registry
	alloc      regalloc.Allocation
	frame      *Frame
	floatLabel map[uint64]string
	out        []Instr
	labelSeq   int
}

// Gen selects x86-64 instructions for fn under conv, returning the
// function's prologue through epilogue as a flat instruction list ready
// for the peephole pass.
func Gen(fn *ir.Function, conv abi.Convention, reg *types.Registry, floatLabel map[uint64]string) []Instr {
	alloc := regalloc.Allocate(fn, conv)
	frame := buildFrame(fn, reg, alloc, conv)

	g := &funcGen{fn: fn, conv: conv, reg: reg, alloc: alloc, frame: frame, floatLabel: floatLabel}
	g.emitPrologue()
	g.marshalParams()
	for i, b := range fn.Blocks {
		g.emitBlock(b, i == len(fn.Blocks)-1)
	}
	return g.out
}

func (g *funcGen) emit(in Instr) { g.out = append(g.out, in) }

func (g *funcGen) blockLabel(id ir.BlockId) string {
	return fmt.Sprintf(".L%s_bb%d", g.fn.Name, id)
}

// emitPrologue pushes rbp, sets up the frame pointer, saves every
// callee-saved register the colorer handed out, and only then reserves the
// frame's local/call-area space — in that order, so buildFrame, which counts
// the pushed bytes into its 16-byte rounding, is the only thing that has to
// reason about alignment, and the bottom of the sub'd region is exactly rsp
// for the rest of the function body. Restored in the matching order by
// emitEpilogue.
func (g *funcGen) emitPrologue() {
	g.emit(Instr{Op: OpLabel, Text: g.fn.Name})
	g.emit(Instr{Op: OpPush, Dst: Reg(abi.Rbp)})
	g.emit(Instr{Op: OpMov, Dst: Reg(abi.Rbp), Src: Reg(abi.Rsp)})
	for _, r := range g.calleeSavedUsed() {
		g.emit(Instr{Op: OpPush, Dst: Reg(r)})
	}
	if g.frame.Size > 0 {
		g.emit(Instr{Op: OpSub, Dst: Reg(abi.Rsp), Src: Imm(int64(g.frame.Size))})
	}
}

func (g *funcGen) emitEpilogue() {
	if g.frame.Size > 0 {
		g.emit(Instr{Op: OpAdd, Dst: Reg(abi.Rsp), Src: Imm(int64(g.frame.Size))})
	}
	used := g.calleeSavedUsed()
	for i := len(used) - 1; i >= 0; i-- {
		g.emit(Instr{Op: OpPop, Dst: Reg(used[i])})
	}
	g.emit(Instr{Op: OpPop, Dst: Reg(abi.Rbp)})
	g.emit(Instr{Op: OpRet})
}

func (g *funcGen) calleeSavedUsed() []abi.Reg {
	return calleeSavedUsed(g.alloc, g.conv)
}

// marshalParams copies each incoming parameter from its ABI register (or
// its Windows/SysV overflow stack slot) into the location the register
// allocator chose for it.
func (g *funcGen) marshalParams() {
	intRegs := g.conv.ParamRegs()
	floatRegs := g.conv.FloatParamRegs()
	ii, fi := 0, 0
	// Overflow parameters (beyond the register file) arrive above the
	// return address at [rbp+16], [rbp+24], ... in argument order.
	stackOff := int32(16)

	for _, p := range g.fn.Params {
		isFloat := p.Type != nil && p.Type.IsFloat()
		if isFloat {
			dst := g.floatSlot(p.Var)
			if fi < len(floatRegs) {
				g.emit(Instr{Op: OpMovsd, Dst: dst, Src: Reg(floatRegs[fi])})
				fi++
			} else {
				g.emit(Instr{Op: OpMovsd, Dst: Reg(abi.Xmm0), Src: Mem(abi.Rbp, stackOff, SizeQword)})
				g.emit(Instr{Op: OpMovsd, Dst: dst, Src: Reg(abi.Xmm0)})
				stackOff += 8
			}
			continue
		}
		dst := g.location(p.Var)
		if ii < len(intRegs) {
			g.emit(Instr{Op: OpMov, Dst: dst, Src: Reg(intRegs[ii])})
			ii++
		} else {
			g.emit(Instr{Op: OpMov, Dst: Reg(abi.Rax), Src: Mem(abi.Rbp, stackOff, SizeQword)})
			g.emit(Instr{Op: OpMov, Dst: dst, Src: Reg(abi.Rax)})
			stackOff += 8
		}
	}
}

// location returns where a colored or spilled integer/pointer variable
// lives: a physical register, or its spill slot.
func (g *funcGen) location(v ir.VarId) Operand {
	if r, ok := g.alloc.Regs[v]; ok {
		return Reg(r)
	}
	if off, ok := g.frame.SpillOffset[v]; ok {
		return Mem(abi.Rbp, off, SizeQword)
	}
	if off, ok := g.frame.AllocaOffset[v]; ok {
		return Mem(abi.Rbp, off, SizeQword)
	}
	// Never colored and never spilled: codegen ran before regalloc saw
	// this def, or it's genuinely dead. Fall back to a fixed scratch slot
	// rather than panic, so a malformed/optimized-away var can't crash
	// code generation.
	return Reg(abi.Rax)
}

func (g *funcGen) floatSlot(v ir.VarId) Operand {
	if off, ok := g.frame.FloatOffset[v]; ok {
		return Mem(abi.Rbp, off, SizeQword)
	}
	return Mem(abi.Rbp, -8, SizeQword)
}

// operand lowers an IR operand to an assembly operand, loading it into
// scratch (general-purpose or xmm) when the instruction needs a register
// rather than an address. Constants and globals pass through directly.
//
// A Var naming an Alloca is special: lowering hands out the bare alloca
// VarId itself as the value of `&local` (see internal/lower's lowerToAddr),
// so using it as a plain value anywhere outside a Load/Store address means
// synthesizing its frame address with lea, not reading the slot's content
// with mov. The lea always targets R11, a register codegen reserves for
// its own scratch use and never hands to a variable, so this can run
// between fetching an instruction's other operand(s) and their consumption
// without clobbering anything already computed.
func (g *funcGen) operand(o ir.Operand) Operand {
	switch o.Kind {
	case ir.OpConstant:
		return Imm(o.IntVal)
	case ir.OpFloatConstant:
		bits := math.Float64bits(o.FloatVal)
		if label, ok := g.floatLabel[bits]; ok {
			return LabelRIP(label)
		}
		return Imm(int64(bits))
	case ir.OpVar:
		if off, ok := g.frame.AllocaOffset[o.Var]; ok {
			g.emit(Instr{Op: OpLea, Dst: Reg(abi.R11), Src: Mem(abi.Rbp, off, SizeQword)})
			return Reg(abi.R11)
		}
		return g.location(o.Var)
	case ir.OpGlobal:
		return GlobalRIP(o.Global, SizeQword)
	default:
		return Imm(0)
	}
}

// floatOperand lowers an IR operand expected to carry a float/double value:
// a Var resolves to its dedicated float stack slot, a FloatConstant to its
// RIP-relative constant-pool label. A float constant nothing interned (the
// synthetic zero mem2reg plants for uninitialized reads, a folded result)
// has no label to load from, so its bit pattern is staged through rax into
// xmm1 — callers consume the returned operand before fetching another, so
// the staging register is free to be reused per operand.
func (g *funcGen) floatOperand(o ir.Operand) Operand {
	switch o.Kind {
	case ir.OpVar:
		return g.floatSlot(o.Var)
	case ir.OpFloatConstant:
		bits := math.Float64bits(o.FloatVal)
		if label, ok := g.floatLabel[bits]; ok {
			return LabelRIP(label)
		}
		g.emit(Instr{Op: OpMov, Dst: Reg(abi.Rax), Src: Imm(int64(bits))})
		g.emit(Instr{Op: OpMovq, Dst: Reg(abi.Xmm1), Src: Reg(abi.Rax)})
		return Reg(abi.Xmm1)
	default:
		return g.operand(o)
	}
}

func (g *funcGen) newLocalLabel(prefix string) string {
	g.labelSeq++
	return fmt.Sprintf(".L%s_%s%d", g.fn.Name, prefix, g.labelSeq)
}
