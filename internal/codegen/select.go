package codegen

import (
	"x64cc/internal/abi"
	"x64cc/internal/ir"
	"x64cc/internal/types"
)

var binaryOp = map[ir.BinaryOp]Op{
	ir.Add: OpAdd,
	ir.Sub: OpSub,
	ir.And: OpAnd,
	ir.Or:  OpOr,
	ir.Xor: OpXor,
}

var ccOp = map[ir.BinaryOp]string{
	ir.CmpEq: "e",
	ir.CmpNe: "ne",
	ir.CmpLt: "l",
	ir.CmpLe: "le",
	ir.CmpGt: "g",
	ir.CmpGe: "ge",
}

var floatArith = map[ir.BinaryOp]Op{
	ir.Add: OpAddsd,
	ir.Sub: OpSubsd,
	ir.Mul: OpMulsd,
	ir.Div: OpDivsd,
}

// selectInst appends the assembly sequence for one non-terminator, non-φ
// IR instruction.
func (g *funcGen) selectInst(inst ir.Instruction) {
	switch v := inst.(type) {
	case *ir.BinaryInst:
		g.selectBinary(v)
	case *ir.FloatBinaryInst:
		g.selectFloatBinary(v)
	case *ir.UnaryInst:
		g.selectUnary(v)
	case *ir.FloatUnaryInst:
		g.selectFloatUnary(v)
	case *ir.CopyInst:
		g.selectCopy(v)
	case *ir.CastInst:
		g.selectCast(v)
	case *ir.AllocaInst:
		// Nothing to emit: buildFrame already reserved this var's slot,
		// and every use computes the address on demand via lea.
	case *ir.LoadInst:
		g.selectLoad(v)
	case *ir.StoreInst:
		g.selectStore(v)
	case *ir.GEPInst:
		g.selectGEP(v)
	case *ir.CallInst:
		g.selectCall(v)
	case *ir.IndirectCallInst:
		g.selectIndirectCall(v)
	case *ir.InlineAsmInst:
		g.selectInlineAsm(v)
	case *ir.VaStartInst:
		g.selectVaStart(v)
	case *ir.VaEndInst:
		// The list pointer needs no teardown on this ABI.
	case *ir.VaCopyInst:
		g.selectVaCopy(v)
	case *ir.VaArgInst:
		g.selectVaArg(v)
	}
}

func (g *funcGen) selectBinary(v *ir.BinaryInst) {
	dst := g.location(v.Dest)
	// l is fetched and immediately moved into rax before r is fetched: both
	// operands can independently need a lea into the shared R11 scratch
	// (when either names an Alloca var — see operand()'s doc comment), so l
	// must be consumed before r's fetch has a chance to overwrite R11.
	l := g.operand(v.L)
	g.emit(Instr{Op: OpMov, Dst: Reg(abi.Rax), Src: l})
	r := g.operand(v.R)

	if v.Op.IsComparison() {
		g.emit(Instr{Op: OpCmp, Dst: Reg(abi.Rax), Src: r})
		g.emit(Instr{Op: OpSetCC, Cond: ccOp[v.Op], Dst: Reg(abi.Rax)})
		g.emit(Instr{Op: OpMovzx, Dst: Reg(abi.Rax), Src: Reg(abi.Rax)})
		g.emit(Instr{Op: OpMov, Dst: dst, Src: Reg(abi.Rax)})
		return
	}

	switch v.Op {
	case ir.Mul:
		g.emit(Instr{Op: OpImul, Dst: Reg(abi.Rax), Src: r})
		g.emit(Instr{Op: OpMov, Dst: dst, Src: Reg(abi.Rax)})
	case ir.Div, ir.Mod:
		g.emit(Instr{Op: OpCqo})
		rhs := g.materialize(r, abi.Rcx)
		g.emit(Instr{Op: OpIdiv, Dst: rhs})
		if v.Op == ir.Div {
			g.emit(Instr{Op: OpMov, Dst: dst, Src: Reg(abi.Rax)})
		} else {
			g.emit(Instr{Op: OpMov, Dst: dst, Src: Reg(abi.Rdx)})
		}
	case ir.Shl, ir.Shr:
		g.emit(Instr{Op: OpMov, Dst: Reg(abi.Rcx), Src: r})
		op := OpShl
		if v.Op == ir.Shr {
			op = OpSar
		}
		g.emit(Instr{Op: op, Dst: Reg(abi.Rax), Src: Reg(abi.Rcx)})
		g.emit(Instr{Op: OpMov, Dst: dst, Src: Reg(abi.Rax)})
	default:
		g.emit(Instr{Op: binaryOp[v.Op], Dst: Reg(abi.Rax), Src: r})
		g.emit(Instr{Op: OpMov, Dst: dst, Src: Reg(abi.Rax)})
	}
}

// materialize ensures op is a register operand, moving it into fallback
// first if it's a memory or immediate (idiv can't divide by an immediate).
func (g *funcGen) materialize(op Operand, fallback abi.Reg) Operand {
	if op.Kind == KindReg {
		return op
	}
	g.emit(Instr{Op: OpMov, Dst: Reg(fallback), Src: op})
	return Reg(fallback)
}

func (g *funcGen) selectFloatBinary(v *ir.FloatBinaryInst) {
	// l is consumed into xmm0 before r is fetched: either operand may need
	// the xmm1 staging floatOperand uses for unlabeled constants.
	l := g.floatOperand(v.L)
	g.emit(Instr{Op: OpMovsd, Dst: Reg(abi.Xmm0), Src: l})
	r := g.floatOperand(v.R)

	if v.Op.IsComparison() {
		g.emit(Instr{Op: OpMovsd, Dst: Reg(abi.Xmm1), Src: r})
		g.emit(Instr{Op: OpUcomisd, Dst: Reg(abi.Xmm0), Src: Reg(abi.Xmm1)})
		g.emit(Instr{Op: OpSetCC, Cond: ccOp[v.Op], Dst: Reg(abi.Rax)})
		g.emit(Instr{Op: OpMovzx, Dst: Reg(abi.Rax), Src: Reg(abi.Rax)})
		g.emit(Instr{Op: OpMov, Dst: g.location(v.Dest), Src: Reg(abi.Rax)})
		return
	}
	g.emit(Instr{Op: floatArith[v.Op], Dst: Reg(abi.Xmm0), Src: r})
	g.emit(Instr{Op: OpMovsd, Dst: g.floatSlot(v.Dest), Src: Reg(abi.Xmm0)})
}

func (g *funcGen) selectUnary(v *ir.UnaryInst) {
	dst := g.location(v.Dest)
	src := g.operand(v.Src)
	g.emit(Instr{Op: OpMov, Dst: Reg(abi.Rax), Src: src})
	switch v.Op {
	case ir.Neg:
		g.emit(Instr{Op: OpNeg, Dst: Reg(abi.Rax)})
	case ir.BitNot:
		g.emit(Instr{Op: OpNot, Dst: Reg(abi.Rax)})
	case ir.Not:
		g.emit(Instr{Op: OpTest, Dst: Reg(abi.Rax), Src: Reg(abi.Rax)})
		g.emit(Instr{Op: OpSetCC, Cond: "e", Dst: Reg(abi.Rax)})
		g.emit(Instr{Op: OpMovzx, Dst: Reg(abi.Rax), Src: Reg(abi.Rax)})
	}
	g.emit(Instr{Op: OpMov, Dst: dst, Src: Reg(abi.Rax)})
}

func (g *funcGen) selectFloatUnary(v *ir.FloatUnaryInst) {
	src := g.floatOperand(v.Src)
	g.emit(Instr{Op: OpMovsd, Dst: Reg(abi.Xmm0), Src: src})
	if v.Op == ir.Neg {
		g.emit(Instr{Op: OpXorps, Dst: Reg(abi.Xmm1), Src: Reg(abi.Xmm1)})
		g.emit(Instr{Op: OpSubsd, Dst: Reg(abi.Xmm1), Src: Reg(abi.Xmm0)})
		g.emit(Instr{Op: OpMovsd, Dst: g.floatSlot(v.Dest), Src: Reg(abi.Xmm1)})
		return
	}
	g.emit(Instr{Op: OpMovsd, Dst: g.floatSlot(v.Dest), Src: Reg(abi.Xmm0)})
}

func (g *funcGen) selectCopy(v *ir.CopyInst) {
	if g.fn.TypeOf(v.Dest).IsFloat() {
		g.emit(Instr{Op: OpMovsd, Dst: Reg(abi.Xmm0), Src: g.floatOperand(v.Src)})
		g.emit(Instr{Op: OpMovsd, Dst: g.floatSlot(v.Dest), Src: Reg(abi.Xmm0)})
		return
	}
	if v.Src.Kind == ir.OpGlobal {
		// Synthesizing the address of a global (a bare Ident naming a
		// function, or &glob/any load-through-an-address-var path lowering
		// routes through a Copy) needs its effective address, not its
		// current content — lea, not mov.
		g.emit(Instr{Op: OpLea, Dst: Reg(abi.Rax), Src: LabelRIP(v.Src.Global)})
		g.emit(Instr{Op: OpMov, Dst: g.location(v.Dest), Src: Reg(abi.Rax)})
		return
	}
	g.emit(Instr{Op: OpMov, Dst: Reg(abi.Rax), Src: g.operand(v.Src)})
	g.emit(Instr{Op: OpMov, Dst: g.location(v.Dest), Src: Reg(abi.Rax)})
}

func (g *funcGen) selectCast(v *ir.CastInst) {
	fromFloat := g.srcIsFloat(v.Src)
	toFloat := v.To.IsFloat()

	switch {
	case fromFloat && toFloat:
		g.emit(Instr{Op: OpMovsd, Dst: Reg(abi.Xmm0), Src: g.floatOperand(v.Src)})
		g.emit(Instr{Op: OpMovsd, Dst: g.floatSlot(v.Dest), Src: Reg(abi.Xmm0)})
	case fromFloat && !toFloat:
		g.emit(Instr{Op: OpMovsd, Dst: Reg(abi.Xmm0), Src: g.floatOperand(v.Src)})
		g.emit(Instr{Op: OpCvttsd2si, Dst: Reg(abi.Rax), Src: Reg(abi.Xmm0)})
		g.emit(Instr{Op: OpMov, Dst: g.location(v.Dest), Src: Reg(abi.Rax)})
	case !fromFloat && toFloat:
		g.emit(Instr{Op: OpMov, Dst: Reg(abi.Rax), Src: g.operand(v.Src)})
		g.emit(Instr{Op: OpCvtsi2sd, Dst: Reg(abi.Xmm0), Src: Reg(abi.Rax)})
		g.emit(Instr{Op: OpMovsd, Dst: g.floatSlot(v.Dest), Src: Reg(abi.Xmm0)})
	default:
		// Integer-to-integer width change: the allocator only ever models
		// 64-bit GP slots, so truncation/extension is a plain 64-bit move;
		// no movzx/movsx is emitted for the cast.
		g.emit(Instr{Op: OpMov, Dst: Reg(abi.Rax), Src: g.operand(v.Src)})
		g.emit(Instr{Op: OpMov, Dst: g.location(v.Dest), Src: Reg(abi.Rax)})
	}
}

func (g *funcGen) srcIsFloat(o ir.Operand) bool {
	switch {
	case o.Kind == ir.OpFloatConstant:
		return true
	case o.IsVar():
		return g.fn.TypeOf(o.Var).IsFloat()
	default:
		return false
	}
}

// accessWidth maps a load/store value type to the memory operand width and
// whether a sub-64-bit read sign-extends (signed types) or zero-extends
// (unsigned types) on its way into the full-width register.
func accessWidth(t *types.Type) (size Size, signed bool) {
	if t == nil {
		return SizeQword, true
	}
	switch t.Kind {
	case types.Char:
		return SizeByte, true
	case types.UnsignedChar:
		return SizeByte, false
	case types.Short:
		return SizeWord, true
	case types.UnsignedShort:
		return SizeWord, false
	case types.Int:
		return SizeDword, true
	case types.UnsignedInt:
		return SizeDword, false
	default:
		return SizeQword, true
	}
}

func (g *funcGen) selectLoad(v *ir.LoadInst) {
	if v.ValueType != nil && v.ValueType.IsFloat() {
		// Floats are held internally as doubles in 8-byte slots; a 4-byte
		// float in memory converts on the way in.
		if v.ValueType.Kind == types.Float {
			addr := g.loadAddress(v.Addr, abi.Rax, SizeDword)
			g.emit(Instr{Op: OpMovss, Dst: Reg(abi.Xmm0), Src: addr})
			g.emit(Instr{Op: OpCvtss2sd, Dst: Reg(abi.Xmm0), Src: Reg(abi.Xmm0)})
		} else {
			addr := g.loadAddress(v.Addr, abi.Rax, SizeQword)
			g.emit(Instr{Op: OpMovsd, Dst: Reg(abi.Xmm0), Src: addr})
		}
		g.emit(Instr{Op: OpMovsd, Dst: g.floatSlot(v.Dest), Src: Reg(abi.Xmm0)})
		return
	}

	size, signed := accessWidth(v.ValueType)
	addr := g.loadAddress(v.Addr, abi.Rax, size)
	switch {
	case size == SizeQword:
		g.emit(Instr{Op: OpMov, Dst: Reg(abi.Rax), Src: addr})
	case signed:
		g.emit(Instr{Op: OpMovsx, Dst: Reg(abi.Rax), Src: addr})
	case size == SizeDword:
		// A 32-bit mov zero-extends into the full register on its own.
		g.emit(Instr{Op: OpMov, Dst: Reg(abi.Rax), Src: addr})
	default:
		g.emit(Instr{Op: OpMovzx, Dst: Reg(abi.Rax), Src: addr})
	}
	g.emit(Instr{Op: OpMov, Dst: g.location(v.Dest), Src: Reg(abi.Rax)})
}

func (g *funcGen) selectStore(v *ir.StoreInst) {
	if v.ValueType != nil && v.ValueType.IsFloat() {
		if v.ValueType.Kind == types.Float {
			addr := g.loadAddress(v.Addr, abi.Rax, SizeDword)
			g.emit(Instr{Op: OpMovsd, Dst: Reg(abi.Xmm0), Src: g.floatOperand(v.Src)})
			g.emit(Instr{Op: OpCvtsd2ss, Dst: Reg(abi.Xmm0), Src: Reg(abi.Xmm0)})
			g.emit(Instr{Op: OpMovss, Dst: addr, Src: Reg(abi.Xmm0)})
			return
		}
		addr := g.loadAddress(v.Addr, abi.Rax, SizeQword)
		g.emit(Instr{Op: OpMovsd, Dst: Reg(abi.Xmm0), Src: g.floatOperand(v.Src)})
		g.emit(Instr{Op: OpMovsd, Dst: addr, Src: Reg(abi.Xmm0)})
		return
	}

	size, _ := accessWidth(v.ValueType)
	addr := g.loadAddress(v.Addr, abi.Rax, size)
	src := g.materialize(g.operand(v.Src), abi.Rdx)
	g.emit(Instr{Op: OpMov, Dst: addr, Src: src})
}

// loadAddress resolves an address-valued operand to a dereferenceable
// memory operand of the given access width: an Alloca's VarId maps directly
// to its frame slot (no register needed, the offset is known statically and
// is used as the memory operand's base+offset directly), anything else is a
// pointer value loaded into scratch and dereferenced through it.
func (g *funcGen) loadAddress(o ir.Operand, scratch abi.Reg, size Size) Operand {
	if o.IsVar() {
		if off, ok := g.frame.AllocaOffset[o.Var]; ok {
			return Mem(abi.Rbp, off, size)
		}
	}
	g.emit(Instr{Op: OpMov, Dst: Reg(scratch), Src: g.operand(o)})
	return Mem(scratch, 0, size)
}

func (g *funcGen) selectGEP(v *ir.GEPInst) {
	base := g.operand(v.Base)
	g.emit(Instr{Op: OpMov, Dst: Reg(abi.Rax), Src: base})
	switch {
	case v.Index.Kind == ir.OpConstant:
		elemSize := g.elementSize(v.ElementType)
		off := v.Index.IntVal * int64(elemSize)
		if off != 0 {
			g.emit(Instr{Op: OpAdd, Dst: Reg(abi.Rax), Src: Imm(off)})
		}
	default:
		elemSize := int64(g.elementSize(v.ElementType))
		idx := g.operand(v.Index)
		g.emit(Instr{Op: OpMov, Dst: Reg(abi.Rcx), Src: idx})
		if elemSize != 1 {
			g.emit(Instr{Op: OpImul, Dst: Reg(abi.Rcx), Src: Imm(elemSize)})
		}
		g.emit(Instr{Op: OpAdd, Dst: Reg(abi.Rax), Src: Reg(abi.Rcx)})
	}
	g.emit(Instr{Op: OpMov, Dst: g.location(v.Dest), Src: Reg(abi.Rax)})
}

func (g *funcGen) elementSize(t *types.Type) int {
	if t == nil {
		return 8
	}
	return types.Size(t, g.reg)
}

func (g *funcGen) selectCall(v *ir.CallInst) {
	g.marshalArgs(v.Args)
	g.emit(Instr{Op: OpCall, Text: v.Name})
	if v.Dest != nil {
		if g.fn.TypeOf(*v.Dest).IsFloat() {
			g.emit(Instr{Op: OpMovsd, Dst: g.floatSlot(*v.Dest), Src: Reg(g.conv.FloatReturnReg())})
		} else {
			g.emit(Instr{Op: OpMov, Dst: g.location(*v.Dest), Src: Reg(g.conv.ReturnReg())})
		}
	}
}

func (g *funcGen) selectIndirectCall(v *ir.IndirectCallInst) {
	g.marshalArgs(v.Args)
	target := g.operand(v.FuncPtr)
	g.emit(Instr{Op: OpCallIndirect, Dst: target})
	if v.Dest != nil {
		if g.fn.TypeOf(*v.Dest).IsFloat() {
			g.emit(Instr{Op: OpMovsd, Dst: g.floatSlot(*v.Dest), Src: Reg(g.conv.FloatReturnReg())})
		} else {
			g.emit(Instr{Op: OpMov, Dst: g.location(*v.Dest), Src: Reg(g.conv.ReturnReg())})
		}
	}
}

// marshalArgs places each outgoing argument in its ABI register. Overflow
// arguments (more than the register file holds) go to fixed slots in the
// frame's call area, right above its shadow-space reservation, in
// increasing-address order for the callee's [rbp+16...] view — buildFrame
// already sized the call area for the widest call in this function, so
// rsp never moves here and the reservation doesn't have to be undone after
// the call.
func (g *funcGen) marshalArgs(args []ir.Operand) {
	intRegs := g.conv.ParamRegs()
	floatRegs := g.conv.FloatParamRegs()
	ii, fi := 0, 0
	var overflow []ir.Operand

	for _, a := range args {
		isFloat := a.Kind == ir.OpFloatConstant || (a.IsVar() && g.fn.TypeOf(a.Var).IsFloat())
		if isFloat {
			if fi < len(floatRegs) {
				g.emit(Instr{Op: OpMovsd, Dst: Reg(floatRegs[fi]), Src: g.floatOperand(a)})
				fi++
				continue
			}
		} else if ii < len(intRegs) {
			g.emit(Instr{Op: OpMov, Dst: Reg(intRegs[ii]), Src: g.operand(a)})
			ii++
			continue
		}
		overflow = append(overflow, a)
	}

	base := g.frame.CallAreaOffset + g.frame.ShadowSpace
	for i, a := range overflow {
		slot := Mem(abi.Rbp, base+int32(i*8), SizeQword)
		if g.srcIsFloat(a) {
			g.emit(Instr{Op: OpMovsd, Dst: Reg(abi.Xmm0), Src: g.floatOperand(a)})
			g.emit(Instr{Op: OpMovsd, Dst: slot, Src: Reg(abi.Xmm0)})
			continue
		}
		g.emit(Instr{Op: OpMov, Dst: Reg(abi.Rax), Src: g.operand(a)})
		g.emit(Instr{Op: OpMov, Dst: slot, Src: Reg(abi.Rax)})
	}
}

func (g *funcGen) selectInlineAsm(v *ir.InlineAsmInst) {
	g.emit(Instr{Op: OpComment, Text: "inline asm, clobbers=" + joinStrings(v.Clobbers)})
	g.emit(Instr{Op: OpRaw, Text: v.Template})
}

func joinStrings(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

// selectVaStart records the address just past the last named register
// parameter's home slot: the spilled-register save area this core's
// variadic support copies incoming register parameters into at entry.
func (g *funcGen) selectVaStart(v *ir.VaStartInst) {
	addr := g.loadAddress(v.List, abi.Rax, SizeQword)
	g.emit(Instr{Op: OpLea, Dst: Reg(abi.Rax), Src: Mem(abi.Rbp, regSaveAreaOffset(g.fn, g.conv), SizeQword)})
	g.emit(Instr{Op: OpMov, Dst: addr, Src: Reg(abi.Rax)})
}

func (g *funcGen) selectVaCopy(v *ir.VaCopyInst) {
	// Both operands are va_list addresses: read the cursor through Src,
	// write it through Dest.
	src := g.loadAddress(v.Src, abi.Rax, SizeQword)
	g.emit(Instr{Op: OpMov, Dst: Reg(abi.Rdx), Src: src})
	dst := g.loadAddress(v.Dest, abi.Rax, SizeQword)
	g.emit(Instr{Op: OpMov, Dst: dst, Src: Reg(abi.Rdx)})
}

func (g *funcGen) selectVaArg(v *ir.VaArgInst) {
	addr := g.loadAddress(v.List, abi.Rax, SizeQword)
	g.emit(Instr{Op: OpMov, Dst: Reg(abi.Rax), Src: addr})
	g.emit(Instr{Op: OpMov, Dst: Reg(abi.Rdx), Src: Mem(abi.Rax, 0, SizeQword)})
	g.emit(Instr{Op: OpMov, Dst: g.location(v.Dest), Src: Reg(abi.Rdx)})
	g.emit(Instr{Op: OpAdd, Dst: Reg(abi.Rax), Src: Imm(8)})
	g.emit(Instr{Op: OpMov, Dst: addr, Src: Reg(abi.Rax)})
}

// regSaveAreaOffset returns where marshalParams would have spilled any
// register parameters beyond the ones named in the signature, had this
// function declared fewer named parameters than the convention's register
// file holds — the simplification this core makes is that the save area
// sits immediately below the local frame, sized for a full register file.
func regSaveAreaOffset(fn *ir.Function, conv abi.Convention) int32 {
	return -int32(8 * (len(conv.ParamRegs()) + len(conv.FloatParamRegs())))
}
