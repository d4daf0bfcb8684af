package optimize

import (
	"x64cc/internal/ir"
	"x64cc/internal/types"
)

// Mem2Reg promotes scalar, never-address-taken allocas straight to SSA
// values, inserting phis at merge points via Braun-style incoming-value
// resolution. Structs, unions, arrays, and any alloca whose address escapes
// through something other than a bare Load/Store stay in memory.
type Mem2Reg struct{}

func (*Mem2Reg) Name() string { return "mem2reg" }
func (*Mem2Reg) Description() string {
	return "promotes non-address-taken scalar allocas to SSA registers"
}

func (m *Mem2Reg) Run(fn *ir.Function) bool {
	p := newMem2RegPass(fn)
	return p.run()
}

type mem2regPass struct {
	fn         *ir.Function
	preds      map[ir.BlockId][]ir.BlockId
	promotable map[ir.VarId]bool
	allocaType map[ir.VarId]*types.Type

	blockDefs     map[ir.VarId]map[ir.BlockId]ir.VarId
	incomingCache map[[2]int64]ir.VarId
	blockPhis     map[ir.BlockId][]*ir.PhiInst

	nextVar    int
	zeroInt    ir.VarId
	zeroFloat  ir.VarId
	haveZeroes bool
	simplified map[ir.VarId]ir.VarId
}

func newMem2RegPass(fn *ir.Function) *mem2regPass {
	return &mem2regPass{
		fn:            fn,
		preds:         fn.Preds(),
		promotable:    make(map[ir.VarId]bool),
		allocaType:    make(map[ir.VarId]*types.Type),
		blockDefs:     make(map[ir.VarId]map[ir.BlockId]ir.VarId),
		incomingCache: make(map[[2]int64]ir.VarId),
		blockPhis:     make(map[ir.BlockId][]*ir.PhiInst),
		nextVar:       maxVarID(fn) + 1,
		simplified:    make(map[ir.VarId]ir.VarId),
	}
}

func (p *mem2regPass) newVar() ir.VarId {
	v := ir.VarId(p.nextVar)
	p.nextVar++
	return v
}

func (p *mem2regPass) run() bool {
	p.identifyPromotable()
	if len(p.promotable) == 0 {
		return false
	}
	p.ensureZeroes()
	p.prepareDefs()

	for _, b := range p.fn.Blocks {
		p.processBlock(b)
	}
	// Insert phis only after every block is processed: resolving a load in a
	// late block can demand a phi in an earlier, already-processed one.
	for _, b := range p.fn.Blocks {
		if phis := p.blockPhis[b.ID]; len(phis) > 0 {
			prefix := make([]ir.Instruction, len(phis))
			for i, ph := range phis {
				prefix[i] = ph
			}
			b.Instructions = append(prefix, b.Instructions...)
		}
	}
	p.fixupSimplified()
	return true
}

func (p *mem2regPass) identifyPromotable() {
	for _, b := range p.fn.Blocks {
		for _, inst := range b.Instructions {
			if al, ok := inst.(*ir.AllocaInst); ok {
				p.allocaType[al.Dest] = al.Type
			}
		}
	}
	for id, ty := range p.allocaType {
		if ty.IsScalar() && !p.addressTaken(id) {
			p.promotable[id] = true
		}
	}
}

// addressTaken reports whether id's address escapes anywhere other than
// the addr operand of a plain Load or Store.
func (p *mem2regPass) addressTaken(id ir.VarId) bool {
	for _, b := range p.fn.Blocks {
		for _, inst := range b.Instructions {
			switch v := inst.(type) {
			case *ir.LoadInst:
				if v.Addr.IsVar() && v.Addr.Var == id {
					continue
				}
			case *ir.StoreInst:
				if v.Addr.IsVar() && v.Addr.Var == id {
					if v.Src.IsVar() && v.Src.Var == id {
						return true
					}
					continue
				}
			}
			for _, use := range inst.Uses() {
				if use.IsVar() && use.Var == id {
					return true
				}
			}
		}
	}
	return false
}

func (p *mem2regPass) ensureZeroes() {
	p.zeroInt = p.newVar()
	p.zeroFloat = p.newVar()
	// The float zero must be typed so codegen gives it a float slot and
	// routes copies of it through xmm rather than the integer path.
	p.fn.VarTypes[p.zeroFloat] = types.Prim(types.Double)
	p.haveZeroes = true
	entry := p.fn.Blocks[0]
	entry.Instructions = append([]ir.Instruction{
		&ir.CopyInst{Dest: p.zeroInt, Src: ir.ConstOperand(0)},
		&ir.CopyInst{Dest: p.zeroFloat, Src: ir.FloatConstOperand(0)},
	}, entry.Instructions...)
}

// prepareDefs canonicalizes `Store alloca, <const>` into a Copy feeding a
// var-sourced Store, then records the last value stored to each promotable
// alloca per block.
func (p *mem2regPass) prepareDefs() {
	for _, b := range p.fn.Blocks {
		out := make([]ir.Instruction, 0, len(b.Instructions))
		for _, inst := range b.Instructions {
			st, ok := inst.(*ir.StoreInst)
			if ok && st.Addr.IsVar() && p.promotable[st.Addr.Var] && !st.Src.IsVar() {
				v := p.newVar()
				out = append(out, &ir.CopyInst{Dest: v, Src: st.Src})
				st = &ir.StoreInst{Addr: st.Addr, Src: ir.VarOperand(v), ValueType: st.ValueType}
				inst = st
			}
			out = append(out, inst)
			if ok && st.Addr.IsVar() && st.Src.IsVar() && p.promotable[st.Addr.Var] {
				defs, ok := p.blockDefs[st.Addr.Var]
				if !ok {
					defs = make(map[ir.BlockId]ir.VarId)
					p.blockDefs[st.Addr.Var] = defs
				}
				defs[b.ID] = st.Src.Var
			}
		}
		b.Instructions = out
	}
}

func (p *mem2regPass) processBlock(b *ir.BasicBlock) {
	out := make([]ir.Instruction, 0, len(b.Instructions))
	local := make(map[ir.VarId]ir.VarId)

	for _, inst := range b.Instructions {
		switch v := inst.(type) {
		case *ir.AllocaInst:
			if p.promotable[v.Dest] {
				continue
			}
		case *ir.StoreInst:
			if v.Addr.IsVar() && p.promotable[v.Addr.Var] && v.Src.IsVar() {
				local[v.Addr.Var] = v.Src.Var
				continue
			}
		case *ir.LoadInst:
			if v.Addr.IsVar() && p.promotable[v.Addr.Var] {
				val, ok := local[v.Addr.Var]
				if !ok {
					val = p.incomingValue(b.ID, v.Addr.Var)
				}
				out = append(out, &ir.CopyInst{Dest: v.Dest, Src: ir.VarOperand(val)})
				continue
			}
		}
		out = append(out, inst)
	}

	b.Instructions = out
}

func (p *mem2regPass) incomingValue(block ir.BlockId, varID ir.VarId) ir.VarId {
	key := [2]int64{int64(block), int64(varID)}
	if v, ok := p.incomingCache[key]; ok {
		return v
	}
	preds := p.preds[block]

	if len(preds) == 0 {
		if p.allocaType[varID].IsFloat() {
			return p.zeroFloat
		}
		return p.zeroInt
	}
	if len(preds) == 1 {
		v := p.outgoingValue(preds[0], varID)
		p.incomingCache[key] = v
		return v
	}

	phiVar := p.newVar()
	if ty := p.allocaType[varID]; ty != nil {
		p.fn.VarTypes[phiVar] = ty
	}
	p.incomingCache[key] = phiVar

	args := make([]ir.PhiArg, len(preds))
	for i, pred := range preds {
		args[i] = ir.PhiArg{Pred: pred, Src: p.outgoingValue(pred, varID)}
	}

	first := args[0].Src
	allSame := true
	for _, a := range args {
		if a.Src != first && a.Src != phiVar {
			allSame = false
			break
		}
	}
	if allSame {
		p.incomingCache[key] = first
		p.simplified[phiVar] = first
		return first
	}

	p.blockPhis[block] = append(p.blockPhis[block], &ir.PhiInst{Dest: phiVar, Preds: args})
	return phiVar
}

func (p *mem2regPass) outgoingValue(block ir.BlockId, varID ir.VarId) ir.VarId {
	if defs, ok := p.blockDefs[varID]; ok {
		if v, ok := defs[block]; ok {
			return v
		}
	}
	return p.incomingValue(block, varID)
}

func (p *mem2regPass) resolveSimplified(v ir.VarId) ir.VarId {
	seen := make(map[ir.VarId]bool)
	for {
		s, ok := p.simplified[v]
		if !ok || seen[v] {
			return v
		}
		seen[v] = true
		v = s
	}
}

// fixupSimplified rewrites every reference to a phi that collapsed to a
// single incoming value (simplified away before it was ever materialized)
// to that value directly.
func (p *mem2regPass) fixupSimplified() {
	if len(p.simplified) == 0 {
		return
	}
	resolved := make(map[ir.VarId]ir.VarId, len(p.simplified))
	for v := range p.simplified {
		resolved[v] = p.resolveSimplified(v)
	}
	ir.RewriteOperands(p.fn, func(op *ir.Operand) {
		if op.IsVar() {
			if r, ok := resolved[op.Var]; ok {
				op.Var = r
			}
		}
	})
	for _, b := range p.fn.Blocks {
		for _, ph := range b.Phis() {
			for i, a := range ph.Preds {
				if r, ok := resolved[a.Src]; ok {
					ph.Preds[i].Src = r
				}
			}
		}
	}
}

func maxVarID(fn *ir.Function) int {
	max := 0
	check := func(v ir.VarId) {
		if int(v) > max {
			max = int(v)
		}
	}
	for _, p := range fn.Params {
		check(p.Var)
	}
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			if v, ok := inst.Def(); ok {
				check(v)
			}
			if asm, ok := inst.(*ir.InlineAsmInst); ok {
				for _, o := range asm.Outputs {
					check(o)
				}
			}
		}
	}
	return max
}
