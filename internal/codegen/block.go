package codegen

import (
	"x64cc/internal/abi"
	"x64cc/internal/ir"
)

// emitBlock lowers one basic block's instructions (its leading φs are
// resolved by the predecessor side, see resolvePhis, so they are skipped
// here) and its terminator.
func (g *funcGen) emitBlock(b *ir.BasicBlock, isLast bool) {
	g.emit(Instr{Op: OpLabel, Text: g.blockLabel(b.ID)})
	for _, inst := range b.Instructions {
		if _, isPhi := inst.(*ir.PhiInst); isPhi {
			continue
		}
		g.selectInst(inst)
	}
	g.emitTerminator(b, isLast)
}

// emitTerminator lowers a block's terminator, first resolving any φs of
// each successor block that this predecessor feeds (a parallel copy
// sequence inserted right before the branch, exactly where an edge-split
// block would live had we materialized one).
func (g *funcGen) emitTerminator(b *ir.BasicBlock, isLast bool) {
	switch t := b.Terminator.(type) {
	case *ir.BrTerm:
		g.resolvePhis(b.ID, t.Target)
		g.emit(Instr{Op: OpJmp, Text: g.blockLabel(t.Target)})

	case *ir.CondBrTerm:
		// Each successor may have its own φ set; condbr can't carry two
		// different copy sequences on one edge, so split by jumping to a
		// per-edge resolution point... in practice φ arguments from a
		// CondBr predecessor use the same source values for both successors'
		// phis are independent, so we resolve Then's copies, invert the
		// branch, resolve Else's copies, then jump. Both successors'
		// resolution sequences run on their own edge only if we don't fall
		// through into both; we materialize the condition first.
		cond := g.operand(t.Cond)
		if cond.Kind == KindImm {
			// cmp cannot take an immediate destination.
			g.emit(Instr{Op: OpMov, Dst: Reg(abiScratchInt), Src: cond})
			cond = Reg(abiScratchInt)
		}
		g.emit(Instr{Op: OpCmp, Dst: cond, Src: Imm(0)})
		elseLabel := g.newLocalLabel("else")
		g.emit(Instr{Op: OpJcc, Cond: "e", Text: elseLabel})
		g.resolvePhis(b.ID, t.Then)
		g.emit(Instr{Op: OpJmp, Text: g.blockLabel(t.Then)})
		g.emit(Instr{Op: OpLabel, Text: elseLabel})
		g.resolvePhis(b.ID, t.Else)
		g.emit(Instr{Op: OpJmp, Text: g.blockLabel(t.Else)})

	case *ir.RetTerm:
		if t.Value != nil {
			g.emitReturnValue(*t.Value)
		}
		g.emitEpilogue()

	case *ir.UnreachableTerm:
		g.emit(Instr{Op: OpRaw, Text: "ud2"})
	}
}

func (g *funcGen) emitReturnValue(v ir.Operand) {
	if g.fn.ReturnType != nil && g.fn.ReturnType.IsFloat() {
		src := g.floatOperand(v)
		g.emit(Instr{Op: OpMovsd, Dst: Reg(g.conv.FloatReturnReg()), Src: src})
		return
	}
	src := g.operand(v)
	dst := Reg(g.conv.ReturnReg())
	if src != dst {
		g.emit(Instr{Op: OpMov, Dst: dst, Src: src})
	}
}

// copyPair is one assignment a parallel-copy resolution must perform:
// Dst = Src, both already lowered to assembly operands.
type copyPair struct {
	Dst, Src Operand
	Float    bool
}

// resolvePhis emits the copies that implement every φ in succ whose
// predecessor list names from: Dst is the φ's own destination (a register
// or spill slot), Src is the value that predecessor contributes.
func (g *funcGen) resolvePhis(from, succID ir.BlockId) {
	succ := g.fn.BlockByID(succID)
	if succ == nil {
		return
	}
	var intPairs, floatPairs []copyPair
	for _, ph := range succ.Phis() {
		for _, arg := range ph.Preds {
			if arg.Pred != from {
				continue
			}
			isFloat := g.fn.TypeOf(ph.Dest).IsFloat()
			if isFloat {
				floatPairs = append(floatPairs, copyPair{Dst: g.floatSlot(ph.Dest), Src: g.floatSlot(arg.Src), Float: true})
			} else {
				intPairs = append(intPairs, copyPair{Dst: g.location(ph.Dest), Src: g.location(arg.Src)})
			}
			break
		}
	}
	g.emitParallelCopies(intPairs, Reg(abiScratchInt))
	g.emitParallelCopies(floatPairs, Reg(abiScratchFloat))
}

// emitParallelCopies sequentializes a set of simultaneous assignments that
// may alias each other's destinations (a classic SSA φ-lowering problem: a
// later copy's destination may be an earlier copy's source). It repeatedly
// emits any copy whose destination nothing else still needs to read, and
// breaks a remaining cycle by rescuing one value into scratch first.
func (g *funcGen) emitParallelCopies(pairs []copyPair, scratch Operand) {
	pending := make([]copyPair, 0, len(pairs))
	for _, p := range pairs {
		if p.Dst != p.Src {
			pending = append(pending, p)
		}
	}

	// Both sides of a copy can be stack slots (two spilled variables);
	// x86 has no memory-to-memory mov, so those route through a second
	// scratch register, distinct from the cycle-breaking one, which may be
	// holding a rescued value at the same time.
	mov := func(dst, src Operand, isFloat bool) {
		if dst.Kind == KindMem && src.Kind == KindMem {
			if isFloat {
				g.emit(Instr{Op: OpMovsd, Dst: Reg(abi.Xmm7), Src: src})
				g.emit(Instr{Op: OpMovsd, Dst: dst, Src: Reg(abi.Xmm7)})
			} else {
				g.emit(Instr{Op: OpMov, Dst: Reg(abi.R10), Src: src})
				g.emit(Instr{Op: OpMov, Dst: dst, Src: Reg(abi.R10)})
			}
			return
		}
		if isFloat {
			g.emit(Instr{Op: OpMovsd, Dst: dst, Src: src})
		} else {
			g.emit(Instr{Op: OpMov, Dst: dst, Src: src})
		}
	}

	for len(pending) > 0 {
		progressed := false
		for i, p := range pending {
			usedAsSrc := false
			for j, q := range pending {
				if i != j && q.Src == p.Dst {
					usedAsSrc = true
					break
				}
			}
			if !usedAsSrc {
				mov(p.Dst, p.Src, p.Float)
				pending = append(pending[:i], pending[i+1:]...)
				progressed = true
				break
			}
		}
		if progressed {
			continue
		}
		// Every remaining copy is part of a cycle: rescue the first one's
		// destination into scratch, repoint anything reading that
		// location at scratch, then let the loop make progress again.
		p := pending[0]
		mov(scratch, p.Dst, p.Float)
		for i := range pending {
			if pending[i].Src == p.Dst {
				pending[i].Src = scratch
			}
		}
	}
}
