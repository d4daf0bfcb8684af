package lower

import (
	"github.com/sirupsen/logrus"

	"x64cc/internal/ir"
)

// writeVariable records that name's current value at block is v.
func (l *Lowerer) writeVariable(name string, block ir.BlockId, v ir.VarId) {
	defs, ok := l.variableDefs[name]
	if !ok {
		defs = make(map[ir.BlockId]ir.VarId)
		l.variableDefs[name] = defs
	}
	defs[block] = v
}

// readVariable resolves name's value at block, recursing through
// predecessors and inserting phis as needed (Braun et al.).
func (l *Lowerer) readVariable(name string, block ir.BlockId) ir.VarId {
	if defs, ok := l.variableDefs[name]; ok {
		if v, ok := defs[block]; ok {
			return v
		}
	}
	return l.readVariableRecursive(name, block)
}

func (l *Lowerer) readVariableRecursive(name string, block ir.BlockId) ir.VarId {
	var val ir.VarId
	if !l.sealedBlocks[block] {
		// Block not yet sealed: place an incomplete phi, to be filled in
		// once sealBlock later discovers every predecessor.
		val = l.newVar()
		phis, ok := l.incompletePhis[block]
		if !ok {
			phis = make(map[string]ir.VarId)
			l.incompletePhis[block] = phis
		}
		phis[name] = val
		logrus.WithFields(logrus.Fields{
			"block": block, "name": name, "var": val,
		}).Debug("placed incomplete phi in unsealed block")
	} else {
		preds := l.predecessors(block)
		if len(preds) == 1 {
			val = l.readVariable(name, preds[0])
		} else {
			val = l.newVar()
			l.writeVariable(name, block, val)
			val = l.addPhiOperands(name, block, val)
		}
	}
	l.writeVariable(name, block, val)
	return val
}

// addPhiOperands reads name at every predecessor of block and inserts the
// resulting phi as the first instruction of block.
func (l *Lowerer) addPhiOperands(name string, block ir.BlockId, phiVar ir.VarId) ir.VarId {
	preds := l.predecessors(block)
	args := make([]ir.PhiArg, len(preds))
	for i, p := range preds {
		args[i] = ir.PhiArg{Pred: p, Src: l.readVariable(name, p)}
	}
	b := l.block(block)
	phi := &ir.PhiInst{Dest: phiVar, Preds: args}
	b.Instructions = append([]ir.Instruction{phi}, b.Instructions...)
	return phiVar
}

// sealBlock marks block as having all its predecessors known, resolving
// any incomplete phis placed at it while it was open.
func (l *Lowerer) sealBlock(block ir.BlockId) {
	if l.sealedBlocks[block] {
		return
	}
	phis := l.incompletePhis[block]
	delete(l.incompletePhis, block)
	if len(phis) > 0 {
		logrus.WithFields(logrus.Fields{
			"block": block, "phis": len(phis),
		}).Debug("sealing block, resolving incomplete phis")
	}
	for name, v := range phis {
		l.addPhiOperands(name, block, v)
	}
	l.sealedBlocks[block] = true
}

// predecessors scans every block's terminator for edges into block. Blocks
// under construction default to an Unreachable terminator (no successors),
// so this only sees edges already committed by the time it's called —
// mirroring the Rust lowerer's recompute-on-demand predecessor query.
func (l *Lowerer) predecessors(block ir.BlockId) []ir.BlockId {
	var preds []ir.BlockId
	for _, b := range l.blocks {
		for _, succ := range b.Terminator.Successors() {
			if succ == block {
				preds = append(preds, b.ID)
			}
		}
	}
	return preds
}
