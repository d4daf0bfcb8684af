package optimize

import "x64cc/internal/ir"

// CopyPropagate replaces every use of a CopyInst's destination with its
// source, following chains of copies to their ultimate origin, then lets
// DCE remove whatever copies are left with no remaining uses.
type CopyPropagate struct{}

func (*CopyPropagate) Name() string { return "copy-propagate" }
func (*CopyPropagate) Description() string {
	return "replaces uses of a copy's destination with its source"
}

func (*CopyPropagate) Run(fn *ir.Function) bool {
	copyOf := make(map[ir.VarId]ir.Operand)
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			if c, ok := inst.(*ir.CopyInst); ok {
				copyOf[c.Dest] = c.Src
			}
		}
	}
	if len(copyOf) == 0 {
		return false
	}

	resolve := func(op ir.Operand) ir.Operand {
		seen := make(map[ir.VarId]bool)
		for op.IsVar() {
			src, ok := copyOf[op.Var]
			if !ok || seen[op.Var] {
				break
			}
			seen[op.Var] = true
			op = src
		}
		return op
	}

	changed := false
	ir.RewriteOperands(fn, func(op *ir.Operand) {
		r := resolve(*op)
		if r != *op {
			*op = r
			changed = true
		}
	})
	// Phi sources can only hold variables; a copy of a constant stays put.
	for _, b := range fn.Blocks {
		for _, ph := range b.Phis() {
			for i, a := range ph.Preds {
				r := resolve(ir.VarOperand(a.Src))
				if r.IsVar() && r.Var != a.Src {
					ph.Preds[i].Src = r.Var
					changed = true
				}
			}
		}
	}
	return changed
}
