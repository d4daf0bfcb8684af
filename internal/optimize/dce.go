package optimize

import "x64cc/internal/ir"

// DCE removes any instruction that defines a VarId with no remaining uses
// and has no side effect (HasSideEffects), iterating to a local fixpoint
// since removing one dead instruction can make its own operands dead too.
type DCE struct{}

func (*DCE) Name() string        { return "dce" }
func (*DCE) Description() string { return "removes instructions whose result is never used" }

func (*DCE) Run(fn *ir.Function) bool {
	anyChanged := false
	for {
		used := make(map[ir.VarId]bool)
		for _, b := range fn.Blocks {
			for _, inst := range b.Instructions {
				for _, op := range inst.Uses() {
					if op.IsVar() {
						used[op.Var] = true
					}
				}
			}
			for _, op := range b.Terminator.Uses() {
				if op.IsVar() {
					used[op.Var] = true
				}
			}
		}

		changed := false
		for _, b := range fn.Blocks {
			out := b.Instructions[:0]
			for _, inst := range b.Instructions {
				dest, has := inst.Def()
				if has && !used[dest] && !inst.HasSideEffects() {
					changed = true
					continue
				}
				out = append(out, inst)
			}
			b.Instructions = out
		}
		if !changed {
			return anyChanged
		}
		anyChanged = true
	}
}
