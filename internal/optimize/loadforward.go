package optimize

import "x64cc/internal/ir"

// LoadForward forwards a Load from the value most recently Stored to the
// same address within a block (turning it into a Copy) and removes a Store
// that is overwritten by a later Store to the same address before anything
// could observe it. Two distinct address variables may alias (a pointer
// loaded from a slot, two GEPs of one base), so a store through one address
// invalidates every other tracked slot, and a load that cannot be forwarded
// makes every pending store observable. Calls, inline asm, and va_* clear
// all state: they may read or write anything.
type LoadForward struct{}

func (*LoadForward) Name() string { return "load-forward" }
func (*LoadForward) Description() string {
	return "forwards loads from the last store to the same address and drops overwritten stores"
}

func (*LoadForward) Run(fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		if forwardBlock(b) {
			changed = true
		}
	}
	return changed
}

func forwardBlock(b *ir.BasicBlock) bool {
	changed := false
	lastStore := make(map[ir.VarId]*ir.StoreInst) // addr VarId -> pending store
	lastValue := make(map[ir.VarId]ir.Operand)    // addr VarId -> last known value

	out := make([]ir.Instruction, 0, len(b.Instructions))
	flushAll := func() {
		lastStore = make(map[ir.VarId]*ir.StoreInst)
		lastValue = make(map[ir.VarId]ir.Operand)
	}

	for _, inst := range b.Instructions {
		switch v := inst.(type) {
		case *ir.LoadInst:
			if v.Addr.IsVar() {
				if val, ok := lastValue[v.Addr.Var]; ok {
					out = append(out, &ir.CopyInst{Dest: v.Dest, Src: val})
					changed = true
					continue
				}
			}
			// The read may go through an address aliasing any tracked slot:
			// every pending store is observable now.
			lastStore = make(map[ir.VarId]*ir.StoreInst)
			out = append(out, inst)
		case *ir.StoreInst:
			if !v.Addr.IsVar() {
				flushAll()
				out = append(out, inst)
				continue
			}
			if prev, ok := lastStore[v.Addr.Var]; ok {
				// Overwritten without an intervening observation: drop it.
				for i := len(out) - 1; i >= 0; i-- {
					if out[i] == ir.Instruction(prev) {
						out = append(out[:i], out[i+1:]...)
						changed = true
						break
					}
				}
			}
			// The write may clobber any aliasing slot; only this address's
			// state stays known.
			for a := range lastValue {
				if a != v.Addr.Var {
					delete(lastValue, a)
				}
			}
			for a := range lastStore {
				if a != v.Addr.Var {
					delete(lastStore, a)
				}
			}
			lastStore[v.Addr.Var] = v
			lastValue[v.Addr.Var] = v.Src
			out = append(out, inst)
		case *ir.CallInst, *ir.IndirectCallInst, *ir.InlineAsmInst,
			*ir.VaStartInst, *ir.VaEndInst, *ir.VaCopyInst, *ir.VaArgInst:
			out = append(out, inst)
			flushAll()
		default:
			out = append(out, inst)
		}
	}
	b.Instructions = out
	return changed
}
