package optimize

import "x64cc/internal/ir"

// CFGSimplify merges a block into its unique predecessor when that
// predecessor's only successor is this block (jump threading), and drops
// blocks no longer reachable from the entry block afterward. It runs
// before φ-resolution, so it refuses to touch label targets (possible goto
// destinations) or blocks carrying φs, where merging would require
// rewriting predecessor-keyed φ arguments.
type CFGSimplify struct{}

func (*CFGSimplify) Name() string { return "cfg-simplify" }
func (*CFGSimplify) Description() string {
	return "merges single-predecessor/single-successor block pairs and removes unreachable blocks"
}

func (*CFGSimplify) Run(fn *ir.Function) bool {
	changed := false
	for i := 0; i < 100; i++ {
		m := mergeBlocks(fn)
		r := removeUnreachable(fn)
		if !m && !r {
			break
		}
		changed = true
	}
	return changed
}

func mergeBlocks(fn *ir.Function) bool {
	changed := false
	for {
		preds := fn.Preds()
		merged := false
		for _, b := range fn.Blocks {
			if b.IsLabelTarget || len(b.Phis()) > 0 {
				continue
			}
			br, ok := b.Terminator.(*ir.BrTerm)
			if !ok {
				continue
			}
			succ := fn.BlockByID(br.Target)
			if succ == nil || succ.ID == b.ID {
				continue
			}
			if len(preds[succ.ID]) != 1 || succ.IsLabelTarget {
				continue
			}
			b.Instructions = append(b.Instructions, succ.Instructions...)
			b.Terminator = succ.Terminator
			retargetPhiPreds(fn, succ.ID, b.ID)
			removeBlock(fn, succ.ID)
			merged = true
			changed = true
			break
		}
		if !merged {
			break
		}
	}
	return changed
}

// retargetPhiPreds rewrites any phi argument claiming from as its
// predecessor to to, after from's terminator has been absorbed into to.
func retargetPhiPreds(fn *ir.Function, from, to ir.BlockId) {
	for _, b := range fn.Blocks {
		for _, ph := range b.Phis() {
			for i, a := range ph.Preds {
				if a.Pred == from {
					ph.Preds[i].Pred = to
				}
			}
		}
	}
}

func removeBlock(fn *ir.Function, id ir.BlockId) {
	for i, b := range fn.Blocks {
		if b.ID == id {
			fn.Blocks = append(fn.Blocks[:i], fn.Blocks[i+1:]...)
			return
		}
	}
}

// removeUnreachable drops blocks not reachable from the entry block by a
// forward walk over terminator successors.
func removeUnreachable(fn *ir.Function) bool {
	reachable := map[ir.BlockId]bool{fn.Entry: true}
	work := []ir.BlockId{fn.Entry}
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		b := fn.BlockByID(id)
		if b == nil {
			continue
		}
		for _, s := range b.Terminator.Successors() {
			if !reachable[s] {
				reachable[s] = true
				work = append(work, s)
			}
		}
	}

	changed := false
	kept := fn.Blocks[:0]
	for _, b := range fn.Blocks {
		if reachable[b.ID] {
			kept = append(kept, b)
		} else {
			changed = true
		}
	}
	fn.Blocks = kept
	return changed
}
