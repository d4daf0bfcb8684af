package ir

import "fmt"

// VerifySSA checks the SSA invariants that must hold of IR produced by any
// stage: every operand VarId is defined by exactly one instruction
// reachable on every path to the use (checked via dominance), and every φ in
// a block has exactly one entry per CFG predecessor. A violation here is an
// InvariantViolation: a compiler bug, not a user-facing error.
func VerifySSA(f *Function) error {
	defBlock := make(map[VarId]BlockId)
	defPos := make(map[VarId]int)
	seen := make(map[VarId]bool)

	for _, p := range f.Params {
		seen[p.Var] = true
		defBlock[p.Var] = f.Entry
		defPos[p.Var] = -1
	}

	for _, b := range f.Blocks {
		if b.Terminator == nil {
			return fmt.Errorf("ir: bb%d has no terminator", b.ID)
		}
		for pos, inst := range b.Instructions {
			if v, ok := inst.Def(); ok {
				if seen[v] {
					return fmt.Errorf("ir: %%%d defined more than once (in bb%d)", v, b.ID)
				}
				seen[v] = true
				defBlock[v] = b.ID
				defPos[v] = pos
			}
		}
	}

	order, idom, err := dominatorTree(f)
	if err != nil {
		return err
	}
	posIndex := make(map[BlockId]int, len(order))
	for i, id := range order {
		posIndex[id] = i
	}

	dominates := func(a, b BlockId) bool {
		if a == b {
			return true
		}
		cur, ok := idom[b]
		for ok {
			if cur == a {
				return true
			}
			cur, ok = idom[cur]
		}
		return false
	}

	checkUse := func(v VarId, useBlock BlockId, usePos int) error {
		db, ok := defBlock[v]
		if !ok {
			return fmt.Errorf("ir: use of undefined %%%d in bb%d", v, useBlock)
		}
		if db == useBlock {
			if defPos[v] >= 0 && usePos >= 0 && defPos[v] > usePos {
				return fmt.Errorf("ir: %%%d used before its definition in bb%d", v, useBlock)
			}
			return nil
		}
		if _, reachable := posIndex[useBlock]; !reachable {
			return nil // unreachable blocks are exempt
		}
		if !dominates(db, useBlock) {
			return fmt.Errorf("ir: %%%d (defined in bb%d) does not dominate use in bb%d", v, db, useBlock)
		}
		return nil
	}

	preds := f.Preds()
	for _, b := range f.Blocks {
		for pos, inst := range b.Instructions {
			if phi, ok := inst.(*PhiInst); ok {
				want := preds[b.ID]
				if len(phi.Preds) != len(want) {
					return fmt.Errorf("ir: phi %%%d in bb%d has %d args, want %d (one per predecessor)",
						phi.Dest, b.ID, len(phi.Preds), len(want))
				}
				for _, arg := range phi.Preds {
					if err := checkUse(arg.Src, arg.Pred, -1); err != nil {
						return err
					}
				}
				continue
			}
			for _, use := range inst.Uses() {
				if use.Kind == OpVar {
					if err := checkUse(use.Var, b.ID, pos); err != nil {
						return err
					}
				}
			}
		}
		for _, use := range b.Terminator.Uses() {
			if use.Kind == OpVar {
				if err := checkUse(use.Var, b.ID, len(b.Instructions)); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// dominatorTree computes immediate dominators over the reachable subgraph
// via the standard iterative fixpoint, sufficient for function-sized CFGs.
func dominatorTree(f *Function) ([]BlockId, map[BlockId]BlockId, error) {
	order := reversePostOrder(f)
	if len(order) == 0 {
		return nil, nil, nil
	}
	index := make(map[BlockId]int, len(order))
	for i, id := range order {
		index[id] = i
	}
	preds := f.Preds()

	idom := make(map[BlockId]BlockId)
	idom[order[0]] = order[0]
	changed := true
	for changed {
		changed = false
		for _, b := range order[1:] {
			var newIdom BlockId
			set := false
			for _, p := range preds[b] {
				if _, ok := index[p]; !ok {
					continue
				}
				if _, processed := idom[p]; !processed {
					continue
				}
				if !set {
					newIdom = p
					set = true
					continue
				}
				newIdom = intersect(p, newIdom, order, index, idom)
			}
			if cur, ok := idom[b]; set && (!ok || cur != newIdom) {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	delete(idom, order[0]) // entry has no idom
	return order, idom, nil
}

func intersect(a, b BlockId, order []BlockId, index map[BlockId]int, idom map[BlockId]BlockId) BlockId {
	for a != b {
		for index[a] > index[b] {
			a = idom[a]
		}
		for index[b] > index[a] {
			b = idom[b]
		}
	}
	return a
}

func reversePostOrder(f *Function) []BlockId {
	visited := make(map[BlockId]bool)
	var post []BlockId
	var visit func(BlockId)
	visit = func(id BlockId) {
		if visited[id] {
			return
		}
		visited[id] = true
		b := f.BlockByID(id)
		if b == nil || b.Terminator == nil {
			post = append(post, id)
			return
		}
		for _, s := range b.Terminator.Successors() {
			visit(s)
		}
		post = append(post, id)
	}
	visit(f.Entry)
	// reverse
	out := make([]BlockId, len(post))
	for i, id := range post {
		out[len(post)-1-i] = id
	}
	return out
}
