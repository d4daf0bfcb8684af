// Package regalloc assigns physical x86-64 registers to SSA variables via
// linear-scan-style interval computation feeding a greedy graph coloring,
// with copy coalescing and parameter-register hints to cut down on the
// shuffling codegen would otherwise emit.
package regalloc

import (
	"github.com/samber/lo"

	"x64cc/internal/ir"
)

// Interval is the inclusive instruction-position range across which var is
// live, found by a dataflow liveness pass extended with local def/use
// precision.
type Interval struct {
	Var   ir.VarId
	Start int
	End   int
}

// ComputeIntervals walks fn once to assign a position to every instruction
// and terminator, then runs iterative dataflow liveness (live_in/live_out)
// to extend each variable's interval across the blocks it threads through.
// Alloca destinations are excluded: they hold addresses, never promoted
// scalars, and are never colored.
func ComputeIntervals(fn *ir.Function) []Interval {
	allocaVars := allocaDests(fn)

	n := len(fn.Blocks)
	index := make(map[ir.BlockId]int, n)
	for i, b := range fn.Blocks {
		index[b.ID] = i
	}

	blockUse := make([]map[ir.VarId]bool, n)
	blockDef := make([]map[ir.VarId]bool, n)
	succs := make([][]int, n)
	for i := range blockUse {
		blockUse[i] = make(map[ir.VarId]bool)
		blockDef[i] = make(map[ir.VarId]bool)
	}

	for bi, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			for _, op := range inst.Uses() {
				if op.IsVar() && !allocaVars[op.Var] && !blockDef[bi][op.Var] {
					blockUse[bi][op.Var] = true
				}
			}
			if dest, ok := inst.Def(); ok && !allocaVars[dest] {
				blockDef[bi][dest] = true
			}
		}
		for _, op := range b.Terminator.Uses() {
			if op.IsVar() && !allocaVars[op.Var] && !blockDef[bi][op.Var] {
				blockUse[bi][op.Var] = true
			}
		}
		for _, s := range b.Terminator.Successors() {
			if si, ok := index[s]; ok {
				succs[bi] = append(succs[bi], si)
			}
		}
	}

	liveIn := make([]map[ir.VarId]bool, n)
	liveOut := make([]map[ir.VarId]bool, n)
	for i := range liveIn {
		liveIn[i] = make(map[ir.VarId]bool)
		liveOut[i] = make(map[ir.VarId]bool)
	}

	for changed := true; changed; {
		changed = false
		for bi := n - 1; bi >= 0; bi-- {
			newOut := make(map[ir.VarId]bool)
			for _, si := range succs[bi] {
				for v := range liveIn[si] {
					newOut[v] = true
				}
			}
			newIn := make(map[ir.VarId]bool, len(blockUse[bi]))
			for v := range blockUse[bi] {
				newIn[v] = true
			}
			for v := range newOut {
				if !blockDef[bi][v] {
					newIn[v] = true
				}
			}
			if !sameSet(newIn, liveIn[bi]) || !sameSet(newOut, liveOut[bi]) {
				changed = true
				liveIn[bi] = newIn
				liveOut[bi] = newOut
			}
		}
	}

	intervals := make(map[ir.VarId]*Interval)
	touch := func(v ir.VarId, pos int) {
		if allocaVars[v] {
			return
		}
		iv, ok := intervals[v]
		if !ok {
			intervals[v] = &Interval{Var: v, Start: pos, End: pos}
			return
		}
		if pos < iv.Start {
			iv.Start = pos
		}
		if pos > iv.End {
			iv.End = pos
		}
	}

	pos := 0
	blockStart := make([]int, n)
	blockEnd := make([]int, n)
	for bi, b := range fn.Blocks {
		blockStart[bi] = pos
		for _, inst := range b.Instructions {
			if dest, ok := inst.Def(); ok {
				touch(dest, pos)
			}
			for _, op := range inst.Uses() {
				if op.IsVar() {
					touch(op.Var, pos)
				}
			}
			pos++
		}
		for _, op := range b.Terminator.Uses() {
			if op.IsVar() {
				touch(op.Var, pos)
			}
		}
		blockEnd[bi] = pos
		pos++
	}

	for bi := range fn.Blocks {
		for v := range liveIn[bi] {
			touch(v, blockStart[bi])
			touch(v, blockEnd[bi])
		}
		for v := range liveOut[bi] {
			touch(v, blockStart[bi])
			touch(v, blockEnd[bi])
		}
	}

	return lo.MapToSlice(intervals, func(_ ir.VarId, iv *Interval) Interval { return *iv })
}

func allocaDests(fn *ir.Function) map[ir.VarId]bool {
	out := make(map[ir.VarId]bool)
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			if a, ok := inst.(*ir.AllocaInst); ok {
				out[a.Dest] = true
			}
		}
	}
	return out
}

func sameSet(a, b map[ir.VarId]bool) bool {
	return len(a) == len(b) && lo.EveryBy(lo.Keys(a), func(v ir.VarId) bool { return b[v] })
}
