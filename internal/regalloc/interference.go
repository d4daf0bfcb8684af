package regalloc

import (
	"github.com/samber/lo"

	"x64cc/internal/ir"
)

// buildInterference connects two variables whenever their live intervals
// overlap: assigning them the same register would clobber one mid-flight.
func buildInterference(intervals []Interval) map[ir.VarId]map[ir.VarId]bool {
	graph := make(map[ir.VarId]map[ir.VarId]bool)
	for i := 0; i < len(intervals); i++ {
		for j := i + 1; j < len(intervals); j++ {
			a, b := intervals[i], intervals[j]
			if a.Start <= b.End && b.Start <= a.End {
				addEdge(graph, a.Var, b.Var)
				addEdge(graph, b.Var, a.Var)
			}
		}
	}
	return graph
}

func addEdge(graph map[ir.VarId]map[ir.VarId]bool, a, b ir.VarId) {
	if graph[a] == nil {
		graph[a] = make(map[ir.VarId]bool)
	}
	graph[a][b] = true
}

// copyHints maps a Copy instruction's destination to its source variable,
// candidates the colorer tries to coalesce onto the same register so the
// copy can be dropped entirely by the peephole pass.
func copyHints(fn *ir.Function) map[ir.VarId]ir.VarId {
	hints := make(map[ir.VarId]ir.VarId)
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			if c, ok := inst.(*ir.CopyInst); ok && c.Src.IsVar() {
				hints[c.Dest] = c.Src.Var
			}
		}
	}
	return hints
}

// liveAcrossCall reports which variables have an interval spanning a Call
// or IndirectCall instruction: those cannot be colored into a caller-saved
// register without the allocator also arranging a save/restore, so the
// colorer treats them specially.
func liveAcrossCall(fn *ir.Function, intervals []Interval) map[ir.VarId]bool {
	var callPositions []int
	pos := 0
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			switch inst.(type) {
			case *ir.CallInst, *ir.IndirectCallInst:
				callPositions = append(callPositions, pos)
			}
			pos++
		}
		pos++
	}

	out := make(map[ir.VarId]bool)
	for _, iv := range intervals {
		if lo.SomeBy(callPositions, func(cp int) bool { return iv.Start < cp && cp < iv.End }) {
			out[iv.Var] = true
		}
	}
	return out
}
