package regalloc

import (
	"sort"

	"github.com/sirupsen/logrus"

	"x64cc/internal/abi"
	"x64cc/internal/ir"
)

// scratch lists the general-purpose registers codegen reserves for itself
// (return value staging, address computation, division) and which the
// colorer must never hand out to an SSA variable.
var scratch = map[abi.Reg]bool{
	abi.Rax: true,
	abi.Rcx: true,
	abi.Rdx: true,
	abi.R10: true,
	abi.R11: true,
}

// Allocation is the result of register allocation: a physical register per
// colored variable, and the set of variables that did not fit and must be
// spilled to a stack slot instead.
type Allocation struct {
	Regs   map[ir.VarId]abi.Reg
	Spills map[ir.VarId]bool
}

// Allocate computes live intervals for fn, builds their interference graph,
// and greedily colors it: each variable first tries its incoming parameter
// register, then its copy-coalescing partner's register, then a free
// caller-saved register (preferring not to force a callee-save push/pop),
// falling back to callee-saved when the heuristic in usesCalleeSaved allows
// it or the variable's interval crosses a call and must survive it. A
// variable that still has no free register after every strategy is
// recorded as a spill rather than assigned.
func Allocate(fn *ir.Function, conv abi.Convention) Allocation {
	intervals := ComputeIntervals(fn)
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].Var < intervals[j].Var })

	interference := buildInterference(intervals)
	copies := copyHints(fn)
	params := paramHints(fn, conv)
	acrossCall := liveAcrossCall(fn, intervals)
	allowCallee := usesCalleeSaved(fn)

	allocatable := allocatableRegs(conv)
	callerSaved := callerSavedRegs(conv, allocatable)
	calleeSaved := filterAllocatable(conv.CalleeSavedRegs(), allocatable)
	savedSet := make(map[abi.Reg]bool)
	for _, r := range conv.CalleeSavedRegs() {
		savedSet[r] = true
	}

	// Shorter live ranges first: short-lived variables get first pick of the
	// registers, and the longer ones colored later are the ones left to
	// spill when the registers run out.
	sort.Slice(intervals, func(i, j int) bool {
		return (intervals[i].End - intervals[i].Start) < (intervals[j].End - intervals[j].Start)
	})

	colors := make(map[ir.VarId]abi.Reg)
	result := Allocation{Regs: make(map[ir.VarId]abi.Reg), Spills: make(map[ir.VarId]bool)}

	for _, iv := range intervals {
		v := iv.Var
		used := make(map[abi.Reg]bool)
		for neighbor := range interference[v] {
			if r, ok := colors[neighbor]; ok {
				used[r] = true
			}
		}

		var chosen abi.Reg
		found := false
		crossesCall := acrossCall[v]

		// A hint is only honored when the register would actually be safe:
		// a call-crossing variable must not take a caller-saved hint, the
		// call would clobber it.
		if hint, ok := params[v]; ok && !used[hint] && inSet(allocatable, hint) &&
			(!crossesCall || savedSet[hint]) {
			chosen, found = hint, true
		}

		if !found {
			if src, ok := copies[v]; ok {
				if hr, ok := colors[src]; ok && !interference[v][src] && !used[hr] && inSet(allocatable, hr) &&
					(!crossesCall || savedSet[hr]) {
					chosen, found = hr, true
				}
			}
		}

		if !found && !crossesCall {
			for _, r := range callerSaved {
				if !used[r] {
					chosen, found = r, true
					break
				}
			}
		}

		if !found && (allowCallee || crossesCall) {
			for _, r := range calleeSaved {
				if !used[r] {
					chosen, found = r, true
					break
				}
			}
		}

		if !found && crossesCall {
			for _, r := range allocatable {
				if !used[r] {
					chosen, found = r, true
					break
				}
			}
		}

		if found {
			colors[v] = chosen
			result.Regs[v] = chosen
			logrus.WithFields(logrus.Fields{
				"fn": fn.Name, "var": v, "reg": chosen.String(),
				"crossesCall": crossesCall, "interval": [2]int{iv.Start, iv.End},
			}).Debug("colored variable")
		} else {
			result.Spills[v] = true
			logrus.WithFields(logrus.Fields{
				"fn": fn.Name, "var": v, "crossesCall": crossesCall,
			}).Debug("no register available, spilling to stack slot")
		}
	}

	return result
}

// usesCalleeSaved decides whether this function is large enough that the
// push/pop overhead of using a callee-saved register is worth it rather
// than spilling. Small leaf-ish functions prefer to spill to the stack.
func usesCalleeSaved(fn *ir.Function) bool {
	numInsts := 0
	for _, b := range fn.Blocks {
		numInsts += len(b.Instructions)
	}
	return len(fn.Blocks) > 5 || numInsts > 30
}

func paramHints(fn *ir.Function, conv abi.Convention) map[ir.VarId]abi.Reg {
	hints := make(map[ir.VarId]abi.Reg)
	intRegs := conv.ParamRegs()
	ii := 0
	for _, p := range fn.Params {
		if p.Type != nil && p.Type.IsFloat() {
			continue // float params are colored in the xmm file, handled separately
		}
		if ii < len(intRegs) {
			hints[p.Var] = intRegs[ii]
			ii++
		}
	}
	return hints
}

func allocatableRegs(conv abi.Convention) []abi.Reg {
	candidates := []abi.Reg{
		abi.Rbx, abi.Rsi, abi.Rdi,
		abi.R8, abi.R9,
		abi.R12, abi.R13, abi.R14, abi.R15,
	}
	out := make([]abi.Reg, 0, len(candidates))
	for _, r := range candidates {
		if !scratch[r] {
			out = append(out, r)
		}
	}
	_ = conv // both conventions share the same allocatable GP pool
	return out
}

func callerSavedRegs(conv abi.Convention, allocatable []abi.Reg) []abi.Reg {
	// Registers a callee need not preserve: everything allocatable that
	// conv doesn't list as callee-saved.
	saved := make(map[abi.Reg]bool)
	for _, r := range conv.CalleeSavedRegs() {
		saved[r] = true
	}
	var out []abi.Reg
	for _, r := range allocatable {
		if !saved[r] {
			out = append(out, r)
		}
	}
	return out
}

func filterAllocatable(regs []abi.Reg, allocatable []abi.Reg) []abi.Reg {
	ok := make(map[abi.Reg]bool, len(allocatable))
	for _, r := range allocatable {
		ok[r] = true
	}
	var out []abi.Reg
	for _, r := range regs {
		if ok[r] {
			out = append(out, r)
		}
	}
	return out
}

func inSet(regs []abi.Reg, r abi.Reg) bool {
	for _, x := range regs {
		if x == r {
			return true
		}
	}
	return false
}
