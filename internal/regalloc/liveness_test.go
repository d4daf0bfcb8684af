package regalloc

import (
	"testing"

	"x64cc/internal/ir"
	"x64cc/internal/types"
)

func intervalFor(intervals []Interval, v ir.VarId) (Interval, bool) {
	for _, iv := range intervals {
		if iv.Var == v {
			return iv, true
		}
	}
	return Interval{}, false
}

func TestIntervalsCoverDefToLastUse(t *testing.T) {
	// pos 0: %2 = %0 + %1
	// pos 1: %3 = %2 * %2
	// pos 2: ret %3
	fn := &ir.Function{
		Name:       "f",
		ReturnType: types.Prim(types.Int),
		Params:     []ir.Param{{Type: types.Prim(types.Int), Var: 0}, {Type: types.Prim(types.Int), Var: 1}},
		Entry:      0,
		VarTypes:   map[ir.VarId]*types.Type{},
		Blocks: []*ir.BasicBlock{
			{ID: 0, Instructions: []ir.Instruction{
				&ir.BinaryInst{Dest: 2, Op: ir.Add, L: ir.VarOperand(0), R: ir.VarOperand(1)},
				&ir.BinaryInst{Dest: 3, Op: ir.Mul, L: ir.VarOperand(2), R: ir.VarOperand(2)},
			}, Terminator: &ir.RetTerm{Value: opPtr(ir.VarOperand(3))}},
		},
	}
	intervals := ComputeIntervals(fn)

	sum, ok := intervalFor(intervals, 2)
	if !ok {
		t.Fatal("no interval for %2")
	}
	if sum.Start != 0 || sum.End != 1 {
		t.Errorf("%%2 interval = [%d,%d], want [0,1]", sum.Start, sum.End)
	}
	res, _ := intervalFor(intervals, 3)
	if res.End != 2 {
		t.Errorf("%%3 should live to the terminator at position 2, got end %d", res.End)
	}
}

func TestIntervalsExcludeAllocas(t *testing.T) {
	fn := &ir.Function{
		Name:       "f",
		ReturnType: types.Prim(types.Int),
		Entry:      0,
		VarTypes:   map[ir.VarId]*types.Type{},
		Blocks: []*ir.BasicBlock{
			{ID: 0, Instructions: []ir.Instruction{
				&ir.AllocaInst{Dest: 0, Type: types.Prim(types.Int)},
				&ir.StoreInst{Addr: ir.VarOperand(0), Src: ir.ConstOperand(1), ValueType: types.Prim(types.Int)},
				&ir.LoadInst{Dest: 1, Addr: ir.VarOperand(0), ValueType: types.Prim(types.Int)},
			}, Terminator: &ir.RetTerm{Value: opPtr(ir.VarOperand(1))}},
		},
	}
	intervals := ComputeIntervals(fn)
	if _, ok := intervalFor(intervals, 0); ok {
		t.Error("alloca destination must not get a live interval")
	}
	if _, ok := intervalFor(intervals, 1); !ok {
		t.Error("loaded value should get an interval")
	}
}

func TestLivenessExtendsAcrossThreadedBlock(t *testing.T) {
	// %1 defined in bb0, used only in bb2; it is live through all of bb1.
	fn := &ir.Function{
		Name:       "f",
		ReturnType: types.Prim(types.Int),
		Params:     []ir.Param{{Type: types.Prim(types.Int), Var: 0}},
		Entry:      0,
		VarTypes:   map[ir.VarId]*types.Type{},
		Blocks: []*ir.BasicBlock{
			{ID: 0, Instructions: []ir.Instruction{
				&ir.BinaryInst{Dest: 1, Op: ir.Add, L: ir.VarOperand(0), R: ir.ConstOperand(1)},
			}, Terminator: &ir.BrTerm{Target: 1}},
			{ID: 1, Instructions: []ir.Instruction{
				&ir.BinaryInst{Dest: 2, Op: ir.Mul, L: ir.VarOperand(0), R: ir.ConstOperand(2)},
			}, Terminator: &ir.BrTerm{Target: 2}},
			{ID: 2, Instructions: []ir.Instruction{
				&ir.BinaryInst{Dest: 3, Op: ir.Add, L: ir.VarOperand(1), R: ir.VarOperand(2)},
			}, Terminator: &ir.RetTerm{Value: opPtr(ir.VarOperand(3))}},
		},
	}
	intervals := ComputeIntervals(fn)

	// Positions: bb0 = 0 (inst) + 1 (term); bb1 = 2 + 3; bb2 = 4 + 5.
	iv1, _ := intervalFor(intervals, 1)
	if iv1.Start != 0 || iv1.End < 4 {
		t.Errorf("%%1 interval = [%d,%d], want [0,>=4] spanning bb1", iv1.Start, iv1.End)
	}
	iv2, _ := intervalFor(intervals, 2)
	if !(iv1.Start <= iv2.End && iv2.Start <= iv1.End) {
		t.Error("%1 and %2 should interfere (both live at bb2's entry)")
	}
}

func TestLoopLivenessCoversBackEdge(t *testing.T) {
	// The loop counter's interval must cover the whole loop body, including
	// the back edge, not just def-to-last-local-use.
	fn := &ir.Function{
		Name:       "f",
		ReturnType: types.Prim(types.Int),
		Params:     []ir.Param{{Type: types.Prim(types.Int), Var: 0}},
		Entry:      0,
		VarTypes:   map[ir.VarId]*types.Type{},
		Blocks: []*ir.BasicBlock{
			// bb0: %1 = %0 + 0; br bb1
			{ID: 0, Instructions: []ir.Instruction{
				&ir.BinaryInst{Dest: 1, Op: ir.Add, L: ir.VarOperand(0), R: ir.ConstOperand(0)},
			}, Terminator: &ir.BrTerm{Target: 1}},
			// bb1: %2 = phi [bb0: %1] [bb2: %3]; condbr %2, bb2, bb3
			{ID: 1, Instructions: []ir.Instruction{
				&ir.PhiInst{Dest: 2, Preds: []ir.PhiArg{{Pred: 0, Src: 1}, {Pred: 2, Src: 3}}},
			}, Terminator: &ir.CondBrTerm{Cond: ir.VarOperand(2), Then: 2, Else: 3}},
			// bb2: %3 = %2 - 1; br bb1
			{ID: 2, Instructions: []ir.Instruction{
				&ir.BinaryInst{Dest: 3, Op: ir.Sub, L: ir.VarOperand(2), R: ir.ConstOperand(1)},
			}, Terminator: &ir.BrTerm{Target: 1}},
			// bb3: ret %2
			{ID: 3, Terminator: &ir.RetTerm{Value: opPtr(ir.VarOperand(2))}},
		},
	}
	intervals := ComputeIntervals(fn)
	iv2, ok := intervalFor(intervals, 2)
	if !ok {
		t.Fatal("no interval for the phi result")
	}
	// bb2 spans positions 4..5; %2 is live-in there (used by the sub) and
	// live-out of bb1 into bb3.
	if iv2.End < 5 {
		t.Errorf("phi result interval [%d,%d] should extend across the latch block", iv2.Start, iv2.End)
	}
}

func TestCallCrossingDetection(t *testing.T) {
	// %1 is defined before a call and used after it: it crosses the call.
	fn := &ir.Function{
		Name:       "f",
		ReturnType: types.Prim(types.Int),
		Params:     []ir.Param{{Type: types.Prim(types.Int), Var: 0}},
		Entry:      0,
		VarTypes:   map[ir.VarId]*types.Type{},
		Blocks: []*ir.BasicBlock{
			{ID: 0, Instructions: []ir.Instruction{
				&ir.BinaryInst{Dest: 1, Op: ir.Add, L: ir.VarOperand(0), R: ir.ConstOperand(1)},
				&ir.CallInst{Dest: opVarPtr(2), Name: "g", Args: nil},
				&ir.BinaryInst{Dest: 3, Op: ir.Add, L: ir.VarOperand(1), R: ir.VarOperand(2)},
			}, Terminator: &ir.RetTerm{Value: opPtr(ir.VarOperand(3))}},
		},
	}
	intervals := ComputeIntervals(fn)
	crossing := liveAcrossCall(fn, intervals)
	if !crossing[1] {
		t.Error("%1 spans the call and must be flagged call-crossing")
	}
	if crossing[3] {
		t.Error("%3 is defined after the call and does not cross it")
	}
}

func opVarPtr(v ir.VarId) *ir.VarId { return &v }
