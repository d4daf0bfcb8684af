package optimize

import (
	"testing"

	"x64cc/internal/ir"
	"x64cc/internal/types"
)

func TestCFGSimplifyMergesLinearChain(t *testing.T) {
	// bb0 -> bb1 -> bb2, each a unique pred/succ pair: all collapse into bb0.
	fn := &ir.Function{
		Name:       "f",
		ReturnType: intType(),
		Entry:      0,
		VarTypes:   map[ir.VarId]*types.Type{},
		Blocks: []*ir.BasicBlock{
			{ID: 0, Instructions: []ir.Instruction{
				&ir.CopyInst{Dest: 0, Src: ir.ConstOperand(1)},
			}, Terminator: &ir.BrTerm{Target: 1}},
			{ID: 1, Instructions: []ir.Instruction{
				&ir.CopyInst{Dest: 1, Src: ir.ConstOperand(2)},
			}, Terminator: &ir.BrTerm{Target: 2}},
			{ID: 2, Terminator: &ir.RetTerm{Value: opPtr(ir.VarOperand(1))}},
		},
	}
	if !(&CFGSimplify{}).Run(fn) {
		t.Fatal("expected the chain to merge")
	}
	if len(fn.Blocks) != 1 {
		t.Fatalf("expected one block after merging, got %d", len(fn.Blocks))
	}
	if _, ok := fn.Blocks[0].Terminator.(*ir.RetTerm); !ok {
		t.Errorf("merged block should end in ret, got %s", fn.Blocks[0].Terminator)
	}
	if err := ir.VerifySSA(fn); err != nil {
		t.Fatalf("SSA broken after merge: %v", err)
	}
}

func TestCFGSimplifyKeepsLabelTargets(t *testing.T) {
	fn := &ir.Function{
		Name:       "f",
		ReturnType: intType(),
		Entry:      0,
		VarTypes:   map[ir.VarId]*types.Type{},
		Blocks: []*ir.BasicBlock{
			{ID: 0, Terminator: &ir.BrTerm{Target: 1}},
			{ID: 1, IsLabelTarget: true, Terminator: &ir.RetTerm{Value: opPtr(ir.ConstOperand(0))}},
		},
	}
	(&CFGSimplify{}).Run(fn)
	if len(fn.Blocks) != 2 {
		t.Errorf("goto-target block must survive merging, got %d blocks", len(fn.Blocks))
	}
}

func TestCFGSimplifyRemovesUnreachable(t *testing.T) {
	fn := &ir.Function{
		Name:       "f",
		ReturnType: intType(),
		Entry:      0,
		VarTypes:   map[ir.VarId]*types.Type{},
		Blocks: []*ir.BasicBlock{
			{ID: 0, Terminator: &ir.RetTerm{Value: opPtr(ir.ConstOperand(0))}},
			{ID: 1, Terminator: &ir.UnreachableTerm{}},
			{ID: 2, Terminator: &ir.BrTerm{Target: 1}},
		},
	}
	if !(&CFGSimplify{}).Run(fn) {
		t.Fatal("expected unreachable blocks removed")
	}
	if len(fn.Blocks) != 1 || fn.Blocks[0].ID != 0 {
		t.Errorf("only the entry should remain, got %v blocks", len(fn.Blocks))
	}
}

func TestCFGSimplifyDoesNotMergeSharedSuccessor(t *testing.T) {
	// bb1 and bb2 both branch to bb3: bb3 has two preds and cannot merge.
	fn := &ir.Function{
		Name:       "f",
		ReturnType: intType(),
		Params:     []ir.Param{{Type: intType(), Var: 0}},
		Entry:      0,
		VarTypes:   map[ir.VarId]*types.Type{},
		Blocks: []*ir.BasicBlock{
			{ID: 0, Terminator: &ir.CondBrTerm{Cond: ir.VarOperand(0), Then: 1, Else: 2}},
			{ID: 1, Terminator: &ir.BrTerm{Target: 3}},
			{ID: 2, Terminator: &ir.BrTerm{Target: 3}},
			{ID: 3, Terminator: &ir.RetTerm{Value: opPtr(ir.VarOperand(0))}},
		},
	}
	(&CFGSimplify{}).Run(fn)
	if fn.BlockByID(3) == nil {
		t.Error("two-predecessor block must not be merged away")
	}
	if err := ir.VerifySSA(fn); err != nil {
		t.Fatalf("SSA broken: %v", err)
	}
}

func TestCFGSimplifyRetargetsPhiPreds(t *testing.T) {
	// bb1 merges into bb0; the phi in bb3 naming bb1 as a predecessor must
	// be rewritten to name bb0.
	fn := &ir.Function{
		Name:       "f",
		ReturnType: intType(),
		Params:     []ir.Param{{Type: intType(), Var: 0}},
		Entry:      0,
		VarTypes:   map[ir.VarId]*types.Type{},
		Blocks: []*ir.BasicBlock{
			{ID: 0, Terminator: &ir.BrTerm{Target: 1}},
			{ID: 1, Instructions: []ir.Instruction{
				&ir.CopyInst{Dest: 1, Src: ir.ConstOperand(1)},
			}, Terminator: &ir.CondBrTerm{Cond: ir.VarOperand(0), Then: 2, Else: 3}},
			{ID: 2, Instructions: []ir.Instruction{
				&ir.CopyInst{Dest: 2, Src: ir.ConstOperand(2)},
			}, Terminator: &ir.BrTerm{Target: 3}},
			{ID: 3, Instructions: []ir.Instruction{
				&ir.PhiInst{Dest: 3, Preds: []ir.PhiArg{{Pred: 1, Src: 1}, {Pred: 2, Src: 2}}},
			}, Terminator: &ir.RetTerm{Value: opPtr(ir.VarOperand(3))}},
		},
	}
	(&CFGSimplify{}).Run(fn)
	phi := fn.BlockByID(3).Instructions[0].(*ir.PhiInst)
	for _, a := range phi.Preds {
		if a.Pred == 1 {
			t.Error("phi predecessor should be retargeted to the merged block")
		}
	}
	if err := ir.VerifySSA(fn); err != nil {
		t.Fatalf("SSA broken after retargeting: %v", err)
	}
}
