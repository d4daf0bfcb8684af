package optimize

import (
	"testing"

	"x64cc/internal/ir"
)

func TestDCERemovesUnusedComputation(t *testing.T) {
	fn := singleBlockFunc([]ir.Instruction{
		&ir.BinaryInst{Dest: 1, Op: ir.Add, L: ir.VarOperand(0), R: ir.ConstOperand(1)},
		&ir.BinaryInst{Dest: 2, Op: ir.Mul, L: ir.VarOperand(0), R: ir.ConstOperand(2)},
	}, &ir.RetTerm{Value: opPtr(ir.VarOperand(2))})
	fn.Params = []ir.Param{{Type: intType(), Var: 0}}

	if !(&DCE{}).Run(fn) {
		t.Fatal("expected DCE to remove the dead add")
	}
	if len(fn.Blocks[0].Instructions) != 1 {
		t.Errorf("dead instruction survived: %v", fn.Blocks[0].Instructions)
	}
}

func TestDCERemovesChains(t *testing.T) {
	// %1 feeds only %2, %2 feeds nothing: both die in one Run.
	fn := singleBlockFunc([]ir.Instruction{
		&ir.BinaryInst{Dest: 1, Op: ir.Add, L: ir.VarOperand(0), R: ir.ConstOperand(1)},
		&ir.BinaryInst{Dest: 2, Op: ir.Mul, L: ir.VarOperand(1), R: ir.ConstOperand(2)},
	}, &ir.RetTerm{Value: opPtr(ir.VarOperand(0))})
	fn.Params = []ir.Param{{Type: intType(), Var: 0}}

	(&DCE{}).Run(fn)
	if len(fn.Blocks[0].Instructions) != 0 {
		t.Errorf("dead chain survived: %v", fn.Blocks[0].Instructions)
	}
}

func TestDCEKeepsSideEffects(t *testing.T) {
	fn := singleBlockFunc([]ir.Instruction{
		&ir.AllocaInst{Dest: 0, Type: intType()},
		&ir.StoreInst{Addr: ir.VarOperand(0), Src: ir.ConstOperand(1), ValueType: intType()},
		&ir.CallInst{Dest: opVarPtr(1), Name: "effectful", Args: nil},
	}, &ir.RetTerm{Value: opPtr(ir.ConstOperand(0))})

	(&DCE{}).Run(fn)
	if len(fn.Blocks[0].Instructions) != 3 {
		t.Errorf("side-effecting instructions must survive even with dead results, got %v",
			fn.Blocks[0].Instructions)
	}
}

func TestDCEIdempotent(t *testing.T) {
	fn := singleBlockFunc([]ir.Instruction{
		&ir.BinaryInst{Dest: 1, Op: ir.Add, L: ir.VarOperand(0), R: ir.ConstOperand(1)},
	}, &ir.RetTerm{Value: opPtr(ir.VarOperand(0))})
	fn.Params = []ir.Param{{Type: intType(), Var: 0}}
	(&DCE{}).Run(fn)
	if (&DCE{}).Run(fn) {
		t.Error("second DCE run should be a no-op")
	}
}

func opVarPtr(v ir.VarId) *ir.VarId { return &v }
