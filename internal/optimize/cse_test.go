package optimize

import (
	"testing"

	"x64cc/internal/ir"
)

func TestCSEReusesRepeatedExpression(t *testing.T) {
	// %2 = %0 + %1; %3 = %0 + %1; %4 = %2 * %3; ret %4
	// After CSE, %4 multiplies %2 by itself.
	fn := singleBlockFunc([]ir.Instruction{
		&ir.BinaryInst{Dest: 2, Op: ir.Add, L: ir.VarOperand(0), R: ir.VarOperand(1)},
		&ir.BinaryInst{Dest: 3, Op: ir.Add, L: ir.VarOperand(0), R: ir.VarOperand(1)},
		&ir.BinaryInst{Dest: 4, Op: ir.Mul, L: ir.VarOperand(2), R: ir.VarOperand(3)},
	}, &ir.RetTerm{Value: opPtr(ir.VarOperand(4))})
	fn.Params = []ir.Param{{Type: intType(), Var: 0}, {Type: intType(), Var: 1}}

	if !(&CSE{}).Run(fn) {
		t.Fatal("expected CSE to report a change")
	}
	mul := fn.Blocks[0].Instructions[2].(*ir.BinaryInst)
	if mul.R.Var != 2 {
		t.Errorf("second use should fold to the first computation, got %%%d", mul.R.Var)
	}
}

func TestCSEDistinguishesOperators(t *testing.T) {
	fn := singleBlockFunc([]ir.Instruction{
		&ir.BinaryInst{Dest: 2, Op: ir.Add, L: ir.VarOperand(0), R: ir.VarOperand(1)},
		&ir.BinaryInst{Dest: 3, Op: ir.Sub, L: ir.VarOperand(0), R: ir.VarOperand(1)},
		&ir.BinaryInst{Dest: 4, Op: ir.Mul, L: ir.VarOperand(2), R: ir.VarOperand(3)},
	}, &ir.RetTerm{Value: opPtr(ir.VarOperand(4))})
	fn.Params = []ir.Param{{Type: intType(), Var: 0}, {Type: intType(), Var: 1}}
	if (&CSE{}).Run(fn) {
		t.Error("a+b and a-b are different expressions")
	}
}

func TestCSEDistinguishesOperands(t *testing.T) {
	fn := singleBlockFunc([]ir.Instruction{
		&ir.BinaryInst{Dest: 2, Op: ir.Add, L: ir.VarOperand(0), R: ir.ConstOperand(1)},
		&ir.BinaryInst{Dest: 3, Op: ir.Add, L: ir.VarOperand(0), R: ir.ConstOperand(2)},
	}, &ir.RetTerm{Value: opPtr(ir.VarOperand(3))})
	fn.Params = []ir.Param{{Type: intType(), Var: 0}}
	if (&CSE{}).Run(fn) {
		t.Error("a+1 and a+2 are different expressions")
	}
}

func TestCSEFoldsRepeatedGEP(t *testing.T) {
	fn := singleBlockFunc([]ir.Instruction{
		&ir.AllocaInst{Dest: 0, Type: intType()},
		&ir.GEPInst{Dest: 1, Base: ir.VarOperand(0), Index: ir.ConstOperand(2), ElementType: intType()},
		&ir.GEPInst{Dest: 2, Base: ir.VarOperand(0), Index: ir.ConstOperand(2), ElementType: intType()},
		&ir.LoadInst{Dest: 3, Addr: ir.VarOperand(2), ValueType: intType()},
	}, &ir.RetTerm{Value: opPtr(ir.VarOperand(3))})
	(&CSE{}).Run(fn)
	load := fn.Blocks[0].Instructions[3].(*ir.LoadInst)
	if load.Addr.Var != 1 {
		t.Errorf("repeated GEP should reuse the first address, got %%%d", load.Addr.Var)
	}
}

func TestCSEHandlesTransitiveMatches(t *testing.T) {
	// %2 = %0+%1; %3 = %0+%1; %4 = %2*5; %5 = %3*5
	// %3 keys to %2, so %5's expression resolves to %2*5 and matches %4.
	fn := singleBlockFunc([]ir.Instruction{
		&ir.BinaryInst{Dest: 2, Op: ir.Add, L: ir.VarOperand(0), R: ir.VarOperand(1)},
		&ir.BinaryInst{Dest: 3, Op: ir.Add, L: ir.VarOperand(0), R: ir.VarOperand(1)},
		&ir.BinaryInst{Dest: 4, Op: ir.Mul, L: ir.VarOperand(2), R: ir.ConstOperand(5)},
		&ir.BinaryInst{Dest: 5, Op: ir.Mul, L: ir.VarOperand(3), R: ir.ConstOperand(5)},
	}, &ir.RetTerm{Value: opPtr(ir.VarOperand(5))})
	fn.Params = []ir.Param{{Type: intType(), Var: 0}, {Type: intType(), Var: 1}}
	(&CSE{}).Run(fn)
	ret := fn.Blocks[0].Terminator.(*ir.RetTerm)
	if ret.Value.Var != 4 {
		t.Errorf("transitive CSE should fold ret to %%4, got %%%d", ret.Value.Var)
	}
}
