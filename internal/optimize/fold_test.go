package optimize

import (
	"testing"

	"x64cc/internal/ir"
	"x64cc/internal/types"
)

func singleBlockFunc(instrs []ir.Instruction, term ir.Terminator) *ir.Function {
	return &ir.Function{
		Name:       "f",
		ReturnType: intType(),
		Entry:      0,
		VarTypes:   map[ir.VarId]*types.Type{},
		Blocks:     []*ir.BasicBlock{{ID: 0, Instructions: instrs, Terminator: term}},
	}
}

func TestFoldChainedArithmetic(t *testing.T) {
	// %0 = 3 * 4; %1 = 2 + %0; ret %1  -->  ret 14
	fn := singleBlockFunc([]ir.Instruction{
		&ir.BinaryInst{Dest: 0, Op: ir.Mul, L: ir.ConstOperand(3), R: ir.ConstOperand(4)},
		&ir.BinaryInst{Dest: 1, Op: ir.Add, L: ir.ConstOperand(2), R: ir.VarOperand(0)},
	}, &ir.RetTerm{Value: opPtr(ir.VarOperand(1))})

	if !(&ConstantFold{}).Run(fn) {
		t.Fatal("expected folding to report a change")
	}
	ret := fn.Blocks[0].Terminator.(*ir.RetTerm)
	if ret.Value.Kind != ir.OpConstant || ret.Value.IntVal != 14 {
		t.Errorf("ret value = %v, want constant 14", *ret.Value)
	}
}

func TestFoldComparisonToBool(t *testing.T) {
	fn := singleBlockFunc([]ir.Instruction{
		&ir.BinaryInst{Dest: 0, Op: ir.CmpLt, L: ir.ConstOperand(3), R: ir.ConstOperand(7)},
	}, &ir.RetTerm{Value: opPtr(ir.VarOperand(0))})
	(&ConstantFold{}).Run(fn)
	ret := fn.Blocks[0].Terminator.(*ir.RetTerm)
	if ret.Value.Kind != ir.OpConstant || ret.Value.IntVal != 1 {
		t.Errorf("3 < 7 should fold to 1, got %v", *ret.Value)
	}
}

func TestFoldGuardsDivisionByZero(t *testing.T) {
	fn := singleBlockFunc([]ir.Instruction{
		&ir.BinaryInst{Dest: 0, Op: ir.Div, L: ir.ConstOperand(1), R: ir.ConstOperand(0)},
	}, &ir.RetTerm{Value: opPtr(ir.VarOperand(0))})
	(&ConstantFold{}).Run(fn)
	if _, ok := fn.Blocks[0].Instructions[0].(*ir.BinaryInst); !ok {
		t.Error("1/0 must not fold; the division stays for runtime to trap")
	}
}

func TestFoldCondBrOnConstant(t *testing.T) {
	fn := &ir.Function{
		Name:       "f",
		ReturnType: intType(),
		Entry:      0,
		VarTypes:   map[ir.VarId]*types.Type{},
		Blocks: []*ir.BasicBlock{
			{ID: 0, Instructions: []ir.Instruction{
				&ir.CopyInst{Dest: 0, Src: ir.ConstOperand(1)},
			}, Terminator: &ir.CondBrTerm{Cond: ir.VarOperand(0), Then: 1, Else: 2}},
			{ID: 1, Terminator: &ir.RetTerm{Value: opPtr(ir.ConstOperand(10))}},
			{ID: 2, Terminator: &ir.RetTerm{Value: opPtr(ir.ConstOperand(20))}},
		},
	}
	(&ConstantFold{}).Run(fn)
	br, ok := fn.Blocks[0].Terminator.(*ir.BrTerm)
	if !ok {
		t.Fatalf("condbr on constant-1 should become br, got %s", fn.Blocks[0].Terminator)
	}
	if br.Target != 1 {
		t.Errorf("nonzero condition must take the then edge, got bb%d", br.Target)
	}
}

func TestFoldUnaryOperators(t *testing.T) {
	cases := []struct {
		op   ir.UnaryOp
		src  int64
		want int64
	}{
		{ir.Neg, 5, -5},
		{ir.Not, 0, 1},
		{ir.Not, 3, 0},
		{ir.BitNot, 0, -1},
	}
	for _, c := range cases {
		fn := singleBlockFunc([]ir.Instruction{
			&ir.UnaryInst{Dest: 0, Op: c.op, Src: ir.ConstOperand(c.src)},
		}, &ir.RetTerm{Value: opPtr(ir.VarOperand(0))})
		(&ConstantFold{}).Run(fn)
		ret := fn.Blocks[0].Terminator.(*ir.RetTerm)
		if ret.Value.Kind != ir.OpConstant || ret.Value.IntVal != c.want {
			t.Errorf("%s%d folded to %v, want %d", c.op, c.src, *ret.Value, c.want)
		}
	}
}

func TestFoldFloatComparisonYieldsInt(t *testing.T) {
	fn := singleBlockFunc([]ir.Instruction{
		&ir.FloatBinaryInst{Dest: 0, Op: ir.CmpGt, L: ir.FloatConstOperand(2.5), R: ir.FloatConstOperand(1.5)},
	}, &ir.RetTerm{Value: opPtr(ir.VarOperand(0))})
	(&ConstantFold{}).Run(fn)
	ret := fn.Blocks[0].Terminator.(*ir.RetTerm)
	if ret.Value.Kind != ir.OpConstant || ret.Value.IntVal != 1 {
		t.Errorf("2.5 > 1.5 should fold to int 1, got %v", *ret.Value)
	}
}
