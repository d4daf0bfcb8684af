package optimize

import (
	"testing"

	"x64cc/internal/ir"
)

func runAlgebraicOn(inst *ir.BinaryInst) ir.Instruction {
	fn := singleBlockFunc([]ir.Instruction{inst}, &ir.RetTerm{Value: opPtr(ir.VarOperand(inst.Dest))})
	(&Algebraic{}).Run(fn)
	return fn.Blocks[0].Instructions[0]
}

func TestAlgebraicIdentities(t *testing.T) {
	x := ir.VarOperand(0)
	cases := []struct {
		name string
		in   *ir.BinaryInst
		want ir.Operand // expected Copy source
	}{
		{"x*0", &ir.BinaryInst{Dest: 1, Op: ir.Mul, L: x, R: ir.ConstOperand(0)}, ir.ConstOperand(0)},
		{"0*x", &ir.BinaryInst{Dest: 1, Op: ir.Mul, L: ir.ConstOperand(0), R: x}, ir.ConstOperand(0)},
		{"x*1", &ir.BinaryInst{Dest: 1, Op: ir.Mul, L: x, R: ir.ConstOperand(1)}, x},
		{"1*x", &ir.BinaryInst{Dest: 1, Op: ir.Mul, L: ir.ConstOperand(1), R: x}, x},
		{"x+0", &ir.BinaryInst{Dest: 1, Op: ir.Add, L: x, R: ir.ConstOperand(0)}, x},
		{"0+x", &ir.BinaryInst{Dest: 1, Op: ir.Add, L: ir.ConstOperand(0), R: x}, x},
		{"x-0", &ir.BinaryInst{Dest: 1, Op: ir.Sub, L: x, R: ir.ConstOperand(0)}, x},
		{"x-x", &ir.BinaryInst{Dest: 1, Op: ir.Sub, L: x, R: x}, ir.ConstOperand(0)},
		{"x/1", &ir.BinaryInst{Dest: 1, Op: ir.Div, L: x, R: ir.ConstOperand(1)}, x},
		{"x/x", &ir.BinaryInst{Dest: 1, Op: ir.Div, L: x, R: x}, ir.ConstOperand(1)},
		{"x&0", &ir.BinaryInst{Dest: 1, Op: ir.And, L: x, R: ir.ConstOperand(0)}, ir.ConstOperand(0)},
		{"x&x", &ir.BinaryInst{Dest: 1, Op: ir.And, L: x, R: x}, x},
		{"x|0", &ir.BinaryInst{Dest: 1, Op: ir.Or, L: x, R: ir.ConstOperand(0)}, x},
		{"x|x", &ir.BinaryInst{Dest: 1, Op: ir.Or, L: x, R: x}, x},
		{"x^0", &ir.BinaryInst{Dest: 1, Op: ir.Xor, L: x, R: ir.ConstOperand(0)}, x},
		{"x^x", &ir.BinaryInst{Dest: 1, Op: ir.Xor, L: x, R: x}, ir.ConstOperand(0)},
		{"x<<0", &ir.BinaryInst{Dest: 1, Op: ir.Shl, L: x, R: ir.ConstOperand(0)}, x},
		{"x>>0", &ir.BinaryInst{Dest: 1, Op: ir.Shr, L: x, R: ir.ConstOperand(0)}, x},
		{"x%1", &ir.BinaryInst{Dest: 1, Op: ir.Mod, L: x, R: ir.ConstOperand(1)}, ir.ConstOperand(0)},
		{"x&-1", &ir.BinaryInst{Dest: 1, Op: ir.And, L: x, R: ir.ConstOperand(-1)}, x},
		{"x|-1", &ir.BinaryInst{Dest: 1, Op: ir.Or, L: x, R: ir.ConstOperand(-1)}, ir.ConstOperand(-1)},
		{"x==x", &ir.BinaryInst{Dest: 1, Op: ir.CmpEq, L: x, R: x}, ir.ConstOperand(1)},
		{"x!=x", &ir.BinaryInst{Dest: 1, Op: ir.CmpNe, L: x, R: x}, ir.ConstOperand(0)},
		{"x<x", &ir.BinaryInst{Dest: 1, Op: ir.CmpLt, L: x, R: x}, ir.ConstOperand(0)},
		{"x<=x", &ir.BinaryInst{Dest: 1, Op: ir.CmpLe, L: x, R: x}, ir.ConstOperand(1)},
	}
	for _, c := range cases {
		got := runAlgebraicOn(c.in)
		cp, ok := got.(*ir.CopyInst)
		if !ok {
			t.Errorf("%s: expected Copy, got %s", c.name, got)
			continue
		}
		if cp.Src != c.want {
			t.Errorf("%s: copy source = %v, want %v", c.name, cp.Src, c.want)
		}
	}
}

func TestAlgebraicMulMinusOneBecomesNeg(t *testing.T) {
	got := runAlgebraicOn(&ir.BinaryInst{Dest: 1, Op: ir.Mul, L: ir.VarOperand(0), R: ir.ConstOperand(-1)})
	un, ok := got.(*ir.UnaryInst)
	if !ok || un.Op != ir.Neg {
		t.Errorf("x*-1 should become neg, got %s", got)
	}
}

func TestAlgebraicReassociatesConstantChain(t *testing.T) {
	// %1 = %0 + 3; %2 = %1 + 4  -->  %2 = %0 + 7
	x := ir.VarOperand(0)
	fn := singleBlockFunc([]ir.Instruction{
		&ir.BinaryInst{Dest: 1, Op: ir.Add, L: x, R: ir.ConstOperand(3)},
		&ir.BinaryInst{Dest: 2, Op: ir.Add, L: ir.VarOperand(1), R: ir.ConstOperand(4)},
	}, &ir.RetTerm{Value: opPtr(ir.VarOperand(2))})
	if !(&Algebraic{}).Run(fn) {
		t.Fatal("expected reassociation")
	}
	got := fn.Blocks[0].Instructions[1].(*ir.BinaryInst)
	if got.L != x || got.Op != ir.Add || got.R.IntVal != 7 {
		t.Errorf("(x+3)+4 = %s, want x + 7", got)
	}
}

func TestAlgebraicReassociatesMixedSigns(t *testing.T) {
	// %1 = %0 - 10; %2 = %1 + 4  -->  %2 = %0 - 6
	x := ir.VarOperand(0)
	fn := singleBlockFunc([]ir.Instruction{
		&ir.BinaryInst{Dest: 1, Op: ir.Sub, L: x, R: ir.ConstOperand(10)},
		&ir.BinaryInst{Dest: 2, Op: ir.Add, L: ir.VarOperand(1), R: ir.ConstOperand(4)},
	}, &ir.RetTerm{Value: opPtr(ir.VarOperand(2))})
	(&Algebraic{}).Run(fn)
	got := fn.Blocks[0].Instructions[1].(*ir.BinaryInst)
	if got.L != x || got.Op != ir.Sub || got.R.IntVal != 6 {
		t.Errorf("(x-10)+4 = %s, want x - 6", got)
	}
}

func TestAlgebraicCancelsDoubleNegation(t *testing.T) {
	x := ir.VarOperand(0)
	fn := singleBlockFunc([]ir.Instruction{
		&ir.UnaryInst{Dest: 1, Op: ir.Neg, Src: x},
		&ir.UnaryInst{Dest: 2, Op: ir.Neg, Src: ir.VarOperand(1)},
	}, &ir.RetTerm{Value: opPtr(ir.VarOperand(2))})
	if !(&Algebraic{}).Run(fn) {
		t.Fatal("expected -(-x) to simplify")
	}
	cp, ok := fn.Blocks[0].Instructions[1].(*ir.CopyInst)
	if !ok || cp.Src != x {
		t.Errorf("-(-x) = %s, want copy of x", fn.Blocks[0].Instructions[1])
	}
}

func TestAlgebraicLeavesRealWorkAlone(t *testing.T) {
	x, y := ir.VarOperand(0), ir.VarOperand(1)
	fn := singleBlockFunc([]ir.Instruction{
		&ir.BinaryInst{Dest: 2, Op: ir.Add, L: x, R: y},
	}, &ir.RetTerm{Value: opPtr(ir.VarOperand(2))})
	if (&Algebraic{}).Run(fn) {
		t.Error("x+y has no identity to apply")
	}
}
