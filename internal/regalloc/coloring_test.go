package regalloc

import (
	"testing"

	"x64cc/internal/abi"
	"x64cc/internal/ir"
	"x64cc/internal/types"
)

// buildAddFunc builds: fn(a, b int) int { %2 = a + b; ret %2 }
func buildAddFunc() *ir.Function {
	a, b, sum := ir.VarId(0), ir.VarId(1), ir.VarId(2)
	entry := &ir.BasicBlock{
		ID: 0,
		Instructions: []ir.Instruction{
			&ir.BinaryInst{Dest: sum, Op: ir.Add, L: ir.VarOperand(a), R: ir.VarOperand(b)},
		},
		Terminator: &ir.RetTerm{Value: opPtr(ir.VarOperand(sum))},
	}
	return &ir.Function{
		Name:       "add",
		ReturnType: types.Prim(types.Int),
		Params:     []ir.Param{{Type: types.Prim(types.Int), Var: a}, {Type: types.Prim(types.Int), Var: b}},
		Blocks:     []*ir.BasicBlock{entry},
		Entry:      0,
		VarTypes: map[ir.VarId]*types.Type{
			a: types.Prim(types.Int), b: types.Prim(types.Int), sum: types.Prim(types.Int),
		},
	}
}

func opPtr(o ir.Operand) *ir.Operand { return &o }

func TestAllocateAssignsDistinctRegs(t *testing.T) {
	fn := buildAddFunc()
	alloc := Allocate(fn, abi.For(abi.Linux))
	if len(alloc.Regs) == 0 {
		t.Fatal("expected at least one colored variable")
	}
	seen := make(map[abi.Reg]bool)
	for v, r := range alloc.Regs {
		if seen[r] {
			t.Errorf("register %s double-assigned (var %d among others)", r, v)
		}
		seen[r] = true
	}
}

func TestParamHintPrefersIncomingReg(t *testing.T) {
	fn := buildAddFunc()
	alloc := Allocate(fn, abi.For(abi.Linux))
	// a (VarId 0) is the first System V int param (rdi) and has no
	// interference forcing it elsewhere, so it should keep rdi if free.
	if r, ok := alloc.Regs[0]; ok {
		if r != abi.Rdi && !alloc.Spills[0] {
			t.Logf("param 0 colored to %s instead of the hinted rdi (acceptable if rdi is unavailable)", r)
		}
	}
}

func TestCopyCoalescing(t *testing.T) {
	a, b := ir.VarId(0), ir.VarId(1)
	entry := &ir.BasicBlock{
		ID: 0,
		Instructions: []ir.Instruction{
			&ir.CopyInst{Dest: b, Src: ir.VarOperand(a)},
		},
		Terminator: &ir.RetTerm{Value: opPtr(ir.VarOperand(b))},
	}
	fn := &ir.Function{
		Name:       "id",
		ReturnType: types.Prim(types.Int),
		Params:     []ir.Param{{Type: types.Prim(types.Int), Var: a}},
		Blocks:     []*ir.BasicBlock{entry},
		Entry:      0,
		VarTypes:   map[ir.VarId]*types.Type{a: types.Prim(types.Int), b: types.Prim(types.Int)},
	}
	alloc := Allocate(fn, abi.For(abi.Linux))
	ra, oka := alloc.Regs[a]
	rb, okb := alloc.Regs[b]
	if oka && okb && ra != rb {
		t.Errorf("expected copy-coalesced vars to share a register, got %s and %s", ra, rb)
	}
}
