package codegen

import (
	"strings"
	"testing"

	"x64cc/internal/abi"
	"x64cc/internal/ir"
	"x64cc/internal/types"
)

func buildAddFunc() *ir.Function {
	a, b, sum := ir.VarId(0), ir.VarId(1), ir.VarId(2)
	retVal := ir.VarOperand(sum)
	entry := &ir.BasicBlock{
		ID: 0,
		Instructions: []ir.Instruction{
			&ir.BinaryInst{Dest: sum, Op: ir.Add, L: ir.VarOperand(a), R: ir.VarOperand(b)},
		},
		Terminator: &ir.RetTerm{Value: &retVal},
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

func render(instrs []Instr) string {
	var sb strings.Builder
	for _, in := range instrs {
		sb.WriteString(in.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

func TestGenAddFunctionHasPrologueAndEpilogue(t *testing.T) {
	fn := buildAddFunc()
	reg := types.NewRegistry()
	instrs := Gen(fn, abi.For(abi.Linux), reg, nil)
	text := render(instrs)

	if !strings.Contains(text, "add:") {
		t.Error("missing function label")
	}
	if !strings.Contains(text, "push rbp") {
		t.Error("missing prologue push rbp")
	}
	if !strings.Contains(text, "pop rbp") || !strings.Contains(text, "ret") {
		t.Error("missing epilogue pop rbp/ret")
	}
}

func TestGenAddFunctionMarshalsParams(t *testing.T) {
	fn := buildAddFunc()
	reg := types.NewRegistry()
	instrs := Gen(fn, abi.For(abi.Linux), reg, nil)
	text := render(instrs)

	// System V: first two int params arrive in rdi, rsi.
	if !strings.Contains(text, "rdi") || !strings.Contains(text, "rsi") {
		t.Errorf("expected param marshalling to reference rdi/rsi, got:\n%s", text)
	}
}

func TestGenCondBrResolvesBothEdges(t *testing.T) {
	a, phi := ir.VarId(0), ir.VarId(1)
	cond := ir.VarId(2)

	entry := &ir.BasicBlock{
		ID: 0,
		Instructions: []ir.Instruction{
			&ir.BinaryInst{Dest: cond, Op: ir.CmpGt, L: ir.VarOperand(a), R: ir.ConstOperand(0)},
		},
		Terminator: &ir.CondBrTerm{Cond: ir.VarOperand(cond), Then: 1, Else: 2},
	}
	thenBlk := &ir.BasicBlock{
		ID:         1,
		Terminator: &ir.BrTerm{Target: 3},
	}
	elseBlk := &ir.BasicBlock{
		ID:         2,
		Terminator: &ir.BrTerm{Target: 3},
	}
	retVal := ir.VarOperand(phi)
	joinBlk := &ir.BasicBlock{
		ID: 3,
		Instructions: []ir.Instruction{
			&ir.PhiInst{Dest: phi, Preds: []ir.PhiArg{{Pred: 1, Src: a}, {Pred: 2, Src: a}}},
		},
		Terminator: &ir.RetTerm{Value: &retVal},
	}

	fn := &ir.Function{
		Name:       "branch",
		ReturnType: types.Prim(types.Int),
		Params:     []ir.Param{{Type: types.Prim(types.Int), Var: a}},
		Blocks:     []*ir.BasicBlock{entry, thenBlk, elseBlk, joinBlk},
		Entry:      0,
		VarTypes: map[ir.VarId]*types.Type{
			a: types.Prim(types.Int), phi: types.Prim(types.Int), cond: types.Prim(types.Int),
		},
	}

	reg := types.NewRegistry()
	instrs := Gen(fn, abi.For(abi.Linux), reg, nil)
	text := render(instrs)
	if !strings.Contains(text, "jmp") {
		t.Errorf("expected at least one jmp in branch lowering, got:\n%s", text)
	}
}
