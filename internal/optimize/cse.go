package optimize

import (
	"fmt"

	"x64cc/internal/ir"
)

// CSE (common subexpression elimination) finds pure Binary/Unary
// instructions computed more than once with textually identical operands
// and rewrites the later definition's uses to the first one's result.
type CSE struct{}

func (*CSE) Name() string        { return "cse" }
func (*CSE) Description() string { return "reuses the first computation of a repeated expression" }

func (*CSE) Run(fn *ir.Function) bool {
	exprMap := make(map[string]ir.VarId)
	replace := make(map[ir.VarId]ir.VarId)

	resolve := func(v ir.VarId) ir.VarId {
		seen := make(map[ir.VarId]bool)
		for {
			r, ok := replace[v]
			if !ok || seen[v] {
				return v
			}
			seen[v] = true
			v = r
		}
	}
	keyOperand := func(op ir.Operand) string {
		switch {
		case op.IsVar():
			return fmt.Sprintf("v%d", resolve(op.Var))
		case op.Kind == ir.OpConstant:
			return fmt.Sprintf("c%d", op.IntVal)
		case op.Kind == ir.OpFloatConstant:
			return fmt.Sprintf("f%v", op.FloatVal)
		default:
			return fmt.Sprintf("g%s", op.Global)
		}
	}

	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			switch v := inst.(type) {
			case *ir.BinaryInst:
				key := fmt.Sprintf("bin:%d:%s:%s", v.Op, keyOperand(v.L), keyOperand(v.R))
				if existing, ok := exprMap[key]; ok {
					replace[v.Dest] = existing
				} else {
					exprMap[key] = v.Dest
				}
			case *ir.UnaryInst:
				key := fmt.Sprintf("un:%d:%s", v.Op, keyOperand(v.Src))
				if existing, ok := exprMap[key]; ok {
					replace[v.Dest] = existing
				} else {
					exprMap[key] = v.Dest
				}
			case *ir.GEPInst:
				key := fmt.Sprintf("gep:%s:%s:%s", v.ElementType, keyOperand(v.Base), keyOperand(v.Index))
				if existing, ok := exprMap[key]; ok {
					replace[v.Dest] = existing
				} else {
					exprMap[key] = v.Dest
				}
			}
		}
	}
	if len(replace) == 0 {
		return false
	}

	ir.RewriteOperands(fn, func(op *ir.Operand) {
		if op.IsVar() {
			op.Var = resolve(op.Var)
		}
	})
	for _, b := range fn.Blocks {
		for _, ph := range b.Phis() {
			for i, a := range ph.Preds {
				ph.Preds[i].Src = resolve(a.Src)
			}
		}
	}
	return true
}
