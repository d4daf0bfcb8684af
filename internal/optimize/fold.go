package optimize

import "x64cc/internal/ir"

// ConstantFold propagates known-constant values forward through a block and
// replaces any instruction whose operands are all constant with a Copy of
// the computed result, including folding CondBrTerm down to an
// unconditional Br when the condition itself resolves to a constant.
type ConstantFold struct{}

func (*ConstantFold) Name() string        { return "constant-fold" }
func (*ConstantFold) Description() string { return "evaluates constant expressions at compile time" }

func (*ConstantFold) Run(fn *ir.Function) bool {
	changed := false
	consts := make(map[ir.VarId]ir.Operand)

	resolve := func(op ir.Operand) ir.Operand {
		if op.IsVar() {
			if c, ok := consts[op.Var]; ok {
				return c
			}
		}
		return op
	}

	for _, b := range fn.Blocks {
		out := make([]ir.Instruction, 0, len(b.Instructions))
		for _, inst := range b.Instructions {
			switch v := inst.(type) {
			case *ir.BinaryInst:
				l, r := resolve(v.L), resolve(v.R)
				if l.Kind == ir.OpConstant && r.Kind == ir.OpConstant {
					if val, ok := foldBinary(v.Op, l.IntVal, r.IntVal); ok {
						consts[v.Dest] = ir.ConstOperand(val)
						out = append(out, &ir.CopyInst{Dest: v.Dest, Src: ir.ConstOperand(val)})
						changed = true
						continue
					}
				}
				out = append(out, &ir.BinaryInst{Dest: v.Dest, Op: v.Op, L: l, R: r})
			case *ir.FloatBinaryInst:
				l, r := resolve(v.L), resolve(v.R)
				if l.Kind == ir.OpFloatConstant && r.Kind == ir.OpFloatConstant {
					if val, ok := foldFloatBinary(v.Op, l.FloatVal, r.FloatVal); ok {
						// Comparisons yield an int (0/1), everything else a float.
						result := ir.FloatConstOperand(val)
						if v.Op.IsComparison() {
							result = ir.ConstOperand(int64(val))
						}
						consts[v.Dest] = result
						out = append(out, &ir.CopyInst{Dest: v.Dest, Src: result})
						changed = true
						continue
					}
				}
				out = append(out, &ir.FloatBinaryInst{Dest: v.Dest, Op: v.Op, L: l, R: r})
			case *ir.UnaryInst:
				s := resolve(v.Src)
				if s.Kind == ir.OpConstant {
					if val, ok := foldUnary(v.Op, s.IntVal); ok {
						consts[v.Dest] = ir.ConstOperand(val)
						out = append(out, &ir.CopyInst{Dest: v.Dest, Src: ir.ConstOperand(val)})
						changed = true
						continue
					}
				}
				out = append(out, &ir.UnaryInst{Dest: v.Dest, Op: v.Op, Src: s})
			case *ir.CopyInst:
				s := resolve(v.Src)
				if s.IsConstant() {
					consts[v.Dest] = s
				}
				out = append(out, &ir.CopyInst{Dest: v.Dest, Src: s})
			case *ir.CallInst:
				args := make([]ir.Operand, len(v.Args))
				for i, a := range v.Args {
					args[i] = resolve(a)
				}
				out = append(out, &ir.CallInst{Dest: v.Dest, Name: v.Name, Args: args})
			case *ir.IndirectCallInst:
				args := make([]ir.Operand, len(v.Args))
				for i, a := range v.Args {
					args[i] = resolve(a)
				}
				out = append(out, &ir.IndirectCallInst{Dest: v.Dest, FuncPtr: resolve(v.FuncPtr), Args: args})
			case *ir.StoreInst:
				out = append(out, &ir.StoreInst{Addr: resolve(v.Addr), Src: resolve(v.Src), ValueType: v.ValueType})
			default:
				out = append(out, inst)
			}
		}
		b.Instructions = out

		switch t := b.Terminator.(type) {
		case *ir.CondBrTerm:
			c := resolve(t.Cond)
			if c.Kind == ir.OpConstant {
				target := t.Else
				if c.IntVal != 0 {
					target = t.Then
				}
				b.Terminator = &ir.BrTerm{Target: target}
				changed = true
			} else {
				t.Cond = c
			}
		case *ir.RetTerm:
			if t.Value != nil {
				v := resolve(*t.Value)
				t.Value = &v
			}
		}
	}
	return changed
}

func foldBinary(op ir.BinaryOp, l, r int64) (int64, bool) {
	switch op {
	case ir.Add:
		return l + r, true
	case ir.Sub:
		return l - r, true
	case ir.Mul:
		return l * r, true
	case ir.Div:
		if r == 0 {
			return 0, false
		}
		return l / r, true
	case ir.Mod:
		if r == 0 {
			return 0, false
		}
		return l % r, true
	case ir.And:
		return l & r, true
	case ir.Or:
		return l | r, true
	case ir.Xor:
		return l ^ r, true
	case ir.Shl:
		return l << uint(r), true
	case ir.Shr:
		return l >> uint(r), true
	case ir.CmpEq:
		return boolInt(l == r), true
	case ir.CmpNe:
		return boolInt(l != r), true
	case ir.CmpLt:
		return boolInt(l < r), true
	case ir.CmpLe:
		return boolInt(l <= r), true
	case ir.CmpGt:
		return boolInt(l > r), true
	case ir.CmpGe:
		return boolInt(l >= r), true
	}
	return 0, false
}

func foldFloatBinary(op ir.BinaryOp, l, r float64) (float64, bool) {
	switch op {
	case ir.Add:
		return l + r, true
	case ir.Sub:
		return l - r, true
	case ir.Mul:
		return l * r, true
	case ir.Div:
		if r == 0 {
			return 0, false
		}
		return l / r, true
	case ir.CmpEq:
		return float64(boolInt(l == r)), true
	case ir.CmpNe:
		return float64(boolInt(l != r)), true
	case ir.CmpLt:
		return float64(boolInt(l < r)), true
	case ir.CmpLe:
		return float64(boolInt(l <= r)), true
	case ir.CmpGt:
		return float64(boolInt(l > r)), true
	case ir.CmpGe:
		return float64(boolInt(l >= r)), true
	}
	return 0, false
}

func foldUnary(op ir.UnaryOp, s int64) (int64, bool) {
	switch op {
	case ir.Neg:
		return -s, true
	case ir.Not:
		return boolInt(s == 0), true
	case ir.BitNot:
		return ^s, true
	}
	return 0, false
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
