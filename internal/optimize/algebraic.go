package optimize

import "x64cc/internal/ir"

// Algebraic applies algebraic identities that fold an instruction down to a
// Copy (or a cheaper instruction) without needing both operands constant:
// x*0, x*1, x*-1, x+0, x-0, x-x, x/1, x/x, x%1, x&0, x&-1, x|0, x|-1, x^0,
// x^x, x<<0, x>>0, same-variable comparisons, constant-chain reassociation
// (x±a)±b, and the double negations -(-x) and ~~x.
type Algebraic struct{}

func (*Algebraic) Name() string { return "algebraic-simplify" }
func (*Algebraic) Description() string {
	return "applies algebraic identities (x*1, x+0, x&0, ...) without requiring full constant folding"
}

func (*Algebraic) Run(fn *ir.Function) bool {
	changed := false
	binDefs := make(map[ir.VarId]*ir.BinaryInst)
	unDefs := make(map[ir.VarId]*ir.UnaryInst)
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			switch v := inst.(type) {
			case *ir.BinaryInst:
				binDefs[v.Dest] = v
			case *ir.UnaryInst:
				unDefs[v.Dest] = v
			}
		}
	}

	for _, b := range fn.Blocks {
		for i, inst := range b.Instructions {
			switch v := inst.(type) {
			case *ir.BinaryInst:
				if simplified, ok := simplifyBinary(v, binDefs); ok {
					b.Instructions[i] = simplified
					delete(binDefs, v.Dest)
					changed = true
				}
			case *ir.UnaryInst:
				if simplified, ok := simplifyUnary(v, unDefs); ok {
					b.Instructions[i] = simplified
					delete(unDefs, v.Dest)
					changed = true
				}
			}
		}
	}
	return changed
}

func simplifyBinary(v *ir.BinaryInst, binDefs map[ir.VarId]*ir.BinaryInst) (ir.Instruction, bool) {
	lc, lIsConst := constInt(v.L)
	rc, rIsConst := constInt(v.R)
	sameOperand := v.L.IsVar() && v.R.IsVar() && v.L.Var == v.R.Var

	switch v.Op {
	case ir.Mul:
		if rIsConst && rc == 0 || lIsConst && lc == 0 {
			return &ir.CopyInst{Dest: v.Dest, Src: ir.ConstOperand(0)}, true
		}
		if rIsConst && rc == 1 {
			return &ir.CopyInst{Dest: v.Dest, Src: v.L}, true
		}
		if lIsConst && lc == 1 {
			return &ir.CopyInst{Dest: v.Dest, Src: v.R}, true
		}
		if rIsConst && rc == -1 {
			return &ir.UnaryInst{Dest: v.Dest, Op: ir.Neg, Src: v.L}, true
		}
		if lIsConst && lc == -1 {
			return &ir.UnaryInst{Dest: v.Dest, Op: ir.Neg, Src: v.R}, true
		}
	case ir.Div:
		if rIsConst && rc == 1 {
			return &ir.CopyInst{Dest: v.Dest, Src: v.L}, true
		}
		if sameOperand {
			return &ir.CopyInst{Dest: v.Dest, Src: ir.ConstOperand(1)}, true
		}
	case ir.Mod:
		if rIsConst && rc == 1 {
			return &ir.CopyInst{Dest: v.Dest, Src: ir.ConstOperand(0)}, true
		}
	case ir.Add:
		if rIsConst && rc == 0 {
			return &ir.CopyInst{Dest: v.Dest, Src: v.L}, true
		}
		if lIsConst && lc == 0 {
			return &ir.CopyInst{Dest: v.Dest, Src: v.R}, true
		}
		if reassoc, ok := reassociate(v, binDefs); ok {
			return reassoc, true
		}
	case ir.Sub:
		if rIsConst && rc == 0 {
			return &ir.CopyInst{Dest: v.Dest, Src: v.L}, true
		}
		if sameOperand {
			return &ir.CopyInst{Dest: v.Dest, Src: ir.ConstOperand(0)}, true
		}
		if reassoc, ok := reassociate(v, binDefs); ok {
			return reassoc, true
		}
	case ir.And:
		if rIsConst && rc == 0 || lIsConst && lc == 0 {
			return &ir.CopyInst{Dest: v.Dest, Src: ir.ConstOperand(0)}, true
		}
		if rIsConst && rc == -1 {
			return &ir.CopyInst{Dest: v.Dest, Src: v.L}, true
		}
		if lIsConst && lc == -1 {
			return &ir.CopyInst{Dest: v.Dest, Src: v.R}, true
		}
		if sameOperand {
			return &ir.CopyInst{Dest: v.Dest, Src: v.L}, true
		}
	case ir.Or:
		if rIsConst && rc == 0 {
			return &ir.CopyInst{Dest: v.Dest, Src: v.L}, true
		}
		if lIsConst && lc == 0 {
			return &ir.CopyInst{Dest: v.Dest, Src: v.R}, true
		}
		if rIsConst && rc == -1 || lIsConst && lc == -1 {
			return &ir.CopyInst{Dest: v.Dest, Src: ir.ConstOperand(-1)}, true
		}
		if sameOperand {
			return &ir.CopyInst{Dest: v.Dest, Src: v.L}, true
		}
	case ir.Xor:
		if rIsConst && rc == 0 {
			return &ir.CopyInst{Dest: v.Dest, Src: v.L}, true
		}
		if lIsConst && lc == 0 {
			return &ir.CopyInst{Dest: v.Dest, Src: v.R}, true
		}
		if sameOperand {
			return &ir.CopyInst{Dest: v.Dest, Src: ir.ConstOperand(0)}, true
		}
	case ir.Shl, ir.Shr:
		if rIsConst && rc == 0 {
			return &ir.CopyInst{Dest: v.Dest, Src: v.L}, true
		}
	case ir.CmpEq, ir.CmpLe, ir.CmpGe:
		if sameOperand {
			return &ir.CopyInst{Dest: v.Dest, Src: ir.ConstOperand(1)}, true
		}
	case ir.CmpNe, ir.CmpLt, ir.CmpGt:
		if sameOperand {
			return &ir.CopyInst{Dest: v.Dest, Src: ir.ConstOperand(0)}, true
		}
	}
	return nil, false
}

// reassociate folds (x + a) + b into x + (a+b) and the three sign variants,
// when the inner add/sub feeding the left operand carries a constant on its
// right side.
func reassociate(v *ir.BinaryInst, binDefs map[ir.VarId]*ir.BinaryInst) (ir.Instruction, bool) {
	outer, outerIsConst := constInt(v.R)
	if !outerIsConst || !v.L.IsVar() {
		return nil, false
	}
	inner, ok := binDefs[v.L.Var]
	if !ok || (inner.Op != ir.Add && inner.Op != ir.Sub) {
		return nil, false
	}
	ic, innerIsConst := constInt(inner.R)
	if !innerIsConst {
		return nil, false
	}

	// Accumulate both constants as a signed offset from the base value.
	total := ic
	if inner.Op == ir.Sub {
		total = -ic
	}
	if v.Op == ir.Add {
		total += outer
	} else {
		total -= outer
	}

	op := ir.Add
	if total < 0 {
		op, total = ir.Sub, -total
	}
	if total == 0 {
		return &ir.CopyInst{Dest: v.Dest, Src: inner.L}, true
	}
	return &ir.BinaryInst{Dest: v.Dest, Op: op, L: inner.L, R: ir.ConstOperand(total)}, true
}

func simplifyUnary(v *ir.UnaryInst, unDefs map[ir.VarId]*ir.UnaryInst) (ir.Instruction, bool) {
	if !v.Src.IsVar() {
		return nil, false
	}
	inner, ok := unDefs[v.Src.Var]
	if !ok {
		return nil, false
	}
	if v.Op == ir.Neg && inner.Op == ir.Neg || v.Op == ir.BitNot && inner.Op == ir.BitNot {
		return &ir.CopyInst{Dest: v.Dest, Src: inner.Src}, true
	}
	return nil, false
}

func constInt(op ir.Operand) (int64, bool) {
	if op.Kind == ir.OpConstant {
		return op.IntVal, true
	}
	return 0, false
}
