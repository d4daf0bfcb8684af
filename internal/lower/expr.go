package lower

import (
	"x64cc/internal/ast"
	"x64cc/internal/errors"
	"x64cc/internal/ir"
	"x64cc/internal/types"
)

// lowerExpr lowers an expression to the operand holding its value.
func (l *Lowerer) lowerExpr(e ast.Expr) (ir.Operand, error) {
	switch v := e.(type) {
	case *ast.IntLit:
		return ir.ConstOperand(v.Value), nil

	case *ast.FloatLit:
		return l.internFloat(v.Value, v.Double), nil

	case *ast.StringLit:
		return l.internString(v.Value), nil

	case *ast.AssignExpr:
		return l.lowerAssign(v)

	case *ast.BinaryExpr:
		return l.lowerBinary(v)

	case *ast.UnaryExpr:
		return l.lowerUnary(v)

	case *ast.Ident:
		return l.lowerIdent(v)

	case *ast.IndexExpr, *ast.FieldExpr:
		return l.loadFromAddr(e)

	case *ast.CallExpr:
		return l.lowerCall(v)

	case *ast.CastExpr:
		return l.lowerExpr(v.X)

	case *ast.CondExpr:
		return l.lowerCond(v)

	default:
		return ir.Operand{}, errors.Unsupported(errors.ErrorUnsupportedOperator,
			"expression form not supported", e.NodePos()).Build()
	}
}

func (l *Lowerer) lowerIdent(id *ast.Ident) (ir.Operand, error) {
	if _, isAlloca := l.variableAllocas[id.Name]; isAlloca {
		varType := l.exprType(id)
		if varType.Kind == types.Array {
			// Arrays decay to a pointer to their first element: return the
			// address without a load.
			addr, err := l.lowerToAddr(id)
			if err != nil {
				return ir.Operand{}, err
			}
			return ir.VarOperand(addr), nil
		}
		addr, err := l.lowerToAddr(id)
		if err != nil {
			return ir.Operand{}, err
		}
		dest := l.newVar()
		l.addInstruction(&ir.LoadInst{Dest: dest, Addr: ir.VarOperand(addr), ValueType: varType})
		return ir.VarOperand(dest), nil
	}
	if l.isLocal(id.Name) {
		b := *l.currentBlock
		return ir.VarOperand(l.readVariable(id.Name, b)), nil
	}
	if l.isFunction(id.Name) {
		dest := l.newVar()
		l.addInstruction(&ir.CopyInst{Dest: dest, Src: ir.GlobalOperand(id.Name)})
		return ir.VarOperand(dest), nil
	}
	if l.globalVars[id.Name] {
		addr, err := l.lowerToAddr(id)
		if err != nil {
			return ir.Operand{}, err
		}
		dest := l.newVar()
		l.addInstruction(&ir.LoadInst{Dest: dest, Addr: ir.VarOperand(addr), ValueType: l.exprType(id)})
		return ir.VarOperand(dest), nil
	}
	return ir.Operand{}, errors.UndefinedVariable(id.Name, id.NodePos())
}

// loadFromAddr lowers any l-value expression by taking its address and
// loading through it.
func (l *Lowerer) loadFromAddr(e ast.Expr) (ir.Operand, error) {
	addr, err := l.lowerToAddr(e)
	if err != nil {
		return ir.Operand{}, err
	}
	dest := l.newVar()
	l.addInstruction(&ir.LoadInst{Dest: dest, Addr: ir.VarOperand(addr), ValueType: l.exprType(e)})
	return ir.VarOperand(dest), nil
}

func (l *Lowerer) lowerAssign(a *ast.AssignExpr) (ir.Operand, error) {
	rhs, err := l.lowerExpr(a.RHS)
	if err != nil {
		return ir.Operand{}, err
	}
	if a.Op != ast.AssignPlain {
		rhs, err = l.applyCompoundOp(a, rhs)
		if err != nil {
			return ir.Operand{}, err
		}
	}
	if !ast.IsLValue(a.LHS) {
		return ir.Operand{}, errors.NotAnLValue(a.LHS.NodePos())
	}
	// A parameter (or any SSA-renamed local with no alloca) is written by
	// recording a new definition, not by storing through an address.
	if id, ok := a.LHS.(*ast.Ident); ok {
		if _, isAlloca := l.variableAllocas[id.Name]; !isAlloca && l.isLocal(id.Name) {
			l.writeVariable(id.Name, *l.currentBlock, asVar(l, rhs))
			return rhs, nil
		}
	}
	addr, err := l.lowerToAddr(a.LHS)
	if err != nil {
		return ir.Operand{}, err
	}
	valueType := l.exprType(a.LHS)
	l.addInstruction(&ir.StoreInst{Addr: ir.VarOperand(addr), Src: rhs, ValueType: valueType})
	return rhs, nil
}

var compoundToBinary = map[ast.AssignOp]ast.BinaryOp{
	ast.AssignAdd: ast.BinAdd, ast.AssignSub: ast.BinSub, ast.AssignMul: ast.BinMul,
	ast.AssignDiv: ast.BinDiv, ast.AssignMod: ast.BinMod, ast.AssignAnd: ast.BinAnd,
	ast.AssignOr: ast.BinOr, ast.AssignXor: ast.BinXor, ast.AssignShl: ast.BinShl, ast.AssignShr: ast.BinShr,
}

func (l *Lowerer) applyCompoundOp(a *ast.AssignExpr, rhs ir.Operand) (ir.Operand, error) {
	lhsVal, err := l.lowerExpr(a.LHS)
	if err != nil {
		return ir.Operand{}, err
	}
	op := compoundToBinary[a.Op]
	return l.emitBinary(op, lhsVal, rhs, l.exprType(a.LHS), l.exprType(a.RHS))
}

func (l *Lowerer) lowerBinary(b *ast.BinaryExpr) (ir.Operand, error) {
	if b.Op == ast.BinLogAnd || b.Op == ast.BinLogOr {
		return l.lowerShortCircuit(b)
	}

	lType := l.exprType(b.X)
	rType := l.exprType(b.Y)

	lVal, err := l.lowerExpr(b.X)
	if err != nil {
		return ir.Operand{}, err
	}
	rVal, err := l.lowerExpr(b.Y)
	if err != nil {
		return ir.Operand{}, err
	}

	if b.Op == ast.BinAdd || b.Op == ast.BinSub {
		lVal, rVal = l.scalePointerArith(b.Op, lType, rType, lVal, rVal)
	}

	return l.emitBinary(b.Op, lVal, rVal, lType, rType)
}

// scalePointerArith multiplies the integer side of ptr+int / int+ptr /
// ptr-int by the pointee size.
func (l *Lowerer) scalePointerArith(op ast.BinaryOp, lType, rType *types.Type, lVal, rVal ir.Operand) (ir.Operand, ir.Operand) {
	scale := func(inner *types.Type, v ir.Operand) ir.Operand {
		size := types.Size(inner, l.registry)
		if size <= 1 {
			return v
		}
		dest := l.newVar()
		l.addInstruction(&ir.BinaryInst{Dest: dest, Op: ir.Mul, L: v, R: ir.ConstOperand(int64(size))})
		return ir.VarOperand(dest)
	}
	switch {
	case lType.Kind == types.Pointer:
		return lVal, scale(lType.Elem, rVal)
	case lType.Kind == types.Array:
		return lVal, scale(lType.Elem, rVal)
	case op == ast.BinAdd && rType.Kind == types.Pointer:
		return scale(rType.Elem, lVal), rVal
	case op == ast.BinAdd && rType.Kind == types.Array:
		return scale(rType.Elem, lVal), rVal
	default:
		return lVal, rVal
	}
}

var binOpMap = map[ast.BinaryOp]ir.BinaryOp{
	ast.BinAdd: ir.Add, ast.BinSub: ir.Sub, ast.BinMul: ir.Mul, ast.BinDiv: ir.Div, ast.BinMod: ir.Mod,
	ast.BinAnd: ir.And, ast.BinOr: ir.Or, ast.BinXor: ir.Xor, ast.BinShl: ir.Shl, ast.BinShr: ir.Shr,
	ast.BinEq: ir.CmpEq, ast.BinNe: ir.CmpNe, ast.BinLt: ir.CmpLt, ast.BinLe: ir.CmpLe,
	ast.BinGt: ir.CmpGt, ast.BinGe: ir.CmpGe,
}

func (l *Lowerer) emitBinary(op ast.BinaryOp, lVal, rVal ir.Operand, lType, rType *types.Type) (ir.Operand, error) {
	irOp, ok := binOpMap[op]
	if !ok {
		return ir.Operand{}, errors.UnsupportedOperator("logical && / || must be lowered to control flow, not a binary op", ast.Position{})
	}
	dest := l.newVar()
	if lType.IsFloat() || rType.IsFloat() {
		l.addInstruction(&ir.FloatBinaryInst{Dest: dest, Op: irOp, L: lVal, R: rVal})
	} else {
		l.addInstruction(&ir.BinaryInst{Dest: dest, Op: irOp, L: lVal, R: rVal})
	}
	return ir.VarOperand(dest), nil
}

var unaryOpMap = map[ast.UnaryOp]ir.UnaryOp{
	ast.UnaryNeg: ir.Neg, ast.UnaryNot: ir.Not, ast.UnaryBitNot: ir.BitNot,
}

func (l *Lowerer) lowerUnary(u *ast.UnaryExpr) (ir.Operand, error) {
	switch u.Op {
	case ast.UnaryAddr:
		addr, err := l.lowerToAddr(u.X)
		if err != nil {
			return ir.Operand{}, err
		}
		return ir.VarOperand(addr), nil

	case ast.UnaryDeref:
		return l.loadFromAddr(u)

	case ast.UnaryPreInc, ast.UnaryPreDec, ast.UnaryPostInc, ast.UnaryPostDec:
		return l.lowerIncDec(u)

	default:
		val, err := l.lowerExpr(u.X)
		if err != nil {
			return ir.Operand{}, err
		}
		exprTy := l.exprType(u.X)
		dest := l.newVar()
		op := unaryOpMap[u.Op]
		if exprTy.IsFloat() {
			l.addInstruction(&ir.FloatUnaryInst{Dest: dest, Op: op, Src: val})
		} else {
			l.addInstruction(&ir.UnaryInst{Dest: dest, Op: op, Src: val})
		}
		return ir.VarOperand(dest), nil
	}
}

// lowerIncDec desugars ++x/--x/x++/x-- into a load, an add/sub-by-one, and a
// store, returning the pre- or post-value per C semantics.
func (l *Lowerer) lowerIncDec(u *ast.UnaryExpr) (ir.Operand, error) {
	if !ast.IsLValue(u.X) {
		return ir.Operand{}, errors.NotAnLValue(u.X.NodePos())
	}
	addr, err := l.lowerToAddr(u.X)
	if err != nil {
		return ir.Operand{}, err
	}
	ty := l.exprType(u.X)
	old, err := l.loadFromAddr(u.X)
	if err != nil {
		return ir.Operand{}, err
	}

	delta := ir.Operand(ir.ConstOperand(1))
	if ty.Kind == types.Pointer {
		if size := types.Size(ty.Elem, l.registry); size > 1 {
			delta = ir.ConstOperand(int64(size))
		}
	}

	op := ir.Add
	if u.Op == ast.UnaryPreDec || u.Op == ast.UnaryPostDec {
		op = ir.Sub
	}
	newVal := l.newVar()
	if ty.IsFloat() {
		l.addInstruction(&ir.FloatBinaryInst{Dest: newVal, Op: op, L: old, R: delta})
	} else {
		l.addInstruction(&ir.BinaryInst{Dest: newVal, Op: op, L: old, R: delta})
	}
	l.addInstruction(&ir.StoreInst{Addr: ir.VarOperand(addr), Src: ir.VarOperand(newVal), ValueType: ty})

	if u.Op == ast.UnaryPreInc || u.Op == ast.UnaryPreDec {
		return ir.VarOperand(newVal), nil
	}
	return old, nil
}

func (l *Lowerer) lowerCall(c *ast.CallExpr) (ir.Operand, error) {
	// The <stdarg.h> macros reach the core as ordinary call expressions
	// once preprocessed; they are intrinsics, not calls, and their va_list
	// argument is an l-value (the list pointer itself is mutated). A user
	// function that happens to shadow one of these names wins.
	if id, ok := c.Callee.(*ast.Ident); ok && !l.isLocal(id.Name) && !l.isFunction(id.Name) {
		switch id.Name {
		case "va_start", "va_end", "va_copy", "va_arg":
			return l.lowerVaBuiltin(id.Name, c)
		}
	}

	args := make([]ir.Operand, len(c.Args))
	for i, a := range c.Args {
		v, err := l.lowerExpr(a)
		if err != nil {
			return ir.Operand{}, err
		}
		args[i] = v
	}

	dest := l.newVar()
	if id, ok := c.Callee.(*ast.Ident); ok && !l.isLocal(id.Name) {
		if !l.isFunction(id.Name) {
			return ir.Operand{}, errors.UndefinedFunction(id.Name, c.NodePos())
		}
		l.addInstruction(&ir.CallInst{Dest: &dest, Name: id.Name, Args: args})
		return ir.VarOperand(dest), nil
	}

	funcPtr, err := l.lowerExpr(c.Callee)
	if err != nil {
		return ir.Operand{}, err
	}
	l.addInstruction(&ir.IndirectCallInst{Dest: &dest, FuncPtr: funcPtr, Args: args})
	return ir.VarOperand(dest), nil
}

// lowerVaBuiltin lowers one of the variadic-access intrinsics. va_start's
// second argument (the last named parameter) is accepted and ignored: the
// spilled register-save area's location is fixed per function, so codegen
// needs no anchor. va_arg's second argument contributes only its type —
// the frontend passes any expression of the element type being read.
func (l *Lowerer) lowerVaBuiltin(name string, c *ast.CallExpr) (ir.Operand, error) {
	if len(c.Args) == 0 {
		return ir.Operand{}, errors.Structural(errors.ErrorInvalidArguments,
			name+" requires a va_list argument", c.NodePos()).Build()
	}
	list, err := l.lowerToAddr(c.Args[0])
	if err != nil {
		return ir.Operand{}, err
	}
	listOp := ir.VarOperand(list)

	switch name {
	case "va_start":
		l.addInstruction(&ir.VaStartInst{List: listOp})
		return ir.ConstOperand(0), nil

	case "va_end":
		l.addInstruction(&ir.VaEndInst{List: listOp})
		return ir.ConstOperand(0), nil

	case "va_copy":
		if len(c.Args) < 2 {
			return ir.Operand{}, errors.Structural(errors.ErrorInvalidArguments,
				"va_copy requires destination and source va_list arguments", c.NodePos()).Build()
		}
		src, err := l.lowerToAddr(c.Args[1])
		if err != nil {
			return ir.Operand{}, err
		}
		l.addInstruction(&ir.VaCopyInst{Dest: listOp, Src: ir.VarOperand(src)})
		return ir.ConstOperand(0), nil

	default: // va_arg
		argType := types.Prim(types.Int)
		if len(c.Args) > 1 {
			argType = l.exprType(c.Args[1])
		}
		dest := l.newVar()
		l.addInstruction(&ir.VaArgInst{Dest: dest, List: listOp, ArgType: argType})
		return ir.VarOperand(dest), nil
	}
}

// lowerShortCircuit lowers && and || as branches rather than value
// operators, so the right operand's side effects never execute once the
// left operand has already decided the result (C §6.5.13/§6.5.14).
func (l *Lowerer) lowerShortCircuit(b *ast.BinaryExpr) (ir.Operand, error) {
	lVal, err := l.lowerExpr(b.X)
	if err != nil {
		return ir.Operand{}, err
	}
	lhsBlock := *l.currentBlock
	rhsID, mergeID := l.newBlock(), l.newBlock()

	shortResult := int64(0)
	if b.Op == ast.BinLogOr {
		shortResult = 1
	}
	shortVar := l.newVar()
	l.addInstruction(&ir.CopyInst{Dest: shortVar, Src: ir.ConstOperand(shortResult)})
	if b.Op == ast.BinLogAnd {
		l.setTerminator(lhsBlock, &ir.CondBrTerm{Cond: lVal, Then: rhsID, Else: mergeID})
	} else {
		l.setTerminator(lhsBlock, &ir.CondBrTerm{Cond: lVal, Then: mergeID, Else: rhsID})
	}

	l.sealedBlocks[rhsID] = true
	l.setCurrent(rhsID)
	rVal, err := l.lowerExpr(b.Y)
	if err != nil {
		return ir.Operand{}, err
	}
	boolVal := l.newVar()
	l.addInstruction(&ir.BinaryInst{Dest: boolVal, Op: ir.CmpNe, L: rVal, R: ir.ConstOperand(0)})
	rhsEnd := *l.currentBlock
	l.setTerminator(rhsEnd, &ir.BrTerm{Target: mergeID})

	l.sealedBlocks[mergeID] = true
	l.setCurrent(mergeID)
	dest := l.newVar()
	phi := &ir.PhiInst{Dest: dest, Preds: []ir.PhiArg{
		{Pred: lhsBlock, Src: shortVar},
		{Pred: rhsEnd, Src: boolVal},
	}}
	mb := l.block(mergeID)
	mb.Instructions = append([]ir.Instruction{phi}, mb.Instructions...)
	return ir.VarOperand(dest), nil
}

// lowerCond lowers `cond ? then : else` via control flow, since it has
// short-circuit semantics like &&/|| (only one arm is ever evaluated).
func (l *Lowerer) lowerCond(c *ast.CondExpr) (ir.Operand, error) {
	condVal, err := l.lowerExpr(c.Cond)
	if err != nil {
		return ir.Operand{}, err
	}
	bid := *l.currentBlock
	thenID, elseID, mergeID := l.newBlock(), l.newBlock(), l.newBlock()
	l.setTerminator(bid, &ir.CondBrTerm{Cond: condVal, Then: thenID, Else: elseID})

	l.sealedBlocks[thenID] = true
	l.setCurrent(thenID)
	thenVal, err := l.lowerExpr(c.Then)
	if err != nil {
		return ir.Operand{}, err
	}
	thenVar := asVar(l, thenVal)
	thenEnd := *l.currentBlock
	l.setTerminator(thenEnd, &ir.BrTerm{Target: mergeID})

	l.sealedBlocks[elseID] = true
	l.setCurrent(elseID)
	elseVal, err := l.lowerExpr(c.Else)
	if err != nil {
		return ir.Operand{}, err
	}
	elseVar := asVar(l, elseVal)
	elseEnd := *l.currentBlock
	l.setTerminator(elseEnd, &ir.BrTerm{Target: mergeID})

	l.sealedBlocks[mergeID] = true
	l.setCurrent(mergeID)

	dest := l.newVar()
	phi := &ir.PhiInst{Dest: dest, Preds: []ir.PhiArg{
		{Pred: thenEnd, Src: thenVar},
		{Pred: elseEnd, Src: elseVar},
	}}
	mb := l.block(mergeID)
	mb.Instructions = append([]ir.Instruction{phi}, mb.Instructions...)
	return ir.VarOperand(dest), nil
}

// asVar materializes a constant/global operand into a fresh variable so it
// can serve as a phi source (phis carry VarId arguments only).
func asVar(l *Lowerer, op ir.Operand) ir.VarId {
	if op.IsVar() {
		return op.Var
	}
	dest := l.newVar()
	l.addInstruction(&ir.CopyInst{Dest: dest, Src: op})
	return dest
}

// lowerToAddr lowers an l-value expression to the VarId holding its address.
func (l *Lowerer) lowerToAddr(e ast.Expr) (ir.VarId, error) {
	switch v := e.(type) {
	case *ast.Ident:
		if addr, ok := l.variableAllocas[v.Name]; ok {
			return addr, nil
		}
		if l.globalVars[v.Name] {
			dest := l.newVar()
			l.addInstruction(&ir.CopyInst{Dest: dest, Src: ir.GlobalOperand(v.Name)})
			return dest, nil
		}
		return 0, errors.UndefinedVariable(v.Name, v.NodePos())

	case *ast.IndexExpr:
		arrayType := l.exprType(v.X)
		var baseAddr ir.VarId
		if arrayType.Kind == types.Pointer {
			val, err := l.lowerExpr(v.X)
			if err != nil {
				return 0, err
			}
			baseAddr = asVar(l, val)
		} else {
			addr, err := l.lowerToAddr(v.X)
			if err != nil {
				return 0, err
			}
			baseAddr = addr
		}
		idxVal, err := l.lowerExpr(v.Index)
		if err != nil {
			return 0, err
		}
		var elemType *types.Type
		if arrayType.Kind == types.Array || arrayType.Kind == types.Pointer {
			elemType = arrayType.Elem
		} else {
			elemType = types.Prim(types.Int)
		}
		dest := l.newVar()
		l.addInstruction(&ir.GEPInst{Dest: dest, Base: ir.VarOperand(baseAddr), Index: idxVal, ElementType: elemType})
		return dest, nil

	case *ast.UnaryExpr:
		if v.Op != ast.UnaryDeref {
			return 0, errors.NotAnLValue(v.NodePos())
		}
		addrOp, err := l.lowerExpr(v.X)
		if err != nil {
			return 0, err
		}
		if !addrOp.IsVar() {
			return 0, errors.Structural(errors.ErrorNotAnLValue, "dereference operand must be in a variable", v.NodePos()).Build()
		}
		return addrOp.Var, nil

	case *ast.FieldExpr:
		return l.lowerFieldAddr(v)

	default:
		return 0, errors.NotAnLValue(e.NodePos())
	}
}

func (l *Lowerer) lowerFieldAddr(f *ast.FieldExpr) (ir.VarId, error) {
	var baseAddr ir.VarId
	var aggType *types.Type
	if f.Arrow {
		val, err := l.lowerExpr(f.X)
		if err != nil {
			return 0, err
		}
		if !val.IsVar() {
			return 0, errors.Structural(errors.ErrorNotAnLValue, "-> operand must be in a variable", f.NodePos()).Build()
		}
		baseAddr = val.Var
		ptrType := l.exprType(f.X)
		if ptrType.Kind != types.Pointer {
			return 0, errors.UnsupportedType("-> on a non-pointer type", f.NodePos())
		}
		aggType = ptrType.Elem
	} else {
		addr, err := l.lowerToAddr(f.X)
		if err != nil {
			return 0, err
		}
		baseAddr = addr
		aggType = l.exprType(f.X)
	}

	var offset int
	switch aggType.Kind {
	case types.Struct:
		layout, ok := l.registry.Struct(aggType.Name)
		if !ok {
			return 0, errors.FieldNotFound(aggType.Name, f.Name, f.NodePos())
		}
		field := layout.FieldByName(f.Name)
		if field == nil {
			return 0, errors.FieldNotFound(aggType.Name, f.Name, f.NodePos())
		}
		offset = field.Offset
	case types.Union:
		layout, ok := l.registry.Union(aggType.Name)
		if !ok {
			return 0, errors.FieldNotFound(aggType.Name, f.Name, f.NodePos())
		}
		field := layout.FieldByName(f.Name)
		if field == nil {
			return 0, errors.FieldNotFound(aggType.Name, f.Name, f.NodePos())
		}
		offset = field.Offset
	default:
		return 0, errors.UnsupportedType("member access on non-aggregate type", f.NodePos())
	}

	dest := l.newVar()
	l.addInstruction(&ir.GEPInst{
		Dest: dest, Base: ir.VarOperand(baseAddr), Index: ir.ConstOperand(int64(offset)),
		ElementType: types.Prim(types.Char),
	})
	return dest, nil
}
