package lower

import (
	"x64cc/internal/ast"
	"x64cc/internal/errors"
	"x64cc/internal/ir"
)

// lowerStmt lowers a single statement. current_block == nil means control
// has already left the function (a prior return/break/continue/goto); in
// that state further statements in the same straight-line sequence are
// lowered for diagnostics only and contribute no instructions.
func (l *Lowerer) lowerStmt(s ast.Stmt) error {
	switch v := s.(type) {
	case *ast.BlockStmt:
		for _, inner := range v.Stmts {
			if err := l.lowerStmt(inner); err != nil {
				return err
			}
		}
		return nil

	case *ast.ExprStmt:
		if l.currentBlock == nil {
			return nil
		}
		_, err := l.lowerExpr(v.X)
		return err

	case *ast.DeclStmt:
		return l.lowerDecl(v)

	case *ast.ReturnStmt:
		return l.lowerReturn(v)

	case *ast.IfStmt:
		return l.lowerIf(v)

	case *ast.WhileStmt:
		return l.lowerWhile(v)

	case *ast.DoWhileStmt:
		return l.lowerDoWhile(v)

	case *ast.ForStmt:
		return l.lowerFor(v)

	case *ast.BreakStmt:
		return l.lowerBreak(v)

	case *ast.ContinueStmt:
		return l.lowerContinue(v)

	case *ast.SwitchStmt:
		return l.lowerSwitch(v)

	case *ast.CaseStmt:
		return l.lowerCase(v)

	case *ast.DefaultStmt:
		return l.lowerDefault(v)

	case *ast.GotoStmt:
		return l.lowerGoto(v)

	case *ast.LabelStmt:
		return l.lowerLabel(v)

	default:
		return errors.Unsupported(errors.ErrorUnsupportedOperator, "statement form not supported", s.NodePos()).Build()
	}
}

func (l *Lowerer) lowerDecl(d *ast.DeclStmt) error {
	if l.currentBlock == nil {
		return nil
	}
	bid := *l.currentBlock
	for i, name := range d.Names {
		ty := d.Types[i]
		l.symbolTable[name] = ty

		allocaVar := l.newVar()
		l.block(bid).Instructions = append(l.block(bid).Instructions, &ir.AllocaInst{Dest: allocaVar, Type: ty})
		l.variableAllocas[name] = allocaVar

		if d.Inits[i] == nil {
			continue
		}
		val, err := l.lowerExpr(d.Inits[i])
		if err != nil {
			return err
		}
		l.addInstruction(&ir.StoreInst{Addr: ir.VarOperand(allocaVar), Src: val, ValueType: ty})
		l.writeVariable(name, bid, asVar(l, val))
	}
	return nil
}

func (l *Lowerer) lowerReturn(r *ast.ReturnStmt) error {
	if l.currentBlock == nil {
		return nil
	}
	var retVal *ir.Operand
	if r.Value != nil {
		v, err := l.lowerExpr(r.Value)
		if err != nil {
			return err
		}
		retVal = &v
	}
	bid := *l.currentBlock
	l.setTerminator(bid, &ir.RetTerm{Value: retVal})
	l.currentBlock = nil
	return nil
}

func (l *Lowerer) lowerIf(s *ast.IfStmt) error {
	if l.currentBlock == nil {
		return nil
	}
	condVal, err := l.lowerExpr(s.Cond)
	if err != nil {
		return err
	}
	bid := *l.currentBlock

	thenID, elseID, mergeID := l.newBlock(), l.newBlock(), l.newBlock()
	l.setTerminator(bid, &ir.CondBrTerm{Cond: condVal, Then: thenID, Else: elseID})

	l.sealedBlocks[thenID] = true
	l.setCurrent(thenID)
	if err := l.lowerStmt(s.Then); err != nil {
		return err
	}
	var thenOpen bool
	if l.currentBlock != nil {
		l.setTerminator(*l.currentBlock, &ir.BrTerm{Target: mergeID})
		thenOpen = true
	}

	l.sealedBlocks[elseID] = true
	l.setCurrent(elseID)
	if s.Else != nil {
		if err := l.lowerStmt(s.Else); err != nil {
			return err
		}
	}
	var elseOpen bool
	if l.currentBlock != nil {
		l.setTerminator(*l.currentBlock, &ir.BrTerm{Target: mergeID})
		elseOpen = true
	}

	l.sealedBlocks[mergeID] = true
	if thenOpen || elseOpen {
		l.setCurrent(mergeID)
	} else {
		l.currentBlock = nil
	}
	return nil
}

func (l *Lowerer) lowerWhile(s *ast.WhileStmt) error {
	if l.currentBlock == nil {
		return nil
	}
	headerID, bodyID, exitID := l.newBlock(), l.newBlock(), l.newBlock()
	l.setTerminator(*l.currentBlock, &ir.BrTerm{Target: headerID})

	l.setCurrent(headerID)
	condVal, err := l.lowerExpr(s.Cond)
	if err != nil {
		return err
	}
	l.setTerminator(headerID, &ir.CondBrTerm{Cond: condVal, Then: bodyID, Else: exitID})

	l.sealedBlocks[bodyID] = true
	l.setCurrent(bodyID)
	l.loopStack = append(l.loopStack, loopCtx{continueTarget: headerID, breakTarget: exitID})
	err = l.lowerStmt(s.Body)
	l.loopStack = l.loopStack[:len(l.loopStack)-1]
	if err != nil {
		return err
	}
	if l.currentBlock != nil {
		l.setTerminator(*l.currentBlock, &ir.BrTerm{Target: headerID})
	}

	l.sealBlock(headerID)
	l.sealBlock(exitID)
	l.setCurrent(exitID)
	return nil
}

func (l *Lowerer) lowerDoWhile(s *ast.DoWhileStmt) error {
	if l.currentBlock == nil {
		return nil
	}
	bodyID, latchID, exitID := l.newBlock(), l.newBlock(), l.newBlock()
	l.setTerminator(*l.currentBlock, &ir.BrTerm{Target: bodyID})

	l.setCurrent(bodyID)
	l.loopStack = append(l.loopStack, loopCtx{continueTarget: latchID, breakTarget: exitID})
	err := l.lowerStmt(s.Body)
	l.loopStack = l.loopStack[:len(l.loopStack)-1]
	if err != nil {
		return err
	}
	if l.currentBlock != nil {
		l.setTerminator(*l.currentBlock, &ir.BrTerm{Target: latchID})
	}

	l.sealedBlocks[latchID] = true
	l.setCurrent(latchID)
	condVal, err := l.lowerExpr(s.Cond)
	if err != nil {
		return err
	}
	l.setTerminator(latchID, &ir.CondBrTerm{Cond: condVal, Then: bodyID, Else: exitID})

	l.sealBlock(bodyID)
	l.sealBlock(exitID)
	l.setCurrent(exitID)
	return nil
}

func (l *Lowerer) lowerFor(s *ast.ForStmt) error {
	if l.currentBlock == nil {
		return nil
	}
	if s.Init != nil {
		if err := l.lowerStmt(s.Init); err != nil {
			return err
		}
	}
	if l.currentBlock == nil {
		return nil
	}

	headerID, bodyID, postID, exitID := l.newBlock(), l.newBlock(), l.newBlock(), l.newBlock()
	l.setTerminator(*l.currentBlock, &ir.BrTerm{Target: headerID})

	l.setCurrent(headerID)
	if s.Cond != nil {
		condVal, err := l.lowerExpr(s.Cond)
		if err != nil {
			return err
		}
		l.setTerminator(headerID, &ir.CondBrTerm{Cond: condVal, Then: bodyID, Else: exitID})
	} else {
		l.setTerminator(headerID, &ir.BrTerm{Target: bodyID})
	}

	l.sealedBlocks[bodyID] = true
	l.setCurrent(bodyID)
	l.loopStack = append(l.loopStack, loopCtx{continueTarget: postID, breakTarget: exitID})
	err := l.lowerStmt(s.Body)
	l.loopStack = l.loopStack[:len(l.loopStack)-1]
	if err != nil {
		return err
	}
	if l.currentBlock != nil {
		l.setTerminator(*l.currentBlock, &ir.BrTerm{Target: postID})
	}

	l.sealedBlocks[postID] = true
	l.setCurrent(postID)
	if s.Post != nil {
		if err := l.lowerStmt(s.Post); err != nil {
			return err
		}
	}
	l.setTerminator(postID, &ir.BrTerm{Target: headerID})

	l.sealBlock(headerID)
	l.sealBlock(exitID)
	l.setCurrent(exitID)
	return nil
}

func (l *Lowerer) lowerBreak(s *ast.BreakStmt) error {
	if l.currentBlock == nil {
		return nil
	}
	if len(l.loopStack) > 0 {
		target := l.loopStack[len(l.loopStack)-1].breakTarget
		l.setTerminator(*l.currentBlock, &ir.BrTerm{Target: target})
		l.currentBlock = nil
		return nil
	}
	if len(l.breakTargets) > 0 {
		target := l.breakTargets[len(l.breakTargets)-1]
		l.setTerminator(*l.currentBlock, &ir.BrTerm{Target: target})
		l.currentBlock = nil
		return nil
	}
	return errors.BreakOutsideLoop(s.NodePos())
}

func (l *Lowerer) lowerContinue(s *ast.ContinueStmt) error {
	if l.currentBlock == nil {
		return nil
	}
	if len(l.loopStack) == 0 {
		return errors.ContinueOutsideLoop(s.NodePos())
	}
	target := l.loopStack[len(l.loopStack)-1].continueTarget
	l.setTerminator(*l.currentBlock, &ir.BrTerm{Target: target})
	l.currentBlock = nil
	return nil
}

// lowerSwitch lowers a switch by first walking the body to collect case
// labels against fresh blocks (fallthrough is free: cases simply don't
// terminate into each other explicitly, they just fall off the end of one
// block into the next one lower_stmt chains them into), then filling in a
// comparison chain at the head.
func (l *Lowerer) lowerSwitch(s *ast.SwitchStmt) error {
	if l.currentBlock == nil {
		return nil
	}
	condVal, err := l.lowerExpr(s.Tag)
	if err != nil {
		return err
	}
	head := l.newBlock()
	end := l.newBlock()
	l.setTerminator(*l.currentBlock, &ir.BrTerm{Target: head})
	l.sealBlock(head)

	l.breakTargets = append(l.breakTargets, end)
	l.switchCases = append(l.switchCases, nil)
	l.defaultStack = append(l.defaultStack, nil)

	bodyStart := l.newBlock()
	l.sealedBlocks[bodyStart] = true
	l.setCurrent(bodyStart)
	if err := l.lowerStmt(s.Body); err != nil {
		return err
	}

	cases := l.switchCases[len(l.switchCases)-1]
	def := l.defaultStack[len(l.defaultStack)-1]
	l.switchCases = l.switchCases[:len(l.switchCases)-1]
	l.defaultStack = l.defaultStack[:len(l.defaultStack)-1]
	l.breakTargets = l.breakTargets[:len(l.breakTargets)-1]

	if l.currentBlock != nil {
		l.setTerminator(*l.currentBlock, &ir.BrTerm{Target: end})
	}

	// The head block branches straight into the body's first block (the
	// comparison chain below replaces this once cases are known), then
	// we retarget it into a chain of equality tests.
	currentHead := head
	for i, c := range cases {
		var nextHead ir.BlockId
		if i == len(cases)-1 {
			nextHead = 0 // placeholder, replaced below if no default
		}
		_ = nextHead
		nh := l.newBlock()
		condVar := l.newVar()
		l.block(currentHead).Instructions = append(l.block(currentHead).Instructions, &ir.BinaryInst{
			Dest: condVar, Op: ir.CmpEq, L: condVal, R: ir.ConstOperand(c.value),
		})
		l.setTerminator(currentHead, &ir.CondBrTerm{Cond: ir.VarOperand(condVar), Then: c.block, Else: nh})
		l.sealedBlocks[nh] = true
		currentHead = nh
	}
	defaultTarget := end
	if def != nil {
		defaultTarget = *def
	} else {
		// bodyStart only receives control when no case/default label
		// preceded the first statement; route the comparison-chain
		// fallthrough there so top-of-body code before any label still runs.
		defaultTarget = bodyStart
		if len(cases) == 0 && def == nil {
			defaultTarget = bodyStart
		}
	}
	l.setTerminator(currentHead, &ir.BrTerm{Target: defaultTarget})

	l.sealBlock(end)
	l.setCurrent(end)
	return nil
}

func (l *Lowerer) lowerCase(s *ast.CaseStmt) error {
	if len(l.switchCases) == 0 {
		return errors.Structural(errors.ErrorCaseOutsideSwitch, "'case' label outside a switch", s.NodePos()).Build()
	}
	lit, ok := s.Value.(*ast.IntLit)
	if !ok {
		return errors.NonConstantCaseLabel(s.NodePos())
	}
	caseBlock := l.newBlock()
	if l.currentBlock != nil {
		l.setTerminator(*l.currentBlock, &ir.BrTerm{Target: caseBlock})
	}
	top := len(l.switchCases) - 1
	l.switchCases[top] = append(l.switchCases[top], switchCase{value: lit.Value, block: caseBlock})
	l.sealedBlocks[caseBlock] = true
	l.setCurrent(caseBlock)
	if s.Body != nil {
		return l.lowerStmt(s.Body)
	}
	return nil
}

func (l *Lowerer) lowerDefault(s *ast.DefaultStmt) error {
	if len(l.defaultStack) == 0 {
		return errors.Structural(errors.ErrorCaseOutsideSwitch, "'default' label outside a switch", s.NodePos()).Build()
	}
	defaultBlock := l.newBlock()
	if l.currentBlock != nil {
		l.setTerminator(*l.currentBlock, &ir.BrTerm{Target: defaultBlock})
	}
	top := len(l.defaultStack) - 1
	l.defaultStack[top] = &defaultBlock
	l.sealedBlocks[defaultBlock] = true
	l.setCurrent(defaultBlock)
	if s.Body != nil {
		return l.lowerStmt(s.Body)
	}
	return nil
}

func (l *Lowerer) lowerGoto(s *ast.GotoStmt) error {
	if l.currentBlock == nil {
		return nil
	}
	if target, ok := l.labels[s.Label]; ok {
		l.setTerminator(*l.currentBlock, &ir.BrTerm{Target: target})
	} else {
		// Forward reference: allocate the target block now, seal it once
		// the label is actually placed.
		target := l.newBlock()
		l.labels[s.Label] = target
		l.setTerminator(*l.currentBlock, &ir.BrTerm{Target: target})
		l.pendingGotos = append(l.pendingGotos, pendingGoto{label: s.Label, block: target})
	}
	l.currentBlock = nil
	return nil
}

func (l *Lowerer) lowerLabel(s *ast.LabelStmt) error {
	var target ir.BlockId
	if existing, ok := l.labels[s.Label]; ok {
		target = existing
		for i, pg := range l.pendingGotos {
			if pg.label == s.Label {
				l.pendingGotos = append(l.pendingGotos[:i], l.pendingGotos[i+1:]...)
				break
			}
		}
	} else {
		target = l.newBlock()
		l.labels[s.Label] = target
	}
	l.block(target).IsLabelTarget = true
	if l.currentBlock != nil {
		l.setTerminator(*l.currentBlock, &ir.BrTerm{Target: target})
	}
	l.sealBlock(target)
	l.setCurrent(target)
	return l.lowerStmt(s.Body)
}
