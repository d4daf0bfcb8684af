package ir

// RewriteOperands applies fix to every Operand slot of every instruction
// and terminator in f, including inline-asm inputs and the va_* list
// operands — one exhaustive walk owned here, so a pass rewriting uses
// cannot silently miss an instruction kind the way a per-pass type switch
// can. Phi sources are bare VarIds rather than Operands and are not
// visited: a phi source can only ever be replaced by another variable, so
// passes rewrite them explicitly with their own replacement rule.
func RewriteOperands(f *Function, fix func(*Operand)) {
	for _, b := range f.Blocks {
		for _, inst := range b.Instructions {
			rewriteInstruction(inst, fix)
		}
		switch t := b.Terminator.(type) {
		case *CondBrTerm:
			fix(&t.Cond)
		case *RetTerm:
			if t.Value != nil {
				fix(t.Value)
			}
		}
	}
}

func rewriteInstruction(inst Instruction, fix func(*Operand)) {
	switch v := inst.(type) {
	case *BinaryInst:
		fix(&v.L)
		fix(&v.R)
	case *FloatBinaryInst:
		fix(&v.L)
		fix(&v.R)
	case *UnaryInst:
		fix(&v.Src)
	case *FloatUnaryInst:
		fix(&v.Src)
	case *CopyInst:
		fix(&v.Src)
	case *CastInst:
		fix(&v.Src)
	case *LoadInst:
		fix(&v.Addr)
	case *StoreInst:
		fix(&v.Addr)
		fix(&v.Src)
	case *GEPInst:
		fix(&v.Base)
		fix(&v.Index)
	case *CallInst:
		for i := range v.Args {
			fix(&v.Args[i])
		}
	case *IndirectCallInst:
		fix(&v.FuncPtr)
		for i := range v.Args {
			fix(&v.Args[i])
		}
	case *InlineAsmInst:
		for i := range v.Inputs {
			fix(&v.Inputs[i])
		}
	case *VaStartInst:
		fix(&v.List)
	case *VaEndInst:
		fix(&v.List)
	case *VaCopyInst:
		fix(&v.Dest)
		fix(&v.Src)
	case *VaArgInst:
		fix(&v.List)
	}
}
