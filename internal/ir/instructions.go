package ir

import (
	"fmt"

	"x64cc/internal/types"
)

// Instruction is any non-terminating IR operation.
type Instruction interface {
	// Def returns the VarId this instruction defines, if any.
	Def() (VarId, bool)
	// Uses returns the operands this instruction reads, in a stable order.
	Uses() []Operand
	// HasSideEffects reports whether DCE must keep this instruction even
	// with a dead (or absent) result.
	HasSideEffects() bool
	String() string
}

type BinaryOp int

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Mod
	And
	Or
	Xor
	Shl
	Shr
	CmpEq
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

func (op BinaryOp) String() string {
	return [...]string{"+", "-", "*", "/", "%", "&", "|", "^", "<<", ">>", "==", "!=", "<", "<=", ">", ">="}[op]
}

func (op BinaryOp) IsComparison() bool { return op >= CmpEq }

type UnaryOp int

const (
	Neg UnaryOp = iota
	Not
	BitNot
)

func (op UnaryOp) String() string { return [...]string{"-", "!", "~"}[op] }

// BinaryInst computes Dest = L op R over integer/pointer operands.
type BinaryInst struct {
	Dest VarId
	Op   BinaryOp
	L, R Operand
}

func (i *BinaryInst) Def() (VarId, bool)    { return i.Dest, true }
func (i *BinaryInst) Uses() []Operand       { return []Operand{i.L, i.R} }
func (i *BinaryInst) HasSideEffects() bool  { return false }
func (i *BinaryInst) String() string {
	return fmt.Sprintf("%%%d = %s %s %s", i.Dest, operandString(i.L), i.Op, operandString(i.R))
}

// FloatBinaryInst computes Dest = L op R over float/double operands.
type FloatBinaryInst struct {
	Dest VarId
	Op   BinaryOp
	L, R Operand
}

func (i *FloatBinaryInst) Def() (VarId, bool)   { return i.Dest, true }
func (i *FloatBinaryInst) Uses() []Operand      { return []Operand{i.L, i.R} }
func (i *FloatBinaryInst) HasSideEffects() bool { return false }
func (i *FloatBinaryInst) String() string {
	return fmt.Sprintf("%%%d = fp %s %s %s", i.Dest, operandString(i.L), i.Op, operandString(i.R))
}

// UnaryInst computes Dest = op Src over an integer/pointer operand.
type UnaryInst struct {
	Dest VarId
	Op   UnaryOp
	Src  Operand
}

func (i *UnaryInst) Def() (VarId, bool)   { return i.Dest, true }
func (i *UnaryInst) Uses() []Operand      { return []Operand{i.Src} }
func (i *UnaryInst) HasSideEffects() bool { return false }
func (i *UnaryInst) String() string {
	return fmt.Sprintf("%%%d = %s%s", i.Dest, i.Op, operandString(i.Src))
}

// FloatUnaryInst computes Dest = op Src over a float/double operand.
type FloatUnaryInst struct {
	Dest VarId
	Op   UnaryOp
	Src  Operand
}

func (i *FloatUnaryInst) Def() (VarId, bool)   { return i.Dest, true }
func (i *FloatUnaryInst) Uses() []Operand      { return []Operand{i.Src} }
func (i *FloatUnaryInst) HasSideEffects() bool { return false }
func (i *FloatUnaryInst) String() string {
	return fmt.Sprintf("%%%d = fp %s%s", i.Dest, i.Op, operandString(i.Src))
}

// PhiArg is one (predecessor, source-VarId) pair of a Phi.
type PhiArg struct {
	Pred BlockId
	Src  VarId
}

// PhiInst selects a value based on which predecessor block was taken.
type PhiInst struct {
	Dest  VarId
	Preds []PhiArg
}

func (i *PhiInst) Def() (VarId, bool) { return i.Dest, true }
func (i *PhiInst) Uses() []Operand {
	out := make([]Operand, len(i.Preds))
	for idx, p := range i.Preds {
		out[idx] = VarOperand(p.Src)
	}
	return out
}
func (i *PhiInst) HasSideEffects() bool { return false }
func (i *PhiInst) String() string {
	s := fmt.Sprintf("%%%d = phi ", i.Dest)
	for idx, p := range i.Preds {
		if idx > 0 {
			s += ", "
		}
		s += fmt.Sprintf("[bb%d: %%%d]", p.Pred, p.Src)
	}
	return s
}

// CopyInst is a bare value alias, the vehicle both mem2reg and copy
// propagation use to replace a dead load/store pair or a folded constant.
type CopyInst struct {
	Dest VarId
	Src  Operand
}

func (i *CopyInst) Def() (VarId, bool)   { return i.Dest, true }
func (i *CopyInst) Uses() []Operand      { return []Operand{i.Src} }
func (i *CopyInst) HasSideEffects() bool { return false }
func (i *CopyInst) String() string {
	return fmt.Sprintf("%%%d = %s", i.Dest, operandString(i.Src))
}

// CastInst converts Src to To's representation (e.g. sign/zero extension,
// int<->float).
type CastInst struct {
	Dest VarId
	Src  Operand
	To   *types.Type
}

func (i *CastInst) Def() (VarId, bool)   { return i.Dest, true }
func (i *CastInst) Uses() []Operand      { return []Operand{i.Src} }
func (i *CastInst) HasSideEffects() bool { return false }
func (i *CastInst) String() string {
	return fmt.Sprintf("%%%d = cast<%s> %s", i.Dest, i.To, operandString(i.Src))
}

// AllocaInst reserves a stack buffer and yields its address. Dest holds an
// address, never a promoted scalar; it is excluded
// from liveness and never colored.
type AllocaInst struct {
	Dest VarId
	Type *types.Type
}

func (i *AllocaInst) Def() (VarId, bool)   { return i.Dest, true }
func (i *AllocaInst) Uses() []Operand      { return nil }
func (i *AllocaInst) HasSideEffects() bool { return true }
func (i *AllocaInst) String() string {
	return fmt.Sprintf("%%%d = alloca %s", i.Dest, i.Type)
}

// LoadInst reads ValueType-sized data from Addr.
type LoadInst struct {
	Dest      VarId
	Addr      Operand
	ValueType *types.Type
}

func (i *LoadInst) Def() (VarId, bool)   { return i.Dest, true }
func (i *LoadInst) Uses() []Operand      { return []Operand{i.Addr} }
func (i *LoadInst) HasSideEffects() bool { return false }
func (i *LoadInst) String() string {
	return fmt.Sprintf("%%%d = load %s, %s", i.Dest, i.ValueType, operandString(i.Addr))
}

// StoreInst writes Src to Addr as ValueType.
type StoreInst struct {
	Addr      Operand
	Src       Operand
	ValueType *types.Type
}

func (i *StoreInst) Def() (VarId, bool)   { return 0, false }
func (i *StoreInst) Uses() []Operand      { return []Operand{i.Addr, i.Src} }
func (i *StoreInst) HasSideEffects() bool { return true }
func (i *StoreInst) String() string {
	return fmt.Sprintf("store %s, %s, %s", i.ValueType, operandString(i.Addr), operandString(i.Src))
}

// GEPInst computes Dest = Base + Index*sizeof(ElementType).
type GEPInst struct {
	Dest        VarId
	Base        Operand
	Index       Operand
	ElementType *types.Type
}

func (i *GEPInst) Def() (VarId, bool)   { return i.Dest, true }
func (i *GEPInst) Uses() []Operand      { return []Operand{i.Base, i.Index} }
func (i *GEPInst) HasSideEffects() bool { return false }
func (i *GEPInst) String() string {
	return fmt.Sprintf("%%%d = gep %s, %s, %s", i.Dest, i.ElementType, operandString(i.Base), operandString(i.Index))
}

// CallInst invokes a direct (statically named) function.
type CallInst struct {
	Dest    *VarId
	Name    string
	Args    []Operand
}

func (i *CallInst) Def() (VarId, bool) {
	if i.Dest == nil {
		return 0, false
	}
	return *i.Dest, true
}
func (i *CallInst) Uses() []Operand      { return i.Args }
func (i *CallInst) HasSideEffects() bool { return true }
func (i *CallInst) String() string {
	if i.Dest != nil {
		return fmt.Sprintf("%%%d = call %s(%s)", *i.Dest, i.Name, operandsString(i.Args))
	}
	return fmt.Sprintf("call %s(%s)", i.Name, operandsString(i.Args))
}

// IndirectCallInst invokes a function through a pointer value.
type IndirectCallInst struct {
	Dest    *VarId
	FuncPtr Operand
	Args    []Operand
}

func (i *IndirectCallInst) Def() (VarId, bool) {
	if i.Dest == nil {
		return 0, false
	}
	return *i.Dest, true
}
func (i *IndirectCallInst) Uses() []Operand {
	return append([]Operand{i.FuncPtr}, i.Args...)
}
func (i *IndirectCallInst) HasSideEffects() bool { return true }
func (i *IndirectCallInst) String() string {
	if i.Dest != nil {
		return fmt.Sprintf("%%%d = icall %s(%s)", *i.Dest, operandString(i.FuncPtr), operandsString(i.Args))
	}
	return fmt.Sprintf("icall %s(%s)", operandString(i.FuncPtr), operandsString(i.Args))
}

// InlineAsmInst splices a raw assembly template into the instruction stream.
type InlineAsmInst struct {
	Template string
	Outputs  []VarId
	Inputs   []Operand
	Clobbers []string
	Volatile bool
}

func (i *InlineAsmInst) Def() (VarId, bool) {
	if len(i.Outputs) == 0 {
		return 0, false
	}
	return i.Outputs[0], true
}
func (i *InlineAsmInst) Uses() []Operand      { return i.Inputs }
func (i *InlineAsmInst) HasSideEffects() bool { return true }
func (i *InlineAsmInst) String() string {
	return fmt.Sprintf("asm %q outputs=%v inputs=%v clobbers=%v volatile=%v",
		i.Template, i.Outputs, i.Inputs, i.Clobbers, i.Volatile)
}

// VaStartInst initializes a va_list value at List to the start of the spilled
// register-parameter area.
type VaStartInst struct {
	List Operand
}

func (i *VaStartInst) Def() (VarId, bool)   { return 0, false }
func (i *VaStartInst) Uses() []Operand      { return []Operand{i.List} }
func (i *VaStartInst) HasSideEffects() bool { return true }
func (i *VaStartInst) String() string       { return fmt.Sprintf("va_start %s", operandString(i.List)) }

// VaEndInst is a no-op marker for the end of variadic argument access.
type VaEndInst struct {
	List Operand
}

func (i *VaEndInst) Def() (VarId, bool)   { return 0, false }
func (i *VaEndInst) Uses() []Operand      { return []Operand{i.List} }
func (i *VaEndInst) HasSideEffects() bool { return true }
func (i *VaEndInst) String() string       { return fmt.Sprintf("va_end %s", operandString(i.List)) }

// VaCopyInst copies a va_list value. Dest and Src are both addresses of
// va_list slots: the copy writes through Dest, it does not define it.
type VaCopyInst struct {
	Dest Operand
	Src  Operand
}

func (i *VaCopyInst) Def() (VarId, bool)   { return 0, false }
func (i *VaCopyInst) Uses() []Operand      { return []Operand{i.Dest, i.Src} }
func (i *VaCopyInst) HasSideEffects() bool { return true }
func (i *VaCopyInst) String() string {
	return fmt.Sprintf("va_copy %s, %s", operandString(i.Dest), operandString(i.Src))
}

// VaArgInst reads the next variadic argument of ArgType from List and
// advances the list pointer.
type VaArgInst struct {
	Dest    VarId
	List    Operand
	ArgType *types.Type
}

func (i *VaArgInst) Def() (VarId, bool)   { return i.Dest, true }
func (i *VaArgInst) Uses() []Operand      { return []Operand{i.List} }
func (i *VaArgInst) HasSideEffects() bool { return true }
func (i *VaArgInst) String() string {
	return fmt.Sprintf("%%%d = va_arg %s, %s", i.Dest, i.ArgType, operandString(i.List))
}

func operandString(o Operand) string {
	switch o.Kind {
	case OpConstant:
		return fmt.Sprintf("%d", o.IntVal)
	case OpFloatConstant:
		return fmt.Sprintf("%g", o.FloatVal)
	case OpVar:
		return fmt.Sprintf("%%%d", o.Var)
	case OpGlobal:
		return fmt.Sprintf("@%s", o.Global)
	default:
		return "?"
	}
}

func operandsString(ops []Operand) string {
	s := ""
	for i, o := range ops {
		if i > 0 {
			s += ", "
		}
		s += operandString(o)
	}
	return s
}
