// Package ir is the SSA intermediate representation shared by every stage of
// the pipeline: lowering produces it, the optimizer rewrites it, the register
// allocator annotates it, and codegen consumes it.
//
// VarId and BlockId are dense integer handles into per-function arenas
// rather than a pointer graph: no cyclic reference counting, no garbage,
// and the CFG (blocks referring to blocks by ID) is cycle-safe by
// construction.
package ir

import "x64cc/internal/types"

// VarId is an opaque, per-function dense integer handle. A VarId is defined
// exactly once across the function (the SSA invariant enforced by Verify).
type VarId int

// BlockId is an opaque, per-function dense integer handle.
type BlockId int

// OperandKind tags the variant an Operand holds.
type OperandKind int

const (
	OpConstant OperandKind = iota
	OpFloatConstant
	OpVar
	OpGlobal
)

// Operand is the tagged-variant value consumed by instructions.
type Operand struct {
	Kind     OperandKind
	IntVal   int64
	FloatVal float64
	Var      VarId
	Global   string
}

func ConstOperand(v int64) Operand        { return Operand{Kind: OpConstant, IntVal: v} }
func FloatConstOperand(v float64) Operand { return Operand{Kind: OpFloatConstant, FloatVal: v} }
func VarOperand(v VarId) Operand          { return Operand{Kind: OpVar, Var: v} }
func GlobalOperand(name string) Operand   { return Operand{Kind: OpGlobal, Global: name} }

func (o Operand) IsVar() bool      { return o.Kind == OpVar }
func (o Operand) IsConstant() bool { return o.Kind == OpConstant || o.Kind == OpFloatConstant }

// Param is a function parameter: its declared type and the VarId that holds
// its incoming value inside the function body.
type Param struct {
	Type *types.Type
	Var  VarId
}

// BasicBlock is a straight-line instruction sequence ending in exactly one
// Terminator. Any φ instructions are, by construction, a prefix of
// Instructions.
type BasicBlock struct {
	ID            BlockId
	Instructions  []Instruction
	Terminator    Terminator
	IsLabelTarget bool
}

// Phis returns the leading run of Phi instructions in the block.
func (b *BasicBlock) Phis() []*PhiInst {
	var out []*PhiInst
	for _, inst := range b.Instructions {
		p, ok := inst.(*PhiInst)
		if !ok {
			break
		}
		out = append(out, p)
	}
	return out
}

// Function is one function in IR form: its signature, parameters, and
// ordered basic blocks (entry block first).
type Function struct {
	Name       string
	ReturnType *types.Type
	Params     []Param
	Blocks     []*BasicBlock
	Entry      BlockId
	VarTypes   map[VarId]*types.Type
	Variadic   bool
}

// BlockByID returns the block with the given ID, or nil.
func (f *Function) BlockByID(id BlockId) *BasicBlock {
	for _, b := range f.Blocks {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// TypeOf returns the declared type of a VarId, defaulting to Int when
// unknown (matches the original lowerer's default for untyped temporaries).
func (f *Function) TypeOf(v VarId) *types.Type {
	if t, ok := f.VarTypes[v]; ok {
		return t
	}
	return types.Prim(types.Int)
}

// Preds computes, for every block, the list of predecessor BlockIds by
// scanning terminators — a snapshot taken once per call rather than
// maintained incrementally. A pass that both reads the CFG and rewrites
// instructions should take this snapshot once rather than thread it
// through every call.
func (f *Function) Preds() map[BlockId][]BlockId {
	preds := make(map[BlockId][]BlockId, len(f.Blocks))
	for _, b := range f.Blocks {
		preds[b.ID] = nil
	}
	for _, b := range f.Blocks {
		for _, succ := range b.Terminator.Successors() {
			preds[succ] = append(preds[succ], b.ID)
		}
	}
	return preds
}

// StringLiteral is an interned string constant with its assembly label.
type StringLiteral struct {
	Label   string
	Content string
}

// FloatConstant is an interned floating-point constant with its assembly
// label.
type FloatConstant struct {
	Label string
	Bits  uint64 // bit pattern of the float64, so 0.0 and -0.0 stay distinct
	Value float64
}

// Global is a file-scope variable.
type Global struct {
	Name        string
	Type        *types.Type
	Initializer []byte // little-endian initializer bytes, nil if zero-initialized
}

// Program is the whole translation unit in IR form.
type Program struct {
	Functions     []*Function
	GlobalStrings []StringLiteral
	FloatConsts   []FloatConstant
	Globals       []Global
	Structs       *types.Registry
}
