// Package lower builds SSA-form IR (internal/ir) from a decorated AST
// (internal/ast) using Braun et al.'s on-the-fly SSA construction: variables
// are written and read block-locally, with incomplete phis placed at
// not-yet-sealed blocks and resolved once every predecessor is known.
package lower

import (
	"fmt"

	"x64cc/internal/ast"
	"x64cc/internal/errors"
	"x64cc/internal/ir"
	"x64cc/internal/types"
)

// loopCtx is the (continueTarget, breakTarget) pair active for the
// innermost enclosing loop.
type loopCtx struct {
	continueTarget ir.BlockId
	breakTarget    ir.BlockId
}

// Lowerer holds all per-function state for SSA construction. A single
// Lowerer instance is reused across functions in a translation unit; reset
// clears the function-local fields between lower calls.
type Lowerer struct {
	nextVar   int
	nextBlock int

	variableDefs    map[string]map[ir.BlockId]ir.VarId
	variableAllocas map[string]ir.VarId
	symbolTable     map[string]*types.Type

	blocks         []*ir.BasicBlock
	currentBlock   *ir.BlockId
	incompletePhis map[ir.BlockId]map[string]ir.VarId
	sealedBlocks   map[ir.BlockId]bool

	globalVars    map[string]bool
	functionNames map[string]*types.Type // name -> return type, for call typing
	funcParams    map[string][]*types.Type

	loopStack    []loopCtx
	switchCases  [][]switchCase
	defaultStack []*ir.BlockId
	breakTargets []ir.BlockId

	labels       map[string]ir.BlockId
	pendingGotos []pendingGoto

	globalStrings []ir.StringLiteral
	floatConsts   []ir.FloatConstant
	floatDedup    map[uint64]string

	registry *types.Registry
	filename string
}

type switchCase struct {
	value int64
	block ir.BlockId
}

type pendingGoto struct {
	label string
	block ir.BlockId
}

// New creates a Lowerer for translating a single translation unit. reg
// resolves struct/union/typedef layouts attached to the AST's declared
// types.
func New(reg *types.Registry, filename string) *Lowerer {
	return &Lowerer{
		registry:      reg,
		filename:      filename,
		globalVars:    make(map[string]bool),
		functionNames: make(map[string]*types.Type),
		funcParams:    make(map[string][]*types.Type),
		floatDedup:    make(map[uint64]string),
	}
}

// LowerProgram lowers every function definition in unit to IR, plus the
// declared globals the decorated AST carries alongside them.
func (l *Lowerer) LowerProgram(unit *ast.TranslationUnit) (*ir.Program, error) {
	prog := &ir.Program{Structs: l.registry}

	for _, d := range unit.Decls {
		switch decl := d.(type) {
		case *ast.GlobalDecl:
			l.globalVars[decl.Name] = true
		case *ast.FunctionDecl:
			l.globalVars[decl.Name] = true
			paramTypes := make([]*types.Type, len(decl.Params))
			for i, p := range decl.Params {
				paramTypes[i] = p.Type
			}
			l.functionNames[decl.Name] = decl.ReturnType
			l.funcParams[decl.Name] = paramTypes
		}
	}

	for _, d := range unit.Decls {
		if gd, ok := d.(*ast.GlobalDecl); ok {
			g, err := l.lowerGlobal(gd)
			if err != nil {
				return nil, err
			}
			prog.Globals = append(prog.Globals, g)
		}
	}

	for _, d := range unit.Decls {
		fd, ok := d.(*ast.FunctionDecl)
		if !ok || fd.Body == nil {
			continue
		}
		fn, err := l.lowerFunction(fd)
		if err != nil {
			return nil, err
		}
		if err := ir.VerifySSA(fn); err != nil {
			return nil, errors.SSAVerificationFailed(fmt.Sprintf("function %s: %v", fd.Name, err))
		}
		prog.Functions = append(prog.Functions, fn)
	}

	prog.GlobalStrings = l.globalStrings
	prog.FloatConsts = l.floatConsts
	return prog, nil
}

func (l *Lowerer) lowerGlobal(g *ast.GlobalDecl) (ir.Global, error) {
	out := ir.Global{Name: g.Name, Type: g.Type}
	if g.Init != nil {
		switch v := g.Init.(type) {
		case *ast.IntLit:
			out.Initializer = encodeInt(v.Value, types.Size(g.Type, l.registry))
		default:
			return out, errors.Unsupported(errors.ErrorUnsupportedInitForm,
				"global initializer must be a compile-time constant", g.NodePos()).Build()
		}
	}
	return out, nil
}

func encodeInt(v int64, size int) []byte {
	buf := make([]byte, size)
	for i := 0; i < size; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	return buf
}

// lowerFunction resets per-function state, lowers params and body, and
// ensures control falls off the end only for a void function.
func (l *Lowerer) lowerFunction(f *ast.FunctionDecl) (*ir.Function, error) {
	l.nextVar = 0
	l.nextBlock = 0
	l.variableDefs = make(map[string]map[ir.BlockId]ir.VarId)
	l.variableAllocas = make(map[string]ir.VarId)
	l.symbolTable = make(map[string]*types.Type)
	l.blocks = nil
	l.currentBlock = nil
	l.incompletePhis = make(map[ir.BlockId]map[string]ir.VarId)
	l.sealedBlocks = make(map[ir.BlockId]bool)
	l.loopStack = nil
	l.switchCases = nil
	l.defaultStack = nil
	l.breakTargets = nil
	l.labels = make(map[string]ir.BlockId)
	l.pendingGotos = nil

	entry := l.newBlock()
	l.setCurrent(entry)
	l.sealedBlocks[entry] = true

	varTypes := make(map[ir.VarId]*types.Type)
	params := make([]ir.Param, len(f.Params))
	for i, p := range f.Params {
		v := l.newVar()
		l.writeVariable(p.Name, entry, v)
		l.symbolTable[p.Name] = p.Type
		varTypes[v] = p.Type
		params[i] = ir.Param{Type: p.Type, Var: v}
	}

	if err := l.lowerStmt(f.Body); err != nil {
		return nil, err
	}

	if len(l.pendingGotos) > 0 {
		return nil, errors.UndefinedLabel(l.pendingGotos[0].label, f.NodePos())
	}

	if l.currentBlock != nil {
		cur := l.block(*l.currentBlock)
		if _, unset := cur.Terminator.(*ir.UnreachableTerm); unset {
			if f.ReturnType == nil || f.ReturnType.Kind == types.Void {
				cur.Terminator = &ir.RetTerm{}
			}
			// Non-void function falling off the end keeps the Unreachable
			// placeholder as its trap.
		}
	}

	for v := range l.varTypesUsed() {
		if _, ok := varTypes[v]; !ok {
			varTypes[v] = types.Prim(types.Int)
		}
	}

	return &ir.Function{
		Name:       f.Name,
		ReturnType: f.ReturnType,
		Params:     params,
		Blocks:     l.blocks,
		Entry:      entry,
		VarTypes:   varTypes,
		Variadic:   f.Variadic,
	}, nil
}

// varTypesUsed collects every VarId defined anywhere in the function so
// lowerFunction can default-type ones not already recorded (allocas,
// temporaries created mid-expression).
func (l *Lowerer) varTypesUsed() map[ir.VarId]bool {
	out := make(map[ir.VarId]bool)
	for _, b := range l.blocks {
		for _, inst := range b.Instructions {
			if v, ok := inst.Def(); ok {
				out[v] = true
			}
		}
	}
	return out
}

func (l *Lowerer) newVar() ir.VarId {
	v := ir.VarId(l.nextVar)
	l.nextVar++
	return v
}

func (l *Lowerer) newBlock() ir.BlockId {
	id := ir.BlockId(l.nextBlock)
	l.nextBlock++
	b := &ir.BasicBlock{ID: id, Terminator: &ir.UnreachableTerm{}}
	l.blocks = append(l.blocks, b)
	return id
}

func (l *Lowerer) block(id ir.BlockId) *ir.BasicBlock { return l.blocks[int(id)] }

func (l *Lowerer) setCurrent(id ir.BlockId) { l.currentBlock = &id }

func (l *Lowerer) addInstruction(inst ir.Instruction) {
	if l.currentBlock == nil {
		return
	}
	b := l.block(*l.currentBlock)
	b.Instructions = append(b.Instructions, inst)
}

func (l *Lowerer) setTerminator(id ir.BlockId, t ir.Terminator) {
	l.block(id).Terminator = t
}

func (l *Lowerer) isLocal(name string) bool {
	_, hasDef := l.variableDefs[name]
	_, hasAlloca := l.variableAllocas[name]
	return hasDef || hasAlloca
}

func (l *Lowerer) isFunction(name string) bool {
	_, ok := l.functionNames[name]
	return ok
}

func (l *Lowerer) exprType(e ast.Expr) *types.Type {
	switch v := e.(type) {
	case *ast.IntLit:
		if v.Type != nil {
			return v.Type
		}
		return types.Prim(types.Int)
	case *ast.FloatLit:
		if v.Double {
			return types.Prim(types.Double)
		}
		return types.Prim(types.Float)
	case *ast.StringLit:
		return types.NewPointer(types.Prim(types.Char))
	case *ast.Ident:
		if t, ok := l.symbolTable[v.Name]; ok {
			return t
		}
		return types.Prim(types.Int)
	case *ast.BinaryExpr:
		if isComparisonOp(v.Op) {
			return types.Prim(types.Int)
		}
		return l.exprType(v.X)
	case *ast.AssignExpr:
		return l.exprType(v.LHS)
	case *ast.UnaryExpr:
		switch v.Op {
		case ast.UnaryAddr:
			return types.NewPointer(l.exprType(v.X))
		case ast.UnaryDeref:
			t := l.exprType(v.X)
			if t.Kind == types.Pointer || t.Kind == types.Array {
				return t.Elem
			}
			return types.Prim(types.Int)
		default:
			return l.exprType(v.X)
		}
	case *ast.CastExpr:
		return v.Type
	case *ast.FieldExpr:
		return l.fieldType(v)
	case *ast.IndexExpr:
		t := l.exprType(v.X)
		if t.Kind == types.Array || t.Kind == types.Pointer {
			return t.Elem
		}
		return types.Prim(types.Int)
	case *ast.CallExpr:
		if id, ok := v.Callee.(*ast.Ident); ok {
			if rt, ok := l.functionNames[id.Name]; ok {
				return rt
			}
		}
		return types.Prim(types.Int)
	case *ast.CondExpr:
		return l.exprType(v.Then)
	default:
		return types.Prim(types.Int)
	}
}

func (l *Lowerer) fieldType(fe *ast.FieldExpr) *types.Type {
	base := l.exprType(fe.X)
	t := base
	if fe.Arrow {
		if base.Kind != types.Pointer {
			return types.Prim(types.Int)
		}
		t = base.Elem
	}
	name := t.Name
	if t.Kind == types.Struct {
		if layout, ok := l.registry.Struct(name); ok {
			if f := layout.FieldByName(fe.Name); f != nil {
				return f.Type
			}
		}
	} else if t.Kind == types.Union {
		if layout, ok := l.registry.Union(name); ok {
			if f := layout.FieldByName(fe.Name); f != nil {
				return f.Type
			}
		}
	}
	return types.Prim(types.Int)
}

func isComparisonOp(op ast.BinaryOp) bool {
	switch op {
	case ast.BinEq, ast.BinNe, ast.BinLt, ast.BinLe, ast.BinGt, ast.BinGe, ast.BinLogAnd, ast.BinLogOr:
		return true
	default:
		return false
	}
}

func (l *Lowerer) internString(s string) ir.Operand {
	label := fmt.Sprintf("str_%d", len(l.globalStrings))
	l.globalStrings = append(l.globalStrings, ir.StringLiteral{Label: label, Content: s})
	return ir.GlobalOperand(label)
}

func (l *Lowerer) internFloat(v float64, isDouble bool) ir.Operand {
	bits := floatBits(v, isDouble)
	if label, ok := l.floatDedup[bits]; ok {
		return ir.GlobalOperand(label)
	}
	label := fmt.Sprintf("flt_%d", len(l.floatConsts))
	l.floatConsts = append(l.floatConsts, ir.FloatConstant{Label: label, Bits: bits, Value: v})
	l.floatDedup[bits] = label
	return ir.GlobalOperand(label)
}
