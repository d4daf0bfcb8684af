package ast

import "x64cc/internal/types"

// Decl is any top-level declaration.
type Decl interface {
	Node
	declNode()
}

// ParamDecl is one function parameter.
type ParamDecl struct {
	base
	Name string
	Type *types.Type
}

// FunctionDecl is a function definition (a bare prototype with no Body is
// an external declaration; lowering emits no IR for it beyond recording its
// signature for call-site type checking).
type FunctionDecl struct {
	base
	Name       string
	Params     []ParamDecl
	Variadic   bool
	ReturnType *types.Type
	Storage    StorageClass
	Body       *BlockStmt // nil for a prototype
}

// GlobalDecl is a file-scope variable, optionally initialized.
type GlobalDecl struct {
	base
	Name    string
	Type    *types.Type
	Init    Expr
	Storage StorageClass
}

// FieldDecl is one member of a struct or union.
type FieldDecl struct {
	base
	Name string
	Type *types.Type
}

// StructDecl defines a struct's layout (field order, padding, and alignment
// are already resolved by the time this reaches the core).
type StructDecl struct {
	base
	Name   string
	Fields []FieldDecl
	Packed bool
}

// UnionDecl defines a union's overlapping member layout.
type UnionDecl struct {
	base
	Name   string
	Fields []FieldDecl
}

// TypedefDecl introduces Name as an alias for Type.
type TypedefDecl struct {
	base
	Name string
	Type *types.Type
}

// TranslationUnit is the root node: every declaration in one source file,
// in source order.
type TranslationUnit struct {
	base
	Decls []Decl
}

func (*FunctionDecl) declNode()    {}
func (*GlobalDecl) declNode()      {}
func (*StructDecl) declNode()      {}
func (*UnionDecl) declNode()       {}
func (*TypedefDecl) declNode()     {}
func (*TranslationUnit) declNode() {}
