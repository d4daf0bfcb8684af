// Package ast defines the decorated abstract syntax tree the core consumes
// as input. The lexer, parser, and semantic analyzer that produce this tree
// are external collaborators out of the core's scope; the core trusts that
// names are resolved, types are attached, and struct/union layouts are
// already computed by the time a declaration reaches internal/lower.
package ast

import "fmt"

// Position locates a node in source for diagnostics (internal/errors).
type Position struct {
	Filename string
	Line     int
	Column   int
}

func (p Position) String() string { return fmt.Sprintf("%s:%d:%d", p.Filename, p.Line, p.Column) }

// Node is implemented by every AST node.
type Node interface {
	NodePos() Position
}

// StorageClass is a declaration's storage-class specifier.
type StorageClass int

const (
	StorageNone StorageClass = iota
	StorageStatic
	StorageExtern
	StorageRegister
)
