// Package frontend provides the default driver.Frontend wired into the
// x64cc command line. Lexing, parsing, and semantic analysis are out of this
// core's scope (see internal/ast's package doc): this package does not
// implement a C grammar, it only names the boundary clearly so a caller
// embedding this core as a library knows exactly what to supply in its
// place.
package frontend

import (
	"fmt"

	"x64cc/internal/ast"
)

// Unimplemented is the Frontend the CLI falls back to when no real one is
// linked in. It fails loudly with the scope boundary named, rather than
// silently accepting a source file it cannot actually parse.
type Unimplemented struct{}

func (Unimplemented) Build(path, source string) (*ast.TranslationUnit, error) {
	return nil, fmt.Errorf("x64cc: no frontend configured — lexing, parsing, and semantic analysis for %s are outside this core; embed this module behind a driver.Frontend that supplies an already-resolved AST", path)
}
