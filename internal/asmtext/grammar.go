// Package asmtext parses the textual IR dump internal/ir's Printer emits
// back into a lightweight tree, the way the teacher's own parser package
// turns source text into a syntax tree with participle — aimed here at our
// own pipeline's IR text instead of source text, so a round-trip test can
// confirm printing and reparsing agree on structure.
//
// Instruction and terminator bodies are free-form (operators, %-vars,
// quoted string literals, @globals), so only the two structured headers —
// a function's signature and a block's label — are modeled as a formal
// grammar. Instruction lines are kept verbatim as opaque text; the
// round-trip property under test is structural (function/block/param
// counts and names), not a full semantic re-parse of every instruction.
package asmtext

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var headerLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Arrow", Pattern: `->`},
	// The printer writes block headers as `bbN:` with no space, so the
	// block id must be one token — it would otherwise lex as a plain Ident
	// and never match a "bb" literal followed by a Number.
	{Name: "BlockID", Pattern: `bb\d+`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Percent", Pattern: `%\d+`},
	{Name: "Number", Pattern: `\d+`},
	{Name: "Punct", Pattern: `[(){}\[\]:,*]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// Param is one `Type %N` entry in a function's parameter list.
type Param struct {
	Type string `@Ident`
	Var  string `@Percent`
}

// FuncHeader is the `func name(params) -> ret {` line that opens a function.
type FuncHeader struct {
	Name       string   `"func" @Ident`
	Params     []*Param `"(" (@@ ("," @@)*)? ")"`
	ReturnType string   `"->" @Ident "{"`
}

// BlockHeader is the `bbN:` or `bbN: [label]` line that opens a block.
type BlockHeader struct {
	ID    string `@BlockID ":"`
	Label bool   `(@"[" "label" "]")?`
}

var headerParser = participle.MustBuild[FuncHeader](
	participle.Lexer(headerLexer),
	participle.Elide("Whitespace"),
)

var blockParser = participle.MustBuild[BlockHeader](
	participle.Lexer(headerLexer),
	participle.Elide("Whitespace"),
)

func parseFuncHeader(line string) (*FuncHeader, error) {
	return headerParser.ParseString("", line)
}

func parseBlockHeader(line string) (*BlockHeader, error) {
	hdr, err := blockParser.ParseString("", line)
	if err != nil {
		return nil, err
	}
	hdr.ID = strings.TrimPrefix(hdr.ID, "bb")
	return hdr, nil
}
