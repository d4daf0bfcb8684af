package asmtext

import "strings"

// Block is one parsed `bbN:` region: its header plus the raw instruction
// and terminator lines that follow it, up to the next block or the
// function's closing brace.
type Block struct {
	ID    string
	Label bool
	Lines []string
}

// Function is one parsed `func ... { ... }` unit.
type Function struct {
	Name       string
	Params     []Param
	ReturnType string
	Blocks     []Block
}

// Program is the whole parsed dump.
type Program struct {
	Functions []Function
}

// Parse parses the textual dump produced by ir.Print/ir.PrintFunction. It
// scans line by line, handing `func ...` and `bbN:` lines to the
// participle-built header grammars and collecting everything else as a
// block's opaque instruction text.
func Parse(text string) (*Program, error) {
	prog := &Program{}
	var cur *Function
	var curBlock *Block

	flushBlock := func() {
		if cur != nil && curBlock != nil {
			cur.Blocks = append(cur.Blocks, *curBlock)
			curBlock = nil
		}
	}
	flushFunc := func() {
		flushBlock()
		if cur != nil {
			prog.Functions = append(prog.Functions, *cur)
			cur = nil
		}
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		switch {
		case line == "}":
			flushFunc()
		case strings.HasPrefix(line, "func "):
			flushFunc()
			hdr, err := parseFuncHeader(line)
			if err != nil {
				return nil, err
			}
			params := make([]Param, len(hdr.Params))
			for i, p := range hdr.Params {
				params[i] = *p
			}
			cur = &Function{Name: hdr.Name, Params: params, ReturnType: hdr.ReturnType}
		case strings.HasPrefix(line, "bb"):
			hdr, err := parseBlockHeader(line)
			if err != nil {
				return nil, err
			}
			flushBlock()
			curBlock = &Block{ID: hdr.ID, Label: hdr.Label}
		case strings.HasPrefix(line, "string ") || strings.HasPrefix(line, "float ") || strings.HasPrefix(line, "global "):
			// File-scope declarations outside any function: ignored for the
			// structural round-trip this package exists to verify.
		default:
			if curBlock != nil {
				curBlock.Lines = append(curBlock.Lines, line)
			}
		}
	}
	flushFunc()
	return prog, nil
}
