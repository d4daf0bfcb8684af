package peephole

import (
	"strings"
	"testing"

	"x64cc/internal/abi"
	"x64cc/internal/codegen"
)

func TestEmitProgramRendersSectionsAndPeepholesEachFunction(t *testing.T) {
	res := &codegen.Result{
		Functions: map[string][]codegen.Instr{
			"main": {
				{Op: codegen.OpLabel, Text: "main"},
				{Op: codegen.OpMov, Dst: codegen.Reg(abi.Rax), Src: codegen.Reg(abi.Rax)},
				{Op: codegen.OpRet},
			},
		},
		Order: []string{"main"},
		Data: []codegen.DataDecl{
			{Label: ".Lstr0", Size: 4, Initializer: []byte("hi\x00\x00"), ReadOnly: true},
			{Label: "counter", Size: 8},
		},
	}

	out := EmitProgram(res)

	if !strings.Contains(out, ".intel_syntax noprefix") {
		t.Error("missing intel syntax directive")
	}
	if !strings.Contains(out, "main:") {
		t.Error("missing function label")
	}
	if strings.Contains(out, "mov rax, rax") {
		t.Error("expected peephole to remove the self-move before emission")
	}
	if !strings.Contains(out, ".section .rodata") || !strings.Contains(out, ".Lstr0:") {
		t.Error("missing rodata section for the string constant")
	}
	if !strings.Contains(out, ".bss") || !strings.Contains(out, "counter:") || !strings.Contains(out, ".zero 8") {
		t.Error("missing bss section for the uninitialized global")
	}
}
