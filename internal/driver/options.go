// Package driver orchestrates one compiler invocation end to end: running
// an external preprocessor, handing the result to a caller-supplied
// frontend, then driving lowering, optimization, register allocation, code
// generation, and peephole cleanup before shelling out to an assembler and
// linker. Everything it runs that isn't part of this core (preprocessor,
// assembler, linker, and the lexer/parser/semantic analyzer behind the
// Frontend it's given) is an external process or an external collaborator;
// the driver's job is orchestration and file lifecycle, not reimplementing
// any of them.
package driver

import "x64cc/internal/abi"

// Options mirrors the CLI surface verbatim: positional input paths plus
// every flag the frontend-facing compiler accepts. A cobra/viper layer
// (cmd/x64cc) builds this struct; nothing here depends on a CLI framework.
type Options struct {
	InputPaths []string
	Output     string

	StopAfterLex      bool
	StopAfterParse    bool
	StopAfterCodegen  bool
	EmitAsmOnly       bool // -S
	CompileOnly       bool // -c
	KeepIntermediates bool

	Debug bool

	Defines       []string
	Undefines     []string
	IncludePaths  []string
	ForceIncludes []string

	Nostdlib     bool
	Freestanding bool
	Target       abi.Platform

	// Runner executes the preprocessor/assembler/linker subprocesses; nil
	// uses a real os/exec-backed runner. Tests inject a fake here.
	Runner CommandRunner
}

// keepIntermediates reports whether generated .i/.s files should survive
// the run: explicitly requested, or implied by -S since there is nothing
// left to assemble from them.
func (o Options) keepIntermediates() bool {
	return o.KeepIntermediates || o.EmitAsmOnly
}
