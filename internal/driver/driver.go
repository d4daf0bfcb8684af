package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"x64cc/internal/abi"
	"x64cc/internal/codegen"
	"x64cc/internal/errors"
	"x64cc/internal/ir"
	"x64cc/internal/lower"
	"x64cc/internal/optimize"
	"x64cc/internal/peephole"
	"x64cc/internal/types"
)

// Run executes one compiler invocation: preprocess every input, hand each
// preprocessed file to fe, then (unless a phase stop fires first) lower,
// optimize, allocate, select, peephole, and emit assembly, finally
// assembling/linking per opts. Intermediate .i/.s files are removed unless
// opts.KeepIntermediates (or -S, which has nothing left to clean up into).
func Run(opts Options, fe Frontend, log *logrus.Logger) error {
	run := opts.Runner
	if run == nil {
		run = execRunner{}
	}
	if log == nil {
		log = logrus.New()
	}

	if len(opts.InputPaths) == 0 {
		return errors.IO(errors.ErrorReadSource, "no input files provided", nil)
	}

	var asmPaths, preprocessedPaths []string
	cleanup := func(path string) {
		if !opts.keepIntermediates() {
			_ = os.Remove(path)
		}
	}

	for _, inputPath := range opts.InputPaths {
		flog := log.WithField("input", inputPath)

		if _, err := os.Stat(inputPath); err != nil {
			return errors.IO(errors.ErrorReadSource, "input file '"+inputPath+"' not found", err)
		}

		stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
		preprocessedPath := stem + ".i"

		flog.Debug("preprocessing")
		if err := preprocess(run, inputPath, preprocessedPath, opts); err != nil {
			return err
		}
		preprocessedPaths = append(preprocessedPaths, preprocessedPath)

		if opts.StopAfterLex {
			flog.Info("stopping after lex: lexing is internal to the frontend and not separately observable by this core")
			continue
		}

		srcBytes, err := os.ReadFile(preprocessedPath)
		if err != nil {
			return errors.IO(errors.ErrorReadSource, "reading preprocessed file", err)
		}

		flog.Debug("building AST via frontend")
		unit, err := fe.Build(inputPath, string(srcBytes))
		if err != nil {
			return err
		}

		if opts.StopAfterParse {
			flog.Info("stopping after parse")
			fmt.Printf("AST for %s: %+v\n", inputPath, unit)
			continue
		}

		reg := types.NewRegistry()
		lowerer := lower.New(reg, inputPath)
		flog.Debug("lowering AST to SSA IR")
		prog, err := lowerer.LowerProgram(unit)
		if err != nil {
			return err
		}

		flog.Debug("running optimizer pipeline")
		optimize.RunProgram(prog, optimize.NewPipeline())

		if opts.StopAfterCodegen {
			flog.Info("stopping after optimization, before code generation")
			fmt.Printf("IR for %s:\n%s", inputPath, ir.Print(prog))
			continue
		}

		conv := abi.For(opts.Target)
		flog.WithField("abi", conv.Name()).Debug("selecting instructions")
		result := codegen.GenProgram(prog, conv)
		asmText := peephole.EmitProgram(result)

		asmPath := stem + ".s"
		if err := os.WriteFile(asmPath, []byte(asmText), 0o644); err != nil {
			return errors.IO(errors.ErrorWriteOutput, "writing assembly file", err)
		}
		asmPaths = append(asmPaths, asmPath)
	}

	if opts.StopAfterLex || opts.StopAfterParse || opts.StopAfterCodegen {
		for _, p := range preprocessedPaths {
			cleanup(p)
		}
		return nil
	}

	if opts.EmitAsmOnly {
		for _, p := range preprocessedPaths {
			cleanup(p)
		}
		return nil
	}

	if opts.CompileOnly {
		for _, asmPath := range asmPaths {
			objPath := opts.Output
			if objPath == "" || len(asmPaths) > 1 {
				objPath = strings.TrimSuffix(asmPath, ".s") + ".o"
			}
			if err := assemble(run, asmPath, objPath); err != nil {
				return err
			}
		}
		for _, p := range preprocessedPaths {
			cleanup(p)
		}
		for _, p := range asmPaths {
			cleanup(p)
		}
		return nil
	}

	outputName := opts.Output
	if outputName == "" {
		first := strings.TrimSuffix(filepath.Base(opts.InputPaths[0]), filepath.Ext(opts.InputPaths[0]))
		outputName = first + executableExtension(opts.Target)
	}

	log.Debug("linking")
	if err := link(run, asmPaths, outputName, opts); err != nil {
		return err
	}
	fmt.Printf("Compilation successful. Generated executable: %s\n", outputName)

	for _, p := range preprocessedPaths {
		cleanup(p)
	}
	for _, p := range asmPaths {
		cleanup(p)
	}
	return nil
}

func executableExtension(p abi.Platform) string {
	if p == abi.Windows {
		return ".exe"
	}
	return ""
}
