package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"x64cc/internal/abi"
	"x64cc/internal/driver"
	"x64cc/internal/errors"
	"x64cc/internal/frontend"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.Red("x64cc: %s", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		output           string
		lex              bool
		parse            bool
		codegen          bool
		emitAsm          bool
		compileOnly      bool
		keepIntermediates bool
		debug            bool
		defines          []string
		undefines        []string
		includePaths     []string
		forceIncludes    []string
		nostdlib         bool
		freestanding     bool
		windows          bool
	)

	cmd := &cobra.Command{
		Use:     "x64cc [flags] <file.c...>",
		Short:   "A C-to-x86-64 compiler driver: SSA optimization, register allocation, and code generation",
		Version: "0.1.0",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := abi.Linux
			if windows || viper.GetBool("windows") {
				target = abi.Windows
			}

			log := logrus.New()
			if debug || viper.GetBool("debug") {
				log.SetLevel(logrus.DebugLevel)
				// The SSA lowerer and register colorer trace their
				// decisions on the package-level logger.
				logrus.SetLevel(logrus.DebugLevel)
			}

			opts := driver.Options{
				InputPaths:        args,
				Output:            output,
				StopAfterLex:      lex,
				StopAfterParse:    parse,
				StopAfterCodegen:  codegen,
				EmitAsmOnly:       emitAsm,
				CompileOnly:       compileOnly,
				KeepIntermediates: keepIntermediates || viper.GetBool("keep_intermediates"),
				Debug:             debug,
				Defines:           append(defines, viper.GetStringSlice("defines")...),
				Undefines:         undefines,
				IncludePaths:      append(includePaths, viper.GetStringSlice("include_paths")...),
				ForceIncludes:     forceIncludes,
				Nostdlib:          nostdlib,
				Freestanding:      freestanding,
				Target:            target,
			}

			if err := driver.Run(opts, frontend.Unimplemented{}, log); err != nil {
				if ce, ok := err.(errors.CompilerError); ok {
					return fmt.Errorf("[%s] %s", ce.Code, ce.Message)
				}
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&output, "output", "o", "", "output executable name")
	flags.BoolVarP(&lex, "lex", "l", false, "run the frontend up to lexing only")
	flags.BoolVarP(&parse, "parse", "p", false, "run the frontend up to parsing only")
	flags.BoolVar(&codegen, "codegen", false, "stop after optimization, before instruction selection")
	flags.BoolVarP(&emitAsm, "emit-asm", "S", false, "emit assembly but do not assemble or link")
	flags.BoolVarP(&compileOnly, "compile-only", "c", false, "compile and assemble but do not link")
	flags.BoolVar(&keepIntermediates, "keep-intermediates", false, "keep .i/.s intermediate files")
	flags.BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	flags.StringArrayVarP(&defines, "define", "D", nil, "preprocessor macro definition (NAME or NAME=VALUE)")
	flags.StringArrayVarP(&undefines, "undefine", "U", nil, "undefine a preprocessor macro")
	flags.StringArrayVarP(&includePaths, "include-path", "I", nil, "additional include search path")
	flags.StringArrayVar(&forceIncludes, "include", nil, "force-include a header file")
	flags.BoolVar(&nostdlib, "nostdlib", false, "build without the standard library")
	flags.BoolVar(&freestanding, "ffreestanding", false, "freestanding environment, no hosted assumptions")
	flags.BoolVar(&windows, "windows", false, "target the Windows x64 calling convention instead of System V")

	cobra.OnInitialize(func() {
		viper.SetConfigName("x64cc")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.SetEnvPrefix("X64CC")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()
	})

	return cmd
}
