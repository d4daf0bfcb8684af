package driver

import (
	"os/exec"

	"x64cc/internal/errors"
)

// CommandRunner executes an external command to completion. The default
// implementation shells out via os/exec; tests inject a fake so they can
// exercise orchestration without gcc installed.
type CommandRunner interface {
	Run(name string, args []string) error
}

type execRunner struct{}

func (execRunner) Run(name string, args []string) error {
	cmd := exec.Command(name, args...)
	return cmd.Run()
}

// preprocess shells to gcc's -E -P stage, forwarding -D/-U/-I/--include and
// -ffreestanding, writing the result to outPath.
func preprocess(run CommandRunner, inputPath, outPath string, opts Options) error {
	args := []string{"-E", "-P"}
	for _, d := range opts.Defines {
		args = append(args, "-D"+d)
	}
	for _, u := range opts.Undefines {
		args = append(args, "-U"+u)
	}
	for _, i := range opts.IncludePaths {
		args = append(args, "-I"+i)
	}
	for _, inc := range opts.ForceIncludes {
		args = append(args, "-include", inc)
	}
	if opts.Freestanding {
		args = append(args, "-ffreestanding")
	}
	args = append(args, inputPath, "-o", outPath)

	if err := run.Run("gcc", args); err != nil {
		return errors.IO(errors.ErrorSubprocess, "preprocessing "+inputPath+" failed", err)
	}
	return nil
}

// assemble shells to gcc -c to turn one .s file into a .o file.
func assemble(run CommandRunner, asmPath, objPath string) error {
	if err := run.Run("gcc", []string{"-c", asmPath, "-o", objPath}); err != nil {
		return errors.IO(errors.ErrorSubprocess, "assembling "+asmPath+" failed", err)
	}
	return nil
}

// link shells to gcc to drive the system linker over every assembled file.
func link(run CommandRunner, asmPaths []string, outputPath string, opts Options) error {
	args := append([]string{}, asmPaths...)
	args = append(args, "-o", outputPath)
	if opts.Nostdlib {
		args = append(args, "-nostdlib")
	}
	if opts.Freestanding {
		args = append(args, "-ffreestanding")
	}
	if err := run.Run("gcc", args); err != nil {
		return errors.IO(errors.ErrorSubprocess, "linking "+outputPath+" failed", err)
	}
	return nil
}
