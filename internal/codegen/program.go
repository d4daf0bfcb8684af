package codegen

import (
	"math"

	"x64cc/internal/abi"
	"x64cc/internal/ir"
	"x64cc/internal/types"
)

// Result is the code generator's output for a whole translation unit: one
// Instr list per function plus the data-section declarations codegen
// derived from the program's globals and constant pools, in the shape
// internal/peephole and the final emitter expect.
type Result struct {
	Functions map[string][]Instr
	Order     []string
	Data      []DataDecl
}

// DataDecl is one `.data`/`.rodata` entry: a named, sized blob with an
// optional literal initializer (nil means zero-initialized, as for a
// tentative global definition).
type DataDecl struct {
	Label       string
	Size        int
	Initializer []byte
	ReadOnly    bool
}

// GenProgram selects instructions for every function in prog under conv,
// plus the data declarations its globals and interned constants need.
func GenProgram(prog *ir.Program, conv abi.Convention) *Result {
	floatLabel := make(map[uint64]string, len(prog.FloatConsts))
	for _, fc := range prog.FloatConsts {
		floatLabel[fc.Bits] = fc.Label
	}

	res := &Result{Functions: make(map[string][]Instr)}
	for _, fn := range prog.Functions {
		res.Order = append(res.Order, fn.Name)
		res.Functions[fn.Name] = Gen(fn, conv, prog.Structs, floatLabel)
	}

	for _, s := range prog.GlobalStrings {
		res.Data = append(res.Data, DataDecl{Label: s.Label, Size: len(s.Content) + 1, Initializer: append([]byte(s.Content), 0), ReadOnly: true})
	}
	for _, fc := range prog.FloatConsts {
		bits := math.Float64bits(fc.Value)
		buf := make([]byte, 8)
		for i := 0; i < 8; i++ {
			buf[i] = byte(bits >> (8 * i))
		}
		res.Data = append(res.Data, DataDecl{Label: fc.Label, Size: 8, Initializer: buf, ReadOnly: true})
	}
	for _, gl := range prog.Globals {
		size := 8
		if gl.Type != nil {
			size = types.Size(gl.Type, prog.Structs)
		}
		res.Data = append(res.Data, DataDecl{Label: gl.Name, Size: size, Initializer: gl.Initializer})
	}

	return res
}
