// Package optimize rewrites SSA-form IR (internal/ir) in place: promoting
// memory to registers, folding and simplifying arithmetic, eliminating
// redundant and dead computation, and flattening trivial control flow.
// Passes run to a fixpoint per function, then VerifySSA confirms the result
// is still well-formed before handing off to register allocation.
package optimize

import "x64cc/internal/ir"

// Pass is a single optimization transformation over one function.
type Pass interface {
	Name() string
	Description() string
	// Run rewrites fn in place and reports whether it changed anything.
	Run(fn *ir.Function) bool
}

// Pipeline runs a fixed sequence of passes to a per-function fixpoint.
type Pipeline struct {
	passes  []Pass
	onTrace func(string)
}

// NewPipeline builds the default pass sequence: mem2reg must run first (it
// is the only pass that removes Alloca/Load/Store against promotable
// locals), constant folding and algebraic simplification feed each other,
// then copy propagation, CSE, load forwarding/DSE, DCE, and CFG
// simplification clean up what folding exposed.
func NewPipeline() *Pipeline {
	p := &Pipeline{}
	p.Add(&Mem2Reg{})
	p.Add(&ConstantFold{})
	p.Add(&Algebraic{})
	p.Add(&StrengthReduce{})
	p.Add(&CopyPropagate{})
	p.Add(&CSE{})
	p.Add(&LoadForward{})
	p.Add(&DCE{})
	p.Add(&CFGSimplify{})
	return p
}

// Add appends a pass to the pipeline.
func (p *Pipeline) Add(pass Pass) { p.passes = append(p.passes, pass) }

// Trace installs a callback invoked once per pass application (for a
// verbose/-fdump-* driver flag); nil disables tracing.
func (p *Pipeline) Trace(fn func(string)) { p.onTrace = fn }

// Run applies every pass to fn repeatedly until none reports a change,
// bounded to guard against a pass that oscillates.
func (p *Pipeline) Run(fn *ir.Function) {
	for round := 0; round < 32; round++ {
		changed := false
		for _, pass := range p.passes {
			if pass.Run(fn) {
				changed = true
				if p.onTrace != nil {
					p.onTrace(pass.Name())
				}
			}
		}
		if !changed {
			return
		}
	}
}

// RunProgram applies the pipeline to every function in prog.
func RunProgram(prog *ir.Program, p *Pipeline) {
	for _, fn := range prog.Functions {
		p.Run(fn)
	}
}
