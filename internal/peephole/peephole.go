// Package peephole applies pattern-based cleanups to a selected x86-64
// instruction list after register allocation: self-moves, redundant
// register-to-register forwarding, identity arithmetic, jump-chain
// collapsing, and dead label removal.
package peephole

import (
	"x64cc/internal/abi"
	"x64cc/internal/codegen"
)

// Apply runs the jump-chain pass once, then repeatedly tries every local
// pattern until none of them fire anymore, returning the possibly-shorter
// instruction list.
func Apply(instructions []codegen.Instr) []codegen.Instr {
	instructions = eliminateJumpChains(instructions)

	i := 0
	for i < len(instructions) {
		next, removed := tryOptimizeAt(instructions, i)
		instructions = next
		if !removed {
			i++
		}
	}
	return instructions
}

// eliminateJumpChains finds label-then-jmp pairs acting as pure aliases
// (label A immediately jumps to B), resolves transitive chains A->B->C down
// to their final target, redirects every jmp/jcc accordingly, then removes
// any label+jmp pair left with no remaining reference, dropping it entirely
// when nothing can fall through to it.
func eliminateJumpChains(instructions []codegen.Instr) []codegen.Instr {
	jumpTargets := make(map[string]string)
	for i := 0; i+1 < len(instructions); i++ {
		if instructions[i].Op == codegen.OpLabel && instructions[i+1].Op == codegen.OpJmp {
			jumpTargets[instructions[i].Text] = instructions[i+1].Text
		}
	}

	for iter := 0; iter < 10; iter++ {
		changed := false
		for label, target := range jumpTargets {
			if next, ok := jumpTargets[target]; ok && next != label {
				jumpTargets[label] = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	for i := range instructions {
		if instructions[i].Op != codegen.OpJmp && instructions[i].Op != codegen.OpJcc {
			continue
		}
		if t, ok := jumpTargets[instructions[i].Text]; ok {
			instructions[i].Text = t
		}
	}

	i := 0
	for i+1 < len(instructions) {
		if instructions[i].Op != codegen.OpLabel || instructions[i+1].Op != codegen.OpJmp {
			i++
			continue
		}
		label := instructions[i].Text
		referenced := false
		for j, in := range instructions {
			if j == i {
				continue
			}
			if (in.Op == codegen.OpJmp || in.Op == codegen.OpJcc) && in.Text == label {
				referenced = true
				break
			}
		}
		if referenced {
			i++
			continue
		}

		fallthroughReachable := true
		if i > 0 {
			switch instructions[i-1].Op {
			case codegen.OpJmp, codegen.OpRet:
				fallthroughReachable = false
			}
		}
		if fallthroughReachable {
			instructions = append(instructions[:i], instructions[i+1:]...)
		} else {
			instructions = append(instructions[:i], instructions[i+2:]...)
		}
	}
	return instructions
}

// tryOptimizeAt attempts every local pattern at index i, returning the
// (possibly shortened) instruction list and whether one fired.
func tryOptimizeAt(instructions []codegen.Instr, i int) ([]codegen.Instr, bool) {
	in := instructions[i]

	if in.Op == codegen.OpMov && in.Dst.Kind == codegen.KindReg && in.Src.Kind == codegen.KindReg && in.Dst.Reg == in.Src.Reg {
		return append(instructions[:i], instructions[i+1:]...), true
	}

	if i+1 < len(instructions) {
		next := instructions[i+1]
		if in.Op == codegen.OpMov && in.Dst.Kind == codegen.KindReg &&
			next.Op == codegen.OpMov && next.Src.Kind == codegen.KindReg && next.Src.Reg == in.Dst.Reg {
			if !isRegUsedAfter(instructions, i+2, in.Dst.Reg) {
				memToMem := in.Src.Kind == codegen.KindMem && next.Dst.Kind == codegen.KindMem
				if !memToMem {
					instructions[i] = codegen.Instr{Op: codegen.OpMov, Dst: next.Dst, Src: in.Src}
					return append(instructions[:i+1], instructions[i+2:]...), true
				}
			}
		}
	}

	if (in.Op == codegen.OpAdd || in.Op == codegen.OpSub) && in.Src.Kind == codegen.KindImm && in.Src.Imm == 0 {
		return append(instructions[:i], instructions[i+1:]...), true
	}

	if in.Op == codegen.OpImul && in.Src.Kind == codegen.KindImm && in.Src.Imm == 1 {
		return append(instructions[:i], instructions[i+1:]...), true
	}

	if i+1 < len(instructions) {
		next := instructions[i+1]
		if in.Op == codegen.OpMov && in.Dst.Kind == codegen.KindReg && in.Src.Kind == codegen.KindImm &&
			next.Op == codegen.OpAdd && next.Dst.Kind == codegen.KindReg && next.Dst.Reg == in.Dst.Reg &&
			next.Src.Kind == codegen.KindReg && in.Src.Imm >= -128 && in.Src.Imm <= 127 {
			instructions[i] = codegen.Instr{
				Op:  codegen.OpLea,
				Dst: in.Dst,
				Src: codegen.Mem(next.Src.Reg, int32(in.Src.Imm), codegen.SizeQword),
			}
			return append(instructions[:i+1], instructions[i+2:]...), true
		}
	}

	// mov reg, [dword mem]; movsx reg2, reg -> movsx reg2, [dword mem].
	// Safe to fuse directly off the memory operand's own Size tag rather
	// than inferring width from which physical register name was printed,
	// which is what made the equivalent original pass miscompile.
	if i+1 < len(instructions) {
		next := instructions[i+1]
		if in.Op == codegen.OpMov && in.Dst.Kind == codegen.KindReg && in.Src.Kind == codegen.KindMem && in.Src.Size == codegen.SizeDword &&
			next.Op == codegen.OpMovsx && next.Src.Kind == codegen.KindReg && next.Src.Reg == in.Dst.Reg {
			if !isRegUsedAfter(instructions, i+2, in.Dst.Reg) {
				instructions[i] = codegen.Instr{Op: codegen.OpMovsx, Dst: next.Dst, Src: in.Src}
				return append(instructions[:i+1], instructions[i+2:]...), true
			}
		}
	}

	return instructions, false
}

// isRegUsedAfter conservatively reports whether r is read or written by any
// instruction from start onward. Control-flow and call instructions are
// treated as using every register, since anything could be live across them.
func isRegUsedAfter(instructions []codegen.Instr, start int, r abi.Reg) bool {
	for _, in := range instructions[start:] {
		switch in.Op {
		case codegen.OpMov, codegen.OpAdd, codegen.OpSub, codegen.OpAnd, codegen.OpOr, codegen.OpXor,
			codegen.OpLea, codegen.OpShl, codegen.OpShr, codegen.OpSar, codegen.OpTest,
			codegen.OpMovsx, codegen.OpMovzx, codegen.OpMovss, codegen.OpMovsd,
			codegen.OpAddss, codegen.OpSubss, codegen.OpMulss, codegen.OpDivss,
			codegen.OpAddsd, codegen.OpSubsd, codegen.OpMulsd, codegen.OpDivsd,
			codegen.OpUcomiss, codegen.OpUcomisd, codegen.OpXorps,
			codegen.OpCvtsi2ss, codegen.OpCvtsi2sd, codegen.OpCvttss2si, codegen.OpCvttsd2si,
			codegen.OpCvtss2sd, codegen.OpCvtsd2ss:
			if matchesReg(in.Dst, r) || matchesReg(in.Src, r) {
				return true
			}
		case codegen.OpImul, codegen.OpCmp:
			if matchesReg(in.Src, r) {
				return true
			}
		case codegen.OpNeg, codegen.OpNot, codegen.OpIdiv, codegen.OpPush, codegen.OpPop,
			codegen.OpSetCC, codegen.OpCallIndirect:
			if matchesReg(in.Dst, r) {
				return true
			}
		case codegen.OpLabel, codegen.OpJmp, codegen.OpJcc, codegen.OpCall,
			codegen.OpRet, codegen.OpLeave, codegen.OpCqo:
			return true
		default:
			return true
		}
	}
	return false
}

func matchesReg(o codegen.Operand, r abi.Reg) bool {
	switch o.Kind {
	case codegen.KindReg:
		return o.Reg == r
	case codegen.KindMem:
		return o.Base == r
	default:
		return false
	}
}
