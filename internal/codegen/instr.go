// Package codegen selects x86-64 instructions for a register-allocated IR
// function: frame layout, parameter marshalling, per-instruction lowering,
// and φ-resolution via parallel copies at block boundaries.
package codegen

import (
	"fmt"

	"x64cc/internal/abi"
)

// Operand is an assembly-level operand: a register, a memory reference at
// some offset from a base register, an immediate, a RIP-relative global, or
// a bare label.
type Operand struct {
	Kind Kind
	Reg  abi.Reg
	Base abi.Reg
	Off  int32
	Imm  int64
	Name string
	Size Size // memory operand width, ignored for non-memory operands
}

type Kind int

const (
	KindReg Kind = iota
	KindMem
	KindImm
	KindLabel
	KindGlobalRIP
	KindLabelRIP
)

// Size is the PTR-directive width of a memory operand.
type Size int

const (
	SizeQword Size = iota
	SizeDword
	SizeWord
	SizeByte
)

func (s Size) String() string {
	switch s {
	case SizeDword:
		return "DWORD"
	case SizeWord:
		return "WORD"
	case SizeByte:
		return "BYTE"
	default:
		return "QWORD"
	}
}

func Reg(r abi.Reg) Operand  { return Operand{Kind: KindReg, Reg: r} }
func Imm(v int64) Operand    { return Operand{Kind: KindImm, Imm: v} }
func Label(s string) Operand { return Operand{Kind: KindLabel, Name: s} }

func Mem(base abi.Reg, off int32, size Size) Operand {
	return Operand{Kind: KindMem, Base: base, Off: off, Size: size}
}

func GlobalRIP(name string, size Size) Operand {
	return Operand{Kind: KindGlobalRIP, Name: name, Size: size}
}

func LabelRIP(name string) Operand {
	return Operand{Kind: KindLabelRIP, Name: name}
}

func (o Operand) String() string {
	switch o.Kind {
	case KindReg:
		return o.Reg.String()
	case KindImm:
		return fmt.Sprintf("%d", o.Imm)
	case KindLabel:
		return o.Name
	case KindGlobalRIP:
		return fmt.Sprintf("%s PTR %s[rip]", o.Size, o.Name)
	case KindLabelRIP:
		return fmt.Sprintf("%s[rip]", o.Name)
	case KindMem:
		if o.Off >= 0 {
			return fmt.Sprintf("%s PTR [%s+%d]", o.Size, o.Base, o.Off)
		}
		return fmt.Sprintf("%s PTR [%s%d]", o.Size, o.Base, o.Off)
	default:
		return "?"
	}
}

// Op is an x86-64 opcode. Mnemonic strings are produced on demand by
// String() so the peephole pass can pattern-match on the Op value alone.
type Op int

const (
	OpMov Op = iota
	OpMovsx
	OpMovzx
	OpLea
	OpAdd
	OpSub
	OpImul
	OpIdiv
	OpNeg
	OpCqo
	OpCmp
	OpTest
	OpSetCC
	OpJmp
	OpJcc
	OpPush
	OpPop
	OpCall
	OpCallIndirect
	OpRet
	OpLeave
	OpLabel
	OpXor
	OpAnd
	OpOr
	OpNot
	OpShl
	OpShr
	OpSar
	OpMovss
	OpMovsd
	OpMovq
	OpAddss
	OpSubss
	OpMulss
	OpDivss
	OpAddsd
	OpSubsd
	OpMulsd
	OpDivsd
	OpUcomiss
	OpUcomisd
	OpCvtsi2ss
	OpCvtsi2sd
	OpCvttss2si
	OpCvttsd2si
	OpCvtss2sd
	OpCvtsd2ss
	OpXorps
	OpRaw
	OpComment
)

// Instr is one selected x86-64 instruction. Cond and Text carry the payload
// for OpJcc/OpSetCC (the condition suffix) and OpRaw/OpLabel/OpComment (the
// literal text), keeping the struct flat rather than a Rust-style enum of
// per-variant tuples.
type Instr struct {
	Op   Op
	Dst  Operand
	Src  Operand
	Cond string
	Text string
}

func mnemonic(op Op) string {
	switch op {
	case OpMov:
		return "mov"
	case OpMovsx:
		return "movsx"
	case OpMovzx:
		return "movzx"
	case OpLea:
		return "lea"
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpImul:
		return "imul"
	case OpIdiv:
		return "idiv"
	case OpNeg:
		return "neg"
	case OpCqo:
		return "cqo"
	case OpCmp:
		return "cmp"
	case OpTest:
		return "test"
	case OpPush:
		return "push"
	case OpPop:
		return "pop"
	case OpCall, OpCallIndirect:
		return "call"
	case OpRet:
		return "ret"
	case OpLeave:
		return "leave"
	case OpXor:
		return "xor"
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpNot:
		return "not"
	case OpShl:
		return "shl"
	case OpShr:
		return "shr"
	case OpSar:
		return "sar"
	case OpMovss:
		return "movss"
	case OpMovsd:
		return "movsd"
	case OpMovq:
		return "movq"
	case OpAddss:
		return "addss"
	case OpSubss:
		return "subss"
	case OpMulss:
		return "mulss"
	case OpDivss:
		return "divss"
	case OpAddsd:
		return "addsd"
	case OpSubsd:
		return "subsd"
	case OpMulsd:
		return "mulsd"
	case OpDivsd:
		return "divsd"
	case OpUcomiss:
		return "ucomiss"
	case OpUcomisd:
		return "ucomisd"
	case OpCvtsi2ss:
		return "cvtsi2ss"
	case OpCvtsi2sd:
		return "cvtsi2sd"
	case OpCvttss2si:
		return "cvttss2si"
	case OpCvttsd2si:
		return "cvttsd2si"
	case OpCvtss2sd:
		return "cvtss2sd"
	case OpCvtsd2ss:
		return "cvtsd2ss"
	case OpXorps:
		return "xorps"
	default:
		return ""
	}
}

// regAt renders a general-purpose register at a memory operand's width, so
// `mov DWORD PTR [rbp-8], rax` comes out as the legal
// `mov DWORD PTR [rbp-8], eax`.
func regAt(r abi.Reg, s Size) string {
	if r.IsFloat() {
		return r.String()
	}
	switch s {
	case SizeDword:
		return r.Sub32()
	case SizeWord:
		return r.Sub16()
	case SizeByte:
		return r.Sub8()
	default:
		return r.String()
	}
}

// String renders one line of Intel-syntax assembly (no trailing newline).
func (in Instr) String() string {
	switch in.Op {
	case OpLabel:
		return in.Text + ":"
	case OpRaw:
		return "  " + in.Text
	case OpComment:
		return "  ; " + in.Text
	case OpJmp:
		return fmt.Sprintf("  jmp %s", in.Text)
	case OpJcc:
		return fmt.Sprintf("  j%s %s", in.Cond, in.Text)
	case OpSetCC:
		// setcc writes one byte; the destination must be a byte register.
		if in.Dst.Kind == KindReg {
			return fmt.Sprintf("  set%s %s", in.Cond, in.Dst.Reg.Sub8())
		}
		return fmt.Sprintf("  set%s %s", in.Cond, in.Dst)
	case OpPush, OpPop:
		return fmt.Sprintf("  %s %s", mnemonic(in.Op), in.Dst)
	case OpCall:
		return fmt.Sprintf("  call %s", in.Text)
	case OpCallIndirect:
		return fmt.Sprintf("  call %s", in.Dst)
	case OpRet, OpLeave, OpCqo:
		return "  " + mnemonic(in.Op)
	case OpNeg, OpNot:
		return fmt.Sprintf("  %s %s", mnemonic(in.Op), in.Dst)
	case OpIdiv:
		return fmt.Sprintf("  idiv %s", in.Dst)
	case OpShl, OpShr, OpSar:
		// A variable shift count lives in cl.
		if in.Src.Kind == KindReg {
			return fmt.Sprintf("  %s %s, %s", mnemonic(in.Op), in.Dst, in.Src.Reg.Sub8())
		}
		return fmt.Sprintf("  %s %s, %s", mnemonic(in.Op), in.Dst, in.Src)
	case OpMovsx, OpMovzx:
		// Register sources are the byte accumulator (setcc results, char
		// values staged in a scratch register); memory sources carry their
		// own width tag.
		if in.Src.Kind == KindReg {
			return fmt.Sprintf("  %s %s, %s", mnemonic(in.Op), in.Dst, in.Src.Reg.Sub8())
		}
		return fmt.Sprintf("  %s %s, %s", mnemonic(in.Op), in.Dst, in.Src)
	case OpMov:
		// Width-tagged memory on either side narrows the register operand.
		if in.Dst.Kind == KindMem && in.Dst.Size != SizeQword && in.Src.Kind == KindReg {
			return fmt.Sprintf("  mov %s, %s", in.Dst, regAt(in.Src.Reg, in.Dst.Size))
		}
		if in.Src.Kind == KindMem && in.Src.Size != SizeQword && in.Dst.Kind == KindReg {
			return fmt.Sprintf("  mov %s, %s", regAt(in.Dst.Reg, in.Src.Size), in.Src)
		}
		return fmt.Sprintf("  mov %s, %s", in.Dst, in.Src)
	default:
		return fmt.Sprintf("  %s %s, %s", mnemonic(in.Op), in.Dst, in.Src)
	}
}
