// Package bitcode implements the two-word (and optional compact one-word)
// instruction encoding:
//
//	bits  0-15: function index
//	bits 16-17: destination register
//	bit   18  : operand kind (0 = constant/relative, 1 = register)
//	bits 19-20: operand register (when bit 18 = 1)
//	bit   21  : when bit 18 = 0, 1 => Relative (signed i32), 0 => Const
//	bit   22  : compact form: no second word; constant defaults to 0
//	bits 23-31: reserved (must be zero)
//	word 1    : constant or relative operand (when not compact)
package bitcode

import (
	"fmt"

	"github.com/devyn/fai/internal/fai"
)

const (
	bitOperandIsReg  = 18
	bitRelative      = 21
	bitCompact       = 22
	functionMask     = 0xFFFF
	registerMask     = 0x3
	registerShift    = 16
	opRegisterShift  = 19
)

// functionIndex is the fixed index table named in the data model, values
// 0x0000-0x0024 in declaration order; unknown values decode to fai.Bad.
var functionIndex = []fai.Function{
	fai.Bad,

	fai.Nop,
	fai.Set,
	fai.Load,
	fai.Store,

	fai.Cmp,
	fai.Branch,
	fai.BranchL,
	fai.BranchG,
	fai.BranchE,
	fai.BranchNE,

	fai.GetSp,
	fai.SetSp,
	fai.Push,
	fai.Pop,
	fai.Call,
	fai.Ret,

	fai.Add,
	fai.Sub,
	fai.Mul,
	fai.Div,
	fai.DivMod,

	fai.Not,
	fai.And,
	fai.Or,
	fai.Xor,
	fai.Lsh,
	fai.Rsh,

	fai.Halt,
	fai.IntSw,
	fai.IntHw,
	fai.IntPause,
	fai.IntCont,
	fai.IntHGet,
	fai.IntHSet,
	fai.IntExit,

	fai.Trace,
}

var functionToIndex map[fai.Function]uint32

func init() {
	functionToIndex = make(map[fai.Function]uint32, len(functionIndex))
	for idx, f := range functionIndex {
		functionToIndex[f] = uint32(idx)
	}
}

// EncodeFunction returns the fixed index of f.
func EncodeFunction(f fai.Function) uint32 {
	if idx, ok := functionToIndex[f]; ok {
		return idx
	}
	return 0
}

// DecodeFunction maps an index back to a Function; unknown indices decode to
// fai.Bad rather than erroring, matching the codec's total-decode contract.
func DecodeFunction(idx uint32) fai.Function {
	idx &= functionMask
	if int(idx) < len(functionIndex) {
		return functionIndex[idx]
	}
	return fai.Bad
}

func EncodeRegister(r fai.Register) uint32 { return uint32(r) & registerMask }
func DecodeRegister(v uint32) fai.Register { return fai.RegisterFromByte(v) }

// NeedMoreErr is returned by Decode when the header word is non-compact but
// only one word was supplied.
type NeedMoreErr struct{}

func (NeedMoreErr) Error() string { return "bitcode: second word required to decode instruction" }

// IsCompactable reports whether op can be encoded in the single-word compact
// form: a register operand, or a zero-valued constant (historical encoders
// always use the two-word form for Const; this codec permits the compact
// shortcut whenever it's unambiguous).
func IsCompactable(op fai.Operand) bool {
	switch op.Kind {
	case fai.OperandReg:
		return true
	case fai.OperandConst:
		return op.Const == 0
	default:
		return false
	}
}

// Encode produces the header word and, unless the operand is compactable,
// a second payload word. The returned slice has length 1 or 2.
func Encode(inst fai.Instruction) []uint32 {
	header := EncodeFunction(inst.Function) | (EncodeRegister(inst.Register) << registerShift)

	switch inst.Operand.Kind {
	case fai.OperandReg:
		header |= 1 << bitOperandIsReg
		header |= EncodeRegister(inst.Operand.Reg) << opRegisterShift
		return []uint32{header}

	case fai.OperandConst:
		if inst.Operand.Const == 0 {
			header |= 1 << bitCompact
			return []uint32{header}
		}
		return []uint32{header, inst.Operand.Const}

	case fai.OperandRelative:
		header |= 1 << bitRelative
		return []uint32{header, uint32(inst.Operand.Relative)}

	default:
		return []uint32{header, 0}
	}
}

// EncodeWords is a convenience wrapper returning exactly two words, padding
// the compact form's absent payload with zero. Used where callers always
// want the fixed two-word layout (e.g. the historical always-two-word
// assembler variant, or disassembly math over a flat word stream).
func EncodeWords(inst fai.Instruction) (uint32, uint32) {
	words := Encode(inst)
	if len(words) == 1 {
		return words[0], 0
	}
	return words[0], words[1]
}

// Decode reads an instruction from a 1- or 2-word slice. If the header is
// non-compact and only one word is available, it returns NeedMoreErr so the
// caller can request the second word.
func Decode(words []uint32) (fai.Instruction, error) {
	if len(words) == 0 {
		return fai.Instruction{}, fmt.Errorf("bitcode: no words to decode")
	}

	header := words[0]
	fi := header & functionMask
	ri := (header >> registerShift) & registerMask

	inst := fai.Instruction{
		Function: DecodeFunction(fi),
		Register: DecodeRegister(ri),
	}

	if (header>>bitOperandIsReg)&1 == 1 {
		opRi := (header >> opRegisterShift) & registerMask
		inst.Operand = fai.OperandRegister(DecodeRegister(opRi))
		return inst, nil
	}

	if (header>>bitCompact)&1 == 1 {
		inst.Operand = fai.OperandConstant(0)
		return inst, nil
	}

	if len(words) < 2 {
		return fai.Instruction{}, NeedMoreErr{}
	}

	if (header>>bitRelative)&1 == 1 {
		inst.Operand = fai.OperandRel(int32(words[1]))
	} else {
		inst.Operand = fai.OperandConstant(words[1])
	}

	return inst, nil
}

// Size reports how many words Encode(inst) would produce, without building
// the slice — used by the assembler's layout pass.
func Size(inst fai.Instruction) uint32 {
	if IsCompactable(inst.Operand) {
		return 1
	}
	return 2
}
