// Package fai defines the core value types of the instruction set: Function,
// Register, Operand, Instruction, State, and Flags. These are pure data; all
// transitions over them live in internal/interp.
package fai

import "fmt"

// Register selects one of the four general-purpose registers.
type Register uint8

const (
	A Register = iota
	B
	C
	D
)

func (r Register) String() string {
	switch r {
	case A:
		return "a"
	case B:
		return "b"
	case C:
		return "c"
	case D:
		return "d"
	default:
		return "?"
	}
}

// RegisterFromByte decodes the 2-bit register field used throughout the
// bitcode and ROM layout. Only the low two bits are consulted.
func RegisterFromByte(b uint32) Register {
	return Register(b & 0x3)
}

// Function enumerates the 37 opcodes of the instruction set: data movement,
// control flow, arithmetic/logic, and the system group, plus the sentinel Bad
// used for decode failure.
type Function uint16

const (
	Bad Function = iota

	Nop
	Set
	Load
	Store

	Cmp
	Branch
	BranchL
	BranchG
	BranchE
	BranchNE

	GetSp
	SetSp
	Push
	Pop
	Call
	Ret

	Add
	Sub
	Mul
	Div
	DivMod

	Not
	And
	Or
	Xor
	Lsh
	Rsh

	Halt
	IntSw
	IntHw
	IntPause
	IntCont
	IntHGet
	IntHSet
	IntExit

	Trace
)

var functionNames = map[Function]string{
	Bad: "bad",

	Nop:   "nop",
	Set:   "set",
	Load:  "load",
	Store: "store",

	Cmp:      "cmp",
	Branch:   "branch",
	BranchL:  "branchl",
	BranchG:  "branchg",
	BranchE:  "branche",
	BranchNE: "branchne",

	GetSp: "getsp",
	SetSp: "setsp",
	Push:  "push",
	Pop:   "pop",
	Call:  "call",
	Ret:   "ret",

	Add:    "add",
	Sub:    "sub",
	Mul:    "mul",
	Div:    "div",
	DivMod: "divmod",

	Not: "not",
	And: "and",
	Or:  "or",
	Xor: "xor",
	Lsh: "lsh",
	Rsh: "rsh",

	Halt:     "halt",
	IntSw:    "intsw",
	IntHw:    "inthw",
	IntPause: "intpause",
	IntCont:  "intcont",
	IntHGet:  "inthget",
	IntHSet:  "inthset",
	IntExit:  "intexit",

	Trace: "trace",
}

var nameToFunction map[string]Function

func init() {
	nameToFunction = make(map[string]Function, len(functionNames))
	for f, name := range functionNames {
		nameToFunction[name] = f
	}
}

func (f Function) String() string {
	if s, ok := functionNames[f]; ok {
		return s
	}
	return "bad"
}

// FunctionByName looks up a Function from its lowercase assembly mnemonic.
// The match is exact (no case folding); unknown mnemonics report ok == false.
func FunctionByName(name string) (Function, bool) {
	f, ok := nameToFunction[name]
	return f, ok
}

// OperandKind distinguishes the three operand shapes: register, constant, and
// PC-relative.
type OperandKind uint8

const (
	OperandReg OperandKind = iota
	OperandConst
	OperandRelative
)

// Operand is a tagged union: exactly one of the three fields is meaningful,
// selected by Kind.
type Operand struct {
	Kind     OperandKind
	Reg      Register
	Const    uint32
	Relative int32
}

func OperandRegister(r Register) Operand { return Operand{Kind: OperandReg, Reg: r} }
func OperandConstant(c uint32) Operand   { return Operand{Kind: OperandConst, Const: c} }
func OperandRel(rel int32) Operand       { return Operand{Kind: OperandRelative, Relative: rel} }

func (o Operand) String() string {
	switch o.Kind {
	case OperandReg:
		return o.Reg.String()
	case OperandConst:
		return fmt.Sprintf("0x%x", o.Const)
	case OperandRelative:
		if o.Relative >= 0 {
			return fmt.Sprintf("$+0x%x", o.Relative)
		}
		return fmt.Sprintf("$-0x%x", -o.Relative)
	default:
		return "?"
	}
}

// Instruction is the triple (function, destination register, operand).
type Instruction struct {
	Function Function
	Register Register
	Operand  Operand
}

func (i Instruction) String() string {
	return fmt.Sprintf("%s %s [%s]", i.Function, i.Register, i.Operand)
}

// Flags packs the three comparison bits and the interrupt-pause bit into the
// positions IntExit/IntSw persist them at when saved to memory as a u32.
type Flags struct {
	CmpL     bool
	CmpG     bool
	CmpE     bool
	IntPause bool
}

const (
	flagBitCmpL     = 0
	flagBitCmpG     = 1
	flagBitCmpE     = 2
	flagBitIntPause = 9
)

// Pack serializes Flags into the bit positions named in the data model.
func (f Flags) Pack() uint32 {
	var v uint32
	if f.CmpL {
		v |= 1 << flagBitCmpL
	}
	if f.CmpG {
		v |= 1 << flagBitCmpG
	}
	if f.CmpE {
		v |= 1 << flagBitCmpE
	}
	if f.IntPause {
		v |= 1 << flagBitIntPause
	}
	return v
}

// UnpackFlags is the inverse of Pack, used by IntExit to restore flags from
// a stack word.
func UnpackFlags(v uint32) Flags {
	return Flags{
		CmpL:     v&(1<<flagBitCmpL) != 0,
		CmpG:     v&(1<<flagBitCmpG) != 0,
		CmpE:     v&(1<<flagBitCmpE) != 0,
		IntPause: v&(1<<flagBitIntPause) != 0,
	}
}

// State is the full CPU register file. It is treated as an immutable value
// by the interpreter: every transition returns a new State rather than
// mutating the receiver (see internal/interp).
type State struct {
	Ip uint32
	Sp uint32

	Areg uint32
	Breg uint32
	Creg uint32
	Dreg uint32

	Inth uint32

	// IntOutgoing is the hardware interrupt code queued by IntHw for the CPU
	// shell to forward to the addressed device after the current instruction
	// completes. A nil pointer means no interrupt is pending.
	IntOutgoing *uint32

	Halt  bool
	Flags Flags
}

// Register returns the current value of one of the four general registers.
func (s State) Register(r Register) uint32 {
	switch r {
	case A:
		return s.Areg
	case B:
		return s.Breg
	case C:
		return s.Creg
	case D:
		return s.Dreg
	default:
		return 0
	}
}

// RegisterModify returns a copy of s with register r replaced by f(current).
func (s State) RegisterModify(r Register, f func(uint32) uint32) State {
	switch r {
	case A:
		s.Areg = f(s.Areg)
	case B:
		s.Breg = f(s.Breg)
	case C:
		s.Creg = f(s.Creg)
	case D:
		s.Dreg = f(s.Dreg)
	}
	return s
}

// RegisterSet is RegisterModify with a constant replacement function.
func (s State) RegisterSet(r Register, v uint32) State {
	return s.RegisterModify(r, func(uint32) uint32 { return v })
}

// Operand resolves an operand to its u32 value against this state.
// ipAtDecode is the instruction pointer value immediately after fetch
// advanced it past this instruction (i.e. state.Ip at interpretation time);
// Relative operands resolve to (ipAtDecode - 2) + rel, so that "$" in
// assembly source refers to the address of the current instruction.
func (s State) Operand(op Operand, ipAtDecode uint32) uint32 {
	switch op.Kind {
	case OperandReg:
		return s.Register(op.Reg)
	case OperandConst:
		return op.Const
	case OperandRelative:
		return uint32(int64(ipAtDecode) - 2 + int64(op.Relative))
	default:
		return 0
	}
}
