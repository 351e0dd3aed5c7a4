// Package asmback implements the assembler's two-pass back end: given a
// sequence of labeled sections built from AsmBlock values, it computes each
// label's word offset (layout pass) and then emits the final bitcode,
// resolving label references to PC-relative deltas (emit pass). The parser
// that produces the section/block stream lives in internal/asmparse.
package asmback

import (
	"encoding/binary"
	"fmt"

	"github.com/devyn/fai/internal/bitcode"
	"github.com/devyn/fai/internal/fai"
)

// Endianness selects how a Bytes block packs its payload into words.
type Endianness int

const (
	LittleEndian Endianness = iota
	BigEndian
)

// OperandRef is an AsmBlock instruction operand before label resolution:
// either a concrete fai.Operand, or a reference to a label (with a
// user-supplied additional offset) resolved during the emit pass.
type OperandRef struct {
	Concrete *fai.Operand
	Label    string
	Offset   int32
}

func ConcreteOperand(op fai.Operand) OperandRef { return OperandRef{Concrete: &op} }
func LabelOperand(label string, offset int32) OperandRef {
	return OperandRef{Label: label, Offset: offset}
}

// AsmInstruction is a block instruction prior to label resolution: register
// and operand are both optional, matching the grammar's `func [reg] [[op]]`
// shape (an absent operand defaults to Const(0) at emit time).
type AsmInstruction struct {
	Function fai.Function
	Register *fai.Register
	Operand  *OperandRef
}

// BlockKind tags an AsmBlock variant.
type BlockKind int

const (
	BlockInstruction BlockKind = iota
	BlockWords
	BlockBytes
)

// AsmBlock is one unit of assembler output: an instruction, a raw word
// array, or a byte array packed into words.
type AsmBlock struct {
	Kind        BlockKind
	Instruction AsmInstruction
	Words       []uint32
	Bytes       []byte
	Endianness  Endianness
}

// Size reports the number of 32-bit words this block occupies, per the
// layout rules: an instruction is 1 word if its operand will compact
// (register, absent, or Const(0)) and 2 otherwise; raw words are their own
// length; bytes round up to whole words.
func (b AsmBlock) Size() uint32 {
	switch b.Kind {
	case BlockInstruction:
		return instructionSize(b.Instruction)
	case BlockWords:
		return uint32(len(b.Words))
	case BlockBytes:
		n := uint32(len(b.Bytes))
		words := n / 4
		if n%4 != 0 {
			words++
		}
		return words
	default:
		return 0
	}
}

func instructionSize(inst AsmInstruction) uint32 {
	if inst.Operand == nil {
		return 1 // absent operand defaults to Const(0): compact
	}
	if inst.Operand.Label != "" || inst.Operand.Concrete == nil {
		return 2 // label references always resolve to Relative: two words
	}
	return bitcode.Size(fai.Instruction{Function: inst.Function, Operand: *inst.Operand.Concrete})
}

// Section is one labeled run of blocks, as produced by the parser. The
// label may be empty for a leading, unlabeled section.
type Section struct {
	Label  string
	Blocks []AsmBlock
}

// SizeMismatchError is an internal bug-check: the emit pass wrote a
// different number of words for a block than the layout pass computed. The
// label names the section holding that block.
type SizeMismatchError struct {
	Label    string
	Expected uint32
	Actual   uint32
}

func (e SizeMismatchError) Error() string {
	return fmt.Sprintf("asmback: size mismatch in section %q: layout pass computed %d words, emit pass wrote %d",
		e.Label, e.Expected, e.Actual)
}

// LabelUnresolvedError names a label referenced by an operand but never
// defined by any section.
type LabelUnresolvedError struct {
	Label string
}

func (e LabelUnresolvedError) Error() string {
	return fmt.Sprintf("asmback: label not found: %s", e.Label)
}

// Assemble runs both passes over sections and returns the flat bitcode
// word stream.
func Assemble(sections []Section) ([]uint32, error) {
	labelOffsets := make(map[string]uint32, len(sections))
	var ptr uint32
	for _, sec := range sections {
		if sec.Label != "" {
			labelOffsets[sec.Label] = ptr
		}
		var size uint32
		for _, b := range sec.Blocks {
			size += b.Size()
		}
		ptr += size
	}

	var out []uint32
	ptr = 0

	resolve := func(currentPtr uint32, label string, userOffset int32) (int32, error) {
		off, ok := labelOffsets[label]
		if !ok {
			return 0, LabelUnresolvedError{Label: label}
		}
		return int32(off) - int32(currentPtr) + userOffset, nil
	}

	for _, sec := range sections {
		for _, b := range sec.Blocks {
			before := ptr
			var err error
			ptr, err = emitBlock(b, ptr, &out, resolve)
			if err != nil {
				return nil, err
			}
			if ptr-before != b.Size() {
				return nil, SizeMismatchError{Label: sec.Label, Expected: b.Size(), Actual: ptr - before}
			}
		}
	}

	return out, nil
}

func emitBlock(
	b AsmBlock,
	ptr uint32,
	out *[]uint32,
	resolve func(uint32, string, int32) (int32, error),
) (uint32, error) {
	switch b.Kind {
	case BlockInstruction:
		return emitInstruction(b.Instruction, ptr, out, resolve)
	case BlockWords:
		*out = append(*out, b.Words...)
		return ptr + uint32(len(b.Words)), nil
	case BlockBytes:
		return emitBytes(b, ptr, out)
	default:
		return ptr, fmt.Errorf("asmback: unknown block kind %d", b.Kind)
	}
}

func emitInstruction(
	inst AsmInstruction,
	ptr uint32,
	out *[]uint32,
	resolve func(uint32, string, int32) (int32, error),
) (uint32, error) {
	reg := fai.A
	if inst.Register != nil {
		reg = *inst.Register
	}

	var operand fai.Operand
	switch {
	case inst.Operand == nil:
		operand = fai.OperandConstant(0)
	case inst.Operand.Label != "":
		rel, err := resolve(ptr, inst.Operand.Label, inst.Operand.Offset)
		if err != nil {
			return ptr, err
		}
		operand = fai.OperandRel(rel)
	default:
		operand = *inst.Operand.Concrete
	}

	full := fai.Instruction{Function: inst.Function, Register: reg, Operand: operand}
	words := bitcode.Encode(full)
	*out = append(*out, words...)
	return ptr + uint32(len(words)), nil
}

func emitBytes(b AsmBlock, ptr uint32, out *[]uint32) (uint32, error) {
	data := b.Bytes
	for i := 0; i < len(data); i += 4 {
		var word [4]byte
		copy(word[:], data[i:])
		var w uint32
		if b.Endianness == BigEndian {
			w = binary.BigEndian.Uint32(word[:])
		} else {
			w = binary.LittleEndian.Uint32(word[:])
		}
		*out = append(*out, w)
		ptr++
	}
	return ptr, nil
}
