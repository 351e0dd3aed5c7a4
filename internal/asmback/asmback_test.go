package asmback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devyn/fai/internal/bitcode"
	"github.com/devyn/fai/internal/fai"
)

func TestAssembleResolvesForwardLabelToRelativeOffset(t *testing.T) {
	// A label-referencing Branch (always two words) in the first section,
	// followed by the "target" section holding a compact Halt.
	sections := []Section{
		{
			Blocks: []AsmBlock{
				{Kind: BlockInstruction, Instruction: AsmInstruction{
					Function: fai.Branch,
					Operand:  &OperandRef{Label: "target"},
				}},
			},
		},
		{
			Label: "target",
			Blocks: []AsmBlock{
				{Kind: BlockInstruction, Instruction: AsmInstruction{Function: fai.Halt}},
			},
		},
	}

	words, err := Assemble(sections)
	require.NoError(t, err)
	require.Len(t, words, 3) // Branch (2 words) + Halt (1 word, compact)

	inst, err := bitcode.Decode(words[:2])
	require.NoError(t, err)
	require.Equal(t, fai.OperandRelative, inst.Operand.Kind)
	// label offset (2) - current ptr at instruction start (0) = 2
	assert.Equal(t, int32(2), inst.Operand.Relative)
}

func TestAssembleUnresolvedLabelErrors(t *testing.T) {
	sections := []Section{
		{Blocks: []AsmBlock{
			{Kind: BlockInstruction, Instruction: AsmInstruction{
				Function: fai.Branch,
				Operand:  &OperandRef{Label: "nowhere"},
			}},
		}},
	}

	_, err := Assemble(sections)
	assert.ErrorAs(t, err, &LabelUnresolvedError{})
}

func TestAssembleWordsBlock(t *testing.T) {
	sections := []Section{
		{Blocks: []AsmBlock{
			{Kind: BlockWords, Words: []uint32{1, 2, 3}},
		}},
	}
	words, err := Assemble(sections)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3}, words)
}

func TestAssembleLenBytesMatchesDocumentedScenario(t *testing.T) {
	// ".len_bytes LE \"confirm \"" -> a length word followed by the LE-packed
	// payload: [0x00000008, 0x666e6f63, 0x206d7269].
	data := []byte("confirm ")
	sections := []Section{
		{Blocks: []AsmBlock{
			{Kind: BlockWords, Words: []uint32{uint32(len(data))}},
			{Kind: BlockBytes, Bytes: data, Endianness: LittleEndian},
		}},
	}

	words, err := Assemble(sections)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x00000008, 0x666e6f63, 0x206d7269}, words)
}

func TestAssembleBytesBigEndian(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04}
	sections := []Section{
		{Blocks: []AsmBlock{{Kind: BlockBytes, Bytes: data, Endianness: BigEndian}}},
	}
	words, err := Assemble(sections)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x01020304}, words)
}

func TestAsmBlockSizeAbsentOperandDefaultsToCompactConstZero(t *testing.T) {
	b := AsmBlock{Kind: BlockInstruction, Instruction: AsmInstruction{Function: fai.Nop}}
	assert.EqualValues(t, 1, b.Size())
}

func TestAsmBlockSizeLabelOperandAlwaysTwoWords(t *testing.T) {
	b := AsmBlock{Kind: BlockInstruction, Instruction: AsmInstruction{
		Function: fai.Branch,
		Operand:  &OperandRef{Label: "x"},
	}}
	assert.EqualValues(t, 2, b.Size())
}
