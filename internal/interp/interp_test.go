package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devyn/fai/internal/fai"
	"github.com/devyn/fai/internal/membackend"
)

func step(t *testing.T, inst fai.Instruction, mem membackend.Backend, state fai.State) fai.State {
	t.Helper()
	next, err := Interpret(inst, mem, state)
	require.NoError(t, err)
	return next
}

func TestSetAndAdd(t *testing.T) {
	mem := membackend.NewDirect(16)
	s := fai.State{}

	s = step(t, fai.Instruction{Function: fai.Set, Register: fai.A, Operand: fai.OperandConstant(10)}, mem, s)
	s = step(t, fai.Instruction{Function: fai.Set, Register: fai.B, Operand: fai.OperandConstant(32)}, mem, s)
	s = step(t, fai.Instruction{Function: fai.Add, Register: fai.A, Operand: fai.OperandRegister(fai.B)}, mem, s)

	assert.Equal(t, uint32(42), s.Areg)
}

func TestCmpSetsExactlyOneExclusiveFlag(t *testing.T) {
	mem := membackend.NewDirect(1)

	cases := []struct {
		reg, other uint32
		l, g, e    bool
	}{
		{5, 10, true, false, false},
		{10, 5, false, true, false},
		{7, 7, false, false, true},
	}

	for _, c := range cases {
		s := fai.State{Areg: c.reg}
		s = step(t, fai.Instruction{Function: fai.Cmp, Register: fai.A, Operand: fai.OperandConstant(c.other)}, mem, s)
		assert.Equal(t, c.l, s.Flags.CmpL, "CmpL for %d vs %d", c.reg, c.other)
		assert.Equal(t, c.g, s.Flags.CmpG, "CmpG for %d vs %d", c.reg, c.other)
		assert.Equal(t, c.e, s.Flags.CmpE, "CmpE for %d vs %d", c.reg, c.other)
	}
}

func TestCmpPreservesIntPause(t *testing.T) {
	mem := membackend.NewDirect(1)
	s := fai.State{Flags: fai.Flags{IntPause: true}}

	s = step(t, fai.Instruction{Function: fai.Cmp, Register: fai.A, Operand: fai.OperandConstant(0)}, mem, s)

	assert.True(t, s.Flags.IntPause)
}

func TestDivideByZero(t *testing.T) {
	mem := membackend.NewDirect(1)
	s := fai.State{Areg: 10}

	_, err := Interpret(fai.Instruction{Function: fai.Div, Register: fai.A, Operand: fai.OperandConstant(0)}, mem, s)
	assert.ErrorIs(t, err, ErrDivideByZero)
}

func TestDivMod(t *testing.T) {
	mem := membackend.NewDirect(1)
	s := fai.State{Areg: 17}

	s = step(t, fai.Instruction{Function: fai.DivMod, Register: fai.A, Operand: fai.OperandConstant(5)}, mem, s)
	assert.Equal(t, uint32(3), s.Creg)
	assert.Equal(t, uint32(2), s.Dreg)
}

func TestPushPopRoundTrip(t *testing.T) {
	mem := membackend.NewDirect(16)
	s := fai.State{Sp: 16, Areg: 0x1234}

	s = step(t, fai.Instruction{Function: fai.Push, Register: fai.A, Operand: fai.OperandConstant(0)}, mem, s)
	assert.Equal(t, uint32(15), s.Sp)

	s = step(t, fai.Instruction{Function: fai.Pop, Register: fai.B, Operand: fai.OperandConstant(0)}, mem, s)
	assert.Equal(t, uint32(16), s.Sp)
	assert.Equal(t, uint32(0x1234), s.Breg)
}

func TestCallRet(t *testing.T) {
	mem := membackend.NewDirect(16)
	s := fai.State{Sp: 16, Ip: 100}

	s = step(t, fai.Instruction{Function: fai.Call, Register: fai.A, Operand: fai.OperandConstant(500)}, mem, s)
	assert.Equal(t, uint32(500), s.Ip)
	assert.Equal(t, uint32(15), s.Sp)

	s = step(t, fai.Instruction{Function: fai.Ret, Register: fai.A, Operand: fai.OperandConstant(0)}, mem, s)
	assert.Equal(t, uint32(100), s.Ip)
	assert.Equal(t, uint32(16), s.Sp)
}

func TestIntHwQueuesOutgoingInterrupt(t *testing.T) {
	mem := membackend.NewDirect(1)
	s := fai.State{}

	s = step(t, fai.Instruction{Function: fai.IntHw, Register: fai.A, Operand: fai.OperandConstant(7)}, mem, s)

	require.NotNil(t, s.IntOutgoing)
	assert.Equal(t, uint32(7), *s.IntOutgoing)
}

func TestHandleInterruptNoOpWhenNoHandlerInstalled(t *testing.T) {
	mem := membackend.NewDirect(1)
	s := fai.State{Ip: 50}

	next, err := HandleInterrupt(3, mem, s)
	require.NoError(t, err)
	assert.Equal(t, s, next)
}

func TestHandleInterruptThenIntExitRoundTrip(t *testing.T) {
	mem := membackend.NewDirect(16)
	s := fai.State{Sp: 16, Ip: 200, Areg: 0xAAAA, Inth: 900, Flags: fai.Flags{CmpE: true}}

	afterEntry, err := HandleInterrupt(5, mem, s)
	require.NoError(t, err)
	assert.Equal(t, uint32(13), afterEntry.Sp)
	assert.Equal(t, uint32(5), afterEntry.Areg)
	assert.Equal(t, uint32(900), afterEntry.Ip)
	assert.False(t, afterEntry.Halt)
	assert.Equal(t, fai.Flags{IntPause: true}, afterEntry.Flags)

	afterExit := step(t, fai.Instruction{Function: fai.IntExit}, mem, afterEntry)
	assert.Equal(t, uint32(16), afterExit.Sp)
	assert.Equal(t, uint32(0xAAAA), afterExit.Areg)
	assert.Equal(t, uint32(200), afterExit.Ip)
	assert.Equal(t, fai.Flags{CmpE: true}, afterExit.Flags)
}

func TestBadInstructionIsFatal(t *testing.T) {
	mem := membackend.NewDirect(1)
	_, err := Interpret(fai.Instruction{Function: fai.Bad}, mem, fai.State{})
	assert.ErrorIs(t, err, ErrBadInstruction)
}
