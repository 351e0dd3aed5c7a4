// Package interp implements the pure per-instruction state transition and
// the interrupt-entry helper. interpret is written value-in/value-out per
// the data model's immutability note: callers that want in-place mutation
// can simply reassign their State variable from the returned value.
package interp

import (
	"errors"
	"fmt"

	"github.com/devyn/fai/internal/fai"
	"github.com/devyn/fai/internal/membackend"
)

// ErrBadInstruction is fatal: the pipeline decoded fai.Bad.
var ErrBadInstruction = errors.New("interp: encountered Bad instruction")

// ErrDivideByZero is fatal: a guest Div/DivMod divided by zero.
var ErrDivideByZero = errors.New("interp: division by zero")

// Interpret executes one instruction against mem, returning the resulting
// state. ipAtDecode must be state.Ip as it stood immediately after fetch
// advanced it past inst (used to resolve Relative operands). Any error
// returned by mem.Load/mem.Store (including membackend.NeedError, the
// cooperative stall signal) is propagated unchanged so the pipeline can
// react to it.
func Interpret(inst fai.Instruction, mem membackend.Backend, state fai.State) (fai.State, error) {
	op := func() uint32 { return state.Operand(inst.Operand, state.Ip) }

	switch inst.Function {
	case fai.Nop:
		return state, nil

	case fai.Set:
		return state.RegisterSet(inst.Register, op()), nil

	case fai.Load:
		v, err := mem.Load(op())
		if err != nil {
			return state, err
		}
		return state.RegisterSet(inst.Register, v), nil

	case fai.Store:
		if err := mem.Store(op(), state.Register(inst.Register)); err != nil {
			return state, err
		}
		return state, nil

	case fai.Cmp:
		r := state.Register(inst.Register)
		o := op()
		state.Flags.CmpL = r < o
		state.Flags.CmpG = r > o
		state.Flags.CmpE = r == o
		return state, nil

	case fai.Branch:
		state.Ip = op()
		return state, nil

	case fai.BranchL:
		if state.Flags.CmpL {
			state.Ip = op()
		}
		return state, nil

	case fai.BranchG:
		if state.Flags.CmpG {
			state.Ip = op()
		}
		return state, nil

	case fai.BranchE:
		if state.Flags.CmpE {
			state.Ip = op()
		}
		return state, nil

	case fai.BranchNE:
		if !state.Flags.CmpE {
			state.Ip = op()
		}
		return state, nil

	case fai.GetSp:
		return state.RegisterSet(inst.Register, state.Sp), nil

	case fai.SetSp:
		state.Sp = op()
		return state, nil

	case fai.Push:
		sp := state.Sp - 1
		if err := mem.Store(sp, state.Register(inst.Register)); err != nil {
			return state, err
		}
		state.Sp = sp
		return state, nil

	case fai.Pop:
		v, err := mem.Load(state.Sp)
		if err != nil {
			return state, err
		}
		state = state.RegisterSet(inst.Register, v)
		state.Sp++
		return state, nil

	case fai.Call:
		sp := state.Sp - 1
		if err := mem.Store(sp, state.Ip); err != nil {
			return state, err
		}
		state.Sp = sp
		state.Ip = op()
		return state, nil

	case fai.Ret:
		v, err := mem.Load(state.Sp)
		if err != nil {
			return state, err
		}
		state.Ip = v
		state.Sp++
		return state, nil

	case fai.Add:
		return state.RegisterModify(inst.Register, func(r uint32) uint32 { return r + op() }), nil

	case fai.Sub:
		return state.RegisterModify(inst.Register, func(r uint32) uint32 { return r - op() }), nil

	case fai.Mul:
		return state.RegisterModify(inst.Register, func(r uint32) uint32 { return r * op() }), nil

	case fai.Div:
		o := op()
		if o == 0 {
			return state, ErrDivideByZero
		}
		return state.RegisterModify(inst.Register, func(r uint32) uint32 { return r / o }), nil

	case fai.DivMod:
		o := op()
		if o == 0 {
			return state, ErrDivideByZero
		}
		r := state.Register(inst.Register)
		state.Creg = r / o
		state.Dreg = r % o
		return state, nil

	case fai.Not:
		return state.RegisterModify(inst.Register, func(r uint32) uint32 { return ^r }), nil

	case fai.And:
		return state.RegisterModify(inst.Register, func(r uint32) uint32 { return r & op() }), nil

	case fai.Or:
		return state.RegisterModify(inst.Register, func(r uint32) uint32 { return r | op() }), nil

	case fai.Xor:
		return state.RegisterModify(inst.Register, func(r uint32) uint32 { return r ^ op() }), nil

	case fai.Lsh:
		return state.RegisterModify(inst.Register, func(r uint32) uint32 { return r << (op() & 0x1F) }), nil

	case fai.Rsh:
		return state.RegisterModify(inst.Register, func(r uint32) uint32 { return r >> (op() & 0x1F) }), nil

	case fai.Halt:
		state.Halt = true
		return state, nil

	case fai.IntSw:
		code := op()
		return HandleInterrupt(code, mem, state)

	case fai.IntHw:
		code := op()
		state.IntOutgoing = &code
		return state, nil

	case fai.IntPause:
		state.Flags.IntPause = true
		return state, nil

	case fai.IntCont:
		state.Flags.IntPause = false
		return state, nil

	case fai.IntHGet:
		return state.RegisterSet(inst.Register, state.Inth), nil

	case fai.IntHSet:
		state.Inth = op()
		return state, nil

	case fai.IntExit:
		return intExit(mem, state)

	case fai.Trace:
		return state, nil

	case fai.Bad:
		return state, ErrBadInstruction

	default:
		return state, fmt.Errorf("interp: unhandled function %v", inst.Function)
	}
}

// intExit pops the (a, ip, flags) frame pushed by interrupt entry: loads
// from sp+0, sp+1, sp+2, then advances sp by 3.
func intExit(mem membackend.Backend, state fai.State) (fai.State, error) {
	a, err := mem.Load(state.Sp)
	if err != nil {
		return state, err
	}
	ip, err := mem.Load(state.Sp + 1)
	if err != nil {
		return state, err
	}
	flagsWord, err := mem.Load(state.Sp + 2)
	if err != nil {
		return state, err
	}

	state.Areg = a
	state.Ip = ip
	state.Flags = fai.UnpackFlags(flagsWord)
	state.Sp += 3
	return state, nil
}

// HandleInterrupt is the shared entry sequence used by both IntSw and the
// pipeline's Interrupt(code) stage. If inth == 0, it's a no-op: the state is
// returned unchanged. Otherwise it stores (a, ip, flags) at sp-3, sp-2, sp-1
// (i.e. sp is pre-decremented by 3 and the frame is stored at sp+0, sp+1,
// sp+2 after that decrement), then sets a = code, ip = inth, halt = false,
// and flags = {IntPause: true, all else cleared}.
func HandleInterrupt(code uint32, mem membackend.Backend, state fai.State) (fai.State, error) {
	if state.Inth == 0 {
		return state, nil
	}

	sp := state.Sp - 3
	if err := mem.Store(sp, state.Areg); err != nil {
		return state, err
	}
	if err := mem.Store(sp+1, state.Ip); err != nil {
		return state, err
	}
	if err := mem.Store(sp+2, state.Flags.Pack()); err != nil {
		return state, err
	}

	state.Sp = sp
	state.Areg = code
	state.Ip = state.Inth
	state.Halt = false
	state.Flags = fai.Flags{IntPause: true}
	return state, nil
}
