// Package machine implements the pipelined CPU: a three-stage micro-pipeline
// (Fetch, Execute, Interrupt) over a transactional memory backend, plus the
// power-state handshake that brings a machine from Off to On by querying
// every configured device.
package machine

import (
	"errors"

	"github.com/devyn/fai/internal/bitcode"
	"github.com/devyn/fai/internal/fai"
	"github.com/devyn/fai/internal/hardware"
	"github.com/devyn/fai/internal/interp"
	"github.com/devyn/fai/internal/membackend"
)

// RomBase is the CPU word address where the device-config ROM begins.
const RomBase = 0x1000

type stageKind int

const (
	stageFetch stageKind = iota
	stageExecute
	stageInterrupt
)

type stage struct {
	kind stageKind
	inst fai.Instruction
	code uint32
}

type powerState int

const (
	powerOff powerState = iota
	powerReadyForInit
	powerWaitingForDevices
	powerOn
)

// Machine is the CPU, addressable on the bus as a Hardware. It owns its own
// State and transactional memory backend; all cross-device communication
// goes through hardware.Dispatcher, never direct references.
type Machine struct {
	id hardware.Id

	state fai.State
	mem   *membackend.Transactional

	stage          stage
	power          powerState
	waitingDevices map[hardware.Id]struct{}
	configs        []hardware.DeviceConfig
	interruptQueue []uint32

	// Fault, once set, is terminal: Tick becomes a no-op and the host driver
	// must decide whether to stop or restart the pool.
	Fault error

	trace func(fai.Instruction, fai.State)
}

// New creates a machine with the given initial register state, powered off.
// It transitions to ReadyForInit once it receives an InitializeMachine
// message naming its own id.
func New(initial fai.State) *Machine {
	return &Machine{
		state: initial,
		mem:   membackend.NewTransactional(),
		power: powerOff,
	}
}

// SetTrace installs a hook invoked with the instruction and resulting state
// after every completed Execute stage — the hook cmd/fai-emulator's --trace
// flag and internal/debugger use to print execution history.
func (m *Machine) SetTrace(fn func(fai.Instruction, fai.State)) {
	m.trace = fn
}

// State returns the machine's current register file.
func (m *Machine) State() fai.State { return m.state }

// Halted reports whether the CPU has executed Halt and has no queued
// interrupt to wake it — the condition a host run-loop waits for.
func (m *Machine) Halted() bool {
	return m.state.Halt && len(m.interruptQueue) == 0
}

// Running reports whether the machine has completed its device handshake and
// is executing the fetch/execute/interrupt pipeline.
func (m *Machine) Running() bool { return m.power == powerOn }

// SetEntry records where guest code will first execute and where its stack
// starts: it sets Ip/Sp on the initial state. It does not
// touch any device's memory — callers load bitcode into a Ram device
// directly (as the CLI entry points do), mirroring the host-side loader in
// the system this was adapted from.
func (m *Machine) SetEntry(ip, sp uint32) {
	m.state.Ip = ip
	m.state.Sp = sp
}

func (m *Machine) SetId(id hardware.Id) { m.id = id }

func (m *Machine) Receive(msg hardware.HardwareMessage) {
	switch msg.Kind {
	case hardware.KindInitializeMachine:
		if msg.MachineId != m.id {
			return
		}
		m.configs = msg.Devices
		m.power = powerReadyForInit

	case hardware.KindDeviceReady:
		if m.power != powerWaitingForDevices {
			return
		}
		delete(m.waitingDevices, msg.Route.From)
		if len(m.waitingDevices) == 0 {
			m.power = powerOn
		}

	case hardware.KindMemGetResponse:
		m.mem.RespondGet(msg.Value)

	case hardware.KindMemSetResponse:
		m.mem.RespondSet()

	case hardware.KindIntDeviceToMachine:
		m.interruptQueue = append(m.interruptQueue, m.interruptCodeFor(msg.Route.From))
	}
}

func (m *Machine) interruptCodeFor(device hardware.Id) uint32 {
	for _, cfg := range m.configs {
		if cfg.Id == device {
			return cfg.Interrupt
		}
	}
	return 0
}

func (m *Machine) Tick(_ uint64, dispatch hardware.Dispatcher) {
	switch m.power {
	case powerOff:
		return

	case powerReadyForInit:
		m.waitingDevices = make(map[hardware.Id]struct{}, len(m.configs))
		for _, cfg := range m.configs {
			dispatch.Send(hardware.InitializeDevice(hardware.Route{From: m.id, To: cfg.Id}))
			m.waitingDevices[cfg.Id] = struct{}{}
		}
		m.power = powerWaitingForDevices
		return

	case powerWaitingForDevices:
		return

	case powerOn:
		// falls through to the pipeline below

	default:
		return
	}

	if m.Fault != nil {
		return
	}

	if m.mem.HasPending() {
		return
	}

	if m.stage.kind == stageFetch && !m.state.Flags.IntPause && len(m.interruptQueue) > 0 {
		code := m.interruptQueue[0]
		m.interruptQueue = m.interruptQueue[1:]
		m.stage = stage{kind: stageInterrupt, code: code}
		m.state.Halt = false
		m.mem.Reset()
	}

	if m.state.Halt {
		return
	}

	m.mem.Retry()

	switch m.stage.kind {
	case stageFetch:
		m.fetchStep(dispatch)
	case stageExecute:
		m.executeStep(dispatch)
	case stageInterrupt:
		m.interruptStep(dispatch)
	}
}

func (m *Machine) fetchStep(dispatch hardware.Dispatcher) {
	header, err := m.mem.Load(m.state.Ip)
	if err != nil {
		m.handleMemErr(err, dispatch)
		return
	}

	words := []uint32{header}
	nextIp := m.state.Ip + 1

	if !bitcode.IsCompactHeader(header) {
		w1, err := m.mem.Load(m.state.Ip + 1)
		if err != nil {
			m.handleMemErr(err, dispatch)
			return
		}
		words = append(words, w1)
		nextIp = m.state.Ip + 2
	}

	inst, err := bitcode.Decode(words)
	if err != nil {
		m.Fault = err
		return
	}

	m.state.Ip = nextIp
	m.stage = stage{kind: stageExecute, inst: inst}
	m.mem.Reset()
}

func (m *Machine) executeStep(dispatch hardware.Dispatcher) {
	inst := m.stage.inst

	newState, err := interp.Interpret(inst, m.mem, m.state)
	if err != nil {
		m.handleMemErr(err, dispatch)
		return
	}

	m.state = newState

	if m.trace != nil {
		m.trace(inst, m.state)
	}

	if m.state.IntOutgoing != nil {
		code := *m.state.IntOutgoing
		m.state.IntOutgoing = nil
		m.sendHardwareInterrupt(code, dispatch)
	}

	m.stage = stage{kind: stageFetch}
	m.mem.Reset()
}

func (m *Machine) sendHardwareInterrupt(code uint32, dispatch hardware.Dispatcher) {
	for _, cfg := range m.configs {
		if cfg.Interrupt == code {
			dispatch.Send(hardware.IntMachineToDevice(hardware.Route{From: m.id, To: cfg.Id}, code))
		}
	}
}

func (m *Machine) interruptStep(dispatch hardware.Dispatcher) {
	newState, err := interp.HandleInterrupt(m.stage.code, m.mem, m.state)
	if err != nil {
		m.handleMemErr(err, dispatch)
		return
	}
	m.state = newState
	m.stage = stage{kind: stageFetch}
	m.mem.Reset()
}

// handleMemErr reacts to an error from an interp/mem call: a membackend.Need
// is the cooperative stall signal and is resolved (either synchronously, for
// ROM/unmapped addresses, or by forwarding a bus request); anything else is
// a terminal guest fault.
func (m *Machine) handleMemErr(err error, dispatch hardware.Dispatcher) {
	var need membackend.NeedError
	if errors.As(err, &need) {
		m.serviceMiss(need.Request, dispatch)
		return
	}
	m.Fault = err
}

func (m *Machine) serviceMiss(req membackend.Request, dispatch hardware.Dispatcher) {
	if m.isRomAddr(req.Addr) {
		if req.Kind == membackend.RequestGet {
			m.mem.RespondGet(m.romValue(req.Addr))
		} else {
			// ROM is read-only: stores are silently ignored, but the
			// transaction must still be acknowledged for replay determinism.
			m.mem.RespondSet()
		}
		return
	}

	if devId, localAddr, ok := m.addrToDevice(req.Addr); ok {
		route := hardware.Route{From: m.id, To: devId}
		if req.Kind == membackend.RequestGet {
			dispatch.Send(hardware.MemGetRequest(route, localAddr))
		} else {
			dispatch.Send(hardware.MemSetRequest(route, localAddr, req.Value))
		}
		return
	}

	// Unmapped: satisfied locally with zero (get) or dropped (set).
	if req.Kind == membackend.RequestGet {
		m.mem.RespondGet(0)
	} else {
		m.mem.RespondSet()
	}
}

func (m *Machine) isRomAddr(addr uint32) bool {
	return addr >= RomBase && addr < RomBase+4*uint32(len(m.configs))
}

func (m *Machine) romValue(addr uint32) uint32 {
	offset := addr - RomBase
	cfg := m.configs[offset/4]
	switch offset % 4 {
	case 0:
		return cfg.Model
	case 1:
		return cfg.Interrupt
	case 2:
		return cfg.MemmapBase
	default:
		return cfg.MemmapSize
	}
}

// addrToDevice resolves a global CPU address to a device id and local
// device-relative address, per the first device config (in registration
// order) whose memory map contains addr.
func (m *Machine) addrToDevice(addr uint32) (hardware.Id, uint32, bool) {
	for _, cfg := range m.configs {
		if cfg.MemmapSize == 0 {
			continue
		}
		if addr >= cfg.MemmapBase && addr < cfg.MemmapBase+cfg.MemmapSize {
			return cfg.Id, addr - cfg.MemmapBase, true
		}
	}
	return 0, 0, false
}
