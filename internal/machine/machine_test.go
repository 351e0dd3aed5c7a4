package machine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devyn/fai/internal/asmback"
	"github.com/devyn/fai/internal/asmparse"
	"github.com/devyn/fai/internal/devices"
	"github.com/devyn/fai/internal/eventpool"
	"github.com/devyn/fai/internal/fai"
	"github.com/devyn/fai/internal/hardware"
)

func assemble(t *testing.T, src string) []uint32 {
	t.Helper()
	sections, err := asmparse.Parse(src)
	require.NoError(t, err)
	words, err := asmback.Assemble(sections)
	require.NoError(t, err)
	return words
}

func tickUntilHalt(t *testing.T, pool *eventpool.Pool, m *Machine, maxTicks int) {
	t.Helper()
	for i := 0; i < maxTicks; i++ {
		require.Nil(t, m.Fault)
		if m.Halted() {
			return
		}
		pool.Tick()
	}
	t.Fatalf("machine did not halt within %d ticks", maxTicks)
}

func TestProgramComputesSumAndHalts(t *testing.T) {
	words := assemble(t, `
		set a [0]
		set b [1]
		set c [10]
	loop:
		add a [b]
		set d [1]
		sub c [d]
		cmp c [0]
		branchne a [loop]
		halt
	`)

	pool := eventpool.New()
	ram := devices.NewRam(0x200)
	m := New(fai.State{})

	machineId := pool.AddHardware(m)
	ramId := pool.AddHardware(ram)
	pool.Connect(machineId, ramId)

	copy(ram.Words(), words)
	m.SetEntry(0, 0x100)

	configs := []hardware.DeviceConfig{
		{Id: ramId, Model: uint32(hardware.ModelRam), MemmapBase: 0, MemmapSize: 0x200},
	}
	pool.InitializeMachine(machineId, configs)

	tickUntilHalt(t, pool, m, 2000)

	assert.Equal(t, uint32(10), m.State().Areg, "a should accumulate b (1) ten times")
}

func TestRomDeviceConfigIsReadableByGuestCode(t *testing.T) {
	words := assemble(t, `
		load a [4096]
		halt
	`)

	pool := eventpool.New()
	ram := devices.NewRam(0x200)
	m := New(fai.State{})

	machineId := pool.AddHardware(m)
	ramId := pool.AddHardware(ram)
	pool.Connect(machineId, ramId)

	copy(ram.Words(), words)
	m.SetEntry(0, 0x100)

	configs := []hardware.DeviceConfig{
		{Id: ramId, Model: uint32(hardware.ModelRam), MemmapBase: 0, MemmapSize: 0x200},
	}
	pool.InitializeMachine(machineId, configs)

	tickUntilHalt(t, pool, m, 100)

	assert.Equal(t, uint32(hardware.ModelRam), m.State().Areg, "address 0x1000 is the first ROM word: device 0's model")
}

func TestMemoryMappedDeviceRoundTripsThroughBus(t *testing.T) {
	words := assemble(t, `
		set a [77]
		store a [8192]
		load b [8192]
		halt
	`)

	pool := eventpool.New()
	ram := devices.NewRam(0x200)
	monitor := devices.NewMonitor(nil)
	m := New(fai.State{})

	machineId := pool.AddHardware(m)
	ramId := pool.AddHardware(ram)
	monId := pool.AddHardware(monitor)
	pool.Connect(machineId, ramId)
	pool.Connect(machineId, monId)

	copy(ram.Words(), words)
	m.SetEntry(0, 0x100)

	configs := []hardware.DeviceConfig{
		{Id: ramId, Model: uint32(hardware.ModelRam), MemmapBase: 0, MemmapSize: 0x200},
		{Id: monId, Model: uint32(hardware.ModelMonitor), Interrupt: 1, MemmapBase: 0x2000, MemmapSize: devices.MonitorWords},
	}
	pool.InitializeMachine(machineId, configs)

	tickUntilHalt(t, pool, m, 500)

	assert.Equal(t, uint32(77), m.State().Breg)
}

// TestFactorialProgramHalts is the factorial end-to-end scenario, written
// with labels instead of literal $-relative offsets: with c = 10,
// "Set A,#1 ; Cmp C,#2 ; BranchL ; Mul A,C ; Sub C,#1 ; Branch ; Halt"
// halts with a == 3,628,800.
func TestFactorialProgramHalts(t *testing.T) {
	words := assemble(t, `
		set a [1]
	loop:
		cmp c [2]
		branchl a [done]
		mul a [c]
		sub c [1]
		branch a [loop]
	done:
		halt
	`)

	pool := eventpool.New()
	ram := devices.NewRam(0x200)
	m := New(fai.State{Creg: 10})

	machineId := pool.AddHardware(m)
	ramId := pool.AddHardware(ram)
	pool.Connect(machineId, ramId)

	copy(ram.Words(), words)
	m.SetEntry(0, 0x100)

	configs := []hardware.DeviceConfig{
		{Id: ramId, Model: uint32(hardware.ModelRam), MemmapBase: 0, MemmapSize: 0x200},
	}
	pool.InitializeMachine(machineId, configs)

	tickUntilHalt(t, pool, m, 2000)

	assert.Equal(t, uint32(3628800), m.State().Areg)
}

// TestStdioConsoleSendRoundTripsThroughBus drives a store into the console's
// memory-mapped OUTGOING/INT_MESSAGE words followed by a raised interrupt
// entirely through addrToDevice/the event pool (not console.Receive called
// directly), so it also exercises the device's real memory mapping.
func TestStdioConsoleSendRoundTripsThroughBus(t *testing.T) {
	const (
		ramSize           = 0x200
		consoleBase       = ramSize
		consoleIntMessage = consoleBase + 0
		consoleOutgoing   = consoleBase + 2
		consoleInterrupt  = 3
	)

	words := assemble(t, `
		set a [88]
		store a [514]
		set a [1]
		store a [512]
		inthw [3]
		halt
	`)
	require.Equal(t, uint32(consoleOutgoing), uint32(514))
	require.Equal(t, uint32(consoleIntMessage), uint32(512))

	var out strings.Builder
	pool := eventpool.New()
	ram := devices.NewRam(ramSize)
	console := devices.NewStdioConsole(strings.NewReader(""), &out)
	m := New(fai.State{})

	machineId := pool.AddHardware(m)
	ramId := pool.AddHardware(ram)
	consoleId := pool.AddHardware(console)
	pool.Connect(machineId, ramId)
	pool.Connect(machineId, consoleId)

	copy(ram.Words(), words)
	m.SetEntry(0, 0x100)

	configs := []hardware.DeviceConfig{
		{Id: ramId, Model: uint32(hardware.ModelRam), MemmapBase: 0, MemmapSize: ramSize},
		{Id: consoleId, Model: uint32(hardware.ModelConsole), Interrupt: consoleInterrupt, MemmapBase: consoleBase, MemmapSize: 3},
	}
	pool.InitializeMachine(machineId, configs)

	tickUntilHalt(t, pool, m, 500)

	assert.Equal(t, "X", out.String())
}

// TestKeyboardInterruptRoundTrip is the interrupt-round-trip scenario: with
// inth set and int_pause clear, the keyboard's raised IntDeviceToMachine
// drives the CPU into Interrupt(code) before the caller's first halt runs,
// the ISR observes a == code, and IntExit restores the caller's state so it
// resumes at that halt.
func TestKeyboardInterruptRoundTrip(t *testing.T) {
	const keyboardInterrupt = 7

	words := assemble(t, `
		inthset a [isr]
		inthw [7]
		halt
		halt
	isr:
		set b [a]
		intexit
	`)

	input := make(chan uint32, 1)
	input <- 65 // available immediately; consumed once the keyboard is acknowledged

	pool := eventpool.New()
	ram := devices.NewRam(0x200)
	keyboard := devices.NewKeyboard(input)
	m := New(fai.State{})

	machineId := pool.AddHardware(m)
	ramId := pool.AddHardware(ram)
	kbId := pool.AddHardware(keyboard)
	pool.Connect(machineId, ramId)
	pool.Connect(machineId, kbId)

	copy(ram.Words(), words)
	m.SetEntry(0, 0x100)

	configs := []hardware.DeviceConfig{
		{Id: ramId, Model: uint32(hardware.ModelRam), MemmapBase: 0, MemmapSize: 0x200},
		{Id: kbId, Model: uint32(hardware.ModelKeyboard), Interrupt: keyboardInterrupt, MemmapBase: 0x300, MemmapSize: 1},
	}
	pool.InitializeMachine(machineId, configs)

	tickUntilHalt(t, pool, m, 2000)

	assert.Equal(t, uint32(keyboardInterrupt), m.State().Breg, "ISR should observe a == interrupt code, captured into b")
}
