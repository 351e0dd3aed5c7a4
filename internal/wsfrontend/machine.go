// Package wsfrontend assembles a machine, its RAM/monitor/keyboard devices,
// and a WebSocket session that mirrors monitor writes to the browser and
// keyboard input from it, one goroutine per connection — the Go counterpart
// of the original server's per-session websocket handler.
package wsfrontend

import (
	"github.com/devyn/fai/internal/devices"
	"github.com/devyn/fai/internal/eventpool"
	"github.com/devyn/fai/internal/fai"
	"github.com/devyn/fai/internal/hardware"
	"github.com/devyn/fai/internal/machine"
)

// Config wires the memory layout a new session boots with.
type Config struct {
	LoadAddress  uint32
	StackPointer uint32
	RamBase      uint32
	RamSize      uint32
}

// DefaultConfig matches the emulator CLI's own defaults, so a session booted
// over the wire behaves the same as a local run of the same program.
func DefaultConfig() Config {
	return Config{
		LoadAddress:  0x11000,
		StackPointer: 0x10e00,
		RamBase:      0x10000,
		RamSize:      0x2000,
	}
}

// Session bundles one machine and its device set, ready to be ticked.
type Session struct {
	Pool    *eventpool.Pool
	Machine *machine.Machine
	Ram     *devices.Ram
	Monitor *devices.Monitor
	Keyboard *devices.Keyboard
}

// Boot constructs a fresh pool/machine/device set, loads program into RAM at
// cfg.LoadAddress, and starts the device handshake. onMonitorWrite is called
// (from the tick goroutine) whenever the guest writes a word into monitor
// memory — the session's caller forwards these as outbound frames.
func Boot(cfg Config, program []uint32, keyboardInput <-chan uint32, onMonitorWrite func(offset, value uint32)) *Session {
	pool := eventpool.New()

	ram := devices.NewRam(cfg.RamSize)
	monitor := devices.NewMonitor(onMonitorWrite)
	keyboard := devices.NewKeyboard(keyboardInput)

	m := machine.New(fai.State{})
	m.SetEntry(cfg.LoadAddress, cfg.StackPointer)

	machineId := pool.AddHardware(m)
	ramId := pool.AddHardware(ram)
	monitorId := pool.AddHardware(monitor)
	keyboardId := pool.AddHardware(keyboard)

	pool.Connect(machineId, ramId)
	pool.Connect(machineId, monitorId)
	pool.Connect(machineId, keyboardId)

	copy(ram.Words()[cfg.LoadAddress-cfg.RamBase:], program)

	configs := []hardware.DeviceConfig{
		{Id: ramId, Model: hardware.ModelRam.Number(), MemmapBase: cfg.RamBase, MemmapSize: cfg.RamSize},
		{Id: monitorId, Model: hardware.ModelMonitor.Number(), Interrupt: 1, MemmapBase: cfg.RamBase + cfg.RamSize, MemmapSize: devices.MonitorWords},
		{Id: keyboardId, Model: hardware.ModelKeyboard.Number(), Interrupt: 2, MemmapBase: cfg.RamBase + cfg.RamSize + devices.MonitorWords, MemmapSize: 1},
	}
	pool.InitializeMachine(machineId, configs)

	return &Session{Pool: pool, Machine: m, Ram: ram, Monitor: monitor, Keyboard: keyboard}
}
