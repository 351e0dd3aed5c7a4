// Command fai-emulator loads a bitcode image into RAM and runs it to
// completion (or interactively, under --debug), wiring up a RAM device and a
// stdio console device over the event pool.
package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/spf13/cobra"

	"github.com/devyn/fai/internal/debugger"
	"github.com/devyn/fai/internal/devices"
	"github.com/devyn/fai/internal/disasm"
	"github.com/devyn/fai/internal/eventpool"
	"github.com/devyn/fai/internal/fai"
	"github.com/devyn/fai/internal/hardware"
	"github.com/devyn/fai/internal/machine"
)

const ramBase = 0x10000

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		tickRate    int
		loadAddress uint32
		stackPtr    uint32
		ramSize     uint32
		trace       bool
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "fai-emulator <bitcode-file>",
		Short: "Run a bitcode image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("fai-emulator: internal error: %v", r)
				}
			}()
			return run(args[0], tickRate, loadAddress, stackPtr, ramSize, trace, interactive)
		},
	}

	cmd.Flags().IntVar(&tickRate, "tick-rate", 10000, "CPU ticks per second")
	cmd.Flags().Uint32Var(&loadAddress, "load-address", 0x11000, "word address the program is loaded at")
	cmd.Flags().Uint32Var(&stackPtr, "stack-pointer", 0x10e00, "initial stack pointer")
	cmd.Flags().Uint32VarP(&ramSize, "ram-size", "m", 0x2000, "RAM device size in words")
	cmd.Flags().BoolVar(&trace, "trace", false, "print one line per executed instruction to stderr")
	cmd.Flags().BoolVar(&interactive, "debug", false, "run under the interactive breakpoint debugger")

	return cmd
}

func run(path string, tickRate int, loadAddress, stackPtr, ramSize uint32, trace, interactive bool) error {
	program, err := loadProgram(path)
	if err != nil {
		return err
	}

	pool := eventpool.New()

	ram := devices.NewRam(ramSize)
	console := devices.NewStdioConsole(os.Stdin, os.Stdout)

	m := machine.New(fai.State{})
	m.SetEntry(loadAddress, stackPtr)

	machineId := pool.AddHardware(m)
	ramId := pool.AddHardware(ram)
	consoleId := pool.AddHardware(console)

	pool.Connect(machineId, ramId)
	pool.Connect(machineId, consoleId)

	offset := loadAddress - ramBase
	if int(offset) < 0 || int(offset)+len(program) > len(ram.Words()) {
		return fmt.Errorf("fai-emulator: program does not fit inside RAM at load address 0x%08x", loadAddress)
	}
	copy(ram.Words()[offset:], program)

	configs := []hardware.DeviceConfig{
		{Id: ramId, Model: hardware.ModelRam.Number(), MemmapBase: ramBase, MemmapSize: ramSize},
		{Id: consoleId, Model: hardware.ModelConsole.Number(), Interrupt: 1, MemmapBase: ramBase + ramSize, MemmapSize: 3},
	}
	pool.InitializeMachine(machineId, configs)

	if trace {
		m.SetTrace(func(inst fai.Instruction, state fai.State) {
			fmt.Fprintln(os.Stderr, disasm.Trace(inst, state))
		})
	}

	if interactive {
		debugger.New(pool, m, os.Stdin, os.Stdout).Run()
		return m.Fault
	}

	return runToHalt(pool, m, tickRate)
}

// runToHalt disables GC for the duration of the tight tick loop, restoring
// whatever GOGC was previously set to on return — memory is allocated up
// front wiring the machine and devices, not during the run itself.
func runToHalt(pool *eventpool.Pool, m *machine.Machine, tickRate int) error {
	prevGC := debug.SetGCPercent(-1)
	defer debug.SetGCPercent(prevGC)

	interval := time.Second / time.Duration(tickRate)
	for {
		if m.Fault != nil {
			return fmt.Errorf("fai-emulator: %w", m.Fault)
		}
		if m.Halted() {
			return nil
		}
		pool.Tick()
		if interval > 0 {
			time.Sleep(interval)
		}
	}
}

func loadProgram(path string) ([]uint32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fai-emulator: %w", err)
	}
	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return words, nil
}
