package devices

import (
	"bufio"
	"io"

	"github.com/devyn/fai/internal/hardware"
)

// Memory word layout for StdioConsole's three-word RAM.
const (
	consoleIntMessage = 0 // command selector, set by the CPU before interrupting
	consoleIncoming   = 1 // last received byte, read-only to the CPU
	consoleOutgoing   = 2 // byte to send, written by the CPU before interrupting
)

// StdioConsole command codes carried in word consoleIntMessage.
const (
	ConsoleAck  = 0 // request/acknowledge next input byte
	ConsoleSend = 1 // write word consoleOutgoing to the host's stdout
)

// StdioConsole is a two-way serial-style device backed by the host's
// stdin/stdout, the Go stand-in for the original's raw-terminal console
// (raw TTY acquisition is explicitly out of scope here; this talks to
// ordinary buffered stdio).
type StdioConsole struct {
	id      hardware.Id
	machine hardware.Id

	ram *IntegratedRam

	on           bool
	initialize   bool
	interrupt    bool
	acknowledged bool

	input  chan byte
	output *bufio.Writer
}

// NewStdioConsole spawns a reader goroutine over r and buffers writes to w.
// The reader goroutine runs until reading r fails (for example at EOF).
func NewStdioConsole(r io.Reader, w io.Writer) *StdioConsole {
	c := &StdioConsole{
		ram:    NewIntegratedRam(3),
		input:  make(chan byte),
		output: bufio.NewWriter(w),
	}

	go func() {
		defer close(c.input)
		reader := bufio.NewReader(r)
		for {
			b, err := reader.ReadByte()
			if err != nil {
				return
			}
			c.input <- b
		}
	}()

	return c
}

func (c *StdioConsole) route() hardware.Route { return hardware.Route{From: c.id, To: c.machine} }

func (c *StdioConsole) SetId(id hardware.Id) { c.id = id }

func (c *StdioConsole) Receive(msg hardware.HardwareMessage) {
	c.ram.Receive(msg)

	switch msg.Kind {
	case hardware.KindInitializeDevice:
		c.initialize = true
		c.machine = msg.Route.From
	case hardware.KindIntMachineToDevice:
		c.interrupt = true
	}
}

func (c *StdioConsole) Tick(_ uint64, dispatch hardware.Dispatcher) {
	if c.initialize {
		c.ram.Reinitialize()
		c.ram.Clear()

		c.initialize = false
		c.on = true
		c.interrupt = false
		c.acknowledged = false

		dispatch.Send(hardware.DeviceReady(c.route()))
		return
	}

	if !c.on {
		return
	}

	if c.interrupt {
		c.interrupt = false

		switch c.ram.Words[consoleIntMessage] {
		case ConsoleAck:
			c.acknowledged = true
		case ConsoleSend:
			c.output.WriteByte(byte(c.ram.Words[consoleOutgoing]))
			c.output.Flush()
		}
		return
	}

	if c.ram.HasPendingRequest() {
		c.ram.Tick(c.route(), dispatch)
		return
	}

	if c.acknowledged {
		select {
		case b, ok := <-c.input:
			if !ok {
				c.on = false
				return
			}
			c.ram.Words[consoleIncoming] = uint32(b)
			c.acknowledged = false
			dispatch.Send(hardware.IntDeviceToMachine(c.route()))
		default:
		}
	}
}
