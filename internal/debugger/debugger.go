// Package debugger implements an interactive breakpoint debugger over a
// running machine/event-pool pair: "n"/"next" to single-step, "r"/"run" to
// free-run, and "b"/"break <addr>" to toggle a breakpoint. Breakpoints are
// keyed by word address (the instruction pointer) rather than source line,
// since there is no source mapping at run time.
package debugger

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/devyn/fai/internal/disasm"
	"github.com/devyn/fai/internal/eventpool"
	"github.com/devyn/fai/internal/fai"
	"github.com/devyn/fai/internal/machine"
)

// Debugger drives pool.Tick in a loop, printing register state after each
// single step and at breakpoints, and honoring user commands read from in.
type Debugger struct {
	pool *eventpool.Pool
	m    *machine.Machine

	in  *bufio.Reader
	out io.Writer

	breakpoints map[uint32]struct{}
	lastTrace   string
}

// New wraps pool/m for interactive stepping. m must already be registered
// with pool and have had its device handshake started.
func New(pool *eventpool.Pool, m *machine.Machine, in io.Reader, out io.Writer) *Debugger {
	return &Debugger{
		pool:        pool,
		m:           m,
		in:          bufio.NewReader(in),
		out:         out,
		breakpoints: make(map[uint32]struct{}),
	}
}

// Run prints the command help, then loops reading commands until the
// machine halts or faults.
func (d *Debugger) Run() {
	fmt.Fprint(d.out, "Commands:\n\tn or next: execute next instruction\n\tr or run: run program\n\tb or break <addr>: break at word address (toggles)\n\n")

	d.installTrace()
	d.printState()

	waitForInput := true
	lastBreakAddr := ^uint32(0)

	for {
		line := ""
		if waitForInput {
			fmt.Fprint(d.out, "\n->")
			line, _ = d.in.ReadString('\n')
			line = strings.ToLower(strings.TrimSpace(line))
		} else {
			ip := d.m.State().Ip
			if _, ok := d.breakpoints[ip]; ok && ip != lastBreakAddr {
				fmt.Fprintln(d.out, "breakpoint")
				d.printState()
				waitForInput = true
				lastBreakAddr = ip
				continue
			}
		}

		switch {
		case !waitForInput || line == "n" || line == "next":
			lastBreakAddr = ^uint32(0)
			d.stepOne()
			if waitForInput {
				d.printState()
			}
			if d.m.Fault != nil {
				fmt.Fprintln(d.out, "fault:", d.m.Fault)
				return
			}
			if d.m.Halted() {
				fmt.Fprintln(d.out, "halted")
				return
			}

		case line == "program":
			fmt.Fprintln(d.out, d.lastTrace)

		case line == "r" || line == "run":
			waitForInput = false

		case strings.HasPrefix(line, "b"):
			arg := strings.TrimSpace(strings.Join(strings.Split(line, " ")[1:], " "))
			addr, err := strconv.ParseUint(arg, 0, 32)
			if err != nil {
				fmt.Fprintln(d.out, "unknown address:", err)
				continue
			}
			if _, ok := d.breakpoints[uint32(addr)]; ok {
				delete(d.breakpoints, uint32(addr))
			} else {
				d.breakpoints[uint32(addr)] = struct{}{}
			}
		}
	}
}

func (d *Debugger) installTrace() {
	d.m.SetTrace(func(inst fai.Instruction, state fai.State) {
		d.lastTrace = disasm.Trace(inst, state)
	})
}

// stepOne ticks the pool until the machine completes one instruction (the
// trace hook fires), or until it halts or faults — a single instruction may
// take several ticks to service a memory-mapped device or ROM miss.
func (d *Debugger) stepOne() {
	fired := false
	d.m.SetTrace(func(inst fai.Instruction, state fai.State) {
		d.lastTrace = disasm.Trace(inst, state)
		fired = true
	})
	defer d.installTrace()

	for !fired {
		if d.m.Fault != nil || d.m.Halted() {
			return
		}
		d.pool.Tick()
	}
}

func (d *Debugger) printState() {
	if d.lastTrace != "" {
		fmt.Fprintln(d.out, d.lastTrace)
		return
	}
	s := d.m.State()
	fmt.Fprintf(d.out, "ip=%08x sp=%08x a=%08x b=%08x c=%08x d=%08x\n", s.Ip, s.Sp, s.Areg, s.Breg, s.Creg, s.Dreg)
}
