// Package eventpool implements the single-threaded cooperative scheduler:
// per-hardware mailboxes, a route table, and the two-phase tick() that
// drains every mailbox before ticking every piece of hardware.
package eventpool

import (
	"sort"
	"time"

	"github.com/devyn/fai/internal/hardware"
	"github.com/devyn/fai/internal/logging"
)

// Pool owns every registered piece of hardware along with the routing state
// used to deliver messages between them.
type Pool struct {
	ts        uint64
	idCounter hardware.Id

	hw        map[hardware.Id]hardware.Hardware
	ids       []hardware.Id // kept sorted; ascending-id order is the pool's determinism contract
	mailboxes map[hardware.Id][]hardware.HardwareMessage
	routes    map[hardware.Route]struct{}

	log *logging.Logger
}

func New() *Pool {
	return &Pool{
		idCounter: 1,
		hw:        make(map[hardware.Id]hardware.Hardware),
		mailboxes: make(map[hardware.Id][]hardware.HardwareMessage),
		routes:    make(map[hardware.Route]struct{}),
		log:       logging.Default,
	}
}

// AddHardware registers hw, assigns it the next id, and returns that id.
func (p *Pool) AddHardware(hw hardware.Hardware) hardware.Id {
	id := p.idCounter
	p.idCounter++

	hw.SetId(id)
	p.hw[id] = hw
	p.mailboxes[id] = nil
	p.ids = append(p.ids, id)
	sort.Slice(p.ids, func(i, j int) bool { return p.ids[i] < p.ids[j] })

	return id
}

// Connect inserts both directions of the (a, b) edge into the route table.
func (p *Pool) Connect(a, b hardware.Id) {
	p.routes[hardware.Route{From: a, To: b}] = struct{}{}
	p.routes[hardware.Route{From: b, To: a}] = struct{}{}
}

// Disconnect removes both directions of the (a, b) edge.
func (p *Pool) Disconnect(a, b hardware.Id) {
	delete(p.routes, hardware.Route{From: a, To: b})
	delete(p.routes, hardware.Route{From: b, To: a})
}

// InitializeMachine enqueues the host's unrouted InitializeMachine message to
// the given machine id, carrying the resolved device configuration table.
func (p *Pool) InitializeMachine(machineId hardware.Id, devices []hardware.DeviceConfig) {
	p.hostDispatch().Send(hardware.InitializeMachine(machineId, devices))
}

// hostDispatch returns a Dispatch usable only by the pool itself (the only
// caller allowed to send the unrouted InitializeMachine message).
func (p *Pool) hostDispatch() Dispatch {
	return Dispatch{ensureFrom: nil, pool: p}
}

// Tick drains every mailbox (phase 1: receive), then advances every piece of
// hardware by one step (phase 2: tick), in ascending id order for both
// phases. A message sent during tick N is only visible starting tick N+1,
// since phase 1 of tick N already ran before anything sent during tick N's
// phase 2 could arrive.
func (p *Pool) Tick() {
	for _, id := range p.ids {
		msgs := p.mailboxes[id]
		if len(msgs) == 0 {
			continue
		}
		p.mailboxes[id] = nil
		hw := p.hw[id]
		for _, msg := range msgs {
			p.log.Debugf("<- %d: %+v", id, msg)
			hw.Receive(msg)
		}
	}

	for _, id := range p.ids {
		hw := p.hw[id]
		p.log.Debugf("tick %d, %d", id, p.ts)
		hw.Tick(p.ts, Dispatch{ensureFrom: &id, pool: p})
	}

	p.ts++
}

// TickRealClock ticks in a loop, sleeping delay between ticks. Intended for
// a host driving the pool on a wall-clock cadence; nothing in the pool
// itself depends on real time.
func (p *Pool) TickRealClock(delay time.Duration) {
	for {
		p.Tick()
		time.Sleep(delay)
	}
}

// Dispatch is the restricted handle passed to Hardware.Tick: it only permits
// sending messages, and asserts that any routed message's From matches the
// ticking hardware's own id.
type Dispatch struct {
	ensureFrom *hardware.Id
	pool       *Pool
}

// Send delivers msg per the routing rules: a routed message is enqueued only
// if (from, to) is a live route, and only from the hardware that owns that
// route's From id (enforced when ensureFrom is set); the sole unrouted
// message, InitializeMachine, may only be sent by the pool itself
// (ensureFrom == nil) and always reaches its target mailbox.
func (d Dispatch) Send(msg hardware.HardwareMessage) {
	if msg.HasRoute() {
		route := msg.Route
		if _, ok := d.pool.routes[route]; !ok {
			return
		}
		if d.ensureFrom != nil && route.From != *d.ensureFrom {
			panic("eventpool: hardware attempted to send from a route it does not own")
		}
		d.pool.mailboxes[route.To] = append(d.pool.mailboxes[route.To], msg)
		return
	}

	if d.ensureFrom == nil {
		to := msg.To()
		if _, ok := d.pool.mailboxes[to]; ok {
			d.pool.mailboxes[to] = append(d.pool.mailboxes[to], msg)
		}
	}
}

var _ hardware.Dispatcher = Dispatch{}
