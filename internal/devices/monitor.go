package devices

import "github.com/devyn/fai/internal/hardware"

// MonitorWords is the size of Monitor's word-addressed video memory: 200
// words, enough for a 40x20 text display. (DeviceModel's own memory_size
// table historically listed a larger, unused 0x14000 figure; the runtime
// behavior has always been this 200-word buffer, which is what guests and
// the host front-end actually see.)
const MonitorWords = 200

// Monitor is word-addressed video memory. It services Get/Set like Ram, but
// on every successful Set it additionally publishes (addr, value) to an
// out-of-band sink so a host front-end can push the update to a screen.
type Monitor struct {
	id      hardware.Id
	machine hardware.Id

	ram *IntegratedRam

	on         bool
	initialize bool
}

// NewMonitor creates a Monitor whose successful Set calls are forwarded to
// onUpdate(addr, value). onUpdate may be nil if no front-end is attached.
func NewMonitor(onUpdate func(addr, value uint32)) *Monitor {
	m := &Monitor{ram: NewCacheableIntegratedRam(MonitorWords)}
	m.ram.OnSet = onUpdate
	return m
}

func (m *Monitor) route() hardware.Route { return hardware.Route{From: m.id, To: m.machine} }

func (m *Monitor) SetId(id hardware.Id) { m.id = id }

func (m *Monitor) Receive(msg hardware.HardwareMessage) {
	m.ram.Receive(msg)

	switch msg.Kind {
	case hardware.KindInitializeDevice:
		m.initialize = true
		m.machine = msg.Route.From
	}
}

func (m *Monitor) Tick(_ uint64, dispatch hardware.Dispatcher) {
	if m.initialize {
		onUpdate := m.ram.OnSet
		m.ram = NewCacheableIntegratedRam(MonitorWords)
		m.ram.OnSet = onUpdate

		m.initialize = false
		m.on = true

		dispatch.Send(hardware.DeviceReady(m.route()))
		return
	}

	if m.on {
		m.ram.Tick(m.route(), dispatch)
	}
}
