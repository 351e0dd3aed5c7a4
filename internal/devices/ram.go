package devices

import "github.com/devyn/fai/internal/hardware"

// Ram is a pure backing store: on init it reports DeviceReady and then
// services Get/Set through IntegratedRam. Contents are not cleared on
// re-init, by design — a re-initialized machine should still find its RAM
// contents intact.
type Ram struct {
	id      hardware.Id
	machine hardware.Id

	ram *IntegratedRam

	on         bool
	initialize bool
}

func NewRam(size uint32) *Ram {
	return &Ram{ram: NewCacheableIntegratedRam(size)}
}

func (r *Ram) Words() []uint32 { return r.ram.Words }

func (r *Ram) route() hardware.Route { return hardware.Route{From: r.id, To: r.machine} }

func (r *Ram) SetId(id hardware.Id) { r.id = id }

func (r *Ram) Receive(msg hardware.HardwareMessage) {
	r.ram.Receive(msg)

	switch msg.Kind {
	case hardware.KindInitializeDevice:
		r.initialize = true
		r.machine = msg.Route.From
	}
}

func (r *Ram) Tick(_ uint64, dispatch hardware.Dispatcher) {
	if r.initialize {
		r.ram.Reinitialize()

		r.initialize = false
		r.on = true

		dispatch.Send(hardware.DeviceReady(r.route()))
		return
	}

	if r.on {
		r.ram.Tick(r.route(), dispatch)
	}
}
