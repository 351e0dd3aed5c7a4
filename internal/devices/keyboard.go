package devices

import "github.com/devyn/fai/internal/hardware"

// Keyboard is a one-word device fed by a host-provided input channel.
// Protocol: InitializeDevice -> DeviceReady. An incoming
// IntMachineToDevice is treated as an ack, putting the device in the
// "acknowledged" state where it waits for the next input byte; when one
// arrives it's written to word 0 and IntDeviceToMachine is raised. Reads
// return the stored byte; writes are observed but don't mutate (the
// IntegratedRam Set-response still reports the current value).
type Keyboard struct {
	id      hardware.Id
	machine hardware.Id

	input <-chan uint32

	ram *IntegratedRam

	on           bool
	initialize   bool
	interrupt    bool
	acknowledged bool
}

// NewKeyboard creates a Keyboard reading bytes from input. input should be
// closed by the host when no more keystrokes will arrive; Keyboard notices
// the closed channel and switches itself off, after which it answers no
// further memory requests and raises no further interrupts.
func NewKeyboard(input <-chan uint32) *Keyboard {
	return &Keyboard{input: input, ram: NewIntegratedRam(1)}
}

func (k *Keyboard) route() hardware.Route { return hardware.Route{From: k.id, To: k.machine} }

func (k *Keyboard) SetId(id hardware.Id) { k.id = id }

func (k *Keyboard) Receive(msg hardware.HardwareMessage) {
	k.ram.Receive(msg)

	switch msg.Kind {
	case hardware.KindInitializeDevice:
		k.initialize = true
		k.machine = msg.Route.From
	case hardware.KindIntMachineToDevice:
		k.interrupt = true
	}
}

func (k *Keyboard) Tick(_ uint64, dispatch hardware.Dispatcher) {
	if k.initialize {
		k.ram.Reinitialize()
		k.ram.Clear()

		k.initialize = false
		k.on = true
		k.interrupt = false
		k.acknowledged = false

		dispatch.Send(hardware.DeviceReady(k.route()))
		return
	}

	if !k.on {
		return
	}

	if k.interrupt {
		k.acknowledged = true
		k.interrupt = false
		return
	}

	if k.ram.HasPendingRequest() {
		if k.ram.pendingKind == hardware.KindMemSetRequest && k.ram.pendingAddr < uint32(len(k.ram.Words)) {
			// Writes are observed but leave the stored byte unchanged.
			k.ram.pendingVal = k.ram.Words[k.ram.pendingAddr]
		}
		k.ram.Tick(k.route(), dispatch)
		return
	}

	if k.acknowledged {
		select {
		case word, ok := <-k.input:
			if !ok {
				k.on = false
				return
			}
			k.ram.Words[0] = word
			k.acknowledged = false
			dispatch.Send(hardware.IntDeviceToMachine(k.route()))
		default:
		}
	}
}
