package eventpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devyn/fai/internal/hardware"
)

// recorder is a minimal Hardware that records every tick (in pool order)
// and every message it receives, used to assert the pool's two-phase
// ordering and routing rules.
type recorder struct {
	id       hardware.Id
	tickLog  *[]hardware.Id
	received []hardware.HardwareMessage
}

func (r *recorder) SetId(id hardware.Id) { r.id = id }
func (r *recorder) Receive(msg hardware.HardwareMessage) {
	r.received = append(r.received, msg)
}
func (r *recorder) Tick(_ uint64, dispatch hardware.Dispatcher) {
	*r.tickLog = append(*r.tickLog, r.id)
}

func TestTickOrdersByAscendingId(t *testing.T) {
	pool := New()
	var order []hardware.Id

	// Ids are assigned in registration order (1, 2, 3, ...); Tick must
	// visit the hardware in ascending id order.
	a := pool.AddHardware(&recorder{tickLog: &order})
	b := pool.AddHardware(&recorder{tickLog: &order})
	c := pool.AddHardware(&recorder{tickLog: &order})

	pool.Tick()

	assert.Equal(t, []hardware.Id{a, b, c}, order)
}

func TestRoutedSendOnlyDeliveredOverLiveRoute(t *testing.T) {
	pool := New()
	var order []hardware.Id

	senderRec := &recorder{tickLog: &order}
	receiverRec := &recorder{tickLog: &order}

	sender := pool.AddHardware(senderRec)
	receiver := pool.AddHardware(receiverRec)

	// No Connect call yet: the route doesn't exist, so Send is dropped.
	d := Dispatch{ensureFrom: &sender, pool: pool}
	d.Send(hardware.DeviceReady(hardware.Route{From: sender, To: receiver}))
	pool.Tick()
	assert.Empty(t, receiverRec.received)

	pool.Connect(sender, receiver)
	d.Send(hardware.DeviceReady(hardware.Route{From: sender, To: receiver}))
	pool.Tick()
	require.Len(t, receiverRec.received, 1)
	assert.Equal(t, hardware.KindDeviceReady, receiverRec.received[0].Kind)
}

func TestSendPanicsWhenFromDoesNotMatchTickingHardware(t *testing.T) {
	pool := New()
	a := pool.AddHardware(&recorder{tickLog: &[]hardware.Id{}})
	b := pool.AddHardware(&recorder{tickLog: &[]hardware.Id{}})
	pool.Connect(a, b)

	impersonator := a
	d := Dispatch{ensureFrom: &b, pool: pool} // b is "ticking", but message claims From: a

	assert.Panics(t, func() {
		d.Send(hardware.DeviceReady(hardware.Route{From: impersonator, To: b}))
	})
}

func TestMessageQueuedBeforeTickIsDeliveredByNextTick(t *testing.T) {
	pool := New()
	var order []hardware.Id

	receiverRec := &recorder{tickLog: &order}
	receiver := pool.AddHardware(receiverRec)

	sender := pool.AddHardware(&recorder{tickLog: &order})
	pool.Connect(sender, receiver)

	// Simulate the sender hardware sending during its own Tick call by
	// using the pool's Dispatch directly, as Tick would hand to it.
	Dispatch{ensureFrom: &sender, pool: pool}.Send(hardware.DeviceReady(hardware.Route{From: sender, To: receiver}))

	// The message was enqueued "out of band" (not during a real Tick), so
	// the very next Tick's phase 1 should deliver it.
	pool.Tick()
	assert.Len(t, receiverRec.received, 1)
}

func TestInitializeMachineIsUnroutedAndHostOnly(t *testing.T) {
	pool := New()
	var order []hardware.Id
	machineRec := &recorder{tickLog: &order}
	machine := pool.AddHardware(machineRec)

	pool.InitializeMachine(machine, []hardware.DeviceConfig{{Id: 1, Model: 7}})
	pool.Tick()

	require.Len(t, machineRec.received, 1)
	assert.Equal(t, hardware.KindInitializeMachine, machineRec.received[0].Kind)
	assert.Equal(t, machine, machineRec.received[0].MachineId)
}
