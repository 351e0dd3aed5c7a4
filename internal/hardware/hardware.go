// Package hardware defines the wire types shared by the event pool and every
// device: the Hardware interface itself, Route addressing, the
// HardwareMessage protocol, and the Cacheable hint attached to memory
// responses.
package hardware

import "fmt"

// Id identifies one piece of hardware registered with the event pool. Device
// id 0 is reserved (never assigned); ids start at 1.
type Id uint32

// Route is a directed bus edge. Routes are inserted in both directions when
// two ids are connected, but any individual Route value names one direction.
type Route struct {
	From Id
	To   Id
}

func (r Route) String() string { return fmt.Sprintf("%d->%d", r.From, r.To) }

// Cacheable hints whether a memory response may be cached by the requester.
// RAM and Monitor responses are Yes; Keyboard and Console responses are No
// since their backing word changes out from under the CPU between reads.
type Cacheable bool

const (
	CacheableNo  Cacheable = false
	CacheableYes Cacheable = true
)

// MessageKind tags the variant carried by a HardwareMessage.
type MessageKind int

const (
	KindInitializeMachine MessageKind = iota
	KindInitializeDevice
	KindDeviceReady
	KindIntMachineToDevice
	KindIntDeviceToMachine
	KindMemGetRequest
	KindMemGetResponse
	KindMemSetRequest
	KindMemSetResponse
)

// DeviceConfig is one entry of the device-config ROM: model, interrupt code,
// and the device's location (if any) in the CPU's memory map.
type DeviceConfig struct {
	Id          Id
	Model       uint32
	Interrupt   uint32
	MemmapBase  uint32
	MemmapSize  uint32 // 0 = no memory mapping
}

// DeviceModel enumerates the known hardware models, matching the numeric ids
// guest code reads out of the device-config ROM.
type DeviceModel uint32

const (
	ModelRam      DeviceModel = 0x01011010
	ModelMonitor  DeviceModel = 0x384c0001
	ModelKeyboard DeviceModel = 0x384c000e
	ModelConsole  DeviceModel = 0xdeadbeef
)

func (m DeviceModel) Number() uint32 { return uint32(m) }

// HardwareMessage is the typed protocol exchanged over mailboxes. Only the
// fields relevant to Kind are meaningful; this mirrors a Rust enum as a
// tagged struct rather than a deep interface hierarchy, per the "avoid
// trait-object sprawl" guidance for pool-owned hardware.
type HardwareMessage struct {
	Kind MessageKind

	// KindInitializeMachine
	MachineId Id
	Devices   []DeviceConfig

	// KindInitializeDevice, KindDeviceReady, KindIntMachineToDevice,
	// KindIntDeviceToMachine, and all Mem* kinds carry a Route.
	Route Route

	// KindIntMachineToDevice / KindIntDeviceToMachine
	InterruptCode uint32

	// Mem* kinds
	Addr      uint32
	Value     uint32
	Cacheable Cacheable
}

func InitializeMachine(machineId Id, devices []DeviceConfig) HardwareMessage {
	return HardwareMessage{Kind: KindInitializeMachine, MachineId: machineId, Devices: devices}
}

func InitializeDevice(route Route) HardwareMessage {
	return HardwareMessage{Kind: KindInitializeDevice, Route: route}
}

func DeviceReady(route Route) HardwareMessage {
	return HardwareMessage{Kind: KindDeviceReady, Route: route}
}

func IntMachineToDevice(route Route, code uint32) HardwareMessage {
	return HardwareMessage{Kind: KindIntMachineToDevice, Route: route, InterruptCode: code}
}

func IntDeviceToMachine(route Route) HardwareMessage {
	return HardwareMessage{Kind: KindIntDeviceToMachine, Route: route}
}

func MemGetRequest(route Route, addr uint32) HardwareMessage {
	return HardwareMessage{Kind: KindMemGetRequest, Route: route, Addr: addr}
}

func MemGetResponse(route Route, addr, value uint32, cacheable Cacheable) HardwareMessage {
	return HardwareMessage{Kind: KindMemGetResponse, Route: route, Addr: addr, Value: value, Cacheable: cacheable}
}

func MemSetRequest(route Route, addr, value uint32) HardwareMessage {
	return HardwareMessage{Kind: KindMemSetRequest, Route: route, Addr: addr, Value: value}
}

func MemSetResponse(route Route, addr, value uint32, cacheable Cacheable) HardwareMessage {
	return HardwareMessage{Kind: KindMemSetResponse, Route: route, Addr: addr, Value: value, Cacheable: cacheable}
}

// HasRoute reports whether this message carries a routed destination.
// InitializeMachine is the sole unrouted message: it is addressed directly
// to MachineId by the pool host, bypassing route-table enforcement.
func (m HardwareMessage) HasRoute() bool {
	return m.Kind != KindInitializeMachine
}

// To returns the destination id: Route.To for routed messages, MachineId for
// InitializeMachine.
func (m HardwareMessage) To() Id {
	if m.HasRoute() {
		return m.Route.To
	}
	return m.MachineId
}

// Hardware is implemented by every device (and by the CPU machine itself):
// set its assigned id once, receive drained mailbox messages, and advance
// one tick, emitting messages only through the restricted Dispatch handle.
type Hardware interface {
	SetId(id Id)
	Receive(msg HardwareMessage)
	Tick(ts uint64, dispatch Dispatcher)
}

// Dispatcher is implemented by eventpool.Dispatch; declared here to avoid an
// import cycle between hardware and eventpool.
type Dispatcher interface {
	Send(msg HardwareMessage)
}
