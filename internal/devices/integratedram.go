// Package devices implements the shared IntegratedRam bus-protocol helper
// and the four concrete devices: Ram, Monitor, Keyboard, and StdioConsole.
package devices

import (
	"github.com/devyn/fai/internal/hardware"
)

// IntegratedRam is the reusable device-side helper backing the bus memory
// protocol: a flat word array plus at most one pending Get/Set request,
// serviced one per tick. Out-of-range accesses respond with 0 and never
// mutate storage.
type IntegratedRam struct {
	Words     []uint32
	cacheable hardware.Cacheable

	pendingKind hardware.MessageKind // KindMemGetRequest or KindMemSetRequest
	pendingAddr uint32
	pendingVal  uint32
	hasPending  bool

	// OnSet, when non-nil, is invoked with (addr, value) after every
	// successful in-range Set — the hook Monitor uses to publish VRAM
	// updates to a host front-end.
	OnSet func(addr, value uint32)
}

// NewIntegratedRam creates a non-cacheable IntegratedRam of the given size in
// words (used by Keyboard and the console devices).
func NewIntegratedRam(size uint32) *IntegratedRam {
	return &IntegratedRam{Words: make([]uint32, size), cacheable: hardware.CacheableNo}
}

// NewCacheableIntegratedRam creates a cacheable IntegratedRam (used by Ram
// and Monitor).
func NewCacheableIntegratedRam(size uint32) *IntegratedRam {
	return &IntegratedRam{Words: make([]uint32, size), cacheable: hardware.CacheableYes}
}

// Reinitialize resets device bookkeeping (pending request state) without
// touching the backing words — used by Ram, which must not lose its
// contents across a device re-init.
func (r *IntegratedRam) Reinitialize() {
	r.hasPending = false
}

// Clear reinitializes bookkeeping and zeroes every word — used by devices
// whose contents should not survive a re-init (Keyboard, StdioConsole).
func (r *IntegratedRam) Clear() {
	r.Reinitialize()
	for i := range r.Words {
		r.Words[i] = 0
	}
}

func (r *IntegratedRam) HasPendingRequest() bool { return r.hasPending }

// Receive records a Get/Set request addressed to this device. Any other
// message kind is ignored; devices filter InitializeDevice/interrupt
// messages themselves before or after calling this.
func (r *IntegratedRam) Receive(msg hardware.HardwareMessage) {
	switch msg.Kind {
	case hardware.KindMemGetRequest:
		r.hasPending = true
		r.pendingKind = hardware.KindMemGetRequest
		r.pendingAddr = msg.Addr
	case hardware.KindMemSetRequest:
		r.hasPending = true
		r.pendingKind = hardware.KindMemSetRequest
		r.pendingAddr = msg.Addr
		r.pendingVal = msg.Value
	}
}

// Tick services one pending request, if any, sending the paired response
// over dispatch along route. It does nothing when no request is pending.
func (r *IntegratedRam) Tick(route hardware.Route, dispatch hardware.Dispatcher) {
	if !r.hasPending {
		return
	}

	inRange := r.pendingAddr < uint32(len(r.Words))

	switch r.pendingKind {
	case hardware.KindMemGetRequest:
		var value uint32
		if inRange {
			value = r.Words[r.pendingAddr]
		}
		dispatch.Send(hardware.MemGetResponse(route, r.pendingAddr, value, r.cacheable))

	case hardware.KindMemSetRequest:
		var value uint32
		if inRange {
			r.Words[r.pendingAddr] = r.pendingVal
			if r.OnSet != nil {
				r.OnSet(r.pendingAddr, r.pendingVal)
			}
			value = r.pendingVal
		}
		dispatch.Send(hardware.MemSetResponse(route, r.pendingAddr, value, r.cacheable))
	}

	r.hasPending = false
}
