package dma

import "github.com/user-none/zxdma/bus"

// HandoffState is one side's view of the address bus handoff. The two sides
// share no memory: each infers the other's state from REQUEST and DRIVING.
type HandoffState uint8

const (
	HandoffIdle HandoffState = iota
	HandoffRequestPending
	HandoffAddressDriven
	HandoffReleasePending
)

func (s HandoffState) String() string {
	switch s {
	case HandoffIdle:
		return "idle"
	case HandoffRequestPending:
		return "request pending"
	case HandoffAddressDriven:
		return "address driven"
	case HandoffReleasePending:
		return "release pending"
	}
	return "unknown"
}

// HandoffOwner is the data/control bus owner's side of the handoff. It asks
// the address driver for an address with REQUEST and learns the address is
// on the bus from DRIVING.
type HandoffOwner struct {
	ctrl  *bus.Controller
	spin  Spinner
	state HandoffState
}

// NewHandoffOwner returns an idle owner. REQUEST must already be an output at
// its inactive level.
func NewHandoffOwner(ctrl *bus.Controller, spin Spinner) *HandoffOwner {
	return &HandoffOwner{ctrl: ctrl, spin: spin}
}

// State returns the owner's view of the handoff.
func (o *HandoffOwner) State() HandoffState { return o.state }

// Step advances the owner by one poll without blocking. want says whether
// the owner currently needs the address on the bus. Dropping want before
// DRIVING has been seen is the early release the address driver aborts on.
func (o *HandoffOwner) Step(want bool) HandoffState {
	switch o.state {
	case HandoffIdle:
		if want {
			o.ctrl.DriveOne(bus.REQUEST, true)
			o.state = HandoffRequestPending
		}
	case HandoffRequestPending:
		if !want {
			o.ctrl.DriveOne(bus.REQUEST, false)
			o.state = HandoffReleasePending
		} else if o.ctrl.SampleOne(bus.DRIVING) {
			o.state = HandoffAddressDriven
		}
	case HandoffAddressDriven:
		if !want {
			o.ctrl.DriveOne(bus.REQUEST, false)
			o.state = HandoffReleasePending
		}
	case HandoffReleasePending:
		if !o.ctrl.SampleOne(bus.DRIVING) {
			o.state = HandoffIdle
		}
	}
	return o.state
}

// Request asserts REQUEST and spins until the address driver reports the
// address is on the bus.
func (o *HandoffOwner) Request() {
	if o.Step(true) == HandoffAddressDriven {
		return
	}
	o.spin.Until(CondDriving, func() bool {
		return o.Step(true) == HandoffAddressDriven
	})
}

// Release drops REQUEST and spins until the address driver has put the
// address bus back to high impedance. Called before DRIVING was seen it is
// the early drop that makes the driver abort.
func (o *HandoffOwner) Release() {
	if o.Step(false) == HandoffIdle {
		return
	}
	o.spin.Until(CondDrivingClear, func() bool {
		return o.Step(false) == HandoffIdle
	})
}

// AddressSource gives the address for the n'th completed handoff cycle.
type AddressSource interface {
	Address(n uint32) uint16
}

// CounterAddress walks up from Base. A non-zero Span wraps the counter so
// that every transfer of Span bytes starts again at Base.
type CounterAddress struct {
	Base uint16
	Span uint32
}

// Address returns Base plus the cycle count.
func (c CounterAddress) Address(n uint32) uint16 {
	if c.Span > 0 {
		n %= c.Span
	}
	return c.Base + uint16(n)
}

// ConstantAddress drives the same address every cycle.
type ConstantAddress uint16

// Address returns the constant.
func (c ConstantAddress) Address(uint32) uint16 { return uint16(c) }

// AddressDriver is the second controller's side: it owns only the address
// bus and puts an address on it whenever REQUEST is asserted.
type AddressDriver struct {
	ctrl   *bus.Controller
	spin   Spinner
	src    AddressSource
	state  HandoffState
	count  uint32
	aborts int
}

// NewAddressDriver returns an idle driver. DRIVING must already be an output
// at its inactive level.
func NewAddressDriver(ctrl *bus.Controller, spin Spinner, src AddressSource) *AddressDriver {
	return &AddressDriver{ctrl: ctrl, spin: spin, src: src}
}

// State returns the driver's view of the handoff.
func (d *AddressDriver) State() HandoffState { return d.state }

// Cycles returns the number of completed cycles.
func (d *AddressDriver) Cycles() uint32 { return d.count }

// Aborts returns how many cycles were abandoned because REQUEST dropped
// before DRIVING was raised.
func (d *AddressDriver) Aborts() int { return d.aborts }

// Rebase swaps the address source and restarts the counter.
func (d *AddressDriver) Rebase(src AddressSource) {
	d.src = src
	d.count = 0
}

// Step advances the driver by one poll without blocking.
//
// REQUEST dropping while the address is on the bus but DRIVING has not been
// raised yet aborts the cycle: the bus is released at once, DRIVING is never
// raised, the counter does not move and nothing is retried.
func (d *AddressDriver) Step() HandoffState {
	req := d.ctrl.SampleOne(bus.REQUEST)
	switch d.state {
	case HandoffIdle:
		if req {
			d.ctrl.Drive(d.ctrl.Address(), uint32(d.src.Address(d.count)))
			d.state = HandoffRequestPending
		}
	case HandoffRequestPending:
		if !req {
			d.ctrl.Release(d.ctrl.Address())
			d.aborts++
			d.state = HandoffIdle
		} else {
			d.ctrl.DriveOne(bus.DRIVING, true)
			d.state = HandoffAddressDriven
		}
	case HandoffAddressDriven:
		if !req {
			d.ctrl.Release(d.ctrl.Address())
			d.state = HandoffReleasePending
		}
	case HandoffReleasePending:
		d.ctrl.DriveOne(bus.DRIVING, false)
		d.count++
		d.state = HandoffIdle
	}
	return d.state
}

// Cycle blocks for one complete handoff: it waits for REQUEST, drives the
// address, waits for REQUEST to clear and lets go. It returns early after an
// abort.
func (d *AddressDriver) Cycle() {
	d.spin.Until(CondRequest, func() bool {
		return d.Step() != HandoffIdle
	})
	// REQUEST is polled again one loop later, before DRIVING goes up.
	d.spin.Delay(1)
	if d.Step() == HandoffIdle {
		return
	}
	d.spin.Until(CondRequestClear, func() bool {
		return d.Step() == HandoffReleasePending
	})
	d.Step()
}

// Run is the address driver's main loop. It never returns.
func (d *AddressDriver) Run() {
	for {
		d.Cycle()
	}
}
