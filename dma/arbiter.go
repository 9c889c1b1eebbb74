package dma

import "github.com/user-none/zxdma/bus"

// ArbiterState tracks ownership of the Z80 bus.
type ArbiterState uint8

const (
	ArbiterIdle ArbiterState = iota
	ArbiterRequesting
	ArbiterOwned
	ArbiterReleasing
)

func (s ArbiterState) String() string {
	switch s {
	case ArbiterIdle:
		return "idle"
	case ArbiterRequesting:
		return "requesting"
	case ArbiterOwned:
		return "owned"
	case ArbiterReleasing:
		return "releasing"
	}
	return "unknown"
}

// Arbiter asks the Z80 for its bus and gives it back.
type Arbiter struct {
	ctrl  *bus.Controller
	spin  Spinner
	state ArbiterState
}

// NewArbiter returns an idle arbiter. BUSREQ must already be an output at its
// inactive level (see Firmware.Init).
func NewArbiter(ctrl *bus.Controller, spin Spinner) *Arbiter {
	return &Arbiter{ctrl: ctrl, spin: spin}
}

// State returns the arbitration state.
func (a *Arbiter) State() ArbiterState { return a.state }

// Acquire asserts BUSREQ and spins until the Z80 answers with BUSACK. The
// Z80 only samples BUSREQ at the end of a machine cycle and raises BUSACK on
// a rising clock edge, so the wait is bounded by the current instruction.
// It drives nothing but BUSREQ.
func (a *Arbiter) Acquire() {
	a.state = ArbiterRequesting
	a.ctrl.DriveOne(bus.BUSREQ, true)
	a.spin.Until(CondBusAck, func() bool {
		return a.ctrl.SampleOne(bus.BUSACK)
	})
	a.state = ArbiterOwned
}

// ClaimControl takes RD and IORQ, where the board wires them, and holds
// them inactive. The engine only ever issues memory writes.
func (a *Arbiter) ClaimControl() {
	layout := a.ctrl.Layout()
	for _, s := range []bus.Signal{bus.RD, bus.IORQ} {
		if layout.Has(s) {
			a.ctrl.DriveOne(s, false)
		}
	}
}

// Release drops BUSREQ. The Z80 takes the bus back on its own; BUSACK is
// not waited on.
func (a *Arbiter) Release() {
	a.state = ArbiterReleasing
	a.ctrl.DriveOne(bus.BUSREQ, false)
	a.state = ArbiterIdle
}
