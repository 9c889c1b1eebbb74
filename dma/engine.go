package dma

import "github.com/user-none/zxdma/bus"

// Timing selects how the write strobe is timed.
type Timing uint8

const (
	// ClockSync follows the Z80 clock edge by edge, the way the Z80 itself
	// times a write. Correct at any target clock speed, about one Z80
	// clock per phase.
	ClockSync Timing = iota
	// DelayCalibrated holds WR for a fixed number of controller cycles.
	// Faster, but the cycle count is tuned per board and drifts with the
	// temperature of the Spectrum.
	DelayCalibrated
)

func (t Timing) String() string {
	if t == DelayCalibrated {
		return "delay"
	}
	return "clock"
}

// Stats counts engine activity.
type Stats struct {
	Transfers int
	Bytes     int
}

// Engine drives memory write cycles on an acquired bus.
type Engine struct {
	ctrl   *bus.Controller
	spin   Spinner
	arb    *Arbiter
	owner  *HandoffOwner // nil when this controller drives the address bus itself
	timing Timing
	delay  int
	stats  Stats
}

// NewEngine returns an engine writing through ctrl. When owner is non-nil
// the address bus is wired to another controller and every byte goes
// through the handoff; the request Start address is then only informative,
// the address driver supplies the real one.
func NewEngine(ctrl *bus.Controller, spin Spinner, arb *Arbiter, owner *HandoffOwner, timing Timing, accessDelay int) *Engine {
	return &Engine{
		ctrl:   ctrl,
		spin:   spin,
		arb:    arb,
		owner:  owner,
		timing: timing,
		delay:  accessDelay,
	}
}

// SetAccessDelay changes the calibrated WR hold used by DelayCalibrated.
func (e *Engine) SetAccessDelay(cycles int) { e.delay = cycles }

// AccessDelay returns the calibrated WR hold in controller cycles.
func (e *Engine) AccessDelay() int { return e.delay }

// Timing returns the strobe timing discipline.
func (e *Engine) Timing() Timing { return e.timing }

// Stats returns the activity counters.
func (e *Engine) Stats() Stats { return e.stats }

// Transfer takes the bus, writes every byte of req and gives the bus back.
// On return every address, data and control line this engine drove is
// released again.
func (e *Engine) Transfer(req TransferRequest) {
	e.arb.Acquire()
	e.arb.ClaimControl()
	e.ctrl.DriveOne(bus.MREQ, false)
	e.ctrl.DriveOne(bus.WR, false)
	e.ctrl.Blip(true)

	for i := 0; i < req.Count; i++ {
		e.writeByte(req.Start+uint16(i), req.Source.ByteAt(i))
	}

	e.ctrl.Release(e.ctrl.Data())
	e.ctrl.ReleaseOne(bus.MREQ)
	e.ctrl.ReleaseOne(bus.WR)
	layout := e.ctrl.Layout()
	if layout.Has(bus.IORQ) {
		e.ctrl.ReleaseOne(bus.IORQ)
	}
	if layout.Has(bus.RD) {
		e.ctrl.ReleaseOne(bus.RD)
	}

	e.arb.Release()
	e.ctrl.Blip(false)

	e.stats.Transfers++
	e.stats.Bytes += req.Count
}

// writeByte is one Z80 memory write cycle, T1 to the end of T3.
func (e *Engine) writeByte(addr uint16, value uint8) {
	// T1: address
	if e.owner != nil {
		e.owner.Request()
	} else {
		e.ctrl.Drive(e.ctrl.Address(), uint32(addr))
	}
	if e.timing == ClockSync {
		e.edge(CondClockFall) // mid T1
	}

	e.ctrl.DriveOne(bus.MREQ, true)
	e.ctrl.Drive(e.ctrl.Data(), uint32(value))
	if e.timing == ClockSync {
		e.edge(CondClockRise) // T2
		e.edge(CondClockFall) // mid T2
	}

	e.ctrl.DriveOne(bus.WR, true)
	if e.timing == ClockSync {
		e.edge(CondClockRise) // T3
		e.edge(CondClockFall) // mid T3
	} else {
		e.spin.Delay(e.delay)
	}
	e.ctrl.DriveOne(bus.WR, false)
	e.ctrl.DriveOne(bus.MREQ, false)
	if e.timing == ClockSync {
		e.edge(CondClockRise) // end of T3
	}

	if e.owner != nil {
		e.owner.Release()
	} else {
		e.ctrl.Release(e.ctrl.Address())
	}
}

// edge spins until CLK changes level in the requested direction between two
// consecutive polls. A glitch shorter than a poll is never seen.
func (e *Engine) edge(c Condition) {
	rising := c == CondClockRise
	prev := e.ctrl.SampleOne(bus.CLK)
	e.spin.Until(c, func() bool {
		cur := e.ctrl.SampleOne(bus.CLK)
		hit := cur == rising && prev != rising
		prev = cur
		return hit
	})
}
