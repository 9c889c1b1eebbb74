package dma

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/user-none/zxdma/bus"
)

// Role is the part one controller plays.
type Role uint8

const (
	// RoleSingle owns the whole bus: transfer engine, scheduler and snoop
	// loop on one controller.
	RoleSingle Role = iota
	// RoleOwner owns data and control and delegates the address bus.
	RoleOwner
	// RoleAddressDriver only drives the address bus for an owner.
	RoleAddressDriver
)

func (r Role) String() string {
	switch r {
	case RoleSingle:
		return "single"
	case RoleOwner:
		return "owner"
	case RoleAddressDriver:
		return "address-driver"
	}
	return "unknown"
}

// Config is everything a controller's firmware needs beyond its wiring.
type Config struct {
	Role   Role
	Timing Timing
	// AccessDelay is the calibrated WR hold in controller cycles. It is
	// tuned per board by experiment.
	AccessDelay  int
	ControllerHz int

	Mode      Mode
	Video     VideoTiming
	Window    Window
	Latencies Latencies

	// Transfer destination and length. With Snoop set the source is the
	// mirror of [WatchFirst, WatchLast], otherwise Pattern.
	Start   uint16
	Count   int
	Pattern Pattern
	Snoop   bool

	WatchFirst uint16
	WatchLast  uint16

	// Address driver source: Base counting up per cycle, wrapping every
	// Span cycles, or Base every time when ConstantAddress is set.
	DriverBase      uint16
	DriverSpan      uint32
	ConstantAddress bool

	// StartAfter holds off the first transfer so the Spectrum's ROM can
	// finish its RAM check undisturbed.
	StartAfter time.Duration
	// ScrollAfter, when non-zero, starts scrolling the mirror left by one
	// pixel before every transfer once it has elapsed.
	ScrollAfter time.Duration
}

// Firmware is one controller's program.
type Firmware struct {
	ctrl *bus.Controller
	cfg  Config

	Arbiter   *Arbiter
	Owner     *HandoffOwner
	Engine    *Engine
	Scheduler *Scheduler
	Snooper   *Snooper
	Mirror    *Mirror
	Driver    *AddressDriver

	scrolling atomic.Bool
}

// NewFirmware checks the wiring against the role and builds the pieces the
// role uses.
func NewFirmware(ctrl *bus.Controller, cfg Config, spin Spinner, timer Timer) (*Firmware, error) {
	layout := ctrl.Layout()
	if err := layout.Require(required(cfg)...); err != nil {
		return nil, fmt.Errorf("firmware %s: %w", cfg.Role, err)
	}

	f := &Firmware{ctrl: ctrl, cfg: cfg}

	if cfg.Role == RoleAddressDriver {
		var src AddressSource = CounterAddress{Base: cfg.DriverBase, Span: cfg.DriverSpan}
		if cfg.ConstantAddress {
			src = ConstantAddress(cfg.DriverBase)
		}
		f.Driver = NewAddressDriver(ctrl, spin, src)
		return f, nil
	}

	if cfg.Timing == DelayCalibrated && cfg.AccessDelay <= 0 {
		return nil, fmt.Errorf("firmware %s: delay timing needs a positive access delay", cfg.Role)
	}

	f.Arbiter = NewArbiter(ctrl, spin)
	if cfg.Role == RoleOwner {
		f.Owner = NewHandoffOwner(ctrl, spin)
	}
	f.Engine = NewEngine(ctrl, spin, f.Arbiter, f.Owner, cfg.Timing, cfg.AccessDelay)

	request := func() TransferRequest {
		return TransferRequest{Start: cfg.Start, Count: cfg.Count, Source: cfg.Pattern}
	}
	if cfg.Snoop {
		f.Mirror = NewMirror(cfg.WatchFirst, cfg.WatchLast)
		f.Snooper = NewSnooper(ctrl, spin, f.Mirror)
		mirror := f.Mirror
		request = func() TransferRequest {
			r := mirror.Request()
			if cfg.Count > 0 && cfg.Count < r.Count {
				r.Count = cfg.Count
			}
			return r
		}
	}

	delay := DelayFor(cfg.Video, cfg.Window, cfg.Latencies)
	f.Scheduler = NewScheduler(f.Engine, timer, cfg.Mode, delay, request)
	if f.Mirror != nil {
		f.Scheduler.SetPrepare(func() {
			if f.scrolling.Load() {
				f.Mirror.ScrollLeft()
			}
		})
	}
	return f, nil
}

func required(cfg Config) []bus.Signal {
	switch cfg.Role {
	case RoleAddressDriver:
		return []bus.Signal{bus.A0, bus.REQUEST, bus.DRIVING}
	case RoleOwner:
		s := []bus.Signal{bus.D0, bus.MREQ, bus.WR, bus.BUSREQ, bus.BUSACK, bus.INT, bus.REQUEST, bus.DRIVING}
		if cfg.Timing == ClockSync {
			s = append(s, bus.CLK)
		}
		return s
	}
	s := []bus.Signal{bus.A0, bus.D0, bus.MREQ, bus.WR, bus.BUSREQ, bus.BUSACK, bus.INT}
	if cfg.Timing == ClockSync {
		s = append(s, bus.CLK)
	}
	return s
}

// Config returns the configuration the firmware was built with.
func (f *Firmware) Config() Config { return f.cfg }

// Controller returns the bus controller.
func (f *Firmware) Controller() *bus.Controller { return f.ctrl }

// Scrolling reports whether the scroll demo is running.
func (f *Firmware) Scrolling() bool { return f.scrolling.Load() }

// Init is the one-time pin setup: every bus line released, the role's own
// handshake outputs driven at their inactive levels. A board with a reset
// output holds the Z80 in reset for the duration.
func (f *Firmware) Init() {
	layout := f.ctrl.Layout()
	resets := layout.Has(bus.RESETOUT)
	if resets {
		f.ctrl.DriveOne(bus.RESETOUT, true)
	}
	if layout.Address.Width() > 0 {
		f.ctrl.Release(f.ctrl.Address())
	}
	if layout.Data.Width() > 0 {
		f.ctrl.Release(f.ctrl.Data())
	}
	for _, ln := range layout.Lines() {
		switch ln.Signal {
		case bus.BUSREQ:
			if f.cfg.Role != RoleAddressDriver {
				f.ctrl.DriveOne(bus.BUSREQ, false)
				continue
			}
		case bus.REQUEST:
			if f.cfg.Role == RoleOwner {
				f.ctrl.DriveOne(bus.REQUEST, false)
				continue
			}
		case bus.DRIVING:
			if f.cfg.Role == RoleAddressDriver {
				f.ctrl.DriveOne(bus.DRIVING, false)
				continue
			}
		case bus.BLIPPER:
			f.ctrl.DriveOne(bus.BLIPPER, false)
			continue
		case bus.RESETOUT:
			continue
		}
		f.ctrl.ReleaseOne(ln.Signal)
	}

	if resets {
		f.ctrl.DriveOne(bus.RESETOUT, false)
	}
}

// Start arms the scheduler after the configured hold-off and, if
// configured, the scroll demo. The address driver has nothing to arm.
func (f *Firmware) Start(timer Timer) {
	if f.Scheduler == nil {
		return
	}

	cfg := f.cfg
	if cfg.Mode == Immediate {
		est := f.Estimate()
		if !TopBorder(cfg.Video).Fits(cfg.Video, est) {
			log.Printf("dma: %d byte transfer needs about %v, longer than the top border (%v)",
				cfg.Count, est, cfg.Video.Duration(TopBorder(cfg.Video).Length))
		}
	}

	if cfg.StartAfter > 0 {
		timer.After(cfg.StartAfter, f.Scheduler.Enable)
	} else {
		f.Scheduler.Enable()
	}
	if f.Mirror != nil && cfg.ScrollAfter > 0 {
		timer.After(cfg.StartAfter+cfg.ScrollAfter, func() { f.scrolling.Store(true) })
	}
}

// Estimate is a rough duration of one scheduled transfer, ignoring bus
// acquisition and handoff latency.
func (f *Firmware) Estimate() time.Duration {
	cfg := f.cfg
	count := cfg.Count
	if f.Mirror != nil && (count == 0 || count > f.Mirror.Len()) {
		count = f.Mirror.Len()
	}
	if cfg.Timing == ClockSync {
		// T1 to end of T3 plus the wait for the first falling edge.
		return time.Duration(count) * cfg.Video.Duration(4)
	}
	if cfg.ControllerHz <= 0 {
		return 0
	}
	perByte := time.Duration(int64(cfg.AccessDelay) * int64(time.Second) / int64(cfg.ControllerHz))
	return time.Duration(count) * perByte
}
