package sim

import (
	"fmt"

	"github.com/user-none/zxdma/bus"
)

// Port is one controller's GPIO bank wired onto the net. It implements
// bus.Pins.
type Port struct {
	h      *Harness
	name   string
	layout *bus.Layout
	end    *endpoint

	out   uint64 // pins driven
	latch uint64 // latched pin levels
	local uint64 // pins of board-local lines, kept off the net

	cacheVersion uint64
	cacheValid   bool
	cache        uint64
}

// Name returns the port name used in traces.
func (p *Port) Name() string { return p.name }

// Layout returns the board wiring.
func (p *Port) Layout() *bus.Layout { return p.layout }

// Driven returns the mask of pins this port drives.
func (p *Port) Driven() uint64 { return p.out }

// SetOutput implements bus.Pins.
func (p *Port) SetOutput(mask uint64) {
	mask &= p.layout.Wired()
	fresh := mask &^ p.out
	p.out |= mask
	p.apply()
	p.traceDrive(fresh)
}

// SetInput implements bus.Pins.
func (p *Port) SetInput(mask uint64) {
	was := mask & p.out
	p.out &^= mask
	p.apply()
	p.traceRelease(was)
}

// Put implements bus.Pins.
func (p *Port) Put(mask, value uint64) {
	p.latch = p.latch&^mask | value&mask
	if live := mask & p.out; live != 0 {
		p.apply()
		p.traceDrive(live)
	}
}

// Get implements bus.Pins. Unwired pins read low.
func (p *Port) Get() uint64 {
	net := p.h.net
	if p.cacheValid && p.cacheVersion == net.version {
		return p.cache
	}
	var v uint64
	wired := p.layout.Wired()
	for pin := bus.Pin(0); pin < bus.MaxPins; pin++ {
		if wired&pin.Mask() == 0 {
			continue
		}
		s, _ := p.layout.SignalAt(pin)
		if net.levels&s.Bit() != 0 {
			v |= pin.Mask()
		}
	}
	// A board-local output reads back what it drives.
	v = v&^(p.local&p.out) | p.latch&p.local&p.out
	p.cache, p.cacheVersion, p.cacheValid = v, net.version, true
	return v
}

func (p *Port) apply() {
	out := p.layout.Signals(p.out) &^ bus.LocalSignals
	high := p.layout.Signals(p.latch&p.out) &^ bus.LocalSignals
	// The reset output pulls /RESET low while asserted and floats
	// otherwise.
	if ln, ok := p.layout.Line(bus.RESETOUT); ok && p.out&ln.Pin.Mask() != 0 && ln.Active(p.latch) {
		out |= bus.RESET.Bit()
		high &^= bus.RESET.Bit()
	}
	p.end.set(out, high)
	p.cacheValid = false
}

func (p *Port) traceDrive(pins uint64) {
	if p.h.trace == nil || pins == 0 {
		return
	}
	p.emit(pins, false)
}

func (p *Port) traceRelease(pins uint64) {
	if p.h.trace == nil || pins == 0 {
		return
	}
	p.emit(pins, true)
}

func (p *Port) emit(pins uint64, release bool) {
	t := p.h.trace
	at := p.h.now
	add := func(name string, kind EventKind, value uint32) {
		t.Events = append(t.Events, Event{At: at, Port: p.name, Name: name, Kind: kind, Value: value})
	}

	groups := []struct {
		name string
		g    *bus.Group
	}{
		{"ADDR", &p.layout.Address},
		{"DATA", &p.layout.Data},
	}
	for _, gr := range groups {
		m := gr.g.Mask()
		if m == 0 || pins&m == 0 {
			continue
		}
		if release {
			add(gr.name, Release, 0)
		} else if p.out&m == m {
			add(gr.name, Drive, gr.g.Decode(p.latch))
		}
	}

	for _, ln := range p.layout.Lines() {
		if pins&ln.Pin.Mask() == 0 {
			continue
		}
		if release {
			add(ln.Signal.String(), Release, 0)
			continue
		}
		var v uint32
		if ln.Active(p.latch) {
			v = 1
		}
		add(ln.Signal.String(), Drive, v)
	}
}

// EventKind says whether a traced line started or stopped being driven.
type EventKind uint8

const (
	Drive EventKind = iota
	Release
)

// Event is one change a port made to its pins. For ADDR and DATA Value is
// the bus value; for control lines it is 1 when the line is asserted.
type Event struct {
	At    Time
	Port  string
	Name  string
	Kind  EventKind
	Value uint32
}

// String formats the event compactly: ADDR=4000, DATA=AA, MREQ+ asserted,
// MREQ- driven inactive, MREQ~ released.
func (e Event) String() string {
	if e.Kind == Release {
		return e.Name + "~"
	}
	switch e.Name {
	case "ADDR":
		return fmt.Sprintf("ADDR=%04X", e.Value)
	case "DATA":
		return fmt.Sprintf("DATA=%02X", e.Value)
	}
	if e.Value != 0 {
		return e.Name + "+"
	}
	return e.Name + "-"
}

// Trace collects port events while enabled.
type Trace struct {
	Events []Event
}

// Strings returns the formatted events, limited to one port unless port is
// empty.
func (t *Trace) Strings(port string) []string {
	var out []string
	for _, e := range t.Events {
		if port == "" || e.Port == port {
			out = append(out, e.String())
		}
	}
	return out
}

// Reset drops collected events.
func (t *Trace) Reset() { t.Events = t.Events[:0] }
