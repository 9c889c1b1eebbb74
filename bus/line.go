package bus

import "math/bits"

// Pin is a GPIO number in a bank of up to MaxPins pins.
type Pin uint8

// MaxPins is the size of the widest GPIO bank supported (RP2350B has 48).
const MaxPins = 64

// Mask returns the bank mask for p.
func (p Pin) Mask() uint64 { return 1 << p }

// Polarity is the electrical level at which a line is considered asserted.
type Polarity uint8

const (
	ActiveLow Polarity = iota
	ActiveHigh
)

func (p Polarity) String() string {
	if p == ActiveHigh {
		return "active-high"
	}
	return "active-low"
}

// Line is a single control signal wired to one pin.
type Line struct {
	Signal   Signal
	Pin      Pin
	Polarity Polarity
}

// Level returns the bank bits that put the line in the given logical state.
func (l Line) Level(active bool) uint64 {
	high := active == (l.Polarity == ActiveHigh)
	if high {
		return l.Pin.Mask()
	}
	return 0
}

// Active reports whether the line is asserted in the sampled bank levels.
func (l Line) Active(levels uint64) bool {
	high := levels&l.Pin.Mask() != 0
	return high == (l.Polarity == ActiveHigh)
}

// Group is an ordered set of pins written and read as one value: bit n of
// the value maps to Pins[n]. All members change in a single Pins call.
type Group struct {
	Name string
	Pins []Pin
	mask uint64
	// shift is set when the pins are contiguous and ascending, which is how
	// every board so far is wired; encode and decode are then a single shift.
	shift      uint8
	contiguous bool
}

// NewGroup returns a group over the given pins in bit order.
func NewGroup(name string, pins ...Pin) Group {
	g := Group{Name: name, Pins: pins}
	g.contiguous = len(pins) > 0
	for i, p := range pins {
		g.mask |= p.Mask()
		if p != pins[0]+Pin(i) {
			g.contiguous = false
		}
	}
	if g.contiguous {
		g.shift = uint8(pins[0])
	}
	return g
}

// ContiguousGroup returns a group of width pins starting at base.
func ContiguousGroup(name string, base Pin, width int) Group {
	pins := make([]Pin, width)
	for i := range pins {
		pins[i] = base + Pin(i)
	}
	return NewGroup(name, pins...)
}

// Mask returns the bank mask covering every pin in the group.
func (g *Group) Mask() uint64 { return g.mask }

// Width returns the number of pins in the group.
func (g *Group) Width() int { return len(g.Pins) }

// Encode spreads value over the group's pins.
func (g *Group) Encode(value uint32) uint64 {
	if g.contiguous {
		return (uint64(value) << g.shift) & g.mask
	}
	var out uint64
	for i, p := range g.Pins {
		if value&(1<<i) != 0 {
			out |= p.Mask()
		}
	}
	return out
}

// Decode gathers the group's pins out of sampled bank levels.
func (g *Group) Decode(levels uint64) uint32 {
	if g.contiguous {
		return uint32((levels & g.mask) >> g.shift)
	}
	var v uint32
	for i, p := range g.Pins {
		if levels&p.Mask() != 0 {
			v |= 1 << i
		}
	}
	return v
}

// forEachPin calls fn for every set bit of mask.
func forEachPin(mask uint64, fn func(Pin)) {
	for mask != 0 {
		p := bits.TrailingZeros64(mask)
		fn(Pin(p))
		mask &^= 1 << p
	}
}
