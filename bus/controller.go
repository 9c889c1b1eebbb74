package bus

import "fmt"

// Pins is a GPIO bank. Each call is one observable step on the wire: every
// pin named in a mask changes together.
type Pins interface {
	// SetOutput switches the masked pins to driven outputs at their latched
	// levels.
	SetOutput(mask uint64)
	// SetInput switches the masked pins to high-impedance inputs.
	SetInput(mask uint64)
	// Put latches output levels for the masked pins. Pins that are inputs
	// keep the latched level for the next SetOutput.
	Put(mask, value uint64)
	// Get samples the electrical level of every pin.
	Get() uint64
}

// Controller owns one board's pins and is the only way the engine touches
// the bus. It remembers which pins it has switched to output so the released
// state of every line can be checked after a transfer.
type Controller struct {
	pins   Pins
	layout *Layout
	driven uint64
}

// NewController returns a controller over pins wired as layout. Every pin
// starts out released.
func NewController(pins Pins, layout *Layout) *Controller {
	return &Controller{pins: pins, layout: layout}
}

// Layout returns the board wiring.
func (c *Controller) Layout() *Layout { return c.layout }

// Address returns the address bus group.
func (c *Controller) Address() *Group { return &c.layout.Address }

// Data returns the data bus group.
func (c *Controller) Data() *Group { return &c.layout.Data }

// Drive puts value on the group and makes sure it is driven. The value is
// latched before the direction changes so a released group never shows a
// partial value when it starts driving.
func (c *Controller) Drive(g *Group, value uint32) {
	m := g.Mask()
	c.pins.Put(m, g.Encode(value))
	if c.driven&m != m {
		c.pins.SetOutput(m)
		c.driven |= m
	}
}

// Release returns every pin of the group to high impedance.
func (c *Controller) Release(g *Group) {
	m := g.Mask()
	c.pins.SetInput(m)
	c.driven &^= m
}

// Sample reads the group without changing its direction.
func (c *Controller) Sample(g *Group) uint32 {
	return g.Decode(c.pins.Get())
}

// DriveOne drives a single control line to its active or inactive level.
func (c *Controller) DriveOne(s Signal, active bool) {
	ln := c.line(s)
	m := ln.Pin.Mask()
	c.pins.Put(m, ln.Level(active))
	if c.driven&m == 0 {
		c.pins.SetOutput(m)
		c.driven |= m
	}
}

// ReleaseOne returns a control line to high impedance.
func (c *Controller) ReleaseOne(s Signal) {
	m := c.line(s).Pin.Mask()
	c.pins.SetInput(m)
	c.driven &^= m
}

// SampleOne reports whether the line is asserted.
func (c *Controller) SampleOne(s Signal) bool {
	return c.line(s).Active(c.pins.Get())
}

// Snapshot samples every pin at once.
func (c *Controller) Snapshot() uint64 { return c.pins.Get() }

// Asserted reports whether s is active in a snapshot.
func (c *Controller) Asserted(levels uint64, s Signal) bool {
	return c.line(s).Active(levels)
}

// Driven returns the mask of pins currently driven by this controller.
func (c *Controller) Driven() uint64 { return c.driven }

// Blip sets the scope probe line when the board has one.
func (c *Controller) Blip(on bool) {
	if _, ok := c.layout.Line(BLIPPER); ok {
		c.DriveOne(BLIPPER, on)
	}
}

func (c *Controller) line(s Signal) Line {
	ln, ok := c.layout.Line(s)
	if !ok {
		panic(fmt.Sprintf("bus: %v is not wired on %s", s, c.layout.Name))
	}
	return ln
}
