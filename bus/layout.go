package bus

import (
	"errors"
	"fmt"
	"sort"
)

// ErrLayout is wrapped by every wiring error returned from NewLayout.
var ErrLayout = errors.New("invalid pin layout")

// Layout is one board's wiring of bus signals to GPIO pins. The address and
// data groups are optional: a controller in a split configuration only sees
// one of them.
type Layout struct {
	Name    string
	Address Group
	Data    Group

	lines map[Signal]Line
	pins  [MaxPins]int16 // signal on each pin, -1 when unwired
	wired uint64
}

// NewLayout validates the wiring and returns the layout. Wiring defects are
// fixed at build time, so callers normally treat the error as fatal.
func NewLayout(name string, address, data Group, lines ...Line) (*Layout, error) {
	l := &Layout{
		Name:    name,
		Address: address,
		Data:    data,
		lines:   make(map[Signal]Line, len(lines)),
	}
	for i := range l.pins {
		l.pins[i] = -1
	}

	if w := address.Width(); w != 0 && w != AddressWidth {
		return nil, fmt.Errorf("%w: %s: address group has %d pins, want %d", ErrLayout, name, w, AddressWidth)
	}
	if w := data.Width(); w != 0 && w != DataWidth {
		return nil, fmt.Errorf("%w: %s: data group has %d pins, want %d", ErrLayout, name, w, DataWidth)
	}

	claim := func(p Pin, s Signal) error {
		if int(p) >= MaxPins {
			return fmt.Errorf("%w: %s: %v on pin %d outside the bank", ErrLayout, name, s, p)
		}
		if l.pins[p] >= 0 {
			return fmt.Errorf("%w: %s: pin %d wired to both %v and %v", ErrLayout, name, p, Signal(l.pins[p]), s)
		}
		l.pins[p] = int16(s)
		l.wired |= p.Mask()
		return nil
	}

	for i, p := range address.Pins {
		if err := claim(p, A0+Signal(i)); err != nil {
			return nil, err
		}
	}
	for i, p := range data.Pins {
		if err := claim(p, D0+Signal(i)); err != nil {
			return nil, err
		}
	}
	for _, ln := range lines {
		if ln.Signal.IsAddress() || ln.Signal.IsData() || ln.Signal >= NumSignals {
			return nil, fmt.Errorf("%w: %s: %v is not a control line", ErrLayout, name, ln.Signal)
		}
		if _, dup := l.lines[ln.Signal]; dup {
			return nil, fmt.Errorf("%w: %s: %v wired twice", ErrLayout, name, ln.Signal)
		}
		if err := claim(ln.Pin, ln.Signal); err != nil {
			return nil, err
		}
		l.lines[ln.Signal] = ln
	}
	return l, nil
}

// MustLayout is NewLayout for package level board tables.
func MustLayout(name string, address, data Group, lines ...Line) *Layout {
	l, err := NewLayout(name, address, data, lines...)
	if err != nil {
		panic(err)
	}
	return l
}

// Line returns the control line wired for s.
func (l *Layout) Line(s Signal) (Line, bool) {
	ln, ok := l.lines[s]
	return ln, ok
}

// Has reports whether s is wired on this board, including address and data
// bits.
func (l *Layout) Has(s Signal) bool {
	switch {
	case s.IsAddress():
		return l.Address.Width() == AddressWidth
	case s.IsData():
		return l.Data.Width() == DataWidth
	}
	_, ok := l.lines[s]
	return ok
}

// Require returns an error naming the first of signals that is not wired.
func (l *Layout) Require(signals ...Signal) error {
	for _, s := range signals {
		if !l.Has(s) {
			return fmt.Errorf("%w: %s: %v is not wired", ErrLayout, l.Name, s)
		}
	}
	return nil
}

// Lines returns the control lines ordered by signal.
func (l *Layout) Lines() []Line {
	out := make([]Line, 0, len(l.lines))
	for _, ln := range l.lines {
		out = append(out, ln)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Signal < out[j].Signal })
	return out
}

// SignalAt returns the signal wired to pin p.
func (l *Layout) SignalAt(p Pin) (Signal, bool) {
	if int(p) >= MaxPins || l.pins[p] < 0 {
		return 0, false
	}
	return Signal(l.pins[p]), true
}

// Wired returns the mask of every pin the layout uses.
func (l *Layout) Wired() uint64 { return l.wired }

// Signals converts a bank pin mask into the mask of signals on those pins.
func (l *Layout) Signals(pins uint64) uint64 {
	var out uint64
	forEachPin(pins&l.wired, func(p Pin) {
		out |= Signal(l.pins[p]).Bit()
	})
	return out
}

// WithPolarity returns a copy of the layout with the given control lines
// switched to polarity p.
func (l *Layout) WithPolarity(p Polarity, signals ...Signal) (*Layout, error) {
	lines := l.Lines()
	for _, s := range signals {
		found := false
		for i := range lines {
			if lines[i].Signal == s {
				lines[i].Polarity = p
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s: %v is not wired", ErrLayout, l.Name, s)
		}
	}
	return NewLayout(l.Name, l.Address, l.Data, lines...)
}
