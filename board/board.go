// Package board holds the pin tables and firmware settings of each
// controller board, and the rigs they are fitted in.
//
// These need to match the hardware.
package board

import (
	"fmt"
	"sort"
	"time"

	"github.com/user-none/zxdma/bus"
	"github.com/user-none/zxdma/dma"
)

// Profile is one controller board: how it is wired and how its firmware is
// configured.
type Profile struct {
	Name   string
	Layout *bus.Layout
	Config dma.Config
}

// Rig is a set of boards fitted to one Spectrum and sharing its bus.
type Rig struct {
	Name        string
	Description string
	Boards      []Profile
}

// Primary returns the board that runs the transfer engine.
func (r Rig) Primary() Profile {
	for _, b := range r.Boards {
		if b.Config.Role != dma.RoleAddressDriver {
			return b
		}
	}
	return Profile{}
}

// Adjust returns a copy of the rig with fn applied to every board.
func (r Rig) Adjust(fn func(p *Profile)) Rig {
	boards := make([]Profile, len(r.Boards))
	copy(boards, r.Boards)
	for i := range boards {
		fn(&boards[i])
	}
	r.Boards = boards
	return r
}

// Validate checks the rig is wired consistently: exactly one board runs the
// engine, an owner has an address driver to hand off to, and both ends of
// each handshake line agree on its polarity.
func (r Rig) Validate() error {
	var engines, owners, drivers []Profile
	for _, b := range r.Boards {
		switch b.Config.Role {
		case dma.RoleSingle:
			engines = append(engines, b)
		case dma.RoleOwner:
			engines = append(engines, b)
			owners = append(owners, b)
		case dma.RoleAddressDriver:
			drivers = append(drivers, b)
		}
	}
	if len(engines) != 1 {
		return fmt.Errorf("rig %s: %d boards run the transfer engine, want 1", r.Name, len(engines))
	}
	if len(owners) != len(drivers) {
		return fmt.Errorf("rig %s: %d owners but %d address drivers", r.Name, len(owners), len(drivers))
	}
	for _, o := range owners {
		for _, d := range drivers {
			for _, s := range []bus.Signal{bus.REQUEST, bus.DRIVING} {
				ol, ok1 := o.Layout.Line(s)
				dl, ok2 := d.Layout.Line(s)
				if !ok1 || !ok2 {
					return fmt.Errorf("rig %s: %v not wired on both %s and %s", r.Name, s, o.Name, d.Name)
				}
				if ol.Polarity != dl.Polarity {
					return fmt.Errorf("rig %s: %v is %v on %s but %v on %s",
						r.Name, s, ol.Polarity, o.Name, dl.Polarity, d.Name)
				}
			}
		}
	}
	return nil
}

var rigs = map[string]Rig{}

func register(r Rig) {
	if err := r.Validate(); err != nil {
		panic(err)
	}
	rigs[r.Name] = r
}

// Lookup returns the named rig.
func Lookup(name string) (Rig, error) {
	r, ok := rigs[name]
	if !ok {
		return Rig{}, fmt.Errorf("unknown rig %q (have %v)", name, Names())
	}
	return r, nil
}

// Names lists the known rigs.
func Names() []string {
	out := make([]string, 0, len(rigs))
	for n := range rigs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Timing measured on the boards.
const (
	// The /INT edge to handler entry on an RP2040 is a steady 2us.
	InterruptLatency = 2 * time.Microsecond
	// Alarm due time to callback varies by about 2us; 3 errs late, never
	// early, so the transfer never starts on a display line.
	AlarmLatency = 3 * time.Microsecond
)
