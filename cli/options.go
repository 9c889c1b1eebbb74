// Package cli runs the bench simulator from the command line: one free
// running session, or a batch of Lua scenarios run side by side.
package cli

import (
	"fmt"
	"strings"

	"github.com/user-none/zxdma/board"
	"github.com/user-none/zxdma/dma"
)

// Options is everything the command line can set.
type Options struct {
	Board  string
	Frames int

	// Overrides for the primary board. Zero values keep the profile.
	Timing      string // "clock" or "delay"
	Mode        string // "immediate" or "delayed"
	AccessDelay int
	// HoldOff keeps the boards' power-up hold-off.
	HoldOff bool

	Program  string // Z80 code loaded at 0x0000; runs a Z80 instead of a scripted target
	Screen   string // .scr loaded into the mirror before starting
	Dump     string // .scr written from RAM after the run
	Snapshot string // machine state written after the run
	Restore  string // machine state loaded before the run

	Scripts []string
	Jobs    int
}

// StringList is a repeatable string flag.
type StringList []string

func (s *StringList) String() string { return strings.Join(*s, ",") }

// Set implements flag.Value.
func (s *StringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// Rig looks up the board rig and applies the overrides.
func (o Options) Rig() (board.Rig, error) {
	rig, err := board.Lookup(o.Board)
	if err != nil {
		return board.Rig{}, err
	}

	var timing *dma.Timing
	switch strings.ToLower(o.Timing) {
	case "":
	case "clock":
		t := dma.ClockSync
		timing = &t
	case "delay":
		t := dma.DelayCalibrated
		timing = &t
	default:
		return board.Rig{}, fmt.Errorf("invalid timing: %s (use clock or delay)", o.Timing)
	}

	var mode *dma.Mode
	switch strings.ToLower(o.Mode) {
	case "":
	case "immediate":
		m := dma.Immediate
		mode = &m
	case "delayed":
		m := dma.Delayed
		mode = &m
	default:
		return board.Rig{}, fmt.Errorf("invalid mode: %s (use immediate or delayed)", o.Mode)
	}

	if o.AccessDelay < 0 {
		return board.Rig{}, fmt.Errorf("invalid access delay: %d", o.AccessDelay)
	}

	rig = rig.Adjust(func(p *board.Profile) {
		if !o.HoldOff {
			p.Config.StartAfter = 0
		}
		if p.Config.Role == dma.RoleAddressDriver {
			return
		}
		if timing != nil {
			p.Config.Timing = *timing
			if *timing == dma.DelayCalibrated && p.Config.AccessDelay == 0 {
				p.Config.AccessDelay = defaultAccessDelay(p.Config.ControllerHz)
			}
		}
		if o.AccessDelay > 0 {
			p.Config.AccessDelay = o.AccessDelay
		}
		if mode != nil && *mode != p.Config.Mode {
			p.Config.Mode = *mode
			v := p.Config.Video
			if *mode == dma.Delayed {
				p.Config.Window = dma.LowerBorder(v)
				p.Config.Latencies.Timer = board.AlarmLatency
			} else {
				p.Config.Window = dma.TopBorder(v)
				p.Config.Latencies.Timer = 0
			}
		}
	})
	return rig, nil
}

// defaultAccessDelay covers 150ns RAM at the given controller clock.
func defaultAccessDelay(hz int) int {
	const accessNs = 150
	return int((int64(hz)*accessNs + 999999999) / 1000000000)
}
