// Package sim is a bench for the DMA firmware: a simulated Spectrum bus with
// a Z80 target, the ULA's frame timing and RAM, onto which any number of
// controller boards are wired.
//
// Time is discrete. The harness advances in fixed quanta; within each
// quantum it produces the Z80 clock edges that fall inside it, steps the
// target on those edges, then lets every peer controller poll once. The
// primary controller's spins advance the same clock, so all parties run
// interleaved on one goroutine and every run is reproducible.
package sim

import (
	"math/bits"

	"github.com/user-none/zxdma/bus"
)

// Time is simulated time in picoseconds.
type Time int64

const (
	Picosecond  Time = 1
	Nanosecond       = 1000 * Picosecond
	Microsecond      = 1000 * Nanosecond
	Millisecond      = 1000 * Microsecond
)

// endpoint is one party's drivers on the net, as signal masks.
type endpoint struct {
	net  *Net
	name string
	out  uint64 // signals driven
	high uint64 // level driven, for signals in out
}

// drive sets the driven level of every signal in mask.
func (e *endpoint) drive(mask, high uint64) {
	e.out |= mask
	e.high = e.high&^mask | high&mask
	e.net.resolve()
}

// release stops driving every signal in mask.
func (e *endpoint) release(mask uint64) {
	e.out &^= mask
	e.net.resolve()
}

// set replaces the whole driver state in one step.
func (e *endpoint) set(out, high uint64) {
	e.out = out
	e.high = high & out
	e.net.resolve()
}

// level drives a single signal.
func (e *endpoint) level(s bus.Signal, high bool) {
	var h uint64
	if high {
		h = s.Bit()
	}
	e.drive(s.Bit(), h)
}

// Net resolves the level of every bus signal from all endpoints. Undriven
// signals are pulled high. Two endpoints driving one signal is contention
// and is counted.
type Net struct {
	ends       []*endpoint
	levels     uint64
	driven     uint64
	twice      uint64
	contention int
	version    uint64
	observe    func(prev, cur uint64)
}

func newNet() *Net {
	return &Net{levels: ^uint64(0)}
}

func (n *Net) attach(name string) *endpoint {
	e := &endpoint{net: n, name: name}
	n.ends = append(n.ends, e)
	return e
}

func (n *Net) resolve() {
	var any, twice, lv uint64
	for _, e := range n.ends {
		twice |= any & e.out
		any |= e.out
		lv |= e.high & e.out
	}
	lv |= ^any

	if fresh := twice &^ n.twice; fresh != 0 {
		n.contention += bits.OnesCount64(fresh)
	}
	n.twice = twice
	n.driven = any

	if lv != n.levels {
		prev := n.levels
		n.levels = lv
		n.version++
		if n.observe != nil {
			n.observe(prev, lv)
		}
	}
}

// Levels returns every signal's level, bit set for high.
func (n *Net) Levels() uint64 { return n.levels }

// High reports the level of one signal.
func (n *Net) High(s bus.Signal) bool { return n.levels&s.Bit() != 0 }

// Low reports whether one signal is low, which for the Z80's control lines
// means asserted.
func (n *Net) Low(s bus.Signal) bool { return n.levels&s.Bit() == 0 }

// Driven returns the mask of signals some endpoint is driving.
func (n *Net) Driven() uint64 { return n.driven }

// Contention returns how many times a second driver joined a signal.
func (n *Net) Contention() int { return n.contention }
