package sim

import (
	"fmt"
	"time"

	"github.com/user-none/zxdma/bus"
	"github.com/user-none/zxdma/dma"
)

// Config sets up the simulated machine.
type Config struct {
	Video dma.VideoTiming
	// Quantum is how far time moves between two polls of any controller.
	Quantum Time
	// AccessTime is the shortest WR pulse the RAM latches. Shorter writes
	// are dropped and counted.
	AccessTime Time
	// SpinLimit bounds every busy-wait; past it the wait is reported as a
	// hang.
	SpinLimit int
	// ProtectROM ignores bus writes below 0x4000.
	ProtectROM bool
	// InterruptLatency is the time from the INT edge to the controller's
	// handler running, TimerLatency from a timer's due time to its
	// callback.
	InterruptLatency Time
	TimerLatency     Time
}

// DefaultConfig is a 48K Spectrum with 150ns RAM, polled every 50ns by
// controllers with the RP2040's measured interrupt and alarm latencies.
func DefaultConfig() Config {
	return Config{
		Video:      dma.Spectrum48K,
		Quantum:    50 * Nanosecond,
		AccessTime: 150 * Nanosecond,
		SpinLimit:  2000000,
		ProtectROM: true,

		InterruptLatency: 2 * Microsecond,
		TimerLatency:     3 * Microsecond,
	}
}

// Stats counts what happened on the bus.
type Stats struct {
	Frames      int
	TStates     int64
	Latched     int // writes that reached RAM
	DMAWrites   int // of those, made while BUSACK was asserted
	ShortWrites int // WR pulses shorter than AccessTime
	Contended   int // DMA writes to contended RAM while the ULA was drawing
	Interrupts  int
}

// Write is one memory write cycle seen by the RAM.
type Write struct {
	At    Time
	Pos   int // T-state within the frame
	Addr  uint16
	Value uint8
	DMA   bool
	Short bool
}

// HangError reports a busy-wait that never completed.
type HangError struct {
	Cond dma.Condition
	At   Time
}

func (e *HangError) Error() string {
	return fmt.Sprintf("sim: stuck waiting for %v at %v", e.Cond, e.At.Duration())
}

// Duration converts simulated time to a time.Duration, truncating below a
// nanosecond.
func (t Time) Duration() time.Duration { return time.Duration(t / Nanosecond) }

// FromDuration converts a time.Duration to simulated time.
func FromDuration(d time.Duration) Time { return Time(d) * Nanosecond }

type timer struct {
	at Time
	fn func()
}

// Harness is the simulated Spectrum: clock, ULA, RAM and bus.
type Harness struct {
	cfg Config
	net *Net

	now      Time
	half     Time
	nextEdge Time
	clkHigh  bool
	tstate   int64
	frame    int64

	clock *endpoint
	ula   *endpoint

	target Target
	peers  []func()
	ports  []*Port

	ram     [0x10000]byte
	wrSince Time
	writes  []Write
	logging bool
	trace   *Trace

	irq     []func()
	pending []func()
	timers  []timer

	stats Stats
}

// New returns a powered-up machine with RAM cleared, no target and no
// controllers.
func New(cfg Config) *Harness {
	if cfg.Quantum <= 0 {
		cfg.Quantum = 50 * Nanosecond
	}
	if cfg.SpinLimit <= 0 {
		cfg.SpinLimit = 2000000
	}
	h := &Harness{
		cfg:    cfg,
		net:    newNet(),
		half:   Time(int64(time.Second/time.Nanosecond)*int64(Nanosecond)/int64(cfg.Video.ClockHz)) / 2,
		tstate: -1,
		frame:  int64(cfg.Video.TStatesPerFrame()),
	}
	h.nextEdge = h.half
	h.net.observe = h.observe
	h.clock = h.net.attach("clock")
	h.clock.level(bus.CLK, false)
	h.ula = h.net.attach("ula")
	h.ula.level(bus.INT, true)
	return h
}

// Config returns the machine configuration.
func (h *Harness) Config() Config { return h.cfg }

// Net returns the bus.
func (h *Harness) Net() *Net { return h.net }

// Now returns the current simulated time.
func (h *Harness) Now() Time { return h.now }

// TState returns the number of Z80 T-states since power up.
func (h *Harness) TState() int64 { return h.tstate }

// FramePos returns the T-state within the current frame, 0 being the start
// of the interrupt.
func (h *Harness) FramePos() int {
	if h.tstate < 0 {
		return 0
	}
	return int(h.tstate % h.frame)
}

// FrameTime is the length of one video frame.
func (h *Harness) FrameTime() Time { return 2 * h.half * Time(h.frame) }

// Stats returns the bus counters.
func (h *Harness) Stats() Stats {
	s := h.stats
	s.TStates = h.tstate + 1
	return s
}

// Contention returns how many times two parties drove one line at once.
func (h *Harness) Contention() int { return h.net.Contention() }

// RAM returns the whole 64K address space.
func (h *Harness) RAM() []byte { return h.ram[:] }

// Peek reads memory without a bus cycle.
func (h *Harness) Peek(addr uint16) uint8 { return h.ram[addr] }

// Load copies data into memory at addr without bus cycles, ROM included.
func (h *Harness) Load(addr uint16, data []byte) {
	for i, b := range data {
		h.ram[uint16(int(addr)+i)] = b
	}
}

// Port wires a new controller onto the bus.
func (h *Harness) Port(name string, layout *bus.Layout) *Port {
	p := &Port{h: h, name: name, layout: layout, end: h.net.attach(name)}
	for _, ln := range layout.Lines() {
		if ln.Signal.Bit()&bus.LocalSignals != 0 {
			p.local |= ln.Pin.Mask()
		}
	}
	h.ports = append(h.ports, p)
	return p
}

// Ports returns every wired controller port.
func (h *Harness) Ports() []*Port { return h.ports }

// SetTarget fits the bus master that runs when no controller holds the bus.
func (h *Harness) SetTarget(t Target) {
	h.target = t
	t.attach(h, h.net.attach("z80"))
}

// Target returns the fitted bus master.
func (h *Harness) Target() Target { return h.target }

// AddPeer registers a controller that polls once per quantum.
func (h *Harness) AddPeer(step func()) { h.peers = append(h.peers, step) }

// OnInterrupt registers a handler run on the primary controller at every
// falling edge of INT, InterruptLatency after the edge.
func (h *Harness) OnInterrupt(fn func()) { h.irq = append(h.irq, fn) }

// EnableTrace starts recording port events.
func (h *Harness) EnableTrace() *Trace {
	if h.trace == nil {
		h.trace = &Trace{}
	}
	return h.trace
}

// LogWrites starts recording every memory write cycle.
func (h *Harness) LogWrites() { h.logging = true }

// Writes returns the recorded memory write cycles.
func (h *Harness) Writes() []Write { return h.writes }

// Spinner returns a spinner for a controller clocked at hz. Its waits
// advance simulated time; a wait that does not finish within SpinLimit
// polls panics with a *HangError, which Run and Call turn into an error.
func (h *Harness) Spinner(hz int) dma.Spinner {
	var cycle Time
	if hz > 0 {
		cycle = Time(int64(time.Second/time.Nanosecond) * int64(Nanosecond) / int64(hz))
	}
	return &spinner{h: h, cycle: cycle}
}

// Timer returns a timer running on simulated time. Callbacks run on the
// primary controller from Run.
func (h *Harness) Timer() dma.Timer { return simTimer{h} }

type spinner struct {
	h     *Harness
	cycle Time
}

func (s *spinner) Until(c dma.Condition, done func() bool) {
	for n := 0; !done(); n++ {
		if n >= s.h.cfg.SpinLimit {
			panic(&HangError{Cond: c, At: s.h.now})
		}
		s.h.tick(s.h.cfg.Quantum)
	}
}

func (s *spinner) Delay(cycles int) {
	if cycles > 0 {
		s.h.advance(Time(cycles) * s.cycle)
	}
}

type simTimer struct{ h *Harness }

func (t simTimer) After(d time.Duration, fn func()) {
	t.h.timers = append(t.h.timers, timer{at: t.h.now + FromDuration(d) + t.h.cfg.TimerLatency, fn: fn})
}

// advance moves time by d in whole quanta and a remainder.
func (h *Harness) advance(d Time) {
	for d > 0 {
		q := min(d, h.cfg.Quantum)
		h.tick(q)
		d -= q
	}
}

// tick is one quantum: the clock edges inside it, then one poll by every
// peer, then timers coming due.
func (h *Harness) tick(dt Time) {
	end := h.now + dt
	for h.nextEdge <= end {
		h.now = h.nextEdge
		h.clockEdge()
		h.nextEdge += h.half
	}
	h.now = end

	for _, p := range h.peers {
		p()
	}

	if len(h.timers) > 0 {
		kept := h.timers[:0]
		for _, t := range h.timers {
			if t.at <= h.now {
				h.pending = append(h.pending, t.fn)
			} else {
				kept = append(kept, t)
			}
		}
		h.timers = kept
	}
}

func (h *Harness) clockEdge() {
	h.clkHigh = !h.clkHigh
	h.clock.level(bus.CLK, h.clkHigh)
	if !h.clkHigh {
		if h.target != nil {
			h.target.fall()
		}
		return
	}

	h.tstate++
	switch pos := h.tstate % h.frame; pos {
	case 0:
		h.stats.Frames++
		h.ula.level(bus.INT, false)
	case int64(h.cfg.Video.IntLength):
		h.ula.level(bus.INT, true)
	}
	if h.target != nil {
		h.target.rise()
	}
}

// observe sees every change of the resolved bus levels. The RAM latches on
// the rising edge of WR while MREQ is still asserted.
func (h *Harness) observe(prev, cur uint64) {
	wr, mreq, intr := bus.WR.Bit(), bus.MREQ.Bit(), bus.INT.Bit()

	if prev&wr != 0 && cur&wr == 0 {
		h.wrSince = h.now
	}
	if prev&wr == 0 && cur&wr != 0 && cur&mreq == 0 {
		h.latch(prev)
	}
	if prev&intr != 0 && cur&intr == 0 {
		h.stats.Interrupts++
		for _, fn := range h.irq {
			h.timers = append(h.timers, timer{at: h.now + h.cfg.InterruptLatency, fn: fn})
		}
	}
}

func (h *Harness) latch(levels uint64) {
	w := Write{
		At:    h.now,
		Pos:   h.FramePos(),
		Addr:  uint16(levels & bus.AddressSignals),
		Value: uint8(levels >> bus.D0),
		DMA:   h.net.Low(bus.BUSACK),
		Short: h.now-h.wrSince < h.cfg.AccessTime,
	}
	if h.logging {
		h.writes = append(h.writes, w)
	}
	if w.Short {
		h.stats.ShortWrites++
		return
	}
	if h.cfg.ProtectROM && w.Addr < 0x4000 {
		return
	}
	h.ram[w.Addr] = w.Value
	h.stats.Latched++
	if w.DMA {
		h.stats.DMAWrites++
		if w.Addr >= 0x4000 && w.Addr < 0x8000 && h.cfg.Video.Drawing(w.Pos) {
			h.stats.Contended++
		}
	}
}

// Run lets the primary controller idle for d. Interrupt handlers and timer
// callbacks run from here, one at a time and never nested, as they would
// on the controller's single core.
func (h *Harness) Run(d Time) (err error) {
	defer h.recoverHang(&err)
	end := h.now + d
	for h.now < end {
		if h.dispatch() {
			continue
		}
		h.tick(min(h.cfg.Quantum, end-h.now))
	}
	return nil
}

// RunFrames runs for n whole frames.
func (h *Harness) RunFrames(n int) error { return h.Run(Time(n) * h.FrameTime()) }

// RunUntil runs until done reports true, for at most limit.
func (h *Harness) RunUntil(done func() bool, limit Time) (err error) {
	defer h.recoverHang(&err)
	end := h.now + limit
	for !done() {
		if h.now >= end {
			return fmt.Errorf("sim: condition not met within %v", limit.Duration())
		}
		if h.dispatch() {
			continue
		}
		h.tick(h.cfg.Quantum)
	}
	return nil
}

// Call runs fn on the primary controller now.
func (h *Harness) Call(fn func()) (err error) {
	defer h.recoverHang(&err)
	fn()
	return nil
}

func (h *Harness) dispatch() bool {
	if len(h.pending) == 0 {
		return false
	}
	fn := h.pending[0]
	h.pending = h.pending[1:]
	fn()
	return true
}

func (h *Harness) recoverHang(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if he, ok := r.(*HangError); ok {
		*err = he
		return
	}
	panic(r)
}
