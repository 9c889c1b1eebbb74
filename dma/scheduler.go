package dma

import (
	"log"
	"sync/atomic"
	"time"
)

// Mode selects when a transfer starts relative to INT.
type Mode uint8

const (
	// Immediate transfers from inside the interrupt handler. The transfer
	// has to fit in the top border.
	Immediate Mode = iota
	// Delayed arms a timer from the interrupt handler and transfers when
	// it fires, so the transfer can use a later window.
	Delayed
)

func (m Mode) String() string {
	if m == Delayed {
		return "delayed"
	}
	return "immediate"
}

// Scheduler starts a transfer on every INT falling edge.
type Scheduler struct {
	engine  *Engine
	timer   Timer
	mode    Mode
	delay   time.Duration
	request func() TransferRequest
	prepare func()

	enabled atomic.Bool
	busy    atomic.Bool
	runs    atomic.Int64
	skipped atomic.Int64
}

// NewScheduler returns a disabled scheduler. request is called for every
// transfer; delay is only used in Delayed mode.
func NewScheduler(engine *Engine, timer Timer, mode Mode, delay time.Duration, request func() TransferRequest) *Scheduler {
	return &Scheduler{
		engine:  engine,
		timer:   timer,
		mode:    mode,
		delay:   delay,
		request: request,
	}
}

// SetPrepare installs a hook run just before each transfer takes the bus.
func (s *Scheduler) SetPrepare(fn func()) { s.prepare = fn }

// Enable starts reacting to interrupts.
func (s *Scheduler) Enable() { s.enabled.Store(true) }

// Enabled reports whether interrupts start transfers.
func (s *Scheduler) Enabled() bool { return s.enabled.Load() }

// Mode returns the start mode.
func (s *Scheduler) Mode() Mode { return s.mode }

// Delay returns the Delayed mode timer delay.
func (s *Scheduler) Delay() time.Duration { return s.delay }

// Runs returns the number of completed transfers.
func (s *Scheduler) Runs() int { return int(s.runs.Load()) }

// Skipped returns the number of interrupts ignored because a transfer or
// its timer was still outstanding.
func (s *Scheduler) Skipped() int { return int(s.skipped.Load()) }

// Busy reports whether a transfer or its timer is outstanding.
func (s *Scheduler) Busy() bool { return s.busy.Load() }

// OnInterrupt is the INT falling edge handler. A trigger that arrives while
// the previous one is still outstanding is dropped, never queued.
func (s *Scheduler) OnInterrupt() {
	if !s.enabled.Load() {
		return
	}
	if !s.busy.CompareAndSwap(false, true) {
		n := s.skipped.Add(1)
		if n == 1 {
			log.Printf("dma: interrupt while transfer outstanding, skipping")
		}
		return
	}

	switch s.mode {
	case Delayed:
		s.timer.After(s.delay, s.run)
	default:
		s.run()
	}
}

func (s *Scheduler) run() {
	if s.prepare != nil {
		s.prepare()
	}
	s.engine.Transfer(s.request())
	s.runs.Add(1)
	s.busy.Store(false)
}
