// Package dma takes over a ZX Spectrum's Z80 bus and writes into its RAM.
//
// The engine requests the bus with BUSREQ, waits for BUSACK, then replays
// the Z80's own memory write cycle once per byte: address, MREQ, data, WR,
// release. It can time the write strobe from the Z80 clock or from a
// calibrated delay, hand the address bus to a second controller over a two
// wire handshake, start itself at a computed point in the video frame, and
// mirror the Z80's own writes into a local buffer to use as its source.
//
// Nothing in here has a timeout. Every wait spins until the peer responds:
// stalling is preferred to writing into the Spectrum at the wrong moment.
package dma

import "time"

// Condition names a busy-wait so a spinner can tell which wait is spinning.
type Condition uint8

const (
	CondBusAck Condition = iota
	CondClockRise
	CondClockFall
	CondDriving
	CondDrivingClear
	CondRequest
	CondRequestClear
	CondWriteStart
	CondWriteEnd
)

var conditionNames = [...]string{
	CondBusAck:       "bus acknowledge",
	CondClockRise:    "clock rising edge",
	CondClockFall:    "clock falling edge",
	CondDriving:      "address driving",
	CondDrivingClear: "address released",
	CondRequest:      "address request",
	CondRequestClear: "address request cleared",
	CondWriteStart:   "memory write start",
	CondWriteEnd:     "memory write end",
}

func (c Condition) String() string {
	if int(c) < len(conditionNames) {
		return conditionNames[c]
	}
	return "unknown condition"
}

// Spinner is the only way the engine waits. On hardware it burns CPU; on
// the bench it advances simulated time between polls.
type Spinner interface {
	// Until polls done until it reports true.
	Until(c Condition, done func() bool)
	// Delay holds for the given number of controller clock cycles.
	Delay(cycles int)
}

// Spin is the production spinner. It never yields.
type Spin struct{}

// Until polls done on the calling goroutine until it reports true.
func (Spin) Until(_ Condition, done func() bool) {
	for !done() {
	}
}

// Delay runs an empty loop of cycles iterations. Each iteration is
// assumed to cost one controller cycle; AccessDelay is calibrated against
// that assumption, not against wall time.
func (Spin) Delay(cycles int) {
	for i := 0; i < cycles; i++ {
	}
}

// Timer arms one-shot callbacks.
type Timer interface {
	After(d time.Duration, fn func())
}

// SystemTimer arms callbacks with time.AfterFunc.
type SystemTimer struct{}

// After calls fn on its own goroutine once d has elapsed.
func (SystemTimer) After(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}
