// Package bus is the signal level view of the Z80 bus as seen from a
// microcontroller's GPIO bank.
//
// A board wires some subset of the Z80's address, data and control lines to
// GPIO pins. Layout records that wiring, Group and Line describe the pieces of
// it, and Controller drives, releases and samples them through a Pins
// implementation: the real GPIO bank on hardware, or a simulated port on the
// bench.
package bus

// Signal identifies a logical bus line independent of the pin it is wired to.
type Signal uint8

// Address lines occupy A0..A15 and data lines D0..D7 so that A0+n and D0+n
// are valid for n in range.
const (
	A0 Signal = iota
	A1
	A2
	A3
	A4
	A5
	A6
	A7
	A8
	A9
	A10
	A11
	A12
	A13
	A14
	A15
	D0
	D1
	D2
	D3
	D4
	D5
	D6
	D7
	MREQ
	IORQ
	RD
	WR
	BUSREQ
	BUSACK
	CLK
	INT
	WAIT
	RESET
	REQUEST  // handoff: data/control owner to address driver
	DRIVING  // handoff: address driver to owner
	BLIPPER  // scope probe
	RESETOUT // holds the Z80 in reset through a transistor on /RESET
	NumSignals
)

const (
	AddressWidth = 16
	DataWidth    = 8
)

var controlNames = [...]string{
	MREQ - MREQ:     "MREQ",
	IORQ - MREQ:     "IORQ",
	RD - MREQ:       "RD",
	WR - MREQ:       "WR",
	BUSREQ - MREQ:   "BUSREQ",
	BUSACK - MREQ:   "BUSACK",
	CLK - MREQ:      "CLK",
	INT - MREQ:      "INT",
	WAIT - MREQ:     "WAIT",
	RESET - MREQ:    "RESET",
	REQUEST - MREQ:  "REQUEST",
	DRIVING - MREQ:  "DRIVING",
	BLIPPER - MREQ:  "BLIPPER",
	RESETOUT - MREQ: "RESETOUT",
}

func (s Signal) String() string {
	switch {
	case s <= A15:
		return "A" + itoa(int(s-A0))
	case s <= D7:
		return "D" + itoa(int(s-D0))
	case s < NumSignals:
		return controlNames[s-MREQ]
	}
	return "SIG" + itoa(int(s))
}

// IsAddress reports whether s is one of A0..A15.
func (s Signal) IsAddress() bool { return s <= A15 }

// IsData reports whether s is one of D0..D7.
func (s Signal) IsData() bool { return s >= D0 && s <= D7 }

// Bit returns the bit for s in a signal mask.
func (s Signal) Bit() uint64 { return 1 << s }

// AddressSignals and DataSignals are the signal masks of the two buses.
const (
	AddressSignals uint64 = 0xFFFF
	DataSignals    uint64 = 0xFF << D0
)

// LocalSignals are wired to one board only and are not part of the shared
// bus.
const LocalSignals = uint64(1)<<BLIPPER | uint64(1)<<RESETOUT

func itoa(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}
