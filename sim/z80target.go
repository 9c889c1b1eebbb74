package sim

import (
	"github.com/user-none/go-chip-z80"
	"github.com/user-none/zxdma/bus"
)

// Z80Target runs a real program on an emulated Z80. Instructions execute
// whole at an instruction boundary; their memory writes are then played
// onto the bus as write cycles and the rest of their T-states idle.
// Reads come straight from RAM and never appear on the bus.
type Z80Target struct {
	cpuBus
	cpu    *z80.CPU
	mem    z80Bus
	border uint8
}

// NewZ80Target returns a Z80 in its reset state, PC at 0.
func NewZ80Target() *Z80Target {
	t := &Z80Target{}
	t.mem.t = t
	t.cpu = z80.New(&t.mem)
	t.next = t.step
	t.restart = t.cpu.Reset
	return t
}

// CPU returns the emulated processor.
func (t *Z80Target) CPU() *z80.CPU { return t.cpu }

// Border returns the last border colour written to the ULA port.
func (t *Z80Target) Border() uint8 { return t.border }

// Idle implements Target. A running Z80 is never idle between
// instructions.
func (t *Z80Target) Idle() bool { return !t.busy() }

func (t *Z80Target) step() {
	t.cpu.INT(t.h.net.Low(bus.INT), 0xFF)
	n := t.cpu.Step()
	if n <= 0 {
		return
	}
	// The T-state this is called in is the instruction's first.
	t.idle = n - 3*len(t.cycles)
	if t.idle < 0 {
		t.idle = 0
	}
}

// z80Bus is the processor's view of memory and I/O.
type z80Bus struct {
	t *Z80Target
}

func (m *z80Bus) Fetch(addr uint16) uint8 { return m.t.h.ram[addr] }
func (m *z80Bus) Read(addr uint16) uint8  { return m.t.h.ram[addr] }

// Write queues a write cycle rather than touching RAM, so the write only
// lands if it makes it across the bus.
func (m *z80Bus) Write(addr uint16, val uint8) {
	m.t.cycles = append(m.t.cycles, busWrite{addr, val})
}

func (m *z80Bus) In(port uint16) uint8 { return 0xFF }

func (m *z80Bus) Out(port uint16, val uint8) {
	if port&1 == 0 {
		m.t.border = val & 0x07
	}
}
