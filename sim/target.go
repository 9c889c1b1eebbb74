package sim

import "github.com/user-none/zxdma/bus"

// Target is the bus master the controllers take the bus from.
type Target interface {
	// Idle reports that the target has no write cycles in progress or
	// queued.
	Idle() bool
	// Granted reports that the target has handed the bus over.
	Granted() bool

	attach(h *Harness, end *endpoint)
	rise()
	fall()
}

// Control lines the Z80 drives while it owns the bus.
var z80Control = bus.MREQ.Bit() | bus.IORQ.Bit() | bus.RD.Bit() | bus.WR.Bit()

type busWrite struct {
	addr uint16
	val  uint8
}

// cpuBus is the Z80's side of the bus: memory write cycles clocked T1 to
// T3, and BUSREQ honoured only between instructions.
type cpuBus struct {
	h   *Harness
	end *endpoint

	granted bool
	cycles  []busWrite
	cur     busWrite
	t       int // T-state within the current write cycle, 0 between cycles
	idle    int // T-states left before the next write cycle

	// next is asked for more work at an instruction boundary. It queues
	// write cycles and sets idle.
	next func()
	// restart runs when /RESET is let go.
	restart func()
	inReset bool
}

func (b *cpuBus) attach(h *Harness, end *endpoint) {
	b.h = h
	b.end = end
	b.end.drive(z80Control|bus.BUSACK.Bit(), z80Control|bus.BUSACK.Bit())
}

func (b *cpuBus) Granted() bool { return b.granted }

func (b *cpuBus) busy() bool { return b.t != 0 || b.idle > 0 || len(b.cycles) > 0 }

// InReset reports that /RESET is holding the target.
func (b *cpuBus) InReset() bool { return b.inReset }

func (b *cpuBus) rise() {
	if b.h.net.Low(bus.RESET) {
		if !b.inReset {
			b.inReset = true
			b.t, b.idle, b.cycles, b.granted = 0, 0, nil, false
			b.end.drive(z80Control|bus.BUSACK.Bit(), z80Control|bus.BUSACK.Bit())
			b.end.release(bus.AddressSignals | bus.DataSignals)
		}
		return
	}
	if b.inReset {
		b.inReset = false
		if b.restart != nil {
			b.restart()
		}
	}

	busreq := b.h.net.Low(bus.BUSREQ)

	if b.granted {
		if !busreq {
			b.granted = false
			b.end.drive(z80Control|bus.BUSACK.Bit(), z80Control|bus.BUSACK.Bit())
		}
		return
	}

	if b.t > 0 {
		b.t++
		return
	}

	if !b.busy() {
		if busreq {
			b.granted = true
			b.end.set(bus.BUSACK.Bit(), 0)
			return
		}
		if b.next != nil {
			b.next()
		}
	}

	if b.idle > 0 {
		b.idle--
		return
	}
	if len(b.cycles) > 0 {
		b.cur = b.cycles[0]
		b.cycles = b.cycles[1:]
		b.t = 1
		b.end.drive(bus.AddressSignals, uint64(b.cur.addr))
	}
}

func (b *cpuBus) fall() {
	if b.inReset {
		return
	}
	switch b.t {
	case 1:
		b.end.level(bus.MREQ, false)
		b.end.drive(bus.DataSignals, uint64(b.cur.val)<<bus.D0)
	case 2:
		b.end.level(bus.WR, false)
	case 3:
		b.end.level(bus.WR, true)
		b.end.level(bus.MREQ, true)
		b.end.release(bus.AddressSignals | bus.DataSignals)
		b.t = 0
	}
}

// ScriptedTarget plays back queued memory writes, Gap idle T-states apart,
// in place of a running program.
type ScriptedTarget struct {
	cpuBus
	queue []busWrite
	// Gap is the number of idle T-states between writes.
	Gap int
}

// NewScriptedTarget returns a target with nothing queued.
func NewScriptedTarget() *ScriptedTarget {
	t := &ScriptedTarget{Gap: 4}
	t.next = t.pop
	return t
}

// Write queues a write of val to addr.
func (t *ScriptedTarget) Write(addr uint16, val uint8) {
	t.queue = append(t.queue, busWrite{addr, val})
}

// Idle implements Target.
func (t *ScriptedTarget) Idle() bool { return len(t.queue) == 0 && !t.busy() }

func (t *ScriptedTarget) pop() {
	if len(t.queue) == 0 {
		return
	}
	t.cycles = append(t.cycles, t.queue[0])
	t.queue = t.queue[1:]
	t.idle = t.Gap
}
