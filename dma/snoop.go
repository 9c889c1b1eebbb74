package dma

import "github.com/user-none/zxdma/bus"

// Snooper watches the bus for Z80 memory writes and copies those landing in
// the mirror's range. It polls rather than taking interrupts: a Z80 write is
// over long before an interrupt handler on the controller gets to run.
type Snooper struct {
	ctrl    *bus.Controller
	spin    Spinner
	mirror  *Mirror
	inWrite bool
	seen    int
	stored  int
}

// NewSnooper returns a snooper filling mirror.
func NewSnooper(ctrl *bus.Controller, spin Spinner, mirror *Mirror) *Snooper {
	return &Snooper{ctrl: ctrl, spin: spin, mirror: mirror}
}

// Mirror returns the buffer being filled.
func (s *Snooper) Mirror() *Mirror { return s.mirror }

// Seen returns the number of memory writes observed.
func (s *Snooper) Seen() int { return s.seen }

// Stored returns the number of writes copied into the mirror.
func (s *Snooper) Stored() int { return s.stored }

// Step is one iteration of the snoop loop. Control, address and data come
// from the same sample. After a write is recorded nothing more is taken
// until MREQ or WR goes inactive, so one write is never recorded twice.
// A second write that starts and ends between two polls is lost.
func (s *Snooper) Step() {
	levels := s.ctrl.Snapshot()
	writing := s.ctrl.Asserted(levels, bus.MREQ) && s.ctrl.Asserted(levels, bus.WR)

	if s.inWrite {
		if !writing {
			s.inWrite = false
		}
		return
	}
	if !writing {
		return
	}

	s.inWrite = true
	s.seen++
	addr := uint16(s.ctrl.Address().Decode(levels))
	data := uint8(s.ctrl.Data().Decode(levels))
	if s.mirror.Store(addr, data) {
		s.stored++
	}
}

// Run is the snoop loop. It never returns and expects a core to itself.
func (s *Snooper) Run() {
	for {
		s.spin.Until(CondWriteStart, func() bool {
			s.Step()
			return s.inWrite
		})
		s.spin.Until(CondWriteEnd, func() bool {
			s.Step()
			return !s.inWrite
		})
	}
}
