package sim

import (
	"fmt"

	"github.com/user-none/zxdma/board"
	"github.com/user-none/zxdma/bus"
	"github.com/user-none/zxdma/dma"
)

// Bench is a rig of controller boards fitted to a simulated Spectrum.
type Bench struct {
	*Harness
	Rig     board.Rig
	Primary *dma.Firmware
	Drivers []*dma.Firmware
}

// NewBench wires every board of rig onto a new machine running target and
// initialises their firmware. A nil target fits an empty ScriptedTarget.
// Nothing is scheduled until Start.
func NewBench(rig board.Rig, cfg Config, target Target) (*Bench, error) {
	if err := rig.Validate(); err != nil {
		return nil, err
	}
	if target == nil {
		target = NewScriptedTarget()
	}

	h := New(cfg)
	h.SetTarget(target)
	b := &Bench{Harness: h, Rig: rig}

	for _, p := range rig.Boards {
		port := h.Port(p.Name, p.Layout)
		ctrl := bus.NewController(port, p.Layout)
		fw, err := dma.NewFirmware(ctrl, p.Config, h.Spinner(p.Config.ControllerHz), h.Timer())
		if err != nil {
			return nil, fmt.Errorf("board %s: %w", p.Name, err)
		}
		fw.Init()

		if fw.Driver != nil {
			h.AddPeer(func() { fw.Driver.Step() })
			b.Drivers = append(b.Drivers, fw)
			continue
		}
		b.Primary = fw
		if fw.Snooper != nil {
			// The snoop loop has a core to itself.
			h.AddPeer(fw.Snooper.Step)
		}
		h.OnInterrupt(fw.Scheduler.OnInterrupt)
	}
	return b, nil
}

// Start arms the primary controller's scheduler.
func (b *Bench) Start() { b.Primary.Start(b.Timer()) }

// Transfer runs one transfer on the primary controller straight away,
// outside the scheduler.
func (b *Bench) Transfer(req dma.TransferRequest) error {
	return b.Call(func() { b.Primary.Engine.Transfer(req) })
}

// Board returns the named board's port.
func (b *Bench) Board(name string) *Port {
	for _, p := range b.Ports() {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// Quiet reports that no controller is driving anything on the bus beyond
// its idle handshake outputs.
func (b *Bench) Quiet() bool {
	allowed := bus.BUSREQ.Bit() | bus.REQUEST.Bit() | bus.DRIVING.Bit() | bus.LocalSignals
	for _, p := range b.Ports() {
		if p.Layout().Signals(p.Driven())&^allowed != 0 {
			return false
		}
	}
	return true
}
