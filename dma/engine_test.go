package dma_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/user-none/zxdma/board"
	"github.com/user-none/zxdma/bus"
	"github.com/user-none/zxdma/dma"
	"github.com/user-none/zxdma/sim"
)

func makeTestBench(t *testing.T, rig string, target sim.Target, adjust func(p *board.Profile)) *sim.Bench {
	t.Helper()
	r, err := board.Lookup(rig)
	if err != nil {
		t.Fatal(err)
	}
	r = r.Adjust(func(p *board.Profile) {
		p.Config.StartAfter = 0
		p.Config.ScrollAfter = 0
		if adjust != nil {
			adjust(p)
		}
	})
	b, err := sim.NewBench(r, sim.DefaultConfig(), target)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// cycleEvents keeps the per-byte write cycle events: everything from the
// first address drive to the last address release, limited to ADDR, DATA,
// MREQ and WR.
func cycleEvents(tr *sim.Trace, port string) []string {
	var out []string
	started := false
	for _, e := range tr.Events {
		if e.Port != port {
			continue
		}
		switch e.Name {
		case "ADDR", "DATA", "MREQ", "WR":
		default:
			continue
		}
		if e.Name == "ADDR" && e.Kind == sim.Drive {
			started = true
		}
		if started {
			out = append(out, e.String())
		}
	}
	for len(out) > 0 && out[len(out)-1] != "ADDR~" {
		out = out[:len(out)-1]
	}
	return out
}

func TestEndToEnd_SnoopThenTransfer(t *testing.T) {
	target := sim.NewScriptedTarget()
	b := makeTestBench(t, "rp2350b", target, func(p *board.Profile) {
		p.Config.WatchFirst = 0x4000
		p.Config.WatchLast = 0x4001
		p.Config.Count = 2
	})

	target.Write(0x4000, 0xAA)
	target.Write(0x4001, 0x55)
	target.Write(0x3FFF, 0xFF)
	if err := b.RunUntil(target.Idle, sim.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := b.Run(sim.Microsecond); err != nil {
		t.Fatal(err)
	}

	mirror := b.Primary.Mirror
	if got := mirror.Bytes(); !reflect.DeepEqual(got, []byte{0xAA, 0x55}) {
		t.Fatalf("expected mirror [AA 55], got % X", got)
	}
	if b.Primary.Snooper.Seen() != 3 || b.Primary.Snooper.Stored() != 2 {
		t.Errorf("expected 3 seen 2 stored, got %d seen %d stored",
			b.Primary.Snooper.Seen(), b.Primary.Snooper.Stored())
	}

	// Clear RAM so the transfer is what puts the bytes there.
	b.RAM()[0x4000], b.RAM()[0x4001] = 0, 0

	tr := b.EnableTrace()
	if err := b.Transfer(mirror.Request()); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"ADDR=4000", "MREQ+", "DATA=AA", "WR+", "WR-", "MREQ-", "ADDR~",
		"ADDR=4001", "MREQ+", "DATA=55", "WR+", "WR-", "MREQ-", "ADDR~",
	}
	if got := cycleEvents(tr, "rp2350b"); !reflect.DeepEqual(got, want) {
		t.Errorf("expected\n  %s\ngot\n  %s", strings.Join(want, " "), strings.Join(got, " "))
	}
	if b.Peek(0x4000) != 0xAA || b.Peek(0x4001) != 0x55 {
		t.Errorf("expected RAM AA 55, got %02X %02X", b.Peek(0x4000), b.Peek(0x4001))
	}
	if !b.Quiet() {
		t.Error("expected every bus line released after the transfer")
	}
	if b.Contention() != 0 {
		t.Errorf("expected no bus contention, got %d", b.Contention())
	}
}

func TestArbiter_AcquireWaitsForAck(t *testing.T) {
	target := sim.NewScriptedTarget()
	target.Gap = 0
	b := makeTestBench(t, "rp2350b", target, nil)
	for i := 0; i < 8; i++ {
		target.Write(0x5000+uint16(i), uint8(i))
	}
	// Get the target into the middle of a write cycle.
	if err := b.Run(2 * sim.Microsecond); err != nil {
		t.Fatal(err)
	}

	tr := b.EnableTrace()
	arb := b.Primary.Arbiter
	var ackSeen, granted bool
	err := b.Call(func() {
		arb.Acquire()
		ackSeen = b.Net().Low(bus.BUSACK)
		granted = b.Target().Granted()
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ackSeen || !granted {
		t.Errorf("expected BUSACK asserted and bus granted on return, got ack=%v granted=%v", ackSeen, granted)
	}
	if arb.State() != dma.ArbiterOwned {
		t.Errorf("expected owned, got %v", arb.State())
	}
	if got := tr.Strings("rp2350b"); !reflect.DeepEqual(got, []string{"BUSREQ+"}) {
		t.Errorf("expected only BUSREQ driven before the bus was granted, got %v", got)
	}

	if err := b.Call(arb.Release); err != nil {
		t.Fatal(err)
	}
	if err := b.RunUntil(target.Idle, sim.Millisecond); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 8; i++ {
		if got := b.Peek(0x5000 + uint16(i)); got != uint8(i) {
			t.Errorf("target write %d: expected %d, got %d", i, i, got)
		}
	}
}

func TestEngine_ClockSyncHandoff(t *testing.T) {
	b := makeTestBench(t, "dual-pico-sync", nil, nil)
	b.LogWrites()

	req := dma.TransferRequest{Start: dma.DisplayFile, Count: 16, Source: dma.Pattern{0x55}}
	if err := b.Transfer(req); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 16; i++ {
		if got := b.Peek(dma.DisplayFile + uint16(i)); got != 0x55 {
			t.Errorf("byte %d: expected 0x55, got 0x%02X", i, got)
		}
	}
	driver := b.Drivers[0].Driver
	if driver.Cycles() != 16 {
		t.Errorf("expected 16 handoff cycles, got %d", driver.Cycles())
	}
	if driver.State() != dma.HandoffIdle || b.Primary.Owner.State() != dma.HandoffIdle {
		t.Errorf("expected both sides idle, got driver %v owner %v", driver.State(), b.Primary.Owner.State())
	}
	for _, w := range b.Writes() {
		if !w.DMA || w.Short {
			t.Errorf("unexpected write %+v", w)
		}
	}
	if b.Stats().DMAWrites != 16 {
		t.Errorf("expected 16 DMA writes, got %d", b.Stats().DMAWrites)
	}
	if !b.Quiet() {
		t.Error("expected every bus line released after the transfer")
	}
	if b.Contention() != 0 {
		t.Errorf("expected no bus contention, got %d", b.Contention())
	}
}

func TestEngine_ConstantAddressDriver(t *testing.T) {
	b := makeTestBench(t, "dual-pico-constant", nil, nil)

	req := dma.TransferRequest{Start: dma.DisplayFile, Count: 3, Source: dma.Pattern{1, 2, 3}}
	if err := b.Transfer(req); err != nil {
		t.Fatal(err)
	}
	if got := b.Peek(0x4000); got != 3 {
		t.Errorf("expected last byte 3 at 0x4000, got %d", got)
	}
	if got := b.Peek(0x4001); got != 0 {
		t.Errorf("expected 0x4001 untouched, got %d", got)
	}
}

func TestEngine_ShortAccessDelayDropsWrites(t *testing.T) {
	b := makeTestBench(t, "dual-pico", nil, nil)
	b.Primary.Engine.SetAccessDelay(8) // 64ns at 125MHz

	req := dma.TransferRequest{Start: dma.DisplayFile, Count: 4, Source: dma.Fill(0xFF)}
	if err := b.Transfer(req); err != nil {
		t.Fatal(err)
	}
	if got := b.Stats().ShortWrites; got != 4 {
		t.Errorf("expected 4 short writes, got %d", got)
	}
	if got := b.Peek(dma.DisplayFile); got != 0 {
		t.Errorf("expected RAM untouched, got 0x%02X", got)
	}
}

func TestEngine_HangsWithoutAck(t *testing.T) {
	r := board.Rig{Name: "lonely", Boards: []board.Profile{board.RP2350BStampXL}}
	cfg := sim.DefaultConfig()
	cfg.SpinLimit = 1000
	b, err := sim.NewBench(r, cfg, sim.NewScriptedTarget())
	if err != nil {
		t.Fatal(err)
	}
	// Hold BUSACK inactive by parking the target mid-instruction forever.
	target := b.Target().(*sim.ScriptedTarget)
	target.Gap = 1 << 30
	target.Write(0x4000, 0)
	if err := b.Run(sim.Microsecond); err != nil {
		t.Fatal(err)
	}

	err = b.Transfer(dma.TransferRequest{Start: 0x4000, Count: 1, Source: dma.Fill(1)})
	he, ok := err.(*sim.HangError)
	if !ok {
		t.Fatalf("expected a hang, got %v", err)
	}
	if he.Cond != dma.CondBusAck {
		t.Errorf("expected hang on bus acknowledge, got %v", he.Cond)
	}
}

func TestEngine_ActiveHighHandshake(t *testing.T) {
	flip := func(p *board.Profile) {
		l, err := p.Layout.WithPolarity(bus.ActiveHigh, bus.REQUEST, bus.DRIVING)
		if err != nil {
			t.Fatal(err)
		}
		p.Layout = l
	}
	b := makeTestBench(t, "dual-pico-sync", nil, flip)
	for _, p := range b.Rig.Boards {
		if ln, _ := p.Layout.Line(bus.REQUEST); ln.Polarity != bus.ActiveHigh {
			t.Fatalf("%s: expected REQUEST active high, got %v", p.Name, ln.Polarity)
		}
	}
	if b.Net().High(bus.REQUEST) || b.Net().High(bus.DRIVING) {
		t.Error("expected idle active-high handshake lines held low")
	}

	req := dma.TransferRequest{Start: dma.DisplayFile, Count: 8, Source: dma.Pattern{1, 2, 3, 4, 5, 6, 7, 8}}
	if err := b.Transfer(req); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 8; i++ {
		if got := b.Peek(dma.DisplayFile + uint16(i)); got != uint8(i+1) {
			t.Errorf("byte %d: expected %d, got %d", i, i+1, got)
		}
	}

	driver := b.Drivers[0].Driver
	if driver.Cycles() != 8 || driver.Aborts() != 0 {
		t.Errorf("expected 8 cycles no aborts, got %d cycles %d aborts", driver.Cycles(), driver.Aborts())
	}
	if driver.State() != dma.HandoffIdle || b.Primary.Owner.State() != dma.HandoffIdle {
		t.Errorf("expected both sides idle, got driver %v owner %v", driver.State(), b.Primary.Owner.State())
	}
	if b.Net().High(bus.REQUEST) || b.Net().High(bus.DRIVING) {
		t.Error("expected handshake lines back at their inactive level")
	}
	if !b.Quiet() {
		t.Error("expected every bus line released after the transfer")
	}
	if b.Contention() != 0 {
		t.Errorf("expected no bus contention, got %d", b.Contention())
	}
}

func TestFirmware_InitHoldsReset(t *testing.T) {
	h := sim.New(sim.DefaultConfig())
	h.SetTarget(sim.NewScriptedTarget())
	tr := h.EnableTrace()
	p := board.RP2350BStampXL
	ctrl := bus.NewController(h.Port(p.Name, p.Layout), p.Layout)
	fw, err := dma.NewFirmware(ctrl, p.Config, h.Spinner(p.Config.ControllerHz), h.Timer())
	if err != nil {
		t.Fatal(err)
	}
	fw.Init()

	want := []string{"RESETOUT+", "BUSREQ-", "BLIPPER-", "RESETOUT-"}
	if got := tr.Strings(p.Name); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if h.Net().Low(bus.RESET) {
		t.Error("expected /RESET released after init")
	}
}
