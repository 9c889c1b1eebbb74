package dma_test

import (
	"testing"
	"time"

	"github.com/user-none/zxdma/board"
	"github.com/user-none/zxdma/dma"
	"github.com/user-none/zxdma/sim"
)

type fakeTimer struct {
	delays []time.Duration
	fns    []func()
}

func (f *fakeTimer) After(d time.Duration, fn func()) {
	f.delays = append(f.delays, d)
	f.fns = append(f.fns, fn)
}

func (f *fakeTimer) fire(t *testing.T, h *sim.Harness) {
	t.Helper()
	fn := f.fns[0]
	f.fns = f.fns[1:]
	if err := h.Call(fn); err != nil {
		t.Fatal(err)
	}
}

func TestScheduler_BusyGuard(t *testing.T) {
	b := makeTestBench(t, "dual-pico", nil, nil)
	ft := &fakeTimer{}
	fw := b.Primary
	sched := dma.NewScheduler(fw.Engine, ft, dma.Delayed, 5*time.Millisecond, func() dma.TransferRequest {
		return dma.TransferRequest{Start: dma.DisplayFile, Count: 4, Source: dma.Fill(0x55)}
	})

	sched.OnInterrupt()
	if len(ft.fns) != 0 {
		t.Fatal("expected a disabled scheduler to ignore INT")
	}

	sched.Enable()
	sched.OnInterrupt()
	sched.OnInterrupt()
	sched.OnInterrupt()
	if len(ft.fns) != 1 {
		t.Fatalf("expected one timer armed, got %d", len(ft.fns))
	}
	if ft.delays[0] != 5*time.Millisecond {
		t.Errorf("expected 5ms, got %v", ft.delays[0])
	}
	if sched.Skipped() != 2 || !sched.Busy() {
		t.Errorf("expected 2 skipped and busy, got %d skipped busy=%v", sched.Skipped(), sched.Busy())
	}

	ft.fire(t, b.Harness)
	if sched.Runs() != 1 || sched.Busy() {
		t.Errorf("expected 1 run and not busy, got %d runs busy=%v", sched.Runs(), sched.Busy())
	}
	if b.Peek(dma.DisplayFile+3) != 0x55 {
		t.Errorf("expected transfer to land, got 0x%02X", b.Peek(dma.DisplayFile+3))
	}

	sched.OnInterrupt()
	if len(ft.fns) != 1 {
		t.Error("expected the next INT to arm the timer again")
	}
}

func TestScheduler_DelayedLandsInLowerBorder(t *testing.T) {
	b := makeTestBench(t, "dual-pico", nil, nil)
	b.LogWrites()
	b.Start()

	if err := b.RunFrames(2); err != nil {
		t.Fatal(err)
	}
	s := b.Primary.Scheduler
	if s.Runs() < 1 {
		t.Fatalf("expected at least one transfer, got %d", s.Runs())
	}
	if s.Skipped() != 0 {
		t.Errorf("expected no skipped interrupts, got %d", s.Skipped())
	}

	stats := b.Stats()
	if stats.Contended != 0 {
		t.Errorf("expected no writes while the ULA draws, got %d", stats.Contended)
	}
	start := dma.LowerBorder(dma.Spectrum48K).Start
	first := -1
	for _, w := range b.Writes() {
		if w.DMA {
			first = w.Pos
			break
		}
	}
	if first < start || first > start+100 {
		t.Errorf("expected first DMA write just after T %d, got T %d", start, first)
	}
	for i := 0; i < dma.DisplayFileSize; i++ {
		if got := b.Peek(dma.DisplayFile + uint16(i)); got != 0x55 {
			t.Fatalf("0x%04X: expected 0x55, got 0x%02X", dma.DisplayFile+i, got)
		}
	}
	if b.Contention() != 0 {
		t.Errorf("expected no bus contention, got %d", b.Contention())
	}
}

func TestScheduler_ImmediateFitsTopBorder(t *testing.T) {
	target := sim.NewScriptedTarget()
	b := makeTestBench(t, "rp2350b", target, nil)
	b.LogWrites()

	pattern := []byte{0x18, 0x3C, 0x7E, 0xFF}
	for i, v := range pattern {
		target.Write(dma.DisplayFile+uint16(i), v)
	}
	if err := b.RunUntil(target.Idle, sim.Millisecond); err != nil {
		t.Fatal(err)
	}
	// Wipe RAM behind the Z80's back; the next transfer restores it from
	// the mirror.
	for i := range pattern {
		b.RAM()[dma.DisplayFile+i] = 0
	}

	b.Start()
	if err := b.RunFrames(1); err != nil {
		t.Fatal(err)
	}
	if b.Primary.Scheduler.Runs() < 1 {
		t.Fatal("expected a transfer")
	}
	for i, v := range pattern {
		if got := b.Peek(dma.DisplayFile + uint16(i)); got != v {
			t.Errorf("byte %d: expected 0x%02X, got 0x%02X", i, v, got)
		}
	}
	top := dma.TopBorder(dma.Spectrum48K).Length
	for _, w := range b.Writes() {
		if w.DMA && w.Pos >= top {
			t.Fatalf("DMA write at T %d, after the top border", w.Pos)
		}
	}
}

func TestFirmware_ScrollDemo(t *testing.T) {
	target := sim.NewScriptedTarget()
	b := makeTestBench(t, "rp2350b", target, func(p *board.Profile) {
		p.Config.ScrollAfter = time.Millisecond
	})
	target.Write(dma.DisplayFile, 0x80)
	if err := b.RunUntil(target.Idle, sim.Millisecond); err != nil {
		t.Fatal(err)
	}

	b.Start()
	if b.Primary.Scrolling() {
		t.Fatal("expected scrolling to wait for its timer")
	}
	if err := b.RunFrames(1); err != nil {
		t.Fatal(err)
	}
	if !b.Primary.Scrolling() {
		t.Fatal("expected scrolling to have started")
	}
	if err := b.RunFrames(1); err != nil {
		t.Fatal(err)
	}
	if b.Primary.Scheduler.Runs() < 1 {
		t.Fatal("expected a transfer")
	}
	row := b.Peek(dma.DisplayFile + 31)
	if row == 0 || row != b.Primary.Mirror.ByteAt(31) {
		t.Errorf("expected the left edge pixel wrapped into byte 31, got RAM 0x%02X mirror 0x%02X",
			row, b.Primary.Mirror.ByteAt(31))
	}
	if got := b.Peek(dma.DisplayFile); got != 0 {
		t.Errorf("expected byte 0 scrolled out, got 0x%02X", got)
	}
}

func TestFirmware_RejectsMissingWiring(t *testing.T) {
	owner := board.Profile{Name: "owner-on-pico2", Layout: board.Pico2.Layout, Config: board.Pico1.Config}
	r := board.Rig{Name: "miswired", Boards: []board.Profile{owner, board.Pico2}}
	if _, err := sim.NewBench(r, sim.DefaultConfig(), nil); err == nil {
		t.Error("expected an owner on address-only wiring to be rejected")
	}
}
