package dma_test

import (
	"math/rand/v2"
	"testing"

	"github.com/user-none/zxdma/board"
	"github.com/user-none/zxdma/sim"
)

func TestSnooper_MirrorFidelity(t *testing.T) {
	target := sim.NewScriptedTarget()
	target.Gap = 2
	b := makeTestBench(t, "rp2350b", target, func(p *board.Profile) {
		p.Config.WatchFirst = 0x4000
		p.Config.WatchLast = 0x40FF
	})

	rng := rand.New(rand.NewPCG(42, 1))
	want := make(map[uint16]uint8)
	in, out := 0, 0
	for i := 0; i < 500; i++ {
		v := uint8(rng.IntN(256))
		if rng.IntN(3) == 0 {
			// Outside the watched range, either side of it.
			addr := uint16(0x4100 + rng.IntN(0x100))
			if rng.IntN(2) == 0 {
				addr = uint16(0x3F00 + rng.IntN(0x100))
			}
			target.Write(addr, v)
			out++
			continue
		}
		addr := uint16(0x4000 + rng.IntN(0x100))
		target.Write(addr, v)
		want[addr] = v
		in++
	}

	if err := b.RunUntil(target.Idle, 10*sim.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := b.Run(sim.Microsecond); err != nil {
		t.Fatal(err)
	}

	mirror := b.Primary.Mirror
	got := mirror.Bytes()
	for i, v := range got {
		addr := uint16(0x4000 + i)
		if got, exp := v, want[addr]; got != exp {
			t.Errorf("0x%04X: expected 0x%02X, got 0x%02X", addr, exp, got)
		}
	}
	s := b.Primary.Snooper
	if s.Seen() != in+out {
		t.Errorf("expected %d writes seen, got %d", in+out, s.Seen())
	}
	if s.Stored() != in {
		t.Errorf("expected %d writes stored, got %d", in, s.Stored())
	}
}

func TestSnooper_SeesEachWriteOnce(t *testing.T) {
	target := sim.NewScriptedTarget()
	target.Gap = 0
	b := makeTestBench(t, "rp2350b", target, nil)

	// Back to back writes to one address: MREQ and WR both go inactive
	// between them, so each is counted exactly once.
	for i := 0; i < 10; i++ {
		target.Write(0x4000, uint8(i))
	}
	if err := b.RunUntil(target.Idle, sim.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := b.Run(sim.Microsecond); err != nil {
		t.Fatal(err)
	}
	if got := b.Primary.Snooper.Seen(); got != 10 {
		t.Errorf("expected 10 writes seen, got %d", got)
	}
	if got := b.Primary.Mirror.ByteAt(0); got != 9 {
		t.Errorf("expected last value 9, got %d", got)
	}
}

func TestSnooper_MissesWritesFasterThanPoll(t *testing.T) {
	target := sim.NewScriptedTarget()
	target.Gap = 0
	cfg := sim.DefaultConfig()
	cfg.Quantum = 2 * sim.Microsecond

	r, _ := board.Lookup("rp2350b")
	b, err := sim.NewBench(r, cfg, target)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		target.Write(0x4000+uint16(i), 0xFF)
	}
	if err := b.RunUntil(target.Idle, sim.Millisecond); err != nil {
		t.Fatal(err)
	}
	if got := b.Primary.Snooper.Seen(); got >= 10 {
		t.Errorf("expected writes lost with a 2us poll, saw all %d", got)
	}
}
