package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/user-none/zxdma/board"
	"github.com/user-none/zxdma/dma"
	"github.com/user-none/zxdma/sim"
)

func makeTestFs(t *testing.T, files map[string][]byte) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, data := range files {
		if err := afero.WriteFile(fs, name, data, 0644); err != nil {
			t.Fatal(err)
		}
	}
	return fs
}

func makeTestScreen() []byte {
	scr := make([]byte, dma.DisplayFileSize)
	for i := range scr {
		scr[i] = uint8(i % 251)
	}
	return scr
}

const passScript = `
write(0x4000, 0x12)
settle()
load(0x4000, {0})
transfer(0x4000, 1)
expect(0x4000, 0x12)
`

const failScript = `expect(0x4000, 1, "screen")`

func TestRunScripts_Batch(t *testing.T) {
	fs := makeTestFs(t, map[string][]byte{
		"/s/a.lua": []byte(passScript),
		"/s/b.lua": []byte(failScript),
	})
	rig, err := board.Lookup("rp2350b")
	if err != nil {
		t.Fatal(err)
	}

	reports, err := RunScripts(context.Background(), fs, rig, []string{"/s/a.lua", "/s/b.lua"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].Name != "a.lua" || reports[1].Name != "b.lua" {
		t.Errorf("expected reports in script order, got %s, %s", reports[0].Name, reports[1].Name)
	}
	if reports[0].Err != nil {
		t.Errorf("expected a.lua to pass, got %v", reports[0].Err)
	}
	if reports[0].Checks != 1 {
		t.Errorf("expected 1 check, got %d", reports[0].Checks)
	}
	if reports[0].Stats.DMAWrites != 1 {
		t.Errorf("expected 1 DMA write, got %d", reports[0].Stats.DMAWrites)
	}
	if reports[1].Err == nil {
		t.Error("expected b.lua to fail")
	}
}

func TestRunScripts_MissingFile(t *testing.T) {
	fs := makeTestFs(t, nil)
	rig, _ := board.Lookup("rp2350b")
	if _, err := RunScripts(context.Background(), fs, rig, []string{"/nope.lua"}, 1); err == nil {
		t.Fatal("expected error for a missing script")
	}
}

func TestRun_ScriptFailureReported(t *testing.T) {
	fs := makeTestFs(t, map[string][]byte{
		"a.lua": []byte(passScript),
		"b.lua": []byte(failScript),
	})
	var out bytes.Buffer
	opts := Options{Board: "rp2350b", Scripts: []string{"a.lua", "b.lua"}}

	err := Run(context.Background(), fs, opts, &out)
	if err == nil || err.Error() != "1 of 2 scenarios failed" {
		t.Errorf("expected 1 of 2 failed, got %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "FAIL b.lua") {
		t.Errorf("expected FAIL line for b.lua, got:\n%s", text)
	}
	if !strings.Contains(text, "ok   a.lua") {
		t.Errorf("expected ok line for a.lua, got:\n%s", text)
	}
}

func TestRunSession_ScreenDumpSnapshot(t *testing.T) {
	scr := makeTestScreen()
	fs := makeTestFs(t, map[string][]byte{"in.scr": scr})
	opts := Options{
		Board:    "rp2350b",
		Frames:   2,
		Screen:   "in.scr",
		Dump:     "out.scr",
		Snapshot: "state.bin",
	}
	rig, err := opts.Rig()
	if err != nil {
		t.Fatal(err)
	}

	rep, err := RunSession(fs, rig, opts)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Err != nil {
		t.Fatal(rep.Err)
	}
	if rep.Transfers < 1 {
		t.Errorf("expected at least 1 transfer, got %d", rep.Transfers)
	}
	if rep.Stats.Contended != 0 {
		t.Errorf("expected no contended writes, got %d", rep.Stats.Contended)
	}

	dump, err := ReadScreen(fs, "out.scr")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dump, scr) {
		t.Error("dumped display file does not match the loaded screen")
	}

	state, err := afero.ReadFile(fs, "state.bin")
	if err != nil {
		t.Fatal(err)
	}
	b, err := sim.NewBench(rig, sim.DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Restore(state); err != nil {
		t.Fatal(err)
	}
	if got := b.Peek(dma.DisplayFile + 300); got != scr[300] {
		t.Errorf("expected restored 0x%02X, got 0x%02X", scr[300], got)
	}
}

func TestRunSession_MissingInputs(t *testing.T) {
	fs := makeTestFs(t, map[string][]byte{"short.scr": make([]byte, 100)})
	rig, _ := board.Lookup("rp2350b")
	tests := []struct {
		name string
		opts Options
	}{
		{"program", Options{Program: "none.bin"}},
		{"restore", Options{Restore: "none.bin"}},
		{"screen", Options{Screen: "none.scr"}},
		{"short screen", Options{Screen: "short.scr"}},
	}
	for _, tt := range tests {
		if _, err := RunSession(fs, rig, tt.opts); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestOptions_RigErrors(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"board", Options{Board: "nope"}},
		{"timing", Options{Board: "rp2350b", Timing: "fast"}},
		{"mode", Options{Board: "rp2350b", Mode: "later"}},
		{"access delay", Options{Board: "rp2350b", AccessDelay: -1}},
	}
	for _, tt := range tests {
		if _, err := tt.opts.Rig(); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestOptions_RigOverrides(t *testing.T) {
	opts := Options{Board: "dual-pico-sync", Timing: "delay", Mode: "delayed"}
	rig, err := opts.Rig()
	if err != nil {
		t.Fatal(err)
	}
	p := rig.Primary().Config
	if p.Timing != dma.DelayCalibrated {
		t.Errorf("expected delay timing, got %v", p.Timing)
	}
	if p.AccessDelay != 19 {
		t.Errorf("expected access delay 19, got %d", p.AccessDelay)
	}
	if p.Mode != dma.Delayed {
		t.Errorf("expected delayed mode, got %v", p.Mode)
	}
	if p.Window != dma.LowerBorder(p.Video) {
		t.Errorf("expected lower border window, got %+v", p.Window)
	}
	if p.Latencies.Timer != board.AlarmLatency {
		t.Errorf("expected timer latency %v, got %v", board.AlarmLatency, p.Latencies.Timer)
	}
	for _, b := range rig.Boards {
		if b.Config.StartAfter != 0 {
			t.Errorf("%s: expected hold-off cleared, got %v", b.Name, b.Config.StartAfter)
		}
	}

	// The registered rig is untouched.
	orig, _ := board.Lookup("dual-pico-sync")
	if orig.Primary().Config.Timing != dma.ClockSync {
		t.Error("override leaked into the registered rig")
	}
}

func TestOptions_HoldOffKept(t *testing.T) {
	rig, err := Options{Board: "rp2350b", HoldOff: true}.Rig()
	if err != nil {
		t.Fatal(err)
	}
	if rig.Primary().Config.StartAfter != board.RP2350BStampXL.Config.StartAfter {
		t.Errorf("expected hold-off %v, got %v", board.RP2350BStampXL.Config.StartAfter, rig.Primary().Config.StartAfter)
	}
}

func TestWidth_NotATerminal(t *testing.T) {
	if w := Width(&bytes.Buffer{}); w != defaultWidth {
		t.Errorf("expected %d, got %d", defaultWidth, w)
	}
}

func TestClip(t *testing.T) {
	if got := clip("abcdef", 10); got != "abcdef" {
		t.Errorf("expected abcdef, got %s", got)
	}
	if got := clip("abcdefghij", 6); got != "abc..." {
		t.Errorf("expected abc..., got %s", got)
	}
}
