// Package script runs Lua scenarios against a simulated bench.
//
// A scenario drives the Z80 side with write and load, lets time pass with
// run_frames and run_us, starts transfers and checks memory:
//
//	write(0x4000, 0xAA)
//	settle()
//	expect_mirror(0, 0xAA)
//	transfer(0x4000, 1)
//	expect(0x4000, 0xAA)
package script

import (
	"context"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/user-none/zxdma/dma"
	"github.com/user-none/zxdma/sim"
)

// Result is what a scenario left behind.
type Result struct {
	Name   string
	Output []string // lines printed by the scenario
	Checks int      // expectations that held
}

type env struct {
	b      *sim.Bench
	result Result
}

// Run executes src against b. Lua errors, failed expectations and bench
// hangs are all returned as errors.
func Run(ctx context.Context, b *sim.Bench, name, src string) (Result, error) {
	L := lua.NewState()
	defer L.Close()
	if ctx != nil {
		L.SetContext(ctx)
	}

	e := &env{b: b, result: Result{Name: name}}
	for fn, impl := range map[string]lua.LGFunction{
		"print":         e.print,
		"write":         e.write,
		"load":          e.load,
		"settle":        e.settle,
		"run_frames":    e.runFrames,
		"run_us":        e.runMicros,
		"start":         e.start,
		"transfer":      e.transfer,
		"peek":          e.peek,
		"mirror":        e.mirror,
		"expect":        e.expect,
		"expect_mirror": e.expectMirror,
		"stats":         e.stats,
	} {
		L.SetGlobal(fn, L.NewFunction(impl))
	}

	if err := L.DoString(src); err != nil {
		return e.result, fmt.Errorf("script %s: %w", name, err)
	}
	return e.result, nil
}

func (e *env) print(L *lua.LState) int {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	e.result.Output = append(e.result.Output, strings.Join(parts, "\t"))
	return 0
}

func checkAddr(L *lua.LState, n int) uint16 {
	v := L.CheckInt(n)
	if v < 0 || v > 0xFFFF {
		L.ArgError(n, "address out of range")
	}
	return uint16(v)
}

func checkByte(L *lua.LState, n int) uint8 {
	v := L.CheckInt(n)
	if v < 0 || v > 0xFF {
		L.ArgError(n, "byte out of range")
	}
	return uint8(v)
}

// check turns a bench error into a Lua error.
func check(L *lua.LState, err error) {
	if err != nil {
		L.RaiseError("%v", err)
	}
}

// write(addr, val) queues a Z80 write.
func (e *env) write(L *lua.LState) int {
	t, ok := e.b.Target().(*sim.ScriptedTarget)
	if !ok {
		L.RaiseError("write needs a scripted target")
		return 0
	}
	t.Write(checkAddr(L, 1), checkByte(L, 2))
	return 0
}

// load(addr, {bytes} or string) copies straight into memory.
func (e *env) load(L *lua.LState) int {
	addr := checkAddr(L, 1)
	var data []byte
	switch v := L.Get(2).(type) {
	case lua.LString:
		data = []byte(string(v))
	case *lua.LTable:
		for i := 1; i <= v.Len(); i++ {
			n, ok := v.RawGetInt(i).(lua.LNumber)
			if !ok || n < 0 || n > 0xFF {
				L.ArgError(2, fmt.Sprintf("element %d is not a byte", i))
			}
			data = append(data, byte(n))
		}
	default:
		L.ArgError(2, "table or string expected")
	}
	e.b.Load(addr, data)
	return 0
}

// settle runs until every queued Z80 write has been made.
func (e *env) settle(L *lua.LState) int {
	t := e.b.Target()
	check(L, e.b.RunUntil(t.Idle, sim.Time(L.OptInt(1, 1000))*sim.Millisecond))
	return 0
}

func (e *env) runFrames(L *lua.LState) int {
	check(L, e.b.RunFrames(L.CheckInt(1)))
	return 0
}

func (e *env) runMicros(L *lua.LState) int {
	check(L, e.b.Run(sim.Time(L.CheckInt(1))*sim.Microsecond))
	return 0
}

// start arms the scheduler as at power up.
func (e *env) start(L *lua.LState) int {
	e.b.Start()
	return 0
}

// transfer(addr, count [, byte]) runs one transfer now. Without a byte the
// source is the mirror when the board has one, else its fill pattern.
func (e *env) transfer(L *lua.LState) int {
	fw := e.b.Primary
	req := dma.TransferRequest{Start: checkAddr(L, 1), Count: L.CheckInt(2)}
	switch {
	case L.GetTop() >= 3:
		req.Source = dma.Fill(checkByte(L, 3))
	case fw.Mirror != nil:
		if req.Count > fw.Mirror.Len() {
			L.ArgError(2, "count exceeds the mirror")
		}
		req.Source = fw.Mirror
	case len(fw.Config().Pattern) > 0:
		req.Source = fw.Config().Pattern
	default:
		req.Source = dma.Fill(0)
	}
	check(L, e.b.Transfer(req))
	return 0
}

func (e *env) peek(L *lua.LState) int {
	L.Push(lua.LNumber(e.b.Peek(checkAddr(L, 1))))
	return 1
}

func (e *env) mirrorOf(L *lua.LState) *dma.Mirror {
	m := e.b.Primary.Mirror
	if m == nil {
		L.RaiseError("board %s has no mirror", e.b.Rig.Primary().Name)
	}
	return m
}

// mirror(i) returns the mirror byte at offset i.
func (e *env) mirror(L *lua.LState) int {
	m := e.mirrorOf(L)
	i := L.CheckInt(1)
	if i < 0 || i >= m.Len() {
		L.ArgError(1, "offset out of range")
	}
	L.Push(lua.LNumber(m.ByteAt(i)))
	return 1
}

// expect(addr, val [, msg]) fails the scenario unless memory holds val.
func (e *env) expect(L *lua.LState) int {
	addr, want := checkAddr(L, 1), checkByte(L, 2)
	if got := e.b.Peek(addr); got != want {
		L.RaiseError("%sexpected 0x%02X at 0x%04X, got 0x%02X", prefix(L, 3), want, addr, got)
	}
	e.result.Checks++
	return 0
}

// expect_mirror(i, val [, msg]) fails the scenario unless the mirror holds
// val at offset i.
func (e *env) expectMirror(L *lua.LState) int {
	m := e.mirrorOf(L)
	i, want := L.CheckInt(1), checkByte(L, 2)
	if i < 0 || i >= m.Len() {
		L.ArgError(1, "offset out of range")
	}
	if got := m.ByteAt(i); got != want {
		L.RaiseError("%sexpected mirror[%d] 0x%02X, got 0x%02X", prefix(L, 3), i, want, got)
	}
	e.result.Checks++
	return 0
}

func prefix(L *lua.LState, n int) string {
	if s := L.OptString(n, ""); s != "" {
		return s + ": "
	}
	return ""
}

// stats returns the bench counters as a table.
func (e *env) stats(L *lua.LState) int {
	s := e.b.Stats()
	t := L.NewTable()
	t.RawSetString("frames", lua.LNumber(s.Frames))
	t.RawSetString("tstates", lua.LNumber(s.TStates))
	t.RawSetString("latched", lua.LNumber(s.Latched))
	t.RawSetString("dma_writes", lua.LNumber(s.DMAWrites))
	t.RawSetString("short_writes", lua.LNumber(s.ShortWrites))
	t.RawSetString("contended", lua.LNumber(s.Contended))
	t.RawSetString("interrupts", lua.LNumber(s.Interrupts))
	t.RawSetString("contention", lua.LNumber(e.b.Contention()))
	if sched := e.b.Primary.Scheduler; sched != nil {
		t.RawSetString("transfers", lua.LNumber(sched.Runs()))
		t.RawSetString("skipped", lua.LNumber(sched.Skipped()))
	}
	for _, d := range e.b.Drivers {
		t.RawSetString("handoffs", lua.LNumber(d.Driver.Cycles()))
		t.RawSetString("aborts", lua.LNumber(d.Driver.Aborts()))
	}
	L.Push(t)
	return 1
}
