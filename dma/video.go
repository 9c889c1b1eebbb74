package dma

import "time"

// VideoTiming describes the target's frame in Z80 T-states. The ULA raises
// INT at T-state 0 of every frame.
type VideoTiming struct {
	ClockHz        int // Z80 clock
	TStatesPerLine int
	Lines          int // total lines per frame
	TopBorderLines int // lines from INT to the first display line
	ScreenLines    int // display lines
	IntLength      int // T-states INT stays low
	FetchTStates   int // T-states per display line in which the ULA reads screen memory
}

// Spectrum48K is the 48K Spectrum (PAL) frame.
var Spectrum48K = VideoTiming{
	ClockHz:        3500000,
	TStatesPerLine: 224,
	Lines:          312,
	TopBorderLines: 64,
	ScreenLines:    192,
	IntLength:      32,
	FetchTStates:   128,
}

// TStatesPerFrame returns the frame length in T-states.
func (v VideoTiming) TStatesPerFrame() int {
	return v.TStatesPerLine * v.Lines
}

// Duration converts T-states to wall time.
func (v VideoTiming) Duration(tstates int) time.Duration {
	return time.Duration(int64(tstates) * int64(time.Second) / int64(v.ClockHz))
}

// Frame returns the frame period.
func (v VideoTiming) Frame() time.Duration {
	return v.Duration(v.TStatesPerFrame())
}

// Drawing reports whether the ULA is reading screen memory at the given
// T-state offset into the frame.
func (v VideoTiming) Drawing(t int) bool {
	line := t / v.TStatesPerLine
	if line < v.TopBorderLines || line >= v.TopBorderLines+v.ScreenLines {
		return false
	}
	return t%v.TStatesPerLine < v.FetchTStates
}

// Window is a span of the frame, in T-states from INT, in which the ULA does
// not read screen memory.
type Window struct {
	Start  int
	Length int
}

// TopBorder is the window from INT to the first display line.
func TopBorder(v VideoTiming) Window {
	return Window{Start: 0, Length: v.TopBorderLines * v.TStatesPerLine}
}

// LowerBorder is the window from the end of the last display line through
// the lower border and on into the next frame's top border.
func LowerBorder(v VideoTiming) Window {
	start := (v.TopBorderLines + v.ScreenLines) * v.TStatesPerLine
	return Window{
		Start:  start,
		Length: v.TStatesPerFrame() - start + v.TopBorderLines*v.TStatesPerLine,
	}
}

// Fits reports whether work of duration d started at the window start ends
// inside it.
func (w Window) Fits(v VideoTiming, d time.Duration) bool {
	return d <= v.Duration(w.Length)
}

// Latencies are the measured delays between the INT edge and the handler,
// and between a timer's due time and its callback.
type Latencies struct {
	Interrupt time.Duration
	Timer     time.Duration
}

// DelayFor returns how long to wait after the interrupt handler starts so
// the transfer begins at the window start. It never returns less than zero.
func DelayFor(v VideoTiming, w Window, l Latencies) time.Duration {
	d := v.Duration(w.Start) - l.Interrupt - l.Timer
	if d < 0 {
		return 0
	}
	return d
}
