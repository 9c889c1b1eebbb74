package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/user-none/zxdma/sim"
)

// Report summarises one bench run.
type Report struct {
	Name       string
	Stats      sim.Stats
	Contention int
	Transfers  int
	Skipped    int
	Handoffs   uint32
	Aborts     int
	Checks     int
	Output     []string
	Err        error
}

func makeReport(name string, b *sim.Bench) Report {
	r := Report{
		Name:       name,
		Stats:      b.Stats(),
		Contention: b.Contention(),
	}
	if s := b.Primary.Scheduler; s != nil {
		r.Transfers = s.Runs()
		r.Skipped = s.Skipped()
	}
	for _, d := range b.Drivers {
		r.Handoffs += d.Driver.Cycles()
		r.Aborts += d.Driver.Aborts()
	}
	return r
}

const defaultWidth = 80

// Width returns the terminal width when w is a terminal, else 80.
func Width(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}

// WriteReports prints one line per report, clipped to the output width,
// followed by its output and any failure.
func WriteReports(w io.Writer, reports []Report) {
	width := Width(w)
	rule := strings.Repeat("-", width)

	fmt.Fprintln(w, rule)
	for _, r := range reports {
		status := "ok"
		if r.Err != nil {
			status = "FAIL"
		}
		line := fmt.Sprintf("%-4s %-20s frames=%d transfers=%d skipped=%d dma=%d short=%d contended=%d contention=%d",
			status, r.Name, r.Stats.Frames, r.Transfers, r.Skipped, r.Stats.DMAWrites,
			r.Stats.ShortWrites, r.Stats.Contended, r.Contention)
		if r.Handoffs > 0 || r.Aborts > 0 {
			line += fmt.Sprintf(" handoffs=%d aborts=%d", r.Handoffs, r.Aborts)
		}
		if r.Checks > 0 {
			line += fmt.Sprintf(" checks=%d", r.Checks)
		}
		fmt.Fprintln(w, clip(line, width))
		for _, o := range r.Output {
			fmt.Fprintln(w, clip("     "+o, width))
		}
		if r.Err != nil {
			fmt.Fprintln(w, clip("     "+r.Err.Error(), width))
		}
	}
	fmt.Fprintln(w, rule)
}

func clip(s string, width int) string {
	if len(s) <= width {
		return s
	}
	if width <= 3 {
		return s[:width]
	}
	return s[:width-3] + "..."
}
