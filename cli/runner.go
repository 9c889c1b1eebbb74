package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"runtime"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/user-none/zxdma/board"
	"github.com/user-none/zxdma/script"
	"github.com/user-none/zxdma/sim"
)

// Run executes opts and writes a report to out. With scripts it runs each
// scenario on its own bench; otherwise it runs one free running session.
func Run(ctx context.Context, fs afero.Fs, opts Options, out io.Writer) error {
	rig, err := opts.Rig()
	if err != nil {
		return err
	}

	if len(opts.Scripts) > 0 {
		reports, err := RunScripts(ctx, fs, rig, opts.Scripts, opts.Jobs)
		WriteReports(out, reports)
		if err != nil {
			return err
		}
		failed := 0
		for _, r := range reports {
			if r.Err != nil {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d scenarios failed", failed, len(reports))
		}
		return nil
	}

	rep, err := RunSession(fs, rig, opts)
	if err != nil {
		return err
	}
	WriteReports(out, []Report{rep})
	return rep.Err
}

// RunSession starts the rig's firmware and lets it run for opts.Frames.
func RunSession(fs afero.Fs, rig board.Rig, opts Options) (Report, error) {
	var target sim.Target
	var code []byte
	if opts.Program != "" {
		var err error
		code, err = afero.ReadFile(fs, opts.Program)
		if err != nil {
			return Report{}, fmt.Errorf("failed to load program: %w", err)
		}
		target = sim.NewZ80Target()
	}

	b, err := sim.NewBench(rig, sim.DefaultConfig(), target)
	if err != nil {
		return Report{}, err
	}
	if code != nil {
		b.Load(0x0000, code)
	}

	if opts.Restore != "" {
		data, err := afero.ReadFile(fs, opts.Restore)
		if err != nil {
			return Report{}, fmt.Errorf("failed to load snapshot: %w", err)
		}
		if err := b.Restore(data); err != nil {
			return Report{}, fmt.Errorf("failed to restore snapshot: %w", err)
		}
	}

	if opts.Screen != "" {
		scr, err := ReadScreen(fs, opts.Screen)
		if err != nil {
			return Report{}, err
		}
		if m := b.Primary.Mirror; m != nil && m.Len() == len(scr) {
			if err := m.Load(scr); err != nil {
				return Report{}, err
			}
		} else {
			log.Printf("cli: rig %s does not mirror the display file, ignoring %s", rig.Name, opts.Screen)
		}
	}

	b.Start()
	frames := opts.Frames
	if frames <= 0 {
		frames = 1
	}
	if err := b.RunFrames(frames); err != nil {
		// A hang leaves the bench mid-transfer; nothing to save.
		rep := makeReport(rig.Name, b)
		rep.Err = err
		return rep, nil
	}

	if opts.Dump != "" {
		if err := WriteScreen(fs, opts.Dump, b.RAM()); err != nil {
			return Report{}, err
		}
	}
	if opts.Snapshot != "" {
		if err := saveSnapshot(fs, opts.Snapshot, b); err != nil {
			return Report{}, err
		}
	}
	return makeReport(rig.Name, b), nil
}

func saveSnapshot(fs afero.Fs, path string, b *sim.Bench) error {
	t := b.Target()
	if err := b.RunUntil(func() bool { return t.Idle() && !t.Granted() }, sim.Millisecond); err != nil {
		return fmt.Errorf("failed to reach a snapshot point: %w", err)
	}
	data, err := b.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return afero.WriteFile(fs, path, data, 0644)
}

// RunScripts runs every scenario on a fresh bench, at most jobs at once.
// A failing scenario is reported in its Report; only an unreadable script
// stops the batch.
func RunScripts(ctx context.Context, fs afero.Fs, rig board.Rig, paths []string, jobs int) ([]Report, error) {
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	reports := make([]Report, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, path := range paths {
		g.Go(func() error {
			name := filepath.Base(path)
			src, err := afero.ReadFile(fs, path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			b, err := sim.NewBench(rig, sim.DefaultConfig(), nil)
			if err != nil {
				return err
			}
			res, err := script.Run(gctx, b, name, string(src))
			r := makeReport(name, b)
			r.Checks = res.Checks
			r.Output = res.Output
			r.Err = err
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var kept []Report
		for _, r := range reports {
			if r.Name != "" {
				kept = append(kept, r)
			}
		}
		return kept, err
	}
	return reports, nil
}
