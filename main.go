package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/spf13/afero"

	"github.com/user-none/zxdma/board"
	"github.com/user-none/zxdma/cli"
)

func main() {
	var opts cli.Options
	flag.StringVar(&opts.Board, "board", "rp2350b", "board rig to fit")
	flag.IntVar(&opts.Frames, "frames", 50, "frames to run")
	flag.StringVar(&opts.Timing, "timing", "", "write timing: clock or delay (default from the board)")
	flag.StringVar(&opts.Mode, "mode", "", "transfer mode: immediate or delayed (default from the board)")
	flag.IntVar(&opts.AccessDelay, "access-delay", 0, "delay timed access hold in controller cycles")
	flag.BoolVar(&opts.HoldOff, "holdoff", false, "keep the power-up hold-off before the first transfer")
	flag.StringVar(&opts.Program, "program", "", "Z80 code to run from 0x0000")
	flag.StringVar(&opts.Screen, "scr", "", ".scr file loaded into the mirror")
	flag.StringVar(&opts.Dump, "dump", "", "write the display file to this .scr after the run")
	flag.StringVar(&opts.Snapshot, "snapshot", "", "save machine state after the run")
	flag.StringVar(&opts.Restore, "restore", "", "restore machine state before the run")
	flag.Var((*cli.StringList)(&opts.Scripts), "script", "Lua scenario to run (repeatable)")
	flag.IntVar(&opts.Jobs, "jobs", 0, "scenarios run at once (default one per CPU)")
	list := flag.Bool("list", false, "list board rigs and exit")
	flag.Parse()

	if *list {
		for _, name := range board.Names() {
			r, _ := board.Lookup(name)
			fmt.Printf("%-20s %s\n", r.Name, r.Description)
		}
		return
	}

	if err := cli.Run(context.Background(), afero.NewOsFs(), opts, os.Stdout); err != nil {
		log.Fatal(err)
	}
}
