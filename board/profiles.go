package board

import (
	"time"

	"github.com/user-none/zxdma/bus"
	"github.com/user-none/zxdma/dma"
)

func low(s bus.Signal, p bus.Pin) bus.Line {
	return bus.Line{Signal: s, Pin: p, Polarity: bus.ActiveLow}
}

func high(s bus.Signal, p bus.Pin) bus.Line {
	return bus.Line{Signal: s, Pin: p, Polarity: bus.ActiveHigh}
}

// RP2350B Stamp XL: one controller with enough pins for the whole bus.
var stampXLLayout = bus.MustLayout("rp2350b-stamp-xl",
	bus.ContiguousGroup("A", 8, bus.AddressWidth),
	bus.ContiguousGroup("D", 0, bus.DataWidth),
	high(bus.CLK, 24),
	low(bus.INT, 25),
	low(bus.RD, 26),
	low(bus.WR, 27),
	low(bus.MREQ, 29),
	low(bus.IORQ, 30),
	low(bus.BUSREQ, 31),
	low(bus.BUSACK, 32),
	low(bus.WAIT, 33),
	low(bus.RESET, 36),
	high(bus.BLIPPER, 46),
	high(bus.RESETOUT, 43),
)

// RP2350BStampXL transfers the mirrored display file in the top border,
// straight from the interrupt handler.
var RP2350BStampXL = Profile{
	Name:   "rp2350b",
	Layout: stampXLLayout,
	Config: dma.Config{
		Role:   dma.RoleSingle,
		Timing: dma.DelayCalibrated,
		// 150MHz: 23 cycles covers the 4116's 150ns. The static RAM
		// module fitted during development needed 29, and more when the
		// machine was cold; 35 has been reliable.
		AccessDelay:  35,
		ControllerHz: 150000000,
		Mode:         dma.Immediate,
		Video:        dma.Spectrum48K,
		Window:       dma.TopBorder(dma.Spectrum48K),
		Latencies:    dma.Latencies{Interrupt: InterruptLatency},
		Start:        dma.DisplayFile,
		Count:        dma.DisplayFileSize,
		Snoop:        true,
		WatchFirst:   dma.DisplayFile,
		WatchLast:    dma.DisplayFileLast,
		StartAfter:   3 * time.Second,
		ScrollAfter:  10 * time.Second,
	},
}

// Pico 1 of the two Pico board: data bus and most of the control bus.
var pico1Layout = bus.MustLayout("pico1",
	bus.Group{},
	bus.ContiguousGroup("D", 0, bus.DataWidth),
	low(bus.REQUEST, 8),
	high(bus.BLIPPER, 9),
	low(bus.MREQ, 10),
	low(bus.RD, 11),
	low(bus.WR, 12),
	high(bus.CLK, 14),
	low(bus.INT, 15),
	low(bus.BUSREQ, 16),
	low(bus.BUSACK, 17),
	low(bus.DRIVING, 18),
	low(bus.IORQ, 20),
)

// Pico 2: the address bus, plus the handshake back to Pico 1.
var pico2Layout = bus.MustLayout("pico2",
	bus.ContiguousGroup("A", 0, bus.AddressWidth),
	bus.Group{},
	low(bus.MREQ, 16),
	low(bus.RD, 17),
	high(bus.CLK, 18),
	high(bus.BLIPPER, 19),
	low(bus.REQUEST, 20),
	low(bus.DRIVING, 22),
	low(bus.BUSREQ, 26),
	low(bus.BUSACK, 28),
)

// Pico1 writes a fixed pattern over the display file in the lower border,
// from a timer armed on INT, with the WR hold calibrated for 125MHz.
var Pico1 = Profile{
	Name:   "pico1",
	Layout: pico1Layout,
	Config: dma.Config{
		Role:   dma.RoleOwner,
		Timing: dma.DelayCalibrated,
		// 125MHz: 19 cycles covers 150ns DRAM.
		AccessDelay:  19,
		ControllerHz: 125000000,
		Mode:         dma.Delayed,
		Video:        dma.Spectrum48K,
		Window:       dma.LowerBorder(dma.Spectrum48K),
		Latencies:    dma.Latencies{Interrupt: InterruptLatency, Timer: AlarmLatency},
		Start:        dma.DisplayFile,
		Count:        dma.DisplayFileSize,
		Pattern:      dma.Pattern{0x55},
		StartAfter:   4 * time.Second,
	},
}

// Pico1Sync is the first Pico 1 firmware: every phase timed from the Z80
// clock, started straight from the interrupt handler.
var Pico1Sync = Profile{
	Name:   "pico1-sync",
	Layout: pico1Layout,
	Config: dma.Config{
		Role:         dma.RoleOwner,
		Timing:       dma.ClockSync,
		ControllerHz: 125000000,
		Mode:         dma.Immediate,
		Video:        dma.Spectrum48K,
		Window:       dma.TopBorder(dma.Spectrum48K),
		Latencies:    dma.Latencies{Interrupt: InterruptLatency},
		Start:        dma.DisplayFile,
		Count:        2048,
		Pattern:      dma.Pattern{0x55},
		StartAfter:   4 * time.Second,
	},
}

// Pico2 drives consecutive display file addresses, one per handshake.
var Pico2 = Profile{
	Name:   "pico2",
	Layout: pico2Layout,
	Config: dma.Config{
		Role:         dma.RoleAddressDriver,
		ControllerHz: 125000000,
		DriverBase:   dma.DisplayFile,
		DriverSpan:   dma.DisplayFileSize,
	},
}

// Pico2Constant holds 0x4000 on the address bus for every handshake.
var Pico2Constant = Profile{
	Name:   "pico2-constant",
	Layout: pico2Layout,
	Config: dma.Config{
		Role:            dma.RoleAddressDriver,
		ControllerHz:    125000000,
		DriverBase:      dma.DisplayFile,
		ConstantAddress: true,
	},
}

func init() {
	register(Rig{
		Name:        "rp2350b",
		Description: "single RP2350B, display file mirror copied back in the top border",
		Boards:      []Profile{RP2350BStampXL},
	})
	register(Rig{
		Name:        "dual-pico",
		Description: "two Picos, pattern fill in the lower border, delay timed",
		Boards:      []Profile{Pico1, Pico2},
	})
	syncDriver := Pico2
	syncDriver.Config.DriverSpan = uint32(Pico1Sync.Config.Count)
	register(Rig{
		Name:        "dual-pico-sync",
		Description: "two Picos, pattern fill in the top border, Z80 clock timed",
		Boards:      []Profile{Pico1Sync, syncDriver},
	})
	register(Rig{
		Name:        "dual-pico-constant",
		Description: "two Picos, Pico 2 holding a constant address",
		Boards:      []Profile{Pico1Sync, Pico2Constant},
	})
}
