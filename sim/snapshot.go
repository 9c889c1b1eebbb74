package sim

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"github.com/user-none/go-chip-z80"
	"github.com/user-none/zxdma/bus"
)

// Snapshot format constants
const (
	snapshotVersion    = 1
	snapshotMagic      = "zxDMAState\x00\x00"
	snapshotHeaderSize = 20 // magic(12) + version(2) + target(2) + dataCRC(4)
	snapshotBaseSize   = 8 + 1 + 0x10000
)

const (
	targetScripted uint16 = iota
	targetZ80
)

func (h *Harness) targetKind() uint16 {
	if _, ok := h.target.(*Z80Target); ok {
		return targetZ80
	}
	return targetScripted
}

// SnapshotSize returns the size of a snapshot of this machine.
func (h *Harness) SnapshotSize() int {
	size := snapshotHeaderSize + snapshotBaseSize
	if h.targetKind() == targetZ80 {
		size += z80.SerializeSize
	}
	return size
}

// Snapshot saves the Spectrum's side of the machine: RAM, frame position
// and the Z80. Controllers are not included. The target must be between
// instructions and hold the bus.
func (h *Harness) Snapshot() ([]byte, error) {
	if h.target == nil {
		return nil, errors.New("no target fitted")
	}
	if !h.target.Idle() || h.target.Granted() {
		return nil, errors.New("target is mid-cycle or has granted the bus")
	}

	data := make([]byte, h.SnapshotSize())
	copy(data[0:12], snapshotMagic)
	binary.LittleEndian.PutUint16(data[12:14], snapshotVersion)
	binary.LittleEndian.PutUint16(data[14:16], h.targetKind())

	offset := snapshotHeaderSize
	binary.LittleEndian.PutUint64(data[offset:], uint64(h.tstate))
	offset += 8

	var border uint8
	if zt, ok := h.target.(*Z80Target); ok {
		border = zt.border
	}
	data[offset] = border
	offset++

	copy(data[offset:], h.ram[:])
	offset += len(h.ram)

	if zt, ok := h.target.(*Z80Target); ok {
		if err := zt.cpu.Serialize(data[offset:]); err != nil {
			return nil, err
		}
	}

	dataCRC := crc32.ChecksumIEEE(data[snapshotHeaderSize:])
	binary.LittleEndian.PutUint32(data[16:20], dataCRC)
	return data, nil
}

// VerifySnapshot checks a snapshot matches this machine without loading
// it.
func (h *Harness) VerifySnapshot(data []byte) error {
	if len(data) < snapshotHeaderSize {
		return errors.New("snapshot too short")
	}
	if string(data[0:12]) != snapshotMagic {
		return errors.New("invalid snapshot magic")
	}
	if binary.LittleEndian.Uint16(data[12:14]) > snapshotVersion {
		return errors.New("unsupported snapshot version")
	}
	if binary.LittleEndian.Uint16(data[14:16]) != h.targetKind() {
		return errors.New("snapshot is for a different target")
	}
	if len(data) < h.SnapshotSize() {
		return errors.New("snapshot too short")
	}
	expectedCRC := binary.LittleEndian.Uint32(data[16:20])
	if crc32.ChecksumIEEE(data[snapshotHeaderSize:]) != expectedCRC {
		return errors.New("snapshot data is corrupted")
	}
	return nil
}

// Restore loads a snapshot taken with Snapshot.
func (h *Harness) Restore(data []byte) error {
	if err := h.VerifySnapshot(data); err != nil {
		return err
	}

	offset := snapshotHeaderSize
	tstate := int64(binary.LittleEndian.Uint64(data[offset:]))
	offset += 8
	border := data[offset]
	offset++
	copy(h.ram[:], data[offset:offset+len(h.ram)])
	offset += len(h.ram)

	if zt, ok := h.target.(*Z80Target); ok {
		if err := zt.cpu.Deserialize(data[offset:]); err != nil {
			return err
		}
		zt.border = border
	}

	h.tstate = tstate
	h.ula.level(bus.INT, h.FramePos() >= h.cfg.Video.IntLength)
	return nil
}
