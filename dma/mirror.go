package dma

import "fmt"

// ZX Spectrum display file: 256x192 pixels at 8 per byte, then 32x24
// attribute bytes.
const (
	DisplayFile       = 0x4000
	DisplayPixelSize  = 256 * 192 / 8
	DisplayAttrSize   = 32 * 24
	DisplayFileSize   = DisplayPixelSize + DisplayAttrSize
	DisplayFileLast   = DisplayFile + DisplayFileSize - 1
	displayRowBytes   = 32
	displayPixelLines = 192
)

// Mirror is a local copy of a watched address range. The snoop loop writes
// it and the transfer engine reads it, never at the same time: the snoop
// loop only sees writes while the Z80 owns its bus, and the engine only runs
// while the Z80's bus is parked.
type Mirror struct {
	first uint16
	buf   []byte
}

// NewMirror watches [first, last].
func NewMirror(first, last uint16) *Mirror {
	if last < first {
		first, last = last, first
	}
	return &Mirror{first: first, buf: make([]byte, int(last-first)+1)}
}

// NewScreenMirror watches the display file.
func NewScreenMirror() *Mirror {
	return NewMirror(DisplayFile, DisplayFileLast)
}

// First returns the first watched address.
func (m *Mirror) First() uint16 { return m.first }

// Last returns the last watched address.
func (m *Mirror) Last() uint16 { return m.first + uint16(len(m.buf)-1) }

// Len returns the buffer size.
func (m *Mirror) Len() int { return len(m.buf) }

// Contains reports whether addr is watched.
func (m *Mirror) Contains(addr uint16) bool {
	return addr >= m.first && int(addr-m.first) < len(m.buf)
}

// Store records a write. It reports false for addresses outside the range.
func (m *Mirror) Store(addr uint16, value uint8) bool {
	if !m.Contains(addr) {
		return false
	}
	m.buf[addr-m.first] = value
	return true
}

// ByteAt returns the byte at offset i, making the mirror a transfer Source.
func (m *Mirror) ByteAt(i int) uint8 { return m.buf[i] }

// Bytes returns a copy of the buffer.
func (m *Mirror) Bytes() []byte {
	out := make([]byte, len(m.buf))
	copy(out, m.buf)
	return out
}

// Load replaces the buffer contents.
func (m *Mirror) Load(data []byte) error {
	if len(data) != len(m.buf) {
		return fmt.Errorf("mirror load: %d bytes, want %d", len(data), len(m.buf))
	}
	copy(m.buf, data)
	return nil
}

// Clear zeroes the buffer.
func (m *Mirror) Clear() {
	for i := range m.buf {
		m.buf[i] = 0
	}
}

// Request returns a transfer of the whole mirror back to where it was
// copied from.
func (m *Mirror) Request() TransferRequest {
	return TransferRequest{Start: m.first, Count: len(m.buf), Source: m}
}

// ScrollLeft rotates every 32 byte pixel row one pixel to the left, the
// pixel leaving the left edge coming back in on the right. Rows are taken
// in buffer order, so on the Spectrum's interleaved display file each row
// is one scan line.
func (m *Mirror) ScrollLeft() {
	rows := len(m.buf) / displayRowBytes
	if rows > displayPixelLines {
		rows = displayPixelLines
	}
	for r := 0; r < rows; r++ {
		row := m.buf[r*displayRowBytes : (r+1)*displayRowBytes]
		carry := row[0] >> 7
		for i := len(row) - 1; i >= 0; i-- {
			out := row[i] >> 7
			row[i] = row[i]<<1 | carry
			carry = out
		}
	}
}
