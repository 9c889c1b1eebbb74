package dma

// Source supplies the byte written at each offset of a transfer.
type Source interface {
	ByteAt(i int) uint8
}

// Fill writes the same byte everywhere.
type Fill uint8

// ByteAt returns the fill byte.
func (f Fill) ByteAt(int) uint8 { return uint8(f) }

// Pattern repeats a static byte sequence.
type Pattern []byte

// ByteAt returns the pattern byte for offset i, wrapping at the end.
func (p Pattern) ByteAt(i int) uint8 {
	if len(p) == 0 {
		return 0
	}
	return p[i%len(p)]
}

// TransferRequest is one run of the write engine: Count bytes from Source
// written to consecutive addresses starting at Start. A request is consumed
// entirely or not at all; there is no partial retry.
type TransferRequest struct {
	Start  uint16
	Count  int
	Source Source
}
