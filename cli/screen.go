package cli

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/user-none/zxdma/dma"
)

// ReadScreen loads a .scr file: the display file as raw bytes, pixels then
// attributes.
func ReadScreen(fs afero.Fs, path string) ([]byte, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load screen: %w", err)
	}
	if len(data) != dma.DisplayFileSize {
		return nil, fmt.Errorf("screen %s: %d bytes, want %d", path, len(data), dma.DisplayFileSize)
	}
	return data, nil
}

// WriteScreen saves the display file out of a 64K memory image as a .scr
// file.
func WriteScreen(fs afero.Fs, path string, mem []byte) error {
	if len(mem) < dma.DisplayFileLast+1 {
		return fmt.Errorf("memory image too small: %d bytes", len(mem))
	}
	return afero.WriteFile(fs, path, mem[dma.DisplayFile:dma.DisplayFileLast+1], 0644)
}
