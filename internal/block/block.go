// Package block defines the block device contract spec.md treats as an
// external collaborator ("the driver below us writes one block at a
// time") and provides the two concrete devices this repo needs: an
// in-memory device for tests and a file-backed device for cmd/mkfs and
// cmd/kernel. Real MMC/PL180 register programming stays out of scope per
// spec.md §1.
package block

import "tile/internal/kerr"

// Device reads and writes whole, fixed-size blocks to backing storage.
type Device interface {
	BlockSize() int
	NumBlocks() uint32
	ReadBlock(n uint32, buf []byte) error
	WriteBlock(n uint32, buf []byte) error
}

// Mem is an in-memory Device, useful for tests and for building a
// filesystem image before it's flushed to a file.
type Mem struct {
	blockSize int
	blocks    [][]byte
}

// NewMem returns a Mem device of the given block size and block count,
// zero-initialized.
func NewMem(blockSize int, numBlocks uint32) *Mem {
	m := &Mem{blockSize: blockSize, blocks: make([][]byte, numBlocks)}
	for i := range m.blocks {
		m.blocks[i] = make([]byte, blockSize)
	}
	return m
}

func (m *Mem) BlockSize() int    { return m.blockSize }
func (m *Mem) NumBlocks() uint32 { return uint32(len(m.blocks)) }

func (m *Mem) ReadBlock(n uint32, buf []byte) error {
	if err := m.checkBounds(n, buf); err != nil {
		return err
	}
	copy(buf, m.blocks[n])
	return nil
}

func (m *Mem) WriteBlock(n uint32, buf []byte) error {
	if err := m.checkBounds(n, buf); err != nil {
		return err
	}
	copy(m.blocks[n], buf)
	return nil
}

func (m *Mem) checkBounds(n uint32, buf []byte) error {
	if n >= uint32(len(m.blocks)) {
		return kerr.ErrInvalid
	}
	if len(buf) != m.blockSize {
		return kerr.ErrInvalid
	}
	return nil
}
