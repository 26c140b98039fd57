// Package buffer is the in-memory block buffer cache (spec.md §4.5): a
// map from disk block number to cached block contents. There is no dirty
// tracking — every Put writes back, giving callers coarse but simple
// consistency: a reader sees either the pre-write or the post-write
// state, never a partial block, because writes happen while the caller
// holds the entry.
package buffer

import (
	"fmt"

	"tile/internal/block"
	"tile/internal/kerr"
)

// Entry is one cached block: its number and its data. The cache hands out
// pointers to Entry so callers can mutate Data in place before Put.
type Entry struct {
	Block uint32
	Data  []byte
}

// Cache is the buffer cache described in spec.md §4.5.
type Cache struct {
	dev     block.Device
	entries map[uint32]*Entry
}

// New returns a cache reading through to dev.
func New(dev block.Device) *Cache {
	return &Cache{dev: dev, entries: map[uint32]*Entry{}}
}

// Get returns the cached Entry for block n, reading it from the backing
// device on first access. At most one Entry exists per block number at
// any quiescent point (spec.md §8.4).
func (c *Cache) Get(n uint32) (*Entry, error) {
	if e, ok := c.entries[n]; ok {
		return e, nil
	}
	buf := make([]byte, c.dev.BlockSize())
	if err := c.dev.ReadBlock(n, buf); err != nil {
		return nil, fmt.Errorf("buffer: get block %d: %w", n, err)
	}
	e := &Entry{Block: n, Data: buf}
	c.entries[n] = e
	return e, nil
}

// Put writes e back to the device and removes it from the cache.
func (c *Cache) Put(e *Entry) error {
	if e == nil {
		return fmt.Errorf("buffer: Put nil entry: %w", kerr.ErrInvalid)
	}
	if _, ok := c.entries[e.Block]; !ok {
		return fmt.Errorf("buffer: Put block %d not cached: %w", e.Block, kerr.ErrInvalid)
	}
	if err := c.dev.WriteBlock(e.Block, e.Data); err != nil {
		return fmt.Errorf("buffer: put block %d: %w", e.Block, err)
	}
	delete(c.entries, e.Block)
	return nil
}

// Flush writes back and drains every cached entry, the step a filesystem
// unmount must perform before touching the superblock one last time
// (spec.md §5: "the buffer cache must be flushed before a filesystem
// unmount").
func (c *Cache) Flush() error {
	for _, e := range c.entries {
		if err := c.dev.WriteBlock(e.Block, e.Data); err != nil {
			return fmt.Errorf("buffer: flush block %d: %w", e.Block, err)
		}
		delete(c.entries, e.Block)
	}
	return nil
}

// Len reports how many entries are currently cached, for the uniqueness
// invariant test and for diagnostics.
func (c *Cache) Len() int { return len(c.entries) }
