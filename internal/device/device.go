// Package device is the (major, minor)-keyed character/block device
// table (spec.md §4.7, §6): a numeric registry consulted by file
// descriptor dispatch, plus the name index original_source/tile/kernel/
// device.c keeps alongside it so /dev lookups by path work the same way
// a real device.c's flat (major, minor, name) array would.
package device

import (
	"fmt"

	"tile/internal/kerr"
)

// Kind distinguishes character devices (byte-stream, e.g. the console)
// from block devices (fixed-size sector, e.g. the MMC card).
type Kind int

const (
	Char Kind = iota
	Block
)

// ConsoleMajor and ConsoleMinor are the fixed device numbers for the
// console, spec.md §6: "The console is major 5, minor 1, type character".
const (
	ConsoleMajor = 5
	ConsoleMinor = 1
	ConsoleName  = "console"
)

// CharOps is the operation set a character device must provide.
type CharOps interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
}

// BlockOps is the operation set a block device must provide, matching
// internal/block.Device so the same backing implementation can be
// registered directly.
type BlockOps interface {
	ReadBlock(n uint32, buf []byte) error
	WriteBlock(n uint32, buf []byte) error
}

type entry struct {
	major, minor uint32
	name         string
	kind         Kind
	char         CharOps
	blk          BlockOps
}

// Registry is the device table: entries are addressable by (major,
// minor) number, the way a file descriptor pointing at a device inode is
// dispatched, and by name, the way /dev path lookups resolve.
type Registry struct {
	byNumber map[[2]uint32]*entry
	byName   map[string]*entry
}

// New returns an empty device registry.
func New() *Registry {
	return &Registry{byNumber: map[[2]uint32]*entry{}, byName: map[string]*entry{}}
}

// RegisterChar adds a character device under (major, minor) and name.
func (r *Registry) RegisterChar(major, minor uint32, name string, ops CharOps) error {
	return r.register(&entry{major: major, minor: minor, name: name, kind: Char, char: ops})
}

// RegisterBlock adds a block device under (major, minor) and name.
func (r *Registry) RegisterBlock(major, minor uint32, name string, ops BlockOps) error {
	return r.register(&entry{major: major, minor: minor, name: name, kind: Block, blk: ops})
}

func (r *Registry) register(e *entry) error {
	key := [2]uint32{e.major, e.minor}
	if _, ok := r.byNumber[key]; ok {
		return fmt.Errorf("device: (%d,%d) already registered: %w", e.major, e.minor, kerr.ErrExists)
	}
	if _, ok := r.byName[e.name]; ok {
		return fmt.Errorf("device: name %q already registered: %w", e.name, kerr.ErrExists)
	}
	r.byNumber[key] = e
	r.byName[e.name] = e
	return nil
}

// Char looks up a character device by (major, minor).
func (r *Registry) Char(major, minor uint32) (CharOps, error) {
	e, ok := r.byNumber[[2]uint32{major, minor}]
	if !ok || e.kind != Char {
		return nil, fmt.Errorf("device: char (%d,%d): %w", major, minor, kerr.ErrNotFound)
	}
	return e.char, nil
}

// Block looks up a block device by (major, minor).
func (r *Registry) Block(major, minor uint32) (BlockOps, error) {
	e, ok := r.byNumber[[2]uint32{major, minor}]
	if !ok || e.kind != Block {
		return nil, fmt.Errorf("device: block (%d,%d): %w", major, minor, kerr.ErrNotFound)
	}
	return e.blk, nil
}

// Lookup resolves a registered device by its /dev name, returning its
// (major, minor) pair.
func (r *Registry) Lookup(name string) (major, minor uint32, err error) {
	e, ok := r.byName[name]
	if !ok {
		return 0, 0, fmt.Errorf("device: name %q: %w", name, kerr.ErrNotFound)
	}
	return e.major, e.minor, nil
}
