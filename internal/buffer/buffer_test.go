package buffer

import (
	"bytes"
	"testing"

	"tile/internal/block"
)

func TestGetReadsThroughOnMiss(t *testing.T) {
	dev := block.NewMem(512, 4)
	seed := bytes.Repeat([]byte{0x9}, 512)
	if err := dev.WriteBlock(1, seed); err != nil {
		t.Fatal(err)
	}

	c := New(dev)
	e, err := c.Get(1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(e.Data, seed) {
		t.Error("Get() did not read through to the device on a miss")
	}
}

func TestGetReturnsSameEntryOnRepeat(t *testing.T) {
	dev := block.NewMem(512, 4)
	c := New(dev)

	e1, err := c.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	e2, err := c.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	if e1 != e2 {
		t.Error("Get() should return the same Entry for a block already cached")
	}
}

func TestUniquenessInvariant(t *testing.T) {
	dev := block.NewMem(512, 8)
	c := New(dev)

	for _, n := range []uint32{0, 1, 2, 0, 1} {
		if _, err := c.Get(n); err != nil {
			t.Fatal(err)
		}
	}
	if c.Len() != 3 {
		t.Fatalf("expected exactly 3 distinct cached blocks, got %d", c.Len())
	}
}

func TestPutWritesBackAndRemoves(t *testing.T) {
	dev := block.NewMem(512, 2)
	c := New(dev)

	e, err := c.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	copy(e.Data, bytes.Repeat([]byte{0xFF}, 512))

	if err := c.Put(e); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if c.Len() != 0 {
		t.Error("Put() should remove the entry from the cache")
	}

	out := make([]byte, 512)
	if err := dev.ReadBlock(0, out); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, bytes.Repeat([]byte{0xFF}, 512)) {
		t.Error("Put() should have written the modified data back to the device")
	}
}

func TestPutUnknownEntryFails(t *testing.T) {
	c := New(block.NewMem(512, 2))
	if err := c.Put(&Entry{Block: 1, Data: make([]byte, 512)}); err == nil {
		t.Fatal("expected error putting an entry never returned by Get")
	}
}

func TestFlushDrainsAndWritesBack(t *testing.T) {
	dev := block.NewMem(512, 4)
	c := New(dev)

	for i := uint32(0); i < 3; i++ {
		e, err := c.Get(i)
		if err != nil {
			t.Fatal(err)
		}
		e.Data[0] = byte(i + 1)
	}

	if err := c.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if c.Len() != 0 {
		t.Error("Flush() should drain every entry")
	}

	for i := uint32(0); i < 3; i++ {
		out := make([]byte, 512)
		if err := dev.ReadBlock(i, out); err != nil {
			t.Fatal(err)
		}
		if out[0] != byte(i+1) {
			t.Errorf("block %d not flushed correctly: got %d", i, out[0])
		}
	}
}
