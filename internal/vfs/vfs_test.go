package vfs

import (
	"bytes"
	"testing"

	"tile/internal/bitfield"
	"tile/internal/block"
	"tile/internal/device"
	"tile/internal/fs"
	"tile/internal/klog"
	"tile/internal/proc"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *fs.Filesystem) {
	t.Helper()
	dev := block.NewMem(fs.BlockSize, 512)
	fsys, err := fs.Format(dev, 4, klog.Discard())
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	return New(fsys, device.New()), fsys
}

func bareProcess(cwd, uid uint32) *proc.Process {
	return &proc.Process{Cwd: cwd, Uid: uid}
}

func TestOpenReadWriteRoundTrip(t *testing.T) {
	d, fsys := newTestDispatcher(t)
	access := bitfield.InodeAccess{OwnerRead: true, OwnerWrite: true}
	p := bareProcess(fsys.RootInode(), 0)

	fd, err := d.Creat(p, "/greeting", access)
	if err != nil {
		t.Fatalf("Creat() error = %v", err)
	}
	if fd < 3 {
		t.Errorf("Creat() fd = %d, want >= 3 (reserved slots)", fd)
	}

	if _, err := d.Write(p, fd, []byte("hello")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := d.Close(p, fd); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	fd2, err := d.Open(p, "/greeting", fs.ORdOnly)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	buf := make([]byte, 5)
	n, err := d.Read(p, fd2, buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != 5 || !bytes.Equal(buf, []byte("hello")) {
		t.Errorf("Read() = %q, want %q", buf[:n], "hello")
	}
}

func TestReadAdvancesOffsetAcrossCalls(t *testing.T) {
	d, fsys := newTestDispatcher(t)
	access := bitfield.InodeAccess{OwnerRead: true, OwnerWrite: true}
	p := bareProcess(fsys.RootInode(), 0)

	fd, err := d.Creat(p, "/data", access)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Write(p, fd, []byte("abcdef")); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Seek(p, fd, 0); err != nil {
		t.Fatal(err)
	}

	first := make([]byte, 3)
	if _, err := d.Read(p, fd, first); err != nil {
		t.Fatal(err)
	}
	second := make([]byte, 3)
	if _, err := d.Read(p, fd, second); err != nil {
		t.Fatal(err)
	}
	if string(first) != "abc" || string(second) != "def" {
		t.Errorf("got %q, %q, want %q, %q", first, second, "abc", "def")
	}
}

func TestCloseInvalidatesDescriptor(t *testing.T) {
	d, fsys := newTestDispatcher(t)
	access := bitfield.InodeAccess{OwnerRead: true, OwnerWrite: true}
	p := bareProcess(fsys.RootInode(), 0)

	fd, err := d.Creat(p, "/f", access)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Close(p, fd); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Read(p, fd, make([]byte, 1)); err == nil {
		t.Error("expected error reading a closed descriptor")
	}
}

func TestChdirRejectsNonDirectory(t *testing.T) {
	d, fsys := newTestDispatcher(t)
	access := bitfield.InodeAccess{OwnerRead: true, OwnerWrite: true}
	p := bareProcess(fsys.RootInode(), 0)

	if _, err := d.Creat(p, "/plain", access); err != nil {
		t.Fatal(err)
	}
	if err := d.Chdir(p, "/plain"); err == nil {
		t.Error("expected error changing into a regular file")
	}
}

func TestReadWriteDispatchesCharDevice(t *testing.T) {
	d, fsys := newTestDispatcher(t)
	fake := &fakeChar{}
	if err := d.Devices.RegisterChar(device.ConsoleMajor, device.ConsoleMinor, device.ConsoleName, fake); err != nil {
		t.Fatal(err)
	}
	devAccess := bitfield.InodeAccess{OwnerRead: true, OwnerWrite: true}
	fi, err := fsys.MknodDevice("/dev_console", fsys.RootInode(), 0, fs.FTCharDevice, devAccess, 0, 0, device.ConsoleMajor, device.ConsoleMinor)
	if err != nil {
		t.Fatal(err)
	}
	_ = fi

	p := bareProcess(fsys.RootInode(), 0)
	fd, err := d.Open(p, "/dev_console", fs.ORdWr)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := d.Write(p, fd, []byte("hi")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if string(fake.written) != "hi" {
		t.Errorf("device got %q, want %q", fake.written, "hi")
	}

	fake.toRead = []byte("ok")
	buf := make([]byte, 2)
	if _, err := d.Read(p, fd, buf); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(buf) != "ok" {
		t.Errorf("Read() = %q, want %q", buf, "ok")
	}
}

type fakeChar struct {
	written []byte
	toRead  []byte
}

func (f *fakeChar) Read(buf []byte) (int, error) {
	n := copy(buf, f.toRead)
	return n, nil
}

func (f *fakeChar) Write(buf []byte) (int, error) {
	f.written = append(f.written, buf...)
	return len(buf), nil
}
