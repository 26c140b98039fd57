// Package vfs dispatches a process's file descriptors to either the
// on-disk filesystem (internal/fs) or the device registry
// (internal/device), per spec.md §4.7: "file_read and file_write on a
// descriptor whose inode is a device consult the device table (by major
// number) and invoke the registered read/write. For regular files, the
// block-granular copy loop is used directly."
package vfs

import (
	"fmt"

	"tile/internal/bitfield"
	"tile/internal/device"
	"tile/internal/fs"
	"tile/internal/kerr"
	"tile/internal/proc"
)

// Dispatcher wires a process's descriptor table to the filesystem and
// device registry it was opened against.
type Dispatcher struct {
	FS      *fs.Filesystem
	Devices *device.Registry
}

// New returns a Dispatcher over fsys and devices.
func New(fsys *fs.Filesystem, devices *device.Registry) *Dispatcher {
	return &Dispatcher{FS: fsys, Devices: devices}
}

// Open resolves path, installs it in the lowest free descriptor slot of
// p's table (>= 3, spec.md §4.7), and returns that index.
func (d *Dispatcher) Open(p *proc.Process, path string, flags fs.OpenFlags) (int, error) {
	fi, err := d.FS.Open(path, p.Cwd, p.Uid, flags)
	if err != nil {
		return -1, err
	}
	fd, err := p.LowestFreeDescriptor()
	if err != nil {
		return -1, err
	}
	p.Descriptors[fd] = &proc.Descriptor{Flags: flags, Inode: fi}
	return fd, nil
}

// Creat creates path as a new regular file with access and opens a
// descriptor for it (spec.md §4.6 "for creat, also open a descriptor").
func (d *Dispatcher) Creat(p *proc.Process, path string, access bitfield.InodeAccess) (int, error) {
	fi, err := d.FS.Creat(path, p.Cwd, p.Uid, access)
	if err != nil {
		return -1, err
	}
	fd, err := p.LowestFreeDescriptor()
	if err != nil {
		return -1, err
	}
	p.Descriptors[fd] = &proc.Descriptor{Flags: fs.OWrOnly, Inode: fi}
	return fd, nil
}

// Close releases descriptor fd, leaving the slot free for reuse.
func (d *Dispatcher) Close(p *proc.Process, fd int) error {
	if _, err := descriptorAt(p, fd); err != nil {
		return err
	}
	p.Descriptors[fd] = nil
	return nil
}

// Read dispatches descriptor fd's inode to either the device registry or
// the filesystem's block-granular Read, advancing the descriptor's
// offset by the bytes actually transferred.
func (d *Dispatcher) Read(p *proc.Process, fd int, buf []byte) (int, error) {
	desc, err := descriptorAt(p, fd)
	if err != nil {
		return 0, err
	}
	if desc.Inode.Type == fs.FTCharDevice || desc.Inode.Type == fs.FTBlockDevice {
		return d.readDevice(desc, buf)
	}
	n, err := d.FS.Read(desc.Inode, desc.Offset, buf, len(buf))
	desc.Offset += uint64(n)
	return n, err
}

// Write is Read's mirror image for the write path.
func (d *Dispatcher) Write(p *proc.Process, fd int, buf []byte) (int, error) {
	desc, err := descriptorAt(p, fd)
	if err != nil {
		return 0, err
	}
	if desc.Inode.Type == fs.FTCharDevice || desc.Inode.Type == fs.FTBlockDevice {
		return d.writeDevice(desc, buf)
	}
	n, err := d.FS.Write(desc.Inode, desc.Offset, buf, len(buf))
	desc.Offset += uint64(n)
	return n, err
}

// Seek sets descriptor fd's offset.
func (d *Dispatcher) Seek(p *proc.Process, fd int, offset uint64) (uint64, error) {
	desc, err := descriptorAt(p, fd)
	if err != nil {
		return 0, err
	}
	desc.Offset = offset
	return offset, nil
}

// Chdir resolves path and, on success, switches p's current directory to
// it, releasing the old one (spec.md §4.6 "chdir releases the old
// current-directory inode and switches to the new one" — in this Go port
// there is no refcounted in-core inode to release, so "release" reduces
// to simply no longer referencing the old cwd number).
func (d *Dispatcher) Chdir(p *proc.Process, path string) error {
	fi, err := d.FS.NameToFile(path, p.Cwd, p.Uid)
	if err != nil {
		return err
	}
	if fi.Type != fs.FTDirectory {
		return fmt.Errorf("vfs: Chdir %q: %w", path, kerr.ErrInvalid)
	}
	if !fs.Access(fi, p.Uid, fs.XOK) {
		return fmt.Errorf("vfs: Chdir %q: %w", path, kerr.ErrPermission)
	}
	p.Cwd = fi.Num
	return nil
}

func (d *Dispatcher) readDevice(desc *proc.Descriptor, buf []byte) (int, error) {
	major, minor := desc.Inode.DeviceNumber()
	ops, err := d.Devices.Char(major, minor)
	if err != nil {
		return 0, err
	}
	return ops.Read(buf)
}

func (d *Dispatcher) writeDevice(desc *proc.Descriptor, buf []byte) (int, error) {
	major, minor := desc.Inode.DeviceNumber()
	ops, err := d.Devices.Char(major, minor)
	if err != nil {
		return 0, err
	}
	return ops.Write(buf)
}

func descriptorAt(p *proc.Process, fd int) (*proc.Descriptor, error) {
	if fd < 0 || fd >= proc.MaxDescriptors || p.Descriptors[fd] == nil {
		return nil, fmt.Errorf("vfs: descriptor %d: %w", fd, kerr.ErrInvalid)
	}
	return p.Descriptors[fd], nil
}
