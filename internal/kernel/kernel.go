// Package kernel wires every subsystem singleton into one context value,
// per spec.md §9's design note ("pass a kernel context value through"
// rather than the original's scattered globals): the frame allocator,
// paging engine, filesystem, device registry, VFS dispatcher, syscall
// table, scheduler, and console line discipline all live here, built in
// the boot order spec.md §2 lists: "boot → bootstrap allocator → frame
// allocator → page-table engine → enable MMU → buffer cache →
// filesystem mount → first process → scheduler loop."
package kernel

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"tile/internal/bitfield"
	"tile/internal/block"
	"tile/internal/device"
	"tile/internal/fs"
	"tile/internal/gic"
	"tile/internal/kerr"
	"tile/internal/paging"
	"tile/internal/pmm"
	"tile/internal/proc"
	"tile/internal/trap"
	"tile/internal/tty"
	"tile/internal/vfs"
)

// Kernel is the single context value every subsystem hangs off of.
type Kernel struct {
	Log *logrus.Logger

	Frames *pmm.Allocator
	Paging *paging.Engine

	FS      *fs.Filesystem
	Devices *device.Registry
	VFS     *vfs.Dispatcher

	Syscalls  *trap.Table
	DataAbort *trap.DataAbortHandler

	Scheduler *proc.Scheduler
	GIC       gic.Controller
	Console   *tty.Discipline

	userSplit int
}

// Config bundles the boot-time parameters New needs: how much RAM to
// register with the frame allocator, where the filesystem image lives,
// how many inode blocks it reserves, and which raw byte stream backs the
// console.
type Config struct {
	RAMBase       uint64
	RAMSize       uint64
	Disk          block.Device
	FileInfosSize uint32
	FormatDisk    bool // true for a fresh image (cmd/mkfs), false to mount an existing one
	UserSplit     int
	Console       tty.Line // nil means "no console wired" (e.g. a headless mkfs run)
	Interrupts    gic.Controller
}

// consoleAccess is the permission mode /dev/console is created with:
// world read/write, matching a real console's accessibility.
var consoleAccess = bitfield.InodeAccess{
	OwnerRead: true, OwnerWrite: true,
	GroupRead: true, GroupWrite: true,
	OtherRead: true, OtherWrite: true,
}

// devDirAccess is the permission mode the /dev directory is created
// with: owner full access, group/other read+execute (list only).
var devDirAccess = bitfield.InodeAccess{
	OwnerRead: true, OwnerWrite: true, OwnerExec: true,
	GroupRead: true, GroupExec: true,
	OtherRead: true, OtherExec: true,
}

// New brings the kernel up to "first process can be created" in the
// order spec.md §2 describes.
func New(cfg Config, log *logrus.Logger) (*Kernel, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	frames := pmm.New()
	if err := frames.AddGroup(cfg.RAMBase, cfg.RAMSize); err != nil {
		return nil, fmt.Errorf("kernel: registering RAM: %w", err)
	}
	engine := paging.NewEngine(frames)

	var fsys *fs.Filesystem
	var err error
	if cfg.FormatDisk {
		fsys, err = fs.Format(cfg.Disk, cfg.FileInfosSize, log)
	} else {
		fsys, err = fs.Mount(cfg.Disk, log)
	}
	if err != nil {
		return nil, fmt.Errorf("kernel: filesystem: %w", err)
	}

	devices := device.New()
	var console *tty.Discipline
	if cfg.Console != nil {
		console = tty.New(cfg.Console)
		if err := devices.RegisterChar(device.ConsoleMajor, device.ConsoleMinor, device.ConsoleName, console); err != nil {
			return nil, fmt.Errorf("kernel: registering console: %w", err)
		}
		if _, err := fsys.Mknod("/dev", fsys.RootInode(), 0, fs.FTDirectory, devDirAccess, 0, 0); err != nil && !errors.Is(err, kerr.ErrExists) {
			return nil, fmt.Errorf("kernel: creating /dev: %w", err)
		}
		_, err := fsys.MknodDevice("/dev/console", fsys.RootInode(), 0, fs.FTCharDevice, consoleAccess, 0, 0, device.ConsoleMajor, device.ConsoleMinor)
		if err != nil && !errors.Is(err, kerr.ErrExists) {
			return nil, fmt.Errorf("kernel: creating /dev/console: %w", err)
		}
	}

	dispatcher := vfs.New(fsys, devices)
	k := &Kernel{
		Log:       log,
		Frames:    frames,
		Paging:    engine,
		FS:        fsys,
		Devices:   devices,
		VFS:       dispatcher,
		Syscalls:  trap.NewTable(dispatcher),
		DataAbort: trap.NewDataAbortHandler(frames, engine),
		Scheduler: proc.NewScheduler(nil),
		GIC:       cfg.Interrupts,
		Console:   console,
		userSplit: cfg.UserSplit,
	}
	return k, nil
}

// NewProcess allocates a process via internal/proc and adds it to the
// scheduler's ready list (spec.md §4.9 "Create").
func (k *Kernel) NewProcess(id, uid uint32) (*proc.Process, error) {
	p, err := proc.New(id, uid, k.Paging, k.userSplit)
	if err != nil {
		return nil, fmt.Errorf("kernel: NewProcess %d: %w", id, err)
	}
	k.Scheduler.Add(p)
	return p, nil
}

// HandleIRQ services one pending interrupt from the GIC: the timer line
// ticks the scheduler, anything else is acknowledged and ended without
// further action (spec.md §1 lists the timer and UART as the only named
// IRQ sources; UART IRQ servicing is folded into the console device's own
// polling read rather than a push path here). Schedule() runs after
// acknowledgment, matching spec.md §4.9's "the IRQ return path calls
// schedule()".
func (k *Kernel) HandleIRQ(timerID uint32) {
	if k.GIC == nil {
		return
	}
	id, ok := k.GIC.Ack()
	if !ok {
		return
	}
	if id == timerID {
		k.Scheduler.Tick()
	}
	k.GIC.EOI(id)
	k.Scheduler.Schedule()
}
