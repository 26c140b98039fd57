// Package kerr holds the sentinel errors shared across the kernel's
// subsystems. Every syscall eventually collapses one of these into a
// single bit of failure information (spec.md §7): the caller never learns
// more than "it failed".
package kerr

import "errors"

var (
	// ErrNotFound means a path, device, or cache lookup had no match.
	ErrNotFound = errors.New("not found")

	// ErrPermission means an access/owner/mode check rejected the operation.
	ErrPermission = errors.New("permission denied")

	// ErrNoSpace means an allocator (blocks, inodes, frames, descriptors)
	// had nothing left to hand out.
	ErrNoSpace = errors.New("no space left")

	// ErrBusy means a resource is already in use (e.g. a block already
	// cached under a different owner, a descriptor slot taken).
	ErrBusy = errors.New("resource busy")

	// ErrInvalid means an argument violated a structural invariant
	// (bad offset, bad size, not a directory, wrong device type).
	ErrInvalid = errors.New("invalid argument")

	// ErrExists means a create-style operation found something already there.
	ErrExists = errors.New("already exists")
)
