package fs

import (
	"fmt"

	"tile/internal/kerr"
)

func errNotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("fs: "+format+": %w", append(args, kerr.ErrNotFound)...)
}

func errPermissionf(format string, args ...interface{}) error {
	return fmt.Errorf("fs: "+format+": %w", append(args, kerr.ErrPermission)...)
}

func errInvalidf(format string, args ...interface{}) error {
	return fmt.Errorf("fs: "+format+": %w", append(args, kerr.ErrInvalid)...)
}

func errNoSpacef(format string, args ...interface{}) error {
	return fmt.Errorf("fs: "+format+": %w", append(args, kerr.ErrNoSpace)...)
}

func errExistsf(format string, args ...interface{}) error {
	return fmt.Errorf("fs: "+format+": %w", append(args, kerr.ErrExists)...)
}
