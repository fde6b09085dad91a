//go:build unix

package fs

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// Lock takes an exclusive, non-blocking flock on path, creating the file
// when needed. It fails with ErrLocked when the lock is held elsewhere.
func Lock(path string) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, err
	}
	return &FileLock{
		path: path,
		release: func() error {
			uerr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
			return errors.Join(uerr, f.Close())
		},
	}, nil
}
