//go:build !unix

package fs

import (
	"errors"
	"os"
)

// Lock creates path exclusively and removes it on Unlock. A stale lock file
// left by a crashed process must be removed by hand.
func Lock(path string) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrLocked
		}
		return nil, err
	}
	return &FileLock{
		path: path,
		release: func() error {
			return errors.Join(f.Close(), os.Remove(path))
		},
	}, nil
}
