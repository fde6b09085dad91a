package fs

import "errors"

// ErrLocked is returned by Lock when another process holds the lock.
var ErrLocked = errors.New("file lock held by another process")

// FileLock is an exclusive advisory lock on a file.
type FileLock struct {
	path    string
	release func() error
}

// Path returns the locked file.
func (l *FileLock) Path() string { return l.path }

// Unlock releases the lock. It is safe to call more than once.
func (l *FileLock) Unlock() error {
	if l == nil || l.release == nil {
		return nil
	}
	r := l.release
	l.release = nil
	return r()
}
