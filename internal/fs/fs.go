package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// File is an open file.
type File interface {
	io.ReadWriteCloser
	io.ReaderAt
	Sync() error
	Stat() (os.FileInfo, error)
}

// FileSystem is the set of file operations the local blob store performs.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	Remove(name string) error
	Rename(oldpath, newpath string) error
	// Link creates newname as a hard link to oldname. It fails with an
	// os.ErrExist error when newname exists.
	Link(oldname, newname string) error
	Stat(name string) (os.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error
	ReadDir(name string) ([]os.DirEntry, error)
}

// LocalFS is the operating system's file system.
type LocalFS struct{}

func (LocalFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(name, flag, perm)
}

func (LocalFS) Remove(name string) error                     { return os.Remove(name) }
func (LocalFS) Rename(oldpath, newpath string) error         { return os.Rename(oldpath, newpath) }
func (LocalFS) Link(oldname, newname string) error           { return os.Link(oldname, newname) }
func (LocalFS) Stat(name string) (os.FileInfo, error)        { return os.Stat(name) }
func (LocalFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (LocalFS) ReadDir(name string) ([]os.DirEntry, error)   { return os.ReadDir(name) }

// Default is the file system used unless a store is given another one.
var Default FileSystem = LocalFS{}

// WriteFileAtomic writes data to path through a synced temporary file that
// is renamed into place, then syncs the parent directory. Readers observe
// either the old content or the new one.
func WriteFileAtomic(fsys FileSystem, path string, data []byte, perm os.FileMode) error {
	tmp, err := writeTemp(fsys, path, data, perm)
	if err != nil {
		return err
	}
	if err := fsys.Rename(tmp, path); err != nil {
		_ = fsys.Remove(tmp)
		return err
	}
	return SyncDir(fsys, filepath.Dir(path))
}

// WriteFileExclusive is WriteFileAtomic that refuses to replace an existing
// file. The file is linked into place, so it appears complete or not at
// all; an existing path yields an os.ErrExist error.
func WriteFileExclusive(fsys FileSystem, path string, data []byte, perm os.FileMode) error {
	tmp, err := writeTemp(fsys, path, data, perm)
	if err != nil {
		return err
	}
	err = fsys.Link(tmp, path)
	_ = fsys.Remove(tmp)
	if err != nil {
		return err
	}
	return SyncDir(fsys, filepath.Dir(path))
}

// writeTemp writes and syncs a temporary next to path and returns its name.
// Every call gets its own temporary, so concurrent writers never share one.
func writeTemp(fsys FileSystem, path string, data []byte, perm os.FileMode) (string, error) {
	tmp := path + "." + uuid.NewString() + ".tmp"
	f, err := fsys.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return "", err
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = fsys.Remove(tmp)
		return "", err
	}
	return tmp, nil
}

// ReadFile reads the whole file at path.
func ReadFile(fsys FileSystem, path string) ([]byte, error) {
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// SyncDir fsyncs a directory so a preceding rename or link is durable.
func SyncDir(fsys FileSystem, dir string) error {
	f, err := fsys.OpenFile(dir, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	err = f.Sync()
	return errors.Join(err, f.Close())
}
