package fs

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// ErrInjected is returned by FaultyFS for faults without an Err.
var ErrInjected = errors.New("fs: injected fault")

// Op is a set of file operations a Fault breaks.
type Op uint8

const (
	OpWrite Op = 1 << iota
	OpSync
	OpClose
	OpRename // matched on the target name
	OpLink   // matched on the new name
	OpRemove
)

// Fault breaks Ops on files whose base name matches Pattern
// (filepath.Match syntax).
type Fault struct {
	Pattern string
	Ops     Op
	// AfterBytes lets this many bytes reach a file before OpWrite fails.
	AfterBytes int64
	// Times disarms the fault after that many failures; 0 never does.
	Times int
	Err   error
}

// FaultyFS wraps a FileSystem and fails operations matching injected
// faults. Faults are checked in injection order.
type FaultyFS struct {
	FS FileSystem

	mu       sync.Mutex
	faults   []*armed
	written  int64
	injected int
}

type armed struct {
	Fault
	left int // remaining failures, -1 for unlimited
}

// NewFaultyFS wraps inner, or Default when inner is nil.
func NewFaultyFS(inner FileSystem) *FaultyFS {
	if inner == nil {
		inner = Default
	}
	return &FaultyFS{FS: inner}
}

// Inject arms a fault.
func (f *FaultyFS) Inject(fault Fault) {
	left := fault.Times
	if left <= 0 {
		left = -1
	}
	f.mu.Lock()
	f.faults = append(f.faults, &armed{Fault: fault, left: left})
	f.mu.Unlock()
}

// Reset disarms every fault.
func (f *FaultyFS) Reset() {
	f.mu.Lock()
	f.faults = nil
	f.mu.Unlock()
}

// Written returns the bytes written through the wrapper.
func (f *FaultyFS) Written() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written
}

// Injected returns the number of failures injected so far.
func (f *FaultyFS) Injected() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.injected
}

// trip returns the error of the first live fault for op on name, consuming
// one of its failures. fileBytes is the number of bytes already written to
// the file plus the pending write.
func (f *FaultyFS) trip(op Op, name string, fileBytes int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	base := filepath.Base(name)
	for _, a := range f.faults {
		if a.Ops&op == 0 || a.left == 0 {
			continue
		}
		if ok, _ := filepath.Match(a.Pattern, base); !ok {
			continue
		}
		if op == OpWrite && fileBytes <= a.AfterBytes {
			continue
		}
		if a.left > 0 {
			a.left--
		}
		f.injected++
		if a.Err != nil {
			return a.Err
		}
		return ErrInjected
	}
	return nil
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fs: f, name: name}, nil
}

func (f *FaultyFS) Remove(name string) error {
	if err := f.trip(OpRemove, name, 0); err != nil {
		return err
	}
	return f.FS.Remove(name)
}

func (f *FaultyFS) Rename(oldpath, newpath string) error {
	if err := f.trip(OpRename, newpath, 0); err != nil {
		return err
	}
	return f.FS.Rename(oldpath, newpath)
}

func (f *FaultyFS) Link(oldname, newname string) error {
	if err := f.trip(OpLink, newname, 0); err != nil {
		return err
	}
	return f.FS.Link(oldname, newname)
}

func (f *FaultyFS) Stat(name string) (os.FileInfo, error)        { return f.FS.Stat(name) }
func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error { return f.FS.MkdirAll(path, perm) }
func (f *FaultyFS) ReadDir(name string) ([]os.DirEntry, error)   { return f.FS.ReadDir(name) }

type faultyFile struct {
	File
	fs      *FaultyFS
	name    string
	written int64
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if err := ff.fs.trip(OpWrite, ff.name, ff.written+int64(len(p))); err != nil {
		return 0, err
	}
	n, err := ff.File.Write(p)
	ff.written += int64(n)

	ff.fs.mu.Lock()
	ff.fs.written += int64(n)
	ff.fs.mu.Unlock()
	return n, err
}

func (ff *faultyFile) Sync() error {
	if err := ff.fs.trip(OpSync, ff.name, 0); err != nil {
		return err
	}
	return ff.File.Sync()
}

// Close always closes the underlying file, even when failing.
func (ff *faultyFile) Close() error {
	err := ff.fs.trip(OpClose, ff.name, 0)
	return errors.Join(err, ff.File.Close())
}
