package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hupe1980/shardex/internal/fs"
)

const tmpSuffix = ".tmp"

// LockName is the conventional writer lock name. LocalStore.List hides it.
const LockName = "LOCK"

// LocalStore keeps blobs as files below a root directory.
//
// A blob is written to name+".tmp", synced and renamed into place, so a
// crash never leaves a torn blob under its final name. Leftover temporaries
// are invisible to List.
type LocalStore struct {
	root string
	fsys fs.FileSystem
}

var (
	_ BlobStore        = (*LocalStore)(nil)
	_ ConditionalStore = (*LocalStore)(nil)
	_ Locker           = (*LocalStore)(nil)
	_ Aborter          = (*localWriter)(nil)
)

// LocalOption configures a LocalStore.
type LocalOption func(*LocalStore)

// WithFileSystem overrides the file system (fault injection in tests).
func WithFileSystem(fsys fs.FileSystem) LocalOption {
	return func(s *LocalStore) {
		s.fsys = fsys
	}
}

// NewLocalStore returns a store rooted at root. The directory is created on
// the first write.
func NewLocalStore(root string, opts ...LocalOption) *LocalStore {
	s := &LocalStore{root: root, fsys: fs.Default}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the directory the store is rooted at.
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

func (s *LocalStore) Open(_ context.Context, name string) (Blob, error) {
	f, err := s.fsys.OpenFile(s.path(name), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &localBlob{f: f, size: info.Size()}, nil
}

// Create returns a blob that appears under name once closed.
func (s *LocalStore) Create(_ context.Context, name string) (WritableBlob, error) {
	p := s.path(name)
	if err := s.fsys.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	f, err := s.fsys.OpenFile(p+tmpSuffix, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &localWriter{fsys: s.fsys, f: f, path: p}, nil
}

func (s *LocalStore) Put(_ context.Context, name string, data []byte) error {
	p := s.path(name)
	if err := s.fsys.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return fs.WriteFileAtomic(s.fsys, p, data, 0o644)
}

// PutIfAbsent links the blob into place, failing with ErrConflict when
// name exists.
func (s *LocalStore) PutIfAbsent(_ context.Context, name string, data []byte) error {
	p := s.path(name)
	if err := s.fsys.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	err := fs.WriteFileExclusive(s.fsys, p, data, 0o644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w: %s", ErrConflict, name)
	}
	return err
}

func (s *LocalStore) Delete(_ context.Context, name string) error {
	err := s.fsys.Remove(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// List returns the blobs below prefix sorted by name. Names use forward
// slashes on every platform.
func (s *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	var names []string
	if err := s.walk("", prefix, &names); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}

func (s *LocalStore) walk(dir, prefix string, out *[]string) error {
	entries, err := s.fsys.ReadDir(s.path(dir))
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := path.Join(dir, e.Name())
		if e.IsDir() {
			if strings.HasPrefix(name, prefix) || strings.HasPrefix(prefix, name+"/") {
				if err := s.walk(name, prefix, out); err != nil {
					return err
				}
			}
			continue
		}
		if strings.HasSuffix(name, tmpSuffix) || path.Base(name) == LockName {
			continue
		}
		if strings.HasPrefix(name, prefix) {
			*out = append(*out, name)
		}
	}
	return nil
}

// Lock takes an OS file lock on name below the root.
func (s *LocalStore) Lock(_ context.Context, name string) (func() error, error) {
	if err := s.fsys.MkdirAll(s.root, 0o755); err != nil {
		return nil, err
	}
	l, err := fs.Lock(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrLocked) {
			return nil, ErrLocked
		}
		return nil, err
	}
	return l.Unlock, nil
}

type localBlob struct {
	f    fs.File
	size int64
}

func (b *localBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 || off >= b.size {
		return 0, io.EOF
	}
	return b.f.ReadAt(p, off)
}

func (b *localBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	if off < 0 || off >= b.size {
		return nil, io.EOF
	}
	length = min(length, b.size-off)
	return io.NopCloser(io.NewSectionReader(b.f, off, length)), nil
}

func (b *localBlob) Close() error { return b.f.Close() }

func (b *localBlob) Size() int64 { return b.size }

// localWriter writes path+".tmp" until Close publishes it.
type localWriter struct {
	fsys fs.FileSystem
	f    fs.File
	path string
	done bool
}

func (w *localWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, errWriteAfterClose
	}
	return w.f.Write(p)
}

func (w *localWriter) Sync() error {
	if w.done {
		return nil
	}
	return w.f.Sync()
}

// Close syncs the temporary, renames it into place and syncs the directory.
// On failure the temporary is removed. Later calls are no-ops.
func (w *localWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true

	tmp := w.path + tmpSuffix
	err := w.f.Sync()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = w.fsys.Rename(tmp, w.path)
	}
	if err != nil {
		_ = w.fsys.Remove(tmp)
		return err
	}
	return fs.SyncDir(w.fsys, filepath.Dir(w.path))
}

// Abort drops the temporary. Nothing becomes visible.
func (w *localWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	err := w.f.Close()
	if rerr := w.fsys.Remove(w.path + tmpSuffix); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
		err = errors.Join(err, rerr)
	}
	return err
}
