package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
)

// errWriteAfterClose is returned by writes to a closed or aborted blob.
var errWriteAfterClose = errors.New("blobstore: write to closed blob")

// MemoryStore keeps blobs in process memory. Databases opened on the same
// MemoryStore share state, which makes it the store of the "memory" driver
// and of most tests.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	held  map[string]struct{}
}

// NewMemoryStore creates an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string][]byte),
		held:  make(map[string]struct{}),
	}
}

// Open returns a view of the stored bytes.
func (m *MemoryStore) Open(_ context.Context, name string) (Blob, error) {
	m.mu.RLock()
	data, ok := m.blobs[name]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	// Stored slices are replaced, never written, so the view stays valid.
	return NewBytesBlob(data), nil
}

// Create buffers writes; the blob appears on Close.
func (m *MemoryStore) Create(_ context.Context, name string) (WritableBlob, error) {
	return &memoryWriter{
		publish: func(data []byte) error {
			m.store(name, data)
			return nil
		},
	}, nil
}

// Put stores a copy of data.
func (m *MemoryStore) Put(_ context.Context, name string, data []byte) error {
	m.store(name, bytes.Clone(data))
	return nil
}

// PutIfAbsent implements ConditionalStore.
func (m *MemoryStore) PutIfAbsent(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blobs[name]; ok {
		return ErrConflict
	}
	m.blobs[name] = bytes.Clone(data)
	return nil
}

// Delete removes a blob.
func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	delete(m.blobs, name)
	m.mu.Unlock()
	return nil
}

// List returns the names with prefix in lexical order.
func (m *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	names := make([]string, 0, len(m.blobs))
	for name := range m.blobs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	m.mu.RUnlock()

	slices.Sort(names)
	return names, nil
}

// Lock implements Locker within the process.
func (m *MemoryStore) Lock(_ context.Context, name string) (func() error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[name]; ok {
		return nil, ErrLocked
	}
	m.held[name] = struct{}{}

	var once sync.Once
	return func() error {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, name)
			m.mu.Unlock()
		})
		return nil
	}, nil
}

// Size returns the total number of stored bytes.
func (m *MemoryStore) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, data := range m.blobs {
		n += int64(len(data))
	}
	return n
}

func (m *MemoryStore) store(name string, data []byte) {
	m.mu.Lock()
	m.blobs[name] = data
	m.mu.Unlock()
}

// NewBytesBlob returns a read-only Blob over data. The caller must not
// modify data afterwards.
func NewBytesBlob(data []byte) Blob {
	return bytesBlob(data)
}

type bytesBlob []byte

func (b bytesBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b bytesBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	if off < 0 || off >= int64(len(b)) {
		return nil, io.EOF
	}
	end := min(off+length, int64(len(b)))
	return io.NopCloser(bytes.NewReader(b[off:end])), nil
}

func (b bytesBlob) Size() int64  { return int64(len(b)) }
func (b bytesBlob) Close() error { return nil }

// memoryWriter hands its buffer to publish on the first Close.
type memoryWriter struct {
	buf     bytes.Buffer
	publish func([]byte) error
	closed  bool
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errWriteAfterClose
	}
	return w.buf.Write(p)
}

func (w *memoryWriter) Sync() error { return nil }

func (w *memoryWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.publish(bytes.Clone(w.buf.Bytes()))
}

var (
	_ BlobStore        = (*MemoryStore)(nil)
	_ ConditionalStore = (*MemoryStore)(nil)
	_ Locker           = (*MemoryStore)(nil)
)
