package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// ErrConflict is returned when a conditional write loses against a
// concurrent writer (for example a manifest version that already exists).
var ErrConflict = errors.New("blobstore: conflicting write")

// ErrLocked is returned by Locker.Lock when another writer holds the lock.
var ErrLocked = errors.New("blobstore: lock held by another writer")

// BlobStore is an abstraction for accessing data blobs (segments, manifests).
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Create creates a blob for streaming writes. The blob becomes visible on Close.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Put writes a blob atomically.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the names of all blobs with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	io.Closer
	// ReadAt reads len(p) bytes at off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// ReadRange returns a reader over [off, off+length), clipped to the blob size.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
	// Size returns the size of the blob in bytes.
	Size() int64
}

// WritableBlob is a blob under construction.
type WritableBlob interface {
	io.WriteCloser
	// Sync flushes buffered data to durable storage where supported.
	Sync() error
}

// Aborter is implemented by writable blobs that can discard a partial
// upload. Abort leaves nothing visible; Close after Abort is a no-op.
type Aborter interface {
	Abort() error
}

// Locker is implemented by stores that can serialize writers.
//
// Lock acquires an exclusive lock on name without blocking; it fails with
// ErrLocked when the lock is held elsewhere. The returned release function
// gives the lock up.
type Locker interface {
	Lock(ctx context.Context, name string) (release func() error, err error)
}

// ConditionalStore is implemented by stores that support create-only writes.
//
// PutIfAbsent fails with ErrConflict when name already exists.
type ConditionalStore interface {
	PutIfAbsent(ctx context.Context, name string, data []byte) error
}

// Pinger is implemented by stores that can check connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadAll reads a whole blob.
func ReadAll(ctx context.Context, store BlobStore, name string) ([]byte, error) {
	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	size := b.Size()
	if size == 0 {
		return []byte{}, nil
	}
	r, err := b.ReadRange(ctx, 0, size)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
