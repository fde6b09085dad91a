package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/hupe1980/shardex/blobstore"
)

// DefaultLeaseTTL is the lifetime of a writer lease between renewals.
const DefaultLeaseTTL = 30 * time.Second

// Store implements blobstore.BlobStore on one MinIO bucket below a key
// prefix.
type Store struct {
	api      objectAPI
	bucket   string
	prefix   string
	leaseTTL time.Duration
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLeaseTTL sets the writer lease lifetime. Leases are renewed every
// third of it.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.leaseTTL = ttl
		}
	}
}

// NewStore creates a MinIO blob store. rootPrefix is prepended to every key
// (e.g. "indexes/books/").
func NewStore(client *minio.Client, bucket, rootPrefix string, opts ...Option) *Store {
	return newStore(clientAPI{client: client, bucket: bucket}, bucket, rootPrefix, opts...)
}

func newStore(api objectAPI, bucket, rootPrefix string, opts ...Option) *Store {
	s := &Store{
		api:      api,
		bucket:   bucket,
		prefix:   rootPrefix,
		leaseTTL: DefaultLeaseTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Open stats the object and returns a handle pinned to its ETag.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.key(name)
	etag, size, err := s.api.stat(ctx, key)
	if err != nil {
		return nil, mapError(err)
	}
	return &object{api: s.api, key: key, etag: etag, size: size}, nil
}

// Put writes a blob in one request.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.api.put(ctx, s.key(name), bytes.NewReader(data), int64(len(data)), precondition{})
	return mapError(err)
}

// PutIfAbsent writes a blob unless name exists, failing with
// blobstore.ErrConflict otherwise.
func (s *Store) PutIfAbsent(ctx context.Context, name string, data []byte) error {
	_, err := s.api.put(ctx, s.key(name), bytes.NewReader(data), int64(len(data)), precondition{absent: true})
	return mapError(err)
}

// Create streams writes into a background upload. The object appears on
// Close.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	pr, pw := io.Pipe()
	u := &upload{pw: pw, done: make(chan error, 1)}

	key := s.key(name)
	go func() {
		_, err := s.api.put(ctx, key, pr, -1, precondition{})
		_ = pr.CloseWithError(err)
		u.done <- mapError(err)
	}()
	return u, nil
}

// Delete removes a blob. Missing blobs are not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := mapError(s.api.remove(ctx, s.key(name)))
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil
	}
	return err
}

// List returns the names below prefix, relative to the store root, in
// lexical order. Lease objects are hidden.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for key, err := range s.api.list(ctx, s.key(prefix)) {
		if err != nil {
			return nil, err
		}
		name := strings.TrimPrefix(strings.TrimPrefix(key, s.prefix), "/")
		if name == "" || path.Base(name) == blobstore.LockName {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Ping checks that the bucket exists and is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.api.bucketExists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("minio: bucket %q does not exist", s.bucket)
	}
	return nil
}

// mapError translates missing-object and precondition responses into
// blobstore sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return blobstore.ErrNotFound
	case "PreconditionFailed":
		return fmt.Errorf("%w: %v", blobstore.ErrConflict, err)
	}
	return err
}

// object reads ranges of one object version.
type object struct {
	api  objectAPI
	key  string
	etag string
	size int64
}

func (o *object) Size() int64  { return o.size }
func (o *object) Close() error { return nil }

func (o *object) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off < 0 || off >= o.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	want := min(int64(len(p)), o.size-off)

	r, err := o.api.get(ctx, o.key, o.etag, off, off+want-1)
	if err != nil {
		return 0, mapError(err)
	}
	defer r.Close()

	n, err := io.ReadFull(r, p[:want])
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		return n, io.EOF
	case err != nil:
		return n, mapError(err)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (o *object) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off < 0 || off >= o.size {
		return nil, io.EOF
	}
	r, err := o.api.get(ctx, o.key, o.etag, off, off+min(length, o.size-off)-1)
	if err != nil {
		return nil, mapError(err)
	}
	return r, nil
}

// upload is the writer side of a streaming put.
type upload struct {
	pw     *io.PipeWriter
	done   chan error
	once   sync.Once
	result error
}

func (u *upload) Write(p []byte) (int, error) { return u.pw.Write(p) }

// Sync is a no-op; the object is committed by Close.
func (u *upload) Sync() error { return nil }

func (u *upload) Close() error {
	u.once.Do(func() {
		_ = u.pw.Close()
		u.result = <-u.done
	})
	return u.result
}

// Abort cancels the upload; nothing becomes visible.
func (u *upload) Abort() error {
	u.once.Do(func() {
		_ = u.pw.CloseWithError(context.Canceled)
		<-u.done
	})
	return nil
}

var (
	_ blobstore.BlobStore        = (*Store)(nil)
	_ blobstore.ConditionalStore = (*Store)(nil)
	_ blobstore.Locker           = (*Store)(nil)
	_ blobstore.Pinger           = (*Store)(nil)
)
