package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardex/blobstore"
)

// fakeBucket is an in-memory objectAPI honouring preconditions.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	etags   map[string]string
	seq     int
	missing bool
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}, etags: map[string]string{}}
}

func (f *fakeBucket) stat(_ context.Context, key string) (string, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return "", 0, minio.ErrorResponse{Code: "NoSuchKey"}
	}
	return f.etags[key], int64(len(data)), nil
}

func (f *fakeBucket) get(_ context.Context, key, etag string, off, end int64) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, minio.ErrorResponse{Code: "NoSuchKey"}
	}
	if etag != "" && f.etags[key] != etag {
		return nil, minio.ErrorResponse{Code: "PreconditionFailed"}
	}
	end = min(end, int64(len(data))-1)
	return io.NopCloser(bytes.NewReader(data[off : end+1])), nil
}

func (f *fakeBucket) put(_ context.Context, key string, r io.Reader, _ int64, pre precondition) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	_, exists := f.objects[key]
	if pre.absent && exists {
		return "", minio.ErrorResponse{Code: "PreconditionFailed"}
	}
	if pre.etag != "" && (!exists || f.etags[key] != pre.etag) {
		return "", minio.ErrorResponse{Code: "PreconditionFailed"}
	}
	f.seq++
	f.objects[key] = data
	f.etags[key] = fmt.Sprintf("etag-%d", f.seq)
	return f.etags[key], nil
}

func (f *fakeBucket) remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	delete(f.etags, key)
	return nil
}

func (f *fakeBucket) list(_ context.Context, prefix string) iter.Seq2[string, error] {
	f.mu.Lock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	f.mu.Unlock()
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	return func(yield func(string, error) bool) {
		for _, k := range keys {
			if !yield(k, nil) {
				return
			}
		}
	}
}

func (f *fakeBucket) bucketExists(context.Context) (bool, error) {
	return !f.missing, nil
}

func (f *fakeBucket) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func TestStore_Blobs(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	store := newStore(bucket, "shards", "eu/")

	require.NoError(t, store.Put(ctx, "MANIFEST-000001.json", []byte(`{"id":1}`)))
	require.NoError(t, store.Put(ctx, "seg-000001.blk", []byte("hello minio world")))
	assert.True(t, bucket.has("eu/seg-000001.blk"))

	b, err := store.Open(ctx, "seg-000001.blk")
	require.NoError(t, err)
	assert.Equal(t, int64(17), b.Size())

	buf := make([]byte, 5)
	n, err := b.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "minio", string(buf))

	n, err = b.ReadAt(ctx, buf, 14)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "rld", string(buf[:n]))

	r, err := b.ReadRange(ctx, 12, 100)
	require.NoError(t, err)
	tail, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "world", string(tail))
	require.NoError(t, r.Close())
	require.NoError(t, b.Close())

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"MANIFEST-000001.json", "seg-000001.blk"}, names)

	require.NoError(t, store.Delete(ctx, "seg-000001.blk"))
	require.NoError(t, store.Delete(ctx, "seg-000001.blk"))
	_, err = store.Open(ctx, "seg-000001.blk")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestStore_ReplacedObjectConflicts(t *testing.T) {
	ctx := context.Background()
	store := newStore(newFakeBucket(), "shards", "")

	require.NoError(t, store.Put(ctx, "CURRENT", []byte("MANIFEST-000001.json")))
	b, err := store.Open(ctx, "CURRENT")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "CURRENT", []byte("MANIFEST-000002.json")))
	_, err = b.ReadAt(ctx, make([]byte, 4), 0)
	assert.ErrorIs(t, err, blobstore.ErrConflict)
}

func TestStore_PutIfAbsent(t *testing.T) {
	ctx := context.Background()
	store := newStore(newFakeBucket(), "shards", "")

	require.NoError(t, store.PutIfAbsent(ctx, "MANIFEST-000003.json", []byte("a")))
	err := store.PutIfAbsent(ctx, "MANIFEST-000003.json", []byte("b"))
	assert.ErrorIs(t, err, blobstore.ErrConflict)

	data, err := blobstore.ReadAll(ctx, store, "MANIFEST-000003.json")
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
}

func TestStore_CreateAndAbort(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	store := newStore(bucket, "shards", "")

	wb, err := store.Create(ctx, "seg-000002.blk")
	require.NoError(t, err)
	_, err = wb.Write([]byte("streamed data"))
	require.NoError(t, err)
	require.NoError(t, wb.Sync())
	require.NoError(t, wb.Close())
	require.NoError(t, wb.Close())

	data, err := blobstore.ReadAll(ctx, store, "seg-000002.blk")
	require.NoError(t, err)
	assert.Equal(t, "streamed data", string(data))

	wb, err = store.Create(ctx, "seg-000003.blk")
	require.NoError(t, err)
	_, err = wb.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, wb.(blobstore.Aborter).Abort())
	require.NoError(t, wb.Close())
	assert.False(t, bucket.has("seg-000003.blk"))
}

func TestStore_Ping(t *testing.T) {
	bucket := newFakeBucket()
	store := newStore(bucket, "shards", "")
	require.NoError(t, store.Ping(context.Background()))

	bucket.missing = true
	assert.ErrorContains(t, store.Ping(context.Background()), `bucket "shards" does not exist`)
}

func TestStore_Lock(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	a := newStore(bucket, "shards", "eu", WithLeaseTTL(time.Hour))
	b := newStore(bucket, "shards", "eu", WithLeaseTTL(time.Hour))

	release, err := a.Lock(ctx, blobstore.LockName)
	require.NoError(t, err)
	assert.True(t, bucket.has("eu/LOCK"))

	_, err = b.Lock(ctx, blobstore.LockName)
	require.ErrorIs(t, err, blobstore.ErrLocked)

	names, err := a.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, release())
	require.NoError(t, release())
	assert.False(t, bucket.has("eu/LOCK"))

	again, err := b.Lock(ctx, blobstore.LockName)
	require.NoError(t, err)
	require.NoError(t, again())
}

func TestStore_ExpiredLeaseTakenOver(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	a := newStore(bucket, "shards", "", WithLeaseTTL(time.Hour))
	b := newStore(bucket, "shards", "", WithLeaseTTL(time.Hour))

	stale, err := a.Lock(ctx, blobstore.LockName)
	require.NoError(t, err)

	b.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	fresh, err := b.Lock(ctx, blobstore.LockName)
	require.NoError(t, err)

	// The previous holder no longer owns the object and leaves it alone.
	require.NoError(t, stale())
	assert.True(t, bucket.has("LOCK"))
	require.NoError(t, fresh())
	assert.False(t, bucket.has("LOCK"))
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(minio.ErrorResponse{Code: "NotFound"}), blobstore.ErrNotFound)
	assert.ErrorIs(t, mapError(minio.ErrorResponse{Code: "PreconditionFailed"}), blobstore.ErrConflict)

	other := minio.ErrorResponse{Code: "SlowDown"}
	assert.Equal(t, other, mapError(other))
}

// TestStore_Integration runs against a live server named by MINIO_ENDPOINT.
func TestStore_Integration(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	ctx := context.Background()
	const bucket = "test-shardex"
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, fmt.Sprintf("it-%d/", time.Now().UnixNano()))
	require.NoError(t, store.Ping(ctx))

	require.NoError(t, store.PutIfAbsent(ctx, "MANIFEST-000001.json", []byte("{}")))
	require.ErrorIs(t, store.PutIfAbsent(ctx, "MANIFEST-000001.json", []byte("{}")), blobstore.ErrConflict)

	release, err := store.Lock(ctx, blobstore.LockName)
	require.NoError(t, err)
	_, err = store.Lock(ctx, blobstore.LockName)
	require.ErrorIs(t, err, blobstore.ErrLocked)
	require.NoError(t, release())

	require.NoError(t, store.Delete(ctx, "MANIFEST-000001.json"))
}
