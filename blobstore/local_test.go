package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardex/internal/fs"
)

func TestLocalStore_CreateAndRead(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root)
	ctx := context.Background()

	w, err := store.Create(ctx, "segments/seg-1.blk")
	require.NoError(t, err)
	_, err = io.WriteString(w, "postings:")
	require.NoError(t, err)
	_, err = io.WriteString(w, "alpha beta")
	require.NoError(t, err)

	// Invisible until closed.
	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, errWriteAfterClose)

	_, err = os.Stat(filepath.Join(root, "segments", "seg-1.blk"))
	require.NoError(t, err)

	b, err := store.Open(ctx, "segments/seg-1.blk")
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, int64(19), b.Size())

	buf := make([]byte, 5)
	n, err := b.ReadAt(ctx, buf, 9)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(buf[:n]))

	n, err = b.ReadAt(ctx, buf, 19)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestLocalStore_ReadRange(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "seg-2.blk", []byte("0123456789")))

	b, err := store.Open(ctx, "seg-2.blk")
	require.NoError(t, err)
	defer b.Close()

	tests := []struct {
		name     string
		off, len int64
		want     string
	}{
		{"whole", 0, 10, "0123456789"},
		{"middle", 3, 4, "3456"},
		{"clipped", 8, 5, "89"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := b.ReadRange(ctx, tt.off, tt.len)
			require.NoError(t, err)
			defer r.Close()
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}

	_, err = b.ReadRange(ctx, 10, 1)
	assert.ErrorIs(t, err, io.EOF)
}

func TestLocalStore_PutListDelete(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "segments/seg-1.blk", []byte("one")))
	require.NoError(t, store.Put(ctx, "CURRENT", []byte("1")))
	require.NoError(t, store.Put(ctx, "segments/seg-1.blk", []byte("two")))
	require.NoError(t, store.Put(ctx, "spelling/words.blk", []byte("w")))

	data, err := ReadAll(ctx, store, "segments/seg-1.blk")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	names, err := store.List(ctx, "segments/")
	require.NoError(t, err)
	assert.Equal(t, []string{"segments/seg-1.blk"}, names)

	names, err = store.List(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"segments/seg-1.blk", "spelling/words.blk"}, names)

	require.NoError(t, store.Delete(ctx, "CURRENT"))
	require.NoError(t, store.Delete(ctx, "CURRENT"))
	_, err = store.Open(ctx, "CURRENT")
	assert.ErrorIs(t, err, ErrNotFound)

	empty := NewLocalStore(filepath.Join(t.TempDir(), "absent"))
	names, err = empty.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalStore_Abort(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root)
	ctx := context.Background()

	w, err := store.Create(ctx, "seg-3.blk")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	a, ok := w.(Aborter)
	require.True(t, ok)
	require.NoError(t, a.Abort())
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "neither blob nor temporary remains")
}

func TestLocalStore_PutIfAbsent(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.PutIfAbsent(ctx, "manifests/manifest-1.json", []byte("a")))
	err := store.PutIfAbsent(ctx, "manifests/manifest-1.json", []byte("b"))
	require.ErrorIs(t, err, ErrConflict)

	data, err := ReadAll(ctx, store, "manifests/manifest-1.json")
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
}

func TestLocalStore_PutIfAbsentRace(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = store.PutIfAbsent(ctx, "manifest-7.json", []byte{byte('0' + i)})
		}()
	}
	wg.Wait()

	var won int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, ErrConflict)
	}
	assert.Equal(t, 1, won)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"manifest-7.json"}, names)
}

func TestLocalStore_Lock(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	release, err := store.Lock(ctx, LockName)
	require.NoError(t, err)

	_, err = store.Lock(ctx, LockName)
	require.ErrorIs(t, err, ErrLocked)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names, "the lock file is hidden")

	require.NoError(t, release())

	release, err = store.Lock(ctx, LockName)
	require.NoError(t, err)
	require.NoError(t, release())
}

func TestLocalStore_FailedSyncLeavesNoBlob(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	ffs.Inject(fs.Fault{Pattern: "seg-*", Ops: fs.OpSync})
	store := NewLocalStore(t.TempDir(), WithFileSystem(ffs))
	ctx := context.Background()

	err := store.Put(ctx, "seg-1.blk", []byte("payload"))
	require.ErrorIs(t, err, fs.ErrInjected)

	w, err := store.Create(ctx, "seg-2.blk")
	require.NoError(t, err)
	_, err = w.Write([]byte("payload"))
	require.NoError(t, err)
	require.ErrorIs(t, w.Close(), fs.ErrInjected)

	_, err = store.Open(ctx, "seg-1.blk")
	require.ErrorIs(t, err, ErrNotFound)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}
