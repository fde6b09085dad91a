package manifest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardex/blobstore"
)

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewLocalStore(t.TempDir())
	s := NewStore(blobs)

	_, err := s.Load(ctx)
	require.ErrorIs(t, err, ErrNoManifest)
	ok, err := s.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	m := &Manifest{UUID: "u-1", NextDocID: 1, Codec: "go-json", Compression: "zstd"}
	require.NoError(t, s.Save(ctx, m))
	assert.Equal(t, uint64(1), m.ID)

	m.Segments = append(m.Segments, SegmentInfo{ID: 2, Path: "seg-000002.blk", Ops: 3})
	m.NextDocID = 4
	require.NoError(t, s.Save(ctx, m))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.ID)
	assert.Equal(t, CurrentVersion, got.Version)
	assert.Equal(t, "u-1", got.UUID)
	assert.Equal(t, uint64(4), got.NextDocID)
	assert.Equal(t, []string{"seg-000002.blk"}, got.Blobs())

	cur, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, Name(2), cur)
}

func TestStore_Conflict(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()

	a := NewStore(blobs)
	b := NewStore(blobs)

	ma := &Manifest{}
	require.NoError(t, a.Save(ctx, ma))

	// b still believes revision 0 is current.
	mb := &Manifest{}
	err := b.Save(ctx, mb)
	require.ErrorIs(t, err, blobstore.ErrConflict)
	assert.Equal(t, uint64(0), mb.ID)
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	s := NewStore(blobs)

	require.NoError(t, blobs.Put(ctx, CurrentFileName, []byte("garbage")))
	_, err := s.Load(ctx)
	require.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, blobs.Put(ctx, CurrentFileName, []byte(Name(7))))
	require.NoError(t, blobs.Put(ctx, Name(7), []byte(`{"version":99,"id":7}`)))
	_, err = s.Load(ctx)
	require.ErrorIs(t, err, ErrUnsupportedVersion)

	require.NoError(t, blobs.Put(ctx, Name(7), []byte(`{not json`)))
	_, err = s.Load(ctx)
	require.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, blobs.Put(ctx, CurrentFileName, []byte(Name(8))))
	_, err = s.Load(ctx)
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}
