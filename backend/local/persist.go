package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/shardex/blobstore"
	"github.com/hupe1980/shardex/codec"
	"github.com/hupe1980/shardex/internal/compress"
	"github.com/hupe1980/shardex/internal/hash"
	"github.com/hupe1980/shardex/manifest"
	"github.com/hupe1980/shardex/resource"
	"github.com/hupe1980/shardex/shard"
	"github.com/hupe1980/shardex/spelling"
)

func segmentName(rev uint64) string { return fmt.Sprintf("seg-%06d.blk", rev) }
func baseName(rev uint64) string    { return fmt.Sprintf("base-%06d.blk", rev) }

// format is the encoding recorded in a manifest.
type format struct {
	codec codec.Codec
	comp  compress.Type
}

func formatOf(m *manifest.Manifest) (format, error) {
	c, ok := codec.ByName(m.Codec)
	if !ok {
		return format{}, shard.Errorf(shard.ErrDatabaseVersion, "unknown codec %q", m.Codec)
	}
	t, err := compress.ParseType(m.Compression)
	if err != nil {
		return format{}, shard.Wrap(shard.ErrDatabaseVersion, err)
	}
	return format{codec: c, comp: t}, nil
}

func (f format) encode(v any) ([]byte, error) {
	raw, err := f.codec.Marshal(v)
	if err != nil {
		return nil, err
	}
	return compress.Encode(raw, f.comp)
}

func (f format) decode(name string, data []byte, v any) error {
	raw, err := compress.Decode(data, f.comp)
	if err != nil {
		return shard.Errorf(shard.ErrDatabaseCorrupt, "%s: %v", name, err)
	}
	if err := f.codec.Unmarshal(raw, v); err != nil {
		return shard.Errorf(shard.ErrDatabaseCorrupt, "%s: %v", name, err)
	}
	return nil
}

// writeBlob streams data into a new blob, charging the IO budget.
func writeBlob(ctx context.Context, store blobstore.BlobStore, rc *resource.Controller, name string, data []byte) error {
	wb, err := store.Create(ctx, name)
	if err != nil {
		return err
	}
	w := rc.Writer(ctx, wb)
	if _, err = io.Copy(w, bytes.NewReader(data)); err == nil {
		err = wb.Sync()
	}
	if err != nil {
		discard(ctx, store, wb, name)
		return err
	}
	return wb.Close()
}

// discard drops a failed write. Uploads that can be aborted never appear.
func discard(ctx context.Context, store blobstore.BlobStore, wb blobstore.WritableBlob, name string) {
	if a, ok := wb.(blobstore.Aborter); ok {
		_ = a.Abort()
		return
	}
	_ = wb.Close()
	_ = store.Delete(ctx, name)
}

// loader reads the blobs of one manifest.
type loader struct {
	store     blobstore.BlobStore
	manifests *manifest.Store
	m         *manifest.Manifest
	f         format
}

func newLoader(store blobstore.BlobStore, manifests *manifest.Store, m *manifest.Manifest) (*loader, error) {
	f, err := formatOf(m)
	if err != nil {
		return nil, err
	}
	return &loader{store: store, manifests: manifests, m: m, f: f}, nil
}

// read loads and decodes blob name. A non-zero crc is verified against the
// encoded bytes.
func (l *loader) read(ctx context.Context, name string, crc uint32, v any) error {
	data, err := blobstore.ReadAll(ctx, l.store, name)
	if errors.Is(err, blobstore.ErrNotFound) {
		// A blob referenced by our manifest is gone: either another writer
		// committed (and compacted) since we loaded it, or the store is
		// damaged.
		if cur, cerr := l.manifests.Current(ctx); cerr == nil && cur != manifest.Name(l.m.ID) {
			return shard.Errorf(shard.ErrDatabaseModified, "%s vanished, revision %s is current", name, cur)
		}
		return shard.Errorf(shard.ErrDatabaseCorrupt, "missing blob %s", name)
	}
	if err != nil {
		return err
	}
	if crc != 0 && hash.CRC32C(data) != crc {
		return shard.Errorf(shard.ErrDatabaseCorrupt, "%s: checksum mismatch", name)
	}
	return l.f.decode(name, data, v)
}

// base builds the state of the manifest's base snapshot.
func (l *loader) base(ctx context.Context) (*state, error) {
	st := newState(l.m.UUID)
	if l.m.Base == "" {
		return st, nil
	}

	var snap snapshot
	if err := l.read(ctx, l.m.Base, l.m.BaseCRC, &snap); err != nil {
		return nil, err
	}

	b := newBuilder(st)
	for _, e := range snap.Docs {
		if e.ID == 0 || e.Doc == nil {
			return nil, shard.Errorf(shard.ErrDatabaseCorrupt, "%s: invalid document %d", l.m.Base, e.ID)
		}
		b.addDoc(e.ID, e.Doc.document())
	}
	b.cloneAux()
	for _, p := range snap.Metadata {
		if err := b.st.meta.Set(string(p.Key), string(p.Value)); err != nil {
			return nil, shard.Wrap(shard.ErrDatabaseCorrupt, err)
		}
	}
	for _, ws := range snap.Synonyms {
		for _, syn := range ws.Synonyms {
			b.st.syn.Add(string(ws.Term), string(syn))
		}
	}
	b.st.spell = spelling.FromEntries(snap.spellings())
	if snap.NextDocID > b.st.nextDocID {
		b.st.nextDocID = snap.NextDocID
	}
	return b.build(0), nil
}

// segments replays the manifest's segments starting at index from onto st.
func (l *loader) segments(ctx context.Context, st *state, from int) (*state, error) {
	if from >= len(l.m.Segments) {
		return st, nil
	}
	b := newBuilder(st)
	for _, seg := range l.m.Segments[from:] {
		var wb wireBatch
		if err := l.read(ctx, seg.Path, seg.CRC, &wb); err != nil {
			return nil, err
		}
		if err := b.apply(wb.batch()); err != nil {
			return nil, shard.Errorf(shard.ErrDatabaseCorrupt, "%s: %v", seg.Path, err)
		}
	}
	return b.build(st.rev), nil
}

// load builds the full state of the manifest.
func (l *loader) load(ctx context.Context) (*state, error) {
	st, err := l.base(ctx)
	if err != nil {
		return nil, err
	}
	st, err = l.segments(ctx, st, 0)
	if err != nil {
		return nil, err
	}
	return l.finish(st), nil
}

func (l *loader) finish(st *state) *state {
	if l.m.NextDocID > st.nextDocID {
		st.nextDocID = l.m.NextDocID
	}
	st.rev = l.m.ID
	st.uuid = l.m.UUID
	return st
}
