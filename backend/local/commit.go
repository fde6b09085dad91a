package local

import (
	"context"
	"time"

	"github.com/hupe1980/shardex/engine"
	"github.com/hupe1980/shardex/internal/hash"
	"github.com/hupe1980/shardex/manifest"
	"github.com/hupe1980/shardex/shard"
)

// Commit applies b atomically. The batch is validated against the current
// snapshot first; only a fully applicable batch is written. The new
// manifest becoming CURRENT is the commit point.
func (s *Shard) Commit(ctx context.Context, b *shard.Batch) error {
	if !s.writable {
		return errReadOnly
	}
	if s.closed.Load() {
		return shard.ErrDatabaseClosed
	}
	if b == nil || b.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.cur.Load()
	bld := newBuilder(base)
	if err := bld.apply(b); err != nil {
		return err
	}
	rev := s.man.ID + 1
	next := bld.build(rev)

	nm := s.man.Clone()
	nm.NextDocID = next.nextDocID
	nm.DocCount = next.live.GetCardinality()
	// New blobs use the configured format; a changed format forces a new
	// base so that one manifest never mixes encodings.
	formatChanged := nm.Codec != s.opts.codec.Name() || nm.Compression != s.opts.compression.String()
	nm.Codec = s.opts.codec.Name()
	nm.Compression = s.opts.compression.String()
	f, err := formatOf(nm)
	if err != nil {
		return err
	}

	compact := formatChanged || s.shouldCompact(ctx, b)
	if compact {
		if done, ok := s.opts.resources.StartCompaction(); ok {
			defer done()
		} else {
			compact = formatChanged
		}
	}

	start := time.Now()
	var written string
	if compact {
		written = baseName(rev)
		data, err := f.encode(snapshotOf(next))
		if err != nil {
			return shard.Wrap(shard.ErrDatabaseGeneric, err)
		}
		if err := writeBlob(ctx, s.store, s.opts.resources, written, data); err != nil {
			return &shard.OpError{Op: "commit", Shard: s.opts.name, Err: translateError(err)}
		}
		nm.Base = written
		nm.BaseCRC = hash.CRC32C(data)
		nm.BaseBytes = int64(len(data))
		nm.Segments = nil
	} else {
		written = segmentName(rev)
		data, err := f.encode(toWireBatch(b))
		if err != nil {
			return shard.Wrap(shard.ErrDatabaseGeneric, err)
		}
		if err := writeBlob(ctx, s.store, s.opts.resources, written, data); err != nil {
			return &shard.OpError{Op: "commit", Shard: s.opts.name, Err: translateError(err)}
		}
		nm.Segments = append(nm.Segments, manifest.SegmentInfo{
			ID:    rev,
			Path:  written,
			Ops:   b.Len(),
			Bytes: int64(len(data)),
			CRC:   hash.CRC32C(data),
		})
	}

	if err := s.manifests.Save(ctx, nm); err != nil {
		_ = s.store.Delete(ctx, written)
		if compact {
			s.opts.metrics.OnCompaction(time.Since(start), len(s.man.Segments), int(nm.DocCount), err)
		}
		s.logger.ErrorContext(ctx, "commit failed", "revision", rev, "error", err)
		return &shard.OpError{Op: "commit", Shard: s.opts.name, Err: translateError(err)}
	}
	// Save assigned the revision; it matches rev unless the store moved on.
	next.rev = nm.ID

	old := s.man
	s.man = nm
	s.cur.Store(next)

	if compact {
		s.opts.metrics.OnCompaction(time.Since(start), len(old.Segments), int(nm.DocCount), nil)
		s.logger.DebugContext(ctx, "compacted",
			"revision", nm.ID,
			"segments", len(old.Segments),
			"docs", nm.DocCount,
		)
		s.removeBlobs(ctx, old)
	}
	return nil
}

// shouldCompact asks the policy whether the segments, including the one
// about to be written for b, should be folded into a new base.
func (s *Shard) shouldCompact(ctx context.Context, b *shard.Batch) bool {
	stats := make([]engine.SegmentStats, 0, len(s.man.Segments)+1)
	for _, seg := range s.man.Segments {
		stats = append(stats, engine.SegmentStats{ID: seg.ID, Ops: seg.Ops, Bytes: seg.Bytes})
	}
	stats = append(stats, engine.SegmentStats{ID: s.man.ID + 1, Ops: b.Len(), Bytes: b.ApproxBytes()})
	if !s.opts.policy.ShouldCompact(s.man.BaseBytes, stats) {
		return false
	}
	s.logger.DebugContext(ctx, "compaction triggered", "segments", len(stats), "base_bytes", s.man.BaseBytes)
	return true
}
