package engine

// SegmentStats describes one delta segment of a shard.
type SegmentStats struct {
	ID    uint64
	Ops   int
	Bytes int64
}

// CompactionPolicy decides whether a commit folds the base snapshot and
// all delta segments into a new base. segments includes the segment the
// commit is about to write.
type CompactionPolicy interface {
	ShouldCompact(baseBytes int64, segments []SegmentStats) bool
}

// SegmentCountPolicy compacts once a shard holds Threshold segments.
// A Threshold of 0 never compacts.
type SegmentCountPolicy struct {
	Threshold int
}

func (p *SegmentCountPolicy) ShouldCompact(_ int64, segments []SegmentStats) bool {
	return p.Threshold > 0 && len(segments) >= p.Threshold
}

// SizeRatioPolicy compacts when the segments add up to Ratio times the
// base, so replaying deltas on open stays proportional to the snapshot.
// Segments below MinBytes in total never trigger it. MaxSegments, when
// set, compacts regardless of size.
type SizeRatioPolicy struct {
	Ratio       float64
	MinBytes    int64
	MaxSegments int
}

func (p *SizeRatioPolicy) ShouldCompact(baseBytes int64, segments []SegmentStats) bool {
	if p.MaxSegments > 0 && len(segments) >= p.MaxSegments {
		return true
	}
	if p.Ratio <= 0 || len(segments) < 2 {
		return false
	}
	var total int64
	for _, s := range segments {
		total += s.Bytes
	}
	if total < p.MinBytes {
		return false
	}
	return float64(total) >= p.Ratio*float64(baseBytes)
}
