package merge

import (
	"github.com/hupe1980/shardex/model"
	"github.com/hupe1980/shardex/shard"
)

// Interleave maps between shard-local and combined docids for a view of
// Shards shards.
type Interleave struct {
	Shards int
}

// Combine returns the combined id of local id did in shard idx.
func (il Interleave) Combine(did model.DocID, idx int) (model.DocID, error) {
	if did == 0 {
		return 0, shard.Errorf(shard.ErrInvalidArgument, "docid 0 is invalid")
	}
	if idx < 0 || idx >= il.Shards {
		return 0, shard.Errorf(shard.ErrInvalidArgument, "shard index %d out of range [0,%d)", idx, il.Shards)
	}
	c := (uint64(did)-1)*uint64(il.Shards) + uint64(idx) + 1
	if c > uint64(model.MaxDocID) {
		return 0, shard.Errorf(shard.ErrDatabaseGeneric, "docid out of range: local %d in shard %d of %d", did, idx, il.Shards)
	}
	return model.DocID(c), nil
}

// Split returns the shard index and local id of combined id c.
// It reports false for c == 0 or an empty view.
func (il Interleave) Split(c model.DocID) (model.DocID, int, bool) {
	if c == 0 || il.Shards <= 0 {
		return 0, 0, false
	}
	n := uint64(c) - 1
	s := uint64(il.Shards)
	return model.DocID(n/s + 1), int(n % s), true
}
