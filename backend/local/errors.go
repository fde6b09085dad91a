package local

import (
	"context"
	"errors"

	"github.com/hupe1980/shardex/blobstore"
	"github.com/hupe1980/shardex/internal/compress"
	"github.com/hupe1980/shardex/manifest"
	"github.com/hupe1980/shardex/shard"
)

var errReadOnly = shard.Errorf(shard.ErrInvalidOperation, "shard is read-only")

// translateError maps storage errors onto shard error kinds.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case shard.KindOf(err) != nil:
		return err
	case errors.Is(err, manifest.ErrNoManifest):
		return shard.Wrap(shard.ErrDatabaseOpening, err)
	case errors.Is(err, manifest.ErrUnsupportedVersion):
		return shard.Wrap(shard.ErrDatabaseVersion, err)
	case errors.Is(err, manifest.ErrCorrupt), errors.Is(err, compress.ErrCorrupt):
		return shard.Wrap(shard.ErrDatabaseCorrupt, err)
	case errors.Is(err, blobstore.ErrConflict):
		return shard.Wrap(shard.ErrDatabaseModified, err)
	case errors.Is(err, blobstore.ErrLocked):
		return shard.Wrap(shard.ErrDatabaseLock, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return shard.Wrap(shard.ErrDatabaseGeneric, err)
	}
}
