package shardex

import (
	"errors"
	"fmt"

	"github.com/hupe1980/shardex/blobstore"
	"github.com/hupe1980/shardex/shard"
)

// Error kinds. Use errors.Is to test for them; every database error also
// matches ErrDatabase.
var (
	ErrInvalidArgument   = shard.ErrInvalidArgument
	ErrInvalidOperation  = shard.ErrInvalidOperation
	ErrUnimplemented     = shard.ErrUnimplemented
	ErrDocNotFound       = shard.ErrDocNotFound
	ErrResourceExhausted = shard.ErrResourceExhausted

	ErrDatabase         = shard.ErrDatabase
	ErrDatabaseOpening  = shard.ErrDatabaseOpening
	ErrDatabaseVersion  = shard.ErrDatabaseVersion
	ErrDatabaseCorrupt  = shard.ErrDatabaseCorrupt
	ErrDatabaseLock     = shard.ErrDatabaseLock
	ErrDatabaseModified = shard.ErrDatabaseModified
	ErrDatabaseGeneric  = shard.ErrDatabaseGeneric

	// ErrDatabaseClosed is returned by every operation on a closed handle.
	ErrDatabaseClosed = shard.ErrDatabaseClosed
)

// OpError records the operation and shard that failed.
type OpError = shard.OpError

// KindOf returns the most specific error kind err belongs to, or nil.
func KindOf(err error) error {
	if k := shard.KindOf(err); k != nil {
		return k
	}
	return nil
}

// translateError gives backend errors that escaped the shard layer an
// error kind.
func translateError(err error) error {
	if err == nil || shard.KindOf(err) != nil {
		return err
	}

	if errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrDatabaseOpening, err)
	}
	if errors.Is(err, blobstore.ErrLocked) {
		return fmt.Errorf("%w: %w", ErrDatabaseLock, err)
	}
	if errors.Is(err, blobstore.ErrConflict) {
		return fmt.Errorf("%w: %w", ErrDatabaseModified, err)
	}
	return err
}
