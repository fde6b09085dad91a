package shard

import (
	"errors"
	"fmt"
)

// Kind is a sentinel error identifying a class of failure. Kinds nest: every
// database-error kind also matches ErrDatabase under errors.Is.
type Kind struct {
	name   string
	parent *Kind
}

func (k *Kind) Error() string { return k.name }

// Unwrap returns the parent kind, if any.
func (k *Kind) Unwrap() error {
	if k.parent == nil {
		return nil
	}
	return k.parent
}

func newKind(name string, parent *Kind) *Kind {
	return &Kind{name: name, parent: parent}
}

var (
	// ErrInvalidArgument reports malformed caller input.
	ErrInvalidArgument = newKind("invalid argument", nil)
	// ErrInvalidOperation reports a call made in a state that forbids it.
	ErrInvalidOperation = newKind("invalid operation", nil)
	// ErrUnimplemented reports a capability the shard type does not support.
	ErrUnimplemented = newKind("unimplemented", nil)
	// ErrDocNotFound reports that a requested docid does not exist.
	ErrDocNotFound = newKind("document not found", nil)
	// ErrResourceExhausted reports that a finite resource (such as the docid
	// space) has been used up.
	ErrResourceExhausted = newKind("resource exhausted", nil)

	// ErrDatabase is the parent of all database-error kinds.
	ErrDatabase = newKind("database error", nil)
	// ErrDatabaseOpening reports that a path or backend cannot be opened.
	ErrDatabaseOpening = newKind("database opening error", ErrDatabase)
	// ErrDatabaseVersion reports an incompatible on-disk format version.
	ErrDatabaseVersion = newKind("database version error", ErrDatabase)
	// ErrDatabaseCorrupt reports a structural inconsistency.
	ErrDatabaseCorrupt = newKind("database corrupt", ErrDatabase)
	// ErrDatabaseLock reports that the exclusive writer lock is held elsewhere.
	ErrDatabaseLock = newKind("database lock error", ErrDatabase)
	// ErrDatabaseModified reports a stale snapshot; recover with Reopen.
	ErrDatabaseModified = newKind("database modified", ErrDatabase)
	// ErrDatabaseGeneric reports any other backend or I/O failure.
	ErrDatabaseGeneric = newKind("database error", ErrDatabase)
)

// ErrDatabaseClosed is returned by operations on a closed handle.
var ErrDatabaseClosed = fmt.Errorf("%w: database closed", ErrDatabaseGeneric)

var kinds = []*Kind{
	ErrInvalidArgument,
	ErrInvalidOperation,
	ErrUnimplemented,
	ErrDocNotFound,
	ErrResourceExhausted,
	ErrDatabaseOpening,
	ErrDatabaseVersion,
	ErrDatabaseCorrupt,
	ErrDatabaseLock,
	ErrDatabaseModified,
	ErrDatabaseGeneric,
}

// KindOf returns the most specific kind err belongs to, or nil.
func KindOf(err error) *Kind {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	if errors.Is(err, ErrDatabase) {
		return ErrDatabase
	}
	return nil
}

// Errorf wraps a formatted message with kind.
func Errorf(kind *Kind, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Wrap attaches kind to err unless err already carries a kind.
func Wrap(kind *Kind, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// OpError records the operation and shard that produced an error.
type OpError struct {
	Op    string
	Shard string
	Err   error
}

func (e *OpError) Error() string {
	if e.Shard == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " [" + e.Shard + "]: " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }
