// Package manifest tracks the committed revision of a local shard.
//
// A revision is described by a MANIFEST-nnnnnn.json blob. The CURRENT blob
// names the live manifest; replacing CURRENT is the commit point, so a
// reader sees either the previous revision or the new one, never a mix.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/shardex/blobstore"
	"github.com/hupe1980/shardex/codec"
)

const (
	ManifestFileName = "MANIFEST"
	CurrentFileName  = "CURRENT"
	CurrentVersion   = 1
)

var (
	// ErrNoManifest is returned by Load when no revision was ever committed.
	ErrNoManifest = errors.New("manifest: no CURRENT revision")
	// ErrUnsupportedVersion is returned for manifests written by a newer format.
	ErrUnsupportedVersion = errors.New("manifest: unsupported version")
	// ErrCorrupt is returned when CURRENT or the manifest cannot be decoded.
	ErrCorrupt = errors.New("manifest: corrupt")
)

// Manifest describes the state of a shard at a specific revision.
type Manifest struct {
	Version int    `json:"version"`
	ID      uint64 `json:"id"`
	UUID    string `json:"uuid"`

	// Base is the full snapshot blob the segments apply on top of ("" for none).
	Base      string        `json:"base,omitempty"`
	BaseCRC   uint32        `json:"base_crc32c,omitempty"`
	BaseBytes int64         `json:"base_bytes,omitempty"`
	Segments  []SegmentInfo `json:"segments,omitempty"`

	// NextDocID is the durable allocator counter.
	NextDocID uint64 `json:"next_docid"`
	DocCount  uint64 `json:"doc_count"`

	Codec       string `json:"codec"`
	Compression string `json:"compression"`
}

// SegmentInfo describes one committed batch blob.
type SegmentInfo struct {
	ID    uint64 `json:"id"`
	Path  string `json:"path"`
	Ops   int    `json:"ops"`
	Bytes int64  `json:"bytes"`
	CRC   uint32 `json:"crc32c,omitempty"` // CRC32-C of the encoded blob
}

// Clone returns a deep copy.
func (m *Manifest) Clone() *Manifest {
	c := *m
	c.Segments = append([]SegmentInfo(nil), m.Segments...)
	return &c
}

// Blobs returns every blob the manifest references.
func (m *Manifest) Blobs() []string {
	var out []string
	if m.Base != "" {
		out = append(out, m.Base)
	}
	for _, s := range m.Segments {
		out = append(out, s.Path)
	}
	return out
}

// Name returns the blob name of the manifest for revision id.
func Name(id uint64) string {
	return fmt.Sprintf("%s-%06d.json", ManifestFileName, id)
}

// Store manages the manifest blobs and atomic updates.
type Store struct {
	blobs blobstore.BlobStore
	codec codec.Codec
	mu    sync.Mutex
}

// NewStore creates a new manifest store.
func NewStore(blobs blobstore.BlobStore) *Store {
	return &Store{
		blobs: blobs,
		codec: codec.Default,
	}
}

// Current returns the manifest name CURRENT points at.
func (s *Store) Current(ctx context.Context) (string, error) {
	content, err := blobstore.ReadAll(ctx, s.blobs, CurrentFileName)
	if errors.Is(err, blobstore.ErrNotFound) {
		return "", ErrNoManifest
	}
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(string(content))
	if !strings.HasPrefix(name, ManifestFileName+"-") {
		return "", fmt.Errorf("%w: CURRENT names %q", ErrCorrupt, name)
	}
	return name, nil
}

// Exists reports whether a revision was ever committed.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	_, err := s.Current(ctx)
	if errors.Is(err, ErrNoManifest) {
		return false, nil
	}
	return err == nil, err
}

// Load loads the current manifest.
func (s *Store) Load(ctx context.Context) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	data, err := blobstore.ReadAll(ctx, s.blobs, name)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := s.codec.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	if m.Version > CurrentVersion || m.Version <= 0 {
		return nil, fmt.Errorf("%w: %d (expected %d)", ErrUnsupportedVersion, m.Version, CurrentVersion)
	}
	return &m, nil
}

// Save atomically publishes m as the next revision. It bumps m.ID.
//
// The manifest blob is written create-only where the store supports it, so
// two writers racing for the same revision fail with blobstore.ErrConflict
// instead of overwriting each other.
func (s *Store) Save(ctx context.Context, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.Version = CurrentVersion
	m.ID++

	name := Name(m.ID)
	data, err := s.codec.Marshal(m)
	if err != nil {
		m.ID--
		return err
	}

	if cs, ok := s.blobs.(blobstore.ConditionalStore); ok {
		err = cs.PutIfAbsent(ctx, name, data)
	} else {
		err = s.blobs.Put(ctx, name, data)
	}
	if err != nil {
		m.ID--
		return err
	}

	if err := s.blobs.Put(ctx, CurrentFileName, []byte(name)); err != nil {
		m.ID--
		_ = s.blobs.Delete(ctx, name)
		return err
	}
	return nil
}
