package auxindex

import (
	"maps"
	"slices"
	"strings"

	"github.com/hupe1980/shardex/shard"
)

// Metadata is a string key/value store. The empty key is reserved and an
// empty value means "unset".
type Metadata struct {
	m map[string]string
}

// NewMetadata returns an empty store.
func NewMetadata() *Metadata {
	return &Metadata{m: make(map[string]string)}
}

// Get returns the value of key, or "".
func (s *Metadata) Get(key string) string {
	if s == nil {
		return ""
	}
	return s.m[key]
}

// Set stores value under key. An empty value removes the entry.
func (s *Metadata) Set(key, value string) error {
	if key == "" {
		return shard.Errorf(shard.ErrInvalidArgument, "empty metadata key")
	}
	if value == "" {
		delete(s.m, key)
		return nil
	}
	s.m[key] = value
	return nil
}

// Keys returns the keys starting with prefix in byte order.
func (s *Metadata) Keys(prefix string) []string {
	if s == nil {
		return nil
	}
	var keys []string
	for k := range s.m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Len returns the number of entries.
func (s *Metadata) Len() int {
	if s == nil {
		return 0
	}
	return len(s.m)
}

// Entries returns a copy of the underlying map.
func (s *Metadata) Entries() map[string]string {
	if s == nil {
		return map[string]string{}
	}
	return maps.Clone(s.m)
}

// Clone returns an independent copy.
func (s *Metadata) Clone() *Metadata {
	if s == nil {
		return NewMetadata()
	}
	return &Metadata{m: maps.Clone(s.m)}
}

// MetadataFrom builds a store from entries, skipping empty keys and values.
func MetadataFrom(entries map[string]string) *Metadata {
	s := NewMetadata()
	for k, v := range entries {
		if k != "" && v != "" {
			s.m[k] = v
		}
	}
	return s
}
