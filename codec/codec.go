// Package codec encodes the structured parts of shard state: manifests,
// pending document batches and snapshot tables.
//
// A manifest records the name of the codec that wrote the shard, and the
// shard is always decoded with that codec. Changing Default only affects
// shards created afterwards.
package codec

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	gojson "github.com/goccy/go-json"
)

// Codec encodes and decodes values. Implementations must be safe for
// concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// GoJSON is JSON through github.com/goccy/go-json.
type GoJSON struct{}

func (GoJSON) Marshal(v any) ([]byte, error)      { return gojson.Marshal(v) }
func (GoJSON) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }
func (GoJSON) Name() string                       { return "go-json" }

// JSON is JSON through encoding/json. Its output decodes with GoJSON and
// vice versa.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSON) Name() string                       { return "json" }

// Default encodes newly created shards.
var Default Codec = GoJSON{}

var (
	mu       sync.RWMutex
	registry = map[string]Codec{
		"go-json": GoJSON{},
		"json":    JSON{},
	}
)

// Register makes c resolvable by name. It panics if the name is taken.
func Register(c Codec) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := registry[c.Name()]; dup {
		panic(fmt.Sprintf("codec: %q registered twice", c.Name()))
	}
	registry[c.Name()] = c
}

// ByName returns the codec a manifest names.
func ByName(name string) (Codec, bool) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := registry[name]
	return c, ok
}

// Names lists the registered codecs, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	return slices.Sorted(maps.Keys(registry))
}
