package shardex

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hupe1980/shardex/backend/local"
	"github.com/hupe1980/shardex/blobstore"
	"github.com/hupe1980/shardex/codec"
	"github.com/hupe1980/shardex/engine"
	"github.com/hupe1980/shardex/internal/compress"
	"github.com/hupe1980/shardex/resource"
)

// Compression selects the block compression of newly written revision blobs.
type Compression = compress.Type

const (
	CompressionNone = compress.None
	CompressionLZ4  = compress.LZ4
	CompressionZSTD = compress.ZSTD
)

// StoreFactory resolves a shard location to the blob store holding it.
type StoreFactory func(ctx context.Context, path string) (blobstore.BlobStore, error)

// LocalStores resolves paths to directories on the local file system.
func LocalStores() StoreFactory {
	return func(_ context.Context, path string) (blobstore.BlobStore, error) {
		return blobstore.NewLocalStore(path), nil
	}
}

// MemoryStores returns a factory keeping one in-memory store per path for
// the lifetime of the factory. Handles opened through the same factory see
// each other's flushed writes.
func MemoryStores() StoreFactory {
	var mu sync.Mutex
	stores := make(map[string]*blobstore.MemoryStore)
	return func(_ context.Context, path string) (blobstore.BlobStore, error) {
		mu.Lock()
		defer mu.Unlock()
		s, ok := stores[path]
		if !ok {
			s = blobstore.NewMemoryStore()
			stores[path] = s
		}
		return s, nil
	}
}

type options struct {
	logger              *Logger
	metrics             MetricsCollector
	stores              StoreFactory
	flushThreshold      int
	compactionThreshold int
	compactionRatio     float64
	compression         Compression
	codec               codec.Codec
	resources           *resource.Controller
}

// Option configures how databases are opened.
type Option func(*options)

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := shardex.NewJSONLogger(slog.LevelInfo)
//	db, _ := shardex.Open(ctx, []string{"./idx"}, shardex.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for flushes,
// transactions and compactions. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &shardex.BasicMetricsCollector{}
//	wdb, _ := shardex.OpenWritable(ctx, "./idx", shard.CreateOrOpen, shardex.WithMetricsCollector(metrics))
//	// ... write ...
//	stats := metrics.GetStats()
//	fmt.Printf("Flushes: %d, ops: %d\n", stats.FlushCount, stats.FlushOps)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metrics = mc
	}
}

// WithBlobStore sets how shard paths are resolved to blob stores. The
// default treats paths as local directories.
func WithBlobStore(f StoreFactory) Option {
	return func(o *options) {
		o.stores = f
	}
}

// WithFlushThreshold sets the number of buffered document modifications
// that triggers an automatic flush. It takes precedence over the
// SHARDEX_FLUSH_THRESHOLD environment variable.
func WithFlushThreshold(n int) Option {
	return func(o *options) {
		o.flushThreshold = n
	}
}

// WithCompactionThreshold sets the segment count at which a commit folds
// the shard into a new base snapshot.
func WithCompactionThreshold(n int) Option {
	return func(o *options) {
		o.compactionThreshold = n
	}
}

// WithCompactionRatio also compacts once the delta segments reach ratio
// times the size of the base snapshot. The segment count threshold still
// applies.
func WithCompactionRatio(ratio float64) Option {
	return func(o *options) {
		o.compactionRatio = ratio
	}
}

// WithCompression configures the compression of newly written blobs.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithCodec configures the codec of newly written blobs.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithResourceController bounds pending-batch memory, background
// compaction and commit IO.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:              NoopLogger(),
		metrics:             NoopMetricsCollector{},
		stores:              LocalStores(),
		compactionThreshold: local.DefaultCompactionThreshold,
		compression:         CompressionNone,
		codec:               codec.Default,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metrics == nil {
		o.metrics = NoopMetricsCollector{}
	}
	if o.stores == nil {
		o.stores = LocalStores()
	}
	return o
}

// localOptions configures a local backend shard named name.
func (o options) localOptions(name string) []local.Option {
	opts := []local.Option{
		local.WithName(name),
		local.WithCodec(o.codec),
		local.WithCompression(o.compression),
		local.WithCompactionThreshold(o.compactionThreshold),
		local.WithLogger(o.logger.Logger),
		local.WithMetricsObserver(o.metrics),
		local.WithResourceController(o.resources),
	}
	if o.compactionRatio > 0 {
		opts = append(opts, local.WithCompactionPolicy(&engine.SizeRatioPolicy{
			Ratio:       o.compactionRatio,
			MaxSegments: o.compactionThreshold,
		}))
	}
	return opts
}
