package local

import (
	"log/slog"

	"github.com/hupe1980/shardex/codec"
	"github.com/hupe1980/shardex/engine"
	"github.com/hupe1980/shardex/internal/compress"
	"github.com/hupe1980/shardex/resource"
)

// DefaultCompactionThreshold is the number of segments that triggers a
// compaction into a new base snapshot.
const DefaultCompactionThreshold = 8

type options struct {
	name        string
	codec       codec.Codec
	compression compress.Type
	policy      engine.CompactionPolicy
	logger      *slog.Logger
	metrics     engine.MetricsObserver
	resources   *resource.Controller
}

// Option configures a local shard.
type Option func(*options)

// WithName sets the shard description.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithCodec sets the codec used for new blobs. Existing shards keep the
// codec recorded in their manifest.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithCompression sets the block compression used for new blobs.
func WithCompression(t compress.Type) Option {
	return func(o *options) {
		o.compression = t
	}
}

// WithCompactionThreshold compacts once a shard holds n segments.
func WithCompactionThreshold(n int) Option {
	return func(o *options) {
		o.policy = &engine.SegmentCountPolicy{Threshold: n}
	}
}

// WithCompactionPolicy sets the compaction policy.
func WithCompactionPolicy(p engine.CompactionPolicy) Option {
	return func(o *options) {
		if p != nil {
			o.policy = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsObserver sets the observer notified of compactions.
func WithMetricsObserver(m engine.MetricsObserver) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithResourceController bounds compaction concurrency and blob IO.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

func applyOptions(opts []Option) options {
	o := options{
		name:        "local",
		codec:       codec.Default,
		compression: compress.None,
		policy:      &engine.SegmentCountPolicy{Threshold: DefaultCompactionThreshold},
		logger:      slog.New(slog.DiscardHandler),
		metrics:     &engine.NoopMetricsObserver{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
