package engine

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/hupe1980/shardex/resource"
)

const (
	// DefaultFlushThreshold is the number of pending document modifications
	// that triggers an automatic flush.
	DefaultFlushThreshold = 10000

	// FlushThresholdEnv overrides DefaultFlushThreshold.
	FlushThresholdEnv = "SHARDEX_FLUSH_THRESHOLD"
)

// FlushThresholdFromEnv reads FlushThresholdEnv. Missing, non-numeric and
// non-positive values yield DefaultFlushThreshold.
func FlushThresholdFromEnv() int {
	v, ok := os.LookupEnv(FlushThresholdEnv)
	if !ok {
		return DefaultFlushThreshold
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return DefaultFlushThreshold
	}
	return n
}

// Config configures a Writer.
type Config struct {
	// FlushThreshold is the auto-flush trigger. Zero reads the environment.
	FlushThreshold int
	Logger         *slog.Logger
	Metrics        MetricsObserver
	// Resources bounds the memory held by the pending batch. Nil means
	// unlimited.
	Resources *resource.Controller
}

func (c *Config) applyDefaults() {
	if c.FlushThreshold <= 0 {
		c.FlushThreshold = FlushThresholdFromEnv()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Metrics == nil {
		c.Metrics = &NoopMetricsObserver{}
	}
}
