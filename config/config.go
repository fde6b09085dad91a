// Package config loads shardex configuration from YAML files.
//
// Values of the form ${VAR} or ${VAR:-default} are substituted from the
// process environment before parsing, so credentials can stay out of the
// file:
//
//	storage:
//	  driver: s3
//	  bucket: search-index
//	  paths: [shard-a, shard-b]
//	writer:
//	  flush_threshold: 5000
//	logging:
//	  level: ${SHARDEX_LOG_LEVEL:-info}
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/shardex/codec"
)

// Storage drivers.
const (
	DriverLocal  = "local"
	DriverMemory = "memory"
	DriverS3     = "s3"
	DriverMinio  = "minio"
	DriverRedis  = "redis"
)

// Config holds the shardex configuration.
type Config struct {
	Storage   StorageConfig  `yaml:"storage"`
	Writer    WriterConfig   `yaml:"writer"`
	Resources ResourceConfig `yaml:"resources"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// StorageConfig selects where shards live.
type StorageConfig struct {
	Driver string `yaml:"driver"` // local, memory, s3, minio, redis (default: local)
	// Paths locates one shard each: a directory for the local driver, a key
	// prefix for the others.
	Paths []string `yaml:"paths"`

	Codec       string `yaml:"codec"`       // registered codec name (default: go-json)
	Compression string `yaml:"compression"` // none, lz4, zstd (default: none)

	// s3 and minio
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	// DynamoDBTable enables conditional CURRENT commits for s3.
	DynamoDBTable string `yaml:"dynamodb_table"`

	// redis
	Addrs    []string `yaml:"addrs"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`

	// LeaseTTL is the writer lease lifetime of the s3 (with a DynamoDB
	// table), minio and redis drivers, e.g. "45s". 0 keeps the store default.
	LeaseTTL time.Duration `yaml:"lease_ttl"`
}

// WriterConfig tunes writable handles.
type WriterConfig struct {
	// FlushThreshold is the number of buffered document modifications that
	// triggers an automatic flush. 0 defers to SHARDEX_FLUSH_THRESHOLD.
	FlushThreshold int `yaml:"flush_threshold"`
	// CompactionThreshold is the segment count that triggers compaction.
	CompactionThreshold int `yaml:"compaction_threshold"`
	// CompactionRatio additionally compacts once the segments reach this
	// multiple of the base snapshot size. 0 disables it.
	CompactionRatio float64 `yaml:"compaction_ratio"`
}

// ResourceConfig holds the limits shared by all writers of a process.
type ResourceConfig struct {
	PendingBytes     int64 `yaml:"pending_bytes"`       // unflushed batch budget
	Compactions      int64 `yaml:"compactions"`         // concurrent compactions (default: 1)
	WriteBytesPerSec int64 `yaml:"write_bytes_per_sec"` // blob write throughput
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: info)
	Format string `yaml:"format"` // text, json (default: text)
}

// Load reads, expands, defaults and validates the configuration at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse is Load for configuration already in memory.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverLocal
	}
	if c.Storage.Codec == "" {
		c.Storage.Codec = "go-json"
	}
	if c.Storage.Compression == "" {
		c.Storage.Compression = "none"
	}
	if c.Storage.Driver == DriverS3 && c.Storage.Region == "" {
		c.Storage.Region = "us-east-1"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	s := c.Storage
	if len(s.Paths) == 0 {
		return fmt.Errorf("storage.paths is required")
	}
	for i, p := range s.Paths {
		if p == "" && s.Driver == DriverLocal {
			return fmt.Errorf("storage.paths[%d] must not be empty", i)
		}
	}

	switch s.Driver {
	case DriverLocal, DriverMemory:
	case DriverS3:
		if s.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for driver %q", s.Driver)
		}
	case DriverMinio:
		if s.Bucket == "" || s.Endpoint == "" {
			return fmt.Errorf("storage.bucket and storage.endpoint are required for driver %q", s.Driver)
		}
	case DriverRedis:
		if len(s.Addrs) == 0 {
			return fmt.Errorf("storage.addrs is required for driver %q", s.Driver)
		}
	default:
		return fmt.Errorf("storage.driver must be one of local, memory, s3, minio, redis, got %q", s.Driver)
	}

	if _, ok := codec.ByName(s.Codec); !ok {
		return fmt.Errorf("storage.codec must be one of %s, got %q", strings.Join(codec.Names(), ", "), s.Codec)
	}
	switch strings.ToLower(s.Compression) {
	case "none", "lz4", "zstd":
	default:
		return fmt.Errorf("storage.compression must be none, lz4 or zstd, got %q", s.Compression)
	}

	if s.LeaseTTL < 0 {
		return fmt.Errorf("storage.lease_ttl must not be negative, got %s", s.LeaseTTL)
	}

	if r := c.Resources; r.PendingBytes < 0 || r.Compactions < 0 || r.WriteBytesPerSec < 0 {
		return fmt.Errorf("resources limits must not be negative")
	}

	if c.Writer.FlushThreshold < 0 {
		return fmt.Errorf("writer.flush_threshold must not be negative, got %d", c.Writer.FlushThreshold)
	}
	if c.Writer.CompactionRatio < 0 {
		return fmt.Errorf("writer.compaction_ratio must not be negative, got %g", c.Writer.CompactionRatio)
	}
	if c.Writer.CompactionThreshold < 0 {
		return fmt.Errorf("writer.compaction_threshold must not be negative, got %d", c.Writer.CompactionThreshold)
	}

	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}

// SlogLevel parses Level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return lvl, nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
