package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("storage:\n  paths: [./data]\n"))
	require.NoError(t, err)

	assert.Equal(t, DriverLocal, cfg.Storage.Driver)
	assert.Equal(t, "go-json", cfg.Storage.Codec)
	assert.Equal(t, "none", cfg.Storage.Compression)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Zero(t, cfg.Writer.FlushThreshold)
}

func TestParseExpandsEnv(t *testing.T) {
	t.Setenv("SHARDEX_TEST_BUCKET", "books")
	t.Setenv("SHARDEX_TEST_LEVEL", "")

	cfg, err := Parse([]byte(`
storage:
  driver: s3
  bucket: ${SHARDEX_TEST_BUCKET}
  paths: [a, b]
logging:
  level: ${SHARDEX_TEST_LEVEL:-debug}
`))
	require.NoError(t, err)

	assert.Equal(t, "books", cfg.Storage.Bucket)
	assert.Equal(t, "us-east-1", cfg.Storage.Region)
	assert.Equal(t, []string{"a", "b"}, cfg.Storage.Paths)

	lvl, err := cfg.Logging.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shardex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: redis
  addrs: [localhost:6379]
  paths: ["idx:"]
  compression: zstd
  lease_ttl: 45s
writer:
  flush_threshold: 500
  compaction_threshold: 4
  compaction_ratio: 0.5
resources:
  pending_bytes: 1048576
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverRedis, cfg.Storage.Driver)
	assert.Equal(t, 45*time.Second, cfg.Storage.LeaseTTL)
	assert.Equal(t, 500, cfg.Writer.FlushThreshold)
	assert.Equal(t, 4, cfg.Writer.CompactionThreshold)
	assert.InDelta(t, 0.5, cfg.Writer.CompactionRatio, 1e-9)
	assert.Equal(t, int64(1048576), cfg.Resources.PendingBytes)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Config{Storage: StorageConfig{Paths: []string{"./data"}}}
		c.ApplyDefaults()
		return c
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"no paths", func(c *Config) { c.Storage.Paths = nil }, false},
		{"empty local path", func(c *Config) { c.Storage.Paths = []string{""} }, false},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "ftp" }, false},
		{"s3 without bucket", func(c *Config) { c.Storage.Driver = DriverS3 }, false},
		{"minio without endpoint", func(c *Config) {
			c.Storage.Driver = DriverMinio
			c.Storage.Bucket = "b"
		}, false},
		{"redis without addrs", func(c *Config) { c.Storage.Driver = DriverRedis }, false},
		{"negative lease", func(c *Config) { c.Storage.LeaseTTL = -time.Second }, false},
		{"negative ratio", func(c *Config) { c.Writer.CompactionRatio = -1 }, false},
		{"negative compactions", func(c *Config) { c.Resources.Compactions = -1 }, false},
		{"memory", func(c *Config) { c.Storage.Driver = DriverMemory }, true},
		{"bad codec", func(c *Config) { c.Storage.Codec = "gob" }, false},
		{"bad compression", func(c *Config) { c.Storage.Compression = "snappy" }, false},
		{"upper case compression", func(c *Config) { c.Storage.Compression = "LZ4" }, true},
		{"negative threshold", func(c *Config) { c.Writer.FlushThreshold = -1 }, false},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, false},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
