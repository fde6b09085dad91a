package redis

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/rueidis"

	"github.com/hupe1980/shardex/blobstore"
)

// DefaultLeaseTTL is the expiry of a writer lease. A live holder renews it
// at a third of the TTL.
const DefaultLeaseTTL = 30 * time.Second

// Config holds connection parameters for a Redis store.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
	// Prefix is prepended to every key (e.g. "shardex:books:").
	Prefix string
	// LeaseTTL overrides DefaultLeaseTTL.
	LeaseTTL time.Duration
}

// Store implements blobstore.BlobStore on Redis strings. It suits small
// databases and shared writer leases; blobs are read whole.
type Store struct {
	client   rueidis.Client
	prefix   string
	leaseTTL time.Duration
}

// NewStore creates a Redis store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return newStore(client, cfg.Prefix, cfg.LeaseTTL), nil
}

// NewStoreForTest wraps an existing client.
func NewStoreForTest(c rueidis.Client, prefix string) *Store {
	return newStore(c, prefix, 0)
}

func newStore(c rueidis.Client, prefix string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &Store{client: c, prefix: prefix, leaseTTL: ttl}
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) key(name string) string {
	return s.prefix + name
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.b().Ping().Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// Open fetches the blob value.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	cmd := s.b().Get().Key(s.key(name)).Build()
	data, err := s.do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, blobstore.ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	return blobstore.NewBytesBlob(data), nil
}

// Create buffers writes and stores the blob on Close.
func (s *Store) Create(_ context.Context, name string) (blobstore.WritableBlob, error) {
	return &writableBlob{store: s, name: name}, nil
}

// Put stores a blob with a single SET.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	cmd := s.b().Set().Key(s.key(name)).Value(rueidis.BinaryString(data)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

// PutIfAbsent stores a blob with SET NX.
func (s *Store) PutIfAbsent(ctx context.Context, name string, data []byte) error {
	cmd := s.b().Set().Key(s.key(name)).Value(rueidis.BinaryString(data)).Nx().Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return fmt.Errorf("%w: %s", blobstore.ErrConflict, name)
		}
		return fmt.Errorf("set nx %s: %w", name, err)
	}
	return nil
}

// Delete removes a blob.
func (s *Store) Delete(ctx context.Context, name string) error {
	cmd := s.b().Del().Key(s.key(name)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("del %s: %w", name, err)
	}
	return nil
}

// List scans keys below prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(s.key(prefix)) + "*"

	var names []string
	var cursor uint64
	for {
		cmd := s.b().Scan().Cursor(cursor).Match(pattern).Count(100).Build()
		res, err := s.do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		for _, k := range res.Elements {
			name := strings.TrimPrefix(k, s.prefix)
			if !strings.HasPrefix(name, leasePrefix) {
				names = append(names, name)
			}
		}
		cursor = res.Cursor
		if cursor == 0 {
			break
		}
	}

	sort.Strings(names)
	return names, nil
}

const leasePrefix = "lease:"

const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

const renewScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("PEXPIRE", KEYS[1], ARGV[2]) else return 0 end`

// Lock takes a lease with SET NX PX and renews it until released.
func (s *Store) Lock(ctx context.Context, name string) (func() error, error) {
	key := s.key(leasePrefix + name)
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	cmd := s.b().Set().Key(key).Value(token).Nx().PxMilliseconds(s.leaseTTL.Milliseconds()).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, blobstore.ErrLocked
		}
		return nil, fmt.Errorf("lock %s: %w", name, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go s.renew(key, token, stop, done)

	var once sync.Once
	var relErr error
	return func() error {
		once.Do(func() {
			close(stop)
			<-done
			cmd := s.b().Eval().Script(releaseScript).Numkeys(1).Key(key).Arg(token).Build()
			if err := s.do(context.Background(), cmd).Error(); err != nil {
				relErr = fmt.Errorf("unlock %s: %w", name, err)
			}
		})
		return relErr
	}, nil
}

func (s *Store) renew(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.leaseTTL / 3)
	defer ticker.Stop()

	ttl := fmt.Sprintf("%d", s.leaseTTL.Milliseconds())
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			cmd := s.b().Eval().Script(renewScript).Numkeys(1).Key(key).Arg(token, ttl).Build()
			// A failed renewal lets the lease lapse; the next commit by a
			// competing writer then surfaces as a modification error.
			_ = s.do(context.Background(), cmd).Error()
		}
	}
}

func newToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

// escapeGlob escapes SCAN MATCH metacharacters.
func escapeGlob(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

type writableBlob struct {
	store *Store
	name  string
	buf   bytes.Buffer
}

func (w *writableBlob) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *writableBlob) Sync() error                 { return nil }

func (w *writableBlob) Close() error {
	return w.store.Put(context.Background(), w.name, w.buf.Bytes())
}

var (
	_ blobstore.BlobStore        = (*Store)(nil)
	_ blobstore.ConditionalStore = (*Store)(nil)
	_ blobstore.Locker           = (*Store)(nil)
	_ blobstore.Pinger           = (*Store)(nil)
)
