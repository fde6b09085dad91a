package shardex

import (
	"context"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/shardex/blobstore"
	minioblob "github.com/hupe1980/shardex/blobstore/minio"
	redisblob "github.com/hupe1980/shardex/blobstore/redis"
	s3blob "github.com/hupe1980/shardex/blobstore/s3"
	"github.com/hupe1980/shardex/codec"
	"github.com/hupe1980/shardex/config"
	"github.com/hupe1980/shardex/internal/compress"
	"github.com/hupe1980/shardex/resource"
	"github.com/hupe1980/shardex/shard"
)

// OpenConfig opens a read-only view over every shard in cfg.Storage.Paths.
// opts are applied after the options derived from cfg.
func OpenConfig(ctx context.Context, cfg config.Config, opts ...Option) (*Database, error) {
	cfgOpts, err := OptionsFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return Open(ctx, cfg.Storage.Paths, append(cfgOpts, opts...)...)
}

// OpenWritableConfig opens the single shard of cfg for writing.
func OpenWritableConfig(ctx context.Context, cfg config.Config, mode OpenMode, opts ...Option) (*WritableDatabase, error) {
	if len(cfg.Storage.Paths) != 1 {
		return nil, shard.Errorf(shard.ErrInvalidArgument, "a writable database needs exactly one path, got %d", len(cfg.Storage.Paths))
	}
	cfgOpts, err := OptionsFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return OpenWritable(ctx, cfg.Storage.Paths[0], mode, append(cfgOpts, opts...)...)
}

// OptionsFromConfig translates cfg into options. It connects to the
// configured storage backend.
func OptionsFromConfig(ctx context.Context, cfg config.Config) ([]Option, error) {
	c, ok := codec.ByName(cfg.Storage.Codec)
	if !ok {
		return nil, shard.Errorf(shard.ErrInvalidArgument, "unknown codec %q", cfg.Storage.Codec)
	}
	comp, err := compress.ParseType(cfg.Storage.Compression)
	if err != nil {
		return nil, shard.Wrap(shard.ErrInvalidArgument, err)
	}
	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		return nil, shard.Wrap(shard.ErrInvalidArgument, err)
	}
	stores, err := storeFactory(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	logger := NewTextLogger(level)
	if cfg.Logging.Format == "json" {
		logger = NewJSONLogger(level)
	}

	opts := []Option{
		WithLogger(logger),
		WithBlobStore(stores),
		WithCodec(c),
		WithCompression(comp),
	}
	if cfg.Writer.FlushThreshold > 0 {
		opts = append(opts, WithFlushThreshold(cfg.Writer.FlushThreshold))
	}
	if cfg.Writer.CompactionThreshold > 0 {
		opts = append(opts, WithCompactionThreshold(cfg.Writer.CompactionThreshold))
	}
	if cfg.Writer.CompactionRatio > 0 {
		opts = append(opts, WithCompactionRatio(cfg.Writer.CompactionRatio))
	}
	if r := cfg.Resources; r != (config.ResourceConfig{}) {
		opts = append(opts, WithResourceController(resource.NewController(resource.Config{
			PendingBytes:     r.PendingBytes,
			Compactions:      r.Compactions,
			WriteBytesPerSec: r.WriteBytesPerSec,
		})))
	}
	return opts, nil
}

// storeFactory builds the StoreFactory of a storage driver. S3 and MinIO
// clients are shared by every path; each Redis store owns its connection.
func storeFactory(ctx context.Context, sc config.StorageConfig) (StoreFactory, error) {
	switch sc.Driver {
	case "", config.DriverLocal:
		return LocalStores(), nil

	case config.DriverMemory:
		return MemoryStores(), nil

	case config.DriverS3:
		awsOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(sc.Region)}
		if sc.AccessKey != "" {
			creds := aws.Credentials{AccessKeyID: sc.AccessKey, SecretAccessKey: sc.SecretKey, Source: "shardex config"}
			awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(aws.CredentialsProviderFunc(
				func(context.Context) (aws.Credentials, error) { return creds, nil },
			)))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
		if err != nil {
			return nil, shard.Errorf(shard.ErrDatabaseOpening, "aws config: %v", err)
		}
		client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			if sc.Endpoint != "" {
				o.BaseEndpoint = aws.String(sc.Endpoint)
				o.UsePathStyle = true
			}
		})
		var ddb *dynamodb.Client
		if sc.DynamoDBTable != "" {
			ddb = dynamodb.NewFromConfig(awsCfg)
		}
		return func(_ context.Context, p string) (blobstore.BlobStore, error) {
			store := s3blob.NewStore(client, sc.Bucket, p)
			if ddb == nil {
				return store, nil
			}
			return s3blob.NewDDBCommitStore(store, ddb, sc.DynamoDBTable, "s3://"+path.Join(sc.Bucket, p),
				s3blob.WithLeaseTTL(sc.LeaseTTL)), nil
		}, nil

	case config.DriverMinio:
		client, err := minio.New(sc.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(sc.AccessKey, sc.SecretKey, ""),
			Secure: sc.UseSSL,
			Region: sc.Region,
		})
		if err != nil {
			return nil, shard.Errorf(shard.ErrDatabaseOpening, "minio client: %v", err)
		}
		return func(_ context.Context, p string) (blobstore.BlobStore, error) {
			return minioblob.NewStore(client, sc.Bucket, p, minioblob.WithLeaseTTL(sc.LeaseTTL)), nil
		}, nil

	case config.DriverRedis:
		return func(_ context.Context, p string) (blobstore.BlobStore, error) {
			store, err := redisblob.NewStore(redisblob.Config{
				Addrs:    sc.Addrs,
				Username: sc.Username,
				Password: sc.Password,
				DB:       sc.DB,
				Prefix:   p,
				LeaseTTL: sc.LeaseTTL,
			})
			if err != nil {
				return nil, err
			}
			return store, nil
		}, nil

	default:
		return nil, shard.Errorf(shard.ErrInvalidArgument, "unknown storage driver %q", sc.Driver)
	}
}
