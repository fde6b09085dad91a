package s3

import (
	"bytes"
	"context"
	"path"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hupe1980/shardex/blobstore"
)

// Store implements blobstore.BlobStore on one S3 bucket below a key prefix.
type Store struct {
	client   Client
	bucket   string
	prefix   string
	upload   UploadConfig
	uploader *manager.Uploader
}

// Option configures a Store.
type Option func(*Store)

// WithUploadConfig overrides the multipart upload settings.
func WithUploadConfig(cfg UploadConfig) Option {
	return func(s *Store) {
		s.upload = cfg
	}
}

// NewStore creates an S3 blob store. rootPrefix is prepended to every key
// (e.g. "indexes/books/").
func NewStore(client Client, bucket, rootPrefix string, opts ...Option) *Store {
	s := &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
		upload: DefaultUploadConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.uploader = newUploader(client, s.upload)
	return s
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Open issues a HEAD and returns a handle pinned to the object's ETag.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.key(name)
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError(err)
	}
	return &object{
		client: s.client,
		bucket: s.bucket,
		key:    key,
		etag:   aws.ToString(head.ETag),
		size:   aws.ToInt64(head.ContentLength),
	}, nil
}

// Create starts a streaming multipart upload. The object appears on Close.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	return startUpload(ctx, s.uploader, s.bucket, s.key(name), s.upload.EnableChecksum), nil
}

// Put writes a blob in a single request. S3 object writes are atomic.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.putInput(name, data))
	return mapError(err)
}

// PutIfAbsent writes a blob only if no object exists under name, using an
// If-None-Match conditional write. It fails with blobstore.ErrConflict when
// the object already exists.
func (s *Store) PutIfAbsent(ctx context.Context, name string, data []byte) error {
	in := s.putInput(name, data)
	in.IfNoneMatch = aws.String("*")
	_, err := s.client.PutObject(ctx, in)
	return mapError(err)
}

func (s *Store) putInput(name string, data []byte) *s3.PutObjectInput {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if s.upload.EnableChecksum {
		in.ChecksumCRC32C = aws.String(checksumCRC32C(data))
	}
	return in
}

// Delete removes a blob. S3 treats deleting a missing key as success.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	return err
}

// List returns the names below prefix, relative to the store root, in
// lexical order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.key(prefix)),
	})

	var names []string
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			names = append(names, s.relative(aws.ToString(obj.Key)))
		}
	}
	slices.Sort(names)
	return names, nil
}

func (s *Store) relative(key string) string {
	if s.prefix == "" || !strings.HasPrefix(key, s.prefix) {
		return key
	}
	return strings.TrimPrefix(key[len(s.prefix):], "/")
}

// Ping checks the bucket is reachable by listing at most one key.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.prefix),
		MaxKeys: aws.Int32(1),
	})
	return err
}

var (
	_ blobstore.BlobStore        = (*Store)(nil)
	_ blobstore.ConditionalStore = (*Store)(nil)
	_ blobstore.Pinger           = (*Store)(nil)
)
