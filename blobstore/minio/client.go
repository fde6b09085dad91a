package minio

import (
	"context"
	"io"
	"iter"

	"github.com/minio/minio-go/v7"
)

// precondition restricts a put. The zero value writes unconditionally.
type precondition struct {
	absent bool   // If-None-Match: *
	etag   string // If-Match
}

// objectAPI is the slice of object storage the store needs, with
// conditional writes made explicit.
type objectAPI interface {
	stat(ctx context.Context, key string) (etag string, size int64, err error)
	get(ctx context.Context, key, etag string, off, end int64) (io.ReadCloser, error)
	put(ctx context.Context, key string, r io.Reader, size int64, pre precondition) (etag string, err error)
	remove(ctx context.Context, key string) error
	list(ctx context.Context, prefix string) iter.Seq2[string, error]
	bucketExists(ctx context.Context) (bool, error)
}

// clientAPI adapts *minio.Client to one bucket.
type clientAPI struct {
	client *minio.Client
	bucket string
}

func (c clientAPI) stat(ctx context.Context, key string) (string, int64, error) {
	info, err := c.client.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return "", 0, err
	}
	return info.ETag, info.Size, nil
}

func (c clientAPI) get(ctx context.Context, key, etag string, off, end int64) (io.ReadCloser, error) {
	var opts minio.GetObjectOptions
	if err := opts.SetRange(off, end); err != nil {
		return nil, err
	}
	if etag != "" {
		if err := opts.SetMatchETag(etag); err != nil {
			return nil, err
		}
	}
	return c.client.GetObject(ctx, c.bucket, key, opts)
}

func (c clientAPI) put(ctx context.Context, key string, r io.Reader, size int64, pre precondition) (string, error) {
	var opts minio.PutObjectOptions
	switch {
	case pre.absent:
		opts.SetMatchETagExcept("*")
	case pre.etag != "":
		opts.SetMatchETag(pre.etag)
	}
	info, err := c.client.PutObject(ctx, c.bucket, key, r, size, opts)
	if err != nil {
		return "", err
	}
	return info.ETag, nil
}

func (c clientAPI) remove(ctx context.Context, key string) error {
	return c.client.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{})
}

func (c clientAPI) list(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		for obj := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		}) {
			if !yield(obj.Key, obj.Err) || obj.Err != nil {
				return
			}
		}
	}
}

func (c clientAPI) bucketExists(ctx context.Context) (bool, error) {
	return c.client.BucketExists(ctx, c.bucket)
}
