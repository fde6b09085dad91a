package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/hupe1980/shardex/blobstore"
)

// object is a read handle pinned to the ETag seen at Open. A segment that
// is replaced while a snapshot still reads it fails with
// blobstore.ErrConflict instead of mixing two versions.
type object struct {
	client Client
	bucket string
	key    string
	etag   string
	size   int64
}

func (o *object) Close() error { return nil }
func (o *object) Size() int64  { return o.size }

// ReadAt reads len(p) bytes at off with one ranged GET.
func (o *object) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off < 0 || off >= o.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	want := min(int64(len(p)), o.size-off)
	body, err := o.get(ctx, off, want)
	if err != nil {
		return 0, err
	}
	defer func() { _ = body.Close() }()

	n, err := io.ReadFull(body, p[:want])
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		return n, io.EOF
	case err != nil:
		return n, err
	case n < len(p):
		return n, io.EOF
	}
	return n, nil
}

// ReadRange streams [off, off+length) clipped to the object size.
func (o *object) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off < 0 || off >= o.size {
		return nil, io.EOF
	}
	return o.get(ctx, off, min(length, o.size-off))
}

func (o *object) get(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in := &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
	}
	// Whole-object reads, the common case for segments, skip the Range header.
	if off > 0 || length < o.size {
		in.Range = aws.String(fmt.Sprintf("bytes=%d-%d", off, off+length-1))
	}
	if o.etag != "" {
		in.IfMatch = aws.String(o.etag)
	}

	resp, err := o.client.GetObject(ctx, in)
	if err != nil {
		return nil, mapError(err)
	}
	return resp.Body, nil
}

// mapError translates S3 "missing" and "precondition" failures into
// blobstore sentinels.
func mapError(err error) error {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return blobstore.ErrNotFound
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return blobstore.ErrNotFound
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return blobstore.ErrNotFound
		case "PreconditionFailed", "ConditionalRequestConflict":
			return fmt.Errorf("%w: %s", blobstore.ErrConflict, apiErr.ErrorMessage())
		}
	}
	return err
}
