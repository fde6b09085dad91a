package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardex/blobstore"
)

func body(s string) io.ReadCloser { return io.NopCloser(strings.NewReader(s)) }

func TestStore_OpenPinsETag(t *testing.T) {
	ctx := context.Background()
	client := new(MockS3Client)
	store := NewStore(client, "bucket", "shards/a")

	client.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
		return *in.Key == "shards/a/seg-000001.blk"
	})).Return(&s3.HeadObjectOutput{ContentLength: aws.Int64(6), ETag: aws.String(`"v1"`)}, nil).Once()

	// Whole-object reads carry no Range header.
	client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return in.Range == nil && aws.ToString(in.IfMatch) == `"v1"`
	})).Return(&s3.GetObjectOutput{Body: body("postin")}, nil).Once()

	client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Range) == "bytes=2-4"
	})).Return(nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "etag changed"}).Once()

	b, err := store.Open(ctx, "seg-000001.blk")
	require.NoError(t, err)
	assert.Equal(t, int64(6), b.Size())

	r, err := b.ReadRange(ctx, 0, 6)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "postin", string(got))

	_, err = b.ReadAt(ctx, make([]byte, 3), 2)
	assert.ErrorIs(t, err, blobstore.ErrConflict)
}

func TestStore_OpenMissing(t *testing.T) {
	client := new(MockS3Client)
	store := NewStore(client, "bucket", "p")

	client.On("HeadObject", mock.Anything, mock.Anything).Return(nil, &types.NotFound{}).Once()
	_, err := store.Open(context.Background(), "CURRENT")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestObject_ReadAt(t *testing.T) {
	ctx := context.Background()
	client := new(MockS3Client)
	o := &object{client: client, bucket: "b", key: "k", size: 10}

	client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Range) == "bytes=0-4" && in.IfMatch == nil
	})).Return(&s3.GetObjectOutput{Body: body("hello")}, nil).Once()

	buf := make([]byte, 5)
	n, err := o.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))

	n, err = o.ReadAt(ctx, nil, 3)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = o.ReadAt(ctx, buf, -1)
	assert.ErrorIs(t, err, io.EOF)
	client.AssertExpectations(t)
}

func TestObject_ReadRangeClipped(t *testing.T) {
	ctx := context.Background()
	client := new(MockS3Client)
	o := &object{client: client, bucket: "b", key: "k", size: 10}

	client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Range) == "bytes=6-9"
	})).Return(&s3.GetObjectOutput{Body: body("6789")}, nil).Once()

	r, err := o.ReadRange(ctx, 6, 100)
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "6789", string(got))

	_, err = o.ReadRange(ctx, 10, 1)
	assert.ErrorIs(t, err, io.EOF)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = o.ReadRange(cancelled, 0, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_DeleteAndList(t *testing.T) {
	ctx := context.Background()
	client := new(MockS3Client)
	store := NewStore(client, "bucket", "db/")

	client.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return *in.Key == "db/seg-000002.blk"
	})).Return(&s3.DeleteObjectOutput{}, nil).Once()
	require.NoError(t, store.Delete(ctx, "seg-000002.blk"))

	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return in.ContinuationToken == nil && *in.Prefix == "db/MANIFEST"
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("page-2"),
		Contents:              []types.Object{{Key: aws.String("db/MANIFEST-000002.json")}},
	}, nil).Once()
	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.ContinuationToken) == "page-2"
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated: aws.Bool(false),
		Contents:    []types.Object{{Key: aws.String("db/MANIFEST-000001.json")}},
	}, nil).Once()

	names, err := store.List(ctx, "MANIFEST")
	require.NoError(t, err)
	assert.Equal(t, []string{"MANIFEST-000001.json", "MANIFEST-000002.json"}, names)
	client.AssertExpectations(t)
}

func TestStore_CreateUploadsOnClose(t *testing.T) {
	client := new(MockS3Client)
	store := NewStore(client, "bucket", "db")

	var uploaded string
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Key == "db/seg-000003.blk" && in.ChecksumAlgorithm == types.ChecksumAlgorithmCrc32c
	})).Run(func(args mock.Arguments) {
		in := args.Get(1).(*s3.PutObjectInput)
		data, _ := io.ReadAll(in.Body)
		uploaded = string(data)
	}).Return(&s3.PutObjectOutput{}, nil).Once()

	wb, err := store.Create(context.Background(), "seg-000003.blk")
	require.NoError(t, err)
	_, err = wb.Write([]byte("term dictionary"))
	require.NoError(t, err)
	require.NoError(t, wb.Sync())
	require.NoError(t, wb.Close())
	require.NoError(t, wb.Close())

	assert.Equal(t, "term dictionary", uploaded)
	client.AssertExpectations(t)
}

func TestStore_CreateAbort(t *testing.T) {
	client := new(MockS3Client)
	store := NewStore(client, "bucket", "db")

	wb, err := store.Create(context.Background(), "seg-000004.blk")
	require.NoError(t, err)

	a, ok := wb.(blobstore.Aborter)
	require.True(t, ok)
	require.NoError(t, a.Abort())
	require.NoError(t, wb.Close())

	_, err = wb.Write([]byte("late"))
	assert.Error(t, err)
	client.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything)
}

func TestChecksumCRC32C(t *testing.T) {
	// CRC32-C("123456789") = 0xE3069283
	assert.Equal(t, "4waSgw==", checksumCRC32C([]byte("123456789")))
}
