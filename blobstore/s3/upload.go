package s3

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/shardex/internal/hash"
)

// UploadConfig configures segment uploads.
type UploadConfig struct {
	// PartSize is the multipart part size. Segments smaller than one part
	// go up in a single PUT. Default: 8 MiB.
	PartSize int64

	// Concurrency is the number of parts in flight. Default: 4.
	Concurrency int

	// EnableChecksum sends a CRC32-C with every write so S3 rejects
	// corrupted bodies. Default: true.
	EnableChecksum bool

	// LeavePartsOnError keeps the parts of a failed multipart upload for
	// inspection instead of aborting it. Default: false.
	LeavePartsOnError bool
}

// DefaultUploadConfig returns the default upload settings.
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		PartSize:       8 << 20,
		Concurrency:    4,
		EnableChecksum: true,
	}
}

func newUploader(client Client, cfg UploadConfig) *manager.Uploader {
	return manager.NewUploader(client, func(u *manager.Uploader) {
		if cfg.PartSize > 0 {
			u.PartSize = cfg.PartSize
		}
		if cfg.Concurrency > 0 {
			u.Concurrency = cfg.Concurrency
		}
		u.LeavePartsOnError = cfg.LeavePartsOnError
	})
}

// checksumCRC32C returns the base64 big-endian CRC32-C S3 expects.
func checksumCRC32C(data []byte) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], hash.CRC32C(data))
	return base64.StdEncoding.EncodeToString(b[:])
}

// upload feeds writes through a pipe into a background manager upload.
type upload struct {
	pw     *io.PipeWriter
	g      errgroup.Group
	once   sync.Once
	result error
}

func startUpload(ctx context.Context, uploader *manager.Uploader, bucket, key string, checksum bool) *upload {
	pr, pw := io.Pipe()
	u := &upload{pw: pw}

	in := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   pr,
	}
	if checksum {
		in.ChecksumAlgorithm = types.ChecksumAlgorithmCrc32c
	}
	u.g.Go(func() error {
		// The uploader aborts a failed multipart upload itself unless
		// LeavePartsOnError is set.
		_, err := uploader.Upload(ctx, in)
		_ = pr.CloseWithError(err)
		return err
	})
	return u
}

func (u *upload) Write(p []byte) (int, error) {
	return u.pw.Write(p)
}

// Sync is a no-op; the object is committed by Close.
func (u *upload) Sync() error { return nil }

// Close ends the body and waits for the upload to complete.
func (u *upload) Close() error {
	u.once.Do(func() {
		_ = u.pw.Close()
		u.result = u.g.Wait()
	})
	return u.result
}

// Abort cancels the upload; nothing becomes visible.
func (u *upload) Abort() error {
	u.once.Do(func() {
		_ = u.pw.CloseWithError(context.Canceled)
		_ = u.g.Wait()
	})
	return nil
}
