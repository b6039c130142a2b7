package images

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/storage/s3/v2"
)

// BucketConfig names the bucket and credentials for an S3-compatible store.
type BucketConfig struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Bucket keeps images as objects in an S3-compatible bucket.
type Bucket struct {
	bucket *s3.Storage
}

func NewBucket(cfg BucketConfig) *Bucket {
	storage := s3.New(s3.Config{
		Endpoint: cfg.Endpoint,
		Bucket:   cfg.Bucket,
		Region:   cfg.Region,
		Credentials: s3.Credentials{
			AccessKey:       cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
		},
		MaxAttempts:    3,
		RequestTimeout: time.Second * 10,
		Reset:          false,
	})

	return &Bucket{bucket: storage}
}

// Save buffers src and writes it as a single object, so readers never see a
// partial upload. The storage drops zero-length values, so empty images are
// rejected with ErrEmpty.
func (b *Bucket) Save(ctx context.Context, name string, src io.Reader) error {
	if !ValidName(name) {
		return ErrInvalidName
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	if len(data) == 0 {
		return ErrEmpty
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.bucket.Set(name, data, 0); err != nil {
		return fmt.Errorf("uploading image: %w", err)
	}
	return nil
}

func (b *Bucket) Open(_ context.Context, name string) (io.ReadSeekCloser, time.Time, error) {
	if !ValidName(name) {
		return nil, time.Time{}, ErrNotFound
	}
	data, err := b.bucket.Get(name)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("downloading image: %w", err)
	}
	// The storage returns no bytes for a missing key.
	if data == nil {
		return nil, time.Time{}, ErrNotFound
	}
	return bytesFile{bytes.NewReader(data)}, time.Time{}, nil
}

func (b *Bucket) Close() error {
	return b.bucket.Close()
}
