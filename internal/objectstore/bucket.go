// Package objectstore stores whole objects by key, either in an
// S3-compatible bucket or, when no bucket is configured, in a local directory.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/cinelines/internal/config"
)

// ErrNotExist is returned by Get when no object is stored under the key.
var ErrNotExist = errors.New("object does not exist")

// Bucket reads and writes whole objects.
type Bucket interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	// Location describes where objects live, for logs.
	Location() string
}

// s3Client defines the minimal minio.Client operations used by S3Bucket.
// This interface enables testing with mock implementations.
type s3Client interface {
	GetObject(ctx context.Context, bucket, objectName string) ([]byte, error)
	PutObject(ctx context.Context, bucket, objectName string, data []byte, contentType string) error
}

// minioClientWrapper wraps *minio.Client to satisfy the s3Client interface.
type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) GetObject(ctx context.Context, bucket, objectName string) ([]byte, error) {
	obj, err := w.client.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioError(err)
	}
	defer obj.Close()

	// minio reports a missing key on the first read, not on GetObject.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapMinioError(err)
	}
	return data, nil
}

func (w *minioClientWrapper) PutObject(ctx context.Context, bucket, objectName string, data []byte, contentType string) error {
	_, err := w.client.PutObject(ctx, bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func mapMinioError(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotExist
	}
	return err
}

// S3Bucket stores objects in S3-compatible storage.
type S3Bucket struct {
	client s3Client
	bucket string
	prefix string
}

// Get downloads the object stored under key.
func (b *S3Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.GetObject(ctx, b.bucket, b.objectKey(key))
	if errors.Is(err, ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("download %s from S3: %w", key, err)
	}
	return data, nil
}

// Put uploads data under key, replacing any previous object.
func (b *S3Bucket) Put(ctx context.Context, key string, data []byte) error {
	if err := b.client.PutObject(ctx, b.bucket, b.objectKey(key), data, contentType(key)); err != nil {
		return fmt.Errorf("upload %s to S3: %w", key, err)
	}
	return nil
}

// Location returns the bucket and prefix as an s3:// URL.
func (b *S3Bucket) Location() string {
	return "s3://" + b.bucket + "/" + b.prefix
}

// objectKey joins the configured prefix and key.
func (b *S3Bucket) objectKey(key string) string {
	if b.prefix == "" {
		return key
	}
	return strings.TrimSuffix(b.prefix, "/") + "/" + key
}

func contentType(key string) string {
	if strings.HasSuffix(key, ".csv") {
		return "text/csv"
	}
	return "application/octet-stream"
}

// New creates the Bucket described by cfg. When cfg.Bucket is empty the
// objects live in localDir instead.
func New(cfg config.ObjectStorageConfig, localDir string) (Bucket, error) {
	if cfg.Bucket == "" {
		return NewDirBucket(localDir), nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}
	endpoint := stripScheme(cfg.Endpoint, &useSSL)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Bucket{
		client: &minioClientWrapper{client: client},
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// stripScheme removes an http:// or https:// prefix from endpoint, which
// minio.New rejects, and lets the scheme decide useSSL.
func stripScheme(endpoint string, useSSL *bool) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		*useSSL = true
		return strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		*useSSL = false
		return strings.TrimPrefix(endpoint, "http://")
	default:
		return endpoint
	}
}
