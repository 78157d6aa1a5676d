// Package storage keeps pre-publish snapshots of remote tunnel
// configurations. Works with any S3-compatible provider (AWS, Garage,
// MinIO, Cloudflare R2) or the local filesystem.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/slimani-dev/muraqib/internal/config"
)

// S3Store wraps an S3 client for one bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates an S3Store from config.
func NewS3Store(ctx context.Context, cfg config.S3Config) (*S3Store, error) {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		UsePathStyle: cfg.ForcePathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	client := s3.New(opts)

	store := &S3Store{client: client, bucket: cfg.Bucket}
	if err := store.ensureBucketExists(ctx); err != nil {
		return nil, fmt.Errorf("storage: ensure bucket exists: %w", err)
	}
	return store, nil
}

func (s *S3Store) ensureBucketExists(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *S3Store) Provider() string { return "s3" }

// PutSnapshot compresses the raw configuration document and uploads it.
// The deterministic key makes duplicate uploads idempotent.
func (s *S3Store) PutSnapshot(ctx context.Context, accountID, tunnelID uuid.UUID, raw []byte) (key, sha256hex string, size int64, err error) {
	compressed, meta, err := PrepareBlob(raw, accountID, tunnelID, time.Now())
	if err != nil {
		return "", "", 0, err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(meta.Key),
		Body:          bytes.NewReader(compressed),
		ContentLength: aws.Int64(meta.Size),
		ContentType:   aws.String("application/json+gzip"),
		Metadata:      map[string]string{"sha256": meta.SHA256},
	})
	if err != nil {
		return "", "", 0, fmt.Errorf("storage: put object: %w", err)
	}
	return meta.Key, meta.SHA256, meta.Size, nil
}

// GetSnapshot downloads and decompresses a stored snapshot.
func (s *S3Store) GetSnapshot(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: get object: %w", err)
	}
	defer out.Body.Close()

	return DecompressBlob(out.Body)
}

// DeleteObject removes a snapshot object.
func (s *S3Store) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("storage: delete: %w", err)
	}
	return nil
}
