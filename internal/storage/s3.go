package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// S3API is the subset of *s3.Client the store uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3ObjectStore implements ObjectStore using AWS S3
type S3ObjectStore struct {
	client     S3API
	bucketName string
	logger     *zap.Logger
}

var _ ObjectStore = (*S3ObjectStore)(nil)

func NewS3ObjectStore(client S3API, bucketName string, logger *zap.Logger) (*S3ObjectStore, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("S3 bucket name cannot be empty")
	}
	return &S3ObjectStore{
		client:     client,
		bucketName: bucketName,
		logger:     logger,
	}, nil
}

func (s *S3ObjectStore) Bucket() string {
	return s.bucketName
}

func (s *S3ObjectStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	s.logger.Debug("uploaded object", zap.String("bucket", bucket), zap.String("key", key), zap.Int64("size", size))
	return nil
}

func (s *S3ObjectStore) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	s.logger.Debug("deleted object", zap.String("bucket", bucket), zap.String("key", key))
	return nil
}
