package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	apperrors "github.com/gje4/vercel-bigcommerce/pkg/errors"

	"github.com/gje4/vercel-bigcommerce/internal/storage"
)

// Config holds S3 storage configuration.
type Config struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint (MinIO, LocalStack). It switches
	// the client to path-style addressing.
	Endpoint string
	// PublicURL is the prefix of returned object URLs. When empty, URLs are
	// s3://bucket/key.
	PublicURL string
}

// Storage implements storage.Storage on an S3 bucket.
type Storage struct {
	client *awss3.Client
	bucket string
	public string
}

// New loads the default AWS credential chain and creates an S3 storage.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.Bucket == "" {
		return nil, apperrors.Configuration("s3 bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, cfg), nil
}

// NewWithClient creates an S3 storage on an existing client.
func NewWithClient(client *awss3.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		bucket: cfg.Bucket,
		public: strings.TrimRight(cfg.PublicURL, "/"),
	}
}

// Upload puts the object into the bucket.
func (s *Storage) Upload(ctx context.Context, input *storage.UploadInput) (*storage.UploadResult, error) {
	put := &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(input.Key),
		Body:        input.Data,
		ContentType: aws.String(input.ContentType),
	}
	if input.Size > 0 {
		put.ContentLength = aws.Int64(input.Size)
	}

	if _, err := s.client.PutObject(ctx, put); err != nil {
		return nil, fmt.Errorf("s3 put %s: %w", input.Key, err)
	}
	return &storage.UploadResult{Key: input.Key, URL: s.url(input.Key)}, nil
}

// Delete removes an object from the bucket.
func (s *Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

// GetURL returns the URL of an existing object.
func (s *Storage) GetURL(ctx context.Context, key string) (string, error) {
	_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return "", apperrors.NotFound("object", key)
		}
		return "", fmt.Errorf("s3 head %s: %w", key, err)
	}
	return s.url(key), nil
}

func (s *Storage) url(key string) string {
	if s.public != "" {
		return s.public + "/" + key
	}
	return "s3://" + s.bucket + "/" + key
}
