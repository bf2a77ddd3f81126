// Package assets removes uploaded files from the S3-compatible object
// store when their owning records are deleted.
package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var (
	// ErrClientNil is returned when a constructor receives a nil client.
	ErrClientNil = errors.New("assets: s3 client cannot be nil")

	// ErrBucketEmpty is returned when no bucket is configured.
	ErrBucketEmpty = errors.New("assets: bucket cannot be empty")

	// ErrPartialDelete is returned when the object store rejected some of
	// the requested deletions.
	ErrPartialDelete = errors.New("assets: some objects were not deleted")
)

// S3 batches are capped by the API.
const maxBatchSize = 1000

// Config carries object-store settings, loaded from the environment.
type Config struct {
	Bucket          string `env:"S3_BUCKET,required"`
	Region          string `env:"S3_REGION" envDefault:"us-east-1"`
	Endpoint        string `env:"S3_ENDPOINT"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
}

// NewClient builds an S3 client from the config. Static credentials are
// used when provided, otherwise the default AWS credential chain.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("assets: load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3Client is the subset of s3.Client the store needs.
type S3Client interface {
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Store deletes asset files by their storage paths.
type Store struct {
	client S3Client
	bucket string
	log    *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(log *slog.Logger) StoreOption {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// NewStore creates a store deleting from the given bucket.
func NewStore(client S3Client, bucket string, opts ...StoreOption) (*Store, error) {
	if client == nil {
		return nil, ErrClientNil
	}
	if bucket == "" {
		return nil, ErrBucketEmpty
	}
	s := &Store{client: client, bucket: bucket, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DeletePaths removes the objects at the given paths, batching by the
// API limit. Missing objects are not an error; rejected deletions are.
func (s *Store) DeletePaths(ctx context.Context, paths []string) error {
	for start := 0; start < len(paths); start += maxBatchSize {
		end := min(start+maxBatchSize, len(paths))

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, path := range paths[start:end] {
			if path == "" {
				continue
			}
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(path)})
		}
		if len(objects) == 0 {
			continue
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("assets: delete objects: %w", err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			s.log.ErrorContext(ctx, "object deletions rejected",
				slog.Int("count", len(out.Errors)),
				slog.String("first_key", aws.ToString(first.Key)),
				slog.String("first_message", aws.ToString(first.Message)),
			)
			return fmt.Errorf("%w: %d of %d", ErrPartialDelete, len(out.Errors), len(objects))
		}
	}
	return nil
}
