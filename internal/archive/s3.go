package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"ucontrol/internal/log"
	"ucontrol/internal/ports"
)

type Config struct {
	Bucket string
	Region string
	// Profile selects a shared config profile, mostly for development.
	Profile string
	// Prefix is prepended to every object key.
	Prefix string
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver stores statements as objects in one bucket.
type S3Archiver struct {
	client putObjectAPI
	bucket string
	prefix string
	logger *log.Logger
}

var _ ports.StatementArchiver = (*S3Archiver)(nil)

// LoadAWSConfig resolves credentials and region the standard SDK way,
// honoring an optional shared profile.
func LoadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return awsCfg, nil
}

func NewS3Archiver(ctx context.Context, cfg Config, logger *log.Logger) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("S3 bucket is required")
	}
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newS3Archiver(s3.NewFromConfig(awsCfg), cfg, logger), nil
}

func newS3Archiver(client putObjectAPI, cfg Config, logger *log.Logger) *S3Archiver {
	if logger == nil {
		logger = log.Discard()
	}
	return &S3Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger.WithComponent(log.ComponentArchive),
	}
}

func (a *S3Archiver) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if a.prefix != "" {
		key = path.Join(a.prefix, key)
	}
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", a.bucket, key, err)
	}
	a.logger.InfoContext(ctx, "Statement archived", "bucket", a.bucket, "key", key, "bytes", len(body))
	return nil
}
