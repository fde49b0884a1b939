package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/lendops/tapekpi/pkg/config"
)

// Archiver stores a copy of the raw source payload before normalization.
// Archival failures are never fatal to an ingestion run; the caller logs
// them to the audit trail and continues.
type Archiver interface {
	Store(ctx context.Context, name string, data []byte) error
}

// DirArchiver copies raw payloads into a local archive directory, one file
// per ingestion, prefixed with the ingestion date for retention sweeps.
type DirArchiver struct {
	dir string
}

// NewDirArchiver creates a directory archiver.
func NewDirArchiver(dir string) *DirArchiver {
	return &DirArchiver{dir: dir}
}

// Store writes the payload under <dir>/<yyyy-mm-dd>_<name>.
func (a *DirArchiver) Store(_ context.Context, name string, data []byte) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	dest := filepath.Join(a.dir, fmt.Sprintf("%s_%s", time.Now().UTC().Format("2006-01-02"), filepath.Base(name)))
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("write archive file: %w", err)
	}
	return nil
}

// S3Archiver stores raw payloads as S3 objects under a key prefix.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Archiver creates an S3 archiver from config. A static key pair in
// the config takes precedence over the default AWS credential chain.
func NewS3Archiver(ctx context.Context, cfg appconfig.ArchiveConfig) (*S3Archiver, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS configuration: %w", err)
	}

	return &S3Archiver{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.S3Bucket,
		prefix: cfg.S3Prefix,
	}, nil
}

// Store uploads the payload to s3://<bucket>/<prefix>/<yyyy-mm-dd>/<name>.
func (a *S3Archiver) Store(ctx context.Context, name string, data []byte) error {
	key := fmt.Sprintf("%s/%s/%s", a.prefix, time.Now().UTC().Format("2006-01-02"), filepath.Base(name))

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put archive object %s: %w", key, err)
	}
	return nil
}
