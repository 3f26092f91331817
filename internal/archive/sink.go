package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/anatolykoptev/go_ytledger/internal/engine"
)

// Sink stores one object under key.
type Sink interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// S3API is the subset of the S3 client used by S3Sink.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Sink struct {
	api    S3API
	bucket string
}

func NewS3Sink(api S3API, bucket string) *S3Sink {
	return &S3Sink{api: api, bucket: bucket}
}

func (s *S3Sink) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3: put %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// DirSink writes objects as files below a root directory; key slashes become
// subdirectories.
type DirSink struct {
	root string
}

func NewDirSink(root string) *DirSink { return &DirSink{root: root} }

func (d *DirSink) Put(_ context.Context, key string, body []byte, _ string) error {
	path := filepath.Join(d.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("dir sink: mkdir: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("dir sink: write %s: %w", key, err)
	}
	return nil
}

// Open builds the sink selected by cfg.ArchiveSink and wraps it in an Archiver.
func Open(ctx context.Context, cfg engine.Config) (*Archiver, error) {
	var sink Sink
	switch cfg.ArchiveSink {
	case "dir", "":
		sink = NewDirSink(cfg.ArchiveDir)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, errors.New("archive: S3_BUCKET is required for the s3 sink")
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("archive: load aws config: %w", err)
		}
		sink = NewS3Sink(s3.NewFromConfig(awsCfg), cfg.S3Bucket)
	default:
		return nil, fmt.Errorf("archive: unsupported sink %q", cfg.ArchiveSink)
	}
	return NewArchiver(sink, cfg.ArchivePrefix), nil
}
