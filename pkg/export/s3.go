package export

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options locates the bucket exports are uploaded to. Empty credentials
// fall back to the default AWS credential chain.
type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	Prefix    string
	AccessKey string
	SecretKey string
}

// ObjectPutter is the part of the S3 client the sink uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads each table as a CSV object under
// <prefix>/<run id>/<snapshot>_<table>.csv.
type S3Sink struct {
	client ObjectPutter
	bucket string
	prefix string
	sep    rune
}

// NewS3Client builds an S3 client. A custom endpoint switches to path-style
// addressing, as S3-compatible stores expect.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	loaders := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		loaders = append(loaders, config.WithRegion(opts.Region))
	}
	if opts.Endpoint != "" {
		loaders = append(loaders, config.WithBaseEndpoint(opts.Endpoint))
	}
	if opts.AccessKey != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = opts.Endpoint != ""
	}), nil
}

// NewS3Sink uploads through client. sep is the CSV separator.
func NewS3Sink(client ObjectPutter, opts S3Options, sep rune) *S3Sink {
	if sep == 0 {
		sep = ','
	}
	return &S3Sink{client: client, bucket: opts.Bucket, prefix: opts.Prefix, sep: sep}
}

func (s *S3Sink) Name() string { return "s3" }

// Key returns the object key of a table.
func (s *S3Sink) Key(run RunInfo, table *Table) string {
	return path.Join(s.prefix, run.ID.String(), FileName(run, table))
}

func (s *S3Sink) Export(ctx context.Context, run RunInfo, table *Table) error {
	body, err := RenderCSV(table, s.sep)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.Key(run, table)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload file to S3: %w", err)
	}
	return nil
}

func (s *S3Sink) Close() error { return nil }
