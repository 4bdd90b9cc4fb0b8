package reader

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kvtrace/keyloc/internal/config"
	"github.com/kvtrace/keyloc/internal/model"
)

// ObjectGetter is the subset of the S3 client the S3 source needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 reads a trace stored as a single S3 object, fetching it once per scan.
type S3 struct {
	client      ObjectGetter
	bucket      string
	key         string
	format      string
	compression string
}

// NewS3 creates an S3 source using the default AWS credential chain.
func NewS3(ctx context.Context, cfg *config.InputConfig) (*S3, error) {
	bucket, key, err := ParseS3URL(cfg.Path)
	if err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		}
		if cfg.S3.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	return NewS3WithClient(client, bucket, key, cfg.Format, cfg.Compression), nil
}

// NewS3WithClient creates an S3 source over an existing client.
func NewS3WithClient(client ObjectGetter, bucket, key, format, compression string) *S3 {
	return &S3{
		client:      client,
		bucket:      bucket,
		key:         key,
		format:      format,
		compression: compression,
	}
}

// ParseS3URL splits s3://bucket/key into its parts.
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parsing s3 url: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3 url: %s", raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("s3 url must name a bucket and a key: %s", raw)
	}
	return u.Host, key, nil
}

// Scan fetches the object and decodes it.
func (s *S3) Scan(ctx context.Context, fn func(model.Record) error) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return fmt.Errorf("fetching %s: %w", s.Name(), err)
	}

	rc, err := decompress(out.Body, s.compression)
	if err != nil {
		return fmt.Errorf("%s: %w", s.Name(), err)
	}
	defer rc.Close()

	return decode(ctx, rc, s.Name(), s.format, fn)
}

// Name returns the object URL.
func (s *S3) Name() string {
	return "s3://" + s.bucket + "/" + s.key
}

// Close is a no-op; the object body is closed after each scan.
func (s *S3) Close() error {
	return nil
}
