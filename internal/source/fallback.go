package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/assetflow/assetflow/internal/config"
	"github.com/assetflow/assetflow/pkg/errors"
)

// FallbackTier is the ultimate storage tier tried when every CDN endpoint
// has failed or is unhealthy.
type FallbackTier interface {
	Name() string
	Fetch(ctx context.Context, assetURL string) ([]byte, error)
}

// s3API is the subset of the S3 client the fallback tier uses.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fallback serves asset bytes from an S3 bucket keyed by the asset URL's
// path.
type S3Fallback struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Fallback builds the fallback tier from configuration, using the
// default AWS credential chain unless static credentials are provided.
func NewS3Fallback(ctx context.Context, cfg config.FallbackConfig) (*S3Fallback, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Fallback{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Name implements FallbackTier.
func (f *S3Fallback) Name() string {
	return "s3:" + f.bucket
}

// Fetch retrieves the object whose key is derived from the asset URL path.
func (f *S3Fallback) Fetch(ctx context.Context, assetURL string) ([]byte, error) {
	key := f.objectKey(assetURL)

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeNetworkError, "fallback fetch failed").
			WithURL(assetURL).WithEndpoint(f.Name()).WithCause(err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeNetworkError, "fallback read failed").
			WithURL(assetURL).WithEndpoint(f.Name()).WithCause(err)
	}
	return data, nil
}

// objectKey maps an asset URL to a bucket key: the URL path (or the raw
// value for relative references) under the configured prefix.
func (f *S3Fallback) objectKey(assetURL string) string {
	key := assetURL
	if u, err := url.Parse(assetURL); err == nil && u.Scheme != "" {
		key = u.Path
	}
	key = strings.TrimPrefix(key, "/")
	if f.prefix != "" {
		key = path.Join(f.prefix, key)
	}
	return key
}
