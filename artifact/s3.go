package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/YuminosukeSato/gbforecast/config"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
)

// Uploader copies artifacts to remote storage.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader) (string, error)
}

// S3Uploader writes to an S3-compatible bucket.
type S3Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Uploader builds a client for cfg. Static credentials are used when
// configured, otherwise the default AWS credential chain.
func NewS3Uploader(ctx context.Context, cfg config.S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.NewValidationError("artifacts.s3.bucket", "must not be empty", "")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return &S3Uploader{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Upload puts body under prefix/key and returns its s3:// URI.
func (u *S3Uploader) Upload(ctx context.Context, key string, body io.Reader) (string, error) {
	full := path.Join(u.prefix, key)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(full),
		Body:   body,
	})
	if err != nil {
		return "", errors.Wrapf(err, "upload s3://%s/%s", u.bucket, full)
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, full), nil
}

// UploadFile uploads the file at p under its base name.
func UploadFile(ctx context.Context, u Uploader, p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", errors.Wrapf(err, "open %s", p)
	}
	defer f.Close()
	uri, err := u.Upload(ctx, filepath.Base(p), f)
	if err != nil {
		return "", err
	}
	log.GetLoggerWithName("artifact").Info("Uploaded model artifact", log.FilePathKey, p, "uri", uri)
	return uri, nil
}
