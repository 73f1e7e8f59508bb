// Package storage pushes finished scan documents to S3 for the
// scan-to-cloud flow.
package storage

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/uscan-cli/uscan/pkg/errors"
)

// Client provides S3 storage operations
type Client struct {
	s3Client *s3.Client
	bucket   string
}

// NewClient creates a new S3 client using the ambient AWS credentials
func NewClient(ctx context.Context, bucket, region string) (*Client, error) {
	slog.Info("s3_client_init", "bucket", bucket, "region", region)

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	return &Client{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucket,
	}, nil
}

// Upload pushes a local file to the bucket under the given key
func (c *Client) Upload(ctx context.Context, key, localPath, contentType string) error {
	slog.Info("s3_upload_start", "bucket", c.bucket, "key", key, "local_path", localPath)

	f, err := os.Open(localPath)
	if err != nil {
		slog.Error("local_file_open_failed", "path", localPath, "error", err)
		return errors.Wrap(err, "failed to open local file")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "failed to stat local file")
	}

	_, err = c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		slog.Error("s3_put_object_failed", "key", key, "error", err)
		return errors.Wrap(err, "failed to upload to S3")
	}

	slog.Info("s3_upload_complete", "key", key, "size_kb", info.Size()/1024)
	return nil
}

// Exists checks if an object already exists under the key
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})

	if err != nil {
		var nf *types.NotFound
		if stderrors.As(err, &nf) {
			return false, nil
		}
		slog.Error("s3_head_object_failed", "key", key, "error", err)
		return false, errors.Wrap(err, "failed to check object existence")
	}

	return true, nil
}
