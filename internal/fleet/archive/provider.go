package archive

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/amrfleet/pkg/log"
	"github.com/autopeer-io/amrfleet/pkg/options"
)

// Provider stores snapshot objects.
type Provider interface {
	// CheckBucket makes sure the target bucket exists.
	CheckBucket(ctx context.Context) error

	// PutObject writes body under key.
	PutObject(ctx context.Context, key, contentType string, body []byte) error
}

type minioProvider struct {
	client     *minio.Client
	bucketName string
	region     string
}

// NewMinIOProvider creates a Provider backed by an S3-compatible store.
func NewMinIOProvider(opts *options.S3Options) (Provider, error) {
	minioOpts := &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	}
	if opts.UseSSL && opts.InsecureSkipVerify {
		minioOpts.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		}
	}

	client, err := minio.New(opts.Endpoint, minioOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &minioProvider{client: client, bucketName: opts.BucketName, region: opts.Region}, nil
}

func (p *minioProvider) CheckBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	log.Info("Bucket does not exist, creating", "bucket", p.bucketName)
	if err := p.client.MakeBucket(ctx, p.bucketName, minio.MakeBucketOptions{Region: p.region}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func (p *minioProvider) PutObject(ctx context.Context, key, contentType string, body []byte) error {
	_, err := p.client.PutObject(ctx, p.bucketName, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}
