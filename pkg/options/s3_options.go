package options

import (
	"errors"

	"github.com/spf13/pflag"
)

var _ IOptions = (*S3Options)(nil)

// S3Options locates the object store used for fleet snapshots.
type S3Options struct {
	Endpoint        string `json:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `json:"access-key-id" mapstructure:"access-key-id"`
	SecretAccessKey string `json:"secret-access-key" mapstructure:"secret-access-key"`
	UseSSL          bool   `json:"use-ssl" mapstructure:"use-ssl"`
	BucketName      string `json:"bucket-name" mapstructure:"bucket-name"`
	Region          string `json:"region" mapstructure:"region"`

	// InsecureSkipVerify skips certificate verification when UseSSL is set.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`
}

func NewS3Options() *S3Options {
	return &S3Options{
		Endpoint:   "localhost:9000",
		UseSSL:     false,
		BucketName: "amr-fleet",
		Region:     "us-east-1",
	}
}

// Validate only checks fields that are always required; credentials may be
// empty for anonymous buckets.
func (o *S3Options) Validate() []error {
	var errs []error

	if o.Endpoint == "" {
		errs = append(errs, errors.New("--s3.endpoint must not be empty"))
	}
	if o.BucketName == "" {
		errs = append(errs, errors.New("--s3.bucket-name must not be empty"))
	}

	return errs
}

func (o *S3Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Endpoint, "s3.endpoint", o.Endpoint, "S3 service endpoint (e.g. s3.amazonaws.com or minio.local:9000).")
	fs.StringVar(&o.AccessKeyID, "s3.access-key-id", o.AccessKeyID, "S3 access key ID.")
	fs.StringVar(&o.SecretAccessKey, "s3.secret-access-key", o.SecretAccessKey, "S3 secret access key.")
	fs.BoolVar(&o.UseSSL, "s3.use-ssl", o.UseSSL, "Enable SSL for the S3 connection.")
	fs.StringVar(&o.BucketName, "s3.bucket-name", o.BucketName, "S3 bucket receiving fleet snapshots.")
	fs.StringVar(&o.Region, "s3.region", o.Region, "S3 region.")
	fs.BoolVar(&o.InsecureSkipVerify, "s3.insecure-skip-verify", o.InsecureSkipVerify, "Skip TLS certificate verification for the S3 endpoint.")
}
