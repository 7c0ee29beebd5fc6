package publish

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config locates an S3-compatible bucket.
type S3Config struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	Region    string `yaml:"region,omitempty" json:"region,omitempty"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Prefix    string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	UseSSL    bool   `yaml:"use_ssl,omitempty" json:"use_ssl,omitempty"`
}

// Validate checks that the required fields are set.
func (c S3Config) Validate() error {
	switch {
	case c.Endpoint == "":
		return fmt.Errorf("s3 endpoint is required")
	case c.Bucket == "":
		return fmt.Errorf("s3 bucket is required")
	case c.AccessKey == "" || c.SecretKey == "":
		return fmt.Errorf("s3 credentials are required")
	}
	return nil
}

// S3Sink uploads a copy of each file to a bucket. The local file stays in
// place.
type S3Sink struct {
	client *minio.Client
	cfg    S3Config
}

// NewS3Sink builds a sink for cfg. No request is made until Publish.
func NewS3Sink(cfg S3Config) (*S3Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client: %w", err)
	}
	return &S3Sink{client: client, cfg: cfg}, nil
}

// Key returns the object key a local file is uploaded to.
func (s *S3Sink) Key(local string) string {
	return path.Join(s.cfg.Prefix, filepath.Base(local))
}

func (s *S3Sink) Publish(ctx context.Context, local string) (string, error) {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return "", fmt.Errorf("checking bucket %s: %w", s.cfg.Bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return "", fmt.Errorf("creating bucket %s: %w", s.cfg.Bucket, err)
		}
	}
	key := s.Key(local)
	if _, err := s.client.FPutObject(ctx, s.cfg.Bucket, key, local, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	}); err != nil {
		return "", fmt.Errorf("uploading %s: %w", local, err)
	}
	return local, nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
