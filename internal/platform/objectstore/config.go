package objectstore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/get2b/get2b-go/internal/platform/env"
)

type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Region        string
	UseSSL        bool
	BucketUploads string
	PresignTTL    time.Duration
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("GET2B_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	ttl, err := env.Duration("GET2B_MINIO_PRESIGN_TTL", 15*time.Minute)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:      env.String("GET2B_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:     env.String("GET2B_MINIO_ACCESS_KEY", "get2b"),
		SecretKey:     env.String("GET2B_MINIO_SECRET_KEY", "get2bminio"),
		Region:        env.String("GET2B_MINIO_REGION", "us-east-1"),
		UseSSL:        useSSL,
		BucketUploads: env.String("GET2B_MINIO_BUCKET_UPLOADS", "step-uploads"),
		PresignTTL:    ttl,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketUploads) == "" {
		return errors.New("uploads bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	if c.PresignTTL < 0 || c.PresignTTL > 7*24*time.Hour {
		return fmt.Errorf("presign ttl out of range: %s", c.PresignTTL)
	}
	return nil
}
