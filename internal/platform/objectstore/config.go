package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xingyi1145/Neural-Network-Playground/internal/platform/env"
)

// Config describes the optional S3-compatible source for curated dataset
// files. An empty endpoint disables the object-store-backed providers.
type Config struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Region         string
	UseSSL         bool
	BucketDatasets string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("PLAYGROUND_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:       env.String("PLAYGROUND_MINIO_ENDPOINT", ""),
		AccessKey:      env.String("PLAYGROUND_MINIO_ACCESS_KEY", "playground"),
		SecretKey:      env.String("PLAYGROUND_MINIO_SECRET_KEY", "playgroundminio"),
		Region:         env.String("PLAYGROUND_MINIO_REGION", "us-east-1"),
		UseSSL:         useSSL,
		BucketDatasets: env.String("PLAYGROUND_MINIO_BUCKET_DATASETS", "datasets"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Enabled reports whether an endpoint was configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
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
	if strings.TrimSpace(c.BucketDatasets) == "" {
		return errors.New("datasets bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
