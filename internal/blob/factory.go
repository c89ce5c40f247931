package blob

import (
	"context"
	"fmt"
	"io"

	fsblob "qitp/internal/infra/blob/fs"
	memblob "qitp/internal/infra/blob/memory"
	s3blob "qitp/internal/infra/blob/s3"
)

// S3Config configures the s3 driver.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	PathStyle       bool   `mapstructure:"path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// Config selects and configures a driver.
type Config struct {
	Driver string   `mapstructure:"driver"`
	FSRoot string   `mapstructure:"fs_root"`
	S3     S3Config `mapstructure:"s3"`
}

// Open constructs the configured blob store. An empty driver selects memory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch Driver(cfg.Driver) {
	case "", DriverMemory:
		return memblob.New(), nil
	case DriverFilesystem:
		return fsblob.New(cfg.FSRoot)
	case DriverS3:
		return s3blob.New(ctx, s3blob.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			PathStyle:       cfg.S3.PathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewMemory returns an in-process store.
func NewMemory() Store { return memblob.New() }

// ReadAll fetches a blob's full content.
func ReadAll(ctx context.Context, store Store, key string) (Info, []byte, error) {
	info, rc, err := store.Get(ctx, key)
	if err != nil {
		return Info{}, nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return Info{}, nil, fmt.Errorf("read blob %s: %w", key, err)
	}
	return info, data, nil
}
