package storage

import (
	"context"
	"fmt"
)

type Config struct {
	Driver   string // none|local|s3
	LocalDir string
	S3       S3Config
}

type FactoryResult struct {
	Driver  string
	Archive Archive // nil when Driver is "none"
}

func New(ctx context.Context, cfg Config) (FactoryResult, error) {
	switch cfg.Driver {
	case "", "none":
		return FactoryResult{Driver: "none"}, nil

	case "local":
		dir := cfg.LocalDir
		if dir == "" {
			dir = "./storage/webhooks"
		}
		return FactoryResult{Driver: "local", Archive: NewLocal(dir)}, nil

	case "s3":
		if cfg.S3.Region == "" || cfg.S3.Bucket == "" {
			return FactoryResult{}, fmt.Errorf("S3 config missing: S3_REGION, S3_BUCKET required")
		}
		s, err := NewS3(ctx, cfg.S3)
		if err != nil {
			return FactoryResult{}, err
		}
		return FactoryResult{Driver: "s3", Archive: s}, nil

	default:
		return FactoryResult{}, fmt.Errorf("unknown ARCHIVE_DRIVER: %s", cfg.Driver)
	}
}
