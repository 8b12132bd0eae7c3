package blob

import (
	"context"
	"fmt"
	"io"

	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

// Config selects and configures a blob driver.
//
//	Driver: fs|s3|memory|none (default fs)
//	FSRoot: directory root when Driver=fs (default ./blobdata)
//	Bucket: bucket (fs: subdirectory) holding uploaded images
type Config struct {
	Driver        Driver
	FSRoot        string
	Bucket        string
	PublicBaseURL string
	S3            S3Config
}

// Open returns the Store selected by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverFilesystem
	}
	switch cfg.Driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot, cfg.Bucket, cfg.PublicBaseURL)
	case DriverS3:
		s3cfg := cfg.S3
		if s3cfg.Bucket == "" {
			s3cfg.Bucket = cfg.Bucket
		}
		if s3cfg.PublicBaseURL == "" {
			s3cfg.PublicBaseURL = cfg.PublicBaseURL
		}
		return NewS3(ctx, s3cfg)
	case DriverMemory:
		return NewMemory(cfg.Bucket), nil
	case DriverNone:
		return Disabled(cfg.Bucket), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

// Disabled returns a Store that rejects every operation with
// domain.ErrNotConfigured.
func Disabled(bucket string) Store { return disabled{bucket: bucket} }

type disabled struct{ bucket string }

func (disabled) Put(context.Context, string, io.Reader, PutOptions) (Info, error) {
	return Info{}, fmt.Errorf("object storage: %w", domain.ErrNotConfigured)
}

func (disabled) Get(context.Context, string) (Info, io.ReadCloser, error) {
	return Info{}, nil, fmt.Errorf("object storage: %w", domain.ErrNotConfigured)
}

func (disabled) Head(context.Context, string) (Info, error) {
	return Info{}, fmt.Errorf("object storage: %w", domain.ErrNotConfigured)
}

func (disabled) Delete(context.Context, string) (bool, error) {
	return false, fmt.Errorf("object storage: %w", domain.ErrNotConfigured)
}

func (disabled) List(context.Context, string) ([]Info, error) {
	return nil, fmt.Errorf("object storage: %w", domain.ErrNotConfigured)
}

func (disabled) PresignURL(context.Context, string, SignedURLOptions) (string, error) {
	return "", fmt.Errorf("object storage: %w", domain.ErrNotConfigured)
}

func (disabled) PublicURL(string) string { return "" }

func (d disabled) Bucket() string { return d.bucket }

func (disabled) Driver() Driver { return DriverNone }
