package blob

import (
	"context"

	infraS3 "github.com/nrzngr/exvoria-strat-management/internal/infra/blob/s3"
)

// S3Config re-exports the infra S3 configuration type.
type S3Config = infraS3.Config

// NewS3 constructs an S3-backed blob.Store from the provided configuration.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests exposes the in-memory S3 fake for cross-package tests.
func NewMockS3ForTests(bucket string) Store { return infraS3.NewMockForTests(bucket) }
