package blob

import (
	"github.com/nrzngr/exvoria-strat-management/internal/infra/blob/fs"
)

// NewFilesystem constructs a filesystem-backed blob.Store under root/bucket.
// Returns blob.Store to encourage call sites to depend on the interface instead of
// concrete implementations.
func NewFilesystem(root, bucket, publicBaseURL string) (Store, error) {
	return fs.New(fs.Config{Root: root, Bucket: bucket, PublicBaseURL: publicBaseURL})
}
