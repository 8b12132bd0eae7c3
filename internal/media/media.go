// Package media validates uploaded images and writes them to object storage.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nrzngr/exvoria-strat-management/internal/blob"
	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

// DefaultMaxBytes is the per-file size limit (5 MiB).
const DefaultMaxBytes int64 = 5 << 20

// DefaultAllowedTypes lists the accepted image MIME types.
var DefaultAllowedTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// Constraints bound what an upload may contain.
type Constraints struct {
	MaxBytes     int64
	AllowedTypes []string
}

// DefaultConstraints returns the 5 MiB / png,jpeg,gif,webp policy.
func DefaultConstraints() Constraints {
	return Constraints{MaxBytes: DefaultMaxBytes, AllowedTypes: append([]string(nil), DefaultAllowedTypes...)}
}

// File is one uploaded file held in memory. Size, when larger than Data, is
// the declared size of a file that was not read in full.
type File struct {
	Name string
	Data []byte
	Size int64
}

// Detected is the outcome of content sniffing.
type Detected struct {
	ContentType string
	Extension   string
}

// Validate checks size and sniffed MIME type. Rejections are domain.ValidationError.
func (c Constraints) Validate(f File) (Detected, error) {
	size := max(f.Size, int64(len(f.Data)))
	if c.MaxBytes > 0 && size > c.MaxBytes {
		return Detected{}, domain.ValidationError{Field: f.Name, Message: fmt.Sprintf("file exceeds %d bytes", c.MaxBytes)}
	}
	if len(f.Data) == 0 {
		return Detected{}, domain.ValidationError{Field: f.Name, Message: "file is empty"}
	}
	mt := mimetype.Detect(f.Data)
	allowed := c.AllowedTypes
	if len(allowed) == 0 {
		allowed = DefaultAllowedTypes
	}
	for _, a := range allowed {
		if mt.Is(a) {
			return Detected{ContentType: a, Extension: mt.Extension()}, nil
		}
	}
	return Detected{}, domain.ValidationError{Field: f.Name, Message: fmt.Sprintf("unsupported content type %s", mt.String())}
}

// StrategyPrefix is the key prefix for a strategy's images.
func StrategyPrefix(strategyID string) string { return path.Join("strategies", strategyID) }

// MapPrefix is the key prefix for a map's thumbnails.
func MapPrefix(mapID string) string { return path.Join("maps", mapID) }

// Stored describes a file written to object storage.
type Stored struct {
	Name        string
	StoragePath string
	BucketName  string
	URL         string
	ContentType string
	Size        int64
}

// Rejected names a file that failed validation.
type Rejected struct {
	Name string
	Err  error
}

// Report summarises an UploadAll call. Failed is set when a storage error
// aborted the batch; files after it were not attempted.
type Report struct {
	Uploaded []Stored
	Rejected []Rejected
	Failed   *Rejected
}

// UploadError is the storage failure that stopped a batch. Report holds the
// files stored and rejected before it.
type UploadError struct {
	File   string
	Report Report
	Err    error
}

func (e *UploadError) Error() string { return fmt.Sprintf("upload %s: %v", e.File, e.Err) }

func (e *UploadError) Unwrap() error { return e.Err }

// Uploader writes validated files to a blob.Store one at a time.
type Uploader struct {
	store       blob.Store
	constraints Constraints
	logger      *zap.Logger
	newID       func() string
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithConstraints overrides the default validation policy.
func WithConstraints(c Constraints) Option {
	return func(u *Uploader) { u.constraints = c }
}

// WithLogger sets the logger used for rejects and failures.
func WithLogger(l *zap.Logger) Option {
	return func(u *Uploader) {
		if l != nil {
			u.logger = l
		}
	}
}

// NewUploader constructs an Uploader over store.
func NewUploader(store blob.Store, opts ...Option) *Uploader {
	u := &Uploader{
		store:       store,
		constraints: DefaultConstraints(),
		logger:      zap.NewNop(),
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Constraints returns the active validation policy.
func (u *Uploader) Constraints() Constraints { return u.constraints }

// Ready reports domain.ErrNotConfigured when the store accepts no writes.
func (u *Uploader) Ready() error {
	if u.store.Driver() == blob.DriverNone {
		return fmt.Errorf("object storage: %w", domain.ErrNotConfigured)
	}
	return nil
}

// Upload validates and stores a single file under prefix. Storage failures
// are *UploadError.
func (u *Uploader) Upload(ctx context.Context, prefix string, f File) (Stored, error) {
	det, err := u.constraints.Validate(f)
	if err != nil {
		return Stored{}, err
	}
	key := path.Join(prefix, u.newID()+det.Extension)
	info, err := u.store.Put(ctx, key, bytes.NewReader(f.Data), blob.PutOptions{
		ContentType: det.ContentType,
		Metadata:    map[string]string{"original-name": f.Name},
	})
	if err != nil {
		return Stored{}, &UploadError{File: f.Name, Err: err}
	}
	return Stored{
		Name:        f.Name,
		StoragePath: key,
		BucketName:  u.store.Bucket(),
		URL:         u.store.PublicURL(key),
		ContentType: det.ContentType,
		Size:        info.Size,
	}, nil
}

// UploadAll processes files sequentially. Validation rejects are recorded and
// skipped; the first storage failure stops the batch and is returned as an
// *UploadError. Files stored before the failure stay in place.
func (u *Uploader) UploadAll(ctx context.Context, prefix string, files []File) (Report, error) {
	var rep Report
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			rep.Failed = &Rejected{Name: f.Name, Err: err}
			return rep, &UploadError{File: f.Name, Report: rep, Err: err}
		}
		stored, err := u.Upload(ctx, prefix, f)
		if err != nil {
			if domain.IsValidation(err) {
				u.logger.Warn("image rejected", zap.String("file", f.Name), zap.Error(err))
				rep.Rejected = append(rep.Rejected, Rejected{Name: f.Name, Err: err})
				continue
			}
			u.logger.Error("image upload failed", zap.String("file", f.Name), zap.Error(err))
			rep.Failed = &Rejected{Name: f.Name, Err: err}
			var ue *UploadError
			if !errors.As(err, &ue) {
				ue = &UploadError{File: f.Name, Err: err}
			}
			ue.Report = rep
			return rep, ue
		}
		rep.Uploaded = append(rep.Uploaded, stored)
	}
	return rep, nil
}
