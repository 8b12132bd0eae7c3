// Package core implements the strategy book service: map and strategy CRUD,
// the versioning protocol, image copy-forward, and aggregated reads with a
// multi-query fallback.
package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nrzngr/exvoria-strat-management/internal/blob"
	"github.com/nrzngr/exvoria-strat-management/internal/media"
	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// Service exposes transactional operations over maps, strategies, versions,
// and images.
type Service struct {
	store       PersistentStore
	blobs       blob.Store
	constraints media.Constraints
	uploader    *media.Uploader
	logger      *zap.Logger
	metrics     MetricsRecorder
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder sets the recorder that observes every operation.
func WithMetricsRecorder(r MetricsRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithBlobStore sets the object store used for image uploads and cleanup.
func WithBlobStore(b blob.Store) Option {
	return func(s *Service) {
		if b != nil {
			s.blobs = b
		}
	}
}

// WithUploadConstraints overrides the image size and type policy.
func WithUploadConstraints(c media.Constraints) Option {
	return func(s *Service) { s.constraints = c }
}

// WithClock overrides the clock used for operation timings.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a service backed by the supplied store. Without a blob
// store every upload fails with domain.ErrNotConfigured.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:       store,
		blobs:       blob.Disabled(""),
		constraints: media.DefaultConstraints(),
		logger:      zap.NewNop(),
		metrics:     noopMetrics{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.uploader = media.NewUploader(s.blobs, media.WithConstraints(s.constraints), media.WithLogger(s.logger))
	return s
}

// Store returns the underlying persistence implementation.
func (s *Service) Store() PersistentStore { return s.store }

// Blobs returns the configured object store.
func (s *Service) Blobs() blob.Store { return s.blobs }

// UploadConstraints returns the image size and type policy.
func (s *Service) UploadConstraints() media.Constraints { return s.constraints }

// Close releases the underlying store.
func (s *Service) Close() error { return s.store.Close() }

// observe records the outcome of an operation started at start.
func (s *Service) observe(ctx context.Context, op string, start time.Time, err error) {
	s.metrics.Observe(ctx, op, err == nil, s.now().Sub(start))
}

func (s *Service) run(ctx context.Context, op string, fn func(Transaction) error) error {
	start := s.now()
	err := s.store.RunInTransaction(ctx, fn)
	s.observe(ctx, op, start, err)
	return err
}

func (s *Service) view(ctx context.Context, op string, fn func(TransactionView) error) error {
	start := s.now()
	err := s.store.View(ctx, fn)
	s.observe(ctx, op, start, err)
	return err
}
