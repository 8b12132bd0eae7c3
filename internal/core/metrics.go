package core

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder observes service operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// FallbackRecorder is optionally implemented by a MetricsRecorder to count
// reads that fell back from the aggregated query to separate queries.
type FallbackRecorder interface {
	Fallback(operation string)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// PromRecorder publishes operation latencies and fallback counts to Prometheus.
type PromRecorder struct {
	durations *prometheus.HistogramVec
	fallbacks *prometheus.CounterVec
}

// NewPromRecorder creates the collectors and registers them with reg. A
// collector already registered under the same name is reused.
func NewPromRecorder(reg prometheus.Registerer) (*PromRecorder, error) {
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stratbook",
		Subsystem: "service",
		Name:      "operation_duration_seconds",
		Help:      "Duration of service operations by outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"})
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stratbook",
		Name:      "detail_fallback_total",
		Help:      "Reads served by the multi-query fallback instead of the aggregated query.",
	}, []string{"operation"})

	var err error
	if durations, err = register(reg, durations); err != nil {
		return nil, err
	}
	if fallbacks, err = register(reg, fallbacks); err != nil {
		return nil, err
	}
	return &PromRecorder{durations: durations, fallbacks: fallbacks}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Observe implements MetricsRecorder.
func (r *PromRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// Fallback implements FallbackRecorder.
func (r *PromRecorder) Fallback(operation string) {
	r.fallbacks.WithLabelValues(operation).Inc()
}
