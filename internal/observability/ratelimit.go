package observability

import (
	"context"
	"io"
	"time"

	"coursehub/internal/ratelimit"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// RateLimitMetrics counts limiter decisions by outcome and quota class. It
// implements ratelimit.Recorder.
type RateLimitMetrics struct {
	decisions metric.Int64Counter
	tokens    metric.Float64Histogram
}

var _ ratelimit.Recorder = (*RateLimitMetrics)(nil)

// NewRateLimitMetrics registers the decision instruments on the global meter
// provider.
func NewRateLimitMetrics() (*RateLimitMetrics, error) {
	meter := otel.Meter(scopeRateLimit)

	decisions, err := meter.Int64Counter(
		"ratelimit.decisions",
		metric.WithDescription("Rate limiter decisions by outcome and class"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	tokens, err := meter.Float64Histogram(
		"ratelimit.tokens.remaining",
		metric.WithDescription("Tokens left in the bucket after an admitted request"),
		metric.WithUnit("{token}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 5, 10, 20, 30, 50, 100),
	)
	if err != nil {
		return nil, err
	}

	return &RateLimitMetrics{decisions: decisions, tokens: tokens}, nil
}

// RecordDecision counts one decision. Keys are never recorded.
func (m *RateLimitMetrics) RecordDecision(ctx context.Context, d ratelimit.Decision) {
	attrs := metric.WithAttributes(
		attribute.String("outcome", d.Outcome.String()),
		attribute.String("class", string(d.Class)),
	)
	m.decisions.Add(ctx, 1, attrs)
	if d.Outcome == ratelimit.OutcomeAdmit {
		m.tokens.Record(ctx, d.Tokens, metric.WithAttributes(attribute.String("class", string(d.Class))))
	}
}

// InstrumentedBucketStore wraps a ratelimit.BucketStore with spans and
// latency metrics.
type InstrumentedBucketStore struct {
	inner    ratelimit.BucketStore
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

var _ ratelimit.BucketStore = (*InstrumentedBucketStore)(nil)

func NewInstrumentedBucketStore(inner ratelimit.BucketStore) (*InstrumentedBucketStore, error) {
	meter := otel.Meter(scopeRateLimit)

	duration, err := meter.Float64Histogram(
		"ratelimit.store.duration",
		metric.WithDescription("Duration of bucket store operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"ratelimit.store.errors",
		metric.WithDescription("Number of failed bucket store operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedBucketStore{
		inner:    inner,
		tracer:   otel.Tracer(scopeRateLimit),
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedBucketStore) observe(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "ratelimit.store."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("ratelimit.operation", operation)),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	s.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *InstrumentedBucketStore) Load(ctx context.Context, key string) (b ratelimit.Bucket, found bool, err error) {
	err = s.observe(ctx, "Load", func(ctx context.Context) error {
		b, found, err = s.inner.Load(ctx, key)
		return err
	})
	return b, found, err
}

func (s *InstrumentedBucketStore) Save(ctx context.Context, key string, b ratelimit.Bucket) error {
	return s.observe(ctx, "Save", func(ctx context.Context) error {
		return s.inner.Save(ctx, key, b)
	})
}

func (s *InstrumentedBucketStore) Take(ctx context.Context, key string, capacity, ratePerMilli float64, nowMs int64) (b ratelimit.Bucket, admitted bool, err error) {
	err = s.observe(ctx, "Take", func(ctx context.Context) error {
		b, admitted, err = s.inner.Take(ctx, key, capacity, ratePerMilli, nowMs)
		return err
	})
	return b, admitted, err
}

// Ping forwards to the wrapped store when it supports health checks.
func (s *InstrumentedBucketStore) Ping(ctx context.Context) error {
	if p, ok := s.inner.(ratelimit.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *InstrumentedBucketStore) Close() error {
	if c, ok := s.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
