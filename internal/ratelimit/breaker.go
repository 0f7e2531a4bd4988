package ratelimit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerStore guards a BucketStore with a circuit breaker. While the breaker
// is open calls fail immediately with gobreaker.ErrOpenState, which the
// Limiter treats like any other store error and fails open, without waiting on
// a store that is known to be down.
type BreakerStore struct {
	next    BucketStore
	breaker *gobreaker.CircuitBreaker
}

var _ BucketStore = (*BreakerStore)(nil)

// NewBreakerStore trips after maxFailures consecutive failures and probes the
// store again after timeout.
func NewBreakerStore(next BucketStore, maxFailures uint32, timeout time.Duration) *BreakerStore {
	if maxFailures == 0 {
		maxFailures = 5
	}
	settings := gobreaker.Settings{
		Name:        "ratelimit-store",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerStore{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// State returns the current breaker state.
func (s *BreakerStore) State() gobreaker.State {
	return s.breaker.State()
}

// Load delegates to the wrapped store.
func (s *BreakerStore) Load(ctx context.Context, key string) (Bucket, bool, error) {
	type result struct {
		b     Bucket
		found bool
	}
	v, err := s.breaker.Execute(func() (interface{}, error) {
		b, found, err := s.next.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		return result{b: b, found: found}, nil
	})
	if err != nil {
		return Bucket{}, false, s.wrap(err)
	}
	r := v.(result)
	return r.b, r.found, nil
}

// Save delegates to the wrapped store.
func (s *BreakerStore) Save(ctx context.Context, key string, b Bucket) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.next.Save(ctx, key, b)
	})
	if err != nil {
		return s.wrap(err)
	}
	return nil
}

// Take delegates to the wrapped store.
func (s *BreakerStore) Take(ctx context.Context, key string, capacity, ratePerMilli float64, nowMs int64) (Bucket, bool, error) {
	type result struct {
		b        Bucket
		admitted bool
	}
	v, err := s.breaker.Execute(func() (interface{}, error) {
		b, ok, err := s.next.Take(ctx, key, capacity, ratePerMilli, nowMs)
		if err != nil {
			return nil, err
		}
		return result{b: b, admitted: ok}, nil
	})
	if err != nil {
		return Bucket{}, false, s.wrap(err)
	}
	r := v.(result)
	return r.b, r.admitted, nil
}

// Ping reports the open breaker as an error, otherwise pings the wrapped
// store when it supports it. Pings do not count towards tripping.
func (s *BreakerStore) Ping(ctx context.Context) error {
	if s.breaker.State() == gobreaker.StateOpen {
		return s.wrap(gobreaker.ErrOpenState)
	}
	if p, ok := s.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close closes the wrapped store when it is an io.Closer.
func (s *BreakerStore) Close() error {
	if c, ok := s.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *BreakerStore) wrap(err error) error {
	return fmt.Errorf("breaker (%s): %w", s.breaker.Name(), err)
}
