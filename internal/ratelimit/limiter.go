// Package ratelimit provides per-identity rate limiting for HTTP requests
// using a continuously refilled token bucket. Bucket state lives in an external
// BucketStore (Redis in production) so that several server instances share one
// quota; the Limiter itself keeps no state between requests. Two quota classes
// exist: anonymous traffic keyed by client IP and authenticated traffic keyed
// by the presented credential.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Class identifies the quota class a request is evaluated under.
type Class string

const (
	ClassAnonymous     Class = "anonymous"
	ClassAuthenticated Class = "authenticated"
)

// Outcome is the internal result of a single evaluation. StoreError is kept
// distinct from Admit so callers and tests can tell a fail-open admission
// from a real one.
type Outcome int

const (
	OutcomeAdmit Outcome = iota
	OutcomeReject
	OutcomeStoreError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdmit:
		return "admit"
	case OutcomeReject:
		return "reject"
	case OutcomeStoreError:
		return "store_error"
	default:
		return "unknown"
	}
}

// Config holds the quota settings shared by every identity.
type Config struct {
	// Window is the period quotas are expressed over.
	Window time.Duration
	// AnonymousCapacity is the bucket size for IP-keyed traffic.
	AnonymousCapacity int
	// AuthenticatedCapacity is the bucket size for credential-keyed traffic.
	// It must not be lower than AnonymousCapacity.
	AuthenticatedCapacity int
	// Atomic evaluates the read-modify-write inside the store in one call.
	Atomic bool
}

// DefaultConfig returns 10 anonymous and 30 authenticated requests per minute.
func DefaultConfig() Config {
	return Config{
		Window:                time.Minute,
		AnonymousCapacity:     10,
		AuthenticatedCapacity: 30,
	}
}

// Validate checks the configuration for values the algorithm cannot use.
func (c Config) Validate() error {
	if c.Window < time.Millisecond {
		return errors.New("rate limit window must be at least 1ms")
	}
	if c.AnonymousCapacity <= 0 {
		return errors.New("anonymous capacity must be positive")
	}
	if c.AuthenticatedCapacity <= 0 {
		return errors.New("authenticated capacity must be positive")
	}
	if c.AuthenticatedCapacity < c.AnonymousCapacity {
		return fmt.Errorf("authenticated capacity (%d) must not be lower than anonymous capacity (%d)",
			c.AuthenticatedCapacity, c.AnonymousCapacity)
	}
	return nil
}

// Capacity returns the bucket size for a class.
func (c Config) Capacity(class Class) float64 {
	if class == ClassAuthenticated {
		return float64(c.AuthenticatedCapacity)
	}
	return float64(c.AnonymousCapacity)
}

// RatePerMilli returns the refill rate for a class in tokens per millisecond.
func (c Config) RatePerMilli(class Class) float64 {
	return c.Capacity(class) / float64(c.Window.Milliseconds())
}

// Decision is the result of Admit.
type Decision struct {
	Key        string
	Class      Class
	Outcome    Outcome
	Capacity   int
	Tokens     float64       // tokens left after this request
	RetryAfter time.Duration // time until one token is available (rejections only)
	ResetAt    time.Time     // when the bucket will be full again
	Err        error         // store error, if any; never changes an Admit/Reject
}

// Allowed reports whether the request may proceed. Store errors fail open.
func (d Decision) Allowed() bool {
	return d.Outcome != OutcomeReject
}

// Remaining returns the whole tokens left, for response headers.
func (d Decision) Remaining() int {
	return int(math.Max(0, math.Floor(d.Tokens)))
}

// Limiter evaluates token buckets held in a BucketStore.
type Limiter struct {
	store BucketStore
	cfg   Config
}

// NewLimiter creates a Limiter over the given store.
func NewLimiter(store BucketStore, cfg Config) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("bucket store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Limiter{store: store, cfg: cfg}, nil
}

// Config returns the limiter configuration.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Admit evaluates one request for key at time now, consumes a token when one
// is available and persists the bucket. Store failures never propagate: a
// failed read yields OutcomeStoreError, a failed write is recorded in
// Decision.Err.
func (l *Limiter) Admit(ctx context.Context, key string, authenticated bool, now time.Time) Decision {
	class := ClassAnonymous
	if authenticated {
		class = ClassAuthenticated
	}
	capacity := l.cfg.Capacity(class)
	rate := l.cfg.RatePerMilli(class)
	nowMs := now.UnixMilli()

	d := Decision{
		Key:      key,
		Class:    class,
		Capacity: int(capacity),
	}

	var (
		bucket   Bucket
		admitted bool
	)
	if l.cfg.Atomic {
		b, ok, err := l.store.Take(ctx, key, capacity, rate, nowMs)
		if err != nil {
			return l.failOpen(d, now, err)
		}
		bucket, admitted = b, ok
	} else {
		stored, found, err := l.store.Load(ctx, key)
		if err != nil {
			return l.failOpen(d, now, err)
		}
		bucket, admitted = Refill(stored, found, capacity, rate, nowMs)
		if err := l.store.Save(ctx, key, bucket); err != nil {
			slog.Warn("Rate limit store write failed", "key", redactKey(key), "error", err)
			d.Err = err
		}
	}

	d.Tokens = bucket.Tokens
	if admitted {
		d.Outcome = OutcomeAdmit
	} else {
		d.Outcome = OutcomeReject
		d.RetryAfter = millis((1 - bucket.Tokens) / rate)
	}
	d.ResetAt = now.Add(millis((capacity - bucket.Tokens) / rate))
	return d
}

func (l *Limiter) failOpen(d Decision, now time.Time, err error) Decision {
	slog.Warn("Rate limit store unavailable, failing open", "key", redactKey(d.Key), "error", err)
	d.Outcome = OutcomeStoreError
	d.Err = err
	d.Tokens = float64(d.Capacity)
	d.ResetAt = now
	return d
}

// Refill applies the continuous refill to a stored bucket and tries to take a
// token. A missing or malformed bucket starts full at nowMs. The returned
// bucket is what must be persisted, on admission and on rejection alike.
func Refill(stored Bucket, found bool, capacity, ratePerMilli float64, nowMs int64) (Bucket, bool) {
	if !found || !stored.Valid() {
		stored = Bucket{Tokens: capacity, LastRefill: nowMs}
	}

	elapsed := nowMs - stored.LastRefill
	if elapsed < 0 {
		elapsed = 0
	}

	tokens := math.Min(capacity, stored.Tokens+float64(elapsed)*ratePerMilli)
	admitted := tokens >= 1
	if admitted {
		tokens--
	}

	last := nowMs
	if stored.LastRefill > nowMs {
		last = stored.LastRefill
	}
	return Bucket{Tokens: tokens, LastRefill: last}, admitted
}

func millis(ms float64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(ms)) * time.Millisecond
}
