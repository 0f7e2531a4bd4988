package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
)

// Field names of a bucket record in the store.
const (
	fieldTokens = "tokens"
	fieldLast   = "last"
)

// ErrMalformedBucket is returned when a stored record cannot be decoded.
var ErrMalformedBucket = errors.New("malformed bucket record")

// Bucket is the persisted state of one identity.
type Bucket struct {
	Tokens     float64 // available credits
	LastRefill int64   // milliseconds since epoch of the last evaluation
}

// Valid reports whether the bucket holds usable numbers.
func (b Bucket) Valid() bool {
	return !math.IsNaN(b.Tokens) && !math.IsInf(b.Tokens, 0) && b.Tokens >= 0 && b.LastRefill >= 0
}

// BucketStore persists buckets by identity key. Load reports found=false for
// a key that has never been written; that is not an error. Implementations
// must be safe for concurrent use.
type BucketStore interface {
	Load(ctx context.Context, key string) (Bucket, bool, error)
	Save(ctx context.Context, key string, b Bucket) error

	// Take performs Refill and the write-back as one atomic step inside the
	// store and returns the persisted bucket.
	Take(ctx context.Context, key string, capacity, ratePerMilli float64, nowMs int64) (Bucket, bool, error)
}

// Pinger is implemented by stores that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// encodeBucket renders a bucket as ordered field/value pairs for HSET.
func encodeBucket(b Bucket) []interface{} {
	return []interface{}{
		fieldTokens, strconv.FormatFloat(b.Tokens, 'f', -1, 64),
		fieldLast, strconv.FormatInt(b.LastRefill, 10),
	}
}

// decodeBucket parses stored fields. An empty map means no record.
func decodeBucket(fields map[string]string) (Bucket, bool, error) {
	if len(fields) == 0 {
		return Bucket{}, false, nil
	}
	tokens, err := strconv.ParseFloat(fields[fieldTokens], 64)
	if err != nil {
		return Bucket{}, true, ErrMalformedBucket
	}
	last, err := strconv.ParseInt(fields[fieldLast], 10, 64)
	if err != nil {
		// Some clients write the timestamp as a float.
		f, ferr := strconv.ParseFloat(fields[fieldLast], 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return Bucket{}, true, ErrMalformedBucket
		}
		last = int64(f)
	}
	b := Bucket{Tokens: tokens, LastRefill: last}
	if !b.Valid() {
		return Bucket{}, true, ErrMalformedBucket
	}
	return b, true, nil
}
