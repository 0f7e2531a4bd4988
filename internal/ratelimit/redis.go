package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces bucket keys in a shared Redis.
const DefaultKeyPrefix = "coursehub:ratelimit:"

// takeLua is the server-side form of Refill. Records that do not parse as
// non-negative finite numbers are treated as absent.
const takeLua = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local tokens = tonumber(redis.call("HGET", key, "tokens"))
local last = tonumber(redis.call("HGET", key, "last"))

if tokens == nil or last == nil or tokens ~= tokens or last ~= last
	or tokens < 0 or last < 0 or tokens == math.huge or last == math.huge then
	tokens = capacity
	last = now
end

local elapsed = now - last
if elapsed < 0 then
	elapsed = 0
end

tokens = math.min(capacity, tokens + elapsed * rate)

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

if last < now then
	last = now
end

redis.call("HSET", key, "tokens", tostring(tokens), "last", string.format("%d", last))
if ttl > 0 then
	redis.call("PEXPIRE", key, ttl)
end

return {allowed, tostring(tokens), string.format("%d", last)}
`

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	// Prefix is prepended to every identity key.
	Prefix string
	// TTL expires idle buckets. Zero keeps them forever; otherwise it must be
	// at least the window or buckets come back full early.
	TTL time.Duration
}

// RedisStore keeps buckets as Redis hashes with the fields "tokens" and "last".
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	take   *redis.Script
}

var _ BucketStore = (*RedisStore)(nil)

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, opts RedisOptions) *RedisStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    opts.TTL,
		take:   redis.NewScript(takeLua),
	}
}

// NewRedisClient builds a client from connection settings.
func NewRedisClient(addr, password string, db, poolSize int, dialTimeout, ioTimeout time.Duration) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
	})
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

// Load reads the bucket hash. A missing key or an unreadable record reports
// found=false.
func (s *RedisStore) Load(ctx context.Context, key string) (Bucket, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Bucket{}, false, nil
		}
		return Bucket{}, false, fmt.Errorf("failed to load bucket: %w", err)
	}
	b, found, err := decodeBucket(fields)
	if errors.Is(err, ErrMalformedBucket) {
		slog.Debug("Discarding malformed rate limit record", "key", redactKey(key))
		return Bucket{}, false, nil
	}
	return b, found, err
}

// Save writes the bucket hash and refreshes its expiry when a TTL is set.
func (s *RedisStore) Save(ctx context.Context, key string, b Bucket) error {
	rkey := s.key(key)
	if s.ttl <= 0 {
		if err := s.client.HSet(ctx, rkey, encodeBucket(b)...).Err(); err != nil {
			return fmt.Errorf("failed to save bucket: %w", err)
		}
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, rkey, encodeBucket(b)...)
		pipe.PExpire(ctx, rkey, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save bucket: %w", err)
	}
	return nil
}

// Take runs the refill script against the key.
func (s *RedisStore) Take(ctx context.Context, key string, capacity, ratePerMilli float64, nowMs int64) (Bucket, bool, error) {
	res, err := s.take.Run(ctx, s.client, []string{s.key(key)}, takeArgs(capacity, ratePerMilli, nowMs, s.ttl)...).Result()
	if err != nil {
		return Bucket{}, false, fmt.Errorf("failed to run take script: %w", err)
	}
	return parseTakeReply(res)
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func takeArgs(capacity, ratePerMilli float64, nowMs int64, ttl time.Duration) []interface{} {
	return []interface{}{
		strconv.FormatFloat(capacity, 'f', -1, 64),
		strconv.FormatFloat(ratePerMilli, 'f', -1, 64),
		strconv.FormatInt(nowMs, 10),
		strconv.FormatInt(ttl.Milliseconds(), 10),
	}
}

func parseTakeReply(res interface{}) (Bucket, bool, error) {
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 3 {
		return Bucket{}, false, fmt.Errorf("unexpected take reply %T", res)
	}
	allowed, ok := arr[0].(int64)
	if !ok {
		return Bucket{}, false, fmt.Errorf("unexpected take reply flag %T", arr[0])
	}
	tokensStr, _ := arr[1].(string)
	lastStr, _ := arr[2].(string)
	tokens, err := strconv.ParseFloat(tokensStr, 64)
	if err != nil {
		return Bucket{}, false, fmt.Errorf("unexpected take reply tokens %q: %w", tokensStr, err)
	}
	last, err := strconv.ParseInt(lastStr, 10, 64)
	if err != nil {
		return Bucket{}, false, fmt.Errorf("unexpected take reply timestamp %q: %w", lastStr, err)
	}
	return Bucket{Tokens: tokens, LastRefill: last}, allowed == 1, nil
}
