package ratelimit

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockBucketStore is a testify mock of BucketStore.
type MockBucketStore struct {
	mock.Mock
}

func (m *MockBucketStore) Load(ctx context.Context, key string) (Bucket, bool, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(Bucket), args.Bool(1), args.Error(2)
}

func (m *MockBucketStore) Save(ctx context.Context, key string, b Bucket) error {
	args := m.Called(ctx, key, b)
	return args.Error(0)
}

func (m *MockBucketStore) Take(ctx context.Context, key string, capacity, ratePerMilli float64, nowMs int64) (Bucket, bool, error) {
	args := m.Called(ctx, key, capacity, ratePerMilli, nowMs)
	return args.Get(0).(Bucket), args.Bool(1), args.Error(2)
}

var errStoreDown = errors.New("connection refused")

func at(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func newTestLimiter(t *testing.T, store BucketStore, atomic bool) *Limiter {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Atomic = atomic
	l, err := NewLimiter(store, cfg)
	require.NoError(t, err)
	return l
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"zero window", func(c *Config) { c.Window = 0 }, "window"},
		{"sub-millisecond window", func(c *Config) { c.Window = time.Microsecond }, "window"},
		{"zero anonymous", func(c *Config) { c.AnonymousCapacity = 0 }, "anonymous capacity"},
		{"negative authenticated", func(c *Config) { c.AuthenticatedCapacity = -1 }, "authenticated capacity"},
		{"authenticated below anonymous", func(c *Config) { c.AuthenticatedCapacity = 5 }, "must not be lower"},
		{"equal capacities", func(c *Config) { c.AuthenticatedCapacity = c.AnonymousCapacity }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Rates(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10.0, cfg.Capacity(ClassAnonymous))
	assert.Equal(t, 30.0, cfg.Capacity(ClassAuthenticated))
	assert.InDelta(t, 10.0/60000, cfg.RatePerMilli(ClassAnonymous), 1e-12)
	assert.InDelta(t, 30.0/60000, cfg.RatePerMilli(ClassAuthenticated), 1e-12)
}

func TestNewLimiter_Errors(t *testing.T) {
	_, err := NewLimiter(nil, DefaultConfig())
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Window = 0
	_, err = NewLimiter(NewMemoryStore(0, 0), cfg)
	assert.Error(t, err)
}

func TestRefill(t *testing.T) {
	const capacity = 10.0
	rate := capacity / 60000

	t.Run("missing bucket starts full", func(t *testing.T) {
		b, ok := Refill(Bucket{}, false, capacity, rate, 1000)
		assert.True(t, ok)
		assert.Equal(t, 9.0, b.Tokens)
		assert.Equal(t, int64(1000), b.LastRefill)
	})

	t.Run("malformed bucket starts full", func(t *testing.T) {
		for _, stored := range []Bucket{
			{Tokens: math.NaN(), LastRefill: 5},
			{Tokens: math.Inf(1), LastRefill: 5},
			{Tokens: -3, LastRefill: 5},
			{Tokens: 2, LastRefill: -1},
		} {
			b, ok := Refill(stored, true, capacity, rate, 1000)
			assert.True(t, ok)
			assert.Equal(t, 9.0, b.Tokens)
			assert.Equal(t, int64(1000), b.LastRefill)
		}
	})

	t.Run("refill is clamped to capacity", func(t *testing.T) {
		b, ok := Refill(Bucket{Tokens: 5, LastRefill: 0}, true, capacity, rate, 10*60000)
		assert.True(t, ok)
		assert.Equal(t, 9.0, b.Tokens)
	})

	t.Run("negative elapsed does not refill", func(t *testing.T) {
		b, ok := Refill(Bucket{Tokens: 0.5, LastRefill: 5000}, true, capacity, rate, 1000)
		assert.False(t, ok)
		assert.Equal(t, 0.5, b.Tokens)
		assert.Equal(t, int64(5000), b.LastRefill, "last refill never moves backwards")
	})

	t.Run("rejection persists current tokens", func(t *testing.T) {
		b, ok := Refill(Bucket{Tokens: 0, LastRefill: 0}, true, capacity, rate, 3000)
		assert.False(t, ok)
		assert.InDelta(t, 0.5, b.Tokens, 1e-9)
		assert.Equal(t, int64(3000), b.LastRefill)
	})
}

func TestLimiter_Scenario(t *testing.T) {
	for _, atomic := range []bool{false, true} {
		t.Run(map[bool]string{false: "load-save", true: "atomic"}[atomic], func(t *testing.T) {
			store := NewMemoryStore(0, 0)
			l := newTestLimiter(t, store, atomic)
			ctx := context.Background()

			for i := 0; i < 10; i++ {
				d := l.Admit(ctx, "ip:10.0.0.1", false, at(0))
				require.Equal(t, OutcomeAdmit, d.Outcome, "request %d", i+1)
			}
			b, found, err := store.Load(ctx, "ip:10.0.0.1")
			require.NoError(t, err)
			require.True(t, found)
			assert.InDelta(t, 0, b.Tokens, 1e-9)

			d := l.Admit(ctx, "ip:10.0.0.1", false, at(0))
			assert.Equal(t, OutcomeReject, d.Outcome)
			assert.False(t, d.Allowed())
			assert.Equal(t, 6*time.Second, d.RetryAfter)

			d = l.Admit(ctx, "ip:10.0.0.1", false, at(6000))
			assert.Equal(t, OutcomeAdmit, d.Outcome)
			assert.InDelta(t, 0, d.Tokens, 1e-9)
		})
	}
}

func TestLimiter_ClassIsolation(t *testing.T) {
	store := NewMemoryStore(0, 0)
	l := newTestLimiter(t, store, false)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		d := l.Admit(ctx, "user:token-abc", true, at(0))
		require.Equal(t, OutcomeAdmit, d.Outcome, "authenticated request %d", i+1)
		assert.Equal(t, 30, d.Capacity)
		assert.Equal(t, ClassAuthenticated, d.Class)
	}
	assert.Equal(t, OutcomeReject, l.Admit(ctx, "user:token-abc", true, at(0)).Outcome)

	for i := 0; i < 10; i++ {
		d := l.Admit(ctx, "ip:10.0.0.1", false, at(0))
		require.Equal(t, OutcomeAdmit, d.Outcome, "anonymous request %d", i+1)
		assert.Equal(t, 10, d.Capacity)
	}
	assert.Equal(t, OutcomeReject, l.Admit(ctx, "ip:10.0.0.1", false, at(0)).Outcome)
	assert.Equal(t, OutcomeReject, l.Admit(ctx, "user:token-abc", true, at(0)).Outcome)
}

func TestLimiter_Conservation(t *testing.T) {
	store := NewMemoryStore(0, 0)
	l := newTestLimiter(t, store, false)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "ip:a", Bucket{Tokens: 3.7, LastRefill: 500}))

	admits := 0
	for i := 0; i < 10; i++ {
		if l.Admit(ctx, "ip:a", false, at(500)).Outcome == OutcomeAdmit {
			admits++
		}
	}
	assert.Equal(t, 3, admits)
}

func TestLimiter_RefillOneToken(t *testing.T) {
	store := NewMemoryStore(0, 0)
	l := newTestLimiter(t, store, false)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "ip:a", Bucket{Tokens: 0, LastRefill: 1000}))

	// 60000ms / 10 = 6000ms per token
	assert.Equal(t, OutcomeAdmit, l.Admit(ctx, "ip:a", false, at(7000)).Outcome)
	assert.Equal(t, OutcomeReject, l.Admit(ctx, "ip:a", false, at(7000)).Outcome)
}

func TestLimiter_NoTokenBeforeInterval(t *testing.T) {
	store := NewMemoryStore(0, 0)
	l := newTestLimiter(t, store, false)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "ip:a", Bucket{Tokens: 0, LastRefill: 1000}))

	d := l.Admit(ctx, "ip:a", false, at(6999))
	assert.Equal(t, OutcomeReject, d.Outcome)
	assert.Equal(t, time.Millisecond, d.RetryAfter)
}

func TestLimiter_TokensStayBounded(t *testing.T) {
	store := NewMemoryStore(0, 0)
	l := newTestLimiter(t, store, false)
	ctx := context.Background()

	now := int64(0)
	steps := []int64{0, 0, 100, 7000, 0, 250000, 1, 1, 3, 60000, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 90}
	for _, step := range steps {
		now += step
		d := l.Admit(ctx, "ip:b", false, at(now))
		b, _, err := store.Load(ctx, "ip:b")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, b.Tokens, 0.0)
		assert.LessOrEqual(t, b.Tokens, float64(d.Capacity))
	}
}

func TestLimiter_FailOpenOnLoadError(t *testing.T) {
	store := new(MockBucketStore)
	store.On("Load", mock.Anything, "ip:a").Return(Bucket{}, false, errStoreDown)

	l := newTestLimiter(t, store, false)
	for i := 0; i < 50; i++ {
		d := l.Admit(context.Background(), "ip:a", false, at(0))
		assert.Equal(t, OutcomeStoreError, d.Outcome)
		assert.True(t, d.Allowed())
		assert.ErrorIs(t, d.Err, errStoreDown)
	}
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

func TestLimiter_FailOpenOnTakeError(t *testing.T) {
	store := new(MockBucketStore)
	store.On("Take", mock.Anything, "user:x", 30.0, mock.Anything, int64(0)).Return(Bucket{}, false, errStoreDown)

	l := newTestLimiter(t, store, true)
	d := l.Admit(context.Background(), "user:x", true, at(0))
	assert.Equal(t, OutcomeStoreError, d.Outcome)
	assert.True(t, d.Allowed())
	store.AssertExpectations(t)
}

func TestLimiter_WriteErrorKeepsDecision(t *testing.T) {
	store := new(MockBucketStore)
	store.On("Load", mock.Anything, "ip:a").Return(Bucket{Tokens: 0, LastRefill: 0}, true, nil)
	store.On("Save", mock.Anything, "ip:a", Bucket{Tokens: 0, LastRefill: 0}).Return(errStoreDown)

	l := newTestLimiter(t, store, false)
	d := l.Admit(context.Background(), "ip:a", false, at(0))
	assert.Equal(t, OutcomeReject, d.Outcome)
	assert.ErrorIs(t, d.Err, errStoreDown)
	store.AssertExpectations(t)
}

func TestLimiter_PersistsOnReject(t *testing.T) {
	store := new(MockBucketStore)
	store.On("Load", mock.Anything, "ip:a").Return(Bucket{Tokens: 0.25, LastRefill: 1000}, true, nil)
	store.On("Save", mock.Anything, "ip:a", mock.MatchedBy(func(b Bucket) bool {
		return b.LastRefill == 2000 && math.Abs(b.Tokens-(0.25+1000*10.0/60000)) < 1e-9
	})).Return(nil).Once()

	l := newTestLimiter(t, store, false)
	d := l.Admit(context.Background(), "ip:a", false, at(2000))
	assert.Equal(t, OutcomeReject, d.Outcome)
	store.AssertExpectations(t)
}

func TestLimiter_ConcurrentAtomic(t *testing.T) {
	store := NewMemoryStore(0, 0)
	l := newTestLimiter(t, store, true)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		admits  int
		rejects int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := l.Admit(context.Background(), "ip:shared", false, at(0))
			mu.Lock()
			defer mu.Unlock()
			if d.Outcome == OutcomeAdmit {
				admits++
			} else {
				rejects++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, admits)
	assert.Equal(t, 40, rejects)
}

func TestDecision_Remaining(t *testing.T) {
	assert.Equal(t, 3, Decision{Tokens: 3.9}.Remaining())
	assert.Equal(t, 0, Decision{Tokens: 0.4}.Remaining())
	assert.Equal(t, 0, Decision{Tokens: -1}.Remaining())
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "admit", OutcomeAdmit.String())
	assert.Equal(t, "reject", OutcomeReject.String())
	assert.Equal(t, "store_error", OutcomeStoreError.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
