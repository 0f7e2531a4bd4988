package ratelimit

import (
	"context"
	"sync"
	"time"
)

// entry holds a bucket and the wall-clock time it was last written.
type entry struct {
	bucket   Bucket
	lastSeen time.Time
}

// MemoryStore is an in-process BucketStore for development, tests and
// single-instance deployments. A background goroutine evicts buckets that have
// not been written for idleTTL; an evicted bucket reads back as full, which is
// what it would have refilled to anyway. Callers must keep idleTTL at least
// the window.
type MemoryStore struct {
	idleTTL         time.Duration
	cleanupInterval time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	done    chan struct{}
	closed  bool
}

// NewMemoryStore creates a memory store. When cleanupInterval is zero no
// eviction goroutine is started.
func NewMemoryStore(idleTTL, cleanupInterval time.Duration) *MemoryStore {
	m := &MemoryStore{
		idleTTL:         idleTTL,
		cleanupInterval: cleanupInterval,
		entries:         make(map[string]*entry),
		done:            make(chan struct{}),
	}
	if cleanupInterval > 0 && idleTTL > 0 {
		go m.cleanup()
	}
	return m
}

// Load returns the bucket stored for key.
func (m *MemoryStore) Load(_ context.Context, key string) (Bucket, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return Bucket{}, false, nil
	}
	return e.bucket, true, nil
}

// Save stores the bucket for key.
func (m *MemoryStore) Save(_ context.Context, key string, b Bucket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &entry{bucket: b, lastSeen: time.Now()}
	return nil
}

// Take refills and consumes under the store lock.
func (m *MemoryStore) Take(_ context.Context, key string, capacity, ratePerMilli float64, nowMs int64) (Bucket, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		stored Bucket
		found  bool
	)
	if e, ok := m.entries[key]; ok {
		stored, found = e.bucket, true
	}
	b, admitted := Refill(stored, found, capacity, ratePerMilli, nowMs)
	m.entries[key] = &entry{bucket: b, lastSeen: time.Now()}
	return b, admitted, nil
}

// Len returns the number of tracked buckets.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Ping always succeeds.
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close stops the background cleanup goroutine.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *MemoryStore) cleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictStale()
		}
	}
}

// evictStale removes buckets not written within idleTTL.
func (m *MemoryStore) evictStale() {
	cutoff := time.Now().Add(-m.idleTTL)
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.entries {
		if e.lastSeen.Before(cutoff) {
			delete(m.entries, key)
		}
	}
}
