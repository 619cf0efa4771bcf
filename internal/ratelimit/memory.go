package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/kioku/internal/telemetry"
)

const (
	staleThreshold  = 10 * time.Minute
	cleanupInterval = time.Minute
)

type bucket struct {
	tokens     float64
	lastAccess time.Time
}

// MemoryLimiter is a per-process token bucket per key. Replicas do not share
// state, so the effective limit scales with the replica count.
type MemoryLimiter struct {
	fallback Quota
	quotas   map[string]Quota // by key group
	now      func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	denied   metric.Int64Counter
	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter returns a limiter applying fallback to every key group
// without an entry in quotas. Stale buckets are evicted in the background
// until Close.
func NewMemoryLimiter(fallback Quota, quotas map[string]Quota) *MemoryLimiter {
	return newMemoryLimiter(fallback, quotas, time.Now)
}

func newMemoryLimiter(fallback Quota, quotas map[string]Quota, now func() time.Time) *MemoryLimiter {
	m := &MemoryLimiter{
		fallback: fallback,
		quotas:   quotas,
		now:      now,
		buckets:  make(map[string]*bucket),
		done:     make(chan struct{}),
	}

	meter := telemetry.Meter("kioku/ratelimit")
	m.denied, _ = meter.Int64Counter("kioku.ratelimit.denied",
		metric.WithDescription("Requests rejected by the rate limiter, by key group"),
	)
	_, _ = meter.Int64ObservableGauge("kioku.ratelimit.keys",
		metric.WithDescription("Rate-limit buckets currently tracked"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(m.Len()))
			return nil
		}),
	)

	go m.cleanup()
	return m
}

func (m *MemoryLimiter) quotaFor(key string) Quota {
	if q, ok := m.quotas[group(key)]; ok {
		return q
	}
	return m.fallback
}

// Len returns the number of tracked keys.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// Reserve takes one token from key's bucket. A new key starts full.
func (m *MemoryLimiter) Reserve(ctx context.Context, key string) (Decision, error) {
	q := m.quotaFor(key)
	burst := float64(q.Burst)

	m.mu.Lock()
	now := m.now()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{tokens: burst, lastAccess: now}
		m.buckets[key] = b
	} else {
		b.tokens = math.Min(burst, b.tokens+now.Sub(b.lastAccess).Seconds()*q.Rate)
		b.lastAccess = now
	}

	if b.tokens >= 1 {
		b.tokens--
		m.mu.Unlock()
		return Decision{Allowed: true}, nil
	}
	missing := 1 - b.tokens
	m.mu.Unlock()

	if m.denied != nil {
		m.denied.Add(ctx, 1, metric.WithAttributes(attribute.String("group", group(key))))
	}
	wait := time.Duration(math.MaxInt64)
	if q.Rate > 0 {
		wait = time.Duration(missing / q.Rate * float64(time.Second))
	}
	return Decision{RetryAfter: wait}, nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
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

func (m *MemoryLimiter) evictStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-staleThreshold)
	for key, b := range m.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}
