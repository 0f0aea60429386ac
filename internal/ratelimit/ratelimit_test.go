package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingStore struct{}

func (failingStore) Hit(context.Context, string, Window, time.Time) (Hit, error) {
	return Hit{}, errors.New("connection refused")
}

func (failingStore) Close() error { return nil }

func TestLocalStore_SlidingWindow(t *testing.T) {
	store := NewLocalStore()
	ctx := context.Background()
	w := Window{Limit: 2, Period: time.Minute}
	t0 := time.Unix(1_700_000_000, 0)

	h, err := store.Hit(ctx, "k", w, t0)
	require.NoError(t, err)
	assert.True(t, h.Allowed)
	assert.Equal(t, 1, h.Count)
	assert.Equal(t, t0, h.Oldest)

	h, _ = store.Hit(ctx, "k", w, t0.Add(20*time.Second))
	assert.True(t, h.Allowed)
	assert.Equal(t, 2, h.Count)

	h, _ = store.Hit(ctx, "k", w, t0.Add(40*time.Second))
	assert.False(t, h.Allowed)
	assert.Equal(t, 2, h.Count)
	assert.Equal(t, t0, h.Oldest)

	// First entry ages out exactly one period later.
	h, _ = store.Hit(ctx, "k", w, t0.Add(time.Minute))
	assert.True(t, h.Allowed)
	assert.Equal(t, 2, h.Count)
	assert.Equal(t, t0.Add(20*time.Second), h.Oldest)
}

func TestLocalStore_RejectedHitsAreNotRecorded(t *testing.T) {
	store := NewLocalStore()
	ctx := context.Background()
	w := Window{Limit: 1, Period: time.Minute}
	t0 := time.Unix(1_700_000_000, 0)

	_, _ = store.Hit(ctx, "k", w, t0)
	for i := 1; i <= 5; i++ {
		h, _ := store.Hit(ctx, "k", w, t0.Add(time.Duration(i)*time.Second))
		assert.False(t, h.Allowed)
	}
	h, _ := store.Hit(ctx, "k", w, t0.Add(61*time.Second))
	assert.True(t, h.Allowed, "retries during rejection must not extend the window")
}

func TestLocalStore_KeysAreIndependent(t *testing.T) {
	store := NewLocalStore()
	ctx := context.Background()
	w := Window{Limit: 1, Period: time.Minute}
	now := time.Now()

	a, _ := store.Hit(ctx, "a", w, now)
	b, _ := store.Hit(ctx, "b", w, now)
	assert.True(t, a.Allowed)
	assert.True(t, b.Allowed)
}

func TestLocalStore_ConcurrentHitsNeverExceedLimit(t *testing.T) {
	store := NewLocalStore()
	w := Window{Limit: 25, Period: time.Hour}
	now := time.Now()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := store.Hit(context.Background(), "k", w, now)
			assert.NoError(t, err)
			if h.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 25, allowed)
}

func TestLocalStore_SweepDropsIdleKeys(t *testing.T) {
	store := NewLocalStore()
	ctx := context.Background()
	w := Window{Limit: 5, Period: time.Second}
	t0 := time.Unix(1_700_000_000, 0)

	_, _ = store.Hit(ctx, "idle", w, t0)
	for i := 1; i < sweepEvery; i++ {
		_, _ = store.Hit(ctx, "busy", Window{Limit: sweepEvery * 2, Period: time.Hour}, t0.Add(time.Minute))
	}
	store.mu.Lock()
	_, ok := store.logs["idle"]
	store.mu.Unlock()
	assert.False(t, ok)
}

func TestLimiter_AllowAndReject(t *testing.T) {
	c := newClock()
	l := New(NewLocalStore(), map[string]Window{"analyze": {Limit: 2, Period: time.Hour}}, WithClock(c.Now))
	ctx := context.Background()

	r := l.Allow(ctx, "analyze", "1.2.3.4")
	assert.True(t, r.Allowed)
	assert.Equal(t, 2, r.Limit)
	assert.Equal(t, 1, r.Remaining)
	assert.Equal(t, 3600, r.Reset)

	c.Advance(10 * time.Minute)
	r = l.Allow(ctx, "analyze", "1.2.3.4")
	assert.True(t, r.Allowed)
	assert.Equal(t, 0, r.Remaining)
	assert.Equal(t, 3000, r.Reset)

	c.Advance(10 * time.Minute)
	r = l.Allow(ctx, "analyze", "1.2.3.4")
	assert.False(t, r.Allowed)
	assert.Equal(t, 0, r.Remaining)
	assert.Equal(t, 2400, r.Reset)

	other := l.Allow(ctx, "analyze", "5.6.7.8")
	assert.True(t, other.Allowed)
}

func TestLimiter_EndpointsHaveSeparateQuotas(t *testing.T) {
	l := New(NewLocalStore(), map[string]Window{
		"analyze":        {Limit: 1, Period: time.Hour},
		"enhance-prompt": {Limit: 1, Period: time.Hour},
	})
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "analyze", "c").Allowed)
	assert.True(t, l.Allow(ctx, "enhance-prompt", "c").Allowed)
	assert.False(t, l.Allow(ctx, "analyze", "c").Allowed)
}

func TestLimiter_UnknownEndpointIsUnlimited(t *testing.T) {
	l := New(NewLocalStore(), map[string]Window{})
	r := l.Allow(context.Background(), "health", "c")
	assert.True(t, r.Allowed)
	assert.Empty(t, r.Headers())
}

func TestLimiter_EmptyClientSharesUnknownBucket(t *testing.T) {
	l := New(NewLocalStore(), map[string]Window{"analyze": {Limit: 1, Period: time.Hour}})
	ctx := context.Background()
	assert.True(t, l.Allow(ctx, "analyze", "").Allowed)
	assert.False(t, l.Allow(ctx, "analyze", UnknownClient).Allowed)
}

func TestLimiter_FailsOpen(t *testing.T) {
	l := New(failingStore{}, nil)
	r := l.Allow(context.Background(), "analyze", "c")
	assert.True(t, r.Allowed)
	assert.True(t, r.Degraded)
	assert.Equal(t, 10, r.Limit)
}

func TestLimiter_KeyHashesClient(t *testing.T) {
	l := New(NewLocalStore(), nil)
	key := l.Key("analyze", "203.0.113.9")
	assert.True(t, strings.HasPrefix(key, "ratelimit:analyze:"))
	assert.NotContains(t, key, "203.0.113.9")
	assert.Equal(t, key, l.Key("analyze", "203.0.113.9"))
	assert.NotEqual(t, key, l.Key("analyze", "203.0.113.10"))

	prefixed := New(NewLocalStore(), nil, WithKeyPrefix("adcreative:rl:"))
	assert.True(t, strings.HasPrefix(prefixed.Key("analyze", "x"), "adcreative:rl:analyze:"))
}

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()
	want := map[string]int{
		"analyze":                   10,
		"generate-viral-script":     20,
		"adapt-viral-script":        30,
		"generate-product-video":    10,
		"generate-static-ad-prompt": 10,
		"enhance-prompt":            50,
		"scrape-url":                20,
	}
	require.Len(t, rules, len(want))
	for endpoint, limit := range want {
		assert.Equal(t, limit, rules[endpoint].Limit, endpoint)
		assert.Equal(t, time.Hour, rules[endpoint].Period, endpoint)
	}
}

func TestResult_Headers(t *testing.T) {
	ok := Result{Allowed: true, Limit: 10, Remaining: 4, Reset: 120}.Headers()
	assert.Equal(t, "10", ok.Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", ok.Get("X-RateLimit-Remaining"))
	assert.Equal(t, "120", ok.Get("X-RateLimit-Reset"))
	assert.Empty(t, ok.Get("Retry-After"))

	rejected := Result{Allowed: false, Limit: 10, Remaining: 0, Reset: 75}.Headers()
	assert.Equal(t, "75", rejected.Get("Retry-After"))
}

func TestClientIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"first forwarded entry", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "203.0.113.7"},
		{"forwarded wins over real ip", map[string]string{"X-Forwarded-For": "198.51.100.2", "X-Real-IP": "10.0.0.9"}, "198.51.100.2"},
		{"real ip", map[string]string{"X-Real-IP": " 10.0.0.9 "}, "10.0.0.9"},
		{"blank forwarded falls through", map[string]string{"X-Forwarded-For": " , 1.1.1.1", "X-Real-IP": "10.0.0.9"}, "10.0.0.9"},
		{"none", nil, UnknownClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIdentifier(h))
		})
	}
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 1, seconds(0))
	assert.Equal(t, 1, seconds(-time.Second))
	assert.Equal(t, 2, seconds(1500*time.Millisecond))
	assert.Equal(t, 3600, seconds(time.Hour))
}
