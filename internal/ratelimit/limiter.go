package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"adcreative/internal/core"
	"adcreative/internal/observability"
)

// UnknownClient is the shared bucket for requests carrying no client identity.
const UnknownClient = "unknown"

// DefaultKeyPrefix namespaces window keys in the backing store.
const DefaultKeyPrefix = "ratelimit:"

// DefaultRules returns the per-hour quota of every rate-limited endpoint.
func DefaultRules() map[string]Window {
	return map[string]Window{
		"analyze":                   {Limit: 10, Period: time.Hour},
		"generate-viral-script":     {Limit: 20, Period: time.Hour},
		"adapt-viral-script":        {Limit: 30, Period: time.Hour},
		"generate-product-video":    {Limit: 10, Period: time.Hour},
		"generate-static-ad-prompt": {Limit: 10, Period: time.Hour},
		"enhance-prompt":            {Limit: 50, Period: time.Hour},
		"scrape-url":                {Limit: 20, Period: time.Hour},
	}
}

// Result is the admission decision for one request.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// Reset is the number of seconds until the oldest counted request leaves the window.
	Reset int
	// Degraded is set when the store failed and the request was let through.
	Degraded bool
}

// Headers returns the X-RateLimit-* headers for r, plus Retry-After when rejected.
func (r Result) Headers() http.Header {
	h := http.Header{}
	if r.Limit <= 0 {
		return h
	}
	h.Set("X-RateLimit-Limit", strconv.Itoa(r.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(r.Remaining))
	h.Set("X-RateLimit-Reset", strconv.Itoa(r.Reset))
	if !r.Allowed {
		h.Set("Retry-After", strconv.Itoa(r.Reset))
	}
	return h
}

// Limiter applies per-endpoint windows keyed by client identity.
type Limiter struct {
	store  Store
	rules  map[string]Window
	prefix string
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(l *Limiter) { l.prefix = prefix }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter. Endpoints missing from rules are never limited.
func New(store Store, rules map[string]Window, opts ...Option) *Limiter {
	if rules == nil {
		rules = DefaultRules()
	}
	l := &Limiter{
		store:  store,
		rules:  rules,
		prefix: DefaultKeyPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Rule returns the window configured for endpoint.
func (l *Limiter) Rule(endpoint string) (Window, bool) {
	w, ok := l.rules[endpoint]
	return w, ok && w.Limit > 0 && w.Period > 0
}

// Key returns the store key for (endpoint, clientID).
func (l *Limiter) Key(endpoint, clientID string) string {
	return l.prefix + endpoint + ":" + strconv.FormatUint(xxhash.Sum64String(clientID), 16)
}

// Allow records one request from clientID against endpoint. Store failures let the
// request through.
func (l *Limiter) Allow(ctx context.Context, endpoint, clientID string) Result {
	w, ok := l.Rule(endpoint)
	if !ok {
		return Result{Allowed: true}
	}
	if clientID == "" {
		clientID = UnknownClient
	}

	now := l.now()
	hit, err := l.store.Hit(ctx, l.Key(endpoint, clientID), w, now)
	if err != nil {
		slog.WarnContext(ctx, "rate limit store unavailable, allowing request",
			"endpoint", endpoint,
			"error", err,
			"request_id", core.GetRequestID(ctx),
		)
		observability.RateLimitDecisions.WithLabelValues(endpoint, "fail_open").Inc()
		return Result{
			Allowed:   true,
			Limit:     w.Limit,
			Remaining: w.Limit,
			Reset:     seconds(w.Period),
			Degraded:  true,
		}
	}

	res := Result{
		Allowed:   hit.Allowed,
		Limit:     w.Limit,
		Remaining: max(w.Limit-hit.Count, 0),
		Reset:     seconds(hit.Oldest.Add(w.Period).Sub(now)),
	}
	decision := "allowed"
	if !hit.Allowed {
		decision = "rejected"
	}
	observability.RateLimitDecisions.WithLabelValues(endpoint, decision).Inc()
	return res
}

// Close closes the backing store.
func (l *Limiter) Close() error {
	return l.store.Close()
}

// seconds rounds d up to whole seconds, never below one.
func seconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// ClientIdentifier derives the rate-limit identity from proxy headers: the first
// X-Forwarded-For entry, else X-Real-IP, else UnknownClient.
func ClientIdentifier(h http.Header) string {
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(h.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return UnknownClient
}
