// Package ratelimit provides sliding-window admission control per endpoint and client.
// Counters live in Redis for multi-instance deployments, or in process memory when no
// Redis is configured (each instance then enforces its own quota).
package ratelimit

import (
	"context"
	"time"
)

// Window is a (limit, period) pair.
type Window struct {
	Limit  int
	Period time.Duration
}

// Hit is the store's answer for one admission attempt.
type Hit struct {
	Allowed bool
	// Count is the number of requests in the window after this attempt.
	Count int
	// Oldest is the timestamp of the oldest request still in the window.
	Oldest time.Time
}

// Store keeps sliding-window logs. Implementations must evict, count and record
// atomically so concurrent requests never exceed the limit.
type Store interface {
	// Hit evicts entries older than w.Period, then records now if fewer than w.Limit remain.
	Hit(ctx context.Context, key string, w Window, now time.Time) (Hit, error)

	// Close releases any resources held by the store.
	Close() error
}
