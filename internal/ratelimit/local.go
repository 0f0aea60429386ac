package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepEvery is how many hits pass between sweeps of idle keys.
const sweepEvery = 1024

// LocalStore keeps sliding-window logs in process memory.
// Suitable for single-instance deployments only.
type LocalStore struct {
	mu    sync.Mutex
	logs  map[string][]time.Time
	ttl   map[string]time.Duration
	count int
}

// NewLocalStore creates an empty in-memory store.
func NewLocalStore() *LocalStore {
	return &LocalStore{
		logs: make(map[string][]time.Time),
		ttl:  make(map[string]time.Duration),
	}
}

func (s *LocalStore) Hit(_ context.Context, key string, w Window, now time.Time) (Hit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	if s.count%sweepEvery == 0 {
		s.sweep(now)
	}

	log := evict(s.logs[key], now.Add(-w.Period))
	allowed := len(log) < w.Limit
	if allowed {
		log = append(log, now)
	}

	if len(log) == 0 {
		delete(s.logs, key)
		delete(s.ttl, key)
		return Hit{Allowed: allowed, Oldest: now}, nil
	}
	s.logs[key] = log
	s.ttl[key] = w.Period
	return Hit{Allowed: allowed, Count: len(log), Oldest: log[0]}, nil
}

// evict drops timestamps at or before cutoff. log is sorted ascending.
func evict(log []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return log
	}
	return append(log[:0:0], log[i:]...)
}

func (s *LocalStore) sweep(now time.Time) {
	for key, log := range s.logs {
		if len(evict(log, now.Add(-s.ttl[key]))) == 0 {
			delete(s.logs, key)
			delete(s.ttl, key)
		}
	}
}

// Close is a no-op for the local store.
func (s *LocalStore) Close() error {
	return nil
}
