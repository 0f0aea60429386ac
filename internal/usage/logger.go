package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// flushThreshold is the batch size that triggers a flush before the interval elapses.
const flushThreshold = 100

// Logger buffers entries and writes them to a Store in batches from a background goroutine.
type Logger struct {
	store  Store
	config Config

	mu     sync.RWMutex // guards closed against concurrent sends on entries
	closed bool

	entries chan *Entry
	stopped chan struct{}
}

// NewLogger starts a buffered logger over store.
func NewLogger(store Store, cfg Config) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	l := &Logger{
		store:   store,
		config:  cfg,
		entries: make(chan *Entry, cfg.BufferSize),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

// Write queues entry without blocking. Entries are dropped with a warning when the
// buffer is full, and silently after Close.
func (l *Logger) Write(entry *Entry) {
	if entry == nil {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.entries <- entry:
	default:
		slog.Warn("usage buffer full, dropping entry",
			"request_id", entry.RequestID,
			"model", entry.Model,
		)
	}
}

// Close drains the buffer, flushes the store and closes it. Safe to call more than once.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.entries)
	l.mu.Unlock()

	<-l.stopped
	return l.store.Close()
}

func (l *Logger) run() {
	defer close(l.stopped)

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, flushThreshold)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		l.writeBatch(batch)
		batch = make([]*Entry, 0, flushThreshold)
	}

	for {
		select {
		case entry, ok := <-l.entries:
			if !ok {
				flush()
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := l.store.Flush(ctx); err != nil {
					slog.Error("failed to flush usage store", "error", err)
				}
				cancel()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushThreshold {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (l *Logger) writeBatch(batch []*Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := l.store.WriteBatch(ctx, batch); err != nil {
		slog.Error("failed to write usage batch", "error", err, "count", len(batch))
	}
}

// NoopLogger discards entries; used when usage tracking is disabled.
type NoopLogger struct{}

func (NoopLogger) Write(*Entry) {}

func (NoopLogger) Close() error { return nil }

// SlogStore writes each entry as one structured log line.
type SlogStore struct {
	logger *slog.Logger
}

// NewSlogStore creates a store that logs through logger, or slog.Default() when nil.
func NewSlogStore(logger *slog.Logger) *SlogStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogStore{logger: logger.With("component", "usage")}
}

func (s *SlogStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	for _, e := range entries {
		attrs := []any{
			"request_id", e.RequestID,
			"model", e.Model,
			"endpoint", e.Endpoint,
			"stage", e.Stage,
			"input_tokens", e.InputTokens,
			"output_tokens", e.OutputTokens,
			"total_tokens", e.TotalTokens,
		}
		if e.CostUSD != nil {
			attrs = append(attrs, "cost_usd", *e.CostUSD)
		}
		if e.Caveat != "" {
			attrs = append(attrs, "cost_caveat", e.Caveat)
		}
		for k, v := range e.Extra {
			attrs = append(attrs, k, v)
		}
		s.logger.InfoContext(ctx, "generation usage", attrs...)
	}
	return nil
}

func (s *SlogStore) Flush(context.Context) error { return nil }

func (s *SlogStore) Close() error { return nil }
