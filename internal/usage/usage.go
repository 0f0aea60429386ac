// Package usage records token usage and estimated spend for every generation call.
// Entries are buffered and flushed to a Store in batches; cost figures are estimates
// for server-side logging only.
package usage

import (
	"context"
	"time"
)

// Store persists usage entries. Implementations must be safe for concurrent use.
type Store interface {
	// WriteBatch writes multiple entries. Called by the Logger when flushing.
	WriteBatch(ctx context.Context, entries []*Entry) error

	// Flush forces pending writes to complete. Called during shutdown.
	Flush(ctx context.Context) error

	Close() error
}

// Entry is a single generation-call usage record.
type Entry struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`

	Model    string `json:"model"`
	Endpoint string `json:"endpoint,omitempty"`
	Stage    string `json:"stage,omitempty"`

	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`

	// Extra holds Gemini-specific counters such as thoughts or cached tokens.
	Extra map[string]int `json:"extra,omitempty"`

	CostUSD *float64 `json:"cost_usd,omitempty"`
	Caveat  string   `json:"caveat,omitempty"`
}

// Config holds usage tracking configuration
type Config struct {
	Enabled bool

	// BufferSize is the number of entries buffered before new ones are dropped
	BufferSize int

	// FlushInterval is how often buffered entries are flushed
	FlushInterval time.Duration
}

// DefaultConfig returns the default usage configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
	}
}

// Recorder accepts usage entries. Both Logger and NoopLogger implement it.
type Recorder interface {
	Write(entry *Entry)
	Close() error
}

type contextKey string

const (
	endpointKey contextKey = "usage-endpoint"
	stageKey    contextKey = "usage-stage"
)

// WithEndpoint tags ctx so usage entries record the HTTP endpoint that caused them.
func WithEndpoint(ctx context.Context, endpoint string) context.Context {
	return context.WithValue(ctx, endpointKey, endpoint)
}

// WithStage tags ctx with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// EndpointFrom returns the endpoint tag, or "".
func EndpointFrom(ctx context.Context) string {
	s, _ := ctx.Value(endpointKey).(string)
	return s
}

// StageFrom returns the stage tag, or "".
func StageFrom(ctx context.Context) string {
	s, _ := ctx.Value(stageKey).(string)
	return s
}
