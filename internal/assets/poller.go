package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"adcreative/internal/core"
	"adcreative/internal/observability"
	"adcreative/internal/pkg/poll"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollBudget   = 60 * time.Second
)

// PollerConfig bounds the readiness wait.
type PollerConfig struct {
	Interval time.Duration
	Budget   time.Duration
}

// Poller waits for uploaded assets to leave the PENDING state.
type Poller struct {
	store FileStore
	cfg   PollerConfig
}

// NewPoller creates a poller. Zero config fields take the defaults.
func NewPoller(store FileStore, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultPollBudget
	}
	return &Poller{store: store, cfg: cfg}
}

// WaitActive re-fetches the handle's state until it is ACTIVE. An already ACTIVE handle
// returns without any status call. Status-check failures are logged and retried until
// the budget is spent. The returned handle is a fresh copy; the input is not modified.
func (p *Poller) WaitActive(ctx context.Context, handle *core.AssetHandle) (*core.AssetHandle, error) {
	if handle == nil {
		return nil, core.NewMissingIdentifierError("asset handle is nil")
	}
	current := *handle
	if current.State == core.AssetActive {
		return &current, nil
	}
	if current.State == core.AssetFailed {
		return nil, assetFailed(&current)
	}

	id := current.Identifier()
	if id == "" {
		return nil, core.NewMissingIdentifierError("uploaded asset has no identifier").
			WithDetails(fmt.Sprintf("uri=%q", current.URI))
	}

	start := time.Now()
	attempts, err := poll.Until(ctx, poll.Config{Interval: p.cfg.Interval, Budget: p.cfg.Budget},
		func(ctx context.Context, _ int) (bool, error) {
			fresh, err := p.store.GetFile(ctx, id)
			if err != nil {
				return false, err
			}
			current.State = fresh.State
			if fresh.URI != "" {
				current.URI = fresh.URI
			}
			switch current.State {
			case core.AssetActive:
				return true, nil
			case core.AssetFailed:
				return false, poll.Permanent(assetFailed(&current))
			}
			return false, nil
		},
		func(attempt int, err error) {
			slog.WarnContext(ctx, "asset status check failed, retrying",
				"file", id,
				"attempt", attempt,
				"error", err,
				"request_id", core.GetRequestID(ctx),
			)
		},
	)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		observability.ReadinessWait.WithLabelValues("active").Observe(elapsed.Seconds())
		slog.DebugContext(ctx, "asset ready", "file", id, "polls", attempts, "elapsed", elapsed)
		return &current, nil
	case errors.Is(err, poll.ErrTimeout):
		observability.ReadinessWait.WithLabelValues("timeout").Observe(elapsed.Seconds())
		return nil, core.NewReadinessTimeoutError("uploaded file did not become ready in time", err).
			WithDetails(fmt.Sprintf("file %s still %s after %s (%d checks)", id, current.State, p.cfg.Budget, attempts))
	case core.Is(err, core.KindAssetFailed):
		observability.ReadinessWait.WithLabelValues("failed").Observe(elapsed.Seconds())
		return nil, err
	default:
		observability.ReadinessWait.WithLabelValues("cancelled").Observe(elapsed.Seconds())
		return nil, core.ClassifyTransportError("", err)
	}
}

// WaitAll waits for each handle in turn; the shared budget applies per handle.
func (p *Poller) WaitAll(ctx context.Context, handles ...*core.AssetHandle) ([]*core.AssetHandle, error) {
	out := make([]*core.AssetHandle, len(handles))
	for i, h := range handles {
		ready, err := p.WaitActive(ctx, h)
		if err != nil {
			return nil, err
		}
		out[i] = ready
	}
	return out, nil
}

func assetFailed(h *core.AssetHandle) error {
	return core.NewAssetFailedError("file processing failed").
		WithDetails(fmt.Sprintf("file %s was marked FAILED", h.Identifier()))
}
