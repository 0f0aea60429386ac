// Package generation wraps a single remote generation call: it builds the request,
// classifies failures and extracts text from the loosely-typed response.
package generation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"adcreative/internal/core"
	"adcreative/internal/observability"
	"adcreative/internal/usage"
)

// Client performs the raw generateContent call.
type Client interface {
	GenerateContent(ctx context.Context, model string, req *core.GenerationRequest) ([]byte, error)
}

// Config holds generation settings.
type Config struct {
	// DefaultModel is used when a call passes no model.
	DefaultModel string
	// Prices maps model ids to published rates for the cost estimate.
	Prices usage.PriceTable
	// Upstream names the provider in errors and metrics.
	Upstream string
}

// Service performs generation calls.
type Service struct {
	client   Client
	cfg      Config
	recorder usage.Recorder
}

// NewService creates a generation service. A nil recorder discards usage entries.
func NewService(client Client, cfg Config, recorder usage.Recorder) *Service {
	if cfg.Prices == nil {
		cfg.Prices = usage.DefaultPriceTable()
	}
	if cfg.Upstream == "" {
		cfg.Upstream = "gemini"
	}
	if recorder == nil {
		recorder = usage.NoopLogger{}
	}
	return &Service{client: client, cfg: cfg, recorder: recorder}
}

// DefaultModel returns the model used when none is given.
func (s *Service) DefaultModel() string {
	return s.cfg.DefaultModel
}

// Generate sends prompt and the given assets to model and returns the extracted result.
// An empty extraction is not an error: callers branch on GenerationResult.Empty.
// Every failure is returned as a *core.Error; calls are never retried.
func (s *Service) Generate(ctx context.Context, prompt string, assets []*core.AssetHandle, model string) (*core.GenerationResult, error) {
	if model == "" {
		model = s.cfg.DefaultModel
	}
	if model == "" {
		return nil, core.NewInternalError("no generation model configured", nil)
	}

	req, err := core.NewGenerationRequest(prompt, assets...)
	if err != nil {
		return nil, core.NewInternalError("invalid generation request", err).WithDetails(err.Error())
	}

	start := time.Now()
	raw, err := s.client.GenerateContent(ctx, model, req)
	if err != nil {
		observability.GenerationCalls.WithLabelValues(model, "error").Inc()
		return nil, s.classify(err)
	}

	result := Extract(raw)
	result.Model = model
	s.account(ctx, result, raw)

	outcome := "ok"
	if result.Empty() {
		outcome = "empty"
		slog.WarnContext(ctx, "generation returned no text",
			"model", model,
			"finish_reason", gjson.GetBytes(raw, "candidates.0.finishReason").String(),
			"block_reason", gjson.GetBytes(raw, "promptFeedback.blockReason").String(),
			"request_id", core.GetRequestID(ctx),
		)
	}
	observability.GenerationCalls.WithLabelValues(model, outcome).Inc()
	slog.DebugContext(ctx, "generation complete",
		"model", model,
		"source", result.Source.String(),
		"chars", len(result.Text),
		"duration", time.Since(start),
	)
	return result, nil
}

// Extract reads text and usage from a generateContent response. Text parts of the first
// candidate are concatenated; parts without text are skipped. When no candidate text
// exists a top-level "text" field is used. Otherwise the result is empty with TextAbsent.
func Extract(raw []byte) *core.GenerationResult {
	result := &core.GenerationResult{Raw: raw}
	result.Usage, _ = usage.FromGeminiResponse(raw)

	if !gjson.ValidBytes(raw) {
		return result
	}

	var b strings.Builder
	for _, part := range gjson.GetBytes(raw, "candidates.0.content.parts").Array() {
		if part.Get("thought").Bool() {
			continue
		}
		if t := part.Get("text"); t.Type == gjson.String {
			b.WriteString(t.String())
		}
	}
	if text := b.String(); strings.TrimSpace(text) != "" {
		result.Text = strings.TrimSpace(text)
		result.Source = core.TextFromParts
		return result
	}

	if flat := gjson.GetBytes(raw, "text"); flat.Type == gjson.String && strings.TrimSpace(flat.String()) != "" {
		result.Text = strings.TrimSpace(flat.String())
		result.Source = core.TextFromFlatField
		return result
	}

	result.Source = core.TextAbsent
	return result
}

func (s *Service) account(ctx context.Context, result *core.GenerationResult, raw []byte) {
	u, extra := usage.FromGeminiResponse(raw)
	entry := usage.NewEntry(core.GetRequestID(ctx), result.Model, usage.EndpointFrom(ctx), usage.StageFrom(ctx), u, extra)

	pricing, _ := s.cfg.Prices.Lookup(result.Model)
	cost := usage.CalculateCost(u.InputTokens, u.OutputTokens, extra, pricing)
	if cost.TotalCost != nil {
		result.CostUSD = *cost.TotalCost
		entry.CostUSD = cost.TotalCost
		observability.EstimatedCostUSD.WithLabelValues(result.Model).Add(*cost.TotalCost)
	}
	entry.Caveat = cost.Caveat

	observability.PromptTokens.WithLabelValues(result.Model).Add(float64(u.InputTokens))
	observability.CompletionTokens.WithLabelValues(result.Model).Add(float64(u.OutputTokens))
	s.recorder.Write(entry)
}

// classify makes sure nothing but *core.Error leaves the wrapper.
func (s *Service) classify(err error) error {
	var e *core.Error
	if errors.As(err, &e) {
		return e
	}
	return core.ClassifyTransportError(s.cfg.Upstream, err)
}
