// Package server provides HTTP handlers and server setup for the creative service.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"adcreative/internal/assets"
	"adcreative/internal/core"
	"adcreative/internal/pipeline"
	"adcreative/internal/providers/firecrawl"
)

// DefaultMaxPromptChars is the hard limit on generated image and video prompts.
const DefaultMaxPromptChars = 999

// AdLibrary fetches ad metadata and video transcripts.
type AdLibrary interface {
	FacebookAd(ctx context.Context, adID string) (json.RawMessage, error)
	TikTokTranscript(ctx context.Context, videoURL string) (string, error)
}

// PageSummarizer scrapes and summarizes a web page.
type PageSummarizer interface {
	Summarize(ctx context.Context, pageURL string) (*firecrawl.Page, error)
}

// MediaFetcher downloads media from an absolute URL.
type MediaFetcher interface {
	Fetch(ctx context.Context, target string) ([]byte, string, error)
}

// Deps are the collaborators a Handler needs.
type Deps struct {
	Ads       AdLibrary
	Pages     PageSummarizer
	Media     MediaFetcher
	Files     assets.FileStore
	Generator pipeline.Generator
	Poller    assets.PollerConfig
	// MaxPromptChars bounds generated image and video prompts (default 999).
	MaxPromptChars int
}

// Handler holds the HTTP handlers
type Handler struct {
	ads      AdLibrary
	pages    PageSummarizer
	media    MediaFetcher
	uploader *assets.Uploader
	poller   *assets.Poller
	pipeline *pipeline.Orchestrator
	maxChars int
}

// NewHandler creates a new handler with the given dependencies
func NewHandler(deps Deps) *Handler {
	maxChars := deps.MaxPromptChars
	if maxChars <= 0 {
		maxChars = DefaultMaxPromptChars
	}
	return &Handler{
		ads:      deps.Ads,
		pages:    deps.Pages,
		media:    deps.Media,
		uploader: assets.NewUploader(deps.Files),
		poller:   assets.NewPoller(deps.Files, deps.Poller),
		pipeline: pipeline.New(deps.Generator),
		maxChars: maxChars,
	}
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// bind decodes the JSON body into req.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return core.NewValidationError("Invalid request body", err).WithDetails(bindDetails(err))
	}
	return nil
}

func bindDetails(err error) string {
	if he, ok := err.(*echo.HTTPError); ok {
		if he.Internal != nil {
			return he.Internal.Error()
		}
		if m, ok := he.Message.(string); ok {
			return m
		}
	}
	return err.Error()
}

// required returns a validation error when value is blank.
func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return core.NewValidationError("Missing required field", nil).WithDetails(field + " is required")
	}
	return nil
}

// ready uploads blob and waits until the asset store reports it ACTIVE.
func (h *Handler) ready(ctx context.Context, blob assets.Blob) (*core.AssetHandle, error) {
	handle, err := h.uploader.Upload(ctx, blob.Data, blob.MIMEType, blob.DisplayName)
	if err != nil {
		return nil, err
	}
	return h.poller.WaitActive(ctx, handle)
}

// readyAll uploads blobs concurrently, then waits for each to become ACTIVE.
func (h *Handler) readyAll(ctx context.Context, blobs ...assets.Blob) ([]*core.AssetHandle, error) {
	handles, err := h.uploader.UploadAll(ctx, blobs...)
	if err != nil {
		return nil, err
	}
	return h.poller.WaitAll(ctx, handles...)
}

// decodeImage decodes a base64 image field into an upload blob.
func decodeImage(field, payload, displayName string) (assets.Blob, error) {
	data, mimeType, err := assets.DecodeBase64(payload)
	if err != nil {
		if e, ok := err.(*core.Error); ok {
			return assets.Blob{}, e.WithDetails(field + ": " + e.Message)
		}
		return assets.Blob{}, err
	}
	return assets.Blob{Data: data, MIMEType: mimeType, DisplayName: displayName}, nil
}

// usageBody is the token summary returned with every generation response.
type usageBody struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

func usageOf(u core.Usage) usageBody {
	return usageBody{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		TotalTokens:  u.InputTokens + u.OutputTokens,
	}
}
