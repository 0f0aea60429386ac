package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"adcreative/internal/core"
	"adcreative/internal/pipeline"
	"adcreative/internal/prompts"
	"adcreative/internal/providers/firecrawl"
)

type enhancePromptRequest struct {
	Prompt string `json:"prompt"`
	prompts.SceneParams
}

type enhancePromptResponse struct {
	Success        bool      `json:"success"`
	OriginalPrompt string    `json:"originalPrompt"`
	EnhancedPrompt string    `json:"enhancedPrompt"`
	Usage          usageBody `json:"usage"`
}

// EnhancePrompt handles POST /enhance-prompt
func (h *Handler) EnhancePrompt(c echo.Context) error {
	var req enhancePromptRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := required("prompt", req.Prompt); err != nil {
		return err
	}

	report, err := h.pipeline.Run(c.Request().Context(), pipeline.Stage{
		Name: "enhance",
		Prompt: func(pipeline.StageResult) (string, error) {
			return prompts.EnhancePrompt(req.Prompt, req.SceneParams), nil
		},
		Decode:       func(text string) (string, error) { return prompts.CleanText(text), nil },
		EmptyMessage: "Could not enhance prompt",
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, enhancePromptResponse{
		Success:        true,
		OriginalPrompt: req.Prompt,
		EnhancedPrompt: report.Final().Text,
		Usage:          usageOf(report.Usage),
	})
}

type scrapeURLRequest struct {
	URL string `json:"url"`
}

type scrapeURLResponse struct {
	Success bool `json:"success"`
	*firecrawl.Page
}

// ScrapeURL handles POST /scrape-url
func (h *Handler) ScrapeURL(c echo.Context) error {
	var req scrapeURLRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := required("url", req.URL); err != nil {
		return err
	}

	target := strings.TrimSpace(req.URL)
	if u, err := url.Parse(target); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return core.NewValidationError("Invalid URL", err).WithDetails("url must be an absolute http(s) URL")
	}

	page, err := h.pages.Summarize(c.Request().Context(), target)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, scrapeURLResponse{Success: true, Page: page})
}
