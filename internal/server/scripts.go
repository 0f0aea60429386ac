package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"adcreative/internal/pipeline"
	"adcreative/internal/prompts"
)

type viralScriptRequest struct {
	URL                string `json:"url"`
	ProductDescription string `json:"productDescription"`
	// Transcript skips the transcript lookup when the caller already has one.
	Transcript string `json:"transcript,omitempty"`
}

type viralScriptResponse struct {
	Success    bool      `json:"success"`
	Script     string    `json:"script"`
	Transcript string    `json:"transcript"`
	Usage      usageBody `json:"usage"`
}

// GenerateViralScript handles POST /generate-viral-script
func (h *Handler) GenerateViralScript(c echo.Context) error {
	var req viralScriptRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := required("productDescription", req.ProductDescription); err != nil {
		return err
	}

	ctx := c.Request().Context()
	transcript := prompts.SingleParagraph(req.Transcript)
	if transcript == "" {
		if err := required("url", req.URL); err != nil {
			return err
		}
		var err error
		transcript, err = h.ads.TikTokTranscript(ctx, req.URL)
		if err != nil {
			return err
		}
	}

	report, err := h.pipeline.Run(ctx, pipeline.Stage{
		Name: "script",
		Prompt: func(pipeline.StageResult) (string, error) {
			return prompts.ViralScriptPrompt(transcript, req.ProductDescription), nil
		},
		Decode:       singleParagraph,
		EmptyMessage: "Could not generate script",
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, viralScriptResponse{
		Success:    true,
		Script:     report.Final().Text,
		Transcript: transcript,
		Usage:      usageOf(report.Usage),
	})
}

type adaptScriptRequest struct {
	Script             string `json:"script"`
	ProductDescription string `json:"productDescription"`
	Tone               string `json:"tone,omitempty"`
}

type adaptScriptResponse struct {
	Success bool      `json:"success"`
	Script  string    `json:"script"`
	Usage   usageBody `json:"usage"`
}

// AdaptViralScript handles POST /adapt-viral-script
func (h *Handler) AdaptViralScript(c echo.Context) error {
	var req adaptScriptRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := required("script", req.Script); err != nil {
		return err
	}
	if err := required("productDescription", req.ProductDescription); err != nil {
		return err
	}

	report, err := h.pipeline.Run(c.Request().Context(), pipeline.Stage{
		Name: "script",
		Prompt: func(pipeline.StageResult) (string, error) {
			return prompts.AdaptScriptPrompt(req.Script, req.ProductDescription, req.Tone), nil
		},
		Decode:       singleParagraph,
		EmptyMessage: "Could not adapt script",
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, adaptScriptResponse{
		Success: true,
		Script:  report.Final().Text,
		Usage:   usageOf(report.Usage),
	})
}

// singleParagraph strips wrapping quotes the model sometimes adds, then removes every
// line break.
func singleParagraph(text string) (string, error) {
	return prompts.SingleParagraph(prompts.CleanText(text)), nil
}
