package server

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"adcreative/internal/assets"
	"adcreative/internal/core"
	"adcreative/internal/pipeline"
	"adcreative/internal/prompts"
)

type productVideoRequest struct {
	ProductImage       string `json:"productImage"`
	ProductDescription string `json:"productDescription,omitempty"`
	prompts.SceneParams
}

type productVideoResponse struct {
	Success         bool      `json:"success"`
	ProductAnalysis string    `json:"productAnalysis"`
	VideoPrompt     string    `json:"videoPrompt"`
	CharacterCount  int       `json:"characterCount"`
	Reoptimized     bool      `json:"reoptimized"`
	Truncated       bool      `json:"truncated"`
	Usage           usageBody `json:"usage"`
}

// GenerateProductVideo handles POST /generate-product-video
func (h *Handler) GenerateProductVideo(c echo.Context) error {
	var req productVideoRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := required("productImage", req.ProductImage); err != nil {
		return err
	}
	blob, err := decodeImage("productImage", req.ProductImage, "product")
	if err != nil {
		return err
	}

	description, scene := req.ProductDescription, req.SceneParams

	ctx := c.Request().Context()
	image, err := h.ready(ctx, blob)
	if err != nil {
		return err
	}

	report, err := h.pipeline.Run(ctx, h.productVideoStages(image, description, scene)...)
	if err != nil {
		return err
	}

	final := report.Final()
	return c.JSON(http.StatusOK, productVideoResponse{
		Success:         true,
		ProductAnalysis: report.Stage(stageAnalysis).Text,
		VideoPrompt:     final.Text,
		CharacterCount:  utf8.RuneCountInString(final.Text),
		Reoptimized:     final.Reoptimized,
		Truncated:       final.Truncated,
		Usage:           usageOf(report.Usage),
	})
}

type staticAdRequest struct {
	ReferenceImage     string `json:"referenceImage"`
	ProductImage       string `json:"productImage,omitempty"`
	ProductDescription string `json:"productDescription,omitempty"`
}

type staticAdResponse struct {
	Success        bool      `json:"success"`
	Analysis       string    `json:"analysis"`
	Prompt         string    `json:"prompt"`
	CharacterCount int       `json:"characterCount"`
	Reoptimized    bool      `json:"reoptimized"`
	Truncated      bool      `json:"truncated"`
	Usage          usageBody `json:"usage"`
}

// GenerateStaticAdPrompt handles POST /generate-static-ad-prompt
func (h *Handler) GenerateStaticAdPrompt(c echo.Context) error {
	var req staticAdRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := required("referenceImage", req.ReferenceImage); err != nil {
		return err
	}
	hasProductImage := strings.TrimSpace(req.ProductImage) != ""
	if !hasProductImage && strings.TrimSpace(req.ProductDescription) == "" {
		return core.NewValidationError("Missing required field", nil).
			WithDetails("productImage or productDescription is required")
	}

	blobs := make([]assets.Blob, 0, 2)
	reference, err := decodeImage("referenceImage", req.ReferenceImage, "reference")
	if err != nil {
		return err
	}
	blobs = append(blobs, reference)
	if hasProductImage {
		product, err := decodeImage("productImage", req.ProductImage, "product")
		if err != nil {
			return err
		}
		blobs = append(blobs, product)
	}

	description := req.ProductDescription

	ctx := c.Request().Context()
	handles, err := h.readyAll(ctx, blobs...)
	if err != nil {
		return err
	}

	report, err := h.pipeline.Run(ctx, h.staticAdStages(handles, description, hasProductImage)...)
	if err != nil {
		return err
	}

	final := report.Final()
	return c.JSON(http.StatusOK, staticAdResponse{
		Success:        true,
		Analysis:       report.Stage(stageAnalysis).Text,
		Prompt:         final.Text,
		CharacterCount: utf8.RuneCountInString(final.Text),
		Reoptimized:    final.Reoptimized,
		Truncated:      final.Truncated,
		Usage:          usageOf(report.Usage),
	})
}

// productVideoStages takes only the small request fields so the base64 image is
// unreachable once uploaded.
func (h *Handler) productVideoStages(image *core.AssetHandle, description string, scene prompts.SceneParams) []pipeline.Stage {
	return []pipeline.Stage{
		{
			Name:   stageAnalysis,
			Assets: []*core.AssetHandle{image},
			Prompt: func(pipeline.StageResult) (string, error) {
				return prompts.ProductAnalysisPrompt(description), nil
			},
			Decode:       lenientSection(prompts.MarkerAnalysis),
			EmptyMessage: "Could not extract product analysis",
		},
		{
			Name: "video_prompt",
			Prompt: func(prev pipeline.StageResult) (string, error) {
				return prompts.ProductVideoPrompt(prev.Text, scene, h.maxChars), nil
			},
			Decode:       strictSection(prompts.MarkerVideoPrompt),
			Limit:        h.promptLimit(prompts.MarkerVideoPrompt),
			EmptyMessage: "Could not generate video prompt",
		},
	}
}

// staticAdStages expects the reference image first and the optional product image second.
func (h *Handler) staticAdStages(handles []*core.AssetHandle, description string, hasProductImage bool) []pipeline.Stage {
	return []pipeline.Stage{
		{
			Name:         stageAnalysis,
			Assets:       handles[:1],
			Prompt:       func(pipeline.StageResult) (string, error) { return prompts.StaticAdAnalysisPrompt(), nil },
			Decode:       lenientSection(prompts.MarkerAnalysis),
			EmptyMessage: "Could not extract analysis text",
		},
		{
			Name:   "image_prompt",
			Assets: handles[1:],
			Prompt: func(prev pipeline.StageResult) (string, error) {
				return prompts.StaticAdAdaptPrompt(prev.Text, description, hasProductImage, h.maxChars), nil
			},
			Decode:       strictSection(prompts.MarkerImagePrompt),
			Limit:        h.promptLimit(prompts.MarkerImagePrompt),
			EmptyMessage: "Could not generate image prompt",
		},
	}
}

func (h *Handler) promptLimit(marker string) *pipeline.LengthLimit {
	return &pipeline.LengthLimit{
		MaxChars:   h.maxChars,
		Reoptimize: prompts.ReoptimizePrompt,
		Marker:     marker,
	}
}

// lenientSection uses the labelled section when present and the whole text otherwise.
// Analyses only feed the next stage, so a missing label is tolerated.
func lenientSection(marker string) func(string) (string, error) {
	return func(text string) (string, error) {
		return prompts.SectionOrText(text, marker), nil
	}
}

// strictSection requires the labelled section and flattens it to one paragraph.
func strictSection(marker string) func(string) (string, error) {
	return func(text string) (string, error) {
		section, err := prompts.ExtractSection(text, marker)
		if err != nil {
			return "", err
		}
		return prompts.SingleParagraph(section), nil
	}
}
