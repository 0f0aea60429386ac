package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"adcreative/internal/assets"
	"adcreative/internal/core"
	"adcreative/internal/media"
	"adcreative/internal/pipeline"
	"adcreative/internal/prompts"
)

const (
	stageAnalysis   = "analysis"
	stageAdaptation = "adaptation"
)

type analyzeRequest struct {
	URL            string `json:"url"`
	Type           string `json:"type"`
	ProductService string `json:"productService,omitempty"`
	// ProductImage is a base64 string or data URL shown to the adaptation stage.
	ProductImage string `json:"productImage,omitempty"`
}

type geminiAnalysis struct {
	Text    string `json:"text"`
	FileURI string `json:"fileUri"`
}

type analyzeResponse struct {
	Success        bool            `json:"success"`
	AdID           string          `json:"adId"`
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data"`
	GeminiAnalysis geminiAnalysis  `json:"geminiAnalysis"`
	// AdaptedPrompt is null when adaptation was not requested or did not succeed.
	AdaptedPrompt *string   `json:"adaptedPrompt"`
	Usage         usageBody `json:"usage"`
}

// Analyze handles POST /analyze
func (h *Handler) Analyze(c echo.Context) error {
	var req analyzeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := required("url", req.URL); err != nil {
		return err
	}
	analysisType, err := prompts.ParseAnalysisType(req.Type)
	if err != nil {
		return err
	}
	adID, err := media.ResolveAdID(req.URL)
	if err != nil {
		return err
	}

	productService := strings.TrimSpace(req.ProductService)
	var productBlob *assets.Blob
	if productService != "" && strings.TrimSpace(req.ProductImage) != "" {
		blob, err := decodeImage("productImage", req.ProductImage, "product-"+adID)
		if err != nil {
			return err
		}
		productBlob = &blob
	}

	ctx := c.Request().Context()
	ad, err := h.ads.FacebookAd(ctx, adID)
	if err != nil {
		return err
	}
	videoURL, ok := media.FindVideoURL(ad)
	if !ok {
		return core.NewNotFoundError("", "No video found in this ad").
			WithDetails("the ad has no playable video; only video ads can be analyzed")
	}

	video, product, err := h.prepareAnalyzeAssets(ctx, adID, videoURL, productBlob)
	if err != nil {
		return err
	}

	stages := []pipeline.Stage{{
		Name:         stageAnalysis,
		Assets:       []*core.AssetHandle{video},
		Prompt:       func(pipeline.StageResult) (string, error) { return prompts.AnalysisPrompt(analysisType), nil },
		EmptyMessage: "Could not extract analysis text",
	}}
	if productService != "" {
		var adaptAssets []*core.AssetHandle
		if product != nil {
			adaptAssets = []*core.AssetHandle{product}
		}
		stages = append(stages, pipeline.Stage{
			Name:     stageAdaptation,
			Optional: true,
			Assets:   adaptAssets,
			Prompt: func(prev pipeline.StageResult) (string, error) {
				return prompts.AdaptationPrompt(prev.Text, productService), nil
			},
		})
	}

	report, err := h.pipeline.Run(ctx, stages...)
	if err != nil {
		return err
	}

	resp := analyzeResponse{
		Success: true,
		AdID:    adID,
		Type:    string(analysisType),
		Data:    ad,
		GeminiAnalysis: geminiAnalysis{
			Text:    report.Stage(stageAnalysis).Text,
			FileURI: video.URI,
		},
		Usage: usageOf(report.Usage),
	}
	if adapted := report.Stage(stageAdaptation); adapted != nil && adapted.OK() {
		text := adapted.Text
		resp.AdaptedPrompt = &text
	}
	return c.JSON(http.StatusOK, resp)
}

// prepareAnalyzeAssets downloads and uploads the ad video while the optional product
// image uploads alongside it. Only the video is mandatory: a product image that fails
// to upload is logged and the adaptation stage runs without it.
func (h *Handler) prepareAnalyzeAssets(ctx context.Context, adID, videoURL string, productBlob *assets.Blob) (*core.AssetHandle, *core.AssetHandle, error) {
	var video, product *core.AssetHandle

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, mimeType, err := h.media.Fetch(gctx, videoURL)
		if err != nil {
			return fmt.Errorf("download ad video: %w", err)
		}
		video, err = h.ready(gctx, assets.Blob{Data: data, MIMEType: mimeType, DisplayName: "ad-" + adID})
		return err
	})
	if productBlob != nil {
		g.Go(func() error {
			handle, err := h.ready(gctx, *productBlob)
			if err != nil {
				slog.WarnContext(ctx, "product image upload failed, adapting without it",
					"ad_id", adID,
					"error", err,
					"request_id", core.GetRequestID(ctx),
				)
				return nil
			}
			product = handle
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return video, product, nil
}
