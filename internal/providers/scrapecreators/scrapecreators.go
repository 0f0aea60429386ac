// Package scrapecreators is a client for the ScrapeCreators social scraping API:
// Facebook Ad Library lookups and TikTok transcripts.
package scrapecreators

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"adcreative/internal/core"
	"adcreative/internal/pkg/apiclient"
)

const (
	// UpstreamName is used in error messages and metrics labels.
	UpstreamName = "scrapecreators"

	defaultBaseURL = "https://api.scrapecreators.com"
)

// Config holds the ScrapeCreators client settings.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Client calls the ScrapeCreators API.
type Client struct {
	api *apiclient.Client
}

// New creates a new ScrapeCreators client
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	setKey := func(req *http.Request) {
		req.Header.Set("x-api-key", cfg.APIKey)
	}
	apiCfg := apiclient.DefaultConfig(UpstreamName, baseURL)
	if cfg.HTTPClient != nil {
		return &Client{api: apiclient.NewWithHTTPClient(cfg.HTTPClient, apiCfg, setKey)}
	}
	return &Client{api: apiclient.New(apiCfg, setKey)}
}

// FacebookAd fetches a single Ad Library entry. The payload shape varies between ads,
// so it is returned raw for path-based inspection.
func (c *Client) FacebookAd(ctx context.Context, adID string) (json.RawMessage, error) {
	resp, err := c.api.DoRaw(ctx, apiclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/v1/facebook/adLibrary/ad",
		Query:    url.Values{"id": []string{adID}},
	})
	if err != nil {
		return nil, mapError(err, "Ad not found in Facebook Ad Library")
	}
	if !gjson.ValidBytes(resp.Body) {
		return nil, core.NewRemoteCallError(UpstreamName, "invalid response from ScrapeCreators", nil)
	}
	return json.RawMessage(resp.Body), nil
}

// TikTokTranscript fetches the transcript of a TikTok video as plain text.
// WebVTT cue timings and headers are removed.
func (c *Client) TikTokTranscript(ctx context.Context, videoURL string) (string, error) {
	resp, err := c.api.DoRaw(ctx, apiclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/v1/tiktok/video/transcript",
		Query:    url.Values{"url": []string{videoURL}},
	})
	if err != nil {
		return "", mapError(err, "TikTok video not found")
	}

	transcript := gjson.GetBytes(resp.Body, "transcript").String()
	if strings.TrimSpace(transcript) == "" {
		return "", core.NewNotFoundError(UpstreamName, "No transcript available for this video")
	}
	return FlattenWebVTT(transcript), nil
}

// mapError rewrites upstream errors into the messages surfaced to clients.
func mapError(err error, notFound string) error {
	var e *core.Error
	if !errors.As(err, &e) {
		return err
	}
	switch e.Kind {
	case core.KindUpstreamAuth:
		return relabel(e, "Invalid ScrapeCreators API key")
	case core.KindUpstreamQuota:
		return relabel(e, "No credits in ScrapeCreators")
	case core.KindUpstreamNotFound:
		return relabel(e, notFound)
	}
	return e
}

func relabel(e *core.Error, message string) *core.Error {
	cp := *e
	if cp.Details == "" {
		cp.Details = e.Message
	}
	cp.Message = message
	return &cp
}

var (
	vttTiming = regexp.MustCompile(`^\d{1,2}:\d{2}(:\d{2})?[.,]\d{3}\s+-->\s+`)
	vttCueID  = regexp.MustCompile(`^\d+$`)
	vttTag    = regexp.MustCompile(`<[^>]+>`)
)

// FlattenWebVTT turns a WebVTT document into a single line of spoken text.
// Input that is not WebVTT is returned with whitespace collapsed.
func FlattenWebVTT(vtt string) string {
	lines := strings.Split(strings.ReplaceAll(vtt, "\r\n", "\n"), "\n")
	words := make([]string, 0, len(lines))
	skipBlock := false
	for i, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			skipBlock = false
			continue
		case skipBlock:
			continue
		case strings.HasPrefix(line, "WEBVTT"):
			continue
		case strings.HasPrefix(line, "NOTE"), strings.HasPrefix(line, "STYLE"), strings.HasPrefix(line, "REGION"):
			skipBlock = true
			continue
		case vttTiming.MatchString(line):
			continue
		case vttCueID.MatchString(line) && i+1 < len(lines) && vttTiming.MatchString(strings.TrimSpace(lines[i+1])):
			continue
		}
		words = append(words, vttTag.ReplaceAllString(line, ""))
	}
	return strings.Join(strings.Fields(strings.Join(words, " ")), " ")
}
