// Package firecrawl is a client for the Firecrawl scrape API, used to summarize landing pages.
package firecrawl

import (
	"context"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"adcreative/internal/core"
	"adcreative/internal/pkg/apiclient"
)

const (
	// UpstreamName is used in error messages and metrics labels.
	UpstreamName = "firecrawl"

	defaultBaseURL = "https://api.firecrawl.dev"
)

// Config holds the Firecrawl client settings.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Client calls the Firecrawl API.
type Client struct {
	api *apiclient.Client
}

// Page is the scraped content of a URL.
type Page struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Summary     string `json:"summary,omitempty"`
	Markdown    string `json:"markdown,omitempty"`
}

// New creates a new Firecrawl client
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	setAuth := func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	apiCfg := apiclient.DefaultConfig(UpstreamName, baseURL)
	if cfg.HTTPClient != nil {
		return &Client{api: apiclient.NewWithHTTPClient(cfg.HTTPClient, apiCfg, setAuth)}
	}
	return &Client{api: apiclient.New(apiCfg, setAuth)}
}

type scrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

// Summarize scrapes pageURL and returns its summary and main-content markdown.
func (c *Client) Summarize(ctx context.Context, pageURL string) (*Page, error) {
	resp, err := c.api.DoRaw(ctx, apiclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/v2/scrape",
		Body: scrapeRequest{
			URL:             pageURL,
			Formats:         []string{"summary", "markdown"},
			OnlyMainContent: true,
		},
	})
	if err != nil {
		return nil, err
	}

	body := gjson.ParseBytes(resp.Body)
	if success := body.Get("success"); success.Exists() && !success.Bool() {
		msg := body.Get("error").String()
		if msg == "" {
			msg = "scrape failed"
		}
		return nil, core.NewRemoteCallError(UpstreamName, msg, nil)
	}

	data := body.Get("data")
	page := &Page{
		URL:         firstNonEmpty(data.Get("metadata.sourceURL").String(), data.Get("metadata.url").String(), pageURL),
		Title:       data.Get("metadata.title").String(),
		Description: data.Get("metadata.description").String(),
		Summary:     strings.TrimSpace(data.Get("summary").String()),
		Markdown:    strings.TrimSpace(data.Get("markdown").String()),
	}
	if page.Summary == "" && page.Markdown == "" {
		return nil, core.NewEmptyGenerationError("No content could be extracted from the page")
	}
	return page, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
