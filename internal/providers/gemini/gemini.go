// Package gemini provides Google Gemini native API integration: the Files API used for
// asset uploads and readiness checks, and generateContent.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"adcreative/internal/core"
	"adcreative/internal/pkg/apiclient"
)

const (
	// UpstreamName is used in error messages and metrics labels.
	UpstreamName = "gemini"

	defaultBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	defaultUploadURL = "https://generativelanguage.googleapis.com/upload/v1beta"
)

// Config holds the Gemini client settings.
type Config struct {
	APIKey    string
	BaseURL   string
	UploadURL string
	// HTTPClient is optional; the shared default client is used when nil.
	HTTPClient *http.Client
}

// Client talks to the Gemini REST API.
type Client struct {
	api    *apiclient.Client
	upload *apiclient.Client
}

// New creates a new Gemini client
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	uploadURL := cfg.UploadURL
	if uploadURL == "" {
		uploadURL = defaultUploadURL
	}

	setKey := func(req *http.Request) {
		req.Header.Set("x-goog-api-key", cfg.APIKey)
	}

	apiCfg := apiclient.DefaultConfig(UpstreamName, baseURL)
	uploadCfg := apiclient.DefaultConfig(UpstreamName, uploadURL)
	// Upload failures are usually payload rejections, not outages.
	uploadCfg.CircuitBreaker = nil

	if cfg.HTTPClient != nil {
		return &Client{
			api:    apiclient.NewWithHTTPClient(cfg.HTTPClient, apiCfg, setKey),
			upload: apiclient.NewWithHTTPClient(cfg.HTTPClient, uploadCfg, setKey),
		}
	}
	return &Client{
		api:    apiclient.New(apiCfg, setKey),
		upload: apiclient.New(uploadCfg, setKey),
	}
}

// fileResource is the Files API representation of an uploaded file.
type fileResource struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType"`
	State    string `json:"state"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (f fileResource) handle() *core.AssetHandle {
	return &core.AssetHandle{
		Name:     f.Name,
		URI:      f.URI,
		MIMEType: f.MIMEType,
		State:    core.ParseAssetState(f.State),
	}
}

// UploadFile uploads data with a single multipart request and returns the new handle.
// Small files may come back ACTIVE immediately; videos usually start PROCESSING.
func (c *Client) UploadFile(ctx context.Context, data []byte, mimeType, displayName string) (*core.AssetHandle, error) {
	body, contentType, err := multipartBody(data, mimeType, displayName)
	if err != nil {
		return nil, core.NewInternalError("failed to encode upload", err)
	}

	var resp struct {
		File fileResource `json:"file"`
	}
	err = c.upload.Do(ctx, apiclient.Request{
		Method:      http.MethodPost,
		Endpoint:    "/files",
		Query:       url.Values{"uploadType": []string{"multipart"}},
		RawBody:     body,
		ContentType: contentType,
		Headers:     map[string]string{"X-Goog-Upload-Protocol": "multipart"},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.File.URI == "" && resp.File.Name == "" {
		return nil, core.NewRemoteCallError(UpstreamName, "upload response did not include a file", nil)
	}
	return resp.File.handle(), nil
}

// GetFile fetches the current state of an uploaded file by identifier.
func (c *Client) GetFile(ctx context.Context, id string) (*core.AssetHandle, error) {
	var file fileResource
	err := c.api.Do(ctx, apiclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/files/" + url.PathEscape(id),
	}, &file)
	if err != nil {
		return nil, err
	}
	return file.handle(), nil
}

type filePart struct {
	MIMEType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type part struct {
	Text     string    `json:"text,omitempty"`
	FileData *filePart `json:"file_data,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

// GenerateContent calls models/{model}:generateContent and returns the raw response body.
// Interpreting the loosely-typed response is left to the caller.
func (c *Client) GenerateContent(ctx context.Context, model string, req *core.GenerationRequest) ([]byte, error) {
	if req == nil {
		return nil, core.NewInternalError("generation request is nil", nil)
	}
	model = strings.TrimPrefix(model, "models/")

	parts := make([]part, 0, len(req.Parts()))
	for _, p := range req.Parts() {
		if p.Asset != nil {
			parts = append(parts, part{FileData: &filePart{MIMEType: p.Asset.MIMEType, FileURI: p.Asset.URI}})
			continue
		}
		parts = append(parts, part{Text: p.Text})
	}

	resp, err := c.api.DoRaw(ctx, apiclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/models/" + url.PathEscape(model) + ":generateContent",
		Body:     generateRequest{Contents: []content{{Role: req.Role(), Parts: parts}}},
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// multipartBody builds a multipart/related payload: JSON metadata followed by the media.
func multipartBody(data []byte, mimeType, displayName string) ([]byte, string, error) {
	var buf bytes.Buffer
	buf.Grow(len(data) + 512)
	w := multipart.NewWriter(&buf)

	meta, err := json.Marshal(map[string]any{
		"file": map[string]string{"display_name": displayName},
	})
	if err != nil {
		return nil, "", err
	}

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	mw, err := w.CreatePart(metaHeader)
	if err != nil {
		return nil, "", err
	}
	if _, err := mw.Write(meta); err != nil {
		return nil, "", err
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", mimeType)
	pw, err := w.CreatePart(mediaHeader)
	if err != nil {
		return nil, "", err
	}
	if _, err := pw.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), fmt.Sprintf("multipart/related; boundary=%s", w.Boundary()), nil
}
