package media

import (
	"context"
	"mime"
	"net/http"
	"strings"

	"adcreative/internal/core"
	"adcreative/internal/pkg/apiclient"
)

// DefaultMaxBytes caps a single media download.
const DefaultMaxBytes = 100 << 20

// UpstreamName labels download failures.
const UpstreamName = "media"

// DefaultVideoMIME is assumed when neither the server nor content sniffing names a type.
const DefaultVideoMIME = "video/mp4"

// DownloaderConfig configures a Downloader.
type DownloaderConfig struct {
	MaxBytes   int64
	HTTPClient *http.Client
}

// Downloader fetches media from absolute URLs.
type Downloader struct {
	client *apiclient.Client
}

// NewDownloader creates a downloader. CDN hosts vary per request, so the client has no
// base URL and no circuit breaker.
func NewDownloader(cfg DownloaderConfig) *Downloader {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	clientCfg := apiclient.Config{
		UpstreamName:     UpstreamName,
		MaxResponseBytes: cfg.MaxBytes,
	}
	var client *apiclient.Client
	if cfg.HTTPClient != nil {
		client = apiclient.NewWithHTTPClient(cfg.HTTPClient, clientCfg, nil)
	} else {
		client = apiclient.New(clientCfg, nil)
	}
	return &Downloader{client: client}
}

// Fetch downloads target and returns its bytes and MIME type.
func (d *Downloader) Fetch(ctx context.Context, target string) ([]byte, string, error) {
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return nil, "", core.NewValidationError("media URL must be absolute", nil).WithDetails(target)
	}

	resp, err := d.client.DoRaw(ctx, apiclient.Request{
		Method:   http.MethodGet,
		Endpoint: target,
	})
	if err != nil {
		return nil, "", err
	}
	if len(resp.Body) == 0 {
		return nil, "", core.NewRemoteCallError(UpstreamName, "Downloaded media is empty", nil).WithDetails(target)
	}
	return resp.Body, detectMIME(resp.Header.Get("Content-Type"), resp.Body), nil
}

func detectMIME(header string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "application/octet-stream" && mt != "binary/octet-stream" {
		return mt
	}
	if sniffed, _, _ := strings.Cut(http.DetectContentType(data), ";"); sniffed != "application/octet-stream" {
		return sniffed
	}
	return DefaultVideoMIME
}
