// Package httpclient builds the shared outbound HTTP client used for every upstream call.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// DefaultUserAgent identifies the service to upstream APIs.
const DefaultUserAgent = "adcreative/1.0"

// ClientConfig tunes the transport shared by the Gemini, scraper and media clients.
type ClientConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	// Timeout caps a whole request including the body read.
	Timeout               time.Duration
	ResponseHeaderTimeout time.Duration
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration

	// UserAgent is sent when a request has none.
	UserAgent string
}

// DefaultConfig returns the transport settings used when nothing is configured.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		Timeout:               5 * time.Minute,
		ResponseHeaderTimeout: 5 * time.Minute,
		DialTimeout:           10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		UserAgent:             DefaultUserAgent,
	}
}

// WithTimeouts returns a copy of cfg with the request and header timeouts replaced.
// Non-positive values keep the current setting.
func (cfg ClientConfig) WithTimeouts(total, header time.Duration) ClientConfig {
	if total > 0 {
		cfg.Timeout = total
	}
	if header > 0 {
		cfg.ResponseHeaderTimeout = header
	}
	return cfg
}

// NewHTTPClient creates a client from config, or from DefaultConfig when config is nil.
func NewHTTPClient(config *ClientConfig) *http.Client {
	if config == nil {
		cfg := DefaultConfig()
		config = &cfg
	}

	var rt http.RoundTripper = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: time.Second,
	}
	if config.UserAgent != "" {
		rt = &userAgentTransport{next: rt, userAgent: config.UserAgent}
	}

	return &http.Client{Transport: rt, Timeout: config.Timeout}
}

// NewDefaultHTTPClient is NewHTTPClient(nil).
func NewDefaultHTTPClient() *http.Client {
	return NewHTTPClient(nil)
}

type userAgentTransport struct {
	next      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request.
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.next.RoundTrip(clone)
}
