package server

import (
	"context"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"adcreative/internal/ratelimit"
)

// DefaultBodySizeLimit fits a base64 product image plus a reference image.
const DefaultBodySizeLimit int64 = 25 << 20

// Server is the creative API on top of Echo.
type Server struct {
	echo *echo.Echo
}

// Config controls the middleware stack built by New.
type Config struct {
	// MasterKey enables bearer auth on every route except health and metrics.
	MasterKey string
	// MetricsEnabled mounts the Prometheus handler at MetricsEndpoint.
	MetricsEnabled  bool
	MetricsEndpoint string
	// BodySizeLimit in bytes; DefaultBodySizeLimit when zero.
	BodySizeLimit int64
	// Debug adds the wrapped cause to error envelopes. Development only.
	Debug bool
	// RequestTimeout bounds a whole request, including readiness waits. Zero disables it.
	RequestTimeout time.Duration
}

// Endpoint names double as rate-limit rule keys and metric labels.
const (
	EndpointAnalyze            = "analyze"
	EndpointViralScript        = "generate-viral-script"
	EndpointAdaptViralScript   = "adapt-viral-script"
	EndpointProductVideo       = "generate-product-video"
	EndpointStaticAdPrompt     = "generate-static-ad-prompt"
	EndpointEnhancePrompt      = "enhance-prompt"
	EndpointScrapeURL          = "scrape-url"
	defaultMetricsEndpointPath = "/metrics"
)

// New creates a new HTTP server. A nil limiter disables rate limiting.
func New(handler *Handler, limiter *ratelimit.Limiter, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}

	e := echo.New()
	e.HideBanner, e.HidePort = true, true
	e.HTTPErrorHandler = ErrorHandler(cfg.Debug)

	metricsPath := metricsRoute(cfg)
	public := []string{"/health"}
	if metricsPath != "" {
		public = append(public, metricsPath)
	}

	limit := cfg.BodySizeLimit
	if limit <= 0 {
		limit = DefaultBodySizeLimit
	}

	e.Use(
		RequestIDMiddleware(),
		RequestLogger(),
		middleware.Recover(),
		middleware.BodyLimit(strconv.FormatInt(limit, 10)),
	)
	if cfg.MasterKey != "" {
		e.Use(AuthMiddleware(cfg.MasterKey, public))
	}

	e.GET("/health", handler.Health)
	if metricsPath != "" {
		e.GET(metricsPath, echo.WrapHandler(promhttp.Handler()))
	}

	route := func(name string, h echo.HandlerFunc) {
		e.POST("/"+name, h,
			EndpointMiddleware(name, cfg.RequestTimeout),
			RateLimitMiddleware(limiter, name),
		)
	}
	route(EndpointAnalyze, handler.Analyze)
	route(EndpointViralScript, handler.GenerateViralScript)
	route(EndpointAdaptViralScript, handler.AdaptViralScript)
	route(EndpointProductVideo, handler.GenerateProductVideo)
	route(EndpointStaticAdPrompt, handler.GenerateStaticAdPrompt)
	route(EndpointEnhancePrompt, handler.EnhancePrompt)
	route(EndpointScrapeURL, handler.ScrapeURL)

	return &Server{echo: e}
}

// metricsRoute returns the cleaned metrics path, or "" when metrics are off.
func metricsRoute(cfg *Config) string {
	if !cfg.MetricsEnabled {
		return ""
	}
	if cfg.MetricsEndpoint == "" {
		return defaultMetricsEndpointPath
	}
	return path.Clean("/" + cfg.MetricsEndpoint)
}

// Start listens on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
