// Package app assembles the adcreative server from config: upstream clients,
// generation, rate limiting and the HTTP layer.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"adcreative/config"
	"adcreative/internal/assets"
	"adcreative/internal/generation"
	"adcreative/internal/httpclient"
	"adcreative/internal/media"
	"adcreative/internal/providers/firecrawl"
	"adcreative/internal/providers/gemini"
	"adcreative/internal/providers/scrapecreators"
	"adcreative/internal/ratelimit"
	"adcreative/internal/server"
	"adcreative/internal/usage"
)

// App owns every long-lived component of a running server.
type App struct {
	config  *config.Config
	usage   usage.Recorder
	limiter *ratelimit.Limiter
	server  *server.Server

	stopOnce sync.Once
	stopErr  error
}

// New wires the server from cfg. Shutdown releases what it opens.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}

	app := &App{config: cfg}
	app.logStartupInfo()

	clientCfg := httpclient.DefaultConfig().WithTimeouts(
		time.Duration(cfg.HTTP.Timeout)*time.Second,
		time.Duration(cfg.HTTP.ResponseHeaderTimeout)*time.Second,
	)
	httpClient := httpclient.NewHTTPClient(&clientCfg)

	geminiClient := gemini.New(gemini.Config{
		APIKey:     cfg.Gemini.APIKey,
		BaseURL:    cfg.Gemini.BaseURL,
		UploadURL:  cfg.Gemini.UploadURL,
		HTTPClient: httpClient,
	})
	ads := scrapecreators.New(scrapecreators.Config{
		APIKey:     cfg.ScrapeCreators.APIKey,
		BaseURL:    cfg.ScrapeCreators.BaseURL,
		HTTPClient: httpClient,
	})
	pages := firecrawl.New(firecrawl.Config{
		APIKey:     cfg.Firecrawl.APIKey,
		BaseURL:    cfg.Firecrawl.BaseURL,
		HTTPClient: httpClient,
	})
	downloader := media.NewDownloader(media.DownloaderConfig{
		MaxBytes:   cfg.Assets.MaxDownloadBytes,
		HTTPClient: httpClient,
	})

	if cfg.Usage.Enabled {
		app.usage = usage.NewLogger(usage.NewSlogStore(slog.Default()), usage.Config{
			Enabled:       true,
			BufferSize:    cfg.Usage.BufferSize,
			FlushInterval: time.Duration(cfg.Usage.FlushInterval) * time.Second,
		})
	} else {
		app.usage = usage.NoopLogger{}
	}

	generator := generation.NewService(geminiClient, generation.Config{
		DefaultModel: cfg.Gemini.Model,
		Upstream:     gemini.UpstreamName,
		Prices:       priceTable(cfg.Usage.Prices),
	}, app.usage)

	if cfg.RateLimit.Enabled {
		limiter, err := newLimiter(cfg)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to initialize rate limiter: %w", err), app.usage.Close())
		}
		app.limiter = limiter
	}

	handler := server.NewHandler(server.Deps{
		Ads:       ads,
		Pages:     pages,
		Media:     downloader,
		Files:     geminiClient,
		Generator: generator,
		Poller: assets.PollerConfig{
			Interval: time.Duration(cfg.Assets.PollInterval) * time.Millisecond,
			Budget:   time.Duration(cfg.Assets.PollTimeout) * time.Second,
		},
		MaxPromptChars: cfg.Prompts.MaxChars,
	})

	app.server = server.New(handler, app.limiter, &server.Config{
		MasterKey:       cfg.Server.MasterKey,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		BodySizeLimit:   cfg.BodySizeLimitBytes(),
		Debug:           cfg.IsDevelopment(),
		RequestTimeout:  time.Duration(cfg.Server.RequestTimeout) * time.Second,
	})

	return app, nil
}

// newLimiter builds the limiter over Redis when configured, else over process memory.
func newLimiter(cfg *config.Config) (*ratelimit.Limiter, error) {
	var store ratelimit.Store
	if cfg.Redis.URL != "" {
		redisStore, err := ratelimit.NewRedisStore(ratelimit.RedisConfig{URL: cfg.Redis.URL})
		if err != nil {
			return nil, err
		}
		store = redisStore
	} else {
		slog.Warn("REDIS_URL not set, rate limits are enforced per process")
		store = ratelimit.NewLocalStore()
	}

	rules := ratelimit.DefaultRules()
	for endpoint, limit := range cfg.RateLimit.Limits {
		if limit == 0 {
			delete(rules, endpoint)
			continue
		}
		w := rules[endpoint]
		if w.Period == 0 {
			w.Period = time.Hour
		}
		w.Limit = limit
		rules[endpoint] = w
	}

	var opts []ratelimit.Option
	if cfg.RateLimit.KeyPrefix != "" {
		opts = append(opts, ratelimit.WithKeyPrefix(cfg.RateLimit.KeyPrefix))
	}
	return ratelimit.New(store, rules, opts...), nil
}

// priceTable layers configured rates over the built-in Gemini table.
func priceTable(overrides map[string]config.ModelPrice) usage.PriceTable {
	table := usage.DefaultPriceTable()
	for model, p := range overrides {
		table[strings.ToLower(strings.TrimSpace(model))] = usage.Pricing{
			InputPerMtok:       p.InputPerMtok,
			OutputPerMtok:      p.OutputPerMtok,
			CachedInputPerMtok: p.CachedInputPerMtok,
		}
	}
	return table
}

// Handler returns the HTTP handler, for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start serves on addr until Shutdown. A graceful stop returns nil.
func (a *App) Start(addr string) error {
	slog.Info("listening", "address", addr)
	err := a.server.Start(addr)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("serve %s: %w", addr, err)
}

// Shutdown drains the server, flushes pending usage records and closes the
// rate-limit store, in that order. Later calls return the first result.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.stopErr = a.stop(ctx)
	})
	return a.stopErr
}

type shutdownStep struct {
	name string
	run  func() error
}

func (a *App) stop(ctx context.Context) error {
	steps := []shutdownStep{
		{"http server", func() error { return a.server.Shutdown(ctx) }},
		{"usage recorder", a.usage.Close},
	}
	if a.limiter != nil {
		steps = append(steps, shutdownStep{"rate limiter", a.limiter.Close})
	}

	var errs []error
	for _, step := range steps {
		if err := step.run(); err != nil {
			slog.Error("shutdown step failed", "component", step.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	slog.Info("stopped")
	return nil
}

func (a *App) logStartupInfo() {
	cfg := a.config

	if cfg.Server.MasterKey == "" {
		slog.Warn("SECURITY WARNING: APP_MASTER_KEY not set - server running in UNSAFE MODE",
			"security_risk", "unauthenticated access allowed",
			"recommendation", "set APP_MASTER_KEY environment variable to secure this service")
	} else {
		slog.Info("master key auth enabled")
	}

	for name, key := range map[string]string{
		"GEMINI_API_KEY":         cfg.Gemini.APIKey,
		"SCRAPECREATORS_API_KEY": cfg.ScrapeCreators.APIKey,
		"FIRECRAWL_API_KEY":      cfg.Firecrawl.APIKey,
	} {
		if key == "" {
			slog.Warn("upstream API key not set, dependent endpoints will fail", "variable", name)
		}
	}

	slog.Info("metrics", "enabled", cfg.Metrics.Enabled, "endpoint", cfg.Metrics.Endpoint)

	if cfg.RateLimit.Enabled {
		slog.Info("rate limiting enabled", "shared_store", cfg.Redis.URL != "")
	} else {
		slog.Warn("rate limiting disabled")
	}

	slog.Info("generation configured", "model", cfg.Gemini.Model, "environment", cfg.Server.Env)
}
