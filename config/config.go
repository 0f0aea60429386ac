// Package config provides configuration management for the application.
//
// Values are resolved in order: built-in defaults, an optional YAML file (with ${VAR} and
// ${VAR:-default} placeholders expanded from the environment), a .env file, then
// environment variables. Later sources win.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Body size limit bounds accepted by ValidateBodySizeLimit.
const (
	minBodySizeLimit = 1 << 10
	maxBodySizeLimit = 100 << 20
)

// Config holds the application configuration
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Gemini         GeminiConfig         `yaml:"gemini"`
	ScrapeCreators ScrapeCreatorsConfig `yaml:"scrapecreators"`
	Firecrawl      FirecrawlConfig      `yaml:"firecrawl"`
	Redis          RedisConfig          `yaml:"redis"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Assets         AssetsConfig         `yaml:"assets"`
	Prompts        PromptsConfig        `yaml:"prompts"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Logging        LogConfig            `yaml:"logging"`
	Usage          UsageConfig          `yaml:"usage"`
	HTTP           HTTPConfig           `yaml:"http"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port" env:"PORT"`
	// Env is "development" or "production". Development adds debug fields to error envelopes.
	Env       string `yaml:"env" env:"APP_ENV"`
	MasterKey string `yaml:"master_key" env:"APP_MASTER_KEY"`
	// BodySizeLimit accepts plain bytes or a K/M suffix, e.g. "25M".
	BodySizeLimit string `yaml:"body_size_limit" env:"BODY_SIZE_LIMIT"`
	// RequestTimeout bounds each endpoint call, in seconds. Zero disables it.
	RequestTimeout int `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
}

// GeminiConfig holds Google Gemini-specific configuration
type GeminiConfig struct {
	APIKey    string `yaml:"api_key" env:"GEMINI_API_KEY"`
	BaseURL   string `yaml:"base_url" env:"GEMINI_BASE_URL"`
	UploadURL string `yaml:"upload_url" env:"GEMINI_UPLOAD_URL"`
	Model     string `yaml:"model" env:"GEMINI_MODEL"`
}

// ScrapeCreatorsConfig holds ScrapeCreators-specific configuration
type ScrapeCreatorsConfig struct {
	APIKey  string `yaml:"api_key" env:"SCRAPECREATORS_API_KEY"`
	BaseURL string `yaml:"base_url" env:"SCRAPECREATORS_BASE_URL"`
}

// FirecrawlConfig holds Firecrawl-specific configuration
type FirecrawlConfig struct {
	APIKey  string `yaml:"api_key" env:"FIRECRAWL_API_KEY"`
	BaseURL string `yaml:"base_url" env:"FIRECRAWL_BASE_URL"`
}

// RedisConfig holds the shared rate-limit store connection.
type RedisConfig struct {
	// URL is empty when no shared store is configured.
	URL string `yaml:"url" env:"REDIS_URL"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled   bool   `yaml:"enabled" env:"RATE_LIMIT_ENABLED"`
	KeyPrefix string `yaml:"key_prefix" env:"RATE_LIMIT_KEY_PREFIX"`
	// Limits overrides the per-endpoint hourly request counts, keyed by endpoint name.
	Limits map[string]int `yaml:"limits"`
}

// AssetsConfig controls the remote asset readiness wait.
type AssetsConfig struct {
	// PollInterval is the delay between status checks, in milliseconds.
	PollInterval int `yaml:"poll_interval_ms" env:"ASSET_POLL_INTERVAL_MS"`
	// PollTimeout is the overall wait budget, in seconds.
	PollTimeout int `yaml:"poll_timeout" env:"ASSET_POLL_TIMEOUT"`
	// MaxDownloadBytes caps ad video downloads.
	MaxDownloadBytes int64 `yaml:"max_download_bytes" env:"MEDIA_MAX_BYTES"`
}

// PromptsConfig holds generated prompt constraints.
type PromptsConfig struct {
	MaxChars int `yaml:"max_chars" env:"PROMPT_MAX_CHARS"`
}

// MetricsConfig holds observability configuration for Prometheus metrics
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled" env:"METRICS_ENABLED"`
	Endpoint string `yaml:"endpoint" env:"METRICS_ENDPOINT"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Format string `yaml:"format" env:"LOG_FORMAT"`
	Level  string `yaml:"level" env:"LOG_LEVEL"`
}

// UsageConfig holds token usage tracking configuration
type UsageConfig struct {
	Enabled    bool `yaml:"enabled" env:"USAGE_ENABLED"`
	BufferSize int  `yaml:"buffer_size" env:"USAGE_BUFFER_SIZE"`
	// FlushInterval is in seconds.
	FlushInterval int `yaml:"flush_interval" env:"USAGE_FLUSH_INTERVAL"`
	// Prices overrides or extends the built-in per-model rates, keyed by model id.
	Prices map[string]ModelPrice `yaml:"prices"`
}

// ModelPrice is a model's rate in USD per million tokens. Unset fields leave that
// side of the estimate unpriced.
type ModelPrice struct {
	InputPerMtok       *float64 `yaml:"input_per_mtok"`
	OutputPerMtok      *float64 `yaml:"output_per_mtok"`
	CachedInputPerMtok *float64 `yaml:"cached_input_per_mtok"`
}

// HTTPConfig holds outbound HTTP client timeouts, in seconds.
type HTTPConfig struct {
	Timeout               int `yaml:"timeout" env:"HTTP_TIMEOUT"`
	ResponseHeaderTimeout int `yaml:"response_header_timeout" env:"HTTP_RESPONSE_HEADER_TIMEOUT"`
}

// IsDevelopment reports whether error envelopes may carry debug detail.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Server.Env, "development")
}

// BodySizeLimitBytes returns the parsed body size limit, or 0 when unset.
func (c *Config) BodySizeLimitBytes() int64 {
	n, err := parseBodySizeLimit(c.Server.BodySizeLimit)
	if err != nil {
		return 0
	}
	return n
}

// buildDefaultConfig returns the configuration used before any source is applied.
func buildDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8080",
			Env:           "production",
			BodySizeLimit: "25M",
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash",
		},
		RateLimit: RateLimitConfig{
			Enabled:   true,
			KeyPrefix: "ratelimit:",
		},
		Assets: AssetsConfig{
			PollInterval:     2000,
			PollTimeout:      60,
			MaxDownloadBytes: 100 << 20,
		},
		Prompts: PromptsConfig{
			MaxChars: 999,
		},
		Metrics: MetricsConfig{
			Endpoint: "/metrics",
		},
		Logging: LogConfig{
			Format: "auto",
			Level:  "info",
		},
		Usage: UsageConfig{
			Enabled:       true,
			BufferSize:    1000,
			FlushInterval: 5,
		},
		HTTP: HTTPConfig{
			Timeout:               300,
			ResponseHeaderTimeout: 300,
		},
	}
}

// Load reads configuration from the default locations. CONFIG_PATH names the YAML file;
// otherwise config/config.yaml and config.yaml are tried. A missing file is not an error.
func Load() (*Config, error) {
	// Load .env first so YAML placeholders can see its values. Existing env vars win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		for _, candidate := range []string{"config/config.yaml", "config.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	return LoadFrom(path)
}

// LoadFrom builds the configuration from defaults, the YAML file at path (skipped when
// path is empty) and the environment.
func LoadFrom(path string) (*Config, error) {
	cfg := buildDefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(expandString(string(raw))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail at first use.
func (c *Config) Validate() error {
	if err := ValidateBodySizeLimit(c.Server.BodySizeLimit); err != nil {
		return err
	}
	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative, got %d", c.Server.RequestTimeout)
	}
	if c.Assets.PollInterval <= 0 || c.Assets.PollTimeout <= 0 {
		return errors.New("asset poll interval and timeout must be positive")
	}
	if c.Prompts.MaxChars <= 0 {
		return fmt.Errorf("PROMPT_MAX_CHARS must be positive, got %d", c.Prompts.MaxChars)
	}
	for endpoint, limit := range c.RateLimit.Limits {
		if limit < 0 {
			return fmt.Errorf("rate limit for %s must not be negative, got %d", endpoint, limit)
		}
	}
	for model, price := range c.Usage.Prices {
		for _, rate := range []*float64{price.InputPerMtok, price.OutputPerMtok, price.CachedInputPerMtok} {
			if rate != nil && *rate < 0 {
				return fmt.Errorf("price for %s must not be negative, got %g", model, *rate)
			}
		}
	}
	return nil
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default}. A variable that is unset or empty
// takes its default; without a default the placeholder is left as is.
func expandString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		m := placeholder.FindStringSubmatch(match)
		if v := os.Getenv(m[1]); v != "" {
			return v
		}
		if m[2] != "" {
			return m[3]
		}
		return match
	})
}

// applyEnvOverrides sets every field tagged `env` whose variable is present.
func applyEnvOverrides(cfg *Config) error {
	return overrideStruct(reflect.ValueOf(cfg).Elem())
}

func overrideStruct(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if field.Kind() == reflect.Struct {
			if err := overrideStruct(field); err != nil {
				return err
			}
			continue
		}
		name := t.Field(i).Tag.Get("env")
		if name == "" {
			continue
		}
		raw, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		raw = strings.TrimSpace(raw)
		switch field.Kind() {
		case reflect.String:
			field.SetString(raw)
		case reflect.Bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", name, err)
			}
			field.SetBool(b)
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", name, err)
			}
			field.SetInt(n)
		}
	}
	return nil
}

// ValidateBodySizeLimit checks a size such as "1048576", "100K", "100KB" or "10M".
// Empty is valid and means the default. Accepted range is 1KB to 100MB.
func ValidateBodySizeLimit(s string) error {
	_, err := parseBodySizeLimit(s)
	return err
}

var bodySizePattern = regexp.MustCompile(`^(\d+)([KkMm][Bb]?)?$`)

func parseBodySizeLimit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	m := bodySizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid BODY_SIZE_LIMIT %q: expected a number with optional K or M suffix", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid BODY_SIZE_LIMIT %q: %w", s, err)
	}
	switch strings.ToUpper(m[2]) {
	case "K", "KB":
		n <<= 10
	case "M", "MB":
		n <<= 20
	}
	if n < minBodySizeLimit || n > maxBodySizeLimit {
		return 0, fmt.Errorf("BODY_SIZE_LIMIT %q out of range: must be between 1KB and 100MB", s)
	}
	return n, nil
}
