// Package config provides configuration management for the gateway.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default bounds applied when the environment does not override them.
const (
	DefaultPort               = "8080"
	DefaultBodySizeLimit      = "1M"
	DefaultMaxMessages        = 50
	DefaultMaxMessageChars    = 32000
	DefaultMaxStopSequences   = 4
	DefaultMaxTokens          = 4096
	DefaultMaxEmbeddingInputs = 64
	DefaultTemperature        = 1.0
	DefaultTopP               = 1.0
	DefaultRequestTimeout     = 60 * time.Second
	DefaultConnectTimeout     = 10 * time.Second
	DefaultStreamMaxDuration  = 5 * time.Minute
	DefaultStreamIdleTimeout  = 30 * time.Second
	DefaultHealthTimeout      = 5 * time.Second
	DefaultRateLimitRequests  = 60
	DefaultRateLimitWindow    = 60 * time.Second
	DefaultUsageBufferSize    = 1024
)

// Config holds the resolved application configuration
type Config struct {
	Server    ServerConfig
	Upstream  UpstreamConfig
	Models    ModelsConfig
	Limits    LimitsConfig
	RateLimit RateLimitConfig
	Usage     UsageConfig
	Metrics   MetricsConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          string
	Environment   string // "development" or "production"
	BodySizeLimit string
}

// Development reports whether the gateway runs in development mode.
// In development, upstream failure detail is exposed to clients.
func (s ServerConfig) Development() bool {
	return s.Environment == "development"
}

// UpstreamConfig holds the upstream provider connection settings
type UpstreamConfig struct {
	BaseURL           string
	APIKey            string
	RequestTimeout    time.Duration
	ConnectTimeout    time.Duration
	StreamMaxDuration time.Duration
	StreamIdleTimeout time.Duration
	HealthTimeout     time.Duration
}

// ModelsConfig holds the capability whitelists, disjoint by construction
type ModelsConfig struct {
	Chat       []string
	Embeddings []string
}

// LimitsConfig bounds the shape of inbound requests
type LimitsConfig struct {
	MaxMessages        int
	MaxMessageChars    int
	MaxStopSequences   int
	MaxTokens          int
	MaxEmbeddingInputs int
	DefaultTemperature float64
	DefaultTopP        float64
}

// RateLimitConfig configures the per-caller fixed-window limiter
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// UsageConfig configures the async usage recorder
type UsageConfig struct {
	Enabled    bool
	BufferSize int
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled  bool
	Endpoint string
}

// Load reads configuration from the environment (and an optional .env file).
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // .env is optional

	viper.SetDefault("PORT", DefaultPort)
	viper.SetDefault("ENVIRONMENT", "production")
	viper.SetDefault("BODY_SIZE_LIMIT", DefaultBodySizeLimit)
	viper.SetDefault("UPSTREAM_REQUEST_TIMEOUT", DefaultRequestTimeout)
	viper.SetDefault("UPSTREAM_CONNECT_TIMEOUT", DefaultConnectTimeout)
	viper.SetDefault("UPSTREAM_STREAM_MAX_DURATION", DefaultStreamMaxDuration)
	viper.SetDefault("UPSTREAM_STREAM_IDLE_TIMEOUT", DefaultStreamIdleTimeout)
	viper.SetDefault("UPSTREAM_HEALTH_TIMEOUT", DefaultHealthTimeout)
	viper.SetDefault("MAX_MESSAGES", DefaultMaxMessages)
	viper.SetDefault("MAX_MESSAGE_CHARS", DefaultMaxMessageChars)
	viper.SetDefault("MAX_STOP_SEQUENCES", DefaultMaxStopSequences)
	viper.SetDefault("MAX_TOKENS", DefaultMaxTokens)
	viper.SetDefault("MAX_EMBEDDING_INPUTS", DefaultMaxEmbeddingInputs)
	viper.SetDefault("DEFAULT_TEMPERATURE", DefaultTemperature)
	viper.SetDefault("DEFAULT_TOP_P", DefaultTopP)
	viper.SetDefault("RATE_LIMIT_REQUESTS", DefaultRateLimitRequests)
	viper.SetDefault("RATE_LIMIT_WINDOW", DefaultRateLimitWindow)
	viper.SetDefault("USAGE_ENABLED", true)
	viper.SetDefault("USAGE_BUFFER_SIZE", DefaultUsageBufferSize)
	viper.SetDefault("METRICS_ENABLED", false)
	viper.SetDefault("METRICS_ENDPOINT", "/metrics")

	viper.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port:          viper.GetString("PORT"),
			Environment:   viper.GetString("ENVIRONMENT"),
			BodySizeLimit: viper.GetString("BODY_SIZE_LIMIT"),
		},
		Upstream: UpstreamConfig{
			BaseURL:           viper.GetString("UPSTREAM_BASE_URL"),
			APIKey:            viper.GetString("UPSTREAM_API_KEY"),
			RequestTimeout:    viper.GetDuration("UPSTREAM_REQUEST_TIMEOUT"),
			ConnectTimeout:    viper.GetDuration("UPSTREAM_CONNECT_TIMEOUT"),
			StreamMaxDuration: viper.GetDuration("UPSTREAM_STREAM_MAX_DURATION"),
			StreamIdleTimeout: viper.GetDuration("UPSTREAM_STREAM_IDLE_TIMEOUT"),
			HealthTimeout:     viper.GetDuration("UPSTREAM_HEALTH_TIMEOUT"),
		},
		Models: ModelsConfig{
			Chat:       splitList(viper.GetString("CHAT_MODELS")),
			Embeddings: splitList(viper.GetString("EMBEDDING_MODELS")),
		},
		Limits: LimitsConfig{
			MaxMessages:        viper.GetInt("MAX_MESSAGES"),
			MaxMessageChars:    viper.GetInt("MAX_MESSAGE_CHARS"),
			MaxStopSequences:   viper.GetInt("MAX_STOP_SEQUENCES"),
			MaxTokens:          viper.GetInt("MAX_TOKENS"),
			MaxEmbeddingInputs: viper.GetInt("MAX_EMBEDDING_INPUTS"),
			DefaultTemperature: viper.GetFloat64("DEFAULT_TEMPERATURE"),
			DefaultTopP:        viper.GetFloat64("DEFAULT_TOP_P"),
		},
		RateLimit: RateLimitConfig{
			Requests: viper.GetInt("RATE_LIMIT_REQUESTS"),
			Window:   viper.GetDuration("RATE_LIMIT_WINDOW"),
		},
		Usage: UsageConfig{
			Enabled:    viper.GetBool("USAGE_ENABLED"),
			BufferSize: viper.GetInt("USAGE_BUFFER_SIZE"),
		},
		Metrics: MetricsConfig{
			Enabled:  viper.GetBool("METRICS_ENABLED"),
			Endpoint: viper.GetString("METRICS_ENDPOINT"),
		},
	}

	return cfg, nil
}

// Validate checks every startup constraint and returns the full list of
// violations. A non-empty result means the process must refuse to serve.
func (c *Config) Validate() []string {
	var violations []string

	if port := parsePort(c.Server.Port); port < 1000 || port > 65535 {
		violations = append(violations, fmt.Sprintf("PORT must be an integer in [1000,65535], got %q", c.Server.Port))
	}
	if c.Server.Environment != "development" && c.Server.Environment != "production" {
		violations = append(violations, fmt.Sprintf("ENVIRONMENT must be development or production, got %q", c.Server.Environment))
	}

	if c.Upstream.APIKey == "" {
		violations = append(violations, "UPSTREAM_API_KEY is required")
	}
	if u, err := url.Parse(c.Upstream.BaseURL); err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		violations = append(violations, fmt.Sprintf("UPSTREAM_BASE_URL must be an absolute http(s) URL, got %q", c.Upstream.BaseURL))
	}
	for name, d := range map[string]time.Duration{
		"UPSTREAM_REQUEST_TIMEOUT":     c.Upstream.RequestTimeout,
		"UPSTREAM_CONNECT_TIMEOUT":     c.Upstream.ConnectTimeout,
		"UPSTREAM_STREAM_MAX_DURATION": c.Upstream.StreamMaxDuration,
		"UPSTREAM_STREAM_IDLE_TIMEOUT": c.Upstream.StreamIdleTimeout,
		"UPSTREAM_HEALTH_TIMEOUT":      c.Upstream.HealthTimeout,
	} {
		if d <= 0 {
			violations = append(violations, name+" must be positive")
		}
	}

	if len(c.Models.Chat) == 0 {
		violations = append(violations, "CHAT_MODELS must list at least one model")
	}
	if overlap := intersect(c.Models.Chat, c.Models.Embeddings); len(overlap) > 0 {
		violations = append(violations, fmt.Sprintf("CHAT_MODELS and EMBEDDING_MODELS must be disjoint, both contain: %s", strings.Join(overlap, ", ")))
	}

	for name, v := range map[string]int{
		"MAX_MESSAGES":         c.Limits.MaxMessages,
		"MAX_MESSAGE_CHARS":    c.Limits.MaxMessageChars,
		"MAX_STOP_SEQUENCES":   c.Limits.MaxStopSequences,
		"MAX_TOKENS":           c.Limits.MaxTokens,
		"MAX_EMBEDDING_INPUTS": c.Limits.MaxEmbeddingInputs,
		"RATE_LIMIT_REQUESTS":  c.RateLimit.Requests,
		"USAGE_BUFFER_SIZE":    c.Usage.BufferSize,
	} {
		if v <= 0 {
			violations = append(violations, name+" must be positive")
		}
	}
	if c.Limits.DefaultTemperature < 0 || c.Limits.DefaultTemperature > 2 {
		violations = append(violations, fmt.Sprintf("DEFAULT_TEMPERATURE must be in [0,2], got %g", c.Limits.DefaultTemperature))
	}
	if c.Limits.DefaultTopP < 0 || c.Limits.DefaultTopP > 1 {
		violations = append(violations, fmt.Sprintf("DEFAULT_TOP_P must be in [0,1], got %g", c.Limits.DefaultTopP))
	}
	if c.RateLimit.Window <= 0 {
		violations = append(violations, "RATE_LIMIT_WINDOW must be positive")
	}

	return violations
}

func parsePort(s string) int {
	var port int
	if _, err := fmt.Sscanf(s, "%d", &port); err != nil {
		return 0
	}
	return port
}

// splitList parses a comma-separated model list, dropping empty entries.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	var out []string
	for _, v := range b {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}
