package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8080",
			Environment:   "production",
			BodySizeLimit: DefaultBodySizeLimit,
		},
		Upstream: UpstreamConfig{
			BaseURL:           "https://api.example.com/v1",
			APIKey:            "sk-test",
			RequestTimeout:    DefaultRequestTimeout,
			ConnectTimeout:    DefaultConnectTimeout,
			StreamMaxDuration: DefaultStreamMaxDuration,
			StreamIdleTimeout: DefaultStreamIdleTimeout,
			HealthTimeout:     DefaultHealthTimeout,
		},
		Models: ModelsConfig{
			Chat:       []string{"chat-1"},
			Embeddings: []string{"embed-1"},
		},
		Limits: LimitsConfig{
			MaxMessages:        DefaultMaxMessages,
			MaxMessageChars:    DefaultMaxMessageChars,
			MaxStopSequences:   DefaultMaxStopSequences,
			MaxTokens:          DefaultMaxTokens,
			MaxEmbeddingInputs: DefaultMaxEmbeddingInputs,
			DefaultTemperature: DefaultTemperature,
			DefaultTopP:        DefaultTopP,
		},
		RateLimit: RateLimitConfig{
			Requests: DefaultRateLimitRequests,
			Window:   DefaultRateLimitWindow,
		},
		Usage: UsageConfig{
			Enabled:    true,
			BufferSize: DefaultUsageBufferSize,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	assert.Empty(t, validConfig().Validate())
}

func TestValidateCollectsAllViolations(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = "99"
	cfg.Server.Environment = "staging"
	cfg.Upstream.APIKey = ""
	cfg.Upstream.BaseURL = "not a url"
	cfg.Models.Chat = nil

	violations := cfg.Validate()
	require.GreaterOrEqual(t, len(violations), 5)

	joined := strings.Join(violations, "\n")
	assert.Contains(t, joined, "PORT")
	assert.Contains(t, joined, "ENVIRONMENT")
	assert.Contains(t, joined, "UPSTREAM_API_KEY")
	assert.Contains(t, joined, "UPSTREAM_BASE_URL")
	assert.Contains(t, joined, "CHAT_MODELS")
}

func TestValidatePortBounds(t *testing.T) {
	for _, port := range []string{"0", "999", "65536", "abc", ""} {
		cfg := validConfig()
		cfg.Server.Port = port
		assert.NotEmpty(t, cfg.Validate(), "port %q", port)
	}
	for _, port := range []string{"1000", "8080", "65535"} {
		cfg := validConfig()
		cfg.Server.Port = port
		assert.Empty(t, cfg.Validate(), "port %q", port)
	}
}

func TestValidateBaseURL(t *testing.T) {
	for _, u := range []string{"", "api.example.com", "ftp://api.example.com", "/v1"} {
		cfg := validConfig()
		cfg.Upstream.BaseURL = u
		assert.NotEmpty(t, cfg.Validate(), "url %q", u)
	}

	cfg := validConfig()
	cfg.Upstream.BaseURL = "http://localhost:9000"
	assert.Empty(t, cfg.Validate())
}

func TestValidateRejectsOverlappingWhitelists(t *testing.T) {
	cfg := validConfig()
	cfg.Models.Embeddings = []string{"chat-1", "embed-1"}

	violations := cfg.Validate()
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "disjoint")
	assert.Contains(t, violations[0], "chat-1")
}

func TestValidateTimeoutsAndLimits(t *testing.T) {
	cfg := validConfig()
	cfg.Upstream.RequestTimeout = 0
	cfg.Limits.MaxMessages = -1
	cfg.RateLimit.Window = 0

	violations := cfg.Validate()
	joined := strings.Join(violations, "\n")
	assert.Contains(t, joined, "UPSTREAM_REQUEST_TIMEOUT")
	assert.Contains(t, joined, "MAX_MESSAGES")
	assert.Contains(t, joined, "RATE_LIMIT_WINDOW")
}

func TestValidateDefaultParameterRanges(t *testing.T) {
	cfg := validConfig()
	cfg.Limits.DefaultTemperature = 2.5
	cfg.Limits.DefaultTopP = -0.1

	violations := cfg.Validate()
	require.Len(t, violations, 2)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("UPSTREAM_API_KEY", "sk-test")
	t.Setenv("UPSTREAM_BASE_URL", "https://api.example.com/v1")
	t.Setenv("CHAT_MODELS", "chat-1, chat-2")
	t.Setenv("EMBEDDING_MODELS", "embed-1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, "production", cfg.Server.Environment)
	assert.False(t, cfg.Server.Development())
	assert.Equal(t, []string{"chat-1", "chat-2"}, cfg.Models.Chat)
	assert.Equal(t, []string{"embed-1"}, cfg.Models.Embeddings)
	assert.Equal(t, DefaultRequestTimeout, cfg.Upstream.RequestTimeout)
	assert.Equal(t, DefaultStreamIdleTimeout, cfg.Upstream.StreamIdleTimeout)
	assert.Equal(t, DefaultRateLimitRequests, cfg.RateLimit.Requests)
	assert.True(t, cfg.Usage.Enabled)
	assert.Empty(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("UPSTREAM_API_KEY", "sk-test")
	t.Setenv("UPSTREAM_BASE_URL", "https://api.example.com/v1")
	t.Setenv("CHAT_MODELS", "chat-1")
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("PORT", "9090")
	t.Setenv("UPSTREAM_REQUEST_TIMEOUT", "30s")
	t.Setenv("RATE_LIMIT_REQUESTS", "5")
	t.Setenv("METRICS_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.Server.Development())
	assert.Equal(t, 30*time.Second, cfg.Upstream.RequestTimeout)
	assert.Equal(t, 5, cfg.RateLimit.Requests)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a"}, splitList("a"))
	assert.Equal(t, []string{"a", "b"}, splitList(" a , b ,, "))
}
