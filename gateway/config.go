package gateway

import "time"

const (
	defaultMaxTokens      = 1024
	defaultTimeoutSeconds = 60
)

// Config holds the backend connection parameters.
type Config struct {
	// BaseURL of the OpenAI-compatible API, e.g.
	// http://vllm-llama3-service:8000/v1.
	BaseURL string `json:"base_url,omitempty"`
	// APIKey sent as the bearer token. vLLM accepts any value; the
	// conventional placeholder is "EMPTY".
	APIKey string `json:"api_key,omitempty"`
	// Model is the backend model identifier.
	Model string `json:"model,omitempty"`
	// MaxTokens bounds each completion. Zero means the default.
	MaxTokens int `json:"max_tokens,omitempty"`
	// TimeoutSeconds bounds each single-shot round-trip. Streaming calls are
	// bounded by the caller's context instead. Zero means the default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// DefaultConfig returns the default gateway configuration.
func DefaultConfig() Config {
	return Config{
		APIKey:         "EMPTY",
		MaxTokens:      defaultMaxTokens,
		TimeoutSeconds: defaultTimeoutSeconds,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
	if source.APIKey != "" {
		c.APIKey = source.APIKey
	}
	if source.Model != "" {
		c.Model = source.Model
	}
	if source.MaxTokens > 0 {
		c.MaxTokens = source.MaxTokens
	}
	if source.TimeoutSeconds > 0 {
		c.TimeoutSeconds = source.TimeoutSeconds
	}
}

func (c *Config) requestTimeout() time.Duration {
	secs := c.TimeoutSeconds
	if secs <= 0 {
		secs = defaultTimeoutSeconds
	}
	return time.Duration(secs) * time.Second
}
