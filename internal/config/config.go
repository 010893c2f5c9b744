// Package config loads and validates application configuration from
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Database settings. Empty DatabaseURL disables the lexical index, the
	// pgvector fallback, and session history.
	DatabaseURL string

	// Qdrant settings. Empty QdrantURL disables the dedicated vector index.
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	// Embedding provider settings.
	EmbeddingProvider   string // "auto", "openai", "ollama", or "hash"
	OpenAIAPIKey        string
	OpenAIBaseURL       string // Empty targets the hosted API.
	EmbeddingModel      string
	EmbeddingDimensions int // Must match the chosen model's output.
	OllamaURL           string
	OllamaModel         string

	// Completion settings.
	CompletionModel string

	// Web search gateway. Empty endpoint disables the websearch agent's
	// backend; the agent then reports empty results.
	WebSearchEndpoint string
	WebSearchAPIKey   string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Pipeline settings.
	AgentTimeout      time.Duration
	PipelineTimeout   time.Duration
	MaxParallelAgents int

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible
// defaults. Malformed values are collected and reported together rather
// than one at a time.
func Load() (Config, error) {
	var errs []error
	collectInt := func(key string, def int) int {
		v, err := envInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	collectDuration := func(key string, def time.Duration) time.Duration {
		v, err := envDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	collectBool := func(key string, def bool) bool {
		v, err := envBool(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := Config{
		DatabaseURL:         envStr("DATABASE_URL", ""),
		QdrantURL:           envStr("FINSIGHT_QDRANT_URL", ""),
		QdrantAPIKey:        envStr("FINSIGHT_QDRANT_API_KEY", ""),
		QdrantCollection:    envStr("FINSIGHT_QDRANT_COLLECTION", "evidence"),
		EmbeddingProvider:   envStr("FINSIGHT_EMBEDDING_PROVIDER", "auto"),
		OpenAIAPIKey:        envStr("OPENAI_API_KEY", ""),
		OpenAIBaseURL:       envStr("OPENAI_BASE_URL", ""),
		EmbeddingModel:      envStr("FINSIGHT_EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: collectInt("FINSIGHT_EMBEDDING_DIMENSIONS", 1536),
		OllamaURL:           envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:         envStr("OLLAMA_MODEL", "mxbai-embed-large"),
		CompletionModel:     envStr("FINSIGHT_COMPLETION_MODEL", "gpt-4o-mini"),
		WebSearchEndpoint:   envStr("FINSIGHT_WEBSEARCH_ENDPOINT", ""),
		WebSearchAPIKey:     envStr("FINSIGHT_WEBSEARCH_API_KEY", ""),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        collectBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "finsight"),
		AgentTimeout:        collectDuration("FINSIGHT_AGENT_TIMEOUT", 10*time.Second),
		PipelineTimeout:     collectDuration("FINSIGHT_PIPELINE_TIMEOUT", 45*time.Second),
		MaxParallelAgents:   collectInt("FINSIGHT_MAX_PARALLEL_AGENTS", 4),
		LogLevel:            envStr("FINSIGHT_LOG_LEVEL", "info"),
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("config: FINSIGHT_EMBEDDING_DIMENSIONS must be positive")
	}
	if c.AgentTimeout <= 0 {
		return fmt.Errorf("config: FINSIGHT_AGENT_TIMEOUT must be positive")
	}
	if c.PipelineTimeout < c.AgentTimeout {
		return fmt.Errorf("config: FINSIGHT_PIPELINE_TIMEOUT must not be shorter than FINSIGHT_AGENT_TIMEOUT")
	}
	if c.MaxParallelAgents <= 0 {
		return fmt.Errorf("config: FINSIGHT_MAX_PARALLEL_AGENTS must be positive")
	}
	switch c.EmbeddingProvider {
	case "auto", "openai", "ollama", "hash":
	default:
		return fmt.Errorf("config: unknown FINSIGHT_EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
