package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/engram-labs/engram/internal/models"
)

// Config is loaded once at startup. Every field has an env var override;
// an optional YAML file named by ENGRAM_CONFIG supplies the base values,
// with env vars winning over the file and the file winning over defaults.
type Config struct {
	Port      int    `yaml:"port"`
	DBPath    string `yaml:"db_path"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// APIKey enables bearer auth when non-empty. Never read from the
	// YAML file, env only.
	APIKey string `yaml:"-"`

	// Embedding provider
	Provider       string `yaml:"provider"`
	OllamaBaseURL  string `yaml:"ollama_base_url"`
	EmbeddingModel string `yaml:"embedding_model"`
	EmbeddingDim   int    `yaml:"embedding_dim"`

	// Search tuning
	DefaultThreshold   float64 `yaml:"default_threshold"`
	SearchBudgetMillis int     `yaml:"search_budget_ms"`
	DiversityThreshold float64 `yaml:"diversity_threshold"`
	NearDupFloor       float64 `yaml:"near_dup_floor"`

	// Clustering
	ClusterDebounceMillis int `yaml:"cluster_debounce_ms"`

	// Safety
	MaxContextTokens int `yaml:"max_context_tokens"`
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:                  8741,
		DBPath:                "engram.db",
		LogLevel:              "info",
		LogFormat:             "json",
		Provider:              "ollama",
		OllamaBaseURL:         "http://localhost:11434",
		EmbeddingModel:        "nomic-embed-text",
		EmbeddingDim:          768,
		DefaultThreshold:      models.DefaultThreshold,
		SearchBudgetMillis:    50,
		DiversityThreshold:    0.92,
		NearDupFloor:          0.85,
		ClusterDebounceMillis: 2000,
		MaxContextTokens:      8000,
	}

	if path := os.Getenv("ENGRAM_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = envInt("PORT", cfg.Port)
	cfg.DBPath = envStr("ENGRAM_DB_PATH", cfg.DBPath)
	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envStr("LOG_FORMAT", cfg.LogFormat)
	cfg.APIKey = envStr("ENGRAM_API_KEY", cfg.APIKey)
	cfg.Provider = envStr("EMBEDDING_PROVIDER", cfg.Provider)
	cfg.OllamaBaseURL = envStr("OLLAMA_BASE_URL", cfg.OllamaBaseURL)
	cfg.EmbeddingModel = envStr("EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.EmbeddingDim = envInt("EMBEDDING_DIM", cfg.EmbeddingDim)
	cfg.DefaultThreshold = envFloat("DEFAULT_THRESHOLD", cfg.DefaultThreshold)
	cfg.SearchBudgetMillis = envInt("SEARCH_BUDGET_MS", cfg.SearchBudgetMillis)
	cfg.DiversityThreshold = envFloat("DIVERSITY_THRESHOLD", cfg.DiversityThreshold)
	cfg.NearDupFloor = envFloat("NEAR_DUP_FLOOR", cfg.NearDupFloor)
	cfg.ClusterDebounceMillis = envInt("CLUSTER_DEBOUNCE_MS", cfg.ClusterDebounceMillis)
	cfg.MaxContextTokens = envInt("MAX_CONTEXT_TOKENS", cfg.MaxContextTokens)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrConfiguration, err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading config file %s: %w", models.ErrConfiguration, path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: parsing config file %s: %w", models.ErrConfiguration, path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.Provider != "ollama" && c.Provider != "mock" {
		return fmt.Errorf("unknown embedding provider %q", c.Provider)
	}
	if c.Provider == "ollama" && c.OllamaBaseURL == "" {
		return fmt.Errorf("ollama_base_url must not be empty")
	}
	if c.EmbeddingDim < 1 {
		return fmt.Errorf("embedding_dim must be positive, got %d", c.EmbeddingDim)
	}
	if c.DefaultThreshold < -1 || c.DefaultThreshold > 1 {
		return fmt.Errorf("default_threshold must be within [-1, 1], got %f", c.DefaultThreshold)
	}
	if c.DiversityThreshold <= 0 || c.DiversityThreshold > 1 {
		return fmt.Errorf("diversity_threshold must be within (0, 1], got %f", c.DiversityThreshold)
	}
	if c.NearDupFloor <= 0 || c.NearDupFloor > 1 {
		return fmt.Errorf("near_dup_floor must be within (0, 1], got %f", c.NearDupFloor)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
