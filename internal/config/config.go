package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore, e.g. PROPERTYCHAT_CHAT__MAX_STEPS.
const EnvPrefix = "PROPERTYCHAT_"

// Strategy selects how the assistant grounds its answers.
type Strategy string

const (
	StrategyTools     Strategy = "tools"
	StrategyRetrieval Strategy = "retrieval"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Model     ModelConfig     `koanf:"model"`
	Chat      ChatConfig      `koanf:"chat"`
	Tools     ToolsConfig     `koanf:"tools"`
	Storage   StorageConfig   `koanf:"storage"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Auth      AuthConfig      `koanf:"auth"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type LogConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

// SlogLevel maps Level onto slog. Unknown values log at info.
func (c LogConfig) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

type ModelConfig struct {
	APIKey          string  `koanf:"api_key"`
	BaseURL         string  `koanf:"base_url"`
	Name            string  `koanf:"name"`
	MaxOutputTokens int     `koanf:"max_output_tokens"`
	Temperature     float64 `koanf:"temperature"`
}

type ChatConfig struct {
	Strategy               Strategy `koanf:"strategy"`
	MaxSteps               int      `koanf:"max_steps"`
	HistoryWindow          int      `koanf:"history_window"`
	CompactThresholdTokens int      `koanf:"compact_threshold_tokens"`
	CompactKeep            int      `koanf:"compact_keep"`
	TurnTokenBudget        int      `koanf:"turn_token_budget"` // 0 disables
	ToolConcurrency        int      `koanf:"tool_concurrency"`
}

type ToolsConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

type StorageConfig struct {
	Driver string `koanf:"driver"` // sqlite, postgres, mysql
	DSN    string `koanf:"dsn"`
}

type RetrievalConfig struct {
	Path           string  `koanf:"path"`
	Collection     string  `koanf:"collection"`
	TopK           int     `koanf:"top_k"`
	ScoreThreshold float32 `koanf:"score_threshold"`
	EmbeddingModel string  `koanf:"embedding_model"`
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

type AuthConfig struct {
	APIKeys []APIKeyConfig `koanf:"api_keys"`
}

type APIKeyConfig struct {
	KeyHash     string `koanf:"key_hash"`
	Description string `koanf:"description"`
}

var defaults = map[string]any{
	"server.port":                   8080,
	"server.request_timeout":        "30s",
	"log.level":                     "info",
	"model.name":                    "gpt-4o",
	"model.max_output_tokens":       1000,
	"chat.strategy":                 string(StrategyTools),
	"chat.max_steps":                6,
	"chat.history_window":           10,
	"chat.compact_threshold_tokens": 24000,
	"chat.compact_keep":             4,
	"chat.tool_concurrency":         4,
	"tools.timeout":                 "10s",
	"storage.driver":                "sqlite",
	"storage.dsn":                   "./data/prices.db",
	"retrieval.path":                "./data/vectors",
	"retrieval.collection":          "documents",
	"retrieval.top_k":               10,
	"retrieval.score_threshold":     0.6,
	"retrieval.embedding_model":     "text-embedding-3-small",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads config.yaml from the working directory, if present, then
// applies environment overrides.
func Load() (*Config, error) {
	return LoadFrom("config.yaml")
}

// LoadFrom reads the given yaml file, if present, then applies environment
// overrides and defaults.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Model.APIKey = substituteEnvVars(cfg.Model.APIKey)
	cfg.Storage.DSN = substituteEnvVars(cfg.Storage.DSN)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.Chat.Strategy {
	case StrategyTools, StrategyRetrieval:
	default:
		return fmt.Errorf("chat.strategy must be %q or %q, got %q", StrategyTools, StrategyRetrieval, c.Chat.Strategy)
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if c.Chat.MaxSteps < 1 {
		return fmt.Errorf("chat.max_steps must be at least 1")
	}
	if c.Chat.HistoryWindow < 1 {
		return fmt.Errorf("chat.history_window must be at least 1")
	}
	if c.Chat.CompactKeep < 1 || c.Chat.CompactKeep > c.Chat.HistoryWindow {
		return fmt.Errorf("chat.compact_keep must be between 1 and chat.history_window")
	}
	if c.Chat.ToolConcurrency < 1 {
		return fmt.Errorf("chat.tool_concurrency must be at least 1")
	}
	if c.Model.MaxOutputTokens < 1 {
		return fmt.Errorf("model.max_output_tokens must be positive")
	}
	if c.Retrieval.ScoreThreshold < 0 || c.Retrieval.ScoreThreshold > 1 {
		return fmt.Errorf("retrieval.score_threshold must be within [0,1]")
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
