package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
		if err != nil {
			t.Fatalf("LoadFrom() error = %v", err)
		}

		if cfg.Server.Port != 8080 {
			t.Errorf("port = %v, want 8080", cfg.Server.Port)
		}
		if cfg.Server.RequestTimeout != 30*time.Second {
			t.Errorf("request timeout = %v, want 30s", cfg.Server.RequestTimeout)
		}
		if cfg.Chat.MaxSteps != 6 {
			t.Errorf("max steps = %d, want 6", cfg.Chat.MaxSteps)
		}
		if cfg.Chat.HistoryWindow != 10 {
			t.Errorf("history window = %d, want 10", cfg.Chat.HistoryWindow)
		}
		if cfg.Chat.Strategy != StrategyTools {
			t.Errorf("strategy = %q, want tools", cfg.Chat.Strategy)
		}
		if cfg.Model.MaxOutputTokens != 1000 {
			t.Errorf("max output tokens = %d, want 1000", cfg.Model.MaxOutputTokens)
		}
		if cfg.Retrieval.ScoreThreshold != 0.6 {
			t.Errorf("score threshold = %v, want 0.6", cfg.Retrieval.ScoreThreshold)
		}
		if cfg.Tools.Timeout != 10*time.Second {
			t.Errorf("tools timeout = %v, want 10s", cfg.Tools.Timeout)
		}
	})

	t.Run("env var override", func(t *testing.T) {
		t.Setenv("PROPERTYCHAT_SERVER__PORT", "9000")
		t.Setenv("PROPERTYCHAT_CHAT__MAX_STEPS", "3")

		cfg, err := LoadFrom("")
		if err != nil {
			t.Fatalf("LoadFrom() error = %v", err)
		}
		if cfg.Server.Port != 9000 {
			t.Errorf("port = %v, want 9000", cfg.Server.Port)
		}
		if cfg.Chat.MaxSteps != 3 {
			t.Errorf("max steps = %d, want 3", cfg.Chat.MaxSteps)
		}
	})

	t.Run("yaml file with secret substitution", func(t *testing.T) {
		t.Setenv("TEST_OPENAI_KEY", "sk-test")
		path := filepath.Join(t.TempDir(), "config.yaml")
		body := `
model:
  api_key: "${TEST_OPENAI_KEY}"
  name: gpt-4o-mini
chat:
  strategy: retrieval
  history_window: 20
auth:
  api_keys:
    - key_hash: "abc"
      description: "ci"
`
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadFrom(path)
		if err != nil {
			t.Fatalf("LoadFrom() error = %v", err)
		}
		if cfg.Model.APIKey != "sk-test" {
			t.Errorf("api key = %q, want substituted value", cfg.Model.APIKey)
		}
		if cfg.Model.Name != "gpt-4o-mini" {
			t.Errorf("model = %q", cfg.Model.Name)
		}
		if cfg.Chat.Strategy != StrategyRetrieval {
			t.Errorf("strategy = %q", cfg.Chat.Strategy)
		}
		if cfg.Chat.HistoryWindow != 20 {
			t.Errorf("history window = %d", cfg.Chat.HistoryWindow)
		}
		if len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0].KeyHash != "abc" {
			t.Errorf("api keys = %+v", cfg.Auth.APIKeys)
		}
	})

	t.Run("invalid strategy rejected", func(t *testing.T) {
		t.Setenv("PROPERTYCHAT_CHAT__STRATEGY", "both")
		if _, err := LoadFrom(""); err == nil {
			t.Fatal("expected validation error")
		}
	})
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Model:   ModelConfig{MaxOutputTokens: 1000},
			Chat:    ChatConfig{Strategy: StrategyTools, MaxSteps: 6, HistoryWindow: 10, CompactKeep: 4, ToolConcurrency: 4},
			Storage: StorageConfig{Driver: "sqlite"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"zero steps", func(c *Config) { c.Chat.MaxSteps = 0 }, true},
		{"keep exceeds window", func(c *Config) { c.Chat.CompactKeep = 11 }, true},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "oracle" }, true},
		{"postgres driver", func(c *Config) { c.Storage.Driver = "postgres" }, false},
		{"threshold out of range", func(c *Config) { c.Retrieval.ScoreThreshold = 1.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple substitution", "${TEST_VAR}", "test-value"},
		{"substitution in string", "prefix-${TEST_VAR}-suffix", "prefix-test-value-suffix"},
		{"no substitution", "plain-string", "plain-string"},
		{"undefined var", "${UNDEFINED_VAR}", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := substituteEnvVars(tt.input); got != tt.want {
				t.Errorf("substituteEnvVars() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogConfig_SlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := (LogConfig{Level: tt.level}).SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
