package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		HTTP:      HTTPConfig{Port: 8080, WriteTimeoutSec: 180},
		Database:  DatabaseConfig{DSN: "postgres://localhost/finrag", MaxConns: 10, MinConns: 2},
		Embedding: EmbeddingConfig{Model: "text-embedding-3-small", Dimensions: 1536},
		Chat:      ChatConfig{Model: "gpt-4o-mini", RequestTimeoutSec: 150},
	}
}

func TestValidate_InvalidBudgetAction(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Budget = BudgetConfig{DailyTokenLimit: 1000000, Action: "invalid_action"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid budget action")
	}

	expected := `embedding.budget.action must be "warn" or "reject", got "invalid_action"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_ValidBudgetActions(t *testing.T) {
	validActions := []string{"", "warn", "reject"}

	for _, action := range validActions {
		t.Run("action="+action, func(t *testing.T) {
			cfg := validConfig()
			cfg.Embedding.Budget.Action = action

			if err := cfg.Validate(); err != nil {
				t.Fatalf("unexpected error for valid action %q: %v", action, err)
			}
		})
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"invalid port", func(c *Config) { c.HTTP.Port = 0 }},
		{"port too large", func(c *Config) { c.HTTP.Port = 70000 }},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }},
		{"min over max conns", func(c *Config) { c.Database.MinConns = 20 }},
		{"missing embedding model", func(c *Config) { c.Embedding.Model = "" }},
		{"zero dimensions", func(c *Config) { c.Embedding.Dimensions = 0 }},
		{"missing chat model", func(c *Config) { c.Chat.Model = "" }},
		{"negative rate", func(c *Config) { c.Pipeline.RequestsPerSecond = -1 }},
		{"request timeout equals write timeout", func(c *Config) { c.Chat.RequestTimeoutSec = 180 }},
		{"request timeout over write timeout", func(c *Config) { c.HTTP.WriteTimeoutSec = 60 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 180 {
		t.Errorf("expected WriteTimeoutSec=180, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Redis.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Redis.ReadinessTimeout)
	}
	if cfg.Embedding.Provider != "openai" {
		t.Errorf("expected Provider=openai, got %q", cfg.Embedding.Provider)
	}
	if cfg.Chat.MaxIterations != 5 {
		t.Errorf("expected MaxIterations=5, got %d", cfg.Chat.MaxIterations)
	}
	if cfg.Chat.DecisionTimeout() != 30*time.Second {
		t.Errorf("expected DecisionTimeout=30s, got %v", cfg.Chat.DecisionTimeout())
	}
	if cfg.Chat.ToolTimeout() != 25*time.Second {
		t.Errorf("expected ToolTimeout=25s, got %v", cfg.Chat.ToolTimeout())
	}
	if cfg.Chat.RequestTimeout() != 150*time.Second {
		t.Errorf("expected RequestTimeout=150s, got %v", cfg.Chat.RequestTimeout())
	}
	if cfg.Chat.RequestTimeoutSec >= cfg.HTTP.WriteTimeoutSec {
		t.Errorf("default request timeout %ds must stay below write timeout %ds",
			cfg.Chat.RequestTimeoutSec, cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Pipeline.PageSize != 200 {
		t.Errorf("expected PageSize=200, got %d", cfg.Pipeline.PageSize)
	}
	if cfg.Pipeline.SmallConcurrency != 8 || cfg.Pipeline.LargeConcurrency != 20 {
		t.Errorf("expected concurrency 8/20, got %d/%d", cfg.Pipeline.SmallConcurrency, cfg.Pipeline.LargeConcurrency)
	}
	if cfg.Pipeline.InitialBackoff() != time.Second {
		t.Errorf("expected InitialBackoff=1s, got %v", cfg.Pipeline.InitialBackoff())
	}
	if cfg.Session.TTL() != 24*time.Hour {
		t.Errorf("expected session TTL=24h, got %v", cfg.Session.TTL())
	}
	if cfg.Session.WindowTurns != 6 {
		t.Errorf("expected WindowTurns=6, got %d", cfg.Session.WindowTurns)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:     HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Chat:     ChatConfig{APIKey: "chat-key", MaxIterations: 3},
		Pipeline: PipelineConfig{PageSize: 50},
	}
	cfg.Embedding.APIKey = "embed-key"
	cfg.ApplyDefaults()

	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Chat.APIKey != "chat-key" {
		t.Errorf("expected chat key kept, got %q", cfg.Chat.APIKey)
	}
	if cfg.Chat.MaxIterations != 3 {
		t.Errorf("expected MaxIterations=3, got %d", cfg.Chat.MaxIterations)
	}
	if cfg.Pipeline.PageSize != 50 {
		t.Errorf("expected PageSize=50, got %d", cfg.Pipeline.PageSize)
	}
}

func TestApplyDefaults_ChatInheritsProvider(t *testing.T) {
	cfg := Config{Embedding: EmbeddingConfig{APIKey: "k", BaseURL: "https://llm.example.com/v1"}}
	cfg.ApplyDefaults()

	if cfg.Chat.APIKey != "k" || cfg.Chat.BaseURL != "https://llm.example.com/v1" {
		t.Errorf("chat did not inherit provider settings: %+v", cfg.Chat)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("FINRAG_TEST_DSN", "postgres://db/finrag")
	t.Setenv("FINRAG_TEST_REDIS", "")

	cfg, err := Parse([]byte(`
http:
  port: 9090
database:
  dsn: ${FINRAG_TEST_DSN}
redis:
  addrs: ["${FINRAG_TEST_REDIS:-localhost:6379}"]
embedding:
  model: text-embedding-3-small
  dimensions: 1536
  budget:
    daily_token_limit: 1000
chat:
  model: gpt-4o-mini
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.DSN != "postgres://db/finrag" {
		t.Errorf("expected DSN from env, got %q", cfg.Database.DSN)
	}
	if len(cfg.Redis.Addrs) != 1 || cfg.Redis.Addrs[0] != "localhost:6379" {
		t.Errorf("expected default redis addr, got %v", cfg.Redis.Addrs)
	}
	if !cfg.Redis.Enabled() {
		t.Error("expected redis enabled")
	}
	if !cfg.Embedding.Budget.Enabled() {
		t.Error("expected budget enabled")
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("http: [")); err == nil {
		t.Fatal("expected yaml error")
	}
	if _, err := Parse([]byte("http:\n  port: 8080\n")); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	body := "http:\n  port: 8080\ndatabase:\n  dsn: postgres://x\nembedding:\n  model: m\n  dimensions: 8\nchat:\n  model: c\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Embedding.Dimensions != 8 {
		t.Errorf("expected Dimensions=8, got %d", cfg.Embedding.Dimensions)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if got := GetEnv(); got != "local" {
		t.Errorf("expected local, got %q", got)
	}
	t.Setenv("ENV", "prod")
	if got := GetEnv(); got != "prod" {
		t.Errorf("expected prod, got %q", got)
	}
}
