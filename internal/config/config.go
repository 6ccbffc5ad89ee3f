// Package config loads the YAML configuration for the finrag server and CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the finrag configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chat      ChatConfig      `yaml:"chat"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Session   SessionConfig   `yaml:"session"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"` // must exceed chat.request_timeout_sec
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	DSN                string `yaml:"dsn"`
	MaxConns           int    `yaml:"max_conns"`
	MinConns           int    `yaml:"min_conns"`
	MaxConnLifetimeSec int    `yaml:"max_conn_lifetime_sec"`
	MaxConnIdleSec     int    `yaml:"max_conn_idle_sec"`
}

// RedisConfig holds the Redis settings used for the embedding cache, budget
// counters and session snapshots. Empty Addrs disables Redis.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Enabled reports whether Redis is configured.
func (r RedisConfig) Enabled() bool { return len(r.Addrs) > 0 }

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// Enabled reports whether any limit is set.
func (b BudgetConfig) Enabled() bool { return b.DailyTokenLimit > 0 || b.MonthlyTokenLimit > 0 }

// EmbeddingConfig holds the embedding provider settings.
type EmbeddingConfig struct {
	Provider         string       `yaml:"provider"`
	APIKey           string       `yaml:"api_key"`
	BaseURL          string       `yaml:"base_url"`
	Model            string       `yaml:"model"`
	Dimensions       int          `yaml:"dimensions"`
	QueryInstruction string       `yaml:"query_instruction"`
	CacheTTLHours    int          `yaml:"cache_ttl_hours"`
	Budget           BudgetConfig `yaml:"budget"`
}

// ChatConfig holds the chat model and orchestration loop settings. Empty
// APIKey and BaseURL fall back to the embedding provider's.
type ChatConfig struct {
	APIKey             string  `yaml:"api_key"`
	BaseURL            string  `yaml:"base_url"`
	Model              string  `yaml:"model"`
	Temperature        float32 `yaml:"temperature"`
	MaxTokens          int     `yaml:"max_tokens"`
	MaxIterations      int     `yaml:"max_iterations"`
	DecisionTimeoutSec int     `yaml:"decision_timeout_sec"`
	ToolTimeoutSec     int     `yaml:"tool_timeout_sec"`
	RequestTimeoutSec  int     `yaml:"request_timeout_sec"` // whole question, all iterations
	HistoryTurns       int     `yaml:"history_turns"`
}

// DecisionTimeout returns the per-decision timeout.
func (c ChatConfig) DecisionTimeout() time.Duration {
	return time.Duration(c.DecisionTimeoutSec) * time.Second
}

// ToolTimeout returns the per-function timeout.
func (c ChatConfig) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSec) * time.Second
}

// RequestTimeout returns the budget for one whole question.
func (c ChatConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// PipelineConfig holds batch embedding settings.
type PipelineConfig struct {
	PageSize           int     `yaml:"page_size"`
	SmallConcurrency   int     `yaml:"small_concurrency"`
	LargeConcurrency   int     `yaml:"large_concurrency"`
	LargePageThreshold int     `yaml:"large_page_threshold"`
	MaxAttempts        int     `yaml:"max_attempts"`
	InitialBackoffMs   int     `yaml:"initial_backoff_ms"`
	RequestsPerSecond  float64 `yaml:"requests_per_second"` // 0 = unlimited
}

// InitialBackoff returns the first retry delay.
func (p PipelineConfig) InitialBackoff() time.Duration {
	return time.Duration(p.InitialBackoffMs) * time.Millisecond
}

// SessionConfig holds conversation state settings.
type SessionConfig struct {
	MaxSessions int `yaml:"max_sessions"`
	TTLHours    int `yaml:"ttl_hours"`
	WindowTurns int `yaml:"window_turns"`
	MaxTurns    int `yaml:"max_turns"`
}

// TTL returns the idle session lifetime.
func (s SessionConfig) TTL() time.Duration { return time.Duration(s.TTLHours) * time.Hour }

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML, substituting ${VAR} references, then applies defaults
// and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 180
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if c.Database.MinConns <= 0 {
		c.Database.MinConns = 2
	}
	if c.Redis.ReadinessTimeout <= 0 {
		c.Redis.ReadinessTimeout = 10
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.CacheTTLHours <= 0 {
		c.Embedding.CacheTTLHours = 30 * 24
	}
	if c.Chat.APIKey == "" {
		c.Chat.APIKey = c.Embedding.APIKey
	}
	if c.Chat.BaseURL == "" {
		c.Chat.BaseURL = c.Embedding.BaseURL
	}
	if c.Chat.MaxIterations <= 0 {
		c.Chat.MaxIterations = 5
	}
	if c.Chat.DecisionTimeoutSec <= 0 {
		c.Chat.DecisionTimeoutSec = 30
	}
	if c.Chat.ToolTimeoutSec <= 0 {
		c.Chat.ToolTimeoutSec = 25
	}
	if c.Chat.RequestTimeoutSec <= 0 {
		c.Chat.RequestTimeoutSec = 150
	}
	if c.Chat.HistoryTurns <= 0 {
		c.Chat.HistoryTurns = 6
	}
	if c.Pipeline.PageSize <= 0 {
		c.Pipeline.PageSize = 200
	}
	if c.Pipeline.SmallConcurrency <= 0 {
		c.Pipeline.SmallConcurrency = 8
	}
	if c.Pipeline.LargeConcurrency <= 0 {
		c.Pipeline.LargeConcurrency = 20
	}
	if c.Pipeline.LargePageThreshold <= 0 {
		c.Pipeline.LargePageThreshold = 500
	}
	if c.Pipeline.MaxAttempts <= 0 {
		c.Pipeline.MaxAttempts = 3
	}
	if c.Pipeline.InitialBackoffMs <= 0 {
		c.Pipeline.InitialBackoffMs = 1000
	}
	if c.Session.MaxSessions <= 0 {
		c.Session.MaxSessions = 10000
	}
	if c.Session.TTLHours <= 0 {
		c.Session.TTLHours = 24
	}
	if c.Session.WindowTurns <= 0 {
		c.Session.WindowTurns = 6
	}
	if c.Session.MaxTurns <= 0 {
		c.Session.MaxTurns = 50
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns (%d) exceeds max_conns (%d)", c.Database.MinConns, c.Database.MaxConns)
	}
	if c.Embedding.Model == "" {
		return errors.New("embedding.model is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	switch c.Embedding.Budget.Action {
	case "", "warn", "reject":
		// ok
	default:
		return fmt.Errorf("embedding.budget.action must be \"warn\" or \"reject\", got %q", c.Embedding.Budget.Action)
	}
	if c.Chat.Model == "" {
		return errors.New("chat.model is required")
	}
	if c.Chat.RequestTimeoutSec >= c.HTTP.WriteTimeoutSec {
		return fmt.Errorf("chat.request_timeout_sec (%d) must be below http.write_timeout_sec (%d)",
			c.Chat.RequestTimeoutSec, c.HTTP.WriteTimeoutSec)
	}
	if c.Pipeline.RequestsPerSecond < 0 {
		return fmt.Errorf("pipeline.requests_per_second must not be negative, got %g", c.Pipeline.RequestsPerSecond)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
