package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research agent service.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Research  ResearchConfig  `mapstructure:"research"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains process-wide settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ServerConfig contains HTTP edge settings.
type ServerConfig struct {
	Address    string   `mapstructure:"address"`
	JWTSecret  string   `mapstructure:"jwt_secret"`
	AdminUsers []string `mapstructure:"admin_users"`
}

// ResearchConfig controls the agent loop's tunable parameters (spec.md §6).
type ResearchConfig struct {
	SearchResultsCount int           `mapstructure:"search_results_count"`
	AgentMaxSteps      int           `mapstructure:"agent_max_steps"`
	DailyRequestLimit  int           `mapstructure:"daily_request_limit"`
	GlobalRateMax      int           `mapstructure:"global_rate_max"`
	GlobalRateWindow   time.Duration `mapstructure:"global_rate_window"`
	GlobalRateRetries  int           `mapstructure:"global_rate_retries"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	ScrapeMaxRetries   int           `mapstructure:"scrape_max_retries"`
	LoopTimeout        time.Duration `mapstructure:"loop_timeout"`
	SearchProvider     string        `mapstructure:"search_provider"` // "serper" or "brave"
	SearchAPIKey       string        `mapstructure:"search_api_key"`
}

// Normalize fills unset fields with spec.md §6 defaults. AgentMaxSteps is
// left untouched at zero since AGENT_MAX_STEPS=0 is a valid, meaningful
// boundary configuration (spec.md §8: immediate isFinal=true answer).
func (r ResearchConfig) Normalize() ResearchConfig {
	if r.SearchResultsCount <= 0 {
		r.SearchResultsCount = 3
	}
	if r.AgentMaxSteps < 0 {
		r.AgentMaxSteps = 0
	}
	if r.DailyRequestLimit <= 0 {
		r.DailyRequestLimit = 5
	}
	if r.GlobalRateMax <= 0 {
		r.GlobalRateMax = 1
	}
	if r.GlobalRateWindow <= 0 {
		r.GlobalRateWindow = 5 * time.Second
	}
	if r.GlobalRateRetries <= 0 {
		r.GlobalRateRetries = 3
	}
	if r.CacheTTL <= 0 {
		r.CacheTTL = 6 * time.Hour
	}
	if r.ScrapeMaxRetries <= 0 {
		r.ScrapeMaxRetries = 3
	}
	if r.LoopTimeout <= 0 {
		r.LoopTimeout = 60 * time.Second
	}
	return r
}

// LLMConfig contains LLM provider configuration and per-stage routing.
type LLMConfig struct {
	Providers map[string]LLMProviderConfig `mapstructure:"providers"`
	Routing   LLMRoutingConfig             `mapstructure:"routing"`
}

// LLMProviderConfig represents a single named LLM provider configuration;
// Model pins the concrete model string this provider entry is routed to
// (e.g. "gpt-4o-mini", "claude-3-5-haiku-latest").
type LLMProviderConfig struct {
	Type       string        `mapstructure:"type"` // openai, anthropic
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	MaxRetries int           `mapstructure:"max_retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// LLMRoutingConfig names, for each loop stage, the key into LLMConfig.Providers
// that should serve it (spec.md §6's per-stage model routing).
type LLMRoutingConfig struct {
	Rewriter   string `mapstructure:"rewriter"`
	Evaluator  string `mapstructure:"evaluator"`
	Summarizer string `mapstructure:"summarizer"`
	Answerer   string `mapstructure:"answerer"`
	Guardrail  string `mapstructure:"guardrail"`
}

// TelemetryConfig contains tracing/metrics settings.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}

// StorageConfig contains backing-store connection settings.
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings (cache, rate limits, resumable streams).
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Addr) == "" {
		return fmt.Errorf("storage.redis.addr required")
	}
	return nil
}

// PostgresConfig contains the chat store's connection settings.
type PostgresConfig struct {
	URL     string        `mapstructure:"url"`
	Host    string        `mapstructure:"host"`
	Port    string        `mapstructure:"port"`
	User    string        `mapstructure:"user"`
	Pass    string        `mapstructure:"password"`
	DBName  string        `mapstructure:"dbname"`
	SSLMode string        `mapstructure:"sslmode"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" || strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.host and dbname required when url is not provided")
	}
	return nil
}

// DSN builds a postgres connection string from discrete fields when URL is unset.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Pass, p.Host, port, p.DBName, ssl)
}

// LoadConfig loads config from file and environment. path may be empty to
// search default locations.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("research.search_results_count", 3)
	viper.SetDefault("research.agent_max_steps", 3)
	viper.SetDefault("research.daily_request_limit", 5)
	viper.SetDefault("research.global_rate_max", 1)
	viper.SetDefault("research.global_rate_window", "5s")
	viper.SetDefault("research.cache_ttl", "6h")
	viper.SetDefault("research.scrape_max_retries", 3)
	viper.SetDefault("research.loop_timeout", "60s")
	viper.SetDefault("general.request_timeout", "20s")
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("telemetry.service_name", "deepresearch")

	if path == "" {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("RESEARCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Research = cfg.Research.Normalize()

	if err := cfg.Telemetry.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.Redis.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.Postgres.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsAdmin reports whether userID is in the configured admin allow-list
// (rate limiter bypass, spec.md §4.C1).
func (c *Config) IsAdmin(userID string) bool {
	for _, id := range c.Server.AdminUsers {
		if id == userID {
			return true
		}
	}
	return false
}
