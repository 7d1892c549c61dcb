package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Parallel  ParallelConfig  `yaml:"parallel" mapstructure:"parallel"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Waiter    WaiterConfig    `yaml:"waiter" mapstructure:"waiter"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the job store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ParallelConfig holds research API settings.
type ParallelConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds synthesis service settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// RateLimitConfig configures the shared outbound token bucket.
type RateLimitConfig struct {
	Capacity     int     `yaml:"capacity" mapstructure:"capacity"`
	RefillPerSec float64 `yaml:"refill_per_sec" mapstructure:"refill_per_sec"`
}

// CacheConfig configures the outbound response cache.
type CacheConfig struct {
	TTLMinutes int `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// TTL returns the cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// PricingConfig holds cost-tracking settings.
type PricingConfig struct {
	TariffPath    string `yaml:"tariff_path" mapstructure:"tariff_path"`
	LedgerRecords int    `yaml:"ledger_records" mapstructure:"ledger_records"`
}

// WaiterConfig configures external task completion polling.
type WaiterConfig struct {
	PollIntervalSecs int `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	BudgetMins       int `yaml:"budget_mins" mapstructure:"budget_mins"`
}

// PollInterval returns the poll interval as a duration.
func (c WaiterConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// Budget returns the overall wait budget as a duration.
func (c WaiterConfig) Budget() time.Duration {
	return time.Duration(c.BudgetMins) * time.Minute
}

// PipelineConfig configures analysis behavior.
type PipelineConfig struct {
	Processor      string `yaml:"processor" mapstructure:"processor"`
	MaxCompetitors int    `yaml:"max_competitors" mapstructure:"max_competitors"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs" mapstructure:"max_concurrent_jobs"`
}

// ServerConfig configures the trigger/read HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ANALYSIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("parallel.base_url", "https://api.parallel.ai")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("rate_limit.capacity", 10)
	v.SetDefault("rate_limit.refill_per_sec", 2.0)
	v.SetDefault("cache.ttl_minutes", 60)
	v.SetDefault("pricing.ledger_records", 1000)
	v.SetDefault("waiter.poll_interval_secs", 10)
	v.SetDefault("waiter.budget_mins", 45)
	v.SetDefault("pipeline.processor", "core")
	v.SetDefault("pipeline.max_competitors", 5)
	v.SetDefault("batch.max_concurrent_jobs", 5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that required settings are present for a given command.
func (c *Config) Validate(command string) error {
	switch command {
	case "analysis":
		if c.Parallel.Key == "" {
			return eris.New("config: parallel.key is required (ANALYSIS_PARALLEL_KEY)")
		}
		if c.Anthropic.Key == "" {
			return eris.New("config: anthropic.key is required (ANALYSIS_ANTHROPIC_KEY)")
		}
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required for the postgres driver")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
