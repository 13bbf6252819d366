package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Signals   SignalsConfig   `mapstructure:"signals"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Accounts  AccountsConfig  `mapstructure:"accounts"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	API       APIConfig       `mapstructure:"api"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// DatabaseConfig contains PostgreSQL settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig contains NATS messaging settings
type NATSConfig struct {
	URL          string        `mapstructure:"url"`
	OrderTopic   string        `mapstructure:"order_topic"`
	SummaryTopic string        `mapstructure:"summary_topic"`
	PublishLimit time.Duration `mapstructure:"publish_limit"`
}

// SignalsConfig contains signal generation and selection settings
type SignalsConfig struct {
	Symbols             []string      `mapstructure:"symbols"`
	Timeframes          []string      `mapstructure:"timeframes"`
	MinStoreScore       float64       `mapstructure:"min_store_score"`    // floor to persist a signal
	MinSelectorScore    float64       `mapstructure:"min_selector_score"` // floor to consider in selector
	MaxSignalAge        time.Duration `mapstructure:"max_signal_age"`
	AlertScore          float64       `mapstructure:"alert_score"` // telegram alert floor
	WinRateLookbackDays int           `mapstructure:"win_rate_lookback_days"`
}

// SchedulerConfig contains cycle scheduling settings
type SchedulerConfig struct {
	CycleInterval   time.Duration `mapstructure:"cycle_interval"`
	CycleCooldown   time.Duration `mapstructure:"cycle_cooldown"`
	CycleDeadline   time.Duration `mapstructure:"cycle_deadline"`
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
	AnalysisWorkers int           `mapstructure:"analysis_workers"` // 0 = min(GOMAXPROCS, symbols*timeframes)
}

// RiskConfig contains portfolio-level risk settings
type RiskConfig struct {
	MaxConcurrentPositions int     `mapstructure:"max_concurrent_positions"`
	MaxDailySignals        int     `mapstructure:"max_daily_signals"`
	MaxDailyLossGlobal     float64 `mapstructure:"max_daily_loss_global"`
	MaxVolatility          float64 `mapstructure:"max_volatility"`
	MinVolume24h           float64 `mapstructure:"min_volume_24h"`
	QualityOverrideScore   float64 `mapstructure:"quality_override_score"`
	KellyFraction          float64 `mapstructure:"kelly_fraction"`
}

// ExecutorConfig contains multi-account execution settings
type ExecutorConfig struct {
	Deadline            time.Duration `mapstructure:"deadline"`
	ExchangeCallTimeout time.Duration `mapstructure:"exchange_call_timeout"`
	BalanceTimeout      time.Duration `mapstructure:"balance_timeout"`
	QuoteAsset          string        `mapstructure:"quote_asset"`
}

// AccountsConfig contains account resolution settings
type AccountsConfig struct {
	CredentialSlotPrefix string `mapstructure:"credential_slot_prefix"`
	MaxEnvSlots          int    `mapstructure:"max_env_slots"`
}

// VaultConfig contains credential decryption settings
type VaultConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	MountPath string `mapstructure:"mount_path"`
}

// TelegramConfig contains telegram alerting settings
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// APIConfig contains status API settings
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// MetricsConfig contains prometheus settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("SIGNALFLOW")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "SignalFlow")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "signalflow")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.order_topic", "signalflow.orders")
	v.SetDefault("nats.summary_topic", "signalflow.summary")
	v.SetDefault("nats.publish_limit", 2*time.Second)

	// Signal defaults
	v.SetDefault("signals.symbols", []string{"BTCUSDT", "ETHUSDT"})
	v.SetDefault("signals.timeframes", []string{"1h", "4h"})
	v.SetDefault("signals.min_store_score", 0.65)
	v.SetDefault("signals.min_selector_score", 0.65)
	v.SetDefault("signals.max_signal_age", 24*time.Hour)
	v.SetDefault("signals.alert_score", 0.80)
	v.SetDefault("signals.win_rate_lookback_days", 30)

	// Scheduler defaults
	v.SetDefault("scheduler.cycle_interval", 60*time.Second)
	v.SetDefault("scheduler.cycle_cooldown", 5*time.Minute)
	v.SetDefault("scheduler.cycle_deadline", 60*time.Second)
	v.SetDefault("scheduler.monitor_interval", 60*time.Second)
	v.SetDefault("scheduler.analysis_workers", 0)

	// Risk defaults
	v.SetDefault("risk.max_concurrent_positions", 5)
	v.SetDefault("risk.max_daily_signals", 10)
	v.SetDefault("risk.max_daily_loss_global", 0.05)
	v.SetDefault("risk.max_volatility", 0.15)
	v.SetDefault("risk.min_volume_24h", 1e6)
	v.SetDefault("risk.quality_override_score", 0.90)
	v.SetDefault("risk.kelly_fraction", 0.5)

	// Executor defaults
	v.SetDefault("executor.deadline", 30*time.Second)
	v.SetDefault("executor.exchange_call_timeout", 10*time.Second)
	v.SetDefault("executor.balance_timeout", 3*time.Second)
	v.SetDefault("executor.quote_asset", "USDT")

	// Account defaults
	v.SetDefault("accounts.credential_slot_prefix", "CREDENTIAL_SLOT_")
	v.SetDefault("accounts.max_env_slots", 10)

	// Vault defaults
	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "http://localhost:8200")
	v.SetDefault("vault.mount_path", "secret")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)

	// API defaults
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8081)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9100)
}

// Validate checks configuration invariants up front so they do not surface
// later as confusing runtime behavior
func (c *Config) Validate() error {
	if c.Signals.MinStoreScore < 0 || c.Signals.MinStoreScore > 1 {
		return fmt.Errorf("signals.min_store_score must be in [0,1], got %f", c.Signals.MinStoreScore)
	}
	if c.Signals.MinSelectorScore < c.Signals.MinStoreScore {
		return fmt.Errorf("signals.min_selector_score (%f) below min_store_score (%f)",
			c.Signals.MinSelectorScore, c.Signals.MinStoreScore)
	}
	if len(c.Signals.Symbols) == 0 {
		return fmt.Errorf("signals.symbols must not be empty")
	}
	if len(c.Signals.Timeframes) == 0 {
		return fmt.Errorf("signals.timeframes must not be empty")
	}
	for _, tf := range c.Signals.Timeframes {
		switch tf {
		case "15m", "1h", "4h", "1d":
		default:
			return fmt.Errorf("unsupported timeframe %q", tf)
		}
	}
	if c.Scheduler.CycleInterval <= 0 {
		return fmt.Errorf("scheduler.cycle_interval must be positive")
	}
	if c.Risk.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("risk.max_concurrent_positions must be positive")
	}
	if c.Risk.KellyFraction <= 0 || c.Risk.KellyFraction > 1 {
		return fmt.Errorf("risk.kelly_fraction must be in (0,1], got %f", c.Risk.KellyFraction)
	}
	if c.Executor.Deadline <= 0 || c.Executor.ExchangeCallTimeout <= 0 {
		return fmt.Errorf("executor deadlines must be positive")
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAPIAddr returns the status API listen address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
