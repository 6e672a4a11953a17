package infrastructure

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Batcher   BatcherConfig   `mapstructure:"batcher"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// BatcherConfig holds write-batcher tuning knobs
type BatcherConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`     // flush when this many logical transactions are pending
	FlushInterval time.Duration `mapstructure:"flush_interval"` // flush this long after the first pending entry
}

// OutboxConfig holds outbox poller tuning knobs
type OutboxConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	BatchSize        int           `mapstructure:"batch_size"`
	MaxRetries       int           `mapstructure:"max_retries"`
	BackoffBase      float64       `mapstructure:"backoff_base"` // nextRetryAt = now + base^retryCount seconds
	AckBatchSize     int           `mapstructure:"ack_batch_size"`
	AckFlushInterval time.Duration `mapstructure:"ack_flush_interval"`
	WorkerPoolSize   int           `mapstructure:"worker_pool_size"`
}

// SchedulerConfig holds scheduler driver tuning knobs
type SchedulerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxRetries   int           `mapstructure:"max_retries"`
	BackoffBase  float64       `mapstructure:"backoff_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variable support
	viper.AutomaticEnv()
	viper.SetEnvPrefix("MERCATO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	// Read config file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "file:mercato.db?cache=shared&mode=rwc")

	viper.SetDefault("batcher.batch_size", 32)
	viper.SetDefault("batcher.flush_interval", "10ms")

	viper.SetDefault("outbox.poll_interval", "250ms")
	viper.SetDefault("outbox.batch_size", 50)
	viper.SetDefault("outbox.max_retries", 5)
	viper.SetDefault("outbox.backoff_base", 2.0)
	viper.SetDefault("outbox.ack_batch_size", 20)
	viper.SetDefault("outbox.ack_flush_interval", "100ms")
	viper.SetDefault("outbox.worker_pool_size", 8)

	viper.SetDefault("scheduler.poll_interval", "1s")
	viper.SetDefault("scheduler.max_retries", 3)
	viper.SetDefault("scheduler.backoff_base", 2.0)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// validateConfig validates the configuration values
func validateConfig(config *Config) error {
	switch config.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", config.Database.Driver)
	}
	if config.Batcher.BatchSize < 1 {
		return fmt.Errorf("batcher batch_size must be at least 1, got %d", config.Batcher.BatchSize)
	}
	if config.Batcher.FlushInterval <= 0 {
		return fmt.Errorf("batcher flush_interval must be positive, got %s", config.Batcher.FlushInterval)
	}
	if config.Outbox.BatchSize < 1 {
		return fmt.Errorf("outbox batch_size must be at least 1, got %d", config.Outbox.BatchSize)
	}
	if config.Outbox.BackoffBase <= 1 {
		return fmt.Errorf("outbox backoff_base must be greater than 1, got %f", config.Outbox.BackoffBase)
	}
	if config.Outbox.MaxRetries < 1 {
		return fmt.Errorf("outbox max_retries must be at least 1, got %d", config.Outbox.MaxRetries)
	}
	switch config.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported log level: %s", config.Logging.Level)
	}
	return nil
}
