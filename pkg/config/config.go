package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config represents the syncd application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storefront StorefrontConfig `mapstructure:"storefront"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	StockSync  StockSyncConfig  `mapstructure:"stock_sync"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"gt=0,lte=65535"`
}

// DatabaseConfig contains retail (POS) database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"gt=0,lte=65535"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database" validate:"required"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// StorefrontConfig contains settings for the storefront GraphQL API
type StorefrontConfig struct {
	APIURL          string        `mapstructure:"api_url" validate:"required,url"`
	AccessToken     string        `mapstructure:"access_token" validate:"required"`
	MinCallInterval time.Duration `mapstructure:"min_call_interval" validate:"gt=0"`
	MaxRetries      int           `mapstructure:"max_retries" validate:"gte=0"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

// CheckpointConfig contains checkpoint store settings
type CheckpointConfig struct {
	Dir        string        `mapstructure:"dir" validate:"required"`
	StaleAfter time.Duration `mapstructure:"stale_after" validate:"gt=0"`
	Redis      RedisConfig   `mapstructure:"redis"`
}

// RedisConfig contains settings for the optional fast checkpoint tier
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// SyncConfig contains forward-sync run settings
type SyncConfig struct {
	PageSize         int           `mapstructure:"page_size" validate:"gt=0"`
	BatchSize        int           `mapstructure:"batch_size" validate:"gt=0"`
	CheckpointEvery  int           `mapstructure:"checkpoint_every" validate:"gt=0"`
	PageDelay        time.Duration `mapstructure:"page_delay"`
	RunTimeout       time.Duration `mapstructure:"run_timeout" validate:"gt=0"`
	IncludeZeroStock bool          `mapstructure:"include_zero_stock"`
	ForceUpdate      bool          `mapstructure:"force_update"`
	Schedule         string        `mapstructure:"schedule"`
}

// DetectorConfig contains change-detector settings
type DetectorConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Interval     time.Duration `mapstructure:"interval" validate:"gt=0"`
	SafetyWindow time.Duration `mapstructure:"safety_window" validate:"gt=0"`
	MaxChanges   int           `mapstructure:"max_changes" validate:"gt=0"`
	ErrorBackoff time.Duration `mapstructure:"error_backoff" validate:"gt=0"`
	GroupPause   time.Duration `mapstructure:"group_pause"`
}

// StockSyncConfig contains reverse (storefront -> retail) stock sync settings
type StockSyncConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DelayMinutes int           `mapstructure:"delay_minutes" validate:"gte=0"`
	StatePath    string        `mapstructure:"state_path" validate:"required_if=Enabled true"`
	TickInterval time.Duration `mapstructure:"tick_interval" validate:"gt=0"`
	PageSize     int           `mapstructure:"page_size" validate:"gt=0"`
}

// AdminConfig contains settings for the admin HTTP surface.
// Mutating routes are open when JWTSecret is empty.
type AdminConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")

	// Storefront defaults
	viper.SetDefault("storefront.min_call_interval", "500ms")
	viper.SetDefault("storefront.max_retries", 3)
	viper.SetDefault("storefront.request_timeout", "30s")

	// Checkpoint defaults
	viper.SetDefault("checkpoint.dir", "/var/lib/syncd/checkpoints")
	viper.SetDefault("checkpoint.stale_after", "24h")
	viper.SetDefault("checkpoint.redis.enabled", false)
	viper.SetDefault("checkpoint.redis.ttl", "24h")

	// Sync defaults
	viper.SetDefault("sync.page_size", 100)
	viper.SetDefault("sync.batch_size", 25)
	viper.SetDefault("sync.checkpoint_every", 50)
	viper.SetDefault("sync.page_delay", "2s")
	viper.SetDefault("sync.run_timeout", "30m")
	viper.SetDefault("sync.include_zero_stock", false)
	viper.SetDefault("sync.force_update", false)

	// Detector defaults
	viper.SetDefault("detector.enabled", true)
	viper.SetDefault("detector.interval", "15m")
	viper.SetDefault("detector.safety_window", "30m")
	viper.SetDefault("detector.max_changes", 500)
	viper.SetDefault("detector.error_backoff", "60s")
	viper.SetDefault("detector.group_pause", "1s")

	// Stock sync defaults
	viper.SetDefault("stock_sync.enabled", false)
	viper.SetDefault("stock_sync.delay_minutes", 30)
	viper.SetDefault("stock_sync.state_path", "/var/lib/syncd/stock_sync_state.json")
	viper.SetDefault("stock_sync.tick_interval", "1m")
	viper.SetDefault("stock_sync.page_size", 250)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}
