package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Sweep configuration
	Sweep SweepConfig `mapstructure:"sweep"`

	// Data configuration
	Data DataConfig `mapstructure:"data"`

	// Tokenizer configuration
	Tokenizer TokenizerConfig `mapstructure:"tokenizer"`

	// Tracker configuration
	Tracker TrackerConfig `mapstructure:"tracker"`

	// Cache configuration
	Cache CacheConfig `mapstructure:"cache"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// Alert configuration
	Alert AlertConfig `mapstructure:"alert"`

	// CircuitBreaker configuration
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// AlertConfig holds configuration for alerting
type AlertConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	SMTPHost string   `mapstructure:"smtp_host"`
	SMTPPort int      `mapstructure:"smtp_port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// CircuitBreakerConfig holds configuration for circuit breaking
type CircuitBreakerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// MaxConsecutiveFailures trips the breaker.
	MaxConsecutiveFailures uint32 `mapstructure:"max_consecutive_failures"`
	MaxRequests            uint32 `mapstructure:"max_requests"`
	Interval               int    `mapstructure:"interval"` // in seconds
	Timeout                int    `mapstructure:"timeout"`  // in seconds
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	ParquetPath string `mapstructure:"parquet_path"`
	// SQL enables the SQL handler on the tracker database.
	SQL   bool   `mapstructure:"sql"`
	Level string `mapstructure:"level"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text, json
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// SweepConfig holds defaults for sweep runs
type SweepConfig struct {
	Workers       int    `mapstructure:"workers"`
	NNeighbors    []int  `mapstructure:"n_neighbors"`
	CheckpointDir string `mapstructure:"checkpoint_dir"`
	Resume        bool   `mapstructure:"resume"`
	MaxAttempts   int    `mapstructure:"max_attempts"`
	// OrigWorkingDir anchors relative data and results paths.
	OrigWorkingDir string `mapstructure:"orig_working_dir"`
}

// DataConfig holds dataset locations
type DataConfig struct {
	Root       string   `mapstructure:"root"`
	Exclude    []string `mapstructure:"exclude"`
	// ResultsDir replaces every baseline's own results directory when set.
	ResultsDir string   `mapstructure:"results_dir"`
}

// TokenizerConfig holds tokenizer options
type TokenizerConfig struct {
	QGramSize    int    `mapstructure:"qgram_size"`
	SubwordModel string `mapstructure:"subword_model"`
	HFToken      string `mapstructure:"hf_token"`
}

// TrackerConfig holds experiment tracker configuration
type TrackerConfig struct {
	Project string `mapstructure:"project"`
	// DSN is a SQLite path or mysql://... for a shared server.
	DSN string `mapstructure:"dsn"`
}

// CacheConfig holds token cache configuration
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"` // empty keeps the cache in memory
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	overrideWithEnv(config)

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")

	viper.SetDefault("sweep.workers", 4)
	viper.SetDefault("sweep.n_neighbors", []int{100})
	viper.SetDefault("sweep.resume", true)
	viper.SetDefault("sweep.max_attempts", 3)

	viper.SetDefault("data.root", "data/blocking")
	viper.SetDefault("data.exclude", []string{"songs", "citeseer-dblp"})

	viper.SetDefault("tokenizer.qgram_size", 5)
	viper.SetDefault("tokenizer.subword_model", "bert-base-uncased")

	viper.SetDefault("tracker.project", "universal-blocker")

	viper.SetDefault("cache.enabled", false)

	viper.SetDefault("telemetry.level", "error")

	viper.SetDefault("circuit_breaker.enabled", true)
	viper.SetDefault("circuit_breaker.max_consecutive_failures", 5)
	viper.SetDefault("circuit_breaker.max_requests", 1)
	viper.SetDefault("circuit_breaker.interval", 0)
	viper.SetDefault("circuit_breaker.timeout", 60)

	home, err := os.UserHomeDir()
	if err == nil {
		viper.SetDefault("tracker.dsn", filepath.Join(home, ".uniblocker", "runs.db"))
		viper.SetDefault("sweep.checkpoint_dir", filepath.Join(home, ".uniblocker", "checkpoints"))
		viper.SetDefault("telemetry.parquet_path", filepath.Join(home, ".uniblocker", "telemetry"))
	}
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	if root := os.Getenv("UNIBLOCKER_DATA_ROOT"); root != "" {
		config.Data.Root = root
	}
	if dir := os.Getenv("UNIBLOCKER_RESULTS_DIR"); dir != "" {
		config.Data.ResultsDir = dir
	}
	if dir := os.Getenv("TUNE_ORIG_WORKING_DIR"); dir != "" {
		config.Sweep.OrigWorkingDir = dir
	}
	if limit := os.Getenv("SEMAPHORE_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			config.Sweep.Workers = n
		}
	}
	if dsn := os.Getenv("UNIBLOCKER_TRACKER_DSN"); dsn != "" {
		config.Tracker.DSN = dsn
	}
	if token := os.Getenv("HF_TOKEN"); token != "" {
		config.Tokenizer.HFToken = token
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			config.Server.Port = n
		}
	}

	if path := os.Getenv("TELEMETRY_PARQUET_PATH"); path != "" {
		config.Telemetry.ParquetPath = path
	}
}
