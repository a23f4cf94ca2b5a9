package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingWeatherKey is returned when no WeatherAPI key is configured.
var ErrMissingWeatherKey = errors.New("weather.api_key is required (set WEATHER_KEY)")

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Weather  WeatherConfig  `mapstructure:"weather"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Publish  PublishConfig  `mapstructure:"publish"`
	CORS     CORSConfig     `mapstructure:"cors"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RefreshTimeout bounds an on-demand refresh; it must be below WriteTimeout.
	RefreshTimeout time.Duration `mapstructure:"refresh_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PathsConfig holds the writable runtime directories.
type PathsConfig struct {
	LogsDir string `mapstructure:"logs_dir"`
	DataDir string `mapstructure:"data_dir"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	// DSN defaults to {data_dir}/agrotel.db.
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`

	// File is an append-only copy of stdout. Defaults to {logs_dir}/agrotel.log;
	// "none" disables it.
	File string `mapstructure:"file"`
}

// WeatherConfig holds WeatherAPI and telemetry configuration.
type WeatherConfig struct {
	APIKey           string        `mapstructure:"api_key"`
	BaseURL          string        `mapstructure:"base_url"`
	Location         string        `mapstructure:"location"`
	Crop             string        `mapstructure:"crop"`
	Timeout          time.Duration `mapstructure:"timeout"`
	RetryAttempts    int           `mapstructure:"retry_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	TranslationsFile string        `mapstructure:"translations_file"`
}

// PollerConfig holds the background fetch schedule.
type PollerConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	Retention time.Duration `mapstructure:"retention"`
}

// PublishConfig holds IoT platform publishing configuration.
type PublishConfig struct {
	// Enabled starts the background publisher.
	Enabled bool `mapstructure:"enabled"`

	// BaseURL is the ThingsBoard base URL.
	BaseURL string `mapstructure:"base_url"`

	// AccessToken is the device access token.
	AccessToken string `mapstructure:"access_token"`

	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// CORSConfig holds cross-origin settings for the API.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 10000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.refresh_timeout", "25s")
	v.SetDefault("paths.logs_dir", "/app/logs")
	v.SetDefault("paths.data_dir", "/app/data")
	v.SetDefault("database.dsn", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")

	v.SetDefault("weather.api_key", "")
	v.SetDefault("weather.base_url", "http://api.weatherapi.com")
	v.SetDefault("weather.location", "Hanoi")
	v.SetDefault("weather.crop", "Rau muống")
	v.SetDefault("weather.timeout", "10s")
	v.SetDefault("weather.retry_attempts", 3)
	v.SetDefault("weather.retry_delay", "1s")
	v.SetDefault("weather.translations_file", "")

	v.SetDefault("poller.interval", "10m")
	v.SetDefault("poller.retention", "168h")

	v.SetDefault("publish.enabled", false)
	v.SetDefault("publish.base_url", "http://localhost:8080")
	v.SetDefault("publish.access_token", "")
	v.SetDefault("publish.interval", "60s")
	v.SetDefault("publish.batch_size", 50)
	v.SetDefault("publish.timeout", "10s")

	v.SetDefault("cors.allowed_origins", []string{"*"})

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("AGROTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Plain names used by container platforms and the legacy deployment
	_ = v.BindEnv("server.port", "AGROTEL_SERVER_PORT", "PORT")
	_ = v.BindEnv("weather.api_key", "AGROTEL_WEATHER_API_KEY", "WEATHER_KEY", "WEATHER_API_KEY")
	_ = v.BindEnv("weather.location", "AGROTEL_WEATHER_LOCATION", "LOCATION")

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = filepath.Join(cfg.Paths.DataDir, "agrotel.db")
	}
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(cfg.Paths.LogsDir, "agrotel.log")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that have no usable default.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.WriteTimeout > 0 && c.Server.RefreshTimeout >= c.Server.WriteTimeout {
		return fmt.Errorf("server.refresh_timeout (%s) must be shorter than server.write_timeout (%s)",
			c.Server.RefreshTimeout, c.Server.WriteTimeout)
	}
	if strings.TrimSpace(c.Weather.APIKey) == "" {
		return ErrMissingWeatherKey
	}
	if strings.TrimSpace(c.Weather.Location) == "" {
		return errors.New("weather.location must not be empty")
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be positive, got %s", c.Poller.Interval)
	}
	if c.Publish.Enabled && c.Publish.AccessToken == "" {
		return errors.New("publish.access_token is required when publishing is enabled")
	}
	return nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
// The returned closer releases the log file, if any.
func SetupLogger(cfg *Config) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if cfg.Log.File != "" && cfg.Log.File != "none" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closer = f
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
