// Package config loads settings from defaults, an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EnvPrefix prefixes every environment variable, e.g. UISTREAM_PORT.
const EnvPrefix = "UISTREAM"

// Config represents the application configuration.
type Config struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	GeminiAPIKey string        `mapstructure:"gemini_api_key"`
	Model        string        `mapstructure:"model"`
	Instructions string        `mapstructure:"instructions"`
	DBPath       string        `mapstructure:"db_path"`
	MaxSteps     int           `mapstructure:"max_steps"`
	Stream       StreamConfig  `mapstructure:"stream"`
	Sandbox      SandboxConfig `mapstructure:"sandbox"`
	Logging      LoggingConfig `mapstructure:"logging"`
	Metrics      MetricsConfig `mapstructure:"metrics"`
}

// StreamConfig tunes the UI message stream.
type StreamConfig struct {
	// ToolOutputChunkSize splits tool output deltas into pieces of at most
	// this many runes. Zero sends each output as a single delta.
	ToolOutputChunkSize int `mapstructure:"tool_output_chunk_size"`
}

// SandboxConfig holds the docker sandbox used by the run_python tool.
type SandboxConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Image   string `mapstructure:"image"`
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
	// File enables a rotating log file instead of stderr.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig enables periodic export of stream metrics to stdout.
type MetricsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 5001)
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("model", "gemini-2.5-flash")
	v.SetDefault("instructions", "")
	v.SetDefault("db_path", "uistream.db")
	v.SetDefault("max_steps", 8)

	v.SetDefault("stream.tool_output_chunk_size", 0)

	v.SetDefault("sandbox.enabled", false)
	v.SetDefault("sandbox.image", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 10)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.interval", "60s")
}

// bindEnvironmentVariables maps the unprefixed variables that deployments
// already use.
func bindEnvironmentVariables(v *viper.Viper) {
	v.BindEnv("gemini_api_key", EnvPrefix+"_GEMINI_API_KEY", "GEMINI_API_KEY")
	v.BindEnv("host", EnvPrefix+"_HOST", "HOST")
	v.BindEnv("port", EnvPrefix+"_PORT", "PORT")
}

// Load reads the configuration into v. cfgFile is optional; when empty,
// uistream.yaml is looked up in the working directory.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("uistream")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvironmentVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got %d", c.MaxSteps)
	}
	if c.Stream.ToolOutputChunkSize < 0 {
		return fmt.Errorf("stream.tool_output_chunk_size must not be negative")
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// Addr is the listen address of the server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LLMConfigured reports whether a model API key is set. Without one the
// echo fallback answers.
func (c *Config) LLMConfigured() bool {
	return c.GeminiAPIKey != ""
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return l, nil
}

// NewLogger builds the logger described by cfg. The returned closer releases
// the log file, if any.
func NewLogger(cfg LoggingConfig) (*slog.Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		w      io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		w, closer = lj, lj
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
