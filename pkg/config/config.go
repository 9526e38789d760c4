// Package config provides configuration loading and validation for runsort.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidBlockSize   = errors.New("invalid block size")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidLogFormat   = errors.New("invalid log format")
	ErrInvalidSampleRatio = errors.New("sample ratio must be within [0, 1]")
)

const (
	envPrefix      = "RUNSORT"
	configName     = "runsort"
	logFormatText  = "text"
	logFormatJSON  = "json"
	maxSampleRatio = 1.0
)

// Config holds all configuration for runsort.
type Config struct {
	Sort      SortConfig      `mapstructure:"sort"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// SortConfig holds sorter settings.
type SortConfig struct {
	BlockSize  int  `mapstructure:"block_size"`
	Strict     bool `mapstructure:"strict"`
	Descending bool `mapstructure:"descending"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds OpenTelemetry and metrics export settings.
type TelemetryConfig struct {
	ServiceName     string  `mapstructure:"service_name"`
	Environment     string  `mapstructure:"environment"`
	OTLPEndpoint    string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders     string  `mapstructure:"otlp_headers"`
	OTLPInsecure    bool    `mapstructure:"otlp_insecure"`
	SampleRatio     float64 `mapstructure:"sample_ratio"`
	MetricsTextfile string  `mapstructure:"metrics_textfile"`
}

// SlogLevel returns the parsed logging level.
func (lc LoggingConfig) SlogLevel() slog.Level {
	var level slog.Level

	err := level.UnmarshalText([]byte(lc.Level))
	if err != nil {
		return slog.LevelInfo
	}

	return level
}

// JSON reports whether logs should be JSON formatted.
func (lc LoggingConfig) JSON() bool {
	return strings.EqualFold(lc.Format, logFormatJSON)
}

// LoadConfig loads configuration from file and environment variables.
// An empty configPath searches for runsort.yaml in the usual places and
// falls back to defaults when none exists.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")

		if home, err := os.UserHomeDir(); err == nil {
			viperCfg.AddConfigPath(filepath.Join(home, ".config", configName))
		}
	}

	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("sort.block_size", DefaultBlockSize)
	viperCfg.SetDefault("sort.strict", DefaultStrict)
	viperCfg.SetDefault("sort.descending", DefaultDescending)

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	viperCfg.SetDefault("telemetry.service_name", DefaultServiceName)
	viperCfg.SetDefault("telemetry.environment", "")
	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_headers", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", DefaultOTLPInsecure)
	viperCfg.SetDefault("telemetry.sample_ratio", DefaultSampleRatio)
	viperCfg.SetDefault("telemetry.metrics_textfile", DefaultMetricsTextfile)
}

func validateConfig(config *Config) error {
	if config.Sort.BlockSize < MinBlockSize {
		return fmt.Errorf("%w: %d (minimum %d)", ErrInvalidBlockSize, config.Sort.BlockSize, MinBlockSize)
	}

	var level slog.Level

	err := level.UnmarshalText([]byte(config.Logging.Level))
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, config.Logging.Level)
	}

	switch strings.ToLower(config.Logging.Format) {
	case logFormatText, logFormatJSON:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	ratio := config.Telemetry.SampleRatio
	if ratio < 0 || ratio > maxSampleRatio {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRatio, ratio)
	}

	return nil
}
