// Package config loads bus settings from an optional config file, .env files
// and CRIER_ environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/casualjim/crier"
	"github.com/casualjim/crier/pkg/logx"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key when read from the environment, so
// drain_timeout is CRIER_DRAIN_TIMEOUT.
const EnvPrefix = "CRIER"

// Log formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Config struct {
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
	Workers      int           `mapstructure:"workers"`
	QueueSize    int           `mapstructure:"queue_size"`
	LogLevel     string        `mapstructure:"log_level"`
	LogFormat    string        `mapstructure:"log_format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		DrainTimeout: crier.DefaultDrainTimeout,
		LogLevel:     "info",
		LogFormat:    FormatConsole,
	}
}

// Load reads path when it is not empty, then the given .env files, then the
// environment. Without env files it tries .env in the working directory and
// ignores it when missing.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadEnv(envFiles); err != nil {
		return nil, err
	}

	v := viper.New()
	def := Default()
	v.SetDefault("drain_timeout", def.DrainTimeout)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("queue_size", def.QueueSize)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("unable to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnv(files []string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("unable to load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("unable to load env files: %w", err)
	}
	return nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.DrainTimeout < 0 {
		errs = append(errs, fmt.Errorf("drain_timeout must not be negative, got %s", c.DrainTimeout))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("queue_size must not be negative, got %d", c.QueueSize))
	}
	if _, err := logx.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	switch c.LogFormat {
	case FormatConsole, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log_format must be one of: %s, %s", FormatConsole, FormatJSON))
	}
	return errors.Join(errs...)
}

// Logger builds the logger described by LogLevel and LogFormat.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := logx.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	if c.LogFormat == FormatJSON {
		return logx.NewJSON(w, level), nil
	}
	return logx.New(w, level), nil
}

// BusOptions converts the configuration into bus options. A nil logger
// leaves the bus on slog.Default().
func (c *Config) BusOptions(logger *slog.Logger) []crier.Option {
	return []crier.Option{
		crier.WithDrainTimeout(c.DrainTimeout),
		crier.WithWorkers(c.Workers),
		crier.WithQueueSize(c.QueueSize),
		crier.WithLogger(logger),
	}
}
