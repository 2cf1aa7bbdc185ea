package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file
const (
	EnvURL      = "HA_URL"
	EnvToken    = "HA_TOKEN"
	EnvTimeout  = "HA_TIMEOUT"
	EnvLogLevel = "HA_LOG_LEVEL"
)

// DefaultTimeout bounds every request when nothing else is configured
const DefaultTimeout = 10 * time.Second

// Config holds the settings needed to talk to Home Assistant
type Config struct {
	BaseURL  string        `yaml:"base_url"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
	LogLevel string        `yaml:"log_level"`
}

// Default returns a Config with defaults applied and no connection settings
func Default() *Config {
	return &Config{
		Timeout:  DefaultTimeout,
		LogLevel: "info",
	}
}

// Validate checks that the config can be used to build a client
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url must be set (or %s)", EnvURL)
	}
	if c.Token == "" {
		return fmt.Errorf("token must be set (or %s)", EnvToken)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	return nil
}

// Level returns the configured log level, info when unparsable
func (c *Config) Level() zapcore.Level {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// Loader assembles a Config from a .env file, an optional YAML file and the environment.
// Later sources win: defaults, then the YAML file, then environment variables.
type Loader struct {
	configPath string
	envFile    string
	logger     *zap.Logger
}

// NewLoader creates a new configuration loader. configPath may be empty.
func NewLoader(configPath string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		configPath: configPath,
		envFile:    ".env",
		logger:     logger,
	}
}

// WithEnvFile sets the dotenv file read before the environment
func (l *Loader) WithEnvFile(path string) *Loader {
	l.envFile = path
	return l
}

// Load reads all sources and validates the result
func (l *Loader) Load() (*Config, error) {
	// Load environment variables
	if err := godotenv.Load(l.envFile); err != nil {
		l.logger.Warn("No .env file found, using environment variables", zap.String("path", l.envFile))
	}

	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFile(cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	l.logger.Info("Configuration loaded",
		zap.String("url", cfg.BaseURL),
		zap.Duration("timeout", cfg.Timeout),
		zap.String("log_level", cfg.LogLevel))
	return cfg, nil
}

// loadFile reads the YAML file, expanding ${VAR} references first
func (l *Loader) loadFile(cfg *Config) error {
	l.logger.Debug("Loading config file", zap.String("path", l.configPath))

	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvURL); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", EnvTimeout, err)
		}
		cfg.Timeout = timeout
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	return nil
}
