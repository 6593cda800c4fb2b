// Package config provides configuration management for the runtime
// server. It supports loading from environment variables, a config
// file, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/SWE-agent/SWE-ReX/internal/common/logger"
	"github.com/SWE-agent/SWE-ReX/internal/runtime/bash"
)

// Config holds all configuration sections for the runtime server.
type Config struct {
	Server  ServerConfig         `mapstructure:"server"`
	Auth    AuthConfig           `mapstructure:"auth"`
	Session SessionConfig        `mapstructure:"session"`
	Logging logger.LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration. Read and write bodies
// are unbounded on purpose: command responses stay open for as long as
// the command runs.
type ServerConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	ReadHeaderTimeout int    `mapstructure:"readHeaderTimeout"` // in seconds
}

// Addr returns the listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ReadHeaderTimeoutDuration returns the header read timeout as a
// time.Duration.
func (s *ServerConfig) ReadHeaderTimeoutDuration() time.Duration {
	return time.Duration(s.ReadHeaderTimeout) * time.Second
}

// AuthConfig holds API key authentication configuration. An empty key
// disables authentication.
type AuthConfig struct {
	APIKey string `mapstructure:"apiKey"`
}

// SessionConfig holds the per-session defaults applied to every new
// bash session.
type SessionConfig struct {
	Shell          string  `mapstructure:"shell"`
	WorkDir        string  `mapstructure:"workDir"`
	DefaultTimeout float64 `mapstructure:"defaultTimeout"` // in seconds
	StartupTimeout float64 `mapstructure:"startupTimeout"` // in seconds
	Cols           int     `mapstructure:"cols"`
	Rows           int     `mapstructure:"rows"`
}

// BashConfig overlays the configured values on the engine defaults.
func (c *SessionConfig) BashConfig() bash.Config {
	cfg := bash.DefaultConfig()
	if c.Shell != "" {
		cfg.Shell = c.Shell
	}
	cfg.WorkDir = c.WorkDir
	if c.DefaultTimeout > 0 {
		cfg.DefaultTimeout = time.Duration(c.DefaultTimeout * float64(time.Second))
	}
	if c.StartupTimeout > 0 {
		cfg.StartupTimeout = time.Duration(c.StartupTimeout * float64(time.Second))
	}
	if c.Cols > 0 {
		cfg.Cols = c.Cols
	}
	if c.Rows > 0 {
		cfg.Rows = c.Rows
	}
	return cfg
}

// detectDefaultLogFormat returns the appropriate log format based on
// environment: JSON under Kubernetes or explicit production settings,
// human-readable console output otherwise.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("SWEREX_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "console"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8880)
	v.SetDefault("server.readHeaderTimeout", 10)

	// Auth defaults - empty key disables authentication
	v.SetDefault("auth.apiKey", "")

	// Session defaults
	v.SetDefault("session.shell", "/bin/bash")
	v.SetDefault("session.workDir", "")
	v.SetDefault("session.defaultTimeout", 30)
	v.SetDefault("session.startupTimeout", 10)
	v.SetDefault("session.cols", 80)
	v.SetDefault("session.rows", 24)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.output_path", "stdout")
}

// Load reads configuration from environment variables, config file,
// and defaults. Environment variables use the prefix SWEREX_ with
// snake_case naming.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default
// locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SWEREX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not convert camelCase config keys to
	// SNAKE_CASE, so keys where the two differ are bound explicitly.
	// The unprefixed SWE_REX_API_KEY name is part of the wire contract
	// with existing clients.
	_ = v.BindEnv("auth.apiKey", "SWE_REX_API_KEY", "SWEREX_AUTH_API_KEY")
	_ = v.BindEnv("server.readHeaderTimeout", "SWEREX_SERVER_READ_HEADER_TIMEOUT")
	_ = v.BindEnv("session.workDir", "SWEREX_SESSION_WORK_DIR")
	_ = v.BindEnv("session.defaultTimeout", "SWEREX_SESSION_DEFAULT_TIMEOUT")
	_ = v.BindEnv("session.startupTimeout", "SWEREX_SESSION_STARTUP_TIMEOUT")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/swerex/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all configuration fields hold usable values.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Session.Shell == "" {
		errs = append(errs, "session.shell must not be empty")
	}
	if cfg.Session.DefaultTimeout <= 0 {
		errs = append(errs, "session.defaultTimeout must be positive")
	}
	if cfg.Session.StartupTimeout <= 0 {
		errs = append(errs, "session.startupTimeout must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, console")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
