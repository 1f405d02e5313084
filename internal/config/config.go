// Package config handles configuration management for waresync.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP/WebSocket server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds Postgres configuration. The same URL serves the
// CRUD pool and the dedicated notification connection.
type DatabaseConfig struct {
	URL            string `mapstructure:"url"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// NotifyConfig holds change-notification configuration.
type NotifyConfig struct {
	Channel            string `mapstructure:"channel"`
	ReconnectAttempts  int    `mapstructure:"reconnect_attempts"`
	ReconnectBackoffMS int    `mapstructure:"reconnect_backoff_ms"`
}

// ReconnectBackoff returns the backoff as a duration.
func (n NotifyConfig) ReconnectBackoff() time.Duration {
	return time.Duration(n.ReconnectBackoffMS) * time.Millisecond
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from files and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default search paths
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.waresync")
		v.AddConfigPath("/etc/waresync")
	}

	// Environment variable prefix
	v.SetEnvPrefix("WARESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file (optional - not an error if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)

	// Database defaults
	v.SetDefault("database.url", "")
	v.SetDefault("database.migrations_path", "migrations")

	// Notify defaults
	v.SetDefault("notify.channel", "inventory_events")
	v.SetDefault("notify.reconnect_attempts", 5)
	v.SetDefault("notify.reconnect_backoff_ms", 500)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}
