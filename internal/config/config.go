// Package config loads server settings from environment variables and an
// optional .env file using Viper.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

const (
	TransportMemory = "memory"
	TransportAMQP   = "amqp"
)

type Config struct {
	ServerPort        string `mapstructure:"SERVER_PORT"`
	HTTPEnabled       bool   `mapstructure:"HTTP_ENABLED"`
	LedgerPath        string `mapstructure:"LEDGER_PATH"`
	LedgerInitEmpty   bool   `mapstructure:"LEDGER_INIT_EMPTY"`
	Transport         string `mapstructure:"TRANSPORT"`
	TransportCapacity int    `mapstructure:"TRANSPORT_CAPACITY"`
	RabbitMQURL       string `mapstructure:"RABBITMQ_URL"`
	RequestQueue      string `mapstructure:"REQUEST_QUEUE"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	LogFormat         string `mapstructure:"LOG_FORMAT"`
}

var keys = []string{
	"SERVER_PORT",
	"HTTP_ENABLED",
	"LEDGER_PATH",
	"LEDGER_INIT_EMPTY",
	"TRANSPORT",
	"TRANSPORT_CAPACITY",
	"RABBITMQ_URL",
	"REQUEST_QUEUE",
	"LOG_LEVEL",
	"LOG_FORMAT",
}

// Load reads the configuration from the environment, falling back to a
// .env file in path and then to defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("HTTP_ENABLED", true)
	v.SetDefault("LEDGER_PATH", "DataBase.csv")
	v.SetDefault("LEDGER_INIT_EMPTY", false)
	v.SetDefault("TRANSPORT", TransportMemory)
	v.SetDefault("TRANSPORT_CAPACITY", 16)
	v.SetDefault("REQUEST_QUEUE", "atm.requests")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Transport {
	case TransportMemory:
	case TransportAMQP:
		if c.RabbitMQURL == "" {
			return fmt.Errorf("RABBITMQ_URL is required when TRANSPORT=%s", TransportAMQP)
		}
	default:
		return fmt.Errorf("unknown TRANSPORT %q", c.Transport)
	}

	if c.TransportCapacity < 1 {
		return fmt.Errorf("TRANSPORT_CAPACITY must be at least 1, got %d", c.TransportCapacity)
	}
	if c.LedgerPath == "" {
		return fmt.Errorf("LEDGER_PATH must not be empty")
	}
	return nil
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
