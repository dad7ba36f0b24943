// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the NavyChat service.
package server

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/Tyrowin/navychat/internal/chat"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"           env:"RATE_LIMIT_BURST"`
	RefillInterval time.Duration `yaml:"refill_interval" env:"RATE_LIMIT_REFILL_INTERVAL"`
}

// ChatConfig holds the limits applied by the routing core.
type ChatConfig struct {
	MaxNameLength int    `yaml:"max_name_length" env:"MAX_NAME_LENGTH"`
	MaxTextLength int    `yaml:"max_text_length" env:"MAX_TEXT_LENGTH"`
	HistoryLimit  int    `yaml:"history_limit"   env:"HISTORY_LIMIT"`
	TimeFormat    string `yaml:"time_format"     env:"TIME_FORMAT"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string          `yaml:"port"             env:"SERVER_PORT"`
	AllowedOrigins  []string        `yaml:"allowed_origins"  env:"ALLOWED_ORIGINS" envSeparator:","`
	MaxMessageSize  int64           `yaml:"max_message_size" env:"MAX_MESSAGE_SIZE"`
	SendBufferSize  int             `yaml:"send_buffer_size" env:"SEND_BUFFER_SIZE"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	Chat            ChatConfig      `yaml:"chat"`
}

const (
	defaultPort            = ":8080"
	defaultMaxMessageSize  = 4096
	defaultSendBufferSize  = 256
	defaultShutdownTimeout = 10 * time.Second
	defaultBurst           = 5
	defaultRefillInterval  = time.Second
)

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize:  defaultMaxMessageSize,
		SendBufferSize:  defaultSendBufferSize,
		ShutdownTimeout: defaultShutdownTimeout,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: defaultRefillInterval,
		},
		Chat: ChatConfig{
			MaxNameLength: chat.DefaultMaxNameLength,
			MaxTextLength: chat.DefaultMaxTextLength,
			TimeFormat:    chat.DefaultTimeFormat,
		},
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfig builds the configuration in layers: defaults, then the YAML
// file at path when path is not empty, then environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	sanitized := sanitizeConfig(cfg)
	return &sanitized, nil
}

// sanitizeConfig replaces invalid values with defaults.
func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBufferSize
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultBurst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaultRefillInterval
	}

	if cfg.Chat.MaxNameLength <= 0 {
		cfg.Chat.MaxNameLength = chat.DefaultMaxNameLength
	}

	if cfg.Chat.MaxTextLength <= 0 {
		cfg.Chat.MaxTextLength = chat.DefaultMaxTextLength
	}

	if cfg.Chat.HistoryLimit < 0 {
		cfg.Chat.HistoryLimit = 0
	}

	if cfg.Chat.TimeFormat == "" {
		cfg.Chat.TimeFormat = chat.DefaultTimeFormat
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// chatOptions derives the core options from the configuration.
func (c Config) chatOptions() chat.Options {
	return chat.Options{
		MaxNameLength: c.Chat.MaxNameLength,
		MaxTextLength: c.Chat.MaxTextLength,
		HistoryLimit:  c.Chat.HistoryLimit,
		TimeFormat:    c.Chat.TimeFormat,
	}
}
