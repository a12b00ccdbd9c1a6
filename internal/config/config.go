package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ReadLimit        int64         `mapstructure:"read_limit"`
	SendQueueSize    int           `mapstructure:"send_queue_size"`
	EventQueueSize   int           `mapstructure:"event_queue_size"`
	QuickAttempts    int           `mapstructure:"quick_attempts"`
	FullAttempts     int           `mapstructure:"full_attempts"`
	BackoffBase      time.Duration `mapstructure:"backoff_base"`
	BackoffMax       time.Duration `mapstructure:"backoff_max"`
	NegotiateTimeout time.Duration `mapstructure:"negotiate_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
}

// Load reads optional yaml config pointed to by ROOMKIT_CONFIG and fills
// the rest from defaults. A missing file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("write_timeout", "5s")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("send_queue_size", 32)
	v.SetDefault("event_queue_size", 256)
	v.SetDefault("quick_attempts", 1)
	v.SetDefault("full_attempts", 3)
	v.SetDefault("backoff_base", "300ms")
	v.SetDefault("backoff_max", "7s")
	v.SetDefault("negotiate_timeout", "10s")
	v.SetDefault("ping_interval", "15s")

	if path := os.Getenv("ROOMKIT_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration without touching the
// environment or the filesystem.
func Default() *Config {
	return &Config{
		WriteTimeout:     5 * time.Second,
		ReadLimit:        32768,
		SendQueueSize:    32,
		EventQueueSize:   256,
		QuickAttempts:    1,
		FullAttempts:     3,
		BackoffBase:      300 * time.Millisecond,
		BackoffMax:       7 * time.Second,
		NegotiateTimeout: 10 * time.Second,
		PingInterval:     15 * time.Second,
	}
}
