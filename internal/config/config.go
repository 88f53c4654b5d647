// Package config loads sagad settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/alekseev-bro/sagas/pkg/qos"
	"github.com/alekseev-bro/sagas/pkg/retry"
)

type Backend string

const (
	BackendNATS   Backend = "nats"
	BackendRedis  Backend = "redis"
	BackendMemory Backend = "memory"
)

type Config struct {
	NATSURL       string        `env:"SAGAS_NATS_URL"        envDefault:"nats://127.0.0.1:4222"`
	Backend       Backend       `env:"SAGAS_STORE"           envDefault:"nats"`
	RedisAddr     string        `env:"SAGAS_REDIS_ADDR"      envDefault:"127.0.0.1:6379"`
	Bucket        string        `env:"SAGAS_BUCKET"          envDefault:"sagas"`
	EventStreams  []string      `env:"SAGAS_EVENT_STREAMS"   envDefault:"orders,inventory,payments,shipping" envSeparator:","`
	CommandStream string        `env:"SAGAS_COMMAND_STREAM"  envDefault:"commands"`
	Durable       string        `env:"SAGAS_DURABLE"         envDefault:"sagad"`
	Batch         int           `env:"SAGAS_BATCH"           envDefault:"64"`
	Attempts      int           `env:"SAGAS_RETRY_ATTEMPTS"  envDefault:"5"`
	RetryInitial  time.Duration `env:"SAGAS_RETRY_INITIAL"   envDefault:"10ms"`
	RetryMax      time.Duration `env:"SAGAS_RETRY_MAX"       envDefault:"1s"`
	Concurrent    bool          `env:"SAGAS_CONCURRENT"`
	InMemory      bool          `env:"SAGAS_IN_MEMORY"`
	LogLevel      slog.Level    `env:"SAGAS_LOG_LEVEL"       envDefault:"info"`
}

// Load reads Config from the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads Config from the given variables only.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Backend {
	case BackendNATS, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Backend)
	}
	if len(c.EventStreams) == 0 {
		return fmt.Errorf("no event streams configured")
	}
	if c.Batch <= 0 {
		return fmt.Errorf("batch must be positive, got %d", c.Batch)
	}
	if c.Attempts <= 0 {
		return fmt.Errorf("retry attempts must be positive, got %d", c.Attempts)
	}
	if c.RetryMax < c.RetryInitial {
		return fmt.Errorf("retry max %s below initial %s", c.RetryMax, c.RetryInitial)
	}
	return nil
}

func (c Config) RetryPolicy() retry.Policy {
	return retry.Exponential(c.Attempts, c.RetryInitial, c.RetryMax)
}

func (c Config) Ordering() qos.Ordering {
	if c.Concurrent {
		return qos.Unordered
	}
	return qos.Ordered
}
