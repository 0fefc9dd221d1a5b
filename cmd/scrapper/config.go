package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/strategy/web"
	"github.com/rahulsharmaah/content-scrapper/throttle"
)

// Config is the process configuration loaded from config.yaml and
// SCRAPPER_* environment variables.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Store      StoreConfig      `mapstructure:"store"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Strategies StrategiesConfig `mapstructure:"strategies"`
	Throttle   []ThrottleConfig `mapstructure:"throttle"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig selects the job store backend: memory, postgres, sqlite or
// mongo.
type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Database string `mapstructure:"database"`
}

// QueueConfig selects the broker: memory or redis. DedupIndex is "store"
// or "redis".
type QueueConfig struct {
	Driver     string `mapstructure:"driver"`
	URL        string `mapstructure:"url"`
	Prefix     string `mapstructure:"prefix"`
	DedupIndex string `mapstructure:"dedup_index"`
}

// EngineConfig mirrors scrapper.Config.
type EngineConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	DedupTTL          time.Duration `mapstructure:"dedup_ttl"`
	DedupOrphanGrace  time.Duration `mapstructure:"dedup_orphan_grace"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	SweepBatch        int           `mapstructure:"sweep_batch"`
	ThrottleDelay     time.Duration `mapstructure:"throttle_delay"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	InfraRetries      int           `mapstructure:"infra_retries"`
}

// StrategiesConfig configures the built-in web strategies.
type StrategiesConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

// ThrottleConfig is the politeness budget of one host. An empty host is
// the default for unlisted hosts.
type ThrottleConfig struct {
	Host           string  `mapstructure:"host"`
	MaxConcurrency int     `mapstructure:"max_concurrency"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateBurst      int     `mapstructure:"rate_burst"`
}

func setDefaults(v *viper.Viper) {
	d := scrapper.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.database", "scrapper")

	v.SetDefault("queue.driver", "memory")
	v.SetDefault("queue.url", "redis://localhost:6379/0")
	v.SetDefault("queue.prefix", "scrapper:")
	v.SetDefault("queue.dedup_index", "store")

	v.SetDefault("engine.concurrency", d.Concurrency)
	v.SetDefault("engine.max_attempts", d.MaxAttempts)
	v.SetDefault("engine.backoff_base", d.BackoffBase)
	v.SetDefault("engine.backoff_max", d.BackoffMax)
	v.SetDefault("engine.visibility_timeout", d.VisibilityTimeout)
	v.SetDefault("engine.fetch_timeout", d.FetchTimeout)
	v.SetDefault("engine.dedup_ttl", d.DedupTTL)
	v.SetDefault("engine.dedup_orphan_grace", d.DedupOrphanGrace)
	v.SetDefault("engine.poll_interval", d.PollInterval)
	v.SetDefault("engine.sweep_interval", d.SweepInterval)
	v.SetDefault("engine.sweep_batch", d.SweepBatch)
	v.SetDefault("engine.throttle_delay", d.ThrottleDelay)
	v.SetDefault("engine.shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("engine.infra_retries", d.InfraRetries)

	v.SetDefault("strategies.user_agent", web.DefaultUserAgent)
	v.SetDefault("strategies.request_timeout", 30*time.Second)
	v.SetDefault("strategies.max_body_bytes", 10<<20)
}

// LoadConfig reads path, or config.yaml from the working directory,
// /etc/scrapper and $HOME/.scrapper when path is empty. A missing search
// path file is not an error. SCRAPPER_* variables override both, with "."
// replaced by "_" (SCRAPPER_STORE_DRIVER).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SCRAPPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/scrapper")
		v.AddConfigPath("$HOME/.scrapper")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks driver names and the engine settings.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "postgres", "sqlite", "mongo":
	default:
		return fmt.Errorf("%w: unknown store driver %q", scrapper.ErrInvalidConfig, c.Store.Driver)
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		return fmt.Errorf("%w: store.dsn is required for %s", scrapper.ErrInvalidConfig, c.Store.Driver)
	}
	switch c.Queue.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("%w: unknown queue driver %q", scrapper.ErrInvalidConfig, c.Queue.Driver)
	}
	switch c.Queue.DedupIndex {
	case "store":
	case "redis":
		if c.Queue.Driver != "redis" {
			return fmt.Errorf("%w: queue.dedup_index redis requires queue.driver redis", scrapper.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown dedup index %q", scrapper.ErrInvalidConfig, c.Queue.DedupIndex)
	}
	return c.EngineConfig().Validate()
}

// EngineConfig converts the engine section to scrapper.Config.
func (c *Config) EngineConfig() scrapper.Config {
	e := c.Engine
	return scrapper.Config{
		Concurrency:       e.Concurrency,
		MaxAttempts:       e.MaxAttempts,
		BackoffBase:       e.BackoffBase,
		BackoffMax:        e.BackoffMax,
		VisibilityTimeout: e.VisibilityTimeout,
		FetchTimeout:      e.FetchTimeout,
		DedupTTL:          e.DedupTTL,
		DedupOrphanGrace:  e.DedupOrphanGrace,
		PollInterval:      e.PollInterval,
		SweepInterval:     e.SweepInterval,
		SweepBatch:        e.SweepBatch,
		ThrottleDelay:     e.ThrottleDelay,
		ShutdownTimeout:   e.ShutdownTimeout,
		InfraRetries:      e.InfraRetries,
	}
}

// ThrottleLimits converts the throttle section.
func (c *Config) ThrottleLimits() []throttle.Limit {
	limits := make([]throttle.Limit, 0, len(c.Throttle))
	for _, t := range c.Throttle {
		limits = append(limits, throttle.Limit{
			Host:           t.Host,
			MaxConcurrency: t.MaxConcurrency,
			RateLimit:      t.RateLimit,
			RateBurst:      t.RateBurst,
		})
	}
	return limits
}
