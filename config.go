package weft

import (
	"log/slog"
	"time"

	"github.com/weftworks/weft/internal/domain"
)

// Config is the full system configuration. Zero values fall back to the
// defaults; DefaultConfig returns a copy to adjust.
type Config = domain.Config

type PostgresConfig = domain.PostgresConfig

type RedisConfig = domain.RedisConfig

type StorageConfig = domain.StorageConfig

type CacheConfig = domain.CacheConfig

type CircuitBreakerConfig = domain.CircuitBreakerConfig

type EngineConfig = domain.EngineConfig

type EventsConfig = domain.EventsConfig

type JournalConfig = domain.JournalConfig

type SchedulerConfig = domain.SchedulerConfig

func DefaultConfig() *Config {
	return domain.DefaultConfig()
}

// Option adjusts one part of the default configuration for New.
type Option func(*Config)

// WithLogger routes all component logging through the given logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithDataDir sets the directory for the file storage tier and the event
// journal. Without it (and without Postgres) state lives in memory only.
func WithDataDir(dir string) Option {
	return func(c *Config) {
		c.DataDir = dir
	}
}

// WithPostgres selects Postgres as the primary storage tier. When the
// database is unreachable at startup the system degrades to the file or
// memory tier and reports it through Health.
func WithPostgres(url string) Option {
	return func(c *Config) {
		c.Postgres.URL = url
	}
}

// WithRedis backs the shared cache level and distributed locks with
// Redis. Unlike Postgres this does not degrade: an unreachable Redis
// fails construction.
func WithRedis(addr string) Option {
	return func(c *Config) {
		c.Redis.Addr = addr
	}
}

// WithJournal persists lifecycle events for ExecutionHistory. The
// journal lives under the data dir unless a path is set on the config.
func WithJournal() Option {
	return func(c *Config) {
		c.Journal.Enabled = true
	}
}

// WithInMemoryJournal keeps the event journal in memory. History is lost
// on restart; useful for tests and ephemeral deployments.
func WithInMemoryJournal() Option {
	return func(c *Config) {
		c.Journal.Enabled = true
		c.Journal.InMemory = true
	}
}

// WithoutScheduler drops the cron scheduler for hosts that trigger every
// execution themselves.
func WithoutScheduler() Option {
	return func(c *Config) {
		c.Scheduler.Enabled = false
	}
}

// WithDefaultTimeout bounds runs whose workflows set no timeout of their
// own. Zero disables the default bound.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Engine.DefaultTimeout = timeout
	}
}

// WithEventBufferSize sets the per-subscriber event queue length. A
// subscriber that falls further behind than this starts losing events.
func WithEventBufferSize(size int) Option {
	return func(c *Config) {
		c.Events.BufferSize = size
	}
}

// WithCacheTTL sets how long cached workflow reads live when no explicit
// TTL is given.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.Cache.DefaultTTL = ttl
	}
}
