package domain

import (
	"log/slog"
	"time"
)

type Config struct {
	DataDir string       `json:"data_dir" yaml:"data_dir"`
	Logger  *slog.Logger `json:"-" yaml:"-"`

	Postgres       PostgresConfig       `json:"postgres" yaml:"postgres"`
	Redis          RedisConfig          `json:"redis" yaml:"redis"`
	Storage        StorageConfig        `json:"storage" yaml:"storage"`
	Cache          CacheConfig          `json:"cache" yaml:"cache"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
	Engine         EngineConfig         `json:"engine" yaml:"engine"`
	Events         EventsConfig         `json:"events" yaml:"events"`
	Journal        JournalConfig        `json:"journal" yaml:"journal"`
	Scheduler      SchedulerConfig      `json:"scheduler" yaml:"scheduler"`
}

// PostgresConfig selects the primary persistence tier. An empty URL skips
// the tier entirely.
type PostgresConfig struct {
	URL            string        `json:"url" yaml:"url"`
	MaxConns       int32         `json:"max_conns" yaml:"max_conns"`
	MinConns       int32         `json:"min_conns" yaml:"min_conns"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
}

// RedisConfig enables the shared cache level and distributed locks. An
// empty Addr keeps both in-process.
type RedisConfig struct {
	Addr        string        `json:"addr" yaml:"addr"`
	Password    string        `json:"password,omitempty" yaml:"password,omitempty"`
	DB          int           `json:"db" yaml:"db"`
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
}

type StorageConfig struct {
	InitTimeout time.Duration `json:"init_timeout" yaml:"init_timeout"`
}

type CacheConfig struct {
	DefaultTTL      time.Duration `json:"default_ttl" yaml:"default_ttl"`
	MaxLocalEntries int           `json:"max_local_entries" yaml:"max_local_entries"`
	JanitorInterval time.Duration `json:"janitor_interval" yaml:"janitor_interval"`
}

type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold" yaml:"success_threshold"`
	OpenTimeout      time.Duration `json:"open_timeout" yaml:"open_timeout"`
	MaxProbes        int           `json:"max_probes" yaml:"max_probes"`
	CallTimeout      time.Duration `json:"call_timeout" yaml:"call_timeout"`
}

type EngineConfig struct {
	DefaultTimeout     time.Duration `json:"default_timeout" yaml:"default_timeout"`
	RetryBackoff       time.Duration `json:"retry_backoff" yaml:"retry_backoff"`
	MaxConcurrentNodes int           `json:"max_concurrent_nodes" yaml:"max_concurrent_nodes"`
	PersistAttempts    int           `json:"persist_attempts" yaml:"persist_attempts"`
}

type EventsConfig struct {
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`
}

type JournalConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Path     string        `json:"path,omitempty" yaml:"path,omitempty"`
	InMemory bool          `json:"in_memory" yaml:"in_memory"`
	TTL      time.Duration `json:"ttl" yaml:"ttl"`
}

type SchedulerConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return NewValidationError("logger is required")
	}
	if c.Events.BufferSize <= 0 {
		return NewValidationError("events buffer size must be positive")
	}
	if c.CircuitBreaker.FailureThreshold <= 0 {
		return NewValidationError("circuit breaker failure threshold must be positive")
	}
	if c.CircuitBreaker.SuccessThreshold <= 0 {
		return NewValidationError("circuit breaker success threshold must be positive")
	}
	if c.CircuitBreaker.OpenTimeout <= 0 {
		return NewValidationError("circuit breaker open timeout must be positive")
	}
	if c.CircuitBreaker.MaxProbes <= 0 {
		return NewValidationError("circuit breaker max probes must be positive")
	}
	if c.Cache.MaxLocalEntries <= 0 {
		return NewValidationError("cache max local entries must be positive")
	}
	if c.Cache.DefaultTTL <= 0 {
		return NewValidationError("cache default ttl must be positive")
	}
	if c.Engine.PersistAttempts <= 0 {
		return NewValidationError("engine persist attempts must be positive")
	}
	if c.Engine.RetryBackoff < 0 {
		return NewValidationError("engine retry backoff cannot be negative")
	}
	if c.Journal.Enabled && !c.Journal.InMemory && c.Journal.Path == "" && c.DataDir == "" {
		return NewValidationError("journal requires a path or data dir")
	}
	return nil
}
