package domain

import (
	"log/slog"
	"time"
)

func DefaultConfig() *Config {
	return &Config{
		Logger:         slog.Default(),
		Postgres:       DefaultPostgresConfig(),
		Redis:          DefaultRedisConfig(),
		Storage:        DefaultStorageConfig(),
		Cache:          DefaultCacheConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		Engine:         DefaultEngineConfig(),
		Events:         DefaultEventsConfig(),
		Journal:        DefaultJournalConfig(),
		Scheduler:      DefaultSchedulerConfig(),
	}
}

func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		MaxConns:       10,
		MinConns:       2,
		ConnectTimeout: 5 * time.Second,
	}
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		DialTimeout: 3 * time.Second,
	}
}

func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		InitTimeout: 3 * time.Second,
	}
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		DefaultTTL:      5 * time.Minute,
		MaxLocalEntries: 1024,
		JanitorInterval: time.Minute,
	}
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		OpenTimeout:      60 * time.Second,
		MaxProbes:        1,
	}
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultTimeout:     15 * time.Minute,
		RetryBackoff:       time.Second,
		MaxConcurrentNodes: 4,
		PersistAttempts:    3,
	}
}

func DefaultEventsConfig() EventsConfig {
	return EventsConfig{
		BufferSize: 256,
	}
}

func DefaultJournalConfig() JournalConfig {
	return JournalConfig{
		TTL: 7 * 24 * time.Hour,
	}
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled: true,
	}
}
