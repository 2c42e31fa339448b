package ports

import (
	"context"
	"time"

	"github.com/weftworks/weft/internal/domain"
)

// SharedCache is the distributed cache level. Values are opaque bytes;
// the manager owns encoding. Implementations back onto Redis or, when no
// Redis is configured, a process-local stand-in with the same semantics.
// Get reports the entry's remaining TTL so the local level never outlives
// the shared one.
type SharedCache interface {
	Get(ctx context.Context, key string) (value []byte, ttl time.Duration, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByTag(ctx context.Context, tag string) (int, error)

	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	CheckAndDelete(ctx context.Context, key, value string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// CacheManager is the two-level cache the rest of the system reads
// through. Lookup errors degrade to misses; only encoding failures on Set
// surface to callers.
type CacheManager interface {
	Get(ctx context.Context, key string, out interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, opts domain.CacheOptions) error
	Delete(ctx context.Context, key string) error
	InvalidateTag(ctx context.Context, tag string) error
	GetOrSet(ctx context.Context, key string, out interface{}, opts domain.CacheOptions, loader func(ctx context.Context) (interface{}, error)) (bool, error)

	AcquireLock(ctx context.Context, name string, ttl time.Duration) (*domain.Lock, error)
	ReleaseLock(ctx context.Context, lock *domain.Lock) (bool, error)

	Metrics() domain.CacheMetrics
	Close() error
}
