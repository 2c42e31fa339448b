package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/ports"
	"github.com/weftworks/weft/internal/xjson"
)

// envelope is the shared-level value format. Tags travel with the value
// so a shared hit can repopulate the local level without losing them.
type envelope struct {
	Value xjson.RawMessage `json:"v"`
	Tags  []string         `json:"t,omitempty"`
}

// Manager layers a bounded in-process cache over the shared level. Reads
// never fail because of the cache: lookup and transport errors degrade to
// misses, leaving only Set-side encoding failures for callers to handle.
type Manager struct {
	shared ports.SharedCache
	local  *localCache
	config domain.CacheConfig
	logger *slog.Logger
	group  singleflight.Group

	hits          int64
	misses        int64
	localHits     int64
	invalidations int64

	janitorStop chan struct{}
	closeOnce   sync.Once
	closeErr    error
}

// NewManager wires the two levels together and starts the local janitor.
// The manager takes ownership of the shared cache and closes it on Close.
func NewManager(shared ports.SharedCache, config domain.CacheConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	if config.JanitorInterval <= 0 {
		config.JanitorInterval = time.Minute
	}

	m := &Manager{
		shared:      shared,
		local:       newLocalCache(config.MaxLocalEntries),
		config:      config,
		logger:      logger.With("component", "cache"),
		janitorStop: make(chan struct{}),
	}

	go m.janitor()
	return m
}

func (m *Manager) janitor() {
	ticker := time.NewTicker(m.config.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.local.sweep()
		case <-m.janitorStop:
			return
		}
	}
}

// Get decodes the cached value into out and reports whether it was found.
// Shared-level failures and corrupt entries are logged and treated as
// misses.
func (m *Manager) Get(ctx context.Context, key string, out interface{}) (bool, error) {
	if raw, ok := m.local.get(key); ok {
		if err := xjson.Unmarshal(raw, out); err == nil {
			atomic.AddInt64(&m.hits, 1)
			atomic.AddInt64(&m.localHits, 1)
			return true, nil
		}
		m.logger.Warn("corrupt local cache entry, dropping", "key", key)
		m.local.delete(key)
	}

	payload, ttl, found, err := m.shared.Get(ctx, key)
	if err != nil {
		m.logger.Warn("shared cache read failed, treating as miss", "key", key, "error", err)
		atomic.AddInt64(&m.misses, 1)
		return false, nil
	}
	if !found {
		atomic.AddInt64(&m.misses, 1)
		return false, nil
	}

	var env envelope
	if err := xjson.Unmarshal(payload, &env); err != nil {
		m.logger.Warn("corrupt shared cache entry, treating as miss", "key", key, "error", err)
		atomic.AddInt64(&m.misses, 1)
		return false, nil
	}
	if err := xjson.Unmarshal(env.Value, out); err != nil {
		m.logger.Warn("cached value does not decode, treating as miss", "key", key, "error", err)
		atomic.AddInt64(&m.misses, 1)
		return false, nil
	}

	if ttl <= 0 {
		ttl = m.config.DefaultTTL
	}
	m.local.set(key, env.Value, ttl, env.Tags)

	atomic.AddInt64(&m.hits, 1)
	return true, nil
}

// Set writes shared first and local second. A shared-level write failure
// is logged and swallowed, and the local level is skipped so it never
// holds an entry the shared level lost.
func (m *Manager) Set(ctx context.Context, key string, value interface{}, opts domain.CacheOptions) error {
	raw, err := xjson.Marshal(value)
	if err != nil {
		return domain.NewValidationError("cache value is not serializable").WithCause(err)
	}
	return m.setRaw(ctx, key, raw, opts)
}

func (m *Manager) setRaw(ctx context.Context, key string, raw []byte, opts domain.CacheOptions) error {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = m.config.DefaultTTL
	}

	payload, err := xjson.Marshal(envelope{Value: raw, Tags: opts.Tags})
	if err != nil {
		return domain.NewValidationError("cache envelope is not serializable").WithCause(err)
	}

	if err := m.shared.Set(ctx, key, payload, ttl, opts.Tags); err != nil {
		m.logger.Warn("shared cache write failed, skipping local level", "key", key, "error", err)
		return nil
	}

	m.local.set(key, raw, ttl, opts.Tags)
	return nil
}

func (m *Manager) Delete(ctx context.Context, key string) error {
	m.local.delete(key)
	return m.shared.Delete(ctx, key)
}

// InvalidateTag removes every entry carrying the tag at both levels. The
// shared level goes first so a concurrent Get cannot repopulate the local
// level from a value about to disappear.
func (m *Manager) InvalidateTag(ctx context.Context, tag string) error {
	removed, err := m.shared.DeleteByTag(ctx, tag)
	if err != nil {
		m.local.deleteByTag(tag)
		return err
	}

	local := m.local.deleteByTag(tag)
	if local > removed {
		removed = local
	}
	atomic.AddInt64(&m.invalidations, int64(removed))
	return nil
}

// GetOrSet returns the cached value when present, otherwise runs the
// loader, stores its result, and decodes it into out. Concurrent callers
// for the same key share one loader invocation. The bool reports whether
// the value came from the cache.
func (m *Manager) GetOrSet(ctx context.Context, key string, out interface{}, opts domain.CacheOptions, loader func(ctx context.Context) (interface{}, error)) (bool, error) {
	if found, err := m.Get(ctx, key, out); err != nil || found {
		return found, err
	}

	result, err, _ := m.group.Do(key, func() (interface{}, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := xjson.Marshal(value)
		if err != nil {
			return nil, domain.NewValidationError("cache value is not serializable").WithCause(err)
		}
		if err := m.setRaw(ctx, key, raw, opts); err != nil {
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		return false, err
	}

	if err := xjson.Unmarshal(result.([]byte), out); err != nil {
		return false, domain.NewValidationError("loaded value does not decode").WithCause(err)
	}
	return false, nil
}

// AcquireLock attempts a distributed lock. A lock held elsewhere is not
// an error: the caller gets (nil, nil) and decides what contention means.
func (m *Manager) AcquireLock(ctx context.Context, name string, ttl time.Duration) (*domain.Lock, error) {
	if name == "" {
		return nil, domain.NewValidationError("lock name is required")
	}
	if ttl <= 0 {
		return nil, domain.NewValidationError("lock ttl must be positive")
	}

	owner := uuid.NewString()
	acquired, err := m.shared.SetNX(ctx, domain.LockKey(name), owner, ttl)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, nil
	}

	return &domain.Lock{
		Name:       name,
		Owner:      owner,
		AcquiredAt: time.Now(),
		TTL:        ttl,
	}, nil
}

// ReleaseLock deletes the lock only while it still belongs to the caller.
// Releasing a lock that expired and was re-acquired elsewhere returns
// false without touching the new holder's entry.
func (m *Manager) ReleaseLock(ctx context.Context, lock *domain.Lock) (bool, error) {
	if lock == nil {
		return false, domain.NewValidationError("lock is required")
	}
	return m.shared.CheckAndDelete(ctx, domain.LockKey(lock.Name), lock.Owner)
}

func (m *Manager) Metrics() domain.CacheMetrics {
	return domain.CacheMetrics{
		Hits:          atomic.LoadInt64(&m.hits),
		Misses:        atomic.LoadInt64(&m.misses),
		LocalHits:     atomic.LoadInt64(&m.localHits),
		Evictions:     m.local.evicted(),
		Invalidations: atomic.LoadInt64(&m.invalidations),
	}
}

func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		close(m.janitorStop)
		m.local.clear()
		m.closeErr = m.shared.Close()
	})
	return m.closeErr
}

var _ ports.CacheManager = (*Manager)(nil)
