package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/weftworks/weft/internal/adapters/advisor"
	"github.com/weftworks/weft/internal/adapters/cache"
	"github.com/weftworks/weft/internal/adapters/circuit_breaker"
	"github.com/weftworks/weft/internal/adapters/engine"
	"github.com/weftworks/weft/internal/adapters/events"
	"github.com/weftworks/weft/internal/adapters/node_registry"
	"github.com/weftworks/weft/internal/adapters/scheduler"
	"github.com/weftworks/weft/internal/adapters/storage"
	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/ports"
)

// Manager assembles the adapters into one application surface: workflow
// CRUD with cache-aware reads, execution control, lifecycle events,
// scheduling, and health. Everything is constructor-injected; a Manager
// holds no global state.
type Manager struct {
	config *domain.Config
	logger *slog.Logger

	store     *storage.Manager
	cache     ports.CacheManager
	breakers  ports.CircuitBreakerProvider
	events    ports.EventManager
	journal   ports.EventJournal
	unfollow  func()
	registry  ports.NodeRegistry
	engine    ports.WorkflowEngine
	scheduler ports.Scheduler

	startedAt time.Time

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewWithConfig wires the system in dependency order: storage, cache,
// breakers, events (and journal when enabled), registry, advisor, engine,
// scheduler. A nil config gets the defaults. Redis and Postgres behave
// differently on failure: an unreachable Postgres degrades storage down
// the tier ladder, while an unreachable Redis is a construction error
// because distributed locks and cross-process invalidation cannot be
// emulated locally without splitting state between instances.
func NewWithConfig(config *domain.Config) (*Manager, error) {
	if config == nil {
		config = domain.DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger

	var shared ports.SharedCache
	if config.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCache(config.Redis, logger)
		if err != nil {
			return nil, err
		}
		shared = redisCache
	} else {
		shared = cache.NewMemoryShared()
	}

	cacheManager := cache.NewManager(shared, config.Cache, logger)

	store := storage.NewManager(storage.Config{
		Postgres:    config.Postgres,
		DataDir:     config.DataDir,
		InitTimeout: config.Storage.InitTimeout,
		Shared:      shared,
		CacheTTL:    config.Cache.DefaultTTL,
	}, logger)

	breakers := circuit_breaker.NewProvider(config.CircuitBreaker, logger)
	eventManager := events.NewManager(config.Events, logger)
	registry := node_registry.NewManager(logger)

	m := &Manager{
		config:    config,
		logger:    logger.With("component", "weft"),
		store:     store,
		cache:     cacheManager,
		breakers:  breakers,
		events:    eventManager,
		registry:  registry,
		startedAt: time.Now().UTC(),
	}

	if config.Journal.Enabled {
		journal, err := events.NewJournal(config.Journal, config.DataDir, logger)
		if err != nil {
			_ = eventManager.Close()
			_ = cacheManager.Close()
			_ = store.Close()
			return nil, err
		}
		m.journal = journal
		m.unfollow = journal.Follow(eventManager)
	}

	m.engine = engine.NewEngine(store, eventManager, registry,
		advisor.NewStatic(registry, logger), breakers, config.Engine, logger)

	if config.Scheduler.Enabled {
		m.scheduler = scheduler.NewCron(m.engine, logger)
	}

	m.logger.Info("manager assembled",
		"storage_tier", store.Tier(),
		"journal", config.Journal.Enabled,
		"scheduler", config.Scheduler.Enabled,
	)
	return m, nil
}

// Start brings up the background pieces, currently the cron scheduler.
// Workflows can be registered, saved, and executed before Start; only
// scheduled triggers need it. Start is idempotent.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return domain.ErrClosed
	}
	if m.started {
		return nil
	}
	m.started = true
	m.startedAt = time.Now().UTC()

	if m.scheduler != nil {
		m.scheduler.Start()
	}

	status := m.store.HealthCheck(ctx)
	if status.Degraded {
		m.logger.Warn("started degraded", "tier", status.Tier, "message", status.Message)
	} else {
		m.logger.Info("started", "tier", status.Tier)
	}
	return nil
}

// Stop shuts everything down in reverse dependency order. Live runs are
// not interrupted here; cancel them first if that matters. Stop is
// idempotent.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.scheduler != nil {
		m.scheduler.Stop()
	}
	if m.unfollow != nil {
		m.unfollow()
	}

	var errs []error
	if err := m.events.Close(); err != nil {
		errs = append(errs, err)
	}
	if m.journal != nil {
		if err := m.journal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.cache.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := m.store.Close(); err != nil {
		errs = append(errs, err)
	}

	m.logger.Info("manager stopped")
	return errors.Join(errs...)
}

// RegisterCapability binds a node type to its implementation. Node types
// already registered are rejected with a conflict error.
func (m *Manager) RegisterCapability(nodeType string, capability ports.Capability) error {
	return m.registry.Register(nodeType, capability)
}

func (m *Manager) UnregisterCapability(nodeType string) error {
	return m.registry.Unregister(nodeType)
}

// Capabilities lists the registered node types, sorted.
func (m *Manager) Capabilities() []string {
	return m.registry.Types()
}

// SaveWorkflow validates and upserts the definition, stamping CreatedAt
// on first save and UpdatedAt always, then drops every cached view of the
// workflow so the next read sees this version.
func (m *Manager) SaveWorkflow(ctx context.Context, workflow *domain.Workflow) error {
	if workflow == nil {
		return domain.NewValidationError("workflow is required")
	}
	if err := workflow.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}
	workflow.UpdatedAt = now

	if err := m.store.SaveWorkflow(ctx, workflow); err != nil {
		return err
	}
	m.invalidateWorkflow(ctx, workflow.ID)
	return nil
}

// GetWorkflow reads through the two-level cache; misses load from storage
// and populate the cache tagged for invalidation on the next save.
func (m *Manager) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	if id == "" {
		return nil, domain.NewValidationError("workflow id is required")
	}

	var workflow domain.Workflow
	opts := domain.CacheOptions{Tags: []string{domain.WorkflowTag(id)}}
	_, err := m.cache.GetOrSet(ctx, domain.WorkflowKey(id), &workflow, opts,
		func(ctx context.Context) (interface{}, error) {
			return m.store.GetWorkflow(ctx, id)
		})
	if err != nil {
		return nil, err
	}
	return &workflow, nil
}

// DeleteWorkflow removes the definition, its schedule, and its cached
// views. Runs already recorded for it are kept.
func (m *Manager) DeleteWorkflow(ctx context.Context, id string) error {
	if id == "" {
		return domain.NewValidationError("workflow id is required")
	}

	if m.scheduler != nil {
		m.scheduler.Unschedule(id)
	}
	if err := m.store.DeleteWorkflow(ctx, id); err != nil {
		return err
	}
	m.invalidateWorkflow(ctx, id)
	return nil
}

func (m *Manager) ListWorkflows(ctx context.Context, opts ports.ListOptions) ([]*domain.Workflow, error) {
	return m.store.ListWorkflows(ctx, opts)
}

func (m *Manager) invalidateWorkflow(ctx context.Context, id string) {
	if err := m.cache.InvalidateTag(ctx, domain.WorkflowTag(id)); err != nil {
		m.logger.Warn("workflow cache invalidation failed", "workflow_id", id, "error", err)
	}
}

// ExecuteWorkflow runs the stored workflow and blocks until the run
// reaches a terminal status. The run outcome is on the returned record;
// the error covers failures to start.
func (m *Manager) ExecuteWorkflow(ctx context.Context, workflowID string, trigger map[string]interface{}) (*domain.Run, error) {
	workflow, err := m.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return m.engine.Execute(ctx, workflow, trigger)
}

// ExecuteWorkflowAsync starts the run in the background and returns its
// id. The run detaches from ctx; watch it through events, GetExecution,
// or CancelExecution.
func (m *Manager) ExecuteWorkflowAsync(ctx context.Context, workflowID string, trigger map[string]interface{}) (string, error) {
	workflow, err := m.GetWorkflow(ctx, workflowID)
	if err != nil {
		return "", err
	}
	return m.engine.ExecuteAsync(ctx, workflow, trigger)
}

// CancelExecution requests cancellation of a live run. False means the
// run is unknown or already terminal.
func (m *Manager) CancelExecution(runID string) bool {
	return m.engine.Cancel(runID)
}

// GetExecution returns the run record: a live snapshot while the run is
// in flight, the stored record afterwards.
func (m *Manager) GetExecution(ctx context.Context, runID string) (*domain.Run, error) {
	if runID == "" {
		return nil, domain.NewValidationError("run id is required")
	}
	if run, ok := m.engine.Status(runID); ok {
		return run, nil
	}
	return m.store.GetExecution(ctx, runID)
}

func (m *Manager) ListExecutions(ctx context.Context, workflowID string, opts ports.ListOptions) ([]*domain.Run, error) {
	return m.store.ListExecutions(ctx, workflowID, opts)
}

// ExecutionHistory replays a run's journaled events in sequence order.
// It needs the journal enabled in config.
func (m *Manager) ExecutionHistory(ctx context.Context, runID string) ([]domain.EventRecord, error) {
	if m.journal == nil {
		return nil, domain.NewValidationError("event journal is not enabled")
	}
	return m.journal.History(ctx, runID)
}

// Subscribe returns an ordered event channel filtered by name (no names
// subscribes to everything) and a cancel func.
func (m *Manager) Subscribe(names ...string) (<-chan domain.Event, func()) {
	return m.events.Subscribe(names...)
}

func (m *Manager) OnExecutionStarted(handler func(domain.ExecutionStartedEvent)) error {
	return m.events.OnExecutionStarted(handler)
}

func (m *Manager) OnNodeStarted(handler func(domain.NodeStartedEvent)) error {
	return m.events.OnNodeStarted(handler)
}

func (m *Manager) OnNodeCompleted(handler func(domain.NodeCompletedEvent)) error {
	return m.events.OnNodeCompleted(handler)
}

func (m *Manager) OnNodeError(handler func(domain.NodeErrorEvent)) error {
	return m.events.OnNodeError(handler)
}

func (m *Manager) OnNodeErrorHelp(handler func(domain.NodeErrorHelpEvent)) error {
	return m.events.OnNodeErrorHelp(handler)
}

func (m *Manager) OnExecutionCompleted(handler func(domain.ExecutionCompletedEvent)) error {
	return m.events.OnExecutionCompleted(handler)
}

func (m *Manager) OnExecutionFailed(handler func(domain.ExecutionFailedEvent)) error {
	return m.events.OnExecutionFailed(handler)
}

func (m *Manager) OnExecutionCancelled(handler func(domain.ExecutionCancelledEvent)) error {
	return m.events.OnExecutionCancelled(handler)
}

// DroppedEvents counts events dropped on full subscriber queues since the
// manager came up.
func (m *Manager) DroppedEvents() int64 {
	return m.events.Dropped()
}

// ScheduleWorkflow registers the stored workflow's cron expression with
// the scheduler; each tick starts an execution. Scheduling again after a
// save picks up the new expression.
func (m *Manager) ScheduleWorkflow(ctx context.Context, workflowID string) error {
	if m.scheduler == nil {
		return domain.NewValidationError("scheduler is disabled")
	}
	workflow, err := m.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	return m.scheduler.Schedule(workflow)
}

func (m *Manager) UnscheduleWorkflow(workflowID string) bool {
	if m.scheduler == nil {
		return false
	}
	return m.scheduler.Unschedule(workflowID)
}

// ScheduledWorkflows lists the workflow ids with an active schedule.
func (m *Manager) ScheduledWorkflows() []string {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Scheduled()
}

// AcquireLock takes a named distributed lock (Redis-backed when
// configured). A lock held elsewhere returns (nil, nil).
func (m *Manager) AcquireLock(ctx context.Context, name string, ttl time.Duration) (*domain.Lock, error) {
	return m.cache.AcquireLock(ctx, name, ttl)
}

// ReleaseLock releases a held lock. False means the lock expired or was
// taken over in the meantime.
func (m *Manager) ReleaseLock(ctx context.Context, lock *domain.Lock) (bool, error) {
	return m.cache.ReleaseLock(ctx, lock)
}

// Health reports the state of every subsystem. Healthy means the storage
// tier answers and no circuit breaker is open.
func (m *Manager) Health(ctx context.Context) ports.SystemHealth {
	storageStatus := m.store.HealthCheck(ctx)

	breakerMetrics := m.breakers.AllMetrics()
	healthy := storageStatus.Healthy
	for _, metrics := range breakerMetrics {
		if metrics.State == ports.StateOpen {
			healthy = false
		}
	}

	return ports.SystemHealth{
		Healthy:  healthy,
		Storage:  storageStatus,
		Breakers: breakerMetrics,
		Cache:    m.cache.Metrics(),
		Uptime:   time.Since(m.startedAt),
	}
}

// StorageTier reports which persistence backend the process settled on.
func (m *Manager) StorageTier() ports.StorageTier {
	return m.store.Tier()
}
