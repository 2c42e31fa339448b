package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/ports"
)

// Config selects which tiers the manager may probe. The shared cache is
// optional; when present it becomes a read-through companion for the
// Postgres tier only.
type Config struct {
	Postgres    domain.PostgresConfig
	DataDir     string
	InitTimeout time.Duration
	Shared      ports.SharedCache
	CacheTTL    time.Duration
}

// Manager picks a persistence tier once at startup: Postgres when it is
// configured and reachable, else the data directory when writable, else
// memory. The choice is final for the process lifetime; there is no
// mid-flight failover and no internal retrying. Callers read Tier() and
// decide what degradation means for them.
type Manager struct {
	store    ports.Store
	tier     ports.StorageTier
	intended ports.StorageTier
	logger   *slog.Logger
}

func NewManager(config Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "storage")

	initTimeout := config.InitTimeout
	if initTimeout <= 0 {
		initTimeout = 3 * time.Second
	}

	m := &Manager{logger: log, intended: intendedTier(config)}

	if config.Postgres.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		pg, err := NewPostgresStore(ctx, config.Postgres, logger)
		cancel()
		if err == nil {
			m.tier = ports.TierPostgres
			if config.Shared != nil {
				m.store = NewReadThrough(pg, config.Shared, config.CacheTTL, logger)
			} else {
				m.store = pg
			}
			log.Info("storage tier selected", "tier", m.tier)
			return m
		}
		log.Warn("postgres tier unavailable", "error", err)
	}

	if config.DataDir != "" {
		if err := probeDir(config.DataDir); err != nil {
			log.Warn("data dir not writable", "dir", config.DataDir, "error", err)
		} else if fs, err := NewFileStore(config.DataDir, logger); err != nil {
			log.Warn("file tier unavailable", "dir", config.DataDir, "error", err)
		} else {
			m.store = fs
			m.tier = ports.TierFile
			m.logTierChoice()
			return m
		}
	}

	m.store = NewMemoryStore()
	m.tier = ports.TierMemory
	m.logTierChoice()
	return m
}

func (m *Manager) logTierChoice() {
	if m.tier != m.intended {
		m.logger.Warn("storage degraded", "tier", m.tier, "intended", m.intended)
		if m.tier == ports.TierMemory {
			m.logger.Warn("in-memory storage holds nothing across restarts")
		}
		return
	}
	m.logger.Info("storage tier selected", "tier", m.tier)
}

func intendedTier(config Config) ports.StorageTier {
	switch {
	case config.Postgres.URL != "":
		return ports.TierPostgres
	case config.DataDir != "":
		return ports.TierFile
	default:
		return ports.TierMemory
	}
}

// probeDir verifies the directory exists and takes writes.
func probeDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	marker := filepath.Join(dir, ".weft-probe")
	if err := os.WriteFile(marker, []byte("ok"), 0o644); err != nil {
		return err
	}
	return os.Remove(marker)
}

// Tier reports which backend the manager settled on at startup.
func (m *Manager) Tier() ports.StorageTier {
	return m.tier
}

func (m *Manager) SaveWorkflow(ctx context.Context, workflow *domain.Workflow) error {
	return m.store.SaveWorkflow(ctx, workflow)
}

func (m *Manager) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	return m.store.GetWorkflow(ctx, id)
}

func (m *Manager) DeleteWorkflow(ctx context.Context, id string) error {
	return m.store.DeleteWorkflow(ctx, id)
}

func (m *Manager) ListWorkflows(ctx context.Context, opts ports.ListOptions) ([]*domain.Workflow, error) {
	return m.store.ListWorkflows(ctx, opts)
}

func (m *Manager) SaveExecution(ctx context.Context, run *domain.Run) error {
	return m.store.SaveExecution(ctx, run)
}

func (m *Manager) GetExecution(ctx context.Context, id string) (*domain.Run, error) {
	return m.store.GetExecution(ctx, id)
}

func (m *Manager) ListExecutions(ctx context.Context, workflowID string, opts ports.ListOptions) ([]*domain.Run, error) {
	return m.store.ListExecutions(ctx, workflowID, opts)
}

func (m *Manager) HealthCheck(ctx context.Context) ports.HealthStatus {
	status := m.store.HealthCheck(ctx)
	status.Degraded = m.tier != m.intended
	if status.Degraded && status.Message == "" {
		status.Message = fmt.Sprintf("operating on %s tier, %s was unavailable at startup", m.tier, m.intended)
	}
	return status
}

func (m *Manager) Close() error {
	return m.store.Close()
}

var _ ports.Store = (*Manager)(nil)
