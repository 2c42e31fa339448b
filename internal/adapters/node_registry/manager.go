package node_registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/ports"
)

// Manager is the in-process capability registry. Lookups happen on every
// node execution, so reads take the cheap path.
type Manager struct {
	mu           sync.RWMutex
	capabilities map[string]ports.Capability
	logger       *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		capabilities: make(map[string]ports.Capability),
		logger:       logger.With("component", "node-registry"),
	}
}

func (m *Manager) Register(nodeType string, capability ports.Capability) error {
	if nodeType == "" {
		return domain.NewValidationError("node type cannot be empty")
	}
	if capability == nil {
		return domain.NewValidationError("capability cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.capabilities[nodeType]; exists {
		m.logger.Debug("registration rejected, type already registered", "node_type", nodeType)
		return domain.NewConflictError(fmt.Sprintf("capability already registered: %s", nodeType), nil)
	}

	m.capabilities[nodeType] = capability
	m.logger.Debug("capability registered", "node_type", nodeType, "total", len(m.capabilities))
	return nil
}

func (m *Manager) Unregister(nodeType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.capabilities[nodeType]; !exists {
		return domain.NewNotFoundError("capability", nodeType)
	}

	delete(m.capabilities, nodeType)
	m.logger.Debug("capability unregistered", "node_type", nodeType)
	return nil
}

func (m *Manager) Resolve(nodeType string) (ports.Capability, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	capability, exists := m.capabilities[nodeType]
	if !exists {
		return nil, domain.NewNotFoundError("capability", nodeType)
	}
	return capability, nil
}

func (m *Manager) Types() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make([]string, 0, len(m.capabilities))
	for t := range m.capabilities {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

var _ ports.NodeRegistry = (*Manager)(nil)
