package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/ports"
)

// MemoryStore is the last-resort tier and the reference implementation of
// the Store contract. Everything is copied on the way in and out so
// callers can never alias stored state.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*domain.Workflow
	runs      map[string]*domain.Run
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]*domain.Workflow),
		runs:      make(map[string]*domain.Run),
	}
}

func (s *MemoryStore) SaveWorkflow(ctx context.Context, workflow *domain.Workflow) error {
	if workflow == nil || workflow.ID == "" {
		return domain.NewValidationError("workflow id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[workflow.ID] = workflow.Clone()
	return nil
}

func (s *MemoryStore) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflow, exists := s.workflows[id]
	if !exists {
		return nil, domain.NewNotFoundError("workflow", id)
	}
	return workflow.Clone(), nil
}

func (s *MemoryStore) DeleteWorkflow(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[id]; !exists {
		return domain.NewNotFoundError("workflow", id)
	}
	delete(s.workflows, id)
	return nil
}

func (s *MemoryStore) ListWorkflows(ctx context.Context, opts ports.ListOptions) ([]*domain.Workflow, error) {
	s.mu.RLock()
	workflows := make([]*domain.Workflow, 0, len(s.workflows))
	for _, workflow := range s.workflows {
		workflows = append(workflows, workflow.Clone())
	}
	s.mu.RUnlock()

	sortWorkflows(workflows)
	return pageWorkflows(workflows, opts), nil
}

func (s *MemoryStore) SaveExecution(ctx context.Context, run *domain.Run) error {
	if run == nil || run.ID == "" {
		return domain.NewValidationError("run id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run.Clone()
	return nil
}

func (s *MemoryStore) GetExecution(ctx context.Context, id string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[id]
	if !exists {
		return nil, domain.NewNotFoundError("execution", id)
	}
	return run.Clone(), nil
}

func (s *MemoryStore) ListExecutions(ctx context.Context, workflowID string, opts ports.ListOptions) ([]*domain.Run, error) {
	s.mu.RLock()
	runs := make([]*domain.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if workflowID != "" && run.WorkflowID != workflowID {
			continue
		}
		runs = append(runs, run.Clone())
	}
	s.mu.RUnlock()

	sortRuns(runs)
	return pageRuns(runs, opts), nil
}

func (s *MemoryStore) HealthCheck(ctx context.Context) ports.HealthStatus {
	return ports.HealthStatus{
		Tier:    ports.TierMemory,
		Healthy: true,
	}
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows = make(map[string]*domain.Workflow)
	s.runs = make(map[string]*domain.Run)
	return nil
}

// sortWorkflows orders most recently updated first, ids break ties so
// listings are stable across tiers.
func sortWorkflows(workflows []*domain.Workflow) {
	sort.Slice(workflows, func(i, j int) bool {
		if !workflows[i].UpdatedAt.Equal(workflows[j].UpdatedAt) {
			return workflows[i].UpdatedAt.After(workflows[j].UpdatedAt)
		}
		return workflows[i].ID < workflows[j].ID
	})
}

// sortRuns orders newest first, ids break ties.
func sortRuns(runs []*domain.Run) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}

func pageWorkflows(workflows []*domain.Workflow, opts ports.ListOptions) []*domain.Workflow {
	if opts.Offset > 0 {
		if opts.Offset >= len(workflows) {
			return []*domain.Workflow{}
		}
		workflows = workflows[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(workflows) {
		workflows = workflows[:opts.Limit]
	}
	return workflows
}

func pageRuns(runs []*domain.Run, opts ports.ListOptions) []*domain.Run {
	if opts.Offset > 0 {
		if opts.Offset >= len(runs) {
			return []*domain.Run{}
		}
		runs = runs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(runs) {
		runs = runs[:opts.Limit]
	}
	return runs
}

var _ ports.Store = (*MemoryStore)(nil)
