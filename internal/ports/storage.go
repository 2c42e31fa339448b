package ports

import (
	"context"

	"github.com/weftworks/weft/internal/domain"
)

// StorageTier identifies which persistence backend ended up serving the
// process. Selection happens once at startup and is visible to callers so
// they can branch on degradation instead of discovering it from failures.
type StorageTier string

const (
	TierPostgres StorageTier = "postgres"
	TierFile     StorageTier = "file"
	TierMemory   StorageTier = "memory"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// HealthStatus is a point-in-time storage report. It carries degradation
// information; it never carries an error.
type HealthStatus struct {
	Tier     StorageTier `json:"tier"`
	Healthy  bool        `json:"healthy"`
	Degraded bool        `json:"degraded"`
	Message  string      `json:"message,omitempty"`
}

// Store is the persistence contract every tier implements. Saves are
// upserts; GetExecution returns the run with its node executions; reads
// return snapshots that never alias stored state. Implementations do not
// retry internally, callers own retry policy.
type Store interface {
	SaveWorkflow(ctx context.Context, workflow *domain.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
	ListWorkflows(ctx context.Context, opts ListOptions) ([]*domain.Workflow, error)

	SaveExecution(ctx context.Context, run *domain.Run) error
	GetExecution(ctx context.Context, id string) (*domain.Run, error)
	ListExecutions(ctx context.Context, workflowID string, opts ListOptions) ([]*domain.Run, error)

	HealthCheck(ctx context.Context) HealthStatus
	Close() error
}
