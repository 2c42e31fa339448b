package ports

import (
	"context"

	"github.com/weftworks/weft/internal/domain"
)

// WorkflowEngine runs workflow graphs. Execute blocks until the run
// reaches a terminal status (or ctx ends); Run loads the workflow from
// storage first. Cancel and Status address live runs by id.
type WorkflowEngine interface {
	Execute(ctx context.Context, workflow *domain.Workflow, trigger map[string]interface{}) (*domain.Run, error)
	Run(ctx context.Context, workflowID string, trigger map[string]interface{}) (*domain.Run, error)

	// ExecuteAsync starts the run and returns its id without waiting
	// for the walk to finish. The run detaches from the caller's
	// context; ctx bounds only the preparation.
	ExecuteAsync(ctx context.Context, workflow *domain.Workflow, trigger map[string]interface{}) (string, error)

	// Cancel requests cancellation of a live run. It reports false when
	// the run is unknown or already terminal; a second call for the same
	// run reports false.
	Cancel(runID string) bool

	// Status returns a snapshot of a live run.
	Status(runID string) (*domain.Run, bool)
}
