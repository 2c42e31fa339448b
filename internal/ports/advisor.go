package ports

import (
	"context"

	"github.com/weftworks/weft/internal/domain"
)

// Advisor inspects workflows before execution and errors after them.
// Every call is best effort: the engine logs advisor failures and moves
// on, it never fails a run because advice was unavailable.
type Advisor interface {
	Analyze(ctx context.Context, workflow *domain.Workflow) (*domain.AnalysisReport, error)
	Optimize(ctx context.Context, workflow *domain.Workflow, report *domain.AnalysisReport) (*domain.Workflow, error)
	HelpWithError(ctx context.Context, node domain.Node, execErr error) (string, error)
}
