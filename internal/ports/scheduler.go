package ports

import "github.com/weftworks/weft/internal/domain"

// Scheduler fires workflow executions on cron expressions. One entry per
// workflow; scheduling again replaces the previous entry.
type Scheduler interface {
	Schedule(workflow *domain.Workflow) error
	Unschedule(workflowID string) bool
	Scheduled() []string
	Start()
	Stop()
}
