package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/ports"
)

// Cron fires workflow executions on cron expressions. One entry per
// workflow; expressions come from Settings.Schedule or, failing that,
// the first trigger node's data["cron"]. Each tick loads the workflow
// fresh through the engine, so edits between ticks take effect.
type Cron struct {
	engine ports.WorkflowEngine
	runner *cronlib.Cron
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]cronlib.EntryID
}

func NewCron(engine ports.WorkflowEngine, logger *slog.Logger) *Cron {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cron{
		engine:  engine,
		runner:  cronlib.New(),
		logger:  logger.With("component", "scheduler"),
		entries: make(map[string]cronlib.EntryID),
	}
}

func (c *Cron) Schedule(workflow *domain.Workflow) error {
	if workflow == nil || workflow.ID == "" {
		return domain.NewValidationError("workflow with an id is required")
	}

	expr := cronExpression(workflow)
	if expr == "" {
		return domain.NewValidationError(fmt.Sprintf("workflow %s has no schedule expression", workflow.ID))
	}

	workflowID := workflow.ID

	c.mu.Lock()
	defer c.mu.Unlock()

	entryID, err := c.runner.AddFunc(expr, func() { c.fire(workflowID) })
	if err != nil {
		return domain.NewValidationError(fmt.Sprintf("invalid cron expression %q", expr)).WithCause(err)
	}

	if previous, exists := c.entries[workflowID]; exists {
		c.runner.Remove(previous)
	}
	c.entries[workflowID] = entryID

	c.logger.Info("workflow scheduled", "workflow_id", workflowID, "expression", expr)
	return nil
}

func (c *Cron) Unschedule(workflowID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entryID, exists := c.entries[workflowID]
	if !exists {
		return false
	}
	c.runner.Remove(entryID)
	delete(c.entries, workflowID)

	c.logger.Info("workflow unscheduled", "workflow_id", workflowID)
	return true
}

func (c *Cron) Scheduled() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Cron) Start() {
	c.runner.Start()
	c.logger.Info("scheduler started")
}

// Stop halts the tick loop and waits for in-flight fires to finish.
func (c *Cron) Stop() {
	<-c.runner.Stop().Done()
	c.logger.Info("scheduler stopped")
}

func (c *Cron) fire(workflowID string) {
	trigger := map[string]interface{}{
		"source":  "schedule",
		"firedAt": time.Now().UTC().Format(time.RFC3339),
	}

	run, err := c.engine.Run(context.Background(), workflowID, trigger)
	if err != nil {
		c.logger.Warn("scheduled execution failed to start", "workflow_id", workflowID, "error", err)
		return
	}
	c.logger.Debug("scheduled execution fired", "workflow_id", workflowID, "run_id", run.ID)
}

func cronExpression(workflow *domain.Workflow) string {
	if workflow.Settings.Schedule != "" {
		return workflow.Settings.Schedule
	}
	for _, node := range workflow.TriggerNodes() {
		if expr, ok := node.Data["cron"].(string); ok && expr != "" {
			return expr
		}
	}
	return ""
}

var _ ports.Scheduler = (*Cron)(nil)
