package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/internal/domain"
)

// recordingEngine captures Run calls so tests can observe scheduler fires.
type recordingEngine struct {
	fired chan firedCall
}

type firedCall struct {
	workflowID string
	trigger    map[string]interface{}
}

func newRecordingEngine() *recordingEngine {
	return &recordingEngine{fired: make(chan firedCall, 16)}
}

func (e *recordingEngine) Execute(ctx context.Context, workflow *domain.Workflow, trigger map[string]interface{}) (*domain.Run, error) {
	return &domain.Run{ID: "run-exec", WorkflowID: workflow.ID}, nil
}

func (e *recordingEngine) Run(ctx context.Context, workflowID string, trigger map[string]interface{}) (*domain.Run, error) {
	e.fired <- firedCall{workflowID: workflowID, trigger: trigger}
	return &domain.Run{ID: "run-1", WorkflowID: workflowID}, nil
}

func (e *recordingEngine) Cancel(runID string) bool { return false }

func (e *recordingEngine) Status(runID string) (*domain.Run, bool) { return nil, false }

func scheduledWorkflow(id, expr string) *domain.Workflow {
	return &domain.Workflow{
		ID:       id,
		Name:     "nightly",
		Settings: domain.Settings{Schedule: expr},
		Nodes: []domain.Node{
			{ID: "t", Type: "schedule.trigger"},
		},
	}
}

func TestScheduleRejectsInvalidExpression(t *testing.T) {
	c := NewCron(newRecordingEngine(), nil)

	err := c.Schedule(scheduledWorkflow("wf-1", "not a cron"))
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Empty(t, c.Scheduled())
}

func TestScheduleRequiresExpression(t *testing.T) {
	c := NewCron(newRecordingEngine(), nil)

	wf := scheduledWorkflow("wf-1", "")
	err := c.Schedule(wf)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestScheduleReadsTriggerNodeCron(t *testing.T) {
	c := NewCron(newRecordingEngine(), nil)

	wf := scheduledWorkflow("wf-1", "")
	wf.Nodes[0].Data = map[string]interface{}{"cron": "0 3 * * *"}

	require.NoError(t, c.Schedule(wf))
	assert.Equal(t, []string{"wf-1"}, c.Scheduled())
}

func TestScheduleReplacesExistingEntry(t *testing.T) {
	c := NewCron(newRecordingEngine(), nil)

	require.NoError(t, c.Schedule(scheduledWorkflow("wf-1", "0 3 * * *")))
	require.NoError(t, c.Schedule(scheduledWorkflow("wf-1", "0 4 * * *")))
	require.NoError(t, c.Schedule(scheduledWorkflow("wf-2", "0 5 * * *")))

	assert.Equal(t, []string{"wf-1", "wf-2"}, c.Scheduled())
	assert.Len(t, c.runner.Entries(), 2, "replaced entry must be removed from the runner")
}

func TestScheduleKeepsOldEntryWhenReplacementInvalid(t *testing.T) {
	c := NewCron(newRecordingEngine(), nil)

	require.NoError(t, c.Schedule(scheduledWorkflow("wf-1", "0 3 * * *")))
	require.Error(t, c.Schedule(scheduledWorkflow("wf-1", "garbage")))

	assert.Equal(t, []string{"wf-1"}, c.Scheduled())
	assert.Len(t, c.runner.Entries(), 1)
}

func TestUnschedule(t *testing.T) {
	c := NewCron(newRecordingEngine(), nil)

	require.NoError(t, c.Schedule(scheduledWorkflow("wf-1", "0 3 * * *")))

	assert.True(t, c.Unschedule("wf-1"))
	assert.False(t, c.Unschedule("wf-1"))
	assert.False(t, c.Unschedule("never-scheduled"))
	assert.Empty(t, c.Scheduled())
}

func TestTickFiresExecution(t *testing.T) {
	engine := newRecordingEngine()
	c := NewCron(engine, nil)

	require.NoError(t, c.Schedule(scheduledWorkflow("wf-tick", "@every 1s")))
	c.Start()
	defer c.Stop()

	select {
	case call := <-engine.fired:
		assert.Equal(t, "wf-tick", call.workflowID)
		assert.Equal(t, "schedule", call.trigger["source"])
		firedAt, ok := call.trigger["firedAt"].(string)
		require.True(t, ok)
		_, err := time.Parse(time.RFC3339, firedAt)
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler never fired")
	}
}
