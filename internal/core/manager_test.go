package core

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/ports"
)

func testConfig() *domain.Config {
	config := domain.DefaultConfig()
	config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	config.Engine.RetryBackoff = time.Millisecond
	config.Scheduler.Enabled = false
	return config
}

func newTestManager(t *testing.T, config *domain.Config) *Manager {
	t.Helper()
	if config == nil {
		config = testConfig()
	}
	m, err := NewWithConfig(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop() })
	return m
}

func sampleWorkflow(id string) *domain.Workflow {
	return &domain.Workflow{
		ID:   id,
		Name: "sample",
		Nodes: []domain.Node{
			{ID: "start", Type: "manual.trigger"},
			{ID: "work", Type: "step.work"},
		},
		Edges: []domain.Edge{
			{ID: "e1", Source: "start", Target: "work"},
		},
	}
}

func registerNoop(t *testing.T, m *Manager, nodeTypes ...string) {
	t.Helper()
	for _, nodeType := range nodeTypes {
		err := m.RegisterCapability(nodeType, ports.CapabilityFunc(
			func(ctx context.Context, node domain.Node, input map[string]interface{}, rc domain.RunContext) (map[string]interface{}, error) {
				return map[string]interface{}{node.ID: "done"}, nil
			}))
		require.NoError(t, err)
	}
}

func TestWorkflowLifecycle(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	wf := sampleWorkflow("wf-1")
	require.NoError(t, m.SaveWorkflow(ctx, wf))
	assert.False(t, wf.CreatedAt.IsZero())
	assert.False(t, wf.UpdatedAt.IsZero())

	got, err := m.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "sample", got.Name)
	assert.Len(t, got.Nodes, 2)

	list, err := m.ListWorkflows(ctx, ports.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, m.DeleteWorkflow(ctx, "wf-1"))
	_, err = m.GetWorkflow(ctx, "wf-1")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestSaveWorkflowInvalidatesCachedRead(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	wf := sampleWorkflow("wf-cache")
	require.NoError(t, m.SaveWorkflow(ctx, wf))

	first, err := m.GetWorkflow(ctx, "wf-cache")
	require.NoError(t, err)
	assert.Equal(t, "sample", first.Name)

	updated := sampleWorkflow("wf-cache")
	updated.Name = "renamed"
	require.NoError(t, m.SaveWorkflow(ctx, updated))

	second, err := m.GetWorkflow(ctx, "wf-cache")
	require.NoError(t, err)
	assert.Equal(t, "renamed", second.Name, "the save must evict the cached copy")
}

func TestSaveWorkflowValidates(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	err := m.SaveWorkflow(ctx, nil)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	err = m.SaveWorkflow(ctx, &domain.Workflow{ID: "wf-x"})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestExecuteWorkflow(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	registerNoop(t, m, "manual.trigger", "step.work")
	require.NoError(t, m.SaveWorkflow(ctx, sampleWorkflow("wf-exec")))

	run, err := m.ExecuteWorkflow(ctx, "wf-exec", map[string]interface{}{"who": "test"})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSuccess, run.Status)
	assert.Equal(t, "done", run.Context["start"])
	assert.Equal(t, "done", run.Context["work"])

	stored, err := m.GetExecution(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSuccess, stored.Status)

	runs, err := m.ListExecutions(ctx, "wf-exec", ports.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = m.ExecuteWorkflow(ctx, "missing", nil)
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestExecuteWorkflowAsyncAndCancel(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	registerNoop(t, m, "manual.trigger")
	err := m.RegisterCapability("step.work", ports.CapabilityFunc(
		func(ctx context.Context, node domain.Node, input map[string]interface{}, rc domain.RunContext) (map[string]interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}))
	require.NoError(t, err)
	require.NoError(t, m.SaveWorkflow(ctx, sampleWorkflow("wf-async")))

	terminal, unsubscribe := m.Subscribe(domain.EventExecutionCancelled)
	defer unsubscribe()

	runID, err := m.ExecuteWorkflowAsync(ctx, "wf-async", nil)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	live, err := m.GetExecution(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, live.Status)

	assert.True(t, m.CancelExecution(runID))

	select {
	case ev := <-terminal:
		assert.Equal(t, runID, ev.RunIDOf())
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for execution.cancelled")
	}

	require.Eventually(t, func() bool {
		run, err := m.GetExecution(ctx, runID)
		return err == nil && run.Status == domain.RunStatusCancelled
	}, 3*time.Second, 10*time.Millisecond, "terminal record reaches storage")

	assert.False(t, m.CancelExecution(runID))
}

func TestExecutionHistory(t *testing.T) {
	config := testConfig()
	config.Journal.Enabled = true
	config.Journal.InMemory = true
	m := newTestManager(t, config)
	ctx := context.Background()

	registerNoop(t, m, "manual.trigger", "step.work")
	require.NoError(t, m.SaveWorkflow(ctx, sampleWorkflow("wf-hist")))

	run, err := m.ExecuteWorkflow(ctx, "wf-hist", nil)
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusSuccess, run.Status)

	// started, 2x(node.started+node.completed), completed
	var records []domain.EventRecord
	require.Eventually(t, func() bool {
		records, err = m.ExecutionHistory(ctx, run.ID)
		return err == nil && len(records) == 6
	}, 3*time.Second, 10*time.Millisecond, "the journal follower catches up")

	assert.Equal(t, domain.EventExecutionStarted, records[0].Name)
	assert.Equal(t, domain.EventExecutionCompleted, records[len(records)-1].Name)
	for i, record := range records {
		assert.Equal(t, uint64(i+1), record.Seq)
		assert.Equal(t, run.ID, record.RunID)
	}
}

func TestExecutionHistoryRequiresJournal(t *testing.T) {
	m := newTestManager(t, nil)

	_, err := m.ExecutionHistory(context.Background(), "run-1")
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestSchedulingDisabled(t *testing.T) {
	m := newTestManager(t, nil)

	err := m.ScheduleWorkflow(context.Background(), "wf-1")
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.False(t, m.UnscheduleWorkflow("wf-1"))
	assert.Empty(t, m.ScheduledWorkflows())
}

func TestScheduling(t *testing.T) {
	config := testConfig()
	config.Scheduler.Enabled = true
	m := newTestManager(t, config)
	ctx := context.Background()

	wf := sampleWorkflow("wf-cron")
	wf.Settings.Schedule = "@hourly"
	require.NoError(t, m.SaveWorkflow(ctx, wf))

	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.ScheduleWorkflow(ctx, "wf-cron"))
	assert.Equal(t, []string{"wf-cron"}, m.ScheduledWorkflows())

	assert.True(t, m.UnscheduleWorkflow("wf-cron"))
	assert.Empty(t, m.ScheduledWorkflows())
}

func TestDeleteWorkflowDropsSchedule(t *testing.T) {
	config := testConfig()
	config.Scheduler.Enabled = true
	m := newTestManager(t, config)
	ctx := context.Background()

	wf := sampleWorkflow("wf-sched-del")
	wf.Settings.Schedule = "@daily"
	require.NoError(t, m.SaveWorkflow(ctx, wf))
	require.NoError(t, m.ScheduleWorkflow(ctx, "wf-sched-del"))

	require.NoError(t, m.DeleteWorkflow(ctx, "wf-sched-del"))
	assert.Empty(t, m.ScheduledWorkflows())
}

func TestCapabilityRegistry(t *testing.T) {
	m := newTestManager(t, nil)

	registerNoop(t, m, "b.step", "a.step")
	assert.Equal(t, []string{"a.step", "b.step"}, m.Capabilities())

	err := m.RegisterCapability("a.step", ports.CapabilityFunc(
		func(ctx context.Context, node domain.Node, input map[string]interface{}, rc domain.RunContext) (map[string]interface{}, error) {
			return nil, nil
		}))
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))

	require.NoError(t, m.UnregisterCapability("a.step"))
	assert.Equal(t, []string{"b.step"}, m.Capabilities())
}

func TestLocks(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	lock, err := m.AcquireLock(ctx, "deploy", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lock)

	contended, err := m.AcquireLock(ctx, "deploy", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, contended, "held locks are not re-acquired")

	released, err := m.ReleaseLock(ctx, lock)
	require.NoError(t, err)
	assert.True(t, released)
}

func TestHealth(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	registerNoop(t, m, "manual.trigger", "step.work")
	require.NoError(t, m.SaveWorkflow(ctx, sampleWorkflow("wf-health")))
	_, err := m.ExecuteWorkflow(ctx, "wf-health", nil)
	require.NoError(t, err)

	health := m.Health(ctx)
	assert.True(t, health.Healthy)
	assert.Equal(t, ports.TierMemory, health.Storage.Tier)
	assert.True(t, health.Storage.Healthy)
	assert.Contains(t, health.Breakers, "persistence")
	assert.Equal(t, ports.StateClosed, health.Breakers["persistence"].State)
	assert.Greater(t, health.Uptime, time.Duration(0))

	assert.Equal(t, ports.TierMemory, m.StorageTier())
}

func TestStopIsIdempotent(t *testing.T) {
	m := newTestManager(t, nil)

	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())

	err := m.Start(context.Background())
	require.Error(t, err)
}
