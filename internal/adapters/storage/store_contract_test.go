package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/ports"
)

// The contract suite runs against every embeddable tier; the memory store
// is the reference implementation, the file store must be indistinguishable
// through the port.

type storeFactory func(t *testing.T) ports.Store

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, ports.TierMemory, func(t *testing.T) ports.Store {
		return NewMemoryStore()
	})
}

func TestFileStoreContract(t *testing.T) {
	runStoreContract(t, ports.TierFile, func(t *testing.T) ports.Store {
		s, err := NewFileStore(t.TempDir(), nil)
		require.NoError(t, err)
		return s
	})
}

func sampleWorkflow(id string, updatedAt time.Time) *domain.Workflow {
	return &domain.Workflow{
		ID:   id,
		Name: "order-sync",
		Nodes: []domain.Node{
			{ID: "trigger-1", Type: "webhook.trigger", Name: "Webhook"},
			{ID: "http-1", Type: "http.request", Name: "Fetch order", Data: map[string]interface{}{"url": "https://example.test/orders"}},
		},
		Edges:     []domain.Edge{{ID: "e1", Source: "trigger-1", Target: "http-1"}},
		Settings:  domain.Settings{ExecutionOrder: domain.ExecutionOrderBreadth},
		Tags:      []string{"orders"},
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
}

func sampleRun(id, workflowID string, startedAt time.Time) *domain.Run {
	completed := startedAt.Add(2 * time.Second)
	return &domain.Run{
		ID:         id,
		WorkflowID: workflowID,
		Status:     domain.RunStatusRunning,
		StartedAt:  startedAt,
		Trigger:    map[string]interface{}{"source": "webhook"},
		Context:    map[string]interface{}{"order_id": "o-77"},
		Nodes: []domain.NodeExecution{
			{
				ID:          "ne-1",
				NodeID:      "trigger-1",
				NodeType:    "webhook.trigger",
				Status:      domain.NodeExecutionSuccess,
				Attempts:    1,
				StartedAt:   startedAt,
				CompletedAt: &completed,
				Output:      map[string]interface{}{"ok": true},
			},
			{
				ID:        "ne-2",
				NodeID:    "http-1",
				NodeType:  "http.request",
				Status:    domain.NodeExecutionRunning,
				Attempts:  2,
				StartedAt: startedAt.Add(time.Second),
				Input:     map[string]interface{}{"url": "https://example.test/orders"},
			},
		},
	}
}

func runStoreContract(t *testing.T, tier ports.StorageTier, newStore storeFactory) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	t.Run("WorkflowRoundTrip", func(t *testing.T) {
		s := newStore(t)
		workflow := sampleWorkflow("wf-1", base)
		require.NoError(t, s.SaveWorkflow(ctx, workflow))

		got, err := s.GetWorkflow(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, workflow, got)
		assert.NotSame(t, workflow, got)
	})

	t.Run("ReadsAreSnapshots", func(t *testing.T) {
		s := newStore(t)
		workflow := sampleWorkflow("wf-1", base)
		require.NoError(t, s.SaveWorkflow(ctx, workflow))

		workflow.Name = "mutated after save"
		got, err := s.GetWorkflow(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, "order-sync", got.Name, "stored document must not alias the saved pointer")

		got.Nodes[0].Name = "mutated after read"
		again, err := s.GetWorkflow(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, "Webhook", again.Nodes[0].Name, "read results must not alias stored state")
	})

	t.Run("WorkflowUpsertIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		workflow := sampleWorkflow("wf-1", base)
		require.NoError(t, s.SaveWorkflow(ctx, workflow))

		workflow.Name = "order-sync-v2"
		workflow.UpdatedAt = base.Add(time.Minute)
		require.NoError(t, s.SaveWorkflow(ctx, workflow))

		all, err := s.ListWorkflows(ctx, ports.ListOptions{})
		require.NoError(t, err)
		require.Len(t, all, 1, "saving the same id twice leaves one record")
		assert.Equal(t, "order-sync-v2", all[0].Name)
	})

	t.Run("WorkflowNotFound", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetWorkflow(ctx, "absent")
		assert.True(t, domain.IsNotFound(err))

		err = s.DeleteWorkflow(ctx, "absent")
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("WorkflowDelete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveWorkflow(ctx, sampleWorkflow("wf-1", base)))
		require.NoError(t, s.DeleteWorkflow(ctx, "wf-1"))

		_, err := s.GetWorkflow(ctx, "wf-1")
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("WorkflowListOrderAndPaging", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveWorkflow(ctx, sampleWorkflow("wf-b", base.Add(time.Minute))))
		require.NoError(t, s.SaveWorkflow(ctx, sampleWorkflow("wf-c", base.Add(2*time.Minute))))
		require.NoError(t, s.SaveWorkflow(ctx, sampleWorkflow("wf-a", base)))

		all, err := s.ListWorkflows(ctx, ports.ListOptions{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "wf-c", all[0].ID, "most recently updated first")
		assert.Equal(t, "wf-b", all[1].ID)
		assert.Equal(t, "wf-a", all[2].ID)

		page, err := s.ListWorkflows(ctx, ports.ListOptions{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "wf-b", page[0].ID)

		empty, err := s.ListWorkflows(ctx, ports.ListOptions{Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("ExecutionRoundTrip", func(t *testing.T) {
		s := newStore(t)
		run := sampleRun("run-1", "wf-1", base)
		require.NoError(t, s.SaveExecution(ctx, run))

		got, err := s.GetExecution(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, run, got)
		require.Len(t, got.Nodes, 2)
		assert.Equal(t, "ne-1", got.Nodes[0].ID, "node executions keep their order")
		assert.Equal(t, "ne-2", got.Nodes[1].ID)
	})

	t.Run("ExecutionUpsertReplacesNodes", func(t *testing.T) {
		s := newStore(t)
		run := sampleRun("run-1", "wf-1", base)
		require.NoError(t, s.SaveExecution(ctx, run))

		completed := base.Add(5 * time.Second)
		run.Status = domain.RunStatusSuccess
		run.CompletedAt = &completed
		run.Nodes[1].Status = domain.NodeExecutionSuccess
		run.Nodes[1].CompletedAt = &completed
		require.NoError(t, s.SaveExecution(ctx, run))

		got, err := s.GetExecution(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusSuccess, got.Status)
		require.NotNil(t, got.CompletedAt)
		require.Len(t, got.Nodes, 2)
		assert.Equal(t, domain.NodeExecutionSuccess, got.Nodes[1].Status)

		all, err := s.ListExecutions(ctx, "wf-1", ports.ListOptions{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("ExecutionNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetExecution(ctx, "absent")
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("ExecutionListFilterAndOrder", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveExecution(ctx, sampleRun("run-old", "wf-a", base)))
		require.NoError(t, s.SaveExecution(ctx, sampleRun("run-new", "wf-a", base.Add(time.Minute))))
		require.NoError(t, s.SaveExecution(ctx, sampleRun("run-other", "wf-b", base.Add(2*time.Minute))))

		forA, err := s.ListExecutions(ctx, "wf-a", ports.ListOptions{})
		require.NoError(t, err)
		require.Len(t, forA, 2)
		assert.Equal(t, "run-new", forA[0].ID, "newest first")
		assert.Equal(t, "run-old", forA[1].ID)

		all, err := s.ListExecutions(ctx, "", ports.ListOptions{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		page, err := s.ListExecutions(ctx, "wf-a", ports.ListOptions{Limit: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "run-new", page[0].ID)
	})

	t.Run("SaveValidation", func(t *testing.T) {
		s := newStore(t)
		assert.True(t, domain.IsValidation(s.SaveWorkflow(ctx, nil)))
		assert.True(t, domain.IsValidation(s.SaveWorkflow(ctx, &domain.Workflow{})))
		assert.True(t, domain.IsValidation(s.SaveExecution(ctx, nil)))
		assert.True(t, domain.IsValidation(s.SaveExecution(ctx, &domain.Run{})))
	})

	t.Run("HealthCheck", func(t *testing.T) {
		s := newStore(t)
		status := s.HealthCheck(ctx)
		assert.Equal(t, tier, status.Tier)
		assert.True(t, status.Healthy)
	})
}
