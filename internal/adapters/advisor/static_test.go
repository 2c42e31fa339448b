package advisor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/internal/adapters/node_registry"
	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/ports"
)

func noopCapability() ports.Capability {
	return ports.CapabilityFunc(func(ctx context.Context, node domain.Node, input map[string]interface{}, rc domain.RunContext) (map[string]interface{}, error) {
		return nil, nil
	})
}

func linearWorkflow() *domain.Workflow {
	return &domain.Workflow{
		ID:   "wf-clean",
		Name: "clean",
		Nodes: []domain.Node{
			{ID: "start", Type: "webhook.trigger"},
			{ID: "fetch", Type: "http.request"},
			{ID: "store", Type: "db.write"},
		},
		Edges: []domain.Edge{
			{ID: "e1", Source: "start", Target: "fetch"},
			{ID: "e2", Source: "fetch", Target: "store"},
		},
	}
}

func issueCodes(report *domain.AnalysisReport) []string {
	codes := make([]string, 0, len(report.Issues))
	for _, issue := range report.Issues {
		codes = append(codes, issue.Code)
	}
	return codes
}

func TestAnalyzeCleanWorkflow(t *testing.T) {
	a := NewStatic(nil, nil)

	report, err := a.Analyze(context.Background(), linearWorkflow())
	require.NoError(t, err)

	assert.False(t, report.NeedsOptimization)
	assert.Empty(t, report.Issues)
	assert.Empty(t, report.Suggestions)
}

func TestAnalyzeRejectsNilWorkflow(t *testing.T) {
	a := NewStatic(nil, nil)

	_, err := a.Analyze(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestAnalyzeFlagsDanglingEdges(t *testing.T) {
	wf := linearWorkflow()
	wf.Edges = append(wf.Edges, domain.Edge{ID: "e-bad", Source: "fetch", Target: "ghost"})

	a := NewStatic(nil, nil)
	report, err := a.Analyze(context.Background(), wf)
	require.NoError(t, err)

	assert.True(t, report.NeedsOptimization)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, CodeDanglingEdge, report.Issues[0].Code)
	assert.Equal(t, "e-bad", report.Issues[0].EdgeID)
	assert.NotEmpty(t, report.Suggestions)
}

func TestAnalyzeFlagsDuplicateEdges(t *testing.T) {
	wf := linearWorkflow()
	wf.Edges = append(wf.Edges, domain.Edge{ID: "e1-again", Source: "start", Target: "fetch"})

	a := NewStatic(nil, nil)
	report, err := a.Analyze(context.Background(), wf)
	require.NoError(t, err)

	assert.True(t, report.NeedsOptimization)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, CodeDuplicateEdge, report.Issues[0].Code)
	assert.Equal(t, "e1-again", report.Issues[0].EdgeID)
}

func TestAnalyzeFlagsUnreachableNodes(t *testing.T) {
	wf := &domain.Workflow{
		ID:   "wf-island",
		Name: "island",
		Nodes: []domain.Node{
			{ID: "start", Type: "webhook.trigger"},
			{ID: "a", Type: "http.request"},
			{ID: "b", Type: "http.request"},
		},
		Edges: []domain.Edge{
			// a and b feed each other but nothing connects them to start.
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "b", Target: "a"},
		},
	}

	a := NewStatic(nil, nil)
	report, err := a.Analyze(context.Background(), wf)
	require.NoError(t, err)

	codes := issueCodes(report)
	assert.ElementsMatch(t, []string{CodeUnreachableNode, CodeUnreachableNode}, codes)
	assert.False(t, report.NeedsOptimization, "unreachable nodes are not auto-fixable")
}

func TestAnalyzeFlagsMissingStartNodes(t *testing.T) {
	wf := &domain.Workflow{
		ID:   "wf-cycle",
		Name: "cycle",
		Nodes: []domain.Node{
			{ID: "a", Type: "http.request"},
			{ID: "b", Type: "http.request"},
		},
		Edges: []domain.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "b", Target: "a"},
		},
	}

	a := NewStatic(nil, nil)
	report, err := a.Analyze(context.Background(), wf)
	require.NoError(t, err)

	require.Len(t, report.Issues, 1)
	assert.Equal(t, CodeNoStartNodes, report.Issues[0].Code)
}

func TestAnalyzeChecksCapabilitiesWhenRegistryPresent(t *testing.T) {
	registry := node_registry.NewManager(nil)
	require.NoError(t, registry.Register("webhook.trigger", noopCapability()))
	require.NoError(t, registry.Register("http.request", noopCapability()))

	wf := linearWorkflow() // db.write is not registered

	a := NewStatic(registry, nil)
	report, err := a.Analyze(context.Background(), wf)
	require.NoError(t, err)

	require.Len(t, report.Issues, 1)
	assert.Equal(t, CodeUnknownCapability, report.Issues[0].Code)
	assert.Equal(t, "store", report.Issues[0].NodeID)

	// Without a registry the same workflow is clean.
	bare := NewStatic(nil, nil)
	report, err = bare.Analyze(context.Background(), wf)
	require.NoError(t, err)
	assert.Empty(t, report.Issues)
}

func TestOptimizePrunesBadEdgesOnly(t *testing.T) {
	wf := linearWorkflow()
	wf.Edges = append(wf.Edges,
		domain.Edge{ID: "e-dangling", Source: "store", Target: "ghost"},
		domain.Edge{ID: "e-dup", Source: "start", Target: "fetch"},
	)

	a := NewStatic(nil, nil)
	optimized, err := a.Optimize(context.Background(), wf, nil)
	require.NoError(t, err)

	assert.Len(t, optimized.Edges, 2)
	assert.Len(t, optimized.Nodes, 3, "optimize never removes nodes")
	for _, edge := range optimized.Edges {
		assert.NotEqual(t, "e-dangling", edge.ID)
		assert.NotEqual(t, "e-dup", edge.ID)
	}

	// The input workflow is untouched.
	assert.Len(t, wf.Edges, 4)
}

func TestOptimizeReturnsInputWhenClean(t *testing.T) {
	wf := linearWorkflow()

	a := NewStatic(nil, nil)
	report, err := a.Analyze(context.Background(), wf)
	require.NoError(t, err)

	optimized, err := a.Optimize(context.Background(), wf, report)
	require.NoError(t, err)
	assert.Same(t, wf, optimized)
}

func TestHelpWithErrorMapsKnownShapes(t *testing.T) {
	a := NewStatic(nil, nil)
	node := domain.Node{ID: "fetch", Type: "http.request"}

	tests := []struct {
		name    string
		err     error
		mention string
	}{
		{"capability missing", domain.ErrCapabilityNotFound, "register"},
		{"breaker open", fmt.Errorf("call: %w", domain.ErrBreakerOpen), "circuit breaker"},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"cancelled", context.Canceled, "cancelled"},
		{"validation", domain.NewValidationError("url missing"), "upstream"},
		{"transient", domain.NewTransientError("dial", errors.New("refused")), "retry"},
		{"unknown", errors.New("boom"), "configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			advice, err := a.HelpWithError(context.Background(), node, tt.err)
			require.NoError(t, err)
			assert.Contains(t, advice, tt.mention)
			assert.Contains(t, advice, "fetch")
		})
	}
}

func TestHelpWithErrorRequiresError(t *testing.T) {
	a := NewStatic(nil, nil)

	_, err := a.HelpWithError(context.Background(), domain.Node{ID: "n"}, nil)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}
