package advisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/ports"
)

// Issue codes produced by the static analysis.
const (
	CodeDanglingEdge      = "dangling_edge"
	CodeDuplicateEdge     = "duplicate_edge"
	CodeUnreachableNode   = "unreachable_node"
	CodeUnknownCapability = "unknown_capability"
	CodeNoStartNodes      = "no_start_nodes"
)

// Static inspects workflow graphs without calling anything external, so
// its advice is deterministic and safe to run before every execution.
// The registry is optional; without one, capability checks are skipped.
type Static struct {
	registry ports.NodeRegistry
	logger   *slog.Logger
}

func NewStatic(registry ports.NodeRegistry, logger *slog.Logger) *Static {
	if logger == nil {
		logger = slog.Default()
	}
	return &Static{
		registry: registry,
		logger:   logger.With("component", "advisor"),
	}
}

func (a *Static) Analyze(ctx context.Context, workflow *domain.Workflow) (*domain.AnalysisReport, error) {
	if workflow == nil {
		return nil, domain.NewValidationError("workflow is required")
	}

	report := &domain.AnalysisReport{}

	known := make(map[string]bool, len(workflow.Nodes))
	for _, node := range workflow.Nodes {
		known[node.ID] = true
	}

	seen := make(map[string]bool, len(workflow.Edges))
	for _, edge := range workflow.Edges {
		if !known[edge.Source] || !known[edge.Target] {
			report.Issues = append(report.Issues, domain.AnalysisIssue{
				Code:    CodeDanglingEdge,
				Message: fmt.Sprintf("edge %s references a node that does not exist", edge.ID),
				EdgeID:  edge.ID,
			})
			report.NeedsOptimization = true
			continue
		}
		pair := edge.Source + "\x00" + edge.Target
		if seen[pair] {
			report.Issues = append(report.Issues, domain.AnalysisIssue{
				Code:    CodeDuplicateEdge,
				Message: fmt.Sprintf("edge %s duplicates another %s -> %s edge", edge.ID, edge.Source, edge.Target),
				EdgeID:  edge.ID,
			})
			report.NeedsOptimization = true
			continue
		}
		seen[pair] = true
	}

	starts := startNodes(workflow)
	if len(starts) == 0 && len(workflow.Nodes) > 0 {
		report.Issues = append(report.Issues, domain.AnalysisIssue{
			Code:    CodeNoStartNodes,
			Message: "workflow has no trigger nodes and no nodes without incoming edges; nothing will execute",
		})
	} else {
		for _, node := range unreachableFrom(workflow, starts) {
			report.Issues = append(report.Issues, domain.AnalysisIssue{
				Code:    CodeUnreachableNode,
				Message: fmt.Sprintf("node %s can never be reached from a start node", node),
				NodeID:  node,
			})
		}
	}

	if a.registry != nil {
		for _, node := range workflow.Nodes {
			if _, err := a.registry.Resolve(node.Type); err != nil {
				report.Issues = append(report.Issues, domain.AnalysisIssue{
					Code:    CodeUnknownCapability,
					Message: fmt.Sprintf("node %s has type %s but no capability is registered for it", node.ID, node.Type),
					NodeID:  node.ID,
				})
			}
		}
	}

	report.Suggestions = suggestionsFor(report.Issues)
	return report, nil
}

// Optimize returns a copy with dangling and duplicate edges pruned. It
// never removes nodes; unreachable nodes stay for the author to resolve.
func (a *Static) Optimize(ctx context.Context, workflow *domain.Workflow, report *domain.AnalysisReport) (*domain.Workflow, error) {
	if workflow == nil {
		return nil, domain.NewValidationError("workflow is required")
	}
	if report == nil {
		var err error
		report, err = a.Analyze(ctx, workflow)
		if err != nil {
			return nil, err
		}
	}

	drop := make(map[string]bool)
	for _, issue := range report.Issues {
		if issue.Code == CodeDanglingEdge || issue.Code == CodeDuplicateEdge {
			drop[issue.EdgeID] = true
		}
	}
	if len(drop) == 0 {
		return workflow, nil
	}

	optimized := workflow.Clone()
	kept := optimized.Edges[:0]
	for _, edge := range optimized.Edges {
		if !drop[edge.ID] {
			kept = append(kept, edge)
		}
	}
	optimized.Edges = kept

	a.logger.Debug("pruned edges", "workflow_id", workflow.ID, "removed", len(drop))
	return optimized, nil
}

// HelpWithError turns an execution failure into one line of advice.
func (a *Static) HelpWithError(ctx context.Context, node domain.Node, execErr error) (string, error) {
	if execErr == nil {
		return "", domain.NewValidationError("error is required")
	}

	switch {
	case domain.IsNotFound(execErr):
		return fmt.Sprintf("no capability is registered for type %q; register one before running node %s", node.Type, node.ID), nil
	case domain.IsBreakerOpen(execErr):
		return fmt.Sprintf("the dependency behind node %s is failing repeatedly and its circuit breaker is open; wait for recovery before retrying", node.ID), nil
	case errors.Is(execErr, context.DeadlineExceeded):
		return fmt.Sprintf("node %s ran out of time; raise the workflow timeout or split the work", node.ID), nil
	case errors.Is(execErr, context.Canceled):
		return fmt.Sprintf("the run was cancelled while node %s was executing", node.ID), nil
	case domain.IsValidation(execErr):
		return fmt.Sprintf("node %s rejected its input (%v); check the outputs of its upstream nodes", node.ID, execErr), nil
	case domain.IsTransient(execErr):
		return fmt.Sprintf("node %s hit a transient failure; a retry may succeed, consider raising max_retries", node.ID), nil
	default:
		return fmt.Sprintf("node %s failed (%v); check its configuration and upstream outputs", node.ID, execErr), nil
	}
}

// startNodes mirrors the engine's frontier seed: triggers plus nodes with
// no valid incoming edge.
func startNodes(workflow *domain.Workflow) []string {
	known := make(map[string]bool, len(workflow.Nodes))
	for _, node := range workflow.Nodes {
		known[node.ID] = true
	}

	incoming := make(map[string]int)
	for _, edge := range workflow.Edges {
		if known[edge.Source] && known[edge.Target] {
			incoming[edge.Target]++
		}
	}

	var starts []string
	for _, node := range workflow.Nodes {
		if node.IsTrigger() || incoming[node.ID] == 0 {
			starts = append(starts, node.ID)
		}
	}
	return starts
}

func unreachableFrom(workflow *domain.Workflow, starts []string) []string {
	known := make(map[string]bool, len(workflow.Nodes))
	for _, node := range workflow.Nodes {
		known[node.ID] = true
	}

	adjacency := make(map[string][]string)
	for _, edge := range workflow.Edges {
		if known[edge.Source] && known[edge.Target] {
			adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
		}
	}

	visited := make(map[string]bool, len(workflow.Nodes))
	queue := append([]string(nil), starts...)
	for _, id := range starts {
		visited[id] = true
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[current] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	var unreachable []string
	for _, node := range workflow.Nodes {
		if !visited[node.ID] {
			unreachable = append(unreachable, node.ID)
		}
	}
	return unreachable
}

func suggestionsFor(issues []domain.AnalysisIssue) []string {
	counts := make(map[string]int)
	for _, issue := range issues {
		counts[issue.Code]++
	}

	var suggestions []string
	if n := counts[CodeDanglingEdge]; n > 0 {
		suggestions = append(suggestions, fmt.Sprintf("remove %d edge(s) that reference missing nodes", n))
	}
	if n := counts[CodeDuplicateEdge]; n > 0 {
		suggestions = append(suggestions, fmt.Sprintf("remove %d duplicate edge(s)", n))
	}
	if counts[CodeUnreachableNode] > 0 {
		suggestions = append(suggestions, "connect unreachable nodes to the graph or delete them")
	}
	if counts[CodeUnknownCapability] > 0 {
		suggestions = append(suggestions, "register capabilities for every node type before executing")
	}
	if counts[CodeNoStartNodes] > 0 {
		suggestions = append(suggestions, "add a trigger node or break an edge cycle so execution has a starting point")
	}
	return suggestions
}

var _ ports.Advisor = (*Static)(nil)
