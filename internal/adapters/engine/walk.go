package engine

import (
	"log/slog"

	"github.com/weftworks/weft/internal/domain"
)

// graph is the adjacency view of a workflow the walk runs over. Edges
// whose endpoints are unknown are dropped at build time; they must not
// crash a run.
type graph struct {
	nodes    map[string]domain.Node
	order    []string            // node ids in definition order
	next     map[string][]string // successors in edge order
	incoming map[string]int
}

func buildGraph(workflow *domain.Workflow, logger *slog.Logger) *graph {
	g := &graph{
		nodes:    make(map[string]domain.Node, len(workflow.Nodes)),
		order:    make([]string, 0, len(workflow.Nodes)),
		next:     make(map[string][]string),
		incoming: make(map[string]int),
	}

	for _, node := range workflow.Nodes {
		g.nodes[node.ID] = node
		g.order = append(g.order, node.ID)
	}

	seen := make(map[string]bool, len(workflow.Edges))
	for _, edge := range workflow.Edges {
		if _, ok := g.nodes[edge.Source]; !ok {
			logger.Warn("skipping edge with unknown source",
				"workflow_id", workflow.ID,
				"edge_id", edge.ID,
				"source", edge.Source,
			)
			continue
		}
		if _, ok := g.nodes[edge.Target]; !ok {
			logger.Warn("skipping edge with unknown target",
				"workflow_id", workflow.ID,
				"edge_id", edge.ID,
				"target", edge.Target,
			)
			continue
		}
		pair := edge.Source + "\x00" + edge.Target
		if seen[pair] {
			continue
		}
		seen[pair] = true

		g.next[edge.Source] = append(g.next[edge.Source], edge.Target)
		g.incoming[edge.Target]++
	}

	return g
}

// starts returns the frontier seed: trigger-typed nodes plus nodes with
// no incoming edge, in definition order.
func (g *graph) starts() []string {
	var starts []string
	for _, id := range g.order {
		if g.nodes[id].IsTrigger() || g.incoming[id] == 0 {
			starts = append(starts, id)
		}
	}
	return starts
}

// breadthOrder is the breadth-first walk from the start set, visiting
// each node at most once.
func (g *graph) breadthOrder(starts []string) []string {
	visited := make(map[string]bool, len(g.order))
	queue := append([]string(nil), starts...)
	for _, id := range starts {
		visited[id] = true
	}

	var order []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, succ := range g.next[id] {
			if !visited[succ] {
				visited[succ] = true
				queue = append(queue, succ)
			}
		}
	}
	return order
}

// topologicalOrder runs Kahn's algorithm seeded from the start set, so a
// join waits for all its in-graph parents. When cycles leave reachable
// nodes unordered the walk degrades to the breadth-first order instead
// of silently skipping them; each node still runs at most once.
func (g *graph) topologicalOrder(starts []string, logger *slog.Logger) []string {
	breadth := g.breadthOrder(starts)

	remaining := make(map[string]int, len(g.incoming))
	for id, n := range g.incoming {
		remaining[id] = n
	}

	queued := make(map[string]bool, len(g.order))
	queue := append([]string(nil), starts...)
	for _, id := range starts {
		queued[id] = true
	}

	var order []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, succ := range g.next[id] {
			remaining[succ]--
			if remaining[succ] <= 0 && !queued[succ] {
				queued[succ] = true
				queue = append(queue, succ)
			}
		}
	}

	if len(order) < len(breadth) {
		logger.Debug("graph has cycles, walking in breadth-first order",
			"ordered", len(order),
			"reachable", len(breadth),
		)
		return breadth
	}
	return order
}

// executionOrder resolves the node sequence for one run. An empty result
// means the workflow has no start nodes and nothing executes.
func executionOrder(workflow *domain.Workflow, logger *slog.Logger) []domain.Node {
	if logger == nil {
		logger = slog.Default()
	}
	g := buildGraph(workflow, logger)
	starts := g.starts()
	if len(starts) == 0 {
		return nil
	}

	var ids []string
	if workflow.Settings.ExecutionOrder == domain.ExecutionOrderTopological {
		ids = g.topologicalOrder(starts, logger)
	} else {
		ids = g.breadthOrder(starts)
	}

	nodes := make([]domain.Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, g.nodes[id])
	}
	return nodes
}
