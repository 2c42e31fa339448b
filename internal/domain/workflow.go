package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/weftworks/weft/internal/xjson"
)

// Workflow is a directed graph of typed nodes. The engine walks it from
// its start nodes; everything else here is an opaque document the host
// application owns.
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Nodes       []Node    `json:"nodes"`
	Edges       []Edge    `json:"edges"`
	Settings    Settings  `json:"settings"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Node struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Name        string                 `json:"name,omitempty"`
	Description string                 `json:"description,omitempty"`
	Icon        string                 `json:"icon,omitempty"`
	Category    string                 `json:"category,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Position    Position               `json:"position"`
}

// Position is presentation metadata for graph editors. The engine never
// reads it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IsTrigger reports whether the node starts executions. Trigger nodes are
// identified by their type string (e.g. "trigger.manual",
// "webhookTrigger") so hosts can introduce new trigger kinds without
// touching the engine.
func (n Node) IsTrigger() bool {
	return strings.Contains(strings.ToLower(n.Type), "trigger")
}

type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type,omitempty"`
}

type Settings struct {
	ExecutionOrder string        `json:"execution_order,omitempty"`
	Timeout        time.Duration `json:"timeout,omitempty"`
	MaxRetries     int           `json:"max_retries,omitempty"`
	RetryPolicy    string        `json:"retry_policy,omitempty"`
	RetryBackoff   time.Duration `json:"retry_backoff,omitempty"`
	Schedule       string        `json:"schedule,omitempty"`
}

const (
	ExecutionOrderBreadth     = "breadth"
	ExecutionOrderTopological = "topological"
)

const (
	RetryPolicyFixed       = "fixed"
	RetryPolicyLinear      = "linear"
	RetryPolicyExponential = "exponential"
)

// Validate checks the structural invariants a workflow must hold before
// the engine accepts it. Edges pointing at unknown nodes are not fatal
// here; the engine skips them at walk time.
func (w *Workflow) Validate() error {
	if w.ID == "" {
		return NewValidationError("workflow id is required")
	}
	if w.Name == "" {
		return NewValidationError("workflow name is required")
	}

	seen := make(map[string]struct{}, len(w.Nodes))
	for _, node := range w.Nodes {
		if node.ID == "" {
			return NewValidationError("node id is required")
		}
		if node.Type == "" {
			return NewValidationError(fmt.Sprintf("node %s has no type", node.ID))
		}
		if _, dup := seen[node.ID]; dup {
			return NewValidationError(fmt.Sprintf("duplicate node id: %s", node.ID))
		}
		seen[node.ID] = struct{}{}
	}

	for _, edge := range w.Edges {
		if edge.Source == "" || edge.Target == "" {
			return NewValidationError(fmt.Sprintf("edge %s is missing an endpoint", edge.ID))
		}
	}

	return w.Settings.Validate()
}

func (s Settings) Validate() error {
	switch s.ExecutionOrder {
	case "", ExecutionOrderBreadth, ExecutionOrderTopological:
	default:
		return NewValidationError(fmt.Sprintf("unknown execution order: %s", s.ExecutionOrder))
	}

	switch s.RetryPolicy {
	case "", RetryPolicyFixed, RetryPolicyLinear, RetryPolicyExponential:
	default:
		return NewValidationError(fmt.Sprintf("unknown retry policy: %s", s.RetryPolicy))
	}

	if s.MaxRetries < 0 {
		return NewValidationError("max retries cannot be negative")
	}
	if s.Timeout < 0 {
		return NewValidationError("timeout cannot be negative")
	}
	return nil
}

// NodeByID returns the node with the given id.
func (w *Workflow) NodeByID(id string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// TriggerNodes returns the nodes whose type marks them as triggers.
func (w *Workflow) TriggerNodes() []Node {
	var out []Node
	for _, n := range w.Nodes {
		if n.IsTrigger() {
			out = append(out, n)
		}
	}
	return out
}

// Clone returns a deep copy so stored documents and live graphs never
// share node data.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	raw, err := xjson.Marshal(w)
	if err != nil {
		shallow := *w
		return &shallow
	}
	var out Workflow
	if err := xjson.Unmarshal(raw, &out); err != nil {
		shallow := *w
		return &shallow
	}
	return &out
}
