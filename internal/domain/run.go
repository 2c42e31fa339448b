package domain

import (
	"log/slog"
	"time"

	"github.com/weftworks/weft/internal/xjson"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSuccess   RunStatus = "success"
	RunStatusError     RunStatus = "error"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSuccess || s == RunStatusError || s == RunStatusCancelled
}

type NodeExecutionStatus string

const (
	NodeExecutionRunning NodeExecutionStatus = "running"
	NodeExecutionSuccess NodeExecutionStatus = "success"
	NodeExecutionError   NodeExecutionStatus = "error"
)

// Run is one execution of a workflow: the trigger that started it, the
// context accumulated from node outputs, and the per-node execution
// records in the order they ran.
type Run struct {
	ID          string                 `json:"id"`
	WorkflowID  string                 `json:"workflow_id"`
	Status      RunStatus              `json:"status"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Trigger     map[string]interface{} `json:"trigger,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Nodes       []NodeExecution        `json:"nodes,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

type NodeExecution struct {
	ID          string                 `json:"id"`
	NodeID      string                 `json:"node_id"`
	NodeType    string                 `json:"node_type"`
	Status      NodeExecutionStatus    `json:"status"`
	Attempts    int                    `json:"attempts"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Input       map[string]interface{} `json:"input,omitempty"`
	Output      map[string]interface{} `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// Clone returns a deep copy so read snapshots never alias engine-owned
// state.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	raw, err := xjson.Marshal(r)
	if err != nil {
		shallow := *r
		return &shallow
	}
	var out Run
	if err := xjson.Unmarshal(raw, &out); err != nil {
		shallow := *r
		return &shallow
	}
	return &out
}

// RunContext is handed to capabilities alongside the node input.
type RunContext struct {
	RunID           string
	WorkflowID      string
	NodeExecutionID string
	Attempt         int
	Logger          *slog.Logger
}

// Lock is a held distributed lock. Owner is the fencing token checked on
// release.
type Lock struct {
	Name       string
	Owner      string
	AcquiredAt time.Time
	TTL        time.Duration
}

// CacheOptions carry per-entry placement hints.
type CacheOptions struct {
	TTL  time.Duration
	Tags []string
}

// CacheMetrics is a point-in-time counter snapshot.
type CacheMetrics struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	LocalHits     int64 `json:"local_hits"`
	Evictions     int64 `json:"evictions"`
	Invalidations int64 `json:"invalidations"`
}

// AnalysisReport is the advisor's judgement of a workflow graph.
type AnalysisReport struct {
	NeedsOptimization bool            `json:"needs_optimization"`
	Issues            []AnalysisIssue `json:"issues,omitempty"`
	Suggestions       []string        `json:"suggestions,omitempty"`
}

type AnalysisIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	NodeID  string `json:"node_id,omitempty"`
	EdgeID  string `json:"edge_id,omitempty"`
}
