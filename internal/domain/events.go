package domain

import (
	"time"

	"github.com/weftworks/weft/internal/xjson"
)

// Event names as published on the channel. Subscribers filter on these.
const (
	EventExecutionStarted   = "execution.started"
	EventNodeStarted        = "node.started"
	EventNodeCompleted      = "node.completed"
	EventNodeError          = "node.error"
	EventNodeErrorHelp      = "node.error.help"
	EventExecutionCompleted = "execution.completed"
	EventExecutionFailed    = "execution.failed"
	EventExecutionCancelled = "execution.cancelled"
)

// Event is anything publishable on the event channel.
type Event interface {
	EventName() string
	RunIDOf() string
}

type ExecutionStartedEvent struct {
	RunID      string                 `json:"run_id"`
	WorkflowID string                 `json:"workflow_id"`
	Trigger    map[string]interface{} `json:"trigger,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

func (e ExecutionStartedEvent) EventName() string { return EventExecutionStarted }
func (e ExecutionStartedEvent) RunIDOf() string   { return e.RunID }

type NodeStartedEvent struct {
	RunID      string    `json:"run_id"`
	WorkflowID string    `json:"workflow_id"`
	NodeID     string    `json:"node_id"`
	NodeType   string    `json:"node_type"`
	Attempt    int       `json:"attempt"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e NodeStartedEvent) EventName() string { return EventNodeStarted }
func (e NodeStartedEvent) RunIDOf() string   { return e.RunID }

type NodeCompletedEvent struct {
	RunID      string                 `json:"run_id"`
	WorkflowID string                 `json:"workflow_id"`
	NodeID     string                 `json:"node_id"`
	NodeType   string                 `json:"node_type"`
	Output     map[string]interface{} `json:"output,omitempty"`
	Attempts   int                    `json:"attempts"`
	Duration   time.Duration          `json:"duration"`
	Timestamp  time.Time              `json:"timestamp"`
}

func (e NodeCompletedEvent) EventName() string { return EventNodeCompleted }
func (e NodeCompletedEvent) RunIDOf() string   { return e.RunID }

type NodeErrorEvent struct {
	RunID      string        `json:"run_id"`
	WorkflowID string        `json:"workflow_id"`
	NodeID     string        `json:"node_id"`
	NodeType   string        `json:"node_type"`
	Error      string        `json:"error"`
	Attempts   int           `json:"attempts"`
	Duration   time.Duration `json:"duration"`
	Timestamp  time.Time     `json:"timestamp"`
}

func (e NodeErrorEvent) EventName() string { return EventNodeError }
func (e NodeErrorEvent) RunIDOf() string   { return e.RunID }

type NodeErrorHelpEvent struct {
	RunID      string    `json:"run_id"`
	WorkflowID string    `json:"workflow_id"`
	NodeID     string    `json:"node_id"`
	Advice     string    `json:"advice"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e NodeErrorHelpEvent) EventName() string { return EventNodeErrorHelp }
func (e NodeErrorHelpEvent) RunIDOf() string   { return e.RunID }

type ExecutionCompletedEvent struct {
	RunID      string                 `json:"run_id"`
	WorkflowID string                 `json:"workflow_id"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Duration   time.Duration          `json:"duration"`
	Timestamp  time.Time              `json:"timestamp"`
}

func (e ExecutionCompletedEvent) EventName() string { return EventExecutionCompleted }
func (e ExecutionCompletedEvent) RunIDOf() string   { return e.RunID }

type ExecutionFailedEvent struct {
	RunID        string        `json:"run_id"`
	WorkflowID   string        `json:"workflow_id"`
	Error        string        `json:"error"`
	FailedNodeID string        `json:"failed_node_id,omitempty"`
	Duration     time.Duration `json:"duration"`
	Timestamp    time.Time     `json:"timestamp"`
}

func (e ExecutionFailedEvent) EventName() string { return EventExecutionFailed }
func (e ExecutionFailedEvent) RunIDOf() string   { return e.RunID }

type ExecutionCancelledEvent struct {
	RunID      string        `json:"run_id"`
	WorkflowID string        `json:"workflow_id"`
	Duration   time.Duration `json:"duration"`
	Timestamp  time.Time     `json:"timestamp"`
}

func (e ExecutionCancelledEvent) EventName() string { return EventExecutionCancelled }
func (e ExecutionCancelledEvent) RunIDOf() string   { return e.RunID }

// EventRecord is a journaled event envelope, read back in sequence order.
type EventRecord struct {
	Seq       uint64           `json:"seq"`
	Name      string           `json:"name"`
	RunID     string           `json:"run_id"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   xjson.RawMessage `json:"payload"`
}
