// Package weft provides an embeddable workflow automation engine for Go
// applications.
//
// Weft executes workflows defined as directed graphs of typed nodes. The
// host application registers a capability per node type; weft walks the
// graph, isolates per-node failures with retries and circuit breakers,
// and reports progress through lifecycle events. It provides:
//   - Graph execution with per-node retry policies and fail-fast runs
//   - Tiered persistence (Postgres, file, memory) selected at startup
//   - A two-level cache with tag invalidation and distributed locks
//   - Typed pub/sub lifecycle events with an optional replayable journal
//   - Cron scheduling of stored workflows
//
// Basic usage:
//
//	manager, err := weft.New(weft.WithDataDir("./data"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer manager.Stop()
//
//	manager.RegisterCapability("http.request", myHTTPCapability)
//	manager.SaveWorkflow(ctx, workflow)
//	run, err := manager.ExecuteWorkflow(ctx, workflow.ID, trigger)
package weft

import (
	"github.com/weftworks/weft/internal/core"
	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/ports"
)

// Manager is the assembled system: workflow storage, the execution
// engine, events, cache, scheduling, and health, behind one surface.
type Manager = core.Manager

// Workflow is a directed graph of typed nodes with per-workflow
// execution settings.
type Workflow = domain.Workflow

// Node is one unit of work in a workflow, bound to a capability by its
// Type string.
type Node = domain.Node

// Edge directs the walk from one node to another.
type Edge = domain.Edge

// Position is presentation metadata for graph editors.
type Position = domain.Position

// Settings carry per-workflow execution policy: ordering, timeout,
// retries, and an optional cron schedule.
type Settings = domain.Settings

// Run is one execution of a workflow, including its per-node records.
type Run = domain.Run

// NodeExecution records one node's outcome within a run.
type NodeExecution = domain.NodeExecution

// RunContext is handed to capabilities alongside the node input.
type RunContext = domain.RunContext

// RunStatus is the run lifecycle state.
type RunStatus = domain.RunStatus

// NodeExecutionStatus is the per-node lifecycle state.
type NodeExecutionStatus = domain.NodeExecutionStatus

// Lock is a held distributed lock.
type Lock = domain.Lock

// AnalysisReport is the advisor's judgement of a workflow graph.
type AnalysisReport = domain.AnalysisReport

// AnalysisIssue is one finding in an analysis report.
type AnalysisIssue = domain.AnalysisIssue

// EventRecord is a journaled event, replayed by ExecutionHistory.
type EventRecord = domain.EventRecord

// Capability executes one node type.
type Capability = ports.Capability

// CapabilityFunc adapts a plain function to the Capability interface.
type CapabilityFunc = ports.CapabilityFunc

// StorageTier identifies the persistence backend serving the process.
type StorageTier = ports.StorageTier

// HealthStatus is the storage subsystem's health report.
type HealthStatus = ports.HealthStatus

// SystemHealth aggregates the health of every subsystem.
type SystemHealth = ports.SystemHealth

// ListOptions page List results.
type ListOptions = ports.ListOptions

// Event is anything published on the lifecycle channel.
type Event = domain.Event

// ExecutionStartedEvent is published when a run begins.
type ExecutionStartedEvent = domain.ExecutionStartedEvent

// NodeStartedEvent is published per node attempt.
type NodeStartedEvent = domain.NodeStartedEvent

// NodeCompletedEvent is published when a node succeeds.
type NodeCompletedEvent = domain.NodeCompletedEvent

// NodeErrorEvent is published when a node exhausts its attempts.
type NodeErrorEvent = domain.NodeErrorEvent

// NodeErrorHelpEvent carries the advisor's advice for a failed node.
type NodeErrorHelpEvent = domain.NodeErrorHelpEvent

// ExecutionCompletedEvent is published when a run succeeds.
type ExecutionCompletedEvent = domain.ExecutionCompletedEvent

// ExecutionFailedEvent is published when a run fails.
type ExecutionFailedEvent = domain.ExecutionFailedEvent

// ExecutionCancelledEvent is published when a run is cancelled.
type ExecutionCancelledEvent = domain.ExecutionCancelledEvent

// Run statuses.
const (
	RunStatusRunning   = domain.RunStatusRunning
	RunStatusSuccess   = domain.RunStatusSuccess
	RunStatusError     = domain.RunStatusError
	RunStatusCancelled = domain.RunStatusCancelled
)

// Node execution statuses.
const (
	NodeExecutionRunning = domain.NodeExecutionRunning
	NodeExecutionSuccess = domain.NodeExecutionSuccess
	NodeExecutionError   = domain.NodeExecutionError
)

// Storage tiers.
const (
	TierPostgres = ports.TierPostgres
	TierFile     = ports.TierFile
	TierMemory   = ports.TierMemory
)

// Event names, usable as Subscribe filters.
const (
	EventExecutionStarted   = domain.EventExecutionStarted
	EventNodeStarted        = domain.EventNodeStarted
	EventNodeCompleted      = domain.EventNodeCompleted
	EventNodeError          = domain.EventNodeError
	EventNodeErrorHelp      = domain.EventNodeErrorHelp
	EventExecutionCompleted = domain.EventExecutionCompleted
	EventExecutionFailed    = domain.EventExecutionFailed
	EventExecutionCancelled = domain.EventExecutionCancelled
)

// Workflow execution orders.
const (
	ExecutionOrderBreadth     = domain.ExecutionOrderBreadth
	ExecutionOrderTopological = domain.ExecutionOrderTopological
)

// Retry policies.
const (
	RetryPolicyFixed       = domain.RetryPolicyFixed
	RetryPolicyLinear      = domain.RetryPolicyLinear
	RetryPolicyExponential = domain.RetryPolicyExponential
)

// New builds a Manager from the defaults adjusted by opts.
func New(opts ...Option) (*Manager, error) {
	config := domain.DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	return core.NewWithConfig(config)
}

// NewWithConfig builds a Manager from a complete configuration for hosts
// that need control beyond the options.
func NewWithConfig(config *Config) (*Manager, error) {
	return core.NewWithConfig(config)
}

// IsNotFound reports whether err marks a missing workflow, run, or
// capability.
func IsNotFound(err error) bool {
	return domain.IsNotFound(err)
}

// IsValidation reports whether err marks rejected input.
func IsValidation(err error) bool {
	return domain.IsValidation(err)
}

// IsConflict reports whether err marks a duplicate registration.
func IsConflict(err error) bool {
	return domain.IsConflict(err)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return domain.IsTransient(err)
}

// IsBreakerOpen reports whether err means a circuit breaker rejected the
// call without attempting it.
func IsBreakerOpen(err error) bool {
	return domain.IsBreakerOpen(err)
}
