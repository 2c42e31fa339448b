package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/ports"
)

// Breaker names the engine routes collaborator calls through.
const (
	persistenceBreaker = "persistence"
	advisorBreaker     = "advisor"
)

// terminalPersistTimeout bounds the final record write. It runs on a
// fresh context because the run's own context is usually dead by then.
const terminalPersistTimeout = 5 * time.Second

var errRunCancelled = errors.New("run cancelled")

// Engine walks workflow graphs node by node. Runs are independent of
// each other; within a run the walk is sequential. The error returned by
// Execute/Run covers failures to start — the outcome of the walk itself
// is carried on the run record.
type Engine struct {
	store    ports.Store
	events   ports.EventManager
	registry ports.NodeRegistry
	advisor  ports.Advisor
	breakers ports.CircuitBreakerProvider
	config   domain.EngineConfig
	logger   *slog.Logger

	mu   sync.RWMutex
	live map[string]*liveRun
}

// liveRun guards one running execution. The walk goroutine is the only
// writer; Status and Cancel read through the mutex.
type liveRun struct {
	mu        sync.Mutex
	run       *domain.Run
	cancel    context.CancelFunc
	cancelled bool
}

func (l *liveRun) mutate(fn func(r *domain.Run)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.run)
}

func (l *liveRun) snapshot() *domain.Run {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.run.Clone()
}

func (l *liveRun) requestCancel() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancelled || l.run.Status.Terminal() {
		return false
	}
	l.cancelled = true
	return true
}

func (l *liveRun) isCancelled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancelled
}

func NewEngine(
	store ports.Store,
	events ports.EventManager,
	registry ports.NodeRegistry,
	advisor ports.Advisor,
	breakers ports.CircuitBreakerProvider,
	config domain.EngineConfig,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		events:   events,
		registry: registry,
		advisor:  advisor,
		breakers: breakers,
		config:   config,
		logger:   logger.With("component", "engine"),
		live:     make(map[string]*liveRun),
	}
}

func (e *Engine) Execute(ctx context.Context, workflow *domain.Workflow, trigger map[string]interface{}) (*domain.Run, error) {
	ex, err := e.prepare(ctx, ctx, workflow, trigger)
	if err != nil {
		return nil, err
	}
	return ex.walk(), nil
}

// ExecuteAsync starts the walk on its own goroutine and returns the run
// id. The run is detached: it lives under its own context, not the
// caller's, so it keeps going after the caller moves on.
func (e *Engine) ExecuteAsync(ctx context.Context, workflow *domain.Workflow, trigger map[string]interface{}) (string, error) {
	ex, err := e.prepare(ctx, context.Background(), workflow, trigger)
	if err != nil {
		return "", err
	}
	go ex.walk()
	return ex.lr.run.ID, nil
}

// execution is one prepared run: record registered in the live index,
// initial snapshot persisted, execution.started published. walk drives
// it to a terminal status.
type execution struct {
	engine   *Engine
	lr       *liveRun
	ctx      context.Context
	cancel   context.CancelFunc
	workflow *domain.Workflow
	trigger  map[string]interface{}
	timeout  time.Duration
	logger   *slog.Logger
}

// prepare validates the workflow and makes the run observable before any
// node executes. prepCtx bounds the preparation itself; the walk runs
// under a context derived from base.
func (e *Engine) prepare(prepCtx, base context.Context, workflow *domain.Workflow, trigger map[string]interface{}) (*execution, error) {
	if workflow == nil {
		return nil, domain.NewValidationError("workflow is required")
	}
	if err := workflow.Validate(); err != nil {
		return nil, err
	}

	run := &domain.Run{
		ID:         uuid.NewString(),
		WorkflowID: workflow.ID,
		Status:     domain.RunStatusRunning,
		StartedAt:  time.Now().UTC(),
		Trigger:    trigger,
		Context:    map[string]interface{}{},
	}

	timeout := workflow.Settings.Timeout
	if timeout <= 0 {
		timeout = e.config.DefaultTimeout
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(base, timeout)
	} else {
		runCtx, cancel = context.WithCancel(base)
	}

	lr := &liveRun{run: run, cancel: cancel}
	e.mu.Lock()
	e.live[run.ID] = lr
	e.mu.Unlock()

	logger := e.logger.With("workflow_id", workflow.ID, "run_id", run.ID)
	logger.Info("execution started", "nodes", len(workflow.Nodes))

	if err := e.persistSnapshot(prepCtx, lr); err != nil {
		logger.Warn("initial run record not persisted", "error", err)
	}

	e.events.Publish(domain.ExecutionStartedEvent{
		RunID:      run.ID,
		WorkflowID: workflow.ID,
		Trigger:    trigger,
		Timestamp:  time.Now().UTC(),
	})

	return &execution{
		engine:   e,
		lr:       lr,
		ctx:      runCtx,
		cancel:   cancel,
		workflow: workflow,
		trigger:  trigger,
		timeout:  timeout,
		logger:   logger,
	}, nil
}

func (ex *execution) walk() *domain.Run {
	e, lr, logger := ex.engine, ex.lr, ex.logger
	defer ex.cancel()
	defer e.prune(lr.run.ID)

	workflow := e.advise(ex.ctx, ex.workflow, logger)

	order := executionOrder(workflow, logger)
	if len(order) == 0 {
		logger.Info("workflow has no start nodes, completing empty")
		return e.finish(lr, domain.RunStatusSuccess, "", "", logger)
	}

	runContext := map[string]interface{}{}
	for _, node := range order {
		if lr.isCancelled() {
			return e.finish(lr, domain.RunStatusCancelled, "", "", logger)
		}
		if err := ex.ctx.Err(); err != nil {
			return e.finishInterrupted(lr, err, ex.timeout, node.ID, logger)
		}

		input, err := domain.MergeStates(ex.trigger, runContext)
		if err != nil {
			logger.Error("node input could not be assembled", "node_id", node.ID, "error", err)
			msg := fmt.Sprintf("node %s input: %v", node.ID, err)
			return e.finish(lr, domain.RunStatusError, msg, node.ID, logger)
		}

		output, nodeErr := e.executeNode(ex.ctx, lr, workflow.Settings, node, input, logger)
		if nodeErr != nil {
			if errors.Is(nodeErr, errRunCancelled) {
				return e.finish(lr, domain.RunStatusCancelled, "", "", logger)
			}
			if ctxErr := ex.ctx.Err(); ctxErr != nil {
				return e.finishInterrupted(lr, ctxErr, ex.timeout, node.ID, logger)
			}
			msg := fmt.Sprintf("node %s failed: %v", node.ID, nodeErr)
			return e.finish(lr, domain.RunStatusError, msg, node.ID, logger)
		}

		if len(output) > 0 {
			merged, err := domain.MergeStates(runContext, output)
			if err != nil {
				logger.Error("node output could not be merged", "node_id", node.ID, "error", err)
				msg := fmt.Sprintf("node %s output: %v", node.ID, err)
				return e.finish(lr, domain.RunStatusError, msg, node.ID, logger)
			}
			runContext = merged
			lr.mutate(func(r *domain.Run) { r.Context = merged })
		}
	}

	return e.finish(lr, domain.RunStatusSuccess, "", "", logger)
}

// Run loads the workflow from storage and executes it.
func (e *Engine) Run(ctx context.Context, workflowID string, trigger map[string]interface{}) (*domain.Run, error) {
	if workflowID == "" {
		return nil, domain.NewValidationError("workflow id is required")
	}
	workflow, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, workflow, trigger)
}

func (e *Engine) Cancel(runID string) bool {
	e.mu.RLock()
	lr, ok := e.live[runID]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	if !lr.requestCancel() {
		return false
	}
	lr.cancel()
	e.logger.Info("run cancellation requested", "run_id", runID)
	return true
}

func (e *Engine) Status(runID string) (*domain.Run, bool) {
	e.mu.RLock()
	lr, ok := e.live[runID]
	e.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return lr.snapshot(), true
}

// executeNode runs one node under the workflow's retry settings. The
// returned error is nil on success, errRunCancelled when cancellation
// interrupted the node, and the exhausted failure otherwise.
func (e *Engine) executeNode(ctx context.Context, lr *liveRun, settings domain.Settings, node domain.Node, input map[string]interface{}, logger *slog.Logger) (map[string]interface{}, error) {
	started := time.Now().UTC()
	exec := domain.NodeExecution{
		ID:        uuid.NewString(),
		NodeID:    node.ID,
		NodeType:  node.Type,
		Status:    domain.NodeExecutionRunning,
		StartedAt: started,
		Input:     input,
	}

	var idx int
	lr.mutate(func(r *domain.Run) {
		r.Nodes = append(r.Nodes, exec)
		idx = len(r.Nodes) - 1
	})

	e.events.Publish(domain.NodeStartedEvent{
		RunID:      lr.run.ID,
		WorkflowID: lr.run.WorkflowID,
		NodeID:     node.ID,
		NodeType:   node.Type,
		Attempt:    1,
		Timestamp:  started,
	})

	capability, err := e.registry.Resolve(node.Type)
	if err != nil {
		logger.Error("no capability for node type", "node_id", node.ID, "node_type", node.Type)
		e.failNode(lr, idx, started, node, err)
		return nil, err
	}

	maxAttempts := settings.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	strategy := strategyFor(settings, e.config.RetryBackoff)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if lr.isCancelled() {
				return nil, errRunCancelled
			}
			select {
			case <-ctx.Done():
				if lr.isCancelled() {
					return nil, errRunCancelled
				}
				e.failNode(lr, idx, started, node, ctx.Err())
				return nil, ctx.Err()
			case <-time.After(strategy.Delay(attempt - 1)):
			}

			e.events.Publish(domain.NodeStartedEvent{
				RunID:      lr.run.ID,
				WorkflowID: lr.run.WorkflowID,
				NodeID:     node.ID,
				NodeType:   node.Type,
				Attempt:    attempt,
				Timestamp:  time.Now().UTC(),
			})
		}

		lr.mutate(func(r *domain.Run) { r.Nodes[idx].Attempts = attempt })

		rc := domain.RunContext{
			RunID:           lr.run.ID,
			WorkflowID:      lr.run.WorkflowID,
			NodeExecutionID: exec.ID,
			Attempt:         attempt,
			Logger:          logger.With("node_id", node.ID),
		}

		output, execErr := invokeCapability(ctx, capability, node, input, rc)
		if lr.isCancelled() {
			logger.Debug("node outcome after cancellation ignored", "node_id", node.ID, "attempt", attempt)
			return nil, errRunCancelled
		}

		if execErr == nil {
			completed := time.Now().UTC()
			lr.mutate(func(r *domain.Run) {
				r.Nodes[idx].Status = domain.NodeExecutionSuccess
				r.Nodes[idx].CompletedAt = &completed
				r.Nodes[idx].Output = output
			})
			e.events.Publish(domain.NodeCompletedEvent{
				RunID:      lr.run.ID,
				WorkflowID: lr.run.WorkflowID,
				NodeID:     node.ID,
				NodeType:   node.Type,
				Output:     output,
				Attempts:   attempt,
				Duration:   completed.Sub(started),
				Timestamp:  completed,
			})
			logger.Debug("node completed", "node_id", node.ID, "attempts", attempt)
			return output, nil
		}

		lastErr = execErr
		logger.Warn("node attempt failed",
			"node_id", node.ID,
			"node_type", node.Type,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", execErr,
		)

		if ctx.Err() != nil {
			break
		}
	}

	e.failNode(lr, idx, started, node, lastErr)
	return nil, lastErr
}

// failNode marks the node execution failed, emits node.error, and asks
// the advisor for help with the failure.
func (e *Engine) failNode(lr *liveRun, idx int, started time.Time, node domain.Node, execErr error) {
	completed := time.Now().UTC()
	var attempts int
	lr.mutate(func(r *domain.Run) {
		r.Nodes[idx].Status = domain.NodeExecutionError
		r.Nodes[idx].CompletedAt = &completed
		r.Nodes[idx].Error = execErr.Error()
		attempts = r.Nodes[idx].Attempts
	})

	e.events.Publish(domain.NodeErrorEvent{
		RunID:      lr.run.ID,
		WorkflowID: lr.run.WorkflowID,
		NodeID:     node.ID,
		NodeType:   node.Type,
		Error:      execErr.Error(),
		Attempts:   attempts,
		Duration:   completed.Sub(started),
		Timestamp:  completed,
	})

	e.help(lr, node, execErr)
}

// help requests one line of advice for a failed node. Best effort: the
// help event is only published when the advisor answers.
func (e *Engine) help(lr *liveRun, node domain.Node, execErr error) {
	if e.advisor == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), terminalPersistTimeout)
	defer cancel()

	var advice string
	err := e.breakers.Get(advisorBreaker).Execute(ctx, func() error {
		var helpErr error
		advice, helpErr = e.advisor.HelpWithError(ctx, node, execErr)
		return helpErr
	})
	if err != nil || advice == "" {
		e.logger.Debug("error advice unavailable", "run_id", lr.run.ID, "node_id", node.ID, "error", err)
		return
	}

	e.events.Publish(domain.NodeErrorHelpEvent{
		RunID:      lr.run.ID,
		WorkflowID: lr.run.WorkflowID,
		NodeID:     node.ID,
		Advice:     advice,
		Timestamp:  time.Now().UTC(),
	})
}

// advise runs the pre-flight analysis. Failures never abort the run;
// the optimized copy is adopted only when the advisor succeeds.
func (e *Engine) advise(ctx context.Context, workflow *domain.Workflow, logger *slog.Logger) *domain.Workflow {
	if e.advisor == nil {
		return workflow
	}

	breaker := e.breakers.Get(advisorBreaker)

	var report *domain.AnalysisReport
	err := breaker.Execute(ctx, func() error {
		var analyzeErr error
		report, analyzeErr = e.advisor.Analyze(ctx, workflow)
		return analyzeErr
	})
	if err != nil {
		logger.Warn("workflow analysis unavailable", "error", err)
		return workflow
	}
	if report == nil || !report.NeedsOptimization {
		return workflow
	}

	var optimized *domain.Workflow
	err = breaker.Execute(ctx, func() error {
		var optimizeErr error
		optimized, optimizeErr = e.advisor.Optimize(ctx, workflow, report)
		return optimizeErr
	})
	if err != nil || optimized == nil {
		logger.Warn("workflow optimization failed, executing as-is", "error", err)
		return workflow
	}

	logger.Debug("executing optimized workflow", "issues", len(report.Issues))
	return optimized
}

// finish seals the run: terminal status, persistence, then the terminal
// event. The record is written before the event so observers never race
// ahead of durable state; when the write fails after the breaker gives
// up, the event still carries the in-memory run.
func (e *Engine) finish(lr *liveRun, status domain.RunStatus, runErr, failedNodeID string, logger *slog.Logger) *domain.Run {
	completed := time.Now().UTC()
	lr.mutate(func(r *domain.Run) {
		r.Status = status
		r.CompletedAt = &completed
		r.Error = runErr
	})

	run := lr.snapshot()
	if err := e.persistTerminal(run); err != nil {
		logger.Warn("run record not persisted, terminal event carries in-memory state", "error", err)
	}

	duration := completed.Sub(run.StartedAt)
	switch status {
	case domain.RunStatusSuccess:
		e.events.Publish(domain.ExecutionCompletedEvent{
			RunID:      run.ID,
			WorkflowID: run.WorkflowID,
			Context:    run.Context,
			Duration:   duration,
			Timestamp:  completed,
		})
	case domain.RunStatusCancelled:
		e.events.Publish(domain.ExecutionCancelledEvent{
			RunID:      run.ID,
			WorkflowID: run.WorkflowID,
			Duration:   duration,
			Timestamp:  completed,
		})
	default:
		e.events.Publish(domain.ExecutionFailedEvent{
			RunID:        run.ID,
			WorkflowID:   run.WorkflowID,
			Error:        runErr,
			FailedNodeID: failedNodeID,
			Duration:     duration,
			Timestamp:    completed,
		})
	}

	logger.Info("execution finished", "status", status, "duration", duration, "nodes", len(run.Nodes))
	return run
}

// finishInterrupted maps a dead run context to its terminal state:
// deadline expiry is a timeout failure, everything else a cancellation.
func (e *Engine) finishInterrupted(lr *liveRun, ctxErr error, timeout time.Duration, nodeID string, logger *slog.Logger) *domain.Run {
	if !errors.Is(ctxErr, context.DeadlineExceeded) || lr.isCancelled() {
		return e.finish(lr, domain.RunStatusCancelled, "", "", logger)
	}
	msg := fmt.Sprintf("workflow timed out after %s", timeout)
	return e.finish(lr, domain.RunStatusError, msg, nodeID, logger)
}

func (e *Engine) persistSnapshot(ctx context.Context, lr *liveRun) error {
	run := lr.snapshot()
	return e.breakers.Get(persistenceBreaker).Execute(ctx, func() error {
		return e.store.SaveExecution(ctx, run)
	})
}

// persistTerminal retries the final write up to PersistAttempts times.
// An open breaker short-circuits the retries; it would reject them all.
func (e *Engine) persistTerminal(run *domain.Run) error {
	attempts := e.config.PersistAttempts
	if attempts <= 0 {
		attempts = 1
	}

	breaker := e.breakers.Get(persistenceBreaker)
	var err error
	for i := 0; i < attempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), terminalPersistTimeout)
		err = breaker.Execute(ctx, func() error {
			return e.store.SaveExecution(ctx, run)
		})
		cancel()
		if err == nil {
			return nil
		}
		if domain.IsBreakerOpen(err) {
			return err
		}
	}
	return err
}

func (e *Engine) prune(runID string) {
	e.mu.Lock()
	delete(e.live, runID)
	e.mu.Unlock()
}

// invokeCapability recovers panics so one misbehaving capability cannot
// take down the engine.
func invokeCapability(ctx context.Context, capability ports.Capability, node domain.Node, input map[string]interface{}, rc domain.RunContext) (output map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewInternalError(fmt.Sprintf("capability for %s panicked: %v", node.Type, r), nil)
		}
	}()
	return capability.Execute(ctx, node, input, rc)
}

var _ ports.WorkflowEngine = (*Engine)(nil)
